package mock

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEmbedder_Deterministic(t *testing.T) {
	e := NewEmbedder()

	first, err := e.EmbedText(context.Background(), "hello world")
	require.NoError(t, err)
	second, err := e.EmbedText(context.Background(), "hello world")
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.Len(t, first, 384)
}

func TestEmbedder_CallCountConcurrent(t *testing.T) {
	e := NewEmbedder()

	const calls = 50
	var wg sync.WaitGroup
	for i := 0; i < calls; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := e.EmbedText(context.Background(), "concurrent")
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	assert.Equal(t, calls, e.CallCount())
}

func TestEmbedder_Reset(t *testing.T) {
	e := NewEmbedder()
	_, err := e.EmbedText(context.Background(), "x")
	require.NoError(t, err)
	require.Equal(t, 1, e.CallCount())

	e.Reset()
	assert.Zero(t, e.CallCount())
}
