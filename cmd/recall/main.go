// Copyright 2026 Poiesic Systems
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.


package main

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/poiesic/recall/ai"
	"github.com/poiesic/recall/ai/openai"
	"github.com/poiesic/recall/core"
	"github.com/poiesic/recall/rag"
	"github.com/poiesic/recall/storage"
	"github.com/poiesic/recall/storage/badger"
	"github.com/poiesic/recall/storage/postgres"
	"github.com/poiesic/recall/worker"
	"github.com/urfave/cli/v2"
)

func main() {
	app := &cli.App{
		Name:  "recall",
		Usage: "Conversation memory and retrieval for chat contexts",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "log-level",
				Aliases: []string{"l"},
				Usage:   "Set logging level (debug, info, warn, error)",
				Value:   "info",
			},
		},
		Before: setupLogger,
		Commands: []*cli.Command{
			{
				Name:      "ingest",
				Usage:     "Ingest messages from a JSONL transcript into a context",
				ArgsUsage: "<transcript.jsonl>",
				Action:    ingestCommand,
				Flags: joinFlags(storeFlags(), []cli.Flag{
					&cli.StringFlag{
						Name:     "ctx",
						Usage:    "Conversation context ID",
						Required: true,
					},
					&cli.BoolFlag{
						Name:  "group",
						Usage: "Mark the context as a group conversation",
					},
				}),
			},
			{
				Name:   "index",
				Usage:  "Embed messages added since the last indexed chunk",
				Action: indexCommand,
				Flags: joinFlags(storeFlags(), embeddingFlags(), []cli.Flag{
					&cli.StringFlag{
						Name:     "ctx",
						Usage:    "Conversation context ID",
						Required: true,
					},
				}),
			},
			{
				Name:      "search",
				Usage:     "Retrieve conversation context relevant to a query",
				ArgsUsage: "<query>",
				Action:    searchCommand,
				Flags: joinFlags(storeFlags(), embeddingFlags(), []cli.Flag{
					&cli.StringFlag{
						Name:     "ctx",
						Usage:    "Conversation context ID",
						Required: true,
					},
					&cli.IntFlag{
						Name:  "top-k",
						Usage: "Maximum number of chunks to retrieve",
						Value: 3,
					},
					&cli.Float64Flag{
						Name:  "min-similarity",
						Usage: "Minimum cosine similarity for a chunk to match",
						Value: 0.5,
					},
				}),
			},
			{
				Name:   "stats",
				Usage:  "Show embedding statistics for a context",
				Action: statsCommand,
				Flags: joinFlags(storeFlags(), []cli.Flag{
					&cli.StringFlag{
						Name:     "ctx",
						Usage:    "Conversation context ID",
						Required: true,
					},
				}),
			},
			{
				Name:   "delete",
				Usage:  "Delete all embeddings for a context",
				Action: deleteCommand,
				Flags: joinFlags(storeFlags(), []cli.Flag{
					&cli.StringFlag{
						Name:     "ctx",
						Usage:    "Conversation context ID",
						Required: true,
					},
				}),
			},
			{
				Name:   "rebuild",
				Usage:  "Delete and re-embed a context from its stored messages",
				Action: rebuildCommand,
				Flags: joinFlags(storeFlags(), embeddingFlags(), []cli.Flag{
					&cli.StringFlag{
						Name:     "ctx",
						Usage:    "Conversation context ID",
						Required: true,
					},
				}),
			},
			{
				Name:   "worker",
				Usage:  "Run the background indexing worker until interrupted",
				Action: workerCommand,
				Flags: joinFlags(storeFlags(), embeddingFlags(), []cli.Flag{
					&cli.DurationFlag{
						Name:  "interval",
						Usage: "Time between indexing cycles",
						Value: 5 * time.Minute,
					},
					&cli.IntFlag{
						Name:  "batch-size",
						Usage: "Maximum contexts to index per cycle",
						Value: 5,
					},
					&cli.IntFlag{
						Name:  "threshold",
						Usage: "Minimum recent messages for a context to qualify",
						Value: 10,
					},
					&cli.DurationFlag{
						Name:  "recency-window",
						Usage: "How far back to look for recent activity",
						Value: 24 * time.Hour,
					},
				}),
			},
		},
	}

	if err := app.Run(os.Args); err != nil {
		log.Fatal(err)
	}
}

func joinFlags(groups ...[]cli.Flag) []cli.Flag {
	var flags []cli.Flag
	for _, group := range groups {
		flags = append(flags, group...)
	}
	return flags
}

// storeFlags are shared by every command that touches storage.
func storeFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:    "db",
			Aliases: []string{"d"},
			Usage:   "Path to BadgerDB database directory",
			Value:   "recall.db",
		},
		&cli.StringFlag{
			Name:  "pg-dsn",
			Usage: "Postgres DSN; when set, chunks are stored in pgvector instead of Badger",
		},
		&cli.IntFlag{
			Name:  "embedding-dim",
			Usage: "Embedding vector dimension (pgvector table schema)",
			Value: 768,
		},
	}
}

// embeddingFlags are shared by every command that talks to the embedding
// service.
func embeddingFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:  "embedding-host",
			Usage: "Embedding service host URL",
			Value: "http://localhost:11434/v1",
		},
		&cli.StringFlag{
			Name:  "embedding-model",
			Usage: "Embedding model name",
			Value: "embeddinggemma",
		},
		&cli.StringFlag{
			Name:  "embedding-token",
			Usage: "Embedding service API token",
			Value: "none",
		},
	}
}

// stores bundles the opened storage layer so commands can tear it down with
// one defer.
type stores struct {
	backend  *badger.Backend
	chunks   storage.ChunkStore
	messages storage.MessageStore
}

func (s *stores) close() {
	s.chunks.Close()
	s.messages.Close()
	s.backend.Close()
}

func openStores(c *cli.Context) (*stores, error) {
	backend, err := badger.OpenBackend(c.String("db"), false)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	var chunks storage.ChunkStore
	if dsn := c.String("pg-dsn"); dsn != "" {
		chunks, err = postgres.Open(dsn, c.Int("embedding-dim"))
		if err != nil {
			backend.Close()
			return nil, fmt.Errorf("failed to open postgres store: %w", err)
		}
	} else {
		chunks = badger.NewChunkRepository(backend)
	}

	return &stores{
		backend:  backend,
		chunks:   chunks,
		messages: badger.NewMessageRepository(backend),
	}, nil
}

func buildService(c *cli.Context, st *stores) (*rag.Service, error) {
	aiConfig := ai.NewConfig(
		ai.WithEmbeddingHost(c.String("embedding-host")),
		ai.WithEmbeddingModel(c.String("embedding-model")),
		ai.WithToken(c.String("embedding-token")),
	)
	if err := aiConfig.Validate(); err != nil {
		return nil, fmt.Errorf("invalid AI configuration: %w", err)
	}

	embedder, err := openai.NewEmbedder(aiConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create embedder: %w", err)
	}

	ragConfig := rag.DefaultConfig()
	ragConfig.EmbeddingModel = aiConfig.EmbeddingModel
	if c.IsSet("top-k") {
		ragConfig.TopK = c.Int("top-k")
	}
	if c.IsSet("min-similarity") {
		ragConfig.MinSimilarity = float32(c.Float64("min-similarity"))
	}

	return rag.NewService(st.chunks, st.messages, embedder, rag.WithConfig(ragConfig))
}

// transcriptLine is one message in a JSONL transcript.
type transcriptLine struct {
	Sender    string    `json:"sender"`
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
}

func ingestCommand(c *cli.Context) error {
	if c.NArg() != 1 {
		return fmt.Errorf("expected exactly one transcript file argument")
	}

	file, err := os.Open(c.Args().First())
	if err != nil {
		return fmt.Errorf("failed to open transcript: %w", err)
	}
	defer file.Close()

	contextType := core.ContextTypeDirect
	if c.Bool("group") {
		contextType = core.ContextTypeGroup
	}
	contextID := c.String("ctx")

	var messages []*core.Message
	scanner := bufio.NewScanner(file)
	scanner.Buffer(make([]byte, 0, 1024*1024), 1024*1024)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		var rec transcriptLine
		if err := json.Unmarshal([]byte(line), &rec); err != nil {
			return fmt.Errorf("malformed transcript line: %w", err)
		}
		messages = append(messages, &core.Message{
			ContextID:   contextID,
			Sender:      rec.Sender,
			Content:     rec.Content,
			ContextType: contextType,
			Timestamp:   rec.Timestamp,
		})
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("failed to read transcript: %w", err)
	}

	st, err := openStores(c)
	if err != nil {
		return err
	}
	defer st.close()

	added, err := st.messages.AddMessages(context.Background(), messages...)
	if err != nil {
		return fmt.Errorf("ingestion failed: %w", err)
	}

	fmt.Fprintf(os.Stderr, "Ingested %d messages into context %s\n", len(added), contextID)
	return nil
}

func indexCommand(c *cli.Context) error {
	st, err := openStores(c)
	if err != nil {
		return err
	}
	defer st.close()

	service, err := buildService(c, st)
	if err != nil {
		return err
	}

	embedded, err := service.ProcessUnembeddedMessages(context.Background(), c.String("ctx"))
	if err != nil {
		return fmt.Errorf("indexing failed: %w", err)
	}

	fmt.Fprintf(os.Stderr, "Embedded %d messages\n", embedded)
	return nil
}

func searchCommand(c *cli.Context) error {
	if c.NArg() != 1 {
		return fmt.Errorf("expected exactly one query argument")
	}

	st, err := openStores(c)
	if err != nil {
		return err
	}
	defer st.close()

	service, err := buildService(c, st)
	if err != nil {
		return err
	}

	result, err := service.RetrieveRelevantContext(context.Background(), c.String("ctx"), c.Args().First())
	if err != nil {
		return fmt.Errorf("retrieval failed: %w", err)
	}

	if result.Count == 0 {
		fmt.Fprintln(os.Stderr, "No relevant context found")
		return nil
	}

	fmt.Fprintf(os.Stderr, "Matched %d chunks (avg similarity %.2f) in %s\n\n",
		result.Count, result.AvgSimilarity, result.Latency.Round(time.Millisecond))
	fmt.Println(result.ContextText)
	return nil
}

func statsCommand(c *cli.Context) error {
	st, err := openStores(c)
	if err != nil {
		return err
	}
	defer st.close()

	stats, err := st.chunks.Stats(context.Background(), c.String("ctx"))
	if err != nil {
		return fmt.Errorf("failed to read stats: %w", err)
	}

	fmt.Printf("Context:            %s\n", stats.ContextID)
	fmt.Printf("Chunks:             %d\n", stats.ChunkCount)
	fmt.Printf("Latest chunk index: %d\n", stats.LatestChunkIndex)
	if stats.ChunkCount > 0 {
		fmt.Printf("Latest timestamp:   %s\n", stats.LatestTimestamp.Format(time.RFC3339))
	}
	return nil
}

func deleteCommand(c *cli.Context) error {
	st, err := openStores(c)
	if err != nil {
		return err
	}
	defer st.close()

	deleted, err := st.chunks.DeleteByContext(context.Background(), c.String("ctx"))
	if err != nil {
		return fmt.Errorf("deletion failed: %w", err)
	}

	fmt.Fprintf(os.Stderr, "Deleted %d chunks\n", deleted)
	return nil
}

func rebuildCommand(c *cli.Context) error {
	st, err := openStores(c)
	if err != nil {
		return err
	}
	defer st.close()

	service, err := buildService(c, st)
	if err != nil {
		return err
	}

	embedded, err := service.RebuildEmbeddings(context.Background(), c.String("ctx"))
	if err != nil {
		return fmt.Errorf("rebuild failed: %w", err)
	}

	fmt.Fprintf(os.Stderr, "Rebuilt embeddings from %d messages\n", embedded)
	return nil
}

func workerCommand(c *cli.Context) error {
	st, err := openStores(c)
	if err != nil {
		return err
	}
	defer st.close()

	service, err := buildService(c, st)
	if err != nil {
		return err
	}

	config := worker.DefaultConfig()
	config.Interval = c.Duration("interval")
	config.BatchSize = c.Int("batch-size")
	config.MessagesThreshold = c.Int("threshold")
	config.RecencyWindow = c.Duration("recency-window")

	w, err := worker.NewWorker(service, st.messages, worker.WithConfig(config))
	if err != nil {
		return fmt.Errorf("failed to create worker: %w", err)
	}
	defer w.Release()

	w.Start()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	<-sigCh

	w.Stop()
	stats := w.GetStats()
	fmt.Fprintf(os.Stderr, "Worker stopped: %d cycles, %d contexts processed, %d messages embedded\n",
		stats.TotalRuns, stats.ContextsProcessed, stats.MessagesEmbedded)
	return nil
}

func setupLogger(c *cli.Context) error {
	levelStr := strings.ToLower(c.String("log-level"))

	var level slog.Level
	switch levelStr {
	case "debug":
		level = slog.LevelDebug
	case "info":
		level = slog.LevelInfo
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		return fmt.Errorf("invalid log level %q: must be one of debug, info, warn, error", levelStr)
	}

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: level,
	}))
	slog.SetDefault(logger)

	return nil
}
