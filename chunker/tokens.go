package chunker

import "strings"

// EstimateTokens approximates the token count of a text for observability.
// ASCII words count as one token each and non-ASCII runes (CJK and similar)
// as one token per rune; non-ASCII runes are excluded from the word count so
// they are never counted twice. This is an estimate, not a tokenization.
func EstimateTokens(text string) int {
	count := 0
	var ascii strings.Builder
	for _, r := range text {
		if r > 127 {
			count++
			// Separate adjacent ASCII runs so they count as distinct words
			ascii.WriteByte(' ')
			continue
		}
		ascii.WriteRune(r)
	}
	count += len(strings.Fields(ascii.String()))
	if count == 0 && len(text) > 0 {
		return 1
	}
	return count
}
