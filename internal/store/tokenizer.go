package store

import (
	"regexp"
	"strings"
)

// proseTokenRegex matches alphanumeric word sequences.
var proseTokenRegex = regexp.MustCompile(`[a-zA-Z0-9]+`)

// keywordStopWords are common English words excluded from the keyword
// index. BM25 handles frequent terms gracefully, but dropping glue words
// keeps the FTS table smaller and MATCH queries cheaper.
var keywordStopWords = buildStopWordMap([]string{
	"the", "a", "an", "and", "or", "but",
	"of", "to", "in", "on", "at", "for", "with", "by",
	"is", "are", "was", "were", "be", "been",
	"it", "its", "this", "that", "these", "those", "as",
})

// Tokenize splits text into lowercase word tokens of at least two
// characters, matching the preprocessing used for both indexing and
// queries so MATCH terms line up.
func Tokenize(text string) []string {
	words := proseTokenRegex.FindAllString(text, -1)

	tokens := make([]string, 0, len(words))
	for _, word := range words {
		lower := strings.ToLower(word)
		if len(lower) < 2 {
			continue
		}
		if _, stop := keywordStopWords[lower]; stop {
			continue
		}
		tokens = append(tokens, lower)
	}
	return tokens
}

func buildStopWordMap(words []string) map[string]struct{} {
	m := make(map[string]struct{}, len(words))
	for _, w := range words {
		m[strings.ToLower(w)] = struct{}{}
	}
	return m
}
