// Package chunk splits extracted document text into overlapping chunks.
package chunk

import (
	"strings"
)

// Defaults for prose documents.
const (
	DefaultChunkSize = 1000
	DefaultOverlap   = 200
)

// separators are tried in order, coarsest first. The splitter recurses
// into a finer separator only when a piece is still too large.
var separators = []string{"\n\n", "\n", ". ", ", ", " ", ""}

// Options configures the splitter.
type Options struct {
	// Size is the target chunk size in characters.
	Size int
	// Overlap is the number of characters shared with the previous chunk.
	Overlap int
}

// WithDefaults fills zero fields with defaults.
func (o Options) WithDefaults() Options {
	if o.Size <= 0 {
		o.Size = DefaultChunkSize
	}
	if o.Overlap < 0 || o.Overlap >= o.Size {
		o.Overlap = DefaultOverlap
		if o.Overlap >= o.Size {
			o.Overlap = o.Size / 5
		}
	}
	return o
}

// Splitter splits text recursively on natural boundaries.
type Splitter struct {
	opts Options
}

// NewSplitter creates a splitter with the given options.
func NewSplitter(opts Options) *Splitter {
	return &Splitter{opts: opts.WithDefaults()}
}

// Split splits text into chunks of at most Size characters with Overlap
// characters of context carried between adjacent chunks. Empty or
// whitespace-only input yields no chunks.
func (s *Splitter) Split(text string) []string {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil
	}

	pieces := s.split(text, 0)
	return s.merge(pieces)
}

// split recursively breaks text on the separator hierarchy until every
// piece fits within the chunk size.
func (s *Splitter) split(text string, sepIdx int) []string {
	if len(text) <= s.opts.Size {
		return []string{text}
	}
	if sepIdx >= len(separators) {
		return hardSplit(text, s.opts.Size)
	}

	sep := separators[sepIdx]
	if sep == "" {
		return hardSplit(text, s.opts.Size)
	}

	parts := strings.Split(text, sep)
	if len(parts) == 1 {
		return s.split(text, sepIdx+1)
	}

	var out []string
	for i, part := range parts {
		// Keep the separator attached so merged chunks read naturally.
		if i < len(parts)-1 {
			part += sep
		}
		if len(part) <= s.opts.Size {
			out = append(out, part)
			continue
		}
		out = append(out, s.split(part, sepIdx+1)...)
	}
	return out
}

// merge greedily packs pieces into chunks and applies the overlap.
func (s *Splitter) merge(pieces []string) []string {
	var chunks []string
	var current strings.Builder

	flush := func() {
		text := strings.TrimSpace(current.String())
		if text != "" {
			chunks = append(chunks, text)
		}
		current.Reset()
	}

	for _, piece := range pieces {
		if current.Len() > 0 && current.Len()+len(piece) > s.opts.Size {
			tail := overlapTail(current.String(), s.opts.Overlap)
			flush()
			current.WriteString(tail)
		}
		current.WriteString(piece)
	}
	flush()

	return chunks
}

// overlapTail returns the last n characters, snapped forward to a word
// boundary so chunks do not begin mid-word.
func overlapTail(text string, n int) string {
	if n <= 0 || len(text) <= n {
		if n <= 0 {
			return ""
		}
		return text
	}
	tail := text[len(text)-n:]
	if idx := strings.IndexAny(tail, " \n"); idx >= 0 && idx+1 < len(tail) {
		tail = tail[idx+1:]
	}
	return tail
}

// hardSplit cuts text at fixed offsets, the last resort for text without
// any separator.
func hardSplit(text string, size int) []string {
	var out []string
	for len(text) > size {
		out = append(out, text[:size])
		text = text[size:]
	}
	if text != "" {
		out = append(out, text)
	}
	return out
}
