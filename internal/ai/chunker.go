package ai

import (
	"strings"
	"unicode/utf8"
)

const DefaultChunkSize = 1000

// Chunker splits text into contiguous, non-overlapping segments of at most
// size runes.
type Chunker struct {
	size int
}

type ChunkerOption func(*Chunker)

func WithChunkSize(size int) ChunkerOption {
	return func(c *Chunker) {
		if size > 0 {
			c.size = size
		}
	}
}

func NewChunker(opts ...ChunkerOption) *Chunker {
	c := &Chunker{size: DefaultChunkSize}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Chunker) Size() int {
	return c.size
}

// Chunk never returns an empty slice: when every segment is blank the text
// itself (bounded by the chunk size) is returned as the only chunk.
func (c *Chunker) Chunk(text string) []string {
	runes := []rune(text)
	chunks := make([]string, 0, len(runes)/c.size+1)
	for start := 0; start < len(runes); start += c.size {
		end := start + c.size
		if end > len(runes) {
			end = len(runes)
		}
		segment := string(runes[start:end])
		if strings.TrimSpace(segment) == "" {
			continue
		}
		chunks = append(chunks, segment)
	}
	if len(chunks) == 0 {
		if utf8.RuneCountInString(text) > c.size {
			text = string(runes[:c.size])
		}
		chunks = append(chunks, text)
	}
	return chunks
}
