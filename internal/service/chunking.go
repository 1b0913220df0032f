package service

import (
	"strings"

	"github.com/cloo-solutions/draftdesk/internal/domain"
)

// ChunkConfig controls how extracted text is split into sections.
type ChunkConfig struct {
	Size    int
	Overlap int
}

// DefaultChunkConfig provides sane defaults for chunking.
func DefaultChunkConfig() ChunkConfig {
	return ChunkConfig{
		Size:    1000,
		Overlap: 200,
	}
}

// Validate checks that the window parameters terminate and cover the text.
func (c ChunkConfig) Validate() error {
	if c.Size <= 0 {
		return domain.InvalidArgument("chunk size must be positive, got %d", c.Size)
	}
	if c.Overlap < 0 {
		return domain.InvalidArgument("chunk overlap cannot be negative, got %d", c.Overlap)
	}
	if c.Overlap >= c.Size {
		return domain.InvalidArgument("chunk overlap (%d) must be smaller than chunk size (%d)", c.Overlap, c.Size)
	}
	return nil
}

// Chunk splits text into windows of at most size characters, each starting
// size-overlap characters after the previous one. The last window always ends
// at the end of the text. Whitespace-only input yields no chunks.
func Chunk(text string, size, overlap int) ([]string, error) {
	if err := (ChunkConfig{Size: size, Overlap: overlap}).Validate(); err != nil {
		return nil, err
	}

	if strings.TrimSpace(text) == "" {
		return []string{}, nil
	}

	runes := []rune(text)
	step := size - overlap
	chunks := make([]string, 0, len(runes)/step+1)

	for start := 0; ; start += step {
		end := min(start+size, len(runes))
		chunks = append(chunks, string(runes[start:end]))
		if end == len(runes) {
			break
		}
	}

	return chunks, nil
}

// ChunkPages chunks every page independently so each chunk keeps the page it
// came from. Output follows page order.
func ChunkPages(pages []domain.PageText, size, overlap int) ([]domain.ChunkInput, error) {
	if err := (ChunkConfig{Size: size, Overlap: overlap}).Validate(); err != nil {
		return nil, err
	}

	out := make([]domain.ChunkInput, 0, len(pages))
	for _, page := range pages {
		if page.Page < 1 {
			return nil, domain.InvalidArgument("page number must be >= 1, got %d", page.Page)
		}
		chunks, err := Chunk(page.Text, size, overlap)
		if err != nil {
			return nil, err
		}
		for _, c := range chunks {
			out = append(out, domain.ChunkInput{Content: c, Page: page.Page})
		}
	}

	return out, nil
}
