package domain

import (
	"fmt"
	"time"
)

// Section is one embedded chunk of a document.
type Section struct {
	ID         string
	DocumentID string
	OwnerID    string
	Ordinal    int
	PageNumber int
	Content    string
	Embedding  []float32
	CreatedAt  time.Time
}

// ChunkInput is a chunk of text with the page it came from.
type ChunkInput struct {
	Content string
	Page    int
}

// PageText is the extracted text of one page.
type PageText struct {
	Page int
	Text string
}

// ValidateSection checks a section before it is persisted. A positive
// dimensions pins the embedding width; zero only requires a non-empty vector.
func ValidateSection(s *Section, dimensions int) error {
	if s == nil {
		return fmt.Errorf("section cannot be nil")
	}

	if s.ID == "" {
		return fmt.Errorf("section ID is required")
	}

	if s.DocumentID == "" {
		return fmt.Errorf("section DocumentID is required")
	}

	if s.Ordinal < 0 {
		return fmt.Errorf("section Ordinal cannot be negative")
	}

	if s.Content == "" {
		return fmt.Errorf("section content is required")
	}

	if len(s.Embedding) == 0 {
		return fmt.Errorf("section embedding is empty")
	}

	if dimensions > 0 && len(s.Embedding) != dimensions {
		return fmt.Errorf("section embedding has %d dimensions, expected %d", len(s.Embedding), dimensions)
	}

	return nil
}
