package domain

import (
	"fmt"
	"time"
)

// DocumentStatus tracks ingestion progress of a document
type DocumentStatus string

const (
	DocumentStatusIngesting DocumentStatus = "ingesting"
	DocumentStatusReady     DocumentStatus = "ready"
	DocumentStatusFailed    DocumentStatus = "failed"
)

// Document is the parent record of an ingestion run. It exclusively owns
// its sections.
type Document struct {
	ID           string
	OwnerID      string
	Title        string
	SourceType   string
	Status       DocumentStatus
	SectionCount int
	Error        string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// NewDocument creates a new Document in the ingesting state
func NewDocument(id, ownerID, title, sourceType string, createdAt time.Time) *Document {
	return &Document{
		ID:         id,
		OwnerID:    ownerID,
		Title:      title,
		SourceType: sourceType,
		Status:     DocumentStatusIngesting,
		CreatedAt:  createdAt,
		UpdatedAt:  createdAt,
	}
}

// ValidateDocument validates a Document instance
func ValidateDocument(d *Document) error {
	if d == nil {
		return fmt.Errorf("document cannot be nil")
	}

	if d.ID == "" {
		return fmt.Errorf("document ID is required")
	}

	if d.OwnerID == "" {
		return fmt.Errorf("document OwnerID is required")
	}

	if d.Title == "" {
		return fmt.Errorf("document Title is required")
	}

	if d.SourceType == "" {
		return fmt.Errorf("document SourceType is required")
	}

	if !isValidDocumentStatus(d.Status) {
		return fmt.Errorf("document Status is invalid: %s", d.Status)
	}

	return nil
}

func isValidDocumentStatus(s DocumentStatus) bool {
	switch s {
	case DocumentStatusIngesting, DocumentStatusReady, DocumentStatusFailed:
		return true
	}
	return false
}
