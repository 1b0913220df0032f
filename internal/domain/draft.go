package domain

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Draft is a saved answer with the section ids it references.
type Draft struct {
	ID                   string
	OwnerID              string
	Question             string
	AnswerBody           string
	ReferencedSectionIDs []string
	CreatedAt            time.Time
}

// ValidateDraft validates a Draft instance
func ValidateDraft(d *Draft) error {
	if d == nil {
		return fmt.Errorf("draft cannot be nil")
	}

	if d.ID == "" {
		return fmt.Errorf("draft ID is required")
	}

	if d.OwnerID == "" {
		return fmt.Errorf("draft OwnerID is required")
	}

	if d.Question == "" {
		return fmt.Errorf("draft Question is required")
	}

	for _, id := range d.ReferencedSectionIDs {
		if _, err := uuid.Parse(id); err != nil {
			return fmt.Errorf("draft referenced section id %q is not a uuid", id)
		}
	}

	return nil
}
