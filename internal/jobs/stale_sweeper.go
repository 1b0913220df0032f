package jobs

import (
	"context"
	"fmt"
	"log"
	"time"
)

// StaleIngestionReason is recorded on documents the sweeper fails.
const StaleIngestionReason = "ingestion did not complete before the stale threshold"

// StaleDocumentRepository marks documents stuck in the ingesting state
type StaleDocumentRepository interface {
	FailStale(ctx context.Context, olderThan time.Time, reason string) (int64, error)
}

// StaleIngestionSweeper fails documents whose ingestion was interrupted,
// for example by a process crash between batches.
type StaleIngestionSweeper struct {
	repo      StaleDocumentRepository
	threshold time.Duration
	now       func() time.Time
}

// NewStaleIngestionSweeper creates a sweeper that fails documents still
// ingesting after threshold.
func NewStaleIngestionSweeper(repo StaleDocumentRepository, threshold time.Duration) *StaleIngestionSweeper {
	return &StaleIngestionSweeper{
		repo:      repo,
		threshold: threshold,
		now:       time.Now,
	}
}

// ProcessJobs implements the JobProcessor interface
func (s *StaleIngestionSweeper) ProcessJobs(ctx context.Context) error {
	cutoff := s.now().Add(-s.threshold)

	n, err := s.repo.FailStale(ctx, cutoff, StaleIngestionReason)
	if err != nil {
		return fmt.Errorf("failed to sweep stale ingestions: %w", err)
	}

	if n > 0 {
		log.Printf("Marked %d stale ingestion(s) as failed (updated before %s)", n, cutoff.Format(time.RFC3339))
	}
	return nil
}
