package repository

import (
	"context"
	"errors"
	"time"

	"github.com/cloo-solutions/draftdesk/internal/domain"
	"github.com/cloo-solutions/draftdesk/internal/pagination"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const documentColumns = `id, owner_id, title, source_type, status, section_count, error, created_at, updated_at`

type DocumentRepository struct {
	db dbtx
}

func NewDocumentRepository(pool *pgxpool.Pool) *DocumentRepository {
	return &DocumentRepository{db: pool}
}

func NewDocumentRepositoryWithTx(tx pgx.Tx) *DocumentRepository {
	return &DocumentRepository{db: tx}
}

func (r *DocumentRepository) Create(ctx context.Context, d *domain.Document) error {
	_, err := r.db.Exec(ctx,
		`INSERT INTO documents (id, owner_id, title, source_type, status, section_count, error, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		d.ID, d.OwnerID, d.Title, d.SourceType, d.Status, d.SectionCount, nullableString(d.Error), d.CreatedAt, d.UpdatedAt,
	)
	return err
}

func (r *DocumentRepository) GetByID(ctx context.Context, id string) (*domain.Document, error) {
	row := r.db.QueryRow(ctx, `SELECT `+documentColumns+` FROM documents WHERE id = $1`, id)
	d, err := scanDocument(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrDocumentNotFound
		}
		return nil, err
	}
	return d, nil
}

// ListByOwnerWithCursor returns up to limit documents, newest first,
// strictly after cursor when one is given.
func (r *DocumentRepository) ListByOwnerWithCursor(ctx context.Context, ownerID string, cursor *pagination.Cursor, limit int) ([]*domain.Document, error) {
	if limit <= 0 {
		limit = pagination.DefaultLimit
	}

	var rows pgx.Rows
	var err error

	if cursor != nil {
		rows, err = r.db.Query(ctx,
			`SELECT `+documentColumns+`
			 FROM documents
			 WHERE owner_id = $1 AND (created_at, id) < ($2, $3)
			 ORDER BY created_at DESC, id DESC
			 LIMIT $4`,
			ownerID, cursor.Timestamp, cursor.LastID, limit,
		)
	} else {
		rows, err = r.db.Query(ctx,
			`SELECT `+documentColumns+`
			 FROM documents
			 WHERE owner_id = $1
			 ORDER BY created_at DESC, id DESC
			 LIMIT $2`,
			ownerID, limit,
		)
	}
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	docs := make([]*domain.Document, 0)
	for rows.Next() {
		d, err := scanDocument(rows)
		if err != nil {
			return nil, err
		}
		docs = append(docs, d)
	}
	return docs, rows.Err()
}

func (r *DocumentRepository) MarkReady(ctx context.Context, id string, sectionCount int) error {
	return r.setStatus(ctx,
		`UPDATE documents SET status = 'ready', section_count = $2, error = NULL, updated_at = $3 WHERE id = $1`,
		id, sectionCount, time.Now().UTC(),
	)
}

// MarkFailed records the failure and the number of sections that did commit.
func (r *DocumentRepository) MarkFailed(ctx context.Context, id string, reason string) error {
	return r.setStatus(ctx,
		`UPDATE documents
		 SET status = 'failed',
		     error = $2,
		     section_count = (SELECT count(*) FROM sections WHERE document_id = $1),
		     updated_at = $3
		 WHERE id = $1`,
		id, reason, time.Now().UTC(),
	)
}

func (r *DocumentRepository) setStatus(ctx context.Context, query string, args ...any) error {
	cmdTag, err := r.db.Exec(ctx, query, args...)
	if err != nil {
		return err
	}
	if cmdTag.RowsAffected() == 0 {
		return domain.ErrDocumentNotFound
	}
	return nil
}

// Delete removes the document; sections go with it via ON DELETE CASCADE.
func (r *DocumentRepository) Delete(ctx context.Context, id string) error {
	cmdTag, err := r.db.Exec(ctx, `DELETE FROM documents WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if cmdTag.RowsAffected() == 0 {
		return domain.ErrDocumentNotFound
	}
	return nil
}

// FailStale fails every document still ingesting whose last update is
// older than olderThan and returns how many were changed.
func (r *DocumentRepository) FailStale(ctx context.Context, olderThan time.Time, reason string) (int64, error) {
	cmdTag, err := r.db.Exec(ctx,
		`UPDATE documents
		 SET status = 'failed',
		     error = $2,
		     section_count = (SELECT count(*) FROM sections s WHERE s.document_id = documents.id),
		     updated_at = now()
		 WHERE status = 'ingesting' AND updated_at < $1`,
		olderThan, reason,
	)
	if err != nil {
		return 0, err
	}
	return cmdTag.RowsAffected(), nil
}

func scanDocument(row pgx.Row) (*domain.Document, error) {
	var d domain.Document
	var status string
	var errMsg *string
	if err := row.Scan(&d.ID, &d.OwnerID, &d.Title, &d.SourceType, &status, &d.SectionCount, &errMsg, &d.CreatedAt, &d.UpdatedAt); err != nil {
		return nil, err
	}
	d.Status = domain.DocumentStatus(status)
	if errMsg != nil {
		d.Error = *errMsg
	}
	return &d, nil
}
