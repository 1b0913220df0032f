package repository

import (
	"context"
	"errors"

	"github.com/cloo-solutions/draftdesk/internal/domain"
	"github.com/cloo-solutions/draftdesk/internal/pagination"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const draftColumns = `id, owner_id, question, answer_body, referenced_section_ids::text[], created_at`

type DraftRepository struct {
	pool *pgxpool.Pool
}

func NewDraftRepository(pool *pgxpool.Pool) *DraftRepository {
	return &DraftRepository{pool: pool}
}

func (r *DraftRepository) Create(ctx context.Context, d *domain.Draft) error {
	refs := d.ReferencedSectionIDs
	if refs == nil {
		refs = []string{}
	}
	_, err := r.pool.Exec(ctx,
		`INSERT INTO drafts (id, owner_id, question, answer_body, referenced_section_ids, created_at)
		 VALUES ($1, $2, $3, $4, $5::text[]::uuid[], $6)`,
		d.ID, d.OwnerID, d.Question, d.AnswerBody, refs, d.CreatedAt,
	)
	return err
}

func (r *DraftRepository) GetByID(ctx context.Context, id string) (*domain.Draft, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+draftColumns+` FROM drafts WHERE id = $1`, id)
	d, err := scanDraft(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrDraftNotFound
		}
		return nil, err
	}
	return d, nil
}

func (r *DraftRepository) ListByOwnerWithCursor(ctx context.Context, ownerID string, cursor *pagination.Cursor, limit int) ([]*domain.Draft, error) {
	if limit <= 0 {
		limit = pagination.DefaultLimit
	}

	var rows pgx.Rows
	var err error

	if cursor != nil {
		rows, err = r.pool.Query(ctx,
			`SELECT `+draftColumns+`
			 FROM drafts
			 WHERE owner_id = $1 AND (created_at, id) < ($2, $3)
			 ORDER BY created_at DESC, id DESC
			 LIMIT $4`,
			ownerID, cursor.Timestamp, cursor.LastID, limit,
		)
	} else {
		rows, err = r.pool.Query(ctx,
			`SELECT `+draftColumns+`
			 FROM drafts
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

	drafts := make([]*domain.Draft, 0)
	for rows.Next() {
		d, err := scanDraft(rows)
		if err != nil {
			return nil, err
		}
		drafts = append(drafts, d)
	}
	return drafts, rows.Err()
}

// Delete removes the owner's draft. A draft of another owner is not found.
func (r *DraftRepository) Delete(ctx context.Context, ownerID, id string) error {
	cmdTag, err := r.pool.Exec(ctx, `DELETE FROM drafts WHERE id = $1 AND owner_id = $2`, id, ownerID)
	if err != nil {
		return err
	}
	if cmdTag.RowsAffected() == 0 {
		return domain.ErrDraftNotFound
	}
	return nil
}

func scanDraft(row pgx.Row) (*domain.Draft, error) {
	var d domain.Draft
	if err := row.Scan(&d.ID, &d.OwnerID, &d.Question, &d.AnswerBody, &d.ReferencedSectionIDs, &d.CreatedAt); err != nil {
		return nil, err
	}
	return &d, nil
}
