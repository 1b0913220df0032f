package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/cloo-solutions/draftdesk/internal/domain"
	"github.com/cloo-solutions/draftdesk/internal/service"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pgvector/pgvector-go"
)

// SectionRepository stores embedded sections and serves both ranking
// strategies: the hybrid_search SQL function and the single-signal
// searches behind service.FusionRanker.
type SectionRepository struct {
	db dbtx
}

func NewSectionRepository(pool *pgxpool.Pool) *SectionRepository {
	return &SectionRepository{db: pool}
}

func NewSectionRepositoryWithTx(tx pgx.Tx) *SectionRepository {
	return &SectionRepository{db: tx}
}

// InsertBatch writes sections in one round trip and bumps the parent
// documents' updated_at so the stale sweeper sees progress.
func (r *SectionRepository) InsertBatch(ctx context.Context, sections []*domain.Section) error {
	if len(sections) == 0 {
		return nil
	}

	batch := &pgx.Batch{}
	touched := make(map[string]struct{})
	for _, s := range sections {
		createdAt := s.CreatedAt
		if createdAt.IsZero() {
			createdAt = time.Now().UTC()
		}
		batch.Queue(
			`INSERT INTO sections (id, document_id, owner_id, ordinal, page_number, content, embedding, created_at)
			 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
			s.ID, s.DocumentID, s.OwnerID, s.Ordinal, s.PageNumber, s.Content, pgvector.NewVector(s.Embedding), createdAt,
		)
		touched[s.DocumentID] = struct{}{}
	}
	for documentID := range touched {
		batch.Queue(`UPDATE documents SET updated_at = now() WHERE id = $1`, documentID)
	}

	results := r.db.SendBatch(ctx, batch)
	for i := 0; i < batch.Len(); i++ {
		if _, err := results.Exec(); err != nil {
			_ = results.Close()
			return fmt.Errorf("batch statement %d: %w", i, err)
		}
	}
	return results.Close()
}

// Rank implements service.Ranker through the hybrid_search SQL function.
func (r *SectionRepository) Rank(ctx context.Context, q service.RankQuery) ([]domain.RetrievedReference, error) {
	rows, err := r.db.Query(ctx,
		`SELECT h.id, h.document_id, d.title, h.page_number, h.content, h.score
		 FROM hybrid_search($1, $2, $3, $4) h
		 JOIN documents d ON d.id = h.document_id
		 ORDER BY h.score DESC, h.id`,
		q.Text, pgvector.NewVector(q.Vector), q.Limit, q.OwnerID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanReferences(rows)
}

// SearchSemantic returns the owner's sections by ascending cosine distance.
func (r *SectionRepository) SearchSemantic(ctx context.Context, ownerID string, vector []float32, limit int) ([]domain.RetrievedReference, error) {
	rows, err := r.db.Query(ctx,
		`SELECT s.id, s.document_id, d.title, s.page_number, s.content,
		        1 - (s.embedding <=> $2) AS score
		 FROM sections s
		 JOIN documents d ON d.id = s.document_id
		 WHERE s.owner_id = $1
		 ORDER BY s.embedding <=> $2, s.id
		 LIMIT $3`,
		ownerID, pgvector.NewVector(vector), limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanReferences(rows)
}

// SearchLexical returns the owner's sections from the lexical_search SQL
// function: ts_rank_cd plus trigram word similarity, descending.
func (r *SectionRepository) SearchLexical(ctx context.Context, ownerID, query string, limit int) ([]domain.RetrievedReference, error) {
	rows, err := r.db.Query(ctx,
		`SELECT s.id, s.document_id, d.title, s.page_number, s.content, l.score
		 FROM lexical_search($1, $2, $3) l
		 JOIN sections s ON s.id = l.id
		 JOIN documents d ON d.id = s.document_id
		 ORDER BY l.score DESC, s.id`,
		query, ownerID, limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanReferences(rows)
}

func scanReferences(rows pgx.Rows) ([]domain.RetrievedReference, error) {
	refs := make([]domain.RetrievedReference, 0)
	for rows.Next() {
		var ref domain.RetrievedReference
		if err := rows.Scan(&ref.SectionID, &ref.DocumentID, &ref.DocumentTitle, &ref.PageNumber, &ref.Content, &ref.Score); err != nil {
			return nil, err
		}
		refs = append(refs, ref)
	}
	return refs, rows.Err()
}
