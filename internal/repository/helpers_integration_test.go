//go:build integration

package repository

import (
	"context"
	"testing"
	"time"

	"github.com/cloo-solutions/draftdesk/internal/domain"
	"github.com/cloo-solutions/draftdesk/internal/testutil"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/require"
)

const testDims = 1536

func setupPool(ctx context.Context, t *testing.T) *pgxpool.Pool {
	t.Helper()
	pc := testutil.NewPostgresContainer(ctx, t)
	t.Cleanup(func() { _ = pc.Terminate(context.Background()) })

	pool := testutil.NewTestPool(ctx, t, pc, "../../migrations")
	t.Cleanup(pool.Close)
	return pool
}

func createOwner(ctx context.Context, t *testing.T, pool *pgxpool.Pool, name string) *domain.Owner {
	t.Helper()
	owner := domain.NewOwner(uuid.NewString(), name, time.Now().UTC().Truncate(time.Microsecond))
	require.NoError(t, NewOwnerRepository(pool).Create(ctx, owner))
	return owner
}

func createDocument(ctx context.Context, t *testing.T, pool *pgxpool.Pool, ownerID, title string) *domain.Document {
	t.Helper()
	doc := domain.NewDocument(uuid.NewString(), ownerID, title, "file", time.Now().UTC().Truncate(time.Microsecond))
	require.NoError(t, NewDocumentRepository(pool).Create(ctx, doc))
	return doc
}

// unitVector points along axis i so cosine distances are easy to reason about.
func unitVector(i int) []float32 {
	v := make([]float32, testDims)
	v[i%testDims] = 1
	return v
}

func newSection(doc *domain.Document, ordinal int, content string, embedding []float32) *domain.Section {
	return &domain.Section{
		ID:         uuid.NewString(),
		DocumentID: doc.ID,
		OwnerID:    doc.OwnerID,
		Ordinal:    ordinal,
		PageNumber: 1,
		Content:    content,
		Embedding:  embedding,
		CreatedAt:  time.Now().UTC(),
	}
}
