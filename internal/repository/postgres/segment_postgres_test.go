package postgres

import (
	"context"
	"database/sql/driver"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// passthroughConverter keeps slice arguments as-is. The pgx stdlib driver
// encodes []string natively for ANY($1); the default sqlmock converter would
// reject it.
type passthroughConverter struct{}

func (passthroughConverter) ConvertValue(v any) (driver.Value, error) {
	return v, nil
}

func TestSegmentPostgres_ListByDocuments(t *testing.T) {
	ctx := context.Background()
	db, mock, err := sqlmock.New(sqlmock.ValueConverterOption(passthroughConverter{}))
	require.NoError(t, err)
	defer db.Close()

	repo := NewSegmentPostgres(db)
	columns := []string{"id", "document_id", "ordinal", "content", "start_char", "end_char", "embedding", "created_at"}

	t.Run("scoped to owner", func(t *testing.T) {
		now := time.Now().UTC()
		mock.ExpectQuery("SELECT (.+) FROM segments").
			WithArgs([]string{"doc-1"}, "owner-1").
			WillReturnRows(sqlmock.NewRows(columns).
				AddRow("seg-1", "doc-1", 0, "first span", 0, 10, "[1,0]", now).
				AddRow("seg-2", "doc-1", 1, "second span", 8, 19, "[0,1]", now))

		items, err := repo.ListByDocuments(ctx, []string{"doc-1"}, "owner-1")
		require.NoError(t, err)
		require.Len(t, items, 2)
		assert.Equal(t, 0, items[0].Ordinal)
		assert.Equal(t, []float32{1, 0}, items[0].Embedding.Slice())
	})

	t.Run("empty document set short-circuits", func(t *testing.T) {
		items, err := repo.ListByDocuments(ctx, nil, "owner-1")
		require.NoError(t, err)
		assert.Nil(t, items)
	})
}
