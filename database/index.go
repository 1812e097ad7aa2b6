package database

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/siherrmann/briefings/helper"
)

// Vector index types for the chunk embeddings.
const (
	IndexTypeHNSW    = "hnsw"
	IndexTypeIVFFlat = "ivfflat"
)

// IndexOptions tunes the vector index. Zero values use the pgvector defaults.
type IndexOptions struct {
	// HNSW
	M              int
	EFConstruction int
	// IVFFlat
	Lists int
}

// ChangeIndexType rebuilds the cosine index on chunk embeddings as HNSW or IVFFlat.
// The old index is dropped and the new one created in the same transaction.
func (h *ChunksDBHandler) ChangeIndexType(ctx context.Context, indexType string, opts IndexOptions) error {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Minute)
	defer cancel()

	var createIndexSQL string

	switch indexType {
	case IndexTypeHNSW:
		m := 16
		efConstruction := 64
		if opts.M > 0 {
			m = opts.M
		}
		if opts.EFConstruction > 0 {
			efConstruction = opts.EFConstruction
		}

		createIndexSQL = fmt.Sprintf(
			`CREATE INDEX idx_chunks_embedding ON chunks USING hnsw (embedding vector_cosine_ops) WITH (m = %d, ef_construction = %d);`,
			m, efConstruction,
		)

	case IndexTypeIVFFlat:
		lists := 100
		if opts.Lists > 0 {
			lists = opts.Lists
		}

		createIndexSQL = fmt.Sprintf(
			`CREATE INDEX idx_chunks_embedding ON chunks USING ivfflat (embedding vector_cosine_ops) WITH (lists = %d);`,
			lists,
		)

	default:
		return helper.NewError("change index type", fmt.Errorf("unsupported index type: %s (use 'hnsw' or 'ivfflat')", indexType))
	}

	tx, err := h.db.Instance.BeginTx(ctx, nil)
	if err != nil {
		return helper.NewError("begin transaction", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `DROP INDEX IF EXISTS idx_chunks_embedding;`)
	if err != nil {
		return helper.NewError("drop index", err)
	}

	_, err = tx.ExecContext(ctx, createIndexSQL)
	if err != nil {
		return helper.NewError("create index", err)
	}

	if err := tx.Commit(); err != nil {
		return helper.NewError("commit index", err)
	}

	h.db.Logger.Info("Changed vector index", slog.String("type", indexType), slog.Any("options", opts))

	return nil
}
