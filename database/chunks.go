package database

import (
	"context"
	dbsql "database/sql"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/pgvector/pgvector-go"
	"github.com/siherrmann/briefings/helper"
	"github.com/siherrmann/briefings/model"
	loadSql "github.com/siherrmann/briefings/sql"
)

// ChunksDBHandlerFunctions defines the interface for Chunks database operations.
type ChunksDBHandlerFunctions interface {
	ReplaceDocumentChunks(ctx context.Context, documentID int64, windows []model.Window) ([]*model.Chunk, error)
	SelectChunksByDocument(ctx context.Context, documentRID uuid.UUID) ([]*model.Chunk, error)
	SelectChunksWithoutEmbedding(ctx context.Context, limit int) ([]*model.Chunk, error)
	CountChunksWithoutEmbedding(ctx context.Context) (int, error)
	UpdateChunkEmbeddings(ctx context.Context, embeddings []model.ChunkEmbedding) (int, error)
	ResetEmbeddings(ctx context.Context, documentRID *uuid.UUID) (int, error)
	SelectChunksBySimilarity(ctx context.Context, query model.SimilarityQuery) (*model.SearchPage, error)
}

// ChunksDBHandler handles chunk-related database operations
type ChunksDBHandler struct {
	db           *helper.Database
	embeddingDim int
}

// NewChunksDBHandler creates a new chunks database handler.
// It initializes the database connection and loads chunk-related SQL functions.
// If force is true, it will reload the SQL functions even if they already exist.
// The documents table must exist before.
func NewChunksDBHandler(db *helper.Database, embeddingDim int, force bool) (*ChunksDBHandler, error) {
	if db == nil {
		return nil, helper.NewError("database connection validation", fmt.Errorf("database connection is nil"))
	}
	if embeddingDim <= 0 {
		return nil, helper.NewError("embedding dimension validation", fmt.Errorf("embedding dimension must be positive, got %d", embeddingDim))
	}
	if embeddingDim > model.MaxIndexedDimensions {
		return nil, helper.NewError("embedding dimension validation", fmt.Errorf("embedding dimension %d exceeds the indexable maximum of %d", embeddingDim, model.MaxIndexedDimensions))
	}

	chunksDbHandler := &ChunksDBHandler{
		db:           db,
		embeddingDim: embeddingDim,
	}

	err := loadSql.LoadChunksSql(chunksDbHandler.db.Instance, force)
	if err != nil {
		return nil, helper.NewError("load chunks sql", err)
	}

	err = chunksDbHandler.CreateTable(embeddingDim)
	if err != nil {
		return nil, helper.NewError("create table", err)
	}

	db.Logger.Info("Initialized ChunksDBHandler", slog.Int("embedding_dimensions", embeddingDim))

	return chunksDbHandler, nil
}

// CreateTable creates the 'chunks' table in the database.
// If the table already exists, it does not create it again.
// It also creates the pending and cosine vector indexes.
func (h *ChunksDBHandler) CreateTable(embeddingDim int) error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	_, err := h.db.Instance.ExecContext(ctx, `SELECT init_chunks($1);`, embeddingDim)
	if err != nil {
		return helper.NewError("init chunks", err)
	}

	h.db.Logger.Info("Checked/created table chunks")

	return nil
}

// ReplaceDocumentChunks deletes every chunk of the document, and with it every
// embedding, and inserts the windows as the new chunks. Both happen in one
// transaction so readers see either the old or the new chunk set.
func (h *ChunksDBHandler) ReplaceDocumentChunks(ctx context.Context, documentID int64, windows []model.Window) ([]*model.Chunk, error) {
	chunks := make([]*model.Chunk, 0, len(windows))

	err := h.db.WithTx(ctx, nil, func(tx *dbsql.Tx) error {
		var deleted int
		err := tx.QueryRowContext(ctx, `SELECT delete_chunks_by_document($1)`, documentID).Scan(&deleted)
		if err != nil {
			return helper.NewError("delete chunks", err)
		}

		for i, w := range windows {
			if w.Index != i {
				return model.NewDataIntegrityError("chunk indices must be contiguous", fmt.Errorf("window %d has index %d", i, w.Index))
			}

			chunk := &model.Chunk{
				DocumentID: documentID,
				ChunkIndex: w.Index,
				Text:       w.Text,
				TokenCount: w.TokenCount(),
			}
			err := tx.QueryRowContext(
				ctx,
				`SELECT * FROM insert_chunk($1, $2, $3, $4)`,
				chunk.DocumentID,
				chunk.ChunkIndex,
				chunk.Text,
				chunk.TokenCount,
			).Scan(&chunk.ID, &chunk.CreatedAt)
			if err != nil {
				return helper.NewError("insert chunk", err)
			}
			chunks = append(chunks, chunk)
		}

		if deleted > 0 {
			h.db.Logger.Debug("Replaced chunks", slog.Int64("document_id", documentID), slog.Int("deleted", deleted), slog.Int("inserted", len(windows)))
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	return chunks, nil
}

func scanChunk(row rowScanner, withEmbedding bool) (*model.Chunk, error) {
	chunk := &model.Chunk{}
	if !withEmbedding {
		err := row.Scan(
			&chunk.ID,
			&chunk.DocumentID,
			&chunk.DocumentRID,
			&chunk.ChunkIndex,
			&chunk.Text,
			&chunk.TokenCount,
			&chunk.CreatedAt,
		)
		return chunk, err
	}

	var embedding *pgvector.Vector
	err := row.Scan(
		&chunk.ID,
		&chunk.DocumentID,
		&chunk.DocumentRID,
		&chunk.ChunkIndex,
		&chunk.Text,
		&chunk.TokenCount,
		&embedding,
		&chunk.EmbeddingModel,
		&chunk.EmbeddingDimensions,
		&chunk.EmbeddingUpdatedAt,
		&chunk.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	if embedding != nil {
		chunk.Embedding = embedding.Slice()
	}
	return chunk, nil
}

// SelectChunksByDocument retrieves all chunks for a document ordered by chunk index
func (h *ChunksDBHandler) SelectChunksByDocument(ctx context.Context, documentRID uuid.UUID) ([]*model.Chunk, error) {
	rows, err := h.db.Instance.QueryContext(
		ctx,
		`SELECT * FROM select_chunks_by_document($1)`,
		documentRID,
	)
	if err != nil {
		return nil, helper.NewError("query", err)
	}
	defer rows.Close()

	var chunks []*model.Chunk
	for rows.Next() {
		chunk, err := scanChunk(rows, true)
		if err != nil {
			return nil, helper.NewError("scan", err)
		}
		chunks = append(chunks, chunk)
	}

	err = rows.Err()
	if err != nil {
		return nil, helper.NewError("rows error", err)
	}

	return chunks, nil
}

// SelectChunksWithoutEmbedding retrieves up to limit pending chunks ordered by id
func (h *ChunksDBHandler) SelectChunksWithoutEmbedding(ctx context.Context, limit int) ([]*model.Chunk, error) {
	rows, err := h.db.Instance.QueryContext(
		ctx,
		`SELECT * FROM select_chunks_without_embedding($1)`,
		limit,
	)
	if err != nil {
		return nil, helper.NewError("query", err)
	}
	defer rows.Close()

	var chunks []*model.Chunk
	for rows.Next() {
		chunk, err := scanChunk(rows, false)
		if err != nil {
			return nil, helper.NewError("scan", err)
		}
		chunks = append(chunks, chunk)
	}

	err = rows.Err()
	if err != nil {
		return nil, helper.NewError("rows error", err)
	}

	return chunks, nil
}

// CountChunksWithoutEmbedding returns the number of pending chunks
func (h *ChunksDBHandler) CountChunksWithoutEmbedding(ctx context.Context) (int, error) {
	var count int
	err := h.db.Instance.QueryRowContext(ctx, `SELECT count_chunks_without_embedding()`).Scan(&count)
	if err != nil {
		return 0, helper.NewError("scan", err)
	}
	return count, nil
}

// UpdateChunkEmbeddings writes one batch of embeddings in a single transaction.
// Chunks that got an embedding in the meantime, or were removed by a re-chunk,
// are left alone. It returns the number of chunks written. A vector whose length
// does not match the table dimension fails the whole batch.
func (h *ChunksDBHandler) UpdateChunkEmbeddings(ctx context.Context, embeddings []model.ChunkEmbedding) (int, error) {
	for _, e := range embeddings {
		if len(e.Vector) != h.embeddingDim || e.Dimensions != h.embeddingDim {
			return 0, model.NewDataIntegrityError(
				"embedding dimension mismatch",
				fmt.Errorf("chunk %d: got %d values (declared %d), want %d", e.ChunkID, len(e.Vector), e.Dimensions, h.embeddingDim),
			)
		}
	}

	updated := 0
	err := h.db.WithTx(ctx, nil, func(tx *dbsql.Tx) error {
		for _, e := range embeddings {
			var ok bool
			err := tx.QueryRowContext(
				ctx,
				`SELECT update_chunk_embedding($1, $2, $3, $4)`,
				e.ChunkID,
				pgvector.NewVector(e.Vector),
				e.Model,
				e.Dimensions,
			).Scan(&ok)
			if err != nil {
				return helper.NewError("update chunk embedding", err)
			}
			if ok {
				updated++
			}
		}
		return nil
	})
	if err != nil {
		return 0, err
	}

	return updated, nil
}

// ResetEmbeddings clears the embeddings of one document, or of all chunks when
// documentRID is nil, so the embedding generator picks them up again.
func (h *ChunksDBHandler) ResetEmbeddings(ctx context.Context, documentRID *uuid.UUID) (int, error) {
	var rid any
	if documentRID != nil {
		rid = *documentRID
	}

	var updated int
	err := h.db.Instance.QueryRowContext(ctx, `SELECT reset_embeddings($1)`, rid).Scan(&updated)
	if err != nil {
		return 0, helper.NewError("reset embeddings", err)
	}

	return updated, nil
}

// SelectChunksBySimilarity returns one page of the candidate pool for the query
// together with the pool size. Rows and count are read in one repeatable read
// transaction so the totals always describe the set the page was drawn from.
func (h *ChunksDBHandler) SelectChunksBySimilarity(ctx context.Context, query model.SimilarityQuery) (*model.SearchPage, error) {
	if len(query.Embedding) != h.embeddingDim {
		return nil, model.NewDataIntegrityError(
			"query embedding dimension mismatch",
			fmt.Errorf("got %d values, want %d", len(query.Embedding), h.embeddingDim),
		)
	}

	page := &model.SearchPage{
		Candidates: []model.SearchCandidate{},
		Page:       query.Page,
		PageSize:   query.PageSize,
	}
	admins := pq.Array(query.Admins)
	offset := query.Offset()

	err := h.db.WithTx(ctx, &dbsql.TxOptions{Isolation: dbsql.LevelRepeatableRead, ReadOnly: true}, func(tx *dbsql.Tx) error {
		err := tx.QueryRowContext(
			ctx,
			`SELECT count_chunks_by_similarity($1, $2)`,
			admins,
			query.PoolSize,
		).Scan(&page.TotalResults)
		if err != nil {
			return helper.NewError("count", err)
		}

		if offset >= page.TotalResults {
			return nil
		}

		rows, err := tx.QueryContext(
			ctx,
			`SELECT * FROM select_chunks_by_similarity_page($1, $2, $3, $4, $5, $6)`,
			pgvector.NewVector(query.Embedding),
			admins,
			string(query.Sort),
			query.PoolSize,
			query.PageSize,
			offset,
		)
		if err != nil {
			return helper.NewError("query", err)
		}
		defer rows.Close()

		for rows.Next() {
			c := model.SearchCandidate{}
			err := rows.Scan(
				&c.ChunkID,
				&c.ChunkIndex,
				&c.Text,
				&c.DocumentID,
				&c.DocumentRID,
				&c.Title,
				&c.Admin,
				&c.URL,
				&c.PublishDate,
				&c.Distance,
			)
			if err != nil {
				return helper.NewError("scan", err)
			}
			c.Rank = offset + len(page.Candidates) + 1
			page.Candidates = append(page.Candidates, c)
		}

		err = rows.Err()
		if err != nil {
			return helper.NewError("rows error", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	page.TotalPages = model.TotalPagesFor(page.TotalResults, page.PageSize)

	return page, nil
}
