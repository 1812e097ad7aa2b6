package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/siherrmann/briefings/helper"
	"github.com/siherrmann/briefings/model"
)

// EmbedStats summarises one generator run.
type EmbedStats struct {
	Selected int
	Batches  int
	Embedded int
	// Skipped chunks were embedded or removed by someone else between select and write.
	Skipped int
}

// EmbeddingGenerator embeds pending chunks batch by batch. A batch is written
// in one transaction or not at all, so a run can stop at any batch boundary
// and the next run continues with the chunks that are still pending.
type EmbeddingGenerator struct {
	store          ChunkStore
	embedder       Embedder
	batchSize      int
	maxRetries     int
	storageTimeout time.Duration
	logger         *slog.Logger

	// OnBatch is called after every written batch with the number of chunks
	// the batch covered.
	OnBatch func(n int)
}

func NewEmbeddingGenerator(store ChunkStore, embedder Embedder, cfg *model.Config, logger *slog.Logger) (*EmbeddingGenerator, error) {
	if store == nil {
		return nil, helper.NewError("embedding generator", fmt.Errorf("chunk store is nil"))
	}
	if embedder == nil {
		return nil, model.NewCapabilityUnavailableError("Embedding service is not configured.", model.ErrNoEmbedder)
	}
	if cfg.EmbeddingBatchSize <= 0 {
		return nil, fmt.Errorf("%w: embedding batch size must be positive", model.ErrInvalidConfig)
	}
	if logger == nil {
		logger = slog.Default()
	}

	return &EmbeddingGenerator{
		store:          store,
		embedder:       embedder,
		batchSize:      cfg.EmbeddingBatchSize,
		maxRetries:     cfg.MaxRetries,
		storageTimeout: cfg.StorageTimeout,
		logger:         logger.With(slog.String("component", "embedding-generator")),
	}, nil
}

// Run embeds up to limit pending chunks in id order. It stops at the first
// batch that fails. Transient failures are returned after the retries are used
// up and keep their transient kind so the caller can run again later. Permanent
// and data integrity failures stop the run for good. Cancellation is checked
// before every batch, a batch write that already started is finished.
func (g *EmbeddingGenerator) Run(ctx context.Context, limit int) (EmbedStats, error) {
	stats := EmbedStats{}
	if limit < 1 {
		return stats, model.NewValidationError("limit must be at least 1")
	}

	selectCtx, cancel := context.WithTimeout(ctx, g.storageTimeout)
	chunks, err := g.store.SelectChunksWithoutEmbedding(selectCtx, limit)
	cancel()
	if err != nil {
		return stats, helper.NewError("select pending chunks", err)
	}
	stats.Selected = len(chunks)

	if len(chunks) == 0 {
		g.logger.Info("No chunks without embedding")
		return stats, nil
	}

	for start := 0; start < len(chunks); start += g.batchSize {
		if err := ctx.Err(); err != nil {
			g.logger.Warn("Embedding run cancelled", slog.Int("embedded", stats.Embedded), slog.Int("remaining", len(chunks)-start))
			return stats, err
		}

		end := min(start+g.batchSize, len(chunks))
		written, err := g.embedBatch(ctx, chunks[start:end])
		if err != nil {
			g.logger.Error(
				"Embedding batch failed",
				slog.Int("batch", stats.Batches+1),
				slog.Int64("first_chunk_id", chunks[start].ID),
				slog.String("kind", string(model.KindOf(err))),
				slog.Any("error", err),
			)
			return stats, err
		}

		stats.Batches++
		stats.Embedded += written
		stats.Skipped += (end - start) - written
		if g.OnBatch != nil {
			g.OnBatch(end - start)
		}
	}

	g.logger.Info("Embedding run finished", slog.Int("selected", stats.Selected), slog.Int("embedded", stats.Embedded), slog.Int("skipped", stats.Skipped), slog.Int("batches", stats.Batches))
	return stats, nil
}

func (g *EmbeddingGenerator) embedBatch(ctx context.Context, batch []*model.Chunk) (int, error) {
	texts := make([]string, len(batch))
	for i, c := range batch {
		texts[i] = c.Text
	}

	var vectors [][]float32
	err := helper.Retry(ctx, g.maxRetries, model.IsTransient, func() error {
		v, err := g.embedder.EmbedTexts(ctx, texts)
		if err != nil {
			return err
		}
		vectors = v
		return nil
	})
	if err != nil {
		return 0, err
	}

	if len(vectors) != len(batch) {
		return 0, model.NewDataIntegrityError(
			"embedding count mismatch",
			fmt.Errorf("got %d vectors for %d chunks", len(vectors), len(batch)),
		)
	}

	dimensions := g.embedder.Dimensions()
	embeddings := make([]model.ChunkEmbedding, len(batch))
	for i, c := range batch {
		if len(vectors[i]) != dimensions {
			return 0, model.NewDataIntegrityError(
				"embedding dimension mismatch",
				fmt.Errorf("chunk %d: got %d values, want %d", c.ID, len(vectors[i]), dimensions),
			)
		}
		embeddings[i] = model.ChunkEmbedding{
			ChunkID:    c.ID,
			Vector:     vectors[i],
			Model:      g.embedder.Model(),
			Dimensions: dimensions,
		}
	}

	writeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), g.storageTimeout)
	defer cancel()

	written, err := g.store.UpdateChunkEmbeddings(writeCtx, embeddings)
	if err != nil {
		return 0, helper.NewError("write embedding batch", err)
	}
	return written, nil
}
