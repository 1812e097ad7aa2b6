package pipeline

import (
	"context"

	"github.com/siherrmann/briefings/model"
)

// Tokenizer converts text into token ids and back. Decode(Encode(s)) must
// return s for any text the tokenizer accepts.
type Tokenizer interface {
	Encode(text string) []int
	Decode(tokens []int) string
}

// Embedder turns texts into vectors with one call to the embedding service.
// The result has one vector per text in input order.
type Embedder interface {
	EmbedTexts(ctx context.Context, texts []string) ([][]float32, error)
	Model() string
	Dimensions() int
}

// ChunkStore is the storage the embedding generator reads pending chunks
// from and writes batches to.
type ChunkStore interface {
	SelectChunksWithoutEmbedding(ctx context.Context, limit int) ([]*model.Chunk, error)
	UpdateChunkEmbeddings(ctx context.Context, embeddings []model.ChunkEmbedding) (int, error)
}
