package briefings

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sync"

	"github.com/google/uuid"
	"github.com/panjf2000/ants/v2"
	"github.com/siherrmann/briefings/core/judge"
	"github.com/siherrmann/briefings/core/pipeline"
	"github.com/siherrmann/briefings/core/retrieval"
	"github.com/siherrmann/briefings/database"
	"github.com/siherrmann/briefings/helper"
	"github.com/siherrmann/briefings/model"
	loadSql "github.com/siherrmann/briefings/sql"
	"github.com/tmc/langchaingo/llms"
)

// Briefings wires the storage handlers, the chunking and embedding pipeline,
// the retrieval engine and the optional relevance judge.
type Briefings struct {
	DB        *helper.Database
	Documents *database.DocumentsDBHandler
	Chunks    *database.ChunksDBHandler
	Chunker   *pipeline.TokenChunker
	Engine    *retrieval.Engine
	// Embedder is nil when no embedding service is configured.
	Embedder pipeline.Embedder
	// Judge is nil when no chat model is configured.
	Judge *judge.Judge

	queryEmbedder *pipeline.QueryEmbedder
	config        *model.Config
	log           *slog.Logger
}

type options struct {
	logger     *slog.Logger
	tokenizer  pipeline.Tokenizer
	embedder   pipeline.Embedder
	judgeModel llms.Model
}

// Option overrides a component that New would otherwise build from the config.
type Option func(*options)

func WithLogger(logger *slog.Logger) Option {
	return func(o *options) { o.logger = logger }
}

func WithTokenizer(tokenizer pipeline.Tokenizer) Option {
	return func(o *options) { o.tokenizer = tokenizer }
}

// WithEmbedder replaces the configured embedding provider. The embedder is
// still rate limited and timed with the config values.
func WithEmbedder(embedder pipeline.Embedder) Option {
	return func(o *options) { o.embedder = embedder }
}

func WithJudgeModel(llm llms.Model) Option {
	return func(o *options) { o.judgeModel = llm }
}

// New connects to the database, loads the stored functions, creates the
// tables and builds every component. A missing embedding service or judge
// model is not an error, the related operations report capability unavailable.
func New(cfg *model.Config, dbConfig *helper.DatabaseConfiguration, opts ...Option) (*Briefings, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	o := &options{}
	for _, opt := range opts {
		opt(o)
	}
	logger := o.logger
	if logger == nil {
		logger = helper.NewLogger(os.Stdout, cfg.LogLevel)
	}

	// Embedder first, the chunks table is created with its dimension
	var embedder pipeline.Embedder
	if o.embedder != nil {
		embedder = pipeline.NewLimitedEmbedder(o.embedder, cfg.RequestsPerSecond, cfg.EmbeddingTimeout, logger)
	} else {
		limited, err := pipeline.NewEmbedderFromConfig(cfg, logger)
		switch {
		case errors.Is(err, model.ErrNoEmbedder):
			logger.Warn("No embedding service configured, embedding and search are disabled")
		case err != nil:
			return nil, helper.NewError("create embedder", err)
		default:
			embedder = limited
		}
	}
	dimensions := cfg.EmbeddingDimensions
	if embedder != nil {
		dimensions = embedder.Dimensions()
	}

	tokenizer := o.tokenizer
	if tokenizer == nil {
		tiktoken, err := pipeline.NewTiktokenTokenizer(cfg.TokenizerEncoding)
		if err != nil {
			return nil, helper.NewError("create tokenizer", err)
		}
		tokenizer = tiktoken
	}
	chunker, err := pipeline.NewTokenChunker(tokenizer, cfg.ChunkMaxTokens, cfg.ChunkOverlapTokens)
	if err != nil {
		return nil, helper.NewError("create chunker", err)
	}

	judgeModel := o.judgeModel
	if judgeModel == nil {
		judgeModel, err = judge.NewOpenAIModel(cfg)
		if err != nil && !errors.Is(err, model.ErrJudgeDisabled) {
			return nil, helper.NewError("create judge model", err)
		}
	}
	var relevanceJudge *judge.Judge
	if judgeModel != nil {
		relevanceJudge, err = judge.NewJudge(judgeModel, cfg, logger)
		if err != nil {
			return nil, helper.NewError("create judge", err)
		}
	} else {
		logger.Info("No relevance judge configured, advanced search is disabled")
	}

	db, err := helper.NewDatabase("briefings", dbConfig, logger)
	if err != nil {
		return nil, err
	}
	err = loadSql.Init(db.Instance)
	if err != nil {
		db.Close()
		return nil, helper.NewError("initialize database extensions", err)
	}

	// Documents first, chunks reference them
	documents, err := database.NewDocumentsDBHandler(db, false)
	if err != nil {
		db.Close()
		return nil, helper.NewError("create documents handler", err)
	}
	chunks, err := database.NewChunksDBHandler(db, dimensions, false)
	if err != nil {
		db.Close()
		return nil, helper.NewError("create chunks handler", err)
	}

	b := &Briefings{
		DB:        db,
		Documents: documents,
		Chunks:    chunks,
		Chunker:   chunker,
		Engine:    retrieval.NewEngine(chunks, cfg.StorageTimeout, logger),
		Embedder:  embedder,
		Judge:     relevanceJudge,
		config:    cfg,
		log:       logger,
	}
	if embedder != nil {
		b.queryEmbedder = pipeline.NewQueryEmbedder(embedder, cfg.MaxRetries)
	}
	return b, nil
}

// Close releases the embedder and the database connection.
func (b *Briefings) Close() error {
	var errs []error
	if closer, ok := b.Embedder.(interface{ Close() error }); ok {
		errs = append(errs, closer.Close())
	}
	if b.DB != nil {
		errs = append(errs, b.DB.Close())
	}
	return errors.Join(errs...)
}

// Config returns the configuration the instance was built with.
func (b *Briefings) Config() *model.Config {
	return b.config
}

// JudgeAvailable reports whether advanced search can run.
func (b *Briefings) JudgeAvailable() bool {
	return b.Judge != nil
}

// ChunkDocument replaces the chunks of the document with fresh windows of its
// clean text. Old chunks and their embeddings go away in the same transaction.
// A document without text gets no chunks and is reported with 0.
func (b *Briefings) ChunkDocument(ctx context.Context, doc *model.Document) (int, error) {
	windows := b.Chunker.Chunk(doc.CleanText)
	if len(windows) == 0 {
		b.log.Warn("Document has no text to chunk", slog.String("document_id", doc.RID.String()))
		return 0, nil
	}

	storeCtx, cancel := context.WithTimeout(ctx, b.config.StorageTimeout)
	defer cancel()

	chunks, err := b.Chunks.ReplaceDocumentChunks(storeCtx, doc.ID, windows)
	if err != nil {
		return 0, helper.NewError(fmt.Sprintf("chunk document %s", doc.RID), err)
	}

	b.log.Info("Chunked document", slog.String("document_id", doc.RID.String()), slog.Int("chunks", len(chunks)))
	return len(chunks), nil
}

// Rechunk chunks a stored document again, which also clears its embeddings.
func (b *Briefings) Rechunk(ctx context.Context, rid uuid.UUID) (int, error) {
	storeCtx, cancel := context.WithTimeout(ctx, b.config.StorageTimeout)
	doc, err := b.Documents.SelectDocument(storeCtx, rid)
	cancel()
	if err != nil {
		return 0, helper.NewError("select document", err)
	}
	return b.ChunkDocument(ctx, doc)
}

// ChunkStats summarises a ChunkPending run.
type ChunkStats struct {
	Documents int
	Chunks    int
	Skipped   int
	Failed    int
}

// ChunkPending chunks up to limit scraped documents that have no chunks yet.
// Every document is its own run on a pool of workers, a failed document does
// not stop the others. onDone, if set, is called once per finished document.
func (b *Briefings) ChunkPending(ctx context.Context, limit int, workers int, onDone func()) (ChunkStats, error) {
	stats := ChunkStats{}
	if limit < 1 {
		return stats, model.NewValidationError("limit must be at least 1")
	}
	if workers < 1 {
		workers = 1
	}

	storeCtx, cancel := context.WithTimeout(ctx, b.config.StorageTimeout)
	docs, err := b.Documents.SelectDocumentsWithoutChunks(storeCtx, limit)
	cancel()
	if err != nil {
		return stats, helper.NewError("select documents without chunks", err)
	}
	if len(docs) == 0 {
		return stats, nil
	}

	pool, err := ants.NewPool(workers)
	if err != nil {
		return stats, helper.NewError("create worker pool", err)
	}
	defer pool.Release()

	var mu sync.Mutex
	var wg sync.WaitGroup
	for _, doc := range docs {
		if ctx.Err() != nil {
			break
		}

		wg.Add(1)
		err := pool.Submit(func() {
			defer wg.Done()

			n, err := b.ChunkDocument(ctx, doc)

			mu.Lock()
			switch {
			case err != nil:
				b.log.Error("Chunking failed", slog.String("document_id", doc.RID.String()), slog.Any("error", err))
				stats.Failed++
			case n == 0:
				stats.Skipped++
			default:
				stats.Documents++
				stats.Chunks += n
			}
			mu.Unlock()

			if onDone != nil {
				onDone()
			}
		})
		if err != nil {
			wg.Done()
			wg.Wait()
			return stats, helper.NewError("submit chunk task", err)
		}
	}
	wg.Wait()

	if err := ctx.Err(); err != nil {
		return stats, err
	}
	return stats, nil
}

// EmbedPending runs the embedding generator over up to limit pending chunks.
func (b *Briefings) EmbedPending(ctx context.Context, limit int, onBatch func(n int)) (pipeline.EmbedStats, error) {
	if b.Embedder == nil {
		return pipeline.EmbedStats{}, model.NewCapabilityUnavailableError("Embedding service is not configured.", model.ErrNoEmbedder)
	}

	generator, err := pipeline.NewEmbeddingGenerator(b.Chunks, b.Embedder, b.config, b.log)
	if err != nil {
		return pipeline.EmbedStats{}, err
	}
	generator.OnBatch = onBatch
	return generator.Run(ctx, limit)
}

// CountPendingEmbeddings returns the number of chunks without an embedding.
func (b *Briefings) CountPendingEmbeddings(ctx context.Context) (int, error) {
	storeCtx, cancel := context.WithTimeout(ctx, b.config.StorageTimeout)
	defer cancel()
	return b.Chunks.CountChunksWithoutEmbedding(storeCtx)
}

// ResetEmbeddings clears the embeddings of one document, or of all chunks
// when documentRID is nil, so the generator picks them up again.
func (b *Briefings) ResetEmbeddings(ctx context.Context, documentRID *uuid.UUID) (int, error) {
	storeCtx, cancel := context.WithTimeout(ctx, b.config.StorageTimeout)
	defer cancel()

	n, err := b.Chunks.ResetEmbeddings(storeCtx, documentRID)
	if err != nil {
		return 0, helper.NewError("reset embeddings", err)
	}
	b.log.Info("Reset embeddings", slog.Int("chunks", n))
	return n, nil
}

// Admins returns the administration tags present in the corpus.
func (b *Briefings) Admins(ctx context.Context) ([]string, error) {
	storeCtx, cancel := context.WithTimeout(ctx, b.config.StorageTimeout)
	defer cancel()
	return b.Documents.SelectAdmins(storeCtx)
}

// ChangeIndexType rebuilds the vector index as HNSW or IVFFlat.
func (b *Briefings) ChangeIndexType(ctx context.Context, indexType string, opts database.IndexOptions) error {
	return b.Chunks.ChangeIndexType(ctx, indexType, opts)
}
