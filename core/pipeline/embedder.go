package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/knights-analytics/hugot"
	"github.com/knights-analytics/hugot/pipelines"
	"github.com/siherrmann/briefings/helper"
	"github.com/siherrmann/briefings/model"
	"github.com/tmc/langchaingo/embeddings"
	"github.com/tmc/langchaingo/llms/openai"
	"golang.org/x/time/rate"
)

const (
	// DefaultHugotModel is used when the hugot provider is configured with an OpenAI model name.
	DefaultHugotModel      = "sentence-transformers/all-MiniLM-L6-v2"
	defaultHugotOnnxFile   = "onnx/model.onnx"
	defaultHugotDimensions = 384
)

// NewEmbedderFromConfig builds the configured embedding provider wrapped in a
// rate limited, timed and classified LimitedEmbedder. It returns
// model.ErrNoEmbedder when the OpenAI provider has neither a key nor a base url.
func NewEmbedderFromConfig(cfg *model.Config, logger *slog.Logger) (*LimitedEmbedder, error) {
	var inner Embedder
	switch cfg.EmbeddingProvider {
	case model.EmbeddingProviderHugot:
		modelName := cfg.EmbeddingModel
		dimensions := cfg.EmbeddingDimensions
		if modelName == "" || modelName == model.DefaultConfig().EmbeddingModel {
			modelName = DefaultHugotModel
			dimensions = defaultHugotDimensions
		}
		hugotEmbedder, err := NewHugotEmbedder(modelName, dimensions)
		if err != nil {
			return nil, err
		}
		inner = hugotEmbedder
	default:
		if cfg.OpenAIAPIKey == "" && cfg.EmbeddingBaseURL == "" {
			return nil, model.ErrNoEmbedder
		}
		openAIEmbedder, err := NewOpenAIEmbedder(cfg)
		if err != nil {
			return nil, err
		}
		inner = openAIEmbedder
	}

	return NewLimitedEmbedder(inner, cfg.RequestsPerSecond, cfg.EmbeddingTimeout, logger), nil
}

// OpenAIEmbedder calls an OpenAI compatible embeddings endpoint through langchaingo.
type OpenAIEmbedder struct {
	embedder   embeddings.Embedder
	model      string
	dimensions int
}

// NewOpenAIEmbedder creates the client. Without an api key the token "none" is
// sent, which local OpenAI compatible servers accept.
func NewOpenAIEmbedder(cfg *model.Config) (*OpenAIEmbedder, error) {
	token := cfg.OpenAIAPIKey
	if token == "" {
		token = "none"
	}

	opts := []openai.Option{
		openai.WithToken(token),
		openai.WithEmbeddingModel(cfg.EmbeddingModel),
	}
	if cfg.EmbeddingBaseURL != "" {
		opts = append(opts, openai.WithBaseURL(cfg.EmbeddingBaseURL))
	}

	client, err := openai.New(opts...)
	if err != nil {
		return nil, helper.NewError("create openai client", err)
	}

	// One EmbedDocuments call must be one request, so the langchaingo batch
	// size is the generator batch size.
	embedder, err := embeddings.NewEmbedder(
		client,
		embeddings.WithStripNewLines(true),
		embeddings.WithBatchSize(cfg.EmbeddingBatchSize),
	)
	if err != nil {
		return nil, helper.NewError("create embedder", err)
	}

	return &OpenAIEmbedder{
		embedder:   embedder,
		model:      cfg.EmbeddingModel,
		dimensions: cfg.EmbeddingDimensions,
	}, nil
}

func (e *OpenAIEmbedder) EmbedTexts(ctx context.Context, texts []string) ([][]float32, error) {
	return e.embedder.EmbedDocuments(ctx, texts)
}

func (e *OpenAIEmbedder) Model() string   { return e.model }
func (e *OpenAIEmbedder) Dimensions() int { return e.dimensions }

// HugotEmbedder runs a sentence transformer locally with the pure Go hugot backend.
type HugotEmbedder struct {
	mu         sync.Mutex
	session    *hugot.Session
	pipeline   *pipelines.FeatureExtractionPipeline
	model      string
	dimensions int
}

// NewHugotEmbedder downloads the model if needed and starts a hugot session.
// Close releases the session.
func NewHugotEmbedder(modelName string, dimensions int) (*HugotEmbedder, error) {
	modelPath, err := helper.PrepareModel(modelName, defaultHugotOnnxFile)
	if err != nil {
		return nil, err
	}

	session, err := hugot.NewGoSession()
	if err != nil {
		return nil, fmt.Errorf("failed to create hugot session: %w", err)
	}

	config := hugot.FeatureExtractionConfig{
		ModelPath: modelPath,
		Name:      "briefings-embedder",
	}
	sentencePipeline, err := hugot.NewPipeline(session, config)
	if err != nil {
		if destroyErr := session.Destroy(); destroyErr != nil {
			return nil, fmt.Errorf("failed to create sentence pipeline: %w (cleanup error: %v)", err, destroyErr)
		}
		return nil, fmt.Errorf("failed to create sentence pipeline: %w", err)
	}

	return &HugotEmbedder{
		session:    session,
		pipeline:   sentencePipeline,
		model:      modelName,
		dimensions: dimensions,
	}, nil
}

// EmbedTexts runs the pipeline on the batch. The pipeline itself cannot be
// interrupted, ctx is checked before it starts.
func (e *HugotEmbedder) EmbedTexts(ctx context.Context, texts []string) ([][]float32, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	result, err := e.pipeline.RunPipeline(texts)
	if err != nil {
		return nil, fmt.Errorf("failed to generate embeddings: %w", err)
	}
	return result.Embeddings, nil
}

func (e *HugotEmbedder) Model() string   { return e.model }
func (e *HugotEmbedder) Dimensions() int { return e.dimensions }

// Close destroys the hugot session.
func (e *HugotEmbedder) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.session.Destroy()
}

// LimitedEmbedder throttles calls to the wrapped embedder, bounds each call
// with a timeout and classifies failures as transient or permanent. A result
// that arrives after ctx was cancelled is dropped.
type LimitedEmbedder struct {
	inner   Embedder
	limiter *rate.Limiter
	timeout time.Duration
	logger  *slog.Logger
}

func NewLimitedEmbedder(inner Embedder, requestsPerSecond float64, timeout time.Duration, logger *slog.Logger) *LimitedEmbedder {
	if logger == nil {
		logger = slog.Default()
	}
	return &LimitedEmbedder{
		inner:   inner,
		limiter: rate.NewLimiter(rate.Limit(requestsPerSecond), 1),
		timeout: timeout,
		logger:  logger.With(slog.String("component", "embedder")),
	}
}

func (e *LimitedEmbedder) EmbedTexts(ctx context.Context, texts []string) ([][]float32, error) {
	if err := e.limiter.Wait(ctx); err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, model.NewTransientError("embedding rate limit", err)
	}

	callCtx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	start := time.Now()
	vectors, err := e.inner.EmbedTexts(callCtx, texts)
	if ctx.Err() != nil {
		return nil, ctx.Err()
	}
	if err != nil {
		classified := model.ClassifyServiceError("embedding service", err)
		e.logger.Warn("Embedding call failed", slog.Int("texts", len(texts)), slog.String("kind", string(model.KindOf(classified))), slog.Any("error", err))
		return nil, classified
	}

	e.logger.Debug("Embedded texts", slog.Int("texts", len(texts)), slog.Duration("duration", time.Since(start)))
	return vectors, nil
}

func (e *LimitedEmbedder) Model() string   { return e.inner.Model() }
func (e *LimitedEmbedder) Dimensions() int { return e.inner.Dimensions() }

// Close releases the wrapped embedder if it holds resources.
func (e *LimitedEmbedder) Close() error {
	if closer, ok := e.inner.(interface{ Close() error }); ok {
		return closer.Close()
	}
	return nil
}

// QueryEmbedder embeds one search query, retrying transient failures.
type QueryEmbedder struct {
	embedder   Embedder
	maxRetries int
}

func NewQueryEmbedder(embedder Embedder, maxRetries int) *QueryEmbedder {
	return &QueryEmbedder{embedder: embedder, maxRetries: maxRetries}
}

// EmbedQuery returns the vector of text. A vector of the wrong dimension is a
// data integrity error.
func (q *QueryEmbedder) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	var vectors [][]float32
	err := helper.Retry(ctx, q.maxRetries, model.IsTransient, func() error {
		v, err := q.embedder.EmbedTexts(ctx, []string{text})
		if err != nil {
			return err
		}
		vectors = v
		return nil
	})
	if err != nil {
		return nil, err
	}

	if len(vectors) != 1 {
		return nil, model.NewDataIntegrityError("query embedding count mismatch", fmt.Errorf("got %d vectors for 1 text", len(vectors)))
	}
	if len(vectors[0]) != q.embedder.Dimensions() {
		return nil, model.NewDataIntegrityError(
			"query embedding dimension mismatch",
			fmt.Errorf("got %d values, want %d", len(vectors[0]), q.embedder.Dimensions()),
		)
	}
	return vectors[0], nil
}
