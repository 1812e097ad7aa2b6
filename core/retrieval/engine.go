package retrieval

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/siherrmann/briefings/helper"
	"github.com/siherrmann/briefings/model"
)

// SimilarityStore reads one page of the candidate pool together with its totals.
type SimilarityStore interface {
	SelectChunksBySimilarity(ctx context.Context, query model.SimilarityQuery) (*model.SearchPage, error)
}

// Engine runs filtered, sorted and paginated nearest neighbour queries.
type Engine struct {
	store   SimilarityStore
	timeout time.Duration
	logger  *slog.Logger
}

// NewEngine creates a new retrieval engine. Every query gets timeout as deadline.
func NewEngine(store SimilarityStore, timeout time.Duration, logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{
		store:   store,
		timeout: timeout,
		logger:  logger.With(slog.String("component", "retrieval")),
	}
}

// Search returns the requested page. Pages past the last one are empty and
// keep the totals. Ranks are 1-based across the whole result set.
func (e *Engine) Search(ctx context.Context, query model.SimilarityQuery) (*model.SearchPage, error) {
	if err := validateQuery(query); err != nil {
		return nil, err
	}

	searchCtx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	start := time.Now()
	page, err := e.store.SelectChunksBySimilarity(searchCtx, query)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, helper.NewError("similarity search", err)
	}

	if len(page.Candidates) > query.PageSize {
		return nil, model.NewDataIntegrityError(
			"similarity page too large",
			fmt.Errorf("got %d candidates for page size %d", len(page.Candidates), query.PageSize),
		)
	}
	page.TotalPages = model.TotalPagesFor(page.TotalResults, query.PageSize)

	e.logger.Debug(
		"Similarity search",
		slog.String("sort", string(query.Sort)),
		slog.Int("admins", len(query.Admins)),
		slog.Int("page", query.Page),
		slog.Int("candidates", len(page.Candidates)),
		slog.Int("total", page.TotalResults),
		slog.Duration("duration", time.Since(start)),
	)

	return page, nil
}

func validateQuery(query model.SimilarityQuery) error {
	switch {
	case len(query.Embedding) == 0:
		return model.NewDataIntegrityError("query embedding is empty", nil)
	case !query.Sort.Valid():
		return model.NewValidationError(fmt.Sprintf("Unsupported sort %q.", query.Sort))
	case query.Page < 1:
		return model.NewValidationError("Page must be at least 1.")
	case query.PageSize < 1:
		return model.NewValidationError("Page size must be positive.")
	case query.PoolSize < query.PageSize:
		return fmt.Errorf("%w: candidate pool (%d) smaller than page size (%d)", model.ErrInvalidConfig, query.PoolSize, query.PageSize)
	}
	return nil
}
