package briefings

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/siherrmann/briefings/core/judge"
	"github.com/siherrmann/briefings/helper"
	"github.com/siherrmann/briefings/model"
)

// Search runs one query through validate, embed, retrieve, the optional judge
// and assembly, in that order. Cancellation is checked between the stages.
// A failing judge does not fail the search, the page is returned without
// verdicts and marked degraded.
func (b *Briefings) Search(ctx context.Context, req model.SearchRequest) (*model.SearchResponse, error) {
	start := time.Now()

	req, vector, logger, err := b.prepareSearch(ctx, req)
	if err != nil {
		return nil, err
	}

	response, err := b.searchPage(ctx, req, vector, 0, logger)
	if err != nil {
		return nil, err
	}
	response.Metadata.ElapsedMS = time.Since(start).Milliseconds()

	logger.Info(
		"Search finished",
		slog.Int("results", len(response.Results)),
		slog.Int("total", response.Pagination.TotalResults),
		slog.Bool("degraded", response.Metadata.Degraded),
		slog.Int64("elapsed_ms", response.Metadata.ElapsedMS),
	)
	return response, nil
}

// SearchTop collects up to limit results page by page, starting at page 1.
// The query is embedded once. Collection stops early when the result set
// runs out. Only the candidates still needed are judged. Pagination
// describes the first page.
func (b *Briefings) SearchTop(ctx context.Context, req model.SearchRequest, limit int) (*model.SearchResponse, error) {
	start := time.Now()
	if limit < 1 {
		return nil, model.NewValidationError("limit must be at least 1")
	}
	req.Page = 1

	req, vector, logger, err := b.prepareSearch(ctx, req)
	if err != nil {
		return nil, err
	}

	var combined *model.SearchResponse
	for {
		remaining := limit
		if combined != nil {
			remaining -= len(combined.Results)
		}
		response, err := b.searchPage(ctx, req, vector, remaining, logger)
		if err != nil {
			return nil, err
		}

		if combined == nil {
			combined = response
		} else {
			combined.Results = append(combined.Results, response.Results...)
			combined.Metadata.Degraded = combined.Metadata.Degraded || response.Metadata.Degraded
			combined.Metadata.JudgeBatches += response.Metadata.JudgeBatches
			combined.Metadata.JudgeFailedBatches += response.Metadata.JudgeFailedBatches
			combined.Metadata.JudgeInvalid += response.Metadata.JudgeInvalid
		}

		if len(combined.Results) >= limit || req.Page >= response.Pagination.TotalPages {
			break
		}
		req.Page++
	}

	if len(combined.Results) > limit {
		combined.Results = combined.Results[:limit]
	}
	combined.Metadata.ElapsedMS = time.Since(start).Milliseconds()

	logger.Info("Search finished", slog.Int("results", len(combined.Results)), slog.Int("pages", req.Page), slog.Int64("elapsed_ms", combined.Metadata.ElapsedMS))
	return combined, nil
}

// prepareSearch validates the request, checks the capabilities it needs and
// embeds the query.
func (b *Briefings) prepareSearch(ctx context.Context, req model.SearchRequest) (model.SearchRequest, []float32, *slog.Logger, error) {
	req, err := b.normalizeRequest(req)
	if err != nil {
		return req, nil, nil, err
	}
	if b.queryEmbedder == nil {
		return req, nil, nil, model.NewCapabilityUnavailableError("Search is unavailable because no embedding service is configured.", model.ErrNoEmbedder)
	}
	if req.Mode == model.ModeAdvanced && b.Judge == nil {
		return req, nil, nil, model.NewCapabilityUnavailableError("Advanced search is unavailable because no relevance judge is configured.", model.ErrJudgeDisabled)
	}

	logger := b.log.With(slog.String("mode", string(req.Mode)), slog.String("sort", string(req.Sort)))
	if b.config.Diagnostics {
		logger = logger.With(slog.String("query", req.Query))
	}

	if err := ctx.Err(); err != nil {
		return req, nil, nil, err
	}
	vector, err := b.queryEmbedder.EmbedQuery(ctx, req.Query)
	if err != nil {
		if ctx.Err() != nil {
			return req, nil, nil, ctx.Err()
		}
		logger.Error("Embedding the query failed", slog.Any("error", err))
		return req, nil, nil, helper.NewError("embed query", err)
	}
	return req, vector, logger, nil
}

// searchPage retrieves req.Page, judges it in advanced mode and assembles it.
// A positive limit drops the candidates beyond it before they are judged.
func (b *Briefings) searchPage(ctx context.Context, req model.SearchRequest, vector []float32, limit int, logger *slog.Logger) (*model.SearchResponse, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	page, err := b.Engine.Search(ctx, model.SimilarityQuery{
		Embedding: vector,
		Admins:    req.AdminFilter,
		Sort:      req.Sort,
		Page:      req.Page,
		PageSize:  req.PageSize,
		PoolSize:  b.config.CandidatePoolSize,
	})
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		logger.Error("Retrieving candidates failed", slog.Int("page", req.Page), slog.Any("error", err))
		return nil, helper.NewError("retrieve candidates", err)
	}

	if limit > 0 && len(page.Candidates) > limit {
		page.Candidates = page.Candidates[:limit]
	}

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var verdicts []model.Verdict
	stats := judge.Stats{}
	degraded := false
	if req.Mode == model.ModeAdvanced && len(page.Candidates) > 0 {
		verdicts, stats, err = b.Judge.Judge(ctx, req.Query, page.Candidates)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			logger.Error("Judge failed, returning similarity results only", slog.Int("page", req.Page), slog.Any("error", err))
			verdicts = nil
			degraded = true
		}
	}

	response := assemble(req, page, verdicts)
	response.JudgeAvailable = b.JudgeAvailable()
	response.Metadata = model.SearchMetadata{
		QueryLength:        utf8.RuneCountInString(req.Query),
		Degraded:           degraded,
		JudgeBatches:       stats.Batches,
		JudgeFailedBatches: stats.FailedBatches,
		JudgeInvalid:       stats.Invalid,
	}
	return response, nil
}

// normalizeRequest applies defaults and rejects unsupported values.
func (b *Briefings) normalizeRequest(req model.SearchRequest) (model.SearchRequest, error) {
	req.Query = strings.TrimSpace(req.Query)
	if req.Query == "" {
		return req, model.NewValidationError("Query cannot be empty.")
	}
	if utf8.RuneCountInString(req.Query) > b.config.MaxQueryLength {
		return req, model.NewValidationError(fmt.Sprintf("Query must be at most %d characters.", b.config.MaxQueryLength))
	}

	if req.Mode == "" {
		req.Mode = model.ModeSimple
	}
	if !req.Mode.Valid() {
		return req, model.NewValidationError(fmt.Sprintf("Unsupported mode %q. Use simple or advanced.", req.Mode))
	}

	if req.Sort == "" {
		req.Sort = model.SortRelevance
	}
	if !req.Sort.Valid() {
		return req, model.NewValidationError(fmt.Sprintf("Unsupported sort %q. Use relevance, date_desc or date_asc.", req.Sort))
	}

	if req.Page == 0 {
		req.Page = 1
	}
	if req.Page < 1 {
		return req, model.NewValidationError("Page must be at least 1.")
	}

	if req.PageSize == 0 {
		req.PageSize = b.config.PageSize
	}
	if req.PageSize != b.config.PageSize {
		return req, model.NewValidationError(fmt.Sprintf("Page size must be %d.", b.config.PageSize))
	}

	req.AdminFilter = sanitizeAdmins(req.AdminFilter)
	return req, nil
}

// sanitizeAdmins trims the values and drops blanks and duplicates, keeping
// the first occurrence.
func sanitizeAdmins(admins []string) []string {
	cleaned := make([]string, 0, len(admins))
	seen := make(map[string]bool, len(admins))
	for _, admin := range admins {
		admin = strings.TrimSpace(admin)
		if admin == "" || seen[admin] {
			continue
		}
		seen[admin] = true
		cleaned = append(cleaned, admin)
	}
	return cleaned
}

// assemble builds the response rows. Verdict fields are only set when
// verdicts were produced, the rejected flag only when the caller asked for it.
// Invalid verdicts stay in the results.
func assemble(req model.SearchRequest, page *model.SearchPage, verdicts []model.Verdict) *model.SearchResponse {
	judged := len(verdicts) == len(page.Candidates) && len(verdicts) > 0

	results := make([]model.SearchResult, 0, len(page.Candidates))
	for i, c := range page.Candidates {
		title := c.Title
		if title == "" {
			title = "Untitled"
		}
		result := model.SearchResult{
			DocumentID:  c.DocumentRID,
			Title:       title,
			Admin:       c.Admin,
			PublishDate: c.PublishDate,
			URL:         c.URL,
			Score:       c.Score(),
			Distance:    c.Distance,
			ChunkID:     c.ChunkID,
			ChunkIndex:  c.ChunkIndex,
			ChunkText:   c.Text,
			Rank:        c.Rank,
		}

		if judged {
			v := verdicts[i]
			decision := v.Decision
			result.Verdict = &decision
			if v.Rationale != "" {
				rationale := v.Rationale
				result.Rationale = &rationale
			}
			if !v.Valid {
				raw := v.Raw
				result.JudgeRaw = &raw
			}
			if req.IncludeRejected {
				rejected := v.Rejected()
				result.Rejected = &rejected
			}
		}
		results = append(results, result)
	}

	return &model.SearchResponse{
		Query: req.Query,
		Mode:  req.Mode,
		Filters: model.SearchFilters{
			Admin:           req.AdminFilter,
			Sort:            req.Sort,
			IncludeRejected: req.IncludeRejected,
		},
		Pagination: model.Pagination{
			Page:         req.Page,
			PageSize:     req.PageSize,
			TotalResults: page.TotalResults,
			TotalPages:   page.TotalPages,
		},
		Results: results,
	}
}
