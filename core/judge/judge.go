package judge

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/siherrmann/briefings/helper"
	"github.com/siherrmann/briefings/model"
	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/openai"
	"golang.org/x/time/rate"
)

// Stats counts what happened during one Judge call.
type Stats struct {
	Batches       int `json:"batches"`
	FailedBatches int `json:"failed_batches"`
	Invalid       int `json:"invalid"`
}

// Judge asks a chat model whether search candidates help answer a query.
type Judge struct {
	llm        llms.Model
	batchSize  int
	maxWords   int
	maxRetries int
	timeout    time.Duration
	limiter    *rate.Limiter
	logger     *slog.Logger
}

// NewOpenAIModel creates the chat model used by the judge. It returns
// model.ErrJudgeDisabled when no api key or judge model is configured.
func NewOpenAIModel(cfg *model.Config) (llms.Model, error) {
	if !cfg.JudgeConfigured() {
		return nil, model.ErrJudgeDisabled
	}

	client, err := openai.New(
		openai.WithToken(cfg.OpenAIAPIKey),
		openai.WithModel(cfg.JudgeModel),
	)
	if err != nil {
		return nil, helper.NewError("create judge client", err)
	}
	return client, nil
}

func NewJudge(llm llms.Model, cfg *model.Config, logger *slog.Logger) (*Judge, error) {
	if llm == nil {
		return nil, model.ErrJudgeDisabled
	}
	if cfg.JudgeBatchSize <= 0 || cfg.JudgeMaxWords <= 0 {
		return nil, fmt.Errorf("%w: judge batch size and max words must be positive", model.ErrInvalidConfig)
	}
	if logger == nil {
		logger = slog.Default()
	}

	return &Judge{
		llm:        llm,
		batchSize:  cfg.JudgeBatchSize,
		maxWords:   cfg.JudgeMaxWords,
		maxRetries: cfg.MaxRetries,
		timeout:    cfg.JudgeTimeout,
		limiter:    rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), 1),
		logger:     logger.With(slog.String("component", "judge")),
	}, nil
}

// Judge returns one verdict per candidate in input order. A batch whose answer
// cannot be parsed, or whose call still fails transiently after the retries,
// gets invalid verdicts and the remaining batches still run. A permanent
// service error or cancellation aborts the call and returns no verdicts.
func (j *Judge) Judge(ctx context.Context, query string, candidates []model.SearchCandidate) ([]model.Verdict, Stats, error) {
	stats := Stats{}
	verdicts := make([]model.Verdict, 0, len(candidates))

	for start := 0; start < len(candidates); start += j.batchSize {
		if err := ctx.Err(); err != nil {
			return nil, stats, err
		}

		end := min(start+j.batchSize, len(candidates))
		batch := candidates[start:end]
		stats.Batches++

		text, err := j.complete(ctx, buildPrompt(query, batch, j.maxWords))
		if err != nil {
			if ctx.Err() != nil {
				return nil, stats, ctx.Err()
			}
			if !model.IsTransient(err) {
				return nil, stats, err
			}
			j.logger.Warn("Judge batch failed", slog.Int("batch", stats.Batches), slog.Any("error", err))
			stats.FailedBatches++
			verdicts = append(verdicts, invalidBatch(len(batch), "judge service unavailable")...)
			continue
		}

		batchVerdicts, err := parseVerdicts(text, len(batch))
		if err != nil {
			j.logger.Warn("Judge response not parseable", slog.Int("batch", stats.Batches), slog.Any("error", err))
			stats.FailedBatches++
			verdicts = append(verdicts, invalidBatch(len(batch), strings.TrimSpace(text))...)
			continue
		}
		verdicts = append(verdicts, batchVerdicts...)
	}

	for _, v := range verdicts {
		if !v.Valid {
			stats.Invalid++
		}
	}

	j.logger.Debug("Judged candidates", slog.Int("candidates", len(candidates)), slog.Int("batches", stats.Batches), slog.Int("failed_batches", stats.FailedBatches), slog.Int("invalid", stats.Invalid))
	return verdicts, stats, nil
}

// complete sends one prompt, retrying transient failures. The answer of a
// call that returns after ctx was cancelled is dropped.
func (j *Judge) complete(ctx context.Context, prompt string) (string, error) {
	content := []llms.MessageContent{
		llms.TextParts(llms.ChatMessageTypeSystem, systemPrompt),
		llms.TextParts(llms.ChatMessageTypeHuman, prompt),
	}

	var text string
	err := helper.Retry(ctx, j.maxRetries, model.IsTransient, func() error {
		if err := j.limiter.Wait(ctx); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return model.NewTransientError("judge rate limit", err)
		}

		callCtx, cancel := context.WithTimeout(ctx, j.timeout)
		defer cancel()

		response, err := j.llm.GenerateContent(callCtx, content, llms.WithTemperature(0), llms.WithJSONMode())
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if err != nil {
			return model.ClassifyServiceError("judge service", err)
		}

		text = ""
		if len(response.Choices) > 0 {
			text = response.Choices[0].Content
		}
		return nil
	})
	return text, err
}

func invalidBatch(n int, raw string) []model.Verdict {
	verdicts := make([]model.Verdict, n)
	for i := range verdicts {
		verdicts[i] = model.InvalidVerdict(raw, "")
	}
	return verdicts
}
