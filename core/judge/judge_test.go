package judge

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"

	"github.com/siherrmann/briefings/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tmc/langchaingo/llms"
)

// scriptedModel answers call i with responses[i] or errs[i]. Without a
// script it accepts every chunk of the prompt.
type scriptedModel struct {
	mu        sync.Mutex
	calls     int
	prompts   []string
	responses map[int]string
	errs      map[int]error
}

func newScriptedModel() *scriptedModel {
	return &scriptedModel{responses: map[int]string{}, errs: map[int]error{}}
}

func (m *scriptedModel) GenerateContent(ctx context.Context, messages []llms.MessageContent, options ...llms.CallOption) (*llms.ContentResponse, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	call := m.calls
	m.calls++

	prompt := ""
	if len(messages) > 1 && len(messages[1].Parts) > 0 {
		if text, ok := messages[1].Parts[0].(llms.TextContent); ok {
			prompt = text.Text
		}
	}
	m.prompts = append(m.prompts, prompt)

	if err := m.errs[call]; err != nil {
		return nil, err
	}
	content, ok := m.responses[call]
	if !ok {
		content = acceptAll(strings.Count(prompt, "\nChunk "))
	}
	return &llms.ContentResponse{Choices: []*llms.ContentChoice{{Content: content}}}, nil
}

func (m *scriptedModel) Call(ctx context.Context, prompt string, options ...llms.CallOption) (string, error) {
	return llms.GenerateFromSinglePrompt(ctx, m, prompt, options...)
}

func acceptAll(n int) string {
	answers := make([]string, n)
	for i := range answers {
		answers[i] = fmt.Sprintf(`{"answer":"YES","explanation":"chunk %d"}`, i+1)
	}
	return `{"answers":[` + strings.Join(answers, ",") + `]}`
}

func testCandidates(n int) []model.SearchCandidate {
	candidates := make([]model.SearchCandidate, n)
	for i := range candidates {
		candidates[i] = model.SearchCandidate{
			ChunkID: int64(i + 1),
			Title:   fmt.Sprintf("Briefing %d", i+1),
			Text:    fmt.Sprintf("text of chunk %d", i+1),
		}
	}
	return candidates
}

func testJudgeConfig() *model.Config {
	cfg := model.DefaultConfig()
	cfg.JudgeBatchSize = 10
	cfg.MaxRetries = 1
	cfg.RequestsPerSecond = 1000
	return cfg
}

func TestNewJudge(t *testing.T) {
	t.Run("Nil model", func(t *testing.T) {
		_, err := NewJudge(nil, testJudgeConfig(), nil)
		assert.ErrorIs(t, err, model.ErrJudgeDisabled)
	})

	t.Run("Invalid batch size", func(t *testing.T) {
		cfg := testJudgeConfig()
		cfg.JudgeBatchSize = 0
		_, err := NewJudge(newScriptedModel(), cfg, nil)
		assert.ErrorIs(t, err, model.ErrInvalidConfig)
	})

	t.Run("OpenAI model needs a key", func(t *testing.T) {
		cfg := testJudgeConfig()
		cfg.OpenAIAPIKey = ""
		_, err := NewOpenAIModel(cfg)
		assert.ErrorIs(t, err, model.ErrJudgeDisabled)

		cfg.OpenAIAPIKey = "sk-test"
		llm, err := NewOpenAIModel(cfg)
		require.NoError(t, err)
		assert.NotNil(t, llm)
	})
}

func TestJudge(t *testing.T) {
	t.Run("One verdict per candidate in order", func(t *testing.T) {
		llm := newScriptedModel()
		judge, err := NewJudge(llm, testJudgeConfig(), nil)
		require.NoError(t, err)

		verdicts, stats, err := judge.Judge(context.Background(), "Ukraine", testCandidates(25))
		require.NoError(t, err)

		require.Len(t, verdicts, 25)
		assert.Equal(t, Stats{Batches: 3}, stats)
		assert.Equal(t, 3, llm.calls)
		assert.Equal(t, "chunk 1", verdicts[0].Rationale)
		assert.Equal(t, "chunk 10", verdicts[9].Rationale)
		assert.Equal(t, "chunk 1", verdicts[10].Rationale, "Numbering restarts in every batch")
		assert.Equal(t, "chunk 5", verdicts[24].Rationale)
		assert.Contains(t, llm.prompts[2], "Chunk 5 (title: Briefing 25")
	})

	t.Run("Unparseable batch becomes invalid", func(t *testing.T) {
		llm := newScriptedModel()
		llm.responses[1] = "Sorry, I cannot help with that."
		judge, err := NewJudge(llm, testJudgeConfig(), nil)
		require.NoError(t, err)

		verdicts, stats, err := judge.Judge(context.Background(), "Ukraine", testCandidates(25))
		require.NoError(t, err)

		require.Len(t, verdicts, 25)
		for i, v := range verdicts {
			if i >= 10 && i < 20 {
				assert.Equal(t, model.DecisionInvalid, v.Decision, "verdict %d", i)
				assert.False(t, v.Valid)
			} else {
				assert.True(t, v.Accepted(), "verdict %d", i)
			}
		}
		assert.Equal(t, Stats{Batches: 3, FailedBatches: 1, Invalid: 10}, stats)
	})

	t.Run("Short answer list invalidates the whole batch", func(t *testing.T) {
		llm := newScriptedModel()
		llm.responses[0] = acceptAll(3)
		judge, err := NewJudge(llm, testJudgeConfig(), nil)
		require.NoError(t, err)

		verdicts, stats, err := judge.Judge(context.Background(), "Ukraine", testCandidates(4))
		require.NoError(t, err)

		require.Len(t, verdicts, 4)
		for _, v := range verdicts {
			assert.Equal(t, model.DecisionInvalid, v.Decision)
		}
		assert.Equal(t, 4, stats.Invalid)
	})

	t.Run("Transient failure after retries becomes invalid", func(t *testing.T) {
		llm := newScriptedModel()
		llm.errs[0] = errors.New("status code: 503")
		llm.errs[1] = errors.New("status code: 503")
		judge, err := NewJudge(llm, testJudgeConfig(), nil)
		require.NoError(t, err)

		verdicts, stats, err := judge.Judge(context.Background(), "Ukraine", testCandidates(12))
		require.NoError(t, err)

		require.Len(t, verdicts, 12)
		assert.Equal(t, model.DecisionInvalid, verdicts[0].Decision)
		assert.Equal(t, model.DecisionInvalid, verdicts[9].Decision)
		assert.True(t, verdicts[10].Accepted())
		assert.Equal(t, 1, stats.FailedBatches)
		assert.Equal(t, 3, llm.calls)
	})

	t.Run("Transient failure is retried", func(t *testing.T) {
		llm := newScriptedModel()
		llm.errs[0] = errors.New("status code: 429")
		judge, err := NewJudge(llm, testJudgeConfig(), nil)
		require.NoError(t, err)

		verdicts, stats, err := judge.Judge(context.Background(), "Ukraine", testCandidates(3))
		require.NoError(t, err)
		assert.True(t, verdicts[0].Accepted())
		assert.Equal(t, 0, stats.FailedBatches)
		assert.Equal(t, 2, llm.calls)
	})

	t.Run("Permanent failure is returned", func(t *testing.T) {
		llm := newScriptedModel()
		llm.errs[0] = errors.New("status code: 401, invalid api key")
		judge, err := NewJudge(llm, testJudgeConfig(), nil)
		require.NoError(t, err)

		verdicts, _, err := judge.Judge(context.Background(), "Ukraine", testCandidates(3))
		assert.True(t, model.IsPermanent(err))
		assert.Nil(t, verdicts)
		assert.Equal(t, 1, llm.calls)
	})

	t.Run("Cancelled context", func(t *testing.T) {
		llm := newScriptedModel()
		judge, err := NewJudge(llm, testJudgeConfig(), nil)
		require.NoError(t, err)

		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		_, _, err = judge.Judge(ctx, "Ukraine", testCandidates(3))
		assert.ErrorIs(t, err, context.Canceled)
		assert.Equal(t, 0, llm.calls)
	})

	t.Run("No candidates", func(t *testing.T) {
		llm := newScriptedModel()
		judge, err := NewJudge(llm, testJudgeConfig(), nil)
		require.NoError(t, err)

		verdicts, stats, err := judge.Judge(context.Background(), "Ukraine", nil)
		require.NoError(t, err)
		assert.Empty(t, verdicts)
		assert.Equal(t, Stats{}, stats)
		assert.Equal(t, 0, llm.calls)
	})

	t.Run("Long chunk text is trimmed", func(t *testing.T) {
		llm := newScriptedModel()
		cfg := testJudgeConfig()
		cfg.JudgeMaxWords = 3
		judge, err := NewJudge(llm, cfg, nil)
		require.NoError(t, err)

		candidates := []model.SearchCandidate{{Text: "one two three four five"}}
		_, _, err = judge.Judge(context.Background(), "Ukraine", candidates)
		require.NoError(t, err)
		assert.Contains(t, llm.prompts[0], "one two three...")
		assert.NotContains(t, llm.prompts[0], "four")
	})
}
