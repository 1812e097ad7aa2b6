package judge

import (
	"strings"
	"testing"
	"time"

	"github.com/siherrmann/briefings/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseVerdicts(t *testing.T) {
	t.Run("Answers object", func(t *testing.T) {
		verdicts, err := parseVerdicts(`{"answers":[{"answer":"YES","explanation":"talks about Ukraine"},{"answer":"no","explanation":"budget"}]}`, 2)
		require.NoError(t, err)
		require.Len(t, verdicts, 2)

		assert.True(t, verdicts[0].Accepted())
		assert.Equal(t, "talks about Ukraine", verdicts[0].Rationale)
		assert.True(t, verdicts[1].Rejected())
		assert.Equal(t, "NO", verdicts[1].Raw)
	})

	t.Run("Bare array in a code fence", func(t *testing.T) {
		text := "```json\n[{\"answer\":\"YES\"},{\"answer\":\"NO\"},{\"answer\":\"YES\"}]\n```"
		verdicts, err := parseVerdicts(text, 3)
		require.NoError(t, err)
		assert.Equal(t, model.DecisionAccept, verdicts[0].Decision)
		assert.Equal(t, model.DecisionReject, verdicts[1].Decision)
		assert.Equal(t, model.DecisionAccept, verdicts[2].Decision)
	})

	t.Run("Results key and alternative field names", func(t *testing.T) {
		verdicts, err := parseVerdicts(`{"results":[{"decision":"Yes","reason":"direct quote"}]}`, 1)
		require.NoError(t, err)
		assert.True(t, verdicts[0].Accepted())
		assert.Equal(t, "direct quote", verdicts[0].Rationale)
	})

	t.Run("Single object for a single chunk", func(t *testing.T) {
		verdicts, err := parseVerdicts(`{"answer":"NO","explanation":"unrelated"}`, 1)
		require.NoError(t, err)
		assert.True(t, verdicts[0].Rejected())
	})

	t.Run("Unquoted keys are repaired", func(t *testing.T) {
		verdicts, err := parseVerdicts(`{"answers":[{answer":"YES", explanation":"ok"}]}`, 1)
		require.NoError(t, err)
		assert.True(t, verdicts[0].Accepted())
		assert.Equal(t, "ok", verdicts[0].Rationale)
	})

	t.Run("Unknown answer is invalid, not rejected", func(t *testing.T) {
		verdicts, err := parseVerdicts(`[{"answer":"MAYBE","explanation":"unclear"},{"answer":"YES"}]`, 2)
		require.NoError(t, err)

		assert.False(t, verdicts[0].Valid)
		assert.Equal(t, model.DecisionInvalid, verdicts[0].Decision)
		assert.Equal(t, "MAYBE", verdicts[0].Raw)
		assert.Equal(t, "unclear", verdicts[0].Rationale)
		assert.True(t, verdicts[1].Accepted())
	})

	t.Run("Wrong number of answers fails the batch", func(t *testing.T) {
		_, err := parseVerdicts(`[{"answer":"YES"}]`, 2)
		assert.ErrorIs(t, err, errCountMismatch)

		_, err = parseVerdicts(`[{"answer":"YES"},{"answer":"NO"},{"answer":"NO"}]`, 2)
		assert.ErrorIs(t, err, errCountMismatch)
	})

	t.Run("Not JSON", func(t *testing.T) {
		_, err := parseVerdicts("I think the first chunk is relevant.", 1)
		assert.Error(t, err)
	})

	t.Run("Empty", func(t *testing.T) {
		_, err := parseVerdicts("  ", 1)
		assert.ErrorIs(t, err, errEmptyResponse)

		_, err = parseVerdicts("```\n```", 1)
		assert.ErrorIs(t, err, errEmptyResponse)
	})

	t.Run("Object without answers", func(t *testing.T) {
		_, err := parseVerdicts(`{"foo":"bar"}`, 1)
		assert.ErrorIs(t, err, errCountMismatch)
	})
}

func TestStripCodeFence(t *testing.T) {
	assert.Equal(t, `[1]`, stripCodeFence("```json\n[1]\n```"))
	assert.Equal(t, `[1]`, stripCodeFence("```\n[1]\n```  "))
	assert.Equal(t, `[1]`, stripCodeFence("  [1]  "))
	assert.Equal(t, `[1]`, stripCodeFence("```[1]"))
}

func TestRepairJSON(t *testing.T) {
	assert.Equal(t, `{"answer":"YES"}`, repairJSON(`{answer":"YES"}`))
	assert.Equal(t, `{"a":"x", "b":"y"}`, repairJSON(`{"a":"x", b":"y"}`))
	assert.Equal(t, `{"text":"yes, sure"}`, repairJSON(`{"text":"yes, sure"}`))
}

func TestTrimWords(t *testing.T) {
	assert.Equal(t, "one two three", trimWords("  one two three ", 3))
	assert.Equal(t, "one two...", trimWords("one  two\nthree", 2))
}

func TestBuildPrompt(t *testing.T) {
	published := time.Date(2022, 2, 24, 0, 0, 0, 0, time.UTC)
	batch := []model.SearchCandidate{
		{Title: "Remarks on Ukraine", PublishDate: &published, Text: "alpha beta gamma delta"},
		{Text: "untitled text"},
	}

	prompt := buildPrompt("  Ukraine  ", batch, 2)

	assert.Contains(t, prompt, "Query:\nUkraine\n")
	assert.Contains(t, prompt, "Chunk 1 (title: Remarks on Ukraine, date: 2022-02-24):\nalpha beta...")
	assert.Contains(t, prompt, "Chunk 2 (title: Untitled, date: Unknown):\nuntitled text")
	assert.True(t, strings.HasPrefix(prompt, "You are a precise relevance judge."))
}
