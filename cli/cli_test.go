package cli

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/fatih/color"
	"github.com/siherrmann/briefings/core/export"
	"github.com/siherrmann/briefings/helper"
	"github.com/siherrmann/briefings/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExitCode(t *testing.T) {
	assert.Equal(t, 0, exitCode(nil))
	assert.Equal(t, 1, exitCode(errors.New("--limit must be >= 1")))
	assert.Equal(t, 1, exitCode(model.NewValidationError("Query cannot be empty.")))
	assert.Equal(t, 1, exitCode(model.NewPermanentError("judge service rejected the request", errors.New("401"))))
	assert.Equal(t, ExitTempFail, exitCode(model.NewTransientError("embedding service timed out", context.DeadlineExceeded)))
	assert.Equal(t, ExitTempFail, exitCode(helper.NewError("embed query", model.NewTransientError("embedding service is temporarily unavailable", errors.New("503")))))
}

func TestUserMessage(t *testing.T) {
	assert.Equal(t, "--limit must be >= 1", userMessage(fmt.Errorf("--limit must be >= 1")))
	assert.Equal(t, "Query cannot be empty.", userMessage(model.NewValidationError("Query cannot be empty.")))

	msg := userMessage(model.NewTransientError("embedding service timed out", errors.New("secret detail")))
	assert.NotContains(t, msg, "secret detail")
	assert.Contains(t, msg, "retry later")
}

func TestValidateSearchFlags(t *testing.T) {
	defer func(limit int) { searchLimit = limit }(searchLimit)

	searchLimit = 5
	assert.NoError(t, validateSearchFlags(export.Options{SeparatingLines: 2}))
	assert.NoError(t, validateSearchFlags(export.Options{Name: "ukraine", SeparatingLines: 0, SeparatingChar: "-"}))

	assert.EqualError(t, validateSearchFlags(export.Options{SeparatingLines: -1}), "--separating-lines must be >= 0")
	assert.EqualError(t, validateSearchFlags(export.Options{SeparatingChar: "ab"}), "--separating-char must be a single character")
	assert.EqualError(t, validateSearchFlags(export.Options{SeparatingChar: " "}), "--separating-char cannot be whitespace")
	assert.True(t, model.IsValidation(validateSearchFlags(export.Options{Name: "   "})))

	searchLimit = 0
	assert.EqualError(t, validateSearchFlags(export.Options{}), "--limit must be >= 1")
}

func TestValidateChunkFlags(t *testing.T) {
	defer func(limit, workers int, doc string, force bool) {
		chunkLimit, chunkWorkers, chunkDocument, chunkForce = limit, workers, doc, force
	}(chunkLimit, chunkWorkers, chunkDocument, chunkForce)

	chunkLimit, chunkWorkers, chunkDocument, chunkForce = 25, 4, "", false
	rid, err := validateChunkFlags()
	require.NoError(t, err)
	assert.Nil(t, rid)

	chunkLimit = 0
	_, err = validateChunkFlags()
	assert.EqualError(t, err, "--limit must be >= 1")

	chunkDocument = "0b7e5f8e-2c55-4c0e-9a38-8f7b1f0d2a11"
	_, err = validateChunkFlags()
	assert.ErrorContains(t, err, "--force")

	chunkForce = true
	rid, err = validateChunkFlags()
	require.NoError(t, err)
	assert.Equal(t, chunkDocument, rid.String())

	chunkDocument = "not-an-id"
	_, err = validateChunkFlags()
	assert.Error(t, err)
}

func TestValidateEmbedFlags(t *testing.T) {
	defer func(limit int, doc string) { embedLimit, embedResetDocument = limit, doc }(embedLimit, embedResetDocument)

	embedLimit, embedResetDocument = 200, ""
	rid, err := validateEmbedFlags()
	require.NoError(t, err)
	assert.Nil(t, rid)

	embedLimit = 0
	_, err = validateEmbedFlags()
	assert.EqualError(t, err, "--limit must be >= 1")

	embedLimit, embedResetDocument = 10, "0b7e5f8e-2c55-4c0e-9a38-8f7b1f0d2a11"
	rid, err = validateEmbedFlags()
	require.NoError(t, err)
	assert.Equal(t, embedResetDocument, rid.String())
}

func TestFormatResult(t *testing.T) {
	color.NoColor = true

	published := time.Date(2023, 3, 1, 0, 0, 0, 0, time.UTC)
	accept := model.DecisionAccept
	rationale := "mentions sanctions"
	r := model.SearchResult{
		Title:       "Press Briefing",
		Admin:       "Biden",
		PublishDate: &published,
		URL:         "https://example.org/briefing",
		Score:       0.87654,
		ChunkIndex:  3,
		ChunkText:   "  first line\nsecond line  ",
		Verdict:     &accept,
		Rationale:   &rationale,
	}

	out := formatResult(r, 2)
	assert.Equal(t, strings.Join([]string{
		"2. Press Briefing (2023-03-01, Biden)",
		"   score=0.8765 chunk=3 url=https://example.org/briefing",
		"   first line second line",
		"   LLM relevance: YES (mentions sanctions)",
	}, "\n"), out)

	r.ChunkText = strings.Repeat("word ", 100)
	r.Verdict = nil
	lines := strings.Split(formatResult(r, 1), "\n")
	require.Len(t, lines, 3)
	assert.True(t, strings.HasSuffix(lines[2], "..."))
	assert.LessOrEqual(t, len([]rune(strings.TrimPrefix(lines[2], "   "))), snippetLength)
}
