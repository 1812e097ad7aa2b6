package model

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestErrorKinds(t *testing.T) {
	t.Run("Kind survives wrapping", func(t *testing.T) {
		err := fmt.Errorf("search: %w", NewValidationError("query must not be empty"))

		assert.True(t, IsValidation(err))
		assert.False(t, IsTransient(err))
		assert.Equal(t, "query must not be empty", ClientMessage(err))
	})

	t.Run("Internal errors get generic client message", func(t *testing.T) {
		err := NewDataIntegrityError("dimension mismatch", errors.New("got 768 want 1536"))

		assert.True(t, IsDataIntegrity(err))
		assert.NotContains(t, ClientMessage(err), "768")
	})

	t.Run("Capability message is shown to clients", func(t *testing.T) {
		err := NewCapabilityUnavailableError("Advanced search is currently unavailable.", ErrJudgeDisabled)

		assert.True(t, IsCapabilityUnavailable(err))
		assert.True(t, errors.Is(err, ErrJudgeDisabled))
		assert.Equal(t, "Advanced search is currently unavailable.", ClientMessage(err))
	})

	t.Run("Unclassified error has no kind", func(t *testing.T) {
		assert.Equal(t, ErrorKind(""), KindOf(errors.New("plain")))
	})
}

func TestClassifyServiceError(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		expected ErrorKind
	}{
		{"Deadline is transient", fmt.Errorf("call: %w", context.DeadlineExceeded), KindTransient},
		{"Rate limit is transient", errors.New("API returned unexpected status code: 429: Rate limit reached"), KindTransient},
		{"Server error is transient", errors.New("status code: 503 service unavailable"), KindTransient},
		{"Unauthorized is permanent", errors.New("API returned unexpected status code: 401: Incorrect API key provided"), KindPermanent},
		{"Bad request is permanent", errors.New("status code: 400 invalid_request_error"), KindPermanent},
		{"Unknown defaults to transient", errors.New("something odd"), KindTransient},
		{"Rate limit with token counts is transient", errors.New("API returned unexpected status code: 429: Rate limit reached for gpt-4o-mini in organization org-x on tokens per min (TPM): Limit 40000, Used 39800, Requested 1400."), KindTransient},
		{"Server error mentioning 400 is transient", errors.New("API returned unexpected status code: 500: upstream returned 400 tokens"), KindTransient},
		{"Exhausted quota is permanent", errors.New("API returned unexpected status code: 429: You exceeded your current quota, please check your plan and billing details."), KindPermanent},
		{"Not found is permanent", errors.New("API returned unexpected status code: 404: The model `gpt-9` does not exist"), KindPermanent},
		{"Missing key without status is permanent", errors.New("openai: invalid api key"), KindPermanent},
		{"Connection refused is transient", errors.New("dial tcp 127.0.0.1:443: connect: connection refused"), KindTransient},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ClassifyServiceError("embedding service", tt.err)

			assert.Equal(t, tt.expected, KindOf(err))
			assert.True(t, errors.Is(err, tt.err), "Original error should stay in the chain")
		})
	}

	t.Run("Nil stays nil", func(t *testing.T) {
		assert.NoError(t, ClassifyServiceError("judge", nil))
	})

	t.Run("Cancellation is not classified", func(t *testing.T) {
		err := ClassifyServiceError("judge", context.Canceled)
		assert.Equal(t, ErrorKind(""), KindOf(err))
		assert.ErrorIs(t, err, context.Canceled)
	})

	t.Run("Classified error is kept", func(t *testing.T) {
		original := NewDataIntegrityError("bad", nil)
		assert.Same(t, original, ClassifyServiceError("judge", original))
	})
}
