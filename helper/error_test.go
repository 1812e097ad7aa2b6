package helper

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNewError(t *testing.T) {
	t.Run("Wraps error with trace", func(t *testing.T) {
		cause := errors.New("connection refused")
		err := NewError("ping database", cause)

		assert.EqualError(t, err, "ping database: connection refused")
		assert.ErrorIs(t, err, cause, "Expected wrapped error to be reachable with errors.Is")
	})

	t.Run("Nested traces", func(t *testing.T) {
		cause := errors.New("boom")
		err := NewError("load chunks sql", NewError("exec", cause))

		assert.EqualError(t, err, "load chunks sql: exec: boom")
		assert.ErrorIs(t, err, cause)
	})

	t.Run("Nil error stays nil", func(t *testing.T) {
		assert.NoError(t, NewError("noop", nil))
	})
}
