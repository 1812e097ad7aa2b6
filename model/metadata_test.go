package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetadataValue(t *testing.T) {
	t.Run("Nil metadata is stored as empty object", func(t *testing.T) {
		var m Metadata

		value, err := m.Value()

		require.NoError(t, err)
		assert.Equal(t, []byte("{}"), value)
	})

	t.Run("Metadata is stored as JSON", func(t *testing.T) {
		m := Metadata{"location": "James S. Brady Press Briefing Room"}

		value, err := m.Value()

		require.NoError(t, err)
		assert.JSONEq(t, `{"location":"James S. Brady Press Briefing Room"}`, string(value.([]byte)))
	})
}

func TestMetadataScan(t *testing.T) {
	t.Run("Scan from JSON bytes", func(t *testing.T) {
		var m Metadata

		err := m.Scan([]byte(`{"location":"Washington","datetime_published":"2023-03-01T14:00:00"}`))

		require.NoError(t, err)
		assert.Equal(t, "Washington", m.Location())
		assert.Equal(t, "2023-03-01T14:00:00", m.String("datetime_published"))
	})

	t.Run("Scan from string", func(t *testing.T) {
		var m Metadata

		err := m.Scan(`{"speakers":3}`)

		require.NoError(t, err)
		assert.Equal(t, "3", m.String("speakers"), "Numbers should be formatted as text")
	})

	t.Run("Scan from nil gives empty metadata", func(t *testing.T) {
		var m Metadata

		err := m.Scan(nil)

		require.NoError(t, err)
		assert.NotNil(t, m)
		assert.Empty(t, m.Location())
	})

	t.Run("Scan from unsupported type fails", func(t *testing.T) {
		var m Metadata

		err := m.Scan(42)

		assert.Error(t, err)
	})

	t.Run("Scan invalid JSON fails", func(t *testing.T) {
		var m Metadata

		err := m.Scan([]byte(`{not json`))

		assert.Error(t, err)
	})
}
