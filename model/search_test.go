package model

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSearchRequestWithSort(t *testing.T) {
	t.Run("Resets page to one", func(t *testing.T) {
		req := SearchRequest{Query: "Ukraine", Sort: SortRelevance, Page: 3, AdminFilter: []string{"Biden"}}

		next := req.WithSort(SortDateDesc)

		assert.Equal(t, SortDateDesc, next.Sort)
		assert.Equal(t, 1, next.Page, "Re-sort must start at the first page")
		assert.Equal(t, "Ukraine", next.Query)
		assert.Equal(t, []string{"Biden"}, next.AdminFilter)
	})

	t.Run("Does not modify the original request", func(t *testing.T) {
		req := SearchRequest{Query: "Ukraine", Sort: SortRelevance, Page: 3, AdminFilter: []string{"Biden"}}

		next := req.WithSort(SortDateAsc)
		next.AdminFilter[0] = "Trump"

		assert.Equal(t, 3, req.Page)
		assert.Equal(t, SortRelevance, req.Sort)
		assert.Equal(t, "Biden", req.AdminFilter[0])
	})
}

func TestEnums(t *testing.T) {
	assert.True(t, ModeSimple.Valid())
	assert.True(t, ModeAdvanced.Valid())
	assert.False(t, Mode("judged").Valid())
	assert.True(t, SortRelevance.Valid())
	assert.True(t, SortDateDesc.Valid())
	assert.True(t, SortDateAsc.Valid())
	assert.False(t, Sort("date").Valid())
}

func TestSearchResultJSON(t *testing.T) {
	t.Run("Verdict fields are omitted when unset", func(t *testing.T) {
		b, err := json.Marshal(SearchResult{Title: "Briefing"})
		require.NoError(t, err)

		var fields map[string]interface{}
		require.NoError(t, json.Unmarshal(b, &fields))
		assert.NotContains(t, fields, "verdict")
		assert.NotContains(t, fields, "rationale")
		assert.NotContains(t, fields, "rejected")
		assert.Contains(t, fields, "publish_date", "Publish date is always present, null when unknown")
	})

	t.Run("Verdict fields are present when set", func(t *testing.T) {
		decision := DecisionInvalid
		rationale := ""
		b, err := json.Marshal(SearchResult{Verdict: &decision, Rationale: &rationale})
		require.NoError(t, err)

		var fields map[string]interface{}
		require.NoError(t, json.Unmarshal(b, &fields))
		assert.Equal(t, "invalid", fields["verdict"])
		assert.Contains(t, fields, "rationale")
	})
}

func TestVerdict(t *testing.T) {
	accept := Verdict{Decision: DecisionAccept, Valid: true}
	reject := Verdict{Decision: DecisionReject, Valid: true}
	invalid := InvalidVerdict("MAYBE", "unrecognised answer")

	assert.True(t, accept.Accepted())
	assert.False(t, accept.Rejected())
	assert.True(t, reject.Rejected())
	assert.False(t, invalid.Accepted())
	assert.False(t, invalid.Rejected())
	assert.False(t, invalid.Valid)
	assert.Equal(t, DecisionInvalid, invalid.Decision)
	assert.Equal(t, "MAYBE", invalid.Raw)
}
