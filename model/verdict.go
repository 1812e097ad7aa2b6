package model

// Decision is the relevance judge outcome for one candidate.
type Decision string

const (
	DecisionAccept Decision = "accept"
	DecisionReject Decision = "reject"
	// DecisionInvalid means the judge gave no reliable signal for the candidate.
	DecisionInvalid Decision = "invalid"
)

// Verdict is the judge's answer for one (query, candidate) pair. Never persisted.
type Verdict struct {
	Decision  Decision `json:"decision"`
	Rationale string   `json:"rationale,omitempty"`
	Valid     bool     `json:"valid"`
	// Raw is the unnormalised answer, kept for the export file.
	Raw string `json:"raw,omitempty"`
}

// InvalidVerdict returns a verdict marking the candidate as unjudged.
func InvalidVerdict(raw string, rationale string) Verdict {
	return Verdict{
		Decision:  DecisionInvalid,
		Rationale: rationale,
		Valid:     false,
		Raw:       raw,
	}
}

// Accepted reports a valid accept verdict.
func (v Verdict) Accepted() bool {
	return v.Valid && v.Decision == DecisionAccept
}

// Rejected reports a valid reject verdict.
func (v Verdict) Rejected() bool {
	return v.Valid && v.Decision == DecisionReject
}
