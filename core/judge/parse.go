package judge

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/siherrmann/briefings/model"
)

var (
	errEmptyResponse = errors.New("empty response from model")
	errCountMismatch = errors.New("answer count does not match chunk count")
)

// parseVerdicts turns the model output into exactly expected verdicts. Any
// structural problem fails the whole batch, single entries that are not
// YES or NO become invalid verdicts.
func parseVerdicts(text string, expected int) ([]model.Verdict, error) {
	cleaned := stripCodeFence(text)
	if cleaned == "" {
		return nil, errEmptyResponse
	}

	var payload any
	if err := json.Unmarshal([]byte(cleaned), &payload); err != nil {
		if repairErr := json.Unmarshal([]byte(repairJSON(cleaned)), &payload); repairErr != nil {
			return nil, fmt.Errorf("unparseable judge response: %w", err)
		}
	}

	items := unwrapAnswers(payload)
	if len(items) != expected {
		return nil, fmt.Errorf("%w: got %d, want %d", errCountMismatch, len(items), expected)
	}

	verdicts := make([]model.Verdict, len(items))
	for i, item := range items {
		verdicts[i] = verdictFrom(item)
	}
	return verdicts, nil
}

// stripCodeFence removes a surrounding Markdown code fence and its language tag.
func stripCodeFence(text string) string {
	stripped := strings.TrimSpace(text)
	if !strings.HasPrefix(stripped, "```") {
		return stripped
	}

	lines := strings.Split(stripped, "\n")
	if len(lines) >= 2 {
		lines = lines[1:]
	} else {
		lines[0] = strings.TrimPrefix(lines[0], "```")
	}
	if last := len(lines) - 1; last >= 0 && strings.HasPrefix(strings.TrimSpace(lines[last]), "```") {
		lines = lines[:last]
	}
	return strings.TrimSpace(strings.Join(lines, "\n"))
}

func unwrapAnswers(payload any) []any {
	switch p := payload.(type) {
	case []any:
		return p
	case map[string]any:
		if answers, ok := p["answers"].([]any); ok {
			return answers
		}
		if results, ok := p["results"].([]any); ok {
			return results
		}
		if _, ok := p["answer"]; ok {
			return []any{p}
		}
		if _, ok := p["decision"]; ok {
			return []any{p}
		}
		return nil
	case string:
		return []any{p}
	default:
		return nil
	}
}

func verdictFrom(item any) model.Verdict {
	var answer, explanation string
	switch v := item.(type) {
	case string:
		answer = v
	case map[string]any:
		answer = firstString(v, "answer", "decision")
		explanation = strings.TrimSpace(firstString(v, "explanation", "reason"))
	default:
		if item != nil {
			answer = fmt.Sprint(item)
		}
	}

	answer = strings.TrimSpace(answer)
	switch strings.ToUpper(answer) {
	case "YES":
		return model.Verdict{Decision: model.DecisionAccept, Rationale: explanation, Valid: true, Raw: "YES"}
	case "NO":
		return model.Verdict{Decision: model.DecisionReject, Rationale: explanation, Valid: true, Raw: "NO"}
	}
	return model.InvalidVerdict(answer, explanation)
}

func firstString(m map[string]any, keys ...string) string {
	for _, key := range keys {
		switch v := m[key].(type) {
		case nil:
			continue
		case string:
			if v != "" {
				return v
			}
		default:
			return fmt.Sprint(v)
		}
	}
	return ""
}

// repairJSON quotes object keys that lost their opening quote, as in
// `{answer":"YES"}`. Other input is returned unchanged.
func repairJSON(s string) string {
	in := []rune(s)
	out := make([]rune, 0, len(in)+16)

	i := 0
	for i < len(in) {
		ch := in[i]
		out = append(out, ch)
		i++
		if ch != '{' && ch != ',' {
			continue
		}

		for i < len(in) && (in[i] == ' ' || in[i] == '\n' || in[i] == '\t' || in[i] == '\r') {
			out = append(out, in[i])
			i++
		}
		if i >= len(in) || !isKeyRune(in[i]) {
			continue
		}

		keyStart := i
		for i < len(in) && isKeyRune(in[i]) {
			i++
		}
		if i+1 < len(in) && in[i] == '"' && in[i+1] == ':' {
			out = append(out, '"')
		}
		out = append(out, in[keyStart:i]...)
	}

	return string(out)
}

func isKeyRune(r rune) bool {
	return (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || r == '_'
}
