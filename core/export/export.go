package export

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/siherrmann/briefings/helper"
	"github.com/siherrmann/briefings/model"
)

// DefaultDir is where export files are written when Options.Dir is empty.
const DefaultDir = "searches"

const separatorWidth = 80

// Options controls the layout and location of an export file.
type Options struct {
	Dir             string
	Name            string
	SeparatingLines int
	// SeparatingChar, if set, adds a line of 80 of these characters between results.
	SeparatingChar  string
	IncludeRejected bool
}

// Validate checks the options before any search work is done.
func (o Options) Validate() error {
	if fileName(o.Name) == "" {
		return model.NewValidationError("export file name cannot be empty")
	}
	if o.SeparatingLines < 0 {
		return model.NewValidationError("separating lines must be >= 0")
	}
	if o.SeparatingChar != "" {
		r, size := utf8.DecodeRuneInString(o.SeparatingChar)
		if size != len(o.SeparatingChar) {
			return model.NewValidationError("separating char must be a single character")
		}
		if unicode.IsSpace(r) {
			return model.NewValidationError("separating char cannot be whitespace")
		}
	}
	return nil
}

// Path returns the file the export is written to. Directories in Name are
// dropped and ".txt" is appended when missing.
func (o Options) Path() string {
	dir := o.Dir
	if dir == "" {
		dir = DefaultDir
	}
	return filepath.Join(dir, fileName(o.Name))
}

func fileName(name string) string {
	name = strings.TrimSpace(name)
	if name == "" {
		return ""
	}
	base := filepath.Base(name)
	if base == "." || base == string(filepath.Separator) {
		return ""
	}
	if !strings.HasSuffix(strings.ToLower(base), ".txt") {
		base += ".txt"
	}
	return base
}

// Select picks the results to export. Without verdicts everything is kept.
// With verdicts accepted results come first, rejected ones follow only when
// includeRejected is set. If nothing was accepted the rejected results are
// written when asked for, otherwise all results are written unfiltered.
func Select(results []model.SearchResult, includeRejected bool, logger *slog.Logger) []model.SearchResult {
	if logger == nil {
		logger = slog.Default()
	}

	judged := false
	var accepted, rejected []model.SearchResult
	for _, r := range results {
		if r.Verdict == nil {
			continue
		}
		judged = true
		switch *r.Verdict {
		case model.DecisionAccept:
			accepted = append(accepted, r)
		case model.DecisionReject:
			rejected = append(rejected, r)
		}
	}
	if !judged {
		return results
	}

	switch {
	case len(accepted) > 0:
		if includeRejected {
			return append(accepted, rejected...)
		}
		return accepted
	case len(rejected) > 0 && includeRejected:
		logger.Warn("Judge rejected every result, writing only rejected results")
		return rejected
	default:
		logger.Warn("Judge accepted nothing or gave invalid answers, writing unfiltered results")
		return results
	}
}

// Write renders the results into the file given by opts and returns its path.
func Write(query string, limit int, results []model.SearchResult, opts Options) (string, error) {
	if err := opts.Validate(); err != nil {
		return "", err
	}

	path := opts.Path()
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return "", helper.NewError("create export directory", err)
	}

	file, err := os.Create(path)
	if err != nil {
		return "", helper.NewError("create export file", err)
	}
	defer file.Close()

	if err := Render(file, query, limit, results, opts); err != nil {
		return "", helper.NewError("write export file", err)
	}
	if err := file.Close(); err != nil {
		return "", helper.NewError("close export file", err)
	}
	return path, nil
}

// Render writes the metadata header followed by one section per result.
func Render(w io.Writer, query string, limit int, results []model.SearchResult, opts Options) error {
	var sb strings.Builder

	sb.WriteString(header(query, limit, results))
	sb.WriteString("\n")

	sections := make([]string, len(results))
	for i, r := range results {
		sections[i] = section(r)
	}
	body := strings.Join(sections, separator(opts))
	if body != "" && !strings.HasSuffix(body, "\n") {
		body += "\n"
	}
	sb.WriteString(body)

	_, err := io.WriteString(w, sb.String())
	return err
}

func header(query string, limit int, results []model.SearchResult) string {
	maxScore, minScore := 0.0, 0.0
	documents := map[uuid.UUID]bool{}
	judged, valid, accepted, rejected := false, 0, 0, 0
	for i, r := range results {
		if i == 0 || r.Score > maxScore {
			maxScore = r.Score
		}
		if i == 0 || r.Score < minScore {
			minScore = r.Score
		}
		documents[r.DocumentID] = true

		if r.Verdict == nil {
			continue
		}
		judged = true
		switch *r.Verdict {
		case model.DecisionAccept:
			valid++
			accepted++
		case model.DecisionReject:
			valid++
			rejected++
		}
	}

	lines := []string{
		fmt.Sprintf("Query: %s", query),
		fmt.Sprintf("Limit: %d", limit),
		fmt.Sprintf("Max cosine similarity: %.4f", maxScore),
		fmt.Sprintf("Min cosine similarity: %.4f", minScore),
		fmt.Sprintf("Unique documents: %d", len(documents)),
	}
	if judged {
		lines = append(lines,
			fmt.Sprintf("LLM valid responses: %d/%d", valid, len(results)),
			fmt.Sprintf("LLM accepted (YES): %d", accepted),
			fmt.Sprintf("LLM rejected (NO): %d", rejected),
		)
	}
	return strings.Join(lines, "\n") + "\n"
}

func section(r model.SearchResult) string {
	published := "Unknown"
	if r.PublishDate != nil {
		published = r.PublishDate.Format("2006-01-02")
	}
	title := r.Title
	if title == "" {
		title = "Untitled"
	}

	lines := []string{
		fmt.Sprintf("Title: %s", title),
		fmt.Sprintf("Date published: %s", published),
		fmt.Sprintf("Document ID: %s", r.DocumentID),
		fmt.Sprintf("Document URL: %s", r.URL),
		fmt.Sprintf("Chunk index: %d", r.ChunkIndex),
		fmt.Sprintf("Cosine distance: %.6f", r.Distance),
	}
	if r.Verdict != nil {
		validResponse := *r.Verdict != model.DecisionInvalid
		lines = append(lines,
			fmt.Sprintf("LLM valid response: %t", validResponse),
			fmt.Sprintf("LLM relevance: %s", answer(*r.Verdict, r.JudgeRaw)),
		)
		if r.Rationale != nil && *r.Rationale != "" {
			lines = append(lines, fmt.Sprintf("LLM explanation: %s", *r.Rationale))
		}
	}
	lines = append(lines, "", strings.TrimSpace(r.ChunkText))
	return strings.TrimRight(strings.Join(lines, "\n"), "\n")
}

// answer prints the decision, or the judge's unreadable answer as given.
func answer(d model.Decision, raw *string) string {
	switch d {
	case model.DecisionAccept:
		return "YES"
	case model.DecisionReject:
		return "NO"
	}
	if raw != nil && strings.TrimSpace(*raw) != "" {
		return strings.Join(strings.Fields(*raw), " ")
	}
	return "N/A"
}

func separator(opts Options) string {
	var sb strings.Builder
	sb.WriteString("\n")
	sb.WriteString(strings.Repeat("\n", max(opts.SeparatingLines, 0)))
	if opts.SeparatingChar != "" {
		sb.WriteString(strings.Repeat(opts.SeparatingChar, separatorWidth))
		sb.WriteString("\n")
	}
	return sb.String()
}
