package cli

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/fatih/color"
	"github.com/siherrmann/briefings/core/export"
	"github.com/siherrmann/briefings/model"
	"github.com/spf13/cobra"
)

const snippetLength = 280

var (
	searchLimit           int
	searchAdvanced        bool
	searchAdmins          []string
	searchSort            string
	searchToFile          string
	searchIncludeRejected bool
	searchSeparatingLines int
	searchSeparatingChar  string
)

var searchCmd = &cobra.Command{
	Use:   "search [query]",
	Short: "Search the transcripts by meaning",
	Long: `Embeds the query and returns the closest transcript chunks. With --advanced
every result is checked by the relevance judge. With --to-file the full chunk
texts are written to searches/NAME.txt, accepted results first.`,
	Args: cobra.ExactArgs(1),
	RunE: runSearch,
}

func init() {
	searchCmd.Flags().IntVarP(&searchLimit, "limit", "n", 5, "number of chunks to return")
	searchCmd.Flags().BoolVar(&searchAdvanced, "advanced", false, "filter the matches with the relevance judge")
	searchCmd.Flags().StringSliceVar(&searchAdmins, "admin", nil, "only search transcripts of these administrations")
	searchCmd.Flags().StringVar(&searchSort, "sort", string(model.SortRelevance), "relevance, date_desc or date_asc")
	searchCmd.Flags().StringVar(&searchToFile, "to-file", "", "write full chunk texts to searches/NAME.txt")
	searchCmd.Flags().BoolVar(&searchIncludeRejected, "include-rejected", false, "with --advanced and --to-file, append rejected chunks after accepted ones")
	searchCmd.Flags().IntVar(&searchSeparatingLines, "separating-lines", 2, "blank lines between chunks in the output file")
	searchCmd.Flags().StringVar(&searchSeparatingChar, "separating-char", "", "single non-whitespace character for a separator line")
	rootCmd.AddCommand(searchCmd)
}

func searchExportOptions() export.Options {
	return export.Options{
		Name:            searchToFile,
		SeparatingLines: searchSeparatingLines,
		SeparatingChar:  searchSeparatingChar,
		IncludeRejected: searchIncludeRejected,
	}
}

// validateSearchFlags runs before anything is opened or embedded.
func validateSearchFlags(opts export.Options) error {
	if searchLimit < 1 {
		return fmt.Errorf("--limit must be >= 1")
	}
	if opts.SeparatingLines < 0 {
		return fmt.Errorf("--separating-lines must be >= 0")
	}
	if opts.SeparatingChar != "" {
		if utf8.RuneCountInString(opts.SeparatingChar) != 1 {
			return fmt.Errorf("--separating-char must be a single character")
		}
		if strings.TrimSpace(opts.SeparatingChar) == "" {
			return fmt.Errorf("--separating-char cannot be whitespace")
		}
	}
	if opts.Name != "" {
		return opts.Validate()
	}
	return nil
}

func runSearch(cmd *cobra.Command, args []string) error {
	opts := searchExportOptions()
	if err := validateSearchFlags(opts); err != nil {
		return err
	}

	core, err := openCore()
	if err != nil {
		return err
	}
	defer core.Close()

	mode := model.ModeSimple
	if searchAdvanced {
		mode = model.ModeAdvanced
	}
	req := model.SearchRequest{
		Query:           args[0],
		Mode:            mode,
		AdminFilter:     searchAdmins,
		Sort:            model.Sort(searchSort),
		PageSize:        core.Config().PageSize,
		IncludeRejected: searchIncludeRejected,
	}

	response, err := core.SearchTop(cmd.Context(), req, searchLimit)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if len(response.Results) == 0 {
		fmt.Fprintf(out, "No matches found (%s search)\n", response.Mode)
		return nil
	}
	if response.Metadata.Degraded {
		fmt.Fprintln(out, color.YellowString("Relevance judge failed, showing similarity results only."))
	}

	for i, r := range response.Results {
		fmt.Fprintln(out, formatResult(r, i+1))
		fmt.Fprintln(out)
	}

	if opts.Name == "" {
		return nil
	}

	selected := export.Select(response.Results, opts.IncludeRejected, logger)
	path, err := export.Write(response.Query, searchLimit, selected, opts)
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "Wrote %d results to %s\n", len(selected), path)
	return nil
}

// formatResult renders one result as a short block for the terminal.
func formatResult(r model.SearchResult, index int) string {
	meta := []string{}
	if r.PublishDate != nil {
		meta = append(meta, r.PublishDate.Format("2006-01-02"))
	}
	meta = append(meta, r.Admin)

	snippet := strings.ReplaceAll(strings.TrimSpace(r.ChunkText), "\n", " ")
	if utf8.RuneCountInString(snippet) > snippetLength {
		snippet = strings.TrimRight(string([]rune(snippet)[:snippetLength-3]), " ") + "..."
	}

	lines := []string{
		fmt.Sprintf("%s (%s)", color.New(color.Bold).Sprintf("%d. %s", index, r.Title), strings.Join(meta, ", ")),
		fmt.Sprintf("   score=%.4f chunk=%d url=%s", r.Score, r.ChunkIndex, r.URL),
		"   " + snippet,
	}

	if r.Verdict != nil {
		var line string
		switch *r.Verdict {
		case model.DecisionAccept:
			line = "   LLM relevance: " + color.GreenString("YES")
		case model.DecisionReject:
			line = "   LLM relevance: " + color.RedString("NO")
		default:
			line = "   LLM response invalid"
		}
		if r.Rationale != nil && *r.Rationale != "" {
			line += fmt.Sprintf(" (%s)", *r.Rationale)
		}
		lines = append(lines, line)
	}
	return strings.Join(lines, "\n")
}
