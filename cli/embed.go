package cli

import (
	"fmt"

	"github.com/google/uuid"
	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"
)

var (
	embedLimit         int
	embedResetDocument string
	embedResetAll      bool
)

var embedCmd = &cobra.Command{
	Use:   "embed",
	Short: "Generate embeddings for pending chunks",
	Long: `Embeds up to --limit chunks that have no embedding yet, in batches.
--reset-document and --reset-all clear existing embeddings first so they are
generated again.`,
	Args: cobra.NoArgs,
	RunE: runEmbed,
}

func init() {
	embedCmd.Flags().IntVar(&embedLimit, "limit", 200, "maximum number of chunks to embed in this run")
	embedCmd.Flags().StringVar(&embedResetDocument, "reset-document", "", "clear the embeddings of this document first")
	embedCmd.Flags().BoolVar(&embedResetAll, "reset-all", false, "clear all embeddings first")
	embedCmd.MarkFlagsMutuallyExclusive("reset-document", "reset-all")
	rootCmd.AddCommand(embedCmd)
}

func validateEmbedFlags() (*uuid.UUID, error) {
	if embedLimit < 1 {
		return nil, fmt.Errorf("--limit must be >= 1")
	}
	if embedResetDocument == "" {
		return nil, nil
	}
	rid, err := uuid.Parse(embedResetDocument)
	if err != nil {
		return nil, fmt.Errorf("--reset-document must be a document id: %w", err)
	}
	return &rid, nil
}

func runEmbed(cmd *cobra.Command, args []string) error {
	rid, err := validateEmbedFlags()
	if err != nil {
		return err
	}

	core, err := openCore()
	if err != nil {
		return err
	}
	defer core.Close()

	out := cmd.OutOrStdout()
	if rid != nil || embedResetAll {
		n, err := core.ResetEmbeddings(cmd.Context(), rid)
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "Cleared %d embeddings\n", n)
	}

	pending, err := core.CountPendingEmbeddings(cmd.Context())
	if err != nil {
		return err
	}
	total := min(pending, embedLimit)
	if total == 0 {
		fmt.Fprintln(out, "No chunks pending embedding")
		return nil
	}

	bar := progressbar.NewOptions(total,
		progressbar.OptionSetWriter(cmd.ErrOrStderr()),
		progressbar.OptionEnableColorCodes(true),
		progressbar.OptionSetWidth(40),
		progressbar.OptionShowCount(),
		progressbar.OptionSetDescription("[cyan]Embedding[reset]"),
		progressbar.OptionClearOnFinish(),
	)
	stats, err := core.EmbedPending(cmd.Context(), embedLimit, func(n int) { _ = bar.Add(n) })
	_ = bar.Finish()

	fmt.Fprintf(out, "Embedded %d of %d selected chunks in %d batches\n", stats.Embedded, stats.Selected, stats.Batches)
	return err
}
