package cli

import (
	"fmt"

	"github.com/google/uuid"
	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"
)

var (
	chunkLimit    int
	chunkWorkers  int
	chunkDocument string
	chunkForce    bool
)

var chunkCmd = &cobra.Command{
	Use:   "chunk",
	Short: "Split scraped transcripts into overlapping token windows",
	Long: `Chunks up to --limit scraped documents that have no chunks yet.
With --document and --force a single document is chunked again, which also
clears the embeddings of its old chunks.`,
	Args: cobra.NoArgs,
	RunE: runChunk,
}

func init() {
	chunkCmd.Flags().IntVar(&chunkLimit, "limit", 25, "maximum number of documents to chunk in this run")
	chunkCmd.Flags().IntVar(&chunkWorkers, "workers", 4, "documents chunked in parallel")
	chunkCmd.Flags().StringVar(&chunkDocument, "document", "", "id of a single document to chunk again")
	chunkCmd.Flags().BoolVar(&chunkForce, "force", false, "required with --document, replaces existing chunks")
	rootCmd.AddCommand(chunkCmd)
}

func validateChunkFlags() (*uuid.UUID, error) {
	if chunkDocument != "" {
		if !chunkForce {
			return nil, fmt.Errorf("--document replaces existing chunks, add --force to confirm")
		}
		rid, err := uuid.Parse(chunkDocument)
		if err != nil {
			return nil, fmt.Errorf("--document must be a document id: %w", err)
		}
		return &rid, nil
	}
	if chunkLimit < 1 {
		return nil, fmt.Errorf("--limit must be >= 1")
	}
	if chunkWorkers < 1 {
		return nil, fmt.Errorf("--workers must be >= 1")
	}
	return nil, nil
}

func runChunk(cmd *cobra.Command, args []string) error {
	rid, err := validateChunkFlags()
	if err != nil {
		return err
	}

	core, err := openCore()
	if err != nil {
		return err
	}
	defer core.Close()

	out := cmd.OutOrStdout()
	if rid != nil {
		n, err := core.Rechunk(cmd.Context(), *rid)
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "Document %s now has %d chunks\n", rid, n)
		return nil
	}

	bar := progressbar.NewOptions(chunkLimit,
		progressbar.OptionSetWriter(cmd.ErrOrStderr()),
		progressbar.OptionEnableColorCodes(true),
		progressbar.OptionSetWidth(40),
		progressbar.OptionShowCount(),
		progressbar.OptionSetDescription("[cyan]Chunking[reset]"),
		progressbar.OptionClearOnFinish(),
	)
	stats, err := core.ChunkPending(cmd.Context(), chunkLimit, chunkWorkers, func() { _ = bar.Add(1) })
	_ = bar.Finish()
	if err != nil {
		return err
	}

	fmt.Fprintf(out, "Chunked %d documents into %d chunks (%d without text, %d failed)\n", stats.Documents, stats.Chunks, stats.Skipped, stats.Failed)
	if stats.Failed > 0 {
		return fmt.Errorf("%d documents failed to chunk", stats.Failed)
	}
	return nil
}
