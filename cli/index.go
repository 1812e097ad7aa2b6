package cli

import (
	"fmt"

	"github.com/siherrmann/briefings/database"
	"github.com/spf13/cobra"
)

var (
	indexType           string
	indexM              int
	indexEFConstruction int
	indexLists          int
)

var indexCmd = &cobra.Command{
	Use:   "index",
	Short: "Rebuild the vector index on chunk embeddings",
	Args:  cobra.NoArgs,
	RunE:  runIndex,
}

func init() {
	indexCmd.Flags().StringVar(&indexType, "type", database.IndexTypeHNSW, "hnsw or ivfflat")
	indexCmd.Flags().IntVar(&indexM, "m", 0, "hnsw: max connections per layer (default 16)")
	indexCmd.Flags().IntVar(&indexEFConstruction, "ef-construction", 0, "hnsw: candidate list size while building (default 64)")
	indexCmd.Flags().IntVar(&indexLists, "lists", 0, "ivfflat: number of lists (default 100)")
	rootCmd.AddCommand(indexCmd)
}

func runIndex(cmd *cobra.Command, args []string) error {
	if indexType != database.IndexTypeHNSW && indexType != database.IndexTypeIVFFlat {
		return fmt.Errorf("--type must be %s or %s", database.IndexTypeHNSW, database.IndexTypeIVFFlat)
	}

	core, err := openCore()
	if err != nil {
		return err
	}
	defer core.Close()

	err = core.ChangeIndexType(cmd.Context(), indexType, database.IndexOptions{
		M:              indexM,
		EFConstruction: indexEFConstruction,
		Lists:          indexLists,
	})
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Rebuilt embedding index as %s\n", indexType)
	return nil
}
