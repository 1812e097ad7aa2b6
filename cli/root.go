package cli

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/fatih/color"
	"github.com/siherrmann/briefings"
	"github.com/siherrmann/briefings/helper"
	"github.com/siherrmann/briefings/model"
	"github.com/spf13/cobra"
)

// ExitTempFail is returned for failures worth retrying later (EX_TEMPFAIL).
const ExitTempFail = 75

var (
	cfgFile string
	cfg     *model.Config
	logger  *slog.Logger
)

var rootCmd = &cobra.Command{
	Use:   "briefings",
	Short: "Semantic search over press briefing transcripts",
	Long: `briefings chunks scraped transcripts, embeds the chunks and searches them
by meaning, optionally re-ranked by an LLM relevance judge.

Example usage:
  briefings chunk --limit 100          # Chunk documents without chunks
  briefings embed --limit 5000         # Embed pending chunks
  briefings search "Ukraine" -n 10     # Search the corpus
  briefings serve --addr :8080         # Serve the JSON API`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		cfg, err = model.LoadConfig(cfgFile)
		if err != nil {
			return fmt.Errorf("failed to load config: %w", err)
		}
		logger = helper.NewLogger(os.Stderr, cfg.LogLevel)
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "briefings.yaml", "config file")
}

// Execute runs the command line and returns the process exit code.
func Execute() int {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	err := rootCmd.ExecuteContext(ctx)
	if err == nil {
		return 0
	}

	fmt.Fprintln(os.Stderr, color.RedString("Error:"), userMessage(err))
	return exitCode(err)
}

// exitCode maps an error to the process exit code. Transient failures get
// ExitTempFail so a scheduler can retry the run.
func exitCode(err error) int {
	switch {
	case err == nil:
		return 0
	case model.IsTransient(err), errors.Is(err, context.DeadlineExceeded):
		return ExitTempFail
	default:
		return 1
	}
}

// userMessage shows the client message for classified errors and the full
// error for everything raised by the command line itself.
func userMessage(err error) string {
	if model.KindOf(err) == "" {
		return err.Error()
	}
	msg := model.ClientMessage(err)
	if model.IsTransient(err) {
		msg += " (temporary failure, retry later)"
	}
	return msg
}

// openCore builds the core from the loaded config and the DB_* environment.
func openCore() (*briefings.Briefings, error) {
	dbConfig, err := helper.NewDatabaseConfiguration()
	if err != nil {
		return nil, err
	}
	return briefings.New(cfg, dbConfig, briefings.WithLogger(logger))
}
