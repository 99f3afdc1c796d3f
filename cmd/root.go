package cmd

import (
	"log/slog"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

type rootOptions struct {
	configPath string
	verbose    bool
}

func NewRootCmd() *cobra.Command {
	opts := &rootOptions{}

	cmd := &cobra.Command{
		Use:   "shelfwise",
		Short: "Personal book tracker with generated cover art",
		Long: `Shelfwise keeps track of the books you own and the books you want.

Every book added gets a cover image drawn by a generative model. The
collection is stored as a single snapshot in a file, Redis, or memory and can
be served over HTTP or managed from the command line.`,
		SilenceUsage: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			// Load .env file if present (ignore errors)
			_ = godotenv.Load()

			level := slog.LevelInfo
			if opts.verbose {
				level = slog.LevelDebug
			}
			slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))
		},
	}

	cmd.PersistentFlags().StringVar(&opts.configPath, "config", "", "Path to YAML config file (default ./shelfwise.yaml if present)")
	cmd.PersistentFlags().BoolVar(&opts.verbose, "verbose", false, "Verbose logging")

	// Add subcommands
	cmd.AddCommand(newServeCmd(opts))
	cmd.AddCommand(newBooksCmd(opts))

	return cmd
}
