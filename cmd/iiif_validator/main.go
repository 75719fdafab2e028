// Package main provides the iiif_validator command: it validates a IIIF Presentation
// manifest read from standard input, or serves the validation HTTP API.
package main

import (
	"context"
	"fmt"
	"os"

	"github.com/jonathan/iiif-validator/internal/config"
	"github.com/jonathan/iiif-validator/internal/logging"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "iiif_validator",
		Short: "IIIF Presentation manifest validator",
		Long: `Reads a IIIF Presentation 2.1 manifest from standard input and prints
whether it is valid, the warnings found, and the error that stopped it.`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE:          runValidate,
	}
	root.AddCommand(newServeCmd())
	return root
}

func main() {
	// Load .env file if it exists
	_ = godotenv.Load()

	if err := newRootCmd().ExecuteContext(context.Background()); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// setup loads configuration and builds the logger. Logs go to the command's stderr.
func setup(cmd *cobra.Command) (*config.Config, *logging.Logger, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load configuration: %w", err)
	}
	log := logging.New(logging.Options{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
		Output: cmd.ErrOrStderr(),
	})
	return cfg, log, nil
}
