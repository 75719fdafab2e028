package main

import (
	"fmt"

	"github.com/jonathan/iiif-validator/internal/server"
	"github.com/jonathan/iiif-validator/internal/server/ratelimit"
	"github.com/jonathan/iiif-validator/internal/validator"
	"github.com/spf13/cobra"
)

func newServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the validation HTTP service",
		Long:  `Start an HTTP server that validates manifests fetched by URL (GET /validate) or posted in the request body (POST /validate).`,
		Args:  cobra.NoArgs,
		RunE:  runServe,
	}
	cmd.Flags().Int("port", 0, "Port to listen on (overrides server.port)")
	return cmd
}

func runServe(cmd *cobra.Command, _ []string) error {
	cfg, log, err := setup(cmd)
	if err != nil {
		return err
	}

	if cmd.Flags().Changed("port") {
		port, _ := cmd.Flags().GetInt("port")
		cfg.Server.Port = port
		if err := cfg.Validate(); err != nil {
			return err
		}
	}

	checker, err := validator.NewFromConfig(cfg, log)
	if err != nil {
		return fmt.Errorf("failed to create validator: %w", err)
	}

	srv := server.New(server.Config{
		Port:           cfg.Server.Port,
		DefaultVersion: cfg.Server.DefaultVersion,
		RateLimit:      ratelimit.FromConfig(cfg.RateLimit),
	}, checker, log)

	return srv.Start(cmd.Context())
}
