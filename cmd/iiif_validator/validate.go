package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"unicode/utf8"

	"github.com/jonathan/iiif-validator/internal/types"
	"github.com/jonathan/iiif-validator/internal/validator"
	"github.com/spf13/cobra"
)

func runValidate(cmd *cobra.Command, _ []string) error {
	cfg, log, err := setup(cmd)
	if err != nil {
		return err
	}

	data, err := io.ReadAll(cmd.InOrStdin())
	if err != nil {
		return fmt.Errorf("failed to read manifest from stdin: %w", err)
	}
	if !utf8.Valid(data) {
		return errors.New("manifest on stdin is not valid UTF-8")
	}

	checker, err := validator.NewFromConfig(cfg, log)
	if err != nil {
		return err
	}

	out, err := checker.CheckJSON(string(data), validator.DefaultVersion, nil, nil)
	if err != nil {
		return fmt.Errorf("validation failed: %w", err)
	}

	var result types.CheckResult
	if err := json.Unmarshal(out, &result); err != nil {
		return fmt.Errorf("failed to decode check result: %w", err)
	}

	return writeReport(cmd.OutOrStdout(), &result)
}

// writeReport prints the plain-text report. Warnings already end in a newline.
func writeReport(w io.Writer, result *types.CheckResult) error {
	if _, err := fmt.Fprintf(w, "OKAY: %d\n\n", result.Okay); err != nil {
		return err
	}
	if _, err := io.WriteString(w, "WARNINGS:\n"); err != nil {
		return err
	}
	for _, warning := range result.Warnings {
		if _, err := io.WriteString(w, warning); err != nil {
			return err
		}
	}
	_, err := fmt.Fprintf(w, "\nERROR:\n%s\n", result.Error)
	return err
}
