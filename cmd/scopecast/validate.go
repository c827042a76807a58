package main

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/builditusa/scopecast/internal/schema"
)

var validators = map[string]func(v any, projects []string) schema.Result{
	"understanding": func(v any, _ []string) schema.Result { return schema.ValidateUnderstandingUpdate(v) },
	"estimate":      func(v any, _ []string) schema.Result { return schema.ValidateCostEstimate(v) },
	"analysis":      schema.ValidateCrossProjectAnalysis,
}

func newValidateCmd() *cobra.Command {
	var projects []string
	cmd := &cobra.Command{
		Use:   "validate <understanding|estimate|analysis> <file|->",
		Short: "Validate a tool payload from a JSON file",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			validate, ok := validators[args[0]]
			if !ok {
				return fmt.Errorf("unknown kind %q: want understanding, estimate or analysis", args[0])
			}

			raw, err := readInput(cmd.InOrStdin(), args[1])
			if err != nil {
				return err
			}
			v, err := schema.Decode(raw)
			if err != nil {
				return err
			}

			r := validate(v, projects)
			if !r.Valid {
				return fmt.Errorf("invalid: %s: %s", r.Err.Field, r.Error())
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), "valid")
			return err
		},
	}
	cmd.Flags().StringSliceVar(&projects, "project", nil, "allowed project id for analysis payloads (repeatable)")
	return cmd
}

func readInput(stdin io.Reader, path string) ([]byte, error) {
	if path == "-" {
		return io.ReadAll(stdin)
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	return b, nil
}
