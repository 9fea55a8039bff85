package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/brennhill/macrorun/internal/macro"
)

func newValidateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "validate <macro-file>",
		Short: "Parse and validate a macro file without running it",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return validateMacroFile(args[0])
		},
	}
}

func validateMacroFile(path string) error {
	text, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("reading macro file: %w", err)
	}
	pm := macro.Parse(string(text), true)
	if len(pm.Errors) == 0 {
		fmt.Printf("%s: valid (%d commands, %d variables)\n", path, len(pm.Commands), len(pm.Variables))
		return nil
	}
	for _, verr := range pm.Errors {
		fmt.Fprintf(os.Stderr, "line %d: %s\n", verr.LineNumber, verr.Message)
	}
	return fmt.Errorf("%s: %d validation error(s)", path, len(pm.Errors))
}
