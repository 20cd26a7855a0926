package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/Nitefawkes/TenzikCore/capsule"
)

var validateCmd = &cobra.Command{
	Use:   "validate <capsule.wasm>",
	Short: "Check a capsule without executing it",
	Long: `Statically validate a capsule: size ceiling, binary shape, the
required run and memory exports, and the import allowlist derived
from the granted capabilities. Nothing is instantiated.

Exits 1 when the capsule is invalid.`,
	Args: cobra.ExactArgs(1),
	RunE: runValidate,
}

func init() {
	rootCmd.AddCommand(validateCmd)
}

func runValidate(cmd *cobra.Command, args []string) error {
	data, err := os.ReadFile(args[0])
	if err != nil {
		return fmt.Errorf("read capsule: %w", err)
	}

	limits, _, err := resolveLimits(cmd)
	if err != nil {
		return err
	}

	validator := capsule.NewValidator(limits.MaxModuleBytes, limits.Grant())
	result, vErr := validator.Validate(data)

	verdict := styled(okStyle, "valid")
	if !result.Valid {
		verdict = styled(failStyle, "invalid")
	}
	fmt.Printf("%s: %s (%.1f KB of %.1f KB)\n", args[0], verdict, result.SizeKB, validator.MaxSizeKB())

	if len(result.Exports) > 0 {
		fmt.Printf("  %s %s\n", styled(labelStyle, "exports"), strings.Join(result.Exports, ", "))
	}
	if len(result.Imports) > 0 {
		fmt.Printf("  %s %s\n", styled(labelStyle, "imports"), strings.Join(result.Imports, ", "))
	}
	for _, w := range result.Warnings {
		fmt.Printf("  %s %s\n", styled(warnStyle, "warning"), w)
	}
	for _, e := range result.Errors {
		fmt.Printf("  %s %s\n", styled(failStyle, "error"), e)
	}

	if vErr != nil {
		return fmt.Errorf("capsule invalid")
	}
	return nil
}
