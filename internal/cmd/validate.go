package cmd

import (
	"encoding/json"
	"fmt"

	"github.com/Iron-Ham/forkrunner/internal/errors"
	"github.com/Iron-Ham/forkrunner/internal/plan"
	"github.com/spf13/cobra"
)

var validateCmd = &cobra.Command{
	Use:   "validate <plan-file>",
	Short: "Validate a test plan",
	Long: `Validate a test plan without running it.

This command checks:
  - Valid YAML with no unknown keys
  - At least one pool, with unique pool names
  - Every test case names a class and a method
  - Scripted outcomes are one of: pass, fail, run_failed`,
	Args:         cobra.ExactArgs(1),
	SilenceUsage: true,
	RunE:         runValidate,
}

var (
	validateJSON bool
)

func init() {
	validateCmd.Flags().BoolVar(&validateJSON, "json", false, "Output validation result as JSON")
	rootCmd.AddCommand(validateCmd)
}

// ValidationOutput represents the JSON output format for validation results.
type ValidationOutput struct {
	Valid    bool   `json:"valid"`
	FilePath string `json:"file_path"`
	Pools    int    `json:"pools,omitempty"`
	Tests    int    `json:"tests,omitempty"`
	Field    string `json:"field,omitempty"`
	Error    string `json:"error,omitempty"`
}

func runValidate(cmd *cobra.Command, args []string) error {
	out := ValidationOutput{FilePath: args[0]}

	p, err := plan.Load(args[0])
	if err != nil {
		out.Error = err.Error()
		var verr *errors.ValidationError
		if errors.As(err, &verr) {
			out.Field = verr.Field
		}
	} else {
		out.Valid = true
		out.Pools = len(p.Pools)
		out.Tests = p.TestCount()
	}

	if validateJSON {
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		if encErr := enc.Encode(out); encErr != nil {
			return fmt.Errorf("failed to encode output: %w", encErr)
		}
	} else if out.Valid {
		fmt.Fprintf(cmd.OutOrStdout(), "%s: valid (%d pools, %d tests)\n", out.FilePath, out.Pools, out.Tests)
	}

	return err
}
