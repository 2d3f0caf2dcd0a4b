package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/demystify-systems/edge-channel-suite-sdk-sub001/internal/convert"
	"github.com/demystify-systems/edge-channel-suite-sdk-sub001/internal/transform"
)

var transformRule string

var transformCmd = &cobra.Command{
	Use:   "transform --rule RULE VALUE...",
	Short: "Apply a rule string to values",
	Long: `Applies a transform rule to each value and prints one result per line.

Examples:
  edgectl transform --rule "strip + uppercase" " ab-1 "
  edgectl transform --rule "clean_numeric_value + round_decimal|2" '$1,234.567' 9.999`,
	Args: cobra.MinimumNArgs(1),
	RunE: runTransform,
}

func init() {
	rootCmd.AddCommand(transformCmd)
	transformCmd.Flags().StringVarP(&transformRule, "rule", "r", "", "transform rule, e.g. \"strip + uppercase\"")
	transformCmd.MarkFlagRequired("rule")
}

func runTransform(cmd *cobra.Command, args []string) error {
	// Compile once so a bad rule fails before any value is touched.
	prog, err := transform.DefaultEngine().CompileRule(transformRule)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	for i, arg := range args {
		v, err := prog.Run(arg)
		if err != nil {
			return fmt.Errorf("value %d (%q): %w", i, arg, err)
		}
		fmt.Fprintln(out, convert.ToString(v))
	}
	return nil
}
