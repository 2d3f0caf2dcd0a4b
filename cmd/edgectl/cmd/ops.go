package cmd

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/demystify-systems/edge-channel-suite-sdk-sub001/internal/transform"
)

var opsCategory string

var opsCmd = &cobra.Command{
	Use:   "ops",
	Short: "List transform operations",
	Long: `Lists the registered transform operations with their signatures.

Examples:
  edgectl ops                     # all operations
  edgectl ops --category numeric  # one category`,
	Args: cobra.NoArgs,
	RunE: runOps,
}

func init() {
	rootCmd.AddCommand(opsCmd)
	opsCmd.Flags().StringVar(&opsCategory, "category", "", "only list this category (text, numeric, date, list, conditional, utility)")
}

func runOps(cmd *cobra.Command, args []string) error {
	reg := transform.Default()

	ops := reg.Operations()
	if opsCategory != "" {
		ops = reg.ByCategory(transform.Category(strings.ToLower(opsCategory)))
		if len(ops) == 0 {
			return fmt.Errorf("no operations in category %q (have %v)", opsCategory, reg.Categories())
		}
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "%-28s %-12s %s\n", "OPERATION", "CATEGORY", "SIGNATURE")
	fmt.Fprintln(out, strings.Repeat("-", 80))
	for _, op := range ops {
		fmt.Fprintf(out, "%-28s %-12s %s\n", op.Name, op.Category, transform.Describe(op))
	}
	fmt.Fprintf(out, "\n%d operations\n", len(ops))
	return nil
}
