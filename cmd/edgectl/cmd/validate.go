package cmd

import (
	"errors"
	"fmt"

	"github.com/goccy/go-json"
	"github.com/spf13/cobra"

	"github.com/demystify-systems/edge-channel-suite-sdk-sub001/internal/core"
	"github.com/demystify-systems/edge-channel-suite-sdk-sub001/internal/fileio"
	"github.com/demystify-systems/edge-channel-suite-sdk-sub001/internal/validation"
)

// errInvalidRows makes the process exit non-zero when rows fail validation.
var errInvalidRows = errors.New("rows failed validation")

var (
	validateRules  string
	validateInput  string
	validateFormat string
)

var validateCmd = &cobra.Command{
	Use:   "validate --rules RULES --input FILE",
	Short: "Check a file against field rules",
	Long: `Validates every row of a csv, tsv, json, ndjson, xml or xlsx file, local
or fetched over http(s), against a field rules file (yaml, toml or json)
and prints the report as JSON.

Exits non-zero when any row fails.

Examples:
  edgectl validate --rules rules.yaml --input products.csv
  edgectl validate --rules rules.toml --input feed.txt --format tsv`,
	Args: cobra.NoArgs,
	RunE: runValidate,
}

func init() {
	rootCmd.AddCommand(validateCmd)
	validateCmd.Flags().StringVar(&validateRules, "rules", "", "field rules file")
	validateCmd.Flags().StringVarP(&validateInput, "input", "i", "", "input file or http(s) URL")
	validateCmd.Flags().StringVar(&validateFormat, "format", "", "input format (default: from the file extension)")
	validateCmd.MarkFlagRequired("rules")
	validateCmd.MarkFlagRequired("input")
}

func runValidate(cmd *cobra.Command, args []string) error {
	rules, err := core.LoadRules(validateRules)
	if err != nil {
		return err
	}
	v, err := validation.NewValidator(rules)
	if err != nil {
		return err
	}

	src, err := openInput(validateInput, validateFormat)
	if err != nil {
		return err
	}
	rows, err := fileio.ReadAll(cmd.Context(), src)
	if err != nil {
		return fmt.Errorf("read %s: %w", validateInput, err)
	}

	report, summary := v.ValidateBatch(rows)
	if err := printJSON(cmd, map[string]any{"summary": summary, "report": report}); err != nil {
		return err
	}
	if summary.Invalid > 0 {
		return fmt.Errorf("%d of %d %w", summary.Invalid, summary.Total, errInvalidRows)
	}
	return nil
}

// openInput opens a row source from a path or an http(s) URL, taking the
// format from the flag or the extension.
func openInput(path, format string) (*fileio.Source, error) {
	var opts fileio.Options
	if format != "" {
		f, err := fileio.ParseFormat(format)
		if err != nil {
			return nil, err
		}
		opts.Format = f
	}
	if fileio.IsURL(path) {
		return fileio.URLSource(path, opts, fileio.Fetcher{})
	}
	return fileio.FileSource(path, opts)
}

func printJSON(cmd *cobra.Command, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(cmd.OutOrStdout(), string(data))
	return err
}
