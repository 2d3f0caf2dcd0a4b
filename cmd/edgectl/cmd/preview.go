package cmd

import (
	"github.com/spf13/cobra"

	"github.com/demystify-systems/edge-channel-suite-sdk-sub001/internal/core"
)

var previewMaxRows int

var previewCmd = &cobra.Command{
	Use:   "preview --template TEMPLATE --input FILE",
	Short: "Dry-run a template over a file",
	Long: `Runs the first rows of the input through a template without creating a job.
Reports row outcomes, product ids repeated in the file and, with a sqlite
store, how each product differs from its cached output.

Examples:
  edgectl preview --template amazon_products --input products.csv
  edgectl preview --template amazon_products --input products.csv --db-driver sqlite --tenant acme`,
	Args: cobra.NoArgs,
	RunE: runPreview,
}

var rollbackCmd = &cobra.Command{
	Use:   "rollback JOB_ID",
	Short: "Delete the cached rows a finished job wrote",
	Args:  cobra.ExactArgs(1),
	RunE:  runRollback,
}

func init() {
	rootCmd.AddCommand(previewCmd, rollbackCmd)
	addPipelineFlags(previewCmd)
	previewCmd.Flags().IntVar(&previewMaxRows, "max-rows", core.DefaultPreviewRows, "rows to read from the input")
	addStoreFlags(rollbackCmd)
}

func runPreview(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	templateID, err := resolveTemplate()
	if err != nil {
		return err
	}
	src, err := openInput(pipeInput, pipeFormat)
	if err != nil {
		return err
	}

	svc, closeStore, err := newService(ctx, "")
	if err != nil {
		return err
	}
	defer closeStore()

	resp, err := svc.Preview(ctx, core.PreviewRequest{
		TemplateID: templateID,
		TenantID:   pipeTenant,
		Source:     src,
		MaxRows:    previewMaxRows,
	})
	if err != nil {
		return userError(err)
	}
	return printJSON(cmd, resp)
}

func runRollback(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	svc, closeStore, err := newService(ctx, "")
	if err != nil {
		return err
	}
	defer closeStore()

	res, err := svc.RollbackJob(ctx, args[0])
	if err != nil {
		return userError(err)
	}
	return printJSON(cmd, res)
}
