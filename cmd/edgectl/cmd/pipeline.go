package cmd

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/demystify-systems/edge-channel-suite-sdk-sub001/internal/core"
	"github.com/demystify-systems/edge-channel-suite-sdk-sub001/internal/fileio"
	"github.com/demystify-systems/edge-channel-suite-sdk-sub001/internal/store"
)

// Flags shared by the pipeline commands.
var (
	pipeTemplate    string
	pipeTemplateDir string
	pipeInput       string
	pipeFormat      string
	pipeTenant      string
	pipePolicy      string
	pipeDBDriver    string
	pipeDBPath      string
)

var (
	exportFormats        string
	exportOut            string
	exportIncludeInvalid bool
)

var importCmd = &cobra.Command{
	Use:   "import --template TEMPLATE --input FILE",
	Short: "Run a template import over a file",
	Long: `Maps, transforms and validates every row of the input through a template
and records the job and per-row outcomes in the store.

TEMPLATE is a registered template id (loaded from --templates) or the path
of a template file.

Examples:
  edgectl import --template amazon_products --input products.csv
  edgectl import --template ./templates/amazon.yaml --input feed.json --db-driver sqlite`,
	Args: cobra.NoArgs,
	RunE: runImport,
}

var exportCmd = &cobra.Command{
	Use:   "export --template TEMPLATE --input FILE --out DIR",
	Short: "Build channel files from a file through a template",
	Long: `Transforms and validates the input rows through a template and writes one
file per requested format into DIR/<job id>/.

Examples:
  edgectl export --template amazon_products --input products.csv --format csv,json --out ./out
  edgectl export --template ./ebay.toml --input rows.ndjson --format xml --out ./out --include-invalid`,
	Args: cobra.NoArgs,
	RunE: runExport,
}

func init() {
	rootCmd.AddCommand(importCmd, exportCmd)

	addPipelineFlags(importCmd)
	addPipelineFlags(exportCmd)

	exportCmd.Flags().StringVar(&exportFormats, "format", "csv", "comma separated output formats (csv, tsv, json, ndjson, xml, xlsx)")
	exportCmd.Flags().StringVarP(&exportOut, "out", "o", ".", "output directory")
	exportCmd.Flags().BoolVar(&exportIncludeInvalid, "include-invalid", false, "also export rows that failed validation")
}

// addPipelineFlags registers the template, input and store flags.
func addPipelineFlags(c *cobra.Command) {
	f := c.Flags()
	f.StringVarP(&pipeTemplate, "template", "t", "", "template id or template file")
	f.StringVar(&pipeTemplateDir, "templates", envOr("TEMPLATE_DIR", "templates"), "template directory")
	f.StringVarP(&pipeInput, "input", "i", "", "input file or http(s) URL")
	f.StringVar(&pipeFormat, "input-format", "", "input format (default: from the file extension)")
	f.StringVar(&pipeTenant, "tenant", "", "tenant id recorded on the job")
	f.StringVar(&pipePolicy, "on-error", envOr("PIPELINE_ON_TRANSFORM_ERROR", string(core.PolicyFallback)), "transform error policy (fallback, reject)")
	addStoreFlags(c)
	c.MarkFlagRequired("template")
	c.MarkFlagRequired("input")
}

// addStoreFlags registers the store backend flags.
func addStoreFlags(c *cobra.Command) {
	c.Flags().StringVar(&pipeDBDriver, "db-driver", "memory", "store backend (memory, sqlite)")
	c.Flags().StringVar(&pipeDBPath, "db-path", envOr("SQLITE_PATH", "edge.db"), "sqlite database file")
}

// resolveTemplate loads the template directory and returns the id to run.
// A template given as a file path is registered on its own.
func resolveTemplate() (string, error) {
	if ext := strings.ToLower(filepath.Ext(pipeTemplate)); ext != "" {
		if _, err := os.Stat(pipeTemplate); err == nil {
			templates, err := core.LoadTemplateFile(pipeTemplate)
			if err != nil {
				return "", err
			}
			for _, t := range templates {
				if _, ok := core.Get(t.ID); ok {
					continue
				}
				if err := core.Register(t); err != nil {
					return "", err
				}
			}
			return templates[0].ID, nil
		}
	}

	if _, err := core.LoadTemplateDir(pipeTemplateDir); err != nil {
		// Other templates may be broken; only the requested one matters.
		if _, ok := core.Get(pipeTemplate); !ok {
			return "", err
		}
	}
	return pipeTemplate, nil
}

// newService opens the store and builds a pipeline service over it.
// The returned func disconnects the store.
func newService(ctx context.Context, outputDir string) (*core.Service, func(), error) {
	switch pipeDBDriver {
	case store.DriverMemory, store.DriverSQLite:
	default:
		return nil, nil, fmt.Errorf("%w: %s (edgectl supports memory and sqlite)", store.ErrUnsupportedDriver, pipeDBDriver)
	}

	policy, err := core.ParsePolicy(pipePolicy)
	if err != nil {
		return nil, nil, err
	}

	st, err := store.Open(pipeDBDriver, pipeDBPath, store.PoolOptions{})
	if err != nil {
		return nil, nil, err
	}
	if err := st.Connect(ctx); err != nil {
		return nil, nil, err
	}
	if err := st.EnsureSchema(ctx); err != nil {
		st.Disconnect()
		return nil, nil, err
	}

	svc := core.NewService(st, core.Options{Policy: policy, OutputDir: outputDir})
	return svc, func() { st.Disconnect() }, nil
}

func runImport(cmd *cobra.Command, args []string) error {
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

	res, err := svc.Import(ctx, core.ImportRequest{
		TemplateID: templateID,
		TenantID:   pipeTenant,
		Source:     src,
	})
	if err != nil {
		return userError(err)
	}
	return printJSON(cmd, res)
}

func runExport(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	var formats []fileio.Format
	for part := range strings.SplitSeq(exportFormats, ",") {
		if strings.TrimSpace(part) == "" {
			continue
		}
		f, err := fileio.ParseFormat(part)
		if err != nil {
			return err
		}
		formats = append(formats, f)
	}

	templateID, err := resolveTemplate()
	if err != nil {
		return err
	}
	src, err := openInput(pipeInput, pipeFormat)
	if err != nil {
		return err
	}

	svc, closeStore, err := newService(ctx, exportOut)
	if err != nil {
		return err
	}
	defer closeStore()

	res, err := svc.Export(ctx, core.ExportRequest{
		TemplateID:     templateID,
		TenantID:       pipeTenant,
		Source:         src,
		Formats:        formats,
		IncludeInvalid: exportIncludeInvalid,
	})
	if err != nil {
		return userError(err)
	}

	out := cmd.ErrOrStderr()
	for _, f := range res.Files {
		fmt.Fprintf(out, "wrote %s (%d bytes)\n", f.Path, f.Size)
	}
	return printJSON(cmd, res)
}

// userError prefixes err with its mapped message and code.
func userError(err error) error {
	msg := core.MapError(err)
	return fmt.Errorf("%s (%s): %w", msg.Message, msg.Code, err)
}
