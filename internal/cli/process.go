package cli

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"energodoc/internal/app"
	"energodoc/internal/classifier"
	"energodoc/internal/csvexport"
	"energodoc/internal/domain"
	"energodoc/internal/pipeline"
)

// processOutput is the JSON document printed by process.
type processOutput struct {
	File      string                   `json:"file"`
	Trace     []domain.Stage           `json:"trace"`
	Canonical json.RawMessage          `json:"canonical"`
	Readiness []domain.ReadinessReport `json:"readiness"`
}

func newProcessCmd(opts *RootOptions) *cobra.Command {
	var (
		fallback bool
		format   string
	)

	cmd := &cobra.Command{
		Use:   "process <file>",
		Short: "Run the full pipeline on a file and print the canonical record",
		Long: "Run classification, deterministic parsing, the optional semantic fallback,\n" +
			"merge and readiness on a local file. --format csv prints the provenance\n" +
			"of every candidate instead.",
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if format != "json" && format != "csv" {
				return fmt.Errorf("invalid output format: %s (must be json or csv)", format)
			}
			cfg, err := opts.loadConfig()
			if err != nil {
				return err
			}
			cfg.Fallback.Enabled = fallback
			log, err := newLogger(cfg)
			if err != nil {
				return err
			}
			defer func() { _ = log.Sync() }()

			ft, err := classifier.DetectFileType(args[0])
			if err != nil {
				return err
			}
			data, err := os.ReadFile(args[0])
			if err != nil {
				return fmt.Errorf("reading %s: %w", args[0], err)
			}

			engine, err := app.NewEngine(cmd.Context(), cfg, nil, log)
			if err != nil {
				return err
			}
			defer func() { _ = engine.Close() }()

			res, err := engine.Runner.Run(cmd.Context(), pipeline.Input{
				FileName: filepath.Base(args[0]),
				FileType: ft,
				Data:     data,
			})
			if err != nil {
				return err
			}

			if format == "csv" {
				return csvexport.Export(cmd.OutOrStdout(), res.Data)
			}
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(processOutput{
				File:      filepath.Base(args[0]),
				Trace:     res.State.Trace,
				Canonical: res.JSON,
				Readiness: res.Readiness,
			})
		},
	}

	cmd.Flags().BoolVar(&fallback, "fallback", false, "enable the semantic fallback (uses the configured providers)")
	cmd.Flags().StringVarP(&format, "format", "f", "json", "output format (json, csv)")
	return cmd
}
