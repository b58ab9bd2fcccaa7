package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"energodoc/internal/app"
	"energodoc/internal/classifier"
	"energodoc/internal/document"
	"energodoc/internal/domain"
	"energodoc/internal/ocr"
)

func newClassifyCmd(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "classify <file>",
		Short: "Print the document classification of a file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := opts.loadConfig()
			if err != nil {
				return err
			}
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

			c := classifier.New(ocr.NewEngine(app.OCRConfig(cfg), ocr.NewExecRunner(log), log), log)
			dc, err := classify(cmd.Context(), c, data, ft, args[0], log)
			if err != nil {
				return err
			}

			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(dc)
		},
	}
}

func classify(ctx context.Context, c *classifier.Classifier, data []byte, ft domain.FileType, name string, log *zap.Logger) (domain.DocumentClassification, error) {
	switch {
	case ft == domain.FileTypeCSV:
		content, err := document.ReadCSV(bytes.NewReader(data), name)
		if err != nil {
			return domain.DocumentClassification{}, err
		}
		return c.ClassifySheets(content.Sheets), nil
	case ft.IsSpreadsheet():
		content, err := document.ReadWorkbook(bytes.NewReader(data), log)
		if err != nil {
			return domain.DocumentClassification{}, err
		}
		return c.ClassifySheets(content.Sheets), nil
	default:
		return c.Classify(ctx, data, ft)
	}
}
