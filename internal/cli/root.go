// Package cli implements the offline energodoc command: classify, process
// and inspect rules against local files without a database or object store.
package cli

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"energodoc/internal/config"
	"energodoc/internal/logger"
)

// Build-time variables injected via ldflags.
var (
	Version   = "dev"
	GitCommit = "unknown"
)

// RootOptions holds global CLI flags.
type RootOptions struct {
	RulesPath string
	LogLevel  string
}

// NewRootCommand creates the root command with all subcommands registered.
func NewRootCommand() *cobra.Command {
	opts := &RootOptions{}

	cmd := &cobra.Command{
		Use:           "energodoc",
		Short:         "Classify energy spreadsheets and scans and extract canonical source data",
		Version:       fmt.Sprintf("%s (commit: %s)", Version, GitCommit),
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	pf := cmd.PersistentFlags()
	pf.StringVar(&opts.RulesPath, "rules", "", "ruleset YAML overriding the embedded one")
	pf.StringVar(&opts.LogLevel, "log-level", "warn", "log level (debug, info, warn, error)")

	cmd.AddCommand(newClassifyCmd(opts))
	cmd.AddCommand(newProcessCmd(opts))
	cmd.AddCommand(newRulesCmd(opts))
	return cmd
}

// loadConfig reads the environment configuration and applies the flags.
func (o *RootOptions) loadConfig() (*config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	if o.RulesPath != "" {
		cfg.Rules.Path = o.RulesPath
	}
	cfg.Log = config.LogConfig{Level: o.LogLevel, Format: "console"}
	return cfg, nil
}

// newLogger builds a console logger. zap writes to stderr, so stdout
// carries only results.
func newLogger(cfg *config.Config) (*zap.Logger, error) {
	return logger.New(cfg.Log)
}

func writeln(w io.Writer, format string, args ...any) {
	_, _ = fmt.Fprintf(w, format+"\n", args...)
}
