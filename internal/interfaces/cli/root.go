// Package cli implements the sigparse command line.
package cli

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/turtacn/sigparse/internal/config"
	"github.com/turtacn/sigparse/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/sigparse/pkg/errors"
)

// Build-time variables injected via ldflags.
var (
	Version   = "dev"
	GitCommit = "unknown"
	BuildDate = "unknown"
)

// Output formats accepted by --output.
const (
	OutputJSON  = "json"
	OutputTable = "table"
	OutputText  = "text"
	OutputCSV   = "csv"
)

type cliContextKey struct{}

// RootOptions holds global CLI flags.
type RootOptions struct {
	ConfigPath   string
	LogLevel     string
	OutputFormat string
	Timeout      time.Duration
}

// CLIContext carries initialized dependencies through the command tree.
type CLIContext struct {
	Config       *config.Config
	Logger       logging.Logger
	OutputFormat string
	Timeout      time.Duration
}

// NewRootCommand creates the root command with every subcommand attached.
// A zero Dependencies uses DefaultDependencies.
func NewRootCommand(deps Dependencies) *cobra.Command {
	deps = deps.withDefaults()
	opts := &RootOptions{}

	cmd := &cobra.Command{
		Use:   "sigparse",
		Short: "Parse free-text dose instructions into structured records",
		Long: "sigparse turns prescription directions such as \"take 2 tablets twice daily for 5 days\"\n" +
			"into structured dosage, frequency, duration and form fields.",
		Version: fmt.Sprintf("%s (commit: %s, built: %s)", Version, GitCommit, BuildDate),
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return persistentPreRun(cmd, opts, deps)
		},
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	pf := cmd.PersistentFlags()
	pf.StringVarP(&opts.ConfigPath, "config", "c", "", "config file path (default: environment and built-in defaults)")
	pf.StringVar(&opts.LogLevel, "log-level", "warn", "log level (debug, info, warn, error)")
	pf.StringVarP(&opts.OutputFormat, "output", "o", OutputText, "output format (json, table, text, csv)")
	pf.DurationVar(&opts.Timeout, "timeout", 5*time.Minute, "overall operation timeout")

	cmd.AddCommand(
		newParseCmd(deps),
		newBatchCmd(deps),
		newMigrateCmd(deps),
		newCacheCmd(deps),
	)
	return cmd
}

func persistentPreRun(cmd *cobra.Command, opts *RootOptions, deps Dependencies) error {
	if err := validateOutputFormat(opts.OutputFormat); err != nil {
		return err
	}
	cfg, err := deps.LoadConfig(opts.ConfigPath)
	if err != nil {
		return fmt.Errorf("config initialization failed: %w", err)
	}
	logger, err := initLogger(opts)
	if err != nil {
		return fmt.Errorf("logger initialization failed: %w", err)
	}

	cliCtx := &CLIContext{
		Config:       cfg,
		Logger:       logger,
		OutputFormat: strings.ToLower(opts.OutputFormat),
		Timeout:      opts.Timeout,
	}
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	cmd.SetContext(context.WithValue(ctx, cliContextKey{}, cliCtx))
	return nil
}

func validateOutputFormat(format string) error {
	switch strings.ToLower(format) {
	case OutputJSON, OutputTable, OutputText, OutputCSV:
		return nil
	}
	return errors.Newf(errors.ErrCodeOutputFormatInvalid, "output format %q is not one of json, table, text, csv", format)
}

// initLogger writes console logs to stderr so stdout carries only results.
func initLogger(opts *RootOptions) (logging.Logger, error) {
	return logging.NewLogger(logging.LogConfig{
		Level:            logging.Level(strings.ToLower(opts.LogLevel)),
		Format:           "console",
		OutputPaths:      []string{"stderr"},
		ErrorOutputPaths: []string{"stderr"},
	})
}

// GetCLIContext extracts CLIContext from a command's context.
func GetCLIContext(cmd *cobra.Command) (*CLIContext, error) {
	ctx := cmd.Context()
	if ctx == nil {
		return nil, errors.InvalidParam("command context is nil")
	}
	cliCtx, ok := ctx.Value(cliContextKey{}).(*CLIContext)
	if !ok || cliCtx == nil {
		return nil, errors.InvalidParam("CLIContext not found in command context")
	}
	return cliCtx, nil
}

// commandContext returns the command context bounded by --timeout.
func commandContext(cmd *cobra.Command, cliCtx *CLIContext) (context.Context, context.CancelFunc) {
	if cliCtx.Timeout <= 0 {
		return context.WithCancel(cmd.Context())
	}
	return context.WithTimeout(cmd.Context(), cliCtx.Timeout)
}

// Execute runs the CLI with the default dependencies.
func Execute() error {
	rootCmd := NewRootCommand(Dependencies{})
	if err := rootCmd.Execute(); err != nil {
		PrintError(rootCmd, err)
		return err
	}
	return nil
}

// Tabular is implemented by results that can be printed as rows.
type Tabular interface {
	TableHeaders() []string
	TableRows() [][]string
}

// PrintResult writes data to stdout in the format chosen by --output.
func PrintResult(cmd *cobra.Command, data interface{}) error {
	format := OutputJSON
	if cliCtx, err := GetCLIContext(cmd); err == nil {
		format = cliCtx.OutputFormat
	}
	return writeResult(cmd.OutOrStdout(), format, data)
}

func writeResult(w io.Writer, format string, data interface{}) error {
	switch format {
	case OutputJSON:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(data)
	case OutputTable:
		if t, ok := data.(Tabular); ok {
			_, err := fmt.Fprint(w, FormatTable(t.TableHeaders(), t.TableRows()))
			return err
		}
	case OutputCSV:
		if t, ok := data.(Tabular); ok {
			cw := csv.NewWriter(w)
			if err := cw.Write(t.TableHeaders()); err != nil {
				return err
			}
			if err := cw.WriteAll(t.TableRows()); err != nil {
				return err
			}
			return cw.Error()
		}
	}
	return writeText(w, data)
}

func writeText(w io.Writer, data interface{}) error {
	var err error
	switch v := data.(type) {
	case string:
		_, err = fmt.Fprintln(w, v)
	case fmt.Stringer:
		_, err = fmt.Fprintln(w, v.String())
	default:
		_, err = fmt.Fprintf(w, "%+v\n", v)
	}
	return err
}

// PrintError writes a formatted error message to stderr.
func PrintError(cmd *cobra.Command, err error) {
	if err == nil {
		return
	}
	fmt.Fprintf(cmd.ErrOrStderr(), "Error: %s\n", err.Error())
}

// PrintSuccess writes a formatted success message to stdout.
func PrintSuccess(cmd *cobra.Command, msg string) {
	fmt.Fprintf(cmd.OutOrStdout(), "OK: %s\n", msg)
}

// FormatTable renders headers and rows as an aligned ASCII table.
func FormatTable(headers []string, rows [][]string) string {
	if len(headers) == 0 {
		return ""
	}

	colWidths := make([]int, len(headers))
	for i, h := range headers {
		colWidths[i] = len(h)
	}
	for _, row := range rows {
		for i := 0; i < len(row) && i < len(colWidths); i++ {
			if len(row[i]) > colWidths[i] {
				colWidths[i] = len(row[i])
			}
		}
	}

	var sb strings.Builder
	for i, h := range headers {
		if i > 0 {
			sb.WriteString("  ")
		}
		sb.WriteString(padRight(h, colWidths[i]))
	}
	sb.WriteString("\n")

	for i, w := range colWidths {
		if i > 0 {
			sb.WriteString("  ")
		}
		sb.WriteString(strings.Repeat("-", w))
	}
	sb.WriteString("\n")

	for _, row := range rows {
		for i := 0; i < len(headers); i++ {
			if i > 0 {
				sb.WriteString("  ")
			}
			val := ""
			if i < len(row) {
				val = row[i]
			}
			sb.WriteString(padRight(val, colWidths[i]))
		}
		sb.WriteString("\n")
	}
	return sb.String()
}

func padRight(s string, width int) string {
	if len(s) >= width {
		return s
	}
	return s + strings.Repeat(" ", width-len(s))
}
