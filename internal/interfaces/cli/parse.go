package cli

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/turtacn/sigparse/internal/application/parsing"
	"github.com/turtacn/sigparse/internal/domain/instruction"
	"github.com/turtacn/sigparse/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/sigparse/pkg/errors"
)

type parseOptions struct {
	text    string
	inFile  string
	outFile string
	mode    string
}

// Results renders parsed records in every output format.
type Results []*instruction.StructuredInstruction

// TableHeaders implements Tabular.
func (r Results) TableHeaders() []string { return instruction.CSVHeader() }

// TableRows implements Tabular.
func (r Results) TableRows() [][]string {
	rows := make([][]string, len(r))
	for i, rec := range r {
		rows[i] = rec.CSVRecord()
	}
	return rows
}

func (r Results) String() string {
	lines := make([]string, len(r))
	for i, rec := range r {
		lines[i] = rec.String()
	}
	return strings.Join(lines, "\n")
}

func newParseCmd(deps Dependencies) *cobra.Command {
	opts := &parseOptions{}
	cmd := &cobra.Command{
		Use:   "parse",
		Short: "Parse one instruction or a file of instructions",
		Example: `  sigparse parse --di "take 2 tabs by mouth bid x 5 days"
  sigparse parse --infile sigs.csv --outfile results.csv --mode parallel`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runParse(cmd, deps, opts)
		},
	}
	f := cmd.Flags()
	f.StringVar(&opts.text, "di", "", "dose instruction to parse")
	f.StringVar(&opts.inFile, "infile", "", "input file: .txt (one per line) or .csv (rowid,di columns)")
	f.StringVar(&opts.outFile, "outfile", "", "write results to a .txt or .csv file instead of stdout")
	f.StringVar(&opts.mode, "mode", "", "batch mode for --infile: sequential, parallel or concurrent")
	cmd.MarkFlagsMutuallyExclusive("di", "infile")
	cmd.MarkFlagsOneRequired("di", "infile")
	return cmd
}

func runParse(cmd *cobra.Command, deps Dependencies, opts *parseOptions) error {
	cliCtx, err := GetCLIContext(cmd)
	if err != nil {
		return err
	}
	if opts.outFile != "" {
		if _, err := parsing.InputFormatFromPath(opts.outFile); err != nil {
			return errors.Newf(errors.ErrCodeOutputFormatInvalid, "output file %s must be .txt or .csv", opts.outFile)
		}
	}
	mode, err := flagMode(opts.mode)
	if err != nil {
		return err
	}

	ctx, cancel := commandContext(cmd, cliCtx)
	defer cancel()

	parser, release, err := deps.NewParser(ctx, cliCtx.Config, cliCtx.Logger)
	if err != nil {
		return err
	}
	defer release()

	var results Results
	if opts.inFile != "" {
		inputs, err := readInputFile(opts.inFile)
		if err != nil {
			return err
		}
		cliCtx.Logger.Info("parsing file",
			logging.String("path", opts.inFile),
			logging.Int("inputs", len(inputs)),
			logging.String("mode", string(mode)))
		results, err = parser.ParseMany(ctx, inputs, mode)
		if err != nil {
			return err
		}
	} else {
		results = parser.ParseWithID(ctx, nil, opts.text)
	}

	if opts.outFile != "" {
		if err := writeOutputFile(opts.outFile, results); err != nil {
			return err
		}
		PrintSuccess(cmd, fmt.Sprintf("wrote %d records to %s", len(results), opts.outFile))
		return nil
	}
	return PrintResult(cmd, results)
}

func readInputFile(path string) ([]parsing.Input, error) {
	format, err := parsing.InputFormatFromPath(path)
	if err != nil {
		return nil, err
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrap(err, errors.CodeInvalidParam, "open input file")
	}
	defer f.Close()
	return parsing.ReadInputs(f, format)
}

func writeOutputFile(path string, results Results) (err error) {
	f, err := os.Create(filepath.Clean(path))
	if err != nil {
		return errors.Wrap(err, errors.CodeInvalidParam, "create output file")
	}
	defer func() {
		if cerr := f.Close(); err == nil {
			err = cerr
		}
	}()
	if strings.EqualFold(filepath.Ext(path), ".csv") {
		return parsing.WriteCSV(f, results)
	}
	return parsing.WriteText(f, results)
}

// flagMode validates a --mode value. Empty leaves the choice to
// parser.batch_mode.
func flagMode(s string) (parsing.Mode, error) {
	if s == "" {
		return "", nil
	}
	return parsing.ParseMode(s)
}
