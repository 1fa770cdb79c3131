package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/turtacn/sigparse/internal/application/parsing"
	"github.com/turtacn/sigparse/internal/infrastructure/monitoring/logging"
)

type batchOptions struct {
	bucket    string
	inputKey  string
	outputKey string
	mode      string
}

// BatchSummary is the printable outcome of a batch job.
type BatchSummary struct {
	*parsing.BatchJobResult
	Bucket string `json:"bucket"`
}

// TableHeaders implements Tabular.
func (s BatchSummary) TableHeaders() []string {
	return []string{"BATCH ID", "BUCKET", "OUTPUT", "INPUTS", "RECORDS", "EMPTY", "DURATION"}
}

// TableRows implements Tabular.
func (s BatchSummary) TableRows() [][]string {
	return [][]string{{
		s.BatchID,
		s.Bucket,
		s.OutputKey,
		fmt.Sprint(s.Inputs),
		fmt.Sprint(s.Records),
		fmt.Sprint(s.Empty),
		s.Duration.String(),
	}}
}

func (s BatchSummary) String() string {
	return fmt.Sprintf("batch %s: %d inputs, %d records (%d empty) written to %s/%s in %s",
		s.BatchID, s.Inputs, s.Records, s.Empty, s.Bucket, s.OutputKey, s.Duration)
}

func newBatchCmd(deps Dependencies) *cobra.Command {
	opts := &batchOptions{}
	cmd := &cobra.Command{
		Use:   "batch",
		Short: "Parse an instruction file held in object storage",
		Long: "batch downloads a .txt or .csv object, parses every instruction and uploads\n" +
			"the results as CSV. Runs over the same object are serialised through a Redis lock\n" +
			"when Redis is enabled.",
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runBatch(cmd, deps, opts)
		},
	}
	f := cmd.Flags()
	f.StringVar(&opts.bucket, "bucket", "", "bucket holding the input (default: minio.bucket)")
	f.StringVar(&opts.inputKey, "input", "", "object key of the input file")
	f.StringVar(&opts.outputKey, "output-key", "", "object key for the CSV results (default: under minio.result_prefix)")
	f.StringVar(&opts.mode, "mode", "", "batch mode: sequential, parallel or concurrent")
	_ = cmd.MarkFlagRequired("input")
	return cmd
}

func runBatch(cmd *cobra.Command, deps Dependencies, opts *batchOptions) error {
	cliCtx, err := GetCLIContext(cmd)
	if err != nil {
		return err
	}
	mode, err := flagMode(opts.mode)
	if err != nil {
		return err
	}

	ctx, cancel := commandContext(cmd, cliCtx)
	defer cancel()

	runner, defaultBucket, release, err := deps.NewBatchRunner(ctx, cliCtx.Config, cliCtx.Logger)
	if err != nil {
		return err
	}
	defer release()

	bucket := opts.bucket
	if bucket == "" {
		bucket = defaultBucket
	}
	res, err := runner.Run(ctx, parsing.BatchJobRequest{
		Bucket:    bucket,
		InputKey:  opts.inputKey,
		OutputKey: opts.outputKey,
		Mode:      mode,
	})
	if err != nil {
		return err
	}
	cliCtx.Logger.Info("batch job finished",
		logging.String("batch_id", res.BatchID),
		logging.Int("records", res.Records))
	return PrintResult(cmd, BatchSummary{BatchJobResult: res, Bucket: bucket})
}
