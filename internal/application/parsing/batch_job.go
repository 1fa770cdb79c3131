package parsing

import (
	"bytes"
	"context"
	"path"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/turtacn/sigparse/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/sigparse/pkg/errors"
)

// ObjectStore is the blob storage the batch job reads inputs from and
// writes results to.
type ObjectStore interface {
	Get(ctx context.Context, bucket, key string) ([]byte, error)
	Put(ctx context.Context, bucket, key string, data []byte, contentType string) error
}

// Locker guards a batch input against concurrent runs. Acquire fails with
// ErrCodeConflict when another owner holds the lock.
type Locker interface {
	Acquire(ctx context.Context, name string, ttl time.Duration) (release func(context.Context) error, err error)
}

// BatchJobRequest names one input object.
type BatchJobRequest struct {
	Bucket    string `json:"bucket"`
	InputKey  string `json:"inputKey"`
	OutputKey string `json:"outputKey,omitempty"`
	Mode      Mode   `json:"mode,omitempty"`
}

// BatchJobResult summarises a finished job.
type BatchJobResult struct {
	BatchID   string        `json:"batchId"`
	OutputKey string        `json:"outputKey"`
	Inputs    int           `json:"inputs"`
	Records   int           `json:"records"`
	Empty     int           `json:"empty"`
	Duration  time.Duration `json:"duration"`
}

// BatchJob parses a whole file held in object storage and writes the CSV
// results next to it.
type BatchJob struct {
	parser  *Parser
	store   ObjectStore
	logger  logging.Logger
	locker  Locker
	lockTTL time.Duration
	prefix  string
}

// BatchJobOption configures a BatchJob.
type BatchJobOption func(*BatchJob)

// WithOutputPrefix places default output keys under prefix instead of
// beside the input.
func WithOutputPrefix(prefix string) BatchJobOption {
	return func(j *BatchJob) { j.prefix = prefix }
}

// WithLocker serialises runs over the same input object.
func WithLocker(l Locker, ttl time.Duration) BatchJobOption {
	return func(j *BatchJob) {
		j.locker = l
		if ttl > 0 {
			j.lockTTL = ttl
		}
	}
}

// NewBatchJob wires a job runner.
func NewBatchJob(parser *Parser, store ObjectStore, logger logging.Logger, opts ...BatchJobOption) (*BatchJob, error) {
	if parser == nil {
		return nil, errors.InvalidParam("batch job: parser is required")
	}
	if store == nil {
		return nil, errors.InvalidParam("batch job: object store is required")
	}
	if logger == nil {
		logger = logging.NewNopLogger()
	}
	j := &BatchJob{parser: parser, store: store, logger: logger.Named("batch_job"), lockTTL: batchTimeout}
	for _, opt := range opts {
		opt(j)
	}
	return j, nil
}

// Run downloads req.InputKey (.txt or .csv), parses every instruction and
// uploads the results as CSV. Results are persisted under a new batch id
// when the parser has a recorder.
func (j *BatchJob) Run(ctx context.Context, req BatchJobRequest) (*BatchJobResult, error) {
	if req.Bucket == "" || req.InputKey == "" {
		return nil, errors.InvalidParam("batch job: bucket and input key are required")
	}
	format, err := InputFormatFromPath(req.InputKey)
	if err != nil {
		return nil, err
	}
	outKey := req.OutputKey
	if outKey == "" {
		outKey = path.Join(j.prefix, DefaultOutputKey(req.InputKey))
	}

	if j.locker != nil {
		release, err := j.locker.Acquire(ctx, req.Bucket+"/"+req.InputKey, j.lockTTL)
		if err != nil {
			return nil, err
		}
		defer func() {
			if err := release(context.WithoutCancel(ctx)); err != nil {
				j.logger.Warn("failed to release batch lock", logging.String("input_key", req.InputKey), logging.Err(err))
			}
		}()
	}

	start := time.Now()
	batchID := uuid.NewString()
	log := j.logger.With(
		logging.String("batch_id", batchID),
		logging.String("bucket", req.Bucket),
		logging.String("input_key", req.InputKey),
	)

	raw, err := j.store.Get(ctx, req.Bucket, req.InputKey)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeStorageError, "downloading batch input")
	}
	inputs, err := ReadInputs(bytes.NewReader(raw), format)
	if err != nil {
		return nil, err
	}
	log.Info("batch job started", logging.Int("inputs", len(inputs)))

	results, err := j.parser.ParseBatch(ctx, batchID, inputs, req.Mode)
	if err != nil {
		return nil, err
	}

	var buf bytes.Buffer
	if err := WriteCSV(&buf, results); err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeSerialization, "encoding batch results")
	}
	if err := j.store.Put(ctx, req.Bucket, outKey, buf.Bytes(), "text/csv"); err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeStorageError, "uploading batch results")
	}

	res := &BatchJobResult{
		BatchID:   batchID,
		OutputKey: outKey,
		Inputs:    len(inputs),
		Records:   len(results),
		Duration:  time.Since(start),
	}
	for _, r := range results {
		if r.IsEmpty() {
			res.Empty++
		}
	}
	log.Info("batch job finished",
		logging.String("output_key", outKey),
		logging.Int("records", res.Records),
		logging.Int("empty", res.Empty),
		logging.Duration("elapsed", res.Duration),
	)
	return res, nil
}

// DefaultOutputKey places results beside the input: "in/sigs.txt" becomes
// "in/sigs.parsed.csv".
func DefaultOutputKey(inputKey string) string {
	return strings.TrimSuffix(inputKey, path.Ext(inputKey)) + ".parsed.csv"
}
