package parsing

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/turtacn/sigparse/internal/domain/instruction"
	"github.com/turtacn/sigparse/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/sigparse/pkg/errors"
)

// StoreRecorder saves results to a Repository and, when an Index is set,
// makes them searchable. Index failures are logged and do not fail the
// call.
type StoreRecorder struct {
	repo   instruction.Repository
	index  instruction.Index
	logger logging.Logger
	now    func() time.Time
}

// NewStoreRecorder returns a Recorder backed by repo. index may be nil.
func NewStoreRecorder(repo instruction.Repository, index instruction.Index, logger logging.Logger) (*StoreRecorder, error) {
	if repo == nil {
		return nil, errors.InvalidParam("recorder: repository is required")
	}
	if logger == nil {
		logger = logging.NewNopLogger()
	}
	return &StoreRecorder{repo: repo, index: index, logger: logger.Named("recorder"), now: time.Now}, nil
}

// Record implements Recorder.
func (r *StoreRecorder) Record(ctx context.Context, batchID string, results []*instruction.StructuredInstruction) error {
	if len(results) == 0 {
		return nil
	}
	created := r.now().UTC()
	records := make([]*instruction.Record, len(results))
	for i, res := range results {
		records[i] = &instruction.Record{
			ID:        uuid.NewString(),
			BatchID:   batchID,
			Seq:       i,
			CreatedAt: created,
			Result:    res,
		}
	}

	if err := r.repo.Save(ctx, records); err != nil {
		return err
	}
	if r.index != nil {
		if err := r.index.IndexRecords(ctx, records); err != nil {
			r.logger.Warn("failed to index records",
				logging.String("batch_id", batchID),
				logging.Int("records", len(records)),
				logging.Err(err),
			)
		}
	}
	return nil
}
