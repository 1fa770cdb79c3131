package instruction

import "context"

// Repository persists parsed instructions.
type Repository interface {
	// Save stores records in one transaction. Records with an empty ID are
	// assigned one.
	Save(ctx context.Context, records []*Record) error

	// ListByInput returns the records produced from one input id, ordered
	// by Seq. Returns errors.ErrCodeInstructionNotFound when there are none.
	ListByInput(ctx context.Context, inputID string) ([]*Record, error)

	// ListByBatch returns every record of a batch job ordered by Seq.
	ListByBatch(ctx context.Context, batchID string) ([]*Record, error)

	// Count returns the number of stored records.
	Count(ctx context.Context) (int64, error)
}

// Index makes records searchable. Implementations may be eventually
// consistent.
type Index interface {
	IndexRecords(ctx context.Context, records []*Record) error
}
