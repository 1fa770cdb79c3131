package parsing

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/turtacn/sigparse/internal/domain/instruction"
	"github.com/turtacn/sigparse/pkg/errors"
)

type memRepo struct {
	saved []*instruction.Record
	err   error
}

func (m *memRepo) Save(_ context.Context, records []*instruction.Record) error {
	if m.err != nil {
		return m.err
	}
	m.saved = append(m.saved, records...)
	return nil
}

func (m *memRepo) ListByInput(context.Context, string) ([]*instruction.Record, error) {
	return nil, nil
}

func (m *memRepo) ListByBatch(context.Context, string) ([]*instruction.Record, error) {
	return nil, nil
}

func (m *memRepo) Count(context.Context) (int64, error) { return int64(len(m.saved)), nil }

type indexFunc func(ctx context.Context, records []*instruction.Record) error

func (f indexFunc) IndexRecords(ctx context.Context, records []*instruction.Record) error {
	return f(ctx, records)
}

func TestStoreRecorder_SavesAndIndexes(t *testing.T) {
	repo := &memRepo{}
	var indexed int
	rec, err := NewStoreRecorder(repo, indexFunc(func(_ context.Context, records []*instruction.Record) error {
		indexed += len(records)
		return nil
	}), nil)
	require.NoError(t, err)

	results := []*instruction.StructuredInstruction{instruction.NewEmpty(s("1"), "a"), instruction.NewEmpty(s("1"), "a")}
	require.NoError(t, rec.Record(context.Background(), "b7", results))

	require.Len(t, repo.saved, 2)
	assert.Equal(t, 2, indexed)
	for i, r := range repo.saved {
		assert.Equal(t, "b7", r.BatchID)
		assert.Equal(t, i, r.Seq)
		assert.NotEmpty(t, r.ID)
		assert.Same(t, results[i], r.Result)
	}
	assert.NotEqual(t, repo.saved[0].ID, repo.saved[1].ID)
}

func TestStoreRecorder_IndexFailureIsNotFatal(t *testing.T) {
	repo := &memRepo{}
	rec, err := NewStoreRecorder(repo, indexFunc(func(context.Context, []*instruction.Record) error {
		return errors.New(errors.ErrCodeExternalService, "index down")
	}), nil)
	require.NoError(t, err)

	assert.NoError(t, rec.Record(context.Background(), "", []*instruction.StructuredInstruction{instruction.NewEmpty(nil, "")}))
	assert.Len(t, repo.saved, 1)
}

func TestStoreRecorder_SaveFailure(t *testing.T) {
	repo := &memRepo{err: errors.New(errors.ErrCodeDatabaseError, "down")}
	rec, err := NewStoreRecorder(repo, nil, nil)
	require.NoError(t, err)

	err = rec.Record(context.Background(), "", []*instruction.StructuredInstruction{instruction.NewEmpty(nil, "")})
	assert.True(t, errors.IsCode(err, errors.ErrCodeDatabaseError))

	_, err = NewStoreRecorder(nil, nil, nil)
	assert.Error(t, err)
}
