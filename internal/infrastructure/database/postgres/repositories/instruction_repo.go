package repositories

import (
	"context"
	"database/sql"
	stderrors "errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/turtacn/sigparse/internal/domain/instruction"
	"github.com/turtacn/sigparse/internal/infrastructure/database/postgres"
	"github.com/turtacn/sigparse/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/sigparse/pkg/errors"
)

const instructionColumns = `id, batch_id, seq, input_id, text, form,
	dosage_min, dosage_max, frequency_min, frequency_max, frequency_type,
	duration_min, duration_max, duration_type, as_required, as_directed, created_at`

const insertInstruction = `
	INSERT INTO parsed_instructions (` + instructionColumns + `)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17)
`

type postgresInstructionRepo struct {
	conn     *postgres.Connection
	log      logging.Logger
	reader   recordReader
}

// NewPostgresInstructionRepo stores records in parsed_instructions.
func NewPostgresInstructionRepo(conn *postgres.Connection, log logging.Logger) instruction.Repository {
	if log == nil {
		log = logging.NewNopLogger()
	}
	return &postgresInstructionRepo{
		conn:     conn,
		log:      log,
		reader:   conn.DB(),
	}
}

func (r *postgresInstructionRepo) Save(ctx context.Context, records []*instruction.Record) error {
	if len(records) == 0 {
		return nil
	}

	tx, err := r.conn.DB().BeginTx(ctx, nil)
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeDatabaseError, "failed to begin transaction")
	}

	now := time.Now().UTC()
	for _, rec := range records {
		if rec.ID == "" {
			rec.ID = uuid.NewString()
		}
		if rec.CreatedAt.IsZero() {
			rec.CreatedAt = now
		}
		res := rec.Result
		if res == nil {
			res = &instruction.StructuredInstruction{}
		}
		_, err := tx.ExecContext(ctx, insertInstruction,
			rec.ID, rec.BatchID, rec.Seq, res.InputID, res.Text, res.Form,
			res.DosageMin, res.DosageMax, res.FrequencyMin, res.FrequencyMax, res.FrequencyType,
			res.DurationMin, res.DurationMax, res.DurationType, res.AsRequired, res.AsDirected, rec.CreatedAt,
		)
		if err != nil {
			_ = tx.Rollback()
			var pgErr *pgconn.PgError
			if stderrors.As(err, &pgErr) && pgErr.Code == "23505" {
				return errors.Wrap(err, errors.ErrCodeConflict, "instruction record already exists")
			}
			return errors.Wrap(err, errors.ErrCodeDatabaseError, "failed to insert instruction record")
		}
	}

	if err := tx.Commit(); err != nil {
		return errors.Wrap(err, errors.ErrCodeDatabaseError, "failed to commit transaction")
	}
	r.log.Debug("saved instruction records", logging.Int("count", len(records)))
	return nil
}

func (r *postgresInstructionRepo) ListByInput(ctx context.Context, inputID string) ([]*instruction.Record, error) {
	query := `SELECT ` + instructionColumns + ` FROM parsed_instructions
		WHERE input_id = $1 ORDER BY created_at, batch_id, seq`
	out, err := r.list(ctx, query, inputID)
	if err != nil {
		return nil, err
	}
	if len(out) == 0 {
		return nil, errors.New(errors.ErrCodeInstructionNotFound, "no instructions for input").WithDetail("input_id=" + inputID)
	}
	return out, nil
}

func (r *postgresInstructionRepo) ListByBatch(ctx context.Context, batchID string) ([]*instruction.Record, error) {
	query := `SELECT ` + instructionColumns + ` FROM parsed_instructions
		WHERE batch_id = $1 ORDER BY seq`
	return r.list(ctx, query, batchID)
}

func (r *postgresInstructionRepo) Count(ctx context.Context) (int64, error) {
	var n int64
	if err := r.reader.QueryRowContext(ctx, `SELECT COUNT(*) FROM parsed_instructions`).Scan(&n); err != nil {
		return 0, errors.Wrap(err, errors.ErrCodeDatabaseError, "failed to count instruction records")
	}
	return n, nil
}

func (r *postgresInstructionRepo) list(ctx context.Context, query string, arg string) ([]*instruction.Record, error) {
	rows, err := r.reader.QueryContext(ctx, query, arg)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeDatabaseError, "failed to query instruction records")
	}
	defer rows.Close()

	var out []*instruction.Record
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeDatabaseError, "failed to iterate instruction records")
	}
	return out, nil
}

func scanRecord(row rowScanner) (*instruction.Record, error) {
	var (
		rec                              instruction.Record
		res                              instruction.StructuredInstruction
		inputID, form, freqType, durType sql.NullString
		dMin, dMax, fMin, fMax           sql.NullFloat64
		durMin, durMax                   sql.NullFloat64
	)
	err := row.Scan(
		&rec.ID, &rec.BatchID, &rec.Seq, &inputID, &res.Text, &form,
		&dMin, &dMax, &fMin, &fMax, &freqType,
		&durMin, &durMax, &durType, &res.AsRequired, &res.AsDirected, &rec.CreatedAt,
	)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeDatabaseError, "failed to scan instruction record")
	}

	res.InputID = nullString(inputID)
	res.Form = nullString(form)
	res.DosageMin = nullFloat(dMin)
	res.DosageMax = nullFloat(dMax)
	res.FrequencyMin = nullFloat(fMin)
	res.FrequencyMax = nullFloat(fMax)
	res.FrequencyType = nullString(freqType)
	res.DurationMin = nullFloat(durMin)
	res.DurationMax = nullFloat(durMax)
	res.DurationType = nullString(durType)
	rec.Result = &res
	return &rec, nil
}
