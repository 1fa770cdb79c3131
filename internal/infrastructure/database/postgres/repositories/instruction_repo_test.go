package repositories

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/suite"

	"github.com/turtacn/sigparse/internal/domain/instruction"
	"github.com/turtacn/sigparse/internal/infrastructure/database/postgres"
	"github.com/turtacn/sigparse/internal/infrastructure/monitoring/logging"
	pkgerrors "github.com/turtacn/sigparse/pkg/errors"
)

var recordColumns = []string{
	"id", "batch_id", "seq", "input_id", "text", "form",
	"dosage_min", "dosage_max", "frequency_min", "frequency_max", "frequency_type",
	"duration_min", "duration_max", "duration_type", "as_required", "as_directed", "created_at",
}

type InstructionRepoTestSuite struct {
	suite.Suite
	mock sqlmock.Sqlmock
	db   *sql.DB
	repo instruction.Repository
}

func (s *InstructionRepoTestSuite) SetupTest() {
	var err error
	s.db, s.mock, err = sqlmock.New()
	s.Require().NoError(err)

	log := logging.NewNopLogger()
	s.repo = NewPostgresInstructionRepo(postgres.NewConnectionWithDB(s.db, log), log)
}

func (s *InstructionRepoTestSuite) TearDownTest() {
	s.NoError(s.mock.ExpectationsWereMet())
	s.db.Close()
}

func twoRecords() []*instruction.Record {
	return []*instruction.Record{
		{BatchID: "b1", Seq: 0, Result: &instruction.StructuredInstruction{
			InputID:   instruction.Str("7"),
			Text:      "2 tabs bd",
			Form:      instruction.Str("tablet"),
			DosageMin: instruction.Float(2),
			DosageMax: instruction.Float(2),
		}},
		{BatchID: "b1", Seq: 1, Result: &instruction.StructuredInstruction{Text: "??"}},
	}
}

func (s *InstructionRepoTestSuite) TestSave_Success() {
	recs := twoRecords()

	s.mock.ExpectBegin()
	s.mock.ExpectExec("INSERT INTO parsed_instructions").
		WithArgs(sqlmock.AnyArg(), "b1", 0, "7", "2 tabs bd", "tablet",
			2.0, 2.0, nil, nil, nil, nil, nil, nil, false, false, sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))
	s.mock.ExpectExec("INSERT INTO parsed_instructions").
		WithArgs(sqlmock.AnyArg(), "b1", 1, nil, "??", nil,
			nil, nil, nil, nil, nil, nil, nil, nil, false, false, sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))
	s.mock.ExpectCommit()

	s.Require().NoError(s.repo.Save(context.Background(), recs))
	s.NotEmpty(recs[0].ID)
	s.NotEqual(recs[0].ID, recs[1].ID)
	s.False(recs[0].CreatedAt.IsZero())
}

func (s *InstructionRepoTestSuite) TestSave_Empty() {
	s.NoError(s.repo.Save(context.Background(), nil))
}

func (s *InstructionRepoTestSuite) TestSave_RollsBackOnError() {
	s.mock.ExpectBegin()
	s.mock.ExpectExec("INSERT INTO parsed_instructions").WillReturnResult(sqlmock.NewResult(0, 1))
	s.mock.ExpectExec("INSERT INTO parsed_instructions").WillReturnError(errors.New("disk full"))
	s.mock.ExpectRollback()

	err := s.repo.Save(context.Background(), twoRecords())
	s.True(pkgerrors.IsCode(err, pkgerrors.ErrCodeDatabaseError))
}

func (s *InstructionRepoTestSuite) TestSave_DuplicateID() {
	s.mock.ExpectBegin()
	s.mock.ExpectExec("INSERT INTO parsed_instructions").WillReturnError(&pgconn.PgError{Code: "23505"})
	s.mock.ExpectRollback()

	recs := twoRecords()[:1]
	recs[0].ID = "6f1c7d1e-8b44-4a0c-9a55-0d0b3b6f8a11"
	err := s.repo.Save(context.Background(), recs)
	s.True(pkgerrors.IsCode(err, pkgerrors.ErrCodeConflict))
}

func (s *InstructionRepoTestSuite) TestListByInput_Found() {
	created := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)
	s.mock.ExpectQuery("SELECT (.+) FROM parsed_instructions\\s+WHERE input_id = \\$1").
		WithArgs("7").
		WillReturnRows(sqlmock.NewRows(recordColumns).
			AddRow("r1", "", 0, "7", "1 tab daily", "tablet", 1.0, 1.0, 1.0, 1.0, "Day", nil, nil, nil, false, false, created).
			AddRow("r2", "", 1, "7", "1 tab daily", "tablet", 2.0, 2.0, nil, nil, nil, 3.0, 3.0, "Week", true, false, created))

	got, err := s.repo.ListByInput(context.Background(), "7")
	s.Require().NoError(err)
	s.Require().Len(got, 2)

	s.Equal("r1", got[0].ID)
	s.Equal(created, got[0].CreatedAt)
	s.Equal("Day", *got[0].Result.FrequencyType)
	s.Nil(got[0].Result.DurationMin)

	s.Equal(1, got[1].Seq)
	s.Nil(got[1].Result.FrequencyMin)
	s.Equal(3.0, *got[1].Result.DurationMax)
	s.Equal("Week", *got[1].Result.DurationType)
	s.True(got[1].Result.AsRequired)
}

func (s *InstructionRepoTestSuite) TestListByInput_NotFound() {
	s.mock.ExpectQuery("SELECT (.+) FROM parsed_instructions").
		WithArgs("missing").
		WillReturnRows(sqlmock.NewRows(recordColumns))

	_, err := s.repo.ListByInput(context.Background(), "missing")
	s.True(pkgerrors.IsCode(err, pkgerrors.ErrCodeInstructionNotFound))
	s.True(pkgerrors.IsNotFound(err))
}

func (s *InstructionRepoTestSuite) TestListByBatch_EmptyIsNotAnError() {
	s.mock.ExpectQuery("SELECT (.+) FROM parsed_instructions\\s+WHERE batch_id = \\$1 ORDER BY seq").
		WithArgs("b9").
		WillReturnRows(sqlmock.NewRows(recordColumns))

	got, err := s.repo.ListByBatch(context.Background(), "b9")
	s.NoError(err)
	s.Empty(got)
}

func (s *InstructionRepoTestSuite) TestListByBatch_QueryError() {
	s.mock.ExpectQuery("SELECT (.+) FROM parsed_instructions").WillReturnError(sql.ErrConnDone)

	_, err := s.repo.ListByBatch(context.Background(), "b1")
	s.True(pkgerrors.IsCode(err, pkgerrors.ErrCodeDatabaseError))
}

func (s *InstructionRepoTestSuite) TestCount() {
	s.mock.ExpectQuery("SELECT COUNT\\(\\*\\) FROM parsed_instructions").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(int64(42)))

	n, err := s.repo.Count(context.Background())
	s.NoError(err)
	s.Equal(int64(42), n)
}

func TestInstructionRepoTestSuite(t *testing.T) {
	suite.Run(t, new(InstructionRepoTestSuite))
}
