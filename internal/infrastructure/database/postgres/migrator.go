package postgres

import (
	"embed"
	"fmt"

	"github.com/golang-migrate/migrate/v4"
	migratepgx "github.com/golang-migrate/migrate/v4/database/pgx/v5"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	"github.com/golang-migrate/migrate/v4/source/iofs"

	"github.com/turtacn/sigparse/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/sigparse/pkg/errors"
)

//go:embed migrations/*.sql
var embeddedMigrations embed.FS

// MigrationStatus is the applied schema version.
type MigrationStatus struct {
	Version uint `json:"version"`
	Dirty   bool `json:"dirty"`
}

// Migrator applies the parsed_instructions schema. Migrations are read from
// the embedded set unless a directory is given.
type Migrator struct {
	conn   *Connection
	dir    string
	logger logging.Logger
}

// NewMigrator returns a migrator over conn. dir may be empty.
func NewMigrator(conn *Connection, dir string, log logging.Logger) *Migrator {
	if log == nil {
		log = logging.NewNopLogger()
	}
	return &Migrator{conn: conn, dir: dir, logger: log}
}

func (m *Migrator) instance() (*migrate.Migrate, error) {
	driver, err := migratepgx.WithInstance(m.conn.DB(), &migratepgx.Config{})
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeDatabaseError, "failed to create migration driver")
	}

	var mg *migrate.Migrate
	if m.dir != "" {
		mg, err = migrate.NewWithDatabaseInstance("file://"+m.dir, "pgx5", driver)
	} else {
		src, srcErr := iofs.New(embeddedMigrations, "migrations")
		if srcErr != nil {
			return nil, errors.Wrap(srcErr, errors.ErrCodeInternal, "failed to open embedded migrations")
		}
		mg, err = migrate.NewWithInstance("iofs", src, "pgx5", driver)
	}
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeDatabaseError, "failed to create migrate instance")
	}
	return mg, nil
}

// Up applies every pending migration.
func (m *Migrator) Up() error {
	mg, err := m.instance()
	if err != nil {
		return err
	}

	if err := mg.Up(); err != nil && err != migrate.ErrNoChange {
		version, _, _ := mg.Version()
		return errors.Wrap(err, errors.ErrCodeDatabaseError, fmt.Sprintf("failed to run migrations (current version: %d)", version))
	}

	version, dirty, err := mg.Version()
	if err != nil && err != migrate.ErrNilVersion {
		m.logger.Warn("failed to read migration version", logging.Err(err))
	}
	m.logger.Info("database migrations completed",
		logging.Int64("version", int64(version)),
		logging.Bool("dirty", dirty),
	)
	return nil
}

// Down rolls back steps migrations.
func (m *Migrator) Down(steps int) error {
	if steps <= 0 {
		return errors.Newf(errors.CodeInvalidParam, "steps must be greater than 0, got %d", steps)
	}
	mg, err := m.instance()
	if err != nil {
		return err
	}
	if err := mg.Steps(-steps); err != nil {
		if err == migrate.ErrNoChange {
			return errors.New(errors.ErrCodeDatabaseError, "no migrations to roll back")
		}
		return errors.Wrap(err, errors.ErrCodeDatabaseError, fmt.Sprintf("failed to roll back %d step(s)", steps))
	}
	return nil
}

// Status reports the applied version. A database without migrations
// reports version 0.
func (m *Migrator) Status() (MigrationStatus, error) {
	mg, err := m.instance()
	if err != nil {
		return MigrationStatus{}, err
	}
	version, dirty, err := mg.Version()
	if err != nil {
		if err == migrate.ErrNilVersion {
			return MigrationStatus{}, nil
		}
		return MigrationStatus{}, errors.Wrap(err, errors.ErrCodeDatabaseError, "failed to get migration version")
	}
	return MigrationStatus{Version: version, Dirty: dirty}, nil
}

// Force sets the version without running migrations, clearing a dirty
// state.
func (m *Migrator) Force(version int) error {
	mg, err := m.instance()
	if err != nil {
		return err
	}
	if err := mg.Force(version); err != nil {
		return errors.Wrap(err, errors.ErrCodeDatabaseError, fmt.Sprintf("failed to force version %d", version))
	}
	return nil
}
