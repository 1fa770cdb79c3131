package cli

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/turtacn/sigparse/internal/infrastructure/database/postgres"
	"github.com/turtacn/sigparse/pkg/errors"
)

// MigrationStatus is the printable schema state.
type MigrationStatus postgres.MigrationStatus

// TableHeaders implements Tabular.
func (s MigrationStatus) TableHeaders() []string { return []string{"VERSION", "DIRTY"} }

// TableRows implements Tabular.
func (s MigrationStatus) TableRows() [][]string {
	return [][]string{{strconv.FormatUint(uint64(s.Version), 10), strconv.FormatBool(s.Dirty)}}
}

func (s MigrationStatus) String() string {
	if s.Dirty {
		return fmt.Sprintf("schema version %d (dirty)", s.Version)
	}
	return fmt.Sprintf("schema version %d", s.Version)
}

func newMigrateCmd(deps Dependencies) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Manage the instruction store schema",
	}

	up := &cobra.Command{
		Use:   "up",
		Short: "Apply all pending migrations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withMigrator(cmd, deps, func(m Migrator) error {
				if err := m.Up(); err != nil {
					return err
				}
				return printStatus(cmd, m)
			})
		},
	}

	down := &cobra.Command{
		Use:   "down [steps]",
		Short: "Roll back migrations (default one step)",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			steps := 1
			if len(args) == 1 {
				n, err := strconv.Atoi(args[0])
				if err != nil || n < 1 {
					return errors.InvalidParam("steps must be a positive integer")
				}
				steps = n
			}
			return withMigrator(cmd, deps, func(m Migrator) error {
				if err := m.Down(steps); err != nil {
					return err
				}
				return printStatus(cmd, m)
			})
		},
	}

	status := &cobra.Command{
		Use:   "status",
		Short: "Show the applied schema version",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withMigrator(cmd, deps, func(m Migrator) error {
				return printStatus(cmd, m)
			})
		},
	}

	force := &cobra.Command{
		Use:   "force VERSION",
		Short: "Set the schema version without running migrations and clear the dirty flag",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			v, err := strconv.Atoi(args[0])
			if err != nil || v < 0 {
				return errors.InvalidParam("version must be a non-negative integer")
			}
			return withMigrator(cmd, deps, func(m Migrator) error {
				if err := m.Force(v); err != nil {
					return err
				}
				return printStatus(cmd, m)
			})
		},
	}

	cmd.AddCommand(up, down, status, force)
	return cmd
}

func withMigrator(cmd *cobra.Command, deps Dependencies, fn func(Migrator) error) error {
	cliCtx, err := GetCLIContext(cmd)
	if err != nil {
		return err
	}
	ctx, cancel := commandContext(cmd, cliCtx)
	defer cancel()

	m, release, err := deps.NewMigrator(ctx, cliCtx.Config, cliCtx.Logger)
	if err != nil {
		return err
	}
	defer release()
	return fn(m)
}

func printStatus(cmd *cobra.Command, m Migrator) error {
	st, err := m.Status()
	if err != nil {
		return err
	}
	return PrintResult(cmd, MigrationStatus(st))
}
