package database

import (
	"os"

	"github.com/Gobusters/ectologger"
	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	"github.com/pkg/errors"
)

// MigrationLogger adapts the service logger to golang-migrate's Logger.
type MigrationLogger struct {
	ectologger.Logger
}

func (l MigrationLogger) Verbose() bool {
	return true
}

func (l MigrationLogger) Printf(format string, v ...any) {
	l.Infof(format, v...)
}

// MigrationService applies the SQL migrations in db/pg on startup.
type MigrationService struct {
	db         DB
	logger     ectologger.Logger
	sourcePath string
}

func NewMigrationService(db DB, logger ectologger.Logger, sourcePath string) *MigrationService {
	return &MigrationService{
		db:         db,
		logger:     logger,
		sourcePath: sourcePath,
	}
}

// Up applies all pending migrations. A database left dirty by a previously
// failed migration is forced back one version and retried once.
func (s *MigrationService) Up() error {
	m, err := s.newMigrate()
	if err != nil {
		return err
	}

	err = m.Up()
	if err != nil && err != migrate.ErrNoChange {
		version, dirty, verr := m.Version()
		if verr != nil {
			return errors.Wrap(err, "failed to apply migrations")
		}

		if dirty {
			s.logger.Warnf("Database is dirty at version %d. Forcing version %d and retrying", version, int(version)-1)

			if ferr := m.Force(int(version) - 1); ferr != nil {
				return errors.Wrapf(ferr, "failed to force database to version %d", int(version)-1)
			}

			if rerr := m.Up(); rerr != nil && rerr != migrate.ErrNoChange {
				return errors.Wrap(rerr, "failed to apply migrations after forcing version")
			}

			return nil
		}

		return errors.Wrap(err, "failed to apply migrations")
	}

	if version, _, verr := m.Version(); verr == nil {
		s.logger.Infof("Database is at migration version %d", version)
	}

	return nil
}

// Down rolls back the most recent migration.
func (s *MigrationService) Down() error {
	m, err := s.newMigrate()
	if err != nil {
		return err
	}

	if err := m.Steps(-1); err != nil {
		return errors.Wrap(err, "failed to roll back migration")
	}

	return nil
}

func (s *MigrationService) newMigrate() (*migrate.Migrate, error) {
	if _, err := os.Stat(s.sourcePath); err != nil {
		return nil, errors.Wrapf(err, "migration folder %s does not exist", s.sourcePath)
	}

	driver, err := postgres.WithInstance(s.db.GetDB().DB, &postgres.Config{})
	if err != nil {
		return nil, errors.Wrap(err, "failed to create migration driver")
	}

	m, err := migrate.NewWithDatabaseInstance("file://"+s.sourcePath, "postgres", driver)
	if err != nil {
		return nil, errors.Wrap(err, "failed to create migrate instance")
	}

	m.Log = MigrationLogger{Logger: s.logger}

	return m, nil
}
