package bootstrap

import (
	"database/sql"
	"errors"
	"fmt"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	_ "github.com/jackc/pgx/v5/stdlib"

	appmigrations "github.com/wolfman30/medspa-inbox/migrations"
	"github.com/wolfman30/medspa-inbox/pkg/logging"
)

// NewMigrator opens databaseURL and returns a migrator over the embedded
// schema. The returned close func releases both the migrator and the DB.
func NewMigrator(databaseURL string) (*migrate.Migrate, func(), error) {
	db, err := sql.Open("pgx", databaseURL)
	if err != nil {
		return nil, nil, fmt.Errorf("bootstrap: open db: %w", err)
	}
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, nil, fmt.Errorf("bootstrap: ping db: %w", err)
	}

	dbDriver, err := postgres.WithInstance(db, &postgres.Config{})
	if err != nil {
		_ = db.Close()
		return nil, nil, fmt.Errorf("bootstrap: db driver: %w", err)
	}
	srcDriver, err := iofs.New(appmigrations.FS, ".")
	if err != nil {
		_ = db.Close()
		return nil, nil, fmt.Errorf("bootstrap: source driver: %w", err)
	}
	m, err := migrate.NewWithInstance("iofs", srcDriver, "postgres", dbDriver)
	if err != nil {
		_ = db.Close()
		return nil, nil, fmt.Errorf("bootstrap: create migrator: %w", err)
	}
	closeFn := func() {
		_, _ = m.Close()
	}
	return m, closeFn, nil
}

// RunMigrations applies every pending up migration. Running it against an
// up-to-date schema is a no-op.
func RunMigrations(databaseURL string, logger *logging.Logger) error {
	if logger == nil {
		logger = logging.Default()
	}
	m, closeFn, err := NewMigrator(databaseURL)
	if err != nil {
		return err
	}
	defer closeFn()

	if err := m.Up(); err != nil {
		if errors.Is(err, migrate.ErrNoChange) {
			logger.Info("inbox schema up to date")
			return nil
		}
		return fmt.Errorf("bootstrap: migrate up: %w", err)
	}
	version, _, _ := m.Version()
	logger.Info("inbox schema migrated", "version", version)
	return nil
}
