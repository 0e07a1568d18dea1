package cli

import (
	"context"
	"fmt"

	"github.com/mugisham37/product-management-interview-project/internal/config"
	"github.com/mugisham37/product-management-interview-project/internal/logging"
	"github.com/mugisham37/product-management-interview-project/internal/repos"
)

// openStore opens the configured product store, applying migrations first
// when migrate is set. The returned func releases it.
func openStore(ctx context.Context, cfg config.Config, log *logging.Logger, migrate bool) (repos.ProductStore, func(), error) {
	switch cfg.DatabaseDriver {
	case config.DriverSQLite:
		db, err := repos.OpenSQLite(cfg.DatabaseURL)
		if err != nil {
			return nil, nil, err
		}
		if migrate {
			if err := repos.MigrateSQLite(db); err != nil {
				_ = db.Close()
				return nil, nil, err
			}
			log.Infof("sqlite migrations applied")
		}
		return repos.NewSQLiteRepo(db), func() { _ = db.Close() }, nil
	case config.DriverPostgres:
		if migrate {
			if err := repos.MigratePostgres(cfg.DatabaseURL); err != nil {
				return nil, nil, err
			}
			log.Infof("postgres migrations applied")
		}
		repo, err := repos.NewPgRepo(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, nil, err
		}
		return repo, repo.Close, nil
	default:
		return nil, nil, fmt.Errorf("unsupported database driver %q", cfg.DatabaseDriver)
	}
}
