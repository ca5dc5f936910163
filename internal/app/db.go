package app

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/Freeeeeet/slotswap/internal/config"
	"github.com/Freeeeeet/slotswap/internal/migrate"
	"github.com/Freeeeeet/slotswap/internal/repository"
	"github.com/Freeeeeet/slotswap/internal/repository/postgres"
	"github.com/Freeeeeet/slotswap/internal/repository/sqlite"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
	"go.uber.org/zap"
)

// Database - открытое хранилище выбранного драйвера
type Database struct {
	Store   repository.Store
	dialect migrate.Dialect
	sqlDB   *sql.DB
	close   func()
}

// OpenDatabase подключается к postgres или открывает файл sqlite
func OpenDatabase(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*Database, error) {
	switch cfg.DBDriver {
	case config.DriverPostgres:
		pool, err := pgxpool.New(ctx, cfg.DBDSN)
		if err != nil {
			return nil, fmt.Errorf("create pool: %w", err)
		}
		if err := pool.Ping(ctx); err != nil {
			pool.Close()
			return nil, fmt.Errorf("ping database: %w", err)
		}

		// goose работает с *sql.DB, поэтому создаём его поверх пула
		sqlDB := stdlib.OpenDBFromPool(pool)
		logger.Info("Connected to postgres")

		return &Database{
			Store:   postgres.NewStore(pool),
			dialect: migrate.DialectPostgres,
			sqlDB:   sqlDB,
			close: func() {
				sqlDB.Close()
				pool.Close()
			},
		}, nil

	case config.DriverSQLite:
		store, err := sqlite.Open(cfg.SQLitePath)
		if err != nil {
			return nil, err
		}
		if err := store.DB().PingContext(ctx); err != nil {
			store.Close()
			return nil, fmt.Errorf("ping database: %w", err)
		}
		logger.Info("Opened sqlite database", zap.String("path", cfg.SQLitePath))

		return &Database{
			Store:   store,
			dialect: migrate.DialectSQLite,
			sqlDB:   store.DB(),
			close:   func() { store.Close() },
		}, nil
	}

	return nil, fmt.Errorf("unsupported database driver %q", cfg.DBDriver)
}

// Migrate применяет встроенные миграции
func (d *Database) Migrate(ctx context.Context, logger *zap.Logger) error {
	mg, err := migrate.New(d.sqlDB, d.dialect, logger)
	if err != nil {
		return err
	}
	return mg.Run(ctx)
}

// MigrationVersion - текущая версия схемы
func (d *Database) MigrationVersion(ctx context.Context) (int64, error) {
	mg, err := migrate.New(d.sqlDB, d.dialect, nil)
	if err != nil {
		return 0, err
	}
	return mg.Version(ctx)
}

func (d *Database) Close() {
	if d.close != nil {
		d.close()
	}
}
