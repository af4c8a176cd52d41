package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/lib/pq"
	"github.com/safar/trade-credit/internal/config"
	"github.com/safar/trade-credit/migrations"
)

func NewConnection(cfg *config.DatabaseConfig) (*sql.DB, error) {
	db, err := sql.Open("postgres", cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.ConnMaxLifetime)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	return db, nil
}

// Migrate applies the embedded migrations in the given direction. Every
// statement uses IF [NOT] EXISTS, so running "up" twice is harmless.
func Migrate(ctx context.Context, db *sql.DB, direction string) ([]string, error) {
	ms, err := migrations.Load(direction)
	if err != nil {
		return nil, err
	}

	applied := make([]string, 0, len(ms))
	for _, m := range ms {
		if _, err := db.ExecContext(ctx, m.SQL); err != nil {
			return applied, fmt.Errorf("execute migration %s: %w", m.Name, err)
		}
		applied = append(applied, m.Name)
	}

	return applied, nil
}
