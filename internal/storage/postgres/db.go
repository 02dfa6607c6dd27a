// Package postgres is the sqlx+lib/pq implementation of the storage
// interfaces, backing the batch writer, quality engine, and backfill engine.
package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	"github.com/sawpanic/ingestd/internal/storage"
)

// Manager owns the pooled connection and the repository set built on top of
// it.
type Manager struct {
	db      *sqlx.DB
	timeout time.Duration
	repos   *storage.Repository
}

// Open dials dsn, applies the pool settings, and wires every repository.
func Open(ctx context.Context, dsn string, maxOpen, maxIdle int, queryTimeout time.Duration) (*Manager, error) {
	db, err := sqlx.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	db.SetMaxOpenConns(maxOpen)
	db.SetMaxIdleConns(maxIdle)
	db.SetConnMaxLifetime(30 * time.Minute)

	pingCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	m := &Manager{db: db, timeout: queryTimeout}
	m.repos = &storage.Repository{
		Exchanges:      NewExchangeRepo(db, queryTimeout),
		Markets:        NewMarketRepo(db, queryTimeout),
		Candles:        NewCandleRepo(db, queryTimeout),
		Trades:         NewTradeRepo(db, queryTimeout),
		OrderBooks:     NewOrderBookRepo(db, queryTimeout),
		BackfillTasks:  NewBackfillTaskRepo(db, queryTimeout),
		Quality:        NewQualitySummaryRepo(db, queryTimeout),
		APIErrors:      NewAPIErrorLogRepo(db, queryTimeout),
		CriticalEvents: NewCriticalEventRepo(db, queryTimeout),
	}
	return m, nil
}

// Repository returns the wired repository set.
func (m *Manager) Repository() *storage.Repository { return m.repos }

// DB returns the underlying pooled connection, for the migration runner.
func (m *Manager) DB() *sqlx.DB { return m.db }

// Close closes the pooled connection.
func (m *Manager) Close() error { return m.db.Close() }

// Ping tests connectivity, for the healthcheck CLI subcommand.
func (m *Manager) Ping(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, m.timeout)
	defer cancel()
	return m.db.PingContext(ctx)
}
