package loaders

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/Conversly/minivault/internal/types"
	"github.com/Conversly/minivault/internal/utils"
)

type PostgresClient struct {
	dsn  string
	pool *pgxpool.Pool
}

const createInteractionsTable = `
	CREATE TABLE IF NOT EXISTS interactions (
		id              UUID PRIMARY KEY,
		created_at      TIMESTAMPTZ NOT NULL,
		prompt          TEXT NOT NULL,
		response        TEXT NOT NULL,
		response_length INTEGER NOT NULL
	)
`

const insertInteraction = `
	INSERT INTO interactions (id, created_at, prompt, response, response_length)
	VALUES ($1, $2, $3, $4, $5)
	ON CONFLICT (id) DO NOTHING
`

func NewPostgresClient(dsn string, workerCount int) (*PostgresClient, error) {
	client := &PostgresClient{
		dsn: dsn,
	}

	pool, err := client.createConnectionPool(workerCount)
	if err != nil {
		return nil, err
	}

	client.pool = pool
	utils.Zlog.Info("Successfully connected to PostgreSQL database with connection pool")
	return client, nil
}

func (c *PostgresClient) createConnectionPool(workerCount int) (*pgxpool.Pool, error) {
	cfg, err := pgxpool.ParseConfig(c.dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to parse Postgres DSN: %w", err)
	}

	cfg.MaxConns = int32(workerCount) + 2
	cfg.MinConns = 1
	cfg.HealthCheckPeriod = 30 * time.Second
	cfg.MaxConnLifetime = 60 * time.Minute
	cfg.MaxConnIdleTime = 15 * time.Minute

	utils.Zlog.Info("Creating Postgres connection pool", zap.Int32("max_conns", cfg.MaxConns))
	pool, err := pgxpool.NewWithConfig(context.Background(), cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create pgx pool: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping Postgres: %w", err)
	}

	if _, err := pool.Exec(ctx, createInteractionsTable); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ensure interactions table: %w", err)
	}

	return pool, nil
}

func (c *PostgresClient) Ping(ctx context.Context) error {
	return c.pool.Ping(ctx)
}

func (c *PostgresClient) Close() error {
	if c.pool != nil {
		c.pool.Close()
	}
	return nil
}

// BatchInsertInteractions inserts rows in a single round trip. Rows already
// present are skipped, so a retried batch does not duplicate.
func (c *PostgresClient) BatchInsertInteractions(ctx context.Context, rows []types.Interaction) error {
	if len(rows) == 0 {
		return nil
	}

	batch := &pgx.Batch{}
	for _, r := range rows {
		batch.Queue(insertInteraction,
			r.ID.String(),
			r.Timestamp.UTC(),
			r.Prompt,
			r.Response,
			r.ResponseLength,
		)
	}

	br := c.pool.SendBatch(ctx, batch)
	defer br.Close()

	successCount := 0
	var lastErr error
	for _, r := range rows {
		if _, err := br.Exec(); err != nil {
			utils.Zlog.Error("Failed to insert interaction", zap.String("id", r.ID.String()), zap.Error(err))
			lastErr = err
			continue
		}
		successCount++
	}

	if successCount == 0 {
		return fmt.Errorf("failed to insert any interactions: %w", lastErr)
	}
	return nil
}
