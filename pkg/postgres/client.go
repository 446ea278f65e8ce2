// Package postgres provides the pgx-backed query executor used by the
// pipeline. It runs read-only generated SQL; safety checks happen before
// queries reach this layer.
package postgres

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/harperhq/clientiq/pkg/pipeline"
)

const queryTimeout = 30 * time.Second

// Client wraps a pgx connection pool and implements pipeline.Querier.
type Client struct {
	pool *pgxpool.Pool
	log  *slog.Logger
}

// NewClient connects to the database and verifies the connection.
func NewClient(ctx context.Context, databaseURL string, logger *slog.Logger) (*Client, error) {
	if databaseURL == "" {
		return nil, fmt.Errorf("database URL is required")
	}

	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	return &Client{pool: pool, log: logger}, nil
}

// Query executes a SQL statement and collects the rows as column-keyed
// maps. Engine errors are returned with the server's message intact so
// they can feed SQL regeneration.
func (c *Client) Query(ctx context.Context, sql string) (pipeline.QueryResult, error) {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	start := time.Now()
	rows, err := c.pool.Query(ctx, sql)
	if err != nil {
		return pipeline.QueryResult{}, fmt.Errorf("query failed: %w", err)
	}
	defer rows.Close()

	fields := rows.FieldDescriptions()
	columns := make([]string, len(fields))
	for i, fd := range fields {
		columns[i] = string(fd.Name)
	}

	var result []map[string]any
	for rows.Next() {
		values, err := rows.Values()
		if err != nil {
			return pipeline.QueryResult{}, fmt.Errorf("failed to read row: %w", err)
		}
		row := make(map[string]any, len(columns))
		for i, col := range columns {
			row[col] = values[i]
		}
		result = append(result, row)
	}
	if err := rows.Err(); err != nil {
		return pipeline.QueryResult{}, fmt.Errorf("query failed: %w", err)
	}

	c.log.Debug("query executed", "rows", len(result), "duration", time.Since(start))

	return pipeline.QueryResult{
		Columns: columns,
		Rows:    result,
		Count:   len(result),
	}, nil
}

// Pool exposes the underlying pool for components that run their own
// parameterized queries.
func (c *Client) Pool() *pgxpool.Pool {
	return c.pool
}

// Close releases the connection pool.
func (c *Client) Close() {
	c.pool.Close()
}
