package store

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rahul/exoscope/internal/governance"
)

var ErrTableNotFound = errors.New("table not found")

// Options configures the Postgres connection.
type Options struct {
	URL              string
	Tables           []string
	StatementTimeout time.Duration
	MaxConns         int32
}

// DB runs read-only queries against the exoplanet datasets. Every query passes the same
// SQL guard the tool layer applies before it reaches the pool.
type DB struct {
	Pool    *pgxpool.Pool
	guard   *governance.SQLGuard
	timeout time.Duration
}

// Connect opens a pgx pool and verifies it with a ping.
func Connect(ctx context.Context, opts Options) (*DB, error) {
	cfg, err := pgxpool.ParseConfig(opts.URL)
	if err != nil {
		return nil, fmt.Errorf("pgx config: %w", err)
	}
	if opts.MaxConns > 0 {
		cfg.MaxConns = opts.MaxConns
	}
	if opts.StatementTimeout > 0 {
		cfg.ConnConfig.RuntimeParams["statement_timeout"] = strconv.FormatInt(opts.StatementTimeout.Milliseconds(), 10)
	}

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("pgx connect: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("pgx ping: %w", err)
	}

	return &DB{
		Pool:    pool,
		guard:   governance.NewSQLGuard(opts.Tables),
		timeout: opts.StatementTimeout,
	}, nil
}

// Close shuts down the pool.
func (d *DB) Close() {
	if d.Pool != nil {
		d.Pool.Close()
	}
}

// Query validates sql and runs it inside a read-only transaction.
func (d *DB) Query(ctx context.Context, sql string) (ResultSet, error) {
	query, err := d.guard.Validate(sql)
	if err != nil {
		return ResultSet{}, err
	}

	if d.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, d.timeout)
		defer cancel()
	}

	tx, err := d.Pool.BeginTx(ctx, pgx.TxOptions{AccessMode: pgx.ReadOnly})
	if err != nil {
		return ResultSet{}, fmt.Errorf("begin read-only transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	return collect(ctx, tx, query)
}

// ListColumns returns the table's columns in ordinal order.
func (d *DB) ListColumns(ctx context.Context, table string) ([]string, error) {
	if !d.guard.Allowed(table) {
		return nil, fmt.Errorf("%w: %s", ErrTableNotFound, table)
	}

	rows, err := d.Pool.Query(ctx, `
		SELECT column_name
		FROM information_schema.columns
		WHERE table_name = $1
		ORDER BY ordinal_position`, table)
	if err != nil {
		return nil, fmt.Errorf("list columns: %w", err)
	}
	defer rows.Close()

	var cols []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		cols = append(cols, name)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(cols) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrTableNotFound, table)
	}
	return cols, nil
}

type querier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

func collect(ctx context.Context, q querier, sql string, args ...any) (ResultSet, error) {
	rows, err := q.Query(ctx, sql, args...)
	if err != nil {
		return ResultSet{}, fmt.Errorf("query failed: %w", err)
	}
	defer rows.Close()

	var rs ResultSet
	for _, fd := range rows.FieldDescriptions() {
		rs.Columns = append(rs.Columns, fd.Name)
	}

	for rows.Next() {
		values, err := rows.Values()
		if err != nil {
			return ResultSet{}, fmt.Errorf("read row: %w", err)
		}
		row := make(Row, len(values))
		for i, v := range values {
			row[rs.Columns[i]] = normalizeValue(v)
		}
		rs.Rows = append(rs.Rows, row)
	}
	if err := rows.Err(); err != nil {
		return ResultSet{}, fmt.Errorf("query failed: %w", err)
	}
	return rs, nil
}
