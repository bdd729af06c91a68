package db

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/Guizzs26/go-imei-sync/internal/mapper"
	"github.com/Guizzs26/go-imei-sync/internal/models"
)

// Options names the destination of a store
type Options struct {
	DSN        string
	Schema     string
	Table      string
	FormsTable string
}

// PostgresStore is the primary reconciliation store
type PostgresStore struct {
	pool   *pgxpool.Pool
	sql    *mapper.SQLBuilder
	forms  *mapper.SQLBuilder
	opts   Options
	logger *slog.Logger
}

func NewPostgresStore(ctx context.Context, opts Options, logger *slog.Logger) (*PostgresStore, error) {
	config, err := pgxpool.ParseConfig(opts.DSN)
	if err != nil {
		return nil, fmt.Errorf("failed to parse postgres config: %w", err)
	}
	config.MaxConns = 4
	config.MaxConnIdleTime = 10 * time.Minute

	p, err := pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		return nil, fmt.Errorf("failed to create postgres pool: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := p.Ping(pingCtx); err != nil {
		p.Close()
		return nil, fmt.Errorf("postgres ping failed: %w", err)
	}

	logger.Info("Connected to Postgres successfully", "schema", opts.Schema, "table", opts.Table)

	b := mapper.NewSQLBuilder(mapper.DialectPostgres, opts.Schema, opts.Table)
	return &PostgresStore{
		pool:   p,
		sql:    b,
		forms:  b.WithTable(opts.FormsTable),
		opts:   opts,
		logger: logger,
	}, nil
}

func (r *PostgresStore) Ping(ctx context.Context) error {
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	return r.pool.Ping(pingCtx)
}

// EnsureTable creates the schema and the table when missing
func (r *PostgresStore) EnsureTable(ctx context.Context) error {
	if q := r.sql.CreateSchema(); q != "" {
		if _, err := r.pool.Exec(ctx, q); err != nil {
			return fmt.Errorf("failed to create schema %s: %w", r.opts.Schema, err)
		}
	}
	if _, err := r.pool.Exec(ctx, r.sql.CreateTable()); err != nil {
		return fmt.Errorf("failed to create table %s: %w", r.sql.Table(), err)
	}
	return nil
}

func (r *PostgresStore) ListCurrent(ctx context.Context, ids []string) (map[string]models.CurrentState, error) {
	var (
		rows pgx.Rows
		err  error
	)
	if ids == nil {
		rows, err = r.pool.Query(ctx, r.sql.SelectAll())
	} else {
		rows, err = r.pool.Query(ctx, r.sql.SelectAny(), ids)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query current rows: %w", err)
	}
	defer rows.Close()

	out := make(map[string]models.CurrentState)
	for rows.Next() {
		var rec models.PersistedRecord
		var detail *string
		if err := rows.Scan(&rec.Identifier, &rec.Date, &rec.Active, &rec.CreatedAt, &rec.UpdatedAt, &detail); err != nil {
			return nil, fmt.Errorf("failed to scan current row: %w", err)
		}
		out[rec.Identifier] = models.CurrentState{Date: rec.Date, Active: rec.Active}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate current rows: %w", err)
	}
	return out, nil
}

func (r *PostgresStore) Insert(ctx context.Context, rec models.PersistedRecord) error {
	_, err := r.pool.Exec(ctx, r.sql.Insert(),
		rec.Identifier, rec.Date, rec.Active, rec.CreatedAt, rec.UpdatedAt, rec.Detail)
	return err
}

func (r *PostgresStore) Update(ctx context.Context, rec models.PersistedRecord) error {
	tag, err := r.pool.Exec(ctx, r.sql.Update(),
		rec.Date, rec.Active, rec.UpdatedAt, rec.Detail, rec.Identifier)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("identifier %s not found", rec.Identifier)
	}
	return nil
}

func (r *PostgresStore) Deactivate(ctx context.Context, identifier string, at time.Time) error {
	tag, err := r.pool.Exec(ctx, r.sql.Deactivate(), false, at, identifier)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("identifier %s not found", identifier)
	}
	return nil
}

// TryLock takes a session advisory lock keyed on the qualified table name.
// The lock lives on a dedicated pooled connection until release is called.
func (r *PostgresStore) TryLock(ctx context.Context) (func(), bool, error) {
	conn, err := r.pool.Acquire(ctx)
	if err != nil {
		return nil, false, fmt.Errorf("failed to acquire connection for lock: %w", err)
	}

	key := r.sql.Table()
	var acquired bool
	if err := conn.QueryRow(ctx, `SELECT pg_try_advisory_lock(hashtext($1))`, key).Scan(&acquired); err != nil {
		conn.Release()
		return nil, false, fmt.Errorf("failed to try advisory lock: %w", err)
	}
	if !acquired {
		conn.Release()
		return nil, false, nil
	}

	release := func() {
		unlockCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if _, err := conn.Exec(unlockCtx, `SELECT pg_advisory_unlock(hashtext($1))`, key); err != nil {
			r.logger.Error("Failed to release advisory lock, closing connection", "key", key, "error", err)
			// Dropping the session frees the lock
			_ = conn.Conn().Close(unlockCtx)
		}
		conn.Release()
	}
	return release, true, nil
}

// EnsureFormsTable creates the forms table or adds the columns it lacks
func (r *PostgresStore) EnsureFormsTable(ctx context.Context, columns map[string]mapper.ColumnKind) error {
	if q := r.forms.CreateSchema(); q != "" {
		if _, err := r.pool.Exec(ctx, q); err != nil {
			return fmt.Errorf("failed to create schema %s: %w", r.opts.Schema, err)
		}
	}

	existing, err := r.formColumns(ctx)
	if err != nil {
		return err
	}
	if len(existing) == 0 {
		if _, err := r.pool.Exec(ctx, r.forms.CreateFormsTable(columns)); err != nil {
			return fmt.Errorf("failed to create forms table: %w", err)
		}
		r.logger.Info("Forms table created", "table", r.forms.Table(), "columns", len(columns))
		return nil
	}

	return addMissingColumns(columns, existing, r.forms, func(q string) error {
		_, err := r.pool.Exec(ctx, q)
		return err
	}, r.logger)
}

func (r *PostgresStore) InsertForm(ctx context.Context, rec models.FormRecord) error {
	query, args, err := r.forms.BuildInsert(rec)
	if err != nil {
		return err
	}
	_, err = r.pool.Exec(ctx, query, args...)
	return err
}

func (r *PostgresStore) formColumns(ctx context.Context) (map[string]bool, error) {
	schema := r.opts.Schema
	if schema == "" {
		schema = "public"
	}
	rows, err := r.pool.Query(ctx,
		`SELECT column_name FROM information_schema.columns WHERE table_schema = $1 AND table_name = $2`,
		schema, r.opts.FormsTable)
	if err != nil {
		return nil, fmt.Errorf("failed to inspect forms table: %w", err)
	}
	names, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return nil, fmt.Errorf("failed to read forms columns: %w", err)
	}

	out := make(map[string]bool, len(names))
	for _, n := range names {
		out[n] = true
	}
	return out, nil
}

func (r *PostgresStore) Close() {
	r.logger.Info("Closing Postgres connection pool")
	r.pool.Close()
}
