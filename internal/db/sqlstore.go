package db

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	_ "github.com/nakagami/firebirdsql"
	_ "modernc.org/sqlite"

	"github.com/Guizzs26/go-imei-sync/internal/mapper"
	"github.com/Guizzs26/go-imei-sync/internal/models"
	"github.com/Guizzs26/go-imei-sync/pkg/encoding"
)

// maxInList keeps IN lists under Firebird's 1500 parameter limit
const maxInList = 500

// tableLocks serializes runs per destination inside this process. Neither
// Firebird 2.5 nor SQLite offers a session lock the store could hold.
var tableLocks sync.Map // key -> *sync.Mutex

// SQLStore is a database/sql backed store for the legacy Firebird database
// and for local SQLite files
type SQLStore struct {
	db      *sql.DB
	sql     *mapper.SQLBuilder
	forms   *mapper.SQLBuilder
	lockKey string
	logger  *slog.Logger
}

// NewSQLStore opens dialect firebird or sqlite
func NewSQLStore(dialect mapper.Dialect, opts Options, logger *slog.Logger) (*SQLStore, error) {
	var driver string
	switch dialect {
	case mapper.DialectFirebird:
		driver = "firebirdsql"
	case mapper.DialectSQLite:
		driver = "sqlite"
	default:
		return nil, fmt.Errorf("unsupported sql dialect %q", dialect)
	}

	db, err := sql.Open(driver, opts.DSN)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s connection: %w", dialect, err)
	}

	// Connection pool settings optimized for legacy systems and single-writer files
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(30 * time.Minute)
	db.SetConnMaxIdleTime(10 * time.Minute)

	pingCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		db.Close()
		return nil, fmt.Errorf("%s ping failed: %w", dialect, err)
	}

	logger.Info("Connected to SQL store successfully", "dialect", dialect, "table", opts.Table)

	b := mapper.NewSQLBuilder(dialect, opts.Schema, opts.Table)
	return &SQLStore{
		db:      db,
		sql:     b,
		forms:   b.WithTable(opts.FormsTable),
		lockKey: string(dialect) + "|" + opts.DSN + "|" + b.TableName(),
		logger:  logger,
	}, nil
}

func (r *SQLStore) Ping(ctx context.Context) error {
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	return r.db.PingContext(pingCtx)
}

func (r *SQLStore) EnsureTable(ctx context.Context) error {
	if r.sql.Dialect() == mapper.DialectFirebird {
		exists, err := r.relationExists(ctx, r.sql.TableName())
		if err != nil {
			return err
		}
		if exists {
			return nil
		}
	}

	if _, err := r.db.ExecContext(ctx, r.sql.CreateTable()); err != nil {
		return fmt.Errorf("failed to create table %s: %w", r.sql.Table(), err)
	}
	return nil
}

func (r *SQLStore) ListCurrent(ctx context.Context, ids []string) (map[string]models.CurrentState, error) {
	out := make(map[string]models.CurrentState)

	if ids == nil {
		if err := r.collect(ctx, out, r.sql.SelectAll()); err != nil {
			return nil, err
		}
		return out, nil
	}

	for start := 0; start < len(ids); start += maxInList {
		end := min(start+maxInList, len(ids))
		chunk := ids[start:end]
		args := make([]any, len(chunk))
		for i, id := range chunk {
			args[i] = id
		}
		if err := r.collect(ctx, out, r.sql.SelectIn(len(chunk)), args...); err != nil {
			return nil, err
		}
	}
	return out, nil
}

func (r *SQLStore) collect(ctx context.Context, out map[string]models.CurrentState, query string, args ...any) error {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("failed to query current rows: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			rawID                      []byte
			date, active, created, upd any
			detail                     sql.NullString
		)
		if err := rows.Scan(&rawID, &date, &active, &created, &upd, &detail); err != nil {
			return fmt.Errorf("failed to scan current row: %w", err)
		}

		// legacy Firebird databases are WIN1252
		id := encoding.ToUTF8(rawID)

		d, err := toTime(date)
		if err != nil {
			return fmt.Errorf("identifier %s: %w", id, err)
		}
		a, err := toBool(active)
		if err != nil {
			return fmt.Errorf("identifier %s: %w", id, err)
		}
		out[id] = models.CurrentState{Date: d, Active: a}
	}
	return rows.Err()
}

func (r *SQLStore) Insert(ctx context.Context, rec models.PersistedRecord) error {
	f := r.sql.FormatValue
	_, err := r.db.ExecContext(ctx, r.sql.Insert(),
		rec.Identifier, f(rec.Date), f(rec.Active), f(rec.CreatedAt), f(rec.UpdatedAt), rec.Detail)
	return err
}

func (r *SQLStore) Update(ctx context.Context, rec models.PersistedRecord) error {
	f := r.sql.FormatValue
	res, err := r.db.ExecContext(ctx, r.sql.Update(),
		f(rec.Date), f(rec.Active), f(rec.UpdatedAt), rec.Detail, rec.Identifier)
	if err != nil {
		return err
	}
	return expectRow(res, rec.Identifier)
}

func (r *SQLStore) Deactivate(ctx context.Context, identifier string, at time.Time) error {
	f := r.sql.FormatValue
	res, err := r.db.ExecContext(ctx, r.sql.Deactivate(), f(false), f(at), identifier)
	if err != nil {
		return err
	}
	return expectRow(res, identifier)
}

// TryLock holds a process-local mutex per database and table
func (r *SQLStore) TryLock(ctx context.Context) (func(), bool, error) {
	v, _ := tableLocks.LoadOrStore(r.lockKey, &sync.Mutex{})
	mu := v.(*sync.Mutex)
	if !mu.TryLock() {
		return nil, false, nil
	}
	return mu.Unlock, true, nil
}

func (r *SQLStore) EnsureFormsTable(ctx context.Context, columns map[string]mapper.ColumnKind) error {
	existing, err := r.formColumns(ctx)
	if err != nil {
		return err
	}
	if len(existing) == 0 {
		if _, err := r.db.ExecContext(ctx, r.forms.CreateFormsTable(columns)); err != nil {
			return fmt.Errorf("failed to create forms table: %w", err)
		}
		r.logger.Info("Forms table created", "table", r.forms.Table(), "columns", len(columns))
		return nil
	}

	return addMissingColumns(columns, existing, r.forms, func(q string) error {
		_, err := r.db.ExecContext(ctx, q)
		return err
	}, r.logger)
}

func (r *SQLStore) InsertForm(ctx context.Context, rec models.FormRecord) error {
	query, args, err := r.forms.BuildInsert(rec)
	if err != nil {
		return err
	}
	_, err = r.db.ExecContext(ctx, query, args...)
	return err
}

func (r *SQLStore) formColumns(ctx context.Context) (map[string]bool, error) {
	var query string
	switch r.forms.Dialect() {
	case mapper.DialectFirebird:
		query = `SELECT TRIM(RDB$FIELD_NAME) FROM RDB$RELATION_FIELDS WHERE RDB$RELATION_NAME = ?`
	default:
		query = `SELECT name FROM pragma_table_info(?)`
	}

	rows, err := r.db.QueryContext(ctx, query, r.forms.TableName())
	if err != nil {
		return nil, fmt.Errorf("failed to inspect forms table: %w", err)
	}
	defer rows.Close()

	out := make(map[string]bool)
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("failed to read forms columns: %w", err)
		}
		out[strings.ToLower(strings.TrimSpace(name))] = true
	}
	return out, rows.Err()
}

func (r *SQLStore) relationExists(ctx context.Context, name string) (bool, error) {
	var n int
	err := r.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM RDB$RELATIONS WHERE RDB$RELATION_NAME = ?`, name).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("failed to check table %s: %w", name, err)
	}
	return n > 0, nil
}

// Close gracefully shuts down the database connection pool
func (r *SQLStore) Close() error {
	r.logger.Info("Closing SQL store connection pool", "dialect", r.sql.Dialect())
	return r.db.Close()
}

func expectRow(res sql.Result, identifier string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return nil // driver cannot tell
	}
	if n == 0 {
		return fmt.Errorf("identifier %s not found", identifier)
	}
	return nil
}

func addMissingColumns(want map[string]mapper.ColumnKind, existing map[string]bool, b *mapper.SQLBuilder, exec func(string) error, logger *slog.Logger) error {
	names := make([]string, 0, len(want))
	for n := range want {
		names = append(names, n)
	}
	sort.Strings(names)

	for _, name := range names {
		if existing[strings.ToLower(name)] {
			continue
		}
		if err := exec(b.AddColumn(name, want[name])); err != nil {
			return fmt.Errorf("failed to add column %s: %w", name, err)
		}
		logger.Info("Forms column added", "table", b.Table(), "column", name)
	}
	return nil
}

var storedTimeLayouts = []string{
	"2006-01-02 15:04:05.999999999-07:00",
	"2006-01-02T15:04:05.999999999-07:00",
	"2006-01-02 15:04:05.999999999",
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05",
	"2006-01-02",
}

func toTime(v any) (*time.Time, error) {
	switch t := v.(type) {
	case nil:
		return nil, nil
	case time.Time:
		if t.IsZero() {
			return nil, nil
		}
		return &t, nil
	case []byte:
		return toTime(string(t))
	case string:
		s := strings.TrimSpace(t)
		if s == "" {
			return nil, nil
		}
		for _, layout := range storedTimeLayouts {
			if parsed, err := time.Parse(layout, s); err == nil {
				return &parsed, nil
			}
		}
		return nil, fmt.Errorf("unrecognized stored timestamp %q", s)
	default:
		return nil, fmt.Errorf("unsupported timestamp type %T", v)
	}
}

func toBool(v any) (bool, error) {
	switch b := v.(type) {
	case bool:
		return b, nil
	case int64:
		return b != 0, nil
	case int32:
		return b != 0, nil
	case int16:
		return b != 0, nil
	case int:
		return b != 0, nil
	case []byte:
		return toBool(string(b))
	case string:
		parsed, err := strconv.ParseBool(strings.TrimSpace(b))
		if err != nil {
			return false, fmt.Errorf("unsupported active value %q", b)
		}
		return parsed, nil
	case nil:
		// DEFAULT applies on insert, a NULL here means a hand-edited row
		return true, nil
	default:
		return false, fmt.Errorf("unsupported active type %T", v)
	}
}
