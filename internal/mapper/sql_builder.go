package mapper

import (
	"fmt"
	"sort"
	"strings"
	"time"
)

// Dialect selects quoting, placeholders and column types
type Dialect string

const (
	DialectPostgres Dialect = "postgres"
	DialectFirebird Dialect = "firebird"
	DialectSQLite   Dialect = "sqlite"
)

// ColumnKind is the logical type of a dynamically created column
type ColumnKind string

const (
	KindText ColumnKind = "text"
	KindDate ColumnKind = "date"
	KindTime ColumnKind = "time"
	KindInt  ColumnKind = "int"
)

// Reconciliation table columns, in insert order
const (
	ColIdentifier = "identifier"
	ColDate       = "associated_date"
	ColActive     = "active"
	ColCreatedAt  = "created_at"
	ColUpdatedAt  = "updated_at"
	ColDetail     = "detail"
)

// SQLBuilder renders the statements the stores need for one destination table
type SQLBuilder struct {
	dialect Dialect
	schema  string
	table   string
}

// NewSQLBuilder binds a builder to a dialect and a destination table.
// schema is ignored by dialects without schemas.
func NewSQLBuilder(dialect Dialect, schema, table string) *SQLBuilder {
	return &SQLBuilder{dialect: dialect, schema: schema, table: table}
}

func (b *SQLBuilder) Dialect() Dialect { return b.dialect }

// WithTable returns a builder for another table in the same schema
func (b *SQLBuilder) WithTable(table string) *SQLBuilder {
	return &SQLBuilder{dialect: b.dialect, schema: b.schema, table: table}
}

// Ident quotes a single identifier for the dialect
func (b *SQLBuilder) Ident(name string) string {
	if b.dialect == DialectFirebird {
		// Unquoted so the engine folds to upper case like the rest of the legacy schema
		return strings.ToUpper(name)
	}
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}

// Table returns the qualified destination table
func (b *SQLBuilder) Table() string {
	if b.dialect == DialectPostgres && b.schema != "" {
		return b.Ident(b.schema) + "." + b.Ident(b.table)
	}
	return b.Ident(b.table)
}

// TableName is the bare table name as the catalog stores it
func (b *SQLBuilder) TableName() string {
	if b.dialect == DialectFirebird {
		return strings.ToUpper(b.table)
	}
	return b.table
}

// Placeholder returns the n-th (1-based) bind parameter
func (b *SQLBuilder) Placeholder(n int) string {
	if b.dialect == DialectPostgres {
		return fmt.Sprintf("$%d", n)
	}
	return "?"
}

func (b *SQLBuilder) placeholders(from, n int) []string {
	out := make([]string, n)
	for i := range out {
		out[i] = b.Placeholder(from + i)
	}
	return out
}

// CreateSchema returns an empty string for dialects without schemas
func (b *SQLBuilder) CreateSchema() string {
	if b.dialect != DialectPostgres || b.schema == "" {
		return ""
	}
	return "CREATE SCHEMA IF NOT EXISTS " + b.Ident(b.schema)
}

// CreateTable renders the reconciliation table DDL. Firebird 2.5 has no
// IF NOT EXISTS, callers check the catalog first.
func (b *SQLBuilder) CreateTable() string {
	switch b.dialect {
	case DialectFirebird:
		return fmt.Sprintf(`CREATE TABLE %s (
	IDENTIFIER VARCHAR(64) NOT NULL PRIMARY KEY,
	ASSOCIATED_DATE TIMESTAMP,
	ACTIVE SMALLINT DEFAULT 1 NOT NULL,
	CREATED_AT TIMESTAMP DEFAULT CURRENT_TIMESTAMP NOT NULL,
	UPDATED_AT TIMESTAMP DEFAULT CURRENT_TIMESTAMP NOT NULL,
	DETAIL VARCHAR(255)
)`, b.Table())
	case DialectSQLite:
		return fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	identifier TEXT NOT NULL UNIQUE,
	associated_date TIMESTAMP,
	active BOOLEAN NOT NULL DEFAULT 1,
	created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
	updated_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
	detail VARCHAR(255)
)`, b.Table())
	default:
		return fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
	id BIGSERIAL PRIMARY KEY,
	identifier VARCHAR(64) NOT NULL UNIQUE,
	associated_date TIMESTAMP,
	active BOOLEAN NOT NULL DEFAULT TRUE,
	created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
	updated_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
	detail VARCHAR(255)
)`, b.Table())
	}
}

func (b *SQLBuilder) selectColumns() string {
	return strings.Join([]string{
		b.Ident(ColIdentifier), b.Ident(ColDate), b.Ident(ColActive),
		b.Ident(ColCreatedAt), b.Ident(ColUpdatedAt), b.Ident(ColDetail),
	}, ", ")
}

// SelectAll reads the whole table ordered by identifier
func (b *SQLBuilder) SelectAll() string {
	return fmt.Sprintf("SELECT %s FROM %s ORDER BY %s", b.selectColumns(), b.Table(), b.Ident(ColIdentifier))
}

// SelectIn reads the rows for n identifiers
func (b *SQLBuilder) SelectIn(n int) string {
	return fmt.Sprintf("SELECT %s FROM %s WHERE %s IN (%s)",
		b.selectColumns(), b.Table(), b.Ident(ColIdentifier), strings.Join(b.placeholders(1, n), ", "))
}

// SelectAny reads the rows whose identifier is in a single array parameter (postgres only)
func (b *SQLBuilder) SelectAny() string {
	return fmt.Sprintf("SELECT %s FROM %s WHERE %s = ANY($1)", b.selectColumns(), b.Table(), b.Ident(ColIdentifier))
}

// Insert takes identifier, date, active, created_at, updated_at, detail
func (b *SQLBuilder) Insert() string {
	cols := []string{
		b.Ident(ColIdentifier), b.Ident(ColDate), b.Ident(ColActive),
		b.Ident(ColCreatedAt), b.Ident(ColUpdatedAt), b.Ident(ColDetail),
	}
	return fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)",
		b.Table(), strings.Join(cols, ", "), strings.Join(b.placeholders(1, len(cols)), ", "))
}

// Update takes date, active, updated_at, detail, identifier
func (b *SQLBuilder) Update() string {
	return fmt.Sprintf("UPDATE %s SET %s = %s, %s = %s, %s = %s, %s = %s WHERE %s = %s",
		b.Table(),
		b.Ident(ColDate), b.Placeholder(1),
		b.Ident(ColActive), b.Placeholder(2),
		b.Ident(ColUpdatedAt), b.Placeholder(3),
		b.Ident(ColDetail), b.Placeholder(4),
		b.Ident(ColIdentifier), b.Placeholder(5),
	)
}

// Deactivate takes active, updated_at, identifier
func (b *SQLBuilder) Deactivate() string {
	return fmt.Sprintf("UPDATE %s SET %s = %s, %s = %s WHERE %s = %s",
		b.Table(),
		b.Ident(ColActive), b.Placeholder(1),
		b.Ident(ColUpdatedAt), b.Placeholder(2),
		b.Ident(ColIdentifier), b.Placeholder(3),
	)
}

// ColumnType maps a logical kind to the dialect's column type
func (b *SQLBuilder) ColumnType(k ColumnKind) string {
	switch k {
	case KindDate:
		return "DATE"
	case KindTime:
		if b.dialect == DialectPostgres {
			return "TIME WITHOUT TIME ZONE"
		}
		return "TIME"
	case KindInt:
		return "INTEGER"
	default:
		if b.dialect == DialectFirebird {
			return "VARCHAR(1024)"
		}
		return "TEXT"
	}
}

// CreateFormsTable renders the DDL for a free-form records table
func (b *SQLBuilder) CreateFormsTable(columns map[string]ColumnKind) string {
	names := sortedKeys(columns)
	defs := make([]string, 0, len(names)+2)

	switch b.dialect {
	case DialectFirebird:
		// no identity columns before Firebird 3
	case DialectSQLite:
		defs = append(defs, `id INTEGER PRIMARY KEY AUTOINCREMENT`)
	default:
		defs = append(defs, `id BIGSERIAL PRIMARY KEY`)
	}
	for _, n := range names {
		defs = append(defs, b.Ident(n)+" "+b.ColumnType(columns[n]))
	}
	defs = append(defs, b.Ident("inserted_at")+" TIMESTAMP DEFAULT CURRENT_TIMESTAMP")

	ifNotExists := "IF NOT EXISTS "
	if b.dialect == DialectFirebird {
		ifNotExists = ""
	}
	return fmt.Sprintf("CREATE TABLE %s%s (\n\t%s\n)", ifNotExists, b.Table(), strings.Join(defs, ",\n\t"))
}

// AddColumn renders an ALTER TABLE for one missing column
func (b *SQLBuilder) AddColumn(name string, kind ColumnKind) string {
	if b.dialect == DialectFirebird {
		return fmt.Sprintf("ALTER TABLE %s ADD %s %s", b.Table(), b.Ident(name), b.ColumnType(kind))
	}
	return fmt.Sprintf("ALTER TABLE %s ADD COLUMN %s %s", b.Table(), b.Ident(name), b.ColumnType(kind))
}

// BuildInsert generates an INSERT for an arbitrary column map, keys sorted
// so the same map always yields the same statement
func (b *SQLBuilder) BuildInsert(data map[string]any) (string, []any, error) {
	if len(data) == 0 {
		return "", nil, fmt.Errorf("no data provided for insert on table %s", b.table)
	}

	keys := sortedKeys(data)
	columns := make([]string, 0, len(keys))
	args := make([]any, 0, len(keys))
	for _, k := range keys {
		columns = append(columns, b.Ident(k))
		args = append(args, b.FormatValue(data[k]))
	}

	query := fmt.Sprintf(
		"INSERT INTO %s (%s) VALUES (%s)",
		b.Table(),
		strings.Join(columns, ", "),
		strings.Join(b.placeholders(1, len(keys)), ", "),
	)
	return query, args, nil
}

// FormatValue adapts Go values to what the dialect's driver expects
func (b *SQLBuilder) FormatValue(v any) any {
	switch val := v.(type) {
	case bool:
		if b.dialect == DialectPostgres {
			return val
		}
		if val {
			return 1
		}
		return 0
	case *time.Time:
		if val == nil {
			return nil
		}
		return b.FormatValue(*val)
	case time.Time:
		if b.dialect == DialectSQLite {
			// Stored as text so the wall clock survives round trips regardless of zone
			return val.Format("2006-01-02 15:04:05")
		}
		return val
	default:
		return val
	}
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
