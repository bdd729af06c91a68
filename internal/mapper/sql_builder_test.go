package mapper

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSQLBuilder_Postgres(t *testing.T) {
	b := NewSQLBuilder(DialectPostgres, "automatizacion", "imeis")

	assert.Equal(t, `"automatizacion"."imeis"`, b.Table())
	assert.Equal(t, `CREATE SCHEMA IF NOT EXISTS "automatizacion"`, b.CreateSchema())
	assert.Contains(t, b.CreateTable(), `CREATE TABLE IF NOT EXISTS "automatizacion"."imeis"`)
	assert.Equal(t,
		`UPDATE "automatizacion"."imeis" SET "associated_date" = $1, "active" = $2, "updated_at" = $3, "detail" = $4 WHERE "identifier" = $5`,
		b.Update())
	assert.Equal(t,
		`UPDATE "automatizacion"."imeis" SET "active" = $1, "updated_at" = $2 WHERE "identifier" = $3`,
		b.Deactivate())
	assert.Contains(t, b.Insert(), "VALUES ($1, $2, $3, $4, $5, $6)")
	assert.Contains(t, b.SelectAny(), `WHERE "identifier" = ANY($1)`)
	assert.Equal(t, true, b.FormatValue(true))
}

func TestSQLBuilder_Firebird(t *testing.T) {
	b := NewSQLBuilder(DialectFirebird, "ignored", "imeis")

	assert.Equal(t, "IMEIS", b.Table())
	assert.Equal(t, "IMEIS", b.TableName())
	assert.Empty(t, b.CreateSchema())
	assert.NotContains(t, b.CreateTable(), "IF NOT EXISTS")
	assert.Equal(t, "SELECT IDENTIFIER, ASSOCIATED_DATE, ACTIVE, CREATED_AT, UPDATED_AT, DETAIL FROM IMEIS WHERE IDENTIFIER IN (?, ?, ?)", b.SelectIn(3))
	assert.Equal(t, 1, b.FormatValue(true))
	assert.Equal(t, 0, b.FormatValue(false))
	assert.Equal(t, "ALTER TABLE IMEIS ADD NOTE VARCHAR(1024)", b.AddColumn("note", KindText))
}

func TestSQLBuilder_SQLiteTimeFormatting(t *testing.T) {
	b := NewSQLBuilder(DialectSQLite, "", "imeis")

	loc := time.FixedZone("CST", -6*3600)
	ts := time.Date(2025, 6, 17, 13, 31, 7, 0, loc)
	assert.Equal(t, "2025-06-17 13:31:07", b.FormatValue(ts))
	assert.Equal(t, "2025-06-17 13:31:07", b.FormatValue(&ts))

	var nilTime *time.Time
	assert.Nil(t, b.FormatValue(nilTime))
}

func TestSQLBuilder_BuildInsert(t *testing.T) {
	b := NewSQLBuilder(DialectPostgres, "s", "forms")

	query, args, err := b.BuildInsert(map[string]any{"zeta": 1, "alpha": "x", "mid": false})
	require.NoError(t, err)
	assert.Equal(t, `INSERT INTO "s"."forms" ("alpha", "mid", "zeta") VALUES ($1, $2, $3)`, query)
	assert.Equal(t, []any{"x", false, 1}, args)

	_, _, err = b.BuildInsert(nil)
	assert.Error(t, err)
}

func TestSQLBuilder_CreateFormsTable(t *testing.T) {
	b := NewSQLBuilder(DialectSQLite, "", "forms")

	ddl := b.CreateFormsTable(map[string]ColumnKind{
		"fecha_reporte": KindDate,
		"cantidad_gsm":  KindInt,
		"nombre":        KindText,
	})
	assert.Contains(t, ddl, `CREATE TABLE IF NOT EXISTS "forms"`)
	assert.Contains(t, ddl, `"cantidad_gsm" INTEGER`)
	assert.Contains(t, ddl, `"fecha_reporte" DATE`)
	assert.Contains(t, ddl, `"nombre" TEXT`)
	assert.Contains(t, ddl, `"inserted_at" TIMESTAMP`)
}
