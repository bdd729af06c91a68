package excel

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"github.com/Guizzs26/go-imei-sync/internal/dates"
	"github.com/Guizzs26/go-imei-sync/internal/models"
)

// writeWorkbook saves rows (row 1 first) to a fresh workbook and returns its path
func writeWorkbook(t *testing.T, rows [][]any) string {
	t.Helper()
	f := excelize.NewFile()
	defer f.Close()

	for i, r := range rows {
		cell, err := excelize.CoordinatesToCellName(1, i+1)
		require.NoError(t, err)
		row := r
		require.NoError(t, f.SetSheetRow("Sheet1", cell, &row))
	}

	path := filepath.Join(t.TempDir(), "partner.xlsx")
	require.NoError(t, f.SaveAs(path))
	return path
}

func TestExtract_ByColumnLetter(t *testing.T) {
	loc := dates.LocationFor("CR")
	d := time.Date(2025, 6, 17, 13, 31, 7, 0, time.UTC)

	path := writeWorkbook(t, [][]any{
		{"a", "b", "c", "d", "e", "f", "IMEI", "Fecha"},
		{nil, nil, nil, nil, nil, nil, "356789012345678", "6/17/2025 1:31:07 PM"},
		{nil, nil, nil, nil, nil, nil, 356789012345679, d},
		{nil, nil, nil, nil, nil, nil, nil, nil},
		{nil, nil, nil, nil, nil, nil, "  ", "2025-01-10"},
		{nil, nil, nil, nil, nil, nil, "SN-0001", "garbage"},
	})

	ext, err := Extract(path, ExtractOptions{IdentifierColumn: "G", DateColumn: "h", SkipHeader: true, Location: loc})
	require.NoError(t, err)
	assert.Equal(t, "Sheet1", ext.Sheet)
	require.Len(t, ext.Rows, 4)
	assert.Equal(t, 4, ext.TotalRows)

	first := ext.Rows[0]
	assert.Equal(t, "356789012345678", first.Identifier)
	require.NotNil(t, first.Date)
	assert.Equal(t, 17, first.Date.Day())
	assert.Equal(t, 13, first.Date.Hour())
	assert.Equal(t, loc, first.Date.Location())
	assert.Equal(t, 2, first.Row)

	second := ext.Rows[1]
	assert.Equal(t, "356789012345679", second.Identifier, "numeric cells must not use exponent notation")
	require.NotNil(t, second.Date)
	assert.Equal(t, time.June, second.Date.Month())
	assert.Equal(t, 17, second.Date.Day())

	assert.Equal(t, "", ext.Rows[2].Identifier)
	assert.Nil(t, ext.Rows[3].Date)
}

func TestExtract_ByHeader(t *testing.T) {
	path := writeWorkbook(t, [][]any{
		{"Cliente", "Número IMEI", "Fecha Cliente"},
		{"x", "111111111111111", "2025-01-10"},
	})

	ext, err := Extract(path, ExtractOptions{IdentifierColumn: "numero imei", DateColumn: "FECHA CLIENTE"})
	require.NoError(t, err)
	require.Len(t, ext.Rows, 1)
	assert.Equal(t, "111111111111111", ext.Rows[0].Identifier)
	assert.Equal(t, 10, ext.Rows[0].Date.Day())
}

func TestExtract_ShortHeaderIsNotAColumnLetter(t *testing.T) {
	path := writeWorkbook(t, [][]any{
		{"ID", "Fecha"},
		{"356789012345678", "2025-06-17"},
		{"356789012345679", "2025-06-18"},
	})

	ext, err := Extract(path, ExtractOptions{IdentifierColumn: "ID", DateColumn: "B"})
	require.NoError(t, err)
	require.Len(t, ext.Rows, 2)
	assert.Equal(t, "356789012345678", ext.Rows[0].Identifier)
	assert.Equal(t, 2, ext.Rows[0].Row)
	require.NotNil(t, ext.Rows[1].Date)
	assert.Equal(t, 18, ext.Rows[1].Date.Day())
}

func TestExtract_LettersWithoutHeader(t *testing.T) {
	path := writeWorkbook(t, [][]any{
		{"356789012345678", "2025-06-17"},
	})

	ext, err := Extract(path, ExtractOptions{IdentifierColumn: "A", DateColumn: "B"})
	require.NoError(t, err)
	require.Len(t, ext.Rows, 1)
	assert.Equal(t, 1, ext.Rows[0].Row)
}

func TestExtract_Errors(t *testing.T) {
	path := writeWorkbook(t, [][]any{{"IMEI"}, {"1"}})

	_, err := Extract(path, ExtractOptions{IdentifierColumn: "IMEI", DateColumn: "Fecha"})
	require.Error(t, err)
	assert.True(t, IsExtractionError(err))
	assert.Contains(t, err.Error(), `column "Fecha" not found`)

	_, err = Extract(filepath.Join(t.TempDir(), "missing.xlsx"), DefaultExtractOptions())
	assert.True(t, IsExtractionError(err))

	_, err = Extract(path, ExtractOptions{IdentifierColumn: "A", DateColumn: "B", Sheet: "Nope"})
	assert.True(t, IsExtractionError(err))
}

func TestExtractForms(t *testing.T) {
	path := writeWorkbook(t, [][]any{
		{"Correlativo", "Fecha de Reporte", "Cantidad GSM", "Hora de llegada", "Terminal 2 - Número de Serie", "Ignorada"},
		{"C-1", "2025-06-17", 3, "2:15 PM GMT-6", "SER123", "x"},
		{nil, nil, nil, nil, nil, "only unmapped"},
		{"C-2", nil, "n/a", 0.75, nil, nil},
	})

	res, err := ExtractForms(path, DefaultFormMappings(), nil)
	require.NoError(t, err)
	assert.Len(t, res.Found, 5)
	assert.NotEmpty(t, res.Missing)
	require.Len(t, res.Records, 2)

	r := res.Records[0]
	assert.Equal(t, "C-1", r["correlativo"])
	assert.Equal(t, int64(3), r["cantidad_gsm"])
	assert.Equal(t, "14:15:00", r["hora_llegada"])
	assert.Equal(t, "SER123", r["terminal_2_numero_serie"])
	assert.Equal(t, time.Date(2025, 6, 17, 0, 0, 0, 0, time.UTC), r["fecha_reporte"])
	assert.Equal(t, "partner.xlsx", r["nombre_archivo"])

	r = res.Records[1]
	assert.Nil(t, r["cantidad_gsm"])
	assert.Equal(t, "18:00:00", r["hora_llegada"])
}

func TestExtractForms_NoKnownHeaders(t *testing.T) {
	path := writeWorkbook(t, [][]any{{"foo", "bar"}, {"1", "2"}})
	_, err := ExtractForms(path, DefaultFormMappings(), nil)
	assert.True(t, IsExtractionError(err))
}

func TestDefaultFormMappings(t *testing.T) {
	m := DefaultFormMappings()
	kinds := ColumnKinds(m)
	assert.Len(t, kinds, len(m), "columns must be unique")
	assert.Contains(t, kinds, "terminal_1_actualizacion")
	assert.Contains(t, kinds, "terminal_20_comentario")
	assert.Contains(t, kinds, "sim_adicional_20")
}

func TestWriteReport(t *testing.T) {
	d := time.Date(2025, 1, 10, 0, 0, 0, 0, time.UTC)
	batch := models.BatchResult{
		RunID:   "r",
		Success: true,
		Files: []models.FileReport{
			{File: "a.xlsx", Report: &models.Report{
				Total:  2,
				Counts: models.ReportCounts{New: 1, Updated: 1, Reactivated: 1},
				New:    []models.ExtractedRecord{{Identifier: "N1", Date: &d, Row: 2}},
				Updated: []models.UpdatedRecord{
					{Identifier: "U1", Date: &d, WasInactive: true},
				},
			}},
			{File: "b.xls", Failed: true, Error: "legacy .xls workbooks are not supported"},
		},
	}

	path := filepath.Join(t.TempDir(), "report.xlsx")
	require.NoError(t, WriteReport(path, batch))

	f, err := excelize.OpenFile(path)
	require.NoError(t, err)
	defer f.Close()

	assert.Equal(t, []string{"Summary", "New", "Updated", "Deactivated", "Duplicates", "Errors"}, f.GetSheetList())

	rows, err := f.GetRows("Summary")
	require.NoError(t, err)
	require.Len(t, rows, 3)
	assert.Equal(t, "a.xlsx", rows[1][0])
	assert.Equal(t, "OK", rows[1][1])
	assert.Equal(t, "FAILED", rows[2][1])

	rows, err = f.GetRows("New")
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, []string{"a.xlsx", "N1", "2025-01-10", "2"}, rows[1])

	rows, err = f.GetRows("Updated")
	require.NoError(t, err)
	assert.Equal(t, "yes", rows[1][4])
}
