package excel

import (
	"fmt"
	"math"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/xuri/excelize/v2"

	"github.com/Guizzs26/go-imei-sync/internal/mapper"
	"github.com/Guizzs26/go-imei-sync/internal/models"
	"github.com/Guizzs26/go-imei-sync/pkg/encoding"
)

// FieldMapping binds a workbook header to a destination column
type FieldMapping struct {
	Header string
	Column string
	Kind   mapper.ColumnKind
}

// FormsExtraction is the result of reading one form export
type FormsExtraction struct {
	File    string
	Records []models.FormRecord
	Found   []string // headers present in the workbook
	Missing []string
}

var baseFormFields = []FieldMapping{
	{"Nombre del Archivo", "nombre_archivo", mapper.KindText},
	{"Fecha de Reporte", "fecha_reporte", mapper.KindDate},
	{"Correlativo", "correlativo", mapper.KindText},
	{"Número Afiliado Gestión Afiliado principal", "numero_afiliado", mapper.KindText},
	{"Nombre del Afiliado", "nombre_afiliado", mapper.KindText},
	{"Indique número de oportunidad", "numero_oportunidad", mapper.KindText},
	{"Indique número de SS", "numero_ss", mapper.KindText},
	{"Atención por", "atencion_por", mapper.KindText},
	{"Cantidad GSM", "cantidad_gsm", mapper.KindInt},
	{"Cierre de gestión", "cierre_gestion", mapper.KindText},
	{"Fecha compromiso", "fecha_compromiso", mapper.KindDate},
	{"Detalle de trabajo realizado para cierre de gestión", "detalle_trabajo", mapper.KindText},
	{"Entrega de Papelería y Cantidad", "entrega_papeleria", mapper.KindText},
	{"Evaluaciones a realizar", "evaluaciones_realizar", mapper.KindText},
	{"Fecha resolución", "fecha_resolucion", mapper.KindDate},
	{"Hora de llegada", "hora_llegada", mapper.KindTime},
	{"Hora de salida", "hora_salida", mapper.KindTime},
	{"Nombre del oficial técnico que brinda servicio", "nombre_tecnico", mapper.KindText},
	{"Nombre persona que atiende", "nombre_atiende", mapper.KindText},
	{"Revisión General en cualquier visita", "revision_general", mapper.KindText},
	{"Tipo de gestiones", "tipo_gestiones", mapper.KindText},
	{"Tipo de terminal instalada, reprogramada o retirada", "tipo_terminal", mapper.KindText},
	{"Técnico que atiende", "tecnico_atiende", mapper.KindText},
	{"Validación fecha", "fecha_validacion", mapper.KindDate},
	{"¿El datáfono instalado lleva código QR?", "tiene_qr", mapper.KindText},
	{"¿Es posible capturar el correo electrónico del comercio?", "correo_comercio_capturado", mapper.KindText},
	{"¿Instalar SIM adicional?", "sim_adicional", mapper.KindText},
	{"¿POS GSM Prestada?", "pos_gsm_prestada", mapper.KindText},
	{"Datos de terminal", "datos_terminal", mapper.KindText},
}

// terminal block headers repeat for up to 20 terminals: "Terminal - X", "Terminal 2 - X", ...
var terminalFields = []struct{ suffix, column string }{
	{"Actualización en Sistema Adquirente", "actualizacion"},
	{"Esta serie fue", "estado"},
	{"Esta serie lleva SIM", "lleva_sim"},
	{"Modelo de Terminal", "modelo"},
	{"Número de SIM", "numero_sim"},
	{"Número de Serie", "numero_serie"},
	{"Número de Terminal", "numero_terminal"},
	{"Comentario", "comentario"},
}

const maxTerminals = 20

// DefaultFormMappings returns the field service export layout
func DefaultFormMappings() []FieldMapping {
	out := make([]FieldMapping, 0, len(baseFormFields)+len(terminalFields)*maxTerminals+maxTerminals)
	out = append(out, baseFormFields...)

	for _, tf := range terminalFields {
		for i := 1; i <= maxTerminals; i++ {
			prefix := "Terminal"
			if i > 1 {
				prefix = fmt.Sprintf("Terminal %d", i)
			}
			out = append(out, FieldMapping{
				Header: prefix + " - " + tf.suffix,
				Column: fmt.Sprintf("terminal_%d_%s", i, tf.column),
				Kind:   mapper.KindText,
			})
		}
	}
	for i := 2; i <= maxTerminals; i++ {
		out = append(out, FieldMapping{
			Header: fmt.Sprintf("¿Instalar SIM adicional? (%d)", i),
			Column: fmt.Sprintf("sim_adicional_%d", i),
			Kind:   mapper.KindText,
		})
	}
	return out
}

// ColumnKinds returns the destination columns of mappings with their kinds
func ColumnKinds(mappings []FieldMapping) map[string]mapper.ColumnKind {
	out := make(map[string]mapper.ColumnKind, len(mappings))
	for _, m := range mappings {
		out[m.Column] = m.Kind
	}
	return out
}

// ExtractForms reads the active sheet, row 1 being the header. At least one
// mapped header must be present. Rows whose mapped cells are all empty are
// skipped.
func ExtractForms(path string, mappings []FieldMapping, loc *time.Location) (FormsExtraction, error) {
	res := FormsExtraction{File: path}

	f, sheet, err := open(path, "")
	if err != nil {
		return res, err
	}
	defer f.Close()

	rows, err := f.Rows(sheet)
	if err != nil {
		return res, &ExtractionError{File: path, Reason: "cannot read sheet " + sheet, Err: err}
	}
	defer rows.Close()

	if !rows.Next() {
		return res, &ExtractionError{File: path, Reason: "sheet is empty"}
	}
	header, err := rows.Columns(excelize.Options{RawCellValue: true})
	if err != nil {
		return res, &ExtractionError{File: path, Reason: "cannot read header row", Err: err}
	}

	type bound struct {
		FieldMapping
		col int
	}
	var fields []bound
	for _, m := range mappings {
		if col := headerIndex(header, m.Header); col > 0 {
			fields = append(fields, bound{m, col})
			res.Found = append(res.Found, m.Header)
		} else {
			res.Missing = append(res.Missing, m.Header)
		}
	}
	if len(fields) == 0 {
		return res, &ExtractionError{File: path, Reason: "workbook contains none of the expected fields"}
	}

	rowNum := 1
	for rows.Next() {
		rowNum++
		cells, err := rows.Columns(excelize.Options{RawCellValue: true})
		if err != nil {
			return res, &ExtractionError{File: path, Reason: fmt.Sprintf("cannot read row %d", rowNum), Err: err}
		}

		rec := make(models.FormRecord, len(fields))
		filled := false
		for _, fld := range fields {
			v := convertFormCell(cell(cells, fld.col), fld.Kind, loc)
			rec[fld.Column] = v
			if v != nil {
				filled = true
			}
		}
		if filled {
			res.Records = append(res.Records, rec)
		}
	}
	if err := rows.Error(); err != nil {
		return res, &ExtractionError{File: path, Reason: "cannot iterate rows", Err: err}
	}

	if _, ok := ColumnKinds(mappings)["nombre_archivo"]; ok {
		for _, rec := range res.Records {
			if rec["nombre_archivo"] == nil {
				rec["nombre_archivo"] = filepath.Base(path)
			}
		}
	}
	return res, nil
}

func convertFormCell(raw string, kind mapper.ColumnKind, loc *time.Location) any {
	if raw == "" {
		return nil
	}

	switch kind {
	case mapper.KindDate:
		t, ok := parseCellDate(raw, loc)
		if !ok {
			return nil
		}
		return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
	case mapper.KindTime:
		return parseClock(raw)
	case mapper.KindInt:
		v, err := strconv.ParseFloat(raw, 64)
		if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
			return nil
		}
		return int64(v)
	default:
		return identifierText(raw)
	}
}

var clockLayouts = []string{"3:04 PM", "3:04:05 PM", "15:04", "15:04:05"}

// parseClock accepts a day fraction or a wall clock string and returns HH:MM:SS
func parseClock(raw string) any {
	if v, err := strconv.ParseFloat(raw, 64); err == nil {
		frac := v - math.Floor(v)
		secs := int(math.Round(frac * 86400))
		return fmt.Sprintf("%02d:%02d:%02d", secs/3600%24, secs/60%60, secs%60)
	}

	s := strings.ToUpper(strings.TrimSpace(raw))
	// exports sometimes append the zone, e.g. "2:15 PM GMT-6"
	if i := strings.Index(s, " GMT"); i > 0 {
		s = s[:i]
	}
	for _, l := range clockLayouts {
		if t, err := time.Parse(l, s); err == nil {
			return t.Format("15:04:05")
		}
	}
	return nil
}

func foldHeader(s string) string {
	return encoding.Fold(s)
}
