package reconcile

import (
	"strings"

	"github.com/Guizzs26/go-imei-sync/internal/models"
)

// IMEILength is the number of digits of an IMEI without software version
const IMEILength = 15

// ValidIMEI reports whether s is exactly fifteen ASCII digits. The Luhn check
// digit is not verified; partner files carry test ranges that fail it.
func ValidIMEI(s string) bool {
	s = strings.TrimSpace(s)
	if len(s) != IMEILength {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

// NonIMEI returns the identifiers of rows that do not look like an IMEI.
// They are still reconciled; callers only surface them as warnings.
func NonIMEI(rows []models.ExtractedRecord) []string {
	var out []string
	for _, r := range rows {
		if !ValidIMEI(r.Identifier) {
			out = append(out, r.Identifier)
		}
	}
	return out
}
