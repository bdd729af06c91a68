package dates

import (
	"log/slog"
	"sort"
	"strings"
	"time"
	_ "time/tzdata"
)

// DefaultCountry is used when no country code is configured or the code is unknown
const DefaultCountry = "CR"

// Country binds an ISO 3166-1 alpha-2 code to its primary IANA zone
type Country struct {
	Code string `json:"code"`
	Name string `json:"name"`
	Zone string `json:"zone"`
}

var countries = map[string]Country{
	"AR": {"AR", "Argentina", "America/Argentina/Buenos_Aires"},
	"BR": {"BR", "Brasil", "America/Sao_Paulo"},
	"CL": {"CL", "Chile", "America/Santiago"},
	"CO": {"CO", "Colombia", "America/Bogota"},
	"CR": {"CR", "Costa Rica", "America/Costa_Rica"},
	"EC": {"EC", "Ecuador", "America/Guayaquil"},
	"ES": {"ES", "España", "Europe/Madrid"},
	"GT": {"GT", "Guatemala", "America/Guatemala"},
	"HN": {"HN", "Honduras", "America/Tegucigalpa"},
	"MX": {"MX", "México", "America/Mexico_City"},
	"NI": {"NI", "Nicaragua", "America/Managua"},
	"PA": {"PA", "Panamá", "America/Panama"},
	"PE": {"PE", "Perú", "America/Lima"},
	"SV": {"SV", "El Salvador", "America/El_Salvador"},
	"US": {"US", "Estados Unidos", "America/New_York"},
}

// LocationFor resolves a country code to its zone, falling back to DefaultCountry
func LocationFor(code string) *time.Location {
	code = strings.ToUpper(strings.TrimSpace(code))
	c, ok := countries[code]
	if !ok {
		if code != "" {
			slog.Warn("Unknown country code, using default zone", "code", code, "default", DefaultCountry)
		}
		c = countries[DefaultCountry]
	}

	loc, err := time.LoadLocation(c.Zone)
	if err != nil {
		slog.Error("Failed to load zone, falling back to UTC", "zone", c.Zone, "error", err)
		return time.UTC
	}
	return loc
}

// CountryForZone returns the country whose primary zone is zone
func CountryForZone(zone string) (Country, bool) {
	for _, c := range countries {
		if c.Zone == zone {
			return c, true
		}
	}
	return Country{}, false
}

// Countries lists the supported countries sorted by code
func Countries() []Country {
	out := make([]Country, 0, len(countries))
	for _, c := range countries {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Code < out[j].Code })
	return out
}
