// Package mail fetches partner workbooks from an IMAP mailbox and sends
// reconciliation notifications over SMTP
package mail

import (
	"regexp"
	"strings"

	"github.com/Guizzs26/go-imei-sync/pkg/encoding"
)

var groupSep = regexp.MustCompile(`[;,|]+`)

// Filter is a parsed subject filter: a subject matches when every token of
// at least one group occurs in it. An empty Filter matches everything.
type Filter [][]string

// ParseFilter splits raw on ';', ',' or '|' into groups of whitespace
// separated tokens. Comparison ignores case and accents.
func ParseFilter(raw string) Filter {
	var f Filter
	for _, group := range groupSep.Split(raw, -1) {
		tokens := strings.Fields(encoding.Fold(group))
		if len(tokens) > 0 {
			f = append(f, tokens)
		}
	}
	return f
}

// Matches reports whether subject satisfies the filter
func (f Filter) Matches(subject string) bool {
	if len(f) == 0 {
		return true
	}
	s := encoding.Fold(subject)
	for _, tokens := range f {
		all := true
		for _, tok := range tokens {
			if !strings.Contains(s, tok) {
				all = false
				break
			}
		}
		if all {
			return true
		}
	}
	return false
}
