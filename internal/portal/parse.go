package portal

import (
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"
)

var (
	isoDateRe   = regexp.MustCompile(`^(\d{4})-(\d{2})-(\d{2})`)
	itDateRe    = regexp.MustCompile(`(\d{1,2})[\/\-](\d{1,2})[\/\-](\d{4})`)
	numPrefixRe = regexp.MustCompile(`^[+-]?(\d+(\.\d*)?|\.\d+)`)
)

// ParseData normalizes a scraped date cell to YYYY-MM-DD. Accepts ISO
// prefixes ("2026-03-05T10:00") and italian day/month/year with "/" or "-"
// separators. Returns ok=false for anything else (header rows, blanks).
func ParseData(testo string) (string, bool) {
	s := strings.TrimSpace(testo)
	if s == "" {
		return "", false
	}
	if m := isoDateRe.FindStringSubmatch(s); m != nil {
		return fmt.Sprintf("%s-%s-%s", m[1], m[2], m[3]), true
	}
	if m := itDateRe.FindStringSubmatch(s); m != nil {
		day := m[1]
		month := m[2]
		if len(day) == 1 {
			day = "0" + day
		}
		if len(month) == 1 {
			month = "0" + month
		}
		return fmt.Sprintf("%s-%s-%s", m[3], month, day), true
	}
	return "", false
}

// ParseImporto normalizes an italian-formatted amount cell ("1.234,56") to a
// float. Whitespace is stripped, thousands-separator dots removed and the
// decimal comma converted, then the leading numeric prefix is parsed so a
// trailing currency symbol ("120,50 €") does not lose the row. Returns NaN
// when no numeric prefix exists.
func ParseImporto(testo string) float64 {
	if testo == "" {
		return math.NaN()
	}
	s := strings.Join(strings.Fields(testo), "")
	s = strings.ReplaceAll(s, ".", "")
	s = strings.ReplaceAll(s, ",", ".")
	prefix := numPrefixRe.FindString(s)
	if prefix == "" {
		return math.NaN()
	}
	v, err := strconv.ParseFloat(prefix, 64)
	if err != nil {
		return math.NaN()
	}
	return v
}
