package portal

import (
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// RigaIncasso is one raw daily-totals table row as scraped: date cell text
// and amount cell text, before any parsing.
type RigaIncasso struct {
	Data    string `json:"data"`
	Importo string `json:"importo"`
}

// ParseIncassiHTML extracts raw (date, amount) rows from a page HTML
// snapshot. The amount is taken from the second cell, falling back to the
// third when the second is empty (some portal layouts insert a label column).
func ParseIncassiHTML(html string) ([]RigaIncasso, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil, err
	}

	var righe []RigaIncasso
	doc.Find("table tbody tr, .table tbody tr").Each(func(_ int, row *goquery.Selection) {
		cells := row.Find("td")
		if cells.Length() == 0 {
			return
		}
		data := strings.TrimSpace(cells.Eq(0).Text())
		importo := strings.TrimSpace(cells.Eq(1).Text())
		if importo == "" && cells.Length() > 2 {
			importo = strings.TrimSpace(cells.Eq(2).Text())
		}
		if data == "" && importo == "" {
			return
		}
		righe = append(righe, RigaIncasso{Data: data, Importo: importo})
	})
	return righe, nil
}

// ScrapeIncassi reads the daily-totals table currently rendered on the page.
func (s *Session) ScrapeIncassi() ([]RigaIncasso, error) {
	html, err := s.page.HTML()
	if err != nil {
		return nil, err
	}
	return ParseIncassiHTML(html)
}
