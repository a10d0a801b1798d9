package portal

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

const clickableTextsJS = `() => {
	const out = [];
	const seen = new Set();
	for (const sel of ["a", "button", "[role='button']", "[onclick]"]) {
		document.querySelectorAll(sel).forEach((el) => {
			const t = (el.textContent || "").trim().slice(0, 80);
			if (t && !seen.has(t)) {
				seen.add(t);
				out.push(t);
			}
		});
	}
	return JSON.stringify(out);
}`

const tablesSummaryJS = `() => {
	const tables = document.querySelectorAll("table");
	const out = Array.from(tables).map((t) => {
		const rows = t.querySelectorAll("tbody tr");
		const header = t.querySelector("thead tr");
		const cols = header
			? Array.from(header.querySelectorAll("th, td")).map((c) => (c.textContent || "").trim())
			: [];
		const first = rows[0]
			? Array.from(rows[0].querySelectorAll("td, th")).map((c) => ((c.textContent || "").trim()).slice(0, 30))
			: [];
		return { rows: rows.length, cols, first };
	});
	return JSON.stringify(out);
}`

// ClickableTexts inventories the texts of clickable elements on the page.
// Shown to the operator so a renamed sede or menu item can be spotted from
// the run output alone.
func (s *Session) ClickableTexts() []string {
	res, err := s.page.Timeout(10 * time.Second).Eval(clickableTextsJS)
	if err != nil {
		return nil
	}
	var texts []string
	if err := json.Unmarshal([]byte(res.Value.Str()), &texts); err != nil {
		return nil
	}
	return texts
}

type tableSummary struct {
	Rows  int      `json:"rows"`
	Cols  []string `json:"cols"`
	First []string `json:"first"`
}

// TablesSummary describes every table on the page: row count, header columns
// and the first body row. Pure diagnostics for selector drift.
func (s *Session) TablesSummary() string {
	res, err := s.page.Timeout(10 * time.Second).Eval(tablesSummaryJS)
	if err != nil {
		return "no tables read"
	}
	var tables []tableSummary
	if err := json.Unmarshal([]byte(res.Value.Str()), &tables); err != nil || len(tables) == 0 {
		return "no tbody tables found"
	}

	parts := make([]string, 0, len(tables))
	for i, t := range tables {
		parts = append(parts, fmt.Sprintf("table %d: %d rows, cols [%s], first row [%s]",
			i+1, t.Rows, strings.Join(t.Cols, ", "), strings.Join(t.First, ", ")))
	}
	return strings.Join(parts, "; ")
}
