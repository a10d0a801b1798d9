package portal

import (
	"encoding/json"
	"fmt"
	"log"
	"strings"
	"time"
)

// globalStoreLabels identify the outlet <select>: the one control whose
// options include an "all stores" entry.
var globalStoreLabels = []string{"tutti i punti vendita", "tutti i negozi", "all stores"}

// refreshLabels are the texts of the dashboard's own refresh action.
var refreshLabels = []string{"aggiorna", "refresh"}

// StoreOption is one (value, label) pair of the outlet selector.
type StoreOption struct {
	Value string `json:"value"`
	Label string `json:"label"`
}

// StoreSelection reports what the outlet selector resolved to. When the
// requested value is absent, Applied is false and Available lists what the
// page offered; the caller reports it and continues, it never guesses.
type StoreSelection struct {
	Applied   bool          `json:"applied"`
	Value     string        `json:"value"`
	Label     string        `json:"label"`
	Available []StoreOption `json:"available,omitempty"`
}

// FilterSelection is the requested filter state for a run.
type FilterSelection struct {
	StoreValue string
	Origins    []string
	Types      []string
}

// FilterState is what was actually applied, read back from the page after
// the dashboard refreshed. Filter option sets are only known after render,
// so this is the source of truth for snapshot keys.
type FilterState struct {
	Store   StoreSelection `json:"store"`
	Origins []string       `json:"origins"`
	Types   []string       `json:"types"`
}

const readSelectsJS = `() => {
	const out = [];
	document.querySelectorAll("select").forEach((sel, i) => {
		const options = [];
		sel.querySelectorAll("option").forEach((o) => {
			options.push({ value: o.value, label: (o.textContent || "").trim() });
		});
		out.push({ index: i, options });
	});
	return JSON.stringify(out);
}`

const selectValueJS = `(i, v) => {
	const sel = document.querySelectorAll("select")[i];
	if (!sel) return false;
	sel.value = v;
	sel.dispatchEvent(new Event("change", { bubbles: true }));
	return true;
}`

// clickByTextJS reproduces the portal-menu click: walk likely containers
// first, then any element, and click the first whose text contains the
// target (case-insensitive).
const clickByTextJS = `(text) => {
	if (!text) return false;
	const selectors = ["nav a", "header a", "[class*='menu'] a", "a", "button", "[role='button']", ".dropdown-item", "span", "div"];
	for (const sel of selectors) {
		for (const el of document.querySelectorAll(sel)) {
			if (el.textContent && el.textContent.trim().toLowerCase().includes(text.toLowerCase())) {
				el.click();
				return true;
			}
		}
	}
	return false;
}`

const menuOptionsJS = `() => {
	const out = [];
	const seen = new Set();
	document.querySelectorAll("[role='menuitem'], [role='option'], .dropdown-item, .menu-item, li").forEach((el) => {
		const t = (el.textContent || "").trim();
		if (t && t.length <= 60 && !seen.has(t)) {
			seen.add(t);
			out.push(t);
		}
	});
	return JSON.stringify(out);
}`

type pageSelect struct {
	Index   int           `json:"index"`
	Options []StoreOption `json:"options"`
}

// SelectStore finds the outlet selector by its global-option label and
// applies the requested value. Absence of the control, or of the requested
// value, degrades to Applied=false with the available set as diagnostic.
func (s *Session) SelectStore(value string) (*StoreSelection, error) {
	res, err := s.page.Timeout(10 * time.Second).Eval(readSelectsJS)
	if err != nil {
		return &StoreSelection{Applied: false}, nil
	}

	var selects []pageSelect
	if err := json.Unmarshal([]byte(res.Value.Str()), &selects); err != nil {
		return nil, fmt.Errorf("reading page selects: %w", err)
	}

	for _, sel := range selects {
		if !hasGlobalOption(sel.Options) {
			continue
		}
		for _, opt := range sel.Options {
			// The portal config may name the store by value or by label.
			if opt.Value != value && !strings.EqualFold(strings.TrimSpace(opt.Label), strings.TrimSpace(value)) {
				continue
			}
			applied, err := s.page.Timeout(10*time.Second).Eval(selectValueJS, sel.Index, opt.Value)
			if err != nil || !applied.Value.Bool() {
				return &StoreSelection{Applied: false, Available: sel.Options}, nil
			}
			return &StoreSelection{Applied: true, Value: opt.Value, Label: opt.Label, Available: sel.Options}, nil
		}
		// Control found but value absent: report, never guess.
		return &StoreSelection{Applied: false, Available: sel.Options}, nil
	}

	// Portal redesign without the selector: degrade to "no filter applied".
	return &StoreSelection{Applied: false}, nil
}

func hasGlobalOption(options []StoreOption) bool {
	for _, o := range options {
		label := strings.ToLower(o.Label)
		for _, g := range globalStoreLabels {
			if strings.Contains(label, g) {
				return true
			}
		}
	}
	return false
}

// ClickByText clicks the first clickable element whose text contains the
// given string. Used for the sede menu item and other text-only triggers.
func (s *Session) ClickByText(text string) bool {
	res, err := s.page.Timeout(10 * time.Second).Eval(clickByTextJS, text)
	if err != nil {
		return false
	}
	return res.Value.Bool()
}

// OpenMenu clicks a free-text menu trigger and enumerates the option texts
// that appear. Origin and order-type filters are exposed this way, not as
// native form controls.
func (s *Session) OpenMenu(triggerText string) ([]string, error) {
	if !s.ClickByText(triggerText) {
		return nil, nil
	}
	time.Sleep(500 * time.Millisecond)

	res, err := s.page.Timeout(10 * time.Second).Eval(menuOptionsJS)
	if err != nil {
		return nil, err
	}
	var options []string
	if err := json.Unmarshal([]byte(res.Value.Str()), &options); err != nil {
		return nil, err
	}
	return options, nil
}

// pickMenuOptions opens the named menu and clicks every requested label that
// is present, returning the labels actually clicked.
func (s *Session) pickMenuOptions(menu string, wanted []string) []string {
	options, err := s.OpenMenu(menu)
	if err != nil || len(options) == 0 {
		return nil
	}

	var applied []string
	for _, want := range wanted {
		for _, opt := range options {
			if strings.EqualFold(strings.TrimSpace(opt), strings.TrimSpace(want)) {
				if s.ClickByText(opt) {
					applied = append(applied, opt)
				}
				break
			}
		}
	}
	// Close the menu again so the next trigger is reachable.
	s.ClickByText(menu)
	return applied
}

// Refresh triggers the dashboard's own refresh action and waits the settle
// delay; filter changes are not reflected until that completes.
func (s *Session) Refresh(settle time.Duration) {
	clicked := false
	for _, label := range refreshLabels {
		if s.ClickByText(label) {
			clicked = true
			break
		}
	}
	if !clicked {
		log.Println("portal: refresh control not found, relying on settle delay")
	}
	time.Sleep(settle)
}

// ApplyFilters resolves and applies the outlet/origin/type selection, then
// refreshes the dashboard. Missing controls degrade to "not applied"; only a
// broken page read is an error.
func (s *Session) ApplyFilters(sel FilterSelection, settle time.Duration) (*FilterState, error) {
	store, err := s.SelectStore(sel.StoreValue)
	if err != nil {
		return nil, err
	}

	state := &FilterState{Store: *store}
	if len(sel.Origins) > 0 {
		state.Origins = s.pickMenuOptions("Origine", sel.Origins)
	}
	if len(sel.Types) > 0 {
		state.Types = s.pickMenuOptions("Tipologia", sel.Types)
	}

	if store.Applied || len(state.Origins) > 0 || len(state.Types) > 0 {
		s.Refresh(settle)
	}
	return state, nil
}
