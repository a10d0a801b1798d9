package portal

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
)

// MetricSlugs are the KPI widgets read for every day. total_sold doubles as
// the revenue source during backfill.
var MetricSlugs = []string{"n_orders", "total_sold", "avg_order", "margin", "covers", "avg_covers"}

// TechnicalFilter is the fixed filter embedded in every metric read so that
// totals always describe "real" orders: canonical origin and order-type sets,
// with test/duplicate channels and auto-consumption excluded.
type TechnicalFilter struct {
	Origins                []string `json:"origins"`
	Types                  []string `json:"types"`
	ExcludeAutoConsumption bool     `json:"excludeAutoConsumption"`
}

// DefaultTechnicalFilter matches the portal's own "real order" definition.
var DefaultTechnicalFilter = TechnicalFilter{
	Origins:                []string{"cassa", "app", "web"},
	Types:                  []string{"tavolo", "asporto", "delivery"},
	ExcludeAutoConsumption: true,
}

// MetricValue is one parsed KPI reading. When the widget response could not
// be parsed, Raw holds its text and the numeric fields are zero; the metric
// is kept rather than dropped.
type MetricValue struct {
	Current  float64 `json:"current"`
	Previous float64 `json:"previous"`
	DeltaPct float64 `json:"deltaPct"`
	Sign     int     `json:"sign"`
	Raw      string  `json:"raw,omitempty"`
}

// MetricsClient reads the portal's per-widget analytics endpoints. These are
// only reachable through the authenticated browser session, so the client is
// built from a logged-in Session and carries its cookies.
type MetricsClient struct {
	base string
	http *resty.Client
}

func NewMetricsClient(s *Session) (*MetricsClient, error) {
	cookies, err := s.Cookies()
	if err != nil {
		return nil, fmt.Errorf("exporting session cookies: %w", err)
	}
	client := resty.New().
		SetTimeout(20 * time.Second).
		SetHeader("User-Agent", userAgent).
		SetCookies(cookies)
	return &MetricsClient{base: s.Base, http: client}, nil
}

type widgetRequest struct {
	From   string          `json:"from"`
	To     string          `json:"to"`
	Filter TechnicalFilter `json:"filter"`
}

// DayMetrics returns the full metric mapping for one closed local day
// (00:00:00–23:59:59) under the technical filter. A single widget's failure
// is logged and recorded as a raw value; it never aborts the other reads.
func (c *MetricsClient) DayMetrics(ctx context.Context, day time.Time, filter TechnicalFilter) (map[string]MetricValue, error) {
	from := time.Date(day.Year(), day.Month(), day.Day(), 0, 0, 0, 0, day.Location())
	to := time.Date(day.Year(), day.Month(), day.Day(), 23, 59, 59, 0, day.Location())

	out := make(map[string]MetricValue, len(MetricSlugs))
	for _, slug := range MetricSlugs {
		value, err := c.readWidget(ctx, slug, from, to, filter)
		if err != nil {
			extractionErr := &ExtractionError{What: "metric " + slug, Err: err}
			log.Printf("portal: %v", extractionErr)
			out[slug] = MetricValue{Raw: err.Error()}
			continue
		}
		out[slug] = *value
	}
	return out, nil
}

func (c *MetricsClient) readWidget(ctx context.Context, slug string, from, to time.Time, filter TechnicalFilter) (*MetricValue, error) {
	resp, err := c.http.R().
		SetContext(ctx).
		SetHeader("Content-Type", "application/json").
		SetBody(widgetRequest{
			From:   from.Format("2006-01-02T15:04:05"),
			To:     to.Format("2006-01-02T15:04:05"),
			Filter: filter,
		}).
		Post(c.base + "/api/v1/analytics/widget/" + slug)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode() < 200 || resp.StatusCode() > 299 {
		return nil, fmt.Errorf("widget %s: HTTP %d", slug, resp.StatusCode())
	}
	return ParseWidget(resp.Body()), nil
}

// ParseWidget extracts {current, previous, delta%, sign} from a widget
// response body. The portal is not a stable API, so field names vary; when
// nothing numeric can be found the raw text is kept instead.
func ParseWidget(body []byte) *MetricValue {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(body, &fields); err != nil {
		return &MetricValue{Raw: string(body)}
	}

	current, okCurrent := pickNumber(fields, "current", "value", "valore")
	previous, _ := pickNumber(fields, "previous", "prev", "precedente")
	delta, _ := pickNumber(fields, "deltaPct", "delta_pct", "delta", "variazione")
	if !okCurrent {
		return &MetricValue{Raw: string(body)}
	}

	sign := 0
	if raw, ok := fields["sign"]; ok {
		var s string
		if json.Unmarshal(raw, &s) == nil {
			switch strings.ToLower(s) {
			case "up", "+", "positive":
				sign = 1
			case "down", "-", "negative":
				sign = -1
			}
		} else {
			var n float64
			if json.Unmarshal(raw, &n) == nil {
				if n > 0 {
					sign = 1
				} else if n < 0 {
					sign = -1
				}
			}
		}
	} else if delta > 0 {
		sign = 1
	} else if delta < 0 {
		sign = -1
	}

	return &MetricValue{Current: current, Previous: previous, DeltaPct: delta, Sign: sign}
}

func pickNumber(fields map[string]json.RawMessage, names ...string) (float64, bool) {
	for _, name := range names {
		raw, ok := fields[name]
		if !ok {
			continue
		}
		var n float64
		if json.Unmarshal(raw, &n) == nil {
			return n, true
		}
		var s string
		if json.Unmarshal(raw, &s) == nil {
			if v := ParseImporto(s); v == v { // not NaN
				return v, true
			}
		}
	}
	return 0, false
}
