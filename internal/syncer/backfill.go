package syncer

import (
	"context"
	"fmt"
	"log"
	"time"

	"gestionale/internal/portal"
)

// MetricReader is the per-day metric source driven by the backfill loop.
// Implemented by portal.MetricsClient; faked in tests.
type MetricReader interface {
	DayMetrics(ctx context.Context, day time.Time, filter portal.TechnicalFilter) (map[string]portal.MetricValue, error)
}

// SnapshotSink persists snapshots and revenue batches. Implemented by Client.
type SnapshotSink interface {
	PostSnapshot(ctx context.Context, p *SnapshotPayload) error
	PostIncassi(ctx context.Context, rows []IncassoRow, fonte string) (int, error)
}

// BackfillOptions describe one historical re-extraction.
type BackfillOptions struct {
	From, To     time.Time
	Filter       portal.TechnicalFilter
	StoreValue   string
	StoreText    string
	Origins      []string
	Types        []string
	PuntoVendita PuntoVenditaRef
	// WriteIncassi enables revenue write-through from the total_sold metric.
	// When false the candidates are reported but never submitted.
	WriteIncassi bool
}

// BackfillResult reports what a range run did.
type BackfillResult struct {
	Days       int          `json:"days"`
	Snapshots  int          `json:"snapshots"`
	FailedDays []string     `json:"failedDays,omitempty"`
	Candidates []IncassoRow `json:"candidates,omitempty"`
	Submitted  int          `json:"submitted"`
}

// Backfill enumerates every day of the inclusive range, extracts and persists
// a snapshot per day, and optionally assembles revenue rows from total_sold.
// One day's failure is logged and skipped, never aborting the range. Revenue
// rows are submitted as a single batch at the end, so a mid-range failure
// leaves no partial batch behind.
func Backfill(ctx context.Context, reader MetricReader, sink SnapshotSink, opts BackfillOptions) (*BackfillResult, error) {
	from := time.Date(opts.From.Year(), opts.From.Month(), opts.From.Day(), 0, 0, 0, 0, opts.From.Location())
	to := time.Date(opts.To.Year(), opts.To.Month(), opts.To.Day(), 0, 0, 0, 0, opts.To.Location())
	if to.Before(from) {
		return nil, fmt.Errorf("backfill range inverted: %s after %s", from.Format("2006-01-02"), to.Format("2006-01-02"))
	}

	result := &BackfillResult{}
	for day := from; !day.After(to); day = day.AddDate(0, 0, 1) {
		result.Days++
		dayKey := day.Format("2006-01-02")

		metrics, err := reader.DayMetrics(ctx, day, opts.Filter)
		if err != nil {
			log.Printf("backfill: day %s failed: %v", dayKey, err)
			result.FailedDays = append(result.FailedDays, dayKey)
			continue
		}

		snapshot := &SnapshotPayload{
			Day:        dayKey,
			StoreValue: opts.StoreValue,
			StoreText:  opts.StoreText,
			Origins:    opts.Origins,
			Types:      opts.Types,
			Metrics:    metricsToMap(metrics),
			Raw: map[string]interface{}{
				"source":   "backfill",
				"rangeEnd": to.Format("2006-01-02"),
			},
		}
		if err := sink.PostSnapshot(ctx, snapshot); err != nil {
			log.Printf("backfill: snapshot for %s not persisted: %v", dayKey, err)
			result.FailedDays = append(result.FailedDays, dayKey)
			continue
		}
		result.Snapshots++

		if total, ok := metrics["total_sold"]; ok && total.Raw == "" && total.Current > 0 {
			result.Candidates = append(result.Candidates, IncassoRow{
				Data:           dayKey,
				Importo:        total.Current,
				PuntoVenditaID: opts.PuntoVendita.ID,
			})
		}
	}

	if opts.WriteIncassi && len(result.Candidates) > 0 {
		count, err := sink.PostIncassi(ctx, result.Candidates, "SCRAPING")
		if err != nil {
			return result, err
		}
		result.Submitted = count
	}
	return result, nil
}

func metricsToMap(metrics map[string]portal.MetricValue) map[string]interface{} {
	out := make(map[string]interface{}, len(metrics))
	for name, v := range metrics {
		entry := map[string]interface{}{
			"current":  v.Current,
			"previous": v.Previous,
			"deltaPct": v.DeltaPct,
			"sign":     v.Sign,
		}
		if v.Raw != "" {
			entry["raw"] = v.Raw
		}
		out[name] = entry
	}
	return out
}
