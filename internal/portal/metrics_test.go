package portal

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseWidget(t *testing.T) {
	cases := []struct {
		name string
		body string
		want MetricValue
	}{
		{
			name: "canonical fields",
			body: `{"current": 1234.5, "previous": 1100, "deltaPct": 12.2, "sign": "up"}`,
			want: MetricValue{Current: 1234.5, Previous: 1100, DeltaPct: 12.2, Sign: 1},
		},
		{
			name: "italian aliases with string amounts",
			body: `{"valore": "1.234,56", "precedente": "1.000,00", "variazione": -3.1}`,
			want: MetricValue{Current: 1234.56, Previous: 1000, DeltaPct: -3.1, Sign: -1},
		},
		{
			name: "numeric sign",
			body: `{"value": 10, "sign": -1}`,
			want: MetricValue{Current: 10, Sign: -1},
		},
		{
			name: "nothing numeric keeps raw text",
			body: `{"message": "maintenance"}`,
			want: MetricValue{Raw: `{"message": "maintenance"}`},
		},
		{
			name: "non-JSON keeps raw text",
			body: `<html>errore</html>`,
			want: MetricValue{Raw: `<html>errore</html>`},
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := ParseWidget([]byte(tc.body))
			assert.Equal(t, tc.want, *got)
		})
	}
}

func TestDayMetricsKeepsFailuresAsRaw(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/v1/analytics/widget/margin":
			http.Error(w, "boom", http.StatusInternalServerError)
		default:
			w.Header().Set("Content-Type", "application/json")
			w.Write([]byte(`{"current": 42, "previous": 40, "deltaPct": 5}`))
		}
	}))
	defer srv.Close()

	client := &MetricsClient{base: srv.URL, http: resty.New()}
	day := time.Date(2026, time.February, 1, 0, 0, 0, 0, time.UTC)

	metrics, err := client.DayMetrics(context.Background(), day, DefaultTechnicalFilter)
	require.NoError(t, err)
	require.Len(t, metrics, len(MetricSlugs))

	assert.Equal(t, 42.0, metrics["total_sold"].Current)
	assert.Equal(t, 1, metrics["total_sold"].Sign)
	assert.NotEmpty(t, metrics["margin"].Raw)
	assert.Zero(t, metrics["margin"].Current)
}
