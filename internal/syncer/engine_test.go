package syncer

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gestionale/internal/config"
	"gestionale/internal/portal"
)

func testConfig() *config.Config {
	return &config.Config{
		PortalEmail:    "ops@example.com",
		PortalPassword: "segretissima",
		IncassiAPIKey:  "k",
		PortalBaseURL:  "https://admin.velocissimo.app",
		PortalSede:     "Sorrento",
	}
}

func TestModeFromConfig(t *testing.T) {
	cfg := testConfig()
	assert.Equal(t, ModeSync, ModeFromConfig(cfg))

	cfg.BackfillFrom, cfg.BackfillTo = "2026-01-01", "2026-01-31"
	assert.Equal(t, ModeBackfill, ModeFromConfig(cfg))

	cfg.AnalyzeDashboard = true
	assert.Equal(t, ModeAnalyzeDashboard, ModeFromConfig(cfg))

	cfg.ExploreFilters = true
	assert.Equal(t, ModeExploreFilters, ModeFromConfig(cfg))

	cfg.StopAfterLogin = true
	assert.Equal(t, ModeLoginOnly, ModeFromConfig(cfg))
}

func TestBuildIncassi(t *testing.T) {
	righe := []portal.RigaIncasso{
		{Data: "2026-02-01", Importo: "120,50"},
		{Data: "31/01/2026", Importo: "1.234,56"},
		{Data: "Totale", Importo: "1.355,06"},
		{Data: "2026-01-30", Importo: ""},
		{Data: "2026-01-29", Importo: "0,00"},
		{Data: "2026-01-28", Importo: "-5,00"},
	}

	incassi := BuildIncassi(righe, "pv-1")
	assert.Equal(t, []IncassoRow{
		{Data: "2026-02-01", Importo: 120.5, PuntoVenditaID: "pv-1"},
		{Data: "2026-01-31", Importo: 1234.56, PuntoVenditaID: "pv-1"},
	}, incassi)
}

func TestScrapedTableBecomesIncassi(t *testing.T) {
	html := `<table class="table"><tbody>
		<tr><td>2026-02-01</td><td>120,50</td></tr>
		<tr><td>Totale</td><td>120,50</td></tr>
	</tbody></table>`

	righe, err := portal.ParseIncassiHTML(html)
	require.NoError(t, err)

	incassi := BuildIncassi(righe, "pv-1")
	require.Len(t, incassi, 1)
	assert.Equal(t, IncassoRow{Data: "2026-02-01", Importo: 120.5, PuntoVenditaID: "pv-1"}, incassi[0])
}

func TestRunFailsFastOnMissingConfig(t *testing.T) {
	var logged []string
	engine := &Engine{
		Cfg: &config.Config{PortalEmail: "ops@example.com"},
		LogRun: func(status, message string) {
			logged = append(logged, status+": "+message)
		},
	}

	result := engine.Run(context.Background(), RunOptions{Mode: ModeSync})
	require.NotNil(t, result)
	assert.False(t, result.OK)
	require.Len(t, result.Steps, 1)
	assert.Equal(t, "variabili ambiente", result.Steps[0].Step)
	assert.False(t, result.Steps[0].OK)
	assert.Contains(t, result.Steps[0].Detail, "VELOCISSIMO_PASSWORD")
	assert.Contains(t, result.Steps[0].Detail, "INCASSI_API_KEY")
	require.Len(t, logged, 1)
	assert.Contains(t, logged[0], "ERROR")
}

type recordingPublisher struct {
	steps []Step
}

func (p *recordingPublisher) Publish(v interface{}) {
	if s, ok := v.(Step); ok {
		p.steps = append(p.steps, s)
	}
}

func TestRunDelegatesWhenChromeUnavailable(t *testing.T) {
	cfg := testConfig()
	cfg.UseGitHubActions = true
	publisher := &recordingPublisher{}
	engine := &Engine{Cfg: cfg, Publisher: publisher}

	start := time.Now()
	result := engine.Run(context.Background(), RunOptions{
		Mode:         ModeSync,
		PuntoVendita: PuntoVenditaRef{ID: "pv-1", Nome: "Sorrento"},
	})
	// never tries to launch a browser
	require.Less(t, time.Since(start), 2*time.Second)

	assert.False(t, result.OK)
	assert.True(t, result.UseGitHubActions)
	require.Len(t, result.Steps, 3)
	assert.Equal(t, "sync delegato", result.Steps[2].Step)
	assert.Contains(t, result.Steps[2].Detail, "runner esterno")
	assert.Equal(t, result.Steps, publisher.steps)
}

func TestStoreValueOf(t *testing.T) {
	assert.Equal(t, "-1", storeValueOf(nil))
	assert.Equal(t, "-1", storeValueOf(&portal.FilterState{}))

	state := &portal.FilterState{}
	state.Store.Applied = true
	state.Store.Value = "3"
	assert.Equal(t, "3", storeValueOf(state))
}
