package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gestionale/internal/auth"
	"gestionale/internal/config"
	"gestionale/internal/mocks"
	"gestionale/internal/models"
	"gestionale/internal/store"
	"gestionale/internal/syncer"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type stubRunner struct {
	result   *syncer.Result
	lastOpts syncer.RunOptions
	calls    int
}

func (s *stubRunner) Run(_ context.Context, opts syncer.RunOptions) *syncer.Result {
	s.calls++
	s.lastOpts = opts
	return s.result
}

func testSetup(engine SyncRunner) (*gin.Engine, *config.Config, *mocks.MemoryStore) {
	cfg := &config.Config{
		IncassiAPIKey: "chiave-api",
		CronSecret:    "segreto-cron",
		JWTSecret:     "segreto-jwt",
	}
	st := mocks.NewMemoryStore()
	r := gin.New()
	setupRoutes(r, cfg, st, engine, nil)
	return r, cfg, st
}

func doJSON(t *testing.T, r *gin.Engine, method, path, body string, header map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	for k, v := range header {
		req.Header.Set(k, v)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestPostIncassiUnauthorized(t *testing.T) {
	r, _, _ := testSetup(nil)
	w := doJSON(t, r, http.MethodPost, "/api/incassi", `{"incassi": []}`, nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestPostIncassiBatchIsIdempotent(t *testing.T) {
	r, _, st := testSetup(nil)
	headers := map[string]string{"x-api-key": "chiave-api"}

	body := `{"fonte": "SCRAPING", "incassi": [
		{"data": "2026-02-01", "importo": 120.5, "puntoVenditaId": "pv-1"},
		{"data": "2026-01-31", "importo": "1234.56", "puntoVenditaId": "pv-1"},
		{"data": "2026-01-30", "importo": 10, "puntoVenditaId": ""},
		{"data": "2026-01-29", "importo": "n/d", "puntoVenditaId": "pv-1"}
	]}`

	w := doJSON(t, r, http.MethodPost, "/api/incassi", body, headers)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	var resp struct {
		OK    bool `json:"ok"`
		Count int  `json:"count"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.True(t, resp.OK)
	assert.Equal(t, 2, resp.Count)
	assert.Len(t, st.Incassi, 2)

	// same day again with a new amount updates in place
	w = doJSON(t, r, http.MethodPost, "/api/incassi",
		`{"fonte": "SCRAPING", "incassi": [{"data": "2026-02-01", "importo": 999, "puntoVenditaId": "pv-1"}]}`, headers)
	require.Equal(t, http.StatusCreated, w.Code)
	assert.Len(t, st.Incassi, 2)

	rows, err := st.ListIncassi(store.IncassoFilter{PuntoVenditaID: "pv-1"})
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, 999.0, rows[0].Importo)
	assert.Equal(t, models.FonteScraping, rows[0].Fonte)

	// scraping batches refresh the per-outlet tracker
	require.Contains(t, st.Syncs, "pv-1")
	assert.Equal(t, 1, st.Syncs["pv-1"].UltimiCount)
}

func TestPostIncassiAcceptsZeroCorrection(t *testing.T) {
	r, _, st := testSetup(nil)
	headers := map[string]string{"x-api-key": "chiave-api"}

	w := doJSON(t, r, http.MethodPost, "/api/incassi",
		`{"data": "2026-02-01", "importo": 120.5, "puntoVenditaId": "pv-1"}`, headers)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	// a later explicit zero overwrites the wrong amount instead of being skipped
	w = doJSON(t, r, http.MethodPost, "/api/incassi",
		`{"data": "2026-02-01", "importo": 0, "puntoVenditaId": "pv-1"}`, headers)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	rows, err := st.ListIncassi(store.IncassoFilter{PuntoVenditaID: "pv-1"})
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, 0.0, rows[0].Importo)
}

func TestPostIncassiKeepsNoteWhenAbsent(t *testing.T) {
	r, _, st := testSetup(nil)
	headers := map[string]string{"x-api-key": "chiave-api"}

	w := doJSON(t, r, http.MethodPost, "/api/incassi",
		`{"data": "2026-02-01", "importo": 100, "puntoVenditaId": "pv-1", "note": "chiusura anticipata"}`, headers)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	// a scraper re-upsert for the same day carries no note
	w = doJSON(t, r, http.MethodPost, "/api/incassi",
		`{"fonte": "SCRAPING", "incassi": [{"data": "2026-02-01", "importo": 120.5, "puntoVenditaId": "pv-1"}]}`, headers)
	require.Equal(t, http.StatusCreated, w.Code)

	rows, err := st.ListIncassi(store.IncassoFilter{PuntoVenditaID: "pv-1"})
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, 120.5, rows[0].Importo)
	require.NotNil(t, rows[0].Note)
	assert.Equal(t, "chiusura anticipata", *rows[0].Note)
}

func TestPostIncassiSingleWithOperatorCookie(t *testing.T) {
	r, cfg, st := testSetup(nil)

	token, err := auth.SignToken("u-1", "ops@example.com", cfg.JWTSecret, time.Hour)
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodPost, "/api/incassi",
		strings.NewReader(`{"data": "2026-02-01", "importo": 120.5, "puntoVenditaId": "pv-1"}`))
	req.Header.Set("Content-Type", "application/json")
	req.AddCookie(&http.Cookie{Name: auth.CookieName, Value: token})
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	assert.Len(t, st.Incassi, 1)

	var stored models.IncassoGiornaliero
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &stored))
	assert.Equal(t, models.FonteManuale, stored.Fonte)
	assert.Equal(t, 120.5, stored.Importo)
}

func TestPostIncassiSingleRequiresAmountAndOutlet(t *testing.T) {
	r, _, _ := testSetup(nil)
	headers := map[string]string{"x-api-key": "chiave-api"}

	w := doJSON(t, r, http.MethodPost, "/api/incassi", `{"data": "2026-02-01", "importo": 120.5}`, headers)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = doJSON(t, r, http.MethodPost, "/api/incassi", `{"data": "2026-02-01", "puntoVenditaId": "pv-1"}`, headers)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestPostAnalyticsCacheKeyNormalization(t *testing.T) {
	r, _, st := testSetup(nil)
	headers := map[string]string{"x-api-key": "chiave-api"}

	first := `{"day": "2026-02-01", "storeValue": "3",
		"origins": ["web", "cassa", "app"], "types": ["tavolo", "asporto"],
		"metrics": {"total_sold": {"current": 100}}}`
	w := doJSON(t, r, http.MethodPost, "/api/velocissimo/analytics-cache", first, headers)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	// same member sets in a different order land on the same row
	second := `{"day": "2026-02-01", "storeValue": "3",
		"origins": ["app", "cassa", "web"], "types": ["asporto", "tavolo"],
		"metrics": {"total_sold": {"current": 200}}}`
	w = doJSON(t, r, http.MethodPost, "/api/velocissimo/analytics-cache", second, headers)
	require.Equal(t, http.StatusOK, w.Code)

	require.Len(t, st.Analytics, 1)
	for _, row := range st.Analytics {
		assert.Equal(t, "app|cassa|web", row.OriginsKey)
		assert.Equal(t, "asporto|tavolo", row.TypesKey)
		metrics := row.Metrics["total_sold"].(map[string]interface{})
		assert.Equal(t, 200.0, metrics["current"])
	}
}

func TestPostAnalyticsCacheDefaultsStoreValue(t *testing.T) {
	r, _, st := testSetup(nil)
	w := doJSON(t, r, http.MethodPost, "/api/velocissimo/analytics-cache",
		`{"day": "2026-02-01", "metrics": {}}`, map[string]string{"x-api-key": "chiave-api"})
	require.Equal(t, http.StatusOK, w.Code)

	require.Len(t, st.Analytics, 1)
	for _, row := range st.Analytics {
		assert.Equal(t, "-1", row.StoreValue)
	}
}

func TestGetPuntoVendita(t *testing.T) {
	r, _, st := testSetup(nil)

	w := doJSON(t, r, http.MethodGet, "/api/velocissimo/punto-vendita", "", nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	headers := map[string]string{"x-api-key": "chiave-api"}
	w = doJSON(t, r, http.MethodGet, "/api/velocissimo/punto-vendita", "", headers)
	assert.Equal(t, http.StatusNotFound, w.Code)

	require.NoError(t, st.CreatePuntoVendita(&models.PuntoVendita{ID: "pv-1", Nome: "Sorrento", Attivo: true}))
	w = doJSON(t, r, http.MethodGet, "/api/velocissimo/punto-vendita", "", headers)
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"id": "pv-1", "nome": "Sorrento"}`, w.Body.String())
}

func TestTriggerSyncUnauthorized(t *testing.T) {
	engine := &stubRunner{result: &syncer.Result{OK: true}}
	r, cfg, _ := testSetup(engine)

	w := doJSON(t, r, http.MethodGet, "/api/cron/sync-velocissimo", "", nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = doJSON(t, r, http.MethodGet, "/api/cron/sync-velocissimo", "",
		map[string]string{"x-cron-secret": "sbagliato"})
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	// an unset server secret rejects every caller instead of letting all in
	cfg.CronSecret = ""
	w = doJSON(t, r, http.MethodGet, "/api/cron/sync-velocissimo", "",
		map[string]string{"x-cron-secret": ""})
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Zero(t, engine.calls)
}

func TestTriggerSyncRunsEngine(t *testing.T) {
	engine := &stubRunner{result: &syncer.Result{OK: true, Count: 3, Message: "3 incassi caricati"}}
	r, _, st := testSetup(engine)
	require.NoError(t, st.CreatePuntoVendita(&models.PuntoVendita{ID: "pv-1", Nome: "Sorrento", Attivo: true}))

	w := doJSON(t, r, http.MethodGet, "/api/cron/sync-velocissimo", "",
		map[string]string{"x-cron-secret": "segreto-cron"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	assert.Equal(t, 1, engine.calls)
	assert.Equal(t, syncer.ModeSync, engine.lastOpts.Mode)
	assert.Equal(t, "pv-1", engine.lastOpts.PuntoVendita.ID)
	assert.False(t, engine.lastOpts.Screenshots)

	var result syncer.Result
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &result))
	assert.Equal(t, 3, result.Count)
}

func TestTriggerSyncBearerFallback(t *testing.T) {
	engine := &stubRunner{result: &syncer.Result{OK: true}}
	r, _, st := testSetup(engine)
	require.NoError(t, st.CreatePuntoVendita(&models.PuntoVendita{ID: "pv-1", Nome: "Sorrento", Attivo: true}))

	w := doJSON(t, r, http.MethodGet, "/api/cron/sync-velocissimo", "",
		map[string]string{"Authorization": "Bearer segreto-cron"})
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 1, engine.calls)
}

func TestTriggerSyncDelegationIsAdvisory(t *testing.T) {
	engine := &stubRunner{result: &syncer.Result{OK: false, UseGitHubActions: true}}
	r, _, st := testSetup(engine)
	require.NoError(t, st.CreatePuntoVendita(&models.PuntoVendita{ID: "pv-1", Nome: "Sorrento", Attivo: true}))

	w := doJSON(t, r, http.MethodGet, "/api/cron/sync-velocissimo", "",
		map[string]string{"x-cron-secret": "segreto-cron"})
	assert.Equal(t, http.StatusOK, w.Code)

	var result syncer.Result
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &result))
	assert.False(t, result.OK)
	assert.True(t, result.UseGitHubActions)
}

func TestTriggerSyncFailureIs500(t *testing.T) {
	engine := &stubRunner{result: &syncer.Result{OK: false, Message: "login fallito"}}
	r, _, st := testSetup(engine)
	require.NoError(t, st.CreatePuntoVendita(&models.PuntoVendita{ID: "pv-1", Nome: "Sorrento", Attivo: true}))

	w := doJSON(t, r, http.MethodGet, "/api/cron/sync-velocissimo", "",
		map[string]string{"x-cron-secret": "segreto-cron"})
	assert.Equal(t, http.StatusInternalServerError, w.Code)
}

func TestTriggerSyncWithoutActiveOutlet(t *testing.T) {
	engine := &stubRunner{result: &syncer.Result{OK: true}}
	r, _, st := testSetup(engine)

	w := doJSON(t, r, http.MethodGet, "/api/cron/sync-velocissimo", "",
		map[string]string{"x-cron-secret": "segreto-cron"})
	require.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Zero(t, engine.calls)
	assert.Contains(t, w.Body.String(), "punto vendita attivo")

	// the failure lands in the run ledger
	last, err := st.LastCronLog()
	require.NoError(t, err)
	require.NotNil(t, last)
	assert.Equal(t, "ERROR", last.Status)
}

func TestTriggerSyncOutletOverride(t *testing.T) {
	engine := &stubRunner{result: &syncer.Result{OK: true}}
	r, _, st := testSetup(engine)
	require.NoError(t, st.CreatePuntoVendita(&models.PuntoVendita{ID: "pv-1", Nome: "Sorrento", Attivo: true}))
	require.NoError(t, st.CreatePuntoVendita(&models.PuntoVendita{ID: "pv-2", Nome: "Amalfi", Attivo: true}))

	w := doJSON(t, r, http.MethodGet, "/api/cron/sync-velocissimo?puntoVenditaId=pv-2", "",
		map[string]string{"x-cron-secret": "segreto-cron"})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "pv-2", engine.lastOpts.PuntoVendita.ID)

	w = doJSON(t, r, http.MethodGet, "/api/cron/sync-velocissimo?puntoVenditaId=pv-manca", "",
		map[string]string{"x-cron-secret": "segreto-cron"})
	assert.Equal(t, http.StatusInternalServerError, w.Code)
}

func TestTriggerSyncBackfillNeedsRange(t *testing.T) {
	engine := &stubRunner{result: &syncer.Result{OK: true}}
	r, _, st := testSetup(engine)
	require.NoError(t, st.CreatePuntoVendita(&models.PuntoVendita{ID: "pv-1", Nome: "Sorrento", Attivo: true}))
	headers := map[string]string{"x-cron-secret": "segreto-cron"}

	w := doJSON(t, r, http.MethodGet, "/api/cron/sync-velocissimo?mode=backfill", "", headers)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Zero(t, engine.calls)

	w = doJSON(t, r, http.MethodGet,
		"/api/cron/sync-velocissimo?mode=backfill&from=2026-01-01&to=2026-01-31&writeIncassi=1", "", headers)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, syncer.ModeBackfill, engine.lastOpts.Mode)
	assert.True(t, engine.lastOpts.WriteIncassi)
	assert.Equal(t, "2026-01-01", engine.lastOpts.BackfillFrom.Format("2006-01-02"))
	assert.Equal(t, "2026-01-31", engine.lastOpts.BackfillTo.Format("2006-01-02"))
}

func TestTriggerSyncScreenshotsOnlyForOperators(t *testing.T) {
	engine := &stubRunner{result: &syncer.Result{OK: true}}
	r, cfg, st := testSetup(engine)
	require.NoError(t, st.CreatePuntoVendita(&models.PuntoVendita{ID: "pv-1", Nome: "Sorrento", Attivo: true}))

	// cron caller asking for screenshots is ignored
	w := doJSON(t, r, http.MethodGet, "/api/cron/sync-velocissimo", "",
		map[string]string{"x-cron-secret": "segreto-cron", "x-want-screenshots": "1"})
	require.Equal(t, http.StatusOK, w.Code)
	assert.False(t, engine.lastOpts.Screenshots)

	token, err := auth.SignToken("u-1", "ops@example.com", cfg.JWTSecret, time.Hour)
	require.NoError(t, err)
	req := httptest.NewRequest(http.MethodGet, "/api/cron/sync-velocissimo", nil)
	req.Header.Set("x-want-screenshots", "1")
	req.AddCookie(&http.Cookie{Name: auth.CookieName, Value: token})
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, engine.lastOpts.Screenshots)
}

func TestCleanKey(t *testing.T) {
	assert.Equal(t, "abc", cleanKey(" abc\n"))
	assert.Equal(t, "abc", cleanKey(`abc\n`))
	assert.Equal(t, "", cleanKey(""))
}

func TestAmountUnmarshal(t *testing.T) {
	cases := []struct {
		in    string
		value float64
		valid bool
	}{
		{`{"importo": 120.5}`, 120.5, true},
		{`{"importo": "1234.56"}`, 1234.56, true},
		{`{"importo": 0}`, 0, true},
		{`{"importo": "abc"}`, 0, false},
		{`{"importo": null}`, 0, false},
		{`{}`, 0, false},
	}

	for _, tc := range cases {
		var body struct {
			Importo Amount `json:"importo"`
		}
		require.NoError(t, json.Unmarshal([]byte(tc.in), &body), tc.in)
		assert.Equal(t, Amount{Value: tc.value, Valid: tc.valid}, body.Importo, tc.in)
	}
}
