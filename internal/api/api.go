package api

import (
	"context"
	"crypto/subtle"
	"net/http"
	"strconv"
	"strings"
	"time"

	"gestionale/internal/auth"
	"gestionale/internal/config"
	"gestionale/internal/models"
	"gestionale/internal/store"
	"gestionale/internal/syncer"
	"gestionale/internal/ws"

	"github.com/gin-gonic/gin"
)

// SyncRunner is the engine surface the trigger gate drives.
type SyncRunner interface {
	Run(ctx context.Context, opts syncer.RunOptions) *syncer.Result
}

type APIHandler struct {
	cfg    *config.Config
	store  store.Store
	engine SyncRunner
	hub    *ws.Hub
}

func SetupRoutes(r *gin.Engine, cfg *config.Config, st store.Store) *APIHandler {
	hub := ws.NewHub()
	engine := &syncer.Engine{
		Cfg:       cfg,
		Sink:      syncer.NewClient(cfg.GestionaleURL, cfg.IncassiAPIKey),
		Publisher: hub,
		LogRun: func(status, message string) {
			_ = st.AppendCronLog(status, message)
		},
	}
	return setupRoutes(r, cfg, st, engine, hub)
}

func setupRoutes(r *gin.Engine, cfg *config.Config, st store.Store, engine SyncRunner, hub *ws.Hub) *APIHandler {
	handler := &APIHandler{cfg: cfg, store: st, engine: engine, hub: hub}

	apiGroup := r.Group("/api")
	{
		apiGroup.GET("/incassi", handler.ListIncassi)
		apiGroup.POST("/incassi", handler.PostIncassi)
		apiGroup.GET("/incassi/export", handler.ExportIncassi)

		velocissimo := apiGroup.Group("/velocissimo")
		{
			velocissimo.GET("/punto-vendita", handler.GetPuntoVendita)
			velocissimo.GET("/analytics-cache", handler.ListAnalyticsCache)
			velocissimo.POST("/analytics-cache", handler.PostAnalyticsCache)
			velocissimo.GET("/cron-log", handler.GetLastCronLog)
			velocissimo.GET("/sync", handler.ListSyncs)
		}

		apiGroup.GET("/cron/sync-velocissimo", handler.TriggerSync)
	}

	if hub != nil {
		r.GET("/ws/sync", func(c *gin.Context) {
			hub.Serve(c.Writer, c.Request)
		})
	}

	return handler
}

// cleanKey strips stray newlines (literal and escaped) that copy-pasted env
// values tend to carry.
func cleanKey(v string) string {
	v = strings.ReplaceAll(v, "\\n", "")
	v = strings.ReplaceAll(v, "\\r", "")
	v = strings.ReplaceAll(v, "\n", "")
	v = strings.ReplaceAll(v, "\r", "")
	return strings.TrimSpace(v)
}

func (h *APIHandler) apiKeyOK(c *gin.Context) bool {
	got := cleanKey(c.GetHeader("x-api-key"))
	expected := cleanKey(h.cfg.IncassiAPIKey)
	if got == "" || expected == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(got), []byte(expected)) == 1
}

func (h *APIHandler) operatorClaims(c *gin.Context) *auth.Claims {
	token, err := c.Cookie(auth.CookieName)
	if err != nil || token == "" {
		return nil
	}
	claims, err := auth.VerifyToken(token, h.cfg.JWTSecret)
	if err != nil {
		return nil
	}
	return claims
}

func (h *APIHandler) cronSecretOK(c *gin.Context) bool {
	secret := c.GetHeader("x-cron-secret")
	if secret == "" {
		secret = strings.TrimPrefix(c.GetHeader("Authorization"), "Bearer ")
	}
	if secret == "" || h.cfg.CronSecret == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(secret), []byte(h.cfg.CronSecret)) == 1
}

func parseDay(v string) *time.Time {
	if v == "" {
		return nil
	}
	for _, layout := range []string{"2006-01-02", time.RFC3339} {
		if t, err := time.Parse(layout, v); err == nil {
			d := models.NormDay(t)
			return &d
		}
	}
	return nil
}

// GET /api/incassi
func (h *APIHandler) ListIncassi(c *gin.Context) {
	filter := store.IncassoFilter{
		PuntoVenditaID: c.Query("puntoVenditaId"),
		From:           parseDay(c.Query("from")),
		To:             parseDay(c.Query("to")),
	}
	rows, err := h.store.ListIncassi(filter)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, rows)
}

// Amount accepts both JSON numbers and numeric strings, since import
// payloads come from spreadsheets as often as from the scraper. Valid marks
// whether a usable number was present at all: an explicit zero is a valid
// correction, a missing or garbage amount is not.
type Amount struct {
	Value float64
	Valid bool
}

func (a *Amount) UnmarshalJSON(b []byte) error {
	s := strings.Trim(strings.TrimSpace(string(b)), `"`)
	if s == "" || s == "null" {
		return nil
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return nil
	}
	a.Value = v
	a.Valid = true
	return nil
}

type incassoRowBody struct {
	Data           string  `json:"data"`
	Importo        Amount  `json:"importo"`
	PuntoVenditaID string  `json:"puntoVenditaId"`
	Note           *string `json:"note"`
}

type incassiBody struct {
	Incassi        []incassoRowBody `json:"incassi"`
	Fonte          string           `json:"fonte"`
	Data           string           `json:"data"`
	Importo        Amount           `json:"importo"`
	PuntoVenditaID string           `json:"puntoVenditaId"`
	Note           *string          `json:"note"`
}

// POST /api/incassi upserts daily revenue rows keyed by (data,
// puntoVenditaId): batch from the scraper/import, or a single row.
func (h *APIHandler) PostIncassi(c *gin.Context) {
	if !h.apiKeyOK(c) && h.operatorClaims(c) == nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Non autorizzato"})
		return
	}

	var body incassiBody
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if body.Incassi != nil {
		h.postIncassiBatch(c, &body)
		return
	}

	// Single row.
	data := time.Now()
	if d := parseDay(body.Data); d != nil {
		data = *d
	}
	if body.PuntoVenditaID == "" || !body.Importo.Valid {
		c.JSON(http.StatusBadRequest, gin.H{"error": "puntoVenditaId e importo obbligatori"})
		return
	}
	fonte := body.Fonte
	if fonte == "" {
		fonte = models.FonteManuale
	}
	stored, err := h.store.UpsertIncasso(&models.IncassoGiornaliero{
		Data:           data,
		Importo:        body.Importo.Value,
		Fonte:          fonte,
		Note:           body.Note,
		PuntoVenditaID: body.PuntoVenditaID,
	})
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusCreated, stored)
}

func (h *APIHandler) postIncassiBatch(c *gin.Context, body *incassiBody) {
	fonte := body.Fonte
	if fonte == "" {
		fonte = models.FonteImport
	}

	type createdRow struct {
		Data           string  `json:"data"`
		PuntoVenditaID string  `json:"puntoVenditaId"`
		Importo        float64 `json:"importo"`
	}
	var created []createdRow
	perPv := make(map[string]int)

	for _, row := range body.Incassi {
		data := time.Now()
		if d := parseDay(row.Data); d != nil {
			data = *d
		}
		if row.PuntoVenditaID == "" || !row.Importo.Valid {
			continue
		}
		stored, err := h.store.UpsertIncasso(&models.IncassoGiornaliero{
			Data:           data,
			Importo:        row.Importo.Value,
			Fonte:          fonte,
			Note:           row.Note,
			PuntoVenditaID: row.PuntoVenditaID,
		})
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		created = append(created, createdRow{
			Data:           stored.Data.Format("2006-01-02"),
			PuntoVenditaID: stored.PuntoVenditaID,
			Importo:        stored.Importo,
		})
		perPv[stored.PuntoVenditaID]++
	}

	// Scraping imports also refresh the per-outlet last-sync tracker.
	if fonte == models.FonteScraping {
		for pvID, count := range perPv {
			_ = h.store.TouchSync(pvID, count)
		}
	}

	c.JSON(http.StatusCreated, gin.H{"ok": true, "count": len(created), "incassi": created})
}

// GET /api/velocissimo/punto-vendita returns the first active outlet for
// external runners.
func (h *APIHandler) GetPuntoVendita(c *gin.Context) {
	if !h.apiKeyOK(c) {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "x-api-key richiesta"})
		return
	}
	pv, err := h.store.FirstActivePuntoVendita()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	if pv == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Nessun punto vendita attivo"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"id": pv.ID, "nome": pv.Nome})
}

// GET /api/velocissimo/analytics-cache
func (h *APIHandler) ListAnalyticsCache(c *gin.Context) {
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "10"))
	filter := store.AnalyticsFilter{
		Day:        parseDay(c.Query("day")),
		From:       parseDay(c.Query("from")),
		To:         parseDay(c.Query("to")),
		StoreValue: c.Query("storeValue"),
		Limit:      limit,
	}
	if v, ok := c.GetQuery("originsKey"); ok {
		filter.OriginsKey = &v
	}
	if v, ok := c.GetQuery("typesKey"); ok {
		filter.TypesKey = &v
	}

	rows, err := h.store.ListAnalyticsCache(filter)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, rows)
}

type analyticsCacheBody struct {
	Day        string                 `json:"day"`
	StoreValue string                 `json:"storeValue"`
	StoreText  *string                `json:"storeText"`
	Origins    []string               `json:"origins"`
	Types      []string               `json:"types"`
	Metrics    map[string]interface{} `json:"metrics"`
	Raw        map[string]interface{} `json:"raw"`
}

// POST /api/velocissimo/analytics-cache upserts one KPI snapshot keyed by
// (day, storeValue, originsKey, typesKey).
func (h *APIHandler) PostAnalyticsCache(c *gin.Context) {
	if !h.apiKeyOK(c) {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "x-api-key richiesta"})
		return
	}

	var body analyticsCacheBody
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	day := time.Now()
	if d := parseDay(body.Day); d != nil {
		day = *d
	}
	storeValue := body.StoreValue
	if storeValue == "" {
		storeValue = "-1"
	}

	row, err := h.store.UpsertAnalyticsCache(&models.VelocissimoAnalyticsCache{
		Day:        day,
		StoreValue: storeValue,
		StoreText:  body.StoreText,
		Origins:    body.Origins,
		Types:      body.Types,
		Metrics:    body.Metrics,
		Raw:        body.Raw,
	})
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"ok": true, "id": row.ID})
}

// GET /api/velocissimo/cron-log returns the latest run ledger row.
func (h *APIHandler) GetLastCronLog(c *gin.Context) {
	row, err := h.store.LastCronLog()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, row)
}

// GET /api/velocissimo/sync returns the per-outlet last-sync trackers.
func (h *APIHandler) ListSyncs(c *gin.Context) {
	rows, err := h.store.ListSyncs()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, rows)
}

// TriggerSync is the cron/manual entry point: authorize, resolve the target
// outlet, run the engine and return the step list. All fatal errors surface
// here as JSON with partial progress, never as a bare 500.
func (h *APIHandler) TriggerSync(c *gin.Context) {
	cronOK := h.cronSecretOK(c)
	claims := h.operatorClaims(c)
	if !cronOK && claims == nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Non autorizzato (cron secret o login richiesto)"})
		return
	}
	wantScreenshots := c.GetHeader("x-want-screenshots") == "1" && claims != nil

	pv, errStep := h.resolvePuntoVendita(c.Query("puntoVenditaId"))
	if pv == nil {
		_ = h.store.AppendCronLog("ERROR", errStep)
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": errStep,
			"steps": []syncer.Step{{Step: "punto vendita attivo", OK: false, Detail: errStep}},
		})
		return
	}

	opts := syncer.RunOptions{
		Mode:         h.runMode(c),
		PuntoVendita: syncer.PuntoVenditaRef{ID: pv.ID, Nome: pv.Nome},
		Screenshots:  wantScreenshots,
		WriteIncassi: h.cfg.BackfillWriteIncassi || c.Query("writeIncassi") == "1",
	}
	if opts.Mode == syncer.ModeBackfill {
		from := parseDay(firstNonEmpty(c.Query("from"), h.cfg.BackfillFrom))
		to := parseDay(firstNonEmpty(c.Query("to"), h.cfg.BackfillTo))
		if from == nil || to == nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "backfill richiede from e to (YYYY-MM-DD)"})
			return
		}
		opts.BackfillFrom = *from
		opts.BackfillTo = *to
	}

	result := h.engine.Run(c.Request.Context(), opts)

	status := http.StatusOK
	// Delegation to the external runner is advisory, not a server error.
	if !result.OK && !result.UseGitHubActions {
		status = http.StatusInternalServerError
	}
	c.JSON(status, result)
}

func (h *APIHandler) resolvePuntoVendita(queryID string) (*models.PuntoVendita, string) {
	id := firstNonEmpty(queryID, h.cfg.PuntoVenditaID)
	if id != "" {
		pv, err := h.store.GetPuntoVendita(id)
		if err != nil {
			return nil, err.Error()
		}
		if pv == nil {
			return nil, "punto vendita " + id + " non trovato"
		}
		return pv, ""
	}
	pv, err := h.store.FirstActivePuntoVendita()
	if err != nil {
		return nil, err.Error()
	}
	if pv == nil {
		return nil, "Nessun punto vendita attivo nel gestionale"
	}
	return pv, ""
}

func (h *APIHandler) runMode(c *gin.Context) syncer.Mode {
	switch c.Query("mode") {
	case "login-only":
		return syncer.ModeLoginOnly
	case "explore-filters":
		return syncer.ModeExploreFilters
	case "analyze-dashboard":
		return syncer.ModeAnalyzeDashboard
	case "backfill":
		return syncer.ModeBackfill
	case "sync":
		return syncer.ModeSync
	default:
		return syncer.ModeFromConfig(h.cfg)
	}
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
