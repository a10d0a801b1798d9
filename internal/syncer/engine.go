package syncer

import (
	"context"
	"fmt"
	"math"
	"strings"
	"time"

	"gestionale/internal/config"
	"gestionale/internal/portal"
)

// Mode selects which subset of the pipeline a run executes. Chosen once at
// the trigger boundary instead of threading booleans through every stage.
type Mode string

const (
	ModeSync             Mode = "sync"
	ModeLoginOnly        Mode = "login-only"
	ModeExploreFilters   Mode = "explore-filters"
	ModeAnalyzeDashboard Mode = "analyze-dashboard"
	ModeBackfill         Mode = "backfill"
)

// ModeFromConfig maps the debug/dry-run env switches to a run mode. The
// first matching switch wins, in increasing order of pipeline depth.
func ModeFromConfig(cfg *config.Config) Mode {
	switch {
	case cfg.StopAfterLogin:
		return ModeLoginOnly
	case cfg.ExploreFilters:
		return ModeExploreFilters
	case cfg.AnalyzeDashboard:
		return ModeAnalyzeDashboard
	case cfg.BackfillFrom != "" && cfg.BackfillTo != "":
		return ModeBackfill
	default:
		return ModeSync
	}
}

// Step is one per-stage outcome returned to the caller and streamed to the
// progress hub.
type Step struct {
	Step       string `json:"step"`
	OK         bool   `json:"ok"`
	Detail     string `json:"detail,omitempty"`
	Screenshot string `json:"screenshot,omitempty"`
}

// Result is the full outcome of one invocation. Steps always carries partial
// progress, even on failure, so operators can see which stage broke.
type Result struct {
	OK               bool            `json:"ok"`
	Count            int             `json:"count,omitempty"`
	Message          string          `json:"message,omitempty"`
	Steps            []Step          `json:"steps"`
	UseGitHubActions bool            `json:"useGitHubActions,omitempty"`
	Candidates       []IncassoRow    `json:"candidates,omitempty"`
	Backfill         *BackfillResult `json:"backfill,omitempty"`
}

// StepPublisher receives step outcomes as they happen (the ws hub).
type StepPublisher interface {
	Publish(v interface{})
}

// RunOptions are resolved by the trigger gate (or the external runner)
// before the engine starts.
type RunOptions struct {
	Mode         Mode
	PuntoVendita PuntoVenditaRef
	Screenshots  bool
	BackfillFrom time.Time
	BackfillTo   time.Time
	WriteIncassi bool
}

// Engine drives one sync run: browser login, filter application, extraction
// and submission, strictly sequential on the single portal session. All
// fatal errors are converted into steps and a ledger row here; nothing
// escapes past Run.
type Engine struct {
	Cfg  *config.Config
	Sink SnapshotSink
	// Publisher and LogRun are optional operability hooks.
	Publisher StepPublisher
	LogRun    func(status, message string)
}

func (e *Engine) addStep(r *Result, step string, ok bool, detail, screenshot string) {
	s := Step{Step: step, OK: ok, Detail: detail, Screenshot: screenshot}
	r.Steps = append(r.Steps, s)
	if e.Publisher != nil {
		e.Publisher.Publish(s)
	}
}

func (e *Engine) finish(r *Result, ok bool, message string) *Result {
	r.OK = ok
	r.Message = message
	status := "OK"
	if !ok {
		status = "ERROR"
	}
	if e.LogRun != nil {
		e.LogRun(status, message)
	}
	return r
}

func (e *Engine) capture(s *portal.Session, want bool) string {
	if !want || s == nil {
		return ""
	}
	return s.Screenshot()
}

// Run executes one invocation. It always returns a Result; a panic inside
// the automation layer becomes a failed step.
func (e *Engine) Run(ctx context.Context, opts RunOptions) (result *Result) {
	result = &Result{}
	defer func() {
		if rec := recover(); rec != nil {
			e.addStep(result, "esecuzione", false, fmt.Sprintf("panic: %v", rec), "")
			e.finish(result, false, fmt.Sprintf("panic: %v", rec))
		}
	}()

	if missing := e.missingConfig(); missing != "" {
		err := &ConfigError{Missing: missing}
		e.addStep(result, "variabili ambiente", false, err.Error(), "")
		return e.finish(result, false, err.Error())
	}
	e.addStep(result, "variabili ambiente", true, "", "")
	e.addStep(result, "punto vendita attivo", true, opts.PuntoVendita.Nome, "")

	// Serverless hosts cannot run Chrome; delegate to the external runner
	// instead of attempting and failing the launch.
	if e.Cfg.UseGitHubActions {
		envErr := &EnvironmentError{Reason: "Chrome non disponibile su questo host: esegui il sync con il runner esterno (cmd/runner, GitHub Actions)"}
		e.addStep(result, "sync delegato", false, envErr.Error(), "")
		result.UseGitHubActions = true
		return e.finish(result, false, envErr.Error())
	}

	session, err := portal.Launch(e.Cfg.PortalBaseURL, e.Cfg.Headless)
	if err != nil {
		e.addStep(result, "avvio browser", false, err.Error(), "")
		return e.finish(result, false, err.Error())
	}
	defer session.Close()
	e.addStep(result, "browser avviato", true, "", "")

	if err := session.Login(e.Cfg.PortalEmail, e.Cfg.PortalPassword, e.Cfg.PauseAfterLogin); err != nil {
		e.addStep(result, "login", false, err.Error(), e.capture(session, opts.Screenshots))
		return e.finish(result, false, err.Error())
	}
	e.addStep(result, "login", true, "", e.capture(session, opts.Screenshots))

	if opts.Mode == ModeLoginOnly {
		e.addStep(result, "stop dopo login", true, session.URL(), e.capture(session, opts.Screenshots))
		return e.finish(result, true, "login riuscito (stop-after-login)")
	}

	// Sede selection: click by text, report the clickable inventory when the
	// target is not found so the operator can fix VELOCISSIMO_SEDE.
	sede := strings.TrimSpace(e.Cfg.PortalSede)
	clicked := session.ClickByText(sede)
	if clicked {
		time.Sleep(3 * time.Second)
		e.addStep(result, fmt.Sprintf("sede %q selezionata", sede), true, "", e.capture(session, opts.Screenshots))
	} else {
		inventory := strings.Join(session.ClickableTexts(), " | ")
		if inventory == "" {
			inventory = "nessun elemento cliccabile"
		}
		e.addStep(result, fmt.Sprintf("sede %q non trovata", sede), false, inventory, e.capture(session, opts.Screenshots))
	}

	state, err := session.ApplyFilters(portal.FilterSelection{StoreValue: sede}, 2*time.Second)
	if err != nil {
		e.addStep(result, "filtri dashboard", false, err.Error(), "")
		return e.finish(result, false, err.Error())
	}
	e.addStep(result, "filtri dashboard", true, describeFilters(state), "")

	if opts.Mode == ModeExploreFilters {
		origins, _ := session.OpenMenu("Origine")
		// Close the first menu again, otherwise the second enumeration
		// reads the still-open origin options.
		session.ClickByText("Origine")
		types, _ := session.OpenMenu("Tipologia")
		session.ClickByText("Tipologia")
		detail := fmt.Sprintf("origini: [%s]; tipologie: [%s]", strings.Join(origins, ", "), strings.Join(types, ", "))
		e.addStep(result, "esplorazione filtri", true, detail, e.capture(session, opts.Screenshots))
		return e.finish(result, true, "esplorazione filtri completata")
	}

	e.addStep(result, "tabelle in pagina", true, session.TablesSummary(), e.capture(session, opts.Screenshots))

	if opts.Mode == ModeAnalyzeDashboard {
		inventory := strings.Join(session.ClickableTexts(), " | ")
		e.addStep(result, "analisi dashboard", true, inventory, e.capture(session, opts.Screenshots))
		return e.finish(result, true, "analisi dashboard completata")
	}

	metricsClient, err := portal.NewMetricsClient(session)
	if err != nil {
		e.addStep(result, "client metriche", false, err.Error(), "")
		return e.finish(result, false, err.Error())
	}

	if opts.Mode == ModeBackfill {
		return e.runBackfill(ctx, result, metricsClient, state, opts)
	}

	return e.runDaily(ctx, result, session, metricsClient, state, opts)
}

// runDaily is the default flow: scrape the revenue table, snapshot today's
// metrics and submit both through the ingestion endpoints.
func (e *Engine) runDaily(ctx context.Context, result *Result, session *portal.Session, metrics *portal.MetricsClient, state *portal.FilterState, opts RunOptions) *Result {
	righe, err := session.ScrapeIncassi()
	if err != nil {
		e.addStep(result, "lettura tabella incassi", false, err.Error(), "")
		return e.finish(result, false, err.Error())
	}
	e.addStep(result, "lettura tabella incassi", true, fmt.Sprintf("%d righe estratte", len(righe)), "")

	incassi := BuildIncassi(righe, opts.PuntoVendita.ID)
	e.addStep(result, "parsing date e importi", true, fmt.Sprintf("%d incassi validi", len(incassi)), "")

	today := time.Now()
	dayMetrics, err := metrics.DayMetrics(ctx, today, portal.DefaultTechnicalFilter)
	if err != nil {
		// Metric endpoints are secondary to the table; keep going.
		e.addStep(result, "lettura metriche", false, err.Error(), "")
	} else {
		e.addStep(result, "lettura metriche", true, fmt.Sprintf("%d metriche", len(dayMetrics)), "")
	}

	if opts.Mode == ModeSync && e.Cfg.StopBeforeSubmit {
		result.Candidates = incassi
		e.addStep(result, "stop prima dell'invio", true, fmt.Sprintf("%d incassi pronti, non inviati", len(incassi)), "")
		return e.finish(result, true, "dry-run: nessun invio")
	}

	if len(dayMetrics) > 0 {
		snapshot := &SnapshotPayload{
			Day:        today.Format("2006-01-02"),
			StoreValue: storeValueOf(state),
			StoreText:  state.Store.Label,
			Origins:    state.Origins,
			Types:      state.Types,
			Metrics:    metricsToMap(dayMetrics),
			Raw:        map[string]interface{}{"source": "daily", "url": session.URL()},
		}
		if err := e.Sink.PostSnapshot(ctx, snapshot); err != nil {
			e.addStep(result, "invio snapshot analytics", false, err.Error(), "")
		} else {
			e.addStep(result, "invio snapshot analytics", true, "", "")
		}
	}

	if len(incassi) == 0 {
		e.addStep(result, "invio incassi", true, "nessuna riga da inviare (tabella vuota o selettori da verificare)", "")
		return e.finish(result, true, "0 incassi (tabella vuota o selettori da verificare)")
	}

	count, err := e.Sink.PostIncassi(ctx, incassi, "SCRAPING")
	if err != nil {
		e.addStep(result, "invio incassi", false, err.Error(), "")
		return e.finish(result, false, err.Error())
	}
	result.Count = count
	e.addStep(result, "invio incassi", true, fmt.Sprintf("%d registrati", count), "")
	return e.finish(result, true, fmt.Sprintf("%d incassi caricati", count))
}

func (e *Engine) runBackfill(ctx context.Context, result *Result, metrics MetricReader, state *portal.FilterState, opts RunOptions) *Result {
	writeIncassi := opts.WriteIncassi && !e.Cfg.StopBeforeSubmit
	backfill, err := Backfill(ctx, metrics, e.Sink, BackfillOptions{
		From:         opts.BackfillFrom,
		To:           opts.BackfillTo,
		Filter:       portal.DefaultTechnicalFilter,
		StoreValue:   storeValueOf(state),
		StoreText:    state.Store.Label,
		Origins:      state.Origins,
		Types:        state.Types,
		PuntoVendita: opts.PuntoVendita,
		WriteIncassi: writeIncassi,
	})
	if backfill != nil {
		result.Backfill = backfill
		result.Count = backfill.Submitted
		detail := fmt.Sprintf("%d giorni, %d snapshot, %d falliti, %d incassi inviati",
			backfill.Days, backfill.Snapshots, len(backfill.FailedDays), backfill.Submitted)
		e.addStep(result, "backfill", err == nil, detail, "")
	}
	if err != nil {
		return e.finish(result, false, err.Error())
	}
	if !writeIncassi {
		result.Candidates = backfill.Candidates
	}
	return e.finish(result, true, fmt.Sprintf("backfill completato (%d snapshot)", backfill.Snapshots))
}

func (e *Engine) missingConfig() string {
	var missing []string
	if e.Cfg.PortalEmail == "" {
		missing = append(missing, "VELOCISSIMO_EMAIL")
	}
	if e.Cfg.PortalPassword == "" {
		missing = append(missing, "VELOCISSIMO_PASSWORD")
	}
	if e.Cfg.IncassiAPIKey == "" {
		missing = append(missing, "INCASSI_API_KEY")
	}
	return strings.Join(missing, ", ")
}

// BuildIncassi converts raw table rows to submittable revenue tuples,
// silently discarding rows whose date does not parse or whose amount is not
// a finite positive number (headers, blanks, zero/negative adjustments).
func BuildIncassi(righe []portal.RigaIncasso, puntoVenditaID string) []IncassoRow {
	var incassi []IncassoRow
	for _, r := range righe {
		data, ok := portal.ParseData(r.Data)
		if !ok {
			continue
		}
		importo := portal.ParseImporto(r.Importo)
		if math.IsNaN(importo) || math.IsInf(importo, 0) || importo <= 0 {
			continue
		}
		incassi = append(incassi, IncassoRow{
			Data:           data,
			Importo:        importo,
			PuntoVenditaID: puntoVenditaID,
		})
	}
	return incassi
}

func storeValueOf(state *portal.FilterState) string {
	if state != nil && state.Store.Applied && state.Store.Value != "" {
		return state.Store.Value
	}
	// Matches the portal's own "all stores" sentinel.
	return "-1"
}

func describeFilters(state *portal.FilterState) string {
	if state == nil {
		return "nessun filtro applicato"
	}
	if !state.Store.Applied && len(state.Origins) == 0 && len(state.Types) == 0 {
		if len(state.Store.Available) > 0 {
			opts := make([]string, 0, len(state.Store.Available))
			for _, o := range state.Store.Available {
				opts = append(opts, fmt.Sprintf("%s=%s", o.Value, o.Label))
			}
			return "store non applicato; disponibili: " + strings.Join(opts, ", ")
		}
		return "nessun controllo filtro trovato (continuo senza filtri)"
	}
	return fmt.Sprintf("store=%s origini=%v tipologie=%v", storeValueOf(state), state.Origins, state.Types)
}
