package config

import (
	"os"
	"strconv"
	"time"
)

type Config struct {
	DatabaseURL string
	Port        string
	Environment string
	JWTSecret   string

	// Shared key for machine-to-machine ingestion calls (scraper → gestionale).
	IncassiAPIKey string
	// Secret accepted by the cron trigger endpoint (x-cron-secret / Bearer).
	CronSecret string

	// External portal (Velocissimo admin) credentials and target.
	PortalBaseURL  string
	PortalEmail    string
	PortalPassword string
	PortalSede     string // store label to select after login

	// Base URL of this gestionale, used by the engine to submit results
	// through the public ingestion endpoints.
	GestionaleURL string

	// Optional explicit outlet mapping; empty means "first active".
	PuntoVenditaID string

	// Debug / dry-run switches for the sync engine.
	Headless         bool
	StopAfterLogin   bool
	StopBeforeSubmit bool
	ExploreFilters   bool
	AnalyzeDashboard bool
	PauseAfterLogin  time.Duration

	// Hosts without Chrome (serverless) must delegate the run to the
	// external runner instead of attempting a browser launch.
	UseGitHubActions bool

	// Backfill range (inclusive, YYYY-MM-DD) and write-through toggle.
	BackfillFrom         string
	BackfillTo           string
	BackfillWriteIncassi bool
}

func Load() *Config {
	defaultDSN := "root:gestionale@tcp(127.0.0.1:3306)/gestionale?charset=utf8mb4&parseTime=True&loc=Local"

	return &Config{
		DatabaseURL: getEnv("DATABASE_URL", defaultDSN),
		Port:        getEnv("PORT", "8080"),
		Environment: getEnv("ENVIRONMENT", "development"),
		JWTSecret:   getEnv("JWT_SECRET", "dev-secret"),

		IncassiAPIKey: getEnv("INCASSI_API_KEY", ""),
		CronSecret:    getEnv("CRON_SECRET", ""),

		PortalBaseURL:  getEnv("VELOCISSIMO_URL", "https://admin.velocissimo.app"),
		PortalEmail:    getEnv("VELOCISSIMO_EMAIL", ""),
		PortalPassword: getEnv("VELOCISSIMO_PASSWORD", ""),
		PortalSede:     getEnv("VELOCISSIMO_SEDE", "Sorrento"),

		GestionaleURL:  getEnv("GESTIONALE_URL", "http://localhost:8080"),
		PuntoVenditaID: getEnv("PUNTO_VENDITA_ID", ""),

		Headless:         getBool("SYNC_HEADLESS", true),
		StopAfterLogin:   getBool("SYNC_STOP_AFTER_LOGIN", false),
		StopBeforeSubmit: getBool("SYNC_STOP_BEFORE_SUBMIT", false),
		ExploreFilters:   getBool("SYNC_EXPLORE_FILTERS", false),
		AnalyzeDashboard: getBool("SYNC_ANALYZE_DASHBOARD", false),
		PauseAfterLogin:  getDuration("SYNC_PAUSE_MS", 2500*time.Millisecond),

		UseGitHubActions: getBool("SYNC_USE_GITHUB_ACTIONS", os.Getenv("VERCEL") != ""),

		BackfillFrom:         getEnv("BACKFILL_FROM", ""),
		BackfillTo:           getEnv("BACKFILL_TO", ""),
		BackfillWriteIncassi: getBool("BACKFILL_WRITE_INCASSI", false),
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getBool(key string, defaultValue bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return defaultValue
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return defaultValue
	}
	return b
}

func getDuration(key string, defaultValue time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return defaultValue
	}
	ms, err := strconv.Atoi(v)
	if err != nil || ms < 0 {
		return defaultValue
	}
	return time.Duration(ms) * time.Millisecond
}
