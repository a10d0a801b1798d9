// runner executes the Velocissimo sync from a host with a real Chrome (a
// workstation or a GitHub Actions job), for deployments whose web service
// cannot launch a browser. It resolves the target outlet through the
// gestionale REST API, runs the engine and exits non-zero on a fatal step.
//
// Usage:
//
//	go run ./cmd/runner
//	go run ./cmd/runner -mode backfill -from 2026-01-01 -to 2026-01-31 -write-incassi
package main

import (
	"context"
	"flag"
	"log"
	"os"
	"time"

	"gestionale/internal/config"
	"gestionale/internal/syncer"

	"github.com/joho/godotenv"
)

var (
	mode         = flag.String("mode", "", "run mode: sync, login-only, explore-filters, analyze-dashboard, backfill (default from env)")
	from         = flag.String("from", "", "backfill range start (YYYY-MM-DD)")
	to           = flag.String("to", "", "backfill range end (YYYY-MM-DD)")
	writeIncassi = flag.Bool("write-incassi", false, "submit backfill revenue rows instead of only reporting them")
	headless     = flag.Bool("headless", true, "run Chrome headless")
	puntoVendita = flag.String("punto-vendita", "", "target outlet id (default: first active from the gestionale)")
	timeout      = flag.Duration("timeout", 10*time.Minute, "overall run timeout")
)

func main() {
	flag.Parse()

	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found")
	}

	cfg := config.Load()
	cfg.Headless = *headless
	// This binary exists exactly because it runs where Chrome does.
	cfg.UseGitHubActions = false
	if *from != "" {
		cfg.BackfillFrom = *from
	}
	if *to != "" {
		cfg.BackfillTo = *to
	}
	if *writeIncassi {
		cfg.BackfillWriteIncassi = true
	}

	if cfg.GestionaleURL == "" || cfg.IncassiAPIKey == "" {
		log.Fatal("Set GESTIONALE_URL and INCASSI_API_KEY")
	}

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	client := syncer.NewClient(cfg.GestionaleURL, cfg.IncassiAPIKey)

	pvID := *puntoVendita
	if pvID == "" {
		pvID = cfg.PuntoVenditaID
	}
	var pv *syncer.PuntoVenditaRef
	var err error
	if pvID != "" {
		pv = &syncer.PuntoVenditaRef{ID: pvID, Nome: pvID}
	} else {
		pv, err = client.FetchPuntoVendita(ctx)
		if err != nil {
			log.Fatalf("Punto vendita: %v", err)
		}
	}
	log.Printf("Target punto vendita: %s (%s)", pv.Nome, pv.ID)

	engine := &syncer.Engine{
		Cfg:  cfg,
		Sink: client,
		LogRun: func(status, message string) {
			log.Printf("[%s] %s", status, message)
		},
	}

	opts := syncer.RunOptions{
		Mode:         runMode(cfg),
		PuntoVendita: *pv,
		WriteIncassi: cfg.BackfillWriteIncassi,
	}
	if opts.Mode == syncer.ModeBackfill {
		opts.BackfillFrom, err = time.ParseInLocation("2006-01-02", cfg.BackfillFrom, time.Local)
		if err != nil {
			log.Fatalf("Invalid -from: %v", err)
		}
		opts.BackfillTo, err = time.ParseInLocation("2006-01-02", cfg.BackfillTo, time.Local)
		if err != nil {
			log.Fatalf("Invalid -to: %v", err)
		}
	}

	result := engine.Run(ctx, opts)
	for _, step := range result.Steps {
		status := "ok"
		if !step.OK {
			status = "FAIL"
		}
		if step.Detail != "" {
			log.Printf("  [%s] %s: %s", status, step.Step, step.Detail)
		} else {
			log.Printf("  [%s] %s", status, step.Step)
		}
	}

	if !result.OK {
		log.Printf("Sync failed: %s", result.Message)
		os.Exit(1)
	}
	log.Printf("Sync ok: %s", result.Message)
}

func runMode(cfg *config.Config) syncer.Mode {
	switch *mode {
	case "sync":
		return syncer.ModeSync
	case "login-only":
		return syncer.ModeLoginOnly
	case "explore-filters":
		return syncer.ModeExploreFilters
	case "analyze-dashboard":
		return syncer.ModeAnalyzeDashboard
	case "backfill":
		return syncer.ModeBackfill
	case "":
		return syncer.ModeFromConfig(cfg)
	default:
		log.Fatalf("Unknown mode %q", *mode)
		return syncer.ModeSync
	}
}
