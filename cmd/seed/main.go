// seed creates the initial punto vendita so a fresh install has a target
// outlet for the sync engine.
package main

import (
	"flag"
	"log"

	"gestionale/internal/config"
	"gestionale/internal/database"
	"gestionale/internal/models"
	"gestionale/internal/store"

	"github.com/google/uuid"
	"github.com/joho/godotenv"
)

var nome = flag.String("nome", "Sorrento", "display name of the punto vendita")

func main() {
	flag.Parse()

	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found")
	}

	cfg := config.Load()
	db, err := database.Initialize(cfg.DatabaseURL)
	if err != nil {
		log.Fatal("Failed to connect to database:", err)
	}

	st := store.NewGormStore(db)
	if existing, err := st.FirstActivePuntoVendita(); err == nil && existing != nil {
		log.Printf("Punto vendita già presente: %s (%s)", existing.Nome, existing.ID)
		return
	}

	pv := &models.PuntoVendita{
		ID:     uuid.New().String(),
		Nome:   *nome,
		Attivo: true,
	}
	if err := st.CreatePuntoVendita(pv); err != nil {
		log.Fatalf("Seed failed: %v", err)
	}
	log.Printf("Creato punto vendita %s (%s)", pv.Nome, pv.ID)
}
