package store

import (
	"time"

	"gestionale/internal/models"
)

// IncassoFilter narrows GET /api/incassi queries.
type IncassoFilter struct {
	PuntoVenditaID string
	From           *time.Time
	To             *time.Time
}

// AnalyticsFilter narrows GET /api/velocissimo/analytics-cache queries.
// OriginsKey/TypesKey are pointers so the empty key ("" = all origins/types)
// stays distinguishable from "no filter".
type AnalyticsFilter struct {
	Day        *time.Time
	From       *time.Time
	To         *time.Time
	StoreValue string
	OriginsKey *string
	TypesKey   *string
	Limit      int
}

// Store is the persistence surface behind the gestionale REST API. All writes
// are idempotent upserts on the natural keys described in the model package.
type Store interface {
	FirstActivePuntoVendita() (*models.PuntoVendita, error)
	GetPuntoVendita(id string) (*models.PuntoVendita, error)
	CreatePuntoVendita(pv *models.PuntoVendita) error

	// UpsertIncasso writes one daily revenue row keyed by (data, puntoVenditaId)
	// and returns the stored row.
	UpsertIncasso(inc *models.IncassoGiornaliero) (*models.IncassoGiornaliero, error)
	ListIncassi(f IncassoFilter) ([]models.IncassoGiornaliero, error)

	// UpsertAnalyticsCache writes one KPI snapshot keyed by
	// (day, storeValue, originsKey, typesKey) and returns the stored row.
	UpsertAnalyticsCache(row *models.VelocissimoAnalyticsCache) (*models.VelocissimoAnalyticsCache, error)
	ListAnalyticsCache(f AnalyticsFilter) ([]models.VelocissimoAnalyticsCache, error)

	AppendCronLog(status, message string) error
	LastCronLog() (*models.CronVelocissimoLog, error)

	// TouchSync updates the per-outlet last-import tracker.
	TouchSync(puntoVenditaID string, count int) error
	ListSyncs() ([]models.SyncVelocissimo, error)
}
