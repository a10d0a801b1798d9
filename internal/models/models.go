package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"
)

// Fonte values for IncassoGiornaliero
const (
	FonteManuale  = "MANUALE"
	FonteImport   = "IMPORT"
	FonteScraping = "SCRAPING"
)

// PuntoVendita is a physical sales location tracked by the gestionale.
type PuntoVendita struct {
	ID        string    `json:"id" gorm:"primaryKey;size:36"`
	Nome      string    `json:"nome" gorm:"index;not null"`
	Attivo    bool      `json:"attivo" gorm:"index;default:true"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// IncassoGiornaliero is one daily revenue total for one outlet.
// Unique per (data, puntoVenditaId): a second write updates in place.
type IncassoGiornaliero struct {
	ID             uint      `json:"id" gorm:"primaryKey"`
	Data           time.Time `json:"data" gorm:"uniqueIndex:idx_incasso_data_pv;not null"`
	Importo        float64   `json:"importo" gorm:"not null"`
	Fonte          string    `json:"fonte" gorm:"size:16;default:MANUALE"`
	Note           *string   `json:"note"`
	PuntoVenditaID string    `json:"puntoVenditaId" gorm:"uniqueIndex:idx_incasso_data_pv;size:36;not null"`

	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`

	PuntoVendita *PuntoVendita `json:"puntoVendita,omitempty" gorm:"foreignKey:PuntoVenditaID"`
}

// VelocissimoAnalyticsCache is a cached read of the portal's KPI set for one
// day and one filter combination. Unique per (day, storeValue, originsKey,
// typesKey); re-ingestion updates metrics and labels in place.
type VelocissimoAnalyticsCache struct {
	ID         uint       `json:"id" gorm:"primaryKey"`
	Day        time.Time  `json:"day" gorm:"uniqueIndex:idx_vac_key;not null"`
	StoreValue string     `json:"storeValue" gorm:"uniqueIndex:idx_vac_key;size:64;not null"`
	StoreText  *string    `json:"storeText"`
	OriginsKey string     `json:"originsKey" gorm:"uniqueIndex:idx_vac_key;size:191;not null"`
	TypesKey   string     `json:"typesKey" gorm:"uniqueIndex:idx_vac_key;size:191;not null"`
	Origins    StringList `json:"origins" gorm:"type:text"`
	Types      StringList `json:"types" gorm:"type:text"`
	Metrics    JSONMap    `json:"metrics" gorm:"type:text"`
	Raw        JSONMap    `json:"raw" gorm:"type:text"`

	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt" gorm:"index"`
}

// CronVelocissimoLog records one outcome per sync invocation. Append-only.
type CronVelocissimoLog struct {
	ID      uint      `json:"id" gorm:"primaryKey"`
	RunAt   time.Time `json:"runAt" gorm:"index;autoCreateTime"`
	Status  string    `json:"status" gorm:"size:16"` // OK | ERROR
	Message string    `json:"message" gorm:"size:1024"`
}

// SyncVelocissimo tracks the last successful scraping import per outlet.
type SyncVelocissimo struct {
	ID             uint      `json:"id" gorm:"primaryKey"`
	PuntoVenditaID string    `json:"puntoVenditaId" gorm:"uniqueIndex;size:36;not null"`
	UltimoSync     time.Time `json:"ultimoSync"`
	UltimiCount    int       `json:"ultimiCount"`

	PuntoVendita *PuntoVendita `json:"puntoVendita,omitempty" gorm:"foreignKey:PuntoVenditaID"`
}

// ListKey builds the canonical key string for an origin/type member list:
// deduplicated, sorted, pipe-joined. Order of the input never matters.
func ListKey(values []string) string {
	seen := make(map[string]struct{}, len(values))
	uniq := make([]string, 0, len(values))
	for _, v := range values {
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		uniq = append(uniq, v)
	}
	sort.Strings(uniq)
	return strings.Join(uniq, "|")
}

// NormDay truncates a timestamp to local midnight, the canonical day key.
func NormDay(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
}

// StringList stores a []string as a JSON text column.
type StringList []string

func (l StringList) Value() (driver.Value, error) {
	if l == nil {
		l = StringList{}
	}
	b, err := json.Marshal(l)
	return string(b), err
}

func (l *StringList) Scan(src interface{}) error {
	return scanJSON(src, l)
}

// JSONMap stores an open map as a JSON text column. Used for the metric
// mapping and the raw diagnostics blob; core logic never branches on Raw.
type JSONMap map[string]interface{}

func (m JSONMap) Value() (driver.Value, error) {
	if m == nil {
		m = JSONMap{}
	}
	b, err := json.Marshal(m)
	return string(b), err
}

func (m *JSONMap) Scan(src interface{}) error {
	return scanJSON(src, m)
}

func scanJSON(src, dst interface{}) error {
	switch v := src.(type) {
	case nil:
		return nil
	case []byte:
		return json.Unmarshal(v, dst)
	case string:
		return json.Unmarshal([]byte(v), dst)
	default:
		return fmt.Errorf("unsupported column type %T", src)
	}
}
