package mocks

import (
	"sort"
	"sync"
	"time"

	"gestionale/internal/models"
	"gestionale/internal/store"
)

// MemoryStore is an in-memory store.Store used by handler and engine tests.
// It reproduces the same natural-key upsert semantics as the MySQL store.
type MemoryStore struct {
	mu sync.Mutex

	PuntiVendita []models.PuntoVendita
	Incassi      map[string]*models.IncassoGiornaliero          // data|pvID
	Analytics    map[string]*models.VelocissimoAnalyticsCache   // day|store|originsKey|typesKey
	CronLogs     []models.CronVelocissimoLog
	Syncs        map[string]*models.SyncVelocissimo

	nextID uint
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		Incassi:   make(map[string]*models.IncassoGiornaliero),
		Analytics: make(map[string]*models.VelocissimoAnalyticsCache),
		Syncs:     make(map[string]*models.SyncVelocissimo),
	}
}

func (s *MemoryStore) id() uint {
	s.nextID++
	return s.nextID
}

func (s *MemoryStore) FirstActivePuntoVendita() (*models.PuntoVendita, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var active []models.PuntoVendita
	for _, pv := range s.PuntiVendita {
		if pv.Attivo {
			active = append(active, pv)
		}
	}
	if len(active) == 0 {
		return nil, nil
	}
	sort.Slice(active, func(i, j int) bool { return active[i].Nome < active[j].Nome })
	pv := active[0]
	return &pv, nil
}

func (s *MemoryStore) GetPuntoVendita(id string) (*models.PuntoVendita, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, pv := range s.PuntiVendita {
		if pv.ID == id {
			out := pv
			return &out, nil
		}
	}
	return nil, nil
}

func (s *MemoryStore) CreatePuntoVendita(pv *models.PuntoVendita) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.PuntiVendita = append(s.PuntiVendita, *pv)
	return nil
}

func incassoKey(data time.Time, pvID string) string {
	return data.Format("2006-01-02") + "|" + pvID
}

func (s *MemoryStore) UpsertIncasso(inc *models.IncassoGiornaliero) (*models.IncassoGiornaliero, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	day := models.NormDay(inc.Data)
	key := incassoKey(day, inc.PuntoVenditaID)
	if existing, ok := s.Incassi[key]; ok {
		existing.Importo = inc.Importo
		existing.Fonte = inc.Fonte
		if inc.Note != nil {
			existing.Note = inc.Note
		}
		existing.UpdatedAt = time.Now()
		out := *existing
		return &out, nil
	}

	row := *inc
	row.ID = s.id()
	row.Data = day
	row.CreatedAt = time.Now()
	row.UpdatedAt = row.CreatedAt
	s.Incassi[key] = &row
	out := row
	return &out, nil
}

func (s *MemoryStore) ListIncassi(f store.IncassoFilter) ([]models.IncassoGiornaliero, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var rows []models.IncassoGiornaliero
	for _, inc := range s.Incassi {
		if f.PuntoVenditaID != "" && inc.PuntoVenditaID != f.PuntoVenditaID {
			continue
		}
		if f.From != nil && inc.Data.Before(*f.From) {
			continue
		}
		if f.To != nil && inc.Data.After(*f.To) {
			continue
		}
		rows = append(rows, *inc)
	}
	sort.Slice(rows, func(i, j int) bool { return rows[i].Data.After(rows[j].Data) })
	return rows, nil
}

func analyticsKey(row *models.VelocissimoAnalyticsCache) string {
	return row.Day.Format("2006-01-02") + "|" + row.StoreValue + "|" + row.OriginsKey + "|" + row.TypesKey
}

func (s *MemoryStore) UpsertAnalyticsCache(row *models.VelocissimoAnalyticsCache) (*models.VelocissimoAnalyticsCache, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	row.Day = models.NormDay(row.Day)
	row.OriginsKey = models.ListKey(row.Origins)
	row.TypesKey = models.ListKey(row.Types)

	key := analyticsKey(row)
	if existing, ok := s.Analytics[key]; ok {
		existing.StoreText = row.StoreText
		existing.Origins = row.Origins
		existing.Types = row.Types
		existing.Metrics = row.Metrics
		existing.Raw = row.Raw
		existing.UpdatedAt = time.Now()
		out := *existing
		return &out, nil
	}

	stored := *row
	stored.ID = s.id()
	stored.CreatedAt = time.Now()
	stored.UpdatedAt = stored.CreatedAt
	s.Analytics[key] = &stored
	out := stored
	return &out, nil
}

func (s *MemoryStore) ListAnalyticsCache(f store.AnalyticsFilter) ([]models.VelocissimoAnalyticsCache, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var rows []models.VelocissimoAnalyticsCache
	for _, row := range s.Analytics {
		if f.Day != nil && !row.Day.Equal(models.NormDay(*f.Day)) {
			continue
		}
		if f.From != nil && row.Day.Before(models.NormDay(*f.From)) {
			continue
		}
		if f.To != nil && row.Day.After(models.NormDay(*f.To)) {
			continue
		}
		if f.StoreValue != "" && row.StoreValue != f.StoreValue {
			continue
		}
		if f.OriginsKey != nil && row.OriginsKey != *f.OriginsKey {
			continue
		}
		if f.TypesKey != nil && row.TypesKey != *f.TypesKey {
			continue
		}
		rows = append(rows, *row)
	}
	sort.Slice(rows, func(i, j int) bool { return rows[i].Day.After(rows[j].Day) })

	limit := f.Limit
	if limit <= 0 {
		limit = 10
	}
	if limit > 50 {
		limit = 50
	}
	if len(rows) > limit {
		rows = rows[:limit]
	}
	return rows, nil
}

func (s *MemoryStore) AppendCronLog(status, message string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.CronLogs = append(s.CronLogs, models.CronVelocissimoLog{
		ID:      s.id(),
		RunAt:   time.Now(),
		Status:  status,
		Message: message,
	})
	return nil
}

func (s *MemoryStore) LastCronLog() (*models.CronVelocissimoLog, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.CronLogs) == 0 {
		return nil, nil
	}
	row := s.CronLogs[len(s.CronLogs)-1]
	return &row, nil
}

func (s *MemoryStore) TouchSync(puntoVenditaID string, count int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if existing, ok := s.Syncs[puntoVenditaID]; ok {
		existing.UltimoSync = time.Now()
		existing.UltimiCount = count
		return nil
	}
	s.Syncs[puntoVenditaID] = &models.SyncVelocissimo{
		ID:             s.id(),
		PuntoVenditaID: puntoVenditaID,
		UltimoSync:     time.Now(),
		UltimiCount:    count,
	}
	return nil
}

func (s *MemoryStore) ListSyncs() ([]models.SyncVelocissimo, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var rows []models.SyncVelocissimo
	for _, v := range s.Syncs {
		rows = append(rows, *v)
	}
	sort.Slice(rows, func(i, j int) bool { return rows[i].UltimoSync.After(rows[j].UltimoSync) })
	return rows, nil
}
