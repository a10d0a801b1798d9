package store

import (
	"errors"
	"time"

	"gestionale/internal/models"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// GormStore backs the Store interface with MySQL.
type GormStore struct {
	db *gorm.DB
}

func NewGormStore(db *gorm.DB) *GormStore {
	return &GormStore{db: db}
}

func (s *GormStore) FirstActivePuntoVendita() (*models.PuntoVendita, error) {
	var pv models.PuntoVendita
	err := s.db.Where("attivo = ?", true).Order("nome asc").First(&pv).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &pv, nil
}

func (s *GormStore) GetPuntoVendita(id string) (*models.PuntoVendita, error) {
	var pv models.PuntoVendita
	err := s.db.First(&pv, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &pv, nil
}

func (s *GormStore) CreatePuntoVendita(pv *models.PuntoVendita) error {
	return s.db.Create(pv).Error
}

func (s *GormStore) UpsertIncasso(inc *models.IncassoGiornaliero) (*models.IncassoGiornaliero, error) {
	inc.Data = models.NormDay(inc.Data)
	// A write without a note keeps the stored one; scraper batches never
	// carry notes and must not wipe operator-entered ones.
	updates := []string{"importo", "fonte", "updated_at"}
	if inc.Note != nil {
		updates = append(updates, "note")
	}
	err := s.db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "data"}, {Name: "punto_vendita_id"}},
		DoUpdates: clause.AssignmentColumns(updates),
	}).Create(inc).Error
	if err != nil {
		return nil, err
	}

	var stored models.IncassoGiornaliero
	err = s.db.Preload("PuntoVendita").
		Where("data = ? AND punto_vendita_id = ?", inc.Data, inc.PuntoVenditaID).
		First(&stored).Error
	if err != nil {
		return nil, err
	}
	return &stored, nil
}

func (s *GormStore) ListIncassi(f IncassoFilter) ([]models.IncassoGiornaliero, error) {
	q := s.db.Model(&models.IncassoGiornaliero{}).Preload("PuntoVendita")
	if f.PuntoVenditaID != "" {
		q = q.Where("punto_vendita_id = ?", f.PuntoVenditaID)
	}
	if f.From != nil {
		q = q.Where("data >= ?", *f.From)
	}
	if f.To != nil {
		q = q.Where("data <= ?", *f.To)
	}

	var rows []models.IncassoGiornaliero
	err := q.Order("data desc").Limit(500).Find(&rows).Error
	return rows, err
}

func (s *GormStore) UpsertAnalyticsCache(row *models.VelocissimoAnalyticsCache) (*models.VelocissimoAnalyticsCache, error) {
	row.Day = models.NormDay(row.Day)
	row.OriginsKey = models.ListKey(row.Origins)
	row.TypesKey = models.ListKey(row.Types)

	err := s.db.Clauses(clause.OnConflict{
		Columns: []clause.Column{
			{Name: "day"}, {Name: "store_value"}, {Name: "origins_key"}, {Name: "types_key"},
		},
		DoUpdates: clause.AssignmentColumns([]string{"store_text", "origins", "types", "metrics", "raw", "updated_at"}),
	}).Create(row).Error
	if err != nil {
		return nil, err
	}

	var stored models.VelocissimoAnalyticsCache
	err = s.db.Where("day = ? AND store_value = ? AND origins_key = ? AND types_key = ?",
		row.Day, row.StoreValue, row.OriginsKey, row.TypesKey).First(&stored).Error
	if err != nil {
		return nil, err
	}
	return &stored, nil
}

func (s *GormStore) ListAnalyticsCache(f AnalyticsFilter) ([]models.VelocissimoAnalyticsCache, error) {
	q := s.db.Model(&models.VelocissimoAnalyticsCache{})
	if f.Day != nil {
		q = q.Where("day = ?", models.NormDay(*f.Day))
	}
	if f.From != nil {
		q = q.Where("day >= ?", models.NormDay(*f.From))
	}
	if f.To != nil {
		q = q.Where("day <= ?", models.NormDay(*f.To))
	}
	if f.StoreValue != "" {
		q = q.Where("store_value = ?", f.StoreValue)
	}
	if f.OriginsKey != nil {
		q = q.Where("origins_key = ?", *f.OriginsKey)
	}
	if f.TypesKey != nil {
		q = q.Where("types_key = ?", *f.TypesKey)
	}

	limit := f.Limit
	if limit <= 0 {
		limit = 10
	}
	if limit > 50 {
		limit = 50
	}

	var rows []models.VelocissimoAnalyticsCache
	err := q.Order("day desc").Order("updated_at desc").Limit(limit).Find(&rows).Error
	return rows, err
}

func (s *GormStore) AppendCronLog(status, message string) error {
	return s.db.Create(&models.CronVelocissimoLog{
		RunAt:   time.Now(),
		Status:  status,
		Message: message,
	}).Error
}

func (s *GormStore) LastCronLog() (*models.CronVelocissimoLog, error) {
	var row models.CronVelocissimoLog
	err := s.db.Order("run_at desc").First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &row, nil
}

func (s *GormStore) TouchSync(puntoVenditaID string, count int) error {
	return s.db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "punto_vendita_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"ultimo_sync", "ultimi_count"}),
	}).Create(&models.SyncVelocissimo{
		PuntoVenditaID: puntoVenditaID,
		UltimoSync:     time.Now(),
		UltimiCount:    count,
	}).Error
}

func (s *GormStore) ListSyncs() ([]models.SyncVelocissimo, error) {
	var rows []models.SyncVelocissimo
	err := s.db.Preload("PuntoVendita").Order("ultimo_sync desc").Find(&rows).Error
	return rows, err
}
