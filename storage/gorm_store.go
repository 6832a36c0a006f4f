package storage

import (
	"context"
	"fmt"
	"sync"

	"github.com/glebarez/sqlite"
	"gorm.io/driver/mysql"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	gormlogger "gorm.io/gorm/logger"

	"laptop-price-tracker/models"
	"laptop-price-tracker/utils"
)

// observationRow is the GORM mapping of the history table. AutoMigrate only
// adds columns, so new fields here evolve the schema without data loss.
type observationRow struct {
	ProductKey      string `gorm:"primaryKey;size:64"`
	CaptureDate     string `gorm:"primaryKey;size:10"`
	Title           string
	Link            string
	Thumbnail       string
	Delivery        string
	DisplaySize     string `gorm:"size:64"`
	MemorySize      string `gorm:"size:64"`
	StorageSize     string `gorm:"size:64"`
	OperatingSystem string `gorm:"size:128"`

	Price       *float64
	Rating      *float64
	ReviewCount *int64

	PreviousPrice       *float64
	PreviousCaptureDate string `gorm:"size:10"`
	PriceDifference     *float64
	PriceChangePercent  *float64
	BuyNow              bool `gorm:"index;not null"`
	PriceStability      float64
	StabilityLabel      string `gorm:"size:16"`
}

func (observationRow) TableName() string { return TableName }

// GormStore persists history through GORM. It serves MySQL and SQLite.
type GormStore struct {
	db     *gorm.DB
	logger *utils.Logger
	mu     sync.Mutex
}

// OpenMySQL opens a MySQL-backed GormStore.
func OpenMySQL(dsn string, logger *utils.Logger) (*GormStore, error) {
	return NewGormStore(mysql.Open(dsn), logger)
}

// OpenSQLite opens (creating if needed) a single-file SQLite GormStore.
func OpenSQLite(path string, logger *utils.Logger) (*GormStore, error) {
	return NewGormStore(sqlite.Open(path+"?_pragma=busy_timeout(5000)"), logger)
}

// NewGormStore opens dialector and migrates the history table.
func NewGormStore(dialector gorm.Dialector, logger *utils.Logger) (*GormStore, error) {
	db, err := gorm.Open(dialector, &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("gorm: open %s: %w", dialector.Name(), err)
	}
	if err := db.AutoMigrate(&observationRow{}); err != nil {
		return nil, fmt.Errorf("gorm: migrate: %w", err)
	}
	logger.Debug("[gorm] History table ready on %s", dialector.Name())
	return &GormStore{db: db, logger: logger}, nil
}

func (s *GormStore) ReadAll(ctx context.Context) ([]models.Observation, error) {
	return (&gormTx{db: s.db.WithContext(ctx)}).ReadAll(ctx)
}

func (s *GormStore) Upsert(ctx context.Context, rows []models.Observation) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return (&gormTx{db: tx}).Upsert(ctx, rows)
	})
}

// Exclusive runs fn in one transaction. On MySQL the history read locks every
// row it returns; SQLite already admits a single writer.
func (s *GormStore) Exclusive(ctx context.Context, fn func(tx HistoryStore) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	lockRows := s.db.Dialector.Name() == "mysql"
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(&gormTx{db: tx, lockRows: lockRows})
	})
}

func (s *GormStore) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return fmt.Errorf("gorm: close: %w", err)
	}
	return sqlDB.Close()
}

type gormTx struct {
	db       *gorm.DB
	lockRows bool
}

func (t *gormTx) ReadAll(_ context.Context) ([]models.Observation, error) {
	q := t.db.Order("product_key, capture_date")
	if t.lockRows {
		q = q.Clauses(clause.Locking{Strength: "UPDATE"})
	}

	var rows []observationRow
	if err := q.Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("gorm: fetch all: %w", err)
	}

	out := make([]models.Observation, len(rows))
	for i, r := range rows {
		out[i] = r.toObservation()
	}
	return out, nil
}

func (t *gormTx) Upsert(_ context.Context, rows []models.Observation) error {
	rows = dedupeLast(rows)
	if len(rows) == 0 {
		return nil
	}

	records := make([]observationRow, len(rows))
	for i, o := range rows {
		records[i] = fromObservation(o)
	}

	err := t.db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "product_key"}, {Name: "capture_date"}},
		UpdateAll: true,
	}).CreateInBatches(&records, upsertBatchSize).Error
	if err != nil {
		return fmt.Errorf("gorm: upsert: %w", err)
	}
	return nil
}

func (t *gormTx) Exclusive(context.Context, func(HistoryStore) error) error {
	return ErrNestedExclusive
}

func (t *gormTx) Close() error { return nil }

func fromObservation(o models.Observation) observationRow {
	return observationRow{
		ProductKey:          o.ProductKey,
		CaptureDate:         string(o.CaptureDate),
		Title:               o.Title,
		Link:                o.Link,
		Thumbnail:           o.Thumbnail,
		Delivery:            o.Delivery,
		DisplaySize:         o.DisplaySize,
		MemorySize:          o.MemorySize,
		StorageSize:         o.StorageSize,
		OperatingSystem:     o.OperatingSystem,
		Price:               o.Price,
		Rating:              o.Rating,
		ReviewCount:         o.ReviewCount,
		PreviousPrice:       o.PreviousPrice,
		PreviousCaptureDate: string(o.PreviousCaptureDate),
		PriceDifference:     o.PriceDifference,
		PriceChangePercent:  o.PriceChangePercent,
		BuyNow:              o.BuyNow,
		PriceStability:      o.PriceStability,
		StabilityLabel:      o.StabilityLabel,
	}
}

func (r observationRow) toObservation() models.Observation {
	return models.Observation{
		ProductKey:  r.ProductKey,
		CaptureDate: models.Date(r.CaptureDate),
		Price:       r.Price,
		Rating:      r.Rating,
		ReviewCount: r.ReviewCount,
		Details: models.Details{
			Title:           r.Title,
			Link:            r.Link,
			Thumbnail:       r.Thumbnail,
			Delivery:        r.Delivery,
			DisplaySize:     r.DisplaySize,
			MemorySize:      r.MemorySize,
			StorageSize:     r.StorageSize,
			OperatingSystem: r.OperatingSystem,
		},
		PreviousPrice:       r.PreviousPrice,
		PreviousCaptureDate: models.Date(r.PreviousCaptureDate),
		PriceDifference:     r.PriceDifference,
		PriceChangePercent:  r.PriceChangePercent,
		BuyNow:              r.BuyNow,
		PriceStability:      r.PriceStability,
		StabilityLabel:      r.StabilityLabel,
	}
}
