package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	gormLogger "gorm.io/gorm/logger"

	"github.com/axelofwar/be-community-gamification/internal/domain/model"
	"github.com/axelofwar/be-community-gamification/pkg/metrics"
)

// DefaultTable is the historical leaderboard table.
const DefaultTable = "leaderboard"

// Supported SQL drivers.
const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
)

// Column names of the leaderboard table, kept for compatibility with the
// existing leaderboard API.
const (
	colIndex       = "index"
	colImpressions = "Impressions"
)

// row maps one leaderboard table row.
type row struct {
	Index       string `gorm:"column:index;primaryKey"`
	Name        string `gorm:"column:Name"`
	Favorites   int64  `gorm:"column:Favorites"`
	Retweets    int64  `gorm:"column:Retweets"`
	Replies     int64  `gorm:"column:Replies"`
	Impressions int64  `gorm:"column:Impressions"`
	PFPURL      string `gorm:"column:PFP_Url"`
	Description string `gorm:"column:Description"`
	BioLink     string `gorm:"column:Bio_Link"`
}

func toRow(e model.TrackedEntity) row { //nolint:gocritic // entity is copied into the row
	return row{
		Index:       e.Key,
		Name:        e.DisplayName,
		Favorites:   e.Metrics.Likes,
		Retweets:    e.Metrics.Retweets,
		Replies:     e.Metrics.Replies,
		Impressions: e.Metrics.Impressions,
		PFPURL:      e.ProfileImageURL,
		Description: e.BioDescription,
		BioLink:     e.BioLink,
	}
}

func (r row) entity() model.TrackedEntity { //nolint:gocritic // row is a value type
	return model.TrackedEntity{
		Key:         r.Index,
		DisplayName: r.Name,
		Metrics: model.Metrics{
			Likes:       r.Favorites,
			Retweets:    r.Retweets,
			Replies:     r.Replies,
			Impressions: r.Impressions,
		},
		ProfileImageURL: r.PFPURL,
		BioDescription:  r.Description,
		BioLink:         r.BioLink,
	}
}

// OpenDB opens a gorm connection for driver with SQL logging silenced.
func OpenDB(driver, dsn string) (*gorm.DB, error) {
	var dialector gorm.Dialector
	switch driver {
	case DriverPostgres:
		dialector = postgres.Open(dsn)
	case DriverSQLite:
		dialector = sqlite.Open(dsn)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownDriver, driver)
	}
	db, err := gorm.Open(dialector, &gorm.Config{
		Logger: gormLogger.Default.LogMode(gormLogger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("%w: open %s: %w", ErrStoreUnavailable, driver, err)
	}
	return db, nil
}

// GormStore is a Store over a relational leaderboard table.
type GormStore struct {
	db    *gorm.DB
	table string
}

// NewGormStore migrates the leaderboard table and returns a store over it.
func NewGormStore(ctx context.Context, db *gorm.DB, opts ...GormOption) (*GormStore, error) {
	s := &GormStore{db: db, table: DefaultTable}
	for _, opt := range opts {
		opt(s)
	}
	if err := s.tx(ctx).AutoMigrate(&row{}); err != nil {
		return nil, fmt.Errorf("%w: migrate %s: %w", ErrStoreUnavailable, s.table, err)
	}
	return s, nil
}

func (s *GormStore) tx(ctx context.Context) *gorm.DB {
	return s.db.WithContext(ctx).Table(s.table)
}

func byIndex(key string) clause.Eq {
	return clause.Eq{Column: clause.Column{Name: colIndex}, Value: key}
}

func unavailable(op string, err error) error {
	metrics.RecordErrorByComponent("repository", op)
	return fmt.Errorf("%w: %s: %w", ErrStoreUnavailable, op, err)
}

// Get implements Store.Get.
func (s *GormStore) Get(ctx context.Context, key string) (model.TrackedEntity, bool, error) {
	var r row
	err := s.tx(ctx).Where(byIndex(key)).Take(&r).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return model.TrackedEntity{}, false, nil
	}
	if err != nil {
		return model.TrackedEntity{}, false, unavailable("get", err)
	}
	return r.entity(), true, nil
}

// Put implements Store.Put as INSERT ... ON CONFLICT (index) DO UPDATE.
func (s *GormStore) Put(ctx context.Context, e model.TrackedEntity) error { //nolint:gocritic // entity is copied into the row
	if strings.TrimSpace(e.Key) == "" {
		return fmt.Errorf("%w: empty key", ErrInvalidKey)
	}
	start := time.Now()
	defer func() {
		metrics.RecordRepositoryUpdateLatency(float64(time.Since(start).Nanoseconds()) / 1e6)
	}()

	r := toRow(e)
	err := s.tx(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: colIndex}},
		UpdateAll: true,
	}).Create(&r).Error
	if err != nil {
		return unavailable("put", err)
	}
	return nil
}

// Delete implements Store.Delete.
func (s *GormStore) Delete(ctx context.Context, key string) error {
	if err := s.tx(ctx).Where(byIndex(key)).Delete(&row{}).Error; err != nil {
		return unavailable("delete", err)
	}
	return nil
}

// Rank implements Store.Rank by counting distinct larger impressions.
func (s *GormStore) Rank(ctx context.Context, key string) (Entry, error) {
	start := time.Now()
	defer func() {
		metrics.RecordRepositoryQueryLatency(float64(time.Since(start).Nanoseconds()) / 1e6)
	}()

	e, ok, err := s.Get(ctx, key)
	if err != nil {
		return Entry{}, err
	}
	if !ok {
		metrics.RecordErrorByComponent("repository", "not_found")
		return Entry{}, ErrNotFound
	}
	var above int64
	err = s.tx(ctx).
		Distinct(colImpressions).
		Where(clause.Gt{Column: clause.Column{Name: colImpressions}, Value: e.Metrics.Impressions}).
		Count(&above).Error
	if err != nil {
		return Entry{}, unavailable("rank", err)
	}
	return Entry{Rank: int(above) + 1, Entity: e}, nil
}

// TopN implements Store.TopN.
func (s *GormStore) TopN(ctx context.Context, n int) ([]Entry, error) {
	start := time.Now()
	defer func() {
		metrics.RecordRepositoryQueryLatency(float64(time.Since(start).Nanoseconds()) / 1e6)
	}()

	if n < 1 {
		metrics.RecordErrorByComponent("repository", "invalid_limit")
		return nil, ErrInvalidLimit
	}
	var rows []row
	err := s.tx(ctx).
		Order(clause.OrderBy{Columns: []clause.OrderByColumn{
			{Column: clause.Column{Name: colImpressions}, Desc: true},
			{Column: clause.Column{Name: colIndex}},
		}}).
		Limit(n).
		Find(&rows).Error
	if err != nil {
		return nil, unavailable("top_n", err)
	}
	out := make([]Entry, len(rows))
	for i := range rows {
		out[i] = Entry{Entity: rows[i].entity()}
	}
	denseRanks(out, 1)
	return out, nil
}

// Count implements Store.Count. Backend failures count as zero.
func (s *GormStore) Count(ctx context.Context) int {
	var n int64
	if err := s.tx(ctx).Count(&n).Error; err != nil {
		metrics.RecordErrorByComponent("repository", "count")
		return 0
	}
	return int(n)
}

// Close closes the underlying connection pool.
func (s *GormStore) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
