package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/glebarez/sqlite"
	"gorm.io/datatypes"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	gormlogger "gorm.io/gorm/logger"
)

// SQL driver names accepted by OpenSQL.
const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

// recordRow is the single table holding every collection. Index columns are
// copied out of the payload on write so lookups don't need to scan.
type recordRow struct {
	Collection string         `gorm:"primaryKey;size:16"`
	ID         string         `gorm:"primaryKey;size:64"`
	RoomID     string         `gorm:"column:room_id;size:64;index"`
	Player1ID  string         `gorm:"column:player1_id;size:64;index"`
	Player2ID  string         `gorm:"column:player2_id;size:64;index"`
	WinnerID   string         `gorm:"column:winner_id;size:64;index"`
	Payload    datatypes.JSON `gorm:"not null"`
	StoredAt   time.Time      `gorm:"autoUpdateTime"`
}

func (recordRow) TableName() string { return "records" }

var indexColumns = map[string]string{
	FieldRoomID:    "room_id",
	FieldPlayer1ID: "player1_id",
	FieldPlayer2ID: "player2_id",
	FieldWinnerID:  "winner_id",
}

// SQLBackend stores records in a relational database through gorm.
type SQLBackend struct {
	db *gorm.DB
}

var (
	_ Backend = (*SQLBackend)(nil)
	_ Indexer = (*SQLBackend)(nil)
)

// OpenSQL opens a database with the named driver and migrates the records
// table. An empty driver means sqlite.
func OpenSQL(driver, dsn string) (*SQLBackend, error) {
	var dialector gorm.Dialector
	switch driver {
	case DriverSQLite, "":
		dialector = sqlite.Open(dsn)
	case DriverPostgres:
		dialector = postgres.Open(dsn)
	default:
		return nil, fmt.Errorf("unsupported sql driver %q", driver)
	}

	db, err := gorm.Open(dialector, &gorm.Config{Logger: gormlogger.Discard})
	if err != nil {
		return nil, fmt.Errorf("open %s database: %w", driver, err)
	}

	if driver != DriverPostgres {
		// sqlite allows a single writer; funnel batches through one connection.
		sqlDB, err := db.DB()
		if err != nil {
			return nil, fmt.Errorf("get sql handle: %w", err)
		}
		sqlDB.SetMaxOpenConns(1)
	}

	return NewSQLBackend(db)
}

// NewSQLBackend wraps an open gorm handle and migrates the records table.
func NewSQLBackend(db *gorm.DB) (*SQLBackend, error) {
	if err := db.AutoMigrate(&recordRow{}); err != nil {
		return nil, fmt.Errorf("migrate records table: %w", err)
	}
	return &SQLBackend{db: db}, nil
}

func newRow(c Collection, key string, value []byte) (recordRow, error) {
	var idx struct {
		RoomID    string `json:"roomId"`
		Player1ID string `json:"player1Id"`
		Player2ID string `json:"player2Id"`
		WinnerID  string `json:"winnerId"`
	}
	if err := json.Unmarshal(value, &idx); err != nil {
		return recordRow{}, fmt.Errorf("decode index fields: %w", err)
	}
	return recordRow{
		Collection: string(c),
		ID:         key,
		RoomID:     idx.RoomID,
		Player1ID:  idx.Player1ID,
		Player2ID:  idx.Player2ID,
		WinnerID:   idx.WinnerID,
		Payload:    datatypes.JSON(value),
	}, nil
}

func (b *SQLBackend) Create(ctx context.Context, c Collection, key string, value []byte) error {
	row, err := newRow(c, key, value)
	if err != nil {
		return err
	}
	res := b.db.WithContext(ctx).Clauses(clause.OnConflict{DoNothing: true}).Create(&row)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrKeyExists
	}
	return nil
}

func (b *SQLBackend) Put(ctx context.Context, c Collection, key string, value []byte) error {
	row, err := newRow(c, key, value)
	if err != nil {
		return err
	}
	return b.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "collection"}, {Name: "id"}},
		UpdateAll: true,
	}).Create(&row).Error
}

func (b *SQLBackend) Get(ctx context.Context, c Collection, key string) ([]byte, error) {
	var row recordRow
	err := b.db.WithContext(ctx).
		Where("collection = ? AND id = ?", string(c), key).
		Take(&row).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrKeyNotFound
		}
		return nil, err
	}
	return []byte(row.Payload), nil
}

func (b *SQLBackend) Delete(ctx context.Context, c Collection, key string) error {
	return b.db.WithContext(ctx).
		Where("collection = ? AND id = ?", string(c), key).
		Delete(&recordRow{}).Error
}

func (b *SQLBackend) List(ctx context.Context, c Collection) ([][]byte, error) {
	var rows []recordRow
	if err := b.db.WithContext(ctx).
		Where("collection = ?", string(c)).
		Order("id").
		Find(&rows).Error; err != nil {
		return nil, err
	}
	return payloads(rows), nil
}

// Lookup queries an indexed column directly.
func (b *SQLBackend) Lookup(ctx context.Context, c Collection, field, value string) ([][]byte, error) {
	column, ok := indexColumns[field]
	if !ok {
		return nil, fmt.Errorf("no index on %q", field)
	}
	var rows []recordRow
	if err := b.db.WithContext(ctx).
		Where("collection = ?", string(c)).
		Where(clause.Eq{Column: clause.Column{Name: column}, Value: value}).
		Order("id").
		Find(&rows).Error; err != nil {
		return nil, err
	}
	return payloads(rows), nil
}

func (b *SQLBackend) Close() error {
	sqlDB, err := b.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

func payloads(rows []recordRow) [][]byte {
	out := make([][]byte, 0, len(rows))
	for _, r := range rows {
		out = append(out, []byte(r.Payload))
	}
	return out
}
