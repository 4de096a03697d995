// Package sqlite is a persistent vector.Backend stored in a single SQLite file
// through gorm. Search is an exact scan over the collection.
package sqlite

import (
	"bytes"
	"context"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"time"

	sqlitedriver "github.com/glebarez/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"

	"github.com/efebarandurmaz/gloombot/internal/vector"
)

// FileName is the database file created inside the store directory.
const FileName = "gloombot.db"

type collectionRow struct {
	ID        uint   `gorm:"primaryKey"`
	Name      string `gorm:"uniqueIndex;not null"`
	Dimension int
	CreatedAt time.Time
}

func (collectionRow) TableName() string { return "collections" }

type entryRow struct {
	CollectionID uint   `gorm:"primaryKey;autoIncrement:false"`
	EntryID      string `gorm:"primaryKey"`
	Document     string
	Embedding    []byte
	Metadata     string
	UpdatedAt    time.Time
}

func (entryRow) TableName() string { return "entries" }

// Backend is a gorm-backed SQLite collection store.
type Backend struct {
	db *gorm.DB
}

// New opens (creating if needed) dir/gloombot.db and migrates the schema.
func New(dir string) (*Backend, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create store dir: %w", err)
	}
	return Open(filepath.Join(dir, FileName))
}

// Open opens the SQLite database at dsn and migrates the schema.
func Open(dsn string) (*Backend, error) {
	db, err := gorm.Open(sqlitedriver.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("open sqlite %s: %w", dsn, err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	// One connection serialises writers and keeps ":memory:" databases shared.
	sqlDB.SetMaxOpenConns(1)

	if err := db.AutoMigrate(&collectionRow{}, &entryRow{}); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return &Backend{db: db}, nil
}

func (b *Backend) Open(ctx context.Context, name string, create bool) (vector.Index, error) {
	var row collectionRow
	db := b.db.WithContext(ctx)

	if !create {
		err := db.Where("name = ?", name).First(&row).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, vector.ErrCollectionNotFound
		}
		if err != nil {
			return nil, err
		}
		return &Index{db: b.db, id: row.ID}, nil
	}

	if err := db.Where(collectionRow{Name: name}).FirstOrCreate(&row).Error; err != nil {
		return nil, err
	}
	return &Index{db: b.db, id: row.ID}, nil
}

func (b *Backend) Close() error {
	sqlDB, err := b.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// Index is one collection inside the SQLite file.
type Index struct {
	db *gorm.DB
	id uint
}

func (i *Index) Upsert(ctx context.Context, records []vector.Record) error {
	if len(records) == 0 {
		return nil
	}

	return i.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var col collectionRow
		if err := tx.First(&col, i.id).Error; err != nil {
			return err
		}

		dim := col.Dimension
		rows := make([]entryRow, len(records))
		for n, r := range records {
			if dim == 0 {
				dim = len(r.Embedding)
			}
			if len(r.Embedding) != dim {
				return fmt.Errorf("%w: record %s has %d, collection has %d", vector.ErrDimensionMismatch, r.ID, len(r.Embedding), dim)
			}
			meta, err := json.Marshal(r.Metadata)
			if err != nil {
				return fmt.Errorf("encode metadata for %s: %w", r.ID, err)
			}
			rows[n] = entryRow{
				CollectionID: i.id,
				EntryID:      r.ID,
				Document:     r.Document,
				Embedding:    encodeVector(r.Embedding),
				Metadata:     string(meta),
			}
		}

		if col.Dimension == 0 {
			if err := tx.Model(&col).Update("dimension", dim).Error; err != nil {
				return err
			}
		}

		return tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "collection_id"}, {Name: "entry_id"}},
			DoUpdates: clause.AssignmentColumns([]string{"document", "embedding", "metadata", "updated_at"}),
		}).Create(&rows).Error
	})
}

func (i *Index) Search(ctx context.Context, query []float32, topK int) ([]vector.Match, error) {
	var rows []entryRow
	if err := i.db.WithContext(ctx).Where("collection_id = ?", i.id).Order("rowid").Find(&rows).Error; err != nil {
		return nil, err
	}

	records := make([]vector.Record, len(rows))
	for n, row := range rows {
		meta, err := decodeMetadata(row.Metadata)
		if err != nil {
			return nil, fmt.Errorf("decode metadata for %s: %w", row.EntryID, err)
		}
		records[n] = vector.Record{
			ID:        row.EntryID,
			Document:  row.Document,
			Embedding: decodeVector(row.Embedding),
			Metadata:  meta,
		}
	}
	return vector.Nearest(records, query, topK)
}

func (i *Index) Count(ctx context.Context) (int, error) {
	var n int64
	err := i.db.WithContext(ctx).Model(&entryRow{}).Where("collection_id = ?", i.id).Count(&n).Error
	return int(n), err
}

func encodeVector(v []float32) []byte {
	buf := make([]byte, 4*len(v))
	for n, f := range v {
		binary.LittleEndian.PutUint32(buf[4*n:], math.Float32bits(f))
	}
	return buf
}

func decodeVector(b []byte) []float32 {
	v := make([]float32, len(b)/4)
	for n := range v {
		v[n] = math.Float32frombits(binary.LittleEndian.Uint32(b[4*n:]))
	}
	return v
}

// decodeMetadata restores integer values (page numbers) as int rather than float64.
func decodeMetadata(s string) (map[string]any, error) {
	if s == "" || s == "null" {
		return nil, nil
	}
	dec := json.NewDecoder(bytes.NewReader([]byte(s)))
	dec.UseNumber()

	var raw map[string]any
	if err := dec.Decode(&raw); err != nil {
		return nil, err
	}
	for k, v := range raw {
		num, ok := v.(json.Number)
		if !ok {
			continue
		}
		if n, err := num.Int64(); err == nil {
			raw[k] = int(n)
		} else if f, err := num.Float64(); err == nil {
			raw[k] = f
		}
	}
	return raw, nil
}

var _ vector.Backend = (*Backend)(nil)
