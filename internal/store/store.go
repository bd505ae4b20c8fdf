// Package store keeps a history of finished scans in SQLite.
package store

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"gorm.io/datatypes"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/maxvaer/apiprobe/internal/report"
	"github.com/maxvaer/apiprobe/internal/triage"
)

// ErrNotFound is returned when a scan ID does not exist.
var ErrNotFound = errors.New("scan not found")

// ScanRecord is one stored scan. Summary columns are kept alongside the full
// JSON document so listings never decode it.
type ScanRecord struct {
	gorm.Model
	Target       string `gorm:"index"`
	PathsScanned int
	Processed    int
	Kept         int
	Forbidden    int
	ErrorCount   int
	Findings     int
	Interrupted  bool
	DurationMS   int64
	StartedAt    time.Time
	Report       datatypes.JSON
}

// Document decodes the stored report.
func (r *ScanRecord) Document() (report.Document, error) {
	var doc report.Document
	if err := json.Unmarshal(r.Report, &doc); err != nil {
		return doc, fmt.Errorf("decoding stored report %d: %w", r.ID, err)
	}
	return doc, nil
}

// DB wraps the SQLite connection.
type DB struct {
	conn *gorm.DB
}

// Open opens (or creates) the database at path and migrates it.
func Open(path string) (*DB, error) {
	conn, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("opening database %s: %w", path, err)
	}
	db := &DB{conn: conn}
	if err := db.Migrate(); err != nil {
		return nil, err
	}
	return db, nil
}

// Migrate creates or updates the schema.
func (db *DB) Migrate() error {
	if err := db.conn.AutoMigrate(&ScanRecord{}); err != nil {
		return fmt.Errorf("migrating database: %w", err)
	}
	return nil
}

// SaveReport stores a finalized report.
func (db *DB) SaveReport(rep *report.Report) (*ScanRecord, error) {
	doc := rep.Snapshot()
	data, err := json.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("encoding report: %w", err)
	}
	s := doc.Stats
	rec := &ScanRecord{
		Target:       doc.ScanConfig.Target,
		PathsScanned: doc.ScanConfig.PathsScanned,
		Processed:    s.Processed,
		Kept:         s.Dispositions[triage.KeepWithFindings],
		Forbidden:    len(doc.ForbiddenURLs),
		ErrorCount:   doc.ErrorCount,
		Findings:     len(doc.SensitiveFindings),
		Interrupted:  s.Interrupted,
		DurationMS:   s.Elapsed.Milliseconds(),
		StartedAt:    s.StartedAt,
		Report:       datatypes.JSON(data),
	}
	if err := db.conn.Create(rec).Error; err != nil {
		return nil, fmt.Errorf("saving scan: %w", err)
	}
	return rec, nil
}

// Recent returns up to limit scans, newest first. The Report column is not
// loaded.
func (db *DB) Recent(limit int) ([]ScanRecord, error) {
	var recs []ScanRecord
	q := db.conn.Omit("report").Order("id desc")
	if limit > 0 {
		q = q.Limit(limit)
	}
	if err := q.Find(&recs).Error; err != nil {
		return nil, fmt.Errorf("listing scans: %w", err)
	}
	return recs, nil
}

// Get returns one scan including its report.
func (db *DB) Get(id uint) (*ScanRecord, error) {
	var rec ScanRecord
	err := db.conn.First(&rec, id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("loading scan %d: %w", id, err)
	}
	return &rec, nil
}

// Close closes the underlying connection.
func (db *DB) Close() error {
	sqlDB, err := db.conn.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
