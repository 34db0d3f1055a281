// Package history keeps a local record of claim attempts. The ledger stays the
// source of truth; this table only serves lookups by address and tx hash.
package history

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/glebarez/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// Claim outcomes stored in Status
const (
	StatusConfirmed = "confirmed"
	StatusPending   = "pending"
	StatusFailed    = "failed"
)

var ErrNotFound = errors.New("claim record not found")

// ClaimRecord - Model for the claim history table
type ClaimRecord struct {
	ID           uint       `gorm:"primaryKey" json:"id"`
	SessionID    string     `gorm:"index;size:36" json:"session_id"`
	Address      string     `gorm:"index;size:42" json:"address"`
	SlotID       int        `json:"slot_id"`
	TxHash       string     `gorm:"index;size:66" json:"tx_hash,omitempty"`
	Status       string     `gorm:"index;size:20" json:"status"`
	ErrorKind    string     `gorm:"size:32" json:"error_kind,omitempty"`
	BlockNumber  uint64     `json:"block_number,omitempty"`
	GasUsed      uint64     `json:"gas_used,omitempty"`
	ErrorMessage string     `gorm:"type:text" json:"error_message,omitempty"`
	CreatedAt    time.Time  `json:"created_at"`
	UpdatedAt    time.Time  `json:"updated_at"`
	ConfirmedAt  *time.Time `json:"confirmed_at,omitempty"`
}

func (ClaimRecord) TableName() string {
	return "claim_histories"
}

type Store struct {
	db *gorm.DB
}

// Open connects to a SQLite database at dsn and migrates the schema.
// Use ":memory:" for a throwaway store.
func Open(dsn string) (*Store, error) {
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open history database: %w", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to open history database: %w", err)
	}
	// SQLite allows one writer, and every ":memory:" connection is a new database.
	sqlDB.SetMaxOpenConns(1)
	return NewStore(db)
}

// NewStore migrates the claim table on an existing connection.
func NewStore(db *gorm.DB) (*Store, error) {
	if err := db.AutoMigrate(&ClaimRecord{}); err != nil {
		return nil, fmt.Errorf("failed to migrate claim history: %w", err)
	}
	return &Store{db: db}, nil
}

// Record inserts rec, or updates the existing row for the same tx hash.
func (s *Store) Record(ctx context.Context, rec *ClaimRecord) error {
	rec.Address = normalize(rec.Address)
	db := s.db.WithContext(ctx)

	if rec.TxHash != "" {
		var existing ClaimRecord
		err := db.Where("tx_hash = ?", rec.TxHash).First(&existing).Error
		switch {
		case err == nil:
			rec.ID = existing.ID
			rec.CreatedAt = existing.CreatedAt
			if err := db.Save(rec).Error; err != nil {
				return fmt.Errorf("failed to update claim record: %w", err)
			}
			return nil
		case !errors.Is(err, gorm.ErrRecordNotFound):
			return fmt.Errorf("failed to look up claim record: %w", err)
		}
	}

	if err := db.Create(rec).Error; err != nil {
		return fmt.Errorf("failed to save claim record: %w", err)
	}
	return nil
}

// ListByAddress returns the newest records for address first.
func (s *Store) ListByAddress(ctx context.Context, address string, limit int) ([]ClaimRecord, error) {
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	var records []ClaimRecord
	err := s.db.WithContext(ctx).
		Where("address = ?", normalize(address)).
		Order("created_at desc, id desc").
		Limit(limit).
		Find(&records).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list claim history: %w", err)
	}
	return records, nil
}

func (s *Store) GetByTxHash(ctx context.Context, txHash string) (*ClaimRecord, error) {
	var rec ClaimRecord
	err := s.db.WithContext(ctx).Where("tx_hash = ?", txHash).First(&rec).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get claim record: %w", err)
	}
	return &rec, nil
}

func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

func normalize(address string) string {
	return strings.ToLower(strings.TrimSpace(address))
}
