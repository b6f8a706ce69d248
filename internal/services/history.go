package services

import (
	"context"
	"fmt"

	"github.com/ahmetk3436/serverdeck/internal/models"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

const (
	defaultHistoryLimit = 50
	maxHistoryLimit     = 500
)

// HistoryLog is the append-only connection history written by the proxy.
type HistoryLog struct {
	db *gorm.DB
}

func NewHistoryLog(db *gorm.DB) *HistoryLog {
	return &HistoryLog{db: db}
}

// Append inserts a new row. Existing rows are never touched.
func (l *HistoryLog) Append(ctx context.Context, entry *models.ConnectionHistory) error {
	if err := l.db.WithContext(ctx).Create(entry).Error; err != nil {
		return fmt.Errorf("append history: %w", err)
	}
	return nil
}

// HistoryItem is a history row with the nickname of the server it targeted,
// empty for direct endpoint calls or servers deleted since.
type HistoryItem struct {
	models.ConnectionHistory
	ServerNickname string `json:"server_nickname"`
}

// Recent returns the newest rows for userID. A limit outside 1..500 falls
// back to 50.
func (l *HistoryLog) Recent(ctx context.Context, userID uuid.UUID, limit int) ([]HistoryItem, error) {
	if limit < 1 || limit > maxHistoryLimit {
		limit = defaultHistoryLimit
	}

	var items []HistoryItem
	err := l.db.WithContext(ctx).
		Table("connection_history AS h").
		Select("h.*, COALESCE(s.nickname, '') AS server_nickname").
		Joins("LEFT JOIN servers s ON s.id = h.server_id AND s.deleted_at IS NULL").
		Where("h.user_id = ?", userID).
		Order("h.executed_at DESC").
		Limit(limit).
		Scan(&items).Error
	if err != nil {
		return nil, fmt.Errorf("list history: %w", err)
	}
	return items, nil
}
