package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

const (
	HistoryPending = "pending"
	HistorySuccess = "success"
	HistoryError   = "error"
)

// ConnectionHistory is one audit row written by the proxy. A dispatched call
// produces a pending row followed by a success or error row; rows are never
// updated afterwards.
type ConnectionHistory struct {
	ID         uuid.UUID  `gorm:"type:uuid;primaryKey" json:"id"`
	UserID     uuid.UUID  `gorm:"type:uuid;not null;index" json:"user_id"`
	ServerID   *uuid.UUID `gorm:"type:uuid;index" json:"server_id"`
	Command    string     `gorm:"not null" json:"command"` // METHOD URL
	Response   *string    `gorm:"type:text" json:"response"`
	Status     string     `gorm:"not null" json:"status"` // pending, success, error
	ExecutedAt time.Time  `gorm:"not null;index" json:"executed_at"`
}

func (ConnectionHistory) TableName() string {
	return "connection_history"
}

func (h *ConnectionHistory) BeforeCreate(tx *gorm.DB) error {
	if h.ID == uuid.Nil {
		h.ID = uuid.New()
	}
	if h.ExecutedAt.IsZero() {
		h.ExecutedAt = time.Now()
	}
	return nil
}
