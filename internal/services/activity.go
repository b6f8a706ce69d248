package services

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/ahmetk3436/serverdeck/internal/models"
	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

const (
	ActionLogin           = "auth.login"
	ActionRegister        = "auth.register"
	ActionServerCreate    = "server.create"
	ActionServerUpdate    = "server.update"
	ActionServerDelete    = "server.delete"
	ActionServerToggle    = "server.toggle"
	ActionPreferencesSave = "preferences.update"
)

type ActivityLog struct {
	db *gorm.DB
}

func NewActivityLog(db *gorm.DB) *ActivityLog {
	return &ActivityLog{db: db}
}

// Record stores one activity row. Failures are logged and swallowed; an
// activity row is never worth failing the mutation it describes.
func (l *ActivityLog) Record(ctx context.Context, userID uuid.UUID, action, target string, details map[string]any) {
	var detailsJSON datatypes.JSON
	if details != nil {
		if b, err := json.Marshal(details); err == nil {
			detailsJSON = datatypes.JSON(b)
		}
	}

	entry := models.Activity{
		UserID:  userID,
		Action:  action,
		Target:  target,
		Details: detailsJSON,
	}
	if err := l.db.WithContext(ctx).Create(&entry).Error; err != nil {
		slog.Warn("Failed to record activity", "action", action, "user_id", userID, "error", err)
	}
}

type ActivityPage struct {
	Items   []models.Activity `json:"items"`
	Total   int64             `json:"total"`
	Page    int               `json:"page"`
	PerPage int               `json:"per_page"`
}

// List pages through a user's activity, newest first, optionally filtered
// by action.
func (l *ActivityLog) List(ctx context.Context, userID uuid.UUID, action string, page, perPage int) (*ActivityPage, error) {
	if page < 1 {
		page = 1
	}
	if perPage < 1 || perPage > 200 {
		perPage = 50
	}

	query := l.db.WithContext(ctx).Model(&models.Activity{}).Where("user_id = ?", userID)
	if action != "" {
		query = query.Where("action = ?", action)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, fmt.Errorf("count activity: %w", err)
	}

	var items []models.Activity
	if err := query.Order("created_at DESC").
		Offset((page - 1) * perPage).
		Limit(perPage).
		Find(&items).Error; err != nil {
		return nil, fmt.Errorf("list activity: %w", err)
	}

	return &ActivityPage{Items: items, Total: total, Page: page, PerPage: perPage}, nil
}
