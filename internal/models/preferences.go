package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

type NotificationSettings struct {
	Email   bool `json:"email"`
	Desktop bool `json:"desktop"`
}

// UserPreferences holds per-user dashboard settings. JSON columns keep the
// alias and favourite lists schema-free.
type UserPreferences struct {
	UserID                uuid.UUID      `gorm:"type:uuid;primaryKey" json:"user_id"`
	CommandAliases        datatypes.JSON `gorm:"type:jsonb" json:"command_aliases"`
	FavoriteCommands      datatypes.JSON `gorm:"type:jsonb" json:"favorite_commands"`
	NotificationSettings  datatypes.JSON `gorm:"type:jsonb" json:"notification_settings"`
	MetricsRefreshSeconds int            `gorm:"default:0" json:"metrics_refresh_seconds"` // 0 = server default
	UpdatedAt             time.Time      `json:"updated_at"`
}
