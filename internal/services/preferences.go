package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/ahmetk3436/serverdeck/internal/models"
	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

const (
	minRefreshSeconds = 2
	maxRefreshSeconds = 3600
)

// PreferencesUpdate carries the fields a PUT may change; nil means keep.
type PreferencesUpdate struct {
	CommandAliases        map[string]string            `json:"command_aliases,omitempty" validate:"omitempty,max=100,dive,keys,required,max=64,endkeys,required,max=1024"`
	FavoriteCommands      []string                     `json:"favorite_commands,omitempty" validate:"omitempty,max=100,dive,required,max=1024"`
	NotificationSettings  *models.NotificationSettings `json:"notification_settings,omitempty"`
	MetricsRefreshSeconds *int                         `json:"metrics_refresh_seconds,omitempty"`
}

type PreferencesStore struct {
	db *gorm.DB
}

func NewPreferencesStore(db *gorm.DB) *PreferencesStore {
	return &PreferencesStore{db: db}
}

// Get returns the user's preferences, creating the default row on first use.
func (s *PreferencesStore) Get(ctx context.Context, userID uuid.UUID) (*models.UserPreferences, error) {
	var prefs models.UserPreferences
	err := s.db.WithContext(ctx).First(&prefs, "user_id = ?", userID).Error
	if err == nil {
		return &prefs, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("get preferences: %w", err)
	}

	prefs = defaultPreferences(userID)
	if err := s.db.WithContext(ctx).Create(&prefs).Error; err != nil {
		return nil, fmt.Errorf("create preferences: %w", err)
	}
	return &prefs, nil
}

func (s *PreferencesStore) Update(ctx context.Context, userID uuid.UUID, upd PreferencesUpdate) (*models.UserPreferences, error) {
	if err := validate.Struct(upd); err != nil {
		return nil, &ValidationError{Err: err}
	}
	if upd.MetricsRefreshSeconds != nil {
		if n := *upd.MetricsRefreshSeconds; n != 0 && (n < minRefreshSeconds || n > maxRefreshSeconds) {
			return nil, invalid("metrics_refresh_seconds must be 0 or between %d and %d", minRefreshSeconds, maxRefreshSeconds)
		}
	}

	prefs, err := s.Get(ctx, userID)
	if err != nil {
		return nil, err
	}

	if upd.CommandAliases != nil {
		prefs.CommandAliases = mustJSON(upd.CommandAliases)
	}
	if upd.FavoriteCommands != nil {
		prefs.FavoriteCommands = mustJSON(upd.FavoriteCommands)
	}
	if upd.NotificationSettings != nil {
		prefs.NotificationSettings = mustJSON(upd.NotificationSettings)
	}
	if upd.MetricsRefreshSeconds != nil {
		prefs.MetricsRefreshSeconds = *upd.MetricsRefreshSeconds
	}

	if err := s.db.WithContext(ctx).Save(prefs).Error; err != nil {
		return nil, fmt.Errorf("save preferences: %w", err)
	}
	return prefs, nil
}

func defaultPreferences(userID uuid.UUID) models.UserPreferences {
	return models.UserPreferences{
		UserID:               userID,
		CommandAliases:       datatypes.JSON("{}"),
		FavoriteCommands:     datatypes.JSON("[]"),
		NotificationSettings: mustJSON(models.NotificationSettings{Email: true, Desktop: true}),
	}
}

func mustJSON(v any) datatypes.JSON {
	b, err := json.Marshal(v)
	if err != nil {
		return nil
	}
	return datatypes.JSON(b)
}
