package services

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/ahmetk3436/serverdeck/internal/models"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// ErrServerNotFound covers both a missing row and a row owned by somebody
// else; callers must not be able to tell the two apart.
var ErrServerNotFound = errors.New("server not found or access denied")

var validate = validator.New()

// ValidationError wraps a rejected payload so handlers can answer 400.
type ValidationError struct {
	Err error
}

func (e *ValidationError) Error() string { return e.Err.Error() }
func (e *ValidationError) Unwrap() error { return e.Err }

func invalid(format string, args ...any) error {
	return &ValidationError{Err: fmt.Errorf(format, args...)}
}

// Registry is the owner-scoped store of server records.
type Registry interface {
	List(ctx context.Context, ownerID uuid.UUID) ([]models.Server, error)
	Get(ctx context.Context, ownerID, id uuid.UUID) (*models.Server, error)
	Insert(ctx context.Context, ownerID uuid.UUID, fields ServerFields) (*models.Server, error)
	Update(ctx context.Context, ownerID, id uuid.UUID, fields ServerUpdate) (*models.Server, error)
	Delete(ctx context.Context, ownerID, id uuid.UUID) error
	Subscribe(ownerID uuid.UUID, fn func()) (cancel func())
}

type ServerFields struct {
	Nickname    string  `json:"nickname" validate:"required,max=100"`
	Host        string  `json:"host" validate:"required,max=255"`
	Port        int     `json:"port" validate:"min=0,max=65535"`
	Username    *string `json:"username,omitempty"`
	AuthType    string  `json:"auth_type,omitempty" validate:"omitempty,oneof=password key"`
	APIEndpoint *string `json:"api_endpoint,omitempty"`
	Description *string `json:"description,omitempty"`
}

// ServerUpdate is a partial update; nil fields are left alone. An empty
// APIEndpoint clears it.
type ServerUpdate struct {
	Nickname    *string `json:"nickname,omitempty"`
	Host        *string `json:"host,omitempty"`
	Port        *int    `json:"port,omitempty"`
	Username    *string `json:"username,omitempty"`
	AuthType    *string `json:"auth_type,omitempty"`
	APIEndpoint *string `json:"api_endpoint,omitempty"`
	Description *string `json:"description,omitempty"`
	IsActive    *bool   `json:"is_active,omitempty"`
}

type GormRegistry struct {
	db       *gorm.DB
	notifier Notifier
}

func NewGormRegistry(db *gorm.DB, notifier Notifier) *GormRegistry {
	if notifier == nil {
		notifier = NewLocalNotifier()
	}
	return &GormRegistry{db: db, notifier: notifier}
}

func (r *GormRegistry) List(ctx context.Context, ownerID uuid.UUID) ([]models.Server, error) {
	var servers []models.Server
	if err := r.db.WithContext(ctx).
		Where("owner_id = ?", ownerID).
		Order("created_at DESC").
		Find(&servers).Error; err != nil {
		return nil, fmt.Errorf("list servers: %w", err)
	}
	return servers, nil
}

func (r *GormRegistry) Get(ctx context.Context, ownerID, id uuid.UUID) (*models.Server, error) {
	var server models.Server
	err := r.db.WithContext(ctx).First(&server, "id = ? AND owner_id = ?", id, ownerID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrServerNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get server: %w", err)
	}
	return &server, nil
}

func (r *GormRegistry) Insert(ctx context.Context, ownerID uuid.UUID, fields ServerFields) (*models.Server, error) {
	fields.Nickname = strings.TrimSpace(fields.Nickname)
	fields.Host = strings.TrimSpace(fields.Host)
	fields.Username = emptyToNil(fields.Username)
	fields.APIEndpoint = emptyToNil(fields.APIEndpoint)
	fields.Description = emptyToNil(fields.Description)

	if err := validate.Struct(fields); err != nil {
		return nil, &ValidationError{Err: err}
	}
	if err := validateEndpoint(fields.APIEndpoint); err != nil {
		return nil, err
	}

	if fields.Port == 0 {
		fields.Port = models.DefaultServerPort
	}
	if fields.AuthType == "" {
		fields.AuthType = models.AuthTypePassword
	}

	server := models.Server{
		OwnerID:     ownerID,
		Nickname:    fields.Nickname,
		Host:        fields.Host,
		Port:        fields.Port,
		Username:    fields.Username,
		AuthType:    fields.AuthType,
		APIEndpoint: fields.APIEndpoint,
		Description: fields.Description,
		IsActive:    true,
	}
	if err := r.db.WithContext(ctx).Create(&server).Error; err != nil {
		return nil, fmt.Errorf("create server: %w", err)
	}

	r.notifier.Publish(ctx, ownerID)
	return &server, nil
}

func (r *GormRegistry) Update(ctx context.Context, ownerID, id uuid.UUID, fields ServerUpdate) (*models.Server, error) {
	server, err := r.Get(ctx, ownerID, id)
	if err != nil {
		return nil, err
	}

	if fields.Nickname != nil {
		nickname := strings.TrimSpace(*fields.Nickname)
		if nickname == "" || len(nickname) > 100 {
			return nil, invalid("nickname must be 1-100 characters")
		}
		server.Nickname = nickname
	}
	if fields.Host != nil {
		host := strings.TrimSpace(*fields.Host)
		if host == "" || len(host) > 255 {
			return nil, invalid("host must be 1-255 characters")
		}
		server.Host = host
	}
	if fields.Port != nil {
		if *fields.Port < 1 || *fields.Port > 65535 {
			return nil, invalid("port must be between 1 and 65535")
		}
		server.Port = *fields.Port
	}
	if fields.Username != nil {
		server.Username = emptyToNil(fields.Username)
	}
	if fields.AuthType != nil {
		if err := validate.Var(*fields.AuthType, "oneof=password key"); err != nil {
			return nil, invalid("auth_type must be password or key")
		}
		server.AuthType = *fields.AuthType
	}
	if fields.APIEndpoint != nil {
		endpoint := emptyToNil(fields.APIEndpoint)
		if err := validateEndpoint(endpoint); err != nil {
			return nil, err
		}
		server.APIEndpoint = endpoint
	}
	if fields.Description != nil {
		server.Description = emptyToNil(fields.Description)
	}
	if fields.IsActive != nil {
		server.IsActive = *fields.IsActive
	}

	if err := r.db.WithContext(ctx).Save(server).Error; err != nil {
		return nil, fmt.Errorf("update server: %w", err)
	}

	r.notifier.Publish(ctx, ownerID)
	return server, nil
}

func (r *GormRegistry) Delete(ctx context.Context, ownerID, id uuid.UUID) error {
	result := r.db.WithContext(ctx).Where("id = ? AND owner_id = ?", id, ownerID).Delete(&models.Server{})
	if result.Error != nil {
		return fmt.Errorf("delete server: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return ErrServerNotFound
	}

	r.notifier.Publish(ctx, ownerID)
	return nil
}

func (r *GormRegistry) Subscribe(ownerID uuid.UUID, fn func()) func() {
	return r.notifier.Subscribe(ownerID, fn)
}

func validateEndpoint(endpoint *string) error {
	if endpoint == nil {
		return nil
	}
	if err := validate.Var(*endpoint, "url,startswith=http"); err != nil {
		return invalid("api_endpoint must be an http(s) URL")
	}
	return nil
}

func emptyToNil(s *string) *string {
	if s == nil {
		return nil
	}
	trimmed := strings.TrimSpace(*s)
	if trimmed == "" {
		return nil
	}
	return &trimmed
}

// OwnerSource narrows a Registry to one owner. It satisfies the dashboard's
// server source.
type OwnerSource struct {
	Registry Registry
	OwnerID  uuid.UUID
}

func (s OwnerSource) List(ctx context.Context) ([]models.Server, error) {
	return s.Registry.List(ctx, s.OwnerID)
}

func (s OwnerSource) Subscribe(fn func()) func() {
	return s.Registry.Subscribe(s.OwnerID, fn)
}
