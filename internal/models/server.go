package models

import (
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

const (
	AuthTypePassword = "password"
	AuthTypeKey      = "key"

	DefaultServerPort = 22
)

// Server is a registered remote host. Credentials are never stored, only
// the metadata needed to describe how the operator reaches the machine.
type Server struct {
	ID          uuid.UUID      `gorm:"type:uuid;primaryKey" json:"id"`
	OwnerID     uuid.UUID      `gorm:"type:uuid;not null;index" json:"user_id"`
	Nickname    string         `gorm:"not null" json:"nickname"`
	Host        string         `gorm:"not null" json:"host"`
	Port        int            `gorm:"default:22" json:"port"`
	Username    *string        `json:"username"`
	AuthType    string         `gorm:"not null;default:'password'" json:"auth_type"` // password or key
	APIEndpoint *string        `json:"api_endpoint"`
	Description *string        `gorm:"type:text" json:"description"`
	IsActive    bool           `gorm:"default:true" json:"is_active"`
	CreatedAt   time.Time      `json:"created_at"`
	UpdatedAt   time.Time      `json:"updated_at"`
	DeletedAt   gorm.DeletedAt `gorm:"index" json:"-"`
}

func (s *Server) BeforeCreate(tx *gorm.DB) error {
	if s.ID == uuid.Nil {
		s.ID = uuid.New()
	}
	return nil
}

// Endpoint returns the configured API endpoint or "" when none is set.
func (s *Server) Endpoint() string {
	if s.APIEndpoint == nil {
		return ""
	}
	return strings.TrimSpace(*s.APIEndpoint)
}

// HasTarget reports whether the proxy can derive a URL for this server,
// either from the API endpoint or from host and port.
func (s *Server) HasTarget() bool {
	return s.Endpoint() != "" || strings.TrimSpace(s.Host) != ""
}
