// internal/models/common.go
package models

import (
	"database/sql/driver"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Base model with common fields
type BaseModel struct {
	ID        uuid.UUID      `json:"id" gorm:"type:uuid;primary_key"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `json:"deleted_at,omitempty" gorm:"index"`
}

func (b *BaseModel) BeforeCreate(tx *gorm.DB) error {
	if b.ID == uuid.Nil {
		b.ID = uuid.New()
	}
	return nil
}

// JSONB type for PostgreSQL (stored as plain JSON text on sqlite in tests)
type JSONB map[string]interface{}

func (j JSONB) Value() (driver.Value, error) {
	if j == nil {
		return nil, nil
	}
	return json.Marshal(j)
}

func (j *JSONB) Scan(value interface{}) error {
	if value == nil {
		*j = nil
		return nil
	}

	switch v := value.(type) {
	case []byte:
		return json.Unmarshal(v, j)
	case string:
		return json.Unmarshal([]byte(v), j)
	default:
		return nil
	}
}

// Enums
type UserRole string

const (
	UserRoleAdmin UserRole = "admin"
	UserRoleStaff UserRole = "staff"
)

type UserStatus string

const (
	UserStatusActive    UserStatus = "active"
	UserStatusSuspended UserStatus = "suspended"
)

type LicenseStatus string

const (
	LicenseStatusActive   LicenseStatus = "active"
	LicenseStatusCancel   LicenseStatus = "cancel"
	LicenseStatusPending  LicenseStatus = "pending"
	LicenseStatusExpired  LicenseStatus = "expired"
	LicenseStatusDraft    LicenseStatus = "draft"
	LicenseStatusExpiring LicenseStatus = "expiring"
	LicenseStatusRevoked  LicenseStatus = "revoked"
)

// ValidLicenseStatus reports whether s is one of the canonical status values.
func ValidLicenseStatus(s LicenseStatus) bool {
	switch s {
	case LicenseStatusActive, LicenseStatusCancel, LicenseStatusPending,
		LicenseStatusExpired, LicenseStatusDraft, LicenseStatusExpiring,
		LicenseStatusRevoked:
		return true
	}
	return false
}

type LicenseTerm string

const (
	LicenseTermMonthly LicenseTerm = "monthly"
	LicenseTermAnnual  LicenseTerm = "annual"
)

type PaymentStatus string

const (
	PaymentStatusPending   PaymentStatus = "pending"
	PaymentStatusCompleted PaymentStatus = "completed"
	PaymentStatusFailed    PaymentStatus = "failed"
)
