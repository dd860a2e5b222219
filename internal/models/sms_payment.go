// internal/models/sms_payment.go
package models

import (
	"github.com/google/uuid"
)

// SmsPayment is one ledger entry of SMS balance top-ups for a license.
type SmsPayment struct {
	BaseModel
	LicenseID        uuid.UUID     `json:"license_id" gorm:"type:uuid;not null;index"`
	Credits          float64       `json:"credits" gorm:"not null"`
	Amount           float64       `json:"amount" gorm:"not null"`
	Currency         string        `json:"currency" gorm:"size:3;default:'usd'"`
	Status           PaymentStatus `json:"status" gorm:"type:varchar(20);default:'pending';index"`
	PaymentReference string        `json:"payment_reference" gorm:"size:255;index"`

	// Relationships
	License License `json:"license,omitempty" gorm:"foreignKey:LicenseID"`
}
