// internal/models/license.go
package models

import (
	"time"

	"github.com/lib/pq"
)

// License is the internal system of record shown in the dashboard. AppID
// correlates with the staging row when the license originates from the
// provider; it is nil for manually created licenses.
type License struct {
	BaseModel
	AppID        *string        `json:"appid" gorm:"column:appid;size:64;uniqueIndex"`
	DBA          string         `json:"dba" gorm:"size:255;index"`
	Zip          string         `json:"zip" gorm:"size:16"`
	Status       LicenseStatus  `json:"status" gorm:"type:varchar(20);default:'pending';index"`
	StartsAt     *time.Time     `json:"starts_at"`
	DueDate      *time.Time     `json:"due_date"`
	Plan         string         `json:"plan" gorm:"size:255"`
	Term         LicenseTerm    `json:"term" gorm:"type:varchar(20);default:'monthly'"`
	SeatsTotal   int            `json:"seats_total"`
	SeatsUsed    int            `json:"seats_used"`
	LastPayment  float64        `json:"last_payment"`
	SmsBalance   float64        `json:"sms_balance"`
	SmsPurchased float64        `json:"sms_purchased"`
	SmsSent      float64        `json:"sms_sent"`
	Agents       int            `json:"agents"`
	AgentsName   pq.StringArray `json:"agents_name" gorm:"type:text[]"`
	AgentsCost   float64        `json:"agents_cost"`
	Notes        string         `json:"notes" gorm:"type:text"`

	// Relationships
	SmsPayments []SmsPayment `json:"sms_payments,omitempty" gorm:"foreignKey:LicenseID"`
}

// FieldOwner tags who wins a write for a license attribute. Reconciliation
// only touches provider-owned fields; everything the dashboard owns
// survives a sync untouched.
type FieldOwner string

const (
	FieldOwnerProvider  FieldOwner = "provider"
	FieldOwnerDashboard FieldOwner = "dashboard"
)

// LicenseFieldOwners is the single place that declares ownership per
// attribute. The reconciliation merge is a pure function over this table.
var LicenseFieldOwners = map[string]FieldOwner{
	"appid":         FieldOwnerProvider,
	"dba":           FieldOwnerProvider,
	"zip":           FieldOwnerProvider,
	"status":        FieldOwnerProvider,
	"starts_at":     FieldOwnerProvider,
	"due_date":      FieldOwnerProvider,
	"plan":          FieldOwnerProvider,
	"last_payment":  FieldOwnerProvider,
	"sms_balance":   FieldOwnerProvider,
	"sms_purchased": FieldOwnerProvider,
	"sms_sent":      FieldOwnerProvider,

	"term":        FieldOwnerDashboard,
	"seats_total": FieldOwnerDashboard,
	"seats_used":  FieldOwnerDashboard,
	"agents":      FieldOwnerDashboard,
	"agents_name": FieldOwnerDashboard,
	"agents_cost": FieldOwnerDashboard,
	"notes":       FieldOwnerDashboard,
}

// ProviderOwnedColumns returns the columns reconciliation may update on an
// existing license, in stable order.
func ProviderOwnedColumns() []string {
	cols := make([]string, 0, len(LicenseFieldOwners))
	for _, c := range []string{
		"appid", "dba", "zip", "status", "starts_at", "due_date", "plan",
		"last_payment", "sms_balance", "sms_purchased", "sms_sent",
	} {
		if LicenseFieldOwners[c] == FieldOwnerProvider {
			cols = append(cols, c)
		}
	}
	return cols
}
