// internal/models/external_license.go
package models

import "time"

// ExternalLicense mirrors the last successful fetch from the license
// provider, one row per appid. Written only by the sync pipeline.
type ExternalLicense struct {
	AppID         string     `json:"appid" gorm:"column:appid;primaryKey;size:64"`
	DBA           string     `json:"dba" gorm:"size:255"`
	Zip           string     `json:"zip" gorm:"size:16"`
	Status        string     `json:"status" gorm:"type:varchar(20);index"`
	ActivateDate  *time.Time `json:"activate_date"`
	ComingExpired *time.Time `json:"coming_expired"`
	MonthlyFee    float64    `json:"monthly_fee"`
	SmsBalance    float64    `json:"sms_balance"`
	SmsPurchased  float64    `json:"sms_purchased"`
	SmsSent       float64    `json:"sms_sent"`
	Package       JSONB      `json:"package" gorm:"type:jsonb"`
	Note          string     `json:"note" gorm:"type:text"`
	CreatedAt     time.Time  `json:"created_at"`
	UpdatedAt     time.Time  `json:"updated_at"`
}

func (ExternalLicense) TableName() string {
	return "external_licenses"
}

// ExternalLicenseMutableColumns lists every staging column the upsert must
// overwrite on conflict. Omitting a column here silently reintroduces stale
// data for it, so the bulk upsert and its tests both key off this list.
var ExternalLicenseMutableColumns = []string{
	"dba",
	"zip",
	"status",
	"activate_date",
	"coming_expired",
	"monthly_fee",
	"sms_balance",
	"sms_purchased",
	"sms_sent",
	"package",
	"note",
	"updated_at",
}
