// internal/provider/normalize.go
package provider

import (
	"encoding/json"
	"errors"
	"strconv"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/javajoker/licadmin-backend/internal/models"
)

// Rejection is one record dropped during normalization, kept for the run's
// failure count and logged with its reason.
type Rejection struct {
	Record RawRecord `json:"record"`
	Reason string    `json:"reason"`
}

var errMissingAppID = errors.New("record has no appid")

// providerStatusCodes maps the provider's numeric codes onto canonical
// statuses. Canonical names pass through unchanged; everything else
// defaults to pending.
var providerStatusCodes = map[string]models.LicenseStatus{
	"0": models.LicenseStatusDraft,
	"1": models.LicenseStatusActive,
	"2": models.LicenseStatusPending,
	"3": models.LicenseStatusExpiring,
	"4": models.LicenseStatusExpired,
	"5": models.LicenseStatusCancel,
	"6": models.LicenseStatusRevoked,
}

// NormalizeBatch converts every raw record it can and collects a rejection
// for every record it cannot. One bad record never aborts the batch.
func NormalizeBatch(records []RawRecord) ([]models.ExternalLicense, []Rejection) {
	valid := make([]models.ExternalLicense, 0, len(records))
	var rejected []Rejection

	for _, raw := range records {
		record, err := Normalize(raw)
		if err != nil {
			logrus.WithError(err).Debug("Dropping invalid provider record")
			rejected = append(rejected, Rejection{Record: raw, Reason: err.Error()})
			continue
		}
		valid = append(valid, *record)
	}

	return valid, rejected
}

// Normalize coerces one loosely-typed provider record into the canonical
// staging shape. appid is the only hard requirement; numeric fields default
// to 0 when unparseable.
func Normalize(raw RawRecord) (*models.ExternalLicense, error) {
	appID := strings.TrimSpace(stringField(raw, "appid", "AppID", "app_id"))
	if appID == "" {
		return nil, errMissingAppID
	}

	record := &models.ExternalLicense{
		AppID:         appID,
		DBA:           stringField(raw, "dba", "DBA"),
		Zip:           stringField(raw, "zip", "Zip"),
		Status:        string(MapStatus(stringField(raw, "status", "Status"))),
		ActivateDate:  timeField(raw, "ActivateDate", "activate_date", "activateDate"),
		ComingExpired: timeField(raw, "Coming_expired", "coming_expired", "comingExpired"),
		MonthlyFee:    nonNegative(floatField(raw, "monthlyFee", "monthly_fee")),
		SmsBalance:    nonNegative(floatField(raw, "smsBalance", "sms_balance")),
		SmsPurchased:  nonNegative(floatField(raw, "smsPurchased", "sms_purchased")),
		SmsSent:       nonNegative(floatField(raw, "smsSent", "sms_sent")),
		Package:       packageField(raw, "Package", "package"),
		Note:          stringField(raw, "note", "Note"),
	}

	return record, nil
}

// MapStatus resolves a provider status code or name to the canonical enum.
func MapStatus(raw string) models.LicenseStatus {
	raw = strings.TrimSpace(strings.ToLower(raw))
	if raw == "" {
		return models.LicenseStatusPending
	}

	if status, ok := providerStatusCodes[raw]; ok {
		return status
	}
	if models.ValidLicenseStatus(models.LicenseStatus(raw)) {
		return models.LicenseStatus(raw)
	}

	logrus.WithField("status", raw).Warn("Unknown provider status code, defaulting to pending")
	return models.LicenseStatusPending
}

func stringField(raw RawRecord, keys ...string) string {
	for _, key := range keys {
		value, ok := raw[key]
		if !ok || value == nil {
			continue
		}
		switch v := value.(type) {
		case string:
			return v
		case float64:
			return strconv.FormatFloat(v, 'f', -1, 64)
		case json.Number:
			return v.String()
		case bool:
			return strconv.FormatBool(v)
		}
	}
	return ""
}

// nonNegative clamps provider export glitches. Balances and fees are
// never stored below zero.
func nonNegative(v float64) float64 {
	if v < 0 {
		return 0
	}
	return v
}

func floatField(raw RawRecord, keys ...string) float64 {
	for _, key := range keys {
		value, ok := raw[key]
		if !ok || value == nil {
			continue
		}
		switch v := value.(type) {
		case float64:
			return v
		case int:
			return float64(v)
		case json.Number:
			if f, err := v.Float64(); err == nil {
				return f
			}
		case string:
			if f, err := strconv.ParseFloat(strings.TrimSpace(v), 64); err == nil {
				return f
			}
			// Unparseable numerics default to 0
			return 0
		}
	}
	return 0
}

var timeLayouts = []string{
	time.RFC3339,
	"2006-01-02 15:04:05",
	"2006-01-02",
	"01/02/2006",
}

func timeField(raw RawRecord, keys ...string) *time.Time {
	for _, key := range keys {
		value, ok := raw[key]
		if !ok || value == nil {
			continue
		}
		s, ok := value.(string)
		if !ok || strings.TrimSpace(s) == "" {
			continue
		}
		for _, layout := range timeLayouts {
			if t, err := time.Parse(layout, strings.TrimSpace(s)); err == nil {
				return &t
			}
		}
	}
	return nil
}

func packageField(raw RawRecord, keys ...string) models.JSONB {
	for _, key := range keys {
		value, ok := raw[key]
		if !ok || value == nil {
			continue
		}
		switch v := value.(type) {
		case map[string]interface{}:
			return models.JSONB(v)
		case string:
			// Some provider responses double-encode the package flags
			var decoded map[string]interface{}
			if err := json.Unmarshal([]byte(v), &decoded); err == nil {
				return models.JSONB(decoded)
			}
		}
	}
	return nil
}
