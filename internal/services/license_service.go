// internal/services/license_service.go
package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/sirupsen/logrus"

	"github.com/javajoker/licadmin-backend/internal/cache"
	"github.com/javajoker/licadmin-backend/internal/metrics"
	"github.com/javajoker/licadmin-backend/internal/models"
	"github.com/javajoker/licadmin-backend/internal/repository"
	"github.com/javajoker/licadmin-backend/internal/utils"
)

const metricsCacheKey = "dashboard:metrics"

type LicenseService struct {
	licenseRepo *repository.LicenseRepository
	stagingRepo *repository.ExternalLicenseRepository
	cache       cache.Cache
	cacheTTL    time.Duration
}

type CreateLicenseRequest struct {
	DBA        string   `json:"dba" validate:"required,max=255"`
	Zip        string   `json:"zip,omitempty" validate:"omitempty,max=16"`
	Status     string   `json:"status,omitempty" validate:"omitempty,license_status"`
	Term       string   `json:"term,omitempty" validate:"omitempty,oneof=monthly annual"`
	SeatsTotal int      `json:"seats_total,omitempty" validate:"omitempty,min=0"`
	Agents     int      `json:"agents,omitempty" validate:"omitempty,min=0"`
	AgentsName []string `json:"agents_name,omitempty"`
	AgentsCost float64  `json:"agents_cost,omitempty" validate:"omitempty,min=0"`
	Notes      string   `json:"notes,omitempty"`
}

type UpdateLicenseRequest struct {
	DBA        *string  `json:"dba,omitempty" validate:"omitempty,max=255"`
	Zip        *string  `json:"zip,omitempty" validate:"omitempty,max=16"`
	Status     *string  `json:"status,omitempty" validate:"omitempty,license_status"`
	Term       *string  `json:"term,omitempty" validate:"omitempty,oneof=monthly annual"`
	SeatsTotal *int     `json:"seats_total,omitempty" validate:"omitempty,min=0"`
	SeatsUsed  *int     `json:"seats_used,omitempty" validate:"omitempty,min=0"`
	Agents     *int     `json:"agents,omitempty" validate:"omitempty,min=0"`
	AgentsName []string `json:"agents_name,omitempty"`
	AgentsCost *float64 `json:"agents_cost,omitempty" validate:"omitempty,min=0"`
	Notes      *string  `json:"notes,omitempty"`
}

type BulkUpdateRequest struct {
	IDs     []uuid.UUID            `json:"ids" validate:"required,min=1"`
	Updates map[string]interface{} `json:"updates" validate:"required,min=1"`
}

// bulkUpdatableColumns limits PATCH /licenses/bulk to dashboard-owned
// fields; provider-owned columns only change through reconciliation.
var bulkUpdatableColumns = map[string]bool{
	"status":      true,
	"term":        true,
	"seats_total": true,
	"seats_used":  true,
	"agents":      true,
	"agents_cost": true,
	"notes":       true,
}

func NewLicenseService(
	licenseRepo *repository.LicenseRepository,
	stagingRepo *repository.ExternalLicenseRepository,
	c cache.Cache,
	cacheTTL time.Duration,
) *LicenseService {
	return &LicenseService{
		licenseRepo: licenseRepo,
		stagingRepo: stagingRepo,
		cache:       c,
		cacheTTL:    cacheTTL,
	}
}

// ListLicenses returns one dashboard page with SMS balance enrichment
// applied to every row.
func (s *LicenseService) ListLicenses(filters repository.LicenseFilters) ([]models.License, int64, error) {
	licenses, total, err := s.licenseRepo.List(filters)
	if err != nil {
		return nil, 0, err
	}

	if err := s.enrichSmsBalance(licenses); err != nil {
		// Enrichment is best effort; a staging read failure must not take
		// down the list endpoint.
		logrus.WithError(err).Warn("SMS balance enrichment skipped")
	}

	return licenses, total, nil
}

func (s *LicenseService) GetLicense(id uuid.UUID) (*models.License, error) {
	license, err := s.licenseRepo.GetByID(id)
	if err != nil {
		return nil, fmt.Errorf("database error: %w", err)
	}
	if license == nil {
		return nil, errors.New("license not found")
	}

	page := []models.License{*license}
	if err := s.enrichSmsBalance(page); err != nil {
		logrus.WithError(err).Warn("SMS balance enrichment skipped")
	} else {
		license.SmsBalance = page[0].SmsBalance
	}

	return license, nil
}

// enrichSmsBalance substitutes the staging SMS balance into the response
// when the internal value is zero and the staging row has a positive one.
// The stored row is never written back; the substitution exists to mask
// reconciliation lag, and the fallback counter makes it observable when
// it fires for any other reason.
func (s *LicenseService) enrichSmsBalance(licenses []models.License) error {
	appIDs := make([]string, 0, len(licenses))
	for i := range licenses {
		if licenses[i].AppID != nil && licenses[i].SmsBalance == 0 {
			appIDs = append(appIDs, *licenses[i].AppID)
		}
	}
	if len(appIDs) == 0 {
		return nil
	}

	staging, err := s.stagingRepo.GetByAppIDs(appIDs)
	if err != nil {
		return err
	}

	for i := range licenses {
		if licenses[i].AppID == nil || licenses[i].SmsBalance != 0 {
			continue
		}
		row, ok := staging[*licenses[i].AppID]
		if !ok || row.SmsBalance <= 0 {
			continue
		}
		licenses[i].SmsBalance = row.SmsBalance
		metrics.EnrichmentFallbacks.Inc()
	}

	return nil
}

func (s *LicenseService) CreateLicense(req *CreateLicenseRequest) (*models.License, error) {
	if err := utils.ValidateStruct(req); err != nil {
		return nil, fmt.Errorf("validation failed: %w", err)
	}

	license := &models.License{
		DBA:        req.DBA,
		Zip:        req.Zip,
		Status:     models.LicenseStatusDraft,
		Term:       models.LicenseTermMonthly,
		SeatsTotal: req.SeatsTotal,
		Agents:     req.Agents,
		AgentsName: pq.StringArray(req.AgentsName),
		AgentsCost: req.AgentsCost,
		Notes:      req.Notes,
	}
	if req.Status != "" {
		license.Status = models.LicenseStatus(req.Status)
	}
	if req.Term != "" {
		license.Term = models.LicenseTerm(req.Term)
	}

	if err := s.licenseRepo.Create(license); err != nil {
		return nil, fmt.Errorf("failed to create license: %w", err)
	}

	s.invalidateMetrics()
	return license, nil
}

func (s *LicenseService) UpdateLicense(id uuid.UUID, req *UpdateLicenseRequest) (*models.License, error) {
	if err := utils.ValidateStruct(req); err != nil {
		return nil, fmt.Errorf("validation failed: %w", err)
	}

	license, err := s.licenseRepo.GetByID(id)
	if err != nil {
		return nil, fmt.Errorf("database error: %w", err)
	}
	if license == nil {
		return nil, errors.New("license not found")
	}

	if req.DBA != nil {
		license.DBA = *req.DBA
	}
	if req.Zip != nil {
		license.Zip = *req.Zip
	}
	if req.Status != nil {
		license.Status = models.LicenseStatus(*req.Status)
	}
	if req.Term != nil {
		license.Term = models.LicenseTerm(*req.Term)
	}
	if req.SeatsTotal != nil {
		license.SeatsTotal = *req.SeatsTotal
	}
	if req.SeatsUsed != nil {
		license.SeatsUsed = *req.SeatsUsed
	}
	if req.Agents != nil {
		license.Agents = *req.Agents
	}
	if req.AgentsName != nil {
		license.AgentsName = pq.StringArray(req.AgentsName)
	}
	if req.AgentsCost != nil {
		license.AgentsCost = *req.AgentsCost
	}
	if req.Notes != nil {
		license.Notes = *req.Notes
	}

	if err := s.licenseRepo.Save(license); err != nil {
		return nil, fmt.Errorf("failed to update license: %w", err)
	}

	s.invalidateMetrics()
	return license, nil
}

func (s *LicenseService) DeleteLicense(id uuid.UUID) error {
	license, err := s.licenseRepo.GetByID(id)
	if err != nil {
		return fmt.Errorf("database error: %w", err)
	}
	if license == nil {
		return errors.New("license not found")
	}

	if err := s.licenseRepo.SoftDelete(id); err != nil {
		return fmt.Errorf("failed to delete license: %w", err)
	}

	s.invalidateMetrics()
	return nil
}

// BulkUpdate applies the same dashboard-owned field updates to a set of
// licenses. Unknown or provider-owned columns are rejected up front.
func (s *LicenseService) BulkUpdate(req *BulkUpdateRequest) (int64, error) {
	if err := utils.ValidateStruct(req); err != nil {
		return 0, fmt.Errorf("validation failed: %w", err)
	}

	updates := make(map[string]interface{}, len(req.Updates))
	for column, value := range req.Updates {
		if !bulkUpdatableColumns[column] {
			return 0, fmt.Errorf("field %q is not bulk updatable", column)
		}
		if column == "status" {
			status, ok := value.(string)
			if !ok || !models.ValidLicenseStatus(models.LicenseStatus(status)) {
				return 0, fmt.Errorf("invalid status value")
			}
		}
		updates[column] = value
	}

	affected, err := s.licenseRepo.BulkUpdate(req.IDs, updates)
	if err != nil {
		return 0, err
	}

	s.invalidateMetrics()
	return affected, nil
}

// DashboardMetrics serves the aggregates behind a short-TTL cache entry.
func (s *LicenseService) DashboardMetrics(ctx context.Context) (*repository.DashboardMetrics, error) {
	if cached, err := s.cache.Get(ctx, metricsCacheKey); err == nil {
		var m repository.DashboardMetrics
		if err := json.Unmarshal(cached, &m); err == nil {
			return &m, nil
		}
	}

	m, err := s.licenseRepo.Metrics()
	if err != nil {
		return nil, err
	}

	if encoded, err := json.Marshal(m); err == nil {
		if err := s.cache.Set(ctx, metricsCacheKey, encoded, s.cacheTTL); err != nil {
			logrus.WithError(err).Warn("Failed to cache dashboard metrics")
		}
	}

	return m, nil
}

func (s *LicenseService) invalidateMetrics() {
	if err := s.cache.Del(context.Background(), metricsCacheKey); err != nil {
		logrus.WithError(err).Warn("Failed to invalidate metrics cache")
	}
}
