// internal/repository/license.go
package repository

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/javajoker/licadmin-backend/internal/models"
	"github.com/javajoker/licadmin-backend/internal/utils"
)

// LicenseRepository is the data access layer for the internal licenses
// table. Both the dashboard and the reconciliation engine write through it.
type LicenseRepository struct {
	db *gorm.DB
}

type LicenseFilters struct {
	utils.PaginationParams
	Status  *models.LicenseStatus
	DueFrom *time.Time
	DueTo   *time.Time
}

// DashboardMetrics are the aggregate counts shown on the dashboard landing
// page.
type DashboardMetrics struct {
	TotalLicenses   int64            `json:"total_licenses"`
	ByStatus        map[string]int64 `json:"by_status"`
	ExpiringSoon    int64            `json:"expiring_soon"`
	SyncedLicenses  int64            `json:"synced_licenses"`
	SmsBalanceTotal float64          `json:"sms_balance_total"`
	SmsSentTotal    float64          `json:"sms_sent_total"`
	MonthlyRevenue  float64          `json:"monthly_revenue"`
}

func NewLicenseRepository(db *gorm.DB) *LicenseRepository {
	return &LicenseRepository{db: db}
}

func (r *LicenseRepository) List(filters LicenseFilters) ([]models.License, int64, error) {
	query := r.db.Model(&models.License{})

	if filters.Status != nil {
		query = query.Where("status = ?", *filters.Status)
	}
	if filters.Search != "" {
		pattern := "%" + filters.Search + "%"
		query = query.Where("dba ILIKE ? OR appid LIKE ?", pattern, pattern)
	}
	if filters.DueFrom != nil {
		query = query.Where("due_date >= ?", *filters.DueFrom)
	}
	if filters.DueTo != nil {
		query = query.Where("due_date <= ?", *filters.DueTo)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to count licenses: %w", err)
	}

	allowedSortFields := []string{"created_at", "updated_at", "dba", "status", "due_date", "starts_at", "sms_balance"}
	query = utils.ApplySort(query, filters.PaginationParams, allowedSortFields)
	query = utils.ApplyPagination(query, filters.PaginationParams)

	var licenses []models.License
	if err := query.Find(&licenses).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to fetch licenses: %w", err)
	}

	return licenses, total, nil
}

func (r *LicenseRepository) GetByID(id uuid.UUID) (*models.License, error) {
	var license models.License
	if err := r.db.First(&license, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &license, nil
}

func (r *LicenseRepository) GetByAppID(appID string) (*models.License, error) {
	var license models.License
	if err := r.db.First(&license, "appid = ?", appID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &license, nil
}

func (r *LicenseRepository) Create(license *models.License) error {
	return r.db.Create(license).Error
}

func (r *LicenseRepository) Save(license *models.License) error {
	return r.db.Save(license).Error
}

// UpdateColumns writes only the given columns, bypassing zero-value
// skipping. Reconciliation uses this with the provider-owned column set.
func (r *LicenseRepository) UpdateColumns(id uuid.UUID, updates map[string]interface{}) error {
	return r.db.Model(&models.License{}).Where("id = ?", id).Updates(updates).Error
}

// BulkUpdate applies the same field updates to a set of licenses and
// returns how many rows changed.
func (r *LicenseRepository) BulkUpdate(ids []uuid.UUID, updates map[string]interface{}) (int64, error) {
	if len(ids) == 0 || len(updates) == 0 {
		return 0, nil
	}

	result := r.db.Model(&models.License{}).Where("id IN ?", ids).Updates(updates)
	if result.Error != nil {
		return 0, fmt.Errorf("bulk update failed: %w", result.Error)
	}
	return result.RowsAffected, nil
}

// SoftDelete transitions a license to cancel; rows are never physically
// removed so history survives.
func (r *LicenseRepository) SoftDelete(id uuid.UUID) error {
	return r.db.Model(&models.License{}).Where("id = ?", id).
		Update("status", models.LicenseStatusCancel).Error
}

func (r *LicenseRepository) Metrics() (*DashboardMetrics, error) {
	metrics := &DashboardMetrics{
		ByStatus: make(map[string]int64),
	}

	if err := r.db.Model(&models.License{}).Count(&metrics.TotalLicenses).Error; err != nil {
		return nil, fmt.Errorf("failed to count licenses: %w", err)
	}

	var statusCounts []struct {
		Status string
		Count  int64
	}
	if err := r.db.Model(&models.License{}).
		Select("status, count(*) as count").
		Group("status").
		Scan(&statusCounts).Error; err != nil {
		return nil, fmt.Errorf("failed to aggregate statuses: %w", err)
	}
	for _, sc := range statusCounts {
		metrics.ByStatus[sc.Status] = sc.Count
	}

	soon := time.Now().AddDate(0, 0, 30)
	if err := r.db.Model(&models.License{}).
		Where("due_date IS NOT NULL AND due_date <= ? AND status = ?", soon, models.LicenseStatusActive).
		Count(&metrics.ExpiringSoon).Error; err != nil {
		return nil, fmt.Errorf("failed to count expiring licenses: %w", err)
	}

	if err := r.db.Model(&models.License{}).
		Where("appid IS NOT NULL").
		Count(&metrics.SyncedLicenses).Error; err != nil {
		return nil, fmt.Errorf("failed to count synced licenses: %w", err)
	}

	var sums struct {
		SmsBalance float64
		SmsSent    float64
		Revenue    float64
	}
	if err := r.db.Model(&models.License{}).
		Select("COALESCE(SUM(sms_balance),0) as sms_balance, COALESCE(SUM(sms_sent),0) as sms_sent").
		Scan(&sums).Error; err != nil {
		return nil, fmt.Errorf("failed to sum sms fields: %w", err)
	}
	metrics.SmsBalanceTotal = sums.SmsBalance
	metrics.SmsSentTotal = sums.SmsSent

	if err := r.db.Model(&models.License{}).
		Where("status = ?", models.LicenseStatusActive).
		Select("COALESCE(SUM(last_payment),0) as revenue").
		Scan(&sums).Error; err != nil {
		return nil, fmt.Errorf("failed to sum revenue: %w", err)
	}
	metrics.MonthlyRevenue = sums.Revenue

	return metrics, nil
}
