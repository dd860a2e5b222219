// internal/repository/external_license.go
package repository

import (
	"errors"
	"fmt"

	"github.com/lib/pq"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/javajoker/licadmin-backend/internal/models"
)

// ExternalLicenseRepository owns the staging table. Only the sync pipeline
// writes here; the dashboard reads it for enrichment.
type ExternalLicenseRepository struct {
	db *gorm.DB
}

type BulkUpsertResult struct {
	Created int `json:"created"`
	Updated int `json:"updated"`
	Failed  int `json:"failed"`
}

func NewExternalLicenseRepository(db *gorm.DB) *ExternalLicenseRepository {
	return &ExternalLicenseRepository{db: db}
}

// BulkUpsert persists a validated batch keyed by appid in one set-based
// statement. On conflict every mutable column is overwritten from the
// incoming row; omitting a column here would silently reintroduce stale
// data for it, so the assignment list comes straight from the model.
func (r *ExternalLicenseRepository) BulkUpsert(records []models.ExternalLicense) (*BulkUpsertResult, error) {
	result := &BulkUpsertResult{}
	if len(records) == 0 {
		return result, nil
	}

	batch := dedupeByAppID(records)

	// Classify created vs updated before writing
	appIDs := make([]string, 0, len(batch))
	for _, record := range batch {
		appIDs = append(appIDs, record.AppID)
	}

	var existing []string
	if err := r.db.Model(&models.ExternalLicense{}).
		Where("appid IN ?", appIDs).
		Pluck("appid", &existing).Error; err != nil {
		return nil, fmt.Errorf("failed to classify staging batch: %w", err)
	}

	existingSet := make(map[string]bool, len(existing))
	for _, appID := range existing {
		existingSet[appID] = true
	}

	onConflict := clause.OnConflict{
		Columns:   []clause.Column{{Name: "appid"}},
		DoUpdates: clause.AssignmentColumns(models.ExternalLicenseMutableColumns),
	}

	if err := r.db.Clauses(onConflict).Create(&batch).Error; err != nil {
		logrus.WithError(err).Warn("Staging batch upsert failed, degrading to per-row")
		return r.upsertPerRow(batch, existingSet)
	}

	for _, record := range batch {
		if existingSet[record.AppID] {
			result.Updated++
		} else {
			result.Created++
		}
	}

	return result, nil
}

// upsertPerRow retries a failed batch one row at a time so a single bad row
// cannot discard the rest. Per-row failures accumulate in the failed count.
func (r *ExternalLicenseRepository) upsertPerRow(batch []models.ExternalLicense, existingSet map[string]bool) (*BulkUpsertResult, error) {
	result := &BulkUpsertResult{}

	onConflict := clause.OnConflict{
		Columns:   []clause.Column{{Name: "appid"}},
		DoUpdates: clause.AssignmentColumns(models.ExternalLicenseMutableColumns),
	}

	for i := range batch {
		record := batch[i]
		if err := r.db.Clauses(onConflict).Create(&record).Error; err != nil {
			result.Failed++
			logPerRowError(record.AppID, err)
			continue
		}
		if existingSet[record.AppID] {
			result.Updated++
		} else {
			result.Created++
		}
	}

	return result, nil
}

func logPerRowError(appID string, err error) {
	fields := logrus.Fields{"appid": appID}

	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		fields["pq_code"] = string(pqErr.Code)
		fields["constraint"] = pqErr.Constraint
	}

	logrus.WithError(err).WithFields(fields).Error("Failed to upsert staging row")
}

// dedupeByAppID collapses duplicate appids within one batch, last
// occurrence wins. Guards against page-overlap duplicates from the
// provider. First-seen order is preserved.
func dedupeByAppID(records []models.ExternalLicense) []models.ExternalLicense {
	index := make(map[string]int, len(records))
	deduped := make([]models.ExternalLicense, 0, len(records))

	for _, record := range records {
		if pos, seen := index[record.AppID]; seen {
			deduped[pos] = record
			continue
		}
		index[record.AppID] = len(deduped)
		deduped = append(deduped, record)
	}

	return deduped
}

func (r *ExternalLicenseRepository) GetByAppID(appID string) (*models.ExternalLicense, error) {
	var record models.ExternalLicense
	if err := r.db.First(&record, "appid = ?", appID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &record, nil
}

// GetByAppIDs returns staging rows for the given keys, mapped by appid.
// Used by the enrichment read path to resolve a whole page in one query.
func (r *ExternalLicenseRepository) GetByAppIDs(appIDs []string) (map[string]models.ExternalLicense, error) {
	result := make(map[string]models.ExternalLicense, len(appIDs))
	if len(appIDs) == 0 {
		return result, nil
	}

	var records []models.ExternalLicense
	if err := r.db.Where("appid IN ?", appIDs).Find(&records).Error; err != nil {
		return nil, err
	}

	for _, record := range records {
		result[record.AppID] = record
	}
	return result, nil
}

// ListInBatches feeds staging rows to fn in batches of batchSize, for the
// reconciliation pass.
func (r *ExternalLicenseRepository) ListInBatches(batchSize int, fn func([]models.ExternalLicense) error) error {
	var batch []models.ExternalLicense
	result := r.db.Order("appid").FindInBatches(&batch, batchSize, func(tx *gorm.DB, n int) error {
		return fn(batch)
	})
	return result.Error
}

func (r *ExternalLicenseRepository) Count() (int64, error) {
	var count int64
	err := r.db.Model(&models.ExternalLicense{}).Count(&count).Error
	return count, err
}
