// internal/services/license_service_test.go
package services

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/suite"

	"github.com/javajoker/licadmin-backend/internal/cache"
	"github.com/javajoker/licadmin-backend/internal/models"
	"github.com/javajoker/licadmin-backend/internal/repository"
	"github.com/javajoker/licadmin-backend/internal/utils"
)

type LicenseServiceSuite struct {
	suite.Suite
	svc         *LicenseService
	licenseRepo *repository.LicenseRepository
	stagingRepo *repository.ExternalLicenseRepository
}

func (s *LicenseServiceSuite) SetupTest() {
	db := testDB(s.T())
	s.licenseRepo = repository.NewLicenseRepository(db)
	s.stagingRepo = repository.NewExternalLicenseRepository(db)
	s.svc = NewLicenseService(s.licenseRepo, s.stagingRepo, cache.NewMemoryCache(), time.Minute)
}

func (s *LicenseServiceSuite) seedPair(appID string, internalBalance, stagingBalance float64) *models.License {
	license := &models.License{
		AppID:      &appID,
		DBA:        "Shop " + appID,
		Status:     models.LicenseStatusActive,
		Term:       models.LicenseTermMonthly,
		SmsBalance: internalBalance,
	}
	s.Require().NoError(s.licenseRepo.Create(license))

	_, err := s.stagingRepo.BulkUpsert([]models.ExternalLicense{{
		AppID:      appID,
		DBA:        "Shop " + appID,
		Status:     string(models.LicenseStatusActive),
		SmsBalance: stagingBalance,
	}})
	s.Require().NoError(err)

	return license
}

func (s *LicenseServiceSuite) listFilters() repository.LicenseFilters {
	return repository.LicenseFilters{
		PaginationParams: utils.PaginationParams{Page: 1, Limit: 20, Sort: "created_at", Order: "asc"},
	}
}

// Internal zero plus a positive staging balance means reconciliation has
// not caught up yet; the staging value is shown instead.
func (s *LicenseServiceSuite) TestEnrichmentSubstitutesStagingBalance() {
	s.seedPair("app-1", 0, 8.9)

	licenses, total, err := s.svc.ListLicenses(s.listFilters())
	s.Require().NoError(err)
	s.Equal(int64(1), total)
	s.Require().Len(licenses, 1)
	s.Equal(8.9, licenses[0].SmsBalance)
}

func (s *LicenseServiceSuite) TestEnrichmentKeepsPositiveInternalBalance() {
	s.seedPair("app-1", 5, 8.9)

	licenses, _, err := s.svc.ListLicenses(s.listFilters())
	s.Require().NoError(err)
	s.Require().Len(licenses, 1)
	s.Equal(float64(5), licenses[0].SmsBalance)
}

func (s *LicenseServiceSuite) TestEnrichmentSkipsZeroStagingBalance() {
	s.seedPair("app-1", 0, 0)

	licenses, _, err := s.svc.ListLicenses(s.listFilters())
	s.Require().NoError(err)
	s.Require().Len(licenses, 1)
	s.Zero(licenses[0].SmsBalance)
}

func (s *LicenseServiceSuite) TestEnrichmentSkipsManualLicenses() {
	license := &models.License{
		DBA:    "Manual Entry",
		Status: models.LicenseStatusDraft,
		Term:   models.LicenseTermMonthly,
	}
	s.Require().NoError(s.licenseRepo.Create(license))

	licenses, _, err := s.svc.ListLicenses(s.listFilters())
	s.Require().NoError(err)
	s.Require().Len(licenses, 1)
	s.Zero(licenses[0].SmsBalance)
}

// Enrichment is read-time only; the stored row must keep its zero until
// reconciliation writes a real value.
func (s *LicenseServiceSuite) TestEnrichmentDoesNotPersist() {
	seeded := s.seedPair("app-1", 0, 8.9)

	_, _, err := s.svc.ListLicenses(s.listFilters())
	s.Require().NoError(err)

	stored, err := s.licenseRepo.GetByID(seeded.ID)
	s.Require().NoError(err)
	s.Zero(stored.SmsBalance)
}

func (s *LicenseServiceSuite) TestGetLicenseEnriches() {
	seeded := s.seedPair("app-1", 0, 8.9)

	license, err := s.svc.GetLicense(seeded.ID)
	s.Require().NoError(err)
	s.Equal(8.9, license.SmsBalance)
}

func (s *LicenseServiceSuite) TestCreateLicenseDefaults() {
	license, err := s.svc.CreateLicense(&CreateLicenseRequest{DBA: "New Shop"})
	s.Require().NoError(err)
	s.Equal(models.LicenseStatusDraft, license.Status)
	s.Equal(models.LicenseTermMonthly, license.Term)
	s.Nil(license.AppID)
}

func (s *LicenseServiceSuite) TestCreateLicenseRejectsBadStatus() {
	_, err := s.svc.CreateLicense(&CreateLicenseRequest{DBA: "Shop", Status: "bogus"})
	s.Require().Error(err)
	s.Contains(err.Error(), "validation failed")
}

func (s *LicenseServiceSuite) TestUpdateLicensePartial() {
	seeded := s.seedPair("app-1", 5, 5)

	notes := "VIP customer"
	seats := 3
	updated, err := s.svc.UpdateLicense(seeded.ID, &UpdateLicenseRequest{
		Notes:      &notes,
		SeatsTotal: &seats,
	})
	s.Require().NoError(err)
	s.Equal("VIP customer", updated.Notes)
	s.Equal(3, updated.SeatsTotal)
	// Untouched fields survive
	s.Equal("Shop app-1", updated.DBA)
}

func (s *LicenseServiceSuite) TestBulkUpdateWhitelist() {
	first := s.seedPair("app-1", 0, 0)
	second := s.seedPair("app-2", 0, 0)

	affected, err := s.svc.BulkUpdate(&BulkUpdateRequest{
		IDs:     []uuid.UUID{first.ID, second.ID},
		Updates: map[string]interface{}{"notes": "bulk note"},
	})
	s.Require().NoError(err)
	s.Equal(int64(2), affected)
}

func (s *LicenseServiceSuite) TestBulkUpdateRejectsProviderOwnedColumn() {
	seeded := s.seedPair("app-1", 0, 0)

	_, err := s.svc.BulkUpdate(&BulkUpdateRequest{
		IDs:     []uuid.UUID{seeded.ID},
		Updates: map[string]interface{}{"sms_balance": 999},
	})
	s.Require().Error(err)
	s.Contains(err.Error(), "not bulk updatable")
}

func (s *LicenseServiceSuite) TestBulkUpdateRejectsInvalidStatus() {
	seeded := s.seedPair("app-1", 0, 0)

	_, err := s.svc.BulkUpdate(&BulkUpdateRequest{
		IDs:     []uuid.UUID{seeded.ID},
		Updates: map[string]interface{}{"status": "bogus"},
	})
	s.Require().Error(err)
	s.Contains(err.Error(), "invalid status")
}

func (s *LicenseServiceSuite) TestDashboardMetricsCached() {
	s.seedPair("app-1", 10, 10)

	first, err := s.svc.DashboardMetrics(context.Background())
	s.Require().NoError(err)
	s.Equal(int64(1), first.TotalLicenses)

	// A direct repo write does not bust the cache
	s.Require().NoError(s.licenseRepo.Create(&models.License{DBA: "Uncounted", Status: models.LicenseStatusDraft, Term: models.LicenseTermMonthly}))
	cached, err := s.svc.DashboardMetrics(context.Background())
	s.Require().NoError(err)
	s.Equal(int64(1), cached.TotalLicenses)

	// A service write does
	_, err = s.svc.CreateLicense(&CreateLicenseRequest{DBA: "Counted"})
	s.Require().NoError(err)
	fresh, err := s.svc.DashboardMetrics(context.Background())
	s.Require().NoError(err)
	s.Equal(int64(3), fresh.TotalLicenses)
}

func (s *LicenseServiceSuite) TestDeleteLicenseCancels() {
	seeded := s.seedPair("app-1", 0, 0)

	s.Require().NoError(s.svc.DeleteLicense(seeded.ID))

	stored, err := s.licenseRepo.GetByID(seeded.ID)
	s.Require().NoError(err)
	s.Require().NotNil(stored)
	s.Equal(models.LicenseStatusCancel, stored.Status)
}

func TestLicenseServiceSuite(t *testing.T) {
	suite.Run(t, new(LicenseServiceSuite))
}
