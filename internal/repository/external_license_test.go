// internal/repository/external_license_test.go
package repository

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"

	"github.com/javajoker/licadmin-backend/internal/models"
)

type ExternalLicenseRepoSuite struct {
	suite.Suite
	repo *ExternalLicenseRepository
}

func (s *ExternalLicenseRepoSuite) SetupTest() {
	s.repo = NewExternalLicenseRepository(testDB(s.T()))
}

func stagingRecord(appID string, balance float64) models.ExternalLicense {
	activate := time.Date(2024, 1, 15, 0, 0, 0, 0, time.UTC)
	expires := time.Date(2026, 12, 31, 0, 0, 0, 0, time.UTC)
	return models.ExternalLicense{
		AppID:         appID,
		DBA:           "Salon " + appID,
		Zip:           "10001",
		Status:        string(models.LicenseStatusActive),
		ActivateDate:  &activate,
		ComingExpired: &expires,
		MonthlyFee:    99.5,
		SmsBalance:    balance,
		SmsPurchased:  6000,
		SmsSent:       120,
		Package:       models.JSONB{"basic": true},
		Note:          "initial",
	}
}

func (s *ExternalLicenseRepoSuite) TestBulkUpsertCreates() {
	result, err := s.repo.BulkUpsert([]models.ExternalLicense{
		stagingRecord("app-1", 10),
		stagingRecord("app-2", 20),
	})
	s.Require().NoError(err)
	s.Equal(2, result.Created)
	s.Equal(0, result.Updated)
	s.Equal(0, result.Failed)

	count, err := s.repo.Count()
	s.Require().NoError(err)
	s.Equal(int64(2), count)
}

func (s *ExternalLicenseRepoSuite) TestBulkUpsertClassifiesUpdates() {
	_, err := s.repo.BulkUpsert([]models.ExternalLicense{stagingRecord("app-1", 10)})
	s.Require().NoError(err)

	result, err := s.repo.BulkUpsert([]models.ExternalLicense{
		stagingRecord("app-1", 11),
		stagingRecord("app-2", 20),
	})
	s.Require().NoError(err)
	s.Equal(1, result.Created)
	s.Equal(1, result.Updated)

	count, err := s.repo.Count()
	s.Require().NoError(err)
	s.Equal(int64(2), count)
}

// A re-sync must overwrite every mutable column, not just the ones that
// commonly change. A stale sms_balance here is exactly the bug the
// enrichment fallback exists to mask.
func (s *ExternalLicenseRepoSuite) TestBulkUpsertOverwritesEveryMutableColumn() {
	_, err := s.repo.BulkUpsert([]models.ExternalLicense{stagingRecord("app-1", 10)})
	s.Require().NoError(err)

	newActivate := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)
	newExpires := time.Date(2027, 3, 31, 0, 0, 0, 0, time.UTC)
	changed := models.ExternalLicense{
		AppID:         "app-1",
		DBA:           "Renamed Salon",
		Zip:           "94110",
		Status:        string(models.LicenseStatusExpiring),
		ActivateDate:  &newActivate,
		ComingExpired: &newExpires,
		MonthlyFee:    149.0,
		SmsBalance:    8.9,
		SmsPurchased:  12000,
		SmsSent:       450,
		Package:       models.JSONB{"basic": true, "print_check": true},
		Note:          "renewed",
	}

	result, err := s.repo.BulkUpsert([]models.ExternalLicense{changed})
	s.Require().NoError(err)
	s.Equal(1, result.Updated)

	stored, err := s.repo.GetByAppID("app-1")
	s.Require().NoError(err)
	s.Require().NotNil(stored)

	s.Equal("Renamed Salon", stored.DBA)
	s.Equal("94110", stored.Zip)
	s.Equal(string(models.LicenseStatusExpiring), stored.Status)
	s.Require().NotNil(stored.ActivateDate)
	s.Equal(newActivate.Unix(), stored.ActivateDate.Unix())
	s.Require().NotNil(stored.ComingExpired)
	s.Equal(newExpires.Unix(), stored.ComingExpired.Unix())
	s.Equal(149.0, stored.MonthlyFee)
	s.Equal(8.9, stored.SmsBalance)
	s.Equal(float64(12000), stored.SmsPurchased)
	s.Equal(float64(450), stored.SmsSent)
	s.Equal(true, stored.Package["print_check"])
	s.Equal("renewed", stored.Note)
}

func (s *ExternalLicenseRepoSuite) TestBulkUpsertIdempotent() {
	batch := []models.ExternalLicense{
		stagingRecord("app-1", 10),
		stagingRecord("app-2", 20),
	}

	first, err := s.repo.BulkUpsert(batch)
	s.Require().NoError(err)
	s.Equal(2, first.Created)

	second, err := s.repo.BulkUpsert(batch)
	s.Require().NoError(err)
	s.Equal(0, second.Created)
	s.Equal(2, second.Updated)

	count, err := s.repo.Count()
	s.Require().NoError(err)
	s.Equal(int64(2), count)
}

func (s *ExternalLicenseRepoSuite) TestBulkUpsertDedupesWithinBatch() {
	first := stagingRecord("app-1", 10)
	second := stagingRecord("app-1", 99)
	second.DBA = "Last Wins"

	result, err := s.repo.BulkUpsert([]models.ExternalLicense{first, second})
	s.Require().NoError(err)
	s.Equal(1, result.Created)

	stored, err := s.repo.GetByAppID("app-1")
	s.Require().NoError(err)
	s.Require().NotNil(stored)
	s.Equal("Last Wins", stored.DBA)
	s.Equal(float64(99), stored.SmsBalance)
}

func (s *ExternalLicenseRepoSuite) TestBulkUpsertEmptyBatch() {
	result, err := s.repo.BulkUpsert(nil)
	s.Require().NoError(err)
	s.Zero(result.Created)
	s.Zero(result.Updated)
	s.Zero(result.Failed)
}

func (s *ExternalLicenseRepoSuite) TestGetByAppIDs() {
	_, err := s.repo.BulkUpsert([]models.ExternalLicense{
		stagingRecord("app-1", 10),
		stagingRecord("app-2", 20),
	})
	s.Require().NoError(err)

	found, err := s.repo.GetByAppIDs([]string{"app-1", "app-2", "app-missing"})
	s.Require().NoError(err)
	s.Len(found, 2)
	s.Equal(float64(10), found["app-1"].SmsBalance)
	s.Equal(float64(20), found["app-2"].SmsBalance)

	empty, err := s.repo.GetByAppIDs(nil)
	s.Require().NoError(err)
	s.Empty(empty)
}

func (s *ExternalLicenseRepoSuite) TestListInBatches() {
	var batch []models.ExternalLicense
	for _, appID := range []string{"a", "b", "c", "d", "e"} {
		batch = append(batch, stagingRecord(appID, 1))
	}
	_, err := s.repo.BulkUpsert(batch)
	s.Require().NoError(err)

	var seen []string
	var batches int
	err = s.repo.ListInBatches(2, func(rows []models.ExternalLicense) error {
		batches++
		for _, row := range rows {
			seen = append(seen, row.AppID)
		}
		return nil
	})
	s.Require().NoError(err)
	s.Equal(3, batches)
	s.Equal([]string{"a", "b", "c", "d", "e"}, seen)
}

func TestExternalLicenseRepoSuite(t *testing.T) {
	suite.Run(t, new(ExternalLicenseRepoSuite))
}

func TestDedupeByAppIDPreservesOrder(t *testing.T) {
	records := []models.ExternalLicense{
		{AppID: "a", DBA: "first-a"},
		{AppID: "b", DBA: "first-b"},
		{AppID: "a", DBA: "second-a"},
	}

	deduped := dedupeByAppID(records)
	require.Len(t, deduped, 2)
	assert.Equal(t, "a", deduped[0].AppID)
	assert.Equal(t, "second-a", deduped[0].DBA)
	assert.Equal(t, "b", deduped[1].AppID)
}
