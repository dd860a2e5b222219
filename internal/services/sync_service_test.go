// internal/services/sync_service_test.go
package services

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/suite"

	"github.com/javajoker/licadmin-backend/internal/config"
	"github.com/javajoker/licadmin-backend/internal/models"
	"github.com/javajoker/licadmin-backend/internal/provider"
	"github.com/javajoker/licadmin-backend/internal/repository"
)

// fakeFetcher stands in for the provider client. When block is set it
// parks until released, to hold a run in the running state.
type fakeFetcher struct {
	records    []provider.RawRecord
	err        error
	block      chan struct{}
	blockFirst bool
	calls      int32
}

func (f *fakeFetcher) FetchAll(ctx context.Context) ([]provider.RawRecord, error) {
	n := atomic.AddInt32(&f.calls, 1)
	if f.block != nil && (!f.blockFirst || n == 1) {
		<-f.block
	}
	return f.records, f.err
}

// gatedFetcher parks each FetchAll call on its own gate so tests can
// release concurrent runs one at a time.
type gatedFetcher struct {
	records []provider.RawRecord
	gates   chan chan struct{}
}

func (f *gatedFetcher) FetchAll(ctx context.Context) ([]provider.RawRecord, error) {
	gate := <-f.gates
	<-gate
	return f.records, nil
}

type SyncServiceSuite struct {
	suite.Suite
	stagingRepo *repository.ExternalLicenseRepository
	licenseRepo *repository.LicenseRepository
}

func (s *SyncServiceSuite) SetupTest() {
	db := testDB(s.T())
	s.stagingRepo = repository.NewExternalLicenseRepository(db)
	s.licenseRepo = repository.NewLicenseRepository(db)
}

func (s *SyncServiceSuite) newService(fetcher ProviderFetcher) *SyncService {
	return NewSyncService(config.SyncConfig{
		Enabled:        true,
		StaleAfterMins: 30,
		ReconcileBatch: 100,
	}, fetcher, s.stagingRepo, s.licenseRepo)
}

func syncFixtures() []provider.RawRecord {
	return []provider.RawRecord{
		{
			"appid":          "app-1",
			"dba":            "Lucky Nails",
			"zip":            "10001",
			"status":         "1",
			"ActivateDate":   "2024-01-15",
			"Coming_expired": "2026-12-31",
			"monthlyFee":     99.5,
			"smsBalance":     8.9,
			"Package":        map[string]interface{}{"basic": true, "sms_package_6000": true},
		},
		{
			"appid":      "app-2",
			"dba":        "Happy Feet Spa",
			"status":     "3",
			"smsBalance": float64(0),
		},
		{
			// no appid, must be rejected without sinking the run
			"dba": "Ghost Record",
		},
	}
}

func (s *SyncServiceSuite) TestRunSyncFullCycle() {
	svc := s.newService(&fakeFetcher{records: syncFixtures()})

	result, err := svc.RunSync(context.Background())
	s.Require().NoError(err)
	s.True(result.Success)
	s.NotEmpty(result.RunID)

	s.Equal(3, result.Fetched)
	s.Equal(2, result.Created)
	s.Equal(0, result.Updated)
	s.Equal(1, result.Failed)
	s.Equal(2, result.ReconcileCreated)
	s.Equal(0, result.ReconcileUpdated)

	// Staging holds only the valid rows
	count, err := s.stagingRepo.Count()
	s.Require().NoError(err)
	s.Equal(int64(2), count)

	// Internal licenses were created with provider values and defaults
	license, err := s.licenseRepo.GetByAppID("app-1")
	s.Require().NoError(err)
	s.Require().NotNil(license)
	s.Equal("Lucky Nails", license.DBA)
	s.Equal(models.LicenseStatusActive, license.Status)
	s.Equal(models.LicenseTermMonthly, license.Term)
	s.Equal(8.9, license.SmsBalance)
	s.Equal("Basic, SMS Package 6000", license.Plan)
}

func (s *SyncServiceSuite) TestSyncNeverStoresNegativeBalances() {
	svc := s.newService(&fakeFetcher{records: []provider.RawRecord{{
		"appid":      "app-neg",
		"dba":        "Glitchy Export",
		"status":     "1",
		"smsBalance": float64(-5),
		"smsSent":    float64(-120),
		"monthlyFee": -99.5,
	}}})

	result, err := svc.RunSync(context.Background())
	s.Require().NoError(err)
	s.True(result.Success)
	s.Equal(1, result.ReconcileCreated)

	staged, err := s.stagingRepo.GetByAppID("app-neg")
	s.Require().NoError(err)
	s.Require().NotNil(staged)
	s.Zero(staged.SmsBalance)
	s.Zero(staged.SmsSent)
	s.Zero(staged.MonthlyFee)

	license, err := s.licenseRepo.GetByAppID("app-neg")
	s.Require().NoError(err)
	s.Require().NotNil(license)
	s.GreaterOrEqual(license.SmsBalance, float64(0))
	s.GreaterOrEqual(license.SmsSent, float64(0))
	s.GreaterOrEqual(license.LastPayment, float64(0))
}

func (s *SyncServiceSuite) TestRunSyncIdempotent() {
	svc := s.newService(&fakeFetcher{records: syncFixtures()})

	first, err := svc.RunSync(context.Background())
	s.Require().NoError(err)
	s.Equal(2, first.Created)

	second, err := svc.RunSync(context.Background())
	s.Require().NoError(err)
	s.True(second.Success)
	s.Equal(0, second.Created)
	s.Equal(2, second.Updated)
	s.Equal(0, second.ReconcileCreated)
	s.Equal(2, second.ReconcileUpdated)

	count, err := s.stagingRepo.Count()
	s.Require().NoError(err)
	s.Equal(int64(2), count)
}

func (s *SyncServiceSuite) TestReconcilePreservesDashboardFields() {
	svc := s.newService(&fakeFetcher{records: syncFixtures()})

	_, err := svc.RunSync(context.Background())
	s.Require().NoError(err)

	license, err := s.licenseRepo.GetByAppID("app-1")
	s.Require().NoError(err)

	// Dashboard edits between runs
	err = s.licenseRepo.UpdateColumns(license.ID, map[string]interface{}{
		"notes":       "negotiating renewal",
		"seats_total": 7,
		"term":        models.LicenseTermAnnual,
	})
	s.Require().NoError(err)

	_, err = svc.RunSync(context.Background())
	s.Require().NoError(err)

	reloaded, err := s.licenseRepo.GetByAppID("app-1")
	s.Require().NoError(err)
	s.Equal("negotiating renewal", reloaded.Notes)
	s.Equal(7, reloaded.SeatsTotal)
	s.Equal(models.LicenseTermAnnual, reloaded.Term)
	// Provider still owns its side
	s.Equal("Lucky Nails", reloaded.DBA)
	s.Equal(8.9, reloaded.SmsBalance)
}

func (s *SyncServiceSuite) TestMutualExclusion() {
	fetcher := &fakeFetcher{records: syncFixtures(), block: make(chan struct{})}
	svc := s.newService(fetcher)

	runID, err := svc.TriggerAsync()
	s.Require().NoError(err)
	s.NotEmpty(runID)

	// Second trigger while the first is still fetching
	_, err = svc.TriggerAsync()
	s.Require().ErrorIs(err, ErrSyncAlreadyRunning)

	_, err = svc.RunSync(context.Background())
	s.Require().ErrorIs(err, ErrSyncAlreadyRunning)

	status := svc.Status()
	s.True(status.Running)
	s.Equal(models.SyncStateRunning, status.State)

	close(fetcher.block)

	s.Eventually(func() bool {
		return !svc.Status().Running
	}, 5*time.Second, 10*time.Millisecond)

	// Released, next trigger goes through
	_, err = svc.RunSync(context.Background())
	s.Require().NoError(err)
}

func (s *SyncServiceSuite) TestStaleRunTakenOver() {
	fetcher := &fakeFetcher{records: syncFixtures(), block: make(chan struct{}), blockFirst: true}
	svc := s.newService(fetcher)
	svc.cfg.StaleAfterMins = 0 // everything is instantly stale

	_, err := svc.TriggerAsync()
	s.Require().NoError(err)

	// The stuck run does not block a new one
	result, err := svc.RunSync(context.Background())
	s.Require().NoError(err)
	s.True(result.Success)

	close(fetcher.block)
}

// A run that lost its window to a stale takeover must not release the
// takeover run's window when it finally completes.
func (s *SyncServiceSuite) TestSupersededRunCannotReleaseWindow() {
	fetcher := &gatedFetcher{records: syncFixtures(), gates: make(chan chan struct{}, 2)}
	svc := s.newService(fetcher)
	svc.cfg.StaleAfterMins = 0 // first run is instantly stale

	gate1 := make(chan struct{})
	fetcher.gates <- gate1
	_, err := svc.TriggerAsync()
	s.Require().NoError(err)
	s.Require().Eventually(func() bool {
		return len(fetcher.gates) == 0
	}, 5*time.Second, 10*time.Millisecond)

	gate2 := make(chan struct{})
	fetcher.gates <- gate2
	run2, err := svc.TriggerAsync() // takes over the stale run
	s.Require().NoError(err)
	s.Require().Eventually(func() bool {
		return len(fetcher.gates) == 0
	}, 5*time.Second, 10*time.Millisecond)

	svc.cfg.StaleAfterMins = 30 // the takeover run is fresh from here on

	// Letting the superseded run complete must leave the window held
	close(gate1)
	s.Never(func() bool {
		return !svc.Status().Running
	}, 200*time.Millisecond, 10*time.Millisecond)

	_, err = svc.RunSync(context.Background())
	s.Require().ErrorIs(err, ErrSyncAlreadyRunning)

	close(gate2)
	s.Require().Eventually(func() bool {
		return !svc.Status().Running
	}, 5*time.Second, 10*time.Millisecond)

	// Only the takeover run is recorded; the superseded result is dropped
	status := svc.Status()
	s.Require().NotNil(status.LastSyncResult)
	s.Equal(run2, status.LastSyncResult.RunID)
	s.Equal(int64(1), status.Statistics.TotalRuns)
}

func (s *SyncServiceSuite) TestForceRelease() {
	fetcher := &fakeFetcher{records: syncFixtures(), block: make(chan struct{})}
	svc := s.newService(fetcher)

	_, err := svc.TriggerAsync()
	s.Require().NoError(err)
	s.True(svc.Status().Running)

	s.True(svc.ForceRelease())
	s.False(svc.Status().Running)

	// Nothing left to release
	s.False(svc.ForceRelease())

	// The released run's eventual completion is discarded
	close(fetcher.block)
	s.Never(func() bool {
		return svc.Status().Running
	}, 200*time.Millisecond, 10*time.Millisecond)
	s.Equal(int64(0), svc.Status().Statistics.TotalRuns)
}

func (s *SyncServiceSuite) TestFetchFailureEndsRun() {
	svc := s.newService(&fakeFetcher{err: errors.New("provider down")})

	result, err := svc.RunSync(context.Background())
	s.Require().Error(err)
	s.Require().NotNil(result)
	s.False(result.Success)
	s.Contains(result.Error, "provider down")

	// State machine returned to idle
	status := svc.Status()
	s.False(status.Running)
	s.Equal(int64(1), status.Statistics.FailedRuns)

	// And a new run can start
	svc.client = &fakeFetcher{records: syncFixtures()}
	_, err = svc.RunSync(context.Background())
	s.Require().NoError(err)
}

func (s *SyncServiceSuite) TestStatusTracksStatistics() {
	svc := s.newService(&fakeFetcher{records: syncFixtures()})

	_, err := svc.RunSync(context.Background())
	s.Require().NoError(err)
	_, err = svc.RunSync(context.Background())
	s.Require().NoError(err)

	status := svc.Status()
	s.True(status.Enabled)
	s.Equal(int64(2), status.Statistics.TotalRuns)
	s.Equal(int64(2), status.Statistics.SuccessRuns)
	s.Require().NotNil(status.LastSyncResult)
	s.Equal(2, status.LastSyncResult.Updated)
}

func TestSyncServiceSuite(t *testing.T) {
	suite.Run(t, new(SyncServiceSuite))
}

func TestPlanFromPackage(t *testing.T) {
	cases := []struct {
		name string
		pkg  models.JSONB
		want string
	}{
		{"nil package", nil, ""},
		{"empty package", models.JSONB{}, ""},
		{"single flag", models.JSONB{"basic": true}, "Basic"},
		{
			"multiple flags in fixed order",
			models.JSONB{"sms_package_6000": true, "basic": true, "print_check": true},
			"Basic, Print Check, SMS Package 6000",
		},
		{"disabled flags skipped", models.JSONB{"basic": true, "print_check": false}, "Basic"},
		{"numeric truthiness", models.JSONB{"staff_performance": float64(1)}, "Staff Performance"},
		{"unknown flags ignored", models.JSONB{"basic": true, "mystery": true}, "Basic"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, PlanFromPackage(tc.pkg))
		})
	}
}
