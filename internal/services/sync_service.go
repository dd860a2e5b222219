// internal/services/sync_service.go
package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/javajoker/licadmin-backend/internal/config"
	"github.com/javajoker/licadmin-backend/internal/metrics"
	"github.com/javajoker/licadmin-backend/internal/models"
	"github.com/javajoker/licadmin-backend/internal/provider"
	"github.com/javajoker/licadmin-backend/internal/repository"
)

// ErrSyncAlreadyRunning reports a trigger that lost the mutual exclusion
// window. Handlers translate it to a rejected no-op, never a 500.
var ErrSyncAlreadyRunning = errors.New("sync already in progress")

// ProviderFetcher is what the sync pipeline needs from the provider client.
type ProviderFetcher interface {
	FetchAll(ctx context.Context) ([]provider.RawRecord, error)
}

// SyncService runs the fetch, validate, upsert and reconcile cycle and
// guards it with an explicit state machine (idle, running, back to idle).
// All transitions happen under one mutex in tryStart/finish, so two
// callers can never both believe they acquired the run.
type SyncService struct {
	cfg         config.SyncConfig
	client      ProviderFetcher
	stagingRepo *repository.ExternalLicenseRepository
	licenseRepo *repository.LicenseRepository

	mtx             sync.Mutex
	state           models.SyncState
	currentRunID    string
	startedAt       time.Time
	enabled         bool
	lastResult      *models.SyncResult
	stats           models.SyncStatistics
	totalDurationMs int64
}

func NewSyncService(
	cfg config.SyncConfig,
	client ProviderFetcher,
	stagingRepo *repository.ExternalLicenseRepository,
	licenseRepo *repository.LicenseRepository,
) *SyncService {
	return &SyncService{
		cfg:         cfg,
		client:      client,
		stagingRepo: stagingRepo,
		licenseRepo: licenseRepo,
		state:       models.SyncStateIdle,
		enabled:     cfg.Enabled,
	}
}

// TriggerAsync starts a run in the background and returns its id
// immediately, or ErrSyncAlreadyRunning.
func (s *SyncService) TriggerAsync() (string, error) {
	runID, err := s.tryStart()
	if err != nil {
		return "", err
	}

	go func() {
		result := s.execute(context.Background(), runID)
		s.finish(result)
	}()

	return runID, nil
}

// RunSync executes one complete cycle synchronously. The scheduler and
// tests call this; the HTTP trigger goes through TriggerAsync.
func (s *SyncService) RunSync(ctx context.Context) (*models.SyncResult, error) {
	runID, err := s.tryStart()
	if err != nil {
		return nil, err
	}

	result := s.execute(ctx, runID)
	s.finish(result)

	if !result.Success {
		return result, errors.New(result.Error)
	}
	return result, nil
}

// tryStart is the only transition out of Idle. A run stuck in Running
// longer than the staleness bound is taken over rather than blocking
// syncs forever after a crash mid-run.
func (s *SyncService) tryStart() (string, error) {
	s.mtx.Lock()
	defer s.mtx.Unlock()

	if s.state == models.SyncStateRunning {
		staleAfter := time.Duration(s.cfg.StaleAfterMins) * time.Minute
		if time.Since(s.startedAt) < staleAfter {
			return "", ErrSyncAlreadyRunning
		}
		logrus.WithField("started_at", s.startedAt).
			Warn("Taking over sync run stuck in running state")
	}

	runID := uuid.New().String()
	s.state = models.SyncStateRunning
	s.currentRunID = runID
	s.startedAt = time.Now()
	metrics.SyncRunning.Set(1)

	return runID, nil
}

func (s *SyncService) execute(ctx context.Context, runID string) *models.SyncResult {
	log := logrus.WithField("run_id", runID)
	result := &models.SyncResult{
		RunID:     runID,
		StartedAt: time.Now(),
	}

	log.Info("Sync run started")

	raw, err := s.client.FetchAll(ctx)
	if err != nil {
		result.Error = fmt.Sprintf("provider fetch failed: %v", err)
		log.WithError(err).Error("Sync run aborted during fetch")
		return result
	}
	result.Fetched = len(raw)
	metrics.SyncRecords.WithLabelValues("fetched").Add(float64(len(raw)))

	valid, rejected := provider.NormalizeBatch(raw)
	result.Failed += len(rejected)
	for _, rejection := range rejected {
		log.WithField("reason", rejection.Reason).Warn("Provider record rejected")
	}

	upsert, err := s.stagingRepo.BulkUpsert(valid)
	if err != nil {
		result.Error = fmt.Sprintf("staging upsert failed: %v", err)
		log.WithError(err).Error("Sync run aborted during upsert")
		return result
	}
	result.Created = upsert.Created
	result.Updated = upsert.Updated
	result.Failed += upsert.Failed
	metrics.SyncRecords.WithLabelValues("created").Add(float64(upsert.Created))
	metrics.SyncRecords.WithLabelValues("updated").Add(float64(upsert.Updated))
	metrics.SyncRecords.WithLabelValues("failed").Add(float64(result.Failed))

	created, updated, err := s.Reconcile()
	if err != nil {
		result.Error = fmt.Sprintf("reconciliation failed: %v", err)
		log.WithError(err).Error("Sync run aborted during reconciliation")
		return result
	}
	result.ReconcileCreated = created
	result.ReconcileUpdated = updated

	result.Success = true
	log.WithFields(logrus.Fields{
		"fetched":           result.Fetched,
		"created":           result.Created,
		"updated":           result.Updated,
		"failed":            result.Failed,
		"reconcile_created": created,
		"reconcile_updated": updated,
	}).Info("Sync run completed")

	return result
}

// finish records the outcome and returns the state machine to Idle. It
// runs on every exit path so a failed run can never leave Running set.
// Only the run that currently owns the window may release it; a run
// superseded by a stale takeover or ForceRelease is discarded here.
func (s *SyncService) finish(result *models.SyncResult) {
	now := time.Now()
	result.FinishedAt = &now
	result.DurationMs = now.Sub(result.StartedAt).Milliseconds()

	s.mtx.Lock()
	defer s.mtx.Unlock()

	if s.currentRunID != result.RunID {
		logrus.WithField("run_id", result.RunID).
			Warn("Discarding result of superseded sync run")
		return
	}

	s.lastResult = result
	s.stats.TotalRuns++
	if result.Success {
		s.stats.SuccessRuns++
		metrics.SyncRuns.WithLabelValues("success").Inc()
	} else {
		s.stats.FailedRuns++
		metrics.SyncRuns.WithLabelValues("failed").Inc()
	}
	s.totalDurationMs += result.DurationMs
	s.stats.AvgDurationMs = s.totalDurationMs / s.stats.TotalRuns

	s.state = models.SyncStateIdle
	metrics.SyncRunning.Set(0)
	metrics.SyncDuration.Observe(float64(result.DurationMs) / 1000)
}

// Reconcile merges every staging row into the internal licenses table:
// create-if-missing with dashboard defaults, otherwise update
// provider-owned fields only. Running it twice on the same staging
// snapshot leaves the internal table unchanged.
func (s *SyncService) Reconcile() (created, updated int, err error) {
	batchSize := s.cfg.ReconcileBatch
	if batchSize <= 0 {
		batchSize = 500
	}

	err = s.stagingRepo.ListInBatches(batchSize, func(batch []models.ExternalLicense) error {
		for i := range batch {
			staging := batch[i]

			existing, err := s.licenseRepo.GetByAppID(staging.AppID)
			if err != nil {
				return fmt.Errorf("lookup for appid %s failed: %w", staging.AppID, err)
			}

			if existing == nil {
				license := newLicenseFromStaging(staging)
				if err := s.licenseRepo.Create(license); err != nil {
					return fmt.Errorf("create for appid %s failed: %w", staging.AppID, err)
				}
				created++
				continue
			}

			updates := providerUpdates(staging)
			if err := s.licenseRepo.UpdateColumns(existing.ID, updates); err != nil {
				return fmt.Errorf("update for appid %s failed: %w", staging.AppID, err)
			}
			updated++
		}
		return nil
	})

	return created, updated, err
}

// Status returns a snapshot of the run state for the polling endpoint.
func (s *SyncService) Status() models.SyncStatus {
	s.mtx.Lock()
	defer s.mtx.Unlock()

	status := models.SyncStatus{
		Enabled:        s.enabled,
		Running:        s.state == models.SyncStateRunning,
		State:          s.state,
		LastSyncResult: s.lastResult,
		Statistics:     s.stats,
	}
	if status.Running {
		startedAt := s.startedAt
		status.StartedAt = &startedAt
	}

	return status
}

// ForceRelease drops a stuck Running state. Manual recovery path; the
// bounded staleness check in tryStart covers the automatic one.
func (s *SyncService) ForceRelease() bool {
	s.mtx.Lock()
	defer s.mtx.Unlock()

	if s.state != models.SyncStateRunning {
		return false
	}

	logrus.WithField("started_at", s.startedAt).Warn("Sync run state force released")
	s.state = models.SyncStateIdle
	s.currentRunID = ""
	metrics.SyncRunning.Set(0)
	return true
}

// packageLabels maps provider entitlement flags to the human-readable plan
// labels shown in the dashboard. Order here fixes the label order in Plan.
var packageLabels = []struct {
	flag  string
	label string
}{
	{"basic", "Basic"},
	{"print_check", "Print Check"},
	{"staff_performance", "Staff Performance"},
	{"sms_package_6000", "SMS Package 6000"},
}

// PlanFromPackage expands the provider's package flags into the
// comma-joined plan label list.
func PlanFromPackage(pkg models.JSONB) string {
	if pkg == nil {
		return ""
	}

	var labels []string
	for _, pl := range packageLabels {
		value, ok := pkg[pl.flag]
		if !ok {
			continue
		}
		if enabled, ok := value.(bool); ok && enabled {
			labels = append(labels, pl.label)
			continue
		}
		if n, ok := value.(float64); ok && n != 0 {
			labels = append(labels, pl.label)
		}
	}

	return strings.Join(labels, ", ")
}

// providerUpdates maps one staging row onto internal column updates,
// restricted to fields the provider owns per models.LicenseFieldOwners.
// Dashboard-owned fields never appear in the returned map.
func providerUpdates(staging models.ExternalLicense) map[string]interface{} {
	all := map[string]interface{}{
		"appid":         staging.AppID,
		"dba":           staging.DBA,
		"zip":           staging.Zip,
		"status":        staging.Status,
		"starts_at":     staging.ActivateDate,
		"due_date":      staging.ComingExpired,
		"plan":          PlanFromPackage(staging.Package),
		"last_payment":  staging.MonthlyFee,
		"sms_balance":   staging.SmsBalance,
		"sms_purchased": staging.SmsPurchased,
		"sms_sent":      staging.SmsSent,
	}

	updates := make(map[string]interface{}, len(all))
	for column, value := range all {
		if models.LicenseFieldOwners[column] == models.FieldOwnerProvider {
			updates[column] = value
		}
	}
	return updates
}

// newLicenseFromStaging builds a fresh internal record for a provider
// license with no internal match, with defaults for dashboard-owned
// fields.
func newLicenseFromStaging(staging models.ExternalLicense) *models.License {
	appID := staging.AppID
	return &models.License{
		AppID:        &appID,
		DBA:          staging.DBA,
		Zip:          staging.Zip,
		Status:       models.LicenseStatus(staging.Status),
		StartsAt:     staging.ActivateDate,
		DueDate:      staging.ComingExpired,
		Plan:         PlanFromPackage(staging.Package),
		Term:         models.LicenseTermMonthly,
		LastPayment:  staging.MonthlyFee,
		SmsBalance:   staging.SmsBalance,
		SmsPurchased: staging.SmsPurchased,
		SmsSent:      staging.SmsSent,
	}
}
