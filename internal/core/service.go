package core

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
)

// DefaultWaitTimeout bounds how long UploadAndSync and TriggerNow wait for a
// job before answering with a running status.
const DefaultWaitTimeout = 30 * time.Second

// Service is the facade the HTTP layer talks to. It validates parameters and
// delegates; the pipeline lives in Syncer, Reconciler and Scheduler.
type Service struct {
	jobs        *JobManager
	scheduler   *Scheduler
	waitTimeout time.Duration
}

// NewService wires the facade.
func NewService(jobs *JobManager, scheduler *Scheduler, waitTimeout time.Duration) *Service {
	if waitTimeout <= 0 {
		waitTimeout = DefaultWaitTimeout
	}
	return &Service{jobs: jobs, scheduler: scheduler, waitTimeout: waitTimeout}
}

// Scheduler returns the scheduler for lifecycle management.
func (s *Service) Scheduler() *Scheduler {
	return s.scheduler
}

// UploadAndSync runs a file sync for uploaded bytes and waits for its result.
func (s *Service) UploadAndSync(ctx context.Context, tenantID int64, data []byte, filename string) SyncResult {
	if tenantID <= 0 {
		return Failed("Invalid request", ErrInvalidTenant.Error())
	}
	if _, err := FormatFromFilename(filename); err != nil {
		return Failed("Sync failed", UserFacingError(err))
	}
	if len(data) == 0 {
		return Failed("Sync failed", UserFacingError(inputError("read upload", ErrEmptyFile)))
	}

	job, _, err := s.jobs.Enqueue(ctx, JobRequest{
		TenantID: tenantID,
		SyncType: SyncTypeFile,
		Filename: filename,
		Data:     data,
		Trigger:  TriggerUpload,
	}, nil)
	if err != nil {
		return Failed("Sync not started", UserFacingError(err))
	}
	return s.jobs.Wait(ctx, job, s.waitTimeout)
}

// CreateSchedule creates or replaces the schedule of a slot.
func (s *Service) CreateSchedule(ctx context.Context, def ScheduleDefinition) (ScheduleDefinition, error) {
	return s.scheduler.CreateOrReplace(ctx, def)
}

// ListSchedules returns a tenant's schedules.
func (s *Service) ListSchedules(ctx context.Context, tenantID int64) ([]ScheduleDefinition, error) {
	if tenantID <= 0 {
		return nil, ErrInvalidTenant
	}
	return s.scheduler.List(ctx, tenantID)
}

// ListAllSchedules returns every schedule.
func (s *Service) ListAllSchedules(ctx context.Context) ([]ScheduleDefinition, error) {
	return s.scheduler.ListAll(ctx)
}

// RemoveSchedule deletes one slot, or every slot of the tenant for
// SyncTypeAll. Absent slots are not an error.
func (s *Service) RemoveSchedule(ctx context.Context, tenantID int64, syncType SyncType) (int, error) {
	if tenantID <= 0 {
		return 0, ErrInvalidTenant
	}
	return s.scheduler.Remove(ctx, tenantID, syncType)
}

// TriggerNow runs the scheduled job of a slot immediately and waits for it.
// SyncTypeAll triggers every scheduled channel of the tenant.
func (s *Service) TriggerNow(ctx context.Context, tenantID int64, syncType SyncType) SyncResult {
	if tenantID <= 0 {
		return Failed("Invalid request", ErrInvalidTenant.Error())
	}
	types, err := expandSyncType(syncType)
	if err != nil {
		return Failed("Invalid request", UserFacingError(err))
	}

	var results []SyncResult
	for _, t := range types {
		slot := SlotKey{TenantID: tenantID, SyncType: t}
		job, coalesced, err := s.scheduler.TriggerNow(ctx, slot)
		switch {
		case errors.Is(err, ErrScheduleNotFound) && len(types) > 1:
			continue
		case err != nil:
			results = append(results, Failed("Sync not started", UserFacingError(err)))
		case coalesced:
			r := Succeeded(SyncStats{}, fmt.Sprintf("Sync already in progress for %s", slot))
			r.Status = StatusCoalesced
			r.JobID = job.ID
			results = append(results, r)
		default:
			results = append(results, s.jobs.Wait(ctx, job, s.waitTimeout))
		}
	}

	switch len(results) {
	case 0:
		return Failed("Sync not started", UserFacingError(ErrScheduleNotFound))
	case 1:
		return results[0]
	default:
		return combineResults(results)
	}
}

// combineResults merges per-channel results: stats add up and the combined
// result succeeds only when every channel did.
func combineResults(results []SyncResult) SyncResult {
	var stats SyncStats
	var messages, errs []string
	ok := true
	for _, r := range results {
		messages = append(messages, r.Message)
		if !r.Success {
			ok = false
			errs = append(errs, r.Error)
			continue
		}
		if r.Stats != nil {
			stats.Created += r.Stats.Created
			stats.Updated += r.Stats.Updated
			stats.Errors += r.Stats.Errors
			stats.Unchanged += r.Stats.Unchanged
		}
	}

	msg := strings.Join(messages, "; ")
	if !ok {
		return Failed(msg, strings.Join(errs, "; "))
	}
	return Succeeded(stats, msg)
}

// JobResult returns the current result of a job for polling.
func (s *Service) JobResult(id string) (SyncResult, error) {
	job, err := s.jobs.Get(id)
	if err != nil {
		return SyncResult{}, err
	}
	return job.Snapshot(), nil
}

// Status reports scheduler and worker pool state.
func (s *Service) Status() SchedulerStatus {
	return s.scheduler.Status()
}

// Running reports whether a scheduled or manual sync of the slot is queued
// or running.
func (s *Service) Running(slot SlotKey) bool {
	return s.jobs.InFlight(slot)
}

// NextRun returns the next fire time of a slot.
func (s *Service) NextRun(slot SlotKey) (time.Time, bool) {
	return s.scheduler.NextRun(slot)
}
