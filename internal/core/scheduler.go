package core

// scheduler.go owns recurring sync schedules.
//
// Each persisted ScheduleDefinition gets one cron entry. Fires do not run the
// sync themselves; they enqueue a job on the shared worker pool, so many
// tenants with schedules never mean many concurrent syncs.
//
// Fire times are wall-clock anchored in the configured location:
//   - daily fires at schedule_time (HH:MM)
//   - hourly fires every hour at the minute of the definition's created_at
//
// On Start, a slot whose next fire after its last_sync (or created_at when it
// never ran) is already in the past gets exactly one catch-up run, however
// many fires were missed.

import (
	"context"
	"fmt"
	"log/slog"
	"regexp"
	"slices"
	"sort"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/JonMunkholm/menusync/internal/logging"
)

// scheduleTimeRegex matches 24h "HH:MM".
var scheduleTimeRegex = regexp.MustCompile(`^([01]\d|2[0-3]):([0-5]\d)$`)

// ValidateSchedule checks a definition before it is persisted.
func ValidateSchedule(def ScheduleDefinition) error {
	if def.TenantID <= 0 {
		return &SyncError{Kind: KindSchedule, Err: fmt.Errorf("%w: restaurant_id must be positive", ErrInvalidSchedule)}
	}
	if !def.SyncType.Valid() {
		return scheduleError("unknown sync_type %q (want file or sheets)", def.SyncType)
	}
	if !slices.Contains(ScheduleTypes, def.ScheduleType) {
		return scheduleError("unknown schedule_type %q (want daily or hourly)", def.ScheduleType)
	}
	if def.ScheduleType == ScheduleDaily && !scheduleTimeRegex.MatchString(def.ScheduleTime) {
		return scheduleError("schedule_time %q must be HH:MM (24h)", def.ScheduleTime)
	}
	if def.SyncType == SyncTypeFile && def.Source == "" {
		return scheduleError("file_path is required")
	}
	return nil
}

// CronSpec returns the standard 5-field cron expression for a definition.
func CronSpec(def ScheduleDefinition, loc *time.Location) (string, error) {
	switch def.ScheduleType {
	case ScheduleDaily:
		m := scheduleTimeRegex.FindStringSubmatch(def.ScheduleTime)
		if m == nil {
			return "", scheduleError("schedule_time %q must be HH:MM (24h)", def.ScheduleTime)
		}
		return fmt.Sprintf("%s %s * * *", trimZero(m[2]), trimZero(m[1])), nil
	case ScheduleHourly:
		return fmt.Sprintf("%d * * * *", def.CreatedAt.In(loc).Minute()), nil
	default:
		return "", scheduleError("unknown schedule_type %q", def.ScheduleType)
	}
}

func trimZero(s string) string {
	if len(s) == 2 && s[0] == '0' {
		return s[1:]
	}
	return s
}

// cronSchedule parses the definition's spec and pins it to loc.
func cronSchedule(def ScheduleDefinition, loc *time.Location) (cron.Schedule, error) {
	spec, err := CronSpec(def, loc)
	if err != nil {
		return nil, err
	}
	sched, err := cron.ParseStandard(spec)
	if err != nil {
		return nil, scheduleError("%v", err)
	}
	if ss, ok := sched.(*cron.SpecSchedule); ok {
		ss.Location = loc
	}
	return sched, nil
}

// SchedulerStatus is reported by the status endpoint.
type SchedulerStatus struct {
	Running        bool             `json:"running"`
	TotalSchedules int              `json:"total_schedules"`
	ByType         map[SyncType]int `json:"by_sync_type"`
	ScheduleTypes  []ScheduleType   `json:"supported_schedule_types"`
	Location       string           `json:"timezone"`
	Pool           PoolStatus       `json:"worker_pool"`
}

// Scheduler maps schedule slots to cron entries.
type Scheduler struct {
	store ScheduleStore
	jobs  *JobManager
	loc   *time.Location
	cron  *cron.Cron
	now   func() time.Time

	mu      sync.Mutex
	entries map[SlotKey]cron.EntryID
	running bool
	baseCtx context.Context
}

// NewScheduler creates a stopped scheduler. A nil loc means time.Local.
func NewScheduler(store ScheduleStore, jobs *JobManager, loc *time.Location) *Scheduler {
	if loc == nil {
		loc = time.Local
	}
	errLog := slog.NewLogLogger(slog.Default().Handler(), slog.LevelError)
	return &Scheduler{
		store: store,
		jobs:  jobs,
		loc:   loc,
		cron: cron.New(
			cron.WithLocation(loc),
			cron.WithChain(cron.Recover(cron.PrintfLogger(errLog))),
		),
		now:     time.Now,
		entries: make(map[SlotKey]cron.EntryID),
		baseCtx: context.Background(),
	}
}

// Start installs an entry per persisted schedule, enqueues catch-up runs and
// starts the cron loop. Jobs enqueued by fires use ctx.
func (s *Scheduler) Start(ctx context.Context) error {
	defs, err := s.store.ListAllSchedules(ctx)
	if err != nil {
		return fmt.Errorf("load schedules: %w", err)
	}

	s.mu.Lock()
	s.baseCtx = ctx
	var catchUp []ScheduleDefinition
	for _, def := range defs {
		sched, err := s.installLocked(def)
		if err != nil {
			slog.Error("skipping invalid schedule", "slot", def.Slot().String(), "error", err)
			continue
		}
		if s.missedFire(def, sched) {
			catchUp = append(catchUp, def)
		}
	}
	s.running = true
	s.mu.Unlock()

	for _, def := range catchUp {
		s.fire(def.Slot(), TriggerCatchUp)
	}

	s.cron.Start()
	slog.Info("sync scheduler started",
		"schedules", len(defs),
		"catch_up_runs", len(catchUp),
		"timezone", s.loc.String(),
	)
	return nil
}

// Stop halts the cron loop. Jobs already enqueued keep running.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	s.running = false
	s.mu.Unlock()

	<-s.cron.Stop().Done()
	slog.Info("sync scheduler stopped")
}

func (s *Scheduler) missedFire(def ScheduleDefinition, sched cron.Schedule) bool {
	ref := def.CreatedAt
	if def.LastSync != nil {
		ref = *def.LastSync
	}
	if ref.IsZero() {
		return false
	}
	next := sched.Next(ref)
	return !next.After(s.now())
}

// installLocked (re)places the cron entry for a definition. s.mu must be held.
func (s *Scheduler) installLocked(def ScheduleDefinition) (cron.Schedule, error) {
	sched, err := cronSchedule(def, s.loc)
	if err != nil {
		return nil, err
	}

	slot := def.Slot()
	if id, ok := s.entries[slot]; ok {
		s.cron.Remove(id)
	}
	s.entries[slot] = s.cron.Schedule(sched, cron.FuncJob(func() {
		s.fire(slot, TriggerSchedule)
	}))
	return sched, nil
}

// fire enqueues the slot's job using the stored definition, so a replaced
// schedule always runs with its latest source.
func (s *Scheduler) fire(slot SlotKey, trigger Trigger) {
	s.mu.Lock()
	ctx := s.baseCtx
	s.mu.Unlock()

	if _, err := s.enqueue(ctx, slot, trigger); err != nil {
		slog.Error("scheduled sync not enqueued",
			"slot", slot.String(),
			"trigger", trigger,
			"error", err,
		)
	}
}

type enqueued struct {
	job       *Job
	coalesced bool
}

func (s *Scheduler) enqueue(ctx context.Context, slot SlotKey, trigger Trigger) (enqueued, error) {
	def, err := s.store.GetSchedule(ctx, slot)
	if err != nil {
		return enqueued{}, err
	}

	job, coalesced, err := s.jobs.Enqueue(ctx, JobRequest{
		TenantID: def.TenantID,
		SyncType: def.SyncType,
		Source:   def.Source,
		Trigger:  trigger,
	}, s.markSynced)
	if err != nil {
		return enqueued{}, err
	}
	return enqueued{job: job, coalesced: coalesced}, nil
}

// markSynced records the attempt on the slot, successful or not. A slot
// removed while its job ran is left absent.
func (s *Scheduler) markSynced(ctx context.Context, job *Job, result SyncResult) {
	log := logging.FromContext(ctx)
	updated, err := s.store.MarkSynced(context.WithoutCancel(ctx), job.Request.Slot(), s.now())
	switch {
	case err != nil:
		log.Error("update last_sync failed", "error", err)
	case !updated:
		log.Info("schedule removed while syncing, result discarded", "success", result.Success)
	}
}

// CreateOrReplace validates, persists and (re)installs a schedule. The
// previous timer of the slot, if any, is cancelled.
func (s *Scheduler) CreateOrReplace(ctx context.Context, def ScheduleDefinition) (ScheduleDefinition, error) {
	if def.CreatedAt.IsZero() {
		def.CreatedAt = s.now()
	}
	def.LastSync = nil
	if def.ScheduleType == ScheduleHourly {
		def.ScheduleTime = ""
	}

	if err := ValidateSchedule(def); err != nil {
		return ScheduleDefinition{}, err
	}
	if _, err := cronSchedule(def, s.loc); err != nil {
		return ScheduleDefinition{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.store.SaveSchedule(ctx, def); err != nil {
		return ScheduleDefinition{}, storeError("save schedule", err)
	}
	if _, err := s.installLocked(def); err != nil {
		return ScheduleDefinition{}, err
	}

	logging.FromContext(ctx).Info("schedule saved",
		"slot", def.Slot().String(),
		"schedule_type", def.ScheduleType,
		"schedule_time", def.ScheduleTime,
	)
	return def, nil
}

// Remove cancels and deletes a slot's schedule. SyncTypeAll removes every
// channel of the tenant. Removing an absent slot is not an error; the
// returned count says how many slots existed.
func (s *Scheduler) Remove(ctx context.Context, tenantID int64, syncType SyncType) (int, error) {
	types, err := expandSyncType(syncType)
	if err != nil {
		return 0, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	removed := 0
	for _, t := range types {
		slot := SlotKey{TenantID: tenantID, SyncType: t}
		if id, ok := s.entries[slot]; ok {
			s.cron.Remove(id)
			delete(s.entries, slot)
		}
		existed, err := s.store.DeleteSchedule(ctx, slot)
		if err != nil {
			return removed, storeError("delete schedule", err)
		}
		if existed {
			removed++
		}
	}
	return removed, nil
}

// TriggerNow enqueues the slot's job immediately. The cron entry is
// untouched, so the next scheduled fire does not move.
func (s *Scheduler) TriggerNow(ctx context.Context, slot SlotKey) (*Job, bool, error) {
	r, err := s.enqueue(ctx, slot, TriggerManual)
	if err != nil {
		return nil, false, err
	}
	return r.job, r.coalesced, nil
}

// List returns a tenant's schedules ordered by channel.
func (s *Scheduler) List(ctx context.Context, tenantID int64) ([]ScheduleDefinition, error) {
	defs, err := s.store.ListSchedules(ctx, tenantID)
	if err != nil {
		return nil, storeError("list schedules", err)
	}
	sort.Slice(defs, func(i, j int) bool { return defs[i].SyncType < defs[j].SyncType })
	return defs, nil
}

// ListAll returns every schedule.
func (s *Scheduler) ListAll(ctx context.Context) ([]ScheduleDefinition, error) {
	defs, err := s.store.ListAllSchedules(ctx)
	if err != nil {
		return nil, storeError("list schedules", err)
	}
	return defs, nil
}

// NextRun returns the next fire time of an installed slot.
func (s *Scheduler) NextRun(slot SlotKey) (time.Time, bool) {
	s.mu.Lock()
	id, ok := s.entries[slot]
	s.mu.Unlock()
	if !ok {
		return time.Time{}, false
	}
	entry := s.cron.Entry(id)
	if !entry.Valid() {
		return time.Time{}, false
	}
	if !entry.Next.IsZero() {
		return entry.Next, true
	}
	return entry.Schedule.Next(s.now()), true
}

// Status summarizes the installed schedules.
func (s *Scheduler) Status() SchedulerStatus {
	s.mu.Lock()
	defer s.mu.Unlock()

	byType := make(map[SyncType]int, len(SyncTypes))
	for _, t := range SyncTypes {
		byType[t] = 0
	}
	for slot := range s.entries {
		byType[slot.SyncType]++
	}

	return SchedulerStatus{
		Running:        s.running,
		TotalSchedules: len(s.entries),
		ByType:         byType,
		ScheduleTypes:  ScheduleTypes,
		Location:       s.loc.String(),
		Pool:           s.jobs.PoolStatus(),
	}
}

// expandSyncType resolves "all" (or empty) to every concrete channel.
func expandSyncType(t SyncType) ([]SyncType, error) {
	switch {
	case t == "" || t == SyncTypeAll:
		return SyncTypes, nil
	case t.Valid():
		return []SyncType{t}, nil
	default:
		return nil, scheduleError("unknown sync_type %q", t)
	}
}
