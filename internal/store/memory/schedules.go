package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/JonMunkholm/menusync/internal/core"
)

// Schedules is an in-memory core.ScheduleStore. Definitions do not survive
// a restart.
type Schedules struct {
	mu   sync.RWMutex
	defs map[core.SlotKey]core.ScheduleDefinition
}

// NewSchedules returns an empty schedule store.
func NewSchedules() *Schedules {
	return &Schedules{defs: make(map[core.SlotKey]core.ScheduleDefinition)}
}

func (s *Schedules) ListAllSchedules(ctx context.Context) ([]core.ScheduleDefinition, error) {
	return s.list(ctx, func(core.ScheduleDefinition) bool { return true })
}

func (s *Schedules) ListSchedules(ctx context.Context, tenantID int64) ([]core.ScheduleDefinition, error) {
	return s.list(ctx, func(d core.ScheduleDefinition) bool { return d.TenantID == tenantID })
}

func (s *Schedules) list(ctx context.Context, keep func(core.ScheduleDefinition) bool) ([]core.ScheduleDefinition, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []core.ScheduleDefinition
	for _, d := range s.defs {
		if keep(d) {
			result = append(result, d)
		}
	}
	sort.Slice(result, func(i, j int) bool {
		if result[i].TenantID != result[j].TenantID {
			return result[i].TenantID < result[j].TenantID
		}
		return result[i].SyncType < result[j].SyncType
	})
	return result, nil
}

func (s *Schedules) GetSchedule(ctx context.Context, slot core.SlotKey) (core.ScheduleDefinition, error) {
	if err := ctx.Err(); err != nil {
		return core.ScheduleDefinition{}, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	d, ok := s.defs[slot]
	if !ok {
		return core.ScheduleDefinition{}, core.ErrScheduleNotFound
	}
	return d, nil
}

func (s *Schedules) SaveSchedule(ctx context.Context, def core.ScheduleDefinition) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.defs[def.Slot()] = def
	return nil
}

func (s *Schedules) DeleteSchedule(ctx context.Context, slot core.SlotKey) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	_, ok := s.defs[slot]
	delete(s.defs, slot)
	return ok, nil
}

func (s *Schedules) MarkSynced(ctx context.Context, slot core.SlotKey, at time.Time) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	d, ok := s.defs[slot]
	if !ok {
		return false, nil
	}
	at = at.UTC()
	d.LastSync = &at
	s.defs[slot] = d
	return true, nil
}
