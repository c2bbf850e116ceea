package core

import (
	"context"
	"time"
)

// CatalogStore is the authoritative product repository, keyed by tenant and
// normalized name.
type CatalogStore interface {
	// ListProducts returns every product of a tenant.
	ListProducts(ctx context.Context, tenantID int64) ([]Product, error)

	// ApplyChanges writes a change set atomically: either every create and
	// update becomes visible or none does. Created products get their ID
	// assigned by the store when empty.
	ApplyChanges(ctx context.Context, tenantID int64, changes ChangeSet) error

	// SyncProducts reads the tenant's products, hands them to plan and writes
	// the change set plan returns, all under one tenant-exclusive lock held
	// by the store, so writers on other nodes cannot land between the read
	// and the write. An empty change set writes nothing.
	SyncProducts(ctx context.Context, tenantID int64, plan func(existing []Product) (ChangeSet, error)) error
}

// ScheduleStore persists schedule definitions, one per slot.
type ScheduleStore interface {
	ListAllSchedules(ctx context.Context) ([]ScheduleDefinition, error)
	ListSchedules(ctx context.Context, tenantID int64) ([]ScheduleDefinition, error)

	// GetSchedule returns ErrScheduleNotFound when the slot is empty.
	GetSchedule(ctx context.Context, slot SlotKey) (ScheduleDefinition, error)

	// SaveSchedule creates or replaces the slot's definition.
	SaveSchedule(ctx context.Context, def ScheduleDefinition) error

	// DeleteSchedule removes the slot. The bool reports whether it existed.
	DeleteSchedule(ctx context.Context, slot SlotKey) (bool, error)

	// MarkSynced sets last_sync on an existing slot. It never creates a slot;
	// the bool reports whether one was updated.
	MarkSynced(ctx context.Context, slot SlotKey, at time.Time) (bool, error)
}

// SourceFetcher retrieves the bytes behind a schedule's source.
type SourceFetcher interface {
	Fetch(ctx context.Context, source string) ([]byte, error)
}

// SyncEvent is published after every finished job.
type SyncEvent struct {
	JobID      string     `json:"job_id"`
	TenantID   int64      `json:"restaurant_id"`
	SyncType   SyncType   `json:"sync_type"`
	Trigger    Trigger    `json:"trigger"`
	Source     string     `json:"source"`
	Result     SyncResult `json:"result"`
	StartedAt  time.Time  `json:"started_at"`
	FinishedAt time.Time  `json:"finished_at"`
}

// EventPublisher receives finished-job events. Publishing failures are logged
// by the caller and never change a job's result.
type EventPublisher interface {
	PublishSyncResult(ctx context.Context, event SyncEvent) error
}

// NopPublisher discards events.
type NopPublisher struct{}

func (NopPublisher) PublishSyncResult(context.Context, SyncEvent) error { return nil }
