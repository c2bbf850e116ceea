package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/JonMunkholm/menusync/internal/core"
)

// Schedules is a core.ScheduleStore backed by the sync_schedules table.
type Schedules struct {
	pool *pgxpool.Pool
}

func NewSchedules(pool *pgxpool.Pool) *Schedules {
	return &Schedules{pool: pool}
}

const scheduleColumns = `restaurant_id, sync_type, schedule_type, schedule_time, source, last_sync, created_at`

func (s *Schedules) ListAllSchedules(ctx context.Context) ([]core.ScheduleDefinition, error) {
	return s.query(ctx, `SELECT `+scheduleColumns+` FROM sync_schedules ORDER BY restaurant_id, sync_type`)
}

func (s *Schedules) ListSchedules(ctx context.Context, tenantID int64) ([]core.ScheduleDefinition, error) {
	return s.query(ctx, `SELECT `+scheduleColumns+` FROM sync_schedules WHERE restaurant_id = $1 ORDER BY sync_type`, tenantID)
}

func (s *Schedules) GetSchedule(ctx context.Context, slot core.SlotKey) (core.ScheduleDefinition, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+scheduleColumns+` FROM sync_schedules WHERE restaurant_id = $1 AND sync_type = $2`,
		slot.TenantID, string(slot.SyncType))

	def, err := scanSchedule(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return core.ScheduleDefinition{}, core.ErrScheduleNotFound
	}
	if err != nil {
		return core.ScheduleDefinition{}, fmt.Errorf("get schedule %s: %w", slot, err)
	}
	return def, nil
}

const upsertSchedule = `
INSERT INTO sync_schedules (` + scheduleColumns + `)
VALUES ($1, $2, $3, $4, $5, $6, $7)
ON CONFLICT (restaurant_id, sync_type) DO UPDATE SET
    schedule_type = EXCLUDED.schedule_type,
    schedule_time = EXCLUDED.schedule_time,
    source        = EXCLUDED.source,
    last_sync     = EXCLUDED.last_sync,
    created_at    = EXCLUDED.created_at`

func (s *Schedules) SaveSchedule(ctx context.Context, def core.ScheduleDefinition) error {
	_, err := s.pool.Exec(ctx, upsertSchedule,
		def.TenantID, string(def.SyncType), string(def.ScheduleType), def.ScheduleTime,
		def.Source, def.LastSync, def.CreatedAt.UTC())
	if err != nil {
		return fmt.Errorf("save schedule %s: %w", def.Slot(), err)
	}
	return nil
}

func (s *Schedules) DeleteSchedule(ctx context.Context, slot core.SlotKey) (bool, error) {
	tag, err := s.pool.Exec(ctx,
		`DELETE FROM sync_schedules WHERE restaurant_id = $1 AND sync_type = $2`,
		slot.TenantID, string(slot.SyncType))
	if err != nil {
		return false, fmt.Errorf("delete schedule %s: %w", slot, err)
	}
	return tag.RowsAffected() > 0, nil
}

func (s *Schedules) MarkSynced(ctx context.Context, slot core.SlotKey, at time.Time) (bool, error) {
	tag, err := s.pool.Exec(ctx,
		`UPDATE sync_schedules SET last_sync = $3 WHERE restaurant_id = $1 AND sync_type = $2`,
		slot.TenantID, string(slot.SyncType), at.UTC())
	if err != nil {
		return false, fmt.Errorf("mark schedule %s synced: %w", slot, err)
	}
	return tag.RowsAffected() > 0, nil
}

func (s *Schedules) query(ctx context.Context, sql string, args ...any) ([]core.ScheduleDefinition, error) {
	rows, err := s.pool.Query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("query schedules: %w", err)
	}
	defer rows.Close()

	var result []core.ScheduleDefinition
	for rows.Next() {
		def, err := scanSchedule(rows)
		if err != nil {
			return nil, fmt.Errorf("scan schedule: %w", err)
		}
		result = append(result, def)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate schedules: %w", err)
	}
	return result, nil
}

func scanSchedule(row pgx.Row) (core.ScheduleDefinition, error) {
	var (
		def          core.ScheduleDefinition
		syncType     string
		scheduleType string
	)
	err := row.Scan(&def.TenantID, &syncType, &scheduleType, &def.ScheduleTime, &def.Source, &def.LastSync, &def.CreatedAt)
	if err != nil {
		return core.ScheduleDefinition{}, err
	}
	def.SyncType = core.SyncType(syncType)
	def.ScheduleType = core.ScheduleType(scheduleType)
	return def, nil
}
