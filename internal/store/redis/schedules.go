// Package redis implements core.ScheduleStore on Redis for deployments that
// keep the catalog elsewhere but want schedules shared between nodes.
package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/JonMunkholm/menusync/internal/core"
)

const defaultPrefix = "menusync"

// maxWatchRetries bounds optimistic-lock retries in MarkSynced.
const maxWatchRetries = 5

// Schedules stores each definition as JSON under <prefix>:schedule:<slot>,
// with a global index set and one index set per tenant.
type Schedules struct {
	client *redis.Client
	prefix string
}

// NewClient parses a redis:// URL and verifies the connection.
func NewClient(ctx context.Context, url string) (*redis.Client, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	return client, nil
}

// NewSchedules returns a store using the given key prefix ("menusync" if empty).
func NewSchedules(client *redis.Client, prefix string) *Schedules {
	if prefix == "" {
		prefix = defaultPrefix
	}
	return &Schedules{client: client, prefix: prefix}
}

func (s *Schedules) key(slot core.SlotKey) string {
	return fmt.Sprintf("%s:schedule:%s", s.prefix, slot)
}

func (s *Schedules) indexKey() string {
	return s.prefix + ":schedules"
}

func (s *Schedules) tenantIndexKey(tenantID int64) string {
	return fmt.Sprintf("%s:schedules:restaurant:%d", s.prefix, tenantID)
}

func (s *Schedules) ListAllSchedules(ctx context.Context) ([]core.ScheduleDefinition, error) {
	return s.list(ctx, s.indexKey())
}

func (s *Schedules) ListSchedules(ctx context.Context, tenantID int64) ([]core.ScheduleDefinition, error) {
	return s.list(ctx, s.tenantIndexKey(tenantID))
}

func (s *Schedules) list(ctx context.Context, index string) ([]core.ScheduleDefinition, error) {
	keys, err := s.client.SMembers(ctx, index).Result()
	if err != nil {
		return nil, fmt.Errorf("list schedule keys: %w", err)
	}
	if len(keys) == 0 {
		return nil, nil
	}

	values, err := s.client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, fmt.Errorf("load schedules: %w", err)
	}

	result := make([]core.ScheduleDefinition, 0, len(values))
	for i, v := range values {
		raw, ok := v.(string)
		if !ok {
			// Index entry without a value; removed concurrently.
			continue
		}
		var def core.ScheduleDefinition
		if err := json.Unmarshal([]byte(raw), &def); err != nil {
			return nil, fmt.Errorf("decode schedule %s: %w", keys[i], err)
		}
		result = append(result, def)
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
	data, err := s.client.Get(ctx, s.key(slot)).Bytes()
	if errors.Is(err, redis.Nil) {
		return core.ScheduleDefinition{}, core.ErrScheduleNotFound
	}
	if err != nil {
		return core.ScheduleDefinition{}, fmt.Errorf("get schedule %s: %w", slot, err)
	}

	var def core.ScheduleDefinition
	if err := json.Unmarshal(data, &def); err != nil {
		return core.ScheduleDefinition{}, fmt.Errorf("decode schedule %s: %w", slot, err)
	}
	return def, nil
}

func (s *Schedules) SaveSchedule(ctx context.Context, def core.ScheduleDefinition) error {
	data, err := json.Marshal(def)
	if err != nil {
		return fmt.Errorf("encode schedule: %w", err)
	}

	key := s.key(def.Slot())
	_, err = s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, key, data, 0)
		pipe.SAdd(ctx, s.indexKey(), key)
		pipe.SAdd(ctx, s.tenantIndexKey(def.TenantID), key)
		return nil
	})
	if err != nil {
		return fmt.Errorf("save schedule %s: %w", def.Slot(), err)
	}
	return nil
}

func (s *Schedules) DeleteSchedule(ctx context.Context, slot core.SlotKey) (bool, error) {
	key := s.key(slot)
	var del *redis.IntCmd
	_, err := s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		del = pipe.Del(ctx, key)
		pipe.SRem(ctx, s.indexKey(), key)
		pipe.SRem(ctx, s.tenantIndexKey(slot.TenantID), key)
		return nil
	})
	if err != nil {
		return false, fmt.Errorf("delete schedule %s: %w", slot, err)
	}
	return del.Val() > 0, nil
}

// MarkSynced rewrites last_sync under WATCH so a concurrent delete is never
// undone by a late write.
func (s *Schedules) MarkSynced(ctx context.Context, slot core.SlotKey, at time.Time) (bool, error) {
	key := s.key(slot)
	updated := false

	txf := func(tx *redis.Tx) error {
		data, err := tx.Get(ctx, key).Bytes()
		if errors.Is(err, redis.Nil) {
			updated = false
			return nil
		}
		if err != nil {
			return err
		}

		var def core.ScheduleDefinition
		if err := json.Unmarshal(data, &def); err != nil {
			return fmt.Errorf("decode schedule: %w", err)
		}
		at := at.UTC()
		def.LastSync = &at
		out, err := json.Marshal(def)
		if err != nil {
			return fmt.Errorf("encode schedule: %w", err)
		}

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, out, 0)
			return nil
		})
		updated = err == nil
		return err
	}

	for i := 0; i < maxWatchRetries; i++ {
		err := s.client.Watch(ctx, txf, key)
		if errors.Is(err, redis.TxFailedErr) {
			continue
		}
		if err != nil {
			return false, fmt.Errorf("mark schedule %s synced: %w", slot, err)
		}
		return updated, nil
	}
	return false, fmt.Errorf("mark schedule %s synced: too much contention", slot)
}
