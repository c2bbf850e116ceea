package app

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JonMunkholm/menusync/internal/config"
	"github.com/JonMunkholm/menusync/internal/core"
	_ "github.com/JonMunkholm/menusync/internal/core/formats"
)

func memoryConfig(t *testing.T, extra map[string]string) *config.Config {
	t.Helper()
	vars := map[string]string{
		"SYNC_CATALOG_STORE":  "memory",
		"SYNC_SCHEDULE_STORE": "memory",
		"SYNC_WAIT_TIMEOUT":   "5s",
		"SYNC_TIMEZONE":       "UTC",
	}
	for k, v := range extra {
		vars[k] = v
	}
	cfg, err := config.LoadFrom(func(k string) string { return vars[k] })
	require.NoError(t, err)
	return cfg
}

func TestNewWithMemoryBackends(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "menu.csv"),
		[]byte("nombre,precio\nTaco,1000\nBurrito,2500\n"), 0o600))

	cfg := memoryConfig(t, map[string]string{"SYNC_SOURCE_DIR": dir})
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	a, err := New(ctx, cfg)
	require.NoError(t, err)
	assert.Nil(t, a.DB, "memory backends need no database")
	require.NoError(t, a.Start(ctx))

	_, err = a.Service.CreateSchedule(ctx, core.ScheduleDefinition{
		TenantID:     5,
		SyncType:     core.SyncTypeFile,
		ScheduleType: core.ScheduleDaily,
		ScheduleTime: "04:00",
		Source:       "menu.csv",
	})
	require.NoError(t, err)

	result := a.Service.TriggerNow(ctx, 5, core.SyncTypeFile)
	require.True(t, result.Success, result.Error)
	assert.Equal(t, 2, result.Stats.Created)

	status := a.Service.Status()
	assert.True(t, status.Running)
	assert.Equal(t, "UTC", status.Location)
	assert.Equal(t, 1, status.TotalSchedules)

	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancelShutdown()
	require.NoError(t, a.Shutdown(shutdownCtx))
	assert.False(t, a.Service.Status().Running)
}

func TestDrainWaitsForQueuedWork(t *testing.T) {
	ctx := context.Background()
	a, err := New(ctx, memoryConfig(t, nil))
	require.NoError(t, err)
	require.NoError(t, a.Start(ctx))
	t.Cleanup(func() { _ = a.Shutdown(context.Background()) })

	release := make(chan struct{})
	require.NoError(t, a.Pool.Submit(ctx, func(context.Context) { <-release }))

	short, cancel := context.WithTimeout(ctx, 50*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, a.Drain(short), context.DeadlineExceeded)
	assert.False(t, a.Service.Status().Running, "drain stops new scheduled fires")

	close(release)
	require.NoError(t, a.Drain(ctx))
	assert.Equal(t, 0, a.Pool.Status().Active)
}

func TestNewRejectsUnknownBackend(t *testing.T) {
	cfg := memoryConfig(t, nil)
	cfg.Sync.CatalogStore = "sqlite"

	_, err := New(context.Background(), cfg)
	require.Error(t, err)
	assert.Contains(t, err.Error(), `unsupported catalog store "sqlite"`)
}
