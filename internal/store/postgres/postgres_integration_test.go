//go:build integration

package postgres

import (
	"context"
	"fmt"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/ory/dockertest/v3"
	"github.com/ory/dockertest/v3/docker"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JonMunkholm/menusync/internal/core"
)

var testPool *pgxpool.Pool

func TestMain(m *testing.M) {
	dockerPool, err := dockertest.NewPool("")
	if err != nil {
		fmt.Fprintf(os.Stderr, "connect to docker: %v\n", err)
		os.Exit(1)
	}

	resource, err := dockerPool.RunWithOptions(&dockertest.RunOptions{
		Repository: "postgres",
		Tag:        "16-alpine",
		Env: []string{
			"POSTGRES_USER=menusync",
			"POSTGRES_PASSWORD=menusync",
			"POSTGRES_DB=menusync",
		},
	}, func(hc *docker.HostConfig) {
		hc.AutoRemove = true
		hc.RestartPolicy = docker.RestartPolicy{Name: "no"}
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "start postgres: %v\n", err)
		os.Exit(1)
	}
	_ = resource.Expire(300)

	url := fmt.Sprintf("postgres://menusync:menusync@%s/menusync?sslmode=disable", resource.GetHostPort("5432/tcp"))
	ctx := context.Background()

	dockerPool.MaxWait = 60 * time.Second
	err = dockerPool.Retry(func() error {
		testPool, err = Open(ctx, url, PoolOptions{MaxConns: 8})
		return err
	})
	if err == nil {
		err = Migrate(ctx, testPool, "up")
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "prepare database: %v\n", err)
		_ = dockerPool.Purge(resource)
		os.Exit(1)
	}

	code := m.Run()

	testPool.Close()
	_ = dockerPool.Purge(resource)
	os.Exit(code)
}

func TestCatalogReconcileRoundTrip(t *testing.T) {
	ctx := context.Background()
	catalog := NewCatalog(testPool)
	r := core.NewReconciler(catalog, core.NewTenantLocks())
	tenant := time.Now().UnixNano()

	records := []core.CatalogRecord{
		{Name: "Taco", Price: decimal.RequireFromString("12.50"), Category: "tacos", Available: true},
		{Name: "Agua", Price: decimal.NewFromInt(15), Category: core.UncategorizedCategory, Available: true},
	}
	stats, err := r.Reconcile(ctx, tenant, records)
	require.NoError(t, err)
	assert.Equal(t, 2, stats.Created)

	stats, err = r.Reconcile(ctx, tenant, records)
	require.NoError(t, err)
	assert.Equal(t, 0, stats.Created)
	assert.Equal(t, 0, stats.Updated)

	records[0].Price = decimal.RequireFromString("13")
	stats, err = r.Reconcile(ctx, tenant, records)
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Updated)

	products, err := catalog.ListProducts(ctx, tenant)
	require.NoError(t, err)
	require.Len(t, products, 2)
	assert.Equal(t, "Agua", products[0].Name)
	assert.True(t, products[1].Price.Equal(decimal.NewFromInt(13)))
}

func TestCatalogApplyChangesRollsBack(t *testing.T) {
	ctx := context.Background()
	catalog := NewCatalog(testPool)
	tenant := time.Now().UnixNano()

	err := catalog.ApplyChanges(ctx, tenant, core.ChangeSet{
		Create: []core.Product{{Name: "Taco", Price: decimal.NewFromInt(1), Category: "x", Available: true}},
		Update: []core.Product{{ID: "00000000-0000-0000-0000-000000000000", Price: decimal.NewFromInt(2), UpdatedAt: time.Now()}},
	})
	require.Error(t, err)

	products, err := catalog.ListProducts(ctx, tenant)
	require.NoError(t, err)
	assert.Empty(t, products, "failed batch leaves no rows behind")
}

func TestCatalogSyncProductsAcrossNodes(t *testing.T) {
	ctx := context.Background()
	tenant := time.Now().UnixNano()
	nodes := []*core.Reconciler{
		core.NewReconciler(NewCatalog(testPool), core.NewTenantLocks()),
		core.NewReconciler(NewCatalog(testPool), core.NewTenantLocks()),
	}
	records := []core.CatalogRecord{{Name: "Taco", Price: decimal.NewFromInt(1000), Category: "tacos", Available: true}}

	stats := make([]core.SyncStats, len(nodes))
	errs := make([]error, len(nodes))
	var wg sync.WaitGroup
	for i, r := range nodes {
		wg.Add(1)
		go func() {
			defer wg.Done()
			stats[i], errs[i] = r.Reconcile(ctx, tenant, records)
		}()
	}
	wg.Wait()

	for _, err := range errs {
		require.NoError(t, err, "the second node reads the first node's commit instead of hitting a duplicate key")
	}
	assert.Equal(t, 1, stats[0].Created+stats[1].Created)

	products, err := NewCatalog(testPool).ListProducts(ctx, tenant)
	require.NoError(t, err)
	assert.Len(t, products, 1)
}

func TestCatalogSyncProductsHoldsLockWhilePlanning(t *testing.T) {
	ctx := context.Background()
	catalog := NewCatalog(testPool)
	tenant := time.Now().UnixNano()
	other := make(chan error, 1)

	err := catalog.SyncProducts(ctx, tenant, func(existing []core.Product) (core.ChangeSet, error) {
		go func() {
			other <- catalog.ApplyChanges(ctx, tenant, core.ChangeSet{
				Create: []core.Product{{Name: "Taco", Price: decimal.NewFromInt(1), Category: "x", Available: true}},
			})
		}()
		select {
		case err := <-other:
			t.Errorf("concurrent write committed between read and write: %v", err)
		case <-time.After(200 * time.Millisecond):
		}
		return core.ChangeSet{
			Create: []core.Product{{Name: "Taco", Price: decimal.NewFromInt(2), Category: "x", Available: true}},
		}, nil
	})
	require.NoError(t, err)

	err = <-other
	require.Error(t, err, "unique (restaurant_id, name_key) rejects the late writer")
	assert.Contains(t, err.Error(), "duplicate key")
}

func TestSchedulesStore(t *testing.T) {
	ctx := context.Background()
	s := NewSchedules(testPool)
	tenant := time.Now().UnixNano()
	slot := core.SlotKey{TenantID: tenant, SyncType: core.SyncTypeFile}

	_, err := s.GetSchedule(ctx, slot)
	assert.ErrorIs(t, err, core.ErrScheduleNotFound)

	def := core.ScheduleDefinition{
		TenantID:     tenant,
		SyncType:     core.SyncTypeFile,
		ScheduleType: core.ScheduleDaily,
		ScheduleTime: "09:00",
		Source:       "/data/menu.csv",
		CreatedAt:    time.Now().UTC().Truncate(time.Microsecond),
	}
	require.NoError(t, s.SaveSchedule(ctx, def))

	def.ScheduleTime = "10:30"
	require.NoError(t, s.SaveSchedule(ctx, def), "saving again replaces the slot")

	got, err := s.GetSchedule(ctx, slot)
	require.NoError(t, err)
	assert.Equal(t, "10:30", got.ScheduleTime)
	assert.Nil(t, got.LastSync)

	at := time.Now().UTC().Truncate(time.Microsecond)
	ok, err := s.MarkSynced(ctx, slot, at)
	require.NoError(t, err)
	assert.True(t, ok)

	got, err = s.GetSchedule(ctx, slot)
	require.NoError(t, err)
	require.NotNil(t, got.LastSync)
	assert.True(t, got.LastSync.Equal(at))

	list, err := s.ListSchedules(ctx, tenant)
	require.NoError(t, err)
	assert.Len(t, list, 1)

	removed, err := s.DeleteSchedule(ctx, slot)
	require.NoError(t, err)
	assert.True(t, removed)

	ok, err = s.MarkSynced(ctx, slot, at)
	require.NoError(t, err)
	assert.False(t, ok, "mark never recreates a removed slot")
}
