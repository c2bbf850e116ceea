package core

import (
	"bytes"
	"context"
	"encoding/csv"
	"errors"
	"os"
	"sync"
	"testing"
	"time"
)

func TestMain(m *testing.M) {
	// Package formats registers the real parsers; core tests only need CSV.
	RegisterParser(FormatCSV, ParserFunc(func(ctx context.Context, data []byte, opts ParseOptions) ([]RawRow, []ParseError, error) {
		r := csv.NewReader(bytes.NewReader(data))
		r.FieldsPerRecord = -1
		records, err := r.ReadAll()
		if err != nil {
			return nil, nil, InputError("parse csv", ErrCorruptFile)
		}
		rows, err := BuildRows(records, ",")
		return rows, nil, err
	}))
	os.Exit(m.Run())
}

// ----------------------------------------------------------------------------
// Catalog store
// ----------------------------------------------------------------------------

type fakeCatalog struct {
	mu       sync.Mutex
	products map[int64][]Product
	listErr  error
	applyErr error
	applies  int
	syncs    int

	// delay is slept inside ApplyChanges to widen race windows.
	delay   time.Duration
	writing map[int64]int
	overlap bool
}

func newFakeCatalog() *fakeCatalog {
	return &fakeCatalog{
		products: make(map[int64][]Product),
		writing:  make(map[int64]int),
	}
}

func (f *fakeCatalog) ListProducts(ctx context.Context, tenantID int64) ([]Product, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.listErr != nil {
		return nil, f.listErr
	}
	return append([]Product(nil), f.products[tenantID]...), nil
}

// SyncProducts takes no store-side lock, so tests can tell whether the
// reconciler's own tenant lock keeps writers apart.
func (f *fakeCatalog) SyncProducts(ctx context.Context, tenantID int64, plan func([]Product) (ChangeSet, error)) error {
	f.mu.Lock()
	f.syncs++
	f.mu.Unlock()

	existing, err := f.ListProducts(ctx, tenantID)
	if err != nil {
		return err
	}
	changes, err := plan(existing)
	if err != nil {
		return err
	}
	if changes.Empty() {
		return nil
	}
	return f.ApplyChanges(ctx, tenantID, changes)
}

func (f *fakeCatalog) ApplyChanges(ctx context.Context, tenantID int64, changes ChangeSet) error {
	f.mu.Lock()
	f.writing[tenantID]++
	if f.writing[tenantID] > 1 {
		f.overlap = true
	}
	delay := f.delay
	f.mu.Unlock()

	time.Sleep(delay)

	f.mu.Lock()
	defer f.mu.Unlock()
	f.writing[tenantID]--
	f.applies++

	if f.applyErr != nil {
		return f.applyErr
	}

	current := f.products[tenantID]
	for _, u := range changes.Update {
		for i := range current {
			if current[i].ID == u.ID {
				current[i] = u
			}
		}
	}
	f.products[tenantID] = append(current, changes.Create...)
	return nil
}

func (f *fakeCatalog) find(tenantID int64, name string) (Product, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, p := range f.products[tenantID] {
		if p.Key() == NormalizeKey(name) {
			return p, true
		}
	}
	return Product{}, false
}

func (f *fakeCatalog) count(tenantID int64) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.products[tenantID])
}

// ----------------------------------------------------------------------------
// Schedule store
// ----------------------------------------------------------------------------

type fakeSchedules struct {
	mu    sync.Mutex
	defs  map[SlotKey]ScheduleDefinition
	marks int
}

func newFakeSchedules(defs ...ScheduleDefinition) *fakeSchedules {
	f := &fakeSchedules{defs: make(map[SlotKey]ScheduleDefinition)}
	for _, d := range defs {
		f.defs[d.Slot()] = d
	}
	return f
}

func (f *fakeSchedules) ListAllSchedules(ctx context.Context) ([]ScheduleDefinition, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []ScheduleDefinition
	for _, d := range f.defs {
		out = append(out, d)
	}
	return out, nil
}

func (f *fakeSchedules) ListSchedules(ctx context.Context, tenantID int64) ([]ScheduleDefinition, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []ScheduleDefinition
	for slot, d := range f.defs {
		if slot.TenantID == tenantID {
			out = append(out, d)
		}
	}
	return out, nil
}

func (f *fakeSchedules) GetSchedule(ctx context.Context, slot SlotKey) (ScheduleDefinition, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	d, ok := f.defs[slot]
	if !ok {
		return ScheduleDefinition{}, ErrScheduleNotFound
	}
	return d, nil
}

func (f *fakeSchedules) SaveSchedule(ctx context.Context, def ScheduleDefinition) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.defs[def.Slot()] = def
	return nil
}

func (f *fakeSchedules) DeleteSchedule(ctx context.Context, slot SlotKey) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	_, ok := f.defs[slot]
	delete(f.defs, slot)
	return ok, nil
}

func (f *fakeSchedules) MarkSynced(ctx context.Context, slot SlotKey, at time.Time) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	d, ok := f.defs[slot]
	if !ok {
		return false, nil
	}
	d.LastSync = &at
	f.defs[slot] = d
	f.marks++
	return true, nil
}

func (f *fakeSchedules) get(slot SlotKey) (ScheduleDefinition, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	d, ok := f.defs[slot]
	return d, ok
}

func (f *fakeSchedules) markCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.marks
}

// ----------------------------------------------------------------------------
// Source fetcher
// ----------------------------------------------------------------------------

// fakeFetcher serves files from memory. When gate is set, every Fetch blocks
// until the gate is closed. panics makes that many Fetch calls panic.
type fakeFetcher struct {
	mu      sync.Mutex
	files   map[string][]byte
	gate    chan struct{}
	fetches int
	panics  int
}

func newFakeFetcher() *fakeFetcher {
	return &fakeFetcher{files: make(map[string][]byte)}
}

func (f *fakeFetcher) put(path, content string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.files[path] = []byte(content)
}

func (f *fakeFetcher) Fetch(ctx context.Context, source string) ([]byte, error) {
	f.mu.Lock()
	f.fetches++
	gate := f.gate
	data, ok := f.files[source]
	boom := f.panics > 0
	if boom {
		f.panics--
	}
	f.mu.Unlock()

	if boom {
		panic("fetch exploded")
	}

	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if !ok {
		return nil, InputError("fetch source", errors.New("source not found: "+source))
	}
	return data, nil
}

func (f *fakeFetcher) fetchCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.fetches
}

// ----------------------------------------------------------------------------
// Event publisher
// ----------------------------------------------------------------------------

type recordingPublisher struct {
	mu     sync.Mutex
	events []SyncEvent
}

func (p *recordingPublisher) PublishSyncResult(ctx context.Context, e SyncEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, e)
	return nil
}

func (p *recordingPublisher) count() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.events)
}

// ----------------------------------------------------------------------------
// Engine wiring
// ----------------------------------------------------------------------------

type testEnv struct {
	catalog   *fakeCatalog
	schedules *fakeSchedules
	fetcher   *fakeFetcher
	events    *recordingPublisher
	pool      *WorkerPool
	jobs      *JobManager
	scheduler *Scheduler
	service   *Service
}

func newTestEnv(t *testing.T, defs ...ScheduleDefinition) *testEnv {
	t.Helper()

	env := &testEnv{
		catalog:   newFakeCatalog(),
		schedules: newFakeSchedules(defs...),
		fetcher:   newFakeFetcher(),
		events:    &recordingPublisher{},
		pool:      NewWorkerPool(2, 10, time.Second),
	}

	syncer := NewSyncer(env.fetcher, NewReconciler(env.catalog, NewTenantLocks()), SyncerConfig{MaxFileSize: 1 << 20})
	env.jobs = NewJobManager(env.pool, syncer, env.events, time.Hour)
	env.scheduler = NewScheduler(env.schedules, env.jobs, time.UTC)
	env.service = NewService(env.jobs, env.scheduler, 2*time.Second)

	env.pool.Start(context.Background())
	t.Cleanup(func() {
		env.scheduler.Stop()
		env.pool.Stop(context.Background())
	})
	return env
}
