package core

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Reconciler diffs normalized records against a tenant's catalog and applies
// the result as one atomic change set.
type Reconciler struct {
	store CatalogStore
	locks *TenantLocks
	now   func() time.Time
}

// NewReconciler creates a reconciler. locks may be shared with other
// reconcilers writing to the same store.
func NewReconciler(store CatalogStore, locks *TenantLocks) *Reconciler {
	if locks == nil {
		locks = NewTenantLocks()
	}
	return &Reconciler{store: store, locks: locks, now: time.Now}
}

// Reconcile brings the tenant's catalog in line with records.
//
// The in-process tenant lock and the store's own tenant lock are both held
// from the read of the current catalog until the change set is written.
// Stats.Errors is left for the caller, which owns the parse errors. On a
// store failure no stats are returned and the catalog is unchanged.
func (r *Reconciler) Reconcile(ctx context.Context, tenantID int64, records []CatalogRecord) (SyncStats, error) {
	if len(records) == 0 {
		return SyncStats{}, nil
	}

	unlock, err := r.locks.Lock(ctx, tenantID)
	if err != nil {
		return SyncStats{}, err
	}
	defer unlock()

	var (
		stats   SyncStats
		planned bool
	)
	err = r.store.SyncProducts(ctx, tenantID, func(existing []Product) (ChangeSet, error) {
		planned = true
		var changes ChangeSet
		changes, stats = Diff(tenantID, existing, records, r.now())
		return changes, nil
	})
	switch {
	case err != nil && !planned:
		return SyncStats{}, storeError("list products", err)
	case err != nil:
		return SyncStats{}, storeError("apply changes", err)
	}
	return stats, nil
}

// Diff computes the change set that turns existing into records.
//
// Records sharing a normalized name collapse to the last one and count once.
// A matching product whose synchronized fields all equal the record's is left
// alone; otherwise it is updated in place keeping its ID and name. Unmatched
// records become new products.
func Diff(tenantID int64, existing []Product, records []CatalogRecord, now time.Time) (ChangeSet, SyncStats) {
	index := make(map[string]Product, len(existing))
	for _, p := range existing {
		index[p.Key()] = p
	}

	order := make([]string, 0, len(records))
	latest := make(map[string]CatalogRecord, len(records))
	for _, rec := range records {
		key := rec.Key()
		if _, seen := latest[key]; !seen {
			order = append(order, key)
		}
		latest[key] = rec
	}

	var changes ChangeSet
	var stats SyncStats
	for _, key := range order {
		rec := latest[key]
		current, ok := index[key]
		switch {
		case !ok:
			changes.Create = append(changes.Create, Product{
				ID:          uuid.NewString(),
				TenantID:    tenantID,
				Name:        rec.Name,
				Price:       rec.Price,
				Category:    rec.Category,
				Description: rec.Description,
				Available:   rec.Available,
				UpdatedAt:   now,
			})
			stats.Created++
		case current.Matches(rec):
			stats.Unchanged++
		default:
			updated := current.WithRecord(rec)
			updated.UpdatedAt = now
			changes.Update = append(changes.Update, updated)
			stats.Updated++
		}
	}
	return changes, stats
}
