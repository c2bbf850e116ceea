// Package memory provides in-process catalog and schedule stores for
// development, tests and single-node deployments without a database.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/google/uuid"

	"github.com/JonMunkholm/menusync/internal/core"
)

// Catalog is an in-memory core.CatalogStore.
type Catalog struct {
	mu       sync.RWMutex
	products map[int64]map[string]core.Product // tenant -> normalized name -> product
}

// NewCatalog returns an empty catalog.
func NewCatalog() *Catalog {
	return &Catalog{products: make(map[int64]map[string]core.Product)}
}

// ListProducts returns the tenant's products ordered by name.
func (c *Catalog) ListProducts(ctx context.Context, tenantID int64) ([]core.Product, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.list(tenantID), nil
}

// ApplyChanges validates the whole change set before writing any of it.
func (c *Catalog) ApplyChanges(ctx context.Context, tenantID int64, changes core.ChangeSet) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	return c.apply(tenantID, changes)
}

// SyncProducts holds the write lock across the read, plan and write.
func (c *Catalog) SyncProducts(ctx context.Context, tenantID int64, plan func([]core.Product) (core.ChangeSet, error)) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	changes, err := plan(c.list(tenantID))
	if err != nil {
		return err
	}
	if changes.Empty() {
		return nil
	}
	return c.apply(tenantID, changes)
}

func (c *Catalog) list(tenantID int64) []core.Product {
	result := make([]core.Product, 0, len(c.products[tenantID]))
	for _, p := range c.products[tenantID] {
		result = append(result, p)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Key() < result[j].Key() })
	return result
}

func (c *Catalog) apply(tenantID int64, changes core.ChangeSet) error {
	existing := c.products[tenantID]
	byID := make(map[string]string, len(existing))
	for key, p := range existing {
		byID[p.ID] = key
	}

	creating := make(map[string]bool, len(changes.Create))
	for _, p := range changes.Create {
		key := p.Key()
		if _, ok := existing[key]; ok || creating[key] {
			return fmt.Errorf("duplicate key: product %q already exists for tenant %d", p.Name, tenantID)
		}
		creating[key] = true
	}
	for _, p := range changes.Update {
		if _, ok := byID[p.ID]; !ok {
			return fmt.Errorf("update product %s: not found for tenant %d", p.ID, tenantID)
		}
	}

	if existing == nil {
		existing = make(map[string]core.Product)
		c.products[tenantID] = existing
	}
	for _, p := range changes.Create {
		if p.ID == "" {
			p.ID = uuid.NewString()
		}
		p.TenantID = tenantID
		existing[p.Key()] = p
	}
	for _, p := range changes.Update {
		key := byID[p.ID]
		p.TenantID = tenantID
		p.Name = existing[key].Name
		existing[key] = p
	}
	return nil
}
