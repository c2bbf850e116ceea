package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/JonMunkholm/menusync/internal/core"
)

// Catalog is a core.CatalogStore backed by the products table.
type Catalog struct {
	pool *pgxpool.Pool
	now  func() time.Time
}

func NewCatalog(pool *pgxpool.Pool) *Catalog {
	return &Catalog{pool: pool, now: time.Now}
}

const listProducts = `
SELECT id::text, restaurant_id, name, price, category, description, available, updated_at
FROM products
WHERE restaurant_id = $1
ORDER BY name_key`

// queryer is satisfied by both the pool and a transaction.
type queryer interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

func (c *Catalog) ListProducts(ctx context.Context, tenantID int64) ([]core.Product, error) {
	return listTenantProducts(ctx, c.pool, tenantID)
}

func listTenantProducts(ctx context.Context, q queryer, tenantID int64) ([]core.Product, error) {
	rows, err := q.Query(ctx, listProducts, tenantID)
	if err != nil {
		return nil, fmt.Errorf("query products: %w", err)
	}
	defer rows.Close()

	var result []core.Product
	for rows.Next() {
		var (
			p     core.Product
			price pgtype.Numeric
		)
		if err := rows.Scan(&p.ID, &p.TenantID, &p.Name, &price, &p.Category, &p.Description, &p.Available, &p.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan product: %w", err)
		}
		if p.Price, err = decimalFromNumeric(price); err != nil {
			return nil, fmt.Errorf("product %s: %w", p.ID, err)
		}
		result = append(result, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate products: %w", err)
	}
	return result, nil
}

var productColumns = []string{
	"id", "restaurant_id", "name", "name_key", "price",
	"category", "description", "available", "created_at", "updated_at",
}

const updateProduct = `
UPDATE products
SET price = $3, category = $4, description = $5, available = $6, updated_at = $7
WHERE restaurant_id = $1 AND id = $2`

// ApplyChanges writes creates with COPY and updates in one batch, inside a
// transaction holding the tenant's advisory lock so that writers on other
// nodes are serialized too.
func (c *Catalog) ApplyChanges(ctx context.Context, tenantID int64, changes core.ChangeSet) error {
	if changes.Empty() {
		return nil
	}

	return transact(ctx, c.pool, func(tx pgx.Tx) error {
		if err := lockTenant(ctx, tx, tenantID); err != nil {
			return err
		}
		return c.apply(ctx, tx, tenantID, changes)
	})
}

// SyncProducts takes the tenant's advisory lock first, then reads, plans and
// writes in the same transaction. A concurrent sync on another node waits on
// the lock and then reads the committed catalog.
func (c *Catalog) SyncProducts(ctx context.Context, tenantID int64, plan func([]core.Product) (core.ChangeSet, error)) error {
	return transact(ctx, c.pool, func(tx pgx.Tx) error {
		if err := lockTenant(ctx, tx, tenantID); err != nil {
			return err
		}
		existing, err := listTenantProducts(ctx, tx, tenantID)
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
		return c.apply(ctx, tx, tenantID, changes)
	})
}

func lockTenant(ctx context.Context, tx pgx.Tx, tenantID int64) error {
	if _, err := tx.Exec(ctx, "SELECT pg_advisory_xact_lock($1)", tenantID); err != nil {
		return fmt.Errorf("acquire tenant lock: %w", err)
	}
	return nil
}

func (c *Catalog) apply(ctx context.Context, tx pgx.Tx, tenantID int64, changes core.ChangeSet) error {
	if len(changes.Create) > 0 {
		now := c.now().UTC()
		src := pgx.CopyFromSlice(len(changes.Create), func(i int) ([]any, error) {
			p := changes.Create[i]
			id := p.ID
			if id == "" {
				id = uuid.NewString()
			}
			parsed, err := uuid.Parse(id)
			if err != nil {
				return nil, fmt.Errorf("product id %q: %w", id, err)
			}
			updatedAt := p.UpdatedAt
			if updatedAt.IsZero() {
				updatedAt = now
			}
			return []any{
				parsed, tenantID, p.Name, p.Key(), numericFromDecimal(p.Price),
				p.Category, p.Description, p.Available, now, updatedAt,
			}, nil
		})
		n, err := tx.CopyFrom(ctx, pgx.Identifier{"products"}, productColumns, src)
		if err != nil {
			return fmt.Errorf("insert products: %w", err)
		}
		if int(n) != len(changes.Create) {
			return fmt.Errorf("insert products: wrote %d of %d", n, len(changes.Create))
		}
	}

	if len(changes.Update) > 0 {
		batch := &pgx.Batch{}
		for _, p := range changes.Update {
			batch.Queue(updateProduct, tenantID, p.ID, numericFromDecimal(p.Price),
				p.Category, p.Description, p.Available, p.UpdatedAt.UTC())
		}

		br := tx.SendBatch(ctx, batch)
		for _, p := range changes.Update {
			tag, err := br.Exec()
			if err != nil {
				br.Close()
				return fmt.Errorf("update product %s: %w", p.ID, err)
			}
			if tag.RowsAffected() == 0 {
				br.Close()
				return fmt.Errorf("update product %s: not found", p.ID)
			}
		}
		if err := br.Close(); err != nil {
			return fmt.Errorf("update products: %w", err)
		}
	}
	return nil
}

func numericFromDecimal(d decimal.Decimal) pgtype.Numeric {
	return pgtype.Numeric{Int: d.Coefficient(), Exp: d.Exponent(), Valid: true}
}

func decimalFromNumeric(n pgtype.Numeric) (decimal.Decimal, error) {
	if !n.Valid {
		return decimal.Zero, nil
	}
	if n.NaN || n.InfinityModifier != pgtype.Finite {
		return decimal.Zero, fmt.Errorf("price is not a finite number")
	}
	return decimal.NewFromBigInt(n.Int, n.Exp), nil
}
