package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/rohan/tablebook/internal/model"
)

// MenuItemRepository maintains the local menu-item projection. The rows
// are written only by the menu.item.* event consumer; the core reads them
// to snapshot prices at attach time. Eventually consistent by design —
// item resolution tolerates stale rows by skipping them.
type MenuItemRepository struct {
	pool *pgxpool.Pool
}

// NewMenuItemRepository creates a new menu-item projection repository.
func NewMenuItemRepository(pool *pgxpool.Pool) *MenuItemRepository {
	return &MenuItemRepository{pool: pool}
}

// FindByID returns the projected item, or nil when unknown.
func (r *MenuItemRepository) FindByID(ctx context.Context, id string) (*model.MenuItem, error) {
	m := &model.MenuItem{}
	var description, categoryID *string
	err := r.pool.QueryRow(ctx, `
		SELECT id, restaurant_id, name, description, price_cents, category_id, available, active
		FROM menu_items
		WHERE id = $1
	`, id).Scan(&m.ID, &m.RestaurantID, &m.Name, &description, &m.PriceCents, &categoryID, &m.Available, &m.Active)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("menu item: find %s: %w", id, err)
	}
	if description != nil {
		m.Description = *description
	}
	if categoryID != nil {
		m.CategoryID = *categoryID
	}
	return m, nil
}

// Upsert applies a create/update event from the menu service.
func (r *MenuItemRepository) Upsert(ctx context.Context, m *model.MenuItem) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO menu_items (id, restaurant_id, name, description, price_cents, category_id, available, active)
		VALUES ($1, $2, $3, NULLIF($4, ''), $5, NULLIF($6, ''), $7, $8)
		ON CONFLICT (id) DO UPDATE
		SET restaurant_id = EXCLUDED.restaurant_id,
		    name          = EXCLUDED.name,
		    description   = EXCLUDED.description,
		    price_cents   = EXCLUDED.price_cents,
		    category_id   = EXCLUDED.category_id,
		    available     = EXCLUDED.available,
		    active        = EXCLUDED.active
	`, m.ID, m.RestaurantID, m.Name, m.Description, m.PriceCents, m.CategoryID, m.Available, m.Active)
	if err != nil {
		return fmt.Errorf("menu item: upsert %s: %w", m.ID, err)
	}
	return nil
}

// Deactivate applies a delete event. The row is kept so already-attached
// snapshots keep their reference; it just stops being attachable.
func (r *MenuItemRepository) Deactivate(ctx context.Context, id string) error {
	_, err := r.pool.Exec(ctx, `UPDATE menu_items SET active = FALSE WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("menu item: deactivate %s: %w", id, err)
	}
	return nil
}
