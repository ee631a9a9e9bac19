package repository

import (
	"context"
	"fmt"
	"sync"

	"github.com/jackc/pgx/v5/pgxpool"
)

// AddonRepository maps addon package ids to client ids that stay the same
// across restarts, so persisted modes keep pointing at the right addon.
type AddonRepository interface {
	ClientID(ctx context.Context, addonID string) (int, error)
}

type PostgresAddonRepository struct {
	db *pgxpool.Pool
}

func NewPostgresAddonRepository(db *pgxpool.Pool) *PostgresAddonRepository {
	return &PostgresAddonRepository{db: db}
}

var _ AddonRepository = (*PostgresAddonRepository)(nil)

func (r *PostgresAddonRepository) ClientID(ctx context.Context, addonID string) (int, error) {
	const query = `
	INSERT INTO adsp_addons (addon_id)
	VALUES ($1)
	ON CONFLICT (addon_id) DO UPDATE SET addon_id = EXCLUDED.addon_id
	RETURNING client_id
	`

	var id int
	if err := r.db.QueryRow(ctx, query, addonID).Scan(&id); err != nil {
		return 0, fmt.Errorf("failed to resolve client id for %s: %w", addonID, err)
	}
	return id, nil
}

type MemoryAddonRepository struct {
	mu  sync.Mutex
	ids map[string]int
}

func NewMemoryAddonRepository() *MemoryAddonRepository {
	return &MemoryAddonRepository{ids: make(map[string]int)}
}

var _ AddonRepository = (*MemoryAddonRepository)(nil)

func (r *MemoryAddonRepository) ClientID(_ context.Context, addonID string) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if id, ok := r.ids[addonID]; ok {
		return id, nil
	}
	id := len(r.ids) + 1
	r.ids[addonID] = id
	return id, nil
}
