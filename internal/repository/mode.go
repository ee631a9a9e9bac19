package repository

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/glizzus/adsp-host/internal/adsp"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// ModeRepository persists the modes addons register and hands out the
// host-wide mode ids.
type ModeRepository interface {
	adsp.ModeStore
	List(ctx context.Context, clientID int) ([]adsp.Mode, error)
}

type PostgresModeRepository struct {
	db *pgxpool.Pool
}

func NewPostgresModeRepository(db *pgxpool.Pool) *PostgresModeRepository {
	return &PostgresModeRepository{db: db}
}

var _ ModeRepository = (*PostgresModeRepository)(nil)

func ModeToRowParams(mode adsp.Mode) []any {
	return []any{
		mode.AddonID,
		int(mode.Type),
		int64(mode.Number),
		mode.Name,
		int64(mode.SupportTypeFlags),
		mode.HasSettingsDialog,
		mode.Disabled,
		mode.NameLabel,
		mode.SetupLabel,
		mode.DescriptionLabel,
		mode.HelpLabel,
		mode.OwnImage,
		mode.OverrideImage,
	}
}

// AddUpdate inserts mode or refreshes an existing row with the same addon,
// type and number. The id of a mode never changes once assigned. The
// disabled flag is owned by the host and is not overwritten.
func (r *PostgresModeRepository) AddUpdate(ctx context.Context, mode adsp.Mode) (int, error) {
	const query = `
	INSERT INTO adsp_modes (
		addon_id, mode_type, mode_number, mode_name, stream_type_flags,
		has_settings_dialog, is_disabled, name_label, setup_label,
		description_label, help_label, own_image, override_image
	)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
	ON CONFLICT (addon_id, mode_type, mode_number) DO UPDATE SET
		mode_name = EXCLUDED.mode_name,
		stream_type_flags = EXCLUDED.stream_type_flags,
		has_settings_dialog = EXCLUDED.has_settings_dialog,
		name_label = EXCLUDED.name_label,
		setup_label = EXCLUDED.setup_label,
		description_label = EXCLUDED.description_label,
		help_label = EXCLUDED.help_label,
		own_image = EXCLUDED.own_image,
		override_image = EXCLUDED.override_image,
		updated_at = NOW()
	RETURNING id
	`

	var id int
	if err := r.db.QueryRow(ctx, query, ModeToRowParams(mode)...).Scan(&id); err != nil {
		return adsp.InvalidModeID, fmt.Errorf("failed to upsert mode: %w", err)
	}
	return id, nil
}

func (r *PostgresModeRepository) Delete(ctx context.Context, mode adsp.Mode) error {
	const query = `
	DELETE FROM adsp_modes
	WHERE addon_id = $1 AND mode_type = $2 AND mode_number = $3
	`
	if _, err := r.db.Exec(ctx, query, mode.AddonID, int(mode.Type), int64(mode.Number)); err != nil {
		return fmt.Errorf("failed to delete mode: %w", err)
	}
	return nil
}

type ModeRow struct {
	ID                int
	AddonID           int
	Type              int
	Number            int64
	Name              string
	SupportTypeFlags  int64
	HasSettingsDialog bool
	Disabled          bool
	NameLabel         int
	SetupLabel        int
	DescriptionLabel  int
	HelpLabel         int
	OwnImage          string
	OverrideImage     string
}

func (row ModeRow) Mode() adsp.Mode {
	return adsp.Mode{
		UniqueDBModeID:    row.ID,
		AddonID:           row.AddonID,
		Type:              adsp.ModeType(row.Type),
		Number:            uint(row.Number),
		Name:              row.Name,
		SupportTypeFlags:  uint(row.SupportTypeFlags),
		HasSettingsDialog: row.HasSettingsDialog,
		Disabled:          row.Disabled,
		NameLabel:         row.NameLabel,
		SetupLabel:        row.SetupLabel,
		DescriptionLabel:  row.DescriptionLabel,
		HelpLabel:         row.HelpLabel,
		OwnImage:          row.OwnImage,
		OverrideImage:     row.OverrideImage,
	}
}

// List returns the modes of one addon, or of every addon when clientID is
// adsp.InvalidClientID, ordered by type and number.
func (r *PostgresModeRepository) List(ctx context.Context, clientID int) ([]adsp.Mode, error) {
	const query = `
	SELECT
		id, addon_id, mode_type, mode_number, mode_name, stream_type_flags,
		has_settings_dialog, is_disabled, name_label, setup_label,
		description_label, help_label, own_image, override_image
	FROM adsp_modes
	WHERE $1::int = -1 OR addon_id = $1::int
	ORDER BY addon_id, mode_type, mode_number
	`

	rows, err := r.db.Query(ctx, query, clientID)
	if err != nil {
		return nil, fmt.Errorf("failed to query modes: %w", err)
	}
	modeRows, err := pgx.CollectRows(rows, pgx.RowToStructByPos[ModeRow])
	if err != nil {
		return nil, fmt.Errorf("failed to scan modes: %w", err)
	}

	modes := make([]adsp.Mode, 0, len(modeRows))
	for _, row := range modeRows {
		modes = append(modes, row.Mode())
	}
	return modes, nil
}

type modeKey struct {
	addonID int
	t       adsp.ModeType
	number  uint
}

// MemoryModeRepository keeps modes in process. Ids are handed out from a
// counter starting at 1.
type MemoryModeRepository struct {
	mu    sync.Mutex
	next  int
	modes map[modeKey]adsp.Mode
}

func NewMemoryModeRepository() *MemoryModeRepository {
	return &MemoryModeRepository{modes: make(map[modeKey]adsp.Mode)}
}

var _ ModeRepository = (*MemoryModeRepository)(nil)

func (r *MemoryModeRepository) AddUpdate(_ context.Context, mode adsp.Mode) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	key := modeKey{addonID: mode.AddonID, t: mode.Type, number: mode.Number}
	if existing, ok := r.modes[key]; ok {
		mode.UniqueDBModeID = existing.UniqueDBModeID
		mode.Disabled = existing.Disabled
	} else {
		r.next++
		mode.UniqueDBModeID = r.next
	}
	r.modes[key] = mode
	return mode.UniqueDBModeID, nil
}

func (r *MemoryModeRepository) Delete(_ context.Context, mode adsp.Mode) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.modes, modeKey{addonID: mode.AddonID, t: mode.Type, number: mode.Number})
	return nil
}

func (r *MemoryModeRepository) List(_ context.Context, clientID int) ([]adsp.Mode, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	modes := make([]adsp.Mode, 0, len(r.modes))
	for _, m := range r.modes {
		if clientID == adsp.InvalidClientID || m.AddonID == clientID {
			modes = append(modes, m)
		}
	}
	sort.Slice(modes, func(i, j int) bool {
		a, b := modes[i], modes[j]
		if a.AddonID != b.AddonID {
			return a.AddonID < b.AddonID
		}
		if a.Type != b.Type {
			return a.Type < b.Type
		}
		return a.Number < b.Number
	})
	return modes, nil
}
