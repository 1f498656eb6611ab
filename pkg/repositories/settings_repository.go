package repositories

import (
	"context"
	"fmt"
	"strconv"

	"github.com/dealdesk-crm/intake-engine/pkg/database"
	"github.com/dealdesk-crm/intake-engine/pkg/models"
)

// SettingsRepository reads router settings stored as key/value rows.
type SettingsRepository interface {
	// Get returns the router settings with the configured defaults filled in
	// for missing keys. An error means the table itself was unreadable; the
	// returned settings are then the defaults and still safe to use.
	Get(ctx context.Context) (models.RouterSettings, error)
}

type settingsRepository struct {
	pool     database.Pool
	defaults models.RouterSettings
}

// NewSettingsRepository creates a settings repository. defaults come from the
// router section of the config and apply when a setting row is missing or the
// table is unreadable.
func NewSettingsRepository(pool database.Pool, defaults models.RouterSettings) SettingsRepository {
	defaults.AutoAssignThreshold = clampThreshold(defaults.AutoAssignThreshold)
	return &settingsRepository{pool: pool, defaults: defaults}
}

func (r *settingsRepository) Get(ctx context.Context) (models.RouterSettings, error) {
	settings := r.defaults

	query := `
		SELECT setting_key, setting_value
		FROM router_settings
		WHERE setting_key IN ($1, $2)`

	rows, err := r.pool.Query(ctx, query, models.SettingAutoAssignEnabled, models.SettingAutoAssignThreshold)
	if err != nil {
		return settings, fmt.Errorf("failed to read router settings: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var key, value string
		if err := rows.Scan(&key, &value); err != nil {
			return settings, fmt.Errorf("failed to scan router setting: %w", err)
		}

		switch key {
		case models.SettingAutoAssignEnabled:
			settings.AutoAssignEnabled = value != "false"
		case models.SettingAutoAssignThreshold:
			if n, err := strconv.Atoi(value); err == nil {
				settings.AutoAssignThreshold = clampThreshold(n)
			}
		}
	}

	if err := rows.Err(); err != nil {
		return settings, fmt.Errorf("error iterating router settings: %w", err)
	}

	return settings, nil
}

func clampThreshold(n int) int {
	if n < 0 {
		return 0
	}
	if n > 100 {
		return 100
	}
	return n
}

// Ensure settingsRepository implements SettingsRepository at compile time.
var _ SettingsRepository = (*settingsRepository)(nil)
