package repositories

import (
	"context"
	"testing"

	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dealdesk-crm/intake-engine/pkg/models"
)

func TestSettingsRepository_Get(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectQuery("SELECT setting_key, setting_value").
		WithArgs(pgxmock.AnyArg(), pgxmock.AnyArg()).
		WillReturnRows(pgxmock.NewRows([]string{"setting_key", "setting_value"}).
			AddRow(models.SettingAutoAssignEnabled, "false").
			AddRow(models.SettingAutoAssignThreshold, "75"))

	repo := NewSettingsRepository(mock, models.DefaultRouterSettings())
	settings, err := repo.Get(context.Background())
	require.NoError(t, err)
	assert.False(t, settings.AutoAssignEnabled)
	assert.Equal(t, 75, settings.AutoAssignThreshold)
}

func TestSettingsRepository_Get_MissingKeysFallBackToConfiguredDefaults(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectQuery("SELECT setting_key, setting_value").
		WithArgs(pgxmock.AnyArg(), pgxmock.AnyArg()).
		WillReturnRows(pgxmock.NewRows([]string{"setting_key", "setting_value"}))

	// The config-level defaults, not the package defaults, fill the gaps.
	defaults := models.RouterSettings{AutoAssignEnabled: false, AutoAssignThreshold: 80}
	repo := NewSettingsRepository(mock, defaults)
	settings, err := repo.Get(context.Background())
	require.NoError(t, err)
	assert.Equal(t, defaults, settings)
}

func TestSettingsRepository_Get_RowsOverrideConfiguredDefaults(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectQuery("SELECT setting_key, setting_value").
		WithArgs(pgxmock.AnyArg(), pgxmock.AnyArg()).
		WillReturnRows(pgxmock.NewRows([]string{"setting_key", "setting_value"}).
			AddRow(models.SettingAutoAssignThreshold, "40"))

	repo := NewSettingsRepository(mock, models.RouterSettings{AutoAssignEnabled: true, AutoAssignThreshold: 80})
	settings, err := repo.Get(context.Background())
	require.NoError(t, err)
	assert.True(t, settings.AutoAssignEnabled, "missing key keeps the configured default")
	assert.Equal(t, 40, settings.AutoAssignThreshold, "stored row wins over the configured default")
}

func TestSettingsRepository_Get_ClampsAndIgnoresGarbage(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectQuery("SELECT setting_key, setting_value").
		WithArgs(pgxmock.AnyArg(), pgxmock.AnyArg()).
		WillReturnRows(pgxmock.NewRows([]string{"setting_key", "setting_value"}).
			AddRow(models.SettingAutoAssignThreshold, "250"))

	repo := NewSettingsRepository(mock, models.DefaultRouterSettings())
	settings, err := repo.Get(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 100, settings.AutoAssignThreshold)

	mock.ExpectQuery("SELECT setting_key, setting_value").
		WithArgs(pgxmock.AnyArg(), pgxmock.AnyArg()).
		WillReturnRows(pgxmock.NewRows([]string{"setting_key", "setting_value"}).
			AddRow(models.SettingAutoAssignThreshold, "not-a-number"))

	settings, err = repo.Get(context.Background())
	require.NoError(t, err)
	assert.Equal(t, models.DefaultRouterSettings().AutoAssignThreshold, settings.AutoAssignThreshold)
}

func TestSettingsRepository_Get_QueryErrorReturnsDefaults(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectQuery("SELECT setting_key, setting_value").
		WillReturnError(assert.AnError)

	repo := NewSettingsRepository(mock, models.DefaultRouterSettings())
	settings, err := repo.Get(context.Background())
	require.Error(t, err)
	assert.Equal(t, models.DefaultRouterSettings(), settings, "callers keep the defaults on error")
}
