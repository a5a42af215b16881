package app

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"github.com/stacklok/catalog-mirror/internal/app/storage"
	storagemocks "github.com/stacklok/catalog-mirror/internal/app/storage/mocks"
	"github.com/stacklok/catalog-mirror/internal/catalog"
	"github.com/stacklok/catalog-mirror/internal/catalog/catalogtest"
	"github.com/stacklok/catalog-mirror/internal/config"
	"github.com/stacklok/catalog-mirror/internal/notify"
	pkgsync "github.com/stacklok/catalog-mirror/internal/sync"
	"github.com/stacklok/catalog-mirror/internal/sync/strategies"
)

// testConfig returns the default configuration with fast retries.
func testConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg, err := config.LoadConfig()
	require.NoError(t, err)
	cfg.RateLimit.DefaultQPS = 1000
	cfg.RateLimit.CharacterQPS = 1000
	cfg.Sync.FailureBackoff = "1ms"
	return cfg
}

func TestBaseConfig(t *testing.T) {
	t.Parallel()

	built, err := baseConfig(WithConfig(&config.Config{}))
	require.NoError(t, err)
	assert.Equal(t, defaultHTTPAddress, built.address)
	assert.Equal(t, defaultRequestTimeout, built.requestTimeout)
	assert.Equal(t, defaultWriteTimeout, built.writeTimeout)

	_, err = baseConfig()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "config cannot be nil")
}

func TestWithAddress(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		address string
		wantErr bool
	}{
		{name: "port only", address: ":9090"},
		{name: "localhost", address: "localhost:8081"},
		{name: "ip and port", address: "127.0.0.1:0"},
		{name: "empty", address: "", wantErr: true},
		{name: "missing port", address: ":", wantErr: true},
		{name: "no separator", address: "8080", wantErr: true},
		{name: "bad host", address: "mirror.local:80", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			built, err := baseConfig(WithConfig(&config.Config{}), WithAddress(tt.address))
			if tt.wantErr {
				require.Error(t, err)
				assert.Nil(t, built)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.address, built.address)
		})
	}
}

func TestBuildComponents_RegistersStrategiesAndRuns(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	fake := catalogtest.NewFakeClient(catalogtest.Subjects(1, 5, "2024-04-01")...)
	fake.SetCharacters(1, catalog.Character{ID: 100, Name: "Spike"})

	components, err := BuildComponents(ctx,
		WithConfig(testConfig(t)),
		WithCatalogClient(fake),
		WithNotifier(notify.NewLogNotifier()),
	)
	require.NoError(t, err)
	t.Cleanup(components.Close)

	assert.Equal(t, []string{
		strategies.NameBiweeklyUpdate,
		strategies.NameDailyIncremental,
		strategies.NameFullBackfill,
		strategies.NameMonthlyRotation,
		strategies.NameYearlyUpdate,
	}, components.Manager.Names())
	assert.Contains(t, components.Limiters, limiterDefault)
	assert.Contains(t, components.Limiters, limiterCharacter)
	require.NoError(t, components.Ready(ctx))

	result, err := components.Manager.Execute(ctx, strategies.NameDailyIncremental, pkgsync.Options{})
	require.NoError(t, err)
	require.NoError(t, result.Err)
	assert.Equal(t, 5, result.SubjectsProcessed)
	assert.Equal(t, 1, result.CharactersProcessed)

	stats, err := components.Documents.Stats(ctx)
	require.NoError(t, err)
	assert.EqualValues(t, 5, stats.Subjects)
	assert.EqualValues(t, 1, stats.Characters)
}

func TestBuildComponents_UsesConfiguredKeys(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	cfg := testConfig(t)
	cfg.Keys.Rotation = "mirror:rotation"
	cfg.Keys.Checkpoint = "mirror:checkpoint"

	components, err := BuildComponents(ctx, WithConfig(cfg), WithCatalogClient(catalogtest.NewFakeClient()))
	require.NoError(t, err)
	t.Cleanup(components.Close)

	require.NoError(t, components.Cursor.Reset(ctx, 6))
	value, ok, err := components.KV.Get(ctx, "mirror:rotation")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "6", value)

	require.NoError(t, components.Checkpoint.Save(ctx, 300))
	value, ok, err = components.KV.Get(ctx, "mirror:checkpoint")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "300", value)
}

func TestBuildComponents_CleansUpOnStorageError(t *testing.T) {
	t.Parallel()

	ctrl := gomock.NewController(t)
	factory := storagemocks.NewMockFactory(ctrl)
	factory.EXPECT().CreateKVStore(gomock.Any()).Return(nil, assert.AnError)
	factory.EXPECT().Cleanup().Times(1)

	_, err := BuildComponents(context.Background(), WithConfig(testConfig(t)), WithStorageFactory(factory))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to create key/value store")
}

func TestBuildNotifier(t *testing.T) {
	t.Parallel()

	var hits atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		hits.Add(1)
		_, _ = w.Write([]byte(`{"code":0}`))
	}))
	t.Cleanup(server.Close)

	cfg := testConfig(t)
	cfg.Notifier.WebhookURL = server.URL
	n := buildNotifier(&mirrorAppConfig{config: cfg})
	require.NoError(t, n.Notify(context.Background(), "ops", "breaker tripped"))
	assert.EqualValues(t, 1, hits.Load())

	logOnly := buildNotifier(&mirrorAppConfig{config: testConfig(t)})
	assert.Equal(t, notify.NewLogNotifier(), logOnly)
}

func TestSettingsFromConfig(t *testing.T) {
	t.Parallel()

	cfg := testConfig(t)
	cfg.Sync.BatchSize = 20
	cfg.Sync.NotifyChannel = "oc_ops"
	cfg.Cooldown.Biweekly = 10

	settings := settingsFromConfig(cfg)
	assert.Equal(t, catalog.SubjectTypeAnime, settings.SubjectType)
	assert.Equal(t, 20, settings.BatchSize)
	assert.Equal(t, 50, settings.IncrementalBuffer)
	assert.Equal(t, 3, settings.FailureThreshold)
	assert.Equal(t, time.Millisecond, settings.FailureBackoff)
	assert.Equal(t, "oc_ops", settings.NotifyChannel)
	assert.Equal(t, 3, settings.DailyCooldownDays)
	assert.Equal(t, 10, settings.BiweeklyCooldownDays)
	assert.Equal(t, 60, settings.MonthlyCooldownDays)
}

func TestNewStorageFactoryIsUsedByDefault(t *testing.T) {
	t.Parallel()

	components, err := BuildComponents(context.Background(),
		WithConfig(testConfig(t)), WithCatalogClient(catalogtest.NewFakeClient()))
	require.NoError(t, err)
	t.Cleanup(components.Close)

	assert.IsType(t, &storage.MemoryFactory{}, components.Storage)
}
