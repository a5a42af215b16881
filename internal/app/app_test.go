package app

import (
	"context"
	"encoding/json"
	"io"
	"net"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stacklok/catalog-mirror/internal/catalog/catalogtest"
	"github.com/stacklok/catalog-mirror/internal/config"
	"github.com/stacklok/catalog-mirror/internal/status"
	"github.com/stacklok/catalog-mirror/internal/sync/coordinator"
	"github.com/stacklok/catalog-mirror/internal/sync/strategies"
)

func startTestApp(t *testing.T, cfg *config.Config) (*MirrorApp, string) {
	t.Helper()

	app, err := NewMirrorApp(context.Background(),
		WithConfig(cfg),
		WithAddress("127.0.0.1:0"),
		WithCatalogClient(catalogtest.NewFakeClient(catalogtest.Subjects(1, 8, "2023-10-01")...)),
		WithCoordinatorOptions(coordinator.WithPollingInterval(time.Hour, 0)),
	)
	require.NoError(t, err)

	listener, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	errChan := make(chan error, 1)
	go func() {
		errChan <- app.Serve(listener)
	}()

	t.Cleanup(func() {
		require.NoError(t, app.Stop(5*time.Second))
		select {
		case err := <-errChan:
			require.NoError(t, err)
		case <-time.After(5 * time.Second):
			t.Fatal("Serve() did not return after Stop()")
		}
	})

	return app, "http://" + listener.Addr().String()
}

func getJSON(t *testing.T, url string, out any) int {
	t.Helper()
	resp, err := http.Get(url) //nolint:gosec // test server URL
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	if out != nil && resp.StatusCode == http.StatusOK {
		require.NoError(t, json.Unmarshal(body, out))
	}
	return resp.StatusCode
}

func TestMirrorApp_ScheduledRunCompletes(t *testing.T) {
	t.Parallel()

	cfg := testConfig(t)
	cfg.Schedules = []config.ScheduleConfig{
		{Strategy: strategies.NameDailyIncremental, Interval: "24h", SkipCharacters: true},
	}
	app, baseURL := startTestApp(t, cfg)

	assert.Equal(t, http.StatusOK, getJSON(t, baseURL+"/health", nil))
	assert.Equal(t, http.StatusOK, getJSON(t, baseURL+"/readiness", nil))

	require.Eventually(t, func() bool {
		var schedules []coordinator.ScheduleStatus
		if getJSON(t, baseURL+"/api/v1/schedules", &schedules) != http.StatusOK || len(schedules) != 1 {
			return false
		}
		last := schedules[0].Last
		return last != nil && last.Phase == status.RunPhaseComplete
	}, 5*time.Second, 20*time.Millisecond)

	stats, err := app.Components().Documents.Stats(context.Background())
	require.NoError(t, err)
	assert.EqualValues(t, 8, stats.Subjects)
	assert.EqualValues(t, 0, stats.Characters)
}

func TestMirrorApp_RunThroughAPI(t *testing.T) {
	t.Parallel()

	app, baseURL := startTestApp(t, testConfig(t))

	resp, err := http.Post(baseURL+"/api/v1/strategies/YearlyUpdate/run", "application/json", nil) //nolint:gosec // test server URL
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusAccepted, resp.StatusCode)

	resp, err = http.Post(baseURL+"/api/v1/strategies/Hourly/run", "application/json", nil) //nolint:gosec // test server URL
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	app.Components().Manager.Wait()

	var stats map[string]any
	require.Equal(t, http.StatusOK, getJSON(t, baseURL+"/api/v1/stats", &stats))
	assert.Contains(t, stats, "subjects")

	assert.Equal(t, "127.0.0.1:0", app.GetHTTPServer().Addr)
	assert.Equal(t, "bangumi:monthly_rotation:current_month", app.GetConfig().Keys.Rotation)
}
