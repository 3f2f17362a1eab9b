package main

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"bossspawner/internal/config"
)

const integrationToken = "integration-token"

func writeConfig(t *testing.T, dir string, bosses ...string) string {
	t.Helper()
	var b strings.Builder
	b.WriteString("timezone: UTC\n")
	b.WriteString("tick_interval: 20ms\n")
	b.WriteString("server:\n")
	b.WriteString("  addr: 127.0.0.1:0\n")
	b.WriteString("  data_dir: " + filepath.Join(dir, "data") + "\n")
	b.WriteString("  admin_token: " + integrationToken + "\n")
	b.WriteString("bosses:\n")
	for _, id := range bosses {
		b.WriteString("  - id: " + id + "\n")
		b.WriteString("    enabled: true\n")
		b.WriteString("    spawn_groups: [{name: " + id + "-group}]\n")
		b.WriteString("    spawn_sphere: {radius: 100000}\n")
		b.WriteString("    grid_gps_name: " + id + "\n")
		b.WriteString("    schedules: [{offset_hours: 0, interval_hours: 1}]\n")
	}
	path := filepath.Join(dir, "bosses.yml")
	require.NoError(t, os.WriteFile(path, []byte(b.String()), 0o644))
	return path
}

func newTestApp(t *testing.T, bosses ...string) *app {
	t.Helper()
	path := writeConfig(t, t.TempDir(), bosses...)
	cfg, err := config.Load(path)
	require.NoError(t, err)
	a, err := newApp(cfg, path, zap.NewNop(), zap.NewAtomicLevel())
	require.NoError(t, err)
	return a
}

func (a *app) request(t *testing.T, method, path string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, nil)
	req.Header.Set("Authorization", "Bearer "+integrationToken)
	rec := httptest.NewRecorder()
	a.handler.ServeHTTP(rec, req)
	return rec
}

func bossIDs(t *testing.T, a *app) []string {
	t.Helper()
	rec := a.request(t, http.MethodGet, "/api/bosses")
	require.Equal(t, http.StatusOK, rec.Code)
	var body struct {
		Bosses []struct {
			ID string `json:"id"`
		} `json:"bosses"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	ids := make([]string, 0, len(body.Bosses))
	for _, b := range body.Bosses {
		ids = append(ids, b.ID)
	}
	return ids
}

func TestApp_SpawnThroughAPI(t *testing.T) {
	a := newTestApp(t, "alpha")
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go func() { _ = a.loop.Run(ctx) }()

	rec := a.request(t, http.MethodPost, "/api/bosses/alpha/spawn")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.JSONEq(t, `{"id":"alpha","action":"spawn","ok":true}`, rec.Body.String())

	require.Eventually(t, func() bool {
		rec := a.request(t, http.MethodGet, "/api/bosses/alpha")
		var st struct {
			EntityID int64 `json:"entity_id"`
		}
		return json.Unmarshal(rec.Body.Bytes(), &st) == nil && st.EntityID != 0
	}, 5*time.Second, 20*time.Millisecond)

	require.Eventually(t, func() bool {
		for _, m := range a.relay.Markers() {
			if m.Name == "alpha" {
				return true
			}
		}
		return false
	}, 5*time.Second, 20*time.Millisecond)
}

func TestApp_RunReloadsAndPersistsOnShutdown(t *testing.T) {
	a := newTestApp(t, "alpha")

	// Prepare an activation before the loop takes ownership.
	ok, err := a.reg.ResetPosition("alpha")
	require.NoError(t, err)
	require.True(t, ok)
	ok, err = a.reg.Activate("alpha")
	require.NoError(t, err)
	require.True(t, ok)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- a.run(ctx) }()

	// Give the watcher a moment to register before rewriting the file.
	time.Sleep(100 * time.Millisecond)
	writeConfig(t, filepath.Dir(a.configPath), "alpha", "beta")
	require.Eventually(t, func() bool {
		return len(bossIDs(t, a)) == 2
	}, 5*time.Second, 50*time.Millisecond)

	// A reload drops alpha's activation; activate it again so shutdown has
	// something to persist.
	require.Eventually(t, func() bool {
		return a.request(t, http.MethodPost, "/api/bosses/beta/activate").Code == http.StatusOK
	}, 5*time.Second, 50*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(10 * time.Second):
		t.Fatal("app did not stop")
	}

	raw, err := os.ReadFile(filepath.Join(a.cfg.Server.DataDir, "boss_activations.json"))
	require.NoError(t, err)
	var saved map[string][3]float64
	require.NoError(t, json.Unmarshal(raw, &saved))
	assert.Contains(t, saved, "beta")
}
