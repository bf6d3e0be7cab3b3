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

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/transitlab/destchoice/internal/config"
	"github.com/transitlab/destchoice/internal/store"
)

// newTestServer builds the router against a throwaway sqlite store with a
// spec file staged in a temp configs dir.
func newTestServer(t *testing.T) (*httptest.Server, store.Store) {
	t.Helper()

	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "dest_choice.csv"), []byte(evalTestSpec), 0o644))

	origCfg := cfg
	cfg = &config.Config{
		Model:  config.ModelConfig{ConfigsDir: dir, DataDir: dir},
		Server: config.ServerConfig{RateLimit: 1000, Burst: 1000},
	}
	t.Cleanup(func() { cfg = origCfg })

	st, err := store.NewSQLite(filepath.Join(dir, "test.db"))
	require.NoError(t, err)
	require.NoError(t, st.Migrate(context.Background()))
	t.Cleanup(func() { st.Close() })

	srv := httptest.NewServer(newRouter(st))
	t.Cleanup(srv.Close)
	return srv, st
}

func TestServe_Health(t *testing.T) {
	srv, _ := newTestServer(t)

	resp, err := http.Get(srv.URL + "/health")
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusOK, resp.StatusCode)

	var body map[string]string
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, "ok", body["status"])
}

func TestServe_Utility(t *testing.T) {
	srv, _ := newTestServer(t)

	req := `{"spec":"dest_choice.csv","fields":{"size_term":10},"skims":{"DISTANCE":2}}`
	resp, err := http.Post(srv.URL+"/v1/utility", "application/json", strings.NewReader(req))
	require.NoError(t, err)
	defer resp.Body.Close()

	require.Equal(t, http.StatusOK, resp.StatusCode)

	var body struct {
		Utility float64 `json:"utility"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.InDelta(t, 2.297895, body.Utility, 1e-5)
}

func TestServe_Utility_Breakdown(t *testing.T) {
	srv, _ := newTestServer(t)

	req := `{"spec":"dest_choice.csv","fields":{"size_term":10},"skims":{"DISTANCE":2},"breakdown":true}`
	resp, err := http.Post(srv.URL+"/v1/utility", "application/json", strings.NewReader(req))
	require.NoError(t, err)
	defer resp.Body.Close()

	require.Equal(t, http.StatusOK, resp.StatusCode)

	var body struct {
		Utility float64 `json:"utility"`
		Rows    []struct {
			Description  string  `json:"description"`
			Contribution float64 `json:"contribution"`
		} `json:"rows"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.InDelta(t, 2.297895, body.Utility, 1e-5)
	require.Len(t, body.Rows, 3)
	assert.Equal(t, "distance", body.Rows[0].Description)
}

func TestServe_Utility_BadRequests(t *testing.T) {
	srv, _ := newTestServer(t)

	// Malformed JSON.
	resp, err := http.Post(srv.URL+"/v1/utility", "application/json", strings.NewReader("{"))
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	// Missing spec.
	resp, err = http.Post(srv.URL+"/v1/utility", "application/json", strings.NewReader(`{"fields":{}}`))
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	// Unknown spec file.
	resp, err = http.Post(srv.URL+"/v1/utility", "application/json", strings.NewReader(`{"spec":"missing.csv"}`))
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	// Missing field referenced by an expression.
	resp, err = http.Post(srv.URL+"/v1/utility", "application/json", strings.NewReader(`{"spec":"dest_choice.csv"}`))
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestServe_Runs(t *testing.T) {
	srv, st := newTestServer(t)
	ctx := context.Background()

	run, err := st.CreateRun(ctx, "workplace_location")
	require.NoError(t, err)
	require.NoError(t, st.SaveChoices(ctx, run.ID, []store.ChoiceRow{
		{ChooserID: 1, Zone: 5},
		{ChooserID: 2, Zone: 9},
	}))

	resp, err := http.Get(srv.URL + "/v1/runs")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var runs []store.ModelRun
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&runs))
	require.Len(t, runs, 1)
	assert.Equal(t, run.ID, runs[0].ID)

	resp, err = http.Get(srv.URL + "/v1/runs/" + run.ID + "/choices")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var choices []store.ChoiceRow
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&choices))
	assert.Len(t, choices, 2)
}

func TestServe_Run_NotFound(t *testing.T) {
	srv, _ := newTestServer(t)

	resp, err := http.Get(srv.URL + "/v1/runs/nonexistent")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestServe_RateLimit(t *testing.T) {
	// A limiter with burst 1 rejects everything after the first request.
	origCfg := cfg
	cfg = &config.Config{
		Server: config.ServerConfig{RateLimit: 0.001, Burst: 1},
	}
	t.Cleanup(func() { cfg = origCfg })

	st, err := store.NewSQLite(filepath.Join(t.TempDir(), "rl.db"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })

	limited := httptest.NewServer(newRouter(st))
	t.Cleanup(limited.Close)

	resp, err := http.Get(limited.URL + "/health")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp, err = http.Get(limited.URL + "/health")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusTooManyRequests, resp.StatusCode)
}
