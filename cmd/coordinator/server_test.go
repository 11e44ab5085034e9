package main

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/dreamware/accesscoordinator/internal/backend"
	"github.com/dreamware/accesscoordinator/internal/coordinator"
	"github.com/dreamware/accesscoordinator/internal/identity"
	"github.com/dreamware/accesscoordinator/internal/metrics"
	"github.com/dreamware/accesscoordinator/internal/shardconfig"
	"github.com/dreamware/accesscoordinator/internal/shardmgr"
)

// newTestCoordinator wires a Coordinator whose entire shard topology is
// one in-process backend.Store covering every (element, op) role — not
// a realistic deployment, but sufficient to exercise the full dispatch
// surface end-to-end without spawning external processes.
func newTestCoordinator(t *testing.T) *httptest.Server {
	t.Helper()

	store := backend.New()
	shardMux := http.NewServeMux()
	backend.RegisterRoutes(shardMux, store, zap.NewNop())
	shardSrv := httptest.NewServer(shardMux)
	t.Cleanup(shardSrv.Close)

	entries := []shardEntry{
		{Element: "user", Op: "event", Client: clientEntry{BaseURL: shardSrv.URL}},
		{Element: "user", Op: "query", Client: clientEntry{BaseURL: shardSrv.URL}},
		{Element: "group", Op: "event", Client: clientEntry{BaseURL: shardSrv.URL}},
		{Element: "group", Op: "query", Client: clientEntry{BaseURL: shardSrv.URL}},
		{Element: "group_to_group_mapping", Op: "event", Client: clientEntry{BaseURL: shardSrv.URL}},
		{Element: "group_to_group_mapping", Op: "query", Client: clientEntry{BaseURL: shardSrv.URL}},
	}
	set, err := toShardConfigurationSet(entries)
	require.NoError(t, err)

	mgr, err := shardmgr.New(set, clientFactory)
	require.NoError(t, err)
	t.Cleanup(func() { mgr.Close() })

	coord := coordinator.New(mgr, metrics.Noop(), zap.NewNop())

	mux := http.NewServeMux()
	registerCoordinatorRoutes(mux, coord, mgr, zap.NewNop())
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func getJSON(t *testing.T, url string, out any) {
	t.Helper()
	resp, err := http.Get(url)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.NoError(t, json.NewDecoder(resp.Body).Decode(out))
}

func putOK(t *testing.T, url string) {
	t.Helper()
	req, err := http.NewRequest(http.MethodPut, url, bytes.NewReader(nil))
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestCoordinatorUserLifecycleEndToEnd(t *testing.T) {
	srv := newTestCoordinator(t)

	putOK(t, srv.URL+"/users/alice")

	var contains bool
	getJSON(t, srv.URL+"/users/alice", &contains)
	assert.True(t, contains)

	var users []identity.User
	getJSON(t, srv.URL+"/users", &users)
	assert.ElementsMatch(t, []identity.User{"alice"}, users)
}

func TestCoordinatorTransitiveAuthorizationEndToEnd(t *testing.T) {
	srv := newTestCoordinator(t)

	putOK(t, srv.URL+"/users/alice")
	putOK(t, srv.URL+"/groups/eng")
	putOK(t, srv.URL+"/groups/org")
	putOK(t, srv.URL+"/users/alice/groups/eng")
	putOK(t, srv.URL+"/groups/eng/groups/org")
	putOK(t, srv.URL+"/groups/org/components/billing/access-levels/read")

	var has bool
	getJSON(t, srv.URL+"/users/alice/components/billing/access-levels/read/has-access", &has)
	assert.True(t, has, "alice should transitively reach org's access grant through eng")
}

func TestCoordinatorGroupRemovalEndToEnd(t *testing.T) {
	srv := newTestCoordinator(t)

	putOK(t, srv.URL+"/groups/eng")
	putOK(t, srv.URL+"/users/alice")
	putOK(t, srv.URL+"/users/alice/groups/eng")

	req, err := http.NewRequest(http.MethodDelete, srv.URL+"/groups/eng", nil)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var direct []identity.Group
	getJSON(t, srv.URL+"/users/alice/groups", &direct)
	assert.Empty(t, direct)
}

func TestCoordinatorAdminRefresh(t *testing.T) {
	srv := newTestCoordinator(t)

	body, err := json.Marshal(fileConfig{Shards: []shardEntry{
		{Element: "user", Op: "event", Client: clientEntry{BaseURL: "http://127.0.0.1:1"}},
		{Element: "user", Op: "query", Client: clientEntry{BaseURL: "http://127.0.0.1:1"}},
	}})
	require.NoError(t, err)

	resp, err := http.Post(srv.URL+"/admin/shards/refresh", "application/json", bytes.NewReader(body))
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}
