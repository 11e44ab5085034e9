package backend

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/dreamware/accesscoordinator/internal/identity"
)

func newTestServer(t *testing.T) (*httptest.Server, *Store) {
	t.Helper()
	store := New()
	mux := http.NewServeMux()
	RegisterRoutes(mux, store, zap.NewNop())
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv, store
}

func doJSON(t *testing.T, method, url string, body any, out any) *http.Response {
	t.Helper()
	var reqBody *bytes.Buffer
	if body != nil {
		b, err := json.Marshal(body)
		require.NoError(t, err)
		reqBody = bytes.NewBuffer(b)
	} else {
		reqBody = bytes.NewBuffer(nil)
	}
	req, err := http.NewRequest(method, url, reqBody)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	if out != nil {
		require.NoError(t, json.NewDecoder(resp.Body).Decode(out))
	}
	return resp
}

func TestHealth(t *testing.T) {
	srv, _ := newTestServer(t)
	resp, err := http.Get(srv.URL + "/health")
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestUserLifecycle(t *testing.T) {
	srv, _ := newTestServer(t)

	resp := doJSON(t, http.MethodPut, srv.URL+"/users/alice", nil, nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	var contains bool
	doJSON(t, http.MethodGet, srv.URL+"/users/alice", nil, &contains)
	assert.True(t, contains)

	var users []identity.User
	doJSON(t, http.MethodGet, srv.URL+"/users", nil, &users)
	assert.ElementsMatch(t, []identity.User{"alice"}, users)

	resp = doJSON(t, http.MethodDelete, srv.URL+"/users/alice", nil, nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	doJSON(t, http.MethodGet, srv.URL+"/users/alice", nil, &contains)
	assert.False(t, contains)
}

func TestUserToGroupMappingIndirect(t *testing.T) {
	srv, store := newTestServer(t)
	store.AddUser("alice")
	store.AddGroup("eng")
	store.AddGroup("org")
	store.AddUserToGroupMapping("alice", "eng")
	store.AddGroupToGroupMapping("eng", "org")

	var direct []identity.Group
	doJSON(t, http.MethodGet, srv.URL+"/users/alice/groups", nil, &direct)
	assert.ElementsMatch(t, []identity.Group{"eng"}, direct)

	var indirect []identity.Group
	doJSON(t, http.MethodGet, srv.URL+"/users/alice/groups?includeIndirect=true", nil, &indirect)
	assert.ElementsMatch(t, []identity.Group{"eng", "org"}, indirect)
}

func TestGroupUsersQueryTakesGroupsBody(t *testing.T) {
	srv, store := newTestServer(t)
	store.AddUser("alice")
	store.AddGroup("eng")
	store.AddUserToGroupMapping("alice", "eng")

	var users []identity.User
	doJSON(t, http.MethodGet, srv.URL+"/groups/users", groupsBody{Groups: []identity.Group{"eng"}}, &users)
	assert.ElementsMatch(t, []identity.User{"alice"}, users)
}

func TestComponentAccessGrant(t *testing.T) {
	srv, _ := newTestServer(t)
	doJSON(t, http.MethodPut, srv.URL+"/users/alice/components/billing/access-levels/read", nil, nil)

	var has bool
	doJSON(t, http.MethodGet, srv.URL+"/users/alice/components/billing/access-levels/read/has-access", nil, &has)
	assert.True(t, has)

	doJSON(t, http.MethodGet, srv.URL+"/users/alice/components/billing/access-levels/write/has-access", nil, &has)
	assert.False(t, has)
}

func TestGroupComponentAccessForGroups(t *testing.T) {
	srv, _ := newTestServer(t)
	doJSON(t, http.MethodPut, srv.URL+"/groups/eng/components/billing/access-levels/read", nil, nil)

	var has bool
	doJSON(t, http.MethodGet, srv.URL+"/groups/components/billing/access-levels/read/has-access",
		groupsBody{Groups: []identity.Group{"eng"}}, &has)
	assert.True(t, has)
}

func TestEntityLifecycle(t *testing.T) {
	srv, _ := newTestServer(t)
	doJSON(t, http.MethodPut, srv.URL+"/entity-types/document", nil, nil)
	doJSON(t, http.MethodPut, srv.URL+"/entity-types/document/entities/doc-1", nil, nil)

	var has bool
	doJSON(t, http.MethodGet, srv.URL+"/entity-types/document/entities/doc-1", nil, &has)
	assert.True(t, has)

	doJSON(t, http.MethodPut, srv.URL+"/users/alice/entity-types/document/entities/doc-1", nil, nil)
	doJSON(t, http.MethodGet, srv.URL+"/users/alice/entity-types/document/entities/doc-1/has-access", nil, &has)
	assert.True(t, has)

	var entities []identity.Entity
	doJSON(t, http.MethodGet, srv.URL+"/users/alice/entity-types/document/accessible-entities", nil, &entities)
	assert.ElementsMatch(t, []identity.Entity{"doc-1"}, entities)
}

func TestGroupToGroupMappingsQuery(t *testing.T) {
	srv, store := newTestServer(t)
	store.AddGroupToGroupMapping("eng", "org")

	var reachable []identity.Group
	doJSON(t, http.MethodGet, srv.URL+"/groups/group-mappings", groupsBody{Groups: []identity.Group{"eng"}}, &reachable)
	assert.ElementsMatch(t, []identity.Group{"org"}, reachable)
}
