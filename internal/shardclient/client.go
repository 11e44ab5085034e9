package shardclient

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v4"
	jsoniter "github.com/json-iterator/go"

	"github.com/dreamware/accesscoordinator/internal/identity"
	"github.com/dreamware/accesscoordinator/internal/shardconfig"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// httpClient is the concrete Client implementation: one backend node
// reached over HTTP/JSON, retried per its ClientConfig's policy.
//
// Grounded on the teacher's cluster.PostJSON/GetJSON pair, generalized
// from package-level helpers into a per-shard client carrying its own
// base URL, *http.Client, and retry policy — so each shard's retry
// behavior is independent, as spec §4.4 requires.
type httpClient struct {
	baseURL string
	hc      *http.Client
	policy  backoff.BackOff
}

// NewClient is the Client Factory (spec §4.4): it validates cfg and
// returns a ready-to-use Client, or an ArgumentOutOfRangeError if cfg is
// invalid. It never makes a network call itself.
func NewClient(cfg shardconfig.ClientConfig) (Client, error) {
	if cfg.Policy != nil {
		if cfg.RetryCount != 0 || cfg.RetryIntervalSeconds != 0 {
			return nil, &ArgumentOutOfRangeError{
				Argument: "RetryCount/RetryIntervalSeconds",
				Value:    fmt.Sprintf("%d/%d", cfg.RetryCount, cfg.RetryIntervalSeconds),
				Reason:   "must be zero when Policy is set; the two retry mechanisms are mutually exclusive",
			}
		}
		return &httpClient{
			baseURL: cfg.BaseURL,
			hc:      &http.Client{Timeout: 30 * time.Second},
			policy:  cfg.Policy,
		}, nil
	}

	if cfg.RetryCount < 0 || cfg.RetryCount > 59 {
		return nil, &ArgumentOutOfRangeError{Argument: "RetryCount", Value: cfg.RetryCount, Reason: "must be in [0,59]"}
	}
	if cfg.RetryIntervalSeconds < 0 || cfg.RetryIntervalSeconds > 120 {
		return nil, &ArgumentOutOfRangeError{Argument: "RetryIntervalSeconds", Value: cfg.RetryIntervalSeconds, Reason: "must be in [0,120]"}
	}

	constant := backoff.NewConstantBackOff(time.Duration(cfg.RetryIntervalSeconds) * time.Second)
	policy := backoff.BackOff(backoff.WithMaxRetries(constant, uint64(cfg.RetryCount)))

	return &httpClient{
		baseURL: cfg.BaseURL,
		hc:      &http.Client{Timeout: 30 * time.Second},
		policy:  policy,
	}, nil
}

func (c *httpClient) Ping(ctx context.Context) error {
	return c.getInto(ctx, routeHealth(), nil)
}

func (c *httpClient) Close() error {
	c.hc.CloseIdleConnections()
	return nil
}

// do issues one HTTP request, JSON-encoding reqBody (if non-nil) and
// JSON-decoding into out (if non-nil), retrying transport failures per
// the client's policy. A non-2xx response is a BackendError and is
// never retried — the backend was reached and answered.
func (c *httpClient) do(ctx context.Context, method, p string, reqBody, out any) error {
	url := c.baseURL + p
	c.policy.Reset()

	operation := func() error {
		var body io.Reader
		if reqBody != nil {
			encoded, err := json.Marshal(reqBody)
			if err != nil {
				return backoff.Permanent(fmt.Errorf("shard client: encoding request body: %w", err))
			}
			body = bytes.NewReader(encoded)
		}

		req, err := http.NewRequestWithContext(ctx, method, url, body)
		if err != nil {
			return backoff.Permanent(fmt.Errorf("shard client: building request: %w", err))
		}
		if reqBody != nil {
			req.Header.Set("Content-Type", "application/json")
		}
		if id, ok := requestIDFromContext(ctx); ok {
			req.Header.Set("X-Torua-Request-ID", id)
		}

		resp, err := c.hc.Do(req)
		if err != nil {
			return &TransportError{URL: url, Err: err}
		}
		defer resp.Body.Close()

		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
			return backoff.Permanent(&BackendError{URL: url, StatusCode: resp.StatusCode, Body: string(respBody)})
		}

		if out == nil {
			return nil
		}
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return backoff.Permanent(fmt.Errorf("shard client: decoding response from %s: %w", url, err))
		}
		return nil
	}

	return backoff.Retry(operation, backoff.WithContext(c.policy, ctx))
}

func (c *httpClient) getInto(ctx context.Context, p string, out any) error {
	return c.do(ctx, http.MethodGet, p, nil, out)
}

func (c *httpClient) getWithBody(ctx context.Context, p string, reqBody, out any) error {
	return c.do(ctx, http.MethodGet, p, reqBody, out)
}

func (c *httpClient) put(ctx context.Context, p string) error {
	return c.do(ctx, http.MethodPut, p, struct{}{}, nil)
}

func (c *httpClient) delete(ctx context.Context, p string) error {
	return c.do(ctx, http.MethodDelete, p, nil, nil)
}

// --- Users ---

func (c *httpClient) AddUser(ctx context.Context, user identity.User) error {
	return c.put(ctx, routeUser(user))
}

func (c *httpClient) RemoveUser(ctx context.Context, user identity.User) error {
	return c.delete(ctx, routeUser(user))
}

func (c *httpClient) ContainsUser(ctx context.Context, user identity.User) (bool, error) {
	var out bool
	err := c.getInto(ctx, routeUser(user), &out)
	return out, err
}

func (c *httpClient) GetUsers(ctx context.Context) ([]identity.User, error) {
	var out []identity.User
	err := c.getInto(ctx, routeUsers(), &out)
	return out, err
}

// --- Groups ---

func (c *httpClient) AddGroup(ctx context.Context, group identity.Group) error {
	return c.put(ctx, routeGroup(group))
}

func (c *httpClient) RemoveGroup(ctx context.Context, group identity.Group) error {
	return c.delete(ctx, routeGroup(group))
}

func (c *httpClient) ContainsGroup(ctx context.Context, group identity.Group) (bool, error) {
	var out bool
	err := c.getInto(ctx, routeGroup(group), &out)
	return out, err
}

func (c *httpClient) GetGroups(ctx context.Context) ([]identity.Group, error) {
	var out []identity.Group
	err := c.getInto(ctx, routeGroups(), &out)
	return out, err
}

// --- User <-> group mappings ---

func (c *httpClient) AddUserToGroupMapping(ctx context.Context, user identity.User, group identity.Group) error {
	return c.put(ctx, routeUserGroupMapping(user, group))
}

func (c *httpClient) RemoveUserToGroupMapping(ctx context.Context, user identity.User, group identity.Group) error {
	return c.delete(ctx, routeUserGroupMapping(user, group))
}

func (c *httpClient) GetUserToGroupMappings(ctx context.Context, user identity.User, includeIndirect bool) ([]identity.Group, error) {
	var out []identity.Group
	err := c.getInto(ctx, routeUserGroups(user)+"?"+boolQuery(includeIndirect), &out)
	return out, err
}

func (c *httpClient) GetGroupToUserMappings(ctx context.Context, groups []identity.Group, includeIndirect bool) ([]identity.User, error) {
	var out []identity.User
	err := c.getWithBody(ctx, routeGroupUsers()+"?"+boolQuery(includeIndirect), groupsBody{Groups: groups}, &out)
	return out, err
}

// --- Group <-> group mappings ---

func (c *httpClient) AddGroupToGroupMapping(ctx context.Context, fromGroup, toGroup identity.Group) error {
	return c.put(ctx, routeGroupGroupMapping(fromGroup, toGroup))
}

func (c *httpClient) RemoveGroupToGroupMapping(ctx context.Context, fromGroup, toGroup identity.Group) error {
	return c.delete(ctx, routeGroupGroupMapping(fromGroup, toGroup))
}

func (c *httpClient) GetGroupToGroupMappings(ctx context.Context, fromGroups []identity.Group) ([]identity.Group, error) {
	var out []identity.Group
	err := c.getWithBody(ctx, routeGroupGroupMappings(), groupsBody{Groups: fromGroups}, &out)
	return out, err
}

// --- User/group <-> component-access mappings ---

func (c *httpClient) AddUserToApplicationComponentAndAccessLevelMapping(ctx context.Context, user identity.User, component identity.Component, level identity.AccessLevel) error {
	return c.put(ctx, routeUserComponentAccess(user, component, level))
}

func (c *httpClient) RemoveUserToApplicationComponentAndAccessLevelMapping(ctx context.Context, user identity.User, component identity.Component, level identity.AccessLevel) error {
	return c.delete(ctx, routeUserComponentAccess(user, component, level))
}

func (c *httpClient) AddGroupToApplicationComponentAndAccessLevelMapping(ctx context.Context, group identity.Group, component identity.Component, level identity.AccessLevel) error {
	return c.put(ctx, routeGroupComponentAccess(group, component, level))
}

func (c *httpClient) RemoveGroupToApplicationComponentAndAccessLevelMapping(ctx context.Context, group identity.Group, component identity.Component, level identity.AccessLevel) error {
	return c.delete(ctx, routeGroupComponentAccess(group, component, level))
}

// --- Entity types and entities ---

func (c *httpClient) AddEntityType(ctx context.Context, entityType identity.EntityType) error {
	return c.put(ctx, routeEntityType(entityType))
}

func (c *httpClient) RemoveEntityType(ctx context.Context, entityType identity.EntityType) error {
	return c.delete(ctx, routeEntityType(entityType))
}

func (c *httpClient) ContainsEntityType(ctx context.Context, entityType identity.EntityType) (bool, error) {
	var out bool
	err := c.getInto(ctx, routeEntityType(entityType), &out)
	return out, err
}

func (c *httpClient) GetEntityTypes(ctx context.Context) ([]identity.EntityType, error) {
	var out []identity.EntityType
	err := c.getInto(ctx, routeEntityTypes(), &out)
	return out, err
}

func (c *httpClient) AddEntity(ctx context.Context, entityType identity.EntityType, entity identity.Entity) error {
	return c.put(ctx, routeEntity(entityType, entity))
}

func (c *httpClient) RemoveEntity(ctx context.Context, entityType identity.EntityType, entity identity.Entity) error {
	return c.delete(ctx, routeEntity(entityType, entity))
}

func (c *httpClient) ContainsEntity(ctx context.Context, entityType identity.EntityType, entity identity.Entity) (bool, error) {
	var out bool
	err := c.getInto(ctx, routeEntity(entityType, entity), &out)
	return out, err
}

func (c *httpClient) GetEntities(ctx context.Context, entityType identity.EntityType) ([]identity.Entity, error) {
	var out []identity.Entity
	err := c.getInto(ctx, routeEntities(entityType), &out)
	return out, err
}

// --- User/group <-> entity mappings ---

func (c *httpClient) AddUserToEntityMapping(ctx context.Context, user identity.User, entityType identity.EntityType, entity identity.Entity) error {
	return c.put(ctx, routeUserEntityMapping(user, entityType, entity))
}

func (c *httpClient) RemoveUserToEntityMapping(ctx context.Context, user identity.User, entityType identity.EntityType, entity identity.Entity) error {
	return c.delete(ctx, routeUserEntityMapping(user, entityType, entity))
}

func (c *httpClient) AddGroupToEntityMapping(ctx context.Context, group identity.Group, entityType identity.EntityType, entity identity.Entity) error {
	return c.put(ctx, routeGroupEntityMapping(group, entityType, entity))
}

func (c *httpClient) RemoveGroupToEntityMapping(ctx context.Context, group identity.Group, entityType identity.EntityType, entity identity.Entity) error {
	return c.delete(ctx, routeGroupEntityMapping(group, entityType, entity))
}

// --- Authorization queries ---

func (c *httpClient) HasAccessToApplicationComponent(ctx context.Context, user identity.User, component identity.Component, level identity.AccessLevel) (bool, error) {
	var out bool
	err := c.getInto(ctx, routeUserComponentHasAccess(user, component, level), &out)
	return out, err
}

func (c *httpClient) HasAccessToApplicationComponentForGroups(ctx context.Context, groups []identity.Group, component identity.Component, level identity.AccessLevel) (bool, error) {
	var out bool
	err := c.getWithBody(ctx, routeGroupsComponentHasAccess(component, level), groupsBody{Groups: groups}, &out)
	return out, err
}

func (c *httpClient) HasAccessToEntity(ctx context.Context, user identity.User, entityType identity.EntityType, entity identity.Entity) (bool, error) {
	var out bool
	err := c.getInto(ctx, routeUserEntityHasAccess(user, entityType, entity), &out)
	return out, err
}

func (c *httpClient) HasAccessToEntityForGroups(ctx context.Context, groups []identity.Group, entityType identity.EntityType, entity identity.Entity) (bool, error) {
	var out bool
	err := c.getWithBody(ctx, routeGroupsEntityHasAccess(entityType, entity), groupsBody{Groups: groups}, &out)
	return out, err
}

func (c *httpClient) GetApplicationComponentsAccessibleByUser(ctx context.Context, user identity.User) ([]identity.ApplicationComponentAndAccessLevel, error) {
	var out []identity.ApplicationComponentAndAccessLevel
	err := c.getInto(ctx, routeUserAccessibleComponents(user), &out)
	return out, err
}

func (c *httpClient) GetApplicationComponentsAccessibleByGroups(ctx context.Context, groups []identity.Group) ([]identity.ApplicationComponentAndAccessLevel, error) {
	var out []identity.ApplicationComponentAndAccessLevel
	err := c.getWithBody(ctx, routeGroupsAccessibleComponents(), groupsBody{Groups: groups}, &out)
	return out, err
}

func (c *httpClient) GetEntitiesAccessibleByUser(ctx context.Context, user identity.User) ([]identity.EntityTypeAndEntity, error) {
	var out []identity.EntityTypeAndEntity
	err := c.getInto(ctx, routeUserAccessibleEntities(user), &out)
	return out, err
}

func (c *httpClient) GetEntitiesAccessibleByUserForType(ctx context.Context, user identity.User, entityType identity.EntityType) ([]identity.Entity, error) {
	var out []identity.Entity
	err := c.getInto(ctx, routeUserAccessibleEntitiesForType(user, entityType), &out)
	return out, err
}

func (c *httpClient) GetEntitiesAccessibleByGroups(ctx context.Context, groups []identity.Group) ([]identity.EntityTypeAndEntity, error) {
	var out []identity.EntityTypeAndEntity
	err := c.getWithBody(ctx, routeGroupsAccessibleEntities(), groupsBody{Groups: groups}, &out)
	return out, err
}

func (c *httpClient) GetEntitiesAccessibleByGroupsForType(ctx context.Context, groups []identity.Group, entityType identity.EntityType) ([]identity.Entity, error) {
	var out []identity.Entity
	err := c.getWithBody(ctx, routeGroupsAccessibleEntitiesForType(entityType), groupsBody{Groups: groups}, &out)
	return out, err
}
