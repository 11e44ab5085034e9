package coordinator

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/uber-go/tally"

	"github.com/dreamware/accesscoordinator/internal/identity"
	"github.com/dreamware/accesscoordinator/internal/metrics"
	"github.com/dreamware/accesscoordinator/internal/shardclient"
	"github.com/dreamware/accesscoordinator/internal/shardconfig"
	"github.com/dreamware/accesscoordinator/internal/shardmgr"
)

// fakeClient is a minimal shardclient.Client double: the embedded nil
// interface satisfies every method this suite doesn't override, so each
// test only wires the handful of calls its scenario actually exercises.
// An unoverridden, exercised method panics on a nil-interface call,
// which is the point — it flags a scenario reaching further than the
// test modeled.
type fakeClient struct {
	shardclient.Client

	addUserFn                         func(ctx context.Context, user identity.User) error
	containsUserFn                    func(ctx context.Context, user identity.User) (bool, error)
	getUsersFn                        func(ctx context.Context) ([]identity.User, error)
	removeGroupFn                     func(ctx context.Context, group identity.Group) error
	getUserToGroupMappingsFn          func(ctx context.Context, user identity.User, includeIndirect bool) ([]identity.Group, error)
	hasAccessToComponentFn            func(ctx context.Context, user identity.User, component identity.Component, level identity.AccessLevel) (bool, error)
	getGroupToGroupMappingsFn         func(ctx context.Context, fromGroups []identity.Group) ([]identity.Group, error)
	hasAccessToComponentForGroupsFn   func(ctx context.Context, groups []identity.Group, component identity.Component, level identity.AccessLevel) (bool, error)
}

func (f *fakeClient) AddUser(ctx context.Context, user identity.User) error {
	return f.addUserFn(ctx, user)
}

func (f *fakeClient) ContainsUser(ctx context.Context, user identity.User) (bool, error) {
	return f.containsUserFn(ctx, user)
}

func (f *fakeClient) GetUsers(ctx context.Context) ([]identity.User, error) {
	return f.getUsersFn(ctx)
}

func (f *fakeClient) RemoveGroup(ctx context.Context, group identity.Group) error {
	return f.removeGroupFn(ctx, group)
}

func (f *fakeClient) GetUserToGroupMappings(ctx context.Context, user identity.User, includeIndirect bool) ([]identity.Group, error) {
	return f.getUserToGroupMappingsFn(ctx, user, includeIndirect)
}

func (f *fakeClient) HasAccessToApplicationComponent(ctx context.Context, user identity.User, component identity.Component, level identity.AccessLevel) (bool, error) {
	return f.hasAccessToComponentFn(ctx, user, component, level)
}

func (f *fakeClient) GetGroupToGroupMappings(ctx context.Context, fromGroups []identity.Group) ([]identity.Group, error) {
	return f.getGroupToGroupMappingsFn(ctx, fromGroups)
}

func (f *fakeClient) HasAccessToApplicationComponentForGroups(ctx context.Context, groups []identity.Group, component identity.Component, level identity.AccessLevel) (bool, error) {
	return f.hasAccessToComponentForGroupsFn(ctx, groups, component, level)
}

func (f *fakeClient) Close() error { return nil }

// registryFactory resolves a shardmgr.ClientFactory against a
// baseURL->client lookup table, so each descriptor's ClientConfig.BaseURL
// doubles as a handle picking out the fake wired for that shard.
func registryFactory(registry map[string]shardclient.Client) shardmgr.ClientFactory {
	return func(cfg shardconfig.ClientConfig) (shardclient.Client, error) {
		c, ok := registry[cfg.BaseURL]
		if !ok {
			return nil, errors.New("no fake registered for " + cfg.BaseURL)
		}
		return c, nil
	}
}

func descriptor(element identity.DataElementKind, op identity.OperationKind, hashRangeStart uint32, baseURL string) shardconfig.ShardDescriptor {
	return shardconfig.ShardDescriptor{
		Element:        element,
		Op:             op,
		HashRangeStart: hashRangeStart,
		Description:    baseURL,
		ClientConfig:   shardconfig.ClientConfig{BaseURL: baseURL},
	}
}

// Scenario 1: simple user add + query (spec.md §8 scenario 1).
func TestScenario1_SimpleAddAndQuery(t *testing.T) {
	var addedUser identity.User

	eventClient := &fakeClient{addUserFn: func(ctx context.Context, user identity.User) error {
		addedUser = user
		return nil
	}}
	queryClient := &fakeClient{containsUserFn: func(ctx context.Context, user identity.User) (bool, error) {
		return user == addedUser, nil
	}}

	set := shardconfig.New([]shardconfig.ShardDescriptor{
		descriptor(identity.ElementUser, identity.OpEvent, 0, "event-shard"),
		descriptor(identity.ElementUser, identity.OpQuery, 0, "query-shard"),
	})
	mgr, err := shardmgr.New(set, registryFactory(map[string]shardclient.Client{
		"event-shard": eventClient,
		"query-shard": queryClient,
	}))
	require.NoError(t, err)
	defer mgr.Close()

	scope := tally.NewTestScope("", nil)
	c := New(mgr, metrics.New(scope), nil)

	require.NoError(t, c.AddUser(context.Background(), "user1"))
	assert.Equal(t, identity.User("user1"), addedUser)

	contains, err := c.ContainsUser(context.Background(), "user1")
	require.NoError(t, err)
	assert.True(t, contains)

	snapshot := scope.Snapshot()
	assert.NotEmpty(t, snapshot.Timers(), "AddUser and ContainsUser should each record a duration")

	counterValues := make(map[string]int64, len(snapshot.Counters()))
	for _, c := range snapshot.Counters() {
		counterValues[c.Name()] = c.Value()
	}
	assert.EqualValues(t, 1, counterValues["UserAdded"])
	assert.EqualValues(t, 1, counterValues["ContainsUserQuery"])
}

func threeUserQueryShards(t *testing.T, results [3]func(ctx context.Context) ([]identity.User, error)) *shardmgr.Manager {
	t.Helper()
	registry := map[string]shardclient.Client{
		"shard-1": &fakeClient{getUsersFn: results[0]},
		"shard-2": &fakeClient{getUsersFn: results[1]},
		"shard-3": &fakeClient{getUsersFn: results[2]},
	}
	set := shardconfig.New([]shardconfig.ShardDescriptor{
		descriptor(identity.ElementUser, identity.OpQuery, 0, "shard-1"),
		descriptor(identity.ElementUser, identity.OpQuery, 1431655765, "shard-2"),
		descriptor(identity.ElementUser, identity.OpQuery, 2863311530, "shard-3"),
	})
	mgr, err := shardmgr.New(set, registryFactory(registry))
	require.NoError(t, err)
	t.Cleanup(func() { mgr.Close() })
	return mgr
}

// Scenario 2: fan-out list across three shards, deduplicated union
// (spec.md §8 scenario 2).
func TestScenario2_FanOutListUnion(t *testing.T) {
	mgr := threeUserQueryShards(t, [3]func(ctx context.Context) ([]identity.User, error){
		func(ctx context.Context) ([]identity.User, error) { return []identity.User{"user1", "user2", "user3"}, nil },
		func(ctx context.Context) ([]identity.User, error) { return nil, nil },
		func(ctx context.Context) ([]identity.User, error) { return []identity.User{"user4", "user5", "user6"}, nil },
	})

	c := New(mgr, metrics.Noop(), nil)
	users, err := c.GetUsers(context.Background())
	require.NoError(t, err)
	assert.ElementsMatch(t, []identity.User{"user1", "user2", "user3", "user4", "user5", "user6"}, users)
}

// Scenario 3: fan-out with one shard failing — the whole operation
// fails with a message naming that shard's description, wrapping the
// original cause (spec.md §8 scenario 3).
func TestScenario3_FanOutWithFailure(t *testing.T) {
	cause := errors.New("boom")
	mgr := threeUserQueryShards(t, [3]func(ctx context.Context) ([]identity.User, error){
		func(ctx context.Context) ([]identity.User, error) { return []identity.User{"user1"}, nil },
		func(ctx context.Context) ([]identity.User, error) { return nil, cause },
		func(ctx context.Context) ([]identity.User, error) { return []identity.User{"user4"}, nil },
	})

	c := New(mgr, metrics.Noop(), nil)
	users, err := c.GetUsers(context.Background())
	require.Error(t, err)
	assert.Nil(t, users)
	assert.Contains(t, err.Error(), "Failed to retrieve users from shard with configuration 'shard-2'.")
	assert.ErrorIs(t, err, cause)
}

// Scenario 4: cross-shard user->group transitive authorization
// (spec.md §8 scenario 4), simplified to one Group-query shard per the
// test's own grouping rather than reproducing the source's exact
// two-shard hash split, which would require pinning FNV-1a outputs for
// specific group names.
func TestScenario4_TransitiveAuthorization(t *testing.T) {
	userQuery := &fakeClient{
		hasAccessToComponentFn: func(ctx context.Context, user identity.User, component identity.Component, level identity.AccessLevel) (bool, error) {
			return false, nil
		},
		getUserToGroupMappingsFn: func(ctx context.Context, user identity.User, includeIndirect bool) ([]identity.Group, error) {
			return []identity.Group{"group2", "group3", "group1"}, nil
		},
	}
	groupToGroup := &fakeClient{
		getGroupToGroupMappingsFn: func(ctx context.Context, fromGroups []identity.Group) ([]identity.Group, error) {
			return []identity.Group{"group1", "group2", "group3", "group4", "group5", "group6"}, nil
		},
	}
	groupQuery := &fakeClient{
		hasAccessToComponentForGroupsFn: func(ctx context.Context, groups []identity.Group, component identity.Component, level identity.AccessLevel) (bool, error) {
			return true, nil
		},
	}

	set := shardconfig.New([]shardconfig.ShardDescriptor{
		descriptor(identity.ElementUser, identity.OpQuery, 0, "user-query"),
		descriptor(identity.ElementGroupToGroupMapping, identity.OpQuery, 0, "g2g-query"),
		descriptor(identity.ElementGroup, identity.OpQuery, 0, "group-query"),
	})
	mgr, err := shardmgr.New(set, registryFactory(map[string]shardclient.Client{
		"user-query":  userQuery,
		"g2g-query":   groupToGroup,
		"group-query": groupQuery,
	}))
	require.NoError(t, err)
	defer mgr.Close()

	c := New(mgr, metrics.Noop(), nil)
	has, err := c.HasAccessToApplicationComponent(context.Background(), "u", "Order", "Create")
	require.NoError(t, err)
	assert.True(t, has, "u should transitively reach the group-side access grant")
}

// Scenario 5: group removal fans out to every User-, Group-, and
// GroupToGroupMapping-event shard; a failing shard doesn't stop the
// others from being called, since fanOutAll runs every sibling to
// completion regardless (spec.md §8 scenario 5).
func TestScenario5_GroupRemovalCascadeTolerant(t *testing.T) {
	var calls int32
	okRemove := func(ctx context.Context, group identity.Group) error {
		atomic.AddInt32(&calls, 1)
		return nil
	}
	failRemove := func(ctx context.Context, group identity.Group) error {
		atomic.AddInt32(&calls, 1)
		return errors.New("backend unavailable")
	}

	registry := map[string]shardclient.Client{
		"user-event-1": &fakeClient{removeGroupFn: okRemove},
		"user-event-2": &fakeClient{removeGroupFn: okRemove},
		"group-event":  &fakeClient{removeGroupFn: okRemove},
		"g2g-event-1":  &fakeClient{removeGroupFn: okRemove},
		"g2g-event-2":  &fakeClient{removeGroupFn: failRemove},
	}
	set := shardconfig.New([]shardconfig.ShardDescriptor{
		descriptor(identity.ElementUser, identity.OpEvent, 0, "user-event-1"),
		descriptor(identity.ElementUser, identity.OpEvent, 2147483648, "user-event-2"),
		descriptor(identity.ElementGroup, identity.OpEvent, 0, "group-event"),
		descriptor(identity.ElementGroupToGroupMapping, identity.OpEvent, 0, "g2g-event-1"),
		descriptor(identity.ElementGroupToGroupMapping, identity.OpEvent, 2147483648, "g2g-event-2"),
	})
	mgr, err := shardmgr.New(set, registryFactory(registry))
	require.NoError(t, err)
	defer mgr.Close()

	c := New(mgr, metrics.Noop(), nil)
	err = c.RemoveGroup(context.Background(), "group1")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Failed to remove group 'group1' from shard with configuration 'g2g-event-2'.")
	assert.EqualValues(t, 5, atomic.LoadInt32(&calls), "every shard must still be called despite one failing")
}

// Scenario 6: a configuration refresh mid-flight must not tear the
// snapshot an in-flight fan-out already captured (spec.md §8 scenario
// 6). GetAllClients loads the snapshot once per call, so a slow
// in-flight GetUsers keeps dispatching to the pre-refresh clients even
// after RefreshConfiguration installs a new set.
func TestScenario6_RefreshDoesNotTearInFlightQuery(t *testing.T) {
	release := make(chan struct{})
	var oldCalls, newCalls int32

	oldShard := &fakeClient{getUsersFn: func(ctx context.Context) ([]identity.User, error) {
		<-release
		atomic.AddInt32(&oldCalls, 1)
		return []identity.User{"from-old"}, nil
	}}
	newShard := &fakeClient{getUsersFn: func(ctx context.Context) ([]identity.User, error) {
		atomic.AddInt32(&newCalls, 1)
		return []identity.User{"from-new"}, nil
	}}

	registry := map[string]shardclient.Client{
		"old-shard": oldShard,
		"new-shard": newShard,
	}
	oldSet := shardconfig.New([]shardconfig.ShardDescriptor{
		descriptor(identity.ElementUser, identity.OpQuery, 0, "old-shard"),
	})
	newSet := shardconfig.New([]shardconfig.ShardDescriptor{
		descriptor(identity.ElementUser, identity.OpQuery, 0, "new-shard"),
	})
	mgr, err := shardmgr.New(oldSet, registryFactory(registry))
	require.NoError(t, err)
	defer mgr.Close()

	c := New(mgr, metrics.Noop(), nil)

	done := make(chan struct{})
	go func() {
		defer close(done)
		users, err := c.GetUsers(context.Background())
		require.NoError(t, err)
		assert.Equal(t, []identity.User{"from-old"}, users)
	}()

	// Give GetUsers time to load its snapshot before the refresh swaps it.
	time.Sleep(20 * time.Millisecond)
	require.NoError(t, mgr.RefreshConfiguration(context.Background(), newSet))
	close(release)
	<-done

	users, err := c.GetUsers(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []identity.User{"from-new"}, users, "a query issued after refresh observes the new set")
	assert.EqualValues(t, 1, atomic.LoadInt32(&oldCalls))
	assert.EqualValues(t, 1, atomic.LoadInt32(&newCalls))
}
