// Package shardmgr implements the Shard Client Manager (spec §4.3): the
// component that owns the live ShardConfigurationSet, keeps one
// shardclient.Client per shard descriptor, routes identifiers to the
// client that owns them, and replaces the whole topology atomically
// when a new configuration is pushed.
//
// Grounded on the teacher's ShardRegistry (RWMutex-guarded map,
// copy-on-read) but generalized to an atomic.Pointer-swapped
// immutable snapshot: spec §4.3 requires that a caller never observes
// a torn mixture of old and new clients mid-refresh, which an
// RWMutex-guarded mutable map cannot guarantee as cheaply as swapping
// one pointer.
package shardmgr

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"golang.org/x/exp/slices"
	"golang.org/x/sync/errgroup"

	"github.com/dreamware/accesscoordinator/internal/identity"
	"github.com/dreamware/accesscoordinator/internal/partition"
	"github.com/dreamware/accesscoordinator/internal/shardclient"
	"github.com/dreamware/accesscoordinator/internal/shardconfig"
)

// ClientFactory builds a shardclient.Client from a ClientConfig. It is
// shardclient.NewClient in production and a stub in tests.
type ClientFactory func(shardconfig.ClientConfig) (shardclient.Client, error)

type shardKey struct {
	element        identity.DataElementKind
	op             identity.OperationKind
	hashRangeStart uint32
}

func keyOf(d shardconfig.ShardDescriptor) shardKey {
	return shardKey{element: d.Element, op: d.Op, hashRangeStart: d.HashRangeStart}
}

// ClientBinding pairs a live client with the descriptor it was built
// from, for callers (the Operation Coordinator's fan-out patterns) that
// need both.
type ClientBinding struct {
	Descriptor shardconfig.ShardDescriptor
	Client     shardclient.Client
}

// ClientGroup pairs a ClientBinding with the subset of identifiers that
// route to it — the result shape of GetClients.
type ClientGroup[T fmt.Stringer] struct {
	ClientBinding
	IDs []T
}

type snapshot struct {
	config  shardconfig.ShardConfigurationSet
	clients map[shardKey]shardclient.Client
}

// Manager is the Shard Client Manager.
type Manager struct {
	current   atomic.Pointer[snapshot]
	newClient ClientFactory
	refreshMu sync.Mutex
}

// New builds a Manager from an initial, already-validated
// ShardConfigurationSet, constructing one client per descriptor
// concurrently. If any client fails to construct, no partial Manager is
// returned.
func New(initial shardconfig.ShardConfigurationSet, factory ClientFactory) (*Manager, error) {
	if factory == nil {
		factory = shardclient.NewClient
	}
	if err := initial.Validate(); err != nil {
		return nil, &ShardConfigurationRefreshError{Reason: "initial configuration invalid", Cause: err}
	}

	clients, err := buildClients(initial.Descriptors(), factory)
	if err != nil {
		return nil, err
	}

	m := &Manager{newClient: factory}
	m.current.Store(&snapshot{config: initial, clients: clients})
	return m, nil
}

func buildClients(descriptors []shardconfig.ShardDescriptor, factory ClientFactory) (map[shardKey]shardclient.Client, error) {
	results := make([]shardclient.Client, len(descriptors))
	g := new(errgroup.Group)
	for i, d := range descriptors {
		i, d := i, d
		g.Go(func() error {
			c, err := factory(d.ClientConfig)
			if err != nil {
				return &ShardConfigurationRefreshError{
					Reason: fmt.Sprintf("building client for shard %q (%s/%s)", d.Description, d.Element, d.Op),
					Cause:  err,
				}
			}
			results[i] = c
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		for _, c := range results {
			if c != nil {
				_ = c.Close()
			}
		}
		return nil, err
	}

	out := make(map[shardKey]shardclient.Client, len(descriptors))
	for i, d := range descriptors {
		out[keyOf(d)] = results[i]
	}
	return out, nil
}

// RefreshConfiguration atomically replaces the live topology with
// newSet. Descriptors whose (element, op, hashRangeStart, reachability,
// retry bound) are unchanged keep their existing client — only changed
// or newly-added descriptors get a freshly built client. If newSet is
// invalid, or any new client fails to build, the refresh is aborted and
// the Manager continues serving the previous configuration unchanged.
func (m *Manager) RefreshConfiguration(ctx context.Context, newSet shardconfig.ShardConfigurationSet) error {
	if err := newSet.Validate(); err != nil {
		return &ShardConfigurationRefreshError{Reason: "new configuration invalid", Cause: err}
	}

	m.refreshMu.Lock()
	defer m.refreshMu.Unlock()

	old := m.current.Load()
	newDescriptors := newSet.Descriptors()

	reused := make(map[shardKey]shardclient.Client)
	var toBuild []shardconfig.ShardDescriptor

	for _, d := range newDescriptors {
		k := keyOf(d)
		if existing, ok := old.clients[k]; ok && descriptorReachabilityUnchanged(old.config, d) {
			reused[k] = existing
			continue
		}
		toBuild = append(toBuild, d)
	}

	built, err := buildClients(toBuild, m.newClient)
	if err != nil {
		return err
	}

	next := make(map[shardKey]shardclient.Client, len(newDescriptors))
	for k, c := range reused {
		next[k] = c
	}
	for k, c := range built {
		next[k] = c
	}

	m.current.Store(&snapshot{config: newSet, clients: next})

	// Close every old client the new snapshot did not reuse (descriptors
	// removed from the set, or replaced by a freshly built client); safe
	// now that no new lookup can observe them.
	for k, c := range old.clients {
		if _, kept := reused[k]; !kept {
			_ = c.Close()
		}
	}
	return nil
}

func descriptorReachabilityUnchanged(old shardconfig.ShardConfigurationSet, d shardconfig.ShardDescriptor) bool {
	oldDescriptors := old.Descriptors()
	idx := slices.IndexFunc(oldDescriptors, func(o shardconfig.ShardDescriptor) bool { return keyOf(o) == keyOf(d) })
	if idx < 0 {
		return false
	}
	o := oldDescriptors[idx]
	return o.ClientConfig.BaseURL == d.ClientConfig.BaseURL &&
		o.ClientConfig.RetryCount == d.ClientConfig.RetryCount &&
		o.ClientConfig.RetryIntervalSeconds == d.ClientConfig.RetryIntervalSeconds
}

// Configuration returns the currently active ShardConfigurationSet.
func (m *Manager) Configuration() shardconfig.ShardConfigurationSet {
	return m.current.Load().config
}

// GetClient resolves the single client that owns id under (element,
// op). ok is false if no shard is configured for that role.
func (m *Manager) GetClient(element identity.DataElementKind, op identity.OperationKind, id fmt.Stringer) (ClientBinding, bool) {
	snap := m.current.Load()
	descriptors := snap.config.ForRole(element, op)
	d, ok := partition.SelectForIdentifier(descriptors, id)
	if !ok {
		return ClientBinding{}, false
	}
	return ClientBinding{Descriptor: d, Client: snap.clients[keyOf(d)]}, true
}

// GetClients groups ids by the client that owns each of them, for a
// fan-out dispatch across a subset of shards (spec §4.6 P5/P6).
func GetClients[T fmt.Stringer](m *Manager, element identity.DataElementKind, op identity.OperationKind, ids []T) []ClientGroup[T] {
	snap := m.current.Load()
	descriptors := snap.config.ForRole(element, op)
	groups := partition.GroupByShard(descriptors, ids)

	out := make([]ClientGroup[T], 0, len(groups))
	for _, g := range groups {
		out = append(out, ClientGroup[T]{
			ClientBinding: ClientBinding{Descriptor: g.Descriptor, Client: snap.clients[keyOf(g.Descriptor)]},
			IDs:           g.IDs,
		})
	}
	return out
}

// GetAllClients returns every client configured for (element, op), for
// the full fan-out dispatch patterns (spec §4.6 P4).
func (m *Manager) GetAllClients(element identity.DataElementKind, op identity.OperationKind) []ClientBinding {
	snap := m.current.Load()
	descriptors := snap.config.ForRole(element, op)
	out := make([]ClientBinding, 0, len(descriptors))
	for _, d := range descriptors {
		out = append(out, ClientBinding{Descriptor: d, Client: snap.clients[keyOf(d)]})
	}
	return out
}

// Close releases every live client. Called once at shutdown.
func (m *Manager) Close() error {
	snap := m.current.Load()
	for _, c := range snap.clients {
		_ = c.Close()
	}
	return nil
}
