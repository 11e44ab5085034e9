// Package partition implements the hash partitioner: the deterministic,
// well-distributed mapping from an identifier to the shard that owns it.
//
// The hash algorithm is part of the wire contract (spec §4.1) — changing
// it re-routes every piece of data in the system — so it is pinned to
// FNV-1a, the same non-cryptographic hash the teacher repository already
// uses for its own consistent-hashing shard lookup.
package partition

import (
	"fmt"
	"hash/fnv"
	"sort"

	"github.com/dreamware/accesscoordinator/internal/shardconfig"
)

// Hash computes the deterministic 32-bit hash of a stringified
// identifier. Stable across restarts and processes.
func Hash(id fmt.Stringer) uint32 {
	h := fnv.New32a()
	_, _ = h.Write([]byte(id.String()))
	return h.Sum32()
}

// Select returns the descriptor, among those matching (element, op),
// whose HashRangeStart is the greatest value <= h. The caller is
// responsible for filtering descriptors to the relevant role; Select
// sorts a copy by HashRangeStart and binary-searches it, so the input
// order does not matter.
//
// ok is false only if descriptors is empty after filtering, meaning no
// shard is configured for the requested role.
func Select(descriptors []shardconfig.ShardDescriptor, h uint32) (shardconfig.ShardDescriptor, bool) {
	if len(descriptors) == 0 {
		return shardconfig.ShardDescriptor{}, false
	}
	sorted := make([]shardconfig.ShardDescriptor, len(descriptors))
	copy(sorted, descriptors)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].HashRangeStart < sorted[j].HashRangeStart })

	// Find the last descriptor whose HashRangeStart is <= h.
	idx := sort.Search(len(sorted), func(i int) bool { return sorted[i].HashRangeStart > h }) - 1
	if idx < 0 {
		// No descriptor starts at or below h; since a valid set always
		// starts at 0, this only happens against an invalid/empty set.
		idx = 0
	}
	return sorted[idx], true
}

// SelectForIdentifier is a convenience wrapper combining Hash and Select
// for a single identifier routed against a specific (element, op) role's
// descriptor slice (already filtered by the caller).
func SelectForIdentifier(descriptors []shardconfig.ShardDescriptor, id fmt.Stringer) (shardconfig.ShardDescriptor, bool) {
	return Select(descriptors, Hash(id))
}

// Group pairs a descriptor with the subset of identifiers it owns.
type Group[T fmt.Stringer] struct {
	Descriptor shardconfig.ShardDescriptor
	IDs        []T
}

// GroupByShard groups a set of identifiers by the descriptor that owns
// each of them, among the given role's descriptors. It is the building
// block for ShardClientManager.GetClients and for the group-to-group /
// group-side expansion steps of the transitive-closure query.
//
// Descriptors are compared by (element, op, hashRangeStart) identity
// rather than by Go equality, since ShardDescriptor embeds an interface
// field (ClientConfig.Policy) that isn't safe as a map key in general.
func GroupByShard[T fmt.Stringer](descriptors []shardconfig.ShardDescriptor, ids []T) []Group[T] {
	type dkey struct {
		element        int
		op             int
		hashRangeStart uint32
	}
	index := make(map[dkey]int)
	var groups []Group[T]

	for _, id := range ids {
		d, ok := SelectForIdentifier(descriptors, id)
		if !ok {
			continue
		}
		k := dkey{element: int(d.Element), op: int(d.Op), hashRangeStart: d.HashRangeStart}
		if i, exists := index[k]; exists {
			groups[i].IDs = append(groups[i].IDs, id)
			continue
		}
		index[k] = len(groups)
		groups = append(groups, Group[T]{Descriptor: d, IDs: []T{id}})
	}
	return groups
}
