// Package shardconfig defines the immutable configuration value types that
// describe a deployment's shard topology: which backend nodes exist, what
// hash range and role each owns, and how to reach them.
//
// A ShardConfigurationSet is produced whole by an external configuration
// source (a file, an admin API call) and handed to the shard client
// manager via RefreshConfiguration — it is never mutated in place.
package shardconfig

import (
	"fmt"
	"sort"

	"github.com/cenkalti/backoff/v4"

	"github.com/dreamware/accesscoordinator/internal/identity"
)

// ClientConfig describes how to reach and retry calls against one shard's
// backend node: its base URL and its retry policy. RetryCount and
// RetryIntervalSeconds configure the default fixed-interval bounded
// retry; Policy, if non-nil, is used instead and makes RetryCount/
// RetryIntervalSeconds mutually exclusive with it (the Client Factory
// rejects both being set).
type ClientConfig struct {
	// Policy, when set, overrides the fixed-interval retry policy built
	// from RetryCount/RetryIntervalSeconds.
	Policy backoff.BackOff

	BaseURL string

	// RetryCount must be in [0,59] when Policy is nil.
	RetryCount int

	// RetryIntervalSeconds must be in [0,120] when Policy is nil.
	RetryIntervalSeconds int
}

// ShardDescriptor names one shard: the data element and operation kind it
// serves, the start of its hash range, how to reach its backend, and a
// human-readable description used in error messages and logs.
type ShardDescriptor struct {
	Element        identity.DataElementKind
	Op             identity.OperationKind
	HashRangeStart uint32
	ClientConfig   ClientConfig
	Description    string
}

// key identifies a (element, op, hashRangeStart) triple — descriptors
// with the same key are considered "the same shard" across a refresh.
type key struct {
	element        identity.DataElementKind
	op             identity.OperationKind
	hashRangeStart uint32
}

func keyOf(d ShardDescriptor) key {
	return key{element: d.Element, op: d.Op, hashRangeStart: d.HashRangeStart}
}

// ShardConfigurationSet is an immutable, ordered list of shard
// descriptors: the complete shard topology valid at one instant.
type ShardConfigurationSet struct {
	descriptors []ShardDescriptor
}

// New builds a ShardConfigurationSet from a slice of descriptors. The
// slice is copied so later mutation of the caller's slice cannot affect
// the set.
func New(descriptors []ShardDescriptor) ShardConfigurationSet {
	cp := make([]ShardDescriptor, len(descriptors))
	copy(cp, descriptors)
	return ShardConfigurationSet{descriptors: cp}
}

// Descriptors returns a copy of the descriptor list, safe for the caller
// to retain or mutate without affecting the set.
func (s ShardConfigurationSet) Descriptors() []ShardDescriptor {
	cp := make([]ShardDescriptor, len(s.descriptors))
	copy(cp, s.descriptors)
	return cp
}

// Len reports the number of descriptors in the set.
func (s ShardConfigurationSet) Len() int { return len(s.descriptors) }

// ForRole returns the descriptors matching the given (element, op) pair,
// sorted by ascending HashRangeStart.
func (s ShardConfigurationSet) ForRole(element identity.DataElementKind, op identity.OperationKind) []ShardDescriptor {
	var out []ShardDescriptor
	for _, d := range s.descriptors {
		if d.Element == element && d.Op == op {
			out = append(out, d)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].HashRangeStart < out[j].HashRangeStart })
	return out
}

// Equal reports whether two sets contain the same descriptors,
// irrespective of order. ClientConfig.Policy (an interface value) is
// deliberately excluded from the comparison — only the reachability and
// retry-bound fields that affect routing/retry behavior are compared.
func (s ShardConfigurationSet) Equal(other ShardConfigurationSet) bool {
	if len(s.descriptors) != len(other.descriptors) {
		return false
	}
	a := s.sortedCopy()
	b := other.sortedCopy()
	for i := range a {
		if !sameDescriptor(a[i], b[i]) {
			return false
		}
	}
	return true
}

func sameDescriptor(a, b ShardDescriptor) bool {
	return a.Element == b.Element &&
		a.Op == b.Op &&
		a.HashRangeStart == b.HashRangeStart &&
		a.Description == b.Description &&
		a.ClientConfig.BaseURL == b.ClientConfig.BaseURL &&
		a.ClientConfig.RetryCount == b.ClientConfig.RetryCount &&
		a.ClientConfig.RetryIntervalSeconds == b.ClientConfig.RetryIntervalSeconds
}

func (s ShardConfigurationSet) sortedCopy() []ShardDescriptor {
	cp := s.Descriptors()
	sort.Slice(cp, func(i, j int) bool {
		ki, kj := keyOf(cp[i]), keyOf(cp[j])
		if ki.element != kj.element {
			return ki.element < kj.element
		}
		if ki.op != kj.op {
			return ki.op < kj.op
		}
		return ki.hashRangeStart < kj.hashRangeStart
	})
	return cp
}

// PartitioningInvariantViolatedError reports that the set does not fully
// and non-overlappingly cover [0, 2^32) for some (element, op) role.
type PartitioningInvariantViolatedError struct {
	Element identity.DataElementKind
	Op      identity.OperationKind
	Reason  string
}

func (e *PartitioningInvariantViolatedError) Error() string {
	return fmt.Sprintf("partitioning invariant violated for (%s, %s): %s", e.Element, e.Op, e.Reason)
}

// Validate checks the partitioning invariant from spec §3: for every
// (element, op) pair present, the set of HashRangeStart values, once
// sorted (input order does not matter), must start at 0 and contain no
// duplicates (duplicates would leave a gap elsewhere since every
// descriptor must have a distinct start).
func (s ShardConfigurationSet) Validate() error {
	groups := make(map[key]struct{})
	byRole := make(map[key][]uint32)
	for _, d := range s.descriptors {
		k := key{element: d.Element, op: d.Op}
		groups[k] = struct{}{}
		byRole[k] = append(byRole[k], d.HashRangeStart)
	}

	for k := range groups {
		starts := byRole[k]
		sort.Slice(starts, func(i, j int) bool { return starts[i] < starts[j] })
		if starts[0] != 0 {
			return &PartitioningInvariantViolatedError{
				Element: k.element, Op: k.op,
				Reason: fmt.Sprintf("first hash range start is %d, must be 0", starts[0]),
			}
		}
		for i := 1; i < len(starts); i++ {
			if starts[i] == starts[i-1] {
				return &PartitioningInvariantViolatedError{
					Element: k.element, Op: k.op,
					Reason: fmt.Sprintf("duplicate hash range start %d", starts[i]),
				}
			}
		}
	}
	return nil
}
