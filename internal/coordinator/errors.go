package coordinator

import (
	"fmt"

	"github.com/dreamware/accesscoordinator/internal/shardconfig"
)

// ShardCallError is the exact wire-message shape spec.md §4.6/§8 quotes
// for every per-shard failure, regardless of dispatch pattern:
//
//	"Failed to <verb> <argument> <preposition> shard with configuration '<description>'."
//
// with the original transport/backend error attached as Cause.
type ShardCallError struct {
	Message string
	Cause   error
}

func (e *ShardCallError) Error() string { return e.Message }
func (e *ShardCallError) Unwrap() error { return e.Cause }

// wrapShardError builds a ShardCallError. verb and argument read
// naturally together ("retrieve users", "add user 'user1'", "check for
// group 'group1'", "remove mapping between user 'u' and group 'g'");
// preposition is "from", "to", or "in" depending on the verb.
func wrapShardError(verb, argument, preposition string, descriptor shardconfig.ShardDescriptor, cause error) error {
	return &ShardCallError{
		Message: fmt.Sprintf("Failed to %s %s %s shard with configuration '%s'.", verb, argument, preposition, descriptor.Description),
		Cause:   cause,
	}
}

// NoShardConfiguredError reports that no shard is configured for a
// (element, op) role a caller tried to route against — distinct from a
// ShardCallError since no network call was even attempted.
type NoShardConfiguredError struct {
	Role string
}

func (e *NoShardConfiguredError) Error() string {
	return fmt.Sprintf("no shard configured for role %s", e.Role)
}
