// Package shardclient implements the Async Shard Client: a wire-level
// HTTP/JSON proxy to one backend shard node, and the Client Factory that
// builds one from a ClientConfig.
//
// Transport conventions (spec §4.4/§6): GET for queries, PUT/POST for
// mutations, DELETE for removals; identifiers embedded in the URL path
// are percent-encoded; queries whose parameter is a group list send the
// list as a JSON body alongside the GET, since long group lists can
// exceed query-string limits.
package shardclient

import (
	"context"

	"github.com/dreamware/accesscoordinator/internal/identity"
)

// Client is the full access-manager surface exposed by one backend shard
// node. The Operation Coordinator never talks to a backend any other
// way — every dispatch pattern in internal/coordinator resolves to one
// or more calls against one or more Clients.
type Client interface {
	// Users

	AddUser(ctx context.Context, user identity.User) error
	RemoveUser(ctx context.Context, user identity.User) error
	ContainsUser(ctx context.Context, user identity.User) (bool, error)
	GetUsers(ctx context.Context) ([]identity.User, error)

	// Groups

	AddGroup(ctx context.Context, group identity.Group) error
	RemoveGroup(ctx context.Context, group identity.Group) error
	ContainsGroup(ctx context.Context, group identity.Group) (bool, error)
	GetGroups(ctx context.Context) ([]identity.Group, error)

	// User <-> group mappings

	AddUserToGroupMapping(ctx context.Context, user identity.User, group identity.Group) error
	RemoveUserToGroupMapping(ctx context.Context, user identity.User, group identity.Group) error
	GetUserToGroupMappings(ctx context.Context, user identity.User, includeIndirect bool) ([]identity.Group, error)
	GetGroupToUserMappings(ctx context.Context, groups []identity.Group, includeIndirect bool) ([]identity.User, error)

	// Group <-> group mappings

	AddGroupToGroupMapping(ctx context.Context, fromGroup, toGroup identity.Group) error
	RemoveGroupToGroupMapping(ctx context.Context, fromGroup, toGroup identity.Group) error
	// GetGroupToGroupMappings returns every group reachable from the
	// input set through the group-to-group relation materialized on
	// this shard (the bulk closure call of spec §4.6 P6 step 3).
	GetGroupToGroupMappings(ctx context.Context, fromGroups []identity.Group) ([]identity.Group, error)

	// User/group <-> component-access mappings

	AddUserToApplicationComponentAndAccessLevelMapping(ctx context.Context, user identity.User, component identity.Component, level identity.AccessLevel) error
	RemoveUserToApplicationComponentAndAccessLevelMapping(ctx context.Context, user identity.User, component identity.Component, level identity.AccessLevel) error
	AddGroupToApplicationComponentAndAccessLevelMapping(ctx context.Context, group identity.Group, component identity.Component, level identity.AccessLevel) error
	RemoveGroupToApplicationComponentAndAccessLevelMapping(ctx context.Context, group identity.Group, component identity.Component, level identity.AccessLevel) error

	// Entity types and entities

	AddEntityType(ctx context.Context, entityType identity.EntityType) error
	RemoveEntityType(ctx context.Context, entityType identity.EntityType) error
	ContainsEntityType(ctx context.Context, entityType identity.EntityType) (bool, error)
	GetEntityTypes(ctx context.Context) ([]identity.EntityType, error)

	AddEntity(ctx context.Context, entityType identity.EntityType, entity identity.Entity) error
	RemoveEntity(ctx context.Context, entityType identity.EntityType, entity identity.Entity) error
	ContainsEntity(ctx context.Context, entityType identity.EntityType, entity identity.Entity) (bool, error)
	GetEntities(ctx context.Context, entityType identity.EntityType) ([]identity.Entity, error)

	// User/group <-> entity mappings

	AddUserToEntityMapping(ctx context.Context, user identity.User, entityType identity.EntityType, entity identity.Entity) error
	RemoveUserToEntityMapping(ctx context.Context, user identity.User, entityType identity.EntityType, entity identity.Entity) error
	AddGroupToEntityMapping(ctx context.Context, group identity.Group, entityType identity.EntityType, entity identity.Entity) error
	RemoveGroupToEntityMapping(ctx context.Context, group identity.Group, entityType identity.EntityType, entity identity.Entity) error

	// Authorization queries

	HasAccessToApplicationComponent(ctx context.Context, user identity.User, component identity.Component, level identity.AccessLevel) (bool, error)
	HasAccessToApplicationComponentForGroups(ctx context.Context, groups []identity.Group, component identity.Component, level identity.AccessLevel) (bool, error)
	HasAccessToEntity(ctx context.Context, user identity.User, entityType identity.EntityType, entity identity.Entity) (bool, error)
	HasAccessToEntityForGroups(ctx context.Context, groups []identity.Group, entityType identity.EntityType, entity identity.Entity) (bool, error)

	GetApplicationComponentsAccessibleByUser(ctx context.Context, user identity.User) ([]identity.ApplicationComponentAndAccessLevel, error)
	GetApplicationComponentsAccessibleByGroups(ctx context.Context, groups []identity.Group) ([]identity.ApplicationComponentAndAccessLevel, error)
	GetEntitiesAccessibleByUser(ctx context.Context, user identity.User) ([]identity.EntityTypeAndEntity, error)
	GetEntitiesAccessibleByUserForType(ctx context.Context, user identity.User, entityType identity.EntityType) ([]identity.Entity, error)
	GetEntitiesAccessibleByGroups(ctx context.Context, groups []identity.Group) ([]identity.EntityTypeAndEntity, error)
	GetEntitiesAccessibleByGroupsForType(ctx context.Context, groups []identity.Group, entityType identity.EntityType) ([]identity.Entity, error)

	// Ping checks that the backend node behind this client is reachable
	// and answering, independent of any particular data operation. Used
	// by the shard health prober; never consulted by routing — an
	// unhealthy shard is still dispatched to, since the configured
	// topology is authoritative (spec §4.3).
	Ping(ctx context.Context) error

	// Close releases the client's connection pool. Called by the Shard
	// Client Manager when a client is retired by a configuration refresh.
	Close() error
}
