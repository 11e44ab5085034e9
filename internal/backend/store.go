// Package backend implements a minimal in-memory reference shard node:
// a test-only stand-in for a real access-manager backend, storing
// whatever subset of the data model (users, groups, mappings, entities)
// a particular deployment role asks it to hold. It exists only so the
// Operation Coordinator can be exercised end-to-end in tests; it has no
// persistence, no replication, and no operational hardening (spec.md
// explicitly scopes backend shard nodes and their storage engines out
// of this repository).
//
// Grounded on the teacher's internal/shard (one mutex-guarded state
// struct per node, delegating to a storage backend) and internal/storage
// (minimal, synchronous, thread-safe primitives), generalized from a
// single key/value map to the several relation maps an access-manager
// node actually needs — users, groups, user<->group edges, group<->group
// edges, component-access grants, entity types/entities, and
// user/group<->entity mappings — all guarded by one RWMutex, the same
// locking granularity the teacher used for its one KV map.
package backend

import (
	"sync"

	"github.com/dreamware/accesscoordinator/internal/identity"
)

type componentAccess struct {
	component identity.Component
	level     identity.AccessLevel
}

type entityKey struct {
	entityType identity.EntityType
	entity     identity.Entity
}

// Store is one reference shard node's entire state. A single Store
// instance can serve any combination of roles (User, Group,
// GroupToGroupMapping) — which methods a deployment actually calls
// against it is determined entirely by how the Shard Client Manager's
// configuration routes to it, not by anything Store itself enforces.
type Store struct {
	mu sync.RWMutex

	users  map[identity.User]struct{}
	groups map[identity.Group]struct{}

	userGroups  map[identity.User]map[identity.Group]struct{}
	groupGroups map[identity.Group]map[identity.Group]struct{}

	userComponentAccess  map[identity.User]map[componentAccess]struct{}
	groupComponentAccess map[identity.Group]map[componentAccess]struct{}

	entityTypes map[identity.EntityType]struct{}
	entities    map[identity.EntityType]map[identity.Entity]struct{}

	userEntities  map[identity.User]map[entityKey]struct{}
	groupEntities map[identity.Group]map[entityKey]struct{}
}

// New returns an empty Store.
func New() *Store {
	return &Store{
		users:                make(map[identity.User]struct{}),
		groups:               make(map[identity.Group]struct{}),
		userGroups:           make(map[identity.User]map[identity.Group]struct{}),
		groupGroups:          make(map[identity.Group]map[identity.Group]struct{}),
		userComponentAccess:  make(map[identity.User]map[componentAccess]struct{}),
		groupComponentAccess: make(map[identity.Group]map[componentAccess]struct{}),
		entityTypes:          make(map[identity.EntityType]struct{}),
		entities:             make(map[identity.EntityType]map[identity.Entity]struct{}),
		userEntities:         make(map[identity.User]map[entityKey]struct{}),
		groupEntities:        make(map[identity.Group]map[entityKey]struct{}),
	}
}

// --- Users ---

func (s *Store) AddUser(user identity.User) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.users[user] = struct{}{}
}

// RemoveUser deletes the user and every mapping that references it —
// the cascade spec.md §8 requires of a user removal.
func (s *Store) RemoveUser(user identity.User) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.users, user)
	delete(s.userGroups, user)
	delete(s.userComponentAccess, user)
	delete(s.userEntities, user)
}

func (s *Store) ContainsUser(user identity.User) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.users[user]
	return ok
}

func (s *Store) GetUsers() []identity.User {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]identity.User, 0, len(s.users))
	for u := range s.users {
		out = append(out, u)
	}
	return out
}

// --- Groups ---

func (s *Store) AddGroup(group identity.Group) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.groups[group] = struct{}{}
}

// RemoveGroup deletes the group, every mapping referencing it as a
// member, and every group-to-group edge it participates in on either
// side.
func (s *Store) RemoveGroup(group identity.Group) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.groups, group)
	delete(s.groupGroups, group)
	delete(s.groupComponentAccess, group)
	delete(s.groupEntities, group)
	for _, g := range s.userGroups {
		delete(g, group)
	}
	for _, g := range s.groupGroups {
		delete(g, group)
	}
}

func (s *Store) ContainsGroup(group identity.Group) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.groups[group]
	return ok
}

func (s *Store) GetGroups() []identity.Group {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]identity.Group, 0, len(s.groups))
	for g := range s.groups {
		out = append(out, g)
	}
	return out
}

// --- User <-> group mappings ---

func (s *Store) AddUserToGroupMapping(user identity.User, group identity.Group) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.userGroups[user] == nil {
		s.userGroups[user] = make(map[identity.Group]struct{})
	}
	s.userGroups[user][group] = struct{}{}
}

func (s *Store) RemoveUserToGroupMapping(user identity.User, group identity.Group) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.userGroups[user], group)
}

// GetUserToGroupMappings returns the groups directly mapped to user,
// plus (when includeIndirect is set) every group reachable from those
// through this shard's own group-to-group edges. A real deployment's
// group graph may span shards the Store has no visibility into; the
// coordinator's own expandGroups handles that case, so this local
// expansion only needs to be correct for the common case spec.md §9
// calls out: a connected component co-located on one shard.
func (s *Store) GetUserToGroupMappings(user identity.User, includeIndirect bool) []identity.Group {
	s.mu.RLock()
	defer s.mu.RUnlock()
	direct := make([]identity.Group, 0, len(s.userGroups[user]))
	for g := range s.userGroups[user] {
		direct = append(direct, g)
	}
	if !includeIndirect {
		return direct
	}
	return append(direct, s.closureLocked(direct)...)
}

// GetGroupToUserMappings returns the users mapped (directly, and
// transitively through this shard's local group graph when
// includeIndirect is set) to any of groups.
func (s *Store) GetGroupToUserMappings(groups []identity.Group, includeIndirect bool) []identity.User {
	s.mu.RLock()
	defer s.mu.RUnlock()

	target := make(map[identity.Group]struct{}, len(groups))
	for _, g := range groups {
		target[g] = struct{}{}
	}
	if includeIndirect {
		for _, g := range s.closureLocked(groups) {
			target[g] = struct{}{}
		}
	}

	seen := make(map[identity.User]struct{})
	var out []identity.User
	for user, ownGroups := range s.userGroups {
		for g := range ownGroups {
			if _, ok := target[g]; !ok {
				continue
			}
			if _, dup := seen[user]; dup {
				break
			}
			seen[user] = struct{}{}
			out = append(out, user)
			break
		}
	}
	return out
}

// --- Group <-> group mappings ---

func (s *Store) AddGroupToGroupMapping(from, to identity.Group) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.groupGroups[from] == nil {
		s.groupGroups[from] = make(map[identity.Group]struct{})
	}
	s.groupGroups[from][to] = struct{}{}
}

func (s *Store) RemoveGroupToGroupMapping(from, to identity.Group) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.groupGroups[from], to)
}

// GetGroupToGroupMappings is the bulk closure call spec.md §4.6 P6 step
// 3 issues against each GroupToGroupMapping-query shard: every group
// reachable from fromGroups through edges materialized on this shard.
func (s *Store) GetGroupToGroupMappings(fromGroups []identity.Group) []identity.Group {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.closureLocked(fromGroups)
}

// closureLocked performs a breadth-first traversal of groupGroups
// starting from seed, returning every group reached. Seed groups are
// never included, even when reachable back through a cycle. Caller must
// hold mu.
func (s *Store) closureLocked(seed []identity.Group) []identity.Group {
	visited := make(map[identity.Group]struct{}, len(seed))
	frontier := append([]identity.Group(nil), seed...)
	for _, g := range seed {
		visited[g] = struct{}{}
	}

	var out []identity.Group
	for len(frontier) > 0 {
		var next []identity.Group
		for _, g := range frontier {
			for reached := range s.groupGroups[g] {
				if _, ok := visited[reached]; ok {
					continue
				}
				visited[reached] = struct{}{}
				out = append(out, reached)
				next = append(next, reached)
			}
		}
		frontier = next
	}
	return out
}

// --- User/group <-> component-access mappings ---

func (s *Store) AddUserToApplicationComponentAndAccessLevelMapping(user identity.User, component identity.Component, level identity.AccessLevel) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.userComponentAccess[user] == nil {
		s.userComponentAccess[user] = make(map[componentAccess]struct{})
	}
	s.userComponentAccess[user][componentAccess{component, level}] = struct{}{}
}

func (s *Store) RemoveUserToApplicationComponentAndAccessLevelMapping(user identity.User, component identity.Component, level identity.AccessLevel) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.userComponentAccess[user], componentAccess{component, level})
}

func (s *Store) AddGroupToApplicationComponentAndAccessLevelMapping(group identity.Group, component identity.Component, level identity.AccessLevel) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.groupComponentAccess[group] == nil {
		s.groupComponentAccess[group] = make(map[componentAccess]struct{})
	}
	s.groupComponentAccess[group][componentAccess{component, level}] = struct{}{}
}

func (s *Store) RemoveGroupToApplicationComponentAndAccessLevelMapping(group identity.Group, component identity.Component, level identity.AccessLevel) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.groupComponentAccess[group], componentAccess{component, level})
}

// --- Entity types and entities ---

func (s *Store) AddEntityType(entityType identity.EntityType) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entityTypes[entityType] = struct{}{}
}

func (s *Store) RemoveEntityType(entityType identity.EntityType) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.entityTypes, entityType)
	delete(s.entities, entityType)
}

func (s *Store) ContainsEntityType(entityType identity.EntityType) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.entityTypes[entityType]
	return ok
}

func (s *Store) GetEntityTypes() []identity.EntityType {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]identity.EntityType, 0, len(s.entityTypes))
	for t := range s.entityTypes {
		out = append(out, t)
	}
	return out
}

func (s *Store) AddEntity(entityType identity.EntityType, entity identity.Entity) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.entities[entityType] == nil {
		s.entities[entityType] = make(map[identity.Entity]struct{})
	}
	s.entities[entityType][entity] = struct{}{}
}

// RemoveEntity deletes the entity and every user/group mapping that
// referenced it.
func (s *Store) RemoveEntity(entityType identity.EntityType, entity identity.Entity) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.entities[entityType], entity)
	key := entityKey{entityType, entity}
	for _, m := range s.userEntities {
		delete(m, key)
	}
	for _, m := range s.groupEntities {
		delete(m, key)
	}
}

func (s *Store) ContainsEntity(entityType identity.EntityType, entity identity.Entity) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.entities[entityType][entity]
	return ok
}

func (s *Store) GetEntities(entityType identity.EntityType) []identity.Entity {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]identity.Entity, 0, len(s.entities[entityType]))
	for e := range s.entities[entityType] {
		out = append(out, e)
	}
	return out
}

// --- User/group <-> entity mappings ---

func (s *Store) AddUserToEntityMapping(user identity.User, entityType identity.EntityType, entity identity.Entity) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.userEntities[user] == nil {
		s.userEntities[user] = make(map[entityKey]struct{})
	}
	s.userEntities[user][entityKey{entityType, entity}] = struct{}{}
}

func (s *Store) RemoveUserToEntityMapping(user identity.User, entityType identity.EntityType, entity identity.Entity) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.userEntities[user], entityKey{entityType, entity})
}

func (s *Store) AddGroupToEntityMapping(group identity.Group, entityType identity.EntityType, entity identity.Entity) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.groupEntities[group] == nil {
		s.groupEntities[group] = make(map[entityKey]struct{})
	}
	s.groupEntities[group][entityKey{entityType, entity}] = struct{}{}
}

func (s *Store) RemoveGroupToEntityMapping(group identity.Group, entityType identity.EntityType, entity identity.Entity) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.groupEntities[group], entityKey{entityType, entity})
}

// --- Authorization queries ---

func (s *Store) HasAccessToApplicationComponent(user identity.User, component identity.Component, level identity.AccessLevel) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.userComponentAccess[user][componentAccess{component, level}]
	return ok
}

func (s *Store) HasAccessToApplicationComponentForGroups(groups []identity.Group, component identity.Component, level identity.AccessLevel) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	key := componentAccess{component, level}
	for _, g := range groups {
		if _, ok := s.groupComponentAccess[g][key]; ok {
			return true
		}
	}
	return false
}

func (s *Store) HasAccessToEntity(user identity.User, entityType identity.EntityType, entity identity.Entity) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.userEntities[user][entityKey{entityType, entity}]
	return ok
}

func (s *Store) HasAccessToEntityForGroups(groups []identity.Group, entityType identity.EntityType, entity identity.Entity) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	key := entityKey{entityType, entity}
	for _, g := range groups {
		if _, ok := s.groupEntities[g][key]; ok {
			return true
		}
	}
	return false
}

func (s *Store) GetApplicationComponentsAccessibleByUser(user identity.User) []identity.ApplicationComponentAndAccessLevel {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]identity.ApplicationComponentAndAccessLevel, 0, len(s.userComponentAccess[user]))
	for k := range s.userComponentAccess[user] {
		out = append(out, identity.ApplicationComponentAndAccessLevel{ApplicationComponent: k.component, AccessLevel: k.level})
	}
	return out
}

func (s *Store) GetApplicationComponentsAccessibleByGroups(groups []identity.Group) []identity.ApplicationComponentAndAccessLevel {
	s.mu.RLock()
	defer s.mu.RUnlock()
	seen := make(map[componentAccess]struct{})
	var out []identity.ApplicationComponentAndAccessLevel
	for _, g := range groups {
		for k := range s.groupComponentAccess[g] {
			if _, ok := seen[k]; ok {
				continue
			}
			seen[k] = struct{}{}
			out = append(out, identity.ApplicationComponentAndAccessLevel{ApplicationComponent: k.component, AccessLevel: k.level})
		}
	}
	return out
}

func (s *Store) GetEntitiesAccessibleByUser(user identity.User) []identity.EntityTypeAndEntity {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]identity.EntityTypeAndEntity, 0, len(s.userEntities[user]))
	for k := range s.userEntities[user] {
		out = append(out, identity.EntityTypeAndEntity{EntityType: k.entityType, Entity: k.entity})
	}
	return out
}

func (s *Store) GetEntitiesAccessibleByUserForType(user identity.User, entityType identity.EntityType) []identity.Entity {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []identity.Entity
	for k := range s.userEntities[user] {
		if k.entityType == entityType {
			out = append(out, k.entity)
		}
	}
	return out
}

func (s *Store) GetEntitiesAccessibleByGroups(groups []identity.Group) []identity.EntityTypeAndEntity {
	s.mu.RLock()
	defer s.mu.RUnlock()
	seen := make(map[entityKey]struct{})
	var out []identity.EntityTypeAndEntity
	for _, g := range groups {
		for k := range s.groupEntities[g] {
			if _, ok := seen[k]; ok {
				continue
			}
			seen[k] = struct{}{}
			out = append(out, identity.EntityTypeAndEntity{EntityType: k.entityType, Entity: k.entity})
		}
	}
	return out
}

func (s *Store) GetEntitiesAccessibleByGroupsForType(groups []identity.Group, entityType identity.EntityType) []identity.Entity {
	s.mu.RLock()
	defer s.mu.RUnlock()
	seen := make(map[identity.Entity]struct{})
	var out []identity.Entity
	for _, g := range groups {
		for k := range s.groupEntities[g] {
			if k.entityType != entityType {
				continue
			}
			if _, ok := seen[k.entity]; ok {
				continue
			}
			seen[k.entity] = struct{}{}
			out = append(out, k.entity)
		}
	}
	return out
}
