package coordinator

import (
	"context"
	"fmt"

	"github.com/dreamware/accesscoordinator/internal/identity"
	"github.com/dreamware/accesscoordinator/internal/shardmgr"
)

func dedup[T comparable](lists [][]T) []T {
	seen := make(map[T]struct{})
	var out []T
	for _, list := range lists {
		for _, v := range list {
			if _, ok := seen[v]; ok {
				continue
			}
			seen[v] = struct{}{}
			out = append(out, v)
		}
	}
	return out
}

func anyTrue(bools []bool) bool {
	for _, b := range bools {
		if b {
			return true
		}
	}
	return false
}

func (c *Coordinator) routeQuery1(element identity.DataElementKind, id fmt.Stringer) (shardmgr.ClientBinding, error) {
	binding, ok := c.mgr.GetClient(element, identity.OpQuery, id)
	if !ok {
		return shardmgr.ClientBinding{}, &NoShardConfiguredError{Role: element.String() + "/Query"}
	}
	return binding, nil
}

// --- P3: single-shard query ---

// GetUserToGroupMappings resolves the direct group mappings of user,
// and — per spec.md §9's open question resolution — Gd ∪ Gi when
// includeIndirect is requested, reusing the P6 expansion helpers.
func (c *Coordinator) GetUserToGroupMappings(ctx context.Context, user identity.User, includeIndirect bool) ([]identity.Group, error) {
	return trackValue(c, "UserToGroupMappingsQueryTime", "UserToGroupMappingsQuery", nil, func() ([]identity.Group, error) {
		binding, err := c.routeQuery1(identity.ElementUser, user)
		if err != nil {
			return nil, err
		}
		direct, err := binding.Client.GetUserToGroupMappings(ctx, user, false)
		if err != nil {
			return nil, wrapShardError("retrieve", "group mappings for user '"+user.String()+"'", "from", binding.Descriptor, err)
		}
		if !includeIndirect {
			return direct, nil
		}
		indirect, err := c.expandGroups(ctx, direct)
		if err != nil {
			return nil, err
		}
		return dedup([][]identity.Group{direct, indirect}), nil
	})
}

// GetGroupToUserMappings is the reverse of GetUserToGroupMappings: given
// a group list, fan out across whichever Group-query shards own members
// of that list (spec §4.4's "queries whose parameter is a group list")
// and union the users each shard reports mapped to its subset.
// includeIndirect's expected semantics are not specified beyond spec.md
// §9's scope for the user-side query; here it is passed straight
// through to the shard, which already understands direct vs. transitive
// membership for its own partition.
func (c *Coordinator) GetGroupToUserMappings(ctx context.Context, groups []identity.Group, includeIndirect bool) ([]identity.User, error) {
	return trackValue(c, "GroupToUserMappingsQueryTime", "GroupToUserMappingsQuery", nil, func() ([]identity.User, error) {
		if len(groups) == 0 {
			return nil, nil
		}
		shards := shardmgr.GetClients(c.mgr, identity.ElementGroup, identity.OpQuery, groups)
		lists, err := fanOutCollect(ctx, shards, func(ctx context.Context, g shardmgr.ClientGroup[identity.Group]) ([]identity.User, error) {
			users, err := g.Client.GetGroupToUserMappings(ctx, g.IDs, includeIndirect)
			if err != nil {
				return nil, wrapShardError("retrieve", "user mappings for groups", "from", g.Descriptor, err)
			}
			return users, nil
		})
		if err != nil {
			return nil, err
		}
		return dedup(lists), nil
	})
}

// GetGroupToGroupMappings makes one bulk call per owning
// GroupToGroupMapping-query shard and returns the deduplicated union of
// the groups each shard reports as reachable from groups through its own
// edges. Unlike expandGroups it makes a single pass: groups reached on
// one shard are not looked up again on other shards. It is exposed as
// its own operation since "group to group mapping CRUD" in spec.md §6
// implies a query form alongside the add/remove events.
func (c *Coordinator) GetGroupToGroupMappings(ctx context.Context, groups []identity.Group) ([]identity.Group, error) {
	return trackValue(c, "GroupToGroupMappingsQueryTime", "GroupToGroupMappingsQuery", nil, func() ([]identity.Group, error) {
		if len(groups) == 0 {
			return nil, nil
		}
		shards := shardmgr.GetClients(c.mgr, identity.ElementGroupToGroupMapping, identity.OpQuery, groups)
		lists, err := fanOutCollect(ctx, shards, func(ctx context.Context, g shardmgr.ClientGroup[identity.Group]) ([]identity.Group, error) {
			reachable, err := g.Client.GetGroupToGroupMappings(ctx, g.IDs)
			if err != nil {
				return nil, wrapShardError("retrieve", "group-to-group mappings", "from", g.Descriptor, err)
			}
			return reachable, nil
		})
		if err != nil {
			return nil, err
		}
		return dedup(lists), nil
	})
}

// --- P5: fan-out query + set union ---

func (c *Coordinator) GetUsers(ctx context.Context) ([]identity.User, error) {
	return trackValue(c, "UsersPropertyQueryTime", "UsersPropertyQuery", map[string]string{"element": "User"}, func() ([]identity.User, error) {
		shards := c.mgr.GetAllClients(identity.ElementUser, identity.OpQuery)
		lists, err := fanOutCollect(ctx, shards, func(ctx context.Context, b shardmgr.ClientBinding) ([]identity.User, error) {
			users, err := b.Client.GetUsers(ctx)
			if err != nil {
				return nil, wrapShardError("retrieve", "users", "from", b.Descriptor, err)
			}
			return users, nil
		})
		if err != nil {
			return nil, err
		}
		return dedup(lists), nil
	})
}

// GetGroups unions across User-, Group-, and GroupToGroupMapping-query
// shards (spec.md §4.6 P5): a group can be known to any of the three.
func (c *Coordinator) GetGroups(ctx context.Context) ([]identity.Group, error) {
	return trackValue(c, "GroupsPropertyQueryTime", "GroupsPropertyQuery", map[string]string{"element": "Group"}, func() ([]identity.Group, error) {
		shards := c.allQueryShards(identity.ElementUser, identity.ElementGroup, identity.ElementGroupToGroupMapping)
		lists, err := fanOutCollect(ctx, shards, func(ctx context.Context, b shardmgr.ClientBinding) ([]identity.Group, error) {
			groups, err := b.Client.GetGroups(ctx)
			if err != nil {
				return nil, wrapShardError("retrieve", "groups", "from", b.Descriptor, err)
			}
			return groups, nil
		})
		if err != nil {
			return nil, err
		}
		return dedup(lists), nil
	})
}

func (c *Coordinator) GetEntityTypes(ctx context.Context) ([]identity.EntityType, error) {
	return trackValue(c, "EntityTypesPropertyQueryTime", "EntityTypesPropertyQuery", nil, func() ([]identity.EntityType, error) {
		shards := c.allQueryShards(identity.ElementUser, identity.ElementGroup)
		lists, err := fanOutCollect(ctx, shards, func(ctx context.Context, b shardmgr.ClientBinding) ([]identity.EntityType, error) {
			types, err := b.Client.GetEntityTypes(ctx)
			if err != nil {
				return nil, wrapShardError("retrieve", "entity types", "from", b.Descriptor, err)
			}
			return types, nil
		})
		if err != nil {
			return nil, err
		}
		return dedup(lists), nil
	})
}

func (c *Coordinator) GetEntities(ctx context.Context, entityType identity.EntityType) ([]identity.Entity, error) {
	return trackValue(c, "EntitiesPropertyQueryTime", "EntitiesPropertyQuery", nil, func() ([]identity.Entity, error) {
		shards := c.allQueryShards(identity.ElementUser, identity.ElementGroup)
		lists, err := fanOutCollect(ctx, shards, func(ctx context.Context, b shardmgr.ClientBinding) ([]identity.Entity, error) {
			entities, err := b.Client.GetEntities(ctx, entityType)
			if err != nil {
				return nil, wrapShardError("retrieve", "entities of type '"+entityType.String()+"'", "from", b.Descriptor, err)
			}
			return entities, nil
		})
		if err != nil {
			return nil, err
		}
		return dedup(lists), nil
	})
}

func (c *Coordinator) ContainsUser(ctx context.Context, user identity.User) (bool, error) {
	return trackValue(c, "ContainsUserQueryTime", "ContainsUserQuery", map[string]string{"element": "User"}, func() (bool, error) {
		shards := c.mgr.GetAllClients(identity.ElementUser, identity.OpQuery)
		results, err := fanOutCollect(ctx, shards, func(ctx context.Context, b shardmgr.ClientBinding) (bool, error) {
			ok, err := b.Client.ContainsUser(ctx, user)
			if err != nil {
				return false, wrapShardError("check for", quoteUser(user), "in", b.Descriptor, err)
			}
			return ok, nil
		})
		if err != nil {
			return false, err
		}
		return anyTrue(results), nil
	})
}

// ContainsGroup searches the same three roles GetGroups unions across,
// for consistency with how a group can come to be known to the system.
func (c *Coordinator) ContainsGroup(ctx context.Context, group identity.Group) (bool, error) {
	return trackValue(c, "ContainsGroupQueryTime", "ContainsGroupQuery", map[string]string{"element": "Group"}, func() (bool, error) {
		shards := c.allQueryShards(identity.ElementUser, identity.ElementGroup, identity.ElementGroupToGroupMapping)
		results, err := fanOutCollect(ctx, shards, func(ctx context.Context, b shardmgr.ClientBinding) (bool, error) {
			ok, err := b.Client.ContainsGroup(ctx, group)
			if err != nil {
				return false, wrapShardError("check for", quoteGroup(group), "in", b.Descriptor, err)
			}
			return ok, nil
		})
		if err != nil {
			return false, err
		}
		return anyTrue(results), nil
	})
}

func (c *Coordinator) ContainsEntityType(ctx context.Context, entityType identity.EntityType) (bool, error) {
	return trackValue(c, "ContainsEntityTypeQueryTime", "ContainsEntityTypeQuery", nil, func() (bool, error) {
		shards := c.allQueryShards(identity.ElementUser, identity.ElementGroup)
		results, err := fanOutCollect(ctx, shards, func(ctx context.Context, b shardmgr.ClientBinding) (bool, error) {
			ok, err := b.Client.ContainsEntityType(ctx, entityType)
			if err != nil {
				return false, wrapShardError("check for", "entity type '"+entityType.String()+"'", "in", b.Descriptor, err)
			}
			return ok, nil
		})
		if err != nil {
			return false, err
		}
		return anyTrue(results), nil
	})
}

func (c *Coordinator) ContainsEntity(ctx context.Context, entityType identity.EntityType, entity identity.Entity) (bool, error) {
	return trackValue(c, "ContainsEntityQueryTime", "ContainsEntityQuery", nil, func() (bool, error) {
		shards := c.allQueryShards(identity.ElementUser, identity.ElementGroup)
		results, err := fanOutCollect(ctx, shards, func(ctx context.Context, b shardmgr.ClientBinding) (bool, error) {
			ok, err := b.Client.ContainsEntity(ctx, entityType, entity)
			if err != nil {
				return false, wrapShardError("check for", "entity '"+entity.String()+"'", "in", b.Descriptor, err)
			}
			return ok, nil
		})
		if err != nil {
			return false, err
		}
		return anyTrue(results), nil
	})
}

func (c *Coordinator) allQueryShards(elements ...identity.DataElementKind) []shardmgr.ClientBinding {
	var all []shardmgr.ClientBinding
	for _, e := range elements {
		all = append(all, c.mgr.GetAllClients(e, identity.OpQuery)...)
	}
	return all
}
