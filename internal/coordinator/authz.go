package coordinator

import (
	"context"

	"github.com/dreamware/accesscoordinator/internal/identity"
	"github.com/dreamware/accesscoordinator/internal/metrics"
	"github.com/dreamware/accesscoordinator/internal/shardmgr"
)

// descriptorKey identifies a shard descriptor for the purpose of
// deduplicating which shards have already been queried during a P6
// expansion. ShardDescriptor itself isn't used directly as a map key
// because ClientConfig carries an interface-typed retry policy field
// that isn't guaranteed comparable.
type descriptorKey struct {
	element        identity.DataElementKind
	op             identity.OperationKind
	hashRangeStart uint32
}

func keyOfBinding(b shardmgr.ClientBinding) descriptorKey {
	return descriptorKey{element: b.Descriptor.Element, op: b.Descriptor.Op, hashRangeStart: b.Descriptor.HashRangeStart}
}

// expandGroups implements spec §4.6 P6 step 3: given the set of groups
// directly mapped to a user (or, for the group-enumeration variants,
// the caller-supplied group set), group them by their owning
// GroupToGroupMapping-query shard and ask each shard for every group
// reachable from its subset through the group-to-group relation.
//
// spec.md §9's open question — whether one bulk call per shard suffices
// when the group graph spans shard boundaries — is resolved here by
// iterating: after the first pass, any newly discovered group that
// routes to a GroupToGroupMapping-query shard not yet queried in this
// call is folded into a further pass, continuing until a pass queries
// no new shard. This degenerates to exactly one call per shard — the
// source's assumption — whenever the group graph's connected
// components are co-located on a single shard, and still reaches a
// fixed point when they are not.
func (c *Coordinator) expandGroups(ctx context.Context, seed []identity.Group) ([]identity.Group, error) {
	known := make(map[identity.Group]struct{}, len(seed))
	frontier := append([]identity.Group(nil), seed...)
	for _, g := range seed {
		known[g] = struct{}{}
	}
	queriedShard := make(map[descriptorKey]struct{})

	for len(frontier) > 0 {
		groups := shardmgr.GetClients(c.mgr, identity.ElementGroupToGroupMapping, identity.OpQuery, frontier)

		var toQuery []shardmgr.ClientGroup[identity.Group]
		for _, g := range groups {
			if _, done := queriedShard[keyOfBinding(g.ClientBinding)]; done {
				continue
			}
			toQuery = append(toQuery, g)
		}
		if len(toQuery) == 0 {
			break
		}

		lists, err := fanOutCollect(ctx, toQuery, func(ctx context.Context, g shardmgr.ClientGroup[identity.Group]) ([]identity.Group, error) {
			reachable, err := g.Client.GetGroupToGroupMappings(ctx, g.IDs)
			if err != nil {
				return nil, wrapShardError("retrieve", "group-to-group mappings", "from", g.Descriptor, err)
			}
			return reachable, nil
		})
		if err != nil {
			return nil, err
		}

		for _, g := range toQuery {
			queriedShard[keyOfBinding(g.ClientBinding)] = struct{}{}
		}

		var next []identity.Group
		for _, list := range lists {
			for _, g := range list {
				if _, ok := known[g]; ok {
					continue
				}
				known[g] = struct{}{}
				next = append(next, g)
			}
		}
		frontier = next
	}

	out := make([]identity.Group, 0, len(known))
	for g := range known {
		out = append(out, g)
	}
	return out, nil
}

// emitGroupFanOutWidth reports the width of a P6 fan-out: the number of
// groups reached through the group-to-group expansion and the number of
// distinct shards it took to query them, per spec §4.6's
// Add(GroupsMappedToUser, |Gi|) / Add(GroupShardsQueried, shardCount).
func (c *Coordinator) emitGroupFanOutWidth(groupsCountKind, shardsCountKind string, gi []identity.Group, shardCount int) {
	c.metrics.Add(metrics.Kind(groupsCountKind), int64(len(gi)), nil)
	c.metrics.Add(metrics.Kind(shardsCountKind), int64(shardCount), nil)
}

// HasAccessToApplicationComponent implements spec §4.6 P6 for the
// component/access-level authorization question (step 1: direct check
// on the user's own shard; step 2: directly mapped groups; step 3:
// group-to-group expansion; step 4: parallel group-side check with
// opportunistic cancellation on a positive short-circuit).
func (c *Coordinator) HasAccessToApplicationComponent(ctx context.Context, user identity.User, component identity.Component, level identity.AccessLevel) (bool, error) {
	return trackValue(c, "HasAccessToApplicationComponentForUserQueryTime", "HasAccessToApplicationComponentForUserQuery", map[string]string{"element": "User"}, func() (bool, error) {
		binding, err := c.routeQuery1(identity.ElementUser, user)
		if err != nil {
			return false, err
		}

		direct, err := binding.Client.HasAccessToApplicationComponent(ctx, user, component, level)
		if err != nil {
			return false, wrapShardError("check access for", quoteUser(user), "in", binding.Descriptor, err)
		}
		if direct {
			return true, nil
		}

		gd, err := binding.Client.GetUserToGroupMappings(ctx, user, false)
		if err != nil {
			return false, wrapShardError("retrieve", "group mappings for user '"+user.String()+"'", "from", binding.Descriptor, err)
		}
		if len(gd) == 0 {
			return false, nil
		}

		gi, err := c.expandGroups(ctx, gd)
		if err != nil {
			return false, err
		}

		groupShards := shardmgr.GetClients(c.mgr, identity.ElementGroup, identity.OpQuery, gi)
		c.emitGroupFanOutWidth("HasAccessToApplicationComponentGroupsMappedToUser", "HasAccessToApplicationComponentGroupShardsQueried", gi, len(groupShards))

		return fanOutRace(ctx, groupShards, func(ctx context.Context, g shardmgr.ClientGroup[identity.Group]) (bool, error) {
			ok, err := g.Client.HasAccessToApplicationComponentForGroups(ctx, g.IDs, component, level)
			if err != nil {
				return false, wrapShardError("check access for", "groups", "in", g.Descriptor, err)
			}
			return ok, nil
		})
	})
}

// HasAccessToApplicationComponentForGroups mirrors
// HasAccessToApplicationComponent but starts from a caller-supplied
// group set rather than a user's direct mappings, per spec.md §9's
// resolution of the group-enumeration open question: steps 1-2 are
// skipped because the group set *is* Gd.
func (c *Coordinator) HasAccessToApplicationComponentForGroups(ctx context.Context, groups []identity.Group, component identity.Component, level identity.AccessLevel) (bool, error) {
	return trackValue(c, "HasAccessToApplicationComponentForUserQueryTime", "HasAccessToApplicationComponentForUserQuery", map[string]string{"element": "Group"}, func() (bool, error) {
		if len(groups) == 0 {
			return false, nil
		}
		gi, err := c.expandGroups(ctx, groups)
		if err != nil {
			return false, err
		}
		gi = dedup([][]identity.Group{groups, gi})

		groupShards := shardmgr.GetClients(c.mgr, identity.ElementGroup, identity.OpQuery, gi)
		c.emitGroupFanOutWidth("HasAccessToApplicationComponentGroupsMappedToUser", "HasAccessToApplicationComponentGroupShardsQueried", gi, len(groupShards))

		return fanOutRace(ctx, groupShards, func(ctx context.Context, g shardmgr.ClientGroup[identity.Group]) (bool, error) {
			ok, err := g.Client.HasAccessToApplicationComponentForGroups(ctx, g.IDs, component, level)
			if err != nil {
				return false, wrapShardError("check access for", "groups", "in", g.Descriptor, err)
			}
			return ok, nil
		})
	})
}

// HasAccessToEntity is structurally identical to
// HasAccessToApplicationComponent with (entityType, entity) in place of
// (component, access), per spec §4.6.
func (c *Coordinator) HasAccessToEntity(ctx context.Context, user identity.User, entityType identity.EntityType, entity identity.Entity) (bool, error) {
	return trackValue(c, "HasAccessToEntityForUserQueryTime", "HasAccessToEntityForUserQuery", map[string]string{"element": "User"}, func() (bool, error) {
		binding, err := c.routeQuery1(identity.ElementUser, user)
		if err != nil {
			return false, err
		}

		direct, err := binding.Client.HasAccessToEntity(ctx, user, entityType, entity)
		if err != nil {
			return false, wrapShardError("check access for", quoteUser(user), "in", binding.Descriptor, err)
		}
		if direct {
			return true, nil
		}

		gd, err := binding.Client.GetUserToGroupMappings(ctx, user, false)
		if err != nil {
			return false, wrapShardError("retrieve", "group mappings for user '"+user.String()+"'", "from", binding.Descriptor, err)
		}
		if len(gd) == 0 {
			return false, nil
		}

		gi, err := c.expandGroups(ctx, gd)
		if err != nil {
			return false, err
		}

		groupShards := shardmgr.GetClients(c.mgr, identity.ElementGroup, identity.OpQuery, gi)
		c.emitGroupFanOutWidth("HasAccessToEntityGroupsMappedToUser", "HasAccessToEntityGroupShardsQueried", gi, len(groupShards))

		return fanOutRace(ctx, groupShards, func(ctx context.Context, g shardmgr.ClientGroup[identity.Group]) (bool, error) {
			ok, err := g.Client.HasAccessToEntityForGroups(ctx, g.IDs, entityType, entity)
			if err != nil {
				return false, wrapShardError("check access for", "groups", "in", g.Descriptor, err)
			}
			return ok, nil
		})
	})
}

// HasAccessToEntityForGroups mirrors HasAccessToEntity starting from a
// caller-supplied group set.
func (c *Coordinator) HasAccessToEntityForGroups(ctx context.Context, groups []identity.Group, entityType identity.EntityType, entity identity.Entity) (bool, error) {
	return trackValue(c, "HasAccessToEntityForUserQueryTime", "HasAccessToEntityForUserQuery", map[string]string{"element": "Group"}, func() (bool, error) {
		if len(groups) == 0 {
			return false, nil
		}
		gi, err := c.expandGroups(ctx, groups)
		if err != nil {
			return false, err
		}
		gi = dedup([][]identity.Group{groups, gi})

		groupShards := shardmgr.GetClients(c.mgr, identity.ElementGroup, identity.OpQuery, gi)
		c.emitGroupFanOutWidth("HasAccessToEntityGroupsMappedToUser", "HasAccessToEntityGroupShardsQueried", gi, len(groupShards))

		return fanOutRace(ctx, groupShards, func(ctx context.Context, g shardmgr.ClientGroup[identity.Group]) (bool, error) {
			ok, err := g.Client.HasAccessToEntityForGroups(ctx, g.IDs, entityType, entity)
			if err != nil {
				return false, wrapShardError("check access for", "groups", "in", g.Descriptor, err)
			}
			return ok, nil
		})
	})
}

// GetApplicationComponentsAccessibleByUser follows the same
// user->groups->group-to-group expansion as HasAccessToApplicationComponent,
// but step 4 unions every (component, access) pair returned across
// shards rather than short-circuiting on a boolean.
func (c *Coordinator) GetApplicationComponentsAccessibleByUser(ctx context.Context, user identity.User) ([]identity.ApplicationComponentAndAccessLevel, error) {
	return trackValue(c, "GetApplicationComponentsAccessibleByUserQueryTime", "GetApplicationComponentsAccessibleByUserQuery", map[string]string{"element": "User"}, func() ([]identity.ApplicationComponentAndAccessLevel, error) {
		binding, err := c.routeQuery1(identity.ElementUser, user)
		if err != nil {
			return nil, err
		}

		direct, err := binding.Client.GetApplicationComponentsAccessibleByUser(ctx, user)
		if err != nil {
			return nil, wrapShardError("retrieve", "accessible components for "+quoteUser(user), "from", binding.Descriptor, err)
		}

		gd, err := binding.Client.GetUserToGroupMappings(ctx, user, false)
		if err != nil {
			return nil, wrapShardError("retrieve", "group mappings for user '"+user.String()+"'", "from", binding.Descriptor, err)
		}
		if len(gd) == 0 {
			return direct, nil
		}

		gi, err := c.expandGroups(ctx, gd)
		if err != nil {
			return nil, err
		}

		groupShards := shardmgr.GetClients(c.mgr, identity.ElementGroup, identity.OpQuery, gi)
		c.emitGroupFanOutWidth("HasAccessToApplicationComponentGroupsMappedToUser", "HasAccessToApplicationComponentGroupShardsQueried", gi, len(groupShards))

		fromGroups, err := fanOutCollect(ctx, groupShards, func(ctx context.Context, g shardmgr.ClientGroup[identity.Group]) ([]identity.ApplicationComponentAndAccessLevel, error) {
			pairs, err := g.Client.GetApplicationComponentsAccessibleByGroups(ctx, g.IDs)
			if err != nil {
				return nil, wrapShardError("retrieve", "accessible components for groups", "from", g.Descriptor, err)
			}
			return pairs, nil
		})
		if err != nil {
			return nil, err
		}
		return dedup(append([][]identity.ApplicationComponentAndAccessLevel{direct}, fromGroups...)), nil
	})
}

// GetApplicationComponentsAccessibleByGroups mirrors
// GetApplicationComponentsAccessibleByUser starting from a
// caller-supplied group set, per spec.md §9's group-enumeration
// resolution.
func (c *Coordinator) GetApplicationComponentsAccessibleByGroups(ctx context.Context, groups []identity.Group) ([]identity.ApplicationComponentAndAccessLevel, error) {
	return trackValue(c, "GetApplicationComponentsAccessibleByUserQueryTime", "GetApplicationComponentsAccessibleByUserQuery", map[string]string{"element": "Group"}, func() ([]identity.ApplicationComponentAndAccessLevel, error) {
		if len(groups) == 0 {
			return nil, nil
		}
		gi, err := c.expandGroups(ctx, groups)
		if err != nil {
			return nil, err
		}
		gi = dedup([][]identity.Group{groups, gi})

		groupShards := shardmgr.GetClients(c.mgr, identity.ElementGroup, identity.OpQuery, gi)
		c.emitGroupFanOutWidth("HasAccessToApplicationComponentGroupsMappedToUser", "HasAccessToApplicationComponentGroupShardsQueried", gi, len(groupShards))

		fromGroups, err := fanOutCollect(ctx, groupShards, func(ctx context.Context, g shardmgr.ClientGroup[identity.Group]) ([]identity.ApplicationComponentAndAccessLevel, error) {
			pairs, err := g.Client.GetApplicationComponentsAccessibleByGroups(ctx, g.IDs)
			if err != nil {
				return nil, wrapShardError("retrieve", "accessible components for groups", "from", g.Descriptor, err)
			}
			return pairs, nil
		})
		if err != nil {
			return nil, err
		}
		return dedup(fromGroups), nil
	})
}

// GetEntitiesAccessibleByUser is the entity-pair counterpart of
// GetApplicationComponentsAccessibleByUser.
func (c *Coordinator) GetEntitiesAccessibleByUser(ctx context.Context, user identity.User) ([]identity.EntityTypeAndEntity, error) {
	return trackValue(c, "GetEntitiesAccessibleByUserQueryTime", "GetEntitiesAccessibleByUserQuery", map[string]string{"element": "User"}, func() ([]identity.EntityTypeAndEntity, error) {
		binding, err := c.routeQuery1(identity.ElementUser, user)
		if err != nil {
			return nil, err
		}

		direct, err := binding.Client.GetEntitiesAccessibleByUser(ctx, user)
		if err != nil {
			return nil, wrapShardError("retrieve", "accessible entities for "+quoteUser(user), "from", binding.Descriptor, err)
		}

		gd, err := binding.Client.GetUserToGroupMappings(ctx, user, false)
		if err != nil {
			return nil, wrapShardError("retrieve", "group mappings for user '"+user.String()+"'", "from", binding.Descriptor, err)
		}
		if len(gd) == 0 {
			return direct, nil
		}

		gi, err := c.expandGroups(ctx, gd)
		if err != nil {
			return nil, err
		}

		groupShards := shardmgr.GetClients(c.mgr, identity.ElementGroup, identity.OpQuery, gi)
		c.emitGroupFanOutWidth("HasAccessToEntityGroupsMappedToUser", "HasAccessToEntityGroupShardsQueried", gi, len(groupShards))

		fromGroups, err := fanOutCollect(ctx, groupShards, func(ctx context.Context, g shardmgr.ClientGroup[identity.Group]) ([]identity.EntityTypeAndEntity, error) {
			pairs, err := g.Client.GetEntitiesAccessibleByGroups(ctx, g.IDs)
			if err != nil {
				return nil, wrapShardError("retrieve", "accessible entities for groups", "from", g.Descriptor, err)
			}
			return pairs, nil
		})
		if err != nil {
			return nil, err
		}
		return dedup(append([][]identity.EntityTypeAndEntity{direct}, fromGroups...)), nil
	})
}

// GetEntitiesAccessibleByUserForType narrows GetEntitiesAccessibleByUser
// to a single entity type, using the per-type shard methods throughout
// so a shard never has to materialize (and the coordinator never has to
// filter) the full cross-type result.
func (c *Coordinator) GetEntitiesAccessibleByUserForType(ctx context.Context, user identity.User, entityType identity.EntityType) ([]identity.Entity, error) {
	return trackValue(c, "GetEntitiesAccessibleByUserQueryTime", "GetEntitiesAccessibleByUserQuery", map[string]string{"element": "User"}, func() ([]identity.Entity, error) {
		binding, err := c.routeQuery1(identity.ElementUser, user)
		if err != nil {
			return nil, err
		}

		direct, err := binding.Client.GetEntitiesAccessibleByUserForType(ctx, user, entityType)
		if err != nil {
			return nil, wrapShardError("retrieve", "accessible entities for "+quoteUser(user), "from", binding.Descriptor, err)
		}

		gd, err := binding.Client.GetUserToGroupMappings(ctx, user, false)
		if err != nil {
			return nil, wrapShardError("retrieve", "group mappings for user '"+user.String()+"'", "from", binding.Descriptor, err)
		}
		if len(gd) == 0 {
			return direct, nil
		}

		gi, err := c.expandGroups(ctx, gd)
		if err != nil {
			return nil, err
		}

		groupShards := shardmgr.GetClients(c.mgr, identity.ElementGroup, identity.OpQuery, gi)
		c.emitGroupFanOutWidth("HasAccessToEntityGroupsMappedToUser", "HasAccessToEntityGroupShardsQueried", gi, len(groupShards))

		fromGroups, err := fanOutCollect(ctx, groupShards, func(ctx context.Context, g shardmgr.ClientGroup[identity.Group]) ([]identity.Entity, error) {
			entities, err := g.Client.GetEntitiesAccessibleByGroupsForType(ctx, g.IDs, entityType)
			if err != nil {
				return nil, wrapShardError("retrieve", "accessible entities for groups", "from", g.Descriptor, err)
			}
			return entities, nil
		})
		if err != nil {
			return nil, err
		}
		return dedup(append([][]identity.Entity{direct}, fromGroups...)), nil
	})
}

// GetEntitiesAccessibleByGroups mirrors GetEntitiesAccessibleByUser
// starting from a caller-supplied group set.
func (c *Coordinator) GetEntitiesAccessibleByGroups(ctx context.Context, groups []identity.Group) ([]identity.EntityTypeAndEntity, error) {
	return trackValue(c, "GetEntitiesAccessibleByUserQueryTime", "GetEntitiesAccessibleByUserQuery", map[string]string{"element": "Group"}, func() ([]identity.EntityTypeAndEntity, error) {
		if len(groups) == 0 {
			return nil, nil
		}
		gi, err := c.expandGroups(ctx, groups)
		if err != nil {
			return nil, err
		}
		gi = dedup([][]identity.Group{groups, gi})

		groupShards := shardmgr.GetClients(c.mgr, identity.ElementGroup, identity.OpQuery, gi)
		c.emitGroupFanOutWidth("HasAccessToEntityGroupsMappedToUser", "HasAccessToEntityGroupShardsQueried", gi, len(groupShards))

		fromGroups, err := fanOutCollect(ctx, groupShards, func(ctx context.Context, g shardmgr.ClientGroup[identity.Group]) ([]identity.EntityTypeAndEntity, error) {
			pairs, err := g.Client.GetEntitiesAccessibleByGroups(ctx, g.IDs)
			if err != nil {
				return nil, wrapShardError("retrieve", "accessible entities for groups", "from", g.Descriptor, err)
			}
			return pairs, nil
		})
		if err != nil {
			return nil, err
		}
		return dedup(fromGroups), nil
	})
}

// GetEntitiesAccessibleByGroupsForType narrows
// GetEntitiesAccessibleByGroups to a single entity type.
func (c *Coordinator) GetEntitiesAccessibleByGroupsForType(ctx context.Context, groups []identity.Group, entityType identity.EntityType) ([]identity.Entity, error) {
	return trackValue(c, "GetEntitiesAccessibleByUserQueryTime", "GetEntitiesAccessibleByUserQuery", map[string]string{"element": "Group"}, func() ([]identity.Entity, error) {
		if len(groups) == 0 {
			return nil, nil
		}
		gi, err := c.expandGroups(ctx, groups)
		if err != nil {
			return nil, err
		}
		gi = dedup([][]identity.Group{groups, gi})

		groupShards := shardmgr.GetClients(c.mgr, identity.ElementGroup, identity.OpQuery, gi)
		c.emitGroupFanOutWidth("HasAccessToEntityGroupsMappedToUser", "HasAccessToEntityGroupShardsQueried", gi, len(groupShards))

		fromGroups, err := fanOutCollect(ctx, groupShards, func(ctx context.Context, g shardmgr.ClientGroup[identity.Group]) ([]identity.Entity, error) {
			entities, err := g.Client.GetEntitiesAccessibleByGroupsForType(ctx, g.IDs, entityType)
			if err != nil {
				return nil, wrapShardError("retrieve", "accessible entities for groups", "from", g.Descriptor, err)
			}
			return entities, nil
		})
		if err != nil {
			return nil, err
		}
		return dedup(fromGroups), nil
	})
}
