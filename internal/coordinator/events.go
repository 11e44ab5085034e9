package coordinator

import (
	"context"
	"fmt"

	"github.com/dreamware/accesscoordinator/internal/identity"
	"github.com/dreamware/accesscoordinator/internal/shardmgr"
)

func (c *Coordinator) route1(element identity.DataElementKind, id fmt.Stringer) (shardmgr.ClientBinding, error) {
	binding, ok := c.mgr.GetClient(element, identity.OpEvent, id)
	if !ok {
		return shardmgr.ClientBinding{}, &NoShardConfiguredError{Role: element.String() + "/Event"}
	}
	return binding, nil
}

func (c *Coordinator) allEventShards(elements ...identity.DataElementKind) []shardmgr.ClientBinding {
	var all []shardmgr.ClientBinding
	for _, e := range elements {
		all = append(all, c.mgr.GetAllClients(e, identity.OpEvent)...)
	}
	return all
}

// --- P1: single-shard event on a user ---

// AddUser routes to the User-event shard owning user and registers it.
func (c *Coordinator) AddUser(ctx context.Context, user identity.User) error {
	return track(c, "UserAddTime", "UserAdded", map[string]string{"element": "User"}, func() error {
		binding, err := c.route1(identity.ElementUser, user)
		if err != nil {
			return err
		}
		if err := binding.Client.AddUser(ctx, user); err != nil {
			return wrapShardError("add", quoteUser(user), "to", binding.Descriptor, err)
		}
		return nil
	})
}

func (c *Coordinator) AddUserToGroupMapping(ctx context.Context, user identity.User, group identity.Group) error {
	return track(c, "UserToGroupMappingAddTime", "UserToGroupMappingAdded", nil, func() error {
		binding, err := c.route1(identity.ElementUser, user)
		if err != nil {
			return err
		}
		if err := binding.Client.AddUserToGroupMapping(ctx, user, group); err != nil {
			return wrapShardError("add", "mapping between user '"+user.String()+"' and group '"+group.String()+"'", "to", binding.Descriptor, err)
		}
		return nil
	})
}

func (c *Coordinator) RemoveUserToGroupMapping(ctx context.Context, user identity.User, group identity.Group) error {
	return track(c, "UserToGroupMappingRemoveTime", "UserToGroupMappingRemoved", nil, func() error {
		binding, err := c.route1(identity.ElementUser, user)
		if err != nil {
			return err
		}
		if err := binding.Client.RemoveUserToGroupMapping(ctx, user, group); err != nil {
			return wrapShardError("remove", "mapping between user '"+user.String()+"' and group '"+group.String()+"'", "from", binding.Descriptor, err)
		}
		return nil
	})
}

func (c *Coordinator) AddUserToApplicationComponentAndAccessLevelMapping(ctx context.Context, user identity.User, component identity.Component, level identity.AccessLevel) error {
	return track(c, "UserToApplicationComponentAndAccessLevelMappingAddTime", "UserToApplicationComponentAndAccessLevelMappingAdded", nil, func() error {
		binding, err := c.route1(identity.ElementUser, user)
		if err != nil {
			return err
		}
		if err := binding.Client.AddUserToApplicationComponentAndAccessLevelMapping(ctx, user, component, level); err != nil {
			return wrapShardError("add", "component/access mapping for user '"+user.String()+"'", "to", binding.Descriptor, err)
		}
		return nil
	})
}

func (c *Coordinator) RemoveUserToApplicationComponentAndAccessLevelMapping(ctx context.Context, user identity.User, component identity.Component, level identity.AccessLevel) error {
	return track(c, "UserToApplicationComponentAndAccessLevelMappingRemoveTime", "UserToApplicationComponentAndAccessLevelMappingRemoved", nil, func() error {
		binding, err := c.route1(identity.ElementUser, user)
		if err != nil {
			return err
		}
		if err := binding.Client.RemoveUserToApplicationComponentAndAccessLevelMapping(ctx, user, component, level); err != nil {
			return wrapShardError("remove", "component/access mapping for user '"+user.String()+"'", "from", binding.Descriptor, err)
		}
		return nil
	})
}

func (c *Coordinator) AddUserToEntityMapping(ctx context.Context, user identity.User, entityType identity.EntityType, entity identity.Entity) error {
	return track(c, "UserToEntityMappingAddTime", "UserToEntityMappingAdded", nil, func() error {
		binding, err := c.route1(identity.ElementUser, user)
		if err != nil {
			return err
		}
		if err := binding.Client.AddUserToEntityMapping(ctx, user, entityType, entity); err != nil {
			return wrapShardError("add", "entity mapping for user '"+user.String()+"'", "to", binding.Descriptor, err)
		}
		return nil
	})
}

func (c *Coordinator) RemoveUserToEntityMapping(ctx context.Context, user identity.User, entityType identity.EntityType, entity identity.Entity) error {
	return track(c, "UserToEntityMappingRemoveTime", "UserToEntityMappingRemoved", nil, func() error {
		binding, err := c.route1(identity.ElementUser, user)
		if err != nil {
			return err
		}
		if err := binding.Client.RemoveUserToEntityMapping(ctx, user, entityType, entity); err != nil {
			return wrapShardError("remove", "entity mapping for user '"+user.String()+"'", "from", binding.Descriptor, err)
		}
		return nil
	})
}

// --- P2: single-shard event on a group ---

func (c *Coordinator) AddGroupToGroupMapping(ctx context.Context, fromGroup, toGroup identity.Group) error {
	return track(c, "GroupToGroupMappingAddTime", "GroupToGroupMappingAdded", nil, func() error {
		binding, err := c.route1(identity.ElementGroupToGroupMapping, fromGroup)
		if err != nil {
			return err
		}
		if err := binding.Client.AddGroupToGroupMapping(ctx, fromGroup, toGroup); err != nil {
			return wrapShardError("add", "mapping between group '"+fromGroup.String()+"' and group '"+toGroup.String()+"'", "to", binding.Descriptor, err)
		}
		return nil
	})
}

func (c *Coordinator) RemoveGroupToGroupMapping(ctx context.Context, fromGroup, toGroup identity.Group) error {
	return track(c, "GroupToGroupMappingRemoveTime", "GroupToGroupMappingRemoved", nil, func() error {
		binding, err := c.route1(identity.ElementGroupToGroupMapping, fromGroup)
		if err != nil {
			return err
		}
		if err := binding.Client.RemoveGroupToGroupMapping(ctx, fromGroup, toGroup); err != nil {
			return wrapShardError("remove", "mapping between group '"+fromGroup.String()+"' and group '"+toGroup.String()+"'", "from", binding.Descriptor, err)
		}
		return nil
	})
}

func (c *Coordinator) AddGroupToApplicationComponentAndAccessLevelMapping(ctx context.Context, group identity.Group, component identity.Component, level identity.AccessLevel) error {
	return track(c, "GroupToApplicationComponentAndAccessLevelMappingAddTime", "GroupToApplicationComponentAndAccessLevelMappingAdded", nil, func() error {
		binding, err := c.route1(identity.ElementGroup, group)
		if err != nil {
			return err
		}
		if err := binding.Client.AddGroupToApplicationComponentAndAccessLevelMapping(ctx, group, component, level); err != nil {
			return wrapShardError("add", "component/access mapping for group '"+group.String()+"'", "to", binding.Descriptor, err)
		}
		return nil
	})
}

func (c *Coordinator) RemoveGroupToApplicationComponentAndAccessLevelMapping(ctx context.Context, group identity.Group, component identity.Component, level identity.AccessLevel) error {
	return track(c, "GroupToApplicationComponentAndAccessLevelMappingRemoveTime", "GroupToApplicationComponentAndAccessLevelMappingRemoved", nil, func() error {
		binding, err := c.route1(identity.ElementGroup, group)
		if err != nil {
			return err
		}
		if err := binding.Client.RemoveGroupToApplicationComponentAndAccessLevelMapping(ctx, group, component, level); err != nil {
			return wrapShardError("remove", "component/access mapping for group '"+group.String()+"'", "from", binding.Descriptor, err)
		}
		return nil
	})
}

func (c *Coordinator) AddGroupToEntityMapping(ctx context.Context, group identity.Group, entityType identity.EntityType, entity identity.Entity) error {
	return track(c, "GroupToEntityMappingAddTime", "GroupToEntityMappingAdded", nil, func() error {
		binding, err := c.route1(identity.ElementGroup, group)
		if err != nil {
			return err
		}
		if err := binding.Client.AddGroupToEntityMapping(ctx, group, entityType, entity); err != nil {
			return wrapShardError("add", "entity mapping for group '"+group.String()+"'", "to", binding.Descriptor, err)
		}
		return nil
	})
}

func (c *Coordinator) RemoveGroupToEntityMapping(ctx context.Context, group identity.Group, entityType identity.EntityType, entity identity.Entity) error {
	return track(c, "GroupToEntityMappingRemoveTime", "GroupToEntityMappingRemoved", nil, func() error {
		binding, err := c.route1(identity.ElementGroup, group)
		if err != nil {
			return err
		}
		if err := binding.Client.RemoveGroupToEntityMapping(ctx, group, entityType, entity); err != nil {
			return wrapShardError("remove", "entity mapping for group '"+group.String()+"'", "from", binding.Descriptor, err)
		}
		return nil
	})
}

// --- P4: fan-out event ---

// RemoveUser fans out to every User-event shard: the user's identity
// could have left residue (mappings, access grants) on any of them,
// and backend removal is idempotent so calling every shard is safe.
func (c *Coordinator) RemoveUser(ctx context.Context, user identity.User) error {
	return track(c, "UserRemoveTime", "UserRemoved", map[string]string{"element": "User"}, func() error {
		shards := c.mgr.GetAllClients(identity.ElementUser, identity.OpEvent)
		return fanOutAll(ctx, shards, func(ctx context.Context, b shardmgr.ClientBinding) error {
			if err := b.Client.RemoveUser(ctx, user); err != nil {
				return wrapShardError("remove", quoteUser(user), "from", b.Descriptor, err)
			}
			return nil
		})
	})
}

// AddGroup registers the group on its owning Group-event shard and on
// every GroupToGroupMapping-event shard, since the group may
// subsequently participate in the group-to-group graph on any of them.
func (c *Coordinator) AddGroup(ctx context.Context, group identity.Group) error {
	return track(c, "GroupAddTime", "GroupAdded", map[string]string{"element": "Group"}, func() error {
		primary, err := c.route1(identity.ElementGroup, group)
		if err != nil {
			return err
		}
		if err := primary.Client.AddGroup(ctx, group); err != nil {
			return wrapShardError("add", quoteGroup(group), "to", primary.Descriptor, err)
		}

		graphShards := c.mgr.GetAllClients(identity.ElementGroupToGroupMapping, identity.OpEvent)
		return fanOutAll(ctx, graphShards, func(ctx context.Context, b shardmgr.ClientBinding) error {
			if err := b.Client.AddGroup(ctx, group); err != nil {
				return wrapShardError("add", quoteGroup(group), "to", b.Descriptor, err)
			}
			return nil
		})
	})
}

// RemoveGroup fans out to every User-, Group-, and
// GroupToGroupMapping-event shard: the group may be referenced from
// any of the three.
func (c *Coordinator) RemoveGroup(ctx context.Context, group identity.Group) error {
	return track(c, "GroupRemoveTime", "GroupRemoved", map[string]string{"element": "Group"}, func() error {
		shards := c.allEventShards(identity.ElementUser, identity.ElementGroup, identity.ElementGroupToGroupMapping)
		return fanOutAll(ctx, shards, func(ctx context.Context, b shardmgr.ClientBinding) error {
			if err := b.Client.RemoveGroup(ctx, group); err != nil {
				return wrapShardError("remove", quoteGroup(group), "from", b.Descriptor, err)
			}
			return nil
		})
	})
}

// AddEntityType fans out to every User- and Group-event shard, since
// entity mappings (and therefore entity-type existence checks) live on
// both.
func (c *Coordinator) AddEntityType(ctx context.Context, entityType identity.EntityType) error {
	return track(c, "EntityTypeAddTime", "EntityTypeAdded", nil, func() error {
		shards := c.allEventShards(identity.ElementUser, identity.ElementGroup)
		return fanOutAll(ctx, shards, func(ctx context.Context, b shardmgr.ClientBinding) error {
			if err := b.Client.AddEntityType(ctx, entityType); err != nil {
				return wrapShardError("add", "entity type '"+entityType.String()+"'", "to", b.Descriptor, err)
			}
			return nil
		})
	})
}

func (c *Coordinator) RemoveEntityType(ctx context.Context, entityType identity.EntityType) error {
	return track(c, "EntityTypeRemoveTime", "EntityTypeRemoved", nil, func() error {
		shards := c.allEventShards(identity.ElementUser, identity.ElementGroup)
		return fanOutAll(ctx, shards, func(ctx context.Context, b shardmgr.ClientBinding) error {
			if err := b.Client.RemoveEntityType(ctx, entityType); err != nil {
				return wrapShardError("remove", "entity type '"+entityType.String()+"'", "from", b.Descriptor, err)
			}
			return nil
		})
	})
}

func (c *Coordinator) AddEntity(ctx context.Context, entityType identity.EntityType, entity identity.Entity) error {
	return track(c, "EntityAddTime", "EntityAdded", nil, func() error {
		shards := c.allEventShards(identity.ElementUser, identity.ElementGroup)
		return fanOutAll(ctx, shards, func(ctx context.Context, b shardmgr.ClientBinding) error {
			if err := b.Client.AddEntity(ctx, entityType, entity); err != nil {
				return wrapShardError("add", "entity '"+entity.String()+"'", "to", b.Descriptor, err)
			}
			return nil
		})
	})
}

func (c *Coordinator) RemoveEntity(ctx context.Context, entityType identity.EntityType, entity identity.Entity) error {
	return track(c, "EntityRemoveTime", "EntityRemoved", nil, func() error {
		shards := c.allEventShards(identity.ElementUser, identity.ElementGroup)
		return fanOutAll(ctx, shards, func(ctx context.Context, b shardmgr.ClientBinding) error {
			if err := b.Client.RemoveEntity(ctx, entityType, entity); err != nil {
				return wrapShardError("remove", "entity '"+entity.String()+"'", "from", b.Descriptor, err)
			}
			return nil
		})
	})
}

func quoteUser(u identity.User) string   { return "user '" + u.String() + "'" }
func quoteGroup(g identity.Group) string { return "group '" + g.String() + "'" }
