package shardclient

import (
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"github.com/dreamware/accesscoordinator/internal/identity"
)

// seg percent-encodes one path segment so that identifiers containing
// '/', spaces, or other reserved characters round-trip safely.
func seg(s fmt.Stringer) string {
	return url.PathEscape(s.String())
}

func path(parts ...string) string {
	return "/" + strings.Join(parts, "/")
}

// groupsBody is the JSON body sent alongside GET requests whose
// parameter is a group set — long lists of groups can exceed practical
// query-string limits, so they travel in the body instead (spec §6
// calls this out as a deliberate deviation from plain REST GET).
type groupsBody struct {
	Groups []identity.Group `json:"groups"`
}

const includeIndirectParam = "includeIndirect"

func boolQuery(includeIndirect bool) string {
	return includeIndirectParam + "=" + strconv.FormatBool(includeIndirect)
}

// Routes. Kept in one place so the reference backend (cmd/shardnode)
// and this client agree on the wire shape without sharing code.

func routeHealth() string { return path("health") }

func routeUsers() string { return path("users") }
func routeUser(u identity.User) string { return path("users", seg(u)) }

func routeGroups() string { return path("groups") }
func routeGroup(g identity.Group) string { return path("groups", seg(g)) }

func routeUserGroups(u identity.User) string { return path("users", seg(u), "groups") }
func routeGroupUsers() string { return path("groups", "users") }

func routeUserGroupMapping(u identity.User, g identity.Group) string {
	return path("users", seg(u), "groups", seg(g))
}

func routeGroupGroupMapping(from, to identity.Group) string {
	return path("groups", seg(from), "groups", seg(to))
}

func routeGroupGroupMappings() string { return path("groups", "group-mappings") }

func routeUserComponentAccess(u identity.User, c identity.Component, a identity.AccessLevel) string {
	return path("users", seg(u), "components", seg(c), "access-levels", seg(a))
}

func routeGroupComponentAccess(g identity.Group, c identity.Component, a identity.AccessLevel) string {
	return path("groups", seg(g), "components", seg(c), "access-levels", seg(a))
}

func routeEntityTypes() string { return path("entity-types") }
func routeEntityType(t identity.EntityType) string { return path("entity-types", seg(t)) }
func routeEntities(t identity.EntityType) string { return path("entity-types", seg(t), "entities") }
func routeEntity(t identity.EntityType, e identity.Entity) string {
	return path("entity-types", seg(t), "entities", seg(e))
}

func routeUserEntityMapping(u identity.User, t identity.EntityType, e identity.Entity) string {
	return path("users", seg(u), "entity-types", seg(t), "entities", seg(e))
}

func routeGroupEntityMapping(g identity.Group, t identity.EntityType, e identity.Entity) string {
	return path("groups", seg(g), "entity-types", seg(t), "entities", seg(e))
}

func routeUserComponentHasAccess(u identity.User, c identity.Component, a identity.AccessLevel) string {
	return path("users", seg(u), "components", seg(c), "access-levels", seg(a), "has-access")
}

func routeGroupsComponentHasAccess(c identity.Component, a identity.AccessLevel) string {
	return path("groups", "components", seg(c), "access-levels", seg(a), "has-access")
}

func routeUserEntityHasAccess(u identity.User, t identity.EntityType, e identity.Entity) string {
	return path("users", seg(u), "entity-types", seg(t), "entities", seg(e), "has-access")
}

func routeGroupsEntityHasAccess(t identity.EntityType, e identity.Entity) string {
	return path("groups", "entity-types", seg(t), "entities", seg(e), "has-access")
}

func routeUserAccessibleComponents(u identity.User) string {
	return path("users", seg(u), "accessible-components")
}

func routeGroupsAccessibleComponents() string { return path("groups", "accessible-components") }

func routeUserAccessibleEntities(u identity.User) string {
	return path("users", seg(u), "accessible-entities")
}

func routeUserAccessibleEntitiesForType(u identity.User, t identity.EntityType) string {
	return path("users", seg(u), "entity-types", seg(t), "accessible-entities")
}

func routeGroupsAccessibleEntities() string { return path("groups", "accessible-entities") }

func routeGroupsAccessibleEntitiesForType(t identity.EntityType) string {
	return path("groups", "entity-types", seg(t), "accessible-entities")
}
