// Package identity defines the opaque identifier types shared across the
// access coordinator: users, groups, application components, access
// levels, and the typed-entity pair used for entity-based authorization.
package identity

import "fmt"

// User identifies a single principal in the access-manager data model.
// Only equality, hashing (as a map key), and string conversion are
// required of it — the type exists to stop a User from being passed
// where a Group is expected at compile time.
type User string

// String implements fmt.Stringer.
func (u User) String() string { return string(u) }

// Group identifies a collection of users (and possibly other groups, via
// the group-to-group mapping relation).
type Group string

// String implements fmt.Stringer.
func (g Group) String() string { return string(g) }

// Component identifies an application component that access levels are
// granted against (e.g. "Order", "Invoice").
type Component string

// String implements fmt.Stringer.
func (c Component) String() string { return string(c) }

// AccessLevel identifies a permission level on a Component (e.g.
// "Create", "View", "Delete").
type AccessLevel string

// String implements fmt.Stringer.
func (a AccessLevel) String() string { return string(a) }

// EntityType names a class of arbitrary named objects (e.g. "ClientAccount").
type EntityType string

// String implements fmt.Stringer.
func (t EntityType) String() string { return string(t) }

// Entity names a single instance within an EntityType (e.g. "ClientA").
type Entity string

// String implements fmt.Stringer.
func (e Entity) String() string { return string(e) }

// DataElementKind selects which partitioning scheme a shard operates
// under: by user, by group, or by the group-to-group mapping relation.
type DataElementKind int

const (
	// ElementUser partitions by User identifier.
	ElementUser DataElementKind = iota
	// ElementGroup partitions by Group identifier.
	ElementGroup
	// ElementGroupToGroupMapping partitions by the "from" Group of a
	// group-to-group edge.
	ElementGroupToGroupMapping
)

// String renders the element kind for descriptions, log fields, and
// metric tags.
func (k DataElementKind) String() string {
	switch k {
	case ElementUser:
		return "User"
	case ElementGroup:
		return "Group"
	case ElementGroupToGroupMapping:
		return "GroupToGroupMapping"
	default:
		return fmt.Sprintf("DataElementKind(%d)", int(k))
	}
}

// OperationKind distinguishes a read (Query) from a mutation (Event),
// determining which shard role — read-replica or primary — is eligible
// to serve a given call.
type OperationKind int

const (
	// OpQuery is a read operation.
	OpQuery OperationKind = iota
	// OpEvent is a mutating operation.
	OpEvent
)

// String renders the operation kind for descriptions, log fields, and
// metric tags.
func (k OperationKind) String() string {
	switch k {
	case OpQuery:
		return "Query"
	case OpEvent:
		return "Event"
	default:
		return fmt.Sprintf("OperationKind(%d)", int(k))
	}
}

// ApplicationComponentAndAccessLevel is the named-pair result element
// returned by GetApplicationComponentsAccessibleByUser/Group, matching
// the "objects with named fields" wire shape spec'd for tuple results.
type ApplicationComponentAndAccessLevel struct {
	ApplicationComponent Component   `json:"applicationComponent"`
	AccessLevel          AccessLevel `json:"accessLevel"`
}

// EntityTypeAndEntity is the named-pair result element returned by
// GetEntitiesAccessibleByUser/Group.
type EntityTypeAndEntity struct {
	EntityType EntityType `json:"entityType"`
	Entity     Entity     `json:"entity"`
}
