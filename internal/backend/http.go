package backend

// Package-level HTTP transport for Store: the wire-format side of the
// reference shard node, speaking the same route shapes
// internal/shardclient/wire.go builds URLs for, so any httptest.Server
// wrapping RegisterRoutes is a drop-in backend for a shardclient.Client
// pointed at its URL.

import (
	"encoding/json"
	"net/http"

	jsoniter "github.com/json-iterator/go"
	"go.uber.org/zap"

	"github.com/dreamware/accesscoordinator/internal/identity"
)

var wireJSON = jsoniter.ConfigCompatibleWithStandardLibrary

// groupsBody mirrors internal/shardclient's groupsBody: the JSON
// envelope a query whose parameter is a group list travels in,
// alongside a GET, per spec.md §6.
type groupsBody struct {
	Groups []identity.Group `json:"groups"`
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	if err := wireJSON.NewEncoder(w).Encode(v); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}

func writeOK(w http.ResponseWriter) { w.WriteHeader(http.StatusOK) }

func includeIndirect(r *http.Request) bool {
	return r.URL.Query().Get("includeIndirect") == "true"
}

func decodeGroups(r *http.Request) ([]identity.Group, error) {
	var body groupsBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		return nil, err
	}
	return body.Groups, nil
}

// RegisterRoutes wires every operation of the Async Shard Client wire
// protocol (internal/shardclient/wire.go's route shapes) to handlers
// backed by a single in-memory backend.Store. Go 1.22's method-aware
// ServeMux patterns replace the teacher's manual r.Method switch inside
// a single "/shard/" handler, since this surface has far more distinct
// resources than the teacher's flat key/value store did.
func RegisterRoutes(mux *http.ServeMux, s *Store, log *zap.Logger) {
	mux.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) { writeOK(w) })

	mux.HandleFunc("GET /users", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, s.GetUsers())
	})
	mux.HandleFunc("GET /users/{user}", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, s.ContainsUser(identity.User(r.PathValue("user"))))
	})
	mux.HandleFunc("PUT /users/{user}", func(w http.ResponseWriter, r *http.Request) {
		s.AddUser(identity.User(r.PathValue("user")))
		writeOK(w)
	})
	mux.HandleFunc("DELETE /users/{user}", func(w http.ResponseWriter, r *http.Request) {
		s.RemoveUser(identity.User(r.PathValue("user")))
		writeOK(w)
	})

	mux.HandleFunc("GET /groups", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, s.GetGroups())
	})
	mux.HandleFunc("GET /groups/{group}", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, s.ContainsGroup(identity.Group(r.PathValue("group"))))
	})
	mux.HandleFunc("PUT /groups/{group}", func(w http.ResponseWriter, r *http.Request) {
		s.AddGroup(identity.Group(r.PathValue("group")))
		writeOK(w)
	})
	mux.HandleFunc("DELETE /groups/{group}", func(w http.ResponseWriter, r *http.Request) {
		s.RemoveGroup(identity.Group(r.PathValue("group")))
		writeOK(w)
	})

	mux.HandleFunc("GET /users/{user}/groups", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, s.GetUserToGroupMappings(identity.User(r.PathValue("user")), includeIndirect(r)))
	})
	mux.HandleFunc("GET /groups/users", func(w http.ResponseWriter, r *http.Request) {
		groups, err := decodeGroups(r)
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		writeJSON(w, s.GetGroupToUserMappings(groups, includeIndirect(r)))
	})
	mux.HandleFunc("PUT /users/{user}/groups/{group}", func(w http.ResponseWriter, r *http.Request) {
		s.AddUserToGroupMapping(identity.User(r.PathValue("user")), identity.Group(r.PathValue("group")))
		writeOK(w)
	})
	mux.HandleFunc("DELETE /users/{user}/groups/{group}", func(w http.ResponseWriter, r *http.Request) {
		s.RemoveUserToGroupMapping(identity.User(r.PathValue("user")), identity.Group(r.PathValue("group")))
		writeOK(w)
	})

	mux.HandleFunc("PUT /groups/{from}/groups/{to}", func(w http.ResponseWriter, r *http.Request) {
		s.AddGroupToGroupMapping(identity.Group(r.PathValue("from")), identity.Group(r.PathValue("to")))
		writeOK(w)
	})
	mux.HandleFunc("DELETE /groups/{from}/groups/{to}", func(w http.ResponseWriter, r *http.Request) {
		s.RemoveGroupToGroupMapping(identity.Group(r.PathValue("from")), identity.Group(r.PathValue("to")))
		writeOK(w)
	})
	mux.HandleFunc("GET /groups/group-mappings", func(w http.ResponseWriter, r *http.Request) {
		groups, err := decodeGroups(r)
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		writeJSON(w, s.GetGroupToGroupMappings(groups))
	})

	mux.HandleFunc("PUT /users/{user}/components/{component}/access-levels/{access}", func(w http.ResponseWriter, r *http.Request) {
		s.AddUserToApplicationComponentAndAccessLevelMapping(identity.User(r.PathValue("user")), identity.Component(r.PathValue("component")), identity.AccessLevel(r.PathValue("access")))
		writeOK(w)
	})
	mux.HandleFunc("DELETE /users/{user}/components/{component}/access-levels/{access}", func(w http.ResponseWriter, r *http.Request) {
		s.RemoveUserToApplicationComponentAndAccessLevelMapping(identity.User(r.PathValue("user")), identity.Component(r.PathValue("component")), identity.AccessLevel(r.PathValue("access")))
		writeOK(w)
	})
	mux.HandleFunc("PUT /groups/{group}/components/{component}/access-levels/{access}", func(w http.ResponseWriter, r *http.Request) {
		s.AddGroupToApplicationComponentAndAccessLevelMapping(identity.Group(r.PathValue("group")), identity.Component(r.PathValue("component")), identity.AccessLevel(r.PathValue("access")))
		writeOK(w)
	})
	mux.HandleFunc("DELETE /groups/{group}/components/{component}/access-levels/{access}", func(w http.ResponseWriter, r *http.Request) {
		s.RemoveGroupToApplicationComponentAndAccessLevelMapping(identity.Group(r.PathValue("group")), identity.Component(r.PathValue("component")), identity.AccessLevel(r.PathValue("access")))
		writeOK(w)
	})

	mux.HandleFunc("GET /entity-types", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, s.GetEntityTypes())
	})
	mux.HandleFunc("GET /entity-types/{type}", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, s.ContainsEntityType(identity.EntityType(r.PathValue("type"))))
	})
	mux.HandleFunc("PUT /entity-types/{type}", func(w http.ResponseWriter, r *http.Request) {
		s.AddEntityType(identity.EntityType(r.PathValue("type")))
		writeOK(w)
	})
	mux.HandleFunc("DELETE /entity-types/{type}", func(w http.ResponseWriter, r *http.Request) {
		s.RemoveEntityType(identity.EntityType(r.PathValue("type")))
		writeOK(w)
	})

	mux.HandleFunc("GET /entity-types/{type}/entities", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, s.GetEntities(identity.EntityType(r.PathValue("type"))))
	})
	mux.HandleFunc("GET /entity-types/{type}/entities/{entity}", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, s.ContainsEntity(identity.EntityType(r.PathValue("type")), identity.Entity(r.PathValue("entity"))))
	})
	mux.HandleFunc("PUT /entity-types/{type}/entities/{entity}", func(w http.ResponseWriter, r *http.Request) {
		s.AddEntity(identity.EntityType(r.PathValue("type")), identity.Entity(r.PathValue("entity")))
		writeOK(w)
	})
	mux.HandleFunc("DELETE /entity-types/{type}/entities/{entity}", func(w http.ResponseWriter, r *http.Request) {
		s.RemoveEntity(identity.EntityType(r.PathValue("type")), identity.Entity(r.PathValue("entity")))
		writeOK(w)
	})

	mux.HandleFunc("PUT /users/{user}/entity-types/{type}/entities/{entity}", func(w http.ResponseWriter, r *http.Request) {
		s.AddUserToEntityMapping(identity.User(r.PathValue("user")), identity.EntityType(r.PathValue("type")), identity.Entity(r.PathValue("entity")))
		writeOK(w)
	})
	mux.HandleFunc("DELETE /users/{user}/entity-types/{type}/entities/{entity}", func(w http.ResponseWriter, r *http.Request) {
		s.RemoveUserToEntityMapping(identity.User(r.PathValue("user")), identity.EntityType(r.PathValue("type")), identity.Entity(r.PathValue("entity")))
		writeOK(w)
	})
	mux.HandleFunc("PUT /groups/{group}/entity-types/{type}/entities/{entity}", func(w http.ResponseWriter, r *http.Request) {
		s.AddGroupToEntityMapping(identity.Group(r.PathValue("group")), identity.EntityType(r.PathValue("type")), identity.Entity(r.PathValue("entity")))
		writeOK(w)
	})
	mux.HandleFunc("DELETE /groups/{group}/entity-types/{type}/entities/{entity}", func(w http.ResponseWriter, r *http.Request) {
		s.RemoveGroupToEntityMapping(identity.Group(r.PathValue("group")), identity.EntityType(r.PathValue("type")), identity.Entity(r.PathValue("entity")))
		writeOK(w)
	})

	mux.HandleFunc("GET /users/{user}/components/{component}/access-levels/{access}/has-access", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, s.HasAccessToApplicationComponent(identity.User(r.PathValue("user")), identity.Component(r.PathValue("component")), identity.AccessLevel(r.PathValue("access"))))
	})
	mux.HandleFunc("GET /groups/components/{component}/access-levels/{access}/has-access", func(w http.ResponseWriter, r *http.Request) {
		groups, err := decodeGroups(r)
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		writeJSON(w, s.HasAccessToApplicationComponentForGroups(groups, identity.Component(r.PathValue("component")), identity.AccessLevel(r.PathValue("access"))))
	})
	mux.HandleFunc("GET /users/{user}/entity-types/{type}/entities/{entity}/has-access", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, s.HasAccessToEntity(identity.User(r.PathValue("user")), identity.EntityType(r.PathValue("type")), identity.Entity(r.PathValue("entity"))))
	})
	mux.HandleFunc("GET /groups/entity-types/{type}/entities/{entity}/has-access", func(w http.ResponseWriter, r *http.Request) {
		groups, err := decodeGroups(r)
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		writeJSON(w, s.HasAccessToEntityForGroups(groups, identity.EntityType(r.PathValue("type")), identity.Entity(r.PathValue("entity"))))
	})

	mux.HandleFunc("GET /users/{user}/accessible-components", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, s.GetApplicationComponentsAccessibleByUser(identity.User(r.PathValue("user"))))
	})
	mux.HandleFunc("GET /groups/accessible-components", func(w http.ResponseWriter, r *http.Request) {
		groups, err := decodeGroups(r)
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		writeJSON(w, s.GetApplicationComponentsAccessibleByGroups(groups))
	})
	mux.HandleFunc("GET /users/{user}/accessible-entities", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, s.GetEntitiesAccessibleByUser(identity.User(r.PathValue("user"))))
	})
	mux.HandleFunc("GET /users/{user}/entity-types/{type}/accessible-entities", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, s.GetEntitiesAccessibleByUserForType(identity.User(r.PathValue("user")), identity.EntityType(r.PathValue("type"))))
	})
	mux.HandleFunc("GET /groups/accessible-entities", func(w http.ResponseWriter, r *http.Request) {
		groups, err := decodeGroups(r)
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		writeJSON(w, s.GetEntitiesAccessibleByGroups(groups))
	})
	mux.HandleFunc("GET /groups/entity-types/{type}/accessible-entities", func(w http.ResponseWriter, r *http.Request) {
		groups, err := decodeGroups(r)
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		writeJSON(w, s.GetEntitiesAccessibleByGroupsForType(groups, identity.EntityType(r.PathValue("type"))))
	})

	log.Debug("reference shard node routes registered")
}
