package main

import (
	"encoding/json"
	"net/http"

	jsoniter "github.com/json-iterator/go"
	"go.uber.org/zap"

	"github.com/dreamware/accesscoordinator/internal/coordinator"
	"github.com/dreamware/accesscoordinator/internal/identity"
	"github.com/dreamware/accesscoordinator/internal/shardmgr"
)

var wireJSON = jsoniter.ConfigCompatibleWithStandardLibrary

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

func writeError(w http.ResponseWriter, log *zap.Logger, err error) {
	log.Error("request failed", zap.Error(err))
	http.Error(w, err.Error(), http.StatusBadGateway)
}

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

// registerCoordinatorRoutes exposes the Coordinator's full operation
// surface over HTTP, using the same route shapes as
// internal/shardclient/wire.go so, per spec.md §6, "callers that were
// written against one backend can target the Coordinator unchanged."
// Also mirrors cmd/shardnode's route registration style — one
// http.ServeMux per process, one handler per operation, Go 1.22 method
// and wildcard patterns in place of a manual method switch.
func registerCoordinatorRoutes(mux *http.ServeMux, c *coordinator.Coordinator, mgr *shardmgr.Manager, log *zap.Logger) {
	mux.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) { writeOK(w) })

	mux.HandleFunc("GET /users", func(w http.ResponseWriter, r *http.Request) {
		users, err := c.GetUsers(r.Context())
		if err != nil {
			writeError(w, log, err)
			return
		}
		writeJSON(w, users)
	})
	mux.HandleFunc("GET /users/{user}", func(w http.ResponseWriter, r *http.Request) {
		ok, err := c.ContainsUser(r.Context(), identity.User(r.PathValue("user")))
		if err != nil {
			writeError(w, log, err)
			return
		}
		writeJSON(w, ok)
	})
	mux.HandleFunc("PUT /users/{user}", func(w http.ResponseWriter, r *http.Request) {
		if err := c.AddUser(r.Context(), identity.User(r.PathValue("user"))); err != nil {
			writeError(w, log, err)
			return
		}
		writeOK(w)
	})
	mux.HandleFunc("DELETE /users/{user}", func(w http.ResponseWriter, r *http.Request) {
		if err := c.RemoveUser(r.Context(), identity.User(r.PathValue("user"))); err != nil {
			writeError(w, log, err)
			return
		}
		writeOK(w)
	})

	mux.HandleFunc("GET /groups", func(w http.ResponseWriter, r *http.Request) {
		groups, err := c.GetGroups(r.Context())
		if err != nil {
			writeError(w, log, err)
			return
		}
		writeJSON(w, groups)
	})
	mux.HandleFunc("GET /groups/{group}", func(w http.ResponseWriter, r *http.Request) {
		ok, err := c.ContainsGroup(r.Context(), identity.Group(r.PathValue("group")))
		if err != nil {
			writeError(w, log, err)
			return
		}
		writeJSON(w, ok)
	})
	mux.HandleFunc("PUT /groups/{group}", func(w http.ResponseWriter, r *http.Request) {
		if err := c.AddGroup(r.Context(), identity.Group(r.PathValue("group"))); err != nil {
			writeError(w, log, err)
			return
		}
		writeOK(w)
	})
	mux.HandleFunc("DELETE /groups/{group}", func(w http.ResponseWriter, r *http.Request) {
		if err := c.RemoveGroup(r.Context(), identity.Group(r.PathValue("group"))); err != nil {
			writeError(w, log, err)
			return
		}
		writeOK(w)
	})

	mux.HandleFunc("GET /users/{user}/groups", func(w http.ResponseWriter, r *http.Request) {
		groups, err := c.GetUserToGroupMappings(r.Context(), identity.User(r.PathValue("user")), includeIndirect(r))
		if err != nil {
			writeError(w, log, err)
			return
		}
		writeJSON(w, groups)
	})
	mux.HandleFunc("GET /groups/users", func(w http.ResponseWriter, r *http.Request) {
		groups, err := decodeGroups(r)
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		users, err := c.GetGroupToUserMappings(r.Context(), groups, includeIndirect(r))
		if err != nil {
			writeError(w, log, err)
			return
		}
		writeJSON(w, users)
	})
	mux.HandleFunc("PUT /users/{user}/groups/{group}", func(w http.ResponseWriter, r *http.Request) {
		if err := c.AddUserToGroupMapping(r.Context(), identity.User(r.PathValue("user")), identity.Group(r.PathValue("group"))); err != nil {
			writeError(w, log, err)
			return
		}
		writeOK(w)
	})
	mux.HandleFunc("DELETE /users/{user}/groups/{group}", func(w http.ResponseWriter, r *http.Request) {
		if err := c.RemoveUserToGroupMapping(r.Context(), identity.User(r.PathValue("user")), identity.Group(r.PathValue("group"))); err != nil {
			writeError(w, log, err)
			return
		}
		writeOK(w)
	})

	mux.HandleFunc("PUT /groups/{from}/groups/{to}", func(w http.ResponseWriter, r *http.Request) {
		if err := c.AddGroupToGroupMapping(r.Context(), identity.Group(r.PathValue("from")), identity.Group(r.PathValue("to"))); err != nil {
			writeError(w, log, err)
			return
		}
		writeOK(w)
	})
	mux.HandleFunc("DELETE /groups/{from}/groups/{to}", func(w http.ResponseWriter, r *http.Request) {
		if err := c.RemoveGroupToGroupMapping(r.Context(), identity.Group(r.PathValue("from")), identity.Group(r.PathValue("to"))); err != nil {
			writeError(w, log, err)
			return
		}
		writeOK(w)
	})
	mux.HandleFunc("GET /groups/group-mappings", func(w http.ResponseWriter, r *http.Request) {
		groups, err := decodeGroups(r)
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		reachable, err := c.GetGroupToGroupMappings(r.Context(), groups)
		if err != nil {
			writeError(w, log, err)
			return
		}
		writeJSON(w, reachable)
	})

	mux.HandleFunc("PUT /users/{user}/components/{component}/access-levels/{access}", func(w http.ResponseWriter, r *http.Request) {
		err := c.AddUserToApplicationComponentAndAccessLevelMapping(r.Context(), identity.User(r.PathValue("user")), identity.Component(r.PathValue("component")), identity.AccessLevel(r.PathValue("access")))
		if err != nil {
			writeError(w, log, err)
			return
		}
		writeOK(w)
	})
	mux.HandleFunc("DELETE /users/{user}/components/{component}/access-levels/{access}", func(w http.ResponseWriter, r *http.Request) {
		err := c.RemoveUserToApplicationComponentAndAccessLevelMapping(r.Context(), identity.User(r.PathValue("user")), identity.Component(r.PathValue("component")), identity.AccessLevel(r.PathValue("access")))
		if err != nil {
			writeError(w, log, err)
			return
		}
		writeOK(w)
	})
	mux.HandleFunc("PUT /groups/{group}/components/{component}/access-levels/{access}", func(w http.ResponseWriter, r *http.Request) {
		err := c.AddGroupToApplicationComponentAndAccessLevelMapping(r.Context(), identity.Group(r.PathValue("group")), identity.Component(r.PathValue("component")), identity.AccessLevel(r.PathValue("access")))
		if err != nil {
			writeError(w, log, err)
			return
		}
		writeOK(w)
	})
	mux.HandleFunc("DELETE /groups/{group}/components/{component}/access-levels/{access}", func(w http.ResponseWriter, r *http.Request) {
		err := c.RemoveGroupToApplicationComponentAndAccessLevelMapping(r.Context(), identity.Group(r.PathValue("group")), identity.Component(r.PathValue("component")), identity.AccessLevel(r.PathValue("access")))
		if err != nil {
			writeError(w, log, err)
			return
		}
		writeOK(w)
	})

	mux.HandleFunc("GET /entity-types", func(w http.ResponseWriter, r *http.Request) {
		types, err := c.GetEntityTypes(r.Context())
		if err != nil {
			writeError(w, log, err)
			return
		}
		writeJSON(w, types)
	})
	mux.HandleFunc("GET /entity-types/{type}", func(w http.ResponseWriter, r *http.Request) {
		ok, err := c.ContainsEntityType(r.Context(), identity.EntityType(r.PathValue("type")))
		if err != nil {
			writeError(w, log, err)
			return
		}
		writeJSON(w, ok)
	})
	mux.HandleFunc("PUT /entity-types/{type}", func(w http.ResponseWriter, r *http.Request) {
		if err := c.AddEntityType(r.Context(), identity.EntityType(r.PathValue("type"))); err != nil {
			writeError(w, log, err)
			return
		}
		writeOK(w)
	})
	mux.HandleFunc("DELETE /entity-types/{type}", func(w http.ResponseWriter, r *http.Request) {
		if err := c.RemoveEntityType(r.Context(), identity.EntityType(r.PathValue("type"))); err != nil {
			writeError(w, log, err)
			return
		}
		writeOK(w)
	})

	mux.HandleFunc("GET /entity-types/{type}/entities", func(w http.ResponseWriter, r *http.Request) {
		entities, err := c.GetEntities(r.Context(), identity.EntityType(r.PathValue("type")))
		if err != nil {
			writeError(w, log, err)
			return
		}
		writeJSON(w, entities)
	})
	mux.HandleFunc("GET /entity-types/{type}/entities/{entity}", func(w http.ResponseWriter, r *http.Request) {
		ok, err := c.ContainsEntity(r.Context(), identity.EntityType(r.PathValue("type")), identity.Entity(r.PathValue("entity")))
		if err != nil {
			writeError(w, log, err)
			return
		}
		writeJSON(w, ok)
	})
	mux.HandleFunc("PUT /entity-types/{type}/entities/{entity}", func(w http.ResponseWriter, r *http.Request) {
		if err := c.AddEntity(r.Context(), identity.EntityType(r.PathValue("type")), identity.Entity(r.PathValue("entity"))); err != nil {
			writeError(w, log, err)
			return
		}
		writeOK(w)
	})
	mux.HandleFunc("DELETE /entity-types/{type}/entities/{entity}", func(w http.ResponseWriter, r *http.Request) {
		if err := c.RemoveEntity(r.Context(), identity.EntityType(r.PathValue("type")), identity.Entity(r.PathValue("entity"))); err != nil {
			writeError(w, log, err)
			return
		}
		writeOK(w)
	})

	mux.HandleFunc("PUT /users/{user}/entity-types/{type}/entities/{entity}", func(w http.ResponseWriter, r *http.Request) {
		err := c.AddUserToEntityMapping(r.Context(), identity.User(r.PathValue("user")), identity.EntityType(r.PathValue("type")), identity.Entity(r.PathValue("entity")))
		if err != nil {
			writeError(w, log, err)
			return
		}
		writeOK(w)
	})
	mux.HandleFunc("DELETE /users/{user}/entity-types/{type}/entities/{entity}", func(w http.ResponseWriter, r *http.Request) {
		err := c.RemoveUserToEntityMapping(r.Context(), identity.User(r.PathValue("user")), identity.EntityType(r.PathValue("type")), identity.Entity(r.PathValue("entity")))
		if err != nil {
			writeError(w, log, err)
			return
		}
		writeOK(w)
	})
	mux.HandleFunc("PUT /groups/{group}/entity-types/{type}/entities/{entity}", func(w http.ResponseWriter, r *http.Request) {
		err := c.AddGroupToEntityMapping(r.Context(), identity.Group(r.PathValue("group")), identity.EntityType(r.PathValue("type")), identity.Entity(r.PathValue("entity")))
		if err != nil {
			writeError(w, log, err)
			return
		}
		writeOK(w)
	})
	mux.HandleFunc("DELETE /groups/{group}/entity-types/{type}/entities/{entity}", func(w http.ResponseWriter, r *http.Request) {
		err := c.RemoveGroupToEntityMapping(r.Context(), identity.Group(r.PathValue("group")), identity.EntityType(r.PathValue("type")), identity.Entity(r.PathValue("entity")))
		if err != nil {
			writeError(w, log, err)
			return
		}
		writeOK(w)
	})

	mux.HandleFunc("GET /users/{user}/components/{component}/access-levels/{access}/has-access", func(w http.ResponseWriter, r *http.Request) {
		ok, err := c.HasAccessToApplicationComponent(r.Context(), identity.User(r.PathValue("user")), identity.Component(r.PathValue("component")), identity.AccessLevel(r.PathValue("access")))
		if err != nil {
			writeError(w, log, err)
			return
		}
		writeJSON(w, ok)
	})
	mux.HandleFunc("GET /groups/components/{component}/access-levels/{access}/has-access", func(w http.ResponseWriter, r *http.Request) {
		groups, err := decodeGroups(r)
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		ok, err := c.HasAccessToApplicationComponentForGroups(r.Context(), groups, identity.Component(r.PathValue("component")), identity.AccessLevel(r.PathValue("access")))
		if err != nil {
			writeError(w, log, err)
			return
		}
		writeJSON(w, ok)
	})
	mux.HandleFunc("GET /users/{user}/entity-types/{type}/entities/{entity}/has-access", func(w http.ResponseWriter, r *http.Request) {
		ok, err := c.HasAccessToEntity(r.Context(), identity.User(r.PathValue("user")), identity.EntityType(r.PathValue("type")), identity.Entity(r.PathValue("entity")))
		if err != nil {
			writeError(w, log, err)
			return
		}
		writeJSON(w, ok)
	})
	mux.HandleFunc("GET /groups/entity-types/{type}/entities/{entity}/has-access", func(w http.ResponseWriter, r *http.Request) {
		groups, err := decodeGroups(r)
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		ok, err := c.HasAccessToEntityForGroups(r.Context(), groups, identity.EntityType(r.PathValue("type")), identity.Entity(r.PathValue("entity")))
		if err != nil {
			writeError(w, log, err)
			return
		}
		writeJSON(w, ok)
	})

	mux.HandleFunc("GET /users/{user}/accessible-components", func(w http.ResponseWriter, r *http.Request) {
		pairs, err := c.GetApplicationComponentsAccessibleByUser(r.Context(), identity.User(r.PathValue("user")))
		if err != nil {
			writeError(w, log, err)
			return
		}
		writeJSON(w, pairs)
	})
	mux.HandleFunc("GET /groups/accessible-components", func(w http.ResponseWriter, r *http.Request) {
		groups, err := decodeGroups(r)
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		pairs, err := c.GetApplicationComponentsAccessibleByGroups(r.Context(), groups)
		if err != nil {
			writeError(w, log, err)
			return
		}
		writeJSON(w, pairs)
	})
	mux.HandleFunc("GET /users/{user}/accessible-entities", func(w http.ResponseWriter, r *http.Request) {
		pairs, err := c.GetEntitiesAccessibleByUser(r.Context(), identity.User(r.PathValue("user")))
		if err != nil {
			writeError(w, log, err)
			return
		}
		writeJSON(w, pairs)
	})
	mux.HandleFunc("GET /users/{user}/entity-types/{type}/accessible-entities", func(w http.ResponseWriter, r *http.Request) {
		entities, err := c.GetEntitiesAccessibleByUserForType(r.Context(), identity.User(r.PathValue("user")), identity.EntityType(r.PathValue("type")))
		if err != nil {
			writeError(w, log, err)
			return
		}
		writeJSON(w, entities)
	})
	mux.HandleFunc("GET /groups/accessible-entities", func(w http.ResponseWriter, r *http.Request) {
		groups, err := decodeGroups(r)
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		pairs, err := c.GetEntitiesAccessibleByGroups(r.Context(), groups)
		if err != nil {
			writeError(w, log, err)
			return
		}
		writeJSON(w, pairs)
	})
	mux.HandleFunc("GET /groups/entity-types/{type}/accessible-entities", func(w http.ResponseWriter, r *http.Request) {
		groups, err := decodeGroups(r)
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		entities, err := c.GetEntitiesAccessibleByGroupsForType(r.Context(), groups, identity.EntityType(r.PathValue("type")))
		if err != nil {
			writeError(w, log, err)
			return
		}
		writeJSON(w, entities)
	})

	// Administrative: drives shardmgr.Manager.RefreshConfiguration with a
	// freshly parsed topology, per spec.md §6's runtime reconfiguration
	// surface.
	mux.HandleFunc("POST /admin/shards/refresh", func(w http.ResponseWriter, r *http.Request) {
		var fc fileConfig
		if err := json.NewDecoder(r.Body).Decode(&fc); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		set, err := toShardConfigurationSet(fc.Shards)
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		if err := mgr.RefreshConfiguration(r.Context(), set); err != nil {
			writeError(w, log, err)
			return
		}
		writeOK(w)
	})
}
