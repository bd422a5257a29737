package api

import (
	"context"
	"net/http"
	"strings"

	"github.com/axelofwar/be-community-gamification/internal/domain/types"
)

// RankDependencies defines the interface for rank operations.
type RankDependencies interface {
	Rank(ctx context.Context, key string) (Entry, error)
}

// RankHandler handles rank requests.
type RankHandler struct {
	deps RankDependencies
}

// NewRankHandler creates a new rank handler.
func NewRankHandler(deps RankDependencies) *RankHandler {
	return &RankHandler{deps: deps}
}

// HandleGetRank handles GET /rank/{key} requests.
func (h *RankHandler) HandleGetRank(w http.ResponseWriter, r *http.Request) {
	const op = "api.get_rank"
	key, ok := pathKey(w, r, "/rank/", op)
	if !ok {
		return
	}
	entry, err := h.deps.Rank(r.Context(), key)
	if err != nil {
		writeLookupError(w, op, err)
		return
	}
	writeJSON(w, http.StatusOK, entry)
}

// EntityDependencies defines the interface for entity lookups.
type EntityDependencies interface {
	Entity(ctx context.Context, key string) (types.Entity, error)
}

// EntitiesHandler serves the detailed view of one tracked entity.
type EntitiesHandler struct {
	deps EntityDependencies
}

// NewEntitiesHandler creates a new entities handler.
func NewEntitiesHandler(deps EntityDependencies) *EntitiesHandler {
	return &EntitiesHandler{deps: deps}
}

// HandleGetEntity handles GET /entities/{key} requests.
func (h *EntitiesHandler) HandleGetEntity(w http.ResponseWriter, r *http.Request) {
	const op = "api.get_entity"
	key, ok := pathKey(w, r, "/entities/", op)
	if !ok {
		return
	}
	entity, err := h.deps.Entity(r.Context(), key)
	if err != nil {
		writeLookupError(w, op, err)
		return
	}
	writeJSON(w, http.StatusOK, entity)
}

// pathKey extracts the single path segment after prefix, writing the
// error response itself when there is none.
func pathKey(w http.ResponseWriter, r *http.Request, prefix, op string) (string, bool) {
	if r.Method != http.MethodGet {
		http.NotFound(w, r)
		return "", false
	}
	key := strings.TrimPrefix(r.URL.Path, prefix)
	if strings.TrimSpace(key) == "" || strings.Contains(key, "/") {
		writeError(w, http.StatusBadRequest, "bad_request", NewKind(op, ErrBadRequest))
		return "", false
	}
	return key, true
}

func writeLookupError(w http.ResponseWriter, op string, err error) {
	if isNotFound(err) {
		writeError(w, http.StatusNotFound, "not_found", WrapKind(op, ErrNotFound, err))
		return
	}
	writeError(w, http.StatusInternalServerError, "internal_error", Wrap(op, err))
}
