package transport

import (
	"net/http"
	"strconv"
	"strings"

	"jam3a/internal/authz"
	"jam3a/internal/domain"
	"jam3a/internal/middleware"
	"jam3a/internal/repository"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
)

// pathUUID parses a UUID path parameter
func pathUUID(r *http.Request, name string) (uuid.UUID, error) {
	id, err := uuid.Parse(chi.URLParam(r, name))
	if err != nil {
		return uuid.Nil, domain.NewValidationError("invalid %s", name)
	}
	return id, nil
}

func queryInt(r *http.Request, name string, def int) (int, error) {
	raw := strings.TrimSpace(r.URL.Query().Get(name))
	if raw == "" {
		return def, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, domain.NewValidationError("%s must be an integer", name)
	}
	return n, nil
}

func queryIntPtr(r *http.Request, name string) (*int, error) {
	if r.URL.Query().Get(name) == "" {
		return nil, nil
	}
	n, err := queryInt(r, name, 0)
	if err != nil {
		return nil, err
	}
	return &n, nil
}

func queryBoolPtr(r *http.Request, name string) (*bool, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return nil, nil
	}
	b, err := strconv.ParseBool(raw)
	if err != nil {
		return nil, domain.NewValidationError("%s must be true or false", name)
	}
	return &b, nil
}

func queryUUIDPtr(r *http.Request, name string) (*uuid.UUID, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return nil, nil
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		return nil, domain.NewValidationError("invalid %s", name)
	}
	return &id, nil
}

func querySortOrder(r *http.Request) (repository.SortOrder, error) {
	switch strings.ToLower(r.URL.Query().Get("sort_order")) {
	case "":
		return "", nil
	case "asc":
		return repository.SortOrderAsc, nil
	case "desc":
		return repository.SortOrderDesc, nil
	}
	return "", domain.NewValidationError("sort_order must be asc or desc")
}

// pagination reads page and page_size, leaving defaults to the store
func pagination(r *http.Request) (page, pageSize int, err error) {
	if page, err = queryInt(r, "page", 1); err != nil {
		return 0, 0, err
	}
	if pageSize, err = queryInt(r, "page_size", 0); err != nil {
		return 0, 0, err
	}
	return page, pageSize, nil
}

// requireActor returns the authenticated actor or writes a 401
func requireActor(w http.ResponseWriter, r *http.Request) (authz.Actor, bool) {
	actor, ok := middleware.ActorFromContext(r.Context())
	if !ok {
		middleware.RespondWithError(w, domain.CodeUnauthorized, "authentication required")
	}
	return actor, ok
}

func pageOf(page, pageSize, defaultSize, maxSize int) (int, int) {
	if page < 1 {
		page = 1
	}
	if pageSize < 1 {
		pageSize = defaultSize
	}
	if pageSize > maxSize {
		pageSize = maxSize
	}
	return page, pageSize
}
