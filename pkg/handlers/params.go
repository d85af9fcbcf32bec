package handlers

import (
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/ekaya-inc/ekaya-studio/pkg/apperrors"
	"github.com/ekaya-inc/ekaya-studio/pkg/models"
)

// ConnectionSource returns the connection context saved for a request.
// *auth.ConnectionStore implements it.
type ConnectionSource interface {
	Get(r *http.Request) (connString, dialect string, err error)
}

// connectionString returns the url query parameter, falling back to the
// connection cookie.
func connectionString(r *http.Request, source ConnectionSource) (string, error) {
	if u := strings.TrimSpace(r.URL.Query().Get("url")); u != "" {
		return u, nil
	}
	if source != nil {
		if conn, _, err := source.Get(r); err == nil {
			return conn, nil
		}
	}
	return "", apperrors.NewValidationError("url", "Database URL is required")
}

// parseListParams reads page, limit, sortBy, sortOrder and include.
// Out-of-range values are rejected rather than clamped.
func parseListParams(q url.Values) (models.ListParams, error) {
	params := models.ListParams{
		Page:      models.DefaultPage,
		Limit:     models.DefaultLimit,
		SortBy:    strings.TrimSpace(q.Get("sortBy")),
		SortOrder: models.SortAsc,
	}

	if v := q.Get("page"); v != "" {
		n, err := strconv.Atoi(strings.TrimSpace(v))
		if err != nil || n < 1 {
			return params, apperrors.NewValidationError("page", "Page must be a positive integer")
		}
		params.Page = n
	}

	if v := q.Get("limit"); v != "" {
		n, err := strconv.Atoi(strings.TrimSpace(v))
		if err != nil || n < 1 || n > models.MaxLimit {
			return params, apperrors.NewValidationError("limit", "Limit must be an integer between 1 and %d", models.MaxLimit)
		}
		params.Limit = n
	}

	switch strings.ToLower(strings.TrimSpace(q.Get("sortOrder"))) {
	case "", string(models.SortAsc):
	case string(models.SortDesc):
		params.SortOrder = models.SortDesc
	default:
		return params, apperrors.NewValidationError("sortOrder", "Sort order must be 'asc' or 'desc'")
	}

	params.IncludeRelations = includeRelations(q)
	return params, nil
}

// includeRelations reports whether include=relations was requested.
func includeRelations(q url.Values) bool {
	for _, v := range q["include"] {
		for _, part := range strings.Split(v, ",") {
			if strings.TrimSpace(part) == "relations" {
				return true
			}
		}
	}
	return false
}

// parseIDs reads ids given as ?ids=1,2 or repeated ?ids=1&ids=2.
func parseIDs(q url.Values) []string {
	var ids []string
	for _, v := range q["ids"] {
		for _, part := range strings.Split(v, ",") {
			if id := strings.TrimSpace(part); id != "" {
				ids = append(ids, id)
			}
		}
	}
	return ids
}
