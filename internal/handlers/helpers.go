package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/benvon/formdrop/internal/httperr"
	"github.com/benvon/formdrop/internal/request"
)

const (
	// DefaultPageSize is the default page size for pagination
	DefaultPageSize = 20
	// MaxPageSize is the maximum page size for pagination
	MaxPageSize = 100
)

// respondJSON sends a JSON response
func respondJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	response := map[string]any{
		"success":   true,
		"data":      data,
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	}

	if err := json.NewEncoder(w).Encode(response); err != nil {
		http.Error(w, "Failed to encode response", http.StatusInternalServerError)
	}
}

// bindBody decodes a JSON body, or the parsed URL-encoded form when the request carried
// one, into dst.
func bindBody(r *http.Request, dst any) error {
	if form := request.Form(r); form != nil {
		raw, err := json.Marshal(form)
		if err != nil {
			return httperr.BadRequest("Invalid form body")
		}
		if err := json.Unmarshal(raw, dst); err != nil {
			return httperr.BadRequest("Invalid form body")
		}
		return nil
	}

	if r.Body == nil || r.Body == http.NoBody {
		return httperr.BadRequest("Request body is required")
	}

	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		var maxBytesErr *http.MaxBytesError
		if errors.As(err, &maxBytesErr) {
			return httperr.New(http.StatusRequestEntityTooLarge, "Request body too large")
		}
		return httperr.BadRequest("Invalid request body")
	}
	return nil
}

// pagination reads page and page_size query parameters, clamping them to sane values
func pagination(r *http.Request) (page, pageSize int) {
	page = 1
	if p := r.URL.Query().Get("page"); p != "" {
		if parsed, err := strconv.Atoi(p); err == nil && parsed > 0 {
			page = parsed
		}
	}

	pageSize = DefaultPageSize
	if ps := r.URL.Query().Get("page_size"); ps != "" {
		if parsed, err := strconv.Atoi(ps); err == nil && parsed > 0 {
			pageSize = min(parsed, MaxPageSize)
		}
	}
	return page, pageSize
}

func totalPages(total, pageSize int) int {
	pages := (total + pageSize - 1) / pageSize
	if pages == 0 {
		pages = 1
	}
	return pages
}
