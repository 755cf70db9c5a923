package middleware

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"mime"
	"net/http"

	"github.com/benvon/formdrop/internal/httperr"
	"github.com/benvon/formdrop/internal/request"
	"go.uber.org/zap"
)

const (
	// DefaultJSONBodyLimit is the default maximum JSON body size (10MB)
	DefaultJSONBodyLimit int64 = 10 << 20
	// DefaultFormBodyLimit is the default maximum URL-encoded body size (100KB)
	DefaultFormBodyLimit int64 = 100 << 10
)

// JSONBody buffers application/json request bodies up to maxBytes and rejects oversized
// or malformed payloads before any route runs. Only objects and arrays are accepted at
// the top level. Handlers receive the buffered body unchanged.
func JSONBody(maxBytes int64, logger *zap.Logger) func(http.Handler) http.Handler {
	if maxBytes <= 0 {
		maxBytes = DefaultJSONBodyLimit
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !hasMediaType(r, "application/json") || r.Body == nil || r.Body == http.NoBody {
				next.ServeHTTP(w, r)
				return
			}

			if r.ContentLength > maxBytes {
				httperr.Write(w, r, tooLarge(), logger)
				return
			}

			body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBytes))
			if err != nil {
				httperr.Write(w, r, readError(err), logger)
				return
			}

			trimmed := bytes.TrimSpace(body)
			if len(trimmed) > 0 {
				if (trimmed[0] != '{' && trimmed[0] != '[') || !json.Valid(trimmed) {
					httperr.Write(w, r, httperr.BadRequest("Malformed JSON body"), logger)
					return
				}
			}

			r.Body = io.NopCloser(bytes.NewReader(body))
			r.ContentLength = int64(len(body))
			next.ServeHTTP(w, r)
		})
	}
}

// URLEncodedBody parses application/x-www-form-urlencoded bodies, expanding bracketed
// keys into nested values available through request.Form.
func URLEncodedBody(maxBytes int64, logger *zap.Logger) func(http.Handler) http.Handler {
	if maxBytes <= 0 {
		maxBytes = DefaultFormBodyLimit
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !hasMediaType(r, "application/x-www-form-urlencoded") || r.Body == nil || r.Body == http.NoBody {
				next.ServeHTTP(w, r)
				return
			}

			if r.ContentLength > maxBytes {
				httperr.Write(w, r, tooLarge(), logger)
				return
			}

			r.Body = http.MaxBytesReader(w, r.Body, maxBytes)
			if err := r.ParseForm(); err != nil {
				httperr.Write(w, r, readError(err), logger)
				return
			}

			ctx := request.WithForm(r.Context(), request.ParseNestedForm(r.PostForm))
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func hasMediaType(r *http.Request, want string) bool {
	ct := r.Header.Get("Content-Type")
	if ct == "" {
		return false
	}
	mediaType, _, err := mime.ParseMediaType(ct)
	if err != nil {
		return false
	}
	return mediaType == want
}

func tooLarge() *httperr.Error {
	return httperr.New(http.StatusRequestEntityTooLarge, "Request body too large")
}

func readError(err error) *httperr.Error {
	var maxErr *http.MaxBytesError
	if errors.As(err, &maxErr) {
		return tooLarge()
	}
	return httperr.BadRequest("Failed to read request body")
}
