package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/gorilla/mux"
)

const (
	testCookieName   = "test"
	testCookieMaxAge = 24 * 60 * 60
)

// StatusResponse is the body of GET /
type StatusResponse struct {
	Status string `json:"status"`
	Env    string `json:"env"`
}

// DemoHandler serves the status probe and the cross-site cookie check
type DemoHandler struct {
	env        string
	production bool
}

// NewDemoHandler creates a new demo handler
func NewDemoHandler(env string, production bool) *DemoHandler {
	return &DemoHandler{env: env, production: production}
}

// RegisterRoutes registers the demo routes on the root router
func (h *DemoHandler) RegisterRoutes(r *mux.Router) {
	r.HandleFunc("/", h.Status).Methods(http.MethodGet)
	r.HandleFunc("/set-test-cookie", h.SetTestCookie).Methods(http.MethodGet)
}

// Status reports that the server is up and which environment it runs in
func (h *DemoHandler) Status(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(StatusResponse{Status: "ok", Env: h.env})
}

// SetTestCookie sets a cookie a browser front end can use to check cross-site cookie
// delivery. SameSite=None is kept in development too; browsers that require Secure
// alongside it will drop the cookie there.
func (h *DemoHandler) SetTestCookie(w http.ResponseWriter, _ *http.Request) {
	http.SetCookie(w, &http.Cookie{
		Name:     testCookieName,
		Value:    "1",
		Path:     "/",
		MaxAge:   testCookieMaxAge,
		HttpOnly: true,
		Secure:   h.production,
		SameSite: http.SameSiteNoneMode,
	})
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("cookie set"))
}
