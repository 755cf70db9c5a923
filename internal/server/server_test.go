package server

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"mime/multipart"
	"net"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/benvon/formdrop/internal/config"
	"github.com/benvon/formdrop/internal/database"
	"github.com/benvon/formdrop/internal/httperr"
	"github.com/benvon/formdrop/internal/models"
	"github.com/benvon/formdrop/internal/services/session"
	"github.com/benvon/formdrop/internal/storage"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

const allowedOrigin = "http://localhost:3000"

type memoryUsers struct {
	mu    sync.Mutex
	users map[uuid.UUID]*models.User
}

func (m *memoryUsers) Create(_ context.Context, u *models.User) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if u.ID == uuid.Nil {
		u.ID = uuid.New()
	}
	m.users[u.ID] = u
	return nil
}

func (m *memoryUsers) GetByID(_ context.Context, id uuid.UUID) (*models.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if u, ok := m.users[id]; ok {
		return u, nil
	}
	return nil, database.ErrNotFound
}

func (m *memoryUsers) GetByEmail(_ context.Context, email string) (*models.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, u := range m.users {
		if u.Email == email {
			return u, nil
		}
	}
	return nil, database.ErrNotFound
}

type memorySubmissions struct{}

func (memorySubmissions) Create(_ context.Context, s *models.Submission) error {
	s.ID = uuid.New()
	return nil
}

func (memorySubmissions) GetByID(context.Context, uuid.UUID) (*models.Submission, error) {
	return nil, database.ErrNotFound
}

func (memorySubmissions) ListByUser(context.Context, uuid.UUID, int, int) ([]*models.Submission, int, error) {
	return nil, 0, nil
}

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	return &config.Config{
		Environment:         config.EnvDevelopment,
		Port:                config.DefaultPort,
		AllowedOrigins:      []string{allowedOrigin},
		JSONBodyLimit:       config.DefaultJSONBodyLimit,
		MaxUploadSize:       config.DefaultMaxUploadSize,
		UploadsDir:          t.TempDir(),
		EnableDemoEndpoints: true,
		SessionTTL:          time.Hour,
		AuthRateLimit:       "100-M",
	}
}

func newTestServer(t *testing.T, cfg *config.Config) http.Handler {
	t.Helper()

	sessions, err := session.NewManager("test-secret", cfg.SessionTTL, cfg.IsProduction())
	if err != nil {
		t.Fatalf("NewManager: %v", err)
	}
	store, err := storage.NewLocal(cfg.UploadsDir)
	if err != nil {
		t.Fatalf("NewLocal: %v", err)
	}

	srv, err := New(cfg, Deps{
		Users:       &memoryUsers{users: make(map[uuid.UUID]*models.User)},
		Submissions: memorySubmissions{},
		Store:       store,
		Sessions:    sessions,
		Logger:      zap.NewNop(),
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return srv.Handler()
}

func serve(h http.Handler, req *http.Request) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

func decodeError(t *testing.T, w *httptest.ResponseRecorder) httperr.Response {
	t.Helper()
	var resp httperr.Response
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatalf("decode error body: %v (body %q)", err, w.Body.String())
	}
	return resp
}

func TestStatusEndpoint(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		env     string
		wantEnv string
	}{
		{"development", config.EnvDevelopment, "development"},
		{"production", config.EnvProduction, "production"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			cfg := testConfig(t)
			cfg.Environment = tt.env
			h := newTestServer(t, cfg)

			w := serve(h, httptest.NewRequest(http.MethodGet, "/", nil))
			if w.Code != http.StatusOK {
				t.Fatalf("status = %d, want 200", w.Code)
			}
			var body map[string]string
			if err := json.NewDecoder(w.Body).Decode(&body); err != nil {
				t.Fatalf("decode: %v", err)
			}
			if body["status"] != "ok" || body["env"] != tt.wantEnv {
				t.Errorf("body = %v", body)
			}
		})
	}
}

func TestCORSPolicy(t *testing.T) {
	t.Parallel()

	h := newTestServer(t, testConfig(t))

	tests := []struct {
		name            string
		method          string
		origin          string
		requestMethod   string
		wantStatus      int
		wantAllowOrigin string
		wantMessage     string
	}{
		{
			name:       "no origin",
			method:     http.MethodGet,
			wantStatus: http.StatusOK,
		},
		{
			name:            "allowed origin",
			method:          http.MethodGet,
			origin:          allowedOrigin,
			wantStatus:      http.StatusOK,
			wantAllowOrigin: allowedOrigin,
		},
		{
			name:        "rejected origin",
			method:      http.MethodGet,
			origin:      "http://evil.example",
			wantStatus:  http.StatusForbidden,
			wantMessage: "CORS policy: This origin is not allowed: http://evil.example",
		},
		{
			name:        "near miss origin",
			method:      http.MethodGet,
			origin:      allowedOrigin + "/",
			wantStatus:  http.StatusForbidden,
			wantMessage: "CORS policy: This origin is not allowed: " + allowedOrigin + "/",
		},
		{
			name:            "preflight from allowed origin",
			method:          http.MethodOptions,
			origin:          allowedOrigin,
			requestMethod:   http.MethodPatch,
			wantStatus:      http.StatusNoContent,
			wantAllowOrigin: allowedOrigin,
		},
		{
			name:          "preflight from rejected origin",
			method:        http.MethodOptions,
			origin:        "http://evil.example",
			requestMethod: http.MethodPost,
			wantStatus:    http.StatusForbidden,
			wantMessage:   "CORS policy: This origin is not allowed: http://evil.example",
		},
		{
			name:       "options without origin",
			method:     http.MethodOptions,
			wantStatus: http.StatusNoContent,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			req := httptest.NewRequest(tt.method, "/", nil)
			if tt.origin != "" {
				req.Header.Set("Origin", tt.origin)
			}
			if tt.requestMethod != "" {
				req.Header.Set("Access-Control-Request-Method", tt.requestMethod)
			}

			w := serve(h, req)
			if w.Code != tt.wantStatus {
				t.Fatalf("status = %d, want %d (body %s)", w.Code, tt.wantStatus, w.Body.String())
			}
			if got := w.Header().Get("Access-Control-Allow-Origin"); got != tt.wantAllowOrigin {
				t.Errorf("Access-Control-Allow-Origin = %q, want %q", got, tt.wantAllowOrigin)
			}
			if tt.wantAllowOrigin != "" && w.Header().Get("Access-Control-Allow-Credentials") != "true" {
				t.Error("Expected credentialed CORS response")
			}
			if tt.requestMethod != "" && tt.wantStatus == http.StatusNoContent &&
				!strings.Contains(w.Header().Get("Access-Control-Allow-Methods"), tt.requestMethod) {
				t.Errorf("Access-Control-Allow-Methods = %q, want %s", w.Header().Get("Access-Control-Allow-Methods"), tt.requestMethod)
			}
			if tt.wantMessage != "" {
				if resp := decodeError(t, w); resp.Message != tt.wantMessage {
					t.Errorf("message = %q, want %q", resp.Message, tt.wantMessage)
				}
			}
		})
	}
}

func TestSetTestCookie(t *testing.T) {
	t.Parallel()

	for _, production := range []bool{false, true} {
		cfg := testConfig(t)
		if production {
			cfg.Environment = config.EnvProduction
		}
		h := newTestServer(t, cfg)

		w := serve(h, httptest.NewRequest(http.MethodGet, "/set-test-cookie", nil))
		if w.Code != http.StatusOK || w.Body.String() != "cookie set" {
			t.Fatalf("production=%v: status %d body %q", production, w.Code, w.Body.String())
		}
		cookies := w.Result().Cookies()
		if len(cookies) != 1 {
			t.Fatalf("production=%v: expected one cookie, got %d", production, len(cookies))
		}
		c := cookies[0]
		if c.Name != "test" || c.Value != "1" || !c.HttpOnly || c.MaxAge != 86400 || c.SameSite != http.SameSiteNoneMode {
			t.Errorf("production=%v: unexpected cookie %+v", production, c)
		}
		if c.Secure != production {
			t.Errorf("production=%v: Secure = %v", production, c.Secure)
		}
	}
}

func TestJSONBodyLimits(t *testing.T) {
	t.Parallel()

	h := newTestServer(t, testConfig(t))

	oversized := bytes.Repeat([]byte(" "), int(config.DefaultJSONBodyLimit)+1)
	oversized[0] = '{'

	tests := []struct {
		name       string
		body       []byte
		wantStatus int
	}{
		{"over limit", oversized, http.StatusRequestEntityTooLarge},
		{"malformed", []byte(`{"name":`), http.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			req := httptest.NewRequest(http.MethodPost, "/api/form/submit", bytes.NewReader(tt.body))
			req.Header.Set("Content-Type", "application/json")
			w := serve(h, req)
			if w.Code != tt.wantStatus {
				t.Fatalf("status = %d, want %d", w.Code, tt.wantStatus)
			}
			if resp := decodeError(t, w); resp.Success {
				t.Error("Expected success=false")
			}
		})
	}
}

func TestFormSubmitThroughChain(t *testing.T) {
	t.Parallel()

	h := newTestServer(t, testConfig(t))

	req := httptest.NewRequest(http.MethodPost, "/api/form/submit",
		strings.NewReader("name=Ada&email=ada%40example.com&message=hi&prefs[color]=blue"))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Origin", allowedOrigin)

	w := serve(h, req)
	if w.Code != http.StatusCreated {
		t.Fatalf("status = %d, body %s", w.Code, w.Body.String())
	}
	if !strings.Contains(w.Body.String(), `"color":"blue"`) {
		t.Errorf("Expected nested field in response, got %s", w.Body.String())
	}
}

func TestFormSubmit_LargeUploadLeavesNoTempFiles(t *testing.T) {
	cfg := testConfig(t)
	h := newTestServer(t, cfg)

	tmp := t.TempDir()
	t.Setenv("TMPDIR", tmp)

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	for k, v := range map[string]string{"name": "Ada", "email": "ada@example.com", "message": "see attached"} {
		if err := mw.WriteField(k, v); err != nil {
			t.Fatalf("WriteField: %v", err)
		}
	}
	part, err := mw.CreateFormFile("attachments", "scan.bin")
	if err != nil {
		t.Fatalf("CreateFormFile: %v", err)
	}
	// Larger than the in-memory multipart budget, so the part is spooled to disk.
	if _, err := part.Write(bytes.Repeat([]byte("x"), 9<<20)); err != nil {
		t.Fatalf("write part: %v", err)
	}
	if err := mw.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	req := httptest.NewRequest(http.MethodPost, "/api/form/submit", &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	w := serve(h, req)
	if w.Code != http.StatusCreated {
		t.Fatalf("status = %d, body %s", w.Code, w.Body.String())
	}

	entries, err := os.ReadDir(tmp)
	if err != nil {
		t.Fatalf("ReadDir: %v", err)
	}
	for _, e := range entries {
		t.Errorf("Temporary upload left behind: %s", e.Name())
	}

	stored, err := os.ReadDir(cfg.UploadsDir)
	if err != nil {
		t.Fatalf("ReadDir uploads: %v", err)
	}
	if len(stored) != 1 {
		t.Errorf("Expected 1 stored attachment, got %d", len(stored))
	}
}

func TestDemoEndpointsDisabled(t *testing.T) {
	t.Parallel()

	cfg := testConfig(t)
	cfg.EnableDemoEndpoints = false
	h := newTestServer(t, cfg)

	for _, path := range []string{"/", "/set-test-cookie"} {
		w := serve(h, httptest.NewRequest(http.MethodGet, path, nil))
		if w.Code != http.StatusNotFound {
			t.Errorf("GET %s status = %d, want 404", path, w.Code)
		}
	}

	if w := serve(h, httptest.NewRequest(http.MethodGet, "/healthz", nil)); w.Code != http.StatusOK {
		t.Errorf("GET /healthz status = %d, want 200", w.Code)
	}
}

func TestNotFoundUsesErrorSchema(t *testing.T) {
	t.Parallel()

	h := newTestServer(t, testConfig(t))
	w := serve(h, httptest.NewRequest(http.MethodGet, "/does/not/exist", nil))

	if w.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", w.Code)
	}
	resp := decodeError(t, w)
	if resp.Success || resp.Error != "Not Found" || resp.Message != "Route not found" || resp.Path != "/does/not/exist" {
		t.Errorf("unexpected error body %+v", resp)
	}
	if w.Header().Get("X-Frame-Options") != "DENY" {
		t.Error("Expected security headers on error responses")
	}
}

func TestUploadsServed(t *testing.T) {
	t.Parallel()

	cfg := testConfig(t)
	if err := os.WriteFile(filepath.Join(cfg.UploadsDir, "doc.txt"), []byte("uploaded"), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	h := newTestServer(t, cfg)

	w := serve(h, httptest.NewRequest(http.MethodGet, "/uploads/doc.txt", nil))
	if w.Code != http.StatusOK || w.Body.String() != "uploaded" {
		t.Errorf("status = %d body %q", w.Code, w.Body.String())
	}

	if w := serve(h, httptest.NewRequest(http.MethodGet, "/uploads/", nil)); w.Code != http.StatusNotFound {
		t.Errorf("directory listing status = %d, want 404", w.Code)
	}
}

func TestAuthRateLimit(t *testing.T) {
	t.Parallel()

	cfg := testConfig(t)
	cfg.AuthRateLimit = "2-M"
	h := newTestServer(t, cfg)

	var codes []int
	for range 3 {
		req := httptest.NewRequest(http.MethodPost, "/api/auth/login",
			strings.NewReader(`{"email":"ghost@example.com","password":"whatever1"}`))
		req.Header.Set("Content-Type", "application/json")
		codes = append(codes, serve(h, req).Code)
	}

	want := []int{http.StatusUnauthorized, http.StatusUnauthorized, http.StatusTooManyRequests}
	for i := range want {
		if codes[i] != want[i] {
			t.Errorf("request %d status = %d, want %d", i+1, codes[i], want[i])
		}
	}
}

func TestProductionTrustsProxy(t *testing.T) {
	t.Parallel()

	cfg := testConfig(t)
	cfg.Environment = config.EnvProduction
	cfg.EnableHSTS = true
	h := newTestServer(t, cfg)

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("X-Forwarded-Proto", "https")
	req.Header.Set("X-Forwarded-For", "203.0.113.9")
	w := serve(h, req)
	if w.Header().Get("Strict-Transport-Security") == "" {
		t.Error("Expected HSTS once the proxy reports https")
	}

	dev := testConfig(t)
	dev.EnableHSTS = true
	req = httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("X-Forwarded-Proto", "https")
	w = serve(newTestServer(t, dev), req)
	if w.Header().Get("Strict-Transport-Security") != "" {
		t.Error("Expected forwarded headers to be ignored outside production")
	}
}

func TestNew_Validation(t *testing.T) {
	t.Parallel()

	if _, err := New(nil, Deps{}); err == nil {
		t.Error("Expected error for nil config")
	}
	if _, err := New(testConfig(t), Deps{}); err == nil {
		t.Error("Expected error for missing collaborators")
	}

	cfg := testConfig(t)
	cfg.AuthRateLimit = "not-a-rate"
	sessions, _ := session.NewManager("s", time.Hour, false)
	store, _ := storage.NewLocal(cfg.UploadsDir)
	_, err := New(cfg, Deps{
		Users:       &memoryUsers{users: map[uuid.UUID]*models.User{}},
		Submissions: memorySubmissions{},
		Store:       store,
		Sessions:    sessions,
	})
	if err == nil {
		t.Error("Expected error for invalid rate")
	}
}

func freePort(t *testing.T) int {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("Listen: %v", err)
	}
	port := ln.Addr().(*net.TCPAddr).Port
	if err := ln.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	return port
}

func TestRun_ListensOnConfiguredPortAndShutsDown(t *testing.T) {
	t.Parallel()

	cfg := testConfig(t)
	cfg.Port = freePort(t)
	sessions, _ := session.NewManager("s", time.Hour, false)
	store, _ := storage.NewLocal(cfg.UploadsDir)
	srv, err := New(cfg, Deps{
		Users:       &memoryUsers{users: map[uuid.UUID]*models.User{}},
		Submissions: memorySubmissions{},
		Store:       store,
		Sessions:    sessions,
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan error, 1)
	go func() { done <- srv.Run(ctx) }()

	url := fmt.Sprintf("http://127.0.0.1:%d/", cfg.Port)
	client := &http.Client{Timeout: time.Second}
	var resp *http.Response
	deadline := time.Now().Add(5 * time.Second)
	for {
		resp, err = client.Get(url)
		if err == nil || time.Now().After(deadline) {
			break
		}
		time.Sleep(20 * time.Millisecond)
	}
	if err != nil {
		t.Fatalf("GET %s: %v", url, err)
	}
	_ = resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("Expected status 200 on port %d, got %d", cfg.Port, resp.StatusCode)
	}

	cancel()

	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Run() = %v, want nil", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return after cancellation")
	}
}

func TestRun_PortInUse(t *testing.T) {
	t.Parallel()

	ln, err := net.Listen("tcp", ":0")
	if err != nil {
		t.Fatalf("Listen: %v", err)
	}
	defer func() { _ = ln.Close() }()

	cfg := testConfig(t)
	cfg.Port = ln.Addr().(*net.TCPAddr).Port
	sessions, _ := session.NewManager("s", time.Hour, false)
	store, _ := storage.NewLocal(cfg.UploadsDir)
	srv, err := New(cfg, Deps{
		Users:       &memoryUsers{users: map[uuid.UUID]*models.User{}},
		Submissions: memorySubmissions{},
		Store:       store,
		Sessions:    sessions,
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := srv.Run(ctx); err == nil {
		t.Error("Expected Run to fail when the port is taken")
	}
}
