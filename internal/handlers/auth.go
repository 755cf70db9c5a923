package handlers

import (
	"errors"
	"net/http"

	"github.com/benvon/formdrop/internal/database"
	"github.com/benvon/formdrop/internal/httperr"
	logpkg "github.com/benvon/formdrop/internal/logger"
	"github.com/benvon/formdrop/internal/middleware"
	"github.com/benvon/formdrop/internal/models"
	"github.com/benvon/formdrop/internal/queue"
	"github.com/benvon/formdrop/internal/request"
	"github.com/benvon/formdrop/internal/services/session"
	"github.com/benvon/formdrop/internal/validation"
	"github.com/gorilla/mux"
	"go.uber.org/zap"
)

const invalidCredentials = "Invalid email or password"

// AuthHandler handles authentication-related requests
type AuthHandler struct {
	users     database.UserRepositoryInterface
	sessions  *session.Manager
	publisher queue.Publisher
	logger    *zap.Logger
}

// NewAuthHandler creates a new auth handler
func NewAuthHandler(users database.UserRepositoryInterface, sessions *session.Manager, publisher queue.Publisher, logger *zap.Logger) *AuthHandler {
	if publisher == nil {
		publisher = queue.NopPublisher{}
	}
	return &AuthHandler{
		users:     users,
		sessions:  sessions,
		publisher: publisher,
		logger:    logger,
	}
}

// RegisterRoutes registers auth routes on the given router
// The router should already have the /api/auth prefix
func (h *AuthHandler) RegisterRoutes(r *mux.Router) {
	r.HandleFunc("/register", h.Register).Methods(http.MethodPost)
	r.HandleFunc("/login", h.Login).Methods(http.MethodPost)
	r.HandleFunc("/logout", h.Logout).Methods(http.MethodPost)

	requireSession := middleware.Auth(h.sessions, h.users, true, h.logger)
	r.Handle("/me", requireSession(http.HandlerFunc(h.GetMe))).Methods(http.MethodGet)
}

// RegisterRequest represents a registration request
type RegisterRequest struct {
	Email    string `json:"email" validate:"required,email,max=254"`
	Password string `json:"password" validate:"required,min=8,max=72"`
	Name     string `json:"name" validate:"required,notblank,max=100"`
}

// LoginRequest represents a login request
type LoginRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

// Register creates an account and starts a session for it
func (h *AuthHandler) Register(w http.ResponseWriter, r *http.Request) {
	var req RegisterRequest
	if err := bindBody(r, &req); err != nil {
		httperr.Write(w, r, err, h.logger)
		return
	}
	req.Email = database.NormalizeEmail(req.Email)
	req.Name = validation.SanitizeText(req.Name)

	if fields := validation.Struct(req); fields != nil {
		httperr.Write(w, r, httperr.Validation(fields), h.logger)
		return
	}

	hash, err := session.HashPassword(req.Password)
	if err != nil {
		httperr.Write(w, r, httperr.Internal(err), h.logger)
		return
	}

	user := &models.User{
		Email:        req.Email,
		Name:         req.Name,
		PasswordHash: hash,
	}
	if err := h.users.Create(r.Context(), user); err != nil {
		if errors.Is(err, database.ErrDuplicate) {
			httperr.Write(w, r, httperr.Conflict("Email is already registered"), h.logger)
			return
		}
		httperr.Write(w, r, httperr.Internal(err), h.logger)
		return
	}

	if !h.startSession(w, r, user) {
		return
	}

	event := queue.NewEvent(queue.EventUserRegistered, map[string]any{
		"user_id": user.ID.String(),
	})
	if err := h.publisher.Publish(r.Context(), event); err != nil {
		h.logger.Warn("event_publish_failed",
			zap.String("event_type", string(event.Type)),
			zap.Error(err),
		)
	}

	h.logger.Info("user_registered",
		zap.String("user_id", user.ID.String()),
		zap.String("ip", request.ClientIP(r)),
	)
	respondJSON(w, http.StatusCreated, user)
}

// Login verifies credentials and starts a session
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if err := bindBody(r, &req); err != nil {
		httperr.Write(w, r, err, h.logger)
		return
	}
	req.Email = database.NormalizeEmail(req.Email)

	if fields := validation.Struct(req); fields != nil {
		httperr.Write(w, r, httperr.Validation(fields), h.logger)
		return
	}

	user, err := h.users.GetByEmail(r.Context(), req.Email)
	if err != nil {
		if errors.Is(err, database.ErrNotFound) {
			h.logFailedLogin(r, req.Email)
			httperr.Write(w, r, httperr.Unauthorized(invalidCredentials), h.logger)
			return
		}
		httperr.Write(w, r, httperr.Internal(err), h.logger)
		return
	}

	if err := session.CheckPassword(user.PasswordHash, req.Password); err != nil {
		h.logFailedLogin(r, req.Email)
		httperr.Write(w, r, httperr.Unauthorized(invalidCredentials), h.logger)
		return
	}

	if !h.startSession(w, r, user) {
		return
	}
	respondJSON(w, http.StatusOK, user)
}

// Logout clears the session cookie. Tokens are stateless, so a copied token stays valid
// until it expires.
func (h *AuthHandler) Logout(w http.ResponseWriter, _ *http.Request) {
	http.SetCookie(w, h.sessions.ClearCookie())
	respondJSON(w, http.StatusOK, map[string]string{"message": "Logged out"})
}

// GetMe returns current user information
func (h *AuthHandler) GetMe(w http.ResponseWriter, r *http.Request) {
	user := request.UserFromContext(r)
	if user == nil {
		httperr.Write(w, r, httperr.Unauthorized("Authentication required"), h.logger)
		return
	}

	respondJSON(w, http.StatusOK, user)
}

func (h *AuthHandler) startSession(w http.ResponseWriter, r *http.Request, user *models.User) bool {
	token, _, err := h.sessions.Issue(user.ID)
	if err != nil {
		httperr.Write(w, r, httperr.Internal(err), h.logger)
		return false
	}
	http.SetCookie(w, h.sessions.Cookie(token))
	return true
}

func (h *AuthHandler) logFailedLogin(r *http.Request, email string) {
	h.logger.Warn("login_failed",
		zap.String("email", logpkg.SanitizeString(email, logpkg.MaxGeneralStringLength)),
		zap.String("ip", request.ClientIP(r)),
	)
}
