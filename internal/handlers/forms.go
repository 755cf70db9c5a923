package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"mime/multipart"
	"net/http"
	"strconv"

	"github.com/benvon/formdrop/internal/database"
	"github.com/benvon/formdrop/internal/httperr"
	"github.com/benvon/formdrop/internal/middleware"
	"github.com/benvon/formdrop/internal/models"
	"github.com/benvon/formdrop/internal/queue"
	"github.com/benvon/formdrop/internal/request"
	"github.com/benvon/formdrop/internal/services/session"
	"github.com/benvon/formdrop/internal/validation"
	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"go.uber.org/zap"
)

const (
	// AttachmentsField is the multipart field carrying uploaded files
	AttachmentsField = "attachments"
	// MaxAttachments is the most files one submission may carry
	MaxAttachments = 10
	// DefaultMaxUploadSize bounds multipart bodies when no limit is configured (20MB)
	DefaultMaxUploadSize int64 = 20 << 20

	multipartMemory = 8 << 20
)

// AttachmentStore persists uploaded files
type AttachmentStore interface {
	Save(originalName, contentType string, r io.Reader) (models.Attachment, error)
	Remove(fileName string) error
}

// FormHandler handles form submissions
type FormHandler struct {
	submissions   database.SubmissionRepositoryInterface
	users         database.UserRepositoryInterface
	store         AttachmentStore
	sessions      *session.Manager
	publisher     queue.Publisher
	maxUploadSize int64
	logger        *zap.Logger
}

// FormHandlerConfig groups the collaborators of a FormHandler
type FormHandlerConfig struct {
	Submissions   database.SubmissionRepositoryInterface
	Users         database.UserRepositoryInterface
	Store         AttachmentStore
	Sessions      *session.Manager
	Publisher     queue.Publisher
	MaxUploadSize int64
	Logger        *zap.Logger
}

// NewFormHandler creates a new form handler
func NewFormHandler(cfg FormHandlerConfig) *FormHandler {
	if cfg.Publisher == nil {
		cfg.Publisher = queue.NopPublisher{}
	}
	if cfg.MaxUploadSize <= 0 {
		cfg.MaxUploadSize = DefaultMaxUploadSize
	}
	return &FormHandler{
		submissions:   cfg.Submissions,
		users:         cfg.Users,
		store:         cfg.Store,
		sessions:      cfg.Sessions,
		publisher:     cfg.Publisher,
		maxUploadSize: cfg.MaxUploadSize,
		logger:        cfg.Logger,
	}
}

// RegisterRoutes registers form routes on the given router
// The router should already have the /api/form prefix
func (h *FormHandler) RegisterRoutes(r *mux.Router) {
	optionalSession := middleware.Auth(h.sessions, h.users, false, h.logger)
	requireSession := middleware.Auth(h.sessions, h.users, true, h.logger)

	r.Handle("/submit", optionalSession(http.HandlerFunc(h.Submit))).Methods(http.MethodPost)
	r.Handle("/submissions", requireSession(http.HandlerFunc(h.ListSubmissions))).Methods(http.MethodGet)
	r.Handle("/submissions/{id}", requireSession(http.HandlerFunc(h.GetSubmission))).Methods(http.MethodGet)
}

// SubmitRequest holds the fields every submission must carry
type SubmitRequest struct {
	Name    string `json:"name" validate:"required,notblank,max=200"`
	Email   string `json:"email" validate:"required,email,max=254"`
	Message string `json:"message" validate:"required,notblank,max=5000"`
}

// ListSubmissionsResponse represents the paginated response for listing submissions
type ListSubmissionsResponse struct {
	Submissions []*models.Submission `json:"submissions"`
	Page        int                  `json:"page"`
	PageSize    int                  `json:"page_size"`
	Total       int                  `json:"total"`
	TotalPages  int                  `json:"total_pages"`
}

// Submit stores a form post. JSON, URL-encoded and multipart bodies are accepted; files
// are only read from the multipart "attachments" field.
func (h *FormHandler) Submit(w http.ResponseWriter, r *http.Request) {
	values, files, err := h.readSubmission(w, r)
	// Middleware hands the handler a copy of the request, so net/http never cleans up
	// the spooled parts of this one.
	if r.MultipartForm != nil {
		defer func() { _ = r.MultipartForm.RemoveAll() }()
	}
	if err != nil {
		httperr.Write(w, r, err, h.logger)
		return
	}
	if len(files) > MaxAttachments {
		httperr.Write(w, r, httperr.BadRequest(fmt.Sprintf("At most %d attachments are allowed", MaxAttachments)), h.logger)
		return
	}

	req := SubmitRequest{
		Name:    validation.SanitizeText(takeString(values, "name")),
		Email:   database.NormalizeEmail(takeString(values, "email")),
		Message: validation.SanitizeText(takeString(values, "message")),
	}
	if fields := validation.Struct(req); fields != nil {
		httperr.Write(w, r, httperr.Validation(fields), h.logger)
		return
	}

	attachments, err := h.saveAttachments(files)
	if err != nil {
		httperr.Write(w, r, httperr.Internal(err), h.logger)
		return
	}

	submission := &models.Submission{
		Name:        req.Name,
		Email:       req.Email,
		Message:     req.Message,
		Fields:      values,
		Attachments: attachments,
	}
	if user := request.UserFromContext(r); user != nil {
		id := user.ID
		submission.UserID = &id
	}

	if err := h.submissions.Create(r.Context(), submission); err != nil {
		h.removeAttachments(attachments)
		httperr.Write(w, r, httperr.Internal(err), h.logger)
		return
	}

	payload := map[string]any{
		"submission_id": submission.ID.String(),
		"attachments":   len(attachments),
	}
	if submission.UserID != nil {
		payload["user_id"] = submission.UserID.String()
	}
	event := queue.NewEvent(queue.EventFormSubmitted, payload)
	if err := h.publisher.Publish(r.Context(), event); err != nil {
		h.logger.Warn("event_publish_failed",
			zap.String("event_type", string(event.Type)),
			zap.Error(err),
		)
	}

	h.logger.Info("form_submitted",
		zap.String("submission_id", submission.ID.String()),
		zap.Int("attachments", len(attachments)),
		zap.Bool("authenticated", submission.UserID != nil),
	)
	respondJSON(w, http.StatusCreated, submission)
}

// ListSubmissions lists the caller's submissions, newest first
func (h *FormHandler) ListSubmissions(w http.ResponseWriter, r *http.Request) {
	user := request.UserFromContext(r)
	if user == nil {
		httperr.Write(w, r, httperr.Unauthorized("Authentication required"), h.logger)
		return
	}

	page, pageSize := pagination(r)
	submissions, total, err := h.submissions.ListByUser(r.Context(), user.ID, page, pageSize)
	if err != nil {
		httperr.Write(w, r, httperr.Internal(err), h.logger)
		return
	}
	if submissions == nil {
		submissions = []*models.Submission{}
	}

	respondJSON(w, http.StatusOK, ListSubmissionsResponse{
		Submissions: submissions,
		Page:        page,
		PageSize:    pageSize,
		Total:       total,
		TotalPages:  totalPages(total, pageSize),
	})
}

// GetSubmission returns one of the caller's submissions. Submissions owned by someone
// else are reported as missing.
func (h *FormHandler) GetSubmission(w http.ResponseWriter, r *http.Request) {
	user := request.UserFromContext(r)
	if user == nil {
		httperr.Write(w, r, httperr.Unauthorized("Authentication required"), h.logger)
		return
	}

	id, err := uuid.Parse(mux.Vars(r)["id"])
	if err != nil {
		httperr.Write(w, r, httperr.BadRequest("Invalid submission ID"), h.logger)
		return
	}

	submission, err := h.submissions.GetByID(r.Context(), id)
	if err != nil {
		if errors.Is(err, database.ErrNotFound) {
			httperr.Write(w, r, httperr.NotFound("Submission not found"), h.logger)
			return
		}
		httperr.Write(w, r, httperr.Internal(err), h.logger)
		return
	}

	if submission.UserID == nil || *submission.UserID != user.ID {
		httperr.Write(w, r, httperr.NotFound("Submission not found"), h.logger)
		return
	}

	respondJSON(w, http.StatusOK, submission)
}

// readSubmission returns the submitted values and any uploaded files.
func (h *FormHandler) readSubmission(w http.ResponseWriter, r *http.Request) (map[string]any, []*multipart.FileHeader, error) {
	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))

	switch {
	case mediaType == "multipart/form-data":
		r.Body = http.MaxBytesReader(w, r.Body, h.maxUploadSize)
		if err := r.ParseMultipartForm(multipartMemory); err != nil {
			var maxBytesErr *http.MaxBytesError
			if errors.As(err, &maxBytesErr) {
				return nil, nil, httperr.New(http.StatusRequestEntityTooLarge, "Upload too large")
			}
			return nil, nil, httperr.BadRequest("Invalid multipart body")
		}
		return request.ParseNestedForm(r.MultipartForm.Value), r.MultipartForm.File[AttachmentsField], nil

	case request.Form(r) != nil:
		return request.Form(r), nil, nil

	case mediaType == "application/json":
		var values map[string]any
		if err := json.NewDecoder(r.Body).Decode(&values); err != nil {
			return nil, nil, httperr.BadRequest("Request body must be a JSON object")
		}
		if values == nil {
			values = map[string]any{}
		}
		return values, nil, nil

	default:
		return nil, nil, httperr.New(http.StatusUnsupportedMediaType, "Unsupported content type")
	}
}

func (h *FormHandler) saveAttachments(files []*multipart.FileHeader) ([]models.Attachment, error) {
	attachments := make([]models.Attachment, 0, len(files))
	for _, fh := range files {
		att, err := h.saveAttachment(fh)
		if err != nil {
			h.removeAttachments(attachments)
			return nil, err
		}
		attachments = append(attachments, att)
	}
	return attachments, nil
}

func (h *FormHandler) saveAttachment(fh *multipart.FileHeader) (models.Attachment, error) {
	f, err := fh.Open()
	if err != nil {
		return models.Attachment{}, fmt.Errorf("open attachment: %w", err)
	}
	defer func() { _ = f.Close() }()

	return h.store.Save(fh.Filename, fh.Header.Get("Content-Type"), f)
}

func (h *FormHandler) removeAttachments(attachments []models.Attachment) {
	for _, att := range attachments {
		if err := h.store.Remove(att.FileName); err != nil {
			h.logger.Warn("attachment_cleanup_failed",
				zap.String("file_name", att.FileName),
				zap.Error(err),
			)
		}
	}
}

// takeString removes key from values and returns it as a string. Repeated form keys
// yield their first value; numbers are formatted; anything else is empty.
func takeString(values map[string]any, key string) string {
	v, ok := values[key]
	if !ok {
		return ""
	}
	delete(values, key)

	switch t := v.(type) {
	case string:
		return t
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case []any:
		if len(t) > 0 {
			if s, ok := t[0].(string); ok {
				return s
			}
		}
	}
	return ""
}
