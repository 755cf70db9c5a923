package models

import (
	"time"

	"github.com/google/uuid"
)

// Attachment describes a file stored in the uploads directory for a submission.
type Attachment struct {
	FileName     string `json:"file_name"`
	OriginalName string `json:"original_name"`
	ContentType  string `json:"content_type"`
	Size         int64  `json:"size"`
	URL          string `json:"url"`
}

// Submission is one form post. UserID is nil for anonymous submissions.
type Submission struct {
	ID          uuid.UUID      `json:"id"`
	UserID      *uuid.UUID     `json:"user_id,omitempty"`
	Name        string         `json:"name"`
	Email       string         `json:"email"`
	Message     string         `json:"message"`
	Fields      map[string]any `json:"fields,omitempty"`
	Attachments []Attachment   `json:"attachments"`
	CreatedAt   time.Time      `json:"created_at"`
}
