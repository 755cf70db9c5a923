package database

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/benvon/formdrop/internal/models"
	"github.com/google/uuid"
)

const submissionColumns = `id, user_id, name, email, message, fields, attachments, created_at`

// SubmissionRepository handles form submission database operations
type SubmissionRepository struct {
	db *DB
}

// NewSubmissionRepository creates a new submission repository
func NewSubmissionRepository(db *DB) *SubmissionRepository {
	return &SubmissionRepository{db: db}
}

// Create inserts a submission. Fields and attachments are stored as jsonb.
func (r *SubmissionRepository) Create(ctx context.Context, s *models.Submission) error {
	if s.ID == uuid.Nil {
		s.ID = uuid.New()
	}
	if s.Fields == nil {
		s.Fields = map[string]any{}
	}
	if s.Attachments == nil {
		s.Attachments = []models.Attachment{}
	}

	fields, err := json.Marshal(s.Fields)
	if err != nil {
		return fmt.Errorf("failed to encode submission fields: %w", err)
	}
	attachments, err := json.Marshal(s.Attachments)
	if err != nil {
		return fmt.Errorf("failed to encode submission attachments: %w", err)
	}

	query := `
		INSERT INTO submissions (id, user_id, name, email, message, fields, attachments, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING created_at
	`

	err = r.db.QueryRowContext(ctx, query,
		s.ID,
		nullUUID(s.UserID),
		s.Name,
		s.Email,
		s.Message,
		fields,
		attachments,
		time.Now().UTC(),
	).Scan(&s.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to create submission: %w", err)
	}
	return nil
}

// GetByID retrieves a submission by ID
func (r *SubmissionRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.Submission, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+submissionColumns+` FROM submissions WHERE id = $1`, id)
	s, err := scanSubmission(row)
	if err != nil {
		return nil, fmt.Errorf("failed to get submission: %w", err)
	}
	return s, nil
}

// ListByUser returns a page of the user's submissions, newest first, and the total count.
func (r *SubmissionRepository) ListByUser(ctx context.Context, userID uuid.UUID, page, pageSize int) ([]*models.Submission, int, error) {
	if page < 1 {
		page = 1
	}
	if pageSize < 1 {
		pageSize = 20
	}

	var total int
	if err := r.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM submissions WHERE user_id = $1`, userID).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("failed to count submissions: %w", err)
	}

	rows, err := r.db.QueryContext(ctx, `
		SELECT `+submissionColumns+`
		FROM submissions
		WHERE user_id = $1
		ORDER BY created_at DESC
		LIMIT $2 OFFSET $3
	`, userID, pageSize, (page-1)*pageSize)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list submissions: %w", err)
	}
	defer func() { _ = rows.Close() }()

	submissions := make([]*models.Submission, 0, pageSize)
	for rows.Next() {
		s, err := scanSubmission(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("failed to scan submission: %w", err)
		}
		submissions = append(submissions, s)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("failed to iterate submissions: %w", err)
	}
	return submissions, total, nil
}

func scanSubmission(row rowScanner) (*models.Submission, error) {
	var (
		s           models.Submission
		userID      uuid.NullUUID
		fields      []byte
		attachments []byte
	)
	err := row.Scan(&s.ID, &userID, &s.Name, &s.Email, &s.Message, &fields, &attachments, &s.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	if userID.Valid {
		id := userID.UUID
		s.UserID = &id
	}
	if len(fields) > 0 {
		if err := json.Unmarshal(fields, &s.Fields); err != nil {
			return nil, fmt.Errorf("decode fields: %w", err)
		}
	}
	if len(attachments) > 0 {
		if err := json.Unmarshal(attachments, &s.Attachments); err != nil {
			return nil, fmt.Errorf("decode attachments: %w", err)
		}
	}
	return &s, nil
}

func nullUUID(id *uuid.UUID) uuid.NullUUID {
	if id == nil {
		return uuid.NullUUID{}
	}
	return uuid.NullUUID{UUID: *id, Valid: true}
}
