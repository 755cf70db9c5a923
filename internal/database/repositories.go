package database

import (
	"context"

	"github.com/benvon/formdrop/internal/models"
	"github.com/google/uuid"
)

// UserRepositoryInterface defines the user operations handlers depend on.
// This interface enables better testability by allowing mock implementations
type UserRepositoryInterface interface {
	Create(ctx context.Context, user *models.User) error
	GetByID(ctx context.Context, id uuid.UUID) (*models.User, error)
	GetByEmail(ctx context.Context, email string) (*models.User, error)
}

// SubmissionRepositoryInterface defines the submission operations handlers depend on.
type SubmissionRepositoryInterface interface {
	Create(ctx context.Context, s *models.Submission) error
	GetByID(ctx context.Context, id uuid.UUID) (*models.Submission, error)
	ListByUser(ctx context.Context, userID uuid.UUID, page, pageSize int) ([]*models.Submission, int, error)
}

// Ensure concrete types implement the interfaces
var (
	_ UserRepositoryInterface       = (*UserRepository)(nil)
	_ SubmissionRepositoryInterface = (*SubmissionRepository)(nil)
)
