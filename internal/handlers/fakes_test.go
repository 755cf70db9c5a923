package handlers

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/benvon/formdrop/internal/database"
	"github.com/benvon/formdrop/internal/models"
	"github.com/benvon/formdrop/internal/queue"
	"github.com/google/uuid"
)

type fakeUsers struct {
	mu   sync.Mutex
	byID map[uuid.UUID]*models.User
	err  error
}

func newFakeUsers() *fakeUsers {
	return &fakeUsers{byID: make(map[uuid.UUID]*models.User)}
}

func (f *fakeUsers) Create(_ context.Context, user *models.User) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	for _, u := range f.byID {
		if u.Email == user.Email {
			return database.ErrDuplicate
		}
	}
	if user.ID == uuid.Nil {
		user.ID = uuid.New()
	}
	user.CreatedAt = time.Now().UTC()
	user.UpdatedAt = user.CreatedAt
	stored := *user
	f.byID[user.ID] = &stored
	return nil
}

func (f *fakeUsers) GetByID(_ context.Context, id uuid.UUID) (*models.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	u, ok := f.byID[id]
	if !ok {
		return nil, database.ErrNotFound
	}
	copied := *u
	return &copied, nil
}

func (f *fakeUsers) GetByEmail(_ context.Context, email string) (*models.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	for _, u := range f.byID {
		if u.Email == email {
			copied := *u
			return &copied, nil
		}
	}
	return nil, database.ErrNotFound
}

type fakeSubmissions struct {
	mu   sync.Mutex
	byID map[uuid.UUID]*models.Submission
	err  error
}

func newFakeSubmissions() *fakeSubmissions {
	return &fakeSubmissions{byID: make(map[uuid.UUID]*models.Submission)}
}

func (f *fakeSubmissions) Create(_ context.Context, s *models.Submission) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	if s.ID == uuid.Nil {
		s.ID = uuid.New()
	}
	s.CreatedAt = time.Now().UTC().Add(time.Duration(len(f.byID)) * time.Millisecond)
	f.byID[s.ID] = s
	return nil
}

func (f *fakeSubmissions) GetByID(_ context.Context, id uuid.UUID) (*models.Submission, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	s, ok := f.byID[id]
	if !ok {
		return nil, database.ErrNotFound
	}
	return s, nil
}

func (f *fakeSubmissions) ListByUser(_ context.Context, userID uuid.UUID, page, pageSize int) ([]*models.Submission, int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var owned []*models.Submission
	for _, s := range f.byID {
		if s.UserID != nil && *s.UserID == userID {
			owned = append(owned, s)
		}
	}
	sort.Slice(owned, func(i, j int) bool { return owned[i].CreatedAt.After(owned[j].CreatedAt) })

	start := min((page-1)*pageSize, len(owned))
	end := min(start+pageSize, len(owned))
	return owned[start:end], len(owned), nil
}

type fakePublisher struct {
	mu     sync.Mutex
	events []*queue.Event
}

func (f *fakePublisher) Publish(_ context.Context, e *queue.Event) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, e)
	return nil
}

func (f *fakePublisher) HealthCheck(context.Context) error { return nil }

func (f *fakePublisher) Close() error { return nil }

func (f *fakePublisher) types() []queue.EventType {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]queue.EventType, 0, len(f.events))
	for _, e := range f.events {
		out = append(out, e.Type)
	}
	return out
}
