package notifications

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"

	"vaccination-clinic/internal/platform/eventbus"
)

var (
	ErrInvalidInput = errors.New("invalid input")
	ErrNotFound     = errors.New("notification not found")
)

type Service struct {
	repo Repository
	now  func() time.Time
}

func NewService(repo Repository) *Service {
	return &Service{
		repo: repo,
		now:  time.Now,
	}
}

type CreateInput struct {
	UserID   string
	Title    string
	Message  string
	Channel  eventbus.Channel
	Priority eventbus.Priority
}

func (s *Service) Create(ctx context.Context, in CreateInput) (Notification, error) {
	userID := strings.TrimSpace(in.UserID)
	title := strings.TrimSpace(in.Title)
	if userID == "" || title == "" {
		return Notification{}, ErrInvalidInput
	}

	ch := in.Channel
	if ch == "" {
		ch = eventbus.ChannelInApp
	}
	prio := in.Priority
	if prio == "" {
		prio = eventbus.PriorityNormal
	}

	n := Notification{
		ID:        uuid.NewString(),
		UserID:    userID,
		Title:     title,
		Message:   strings.TrimSpace(in.Message),
		Channel:   ch,
		Priority:  prio,
		CreatedAt: s.now(),
	}

	if err := s.repo.Create(ctx, n); err != nil {
		return Notification{}, err
	}
	return n, nil
}

func (s *Service) ListByUser(ctx context.Context, userID string) ([]Notification, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return nil, ErrInvalidInput
	}
	return s.repo.ListByUser(ctx, userID)
}

func (s *Service) MarkRead(ctx context.Context, id, userID string) error {
	id = strings.TrimSpace(id)
	if id == "" {
		return ErrInvalidInput
	}

	n, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return ErrNotFound
	}
	if n.UserID != userID {
		return ErrNotFound // no se revela existencia ajena
	}
	return s.repo.MarkRead(ctx, id)
}
