package users

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"

	"vaccination-clinic/internal/auth"
)

var (
	ErrInvalidInput       = errors.New("invalid input")
	ErrNotFound           = errors.New("user not found")
	ErrEmailTaken         = errors.New("email already registered")
	ErrInvalidCredentials = errors.New("invalid credentials")
)

type Service struct {
	repo Repository
	jwt  *auth.JWTService
	now  func() time.Time
}

func NewService(repo Repository, jwt *auth.JWTService) *Service {
	return &Service{
		repo: repo,
		jwt:  jwt,
		now:  time.Now,
	}
}

type RegisterInput struct {
	Name     string
	Email    string
	Password string
	Role     Role
}

func (s *Service) Register(ctx context.Context, in RegisterInput) (User, error) {
	name := strings.TrimSpace(in.Name)
	email := strings.ToLower(strings.TrimSpace(in.Email))

	if name == "" || email == "" || len(in.Password) < 8 {
		return User{}, ErrInvalidInput
	}

	role := in.Role
	if role == "" {
		role = RolePatient
	}
	if !role.Valid() {
		return User{}, ErrInvalidInput
	}

	if _, err := s.repo.GetByEmail(ctx, email); err == nil {
		return User{}, ErrEmailTaken
	}

	hash, err := auth.HashPassword(in.Password)
	if err != nil {
		return User{}, err
	}

	now := s.now()
	u := User{
		ID:           uuid.NewString(),
		Name:         name,
		Email:        email,
		PasswordHash: hash,
		Role:         role,
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	if err := s.repo.Create(ctx, u); err != nil {
		return User{}, err
	}
	return u, nil
}

type LoginResult struct {
	User      User
	Token     string
	ExpiresAt time.Time
}

func (s *Service) Login(ctx context.Context, email, password string) (LoginResult, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" || password == "" {
		return LoginResult{}, ErrInvalidInput
	}

	u, err := s.repo.GetByEmail(ctx, email)
	if err != nil {
		return LoginResult{}, ErrInvalidCredentials
	}
	if !auth.CheckPassword(password, u.PasswordHash) {
		return LoginResult{}, ErrInvalidCredentials
	}

	token, expiresAt, err := s.jwt.GenerateToken(u.ID, u.Email, string(u.Role))
	if err != nil {
		return LoginResult{}, err
	}

	return LoginResult{User: u, Token: token, ExpiresAt: expiresAt}, nil
}

func (s *Service) GetByID(ctx context.Context, id string) (User, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return User{}, ErrInvalidInput
	}
	u, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return User{}, ErrNotFound
	}
	return u, nil
}

// ListByRole lo usa el bootstrap de notificaciones para resolver
// destinatarios administrativos (stock bajo, lotes por vencer).
func (s *Service) ListByRole(ctx context.Context, role Role) ([]User, error) {
	if !role.Valid() {
		return nil, ErrInvalidInput
	}
	return s.repo.ListByRole(ctx, role)
}
