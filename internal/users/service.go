package users

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Directory is the storage interface the Service depends on. Repository
// and MemoryDirectory both satisfy it.
type Directory interface {
	Create(ctx context.Context, u *User) error
	GetByID(ctx context.Context, id uuid.UUID) (*User, error)
	GetByEmail(ctx context.Context, email string) (*User, error)
}

// Service answers directory lookups for the rest of the registry.
type Service struct {
	dir    Directory
	logger *zap.Logger
}

// NewService creates a directory Service.
func NewService(dir Directory, logger *zap.Logger) *Service {
	return &Service{dir: dir, logger: logger}
}

// Register adds a new account to the directory. The role must be one of
// the known role constants.
func (s *Service) Register(ctx context.Context, email, displayName string, role Role, institution string) (*User, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" {
		return nil, fmt.Errorf("email is required")
	}
	switch role {
	case RoleStudent, RoleInstitution, RoleVerifier, RoleAdmin:
	default:
		return nil, fmt.Errorf("unknown role %q", role)
	}

	u := &User{
		Email:       email,
		DisplayName: displayName,
		Role:        role,
		Institution: institution,
	}
	if err := s.dir.Create(ctx, u); err != nil {
		return nil, err
	}
	s.logger.Info("user registered",
		zap.String("user_id", u.ID.String()),
		zap.String("role", string(role)),
	)
	return u, nil
}

// Get returns a directory entry by ID.
func (s *Service) Get(ctx context.Context, id uuid.UUID) (*User, error) {
	return s.dir.GetByID(ctx, id)
}

// ResolveStudent maps a student email to the subject ID credentials are
// issued against. Non-student accounts do not resolve; issuing to an
// institution or verifier account is always a caller mistake.
func (s *Service) ResolveStudent(ctx context.Context, email string) (uuid.UUID, error) {
	u, err := s.dir.GetByEmail(ctx, strings.ToLower(strings.TrimSpace(email)))
	if err != nil {
		return uuid.Nil, err
	}
	if u.Role != RoleStudent {
		return uuid.Nil, fmt.Errorf("%w: %s is not a student account", ErrNotFound, email)
	}
	return u.ID, nil
}
