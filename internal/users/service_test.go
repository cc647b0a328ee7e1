package users_test

import (
	"context"
	"errors"
	"testing"

	"go.uber.org/zap"

	"github.com/credanchor/credanchor/internal/users"
)

func newService(t *testing.T) *users.Service {
	t.Helper()
	return users.NewService(users.NewMemoryDirectory(), zap.NewNop())
}

func TestRegister(t *testing.T) {
	svc := newService(t)
	ctx := context.Background()

	u, err := svc.Register(ctx, "Alice@Example.EDU", "Alice", users.RoleStudent, "")
	if err != nil {
		t.Fatalf("Register: %v", err)
	}
	if u.Email != "alice@example.edu" {
		t.Errorf("email should be lowercased, got %q", u.Email)
	}

	got, err := svc.Get(ctx, u.ID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.Role != users.RoleStudent {
		t.Errorf("role %q, want student", got.Role)
	}
}

func TestRegister_duplicateEmail(t *testing.T) {
	svc := newService(t)
	ctx := context.Background()

	if _, err := svc.Register(ctx, "bob@example.edu", "Bob", users.RoleStudent, ""); err != nil {
		t.Fatalf("first Register: %v", err)
	}
	_, err := svc.Register(ctx, "BOB@example.edu", "Bob Again", users.RoleVerifier, "")
	if !errors.Is(err, users.ErrDuplicateEmail) {
		t.Errorf("expected ErrDuplicateEmail, got %v", err)
	}
}

func TestRegister_unknownRole(t *testing.T) {
	svc := newService(t)
	if _, err := svc.Register(context.Background(), "x@example.edu", "X", users.Role("superuser"), ""); err == nil {
		t.Error("unknown role must be rejected")
	}
}

func TestResolveStudent(t *testing.T) {
	svc := newService(t)
	ctx := context.Background()

	student, err := svc.Register(ctx, "carol@example.edu", "Carol", users.RoleStudent, "")
	if err != nil {
		t.Fatalf("Register: %v", err)
	}
	if _, err := svc.Register(ctx, "registrar@example.edu", "Registrar", users.RoleInstitution, "Example University"); err != nil {
		t.Fatalf("Register institution: %v", err)
	}

	id, err := svc.ResolveStudent(ctx, "  Carol@Example.edu ")
	if err != nil {
		t.Fatalf("ResolveStudent: %v", err)
	}
	if id != student.ID {
		t.Errorf("resolved %s, want %s", id, student.ID)
	}

	// Credentials can only be issued against student accounts.
	if _, err := svc.ResolveStudent(ctx, "registrar@example.edu"); !errors.Is(err, users.ErrNotFound) {
		t.Errorf("non-student account: expected ErrNotFound, got %v", err)
	}
	if _, err := svc.ResolveStudent(ctx, "ghost@example.edu"); !errors.Is(err, users.ErrNotFound) {
		t.Errorf("unknown email: expected ErrNotFound, got %v", err)
	}
}
