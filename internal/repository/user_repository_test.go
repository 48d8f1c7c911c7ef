package repository

import (
	"context"
	"errors"
	"testing"
	"time"

	"jam3a/internal/domain"

	"github.com/google/uuid"
	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
)

func TestProperty_UserRoundTripPreservesRole(t *testing.T) {
	repo := NewUserRepository(testDB)
	ctx := context.Background()

	properties := gopter.NewProperties(nil)

	properties.Property("stored users come back with the same identity and role", prop.ForAll(
		func(localPart string, role string) bool {
			email := localPart + "-" + uuid.New().String()[:8] + "@jam3a.test"
			user := &domain.User{
				ID:           uuid.New(),
				Email:        email,
				PasswordHash: "$2a$10$placeholderhashplaceholderhashplaceholderhashpla",
				FirstName:    "Sara",
				LastName:     "Ali",
				Role:         domain.Role(role),
				CreatedAt:    time.Now(),
				UpdatedAt:    time.Now(),
			}

			if err := repo.Create(ctx, user); err != nil {
				t.Logf("FAIL: Failed to create user: %v", err)
				return false
			}
			defer testDB.Exec("DELETE FROM users WHERE id = $1", user.ID)

			byEmail, err := repo.FindByEmail(ctx, email)
			if err != nil {
				t.Logf("FAIL: Failed to find user by email: %v", err)
				return false
			}
			byID, err := repo.FindByID(ctx, user.ID)
			if err != nil {
				t.Logf("FAIL: Failed to find user by ID: %v", err)
				return false
			}

			return byEmail.ID == user.ID && byID.Email == email && byID.Role == user.Role
		},
		gen.RegexMatch(`[a-z]{5,10}`),
		gen.OneConstOf("admin", "seller", "customer", "user"),
	))

	properties.TestingRun(t, gopter.ConsoleReporter(false))
}

func TestUserDuplicateEmailIsConflict(t *testing.T) {
	repo := NewUserRepository(testDB)
	ctx := context.Background()
	email := "dup-" + uuid.New().String()[:8] + "@jam3a.test"

	newUser := func() *domain.User {
		return &domain.User{
			ID:           uuid.New(),
			Email:        email,
			PasswordHash: "hash",
			Role:         domain.RoleUser,
			CreatedAt:    time.Now(),
			UpdatedAt:    time.Now(),
		}
	}

	if err := repo.Create(ctx, newUser()); err != nil {
		t.Fatalf("Failed to create first user: %v", err)
	}

	err := repo.Create(ctx, newUser())
	if !errors.Is(err, ErrUserAlreadyExists) {
		t.Fatalf("Expected ErrUserAlreadyExists, got %v", err)
	}
	if domain.CodeOf(err) != domain.CodeConflict {
		t.Errorf("Expected conflict code, got %s", domain.CodeOf(err))
	}
}

func TestUserNotFound(t *testing.T) {
	_, err := NewUserRepository(testDB).FindByID(context.Background(), uuid.New())
	if !errors.Is(err, domain.ErrUserNotFound) {
		t.Fatalf("Expected ErrUserNotFound, got %v", err)
	}
}
