package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"golang.org/x/crypto/bcrypt"

	"nexuspos/internal/domain"
	"nexuspos/internal/store"
)

const minPasswordLength = 8

func (s *Service) ListUsers(ctx context.Context) ([]domain.User, error) {
	if _, err := requireRole(ctx); err != nil {
		return nil, err
	}
	accounts, err := s.repo.ListUsers(ctx)
	if err != nil {
		return nil, err
	}
	users := make([]domain.User, 0, len(accounts))
	for _, account := range accounts {
		users = append(users, account.User)
	}
	return users, nil
}

func (s *Service) CreateUser(ctx context.Context, in domain.UserInput) (domain.User, error) {
	if _, err := requireRole(ctx); err != nil {
		return domain.User{}, err
	}
	if len(in.Password) < minPasswordLength {
		return domain.User{}, invalid("password must be at least %d characters", minPasswordLength)
	}
	account, err := userFromInput(in)
	if err != nil {
		return domain.User{}, err
	}
	if account.PasswordHash, err = hashPassword(in.Password); err != nil {
		return domain.User{}, fmt.Errorf("hash password: %w", err)
	}

	created, err := s.repo.CreateUser(ctx, account)
	if err != nil {
		return domain.User{}, err
	}
	s.audit(ctx, "user_create", map[string]any{"user_id": created.ID, "role": string(created.Role)})
	return created.User, nil
}

// UpdateUser keeps the current password when in.Password is empty.
func (s *Service) UpdateUser(ctx context.Context, id int64, in domain.UserInput) (domain.User, error) {
	actor, err := requireRole(ctx)
	if err != nil {
		return domain.User{}, err
	}
	account, err := userFromInput(in)
	if err != nil {
		return domain.User{}, err
	}
	if actor.UserID == id && account.Role != domain.RoleAdmin {
		return domain.User{}, fmt.Errorf("%w: cannot remove your own admin role", store.ErrConflict)
	}
	if in.Password != "" {
		if len(in.Password) < minPasswordLength {
			return domain.User{}, invalid("password must be at least %d characters", minPasswordLength)
		}
		if account.PasswordHash, err = hashPassword(in.Password); err != nil {
			return domain.User{}, fmt.Errorf("hash password: %w", err)
		}
	}
	account.ID = id

	updated, err := s.repo.UpdateUser(ctx, account)
	if err != nil {
		return domain.User{}, err
	}
	s.audit(ctx, "user_update", map[string]any{"user_id": id, "password_changed": in.Password != ""})
	return updated.User, nil
}

func (s *Service) DeleteUser(ctx context.Context, id int64) error {
	actor, err := requireRole(ctx)
	if err != nil {
		return err
	}
	if actor.UserID == id {
		return fmt.Errorf("%w: cannot delete your own account", store.ErrConflict)
	}
	if err := s.repo.DeleteUser(ctx, id); err != nil {
		return err
	}
	s.audit(ctx, "user_delete", map[string]any{"user_id": id})
	return nil
}

// VerifyCredentials checks an email/password pair. Unknown emails and wrong passwords
// both come back as ErrInvalidCredentials.
func (s *Service) VerifyCredentials(ctx context.Context, email, password string) (domain.User, error) {
	account, err := s.repo.GetUserByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return domain.User{}, ErrInvalidCredentials
		}
		return domain.User{}, err
	}
	if !verifyPassword(account.PasswordHash, password) {
		return domain.User{}, ErrInvalidCredentials
	}
	return account.User, nil
}

// EnsureAdmin creates an admin account when the store has none. It reports whether
// one was created.
func (s *Service) EnsureAdmin(ctx context.Context, email, password string) (bool, error) {
	accounts, err := s.repo.ListUsers(ctx)
	if err != nil {
		return false, err
	}
	for _, account := range accounts {
		if account.Role == domain.RoleAdmin {
			return false, nil
		}
	}
	if len(password) < minPasswordLength {
		return false, invalid("bootstrap admin password must be at least %d characters", minPasswordLength)
	}
	hash, err := hashPassword(password)
	if err != nil {
		return false, fmt.Errorf("hash password: %w", err)
	}
	created, err := s.repo.CreateUser(ctx, domain.UserAccount{
		User:         domain.User{Name: "Administrator", Email: email, Role: domain.RoleAdmin},
		PasswordHash: hash,
	})
	if err != nil {
		return false, err
	}
	s.log.InfoFields(ctx, "bootstrap admin created", map[string]any{"user_id": created.ID, "email": created.Email})
	return true, nil
}

func userFromInput(in domain.UserInput) (domain.UserAccount, error) {
	email := strings.ToLower(trimmed(in.Email))
	name := trimmed(in.Name)
	if email == "" || name == "" {
		return domain.UserAccount{}, invalid("name and email are required")
	}
	if !in.Role.Valid() {
		return domain.UserAccount{}, invalid("unknown role %q", in.Role)
	}
	return domain.UserAccount{User: domain.User{Name: name, Email: email, Role: in.Role}}, nil
}

func verifyPassword(stored string, input string) bool {
	if stored == "" || strings.TrimSpace(input) == "" || !isPasswordHash(stored) {
		return false
	}
	return bcrypt.CompareHashAndPassword([]byte(stored), []byte(input)) == nil
}

func hashPassword(password string) (string, error) {
	bytes, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(bytes), nil
}

func isPasswordHash(value string) bool {
	return strings.HasPrefix(value, "$2a$") || strings.HasPrefix(value, "$2b$") || strings.HasPrefix(value, "$2y$")
}
