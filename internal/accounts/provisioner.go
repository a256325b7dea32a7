package accounts

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/weddingdesk/api/internal/db"
)

var (
	// ErrDuplicateAccount means an account with this email already exists
	ErrDuplicateAccount = errors.New("account already exists")
	// ErrProvisioning wraps every other account-creation failure
	ErrProvisioning = errors.New("account provisioning failed")
)

// DefaultTimeout bounds a single CreateAccount call
const DefaultTimeout = 10 * time.Second

// Profile carries the sanitized profile fields stored with the account
type Profile struct {
	FullName string
	Username string
}

// Account is what the caller learns about a created account
type Account struct {
	ID    string `json:"id"`
	Email string `json:"email"`
}

// Provisioner creates accounts. Implementations return ErrDuplicateAccount
// or an error wrapping ErrProvisioning.
type Provisioner interface {
	CreateAccount(ctx context.Context, email, password string, profile Profile) (*Account, error)
}

// UserStore persists users; *db.Queries implements it
type UserStore interface {
	CreateUser(ctx context.Context, user *db.User) error
}

// Service provisions accounts into a UserStore with bcrypt password hashes
type Service struct {
	store      UserStore
	bcryptCost int
	timeout    time.Duration
	newID      func() string
}

// NewService creates a provisioning service. A zero cost or timeout selects
// bcrypt.DefaultCost and DefaultTimeout.
func NewService(store UserStore, bcryptCost int, timeout time.Duration) *Service {
	if bcryptCost == 0 {
		bcryptCost = bcrypt.DefaultCost
	}
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Service{
		store:      store,
		bcryptCost: bcryptCost,
		timeout:    timeout,
		newID:      func() string { return uuid.New().String() },
	}
}

// CreateAccount implements Provisioner
func (s *Service) CreateAccount(ctx context.Context, email, password string, profile Profile) (*Account, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	hash, err := bcrypt.GenerateFromPassword([]byte(password), s.bcryptCost)
	if err != nil {
		return nil, fmt.Errorf("%w: hash password: %w", ErrProvisioning, err)
	}

	user := &db.User{
		ID:           s.newID(),
		Email:        strings.ToLower(email),
		FullName:     profile.FullName,
		Username:     profile.Username,
		PasswordHash: string(hash),
	}

	if err := s.store.CreateUser(ctx, user); err != nil {
		if errors.Is(err, db.ErrDuplicateUser) {
			return nil, ErrDuplicateAccount
		}
		return nil, fmt.Errorf("%w: create user: %w", ErrProvisioning, err)
	}

	return &Account{ID: user.ID, Email: user.Email}, nil
}
