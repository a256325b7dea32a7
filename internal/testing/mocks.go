package testing

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/google/uuid"

	"github.com/weddingdesk/api/internal/accounts"
	"github.com/weddingdesk/api/internal/ratelimit"
)

// MockProvisioner is an in-memory accounts.Provisioner
type MockProvisioner struct {
	mu       sync.Mutex
	accounts map[string]*accounts.Account
	Profiles map[string]accounts.Profile
	Calls    int

	// Err, when set, is returned by every call
	Err error
}

// NewMockProvisioner creates an empty provisioner
func NewMockProvisioner() *MockProvisioner {
	return &MockProvisioner{
		accounts: make(map[string]*accounts.Account),
		Profiles: make(map[string]accounts.Profile),
	}
}

// CreateAccount implements accounts.Provisioner
func (m *MockProvisioner) CreateAccount(ctx context.Context, email, password string, profile accounts.Profile) (*accounts.Account, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.Calls++
	if m.Err != nil {
		return nil, m.Err
	}
	email = strings.ToLower(email)
	if _, ok := m.accounts[email]; ok {
		return nil, accounts.ErrDuplicateAccount
	}

	account := &accounts.Account{ID: uuid.New().String(), Email: email}
	m.accounts[email] = account
	m.Profiles[email] = profile
	return account, nil
}

// CallCount returns how many times CreateAccount ran
func (m *MockProvisioner) CallCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.Calls
}

// FailingLedger is a ratelimit.Ledger whose backend is always down
type FailingLedger struct {
	mu    sync.Mutex
	calls int
}

// CheckAndIncrement implements ratelimit.Ledger
func (f *FailingLedger) CheckAndIncrement(ctx context.Context, key ratelimit.Key, limit ratelimit.Limit) (ratelimit.Check, error) {
	f.mu.Lock()
	f.calls++
	f.mu.Unlock()
	return ratelimit.Check{}, fmt.Errorf("%w: connection refused", ratelimit.ErrLedgerUnavailable)
}

// Calls returns how many checks were attempted
func (f *FailingLedger) Calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

// ValidSignup returns a well-formed signup payload for email
func ValidSignup(email string) map[string]interface{} {
	return map[string]interface{}{
		"email":    email,
		"password": "secret123",
		"fullName": "Ana Silva",
		"username": "ana",
	}
}
