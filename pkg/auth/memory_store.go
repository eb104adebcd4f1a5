package auth

import "sync"

// MemoryStore keeps credentials in process memory. It backs tests and
// one-off runs that should not touch the keyring or disk.
type MemoryStore struct {
	accounts map[string]*Account
	mu       sync.RWMutex

	// Error injection
	StoreError    error
	RetrieveError error
	ListError     error
	DeleteError   error
}

// NewMemoryStore creates an empty store
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{accounts: make(map[string]*Account)}
}

// Name identifies the store
func (m *MemoryStore) Name() string {
	return "memory"
}

// Store saves a copy of account
func (m *MemoryStore) Store(account *Account) error {
	if m.StoreError != nil {
		return m.StoreError
	}
	if account == nil || account.Site == "" {
		return ErrInvalidCredentials
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	accountCopy := *account
	m.accounts[account.Site] = &accountCopy
	return nil
}

// Retrieve returns a copy of the account for site
func (m *MemoryStore) Retrieve(site string) (*Account, error) {
	if m.RetrieveError != nil {
		return nil, m.RetrieveError
	}
	if site == "" {
		return nil, ErrInvalidCredentials
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	account, exists := m.accounts[site]
	if !exists {
		return nil, ErrCredentialsNotFound
	}
	accountCopy := *account
	return &accountCopy, nil
}

// List returns copies of all accounts
func (m *MemoryStore) List() ([]*Account, error) {
	if m.ListError != nil {
		return nil, m.ListError
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	accounts := make([]*Account, 0, len(m.accounts))
	for _, account := range m.accounts {
		accountCopy := *account
		accounts = append(accounts, &accountCopy)
	}
	return accounts, nil
}

// Delete removes the account for site
func (m *MemoryStore) Delete(site string) error {
	if m.DeleteError != nil {
		return m.DeleteError
	}
	if site == "" {
		return ErrInvalidCredentials
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.accounts[site]; !exists {
		return ErrCredentialsNotFound
	}
	delete(m.accounts, site)
	return nil
}

// Exists checks if an account is stored for site
func (m *MemoryStore) Exists(site string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, exists := m.accounts[site]
	return exists
}

// Count returns the number of stored accounts
func (m *MemoryStore) Count() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.accounts)
}
