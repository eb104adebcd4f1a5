package auth

import (
	"os"
	"time"
)

// Environment variables read by EnvironmentStore.
const (
	EmailEnv    = "JIRAHARVEST_EMAIL"
	APITokenEnv = "JIRAHARVEST_API_TOKEN"
)

// EnvironmentStore implements CredentialStore using environment variables.
// It is read-only and answers for any site.
type EnvironmentStore struct{}

// NewEnvironmentStore creates a new environment-based credential store
func NewEnvironmentStore() *EnvironmentStore {
	return &EnvironmentStore{}
}

// Name identifies the store
func (e *EnvironmentStore) Name() string {
	return "environment"
}

// Store is not supported for environment variables
func (e *EnvironmentStore) Store(account *Account) error {
	return ErrStoreUnavailable
}

// Retrieve gets credentials from environment variables
func (e *EnvironmentStore) Retrieve(site string) (*Account, error) {
	token := os.Getenv(APITokenEnv)
	if token == "" {
		return nil, ErrCredentialsNotFound
	}

	return &Account{
		Site:         site,
		Email:        os.Getenv(EmailEnv),
		APIToken:     token,
		LastModified: time.Now(),
	}, nil
}

// List returns a single account if the token variable is set
func (e *EnvironmentStore) List() ([]*Account, error) {
	account, err := e.Retrieve("(environment)")
	if err != nil {
		return []*Account{}, nil
	}
	return []*Account{account}, nil
}

// Delete is not supported for environment variables
func (e *EnvironmentStore) Delete(site string) error {
	return ErrStoreUnavailable
}

// Exists checks if environment credentials exist
func (e *EnvironmentStore) Exists(site string) bool {
	return os.Getenv(APITokenEnv) != ""
}
