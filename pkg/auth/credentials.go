package auth

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"runtime"
	"sort"
	"strings"
	"time"

	"jiraharvest/pkg/jira"
)

// Account holds the API credentials for one Jira site
type Account struct {
	Site         string    `json:"site"`
	Email        string    `json:"email,omitempty"`
	APIToken     string    `json:"api_token"`
	LastModified time.Time `json:"last_modified"`
}

// Credentials converts the account for use by the Jira client.
func (a *Account) Credentials() jira.Credentials {
	return jira.Credentials{Email: a.Email, APIToken: a.APIToken}
}

// CredentialStore is the interface for storing and retrieving credentials
type CredentialStore interface {
	// Store saves credentials for the account's site
	Store(account *Account) error

	// Retrieve gets credentials for a site
	Retrieve(site string) (*Account, error)

	// List returns all stored accounts
	List() ([]*Account, error)

	// Delete removes credentials for a site
	Delete(site string) error

	// Exists checks if credentials exist for a site
	Exists(site string) bool

	// Name identifies the store in status output
	Name() string
}

// Manager handles credential storage with fallback mechanisms
type Manager struct {
	stores []CredentialStore
}

// NewManager creates a manager backed by the system keyring when available,
// an encrypted file in the user config directory, and the environment.
func NewManager() (*Manager, error) {
	var stores []CredentialStore

	if keyringStore, err := NewKeyringStore(); err == nil {
		stores = append(stores, keyringStore)
	}

	configDir, err := ConfigDir()
	if err != nil {
		return nil, fmt.Errorf("failed to get config directory: %w", err)
	}

	encryptedStore, err := NewEncryptedFileStore(filepath.Join(configDir, "credentials.enc"))
	if err != nil {
		return nil, fmt.Errorf("failed to create encrypted store: %w", err)
	}
	stores = append(stores, encryptedStore, NewEnvironmentStore())

	return &Manager{stores: stores}, nil
}

// NewManagerWithStores creates a manager that consults stores in order.
func NewManagerWithStores(stores ...CredentialStore) *Manager {
	return &Manager{stores: stores}
}

// Stores returns the stores in lookup order.
func (m *Manager) Stores() []CredentialStore {
	return m.stores
}

// Store saves credentials using the first store that accepts them
func (m *Manager) Store(account *Account) error {
	if account == nil || account.Site == "" {
		return errors.New("site is required")
	}
	if account.APIToken == "" {
		return errors.New("API token is required")
	}

	site, err := NormalizeSite(account.Site)
	if err != nil {
		return err
	}
	account.Site = site
	account.LastModified = time.Now()

	var lastErr error
	for _, store := range m.stores {
		err := store.Store(account)
		if err == nil {
			return nil
		}
		lastErr = err
	}

	if lastErr != nil {
		return fmt.Errorf("failed to store credentials: %w", lastErr)
	}
	return errors.New("no available credential stores")
}

// Retrieve gets credentials for site from the first store that has them
func (m *Manager) Retrieve(site string) (*Account, error) {
	normalized, err := NormalizeSite(site)
	if err != nil {
		return nil, err
	}
	for _, store := range m.stores {
		if account, err := store.Retrieve(normalized); err == nil && account != nil {
			return account, nil
		}
	}
	return nil, fmt.Errorf("%w for site: %s", ErrCredentialsNotFound, normalized)
}

// Resolve picks the credentials for a run. Credentials given in the
// configuration win; otherwise the stores are consulted. No credentials at
// all is valid: public trackers allow anonymous search. The second return
// value names where the credentials came from.
func (m *Manager) Resolve(site, email, token string) (jira.Credentials, string) {
	if token != "" {
		return jira.Credentials{Email: email, APIToken: token}, "config"
	}
	normalized, err := NormalizeSite(site)
	if err != nil {
		return jira.Credentials{}, "anonymous"
	}
	for _, store := range m.stores {
		if account, err := store.Retrieve(normalized); err == nil && account != nil {
			return account.Credentials(), store.Name()
		}
	}
	return jira.Credentials{}, "anonymous"
}

// List returns all stored accounts from all stores, newest copy per site,
// sorted by site.
func (m *Manager) List() ([]*Account, error) {
	accountMap := make(map[string]*Account)

	for _, store := range m.stores {
		accounts, err := store.List()
		if err != nil {
			continue
		}
		for _, account := range accounts {
			if existing, ok := accountMap[account.Site]; !ok || account.LastModified.After(existing.LastModified) {
				accountMap[account.Site] = account
			}
		}
	}

	result := make([]*Account, 0, len(accountMap))
	for _, account := range accountMap {
		result = append(result, account)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Site < result[j].Site })

	return result, nil
}

// Delete removes credentials for site from all stores
func (m *Manager) Delete(site string) error {
	normalized, err := NormalizeSite(site)
	if err != nil {
		return err
	}

	var deleted bool
	var lastErr error
	for _, store := range m.stores {
		if err := store.Delete(normalized); err == nil {
			deleted = true
		} else {
			lastErr = err
		}
	}

	if !deleted && lastErr != nil && !errors.Is(lastErr, ErrCredentialsNotFound) && !errors.Is(lastErr, ErrStoreUnavailable) {
		return fmt.Errorf("failed to delete credentials: %w", lastErr)
	}
	if !deleted {
		return fmt.Errorf("%w for site: %s", ErrCredentialsNotFound, normalized)
	}
	return nil
}

// NormalizeSite reduces a base URL to scheme://host[/path] without a
// trailing slash, so https://Issues.Apache.org/jira/ and
// https://issues.apache.org/jira name the same site.
func NormalizeSite(site string) (string, error) {
	u, err := url.Parse(strings.TrimSpace(site))
	if err != nil || u.Scheme == "" || u.Host == "" {
		return "", fmt.Errorf("invalid Jira site %q: must be an absolute URL", site)
	}
	return strings.ToLower(u.Scheme) + "://" + strings.ToLower(u.Host) + strings.TrimRight(u.Path, "/"), nil
}

// ConfigDir returns the per-user configuration directory, creating it.
func ConfigDir() (string, error) {
	var configDir string

	switch runtime.GOOS {
	case "darwin":
		home, err := os.UserHomeDir()
		if err != nil {
			return "", err
		}
		configDir = filepath.Join(home, "Library", "Application Support", "jiraharvest")
	case "windows":
		configDir = filepath.Join(os.Getenv("APPDATA"), "jiraharvest")
	default:
		if xdgConfig := os.Getenv("XDG_CONFIG_HOME"); xdgConfig != "" {
			configDir = filepath.Join(xdgConfig, "jiraharvest")
		} else {
			home, err := os.UserHomeDir()
			if err != nil {
				return "", err
			}
			configDir = filepath.Join(home, ".config", "jiraharvest")
		}
	}

	if err := os.MkdirAll(configDir, 0700); err != nil {
		return "", fmt.Errorf("failed to create config directory: %w", err)
	}

	return configDir, nil
}

// SanitizeAccount creates a copy of the account with the token masked
func SanitizeAccount(account *Account) *Account {
	if account == nil {
		return nil
	}

	return &Account{
		Site:         account.Site,
		Email:        account.Email,
		APIToken:     MaskToken(account.APIToken),
		LastModified: account.LastModified,
	}
}

// MaskToken masks all but the first 4 and last 4 characters of a token
func MaskToken(s string) string {
	if len(s) <= 8 {
		return "********"
	}
	return s[:4] + "..." + s[len(s)-4:]
}

// Errors
var (
	ErrCredentialsNotFound = errors.New("credentials not found")
	ErrInvalidCredentials  = errors.New("invalid credentials")
	ErrStoreUnavailable    = errors.New("credential store unavailable")
)
