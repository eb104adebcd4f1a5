package auth

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"jiraharvest/pkg/jira"
)

const apacheSite = "https://issues.apache.org/jira"

func TestCredentialManager(t *testing.T) {
	store := NewMemoryStore()
	manager := NewManagerWithStores(store)

	account := &Account{
		Site:     "https://Issues.Apache.org/jira/",
		Email:    "dev@example.org",
		APIToken: "tok_1234567890abcdef",
	}
	require.NoError(t, manager.Store(account))
	assert.Equal(t, apacheSite, account.Site)
	assert.False(t, account.LastModified.IsZero())

	retrieved, err := manager.Retrieve("https://issues.apache.org/jira")
	require.NoError(t, err)
	assert.Equal(t, "dev@example.org", retrieved.Email)
	assert.Equal(t, "tok_1234567890abcdef", retrieved.APIToken)

	accounts, err := manager.List()
	require.NoError(t, err)
	require.Len(t, accounts, 1)
	assert.Equal(t, apacheSite, accounts[0].Site)

	require.NoError(t, manager.Delete(apacheSite+"/"))
	_, err = manager.Retrieve(apacheSite)
	assert.ErrorIs(t, err, ErrCredentialsNotFound)
	assert.Equal(t, 0, store.Count())

	assert.ErrorIs(t, manager.Delete(apacheSite), ErrCredentialsNotFound)
}

func TestManagerStoreValidation(t *testing.T) {
	manager := NewManagerWithStores(NewMemoryStore())

	assert.Error(t, manager.Store(&Account{APIToken: "x"}))
	assert.Error(t, manager.Store(&Account{Site: apacheSite}))
	assert.Error(t, manager.Store(&Account{Site: "not a url", APIToken: "x"}))
}

func TestManagerFallsBackToNextStore(t *testing.T) {
	broken := NewMemoryStore()
	broken.StoreError = errors.New("keyring locked")
	working := NewMemoryStore()
	manager := NewManagerWithStores(broken, working)

	require.NoError(t, manager.Store(&Account{Site: apacheSite, APIToken: "token"}))
	assert.Equal(t, 0, broken.Count())
	assert.Equal(t, 1, working.Count())
}

func TestResolve(t *testing.T) {
	t.Setenv(APITokenEnv, "")
	store := NewMemoryStore()
	manager := NewManagerWithStores(store, NewEnvironmentStore())

	creds, source := manager.Resolve(apacheSite, "cfg@example.org", "cfg-token")
	assert.Equal(t, jira.Credentials{Email: "cfg@example.org", APIToken: "cfg-token"}, creds)
	assert.Equal(t, "config", source)

	creds, source = manager.Resolve(apacheSite, "", "")
	assert.True(t, creds.Empty())
	assert.Equal(t, "anonymous", source)

	require.NoError(t, store.Store(&Account{Site: apacheSite, Email: "a@b.c", APIToken: "stored"}))
	creds, source = manager.Resolve(apacheSite+"/", "", "")
	assert.Equal(t, "stored", creds.APIToken)
	assert.Equal(t, "memory", source)

	t.Setenv(APITokenEnv, "env-token")
	creds, source = manager.Resolve("https://other.example.com", "", "")
	assert.Equal(t, "env-token", creds.APIToken)
	assert.Equal(t, "environment", source)
}

func TestEncryptedFileStore(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "credentials.enc")
	t.Setenv(PassphraseEnv, "test_passphrase_123")

	store, err := NewEncryptedFileStore(path)
	require.NoError(t, err)

	account := &Account{Site: apacheSite, Email: "enc@example.org", APIToken: "encrypted_token_value"}
	require.NoError(t, store.Store(account))
	require.NoError(t, store.Store(&Account{Site: "https://jira.example.com", APIToken: "second"}))

	retrieved, err := store.Retrieve(apacheSite)
	require.NoError(t, err)
	assert.Equal(t, "encrypted_token_value", retrieved.APIToken)
	assert.True(t, store.Exists(apacheSite))

	content, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.False(t, bytes.Contains(content, []byte("encrypted_token_value")))
	assert.False(t, bytes.Contains(content, []byte("enc@example.org")))

	accounts, err := store.List()
	require.NoError(t, err)
	assert.Len(t, accounts, 2)

	require.NoError(t, store.Delete(apacheSite))
	require.NoError(t, store.Delete("https://jira.example.com"))
	_, err = os.Stat(path)
	assert.True(t, os.IsNotExist(err))
	assert.ErrorIs(t, store.Delete(apacheSite), ErrCredentialsNotFound)
}

func TestEncryptedFileStoreWrongPassphrase(t *testing.T) {
	path := filepath.Join(t.TempDir(), "credentials.enc")

	t.Setenv(PassphraseEnv, "right")
	store, err := NewEncryptedFileStore(path)
	require.NoError(t, err)
	require.NoError(t, store.Store(&Account{Site: apacheSite, APIToken: "secret"}))

	t.Setenv(PassphraseEnv, "wrong")
	other, err := NewEncryptedFileStore(path)
	require.NoError(t, err)
	_, err = other.Retrieve(apacheSite)
	assert.ErrorContains(t, err, "failed to decrypt")
}

func TestEncryptedFileStoreGeneratesPassphrase(t *testing.T) {
	dir := t.TempDir()
	t.Setenv(PassphraseEnv, "")

	store, err := NewEncryptedFileStore(filepath.Join(dir, "credentials.enc"))
	require.NoError(t, err)
	require.NoError(t, store.Store(&Account{Site: apacheSite, APIToken: "secret"}))

	info, err := os.Stat(filepath.Join(dir, ".passphrase"))
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0600), info.Mode().Perm())

	reopened, err := NewEncryptedFileStore(filepath.Join(dir, "credentials.enc"))
	require.NoError(t, err)
	account, err := reopened.Retrieve(apacheSite)
	require.NoError(t, err)
	assert.Equal(t, "secret", account.APIToken)
}

func TestEnvironmentStore(t *testing.T) {
	t.Setenv(APITokenEnv, "env_token")
	t.Setenv(EmailEnv, "env@example.org")

	store := NewEnvironmentStore()
	account, err := store.Retrieve(apacheSite)
	require.NoError(t, err)
	assert.Equal(t, apacheSite, account.Site)
	assert.Equal(t, "env_token", account.APIToken)
	assert.Equal(t, "env@example.org", account.Email)
	assert.True(t, store.Exists(apacheSite))

	assert.ErrorIs(t, store.Store(&Account{}), ErrStoreUnavailable)
	assert.ErrorIs(t, store.Delete(apacheSite), ErrStoreUnavailable)

	t.Setenv(APITokenEnv, "")
	_, err = store.Retrieve(apacheSite)
	assert.ErrorIs(t, err, ErrCredentialsNotFound)
}

func TestSanitizeAccount(t *testing.T) {
	account := &Account{Site: apacheSite, Email: "a@b.c", APIToken: "abcd1234567890wxyz"}
	sanitized := SanitizeAccount(account)

	assert.Equal(t, "abcd...wxyz", sanitized.APIToken)
	assert.Equal(t, account.Email, sanitized.Email)
	assert.Equal(t, "********", MaskToken("short"))
	assert.Nil(t, SanitizeAccount(nil))
}

func TestNormalizeSite(t *testing.T) {
	site, err := NormalizeSite(" HTTPS://Jira.Example.com/ ")
	require.NoError(t, err)
	assert.Equal(t, "https://jira.example.com", site)

	_, err = NormalizeSite("jira.example.com")
	assert.Error(t, err)
}

func TestShowTokenGuide(t *testing.T) {
	var buf bytes.Buffer
	ShowTokenGuide(&buf)
	assert.Contains(t, buf.String(), "API token")
}
