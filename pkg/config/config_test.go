package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

// isolate keeps ~/.jiraharvest.env and home config files out of the test.
func isolate(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	t.Setenv("HOME", dir)
	t.Chdir(dir)
	return dir
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	assert.Equal(t, "https://issues.apache.org/jira", cfg.Jira.BaseURL)
	assert.Equal(t, []string{"CASSANDRA", "SPARK", "KAFKA"}, cfg.Jira.Projects)
	assert.Equal(t, 50, cfg.Jira.PageSize)
	assert.Equal(t, 30*time.Second, cfg.Jira.RequestTimeout)
	assert.Equal(t, 5, cfg.Retry.MaxAttempts)
	assert.Equal(t, "apache_issues_corpus.jsonl", cfg.Output.Path)
	assert.Equal(t, "checkpoint.json", cfg.Checkpoint.Path)
	assert.Equal(t, BackendFile, cfg.Checkpoint.Backend)
	assert.Contains(t, cfg.Jira.Fields, "issuetype")

	require.NoError(t, cfg.Validate())
}

func TestLoadFromEnv(t *testing.T) {
	t.Setenv("JIRAHARVEST_PROJECTS", "HADOOP, HIVE,,")
	t.Setenv("JIRAHARVEST_PAGE_SIZE", "25")
	t.Setenv("JIRAHARVEST_OUTPUT", "/tmp/corpus.jsonl")
	t.Setenv("JIRAHARVEST_CHECKPOINT_BACKEND", "SQLite")
	t.Setenv("JIRAHARVEST_MAX_ATTEMPTS", "7")
	t.Setenv("JIRAHARVEST_NOTIFICATIONS_ENABLED", "true")
	t.Setenv("JIRAHARVEST_LOG_LEVEL", "debug")

	cfg := DefaultConfig()
	require.NoError(t, cfg.LoadFromEnv())

	assert.Equal(t, []string{"HADOOP", "HIVE"}, cfg.Jira.Projects)
	assert.Equal(t, 25, cfg.Jira.PageSize)
	assert.Equal(t, "/tmp/corpus.jsonl", cfg.Output.Path)
	assert.Equal(t, BackendSQLite, cfg.Checkpoint.Backend)
	assert.Equal(t, 7, cfg.Retry.MaxAttempts)
	assert.True(t, cfg.Notifications.Enabled)
	assert.Equal(t, "debug", cfg.Logging.Level)
}

func TestLoadFromEnvBadNumber(t *testing.T) {
	t.Setenv("JIRAHARVEST_PAGE_SIZE", "fifty")

	cfg := DefaultConfig()
	err := cfg.LoadFromEnv()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "JIRAHARVEST_PAGE_SIZE")
	assert.Equal(t, 50, cfg.Jira.PageSize)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"defaults", func(*Config) {}, ""},
		{"no projects", func(c *Config) { c.Jira.Projects = nil }, "at least one project"},
		{"duplicate project", func(c *Config) { c.Jira.Projects = []string{"A", "A"} }, "more than once"},
		{"page size zero", func(c *Config) { c.Jira.PageSize = 0 }, "page size"},
		{"page size too large", func(c *Config) { c.Jira.PageSize = 5000 }, "page size"},
		{"relative url", func(c *Config) { c.Jira.BaseURL = "issues/jira" }, "absolute URL"},
		{"jql without placeholder", func(c *Config) { c.Jira.JQLTemplate = "ORDER BY created ASC" }, "must contain %s"},
		{"jql without order", func(c *Config) { c.Jira.JQLTemplate = `project = "%s"` }, "ORDER BY created ASC"},
		{"jql ordered by update", func(c *Config) { c.Jira.JQLTemplate = `project = "%s" ORDER BY updated DESC` }, "ORDER BY created ASC"},
		{"jql descending", func(c *Config) { c.Jira.JQLTemplate = `project = "%s" ORDER BY created DESC` }, "ORDER BY created ASC"},
		{"jql lower case order", func(c *Config) { c.Jira.JQLTemplate = "project = %s and type = Bug  order by  created asc" }, ""},
		{"zero timeout", func(c *Config) { c.Jira.RequestTimeout = 0 }, "request timeout"},
		{"zero attempts", func(c *Config) { c.Retry.MaxAttempts = 0 }, "max attempts"},
		{"unknown backend", func(c *Config) { c.Checkpoint.Backend = "redis" }, "unknown checkpoint backend"},
		{"same file", func(c *Config) { c.Checkpoint.Path = c.Output.Path }, "different files"},
		{"bad log level", func(c *Config) { c.Logging.Level = "verbose" }, "invalid log level"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestValidateJoinsAllProblems(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Jira.PageSize = 0
	cfg.Output.Path = ""

	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "page size")
	assert.Contains(t, err.Error(), "output path")
}

func TestMergeCommandLineFlags(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MergeCommandLineFlags(map[string]interface{}{
		"projects":   []string{"DEMO"},
		"page-size":  2,
		"output":     "out.jsonl",
		"checkpoint": "cp.json",
		"log-level":  "warn",
		"rate-limit": 0,
		"notify":     true,
	})

	assert.Equal(t, []string{"DEMO"}, cfg.Jira.Projects)
	assert.Equal(t, 2, cfg.Jira.PageSize)
	assert.Equal(t, "out.jsonl", cfg.Output.Path)
	assert.Equal(t, "cp.json", cfg.Checkpoint.Path)
	assert.Equal(t, "warn", cfg.Logging.Level)
	assert.Equal(t, 0, cfg.RateLimit.RequestsPerMinute)
	assert.True(t, cfg.Notifications.Enabled)
}

func TestSaveAndLoadFromFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "nested", "config.yaml")

	original := DefaultConfig()
	original.Jira.Projects = []string{"ZOOKEEPER"}
	original.Retry.MaxBackoff = 90 * time.Second
	require.NoError(t, original.Save(path))

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0600), info.Mode().Perm())

	loaded := DefaultConfig()
	require.NoError(t, loaded.LoadFromFile(path))
	assert.Equal(t, []string{"ZOOKEEPER"}, loaded.Jira.Projects)
	assert.Equal(t, 90*time.Second, loaded.Retry.MaxBackoff)
}

func TestDurationParsing(t *testing.T) {
	yamlContent := `
jira:
  request_timeout: 45s
retry:
  initial_backoff: 500ms
  max_backoff: 1m30s
`
	var cfg Config
	require.NoError(t, yaml.Unmarshal([]byte(yamlContent), &cfg))

	assert.Equal(t, 45*time.Second, cfg.Jira.RequestTimeout)
	assert.Equal(t, 500*time.Millisecond, cfg.Retry.InitialBackoff)
	assert.Equal(t, 90*time.Second, cfg.Retry.MaxBackoff)
}

func TestLoad(t *testing.T) {
	t.Run("precedence order", func(t *testing.T) {
		dir := isolate(t)
		configPath := filepath.Join(dir, "config.yaml")
		require.NoError(t, os.WriteFile(configPath, []byte(`
jira:
  projects: [FILEPROJ]
  page_size: 10
output:
  path: file.jsonl
`), 0644))

		t.Setenv("JIRAHARVEST_OUTPUT", "env.jsonl")
		t.Setenv("JIRAHARVEST_PAGE_SIZE", "20")

		cfg, err := Load(configPath, map[string]interface{}{"page-size": 30})
		require.NoError(t, err)

		assert.Equal(t, []string{"FILEPROJ"}, cfg.Jira.Projects) // file
		assert.Equal(t, "env.jsonl", cfg.Output.Path)             // env over file
		assert.Equal(t, 30, cfg.Jira.PageSize)                    // flag over env
	})

	t.Run("validation failure", func(t *testing.T) {
		isolate(t)
		cfg, err := Load("", map[string]interface{}{"checkpoint-backend": "etcd"})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "configuration validation failed")
		assert.Nil(t, cfg)
	})

	t.Run("loads .env file", func(t *testing.T) {
		dir := isolate(t)
		require.NoError(t, os.WriteFile(filepath.Join(dir, ".env"),
			[]byte("JIRAHARVEST_PROJECTS=DOTENV\nJIRAHARVEST_EMAIL=bot@example.com\n"), 0644))
		os.Unsetenv("JIRAHARVEST_PROJECTS")
		os.Unsetenv("JIRAHARVEST_EMAIL")
		t.Cleanup(func() {
			os.Unsetenv("JIRAHARVEST_PROJECTS")
			os.Unsetenv("JIRAHARVEST_EMAIL")
		})

		cfg, err := Load("", nil)
		require.NoError(t, err)
		assert.Equal(t, []string{"DOTENV"}, cfg.Jira.Projects)
		assert.Equal(t, "bot@example.com", cfg.Jira.Email)
	})

	t.Run("finds default file", func(t *testing.T) {
		dir := isolate(t)
		require.NoError(t, os.WriteFile(filepath.Join(dir, ".jiraharvest.yaml"),
			[]byte("jira:\n  projects: [LOCAL]\n"), 0644))

		cfg, err := Load("", nil)
		require.NoError(t, err)
		assert.Equal(t, []string{"LOCAL"}, cfg.Jira.Projects)
	})
}

func TestRedacted(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Jira.APIToken = "secret"

	r := cfg.Redacted()
	assert.Equal(t, "********", r.Jira.APIToken)
	assert.Equal(t, "secret", cfg.Jira.APIToken)
}
