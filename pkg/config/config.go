package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

const envPrefix = "JIRAHARVEST_"

// Config holds all configuration options for a harvest run
type Config struct {
	// Upstream issue tracker
	Jira JiraConfig `yaml:"jira" json:"jira"`

	// Request pacing
	RateLimit RateLimitConfig `yaml:"rate_limit" json:"rate_limit"`

	// Retry policy applied to every page fetch
	Retry RetryConfig `yaml:"retry" json:"retry"`

	// Corpus output
	Output OutputConfig `yaml:"output" json:"output"`

	// Resume state
	Checkpoint CheckpointConfig `yaml:"checkpoint" json:"checkpoint"`

	// Notification preferences
	Notifications NotificationConfig `yaml:"notifications" json:"notifications"`

	// Logging configuration
	Logging LoggingConfig `yaml:"logging" json:"logging"`
}

// JiraConfig describes the search endpoint and the sources to harvest.
type JiraConfig struct {
	BaseURL        string        `yaml:"base_url" json:"base_url"`
	APIVersion     string        `yaml:"api_version" json:"api_version"`
	Projects       []string      `yaml:"projects" json:"projects"`
	PageSize       int           `yaml:"page_size" json:"page_size"`
	Fields         []string      `yaml:"fields" json:"fields"`
	JQLTemplate    string        `yaml:"jql_template" json:"jql_template"`
	RequestTimeout time.Duration `yaml:"request_timeout" json:"request_timeout"`
	UserAgent      string        `yaml:"user_agent" json:"user_agent"`
	Email          string        `yaml:"email" json:"email"`
	APIToken       string        `yaml:"api_token" json:"api_token"`
}

// RateLimitConfig holds rate limiting configuration
type RateLimitConfig struct {
	// RequestsPerMinute of 0 disables pacing.
	RequestsPerMinute int `yaml:"requests_per_minute" json:"requests_per_minute"`
}

// RetryConfig configures the bounded exponential backoff around page fetches.
type RetryConfig struct {
	MaxAttempts    int           `yaml:"max_attempts" json:"max_attempts"`
	InitialBackoff time.Duration `yaml:"initial_backoff" json:"initial_backoff"`
	MaxBackoff     time.Duration `yaml:"max_backoff" json:"max_backoff"`
	Multiplier     float64       `yaml:"multiplier" json:"multiplier"`
	Jitter         float64       `yaml:"jitter" json:"jitter"`
}

// OutputConfig holds corpus file configuration
type OutputConfig struct {
	Path  string `yaml:"path" json:"path"`
	Fsync bool   `yaml:"fsync" json:"fsync"`
}

// CheckpointConfig selects where resume offsets are kept.
type CheckpointConfig struct {
	Backend string `yaml:"backend" json:"backend"`
	Path    string `yaml:"path" json:"path"`
}

// NotificationConfig holds notification preferences
type NotificationConfig struct {
	Enabled    bool `yaml:"enabled" json:"enabled"`
	OnComplete bool `yaml:"on_complete" json:"on_complete"`
	OnError    bool `yaml:"on_error" json:"on_error"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level  string `yaml:"level" json:"level"`
	Format string `yaml:"format" json:"format"`
	File   string `yaml:"file" json:"file"`
}

// Checkpoint backends
const (
	BackendFile   = "file"
	BackendSQLite = "sqlite"
)

// DefaultFields is the field selection requested from the search endpoint.
var DefaultFields = []string{
	"summary", "status", "description", "comment", "created", "updated", "labels", "issuetype",
}

// DefaultConfig returns a Config instance with sensible defaults
func DefaultConfig() *Config {
	return &Config{
		Jira: JiraConfig{
			BaseURL:        "https://issues.apache.org/jira",
			APIVersion:     "latest",
			Projects:       []string{"CASSANDRA", "SPARK", "KAFKA"},
			PageSize:       50,
			Fields:         append([]string(nil), DefaultFields...),
			JQLTemplate:    `project = "%s" ORDER BY created ASC`,
			RequestTimeout: 30 * time.Second,
			UserAgent:      "jiraharvest/1.0",
		},
		RateLimit: RateLimitConfig{
			RequestsPerMinute: 60,
		},
		Retry: RetryConfig{
			MaxAttempts:    5,
			InitialBackoff: 1 * time.Second,
			MaxBackoff:     60 * time.Second,
			Multiplier:     2.0,
			Jitter:         0.1,
		},
		Output: OutputConfig{
			Path:  "apache_issues_corpus.jsonl",
			Fsync: true,
		},
		Checkpoint: CheckpointConfig{
			Backend: BackendFile,
			Path:    "checkpoint.json",
		},
		Notifications: NotificationConfig{
			Enabled:    false,
			OnComplete: true,
			OnError:    true,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// LoadFromEnv loads configuration from environment variables
func (c *Config) LoadFromEnv() error {
	var errs []error

	if v := getenv("BASE_URL"); v != "" {
		c.Jira.BaseURL = v
	}
	if v := getenv("PROJECTS"); v != "" {
		c.Jira.Projects = SplitList(v)
	}
	if v := getenv("EMAIL"); v != "" {
		c.Jira.Email = v
	}
	if v := getenv("API_TOKEN"); v != "" {
		c.Jira.APIToken = v
	}
	if v := getenv("OUTPUT"); v != "" {
		c.Output.Path = v
	}
	if v := getenv("CHECKPOINT"); v != "" {
		c.Checkpoint.Path = v
	}
	if v := getenv("CHECKPOINT_BACKEND"); v != "" {
		c.Checkpoint.Backend = strings.ToLower(v)
	}
	if v := getenv("LOG_LEVEL"); v != "" {
		c.Logging.Level = v
	}
	if v := getenv("NOTIFICATIONS_ENABLED"); v != "" {
		c.Notifications.Enabled = strings.ToLower(v) == "true"
	}

	ints := []struct {
		name string
		dst  *int
	}{
		{"PAGE_SIZE", &c.Jira.PageSize},
		{"REQUESTS_PER_MINUTE", &c.RateLimit.RequestsPerMinute},
		{"MAX_ATTEMPTS", &c.Retry.MaxAttempts},
	}
	for _, e := range ints {
		v := getenv(e.name)
		if v == "" {
			continue
		}
		n, err := strconv.Atoi(v)
		if err != nil {
			errs = append(errs, fmt.Errorf("%s%s: %w", envPrefix, e.name, err))
			continue
		}
		*e.dst = n
	}

	return errors.Join(errs...)
}

func getenv(name string) string {
	return strings.TrimSpace(os.Getenv(envPrefix + name))
}

// SplitList splits a comma separated list, dropping blanks.
func SplitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// LoadFromFile loads configuration from a YAML file
func (c *Config) LoadFromFile(path string) error {
	// If path is empty, try default locations
	if path == "" {
		path = FindConfigFile()
		if path == "" {
			return nil // No config file found, not an error
		}
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}

	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("failed to parse config file: %w", err)
	}

	return nil
}

// DefaultLocations lists the files searched when no --config is given.
func DefaultLocations() []string {
	home := os.Getenv("HOME")
	return []string{
		".jiraharvest.yaml",
		".jiraharvest.yml",
		filepath.Join(home, ".config", "jiraharvest", "config.yaml"),
		filepath.Join(home, ".config", "jiraharvest", "config.yml"),
		filepath.Join(home, ".jiraharvest.yaml"),
	}
}

// FindConfigFile returns the first existing default location, or "".
func FindConfigFile() string {
	for _, loc := range DefaultLocations() {
		if _, err := os.Stat(loc); err == nil {
			return loc
		}
	}
	return ""
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	var errs []error

	if u, err := url.Parse(c.Jira.BaseURL); err != nil || u.Scheme == "" || u.Host == "" {
		errs = append(errs, fmt.Errorf("jira base url %q is not an absolute URL", c.Jira.BaseURL))
	}
	if len(c.Jira.Projects) == 0 {
		errs = append(errs, errors.New("at least one project is required"))
	}
	seen := make(map[string]bool, len(c.Jira.Projects))
	for _, p := range c.Jira.Projects {
		if strings.TrimSpace(p) == "" {
			errs = append(errs, errors.New("project keys cannot be blank"))
			continue
		}
		if seen[p] {
			errs = append(errs, fmt.Errorf("project %s listed more than once", p))
		}
		seen[p] = true
	}
	if c.Jira.PageSize < 1 || c.Jira.PageSize > 1000 {
		errs = append(errs, errors.New("page size must be between 1 and 1000"))
	}
	if !strings.Contains(c.Jira.JQLTemplate, "%s") {
		errs = append(errs, errors.New("jql template must contain %s for the project key"))
	}
	if !ordersByCreated(c.Jira.JQLTemplate) {
		errs = append(errs, errors.New("jql template must end with ORDER BY created ASC so offsets stay stable between runs"))
	}
	if c.Jira.RequestTimeout <= 0 {
		errs = append(errs, errors.New("request timeout must be positive"))
	}

	if c.RateLimit.RequestsPerMinute < 0 {
		errs = append(errs, errors.New("requests per minute cannot be negative"))
	}

	if c.Retry.MaxAttempts < 1 {
		errs = append(errs, errors.New("max attempts must be at least 1"))
	}
	if c.Retry.InitialBackoff < 0 || c.Retry.MaxBackoff < c.Retry.InitialBackoff {
		errs = append(errs, errors.New("backoff bounds are invalid"))
	}
	if c.Retry.Multiplier < 1 {
		errs = append(errs, errors.New("backoff multiplier must be >= 1"))
	}
	if c.Retry.Jitter < 0 || c.Retry.Jitter > 1 {
		errs = append(errs, errors.New("jitter must be between 0 and 1"))
	}

	if c.Output.Path == "" {
		errs = append(errs, errors.New("output path is required"))
	}

	switch c.Checkpoint.Backend {
	case BackendFile, BackendSQLite:
	default:
		errs = append(errs, fmt.Errorf("unknown checkpoint backend %q", c.Checkpoint.Backend))
	}
	if c.Checkpoint.Path == "" {
		errs = append(errs, errors.New("checkpoint path is required"))
	}
	if c.Checkpoint.Path != "" && c.Checkpoint.Path == c.Output.Path {
		errs = append(errs, errors.New("checkpoint and output must be different files"))
	}

	validLogLevels := map[string]bool{
		"debug": true, "info": true, "warn": true, "error": true,
	}
	if !validLogLevels[strings.ToLower(c.Logging.Level)] {
		errs = append(errs, errors.New("invalid log level"))
	}
	switch strings.ToLower(c.Logging.Format) {
	case "text", "json":
	default:
		errs = append(errs, errors.New("log format must be text or json"))
	}

	return errors.Join(errs...)
}

// Save saves the configuration to a file
func (c *Config) Save(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create config directory: %w", err)
		}
	}

	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// Redacted returns a copy safe to print.
func (c *Config) Redacted() *Config {
	cp := *c
	cp.Jira.Projects = append([]string(nil), c.Jira.Projects...)
	cp.Jira.Fields = append([]string(nil), c.Jira.Fields...)
	if cp.Jira.APIToken != "" {
		cp.Jira.APIToken = "********"
	}
	return &cp
}

// MergeCommandLineFlags merges command line flags into the configuration.
// Keys match the long flag names of the harvest command.
func (c *Config) MergeCommandLineFlags(flags map[string]interface{}) {
	if projects, ok := flags["projects"].([]string); ok && len(projects) > 0 {
		c.Jira.Projects = projects
	}
	if baseURL, ok := flags["base-url"].(string); ok && baseURL != "" {
		c.Jira.BaseURL = baseURL
	}
	if pageSize, ok := flags["page-size"].(int); ok && pageSize > 0 {
		c.Jira.PageSize = pageSize
	}
	if output, ok := flags["output"].(string); ok && output != "" {
		c.Output.Path = output
	}
	if cp, ok := flags["checkpoint"].(string); ok && cp != "" {
		c.Checkpoint.Path = cp
	}
	if backend, ok := flags["checkpoint-backend"].(string); ok && backend != "" {
		c.Checkpoint.Backend = strings.ToLower(backend)
	}
	if rpm, ok := flags["rate-limit"].(int); ok && rpm >= 0 {
		c.RateLimit.RequestsPerMinute = rpm
	}
	if attempts, ok := flags["max-attempts"].(int); ok && attempts > 0 {
		c.Retry.MaxAttempts = attempts
	}
	if logLevel, ok := flags["log-level"].(string); ok && logLevel != "" {
		c.Logging.Level = logLevel
	}
	if notify, ok := flags["notify"].(bool); ok && notify {
		c.Notifications.Enabled = true
	}
}

// Load loads configuration from all sources with proper precedence
// Precedence order: Command line flags > Environment variables > .env file > Config file > Defaults
func Load(configPath string, flags map[string]interface{}) (*Config, error) {
	// Missing .env files are fine
	_ = godotenv.Load(".env")
	_ = godotenv.Load(filepath.Join(os.Getenv("HOME"), ".jiraharvest.env"))

	config := DefaultConfig()

	if err := config.LoadFromFile(configPath); err != nil {
		return nil, fmt.Errorf("failed to load config file: %w", err)
	}

	if err := config.LoadFromEnv(); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}

	config.MergeCommandLineFlags(flags)

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return config, nil
}

// ordersByCreated reports whether a JQL template sorts by ascending
// creation time and nothing else.
func ordersByCreated(jql string) bool {
	fields := strings.Fields(strings.ToLower(jql))
	n := len(fields)
	return n >= 4 && strings.Join(fields[n-4:], " ") == "order by created asc"
}
