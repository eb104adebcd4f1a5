package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"jiraharvest/pkg/auth"
	"jiraharvest/pkg/config"
	"jiraharvest/pkg/jira"
	"jiraharvest/pkg/logger"
	"jiraharvest/pkg/ui"
)

var skipVerify bool

// authCmd represents the auth command
var authCmd = &cobra.Command{
	Use:   "auth",
	Short: "Manage Jira credentials",
	Long: `Manage stored Jira credentials.

Credentials are kept per site in:
  - the system keychain, when available
  - an encrypted file protected with a PBKDF2-derived key
and can always be supplied through JIRAHARVEST_EMAIL and
JIRAHARVEST_API_TOKEN instead.`,
}

// loginCmd represents the auth login command
var loginCmd = &cobra.Command{
	Use:   "login [site]",
	Short: "Store an API token for a Jira site",
	Long: `Store an email and API token for a Jira site. The site defaults to the
configured base URL. The token is read without echo.`,
	Example: `  # Store a token for the configured site
  jiraharvest auth login

  # Store a token for another site
  jiraharvest auth login https://example.atlassian.net`,
	Args: cobra.MaximumNArgs(1),
	RunE: runLogin,
}

// logoutCmd represents the auth logout command
var logoutCmd = &cobra.Command{
	Use:   "logout [site]",
	Short: "Remove stored credentials for a site",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runLogout,
}

// statusCmd represents the auth status command
var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show stored credentials and what a harvest would use",
	Args:  cobra.NoArgs,
	RunE:  runAuthStatus,
}

func init() {
	rootCmd.AddCommand(authCmd)
	authCmd.AddCommand(loginCmd)
	authCmd.AddCommand(logoutCmd)
	authCmd.AddCommand(statusCmd)

	loginCmd.Flags().BoolVar(&skipVerify, "skip-verify", false, "store without test-fetching a page")
}

// loadConfigOrDefault lets the auth commands work before a valid
// configuration exists.
func loadConfigOrDefault() *config.Config {
	cfg, err := config.Load(configFile, nil)
	if err != nil {
		ui.PrintWarning("Using default configuration", err)
		return config.DefaultConfig()
	}
	return cfg
}

// siteArg returns the site named on the command line or the configured one.
func siteArg(args []string, cfg *config.Config) (string, error) {
	site := cfg.Jira.BaseURL
	if len(args) > 0 {
		site = args[0]
	}
	return auth.NormalizeSite(site)
}

func runLogin(cmd *cobra.Command, args []string) error {
	cfg := loadConfigOrDefault()
	site, err := siteArg(args, cfg)
	if err != nil {
		return err
	}

	manager, err := auth.NewManager()
	if err != nil {
		return fmt.Errorf("failed to initialize credential manager: %w", err)
	}

	reader := bufio.NewReader(os.Stdin)
	auth.ShowTokenGuide(ui.Output())
	fmt.Fprintln(ui.Output())
	ui.PrintInfo("Site", site)

	if existing, _ := manager.Retrieve(site); existing != nil {
		if !confirm(reader, fmt.Sprintf("Credentials for %s already exist. Replace them?", site), false) {
			return nil
		}
	}

	fmt.Print("Email (leave empty for a personal access token): ")
	email, err := reader.ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("failed to read email: %w", err)
	}
	email = strings.TrimSpace(email)

	fmt.Print("API token (hidden): ")
	token, err := readPassword(reader)
	if err != nil {
		return fmt.Errorf("failed to read token: %w", err)
	}
	if token == "" {
		return errors.New("an API token is required")
	}

	account := &auth.Account{Site: site, Email: email, APIToken: token}

	if !skipVerify && len(cfg.Jira.Projects) > 0 {
		if err := verifyCredentials(cfg, site, account.Credentials()); err != nil {
			ui.PrintWarning("Test request failed", err)
			if !confirm(reader, "Store the credentials anyway?", false) {
				return nil
			}
		} else {
			ui.PrintSuccess("Test request succeeded")
		}
	}

	if err := manager.Store(account); err != nil {
		return fmt.Errorf("failed to store credentials: %w", err)
	}
	ui.PrintSuccess("Credentials stored for " + site)
	return nil
}

// verifyCredentials fetches a single issue from the first configured
// project with one attempt and no pacing.
func verifyCredentials(cfg *config.Config, site string, creds jira.Credentials) error {
	probe := *cfg
	probe.Jira.BaseURL = site
	probe.Jira.PageSize = 1
	probe.Retry.MaxAttempts = 1
	probe.RateLimit.RequestsPerMinute = 0

	ctx, cancel := context.WithTimeout(context.Background(), probe.Jira.RequestTimeout+5*time.Second)
	defer cancel()

	client := jira.NewClientFromConfig(&probe, creds, logger.NewNopLogger())
	_, err := client.FetchPage(ctx, probe.Jira.Projects[0], 0)
	return err
}

func runLogout(cmd *cobra.Command, args []string) error {
	cfg := loadConfigOrDefault()
	site, err := siteArg(args, cfg)
	if err != nil {
		return err
	}

	manager, err := auth.NewManager()
	if err != nil {
		return fmt.Errorf("failed to initialize credential manager: %w", err)
	}

	if !confirm(bufio.NewReader(os.Stdin), fmt.Sprintf("Remove stored credentials for %s?", site), false) {
		return nil
	}
	if err := manager.Delete(site); err != nil {
		if errors.Is(err, auth.ErrCredentialsNotFound) {
			ui.PrintWarning("No stored credentials for " + site)
			return nil
		}
		return fmt.Errorf("failed to remove credentials: %w", err)
	}
	ui.PrintSuccess("Credentials removed for " + site)
	return nil
}

func runAuthStatus(cmd *cobra.Command, args []string) error {
	cfg := loadConfigOrDefault()

	manager, err := auth.NewManager()
	if err != nil {
		return fmt.Errorf("failed to initialize credential manager: %w", err)
	}

	var names []string
	for _, store := range manager.Stores() {
		names = append(names, store.Name())
	}
	ui.PrintInfo("Credential stores", strings.Join(names, ", "))

	accounts, err := manager.List()
	if err != nil {
		return fmt.Errorf("failed to list credentials: %w", err)
	}
	if len(accounts) == 0 {
		ui.PrintInfo("Stored sites", "none")
	} else {
		ui.PrintHighlight("Stored sites")
		for _, account := range accounts {
			sanitized := auth.SanitizeAccount(account)
			email := sanitized.Email
			if email == "" {
				email = "(token only)"
			}
			fmt.Fprintf(ui.Output(), "  %s\n    Email: %s\n    Token: %s\n    Last modified: %s\n",
				sanitized.Site, email, sanitized.APIToken, sanitized.LastModified.Format("2006-01-02 15:04:05"))
		}
	}

	_, source := manager.Resolve(cfg.Jira.BaseURL, cfg.Jira.Email, cfg.Jira.APIToken)
	fmt.Fprintln(ui.Output())
	ui.PrintInfo("Harvest of "+cfg.Jira.BaseURL+" would use", source)
	return nil
}

// confirm asks a yes/no question, returning def on empty input.
func confirm(reader *bufio.Reader, question string, def bool) bool {
	hint := "(y/N)"
	if def {
		hint = "(Y/n)"
	}
	fmt.Printf("%s %s: ", question, hint)
	input, _ := reader.ReadString('\n')
	input = strings.ToLower(strings.TrimSpace(input))
	if input == "" {
		return def
	}
	return strings.HasPrefix(input, "y")
}

// readPassword reads a secret without echo when stdin is a terminal.
func readPassword(reader *bufio.Reader) (string, error) {
	if term.IsTerminal(int(os.Stdin.Fd())) {
		secret, err := term.ReadPassword(int(os.Stdin.Fd()))
		fmt.Println()
		if err == nil {
			return strings.TrimSpace(string(secret)), nil
		}
	}

	input, err := reader.ReadString('\n')
	if err != nil && strings.TrimSpace(input) == "" {
		return "", err
	}
	return strings.TrimSpace(input), nil
}
