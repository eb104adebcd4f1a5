package main

import (
	"context"
	"fmt"
	"os"
	"runtime"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"jiraharvest/pkg/ui"
)

var (
	// Version information
	version   = "1.0.0"
	gitCommit = "unknown"
	buildDate = "unknown"

	// Global flags
	configFile string
	logLevel   string
	noColor    bool
	quiet      bool
	verbose    bool
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "jiraharvest [projects...]",
	Short: "Harvest Jira issues into a JSONL training corpus",
	Long: `jiraharvest pages through the issues of one or more Jira projects and
appends each issue as a cleaned JSON line to a corpus file.

Progress is checkpointed after every page, so an interrupted or
rate-limited run picks up where it stopped the next time it is started.

Features:
  - Resumable harvesting with a per-project checkpoint (JSON file or SQLite)
  - Bounded retries with exponential backoff and Retry-After support
  - Request pacing to stay under the server's rate limit
  - API tokens kept in the system keychain or an encrypted file
  - Progress line, interactive dashboard and desktop notifications

Running jiraharvest with no subcommand is the same as 'jiraharvest harvest'.`,
	Version:       fmt.Sprintf("%s (commit: %s, built: %s)", version, gitCommit, buildDate),
	Args:          cobra.ArbitraryArgs,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		if noColor || !term.IsTerminal(int(os.Stdout.Fd())) {
			ui.SetColor(false)
		}
		if quiet {
			ui.SetQuietMode(true)
		}

		switch cmd.Name() {
		case "version", "help", "show":
		default:
			if !useTUI {
				ui.PrintLogo()
			}
		}
	},
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() {
	if err := rootCmd.ExecuteContext(context.Background()); err != nil {
		ui.PrintError("Error", err)
		os.Exit(1)
	}
}

func init() {
	// Bare invocation harvests.
	rootCmd.RunE = runHarvest
	addHarvestFlags(rootCmd)

	rootCmd.PersistentFlags().StringVarP(&configFile, "config", "c", "", "config file (default is ./.jiraharvest.yaml or ~/.config/jiraharvest/config.yaml)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().BoolVar(&noColor, "no-color", false, "disable colored output")
	rootCmd.PersistentFlags().BoolVarP(&quiet, "quiet", "q", false, "suppress all output except errors")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "print a line per page instead of a progress bar")

	rootCmd.SetVersionTemplate(`jiraharvest {{.Version}}
Go Version: ` + runtime.Version() + `
OS/Arch: ` + runtime.GOOS + `/` + runtime.GOARCH + `
`)

	rootCmd.CompletionOptions.DisableDefaultCmd = true
}
