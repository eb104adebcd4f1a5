package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
	"golang.org/x/term"

	"jiraharvest/pkg/auth"
	"jiraharvest/pkg/checkpoint"
	"jiraharvest/pkg/config"
	"jiraharvest/pkg/harvester"
	"jiraharvest/pkg/jira"
	"jiraharvest/pkg/logger"
	"jiraharvest/pkg/storage"
	"jiraharvest/pkg/ui"
	"jiraharvest/pkg/ui/tui"
)

var (
	// Harvest command flags
	baseURL           string
	outputPath        string
	checkpointPath    string
	checkpointBackend string
	pageSize          int
	rateLimit         int
	maxAttempts       int
	notify            bool
	restart           bool
	useTUI            bool
)

// harvestCmd represents the harvest command
var harvestCmd = &cobra.Command{
	Use:   "harvest [projects...]",
	Short: "Harvest issues from Jira projects into the corpus",
	Long: `Harvest every issue of the given Jira projects, oldest first, and append
each one to the corpus as a JSON line.

Projects named on the command line replace the configured list. Each
project resumes from its checkpointed offset; a project that keeps failing
is halted and left for the next run while the others continue.

Credentials are taken from the configuration, then the system keychain or
encrypted credential file, then JIRAHARVEST_EMAIL / JIRAHARVEST_API_TOKEN.
Public instances such as issues.apache.org need none.`,
	Example: `  # Harvest the configured projects
  jiraharvest harvest

  # Harvest two projects into a custom corpus file
  jiraharvest harvest CASSANDRA KAFKA --output corpus.jsonl

  # Keep the checkpoint in SQLite and watch the dashboard
  jiraharvest harvest --checkpoint-backend sqlite --checkpoint state.db --tui

  # Start SPARK over from the first issue
  jiraharvest harvest SPARK --restart`,
	Args: cobra.ArbitraryArgs,
}

func init() {
	harvestCmd.RunE = runHarvest
	addHarvestFlags(harvestCmd)
	rootCmd.AddCommand(harvestCmd)
}

// addHarvestFlags registers the harvest flags on cmd. The root command gets
// them too so that a bare invocation accepts the same flags.
func addHarvestFlags(cmd *cobra.Command) {
	cmd.Flags().StringVar(&baseURL, "base-url", "", "Jira base URL (default https://issues.apache.org/jira)")
	cmd.Flags().StringVarP(&outputPath, "output", "o", "", "corpus file to append to")
	cmd.Flags().StringVar(&checkpointPath, "checkpoint", "", "checkpoint file or database")
	cmd.Flags().StringVar(&checkpointBackend, "checkpoint-backend", "", "checkpoint backend (file, sqlite)")
	cmd.Flags().IntVar(&pageSize, "page-size", 0, "issues requested per page")
	cmd.Flags().IntVar(&rateLimit, "rate-limit", 60, "requests per minute, 0 disables pacing")
	cmd.Flags().IntVar(&maxAttempts, "max-attempts", 5, "attempts per page before a project is halted")
	cmd.Flags().BoolVar(&notify, "notify", false, "send desktop notifications")
	cmd.Flags().BoolVar(&restart, "restart", false, "reset the checkpoint of the selected projects first")
	cmd.Flags().BoolVar(&useTUI, "tui", false, "show the interactive dashboard")
}

// harvestFlags collects the flags the user actually set, keyed the way
// config.MergeCommandLineFlags expects.
func harvestFlags(cmd *cobra.Command, args []string) map[string]interface{} {
	flags := make(map[string]interface{})
	if projects := normalizeProjects(args); len(projects) > 0 {
		flags["projects"] = projects
	}

	changed := cmd.Flags().Changed
	if changed("base-url") {
		flags["base-url"] = baseURL
	}
	if changed("output") {
		flags["output"] = outputPath
	}
	if changed("checkpoint") {
		flags["checkpoint"] = checkpointPath
	}
	if changed("checkpoint-backend") {
		flags["checkpoint-backend"] = checkpointBackend
	}
	if changed("page-size") {
		flags["page-size"] = pageSize
	}
	if changed("rate-limit") {
		flags["rate-limit"] = rateLimit
	}
	if changed("max-attempts") {
		flags["max-attempts"] = maxAttempts
	}
	if changed("notify") {
		flags["notify"] = notify
	}
	if logLevel != "" {
		flags["log-level"] = logLevel
	} else if verbose {
		flags["log-level"] = "debug"
	}
	return flags
}

// normalizeProjects upper-cases project keys and drops blanks and repeats.
func normalizeProjects(args []string) []string {
	var out []string
	seen := make(map[string]bool)
	for _, arg := range args {
		for _, key := range config.SplitList(arg) {
			key = strings.ToUpper(key)
			if !seen[key] {
				seen[key] = true
				out = append(out, key)
			}
		}
	}
	return out
}

func runHarvest(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(configFile, harvestFlags(cmd, args))
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var terminal *tui.TUI
	var logOutput io.Writer = os.Stderr
	if useTUI {
		terminal = tui.NewTUI(cfg.Jira.Projects, cfg.RateLimit.RequestsPerMinute, cancel)
		logOutput = terminal.LogWriter()
	}

	log, err := logger.NewWithWriter(&cfg.Logging, logOutput)
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	logger.SetLogger(log)
	log.WithField("version", version).Info("jiraharvest starting")

	client := jira.NewClientFromConfig(cfg, resolveCredentials(cfg, log), log)

	sink, err := storage.OpenJSONL(cfg.Output.Path, cfg.Output.Fsync)
	if err != nil {
		return fmt.Errorf("failed to open output: %w", err)
	}
	defer func() {
		if err := sink.Close(); err != nil {
			log.WithError(err).Error("Failed to close output")
		}
	}()

	store, err := checkpoint.Open(&cfg.Checkpoint, log)
	if err != nil {
		return err
	}
	defer store.Close()

	if restart {
		if _, err := checkpoint.Reset(store, cfg.Jira.Projects); err != nil {
			return fmt.Errorf("failed to reset checkpoint: %w", err)
		}
		log.WithField("projects", cfg.Jira.Projects).Warn("Checkpoint reset, projects start from offset 0")
	}

	var observers []harvester.Observer
	var display *ui.ProgressDisplay
	if terminal != nil {
		observers = append(observers, terminal)
	} else if !ui.IsQuietMode() {
		lineMode := verbose || !term.IsTerminal(int(os.Stdout.Fd()))
		display = ui.NewProgressDisplay(ui.Output(), lineMode)
		observers = append(observers, display)
	}

	var notifier *ui.Notifier
	if cfg.Notifications.Enabled {
		notifier = ui.NewNotifier(ui.NotifyOptions{
			OnComplete: cfg.Notifications.OnComplete,
			OnError:    cfg.Notifications.OnError,
		})
		observers = append(observers, notifier)
	}

	h := harvester.New(cfg.Jira.Projects, client, sink, store,
		harvester.WithObserver(observers...),
		harvester.WithLogger(log),
	)

	if display != nil {
		ui.PrintInfo("Projects", strings.Join(cfg.Jira.Projects, ", "))
		ui.PrintInfo("Output", cfg.Output.Path)
		fmt.Fprintln(ui.Output())
	}

	var report *harvester.Report
	if terminal == nil {
		report, err = h.Run(ctx)
	} else {
		report, err = runWithDashboard(ctx, h, terminal)
	}

	interrupted := errors.Is(err, context.Canceled)
	if err != nil && !interrupted {
		return err
	}

	if report != nil {
		if display == nil && !ui.IsQuietMode() {
			display = ui.NewProgressDisplay(ui.Output(), true)
		}
		if display != nil {
			display.Summary(report)
		}
		if notifier != nil {
			notifier.RunFinished(report)
		}
	}

	if interrupted {
		ui.PrintWarning("Interrupted, rerun to resume from the checkpoint")
	}
	return nil
}

// runWithDashboard runs the harvester beside the bubbletea program. A
// dashboard failure cancels the harvest; quitting the dashboard cancels it
// through the TUI's quit hook.
func runWithDashboard(ctx context.Context, h *harvester.Harvester, terminal *tui.TUI) (*harvester.Report, error) {
	g, gctx := errgroup.WithContext(ctx)

	var report *harvester.Report
	g.Go(func() error {
		if err := terminal.Start(); err != nil {
			return fmt.Errorf("dashboard failed: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		var err error
		report, err = h.Run(gctx)
		terminal.Finish(report)
		return err
	})

	err := g.Wait()
	return report, err
}

// resolveCredentials picks credentials for the configured site. A broken
// keychain degrades to environment-only lookup instead of failing the run.
func resolveCredentials(cfg *config.Config, log logger.Logger) jira.Credentials {
	manager, err := auth.NewManager()
	if err != nil {
		log.WithError(err).Warn("Credential stores unavailable, using environment only")
		manager = auth.NewManagerWithStores(auth.NewEnvironmentStore())
	}

	creds, source := manager.Resolve(cfg.Jira.BaseURL, cfg.Jira.Email, cfg.Jira.APIToken)
	log.WithField("credentials", source).Debug("Resolved credentials")
	return creds
}
