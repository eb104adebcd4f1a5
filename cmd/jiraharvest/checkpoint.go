package main

import (
	"bufio"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"jiraharvest/pkg/checkpoint"
	"jiraharvest/pkg/config"
	"jiraharvest/pkg/logger"
	"jiraharvest/pkg/storage"
	"jiraharvest/pkg/ui"
)

var resetYes bool

// checkpointCmd represents the checkpoint command
var checkpointCmd = &cobra.Command{
	Use:   "checkpoint",
	Short: "Inspect or reset resume offsets",
	Long: `Inspect or reset the per-project offsets a harvest resumes from.

The checkpoint lives in the file or SQLite database selected by the
checkpoint section of the configuration.`,
}

// checkpointShowCmd represents the checkpoint show command
var checkpointShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show the stored offset of every project",
	Args:  cobra.NoArgs,
	RunE:  runCheckpointShow,
}

// checkpointResetCmd represents the checkpoint reset command
var checkpointResetCmd = &cobra.Command{
	Use:   "reset [projects...]",
	Short: "Reset projects to offset 0",
	Long: `Reset the named projects, or every stored project when none are named,
to offset 0. The next harvest fetches them again from the first issue and
appends them to the corpus a second time; the corpus is not modified.`,
	Example: `  # Re-harvest SPARK from the start
  jiraharvest checkpoint reset SPARK

  # Forget every offset without prompting
  jiraharvest checkpoint reset --yes`,
	RunE: runCheckpointReset,
}

func init() {
	rootCmd.AddCommand(checkpointCmd)
	checkpointCmd.AddCommand(checkpointShowCmd)
	checkpointCmd.AddCommand(checkpointResetCmd)

	checkpointResetCmd.Flags().BoolVarP(&resetYes, "yes", "y", false, "do not ask for confirmation")
}

func openCheckpoint() (*config.Config, checkpoint.Store, error) {
	cfg, err := config.Load(configFile, nil)
	if err != nil {
		return nil, nil, err
	}
	store, err := checkpoint.Open(&cfg.Checkpoint, logger.NewNopLogger())
	if err != nil {
		return nil, nil, err
	}
	return cfg, store, nil
}

func runCheckpointShow(cmd *cobra.Command, args []string) error {
	cfg, store, err := openCheckpoint()
	if err != nil {
		return err
	}
	defer store.Close()

	offsets, err := store.Load(cfg.Jira.Projects)
	if err != nil {
		return fmt.Errorf("failed to load checkpoint: %w", err)
	}

	ui.PrintInfo("Checkpoint", fmt.Sprintf("%s (%s)", cfg.Checkpoint.Path, cfg.Checkpoint.Backend))
	configured := make(map[string]bool, len(cfg.Jira.Projects))
	for _, p := range cfg.Jira.Projects {
		configured[p] = true
	}
	for _, source := range offsets.Sources() {
		note := ""
		if !configured[source] {
			note = ui.Dim(" (not configured)")
		}
		fmt.Fprintf(ui.Output(), "  %-16s %d%s\n", source, offsets.Get(source), note)
	}

	lines, err := storage.CountLines(cfg.Output.Path)
	if err != nil {
		return fmt.Errorf("failed to read corpus: %w", err)
	}
	fmt.Fprintln(ui.Output())
	ui.PrintInfo("Corpus", fmt.Sprintf("%s (%d records)", cfg.Output.Path, lines))
	return nil
}

func runCheckpointReset(cmd *cobra.Command, args []string) error {
	_, store, err := openCheckpoint()
	if err != nil {
		return err
	}
	defer store.Close()

	projects := normalizeProjects(args)
	target := "every stored project"
	if len(projects) > 0 {
		target = strings.Join(projects, ", ")
	}
	if !resetYes && !confirm(bufio.NewReader(os.Stdin), "Reset "+target+" to offset 0?", false) {
		return nil
	}

	offsets, err := checkpoint.Reset(store, projects)
	if err != nil {
		return fmt.Errorf("failed to reset checkpoint: %w", err)
	}
	ui.PrintSuccess(fmt.Sprintf("Reset %s (%d project(s) in checkpoint)", target, len(offsets)))
	return nil
}
