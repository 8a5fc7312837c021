package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/joescharf/strand/internal/merge"
	"github.com/joescharf/strand/internal/models"
	"github.com/joescharf/strand/internal/output"
	"github.com/joescharf/strand/internal/resolve"
)

var (
	mergeStrategy   string
	mergeMessage    string
	mergeKeepBranch bool
	mergeKeepTree   bool
)

var mergeCmd = &cobra.Command{
	Use:   "merge",
	Short: "Merge sessions back into main",
	Long: `Check, preview, and execute merges of session branches into main.

Running bare 'strand merge <session>' is the same as 'strand merge smart',
which auto-resolves conflicts by file category and aborts the whole merge
if any file cannot be resolved.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return mergeSmartRun(args[0])
	},
}

var mergeCheckCmd = &cobra.Command{
	Use:   "check <session>",
	Short: "Check whether a session can merge cleanly (read-only)",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return mergeCheckRun(args[0])
	},
}

var mergePreviewCmd = &cobra.Command{
	Use:   "preview <session>",
	Short: "Show the commits and files a merge would bring in",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return mergePreviewRun(args[0])
	},
}

var mergeRunCmd = &cobra.Command{
	Use:   "run <session>",
	Short: "Merge a session without conflict auto-resolution",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return mergeRunRun(args[0])
	},
}

var mergeSmartCmd = &cobra.Command{
	Use:   "smart <session>",
	Short: "Merge with categorized automatic conflict resolution",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return mergeSmartRun(args[0])
	},
}

func init() {
	for _, c := range []*cobra.Command{mergeCmd, mergeRunCmd, mergeSmartCmd} {
		c.Flags().StringVar(&mergeStrategy, "strategy", "", "Merge strategy: merge or squash (default from config)")
		c.Flags().StringVarP(&mergeMessage, "message", "m", "", "Merge commit message")
		c.Flags().BoolVar(&mergeKeepBranch, "keep-branch", false, "Keep the session branch after merging")
		c.Flags().BoolVar(&mergeKeepTree, "keep-worktree", false, "Keep the session worktree after merging")
	}

	mergeCmd.AddCommand(mergeCheckCmd)
	mergeCmd.AddCommand(mergePreviewCmd)
	mergeCmd.AddCommand(mergeRunCmd)
	mergeCmd.AddCommand(mergeSmartCmd)
	rootCmd.AddCommand(mergeCmd)
}

func mergeOptions() merge.Options {
	strategy := mergeStrategy
	if strategy == "" {
		strategy = viper.GetString("merge.strategy")
	}
	return merge.Options{
		Strategy:       strategy,
		Message:        mergeMessage,
		DeleteBranch:   viper.GetBool("merge.delete_branch") && !mergeKeepBranch,
		DeleteWorktree: viper.GetBool("merge.delete_worktree") && !mergeKeepTree,
	}
}

func mergeCheckRun(name string) error {
	d, err := getDeps()
	if err != nil {
		return err
	}
	ctx := context.Background()

	s, err := resolveSessionArg(ctx, d, name)
	if err != nil {
		return err
	}

	check, err := d.engine.CheckMergeability(ctx, s)
	if err != nil {
		return fmt.Errorf("mergeability check: %w", err)
	}

	if !check.Mergeable {
		ui.Warning("Session %s cannot merge: %s", s.DisplayName(), check.Reason)
		if check.Detail != "" {
			fmt.Fprintln(ui.Out, check.Detail)
		}
		return nil
	}

	if check.HasConflicts {
		ui.Warning("Session %s is mergeable with conflicts (%d commits ahead)",
			s.DisplayName(), check.CommitsAhead)
		files, err := d.engine.ConflictingFiles(ctx, s)
		if err == nil && len(files) > 0 {
			ui.Info("Conflicting files:")
			table := ui.Table([]string{"File", "Category", "Resolution"})
			for _, entry := range buildResolutionRows(files) {
				_ = table.Append(entry)
			}
			_ = table.Render()
		}
		return nil
	}

	ui.Success("Session %s merges cleanly (%d commits ahead)", s.DisplayName(), check.CommitsAhead)
	return nil
}

func mergePreviewRun(name string) error {
	d, err := getDeps()
	if err != nil {
		return err
	}
	ctx := context.Background()

	s, err := resolveSessionArg(ctx, d, name)
	if err != nil {
		return err
	}

	preview, err := d.engine.GetPreview(ctx, s)
	if err != nil {
		return fmt.Errorf("preview: %w", err)
	}

	ui.Info("%d commit(s), %d file(s) from %s", preview.CommitCount, preview.FileCount,
		output.Cyan(s.Branch))
	if preview.CommitCount > 0 {
		fmt.Fprintln(ui.Out)
		for _, c := range preview.Commits {
			fmt.Fprintf(ui.Out, "  %s\n", c)
		}
	}
	if preview.FileCount > 0 {
		fmt.Fprintln(ui.Out)
		for _, f := range preview.Files {
			fmt.Fprintf(ui.Out, "  %s\n", f)
		}
	}
	return nil
}

func mergeRunRun(name string) error {
	d, err := getDeps()
	if err != nil {
		return err
	}
	ctx := context.Background()

	s, err := resolveSessionArg(ctx, d, name)
	if err != nil {
		return err
	}

	if dryRun {
		ui.DryRunMsg("Would merge %s into main", s.DisplayName())
		return nil
	}

	touchLastActive(ctx, d, s)
	res := d.engine.Integrate(ctx, s, mergeOptions())
	return reportMerge(s, &merge.SmartResult{Result: *res})
}

func mergeSmartRun(name string) error {
	d, err := getDeps()
	if err != nil {
		return err
	}
	ctx := context.Background()

	s, err := resolveSessionArg(ctx, d, name)
	if err != nil {
		return err
	}

	if dryRun {
		ui.DryRunMsg("Would smart-merge %s into main", s.DisplayName())
		return nil
	}

	touchLastActive(ctx, d, s)
	res := d.engine.SmartMerge(ctx, s, mergeOptions())
	return reportMerge(s, res)
}

func reportMerge(s *models.Session, res *merge.SmartResult) error {
	if !res.Success {
		if res.Reason != "" {
			ui.Error("Merge of %s blocked: %s", s.DisplayName(), res.Reason)
		} else {
			ui.Error("Merge of %s failed", s.DisplayName())
		}
		if len(res.AutoResolved) > 0 {
			ui.Info("Auto-resolved before abort: %v", res.AutoResolved)
		}
		if len(res.Failed) > 0 {
			ui.Info("Could not resolve: %v", res.Failed)
		}
		if res.Error != "" {
			return fmt.Errorf("%s", res.Error)
		}
		return fmt.Errorf("merge did not complete")
	}

	ui.Success("Merged %s into main", output.Cyan(s.DisplayName()))
	if len(res.AutoResolved) > 0 {
		ui.Info("Auto-resolved %d conflict(s): %v", len(res.AutoResolved), res.AutoResolved)
	}
	ui.VerboseLog("worktree deleted: %v, branch deleted: %v, unregistered: %v",
		res.WorktreeDeleted, res.BranchDeleted, res.Unregistered)
	return nil
}

// buildResolutionRows renders the resolution plan as table rows.
func buildResolutionRows(files []string) [][]string {
	var rows [][]string
	for _, entry := range resolve.BuildPlan(files) {
		rows = append(rows, []string{entry.File, string(entry.Category), entry.Description})
	}
	return rows
}
