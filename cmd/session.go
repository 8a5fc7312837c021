package cmd

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/joescharf/strand/internal/models"
	"github.com/joescharf/strand/internal/output"
	"github.com/joescharf/strand/internal/worktree"
)

var (
	sessionNickname   string
	sessionThreadType string
	sessionKeepBranch bool
)

var sessionCmd = &cobra.Command{
	Use:     "session",
	Aliases: []string{"s"},
	Short:   "Manage development sessions",
	Long:    "Create, list, and remove worktree-backed development sessions.",
	RunE: func(cmd *cobra.Command, args []string) error {
		return sessionListRun()
	},
}

var sessionListCmd = &cobra.Command{
	Use:     "list",
	Aliases: []string{"ls"},
	Short:   "List sessions with their lifecycle phase",
	RunE: func(cmd *cobra.Command, args []string) error {
		return sessionListRun()
	},
}

var sessionCreateCmd = &cobra.Command{
	Use:   "create <branch>",
	Short: "Create a session on a new branch and worktree",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return sessionCreateRun(args[0])
	},
}

var sessionRmCmd = &cobra.Command{
	Use:     "rm <session>",
	Aliases: []string{"remove"},
	Short:   "Remove a session's worktree, branch, and registration",
	Args:    cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return sessionRmRun(args[0])
	},
}

var sessionForce bool

var sessionStatusCmd = &cobra.Command{
	Use:   "set-status <session> <status>",
	Short: "Move a session's task status through its lifecycle",
	Long: `Move a session's task status. Valid statuses: ready, in_progress,
in_review, blocked, completed, archived. Only adjacent lifecycle moves
are allowed unless --force is given; archived is terminal.`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		return sessionSetStatusRun(args[0], args[1])
	},
}

var sessionTypeCmd = &cobra.Command{
	Use:   "set-type <session> <type>",
	Short: "Change a session's thread type",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		return sessionSetTypeRun(args[0], args[1])
	},
}

var sessionPruneCmd = &cobra.Command{
	Use:   "prune",
	Short: "Drop registrations whose worktrees no longer exist",
	RunE: func(cmd *cobra.Command, args []string) error {
		return sessionPruneRun()
	},
}

func init() {
	sessionCreateCmd.Flags().StringVar(&sessionNickname, "nickname", "", "Short display name for the session")
	sessionCreateCmd.Flags().StringVar(&sessionThreadType, "type", string(models.ThreadTypeParallel),
		"Thread type: base, parallel, chained, fusion, big, long")
	sessionRmCmd.Flags().BoolVar(&sessionKeepBranch, "keep-branch", false, "Keep the branch after removing the worktree")

	sessionStatusCmd.Flags().BoolVar(&sessionForce, "force", false, "Allow non-adjacent lifecycle moves")
	sessionTypeCmd.Flags().BoolVar(&sessionForce, "force", false, "Allow non-adjacent type changes")

	sessionCmd.AddCommand(sessionListCmd)
	sessionCmd.AddCommand(sessionCreateCmd)
	sessionCmd.AddCommand(sessionRmCmd)
	sessionCmd.AddCommand(sessionStatusCmd)
	sessionCmd.AddCommand(sessionTypeCmd)
	sessionCmd.AddCommand(sessionPruneCmd)
	rootCmd.AddCommand(sessionCmd)
}

func sessionListRun() error {
	d, err := getDeps()
	if err != nil {
		return err
	}
	ctx := context.Background()

	sessions, err := d.store.ListSessions(ctx)
	if err != nil {
		return err
	}
	if len(sessions) == 0 {
		ui.Info("No sessions registered. Create one with: strand session create <branch>")
		return nil
	}

	phases := d.detector.PhasesFor(ctx, sessions)

	table := ui.Table([]string{"Session", "Branch", "Type", "Status", "Phase", "Ahead"})
	for _, sp := range phases {
		s := sp.Session
		ahead := "-"
		if !s.IsMain {
			ahead = fmt.Sprintf("%d", d.detector.CommitsAhead(ctx, s.Path))
		}
		_ = table.Append([]string{
			output.Cyan(s.DisplayName()),
			s.Branch,
			string(s.ThreadType),
			output.StatusColor(string(s.TaskStatus)),
			output.PhaseColor(sp.Phase),
			ahead,
		})
	}
	_ = table.Render()
	return nil
}

func sessionCreateRun(branch string) error {
	if err := worktree.ValidateBranchName(branch); err != nil {
		return err
	}
	if err := validThreadType(sessionThreadType); err != nil {
		return err
	}

	d, err := getDeps()
	if err != nil {
		return err
	}
	ctx := context.Background()

	if _, err := d.store.GetSessionByBranch(ctx, branch); err == nil {
		return fmt.Errorf("a session already exists for branch %s", branch)
	}

	branchExisted := d.manager.BranchExists(ctx, branch)
	if branchExisted {
		return fmt.Errorf("branch %s already exists", branch)
	}

	path := sessionWorktreePath(d.mainPath, branch)

	if dryRun {
		ui.DryRunMsg("Would create worktree %s on branch %s", path, branch)
		return nil
	}

	ui.Info("Creating worktree %s on branch %s...", output.Cyan(path), output.Cyan(branch))
	if _, err := d.manager.CreateWithTimeout(ctx, path, branch, createTimeout()); err != nil {
		d.manager.CleanupFailed(ctx, path, branch, !branchExisted)
		return fmt.Errorf("create worktree: %w", err)
	}

	s := &models.Session{
		Path:       path,
		Branch:     branch,
		Nickname:   sessionNickname,
		ThreadType: models.ThreadType(sessionThreadType),
		TaskStatus: models.TaskStatusReady,
	}
	if err := d.store.CreateSession(ctx, s); err != nil {
		// The worktree exists but the registration failed; undo it so the
		// command is retryable.
		d.manager.CleanupFailed(ctx, path, branch, !branchExisted)
		return fmt.Errorf("register session: %w", err)
	}

	ui.Success("Created session %s at %s", output.Cyan(s.DisplayName()), path)
	return nil
}

func sessionRmRun(name string) error {
	d, err := getDeps()
	if err != nil {
		return err
	}
	ctx := context.Background()

	s, err := resolveSessionArg(ctx, d, name)
	if err != nil {
		return err
	}
	if s.IsMain {
		return fmt.Errorf("refusing to remove the main session")
	}

	if dryRun {
		ui.DryRunMsg("Would remove session %s (worktree %s)", s.DisplayName(), s.Path)
		return nil
	}

	if _, err := os.Stat(s.Path); err == nil {
		if err := d.manager.Remove(ctx, s.Path); err != nil {
			return fmt.Errorf("remove worktree: %w", err)
		}
	}

	if !sessionKeepBranch && d.manager.BranchExists(ctx, s.Branch) {
		// Safe delete only; commits not on main are kept for inspection.
		d.manager.CleanupFailed(ctx, "", s.Branch, true)
	}

	if err := d.store.RemoveSession(ctx, s.ID); err != nil {
		return fmt.Errorf("unregister session: %w", err)
	}
	d.detector.Cache().InvalidatePath(s.Path)

	ui.Success("Removed session %s", output.Cyan(s.DisplayName()))
	return nil
}

func sessionSetStatusRun(name, status string) error {
	d, err := getDeps()
	if err != nil {
		return err
	}
	ctx := context.Background()

	s, err := resolveSessionArg(ctx, d, name)
	if err != nil {
		return err
	}

	res := models.TaskStatusMachine.Transition(string(s.TaskStatus), status, sessionForce)
	if !res.Success {
		return res.Err
	}
	if res.Noop {
		ui.Info("Session %s is already %s", s.DisplayName(), status)
		return nil
	}

	s.TaskStatus = models.TaskStatus(res.To)
	touchLastActive(ctx, d, s)

	if res.Forced {
		ui.Warning("Forced status %s -> %s for %s", res.From, res.To, s.DisplayName())
	} else {
		ui.Success("Session %s: %s -> %s", output.Cyan(s.DisplayName()),
			res.From, output.StatusColor(res.To))
	}
	return nil
}

func sessionSetTypeRun(name, threadType string) error {
	d, err := getDeps()
	if err != nil {
		return err
	}
	ctx := context.Background()

	s, err := resolveSessionArg(ctx, d, name)
	if err != nil {
		return err
	}

	res := models.ThreadTypeMachine.Transition(string(s.ThreadType), threadType, sessionForce)
	if !res.Success {
		return res.Err
	}
	if res.Noop {
		ui.Info("Session %s is already a %s thread", s.DisplayName(), threadType)
		return nil
	}

	s.ThreadType = models.ThreadType(res.To)
	touchLastActive(ctx, d, s)

	ui.Success("Session %s: %s -> %s thread", output.Cyan(s.DisplayName()), res.From, res.To)
	return nil
}

func sessionPruneRun() error {
	d, err := getDeps()
	if err != nil {
		return err
	}
	ctx := context.Background()

	sessions, err := d.store.ListSessions(ctx)
	if err != nil {
		return err
	}

	pruned := 0
	for _, s := range sessions {
		if s.IsMain {
			continue
		}
		if _, err := os.Stat(s.Path); err == nil {
			continue
		}

		if dryRun {
			ui.DryRunMsg("Would prune session %s (missing %s)", s.DisplayName(), s.Path)
			continue
		}
		if err := d.store.RemoveSession(ctx, s.ID); err != nil {
			ui.Warning("Could not prune %s: %v", s.DisplayName(), err)
			continue
		}
		ui.VerboseLog("Pruned %s", s.DisplayName())
		pruned++
	}

	_, _ = d.runner.Run(ctx, d.mainPath, "worktree", "prune")

	if pruned == 0 && !dryRun {
		ui.Info("Nothing to prune.")
	} else if !dryRun {
		ui.Success("Pruned %d session(s)", pruned)
	}
	return nil
}

// resolveSessionArg finds a session by branch, nickname, or id.
func resolveSessionArg(ctx context.Context, d *deps, name string) (*models.Session, error) {
	if s, err := d.store.GetSessionByBranch(ctx, name); err == nil {
		return s, nil
	}
	sessions, err := d.store.ListSessions(ctx)
	if err != nil {
		return nil, err
	}
	for _, s := range sessions {
		if s.Nickname == name || s.ID == name {
			return s, nil
		}
	}
	return nil, fmt.Errorf("no session matches %q", name)
}

// sessionWorktreePath places the worktree under the configured directory,
// or as a sibling of the primary checkout by default.
func sessionWorktreePath(mainPath, branch string) string {
	// Branch names may contain slashes; flatten for the directory name.
	leaf := filepath.Base(mainPath) + "-" + strings.ReplaceAll(branch, "/", "-")
	if dir := viper.GetString("worktree.dir"); dir != "" {
		return filepath.Join(dir, leaf)
	}
	return filepath.Join(filepath.Dir(mainPath), leaf)
}

func validThreadType(t string) error {
	for _, valid := range models.ThreadTypeMachine.States() {
		if t == valid {
			return nil
		}
	}
	return fmt.Errorf("invalid thread type %q (valid: %s)", t,
		strings.Join(models.ThreadTypeMachine.States(), ", "))
}

// touchLastActive is called by commands that operate on a session.
func touchLastActive(ctx context.Context, d *deps, s *models.Session) {
	s.LastActive = time.Now().UTC()
	_ = d.store.UpdateSession(ctx, s)
}
