package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/joescharf/strand/internal/output"
)

var statusCmd = &cobra.Command{
	Use:   "status <session>",
	Short: "Show detailed status for one session",
	Long: `Show detailed status for a session: its branch, worktree, derived
lifecycle phase, and the raw signals behind it.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return statusRun(args[0])
	},
}

func init() {
	rootCmd.AddCommand(statusCmd)
}

func statusRun(name string) error {
	d, err := getDeps()
	if err != nil {
		return err
	}
	ctx := context.Background()

	s, err := resolveSessionArg(ctx, d, name)
	if err != nil {
		return err
	}

	phase := d.detector.PhaseFor(ctx, s)

	fmt.Fprintf(ui.Out, "Session:   %s\n", output.Cyan(s.DisplayName()))
	fmt.Fprintf(ui.Out, "Branch:    %s\n", s.Branch)
	fmt.Fprintf(ui.Out, "Worktree:  %s\n", s.Path)
	fmt.Fprintf(ui.Out, "Type:      %s\n", s.ThreadType)
	fmt.Fprintf(ui.Out, "Status:    %s\n", output.StatusColor(string(s.TaskStatus)))
	fmt.Fprintf(ui.Out, "Phase:     %s\n", output.PhaseColor(phase))

	if !s.IsMain {
		fmt.Fprintf(ui.Out, "Ahead:     %d commit(s)\n", d.detector.CommitsAhead(ctx, s.Path))
		if d.detector.IsDirty(ctx, s.Path) {
			fmt.Fprintf(ui.Out, "Tree:      %s\n", output.Red("dirty"))
		} else {
			fmt.Fprintf(ui.Out, "Tree:      %s\n", output.Green("clean"))
		}
	}
	if s.Story != "" {
		fmt.Fprintf(ui.Out, "Story:     %s\n", s.Story)
	}
	if !s.LastActive.IsZero() {
		fmt.Fprintf(ui.Out, "Active:    %s\n", timeAgo(s.LastActive))
	}
	if s.MergedAt != nil {
		fmt.Fprintf(ui.Out, "Merged:    %s\n", s.MergedAt.Format(time.RFC3339))
	}
	return nil
}

// timeAgo renders a timestamp as a coarse relative duration.
func timeAgo(t time.Time) string {
	d := time.Since(t)
	switch {
	case d < time.Minute:
		return "just now"
	case d < time.Hour:
		return fmt.Sprintf("%dm ago", int(d.Minutes()))
	case d < 24*time.Hour:
		return fmt.Sprintf("%dh ago", int(d.Hours()))
	default:
		return fmt.Sprintf("%dd ago", int(d.Hours()/24))
	}
}
