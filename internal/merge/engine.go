// Package merge reconciles a session's branch back into the main line of
// history: mergeability probing, preview, execution, and categorized
// automatic conflict resolution with rollback.
package merge

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/joescharf/strand/internal/audit"
	"github.com/joescharf/strand/internal/gitexec"
	"github.com/joescharf/strand/internal/gitstate"
	"github.com/joescharf/strand/internal/models"
	"github.com/joescharf/strand/internal/notify"
	"github.com/joescharf/strand/internal/resolve"
	"github.com/joescharf/strand/internal/worktree"
)

// Reason codes for a blocked merge.
const (
	ReasonAlreadyMain        = "already_main"
	ReasonAlreadyMerged      = "already_merged"
	ReasonUncommittedChanges = "uncommitted_changes"
	ReasonNoChanges          = "no_changes"
	ReasonConflicts          = "conflicts"
)

// Strategy names for Integrate.
const (
	StrategySquash = "squash"
	StrategyMerge  = "merge"
)

// SessionRemover is the registry subset the engine needs after a merge.
type SessionRemover interface {
	RemoveSession(ctx context.Context, id string) error
}

// Engine orchestrates merge attempts against the primary checkout. A
// single engine assumes it is the only orchestrating process for its
// repository root; the repository's own locks serialize anything else.
type Engine struct {
	runner    gitexec.Runner
	detector  *gitstate.Detector
	resolver  *resolve.Resolver
	worktrees *worktree.Manager
	registry  SessionRemover
	notifier  notify.Sink
	audit     audit.Log
	mainPath  string
}

// NewEngine wires a merge engine. notifier and auditLog may be nil, which
// disables those side channels.
func NewEngine(runner gitexec.Runner, detector *gitstate.Detector, resolver *resolve.Resolver,
	worktrees *worktree.Manager, registry SessionRemover, notifier notify.Sink, auditLog audit.Log,
	mainPath string) *Engine {
	if notifier == nil {
		notifier = notify.NopSink{}
	}
	if auditLog == nil {
		auditLog = audit.NopLog{}
	}
	return &Engine{
		runner:    runner,
		detector:  detector,
		resolver:  resolver,
		worktrees: worktrees,
		registry:  registry,
		notifier:  notifier,
		audit:     auditLog,
		mainPath:  mainPath,
	}
}

// Mergeability reports whether a session can merge cleanly.
type Mergeability struct {
	Mergeable    bool
	Reason       string
	Detail       string
	HasConflicts bool
	CommitsAhead int
}

// Preview summarizes what a merge would bring in, read-only.
type Preview struct {
	Commits     []string
	Files       []string
	CommitCount int
	FileCount   int
}

// Options configures Integrate and SmartMerge.
type Options struct {
	Strategy       string
	Message        string
	DeleteBranch   bool
	DeleteWorktree bool
}

// Result is the outcome of a merge execution. Teardown steps report
// independently: a failed branch delete after a landed merge is a soft
// failure, never an overall one.
type Result struct {
	Success         bool
	Merged          bool
	Reason          string
	Error           string
	WorktreeDeleted bool
	BranchDeleted   bool
	Unregistered    bool
}

// SmartResult extends Result with the conflict resolution outcome.
type SmartResult struct {
	Result
	Plan         []resolve.PlanEntry
	AutoResolved []string
	Failed       []string
}

// CheckMergeability probes whether the session merges cleanly into the
// target branch. The probe performs a no-commit, no-fast-forward merge and
// unconditionally aborts it, restoring the original checkout, so it never
// leaves the repository mid-merge.
func (e *Engine) CheckMergeability(ctx context.Context, s *models.Session) (*Mergeability, error) {
	if s.IsMain {
		return &Mergeability{Reason: ReasonAlreadyMain, Detail: "the main session is never merged"}, nil
	}
	if s.Merged() {
		return &Mergeability{Reason: ReasonAlreadyMerged, Detail: "session was already merged"}, nil
	}

	status, err := e.runner.Run(ctx, s.Path, "status", "--porcelain")
	if err != nil {
		return nil, err
	}
	if lines := strings.TrimSpace(status.Stdout); lines != "" {
		return &Mergeability{Reason: ReasonUncommittedChanges, Detail: lines}, nil
	}

	target := e.detector.MainBranch(ctx)
	ahead, err := e.countAhead(ctx, target, s.Branch)
	if err != nil {
		return nil, err
	}
	if ahead == 0 {
		return &Mergeability{Reason: ReasonNoChanges, Detail: "no commits ahead of " + target}, nil
	}

	hasConflicts, err := e.probeConflicts(ctx, target, s.Branch)
	if err != nil {
		return nil, err
	}

	return &Mergeability{
		Mergeable:    true,
		HasConflicts: hasConflicts,
		CommitsAhead: ahead,
	}, nil
}

func (e *Engine) countAhead(ctx context.Context, target, branch string) (int, error) {
	res, err := e.runner.Run(ctx, e.mainPath, "rev-list", "--count", target+".."+branch)
	if err != nil {
		return 0, err
	}
	// A rev-list failure means a bad ref, not an empty range.
	if !res.Ok() {
		return 0, fmt.Errorf("rev-list %s..%s: %s", target, branch, res.Combined())
	}
	n := 0
	fmt.Sscanf(strings.TrimSpace(res.Stdout), "%d", &n)
	return n, nil
}

// probeConflicts dry-runs the merge on the target branch and aborts it
// regardless of outcome.
func (e *Engine) probeConflicts(ctx context.Context, target, branch string) (bool, error) {
	restore, err := e.checkoutTarget(ctx, target)
	if err != nil {
		return false, err
	}
	defer restore()

	res, err := e.runner.Run(ctx, e.mainPath, "merge", "--no-commit", "--no-ff", branch)
	// The abort must run whether or not the merge reported conflicts: even
	// a clean --no-commit merge leaves MERGE_HEAD behind.
	_, _ = e.runner.Run(ctx, e.mainPath, "merge", "--abort")
	if err != nil {
		return false, err
	}

	return !res.Ok(), nil
}

// checkoutTarget switches the primary checkout to the target branch and
// returns a restore func that switches back when the original differed.
func (e *Engine) checkoutTarget(ctx context.Context, target string) (func(), error) {
	res, err := e.runner.Run(ctx, e.mainPath, "rev-parse", "--abbrev-ref", "HEAD")
	if err != nil {
		return nil, err
	}
	original := strings.TrimSpace(res.Stdout)

	if original != target {
		res, err := e.runner.Run(ctx, e.mainPath, "checkout", target)
		if err != nil {
			return nil, err
		}
		if !res.Ok() {
			return nil, fmt.Errorf("checkout %s: %s", target, res.Combined())
		}
	}

	restore := func() {
		if original != "" && original != target {
			_, _ = e.runner.Run(ctx, e.mainPath, "checkout", original)
		}
		e.detector.Cache().InvalidatePath(e.mainPath)
	}
	return restore, nil
}

// GetPreview lists the commits and changed files a merge would bring in.
// Read-only: no working tree is touched.
func (e *Engine) GetPreview(ctx context.Context, s *models.Session) (*Preview, error) {
	target := e.detector.MainBranch(ctx)

	logRes, err := e.runner.Run(ctx, e.mainPath, "log", "--oneline", target+".."+s.Branch)
	if err != nil {
		return nil, err
	}
	if !logRes.Ok() {
		return nil, fmt.Errorf("log %s..%s: %s", target, s.Branch, logRes.Combined())
	}

	diffRes, err := e.runner.Run(ctx, e.mainPath, "diff", "--name-only", target+"..."+s.Branch)
	if err != nil {
		return nil, err
	}
	if !diffRes.Ok() {
		return nil, fmt.Errorf("diff %s...%s: %s", target, s.Branch, diffRes.Combined())
	}

	p := &Preview{
		Commits: splitLines(logRes.Stdout),
		Files:   splitLines(diffRes.Stdout),
	}
	p.CommitCount = len(p.Commits)
	p.FileCount = len(p.Files)
	return p, nil
}

// ConflictingFiles returns the files modified on both sides since the
// merge base, the candidates for conflict during a merge.
func (e *Engine) ConflictingFiles(ctx context.Context, s *models.Session) ([]string, error) {
	target := e.detector.MainBranch(ctx)

	baseRes, err := e.runner.Run(ctx, e.mainPath, "merge-base", target, s.Branch)
	if err != nil {
		return nil, err
	}
	if !baseRes.Ok() {
		return nil, fmt.Errorf("merge-base %s %s: %s", target, s.Branch, baseRes.Combined())
	}
	base := strings.TrimSpace(baseRes.Stdout)

	oursRes, err := e.runner.Run(ctx, e.mainPath, "diff", "--name-only", base, target)
	if err != nil {
		return nil, err
	}
	theirsRes, err := e.runner.Run(ctx, e.mainPath, "diff", "--name-only", base, s.Branch)
	if err != nil {
		return nil, err
	}

	ours := make(map[string]struct{})
	for _, f := range splitLines(oursRes.Stdout) {
		ours[f] = struct{}{}
	}

	var both []string
	for _, f := range splitLines(theirsRes.Stdout) {
		if _, ok := ours[f]; ok {
			both = append(both, f)
		}
	}
	return both, nil
}

// Integrate merges the session into the target branch and tears down its
// worktree, branch, and registry record. A conflicted merge is aborted
// and reported; teardown failures after a landed merge are soft.
func (e *Engine) Integrate(ctx context.Context, s *models.Session, opts Options) *Result {
	startedAt := time.Now().UTC()

	if s.IsMain {
		return &Result{Reason: ReasonAlreadyMain, Error: "the main session is never merged"}
	}
	if s.Merged() {
		return &Result{Reason: ReasonAlreadyMerged, Error: "session was already merged"}
	}

	target := e.detector.MainBranch(ctx)
	restore, err := e.checkoutTarget(ctx, target)
	if err != nil {
		return &Result{Error: err.Error()}
	}
	merged := false
	defer func() {
		if !merged {
			restore()
		}
	}()

	// Local-only repositories have no upstream; a failed pull is fine.
	_, _ = e.runner.Run(ctx, e.mainPath, "pull", "--ff-only")

	message := opts.Message
	if message == "" {
		message = fmt.Sprintf("Merge session %s", s.DisplayName())
	}

	if err := e.execMerge(ctx, s.Branch, opts.Strategy, message); err != nil {
		_, _ = e.runner.Run(ctx, e.mainPath, "merge", "--abort")
		return &Result{Reason: ReasonConflicts, Error: err.Error()}
	}
	merged = true

	res := &Result{Success: true, Merged: true}
	e.teardown(ctx, s, opts, message, res)

	_ = e.audit.Append(audit.Record{
		SessionID: s.ID,
		Branch:    s.Branch,
		StartedAt: startedAt,
		MergedAt:  time.Now().UTC(),
	})
	return res
}

// execMerge performs the configured merge on the already-checked-out
// target branch.
func (e *Engine) execMerge(ctx context.Context, branch, strategy, message string) error {
	switch strategy {
	case StrategySquash:
		res, err := e.runner.Run(ctx, e.mainPath, "merge", "--squash", branch)
		if err != nil {
			return err
		}
		if !res.Ok() {
			return fmt.Errorf("squash merge: %s", res.Combined())
		}
		res, err = e.runner.Run(ctx, e.mainPath, "commit", "-m", message)
		if err != nil {
			return err
		}
		if !res.Ok() {
			return fmt.Errorf("squash commit: %s", res.Combined())
		}
	case StrategyMerge, "":
		res, err := e.runner.Run(ctx, e.mainPath, "merge", "--no-ff", "-m", message, branch)
		if err != nil {
			return err
		}
		if !res.Ok() {
			return fmt.Errorf("merge: %s", res.Combined())
		}
	default:
		return fmt.Errorf("unknown merge strategy %q", strategy)
	}
	return nil
}

// teardown deletes the worktree, branch, and registry record after a
// landed merge, recording each step's outcome independently, and
// publishes the merge record.
func (e *Engine) teardown(ctx context.Context, s *models.Session, opts Options, message string, res *Result) {
	_ = e.notifier.MergeCompleted(notify.MergeRecord{
		Timestamp: time.Now().UTC(),
		SessionID: s.ID,
		Branch:    s.Branch,
		Strategy:  orDefault(opts.Strategy, StrategyMerge),
		Message:   message,
	})

	if opts.DeleteWorktree {
		if err := e.worktrees.Remove(ctx, s.Path); err == nil {
			res.WorktreeDeleted = true
		}
	}

	if opts.DeleteBranch {
		if e.deleteBranch(ctx, s.Branch) {
			res.BranchDeleted = true
		}
	}

	if e.registry != nil {
		if err := e.registry.RemoveSession(ctx, s.ID); err == nil {
			res.Unregistered = true
		}
	}

	// Branch topology and phases changed under the cache.
	e.detector.Cache().InvalidatePath(e.mainPath)
	e.detector.Cache().InvalidatePath(s.Path)
}

// unmergedFiles lists the paths left with conflict stages by a failed
// merge in the primary checkout.
func (e *Engine) unmergedFiles(ctx context.Context) (map[string]struct{}, error) {
	res, err := e.runner.Run(ctx, e.mainPath, "diff", "--name-only", "--diff-filter=U")
	if err != nil {
		return nil, err
	}
	if !res.Ok() {
		return nil, fmt.Errorf("listing unmerged files: %s", res.Combined())
	}
	set := make(map[string]struct{}, 4)
	for _, f := range splitLines(res.Stdout) {
		set[f] = struct{}{}
	}
	return set, nil
}

// deleteBranch tries a safe delete, then a forced one.
func (e *Engine) deleteBranch(ctx context.Context, branch string) bool {
	res, err := e.runner.Run(ctx, e.mainPath, "branch", "-d", branch)
	if err == nil && res.Ok() {
		return true
	}
	res, err = e.runner.Run(ctx, e.mainPath, "branch", "-D", branch)
	return err == nil && res.Ok()
}

// SmartMerge checks mergeability, merges directly when clean, and
// otherwise builds a resolution plan and applies it. If any single file
// fails to resolve the whole merge is aborted: no partial commit, and the
// result enumerates resolved versus failed files.
func (e *Engine) SmartMerge(ctx context.Context, s *models.Session, opts Options) *SmartResult {
	startedAt := time.Now().UTC()

	check, err := e.CheckMergeability(ctx, s)
	if err != nil {
		return &SmartResult{Result: Result{Error: err.Error()}}
	}
	if !check.Mergeable {
		return &SmartResult{Result: Result{Reason: check.Reason, Error: check.Detail}}
	}

	if !check.HasConflicts {
		res := e.Integrate(ctx, s, opts)
		return &SmartResult{Result: *res}
	}

	files, err := e.ConflictingFiles(ctx, s)
	if err != nil {
		return &SmartResult{Result: Result{Error: err.Error()}}
	}
	plan := resolve.BuildPlan(files)

	out := &SmartResult{Plan: plan}

	target := e.detector.MainBranch(ctx)
	restore, err := e.checkoutTarget(ctx, target)
	if err != nil {
		out.Error = err.Error()
		return out
	}
	merged := false
	defer func() {
		if !merged {
			restore()
		}
	}()

	mergeRes, err := e.runner.Run(ctx, e.mainPath, "merge", "--no-commit", "--no-ff", s.Branch)
	if err != nil {
		out.Error = err.Error()
		return out
	}

	if !mergeRes.Ok() {
		// The real merge reported conflicts. The plan covers every file
		// changed on both sides, but git auto-merges the ones whose hunks
		// do not overlap; those carry no conflict stages and must be left
		// alone. Resolve only the paths still unmerged in the index.
		unmerged, uerr := e.unmergedFiles(ctx)
		if uerr != nil {
			_, _ = e.runner.Run(ctx, e.mainPath, "merge", "--abort")
			out.Error = uerr.Error()
			return out
		}
		for _, entry := range plan {
			if _, ok := unmerged[entry.File]; !ok {
				continue
			}
			if resolveErr := e.resolver.Resolve(ctx, e.mainPath, entry); resolveErr != nil {
				out.Failed = append(out.Failed, entry.File)
			} else {
				out.AutoResolved = append(out.AutoResolved, entry.File)
			}
		}

		if len(out.Failed) > 0 {
			_, _ = e.runner.Run(ctx, e.mainPath, "merge", "--abort")
			out.Reason = ReasonConflicts
			out.Error = fmt.Sprintf("unresolved conflicts in: %s", strings.Join(out.Failed, ", "))
			return out
		}
	}

	message := opts.Message
	if message == "" {
		message = fmt.Sprintf("Merge session %s", s.DisplayName())
	}
	if len(out.AutoResolved) > 0 {
		message = fmt.Sprintf("%s [auto-resolved %d conflicts]", message, len(out.AutoResolved))
	}

	stageRes, err := e.runner.Run(ctx, e.mainPath, "add", "-A")
	if err != nil || !stageRes.Ok() {
		_, _ = e.runner.Run(ctx, e.mainPath, "merge", "--abort")
		out.Error = "failed to stage resolved files"
		return out
	}

	commitRes, err := e.runner.Run(ctx, e.mainPath, "commit", "-m", message)
	if err != nil || !commitRes.Ok() {
		_, _ = e.runner.Run(ctx, e.mainPath, "merge", "--abort")
		if commitRes != nil {
			out.Error = "commit failed: " + commitRes.Combined()
		} else {
			out.Error = "commit failed"
		}
		return out
	}
	merged = true

	out.Success = true
	out.Merged = true
	e.teardown(ctx, s, opts, message, &out.Result)

	_ = e.audit.Append(audit.Record{
		SessionID: s.ID,
		Branch:    s.Branch,
		StartedAt: startedAt,
		MergedAt:  time.Now().UTC(),
		Plan:      plan,
		Resolved:  out.AutoResolved,
	})

	return out
}

func splitLines(s string) []string {
	var out []string
	for _, line := range strings.Split(strings.TrimSpace(s), "\n") {
		if line = strings.TrimSpace(line); line != "" {
			out = append(out, line)
		}
	}
	return out
}

func orDefault(s, def string) string {
	if s == "" {
		return def
	}
	return s
}
