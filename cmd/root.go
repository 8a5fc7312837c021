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

	"github.com/joescharf/strand/internal/audit"
	"github.com/joescharf/strand/internal/gitexec"
	"github.com/joescharf/strand/internal/gitstate"
	"github.com/joescharf/strand/internal/llm"
	"github.com/joescharf/strand/internal/merge"
	"github.com/joescharf/strand/internal/models"
	"github.com/joescharf/strand/internal/notify"
	"github.com/joescharf/strand/internal/output"
	"github.com/joescharf/strand/internal/registry"
	"github.com/joescharf/strand/internal/resolve"
	"github.com/joescharf/strand/internal/worktree"
)

// Package-level shared dependencies, initialized in cobra.OnInitialize.
var (
	ui        *output.UI
	dataStore registry.Store

	verbose bool
	dryRun  bool
)

var rootCmd = &cobra.Command{
	Use:   "strand",
	Short: "Session orchestrator - worktree-per-session development with merge-back",
	Long: `strand manages parallel development sessions, each isolated in its
own git worktree and branch. It derives each session's lifecycle phase
from repository state, and merges finished sessions back into main with
categorized automatic conflict resolution.`,
	SilenceUsage:      true,
	SilenceErrors:     true,
	DisableAutoGenTag: true,
}

// Set from main.go via goreleaser ldflags.
var (
	buildVersion = "dev"
	buildCommit  = "none"
	buildDate    = "unknown"
)

// Execute is the main entry point called from main.go.
func Execute(version, commit, date string) {
	buildVersion = version
	buildCommit = commit
	buildDate = date

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig, initDeps)

	rootCmd.RunE = func(cmd *cobra.Command, args []string) error {
		return sessionListRun()
	}

	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Verbose output")
	rootCmd.PersistentFlags().BoolVarP(&dryRun, "dry-run", "n", false, "Show what would happen without making changes")
	rootCmd.PersistentFlags().String("config", "", "Config file (default ~/.config/strand/config.yaml)")
}

func initConfig() {
	// If --config is explicitly set, use that file
	if cfgFile, _ := rootCmd.PersistentFlags().GetString("config"); cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		home, err := os.UserHomeDir()
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: cannot find home directory: %v\n", err)
			os.Exit(1)
		}

		configDir := filepath.Join(home, ".config", "strand")
		viper.AddConfigPath(configDir)
		viper.SetConfigName("config")
		viper.SetConfigType("yaml")
	}

	viper.SetEnvPrefix("STRAND")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	// Defaults via viper.SetDefault()
	home, _ := os.UserHomeDir()
	defaultStateDir := filepath.Join(home, ".config", "strand")

	viper.SetDefault("state_dir", defaultStateDir)
	viper.SetDefault("db_path", filepath.Join(defaultStateDir, "strand.db"))
	viper.SetDefault("worktree.dir", "")
	viper.SetDefault("worktree.create_timeout", "120s")
	viper.SetDefault("merge.strategy", merge.StrategyMerge)
	viper.SetDefault("merge.delete_branch", true)
	viper.SetDefault("merge.delete_worktree", true)
	viper.SetDefault("merge.notify_desktop", false)
	viper.SetDefault("anthropic.api_key", "")
	viper.SetDefault("anthropic.model", "claude-haiku-4-5-20251001")
	viper.SetDefault("anthropic.resolve_conflicts", false)

	// Read config file if it exists (optional)
	_ = viper.ReadInConfig()
}

func initDeps() {
	ui = output.New()
	ui.Verbose = verbose
	ui.DryRun = dryRun

	// Store and git plumbing are initialized lazily so config/version
	// commands run without a db or a repository.
}

// getStore returns the shared store, initializing it on first call.
func getStore() (registry.Store, error) {
	if dataStore != nil {
		return dataStore, nil
	}

	dbPath := viper.GetString("db_path")
	s, err := registry.NewSQLiteStore(dbPath)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	if err := s.Migrate(rootCmd.Context()); err != nil {
		_ = s.Close()
		return nil, fmt.Errorf("migrate database: %w", err)
	}

	dataStore = s
	return dataStore, nil
}

// deps bundles the per-repository plumbing behind the commands.
type deps struct {
	store    registry.Store
	runner   *gitexec.GitRunner
	detector *gitstate.Detector
	manager  *worktree.Manager
	engine   *merge.Engine
	mainPath string
}

// getDeps resolves the repository from the working directory and wires
// the detector, worktree manager, and merge engine around it.
func getDeps() (*deps, error) {
	s, err := getStore()
	if err != nil {
		return nil, err
	}

	runner := gitexec.NewRunner()

	cwd, err := os.Getwd()
	if err != nil {
		return nil, err
	}
	mainPath, err := resolveMainPath(runner, cwd)
	if err != nil {
		return nil, err
	}

	detector := gitstate.NewDetector(runner, gitstate.NewCache(gitstate.DefaultTTL), mainPath)

	var assist resolve.Assist
	if viper.GetBool("anthropic.resolve_conflicts") {
		assist = llm.NewClient(viper.GetString("anthropic.api_key"), viper.GetString("anthropic.model"))
	}

	stateDir := viper.GetString("state_dir")
	notifier := notify.NewFileSink(filepath.Join(stateDir, "notifications.json"),
		viper.GetBool("merge.notify_desktop"))
	auditLog := audit.NewFileLog(filepath.Join(stateDir, "merges.json"))

	engine := merge.NewEngine(runner, detector, resolve.NewResolver(runner, assist),
		worktree.NewManager(runner, mainPath), s, notifier, auditLog, mainPath)

	ensureMainSession(s, detector, mainPath)

	return &deps{
		store:    s,
		runner:   runner,
		detector: detector,
		manager:  worktree.NewManager(runner, mainPath),
		engine:   engine,
		mainPath: mainPath,
	}, nil
}

// ensureMainSession registers the primary checkout as the main session on
// first contact with a repository. Best-effort: a failed registration only
// means the main row is absent from listings.
func ensureMainSession(s registry.Store, detector *gitstate.Detector, mainPath string) {
	ctx := context.Background()
	if main, err := s.MainSession(ctx); err == nil {
		// Follow a repository that moved on disk instead of registering a
		// second main row.
		if main.Path != mainPath {
			main.Path = mainPath
			_ = s.UpdateSession(ctx, main)
		}
		return
	}
	_ = s.CreateSession(ctx, &models.Session{
		Path:       mainPath,
		Branch:     detector.MainBranch(ctx),
		IsMain:     true,
		TaskStatus: models.TaskStatusInProgress,
	})
}

// resolveMainPath finds the primary checkout for the repository containing
// dir. Running inside a session worktree resolves to the shared primary,
// so every command operates on the same repository regardless of cwd.
func resolveMainPath(runner *gitexec.GitRunner, dir string) (string, error) {
	top, err := runner.Output(dir, "rev-parse", "--show-toplevel")
	if err != nil {
		return "", fmt.Errorf("not inside a git repository: %w", err)
	}
	top = strings.TrimSpace(top)

	if worktree.Kind(top) == worktree.KindWorktree {
		// The common git dir lives under the primary checkout's .git.
		common, err := runner.Output(dir, "rev-parse", "--git-common-dir")
		if err == nil {
			common = strings.TrimSpace(common)
			if filepath.Base(common) == ".git" {
				return filepath.Dir(common), nil
			}
		}
	}
	return top, nil
}

// createTimeout reads the configured worktree creation deadline.
func createTimeout() time.Duration {
	d, err := time.ParseDuration(viper.GetString("worktree.create_timeout"))
	if err != nil || d <= 0 {
		return worktree.DefaultCreateTimeout
	}
	return d
}
