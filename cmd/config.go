package cmd

import (
	"bytes"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"text/template"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

var configForce bool

// configDirFunc returns the config directory path, replaceable in tests.
var configDirFunc = defaultConfigDir

func defaultConfigDir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".config", "strand"), nil
}

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Show or manage configuration",
	Long: `Show or manage strand configuration.

Running bare 'strand config' is the same as 'strand config show'.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return configShowRun()
	},
}

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Create config file with commented defaults",
	RunE: func(cmd *cobra.Command, args []string) error {
		return configInitRun()
	},
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show effective configuration with sources",
	RunE: func(cmd *cobra.Command, args []string) error {
		return configShowRun()
	},
}

var configEditCmd = &cobra.Command{
	Use:   "edit",
	Short: "Open config file in $EDITOR",
	RunE: func(cmd *cobra.Command, args []string) error {
		return configEditRun()
	},
}

func init() {
	configInitCmd.Flags().BoolVar(&configForce, "force", false, "Overwrite existing config file")
	configCmd.AddCommand(configInitCmd)
	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configEditCmd)
	rootCmd.AddCommand(configCmd)
}

// configTemplate is the template for generating config.yaml with comments.
const configTemplate = `# strand configuration
# See: strand config show (for effective values and sources)

# State/data directory (default: ~/.config/strand)
# state_dir: {{ .StateDir }}

# SQLite database path (default: ~/.config/strand/strand.db)
# db_path: {{ .DBPath }}

# Worktree settings
worktree:
  # Directory for session worktrees (default: sibling of the repository)
  dir: "{{ .WorktreeDir }}"

  # Deadline for 'git worktree add' (default: "120s")
  create_timeout: "{{ .CreateTimeout }}"

# Merge settings
merge:
  # Default strategy: "merge" or "squash" (default: "merge")
  strategy: "{{ .MergeStrategy }}"

  # Delete the session branch after a landed merge (default: true)
  delete_branch: {{ .DeleteBranch }}

  # Delete the session worktree after a landed merge (default: true)
  delete_worktree: {{ .DeleteWorktree }}

  # Send a desktop notification when a merge lands (default: false)
  notify_desktop: {{ .NotifyDesktop }}

# Anthropic settings (optional LLM conflict reconciliation)
anthropic:
  # API key; leave empty to use ANTHROPIC_API_KEY from the environment
  api_key: "{{ .AnthropicKey }}"

  # Model for conflict reconciliation
  model: "{{ .AnthropicModel }}"

  # Ask the model to reconcile source conflicts before falling back to
  # the incoming side (default: false)
  resolve_conflicts: {{ .ResolveConflicts }}
`

type configTemplateData struct {
	StateDir         string
	DBPath           string
	WorktreeDir      string
	CreateTimeout    string
	MergeStrategy    string
	DeleteBranch     bool
	DeleteWorktree   bool
	NotifyDesktop    bool
	AnthropicKey     string
	AnthropicModel   string
	ResolveConflicts bool
}

func configFilePath() (string, error) {
	dir, err := configDirFunc()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "config.yaml"), nil
}

func configInitRun() error {
	cfgPath, err := configFilePath()
	if err != nil {
		return err
	}

	// Check if file already exists
	if _, err := os.Stat(cfgPath); err == nil {
		if !configForce {
			return fmt.Errorf("config file already exists: %s (use --force to overwrite)", cfgPath)
		}
		ui.Warning("Overwriting existing config file")
	}

	// Build template data from current viper values
	data := configTemplateData{
		StateDir:         viper.GetString("state_dir"),
		DBPath:           viper.GetString("db_path"),
		WorktreeDir:      viper.GetString("worktree.dir"),
		CreateTimeout:    viper.GetString("worktree.create_timeout"),
		MergeStrategy:    viper.GetString("merge.strategy"),
		DeleteBranch:     viper.GetBool("merge.delete_branch"),
		DeleteWorktree:   viper.GetBool("merge.delete_worktree"),
		NotifyDesktop:    viper.GetBool("merge.notify_desktop"),
		AnthropicKey:     viper.GetString("anthropic.api_key"),
		AnthropicModel:   viper.GetString("anthropic.model"),
		ResolveConflicts: viper.GetBool("anthropic.resolve_conflicts"),
	}

	tmpl, err := template.New("config").Parse(configTemplate)
	if err != nil {
		return fmt.Errorf("template parse error: %w", err)
	}

	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		return fmt.Errorf("template execute error: %w", err)
	}

	if dryRun {
		ui.DryRunMsg("Would create config file: %s", cfgPath)
		fmt.Fprintln(ui.Out)
		fmt.Fprint(ui.Out, buf.String())
		return nil
	}

	// Create config directory
	dir := filepath.Dir(cfgPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	if err := os.WriteFile(cfgPath, buf.Bytes(), 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	ui.Success("Config file created: %s", cfgPath)
	fmt.Fprintln(ui.Out)
	fmt.Fprint(ui.Out, buf.String())
	return nil
}

// configKeyInfo describes a config key for display purposes.
type configKeyInfo struct {
	Key    string
	EnvVar string
}

var configKeys = []configKeyInfo{
	{Key: "state_dir", EnvVar: "STRAND_STATE_DIR"},
	{Key: "db_path", EnvVar: "STRAND_DB_PATH"},
	{Key: "worktree.dir", EnvVar: "STRAND_WORKTREE_DIR"},
	{Key: "worktree.create_timeout", EnvVar: "STRAND_WORKTREE_CREATE_TIMEOUT"},
	{Key: "merge.strategy", EnvVar: "STRAND_MERGE_STRATEGY"},
	{Key: "merge.delete_branch", EnvVar: "STRAND_MERGE_DELETE_BRANCH"},
	{Key: "merge.delete_worktree", EnvVar: "STRAND_MERGE_DELETE_WORKTREE"},
	{Key: "merge.notify_desktop", EnvVar: "STRAND_MERGE_NOTIFY_DESKTOP"},
	{Key: "anthropic.model", EnvVar: "STRAND_ANTHROPIC_MODEL"},
	{Key: "anthropic.resolve_conflicts", EnvVar: "STRAND_ANTHROPIC_RESOLVE_CONFLICTS"},
}

func configShowRun() error {
	cfgPath, err := configFilePath()
	if err != nil {
		return err
	}

	// Check if config file exists
	if _, err := os.Stat(cfgPath); err == nil {
		ui.Info("Config file: %s", cfgPath)
	} else {
		ui.Info("Config file: (none)")
	}
	fmt.Fprintln(ui.Out)

	// Read config file values to determine file source
	fileValues := readConfigFileValues(cfgPath)

	for _, k := range configKeys {
		val := viper.Get(k.Key)
		source := detectSource(k.Key, k.EnvVar, fileValues)
		fmt.Fprintf(ui.Out, "  %-30s %v  %s\n", k.Key, val, source)
	}

	return nil
}

// readConfigFileValues reads the raw YAML file and returns a flat map of keys present in it.
func readConfigFileValues(path string) map[string]bool {
	result := make(map[string]bool)

	data, err := os.ReadFile(path)
	if err != nil {
		return result
	}

	var parsed map[string]any
	if err := yaml.Unmarshal(data, &parsed); err != nil {
		return result
	}

	// Flatten nested keys with dot notation
	flattenKeys("", parsed, result)
	return result
}

// flattenKeys recursively flattens a nested map to dot-notation keys.
func flattenKeys(prefix string, m map[string]any, result map[string]bool) {
	for key, val := range m {
		fullKey := key
		if prefix != "" {
			fullKey = prefix + "." + key
		}
		if nested, ok := val.(map[string]any); ok {
			flattenKeys(fullKey, nested, result)
		} else {
			result[fullKey] = true
		}
	}
}

// detectSource determines where a config value is coming from.
func detectSource(key, envVar string, fileValues map[string]bool) string {
	if _, ok := os.LookupEnv(envVar); ok {
		return fmt.Sprintf("(env: %s)", envVar)
	}
	if fileValues[key] {
		return "(file)"
	}
	return "(default)"
}

func configEditRun() error {
	editor := os.Getenv("EDITOR")
	if editor == "" {
		editor = os.Getenv("VISUAL")
	}
	if editor == "" {
		return fmt.Errorf("$EDITOR is not set — set it to your preferred editor (e.g. export EDITOR=vim)")
	}

	cfgPath, err := configFilePath()
	if err != nil {
		return err
	}

	if _, err := os.Stat(cfgPath); os.IsNotExist(err) {
		return fmt.Errorf("config file not found: %s (run 'strand config init' first)", cfgPath)
	}

	if dryRun {
		ui.DryRunMsg("Would open %s in %s", cfgPath, editor)
		return nil
	}

	editCmd := exec.Command(editor, cfgPath)
	editCmd.Stdin = os.Stdin
	editCmd.Stdout = os.Stdout
	editCmd.Stderr = os.Stderr
	return editCmd.Run()
}
