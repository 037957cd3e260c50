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
	return filepath.Join(home, ".config", "arbiter"), nil
}

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Show or manage configuration",
	Long: `Show or manage arbiter configuration.

Running bare 'arbiter config' is the same as 'arbiter config show'.`,
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
const configTemplate = `# arbiter configuration
# See: arbiter config show (for effective values and sources)

tools:
  # Tools consulted, in auto-detection order
  enabled: [claude, codex, gemini]

  # Per-tool wall-clock timeout in seconds (default: 120)
  timeout_seconds: {{ .TimeoutSeconds }}

consensus:
  # Agents used for multi-tool consensus
  agents: [claude, codex, gemini]

  # Minimum matching verdicts to declare consensus (default: 2)
  min_agreement: {{ .MinAgreement }}

  synthesis:
    # Backend for narrative synthesis: a tool name, or "api" for the
    # Anthropic API (default: claude)
    tool: "{{ .SynthesisTool }}"

routing:
  # Kinds that fan out to all agents instead of the fallback chain
  auto_trigger:
    spec_review: true
    diff_review: true
    test_failure: false

cache:
  # Cache consultations on disk (default: true)
  enabled: {{ .CacheEnabled }}

  # Hours before a cached consultation expires (default: 24)
  ttl_hours: {{ .CacheTTLHours }}

# history:
#   db_path: ~/.config/arbiter/history.db
`

type configTemplateData struct {
	TimeoutSeconds int
	MinAgreement   int
	SynthesisTool  string
	CacheEnabled   bool
	CacheTTLHours  int
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
		TimeoutSeconds: viper.GetInt("tools.timeout_seconds"),
		MinAgreement:   viper.GetInt("consensus.min_agreement"),
		SynthesisTool:  viper.GetString("consensus.synthesis.tool"),
		CacheEnabled:   viper.GetBool("cache.enabled"),
		CacheTTLHours:  viper.GetInt("cache.ttl_hours"),
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
	{Key: "tools.enabled", EnvVar: "ARBITER_TOOLS_ENABLED"},
	{Key: "tools.timeout_seconds", EnvVar: "ARBITER_TOOLS_TIMEOUT_SECONDS"},
	{Key: "consensus.agents", EnvVar: "ARBITER_CONSENSUS_AGENTS"},
	{Key: "consensus.min_agreement", EnvVar: "ARBITER_CONSENSUS_MIN_AGREEMENT"},
	{Key: "consensus.synthesis.tool", EnvVar: "ARBITER_CONSENSUS_SYNTHESIS_TOOL"},
	{Key: "consensus.synthesis.model", EnvVar: "ARBITER_CONSENSUS_SYNTHESIS_MODEL"},
	{Key: "cache.enabled", EnvVar: "ARBITER_CACHE_ENABLED"},
	{Key: "cache.ttl_hours", EnvVar: "ARBITER_CACHE_TTL_HOURS"},
	{Key: "cache.dir", EnvVar: "ARBITER_CACHE_DIR"},
	{Key: "history.db_path", EnvVar: "ARBITER_HISTORY_DB_PATH"},
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
		return fmt.Errorf("config file not found: %s (run 'arbiter config init' first)", cfgPath)
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
