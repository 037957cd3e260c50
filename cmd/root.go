package cmd

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/mfalkner/arbiter/internal/cache"
	"github.com/mfalkner/arbiter/internal/config"
	"github.com/mfalkner/arbiter/internal/consult"
	"github.com/mfalkner/arbiter/internal/output"
	"github.com/mfalkner/arbiter/internal/store"
	"github.com/mfalkner/arbiter/internal/tools"
)

// Package-level shared dependencies, initialized in cobra.OnInitialize.
var (
	ui  *output.UI
	cfg *config.Config

	cacheManager *cache.Manager
	orchestrator *consult.Orchestrator
	historyStore store.Store

	verbose bool
	dryRun  bool

	buildVersion = "dev"
	buildCommit  = "none"
	buildDate    = "unknown"
)

var rootCmd = &cobra.Command{
	Use:   "arbiter",
	Short: "Multi-agent code review consultation",
	Long: `arbiter asks external AI review tools (claude, codex, gemini) for
verdicts on specs, diffs, and files, caches their answers, and aggregates
multiple opinions into a consensus.`,
	SilenceUsage:      true,
	SilenceErrors:     true,
	DisableAutoGenTag: true,
}

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
		return cmd.Help()
	}

	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Verbose output")
	rootCmd.PersistentFlags().BoolVarP(&dryRun, "dry-run", "n", false, "Show what would happen without making changes")
	rootCmd.PersistentFlags().String("config", "", "Config file (default ~/.config/arbiter/config.yaml)")
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

		configDir := filepath.Join(home, ".config", "arbiter")
		viper.AddConfigPath(configDir)
		viper.SetConfigName("config")
		viper.SetConfigType("yaml")
	}

	viper.SetEnvPrefix("ARBITER")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	config.SetDefaults()
	viper.SetDefault("anthropic.api_key", "")

	// Read config file if it exists (optional)
	_ = viper.ReadInConfig()
}

func initDeps() {
	ui = output.New()
	ui.Verbose = verbose
	ui.DryRun = dryRun

	loaded, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: invalid configuration: %v\n", err)
		os.Exit(1)
	}
	cfg = loaded
}

// getCache returns the shared cache manager, or nil when caching is disabled.
func getCache() (*cache.Manager, error) {
	if cacheManager != nil {
		return cacheManager, nil
	}
	if !cfg.Cache.Enabled {
		return nil, nil
	}

	dir := cfg.Cache.Dir
	if dir == "" {
		d, err := cache.DefaultDir()
		if err != nil {
			return nil, fmt.Errorf("resolve cache dir: %w", err)
		}
		dir = d
	}

	m, err := cache.New(dir)
	if err != nil {
		return nil, fmt.Errorf("open cache: %w", err)
	}
	m.SetAutoCleanup(cfg.Cache.AutoCleanup)
	if verbose {
		m.Logf = ui.VerboseLog
	}
	cacheManager = m
	return cacheManager, nil
}

// getOrchestrator returns the shared consultation orchestrator,
// initializing it on first call.
func getOrchestrator() (*consult.Orchestrator, error) {
	if orchestrator != nil {
		return orchestrator, nil
	}

	cm, err := getCache()
	if err != nil {
		return nil, err
	}

	o := consult.New(cfg.Registry(), tools.NewExecRunner(), cm, cfg)
	if verbose {
		o.Logf = ui.VerboseLog
	}
	orchestrator = o
	return orchestrator, nil
}

// getHistory returns the shared history store, initializing it on first
// call. History failures never block a consultation, so callers treat a nil
// store as "history off".
func getHistory() (store.Store, error) {
	if historyStore != nil {
		return historyStore, nil
	}

	dbPath := cfg.HistoryDBPath
	if dbPath == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("resolve home directory: %w", err)
		}
		dbPath = filepath.Join(home, ".config", "arbiter", "history.db")
	}

	s, err := store.NewSQLiteStore(dbPath)
	if err != nil {
		return nil, fmt.Errorf("open history database: %w", err)
	}
	if err := s.Migrate(rootCmd.Context()); err != nil {
		_ = s.Close()
		return nil, fmt.Errorf("migrate history database: %w", err)
	}

	historyStore = s
	return historyStore, nil
}
