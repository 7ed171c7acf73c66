package cmd

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/joescharf/codelens/internal/auth"
	"github.com/joescharf/codelens/internal/llm"
	"github.com/joescharf/codelens/internal/output"
	"github.com/joescharf/codelens/internal/store"
)

// Package-level shared dependencies, initialized in cobra.OnInitialize.
var (
	ui        *output.UI
	logger    *zap.Logger
	dataStore store.Store

	verbose bool
	dryRun  bool
)

var rootCmd = &cobra.Command{
	Use:   "codelens",
	Short: "CodeLens - AI code review service",
	Long: `codelens reviews code snippets with a generative model.
It serves an authenticated REST API, stores every review per user,
and exposes the same pipeline from the command line and over MCP.`,
	SilenceUsage:      true,
	SilenceErrors:     true,
	DisableAutoGenTag: true,
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if logger != nil {
			_ = logger.Sync()
		}
	},
}

// Execute is the main entry point called from main.go.
func Execute(version, commit, date string) {
	buildVersion = version
	buildCommit = commit
	buildDate = date

	err := rootCmd.Execute()
	if dataStore != nil {
		_ = dataStore.Close()
	}
	if err != nil {
		reportError(err)
		os.Exit(1)
	}
}

// reportError prints a command failure. Flag errors can occur before
// initDeps has created ui.
func reportError(err error) {
	if ui == nil {
		ui = output.New()
	}
	ui.Error("Error: %v", err)
}

func init() {
	cobra.OnInitialize(initConfig, initDeps)

	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Verbose output")
	rootCmd.PersistentFlags().BoolVarP(&dryRun, "dry-run", "n", false, "Show what would happen without making changes")
	rootCmd.PersistentFlags().String("config", "", "Config file (default ~/.config/codelens/config.yaml)")
}

func initConfig() {
	// If --config is explicitly set, use that file
	if cfgFile, _ := rootCmd.PersistentFlags().GetString("config"); cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		configDir, err := configDirFunc()
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: cannot find home directory: %v\n", err)
			os.Exit(1)
		}

		viper.AddConfigPath(configDir)
		viper.SetConfigName("config")
		viper.SetConfigType("yaml")
	}

	viper.SetEnvPrefix("CODELENS")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	setDefaults()

	// Read config file if it exists (optional)
	_ = viper.ReadInConfig()
}

// setDefaults registers every config key with its default value.
func setDefaults() {
	defaultConfigDir, _ := configDirFunc()

	viper.SetDefault("state_dir", defaultConfigDir)
	viper.SetDefault("db_path", filepath.Join(defaultConfigDir, "codelens.db"))
	viper.SetDefault("port", 5000)
	viper.SetDefault("server.base_path", "/api")
	viper.SetDefault("server.max_body_bytes", 1<<20)
	viper.SetDefault("server.shutdown_timeout", "10s")
	viper.SetDefault("server.cors_origin", "*")
	viper.SetDefault("model.provider", llm.ProviderGemini)
	viper.SetDefault("gemini.api_key", "")
	viper.SetDefault("gemini.model", llm.DefaultGeminiModel)
	viper.SetDefault("anthropic.api_key", "")
	viper.SetDefault("anthropic.model", llm.DefaultAnthropicModel)
	viper.SetDefault("auth.mode", auth.ModeAuto)
	viper.SetDefault("firebase.credentials", "")
	viper.SetDefault("firebase.credentials_file", "")
	viper.SetDefault("auth.stub_uid", auth.DefaultStubUID)
	viper.SetDefault("auth.stub_email", auth.DefaultStubEmail)
	viper.SetDefault("log.level", "info")
	viper.SetDefault("log.format", "json")
}

func initDeps() {
	ui = output.New()
	ui.Verbose = verbose
	ui.DryRun = dryRun

	l, err := newLogger(viper.GetString("log.level"), viper.GetString("log.format"), verbose)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	logger = l

	// Store is opened lazily so config/version commands run without a db.
}

// getStore returns the shared store, initializing it on first call.
func getStore() (store.Store, error) {
	if dataStore != nil {
		return dataStore, nil
	}

	dbPath := viper.GetString("db_path")
	s, err := store.NewSQLiteStore(dbPath)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	ctx := rootCmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	if err := s.Migrate(ctx); err != nil {
		_ = s.Close()
		return nil, fmt.Errorf("migrate database: %w", err)
	}

	dataStore = s
	return dataStore, nil
}
