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
	return filepath.Join(home, ".config", "codelens"), nil
}

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Show or manage configuration",
	Long: `Show or manage codelens configuration.

Running bare 'codelens config' is the same as 'codelens config show'.`,
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
const configTemplate = `# codelens configuration
# See: codelens config show (for effective values and sources)

# State/data directory (default: ~/.config/codelens)
# state_dir: {{ .StateDir }}

# SQLite database path (default: ~/.config/codelens/codelens.db)
# db_path: {{ .DBPath }}

# HTTP port for 'codelens serve' (default: 5000)
port: {{ .Port }}

server:
  # Prefix for review routes (default: "/api")
  base_path: "{{ .BasePath }}"

  # How long to wait for in-flight requests on shutdown
  shutdown_timeout: "{{ .ShutdownTimeout }}"

# Generative model
model:
  # "gemini" or "anthropic"
  provider: "{{ .Provider }}"

gemini:
  # API key (falls back to $GEMINI_API_KEY)
  # api_key: ""
  model: "{{ .GeminiModel }}"

anthropic:
  # API key (falls back to $ANTHROPIC_API_KEY)
  # api_key: ""
  model: "{{ .AnthropicModel }}"

# Identity verification
auth:
  # "auto" uses Firebase when credentials exist, "firebase" requires them,
  # "stub" accepts any bearer token as a fixed local user
  mode: "{{ .AuthMode }}"

firebase:
  # Service-account JSON file (or set $FIREBASE_CONFIG to the JSON itself)
  # credentials_file: ""

log:
  # debug, info, warn, error
  level: "{{ .LogLevel }}"
  # "json" or "console"
  format: "{{ .LogFormat }}"
`

type configTemplateData struct {
	StateDir        string
	DBPath          string
	Port            int
	BasePath        string
	ShutdownTimeout string
	Provider        string
	GeminiModel     string
	AnthropicModel  string
	AuthMode        string
	LogLevel        string
	LogFormat       string
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
		StateDir:        viper.GetString("state_dir"),
		DBPath:          viper.GetString("db_path"),
		Port:            viper.GetInt("port"),
		BasePath:        viper.GetString("server.base_path"),
		ShutdownTimeout: viper.GetDuration("server.shutdown_timeout").String(),
		Provider:        viper.GetString("model.provider"),
		GeminiModel:     viper.GetString("gemini.model"),
		AnthropicModel:  viper.GetString("anthropic.model"),
		AuthMode:        viper.GetString("auth.mode"),
		LogLevel:        viper.GetString("log.level"),
		LogFormat:       viper.GetString("log.format"),
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
	Secret bool // masked in show output
}

var configKeys = []configKeyInfo{
	{Key: "state_dir", EnvVar: "CODELENS_STATE_DIR"},
	{Key: "db_path", EnvVar: "CODELENS_DB_PATH"},
	{Key: "port", EnvVar: "CODELENS_PORT"},
	{Key: "server.base_path", EnvVar: "CODELENS_SERVER_BASE_PATH"},
	{Key: "server.max_body_bytes", EnvVar: "CODELENS_SERVER_MAX_BODY_BYTES"},
	{Key: "server.shutdown_timeout", EnvVar: "CODELENS_SERVER_SHUTDOWN_TIMEOUT"},
	{Key: "server.cors_origin", EnvVar: "CODELENS_SERVER_CORS_ORIGIN"},
	{Key: "model.provider", EnvVar: "CODELENS_MODEL_PROVIDER"},
	{Key: "gemini.api_key", EnvVar: "CODELENS_GEMINI_API_KEY", Secret: true},
	{Key: "gemini.model", EnvVar: "CODELENS_GEMINI_MODEL"},
	{Key: "anthropic.api_key", EnvVar: "CODELENS_ANTHROPIC_API_KEY", Secret: true},
	{Key: "anthropic.model", EnvVar: "CODELENS_ANTHROPIC_MODEL"},
	{Key: "auth.mode", EnvVar: "CODELENS_AUTH_MODE"},
	{Key: "firebase.credentials", EnvVar: "CODELENS_FIREBASE_CREDENTIALS", Secret: true},
	{Key: "firebase.credentials_file", EnvVar: "CODELENS_FIREBASE_CREDENTIALS_FILE"},
	{Key: "auth.stub_uid", EnvVar: "CODELENS_AUTH_STUB_UID"},
	{Key: "auth.stub_email", EnvVar: "CODELENS_AUTH_STUB_EMAIL"},
	{Key: "log.level", EnvVar: "CODELENS_LOG_LEVEL"},
	{Key: "log.format", EnvVar: "CODELENS_LOG_FORMAT"},
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
		val := displayValue(viper.Get(k.Key), k.Secret)
		source := detectSource(k.Key, k.EnvVar, fileValues)
		fmt.Fprintf(ui.Out, "  %-26s %v  %s\n", k.Key, val, source)
	}

	return nil
}

// displayValue masks set secrets.
func displayValue(val any, secret bool) any {
	if secret && fmt.Sprint(val) != "" {
		return "********"
	}
	return val
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
		return fmt.Errorf("$EDITOR is not set; set it to your preferred editor (e.g. export EDITOR=vim)")
	}

	cfgPath, err := configFilePath()
	if err != nil {
		return err
	}

	if _, err := os.Stat(cfgPath); os.IsNotExist(err) {
		return fmt.Errorf("config file not found: %s (run 'codelens config init' first)", cfgPath)
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
