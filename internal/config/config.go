package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cast"
	"github.com/spf13/viper"

	"github.com/2lambda123/facebook-prophet/internal/backend"
)

// Paths captures the config files used during LoadConfig.
type Paths struct {
	Default string
	Global  string
	Project string
}

// Settings is the typed view of the merged configuration.
type Settings struct {
	Defaults struct {
		Backend        string `mapstructure:"backend"`
		NewtonFallback bool   `mapstructure:"newton_fallback"`
	} `mapstructure:"defaults"`
	CmdStan struct {
		ModelDir   string `mapstructure:"model_dir"`
		ModelFile  string `mapstructure:"model_file"`
		CmdStanDir string `mapstructure:"cmdstan_dir"`
		WorkDir    string `mapstructure:"work_dir"`
		KeepFiles  bool   `mapstructure:"keep_files"`
	} `mapstructure:"cmdstan"`
	Legacy struct {
		Growth      string `mapstructure:"growth"`
		Seasonality string `mapstructure:"seasonality"`
	} `mapstructure:"legacy"`
	NumPyro struct {
		Worker string `mapstructure:"worker"`
	} `mapstructure:"numpyro"`
	Notify struct {
		Webhook string `mapstructure:"webhook"`
	} `mapstructure:"notify"`
	Logging struct {
		Level  string `mapstructure:"level"`
		Format string `mapstructure:"format"`
	} `mapstructure:"logging"`
}

var (
	currentConfig *viper.Viper
	currentPaths  Paths
)

// LoadConfig loads and merges configuration in priority order:
// built-in defaults -> default file -> global -> project (highest).
func LoadConfig(projectDir string) (Paths, error) {
	v := viper.New()
	v.SetConfigType("yaml")
	v.SetEnvPrefix("PROPHET")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	setDefaults(v)

	paths := Paths{
		Default: defaultConfigPath(),
		Global:  globalConfigPath(),
		Project: projectConfigPath(projectDir),
	}

	if err := readConfigFile(v, paths.Default); err != nil {
		return paths, err
	}
	if err := mergeConfigFile(v, paths.Global); err != nil {
		return paths, err
	}
	if err := mergeConfigFile(v, paths.Project); err != nil {
		return paths, err
	}

	currentConfig = v
	currentPaths = paths

	return paths, nil
}

// CurrentPaths returns the files used by the last LoadConfig.
func CurrentPaths() Paths {
	return currentPaths
}

// ErrUnknownKey is returned by SetConfig for keys outside the schema.
var ErrUnknownKey = errors.New("unknown config key")

// defaultValues is the full key schema with built-in values.
var defaultValues = map[string]interface{}{
	"defaults.backend":         string(backend.DefaultKind()),
	"defaults.newton_fallback": true,
	"cmdstan.model_dir":        "",
	"cmdstan.model_file":       "",
	"cmdstan.cmdstan_dir":      "",
	"cmdstan.work_dir":         "",
	"cmdstan.keep_files":       false,
	"legacy.growth":            "",
	"legacy.seasonality":       "",
	"numpyro.worker":           "",
	"notify.webhook":           "",
	"logging.level":            "info",
	"logging.format":           "text",
}

func setDefaults(v *viper.Viper) {
	for key, value := range defaultValues {
		v.SetDefault(key, value)
	}
}

// ValidateValue checks value against the type of key.
func ValidateValue(key, value string) error {
	def, ok := defaultValues[key]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownKey, key)
	}
	if _, isBool := def.(bool); isBool {
		if _, err := cast.ToBoolE(value); err != nil {
			return fmt.Errorf("%s must be true or false, got %q", key, value)
		}
		return nil
	}

	switch key {
	case "defaults.backend":
		if _, err := backend.Lookup(value); errors.Is(err, backend.ErrUnknownBackend) {
			return fmt.Errorf("%s must be one of %s, got %q", key, strings.Join(backend.Names(), ", "), value)
		}
	case "logging.level":
		if _, err := logrus.ParseLevel(value); err != nil {
			return fmt.Errorf("%s: %w", key, err)
		}
	case "logging.format":
		if value != "text" && value != "json" {
			return fmt.Errorf("%s must be text or json, got %q", key, value)
		}
	case "legacy.growth":
		if value != "linear" && value != "logistic" {
			return fmt.Errorf("%s must be linear or logistic, got %q", key, value)
		}
	case "legacy.seasonality":
		if value != "additive" && value != "multiplicative" {
			return fmt.Errorf("%s must be additive or multiplicative, got %q", key, value)
		}
	}
	return nil
}

// GetConfig returns a config value as a string with env overrides applied.
func GetConfig(key string) (string, bool) {
	if key == "" {
		return "", false
	}

	if legacyKey, ok := legacyEnvOverrides()[key]; ok {
		if value, found := os.LookupEnv(legacyKey); found {
			return value, true
		}
	}

	if currentConfig == nil {
		return "", false
	}

	if !currentConfig.IsSet(key) {
		return "", false
	}

	return valueToString(currentConfig.Get(key)), true
}

// Current returns the merged configuration with env overrides applied.
func Current() (Settings, error) {
	var settings Settings
	if currentConfig == nil {
		return settings, errors.New("config not loaded")
	}
	if err := currentConfig.Unmarshal(&settings); err != nil {
		return settings, fmt.Errorf("decode config: %w", err)
	}
	if value, ok := GetConfig("defaults.backend"); ok {
		settings.Defaults.Backend = value
	}
	if value, ok := GetConfig("cmdstan.cmdstan_dir"); ok {
		settings.CmdStan.CmdStanDir = value
	}
	return settings, nil
}

// BackendConfig builds the construction parameters shared by every backend.
func (s Settings) BackendConfig(logger *logrus.Logger) backend.Config {
	return backend.Config{
		ModelDir:          s.CmdStan.ModelDir,
		ModelFile:         s.CmdStan.ModelFile,
		CmdStanDir:        s.CmdStan.CmdStanDir,
		WorkDir:           s.CmdStan.WorkDir,
		KeepFiles:         s.CmdStan.KeepFiles,
		LegacyGrowth:      s.Legacy.Growth,
		LegacySeasonality: s.Legacy.Seasonality,
		Worker:            s.NumPyro.Worker,
		Logger:            logger,
	}
}

// BackendOptions returns the option set applied to every new backend.
func (s Settings) BackendOptions() map[string]any {
	return map[string]any{"newton_fallback": s.Defaults.NewtonFallback}
}

// SetConfig writes a configuration value to the global config file.
func SetConfig(key, value string) error {
	if key == "" {
		return errors.New("config key is required")
	}
	if err := ValidateValue(key, value); err != nil {
		return err
	}

	globalPath := globalConfigPath()
	if globalPath == "" {
		return errors.New("global config path is not available")
	}

	if err := os.MkdirAll(filepath.Dir(globalPath), 0o755); err != nil {
		return fmt.Errorf("create config dir: %w", err)
	}

	v := viper.New()
	v.SetConfigType("yaml")
	v.SetConfigFile(globalPath)
	if fileExists(globalPath) {
		if err := v.ReadInConfig(); err != nil {
			return fmt.Errorf("read global config: %w", err)
		}
	}

	typed := typedValue(key, value)
	v.Set(key, typed)
	if err := v.WriteConfigAs(globalPath); err != nil {
		return fmt.Errorf("write global config: %w", err)
	}

	if currentConfig != nil {
		currentConfig.Set(key, typed)
	}

	return nil
}

// ListConfig returns a flattened view of the current configuration.
func ListConfig() (map[string]string, error) {
	if currentConfig == nil {
		return nil, errors.New("config not loaded")
	}

	settings := currentConfig.AllSettings()
	flattened := map[string]string{}
	flattenSettings("", settings, flattened)
	return flattened, nil
}

// typedValue keeps booleans as booleans in the written YAML.
func typedValue(key, value string) interface{} {
	if _, isBool := defaultValues[key].(bool); isBool {
		return cast.ToBool(value)
	}
	return value
}

func defaultConfigPath() string {
	if path, ok := os.LookupEnv("PROPHET_DEFAULT_CONFIG"); ok && path != "" {
		return path
	}

	var candidates []string
	if exe, err := os.Executable(); err == nil {
		exeDir := filepath.Dir(exe)
		candidates = append(candidates,
			filepath.Join(exeDir, "config", "default.yaml"),
			filepath.Join(exeDir, "..", "config", "default.yaml"),
		)
	}

	if cwd, err := os.Getwd(); err == nil {
		candidates = append(candidates, filepath.Join(cwd, "config", "default.yaml"))
	}

	if home, err := os.UserHomeDir(); err == nil {
		candidates = append(candidates, filepath.Join(home, ".config", "prophet", "config", "default.yaml"))
	}

	for _, candidate := range candidates {
		if fileExists(candidate) {
			return candidate
		}
	}

	return ""
}

func globalConfigPath() string {
	if path, ok := os.LookupEnv("PROPHET_GLOBAL_CONFIG"); ok && path != "" {
		return path
	}

	configDir := configDir()
	if configDir == "" {
		return ""
	}

	return filepath.Join(configDir, "config.yaml")
}

func projectConfigPath(projectDir string) string {
	if projectDir == "" {
		return ""
	}

	info, err := os.Stat(projectDir)
	if err != nil || !info.IsDir() {
		return ""
	}

	name := os.Getenv("PROPHET_PROJECT_CONFIG_NAME")
	if name == "" {
		name = ".prophet.yaml"
	}

	return filepath.Join(projectDir, name)
}

func configDir() string {
	if path, ok := os.LookupEnv("PROPHET_CONFIG_DIR"); ok && path != "" {
		return path
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}

	return filepath.Join(home, ".config", "prophet")
}

func readConfigFile(v *viper.Viper, path string) error {
	if !fileExists(path) {
		return nil
	}

	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return fmt.Errorf("read config %s: %w", path, err)
	}

	return nil
}

func mergeConfigFile(v *viper.Viper, path string) error {
	if !fileExists(path) {
		return nil
	}

	v.SetConfigFile(path)
	if err := v.MergeInConfig(); err != nil {
		return fmt.Errorf("merge config %s: %w", path, err)
	}

	return nil
}

func fileExists(path string) bool {
	if path == "" {
		return false
	}

	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}

// legacyEnvOverrides are short env names that win over the prefixed ones.
// CMDSTAN is the variable cmdstan installations already export.
func legacyEnvOverrides() map[string]string {
	return map[string]string{
		"defaults.backend":    "PROPHET_BACKEND",
		"cmdstan.cmdstan_dir": "CMDSTAN",
	}
}

func valueToString(value interface{}) string {
	switch typed := value.(type) {
	case []string:
		return strings.Join(typed, ",")
	case []interface{}:
		parts := make([]string, 0, len(typed))
		for _, item := range typed {
			parts = append(parts, fmt.Sprint(item))
		}
		return strings.Join(parts, ",")
	default:
		return fmt.Sprint(value)
	}
}

func flattenSettings(prefix string, value interface{}, out map[string]string) {
	if value == nil {
		return
	}

	switch typed := value.(type) {
	case map[string]interface{}:
		for key, item := range typed {
			nextKey := key
			if prefix != "" {
				nextKey = prefix + "." + key
			}
			flattenSettings(nextKey, item, out)
		}
	case map[interface{}]interface{}:
		for key, item := range typed {
			keyText := fmt.Sprint(key)
			nextKey := keyText
			if prefix != "" {
				nextKey = prefix + "." + keyText
			}
			flattenSettings(nextKey, item, out)
		}
	default:
		if prefix == "" {
			return
		}
		out[prefix] = valueToString(value)
	}
}
