package config

import (
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/joho/godotenv"
	"github.com/pelletier/go-toml/v2"
)

//go:embed sample_config.toml
var sampleConfig string

// Paths contains file and directory locations.
type Paths struct {
	PreferencesFile string `toml:"preferences_file"`
	LogDir          string `toml:"log_dir"`
	HistoryDB       string `toml:"history_db"`
	LockFile        string `toml:"lock_file"`
}

// Converter describes how the external conversion process is launched.
type Converter struct {
	PythonBinary string   `toml:"python_binary"`
	Module       string   `toml:"module"`
	ExtraEnv     []string `toml:"extra_env"`
	HFToken      string   `toml:"hf_token"`
}

// Capabilities configures the environment probes run before a job.
type Capabilities struct {
	CompanionAppPath    string `toml:"companion_app_path"`
	CompanionAppURL     string `toml:"companion_app_url"`
	ToolchainBinary     string `toml:"toolchain_binary"`
	CompilerSubcommand  string `toml:"compiler_subcommand"`
	ProbeTimeoutSeconds int    `toml:"probe_timeout_seconds"`
}

// Logging contains configuration for log output.
type Logging struct {
	Format string `toml:"format"`
	Level  string `toml:"level"`
}

// Metrics contains configuration for the Prometheus textfile export.
type Metrics struct {
	TextfilePath string `toml:"textfile_path"`
}

// Config encapsulates all configuration values for the converter.
//
// Configuration sections by subsystem:
//   - Paths: preferences document, logs, run history, job lock
//   - Converter: Python interpreter and module running the conversion
//   - Capabilities: companion app and Core ML compiler probes
//   - Logging: log format and level
//   - Metrics: optional Prometheus textfile output
type Config struct {
	Paths        Paths        `toml:"paths"`
	Converter    Converter    `toml:"converter"`
	Capabilities Capabilities `toml:"capabilities"`
	Logging      Logging      `toml:"logging"`
	Metrics      Metrics      `toml:"metrics"`
}

// DefaultConfigPath returns the absolute path to the default configuration file location.
func DefaultConfigPath() (string, error) {
	return expandPath(defaultConfigPath)
}

// Load locates, parses, and validates a configuration file. The returned config has all
// path fields expanded and normalized.
func Load(path string) (*Config, string, bool, error) {
	cfg := Default()

	resolvedPath, exists, err := resolveConfigPath(path)
	if err != nil {
		return nil, "", false, err
	}

	if exists {
		file, err := os.Open(resolvedPath)
		if err != nil {
			return nil, "", false, fmt.Errorf("open config: %w", err)
		}
		defer file.Close()

		decoder := toml.NewDecoder(file)
		if err := decoder.Decode(&cfg); err != nil {
			return nil, "", false, fmt.Errorf("parse config: %w", err)
		}
	}

	if err := loadDotEnv(filepath.Dir(resolvedPath)); err != nil {
		return nil, "", false, err
	}

	if err := cfg.normalize(); err != nil {
		return nil, "", false, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, "", false, err
	}

	return &cfg, resolvedPath, exists, nil
}

func resolveConfigPath(path string) (string, bool, error) {
	if path != "" {
		expanded, err := expandPath(path)
		if err != nil {
			return "", false, err
		}
		_, err = os.Stat(expanded)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return expanded, false, nil
			}
			return "", false, fmt.Errorf("stat config: %w", err)
		}
		return expanded, true, nil
	}

	defaultPath, err := expandPath(defaultConfigPath)
	if err != nil {
		return "", false, err
	}

	projectPath, err := filepath.Abs("guernika.toml")
	if err != nil {
		return "", false, err
	}

	if info, err := os.Stat(defaultPath); err == nil && !info.IsDir() {
		return defaultPath, true, nil
	}
	if info, err := os.Stat(projectPath); err == nil && !info.IsDir() {
		return projectPath, true, nil
	}

	return defaultPath, false, nil
}

// loadDotEnv loads KEY=VALUE pairs from a .env file next to the config file.
// Variables already present in the environment win.
func loadDotEnv(dir string) error {
	if strings.TrimSpace(dir) == "" {
		return nil
	}
	envPath := filepath.Join(dir, ".env")
	if _, err := os.Stat(envPath); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("stat env file: %w", err)
	}
	if err := godotenv.Load(envPath); err != nil {
		return fmt.Errorf("load env file %q: %w", envPath, err)
	}
	return nil
}

// EnsureDirectories creates the directories the CLI writes into.
func (c *Config) EnsureDirectories() error {
	dirs := []string{
		c.Paths.LogDir,
		filepath.Dir(c.Paths.PreferencesFile),
		filepath.Dir(c.Paths.HistoryDB),
		filepath.Dir(c.Paths.LockFile),
	}
	for _, dir := range dirs {
		if strings.TrimSpace(dir) == "" {
			continue
		}
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create directory %q: %w", dir, err)
		}
	}
	return nil
}

// ConverterEnv returns the extra environment handed to the converter process.
func (c *Config) ConverterEnv() []string {
	env := make([]string, 0, len(c.Converter.ExtraEnv)+1)
	env = append(env, c.Converter.ExtraEnv...)
	if c.Converter.HFToken != "" {
		env = append(env, "HUGGING_FACE_HUB_TOKEN="+c.Converter.HFToken)
	}
	return env
}

func expandPath(pathValue string) (string, error) {
	if pathValue == "" {
		return pathValue, nil
	}
	if strings.HasPrefix(pathValue, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home directory: %w", err)
		}
		if pathValue == "~" {
			pathValue = home
		} else if len(pathValue) > 1 && (pathValue[1] == '/' || pathValue[1] == '\\') {
			pathValue = filepath.Join(home, pathValue[2:])
		}
	}
	cleaned := filepath.Clean(pathValue)
	absolute, err := filepath.Abs(cleaned)
	if err != nil {
		return "", fmt.Errorf("resolve absolute path for %q: %w", cleaned, err)
	}
	return absolute, nil
}

// ExpandPath exposes the repository path expansion rules for other packages.
func ExpandPath(pathValue string) (string, error) {
	return expandPath(pathValue)
}

// CreateSample writes a sample configuration file to the specified location.
func CreateSample(path string) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create config directory: %w", err)
		}
	}

	if err := os.WriteFile(path, []byte(sampleConfig), 0o644); err != nil {
		return fmt.Errorf("write sample config: %w", err)
	}
	return nil
}

// Encode serializes cfg as TOML.
func Encode(cfg *Config) ([]byte, error) {
	data, err := toml.Marshal(cfg)
	if err != nil {
		return nil, fmt.Errorf("encode config: %w", err)
	}
	return data, nil
}
