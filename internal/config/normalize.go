package config

import (
	"fmt"
	"os"
	"strings"
)

func (c *Config) normalize() error {
	if err := c.normalizePaths(); err != nil {
		return err
	}
	c.normalizeConverter()
	c.normalizeCapabilities()
	c.normalizeLogging()
	return c.normalizeMetrics()
}

func (c *Config) normalizePaths() error {
	fields := []struct {
		key      string
		value    *string
		fallback string
	}{
		{"paths.preferences_file", &c.Paths.PreferencesFile, defaultPreferencesFile},
		{"paths.log_dir", &c.Paths.LogDir, defaultLogDir},
		{"paths.history_db", &c.Paths.HistoryDB, defaultHistoryDB},
		{"paths.lock_file", &c.Paths.LockFile, defaultLockFile},
	}
	for _, field := range fields {
		if strings.TrimSpace(*field.value) == "" {
			*field.value = field.fallback
		}
		expanded, err := expandPath(strings.TrimSpace(*field.value))
		if err != nil {
			return fmt.Errorf("%s: %w", field.key, err)
		}
		*field.value = expanded
	}
	return nil
}

func (c *Config) normalizeConverter() {
	c.Converter.PythonBinary = strings.TrimSpace(c.Converter.PythonBinary)
	if c.Converter.PythonBinary == "" {
		c.Converter.PythonBinary = defaultPythonBinary
	}
	c.Converter.Module = strings.TrimSpace(c.Converter.Module)
	if c.Converter.Module == "" {
		c.Converter.Module = defaultConverterModule
	}
	env := make([]string, 0, len(c.Converter.ExtraEnv))
	for _, entry := range c.Converter.ExtraEnv {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}
		env = append(env, entry)
	}
	c.Converter.ExtraEnv = env
	c.Converter.HFToken = strings.TrimSpace(c.Converter.HFToken)
	if c.Converter.HFToken == "" {
		if value, ok := os.LookupEnv("HUGGING_FACE_HUB_TOKEN"); ok {
			c.Converter.HFToken = strings.TrimSpace(value)
		} else if value, ok := os.LookupEnv("HF_TOKEN"); ok {
			c.Converter.HFToken = strings.TrimSpace(value)
		}
	}
}

func (c *Config) normalizeCapabilities() {
	c.Capabilities.CompanionAppPath = strings.TrimSpace(c.Capabilities.CompanionAppPath)
	if c.Capabilities.CompanionAppPath == "" {
		c.Capabilities.CompanionAppPath = defaultCompanionAppPath
	}
	c.Capabilities.CompanionAppURL = strings.TrimSpace(c.Capabilities.CompanionAppURL)
	if c.Capabilities.CompanionAppURL == "" {
		c.Capabilities.CompanionAppURL = defaultCompanionAppURL
	}
	c.Capabilities.ToolchainBinary = strings.TrimSpace(c.Capabilities.ToolchainBinary)
	if c.Capabilities.ToolchainBinary == "" {
		c.Capabilities.ToolchainBinary = defaultToolchainBinary
	}
	c.Capabilities.CompilerSubcommand = strings.TrimSpace(c.Capabilities.CompilerSubcommand)
	if c.Capabilities.CompilerSubcommand == "" {
		c.Capabilities.CompilerSubcommand = defaultCompilerSubcommand
	}
	if c.Capabilities.ProbeTimeoutSeconds <= 0 {
		c.Capabilities.ProbeTimeoutSeconds = defaultProbeTimeoutSeconds
	}
}

func (c *Config) normalizeLogging() {
	c.Logging.Format = strings.ToLower(strings.TrimSpace(c.Logging.Format))
	if c.Logging.Format == "" {
		c.Logging.Format = defaultLogFormat
	}
	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))
	if c.Logging.Level == "" {
		c.Logging.Level = defaultLogLevel
	}
}

func (c *Config) normalizeMetrics() error {
	path := strings.TrimSpace(c.Metrics.TextfilePath)
	if path == "" {
		c.Metrics.TextfilePath = ""
		return nil
	}
	expanded, err := expandPath(path)
	if err != nil {
		return fmt.Errorf("metrics.textfile_path: %w", err)
	}
	c.Metrics.TextfilePath = expanded
	return nil
}
