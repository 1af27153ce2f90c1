package config

import (
	"errors"
	"fmt"
	"strings"
)

// Validate ensures the configuration is usable.
func (c *Config) Validate() error {
	var errs []error
	switch c.Logging.Format {
	case "console", "json":
	default:
		errs = append(errs, fmt.Errorf("logging.format: unsupported value %q", c.Logging.Format))
	}
	switch c.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		errs = append(errs, fmt.Errorf("logging.level: unsupported value %q", c.Logging.Level))
	}
	for _, entry := range c.Converter.ExtraEnv {
		key, _, ok := strings.Cut(entry, "=")
		if !ok || strings.TrimSpace(key) == "" {
			errs = append(errs, fmt.Errorf("converter.extra_env: entry %q must be KEY=VALUE", entry))
		}
	}
	if c.Paths.PreferencesFile == c.Paths.HistoryDB {
		errs = append(errs, errors.New("paths.preferences_file and paths.history_db must differ"))
	}
	return errors.Join(errs...)
}
