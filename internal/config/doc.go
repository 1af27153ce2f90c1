// Package config loads, normalizes, and validates converter configuration.
//
// It supplies repository defaults, expands user paths (including tilde
// shortcuts), reads TOML files, loads a .env file next to the config, and
// honours environment fallbacks such as HF_TOKEN. The Config type centralizes
// every knob the CLI needs: where preferences and history live, how the
// Python converter is launched, and which tools the capability probes look for.
//
// Always obtain settings through this package so downstream code receives
// sanitized paths and clear validation errors.
package config
