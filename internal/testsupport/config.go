package testsupport

import (
	"os"
	"path/filepath"
	"testing"

	"guernika/internal/config"
)

// ConfigOption allows callers to customize the generated test configuration.
type ConfigOption func(*configBuilder)

type configBuilder struct {
	t       testing.TB
	baseDir string
	cfg     *config.Config
	onPath  bool
}

// NewConfig produces a config seeded with unique temp directories per test.
// It defaults common fields and applies any provided options.
func NewConfig(t testing.TB, opts ...ConfigOption) *config.Config {
	t.Helper()

	base := t.TempDir()
	cfgVal := config.Default()
	cfgVal.Paths.PreferencesFile = filepath.Join(base, "config", "preferences.toml")
	cfgVal.Paths.LogDir = filepath.Join(base, "logs")
	cfgVal.Paths.HistoryDB = filepath.Join(base, "data", "history.db")
	cfgVal.Paths.LockFile = filepath.Join(base, "data", "convert.lock")
	cfgVal.Capabilities.CompanionAppPath = filepath.Join(base, "Applications", "Guernika.app")
	cfgVal.Capabilities.ProbeTimeoutSeconds = 5

	builder := &configBuilder{
		t:       t,
		baseDir: base,
		cfg:     &cfgVal,
	}

	for _, opt := range opts {
		opt(builder)
	}

	return builder.cfg
}

// WithCompanionApp creates the companion app bundle directory.
func WithCompanionApp() ConfigOption {
	return func(b *configBuilder) {
		if err := os.MkdirAll(b.cfg.Capabilities.CompanionAppPath, 0o755); err != nil {
			b.t.Fatalf("mkdir companion app: %v", err)
		}
	}
}

// WithStubbedBinaries writes stub executables for the provided names and
// prepends them to PATH. If names is empty, xcrun and python3 are stubbed.
func WithStubbedBinaries(names ...string) ConfigOption {
	return func(b *configBuilder) {
		if len(names) == 0 {
			names = []string{"xcrun", "python3"}
		}
		for _, name := range names {
			writeStub(b, name, "exit 0")
		}
		prependPath(b)
	}
}

// WithStubScript writes a stub executable named name running the given shell
// body and prepends the stub directory to PATH.
func WithStubScript(name, body string) ConfigOption {
	return func(b *configBuilder) {
		writeStub(b, name, body)
		prependPath(b)
	}
}

func binDir(b *configBuilder) string {
	return filepath.Join(b.baseDir, "bin")
}

func writeStub(b *configBuilder, name, body string) {
	dir := binDir(b)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		b.t.Fatalf("mkdir bin dir: %v", err)
	}
	script := []byte("#!/bin/sh\n" + body + "\n")
	if err := os.WriteFile(filepath.Join(dir, name), script, 0o755); err != nil {
		b.t.Fatalf("write stub %s: %v", name, err)
	}
}

func prependPath(b *configBuilder) {
	if b.onPath {
		return
	}
	b.onPath = true
	dir := binDir(b)
	oldPath := os.Getenv("PATH")
	if err := os.Setenv("PATH", dir+string(os.PathListSeparator)+oldPath); err != nil {
		b.t.Fatalf("set PATH: %v", err)
	}
	b.t.Cleanup(func() {
		_ = os.Setenv("PATH", oldPath)
	})
}

// BaseDir returns the root temp directory backing the generated config.
func BaseDir(cfg *config.Config) string {
	return filepath.Dir(cfg.Paths.LogDir)
}

// WriteConfig serializes cfg to a TOML file under its base directory and
// returns the path.
func WriteConfig(t testing.TB, cfg *config.Config) string {
	t.Helper()
	path := filepath.Join(BaseDir(cfg), "config.toml")
	data, err := config.Encode(cfg)
	if err != nil {
		t.Fatalf("encode config: %v", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}
