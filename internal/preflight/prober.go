package preflight

import (
	"context"
	"log/slog"
	"os"
	"strings"
	"sync"
	"time"

	"guernika/internal/config"
	"guernika/internal/deps"
	"guernika/internal/logging"
)

// RemediationHint tells the user how to make the Core ML compiler available.
const RemediationHint = "Xcode and its command line tools are required to compile Core ML models. " +
	"Install Xcode from the App Store, then run: " +
	"sudo xcode-select --switch /Applications/Xcode.app/Contents/Developer/"

// CapabilityStatus is a snapshot of the environment probes.
type CapabilityStatus struct {
	CompanionApp     bool
	CompanionAppPath string
	Toolchain        bool
	ToolchainDetail  string
	ToolchainProbed  bool
}

// Prober runs the environment probes. It is safe for concurrent use.
type Prober struct {
	appPath    string
	binary     string
	subcommand string
	timeout    time.Duration
	logger     *slog.Logger

	mu        sync.Mutex
	probed    bool
	toolchain bool
	detail    string
}

// NewProber builds a Prober from the capabilities section of cfg.
func NewProber(cfg *config.Config, logger *slog.Logger) *Prober {
	if logger == nil {
		logger = logging.NewNop()
	}
	caps := config.Default().Capabilities
	if cfg != nil {
		caps = cfg.Capabilities
	}
	timeout := time.Duration(caps.ProbeTimeoutSeconds) * time.Second
	return &Prober{
		appPath:    strings.TrimSpace(caps.CompanionAppPath),
		binary:     strings.TrimSpace(caps.ToolchainBinary),
		subcommand: strings.TrimSpace(caps.CompilerSubcommand),
		timeout:    timeout,
		logger:     logging.NewComponentLogger(logger, "preflight"),
	}
}

// CompanionAppPresent reports whether the companion app exists on disk.
// It is checked fresh on every call.
func (p *Prober) CompanionAppPresent() bool {
	if p.appPath == "" {
		return false
	}
	_, err := os.Stat(p.appPath)
	return err == nil
}

// ToolchainProbed reports whether a toolchain result is cached.
func (p *Prober) ToolchainProbed() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.probed
}

// ToolchainPresent returns the cached toolchain result, probing once on first use.
func (p *Prober) ToolchainPresent() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.probed {
		p.probeLocked()
	}
	return p.toolchain
}

// RefreshToolchain re-runs the toolchain probe and updates the cache.
func (p *Prober) RefreshToolchain() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.probeLocked()
	return p.toolchain
}

// Status returns a snapshot without triggering a probe that has not run yet.
func (p *Prober) Status() CapabilityStatus {
	p.mu.Lock()
	defer p.mu.Unlock()
	return CapabilityStatus{
		CompanionApp:     p.CompanionAppPresent(),
		CompanionAppPath: p.appPath,
		Toolchain:        p.toolchain,
		ToolchainDetail:  p.detail,
		ToolchainProbed:  p.probed,
	}
}

// probeLocked requires the driver query and the compiler query to succeed.
func (p *Prober) probeLocked() {
	queries := []deps.Requirement{
		{Name: "xcrun", Command: p.binary, Args: []string{"--version"}},
		{Name: "coremlcompiler", Command: p.binary, Args: []string{p.subcommand, "version"}},
	}
	p.probed = true
	p.toolchain = true
	p.detail = "available"
	for _, query := range queries {
		status := deps.RunVersionQuery(context.Background(), query, p.timeout)
		if !status.Available {
			p.toolchain = false
			p.detail = status.Detail
			break
		}
	}
	p.logger.Debug("toolchain probe finished",
		logging.Bool("available", p.toolchain),
		logging.String("detail", p.detail),
	)
}
