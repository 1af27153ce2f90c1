package preflight

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"golang.org/x/sys/unix"

	"guernika/internal/config"
	"guernika/internal/deps"
)

// Result reports the outcome of a single preflight check.
type Result struct {
	Name   string
	Passed bool
	Detail string
}

// RunAll collects the advisory checks shown by the status command.
func RunAll(prober *Prober, destination string) []Result {
	if prober == nil {
		return nil
	}

	results := []Result{CompanionAppResult(prober)}
	results = append(results, ToolchainResult(prober))
	if strings.TrimSpace(destination) != "" {
		results = append(results, CheckDestination(destination))
	}
	return results
}

// CompanionAppResult renders the companion-app probe as a check result.
func CompanionAppResult(prober *Prober) Result {
	const name = "Guernika app"
	if prober.CompanionAppPresent() {
		return Result{Name: name, Passed: true, Detail: prober.appPath}
	}
	return Result{Name: name, Detail: fmt.Sprintf("%s (not installed)", prober.appPath)}
}

// ToolchainResult renders the cached toolchain probe as a check result.
func ToolchainResult(prober *Prober) Result {
	const name = "Core ML compiler"
	present := prober.ToolchainPresent()
	status := prober.Status()
	if present {
		return Result{Name: name, Passed: true, Detail: status.ToolchainDetail}
	}
	return Result{Name: name, Detail: status.ToolchainDetail}
}

// CheckDirectoryAccess verifies that the directory exists and is readable/writable.
func CheckDirectoryAccess(name, path string) Result {
	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return Result{Name: name, Detail: fmt.Sprintf("%s (error: does not exist)", path)}
		}
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: stat: %v)", path, err)}
	}
	if !info.IsDir() {
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: is not a directory)", path)}
	}
	if err := unix.Access(path, unix.R_OK|unix.W_OK|unix.X_OK); err != nil {
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: insufficient permissions: %v)", path, err)}
	}
	return Result{Name: name, Passed: true, Detail: fmt.Sprintf("%s (read/write ok)", path)}
}

// CheckDestination checks an output folder. A folder that does not exist yet
// passes when its nearest existing parent is writable, since the converter
// creates it.
func CheckDestination(path string) Result {
	const name = "Output folder"
	path = filepath.Clean(path)
	if _, err := os.Stat(path); err == nil {
		return CheckDirectoryAccess(name, path)
	} else if !errors.Is(err, fs.ErrNotExist) {
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: stat: %v)", path, err)}
	}

	parent := filepath.Dir(path)
	for {
		if _, err := os.Stat(parent); err == nil {
			break
		}
		next := filepath.Dir(parent)
		if next == parent {
			break
		}
		parent = next
	}
	if err := unix.Access(parent, unix.W_OK|unix.X_OK); err != nil {
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: cannot create under %s: %v)", path, parent, err)}
	}
	return Result{Name: name, Passed: true, Detail: fmt.Sprintf("%s (will be created)", path)}
}

// CheckSystemDeps reports whether the converter's commands resolve on PATH.
func CheckSystemDeps(cfg *config.Config) []deps.Status {
	requirements := []deps.Requirement{
		{
			Name:        "Python",
			Command:     cfg.Converter.PythonBinary,
			Description: "Runs the Core ML conversion module",
		},
		{
			Name:        "xcrun",
			Command:     cfg.Capabilities.ToolchainBinary,
			Description: "Locates the Core ML compiler",
		},
	}
	return deps.CheckBinaries(requirements)
}
