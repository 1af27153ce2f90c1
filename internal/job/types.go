package job

import (
	"path/filepath"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// SourceKind identifies which model-source variant a descriptor carries.
type SourceKind string

const (
	SourceRemoteID   SourceKind = "remote_id"
	SourceLocalDir   SourceKind = "local_dir"
	SourceCheckpoint SourceKind = "checkpoint"
)

// ModelSource is a tagged union: exactly one of Identifier (remote) or Path
// (local directory or checkpoint file) is meaningful, selected by Kind.
// ConfigFile is only used with checkpoints.
type ModelSource struct {
	Kind       SourceKind
	Identifier string
	Path       string
	ConfigFile string
}

// RemoteModel references a model hosted on the Hugging Face hub.
func RemoteModel(identifier string) ModelSource {
	return ModelSource{Kind: SourceRemoteID, Identifier: strings.TrimSpace(identifier)}
}

// LocalModel references a diffusers model directory on disk.
func LocalModel(dir string) ModelSource {
	return ModelSource{Kind: SourceLocalDir, Path: filepath.Clean(dir)}
}

// Checkpoint references a single checkpoint file plus an optional original config.
func Checkpoint(path, configFile string) ModelSource {
	src := ModelSource{Kind: SourceCheckpoint, Path: filepath.Clean(path)}
	if configFile = strings.TrimSpace(configFile); configFile != "" {
		src.ConfigFile = filepath.Clean(configFile)
	}
	return src
}

// Name returns the base name used for the bundled resources directory:
// the directory name, the checkpoint file name without extension, or the
// raw identifier.
func (s ModelSource) Name() string {
	switch s.Kind {
	case SourceLocalDir:
		return filepath.Base(filepath.Clean(s.Path))
	case SourceCheckpoint:
		base := filepath.Base(filepath.Clean(s.Path))
		return strings.TrimSuffix(base, filepath.Ext(base))
	default:
		return s.Identifier
	}
}

// IsLocal reports whether the source lives on disk.
func (s ModelSource) IsLocal() bool {
	return s.Kind == SourceLocalDir || s.Kind == SourceCheckpoint
}

// ComputeUnit selects the Core ML compute units the converted model targets.
type ComputeUnit string

const (
	ComputeCPUAndNE  ComputeUnit = "CPU_AND_NE"
	ComputeCPUAndGPU ComputeUnit = "CPU_AND_GPU"
	ComputeAll       ComputeUnit = "ALL"
)

// ComputeUnits lists the accepted compute units in display order.
var ComputeUnits = []ComputeUnit{ComputeCPUAndNE, ComputeCPUAndGPU, ComputeAll}

var upper = cases.Upper(language.Und)

// ParseComputeUnit normalizes user input such as "cpu-and-gpu" or "All".
func ParseComputeUnit(value string) (ComputeUnit, bool) {
	normalized := upper.String(strings.TrimSpace(value))
	normalized = strings.NewReplacer("-", "_", " ", "_").Replace(normalized)
	for _, unit := range ComputeUnits {
		if string(unit) == normalized {
			return unit, true
		}
	}
	return "", false
}

// AttentionImplementation is the UNet attention variant handed to the converter.
type AttentionImplementation string

const (
	AttentionOriginal    AttentionImplementation = "ORIGINAL"
	AttentionSplitEinsum AttentionImplementation = "SPLIT_EINSUM"
)

// Attention maps a compute unit to its attention implementation. GPU
// execution uses the original attention; the Neural Engine needs split einsum.
func (u ComputeUnit) Attention() AttentionImplementation {
	if u == ComputeCPUAndGPU {
		return AttentionOriginal
	}
	return AttentionSplitEinsum
}

// Modules selects which pipeline components are converted.
type Modules struct {
	UNet              bool
	ChunkUNet         bool
	ControlNetSupport bool
	TextEncoder       bool
	VAEEncoder        bool
	VAEDecoder        bool
	SafetyChecker     bool
}

// gated clears the UNet refinements when the UNet itself is not converted.
func (m Modules) gated() Modules {
	if !m.UNet {
		m.ChunkUNet = false
		m.ControlNetSupport = false
	}
	return m
}

// OutputSize overrides the generated image dimensions. Both values are set or neither.
type OutputSize struct {
	Width  int
	Height int
}

// IsSet reports whether an override is present.
func (s OutputSize) IsSet() bool {
	return s.Width > 0 && s.Height > 0
}

// Descriptor is the validated description of one conversion request. It is a
// value type; copies never share state.
type Descriptor struct {
	Source            ModelSource
	FromSafetensors   bool
	Modules           Modules
	ControlNetVersion string
	OutputSize        OutputSize
	ComputeUnit       ComputeUnit
	OutputDir         string
}

// Attention returns the attention implementation derived from the compute unit.
func (d Descriptor) Attention() AttentionImplementation {
	return d.ComputeUnit.Attention()
}

// ResourcesDirName returns the name of the bundled resources directory.
func (d Descriptor) ResourcesDirName() string {
	return d.Source.Name()
}
