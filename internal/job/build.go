package job

import (
	"fmt"
	"path/filepath"
	"strconv"
	"strings"

	"guernika/internal/services"
)

// ValidationError reports insufficient or malformed input. No job is attempted.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// Unwrap ties validation failures to services.ErrValidation.
func (e *ValidationError) Unwrap() error {
	return services.ErrValidation
}

// Defaults carries the stored preferences Build falls back to.
type Defaults struct {
	ModelVersion string
	ComputeUnit  string
}

// Build validates raw input and assembles a Descriptor. It fails only when no
// model source resolves, the output size is malformed, or the destination is
// missing.
func Build(raw RawInput, defaults Defaults) (Descriptor, error) {
	source, err := resolveSource(raw, defaults)
	if err != nil {
		return Descriptor{}, err
	}

	size, err := parseOutputSize(raw.Width, raw.Height)
	if err != nil {
		return Descriptor{}, err
	}

	outputDir := strings.TrimSpace(raw.OutputDir)
	if outputDir == "" {
		return Descriptor{}, &ValidationError{Field: "destination", Reason: "no output folder selected"}
	}

	modules := Modules{
		UNet:              raw.ConvertUNet,
		ChunkUNet:         raw.ChunkUNet,
		ControlNetSupport: raw.ControlNetSupport,
		TextEncoder:       raw.ConvertTextEncoder,
		VAEEncoder:        raw.ConvertVAEEncoder,
		VAEDecoder:        raw.ConvertVAEDecoder,
		SafetyChecker:     raw.ConvertSafetyChecker,
	}.gated()

	return Descriptor{
		Source:            source,
		FromSafetensors:   raw.FromSafetensors,
		Modules:           modules,
		ControlNetVersion: strings.TrimSpace(raw.ControlNetVersion),
		OutputSize:        size,
		ComputeUnit:       resolveComputeUnit(raw.ComputeUnit, defaults.ComputeUnit),
		OutputDir:         filepath.Clean(outputDir),
	}, nil
}

func resolveSource(raw RawInput, defaults Defaults) (ModelSource, error) {
	if checkpoint := strings.TrimSpace(raw.CheckpointPath); checkpoint != "" {
		config := strings.TrimSpace(raw.OriginalConfigFile)
		if config == "" {
			config = findCompanionConfig(checkpoint)
		}
		return Checkpoint(checkpoint, config), nil
	}
	if dir := strings.TrimSpace(raw.ModelLocation); dir != "" {
		return LocalModel(dir), nil
	}
	if id := strings.TrimSpace(raw.ModelVersion); id != "" {
		return RemoteModel(id), nil
	}
	if id := strings.TrimSpace(defaults.ModelVersion); id != "" {
		return RemoteModel(id), nil
	}
	return ModelSource{}, &ValidationError{Field: "model", Reason: "choose a model identifier, a local model, or a checkpoint"}
}

func parseOutputSize(width, height string) (OutputSize, error) {
	width = strings.TrimSpace(width)
	height = strings.TrimSpace(height)
	if width == "" && height == "" {
		return OutputSize{}, nil
	}
	w, err := parseDimension("width", width)
	if err != nil {
		return OutputSize{}, err
	}
	h, err := parseDimension("height", height)
	if err != nil {
		return OutputSize{}, err
	}
	return OutputSize{Width: w, Height: h}, nil
}

func parseDimension(field, value string) (int, error) {
	if value == "" {
		return 0, &ValidationError{Field: "output size", Reason: field + " is required when the other dimension is set"}
	}
	n, err := strconv.Atoi(value)
	if err != nil || n <= 0 {
		return 0, &ValidationError{Field: "output size", Reason: fmt.Sprintf("%s %q is not a positive integer", field, value)}
	}
	return n, nil
}

func resolveComputeUnit(value, fallback string) ComputeUnit {
	if unit, ok := ParseComputeUnit(value); ok {
		return unit
	}
	if unit, ok := ParseComputeUnit(fallback); ok {
		return unit
	}
	return ComputeCPUAndNE
}
