package prefs

import (
	"os"

	"guernika/internal/job"
)

const defaultModelVersion = "CompVis/stable-diffusion-v1-4"

// Document is the fixed preferences schema.
type Document struct {
	LastModelVersion      string `toml:"last_model_version"`
	ConvertUNet           bool   `toml:"convert_unet"`
	ChunkUNet             bool   `toml:"chunk_unet"`
	ControlNetSupport     bool   `toml:"controlnet_support"`
	ConvertTextEncoder    bool   `toml:"convert_text_encoder"`
	ConvertVAEEncoder     bool   `toml:"convert_vae_encoder"`
	ConvertVAEDecoder     bool   `toml:"convert_vae_decoder"`
	ConvertSafetyChecker  bool   `toml:"convert_safety_checker"`
	ComputeUnit           string `toml:"compute_unit"`
	FromSafetensors       bool   `toml:"from_safetensors"`
	LastModelLocation     string `toml:"last_model_location"`
	LastCheckpointPath    string `toml:"last_checkpoint_path"`
	LastOutputFolder      string `toml:"last_output_folder"`
	LastControlNetVersion string `toml:"last_controlnet_version"`
}

// Default returns the document used for keys absent from disk. Location
// keys default to home.
func Default(home string) Document {
	return Document{
		LastModelVersion:     defaultModelVersion,
		ConvertUNet:          true,
		ChunkUNet:            false,
		ControlNetSupport:    true,
		ConvertTextEncoder:   true,
		ConvertVAEEncoder:    true,
		ConvertVAEDecoder:    true,
		ConvertSafetyChecker: false,
		ComputeUnit:          string(job.ComputeCPUAndNE),
		FromSafetensors:      false,
		LastModelLocation:    home,
		LastCheckpointPath:   home,
		LastOutputFolder:     home,
	}
}

func homeDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return home
}

// Apply returns a copy of d updated with the settings of a job that just
// succeeded. The remote identifier is only remembered for remote sources so a
// local selection does not overwrite it.
func (d Document) Apply(desc job.Descriptor) Document {
	d.ConvertUNet = desc.Modules.UNet
	d.ChunkUNet = desc.Modules.ChunkUNet
	d.ControlNetSupport = desc.Modules.ControlNetSupport
	d.ConvertTextEncoder = desc.Modules.TextEncoder
	d.ConvertVAEEncoder = desc.Modules.VAEEncoder
	d.ConvertVAEDecoder = desc.Modules.VAEDecoder
	d.ConvertSafetyChecker = desc.Modules.SafetyChecker
	d.ComputeUnit = string(desc.ComputeUnit)
	d.FromSafetensors = desc.FromSafetensors
	d.LastOutputFolder = desc.OutputDir
	d.LastControlNetVersion = desc.ControlNetVersion

	switch desc.Source.Kind {
	case job.SourceRemoteID:
		d.LastModelVersion = desc.Source.Identifier
	case job.SourceLocalDir:
		d.LastModelLocation = desc.Source.Path
	case job.SourceCheckpoint:
		d.LastCheckpointPath = desc.Source.Path
	}
	return d
}

// JobDefaults exposes the fallbacks the descriptor builder needs.
func (d Document) JobDefaults() job.Defaults {
	return job.Defaults{ModelVersion: d.LastModelVersion, ComputeUnit: d.ComputeUnit}
}

// RawInput prefills a front-end session. Local selections start empty; the
// remembered locations only seed the file pickers. The auxiliary ControlNet is
// never carried over, so a later run does not convert it again unasked.
func (d Document) RawInput() job.RawInput {
	return job.RawInput{
		ModelVersion:         d.LastModelVersion,
		FromSafetensors:      d.FromSafetensors,
		ConvertUNet:          d.ConvertUNet,
		ChunkUNet:            d.ChunkUNet,
		ControlNetSupport:    d.ControlNetSupport,
		ConvertTextEncoder:   d.ConvertTextEncoder,
		ConvertVAEEncoder:    d.ConvertVAEEncoder,
		ConvertVAEDecoder:    d.ConvertVAEDecoder,
		ConvertSafetyChecker: d.ConvertSafetyChecker,
		ComputeUnit:          d.ComputeUnit,
		OutputDir:            d.LastOutputFolder,
	}
}
