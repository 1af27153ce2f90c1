package converter

import (
	"strconv"

	"guernika/internal/job"
)

const (
	textEncoderVocabularyURL = "https://huggingface.co/openai/clip-vit-base-patch32/resolve/main/vocab.json"
	textEncoderMergesURL     = "https://huggingface.co/openai/clip-vit-base-patch32/resolve/main/merges.txt"
)

// Args returns the torch2coreml arguments for desc. Boolean options are
// passed as presence flags.
func Args(desc job.Descriptor) []string {
	var args []string

	switch desc.Source.Kind {
	case job.SourceRemoteID:
		args = append(args, "--model-version", desc.Source.Identifier)
	case job.SourceLocalDir:
		args = append(args, "--model-location", desc.Source.Path)
	case job.SourceCheckpoint:
		args = append(args, "--checkpoint-path", desc.Source.Path)
		if desc.Source.ConfigFile != "" {
			args = append(args, "--original-config-file", desc.Source.ConfigFile)
		}
	}
	args = appendFlag(args, "--from-safetensors", desc.FromSafetensors)

	mods := desc.Modules
	args = appendFlag(args, "--convert-unet", mods.UNet)
	args = appendFlag(args, "--chunk-unet", mods.ChunkUNet)
	args = appendFlag(args, "--controlnet-support", mods.ControlNetSupport)
	args = appendFlag(args, "--convert-text-encoder", mods.TextEncoder)
	args = appendFlag(args, "--convert-vae-encoder", mods.VAEEncoder)
	args = appendFlag(args, "--convert-vae-decoder", mods.VAEDecoder)
	args = appendFlag(args, "--convert-safety-checker", mods.SafetyChecker)

	if desc.ControlNetVersion != "" {
		args = append(args, "--controlnet-version", desc.ControlNetVersion)
	}
	if desc.OutputSize.IsSet() {
		args = append(args,
			"--output-h", strconv.Itoa(desc.OutputSize.Height),
			"--output-w", strconv.Itoa(desc.OutputSize.Width),
		)
	}

	args = append(args,
		"--compute-unit", string(desc.ComputeUnit),
		"--attention-implementation", string(desc.Attention()),
		"--bundle-resources-for-guernika",
		"--resources-dir-name", desc.ResourcesDirName(),
		"--clean-up-mlpackages",
		"--text-encoder-vocabulary-url", textEncoderVocabularyURL,
		"--text-encoder-merges-url", textEncoderMergesURL,
		"-o", desc.OutputDir,
	)
	return args
}

func appendFlag(args []string, flag string, enabled bool) []string {
	if enabled {
		return append(args, flag)
	}
	return args
}
