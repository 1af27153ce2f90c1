package main

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"guernika/internal/converter"
	"guernika/internal/history"
	"guernika/internal/job"
	"guernika/internal/metrics"
	"guernika/internal/preflight"
	"guernika/internal/services"
	"guernika/internal/workflow"
)

type convertFlags struct {
	model             string
	modelDir          string
	checkpoint        string
	originalConfig    string
	safetensors       bool
	unet              bool
	chunkUNet         bool
	controlNetSupport bool
	textEncoder       bool
	vaeEncoder        bool
	vaeDecoder        bool
	safetyChecker     bool
	all               bool
	none              bool
	controlNetVersion string
	width             string
	height            string
	computeUnit       string
	output            string
}

func newConvertCommand(ctx *commandContext) *cobra.Command {
	var flags convertFlags

	cmd := &cobra.Command{
		Use:   "convert [model-id]",
		Short: "Convert a Stable Diffusion model to Core ML",
		Long: "Convert a Hugging Face model, a local diffusers directory, or a single checkpoint file.\n" +
			"Options not given on the command line default to the settings of the last successful conversion.",
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if flags.all && flags.none {
				return errors.New("--all and --none cannot be combined")
			}
			if len(args) == 1 {
				if cmd.Flags().Changed("model") {
					return errors.New("pass the model id either as an argument or with --model")
				}
				flags.model = args[0]
				_ = cmd.Flags().Set("model", args[0])
			}

			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			logger, err := ctx.ensureLogger()
			if err != nil {
				return err
			}
			store, err := ctx.prefsStore()
			if err != nil {
				return err
			}
			prober, err := ctx.prober()
			if err != nil {
				return err
			}

			session := job.NewSession(store.Load().RawInput())
			applyConvertFlags(cmd, &flags, session)
			raw := session.Raw()

			if !session.DependentControlsEnabled() && (cmd.Flags().Changed("chunk-unet") || cmd.Flags().Changed("controlnet-support")) {
				fmt.Fprintln(cmd.ErrOrStderr(), "Warning: --chunk-unet and --controlnet-support are ignored without --unet")
			}
			if strings.TrimSpace(raw.OutputDir) != "" {
				if check := preflight.CheckDestination(raw.OutputDir); !check.Passed {
					fmt.Fprintf(cmd.ErrOrStderr(), "Warning: %s\n", check.Detail)
				}
			}

			busy := newBusyRenderer(cmd.ErrOrStderr(), conversionLabel(raw))
			conv, err := converter.New(cfg, logger, converter.WithLineHandler(busy.Line))
			if err != nil {
				return err
			}

			opts := []workflow.Option{
				workflow.WithBusyObserver(busy),
				workflow.WithLockFile(cfg.Paths.LockFile),
			}
			if strings.TrimSpace(cfg.Metrics.TextfilePath) != "" {
				opts = append(opts, workflow.WithMetrics(metrics.New(), cfg.Metrics.TextfilePath))
			}

			return ctx.withHistory(cmd.Context(), func(hist *history.Store) error {
				orchestrator, err := workflow.New(store, prober, conv, logger, append(opts, workflow.WithHistory(hist))...)
				if err != nil {
					return err
				}
				outcome := orchestrator.Submit(cmd.Context(), raw)
				return reportOutcome(cmd, outcome)
			})
		},
	}

	f := cmd.Flags()
	f.StringVarP(&flags.model, "model", "m", "", "Hugging Face model id")
	f.StringVar(&flags.modelDir, "model-dir", "", "Local diffusers model directory")
	f.StringVar(&flags.checkpoint, "checkpoint", "", "Checkpoint file (.ckpt or .safetensors)")
	f.StringVar(&flags.originalConfig, "original-config", "", "Original config YAML for the checkpoint")
	f.BoolVar(&flags.safetensors, "safetensors", false, "Checkpoint is in safetensors format")
	f.BoolVar(&flags.unet, "unet", false, "Convert the UNet")
	f.BoolVar(&flags.chunkUNet, "chunk-unet", false, "Split the UNet into two chunks (requires --unet)")
	f.BoolVar(&flags.controlNetSupport, "controlnet-support", false, "Build the UNet with ControlNet inputs (requires --unet)")
	f.BoolVar(&flags.textEncoder, "text-encoder", false, "Convert the text encoder")
	f.BoolVar(&flags.vaeEncoder, "vae-encoder", false, "Convert the VAE encoder")
	f.BoolVar(&flags.vaeDecoder, "vae-decoder", false, "Convert the VAE decoder")
	f.BoolVar(&flags.safetyChecker, "safety-checker", false, "Convert the safety checker")
	f.BoolVar(&flags.all, "all", false, "Convert every module")
	f.BoolVar(&flags.none, "none", false, "Start from no modules; combine with module flags")
	f.StringVar(&flags.controlNetVersion, "controlnet", "", "ControlNet model id to convert alongside (applies to this run only)")
	f.StringVar(&flags.width, "width", "", "Output image width")
	f.StringVar(&flags.height, "height", "", "Output image height")
	f.StringVar(&flags.computeUnit, "compute-unit", "", "Compute units: "+computeUnitList())
	f.StringVarP(&flags.output, "output", "o", "", "Output folder")

	return cmd
}

// applyConvertFlags overlays explicitly set flags onto the session. Unset
// flags keep the remembered preference.
func applyConvertFlags(cmd *cobra.Command, flags *convertFlags, session *job.Session) {
	changed := cmd.Flags().Changed

	if changed("model") {
		session.SetModelVersion(flags.model)
	}
	if changed("model-dir") {
		session.SelectModelDirectory(flags.modelDir)
	}
	if changed("checkpoint") {
		session.SelectCheckpoint(flags.checkpoint)
	}
	if changed("original-config") {
		session.SetOriginalConfig(flags.originalConfig)
	}
	if flags.all {
		session.SetAllModules(true)
	}
	if flags.none {
		session.SetAllModules(false)
		session.Update(func(r *job.RawInput) {
			r.ChunkUNet = false
			r.ControlNetSupport = false
		})
	}

	session.Update(func(r *job.RawInput) {
		setBool := func(name string, dst *bool, value bool) {
			if changed(name) {
				*dst = value
			}
		}
		setString := func(name string, dst *string, value string) {
			if changed(name) {
				*dst = value
			}
		}
		setBool("safetensors", &r.FromSafetensors, flags.safetensors)
		setBool("unet", &r.ConvertUNet, flags.unet)
		setBool("chunk-unet", &r.ChunkUNet, flags.chunkUNet)
		setBool("controlnet-support", &r.ControlNetSupport, flags.controlNetSupport)
		setBool("text-encoder", &r.ConvertTextEncoder, flags.textEncoder)
		setBool("vae-encoder", &r.ConvertVAEEncoder, flags.vaeEncoder)
		setBool("vae-decoder", &r.ConvertVAEDecoder, flags.vaeDecoder)
		setBool("safety-checker", &r.ConvertSafetyChecker, flags.safetyChecker)
		setString("controlnet", &r.ControlNetVersion, flags.controlNetVersion)
		setString("width", &r.Width, flags.width)
		setString("height", &r.Height, flags.height)
		setString("compute-unit", &r.ComputeUnit, flags.computeUnit)
		setString("output", &r.OutputDir, flags.output)
	})
}

func reportOutcome(cmd *cobra.Command, outcome workflow.Outcome) error {
	out := cmd.OutOrStdout()
	errOut := cmd.ErrOrStderr()

	switch outcome.Kind {
	case workflow.OutcomeSucceeded:
		fmt.Fprintln(out, outcome.Message)
		fmt.Fprintf(out, "Elapsed: %s\n", outcome.Elapsed.Round(time.Second))
		if outcome.Warning != nil {
			fmt.Fprintf(errOut, "Warning: preferences were not saved: %v\n", outcome.Warning)
		}
		return nil
	case workflow.OutcomeBlocked:
		if errors.Is(outcome.Err, services.ErrToolchainUnavailable) {
			fmt.Fprintln(errOut, preflight.RemediationHint)
		}
		return fmt.Errorf("%s", outcome.Message)
	case workflow.OutcomeInvalid:
		return fmt.Errorf("invalid options: %w", outcome.Err)
	default:
		return fmt.Errorf("conversion failed (job %s): %w", outcome.JobID, outcome.Err)
	}
}

func conversionLabel(raw job.RawInput) string {
	for _, candidate := range []string{raw.CheckpointPath, raw.ModelLocation, raw.ModelVersion} {
		if strings.TrimSpace(candidate) != "" {
			return "Converting " + strings.TrimSpace(candidate)
		}
	}
	return "Converting"
}

func computeUnitList() string {
	names := make([]string, 0, len(job.ComputeUnits))
	for _, unit := range job.ComputeUnits {
		names = append(names, string(unit))
	}
	return strings.Join(names, ", ")
}
