package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"guernika/internal/prefs"
)

func newPrefsCommand(ctx *commandContext) *cobra.Command {
	prefsCmd := &cobra.Command{
		Use:   "prefs",
		Short: "Inspect the remembered conversion settings",
	}

	prefsCmd.AddCommand(&cobra.Command{
		Use:   "show",
		Short: "Show the stored preferences",
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := ctx.prefsStore()
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), renderKeyValues("Setting", "Value", preferencePairs(store.Load())))
			return nil
		},
	})

	prefsCmd.AddCommand(&cobra.Command{
		Use:   "path",
		Short: "Print the preferences file location",
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := ctx.prefsStore()
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), store.Path())
			return nil
		},
	})

	prefsCmd.AddCommand(&cobra.Command{
		Use:   "reset",
		Short: "Restore the default preferences",
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := ctx.prefsStore()
			if err != nil {
				return err
			}
			if err := store.Save(store.Defaults()); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Preferences reset at %s\n", store.Path())
			return nil
		},
	})

	return prefsCmd
}

func preferencePairs(doc prefs.Document) [][2]string {
	return [][2]string{
		{"last_model_version", doc.LastModelVersion},
		{"convert_unet", yesNo(doc.ConvertUNet)},
		{"chunk_unet", yesNo(doc.ChunkUNet)},
		{"controlnet_support", yesNo(doc.ControlNetSupport)},
		{"convert_text_encoder", yesNo(doc.ConvertTextEncoder)},
		{"convert_vae_encoder", yesNo(doc.ConvertVAEEncoder)},
		{"convert_vae_decoder", yesNo(doc.ConvertVAEDecoder)},
		{"convert_safety_checker", yesNo(doc.ConvertSafetyChecker)},
		{"compute_unit", doc.ComputeUnit},
		{"from_safetensors", yesNo(doc.FromSafetensors)},
		{"last_model_location", doc.LastModelLocation},
		{"last_checkpoint_path", doc.LastCheckpointPath},
		{"last_output_folder", doc.LastOutputFolder},
		{"last_controlnet_version", orNone(doc.LastControlNetVersion)},
	}
}

func orNone(value string) string {
	if strings.TrimSpace(value) == "" {
		return "(none)"
	}
	return value
}
