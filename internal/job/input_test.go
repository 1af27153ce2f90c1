package job

import "testing"

func TestSessionLocalSelectionsAreExclusive(t *testing.T) {
	s := NewSession(RawInput{ModelVersion: "runwayml/stable-diffusion-v1-5"})

	s.SelectModelDirectory("/models/dreamshaper")
	raw := s.Raw()
	if raw.ModelVersion != "" {
		t.Fatalf("expected free text cleared, got %q", raw.ModelVersion)
	}
	if raw.ModelLocation != "/models/dreamshaper" {
		t.Fatalf("unexpected model location %q", raw.ModelLocation)
	}

	s.SetOriginalConfig("/models/v1.yaml")
	s.SelectCheckpoint("/ckpts/model.ckpt")
	raw = s.Raw()
	if raw.ModelLocation != "" {
		t.Fatalf("expected model location cleared, got %q", raw.ModelLocation)
	}
	if raw.CheckpointPath != "/ckpts/model.ckpt" || raw.OriginalConfigFile != "/models/v1.yaml" {
		t.Fatalf("unexpected checkpoint selection %+v", raw)
	}

	s.SelectModelDirectory("/models/other")
	raw = s.Raw()
	if raw.CheckpointPath != "" || raw.OriginalConfigFile != "" {
		t.Fatalf("expected checkpoint cleared, got %+v", raw)
	}
}

func TestSessionCancelledPickerKeepsSelection(t *testing.T) {
	s := NewSession(RawInput{})
	s.SelectCheckpoint("/ckpts/model.ckpt")
	s.SelectModelDirectory("")
	s.SelectCheckpoint("  ")
	if got := s.Raw().CheckpointPath; got != "/ckpts/model.ckpt" {
		t.Fatalf("expected checkpoint retained, got %q", got)
	}
}

func TestSessionModuleToggles(t *testing.T) {
	s := NewSession(RawInput{})
	if s.DependentControlsEnabled() {
		t.Fatal("expected dependent controls disabled without UNet")
	}
	s.SetAllModules(true)
	raw := s.Raw()
	if !raw.ConvertUNet || !raw.ConvertTextEncoder || !raw.ConvertVAEEncoder || !raw.ConvertVAEDecoder || !raw.ConvertSafetyChecker {
		t.Fatalf("expected all modules enabled, got %+v", raw)
	}
	if !s.DependentControlsEnabled() {
		t.Fatal("expected dependent controls enabled with UNet")
	}
	s.Update(func(r *RawInput) { r.ConvertSafetyChecker = false })
	s.SetAllModules(false)
	if s.Raw().ConvertUNet {
		t.Fatal("expected modules cleared")
	}
}

func TestModulesGated(t *testing.T) {
	m := Modules{UNet: false, ChunkUNet: true, ControlNetSupport: true, TextEncoder: true}.gated()
	if m.ChunkUNet || m.ControlNetSupport {
		t.Fatalf("expected refinements cleared, got %+v", m)
	}
	if !m.TextEncoder {
		t.Fatal("expected unrelated modules untouched")
	}
}
