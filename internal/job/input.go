package job

import "strings"

// RawInput bundles every user-editable field exactly as the front end holds it.
type RawInput struct {
	ModelVersion       string
	ModelLocation      string
	CheckpointPath     string
	OriginalConfigFile string
	FromSafetensors    bool

	ConvertUNet          bool
	ChunkUNet            bool
	ControlNetSupport    bool
	ConvertTextEncoder   bool
	ConvertVAEEncoder    bool
	ConvertVAEDecoder    bool
	ConvertSafetyChecker bool

	ControlNetVersion string
	Width             string
	Height            string
	ComputeUnit       string
	OutputDir         string
}

// Session owns the in-flight selections of one front-end session.
type Session struct {
	raw RawInput
}

// NewSession starts a session prefilled with the given values.
func NewSession(prefill RawInput) *Session {
	return &Session{raw: prefill}
}

// SetModelVersion records the free-text model identifier.
func (s *Session) SetModelVersion(value string) {
	s.raw.ModelVersion = value
}

// SelectModelDirectory picks a local model directory, clearing the free-text
// identifier and any checkpoint. An empty path is a cancelled picker and
// leaves the session untouched.
func (s *Session) SelectModelDirectory(dir string) {
	if strings.TrimSpace(dir) == "" {
		return
	}
	s.raw.ModelLocation = dir
	s.raw.CheckpointPath = ""
	s.raw.OriginalConfigFile = ""
	s.raw.ModelVersion = ""
}

// SelectCheckpoint picks a checkpoint file, clearing the free-text identifier
// and any model directory. An empty path leaves the session untouched.
func (s *Session) SelectCheckpoint(path string) {
	if strings.TrimSpace(path) == "" {
		return
	}
	s.raw.CheckpointPath = path
	s.raw.ModelLocation = ""
	s.raw.ModelVersion = ""
}

// SetOriginalConfig sets the checkpoint's companion config file.
func (s *Session) SetOriginalConfig(path string) {
	s.raw.OriginalConfigFile = path
}

// SetAllModules toggles every primary module flag at once.
func (s *Session) SetAllModules(enabled bool) {
	s.raw.ConvertUNet = enabled
	s.raw.ConvertTextEncoder = enabled
	s.raw.ConvertVAEEncoder = enabled
	s.raw.ConvertVAEDecoder = enabled
	s.raw.ConvertSafetyChecker = enabled
}

// Update applies fn to the raw values for fields without dedicated setters.
func (s *Session) Update(fn func(*RawInput)) {
	if fn != nil {
		fn(&s.raw)
	}
}

// DependentControlsEnabled reports whether the chunk and ControlNet-support
// toggles are editable.
func (s *Session) DependentControlsEnabled() bool {
	return s.raw.ConvertUNet
}

// Raw returns a snapshot of the current values.
func (s *Session) Raw() RawInput {
	return s.raw
}
