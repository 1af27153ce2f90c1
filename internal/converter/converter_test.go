package converter_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"
	"testing"
	"time"

	"guernika/internal/config"
	"guernika/internal/converter"
	"guernika/internal/job"
	"guernika/internal/services"
)

type stubExecutor struct {
	lines  []string
	err    error
	calls  int
	binary string
	args   []string
	env    []string
}

func (s *stubExecutor) Run(ctx context.Context, binary string, args []string, env []string, onLine func(string)) error {
	s.calls++
	s.binary = binary
	s.args = append([]string(nil), args...)
	s.env = append([]string(nil), env...)
	for _, line := range s.lines {
		onLine(line)
	}
	return s.err
}

func sampleDescriptor() job.Descriptor {
	return job.Descriptor{
		Source:      job.RemoteModel("CompVis/stable-diffusion-v1-4"),
		Modules:     job.Modules{UNet: true, ChunkUNet: true, TextEncoder: true, VAEDecoder: true},
		ComputeUnit: job.ComputeCPUAndNE,
		OutputDir:   "/tmp/out",
	}
}

func valueAfter(t *testing.T, args []string, flag string) string {
	t.Helper()
	idx := slices.Index(args, flag)
	if idx < 0 || idx+1 >= len(args) {
		t.Fatalf("flag %s missing from %v", flag, args)
	}
	return args[idx+1]
}

func TestArgsRemoteModel(t *testing.T) {
	args := converter.Args(sampleDescriptor())

	if got := valueAfter(t, args, "--model-version"); got != "CompVis/stable-diffusion-v1-4" {
		t.Fatalf("unexpected model version %q", got)
	}
	for _, flag := range []string{"--convert-unet", "--chunk-unet", "--convert-text-encoder", "--convert-vae-decoder", "--bundle-resources-for-guernika", "--clean-up-mlpackages"} {
		if !slices.Contains(args, flag) {
			t.Fatalf("expected %s in %v", flag, args)
		}
	}
	for _, flag := range []string{"--convert-vae-encoder", "--convert-safety-checker", "--controlnet-support", "--from-safetensors", "--output-h", "--controlnet-version", "--model-location", "--checkpoint-path"} {
		if slices.Contains(args, flag) {
			t.Fatalf("unexpected %s in %v", flag, args)
		}
	}
	if got := valueAfter(t, args, "--attention-implementation"); got != "SPLIT_EINSUM" {
		t.Fatalf("unexpected attention %q", got)
	}
	if got := valueAfter(t, args, "--resources-dir-name"); got != "CompVis/stable-diffusion-v1-4" {
		t.Fatalf("unexpected resources dir %q", got)
	}
	if got := valueAfter(t, args, "-o"); got != "/tmp/out" {
		t.Fatalf("unexpected output %q", got)
	}
	if got := valueAfter(t, args, "--text-encoder-vocabulary-url"); !strings.HasSuffix(got, "clip-vit-base-patch32/resolve/main/vocab.json") {
		t.Fatalf("unexpected vocabulary url %q", got)
	}
	if got := valueAfter(t, args, "--text-encoder-merges-url"); !strings.HasSuffix(got, "clip-vit-base-patch32/resolve/main/merges.txt") {
		t.Fatalf("unexpected merges url %q", got)
	}
}

func TestArgsCheckpointWithOverrides(t *testing.T) {
	desc := sampleDescriptor()
	desc.Source = job.Checkpoint("/ckpts/dreamlike.safetensors", "/ckpts/dreamlike.yaml")
	desc.FromSafetensors = true
	desc.ControlNetVersion = "lllyasviel/sd-controlnet-canny"
	desc.OutputSize = job.OutputSize{Width: 768, Height: 512}
	desc.ComputeUnit = job.ComputeCPUAndGPU

	args := converter.Args(desc)
	if got := valueAfter(t, args, "--checkpoint-path"); got != "/ckpts/dreamlike.safetensors" {
		t.Fatalf("unexpected checkpoint %q", got)
	}
	if got := valueAfter(t, args, "--original-config-file"); got != "/ckpts/dreamlike.yaml" {
		t.Fatalf("unexpected config %q", got)
	}
	if !slices.Contains(args, "--from-safetensors") {
		t.Fatal("expected --from-safetensors")
	}
	if valueAfter(t, args, "--output-w") != "768" || valueAfter(t, args, "--output-h") != "512" {
		t.Fatalf("unexpected size args %v", args)
	}
	if got := valueAfter(t, args, "--attention-implementation"); got != "ORIGINAL" {
		t.Fatalf("unexpected attention %q", got)
	}
	if got := valueAfter(t, args, "--resources-dir-name"); got != "dreamlike" {
		t.Fatalf("unexpected resources dir %q", got)
	}
	if got := valueAfter(t, args, "--controlnet-version"); got != "lllyasviel/sd-controlnet-canny" {
		t.Fatalf("unexpected controlnet %q", got)
	}
}

func TestConvertRunsConfiguredModule(t *testing.T) {
	cfg := config.Default()
	cfg.Converter.PythonBinary = "/opt/venv/bin/python"
	cfg.Converter.HFToken = "hf_abc"
	exec := &stubExecutor{lines: []string{"Converting unet", "Done"}}
	var seen []string
	client, err := converter.New(&cfg, nil, converter.WithExecutor(exec), converter.WithLineHandler(func(line string) {
		seen = append(seen, line)
	}))
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	if err := client.Convert(context.Background(), sampleDescriptor()); err != nil {
		t.Fatalf("Convert: %v", err)
	}
	if exec.binary != "/opt/venv/bin/python" {
		t.Fatalf("unexpected binary %q", exec.binary)
	}
	if exec.args[0] != "-m" || exec.args[1] != "python_coreml_stable_diffusion.torch2coreml" {
		t.Fatalf("unexpected module args %v", exec.args[:2])
	}
	if !slices.Contains(exec.env, "HUGGING_FACE_HUB_TOKEN=hf_abc") {
		t.Fatalf("expected token in env, got %v", exec.env)
	}
	if len(seen) != 2 {
		t.Fatalf("expected lines forwarded, got %v", seen)
	}
}

func TestConvertWrapsFailureWithOutputTail(t *testing.T) {
	cfg := config.Default()
	exec := &stubExecutor{
		lines: []string{"Loading pipeline", "RuntimeError: out of memory"},
		err:   errors.New("wait command: exit status 1"),
	}
	client, err := converter.New(&cfg, nil, converter.WithExecutor(exec))
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	err = client.Convert(context.Background(), sampleDescriptor())
	if err == nil {
		t.Fatal("expected conversion error")
	}
	if !errors.Is(err, services.ErrConversion) {
		t.Fatalf("expected ErrConversion, got %v", err)
	}
	if !strings.Contains(err.Error(), "RuntimeError: out of memory") {
		t.Fatalf("expected output tail in error, got %v", err)
	}
}

func TestNewRequiresInterpreter(t *testing.T) {
	cfg := config.Default()
	cfg.Converter.PythonBinary = " "
	if _, err := converter.New(&cfg, nil); err == nil {
		t.Fatal("expected error for blank interpreter")
	}
}

func TestCommandExecutorStreamsLines(t *testing.T) {
	dir := t.TempDir()
	script := filepath.Join(dir, "python3")
	body := "#!/bin/sh\necho \"args: $*\"\necho \"token: $HUGGING_FACE_HUB_TOKEN\"\necho 'Traceback' >&2\nexit 3\n"
	if err := os.WriteFile(script, []byte(body), 0o755); err != nil {
		t.Fatalf("write stub: %v", err)
	}
	cfg := config.Default()
	cfg.Converter.PythonBinary = script
	cfg.Converter.HFToken = "hf_stub"

	var lines []string
	client, err := converter.New(&cfg, nil, converter.WithLineHandler(func(line string) {
		lines = append(lines, line)
	}))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	err = client.Convert(context.Background(), sampleDescriptor())
	if !errors.Is(err, services.ErrConversion) {
		t.Fatalf("expected ErrConversion, got %v", err)
	}
	joined := strings.Join(lines, "\n")
	for _, want := range []string{"args: -m python_coreml_stable_diffusion.torch2coreml", "token: hf_stub", "Traceback"} {
		if !strings.Contains(joined, want) {
			t.Fatalf("expected %q in output %q", want, joined)
		}
	}
}

func writeInterpreter(t *testing.T, body string) *config.Config {
	t.Helper()
	script := filepath.Join(t.TempDir(), "python3")
	if err := os.WriteFile(script, []byte("#!/bin/sh\n"+body+"\n"), 0o755); err != nil {
		t.Fatalf("write stub: %v", err)
	}
	cfg := config.Default()
	cfg.Converter.PythonBinary = script
	return &cfg
}

func TestCommandExecutorSurvivesUnterminatedOutput(t *testing.T) {
	cfg := writeInterpreter(t, "head -c 1200000 /dev/zero | tr '\\0' x >&2\n"+
		"head -c 200000 /dev/zero | tr '\\0' y\n"+
		"exit 1")
	var mu sync.Mutex
	var longest int
	client, err := converter.New(cfg, nil, converter.WithLineHandler(func(line string) {
		mu.Lock()
		defer mu.Unlock()
		longest = max(longest, len(line))
	}))
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	done := make(chan error, 1)
	go func() {
		done <- client.Convert(context.Background(), sampleDescriptor())
	}()
	select {
	case err := <-done:
		if !errors.Is(err, services.ErrConversion) {
			t.Fatalf("expected ErrConversion, got %v", err)
		}
		if len(err.Error()) > 64*1024 {
			t.Fatalf("error detail not bounded: %d bytes", len(err.Error()))
		}
	case <-time.After(10 * time.Second):
		t.Fatal("Convert did not return after the process exited")
	}
	mu.Lock()
	defer mu.Unlock()
	if longest == 0 || longest > 1024 {
		t.Fatalf("expected bounded forwarded chunks, longest was %d", longest)
	}
}

func TestCommandExecutorSplitsCarriageReturns(t *testing.T) {
	cfg := writeInterpreter(t, "printf 'Converting unet:  10%%\\rConverting unet:  50%%\\rConverting unet: 100%%\\r\\n' >&2\nexit 0")
	var lines []string
	client, err := converter.New(cfg, nil, converter.WithLineHandler(func(line string) {
		lines = append(lines, line)
	}))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if err := client.Convert(context.Background(), sampleDescriptor()); err != nil {
		t.Fatalf("Convert: %v", err)
	}
	want := []string{"Converting unet:  10%", "Converting unet:  50%", "Converting unet: 100%"}
	if !slices.Equal(lines, want) {
		t.Fatalf("unexpected progress lines %q", lines)
	}
}
