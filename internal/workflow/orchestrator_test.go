package workflow_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/gofrs/flock"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"guernika/internal/converter"
	"guernika/internal/history"
	"guernika/internal/job"
	"guernika/internal/metrics"
	"guernika/internal/preflight"
	"guernika/internal/prefs"
	"guernika/internal/services"
	"guernika/internal/testsupport"
	"guernika/internal/workflow"
)

type memoryPrefs struct {
	mu      sync.Mutex
	doc     prefs.Document
	saves   int
	saveErr error
}

func (m *memoryPrefs) Load() prefs.Document {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.doc
}

func (m *memoryPrefs) Save(doc prefs.Document) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.saves++
	if m.saveErr != nil {
		return m.saveErr
	}
	m.doc = doc
	return nil
}

type stubProber struct {
	present   bool
	afterFix  bool
	probed    bool
	probes    int
	refreshes int
}

func (p *stubProber) ToolchainProbed() bool {
	return p.probed
}

func (p *stubProber) ToolchainPresent() bool {
	if !p.probed {
		p.probed = true
		p.probes++
	}
	return p.present
}

func (p *stubProber) RefreshToolchain() bool {
	p.probes++
	p.refreshes++
	p.present = p.afterFix
	return p.present
}

type stubConverter struct {
	err     error
	calls   int
	descs   []job.Descriptor
	block   chan struct{}
	entered chan struct{}
	onRun   func()
}

func (c *stubConverter) Convert(ctx context.Context, desc job.Descriptor) error {
	c.calls++
	c.descs = append(c.descs, desc)
	if c.entered != nil {
		close(c.entered)
	}
	if c.block != nil {
		<-c.block
	}
	if c.onRun != nil {
		c.onRun()
	}
	return c.err
}

type busyLog struct {
	mu     sync.Mutex
	events []bool
}

func (b *busyLog) BusyChanged(busy bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.events = append(b.events, busy)
}

func (b *busyLog) snapshot() []bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]bool(nil), b.events...)
}

type fakeHistory struct {
	begun       []history.Run
	finished    map[string]string
	markedStale int
}

func (h *fakeHistory) MarkInterrupted(context.Context) (int64, error) {
	h.markedStale++
	return 0, nil
}

func (h *fakeHistory) Begin(_ context.Context, run history.Run) error {
	h.begun = append(h.begun, run)
	return nil
}

func (h *fakeHistory) Finish(_ context.Context, id, status, _ string, _ int64) error {
	if h.finished == nil {
		h.finished = make(map[string]string)
	}
	h.finished[id] = status
	return nil
}

func validInput(t *testing.T) job.RawInput {
	t.Helper()
	return job.RawInput{
		ModelVersion:       "runwayml/stable-diffusion-v1-5",
		ConvertUNet:        true,
		ChunkUNet:          true,
		ConvertTextEncoder: true,
		ConvertVAEDecoder:  true,
		ComputeUnit:        "CPU_AND_GPU",
		OutputDir:          t.TempDir(),
	}
}

func newOrchestrator(t *testing.T, store workflow.PreferencesStore, prober workflow.ToolchainProber, conv converter.Converter, opts ...workflow.Option) *workflow.Orchestrator {
	t.Helper()
	o, err := workflow.New(store, prober, conv, nil, opts...)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return o
}

func TestSubmitSuccessUpdatesPreferences(t *testing.T) {
	store := &memoryPrefs{doc: prefs.Default("/home/user")}
	conv := &stubConverter{}
	busy := &busyLog{}
	hist := &fakeHistory{}
	o := newOrchestrator(t, store, &stubProber{present: true}, conv,
		workflow.WithBusyObserver(busy), workflow.WithHistory(hist))

	raw := validInput(t)
	written := testsupport.WriteCompiledModel(t, raw.OutputDir, "Unet", 4096)
	written += testsupport.WriteCompiledModel(t, raw.OutputDir, "TextEncoder", 1024)
	outcome := o.Submit(context.Background(), raw)

	if outcome.Kind != workflow.OutcomeSucceeded || outcome.Err != nil {
		t.Fatalf("expected success, got %+v", outcome)
	}
	if outcome.JobID == "" || outcome.OutputBytes != written {
		t.Fatalf("unexpected outcome details %+v", outcome)
	}
	if conv.calls != 1 {
		t.Fatalf("expected one converter call, got %d", conv.calls)
	}
	if got := busy.snapshot(); len(got) != 2 || !got[0] || got[1] {
		t.Fatalf("expected busy true then false, got %v", got)
	}
	if o.State() != workflow.StateIdle {
		t.Fatalf("expected idle, got %s", o.State())
	}

	want := prefs.Default("/home/user").Apply(outcome.Descriptor)
	if store.doc != want {
		t.Fatalf("preferences not updated to submitted values:\n got %+v\nwant %+v", store.doc, want)
	}
	if store.doc.LastModelVersion != "runwayml/stable-diffusion-v1-5" || store.doc.ComputeUnit != "CPU_AND_GPU" {
		t.Fatalf("unexpected saved preferences %+v", store.doc)
	}
	if len(hist.begun) != 1 || hist.finished[outcome.JobID] != history.StatusSucceeded {
		t.Fatalf("history not recorded: %+v %+v", hist.begun, hist.finished)
	}
	if hist.markedStale != 0 {
		t.Fatal("stale runs must not be closed without the job lock")
	}
}

func TestSubmitFailureLeavesPreferencesUntouched(t *testing.T) {
	original := prefs.Default("/home/user")
	store := &memoryPrefs{doc: original}
	conv := &stubConverter{err: errors.New("RuntimeError: MPS backend out of memory")}
	busy := &busyLog{}
	o := newOrchestrator(t, store, &stubProber{present: true}, conv, workflow.WithBusyObserver(busy))

	outcome := o.Submit(context.Background(), validInput(t))

	if outcome.Kind != workflow.OutcomeFailed {
		t.Fatalf("expected failure, got %+v", outcome)
	}
	if !errors.Is(outcome.Err, services.ErrConversion) {
		t.Fatalf("expected ErrConversion, got %v", outcome.Err)
	}
	if outcome.Message == "" {
		t.Fatal("expected failure detail")
	}
	if store.saves != 0 || store.doc != original {
		t.Fatalf("preferences changed after failure: saves=%d doc=%+v", store.saves, store.doc)
	}
	if got := busy.snapshot(); len(got) != 2 || !got[0] || got[1] {
		t.Fatalf("expected busy cleared exactly once, got %v", got)
	}
	if o.State() != workflow.StateIdle {
		t.Fatalf("expected idle after failure, got %s", o.State())
	}
	if conv.calls != 1 {
		t.Fatalf("expected no retry, got %d calls", conv.calls)
	}
}

func TestSubmitRecoversFromConverterPanic(t *testing.T) {
	store := &memoryPrefs{doc: prefs.Default("/home/user")}
	conv := &stubConverter{onRun: func() { panic("boom") }}
	busy := &busyLog{}
	o := newOrchestrator(t, store, &stubProber{present: true}, conv, workflow.WithBusyObserver(busy))

	outcome := o.Submit(context.Background(), validInput(t))
	if outcome.Kind != workflow.OutcomeFailed {
		t.Fatalf("expected failure, got %+v", outcome)
	}
	if got := busy.snapshot(); len(got) != 2 || got[1] {
		t.Fatalf("expected busy cleared after panic, got %v", got)
	}
	if o.State() != workflow.StateIdle {
		t.Fatalf("expected idle, got %s", o.State())
	}
}

func TestSubmitSaveFailureIsWarning(t *testing.T) {
	store := &memoryPrefs{doc: prefs.Default("/home/user"), saveErr: errors.New("disk full")}
	o := newOrchestrator(t, store, &stubProber{present: true}, &stubConverter{})

	outcome := o.Submit(context.Background(), validInput(t))
	if outcome.Kind != workflow.OutcomeSucceeded {
		t.Fatalf("expected success despite save failure, got %+v", outcome)
	}
	if outcome.Warning == nil {
		t.Fatal("expected save warning")
	}
}

func TestSubmitInvalidInputSkipsBusy(t *testing.T) {
	store := &memoryPrefs{doc: prefs.Default("/home/user")}
	conv := &stubConverter{}
	busy := &busyLog{}
	o := newOrchestrator(t, store, &stubProber{present: true}, conv, workflow.WithBusyObserver(busy))

	raw := validInput(t)
	raw.Width = "abc"
	raw.Height = "512"
	outcome := o.Submit(context.Background(), raw)

	if outcome.Kind != workflow.OutcomeInvalid {
		t.Fatalf("expected invalid, got %+v", outcome)
	}
	if !errors.Is(outcome.Err, services.ErrValidation) {
		t.Fatalf("expected ErrValidation, got %v", outcome.Err)
	}
	if conv.calls != 0 || len(busy.snapshot()) != 0 || store.saves != 0 {
		t.Fatalf("invalid input reached the converter: calls=%d busy=%v saves=%d", conv.calls, busy.snapshot(), store.saves)
	}
	if o.State() != workflow.StateIdle {
		t.Fatalf("expected idle, got %s", o.State())
	}
}

func TestSubmitBlockedWithoutToolchain(t *testing.T) {
	store := &memoryPrefs{doc: prefs.Default("/home/user")}
	prober := &stubProber{present: false, afterFix: false}
	conv := &stubConverter{}
	busy := &busyLog{}
	o := newOrchestrator(t, store, prober, conv, workflow.WithBusyObserver(busy))

	outcome := o.Submit(context.Background(), validInput(t))
	if outcome.Kind != workflow.OutcomeBlocked {
		t.Fatalf("expected blocked, got %+v", outcome)
	}
	if !errors.Is(outcome.Err, services.ErrToolchainUnavailable) {
		t.Fatalf("expected ErrToolchainUnavailable, got %v", outcome.Err)
	}
	if !services.IsUserRecoverable(outcome.Err) {
		t.Fatal("missing toolchain should be user recoverable")
	}
	if prober.probes != 1 || prober.refreshes != 0 {
		t.Fatalf("expected a single first probe, got %d probes %d refreshes", prober.probes, prober.refreshes)
	}
	if conv.calls != 0 || len(busy.snapshot()) != 0 {
		t.Fatal("blocked submission must not run the converter")
	}

	prober.afterFix = true
	outcome = o.Submit(context.Background(), validInput(t))
	if outcome.Kind != workflow.OutcomeSucceeded {
		t.Fatalf("expected success after toolchain install, got %+v", outcome)
	}
	if prober.refreshes != 1 {
		t.Fatalf("expected re-probe on the second submission, got %d", prober.refreshes)
	}
}

func TestSubmitSkipsReprobeWhenToolchainCached(t *testing.T) {
	prober := &stubProber{present: true}
	o := newOrchestrator(t, &memoryPrefs{doc: prefs.Default("/home/user")}, prober, &stubConverter{})

	for i := 0; i < 2; i++ {
		if outcome := o.Submit(context.Background(), validInput(t)); !outcome.OK() {
			t.Fatalf("submission %d failed: %+v", i, outcome)
		}
	}
	if prober.refreshes != 0 {
		t.Fatalf("expected no re-probe while toolchain present, got %d", prober.refreshes)
	}
}

func TestSubmitRejectsConcurrentSubmission(t *testing.T) {
	conv := &stubConverter{block: make(chan struct{}), entered: make(chan struct{})}
	o := newOrchestrator(t, &memoryPrefs{doc: prefs.Default("/home/user")}, &stubProber{present: true}, conv)

	done := make(chan workflow.Outcome, 1)
	go func() {
		done <- o.Submit(context.Background(), validInput(t))
	}()

	select {
	case <-conv.entered:
	case <-time.After(5 * time.Second):
		t.Fatal("converter never started")
	}
	if o.State() != workflow.StateRunning {
		t.Fatalf("expected running, got %s", o.State())
	}

	second := o.Submit(context.Background(), validInput(t))
	if second.Kind != workflow.OutcomeBlocked || !errors.Is(second.Err, services.ErrJobInProgress) {
		t.Fatalf("expected job-in-progress rejection, got %+v", second)
	}

	close(conv.block)
	first := <-done
	if !first.OK() {
		t.Fatalf("expected first submission to succeed, got %+v", first)
	}
	if conv.calls != 1 {
		t.Fatalf("expected exactly one conversion, got %d", conv.calls)
	}
	if o.State() != workflow.StateIdle {
		t.Fatalf("expected idle, got %s", o.State())
	}
}

func TestSubmitBlockedByLockFile(t *testing.T) {
	lockPath := filepath.Join(t.TempDir(), "convert.lock")
	holder := flock.New(lockPath)
	ok, err := holder.TryLock()
	if err != nil || !ok {
		t.Fatalf("hold lock: ok=%v err=%v", ok, err)
	}
	defer func() { _ = holder.Unlock() }()

	conv := &stubConverter{}
	o := newOrchestrator(t, &memoryPrefs{doc: prefs.Default("/home/user")}, &stubProber{present: true}, conv, workflow.WithLockFile(lockPath))

	outcome := o.Submit(context.Background(), validInput(t))
	if outcome.Kind != workflow.OutcomeBlocked || !errors.Is(outcome.Err, services.ErrJobInProgress) {
		t.Fatalf("expected lock contention to block, got %+v", outcome)
	}
	if conv.calls != 0 {
		t.Fatal("converter ran despite lock contention")
	}

	if err := holder.Unlock(); err != nil {
		t.Fatalf("unlock: %v", err)
	}
	if outcome := o.Submit(context.Background(), validInput(t)); !outcome.OK() {
		t.Fatalf("expected success once lock released, got %+v", outcome)
	}
}

func TestSubmitRecordsMetrics(t *testing.T) {
	recorder := metrics.New()
	textfile := filepath.Join(t.TempDir(), "guernika.prom")
	o := newOrchestrator(t, &memoryPrefs{doc: prefs.Default("/home/user")}, &stubProber{present: true}, &stubConverter{},
		workflow.WithMetrics(recorder, textfile))

	o.Submit(context.Background(), validInput(t))
	bad := validInput(t)
	bad.OutputDir = ""
	o.Submit(context.Background(), bad)

	count, err := testutil.GatherAndCount(recorder.Registry(), "guernika_conversions_total")
	if err != nil {
		t.Fatalf("gather: %v", err)
	}
	if count != 2 {
		t.Fatalf("expected succeeded and invalid series, got %d", count)
	}
	if _, err := os.Stat(textfile); err != nil {
		t.Fatalf("expected textfile written: %v", err)
	}
}

func TestNewRequiresCollaborators(t *testing.T) {
	if _, err := workflow.New(nil, &stubProber{}, &stubConverter{}, nil); err == nil {
		t.Fatal("expected error without preferences store")
	}
}

func TestSubmitWithConfiguredStores(t *testing.T) {
	cfg := testsupport.NewConfig(t, testsupport.WithCompanionApp(), testsupport.WithStubbedBinaries("xcrun"))
	store := prefs.NewStore(cfg.Paths.PreferencesFile, nil)
	prober := preflight.NewProber(cfg, nil)
	hist := testsupport.MustOpenHistory(t, cfg)
	o := newOrchestrator(t, store, prober, &stubConverter{},
		workflow.WithHistory(hist), workflow.WithLockFile(cfg.Paths.LockFile))

	if err := hist.Begin(context.Background(), history.Run{ID: "crashed", Model: "m", SourceKind: "remote_id", ComputeUnit: "ALL", OutputDir: "/out"}); err != nil {
		t.Fatalf("Begin: %v", err)
	}

	raw := validInput(t)
	raw.OutputDir = filepath.Join(testsupport.BaseDir(cfg), "models")
	outcome := o.Submit(context.Background(), raw)
	if !outcome.OK() {
		t.Fatalf("expected success, got %+v", outcome)
	}
	if !prober.CompanionAppPresent() {
		t.Fatal("expected companion app to be detected")
	}

	saved := store.Load()
	if saved.LastModelVersion != raw.ModelVersion || saved.LastOutputFolder != raw.OutputDir {
		t.Fatalf("preferences not persisted: %+v", saved)
	}
	runs, err := hist.Recent(context.Background(), 5)
	if err != nil {
		t.Fatalf("Recent: %v", err)
	}
	statuses := make(map[string]string, len(runs))
	for _, run := range runs {
		statuses[run.ID] = run.Status
	}
	if len(runs) != 2 || statuses[outcome.JobID] != history.StatusSucceeded || statuses["crashed"] != history.StatusInterrupted {
		t.Fatalf("unexpected history %+v", runs)
	}
}

func TestSubmitClosesStaleRunsUnderLock(t *testing.T) {
	hist := &fakeHistory{}
	lockPath := filepath.Join(t.TempDir(), "convert.lock")
	o := newOrchestrator(t, &memoryPrefs{doc: prefs.Default("/home/user")}, &stubProber{present: true}, &stubConverter{},
		workflow.WithHistory(hist), workflow.WithLockFile(lockPath))

	if outcome := o.Submit(context.Background(), validInput(t)); !outcome.OK() {
		t.Fatalf("expected success, got %+v", outcome)
	}
	if hist.markedStale != 1 {
		t.Fatalf("expected stale runs closed once, got %d", hist.markedStale)
	}

	other := flock.New(lockPath)
	if ok, err := other.TryLock(); err != nil || !ok {
		t.Fatalf("TryLock: %v %v", ok, err)
	}
	defer other.Unlock()
	if outcome := o.Submit(context.Background(), validInput(t)); outcome.Kind != workflow.OutcomeBlocked {
		t.Fatalf("expected blocked, got %+v", outcome)
	}
	if hist.markedStale != 1 {
		t.Fatal("stale runs must not be closed while another process holds the lock")
	}
}
