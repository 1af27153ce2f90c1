package workflow

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/gofrs/flock"
	"github.com/google/uuid"

	"guernika/internal/converter"
	"guernika/internal/fileutil"
	"guernika/internal/history"
	"guernika/internal/job"
	"guernika/internal/logging"
	"guernika/internal/metrics"
	"guernika/internal/prefs"
	"guernika/internal/services"
)

// PreferencesStore loads and persists the preferences document.
type PreferencesStore interface {
	Load() prefs.Document
	Save(prefs.Document) error
}

// ToolchainProber reports whether the Core ML compiler is usable.
type ToolchainProber interface {
	ToolchainProbed() bool
	ToolchainPresent() bool
	RefreshToolchain() bool
}

// RunRecorder persists run history.
type RunRecorder interface {
	Begin(ctx context.Context, run history.Run) error
	Finish(ctx context.Context, id, status, message string, outputBytes int64) error
	MarkInterrupted(ctx context.Context) (int64, error)
}

// Option configures optional Orchestrator collaborators.
type Option func(*Orchestrator)

// WithHistory records each converter run.
func WithHistory(recorder RunRecorder) Option {
	return func(o *Orchestrator) {
		o.history = recorder
	}
}

// WithMetrics counts outcomes and, when textfilePath is set, rewrites the
// textfile after every submission.
func WithMetrics(recorder *metrics.Recorder, textfilePath string) Option {
	return func(o *Orchestrator) {
		o.metrics = recorder
		o.metricsPath = strings.TrimSpace(textfilePath)
	}
}

// WithLockFile guards converter runs with an exclusive file lock shared by
// every process on the machine.
func WithLockFile(path string) Option {
	return func(o *Orchestrator) {
		if path = strings.TrimSpace(path); path != "" {
			o.lock = flock.New(path)
		}
	}
}

// WithBusyObserver registers the busy signal consumer.
func WithBusyObserver(observer BusyObserver) Option {
	return func(o *Orchestrator) {
		o.observer = observer
	}
}

// Orchestrator runs one conversion at a time.
type Orchestrator struct {
	prefs     PreferencesStore
	prober    ToolchainProber
	converter converter.Converter
	logger    *slog.Logger

	history     RunRecorder
	metrics     *metrics.Recorder
	metricsPath string
	lock        *flock.Flock
	observer    BusyObserver

	mu    sync.Mutex
	state State
}

// New constructs an Orchestrator in the Idle state.
func New(store PreferencesStore, prober ToolchainProber, conv converter.Converter, logger *slog.Logger, opts ...Option) (*Orchestrator, error) {
	if store == nil || prober == nil || conv == nil {
		return nil, errors.New("orchestrator requires preferences, prober, and converter")
	}
	if logger == nil {
		logger = logging.NewNop()
	}
	o := &Orchestrator{
		prefs:     store,
		prober:    prober,
		converter: conv,
		logger:    logging.NewComponentLogger(logger, "workflow"),
		state:     StateIdle,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o, nil
}

// State returns the current lifecycle state.
func (o *Orchestrator) State() State {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.state
}

func (o *Orchestrator) setState(state State) {
	o.mu.Lock()
	o.state = state
	o.mu.Unlock()
}

// begin moves Idle to Probing, refusing when another submission is active.
func (o *Orchestrator) begin() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.state != StateIdle {
		return false
	}
	o.state = StateProbing
	return true
}

// Submit runs raw through the full lifecycle and always returns to Idle
// unless it was rejected because another submission is active. ctx carries
// logging fields only; an in-flight conversion is never cancelled.
func (o *Orchestrator) Submit(ctx context.Context, raw job.RawInput) Outcome {
	if !o.begin() {
		err := services.Wrap(services.ErrJobInProgress, "submit", "", "wait for the current conversion to finish", nil)
		return o.finish(ctx, Outcome{Kind: OutcomeBlocked, Message: "A conversion is already running.", Err: err})
	}
	defer o.setState(StateIdle)

	jobID := uuid.NewString()
	ctx = services.WithJobID(ctx, jobID)
	logger := logging.WithContext(ctx, o.logger)

	cached := o.prober.ToolchainProbed()
	if !o.prober.ToolchainPresent() {
		present := false
		if cached {
			logger.Debug("toolchain previously missing; probing again")
			present = o.prober.RefreshToolchain()
		}
		if !present {
			o.setState(StateBlocked)
			err := services.Wrap(services.ErrToolchainUnavailable, "probing", "coremlcompiler", "Core ML compiler not found", nil)
			logging.WarnWithContext(logger, "conversion blocked", "toolchain_missing",
				logging.Error(err),
				logging.String(logging.FieldErrorHint, "install Xcode and select it with xcode-select"),
			)
			return o.finish(ctx, Outcome{Kind: OutcomeBlocked, JobID: jobID, Message: "Core ML compiler not available.", Err: err})
		}
	}

	doc := o.prefs.Load()
	desc, err := job.Build(raw, doc.JobDefaults())
	if err != nil {
		logger.Info("submission rejected", logging.Error(err))
		return o.finish(ctx, Outcome{Kind: OutcomeInvalid, JobID: jobID, Message: err.Error(), Err: err})
	}

	release, err := o.acquireLock()
	if err != nil {
		logging.WarnWithContext(logger, "conversion blocked", "lock_contention", logging.Error(err))
		return o.finish(ctx, Outcome{Kind: OutcomeBlocked, JobID: jobID, Descriptor: desc, Message: "Another conversion is running on this machine.", Err: err})
	}
	defer release()
	o.closeStaleRuns(ctx, logger)

	outcome := o.run(ctx, logger, jobID, desc)
	if outcome.OK() {
		if saveErr := o.prefs.Save(doc.Apply(desc)); saveErr != nil {
			logging.WarnWithContext(logger, "preferences not saved", "preferences_save_failed", logging.Error(saveErr))
			outcome.Warning = saveErr
		}
	}
	return o.finish(ctx, outcome)
}

// run performs the single converter call bracketed by busy signaling.
func (o *Orchestrator) run(ctx context.Context, logger *slog.Logger, jobID string, desc job.Descriptor) Outcome {
	o.setState(StateRunning)
	o.signalBusy(true)
	defer o.signalBusy(false)

	runCtx := services.WithPhase(context.WithoutCancel(ctx), "converting")
	o.recordBegin(runCtx, jobID, desc)
	if o.metrics != nil {
		o.metrics.Started()
	}

	start := time.Now()
	convErr := o.convert(runCtx, desc)
	elapsed := time.Since(start)

	outcome := Outcome{JobID: jobID, Descriptor: desc, Elapsed: elapsed}
	if convErr != nil {
		if !errors.Is(convErr, services.ErrConversion) {
			convErr = services.Wrap(services.ErrConversion, "converting", "", "", convErr)
		}
		o.setState(StateFailed)
		outcome.Kind = OutcomeFailed
		outcome.Err = convErr
		outcome.Message = convErr.Error()
		logging.ErrorWithContext(logger, "conversion failed", "conversion_failed",
			logging.Error(convErr),
			logging.Duration("elapsed", elapsed),
			logging.String("output_dir", desc.OutputDir),
		)
	} else {
		o.setState(StateSucceeded)
		outcome.Kind = OutcomeSucceeded
		size, sizeErr := fileutil.DirSize(desc.OutputDir)
		if sizeErr != nil {
			logger.Debug("output size unavailable", logging.Error(sizeErr))
		}
		outcome.OutputBytes = size
		outcome.Message = fmt.Sprintf("Model converted to %s (%s).", desc.OutputDir, humanize.Bytes(uint64(max(size, 0))))
		logger.Info("conversion succeeded",
			logging.String(logging.FieldEventType, "conversion_complete"),
			logging.Duration("elapsed", elapsed),
			logging.String("output_size", humanize.Bytes(uint64(max(size, 0)))),
		)
	}

	if o.metrics != nil {
		o.metrics.Finished(string(outcome.Kind), elapsed)
	}
	o.recordFinish(runCtx, outcome)
	return outcome
}

// convert turns a converter panic into a failure so busy signaling and the
// Idle transition still happen.
func (o *Orchestrator) convert(ctx context.Context, desc job.Descriptor) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("converter panicked: %v", r)
		}
	}()
	return o.converter.Convert(ctx, desc)
}

func (o *Orchestrator) signalBusy(busy bool) {
	if o.observer != nil {
		o.observer.BusyChanged(busy)
	}
}

func (o *Orchestrator) acquireLock() (func(), error) {
	if o.lock == nil {
		return func() {}, nil
	}
	ok, err := o.lock.TryLock()
	if err != nil {
		return nil, services.Wrap(services.ErrJobInProgress, "locking", o.lock.Path(), "acquire job lock", err)
	}
	if !ok {
		return nil, services.Wrap(services.ErrJobInProgress, "locking", o.lock.Path(), "another guernika process is converting", nil)
	}
	return func() {
		if err := o.lock.Unlock(); err != nil {
			o.logger.Warn("failed to release job lock", logging.Error(err))
		}
	}, nil
}

// closeStaleRuns marks runs left behind by a crashed process. It only runs
// under the cross-process lock so live runs elsewhere are never touched.
func (o *Orchestrator) closeStaleRuns(ctx context.Context, logger *slog.Logger) {
	if o.history == nil || o.lock == nil {
		return
	}
	count, err := o.history.MarkInterrupted(ctx)
	if err != nil {
		logger.Warn("stale runs not closed", logging.Error(err))
		return
	}
	if count > 0 {
		logger.Info("closed interrupted runs", logging.Int64("count", count))
	}
}

func (o *Orchestrator) recordBegin(ctx context.Context, jobID string, desc job.Descriptor) {
	if o.history == nil {
		return
	}
	run := history.Run{
		ID:          jobID,
		Model:       desc.Source.Name(),
		SourceKind:  string(desc.Source.Kind),
		ComputeUnit: string(desc.ComputeUnit),
		OutputDir:   desc.OutputDir,
		StartedAt:   time.Now(),
	}
	if err := o.history.Begin(ctx, run); err != nil {
		o.logger.Warn("history begin failed", logging.Error(err))
	}
}

func (o *Orchestrator) recordFinish(ctx context.Context, outcome Outcome) {
	if o.history == nil {
		return
	}
	status := history.StatusSucceeded
	message := ""
	if !outcome.OK() {
		status = history.StatusFailed
		message = outcome.Message
	}
	if err := o.history.Finish(ctx, outcome.JobID, status, message, outcome.OutputBytes); err != nil {
		o.logger.Warn("history finish failed", logging.Error(err))
	}
}

// finish counts non-run outcomes and flushes the metrics textfile.
func (o *Orchestrator) finish(ctx context.Context, outcome Outcome) Outcome {
	if o.metrics == nil {
		return outcome
	}
	if outcome.Kind == OutcomeBlocked || outcome.Kind == OutcomeInvalid {
		o.metrics.Outcome(string(outcome.Kind))
	}
	if err := o.metrics.WriteTextfile(o.metricsPath); err != nil {
		logging.WithContext(ctx, o.logger).Warn("metrics textfile not written", logging.Error(err))
	}
	return outcome
}
