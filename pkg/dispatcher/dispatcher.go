// Package dispatcher is the single-worker FIFO queue that drives work
// packages through generation, extraction, quality checks, validation and
// feedback, publishing a status record at every step.
package dispatcher

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"sync"
	"time"

	"go.uber.org/zap"

	"offload/pkg/eventlog"
	"offload/pkg/extract"
	"offload/pkg/modelselect"
	"offload/pkg/ollama"
	"offload/pkg/prompt"
	"offload/pkg/protocol"
	"offload/pkg/qualitygate"
)

// State represents the dispatcher's lifecycle state.
type State string

// Lifecycle states. Transitions only move forward:
// inert -> running -> stopping -> stopped.
const (
	StateInert    State = "inert"
	StateRunning  State = "running"
	StateStopping State = "stopping"
	StateStopped  State = "stopped"
)

const eventSource = "dispatcher"

// --- Collaborators ---

// Generator produces text from a model.
type Generator interface {
	Generate(ctx context.Context, model, prompt string, opts ollama.Options) (ollama.Result, error)
	ListModels(ctx context.Context) ([]string, error)
}

// Gate runs quality checks over an artifact.
type Gate interface {
	Check(ctx context.Context, req qualitygate.Request) protocol.QualityResult
}

// Validator audits an artifact with a second generation call.
type Validator interface {
	Validate(ctx context.Context, code string, p protocol.WorkPackage) protocol.Verdict
}

// FeedbackStore is the append-only model feedback log.
type FeedbackStore interface {
	Stats(ctx context.Context, taskType protocol.TaskType) ([]protocol.ModelStats, error)
	Record(ctx context.Context, e protocol.FeedbackEntry) (int64, error)
	Hints(ctx context.Context, taskType protocol.TaskType) (string, error)
}

// StatusStore persists status records.
type StatusStore interface {
	Put(rec protocol.StatusRecord) error
	Get(id string) (protocol.StatusRecord, error)
	Update(id string, fn func(*protocol.StatusRecord)) (protocol.StatusRecord, error)
}

// EventLog records lifecycle events.
type EventLog interface {
	Append(ctx context.Context, typ, source, packageID string, payload any) error
}

// ProtocolSource supplies the coding-standard text for a command.
type ProtocolSource interface {
	Text(command string) string
}

// --- Config ---

// Config holds Dispatcher configuration.
type Config struct {
	ResultsDir     string        // where artifacts are written
	MaxQueueDepth  int           // queued packages allowed (default 100; negative = unbounded)
	PackageTimeout time.Duration // deadline for one package's turn (default 10m)
}

func (c *Config) withDefaults() Config {
	out := *c
	if out.MaxQueueDepth == 0 {
		out.MaxQueueDepth = 100
	}
	if out.PackageTimeout == 0 {
		out.PackageTimeout = 10 * time.Minute
	}
	return out
}

// Deps are the pipeline collaborators. Generator, Gate, Validator and
// Status are required; the rest may be nil.
type Deps struct {
	Generator Generator
	Gate      Gate
	Validator Validator
	Status    StatusStore
	Feedback  FeedbackStore
	Events    EventLog
	Protocol  ProtocolSource
	Metrics   *Metrics
	Logger    *zap.Logger
}

// --- Dispatcher ---

// Dispatcher owns the queue and its single worker goroutine.
type Dispatcher struct {
	cfg  Config
	deps Deps
	log  *zap.Logger

	mu      sync.Mutex
	state   State
	queue   []protocol.WorkPackage
	current string // id of the package being processed
	wake    chan struct{}
	stop    chan struct{}
	done    chan struct{}

	// nowFunc allows tests to control time.
	nowFunc func() time.Time
}

// New creates a Dispatcher. It does NOT start the worker; call Start.
func New(cfg Config, deps Deps) (*Dispatcher, error) {
	if deps.Generator == nil || deps.Gate == nil || deps.Validator == nil || deps.Status == nil {
		return nil, errors.New("dispatcher: generator, gate, validator and status store are required")
	}
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}
	if deps.Metrics == nil {
		deps.Metrics = NewMetrics(nil)
	}
	return &Dispatcher{
		cfg:     cfg.withDefaults(),
		deps:    deps,
		log:     deps.Logger.Named("dispatcher"),
		state:   StateInert,
		wake:    make(chan struct{}, 1),
		stop:    make(chan struct{}),
		done:    make(chan struct{}),
		nowFunc: time.Now,
	}, nil
}

// GetState returns the current dispatcher state.
func (d *Dispatcher) GetState() State {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.state
}

// Start spawns the worker. ctx bounds the worker's lifetime in addition to
// Shutdown. Calling Start twice is an error.
func (d *Dispatcher) Start(ctx context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.state != StateInert {
		return fmt.Errorf("dispatcher: start in state %s", d.state)
	}
	d.state = StateRunning
	go d.run(ctx)
	d.log.Info("dispatcher started",
		zap.Int("max_queue_depth", d.cfg.MaxQueueDepth),
		zap.Duration("package_timeout", d.cfg.PackageTimeout))
	return nil
}

// Shutdown stops accepting packages, lets the worker finish the package in
// progress, fails the packages still queued, and waits for the worker to
// exit or ctx to expire.
func (d *Dispatcher) Shutdown(ctx context.Context) error {
	d.mu.Lock()
	switch d.state {
	case StateInert:
		d.state = StateStopped
		d.mu.Unlock()
		return nil
	case StateRunning:
		d.state = StateStopping
		close(d.stop)
	}
	d.mu.Unlock()

	select {
	case <-d.done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("dispatcher shutdown: %w", ctx.Err())
	}
}

// Submit enqueues p and returns its id. The package is validated, marked
// queued, and its status record written before Submit returns.
func (d *Dispatcher) Submit(ctx context.Context, p protocol.WorkPackage) (string, error) {
	if err := p.Validate(); err != nil {
		return "", err
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	switch d.state {
	case StateInert:
		return "", ErrNotStarted
	case StateStopping, StateStopped:
		return "", ErrStopped
	}

	rec := d.newRecord(p)
	if d.cfg.MaxQueueDepth > 0 && len(d.queue) >= d.cfg.MaxQueueDepth {
		rec.Status = protocol.StatusError
		rec.Message = "rejected: queue full"
		rec.Error = ErrQueueFull.Error()
		if err := d.deps.Status.Put(rec); err != nil {
			d.log.Warn("write rejected status", zap.String("package_id", p.ID), zap.Error(err))
		}
		d.deps.Metrics.Rejected.Inc()
		d.event(ctx, eventlog.TypeRejected, p.ID, map[string]any{"queue_depth": len(d.queue)})
		return "", fmt.Errorf("submit %s: %w", p.ShortID(), ErrQueueFull)
	}

	p.Status = protocol.StatusQueued
	rec.QueuePosition = len(d.queue) + 1
	rec.Message = fmt.Sprintf("queued at position %d", rec.QueuePosition)
	if err := d.deps.Status.Put(rec); err != nil {
		return "", fmt.Errorf("submit %s: %w", p.ShortID(), err)
	}
	d.queue = append(d.queue, p)
	d.deps.Metrics.Submitted.Inc()
	d.deps.Metrics.QueueDepth.Set(float64(len(d.queue)))
	d.event(ctx, eventlog.TypeSubmitted, p.ID, map[string]any{
		"task_type": p.TaskType, "position": rec.QueuePosition,
	})

	select {
	case d.wake <- struct{}{}:
	default:
	}
	d.log.Info("package queued",
		zap.String("package_id", p.ID),
		zap.String("task_type", string(p.TaskType)),
		zap.Int("position", rec.QueuePosition))
	return p.ID, nil
}

// Position returns the 1-based queue position of id, 0 if it is being
// processed, or -1 if it is not in the queue.
func (d *Dispatcher) Position(id string) int {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.current == id {
		return 0
	}
	for i, p := range d.queue {
		if p.ID == id {
			return i + 1
		}
	}
	return -1
}

// Len returns the number of packages waiting behind the current one.
func (d *Dispatcher) Len() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.queue)
}

// Wait polls the status store until id reaches a terminal state.
func (d *Dispatcher) Wait(ctx context.Context, id string) (protocol.StatusRecord, error) {
	return WaitTerminal(ctx, d.deps.Status, id, 50*time.Millisecond)
}

// WaitTerminal polls store every interval until id's record is terminal.
func WaitTerminal(ctx context.Context, store interface {
	Get(id string) (protocol.StatusRecord, error)
}, id string, interval time.Duration,
) (protocol.StatusRecord, error) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		rec, err := store.Get(id)
		if err == nil && rec.Status.Terminal() {
			return rec, nil
		}
		var nf *protocol.PackageNotFoundError
		if err != nil && !errors.As(err, &nf) {
			return rec, err
		}
		select {
		case <-ctx.Done():
			return rec, fmt.Errorf("wait %s: %w", id, ctx.Err())
		case <-ticker.C:
		}
	}
}

// --- Worker ---

func (d *Dispatcher) run(ctx context.Context) {
	defer close(d.done)
	defer d.drain(ctx)

	for {
		p, ok := d.claim(ctx)
		if !ok {
			select {
			case <-d.stop:
				return
			case <-ctx.Done():
				return
			case <-d.wake:
				continue
			}
		}
		d.process(ctx, p)

		d.mu.Lock()
		d.current = ""
		d.mu.Unlock()

		select {
		case <-d.stop:
			return
		case <-ctx.Done():
			return
		default:
		}
	}
}

// claim pops the queue head, marks it processing, and republishes the
// positions of everything still queued.
func (d *Dispatcher) claim(ctx context.Context) (protocol.WorkPackage, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if len(d.queue) == 0 {
		return protocol.WorkPackage{}, false
	}
	p := d.queue[0]
	d.queue = d.queue[1:]
	d.current = p.ID
	p.Status = protocol.StatusProcessing
	d.deps.Metrics.QueueDepth.Set(float64(len(d.queue)))

	d.update(p.ID, func(r *protocol.StatusRecord) {
		r.Status = protocol.StatusProcessing
		r.Message = "processing: selecting model"
	})
	for i, q := range d.queue {
		pos := i + 1
		d.update(q.ID, func(r *protocol.StatusRecord) {
			r.QueuePosition = pos
			r.Message = fmt.Sprintf("queued at position %d", pos)
		})
	}
	d.event(ctx, eventlog.TypeClaimed, p.ID, map[string]any{"remaining": len(d.queue)})
	return p, true
}

// drain fails every package still queued when the worker exits.
func (d *Dispatcher) drain(ctx context.Context) {
	d.mu.Lock()
	pending := d.queue
	d.queue = nil
	d.state = StateStopped
	d.deps.Metrics.QueueDepth.Set(0)
	d.mu.Unlock()

	for _, p := range pending {
		perr := &PackageError{Stage: StageShutdown, Err: errors.New("dispatcher stopped before processing")}
		d.fail(context.WithoutCancel(ctx), p, perr)
	}
}

// process runs one package's turn. Every failure, including panics, is
// converted into a terminal error record here.
func (d *Dispatcher) process(ctx context.Context, p protocol.WorkPackage) {
	start := d.nowFunc()
	pctx, cancel := context.WithTimeout(ctx, d.cfg.PackageTimeout)
	defer cancel()

	log := d.log.With(zap.String("package_id", p.ID), zap.String("task_type", string(p.TaskType)))
	log.Info("processing package")

	var perr *PackageError
	func() {
		defer func() {
			if r := recover(); r != nil {
				log.Error("package panicked", zap.Any("panic", r), zap.ByteString("stack", debug.Stack()))
				perr = &PackageError{Stage: StagePanic, Err: fmt.Errorf("%v", r)}
			}
		}()
		perr = d.pipeline(pctx, &p, log)
	}()

	d.deps.Metrics.PackageDuration.Observe(d.nowFunc().Sub(start).Seconds())
	if perr != nil {
		if errors.Is(pctx.Err(), context.DeadlineExceeded) && ctx.Err() == nil {
			perr.Err = fmt.Errorf("timed out after %s: %w", d.cfg.PackageTimeout, perr.Err)
		}
		d.fail(context.WithoutCancel(ctx), p, perr)
	}
}

// pipeline runs the stages for p. It returns nil once a terminal
// completed record has been written.
func (d *Dispatcher) pipeline(ctx context.Context, p *protocol.WorkPackage, log *zap.Logger) *PackageError {
	// Select.
	model := d.selectModel(ctx, *p, log)
	p.SelectedModel = model
	d.update(p.ID, func(r *protocol.StatusRecord) {
		r.Model = model
		r.Message = "processing: generating with " + model
	})

	// Assemble.
	artifactPath := extract.ArtifactPath(d.cfg.ResultsDir, *p)
	promptText := prompt.Assemble(*p, d.protocolText(ctx, *p, log), artifactPath)

	// Generate.
	res, err := d.deps.Generator.Generate(ctx, model, promptText, ollama.Options{})
	if err != nil {
		return &PackageError{Stage: StageGenerate, Err: err}
	}
	d.deps.Metrics.GenerationDuration.WithLabelValues(model).Observe(res.Duration.Seconds())
	d.event(ctx, eventlog.TypeGenerated, p.ID, map[string]any{
		"model": model, "seconds": res.Duration.Seconds(), "tool_calls": len(res.ToolCalls),
	})
	d.update(p.ID, func(r *protocol.StatusRecord) {
		r.GenerationSeconds = res.Duration.Seconds()
		r.Message = "processing: extracting code"
	})

	// Extract.
	art, err := extract.Extract(artifactPath, res.Text, res.WrittenFiles)
	if err != nil {
		var fe *extract.FailedError
		if errors.As(err, &fe) {
			d.update(p.ID, func(r *protocol.StatusRecord) { r.ResponsePreview = fe.Preview })
		}
		return &PackageError{Stage: StageExtract, Err: err}
	}
	d.event(ctx, eventlog.TypeExtracted, p.ID, map[string]any{"path": art.Path, "method": art.Method, "lines": art.Lines})
	d.update(p.ID, func(r *protocol.StatusRecord) {
		r.ArtifactPath = art.Path
		r.Method = art.Method
		r.CodeLines = art.Lines
		r.CodeChars = art.Chars
		r.Message = "processing: running quality gate"
	})

	// Gate.
	quality := d.deps.Gate.Check(ctx, qualitygate.Request{
		ArtifactPath: art.Path,
		Language:     p.Context.Language,
		ProjectRoot:  p.Context.ProjectRoot,
		Plan:         p.Checks,
	})
	if err := ctx.Err(); err != nil {
		return &PackageError{Stage: StageGate, Err: err}
	}
	d.event(ctx, eventlog.TypeGate, p.ID, map[string]any{"overall_passed": quality.OverallPassed})
	d.update(p.ID, func(r *protocol.StatusRecord) {
		r.Quality = &quality
		r.Message = "processing: validating"
	})

	// Validate.
	verdict := d.deps.Validator.Validate(ctx, art.Code, *p)
	if err := ctx.Err(); err != nil {
		return &PackageError{Stage: StageValidate, Err: err}
	}
	d.event(ctx, eventlog.TypeValidated, p.ID, map[string]any{"is_valid": verdict.IsValid, "heuristic": verdict.Heuristic})

	// Feedback.
	decision := protocol.DecisionRejected
	if quality.OverallPassed && verdict.IsValid {
		decision = protocol.DecisionApproved
	}
	if d.deps.Feedback != nil {
		if _, err := d.deps.Feedback.Record(ctx, protocol.FeedbackEntry{
			PackageID: p.ID,
			TaskType:  p.TaskType,
			Model:     model,
			Decision:  decision,
		}); err != nil {
			log.Warn("record feedback", zap.Error(err))
		}
	}

	// Terminal record.
	msg := completionMessage(quality, verdict)
	d.update(p.ID, func(r *protocol.StatusRecord) {
		r.Status = protocol.StatusCompleted
		r.Validation = &verdict
		r.Message = msg
	})
	d.deps.Metrics.Finished.WithLabelValues(string(protocol.StatusCompleted), decision).Inc()
	d.event(ctx, eventlog.TypeCompleted, p.ID, map[string]any{"decision": decision, "artifact": art.Path})
	log.Info("package completed",
		zap.String("model", model),
		zap.String("artifact", art.Path),
		zap.String("decision", decision))
	return nil
}

func completionMessage(q protocol.QualityResult, v protocol.Verdict) string {
	switch {
	case q.OverallPassed && v.IsValid:
		return "completed: artifact accepted"
	case !q.OverallPassed && !v.IsValid:
		return "completed: artifact rejected by quality gate and validator"
	case !q.OverallPassed:
		return "completed: artifact rejected by quality gate"
	default:
		return "completed: artifact rejected by validator"
	}
}

func (d *Dispatcher) selectModel(ctx context.Context, p protocol.WorkPackage, log *zap.Logger) string {
	available, err := d.deps.Generator.ListModels(ctx)
	if err != nil {
		log.Warn("list models failed; selecting without availability", zap.Error(err))
	}
	var stats []protocol.ModelStats
	if d.deps.Feedback != nil {
		if stats, err = d.deps.Feedback.Stats(ctx, p.TaskType); err != nil {
			log.Warn("feedback stats unavailable", zap.Error(err))
		}
	}
	choice := modelselect.Choose(p.TaskType, available, stats)
	log.Info("model selected", zap.String("model", choice.Model), zap.String("reason", string(choice.Reason)))
	return choice.Model
}

func (d *Dispatcher) protocolText(ctx context.Context, p protocol.WorkPackage, log *zap.Logger) string {
	var text string
	if d.deps.Protocol != nil && p.Command != "" {
		text = d.deps.Protocol.Text(p.Command)
	}
	if d.deps.Feedback == nil {
		return text
	}
	hints, err := d.deps.Feedback.Hints(ctx, p.TaskType)
	if err != nil {
		log.Warn("feedback hints unavailable", zap.Error(err))
		return text
	}
	if hints == "" {
		return text
	}
	if text == "" {
		return hints
	}
	return text + "\n\n" + hints
}

// fail writes the terminal error record for p.
func (d *Dispatcher) fail(ctx context.Context, p protocol.WorkPackage, perr *PackageError) {
	d.log.Warn("package failed",
		zap.String("package_id", p.ID),
		zap.String("stage", perr.Stage),
		zap.Error(perr.Err))
	msg := perr.Error()
	d.update(p.ID, func(r *protocol.StatusRecord) {
		r.Status = protocol.StatusError
		r.Message = msg
		r.Error = perr.Err.Error()
		if p.SelectedModel != "" {
			r.Model = p.SelectedModel
		}
	})
	d.deps.Metrics.StageFailures.WithLabelValues(perr.Stage).Inc()
	d.deps.Metrics.Finished.WithLabelValues(string(protocol.StatusError), "").Inc()
	d.event(ctx, eventlog.TypeFailed, p.ID, map[string]any{"stage": perr.Stage, "error": perr.Err.Error()})
}

func (d *Dispatcher) newRecord(p protocol.WorkPackage) protocol.StatusRecord {
	return protocol.StatusRecord{
		PackageID:   p.ID,
		Status:      protocol.StatusQueued,
		TaskType:    p.TaskType,
		Description: p.Description,
		CreatedAt:   d.nowFunc().UTC(),
	}
}

// update applies fn to id's status record. Status writes are for
// observers only, so failures are logged and never change control flow.
func (d *Dispatcher) update(id string, fn func(*protocol.StatusRecord)) {
	if _, err := d.deps.Status.Update(id, fn); err != nil {
		d.log.Warn("status update failed", zap.String("package_id", id), zap.Error(err))
	}
}

func (d *Dispatcher) event(ctx context.Context, typ, id string, payload any) {
	if d.deps.Events == nil {
		return
	}
	if err := d.deps.Events.Append(ctx, typ, eventSource, id, payload); err != nil {
		d.log.Debug("event append failed", zap.String("type", typ), zap.Error(err))
	}
}
