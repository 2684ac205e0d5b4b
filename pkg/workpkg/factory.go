package workpkg

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"offload/pkg/protocol"
)

// Store persists work packages.
type Store interface {
	SavePackage(ctx context.Context, p protocol.WorkPackage) error
	GetPackage(ctx context.Context, id string) (protocol.WorkPackage, error)
}

// Input is the caller-supplied context for a new package. Empty fields are
// derived: Language from CurrentFile or the project markers, Framework from
// the project manifests.
type Input struct {
	ProjectRoot string
	CurrentFile string
	Language    string
	Framework   string
}

// Factory builds and persists work packages.
type Factory struct {
	store  Store
	logger *zap.Logger
	now    func() time.Time
	newID  func() string
}

// Option configures a Factory.
type Option func(*Factory)

// WithLogger sets the factory's logger.
func WithLogger(l *zap.Logger) Option {
	return func(f *Factory) { f.logger = l }
}

// WithClock overrides time.Now, for tests.
func WithClock(now func() time.Time) Option {
	return func(f *Factory) { f.now = now }
}

// WithIDGenerator overrides uuid generation, for tests.
func WithIDGenerator(gen func() string) Option {
	return func(f *Factory) { f.newID = gen }
}

// NewFactory returns a Factory persisting to store.
func NewFactory(store Store, opts ...Option) *Factory {
	f := &Factory{
		store:  store,
		logger: zap.NewNop(),
		now:    time.Now,
		newID:  uuid.NewString,
	}
	for _, o := range opts {
		o(f)
	}
	return f
}

// Build derives a complete package from a candidate without persisting it.
// It never fails: unknown task types fold into general_implementation.
func (f *Factory) Build(c Candidate, in Input) protocol.WorkPackage {
	taskType := protocol.ParseTaskType(string(c.TaskType))

	lang := in.Language
	if lang == "" {
		lang = ResolveLanguage(in.CurrentFile, in.ProjectRoot)
	}
	framework := in.Framework
	if framework == "" {
		framework = DetectFramework(in.ProjectRoot)
	}

	pctx := protocol.PackageContext{
		Language:    lang,
		Framework:   framework,
		ProjectRoot: in.ProjectRoot,
		CurrentFile: in.CurrentFile,
	}

	return protocol.WorkPackage{
		ID:                 f.newID(),
		TaskType:           taskType,
		Description:        c.Description,
		Requirements:       Requirements(taskType),
		AcceptanceCriteria: AcceptanceCriteria(taskType),
		Context:            pctx,
		Command:            SelectCommand(Candidate{TaskType: taskType, Description: c.Description}, pctx),
		Checks:             Checks(taskType),
		Status:             protocol.StatusQueued,
		CreatedAt:          f.now().UTC(),
	}
}

// Create builds a package and persists it before returning. A package that
// could not be persisted is not returned.
func (f *Factory) Create(ctx context.Context, c Candidate, in Input) (protocol.WorkPackage, error) {
	p := f.Build(c, in)
	if err := p.Validate(); err != nil {
		return protocol.WorkPackage{}, fmt.Errorf("create work package: %w", err)
	}
	if err := f.store.SavePackage(ctx, p); err != nil {
		return protocol.WorkPackage{}, fmt.Errorf("create work package: %w", err)
	}
	f.logger.Info("work package created",
		zap.String("package_id", p.ID),
		zap.String("task_type", string(p.TaskType)),
		zap.String("language", p.Context.Language),
		zap.String("command", p.Command),
	)
	return p, nil
}

// CreateAll detects candidates in text and creates one package per
// candidate. It stops at the first persistence failure, returning the
// packages created so far.
func (f *Factory) CreateAll(ctx context.Context, text string, in Input) ([]protocol.WorkPackage, error) {
	cands := Detect(text)
	out := make([]protocol.WorkPackage, 0, len(cands))
	for _, c := range cands {
		p, err := f.Create(ctx, c, in)
		if err != nil {
			return out, err
		}
		out = append(out, p)
	}
	return out, nil
}
