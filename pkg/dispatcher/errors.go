package dispatcher

import (
	"errors"
	"fmt"
)

// Sentinel errors returned by Submit.
var (
	ErrQueueFull  = errors.New("queue full")
	ErrStopped    = errors.New("dispatcher stopped")
	ErrNotStarted = errors.New("dispatcher not started")
)

// Pipeline stage names carried by PackageError.
const (
	StageSelect   = "select"
	StageAssemble = "assemble"
	StageGenerate = "generate"
	StageExtract  = "extract"
	StageGate     = "gate"
	StageValidate = "validate"
	StagePanic    = "panic"
	StageShutdown = "shutdown"
)

// PackageError wraps any failure during one package's turn with the stage
// it happened in.
type PackageError struct {
	Stage string
	Err   error
}

func (e *PackageError) Error() string {
	return fmt.Sprintf("%s failed: %v", e.Stage, e.Err)
}

func (e *PackageError) Unwrap() error { return e.Err }
