package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jsamuelsen/trmnl-quotes/internal/platform/logging"
)

// ExecutionStep names one stage of an Operation.
type ExecutionStep string

// Mutating use cases run validate, perform, verify, archive, respond in
// that order. Archive is the only step that writes to the quote store, so
// nothing is persisted before verify has accepted what perform produced.
const (
	StepValidate ExecutionStep = "validate"
	StepPerform  ExecutionStep = "perform"
	StepVerify   ExecutionStep = "verify"
	StepArchive  ExecutionStep = "archive"
	StepRespond  ExecutionStep = "respond"
)

// ExecutionError records which step failed. Cause stays reachable through
// errors.Is, so domain errors still map to their HTTP status.
type ExecutionError struct {
	Step    ExecutionStep
	Message string
	Cause   error
}

func (e *ExecutionError) Error() string {
	if e.Cause == nil {
		return fmt.Sprintf("%s failed: %s", e.Step, e.Message)
	}

	return fmt.Sprintf("%s failed: %s: %v", e.Step, e.Message, e.Cause)
}

func (e *ExecutionError) Unwrap() error { return e.Cause }

// Executor runs operations, logging each step.
type Executor struct {
	logger *slog.Logger
}

// NewExecutor creates an executor. A nil logger means slog.Default().
func NewExecutor(logger *slog.Logger) *Executor {
	return &Executor{logger: cmpOr(logger, slog.Default())}
}

// Operation bundles the step functions. A nil step is skipped and hands
// the zero value on to the next one.
type Operation[I, P, V, O any] struct {
	Name     string
	Validate func(ctx context.Context, input I) error
	Perform  func(ctx context.Context, input I) (P, error)
	Verify   func(ctx context.Context, input I, performed P) (V, error)
	Archive  func(ctx context.Context, input I, verified V) error
	Respond  func(ctx context.Context, input I, verified V) (O, error)
}

var stepMessages = map[ExecutionStep]string{
	StepValidate: "input validation failed",
	StepPerform:  "operation failed",
	StepVerify:   "verification failed",
	StepArchive:  "state persistence failed",
}

// Execute runs op against input. Failures of the first four steps come
// back as *ExecutionError; a Respond failure is returned as is.
func Execute[I, P, V, O any](ctx context.Context, exec *Executor, op Operation[I, P, V, O], input I) (O, error) {
	var (
		zero      O
		performed P
		verified  V
		out       O
	)

	logger := logging.FromContextOr(ctx, exec.logger).With(slog.String("operation", op.Name))
	start := time.Now()

	type step struct {
		name ExecutionStep
		run  func() error
	}

	var steps []step
	if op.Validate != nil {
		steps = append(steps, step{StepValidate, func() error { return op.Validate(ctx, input) }})
	}

	if op.Perform != nil {
		steps = append(steps, step{StepPerform, func() (err error) {
			performed, err = op.Perform(ctx, input)
			return err
		}})
	}

	if op.Verify != nil {
		steps = append(steps, step{StepVerify, func() (err error) {
			verified, err = op.Verify(ctx, input, performed)
			return err
		}})
	}

	if op.Archive != nil {
		steps = append(steps, step{StepArchive, func() error { return op.Archive(ctx, input, verified) }})
	}

	for _, s := range steps {
		if err := runStep(ctx, logger, s.name, s.run); err != nil {
			return zero, err
		}
	}

	if op.Respond != nil {
		var err error
		if out, err = op.Respond(ctx, input, verified); err != nil {
			logger.WarnContext(ctx, "respond failed", slog.Any("error", err))
			return zero, err
		}
	}

	logger.InfoContext(ctx, "operation completed", slog.Duration("duration", time.Since(start)))

	return out, nil
}

func runStep(ctx context.Context, logger *slog.Logger, step ExecutionStep, run func() error) error {
	logger.DebugContext(ctx, "step started", slog.String("step", string(step)))

	err := run()
	if err == nil {
		return nil
	}

	level := slog.LevelError
	if step == StepValidate {
		level = slog.LevelWarn
	}

	logger.Log(ctx, level, "step failed", slog.String("step", string(step)), slog.Any("error", err))

	return &ExecutionError{Step: step, Message: stepMessages[step], Cause: err}
}

// IsExecutionError reports whether err came out of a failed step.
func IsExecutionError(err error) bool {
	_, ok := GetExecutionStep(err)
	return ok
}

// GetExecutionStep returns the step that produced err.
func GetExecutionStep(err error) (ExecutionStep, bool) {
	var execErr *ExecutionError
	if errors.As(err, &execErr) {
		return execErr.Step, true
	}

	return "", false
}

func cmpOr(logger, fallback *slog.Logger) *slog.Logger {
	if logger == nil {
		return fallback
	}

	return logger
}
