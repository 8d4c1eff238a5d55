// Package saga runs ordered steps that each pair an action with a compensating
// undo. When a step fails, the compensations of the steps that already
// succeeded run in reverse order.
package saga

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"abapractice/internal/metrics"
)

// Step is one action and the undo for it. Compensate may be nil.
type Step struct {
	Name       string
	Action     func(ctx context.Context) error
	Compensate func(ctx context.Context) error
}

// StepError reports which step failed and any compensation that also failed
type StepError struct {
	Saga               string
	Step               string
	Err                error
	CompensationErrors []error
}

func (e *StepError) Error() string {
	msg := fmt.Sprintf("%s: step %s failed: %v", e.Saga, e.Step, e.Err)
	if len(e.CompensationErrors) > 0 {
		parts := make([]string, len(e.CompensationErrors))
		for i, ce := range e.CompensationErrors {
			parts[i] = ce.Error()
		}
		msg += fmt.Sprintf(" (compensation errors: %s)", strings.Join(parts, "; "))
	}
	return msg
}

func (e *StepError) Unwrap() error {
	return e.Err
}

// Compensated reports whether every compensation ran cleanly
func (e *StepError) Compensated() bool {
	return len(e.CompensationErrors) == 0
}

// Saga is a named, ordered list of steps
type Saga struct {
	name   string
	steps  []Step
	logger *zap.Logger
}

// New creates an empty saga
func New(name string, logger *zap.Logger) *Saga {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Saga{name: name, logger: logger}
}

// Add appends a step
func (s *Saga) Add(step Step) *Saga {
	s.steps = append(s.steps, step)
	return s
}

// Run executes the steps in order. On the first failure it compensates the
// completed steps newest first and returns a *StepError wrapping the failure.
// Compensations run on a context detached from ctx cancellation, so a caller
// that gives up mid-way still gets its side effects undone.
func (s *Saga) Run(ctx context.Context) error {
	done := make([]Step, 0, len(s.steps))

	for _, step := range s.steps {
		if err := step.Action(ctx); err != nil {
			stepErr := &StepError{Saga: s.name, Step: step.Name, Err: err}
			stepErr.CompensationErrors = s.compensate(context.WithoutCancel(ctx), done)
			s.logger.Warn("saga step failed",
				zap.String("saga", s.name),
				zap.String("step", step.Name),
				zap.Int("compensated_steps", len(done)),
				zap.Error(err),
			)
			return stepErr
		}
		done = append(done, step)
	}
	return nil
}

func (s *Saga) compensate(ctx context.Context, done []Step) []error {
	var errs []error
	for i := len(done) - 1; i >= 0; i-- {
		step := done[i]
		if step.Compensate == nil {
			continue
		}
		if err := step.Compensate(ctx); err != nil {
			metrics.SagaCompensations.WithLabelValues(s.name, step.Name, "error").Inc()
			s.logger.Error("saga compensation failed",
				zap.String("saga", s.name),
				zap.String("step", step.Name),
				zap.Error(err),
			)
			errs = append(errs, fmt.Errorf("compensate %s: %w", step.Name, err))
			continue
		}
		metrics.SagaCompensations.WithLabelValues(s.name, step.Name, "ok").Inc()
	}
	return errs
}

// IsStepError reports whether err came from a failed saga step
func IsStepError(err error) (*StepError, bool) {
	var se *StepError
	ok := errors.As(err, &se)
	return se, ok
}
