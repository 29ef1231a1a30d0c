package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"golang.org/x/sync/errgroup"

	"gitlab.com/yelinaung/sharedbudget/internal/logger"
)

// cascadeConcurrency bounds the sub-steps of one phase that run at once.
const cascadeConcurrency = 8

// ErrStepSkipped marks a final step that did not run because an earlier
// step failed. Re-running the cascade retries it.
var ErrStepSkipped = errors.New("skipped because an earlier step failed")

// StepFailure is one failed cascade step.
type StepFailure struct {
	Step string `json:"step"`
	Err  error  `json:"-"`
}

// MarshalJSON includes the error text.
func (f StepFailure) MarshalJSON() ([]byte, error) {
	msg := ""
	if f.Err != nil {
		msg = f.Err.Error()
	}
	return json.Marshal(struct {
		Step  string `json:"step"`
		Error string `json:"error"`
	}{f.Step, msg})
}

// CascadeResult lists the outcome of every step of a multi-record operation.
type CascadeResult struct {
	Succeeded []string      `json:"succeeded"`
	Failed    []StepFailure `json:"failed"`
}

// OK reports whether every step succeeded.
func (r CascadeResult) OK() bool {
	return len(r.Failed) == 0
}

// Err joins the step failures, or returns nil.
func (r CascadeResult) Err() error {
	if r.OK() {
		return nil
	}
	errs := make([]error, 0, len(r.Failed))
	for _, f := range r.Failed {
		errs = append(errs, fmt.Errorf("%s: %w", f.Step, f.Err))
	}
	return errors.Join(errs...)
}

func (r *CascadeResult) merge(other CascadeResult) {
	r.Succeeded = append(r.Succeeded, other.Succeeded...)
	r.Failed = append(r.Failed, other.Failed...)
}

func (r *CascadeResult) record(name string, err error) {
	if err != nil {
		r.Failed = append(r.Failed, StepFailure{Step: name, Err: err})
		return
	}
	r.Succeeded = append(r.Succeeded, name)
}

type step struct {
	name string
	run  func(ctx context.Context) error
}

// phase groups steps that do not depend on each other.
type phase struct {
	name  string
	steps []step
}

// runCascade runs the phases in order and each phase's steps concurrently.
// A failing step never stops its siblings or later phases. final runs last and
// only when nothing failed before it.
func runCascade(ctx context.Context, op string, phases []phase, final *step) CascadeResult {
	var result CascadeResult
	for _, p := range phases {
		result.merge(runPhase(ctx, op, p))
	}

	if final != nil {
		if result.OK() {
			result.merge(runPhase(ctx, op, phase{name: "final", steps: []step{*final}}))
		} else {
			result.record(final.name, ErrStepSkipped)
			countStep(ctx, op, "final", ErrStepSkipped)
		}
	}

	if !result.OK() {
		logger.Log.Warn().
			Str("op", op).
			Int("succeeded", len(result.Succeeded)).
			Int("failed", len(result.Failed)).
			Err(result.Err()).
			Msg("Cascade finished with failures")
	}
	return result
}

func runPhase(ctx context.Context, op string, p phase) CascadeResult {
	errs := make([]error, len(p.steps))

	// Steps report through errs instead of the group so one failure does not
	// hide the others.
	var g errgroup.Group
	g.SetLimit(cascadeConcurrency)
	for i, s := range p.steps {
		g.Go(func() error {
			errs[i] = s.run(ctx)
			return nil
		})
	}
	_ = g.Wait()

	var result CascadeResult
	for i, s := range p.steps {
		result.record(s.name, errs[i])
		countStep(ctx, op, p.name, errs[i])
	}
	return result
}

func countStep(ctx context.Context, op, phaseName string, err error) {
	outcome := "ok"
	switch {
	case errors.Is(err, ErrStepSkipped):
		outcome = "skipped"
	case err != nil:
		outcome = "failed"
	}
	cascadeSteps.Add(ctx, 1, metric.WithAttributes(
		attribute.String("op", op),
		attribute.String("phase", phaseName),
		attribute.String("outcome", outcome),
	))
}
