// Package report aggregates step results and prints the final outcome line.
package report

import (
	"fmt"
	"io"

	"github.com/fatih/color"

	"github.com/thrushlang/thrushdeps/internal/model"
)

// SuccessMessage is printed after a complete install.
const SuccessMessage = "Dependencies are ready to compile. Use 'cargo clean' and 'cargo run' now."

// Reporter collects step results in execution order.
type Reporter struct {
	// Color enables ANSI colors regardless of terminal detection.
	Color bool

	results []model.StepResult
}

// Record appends the result of one step.
func (r *Reporter) Record(step string, code int) {
	r.results = append(r.results, model.StepResult{Step: step, ExitCode: code})
}

// RecordAll appends results in order.
func (r *Reporter) RecordAll(results []model.StepResult) {
	for _, res := range results {
		r.Record(res.Step, res.ExitCode)
	}
}

// Results returns a copy of the recorded results.
func (r *Reporter) Results() []model.StepResult {
	return append([]model.StepResult(nil), r.results...)
}

// Failed reports whether any recorded step exited nonzero.
func (r *Reporter) Failed() bool {
	sum := 0
	for _, res := range r.results {
		if res.ExitCode != 0 {
			sum++
		}
	}
	return sum != 0
}

// FirstFailure returns the first step that exited nonzero.
func (r *Reporter) FirstFailure() (model.StepResult, bool) {
	for _, res := range r.results {
		if res.ExitCode != 0 {
			return res, true
		}
	}
	return model.StepResult{}, false
}

// Err returns an ErrInstallStepAggregate error naming the first failed
// step, or nil when every step succeeded.
func (r *Reporter) Err() error {
	res, ok := r.FirstFailure()
	if !ok {
		return nil
	}
	return fmt.Errorf("%w: step %s exited with status %d", model.ErrInstallStepAggregate, res.Step, res.ExitCode)
}

// Finish prints the outcome line to w and returns the process exit status.
func (r *Reporter) Finish(w io.Writer) int {
	if res, ok := r.FirstFailure(); ok {
		r.paint(color.FgRed).Fprintf(w, "failed to install the LLVM-C API (step: %s)\n", res.Step)
		return 1
	}
	r.paint(color.FgGreen).Fprintln(w, SuccessMessage)
	return 0
}

// Error prints a failure that happened before any step ran.
func (r *Reporter) Error(w io.Writer, err error) int {
	r.paint(color.FgRed).Fprintf(w, "error: %s: %v\n", model.Class(err), err)
	return 1
}

func (r *Reporter) paint(attr color.Attribute) *color.Color {
	c := color.New(attr)
	if r.Color {
		c.EnableColor()
	} else {
		c.DisableColor()
	}
	return c
}
