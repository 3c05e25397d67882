// SPDX-License-Identifier: MPL-2.0

package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/charmbracelet/log"

	"labkit/internal/runtime"
)

// ErrStageFailed is the sentinel error wrapped by StageError.
var ErrStageFailed = errors.New("stage failed")

type (
	// StageFunc executes one stage and reports its result. A nil result is
	// treated as success.
	StageFunc func(ctx context.Context) *runtime.Result

	// Stage is a single named, fallible step of a pipeline.
	Stage struct {
		// Name identifies the stage in logs and failures (e.g. "install deps").
		Name string
		// Run executes the stage.
		Run StageFunc
	}

	// StageError reports which stage of which pipeline failed and with what
	// result. It wraps ErrStageFailed for errors.Is() compatibility.
	StageError struct {
		Pipeline string
		Stage    string
		Result   *runtime.Result
	}

	// Pipeline is an ordered list of stages executed strictly sequentially.
	Pipeline struct {
		name   string
		stages []Stage
		logger *log.Logger
	}

	// Outcome is the result of one pipeline invocation.
	Outcome struct {
		// ExitCode is 0 on success, otherwise the failing stage's exit code
		// (or 1 for infrastructure errors).
		ExitCode runtime.ExitCode
		// Err is nil on success, otherwise a *StageError.
		Err error
		// Completed lists the names of the stages that ran to success.
		Completed []string
	}
)

// Error implements the error interface.
func (e *StageError) Error() string {
	if e.Result != nil && e.Result.Error != nil {
		return fmt.Sprintf("%s: stage %q failed: %v", e.Pipeline, e.Stage, e.Result.Error)
	}
	code := runtime.ExitCode(1)
	if e.Result != nil {
		code = e.Result.ExitCode
	}
	return fmt.Sprintf("%s: stage %q exited with status %s", e.Pipeline, e.Stage, code)
}

// Unwrap returns ErrStageFailed so callers can use errors.Is for detection.
func (e *StageError) Unwrap() error { return ErrStageFailed }

// New creates an empty pipeline. A nil logger disables stage logging.
func New(name string, logger *log.Logger) *Pipeline {
	if logger == nil {
		logger = log.New(io.Discard)
	}
	return &Pipeline{name: name, logger: logger}
}

// Name returns the pipeline name.
func (p *Pipeline) Name() string { return p.name }

// Append adds a stage to the end of the pipeline.
func (p *Pipeline) Append(name string, run StageFunc) *Pipeline {
	p.stages = append(p.stages, Stage{Name: name, Run: run})
	return p
}

// Stages returns the names of the pipeline's stages in execution order.
func (p *Pipeline) Stages() []string {
	names := make([]string, len(p.stages))
	for i, s := range p.stages {
		names[i] = s.Name
	}
	return names
}

// Run executes the stages in order, aborting on the first failure. A stage
// fails when its result carries a non-zero exit code or an error. Context
// cancellation between stages also aborts the pipeline.
func (p *Pipeline) Run(ctx context.Context) *Outcome {
	outcome := &Outcome{}

	for _, stage := range p.stages {
		select {
		case <-ctx.Done():
			result := runtime.NewErrorResult(1, ctx.Err())
			outcome.ExitCode = 1
			outcome.Err = &StageError{Pipeline: p.name, Stage: stage.Name, Result: result}
			return outcome
		default:
		}

		p.logger.Info("stage starting", "pipeline", p.name, "stage", stage.Name)

		result := stage.Run(ctx)
		if result == nil {
			result = runtime.NewSuccessResult()
		}

		if !result.Success() {
			code := result.ExitCode
			if code == 0 {
				// Infrastructure error without a process exit status.
				code = 1
			}
			p.logger.Error("stage failed",
				"pipeline", p.name, "stage", stage.Name, "exit_code", code, "err", result.Error)
			outcome.ExitCode = code
			outcome.Err = &StageError{Pipeline: p.name, Stage: stage.Name, Result: result}
			return outcome
		}

		p.logger.Debug("stage done", "pipeline", p.name, "stage", stage.Name)
		outcome.Completed = append(outcome.Completed, stage.Name)
	}

	return outcome
}

// Success returns true if every stage completed.
func (o *Outcome) Success() bool {
	return o.Err == nil && o.ExitCode.IsSuccess()
}

// FailedStage returns the name of the failed stage, or "" on success.
func (o *Outcome) FailedStage() string {
	var se *StageError
	if errors.As(o.Err, &se) {
		return se.Stage
	}
	return ""
}
