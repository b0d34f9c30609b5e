package deploy

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"mvdan.cc/sh/v3/expand"
	"mvdan.cc/sh/v3/interp"
	"mvdan.cc/sh/v3/syntax"
)

var defaultExecHandler = interp.DefaultExecHandler(2 * time.Second)

var defaultOpenHandler = interp.DefaultOpenHandler()

func openHandler(ctx context.Context, path string, flag int, perm os.FileMode) (io.ReadWriteCloser, error) {
	if path == "/dev/null" {
		path = os.DevNull
	}

	return defaultOpenHandler(ctx, path, flag, perm)
}

type parsedStep struct {
	step  *Step
	stmts []*syntax.Stmt
}

// parsePipeline parses every command up front so a typo in a late step can't leave the deployment half done.
func parsePipeline(pipeline Pipeline) ([]parsedStep, error) {
	parser := syntax.NewParser()
	result := make([]parsedStep, len(pipeline))

	for idx, step := range pipeline {
		result[idx].step = step
		for cmdIdx, cmd := range step.Cmds {
			file, err := parser.Parse(strings.NewReader(cmd), fmt.Sprintf("%s:%d", step.Name, cmdIdx))
			if err != nil {
				return nil, eris.Wrapf(err, "failed to parse command %s", cmd)
			}

			result[idx].stmts = append(result[idx].stmts, file.Stmts...)
		}
	}

	return result, nil
}

func stepFailure(step *Step, err error) *StepError {
	if status, ok := interp.IsExitStatus(err); ok {
		return &StepError{Step: step.Name, Status: status}
	}

	return &StepError{
		Step:   step.Name,
		Status: 1,
		Err:    eris.Wrapf(err, "step %s could not be executed", step.Name),
	}
}

// Run executes the pipeline in order. The first failing command aborts the run; the returned error
// is then a *StepError and the remaining steps are reported as skipped.
func Run(ctx context.Context, pipeline Pipeline, opts Options) (*Report, error) {
	report := newReport(pipeline, opts)

	parsed, err := parsePipeline(pipeline)
	if err != nil {
		return report, err
	}

	for idx, item := range parsed {
		if err := ctx.Err(); err != nil {
			return report, err
		}

		result := &report.Steps[idx]
		started := time.Now()
		err := runStep(ctx, item, opts)
		result.Duration = time.Since(started)

		if err != nil {
			result.Status = StatusFailed
			result.ExitCode = err.ExitCode()

			stepLog(ctx, item.step).Error().
				Int("status", result.ExitCode).
				Msgf("failed after %s", result.Duration.Round(time.Millisecond))
			return report, err
		}

		if opts.DryRun {
			result.Status = StatusPlanned
		} else {
			result.Status = StatusOK
			stepLog(ctx, item.step).Info().
				Msgf("done in %s", result.Duration.Round(time.Millisecond))
		}
	}

	return report, nil
}

func runStep(ctx context.Context, item parsedStep, opts Options) *StepError {
	step := item.step
	logger := stepLog(ctx, step)
	logger.Info().
		Str("path", step.Base).
		Msgf("%s (in %s)", step.Desc, simplifyPath(opts.Root, step.Base))

	stdout := opts.Stdout
	if stdout == nil {
		stdout = os.Stdout
	}

	stderr := opts.Stderr
	if stderr == nil {
		stderr = os.Stderr
	}

	var runner *interp.Runner
	if !opts.DryRun {
		var err error
		runner, err = interp.New(
			interp.Dir(step.Base),
			interp.Env(expand.ListEnviron(getStepEnv(step, opts.EnvDefaults, opts.Env)...)),
			interp.ExecHandler(defaultExecHandler),
			interp.OpenHandler(openHandler),
			interp.StdIO(nil, stdout, stderr),
			interp.Params("-e"),
		)
		if err != nil {
			return &StepError{
				Step:   step.Name,
				Status: 1,
				Err:    eris.Wrap(err, "Failed to initialize runner"),
			}
		}
	}

	printer := syntax.NewPrinter(syntax.Minify(true))
	strBuffer := strings.Builder{}

	for _, stmt := range item.stmts {
		strBuffer.Reset()
		printer.Print(&strBuffer, stmt)
		logger.Info().
			Bool("command", true).
			Msg(strBuffer.String())

		if opts.DryRun {
			continue
		}

		err := runner.Run(ctx, stmt)
		if err != nil {
			return stepFailure(step, err)
		}

		if runner.Exited() {
			return nil
		}
	}

	return nil
}
