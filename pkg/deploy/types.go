package deploy

import (
	"fmt"
	"io"
)

// Step contains one stage of a deployment
type Step struct {
	Env  map[string]string
	Name string
	Desc string
	Base string
	Cmds []string
}

// Pipeline lists the steps in execution order
type Pipeline []*Step

// Find returns the step with the given name or nil
func (p Pipeline) Find(name string) *Step {
	for _, step := range p {
		if step.Name == name {
			return step
		}
	}

	return nil
}

// StepSpec carries the configurable parts of a step
type StepSpec struct {
	Base string
	Cmds []string
}

// Options controls a single call to Run
type Options struct {
	// EnvDefaults are exported to every step unless the process environment already sets them (i.e. .env values).
	EnvDefaults map[string]string
	// Env is exported to every step and wins over the process environment.
	Env    map[string]string
	Stdout io.Writer
	Stderr io.Writer
	RunID  string
	Root   string
	DryRun bool
}

// StepError reports a step that stopped the deployment
type StepError struct {
	Err    error
	Step   string
	Status uint8
}

func (e *StepError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("step %s failed with exit status %d", e.Step, e.Status)
	}

	return fmt.Sprintf("step %s failed with exit status %d: %s", e.Step, e.Status, e.Err)
}

func (e *StepError) Unwrap() error {
	return e.Err
}

// ExitCode returns the status the process should exit with. It is never 0.
func (e *StepError) ExitCode() int {
	if e.Status == 0 {
		return 1
	}

	return int(e.Status)
}
