package deploy

import (
	"os"
	"time"

	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"
)

type StepStatus string

const (
	StatusOK      StepStatus = "ok"
	StatusFailed  StepStatus = "failed"
	StatusSkipped StepStatus = "skipped"
	StatusPlanned StepStatus = "planned"
)

type StepResult struct {
	Name     string        `yaml:"name"`
	Status   StepStatus    `yaml:"status"`
	ExitCode int           `yaml:"exit_code"`
	Duration time.Duration `yaml:"duration"`
	Commands []string      `yaml:"commands"`
}

// Report summarizes one deployment run
type Report struct {
	Run     string       `yaml:"run"`
	Root    string       `yaml:"root"`
	DryRun  bool         `yaml:"dry_run"`
	Started time.Time    `yaml:"started"`
	Steps   []StepResult `yaml:"steps"`
}

func newReport(pipeline Pipeline, opts Options) *Report {
	report := &Report{
		Run:     opts.RunID,
		Root:    opts.Root,
		DryRun:  opts.DryRun,
		Started: time.Now().UTC(),
		Steps:   make([]StepResult, len(pipeline)),
	}

	// steps stay skipped unless the runner reaches them
	for idx, step := range pipeline {
		report.Steps[idx] = StepResult{
			Name:     step.Name,
			Status:   StatusSkipped,
			Commands: step.Cmds,
		}
	}

	return report
}

// Failed returns the step that stopped the run or nil
func (r *Report) Failed() *StepResult {
	for idx := range r.Steps {
		if r.Steps[idx].Status == StatusFailed {
			return &r.Steps[idx]
		}
	}

	return nil
}

func WriteReport(file string, report *Report) error {
	handle, err := os.Create(file)
	if err != nil {
		return eris.Wrapf(err, "Failed to create %s", file)
	}
	defer handle.Close()

	encoder := yaml.NewEncoder(handle)
	encoder.SetIndent(2)
	err = encoder.Encode(report)
	if err != nil {
		return eris.Wrapf(err, "Failed to write %s", file)
	}

	return encoder.Close()
}

func ReadReport(file string) (*Report, error) {
	data, err := os.ReadFile(file)
	if err != nil {
		return nil, eris.Wrapf(err, "Could not open file %s.", file)
	}

	var report Report
	err = yaml.Unmarshal(data, &report)
	if err != nil {
		return nil, eris.Wrapf(err, "Failed to parse %s.", file)
	}

	return &report, nil
}
