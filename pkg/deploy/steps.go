package deploy

import (
	"sort"
	"strings"

	"github.com/rotisserie/eris"
)

const (
	StepSyncDeps      = "sync-deps"
	StepCollectStatic = "collect-static"
	StepMigrate       = "migrate"
)

// Order is the only order steps are ever executed in
var Order = []string{StepSyncDeps, StepCollectStatic, StepMigrate}

var descriptions = map[string]string{
	StepSyncDeps:      "Install the package manager and sync the locked dependencies",
	StepCollectStatic: "Collect static assets into the serving directory",
	StepMigrate:       "Apply pending database migrations",
}

// DefaultCommands returns the commands a step runs when the configuration doesn't override them
func DefaultCommands(name string) []string {
	switch name {
	case StepSyncDeps:
		return []string{"pip install uv", "uv sync --frozen"}
	case StepCollectStatic:
		return []string{"uv run python manage.py collectstatic --no-input"}
	case StepMigrate:
		return []string{"uv run python manage.py migrate --no-input"}
	}

	return nil
}

// NewPipeline builds the fixed step list for the project in projectRoot. Entries in specs replace the
// defaults of the step with the same name; names outside Order are rejected.
func NewPipeline(projectRoot string, specs map[string]StepSpec) (Pipeline, error) {
	unknown := make([]string, 0)
	for name := range specs {
		if _, ok := descriptions[name]; !ok {
			unknown = append(unknown, name)
		}
	}

	if len(unknown) > 0 {
		sort.Strings(unknown)
		return nil, eris.Errorf("unknown steps %s (valid steps are %s)", strings.Join(unknown, ", "), strings.Join(Order, ", "))
	}

	pipeline := make(Pipeline, 0, len(Order))
	for _, name := range Order {
		spec := specs[name]
		step := &Step{
			Name: name,
			Desc: descriptions[name],
			Env:  map[string]string{},
			Cmds: spec.Cmds,
		}

		if len(step.Cmds) == 0 {
			step.Cmds = DefaultCommands(name)
		}

		base := spec.Base
		if base == "" {
			base = "//"
		}
		step.Base = normalizePath(projectRoot, base)

		pipeline = append(pipeline, step)
	}

	return pipeline, nil
}
