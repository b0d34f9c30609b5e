package deploy

import (
	"fmt"
	"os"
	"runtime"
	"sort"
	"strings"

	"github.com/joho/godotenv"
	"github.com/rotisserie/eris"
)

// LoadDotEnv reads the given dotenv files. Missing files are ignored, later files win.
func LoadDotEnv(files ...string) (map[string]string, error) {
	result := make(map[string]string)
	for _, file := range files {
		if file == "" {
			continue
		}

		_, err := os.Stat(file)
		if err != nil {
			if eris.Is(err, os.ErrNotExist) {
				continue
			}
			return nil, eris.Wrapf(err, "Failed to check %s", file)
		}

		values, err := godotenv.Read(file)
		if err != nil {
			return nil, eris.Wrapf(err, "Failed to parse %s", file)
		}

		for k, v := range values {
			result[k] = v
		}
	}

	return result, nil
}

func envKey(name string) string {
	if runtime.GOOS == "windows" {
		return strings.ToUpper(name)
	}
	return name
}

// getStepEnv merges, from lowest to highest priority: dotenv defaults, the process environment,
// the run's overrides and the step's own variables.
func getStepEnv(step *Step, defaults, overrides map[string]string) []string {
	merged := make(map[string]string, len(defaults)+len(overrides)+len(step.Env))

	for k, v := range defaults {
		merged[envKey(k)] = v
	}

	for _, item := range os.Environ() {
		parts := strings.SplitN(item, "=", 2)
		// skip Windows' hidden per-drive entries (=C:=C:\...)
		if len(parts) < 2 || parts[0] == "" {
			continue
		}

		merged[envKey(parts[0])] = parts[1]
	}

	for k, v := range overrides {
		merged[envKey(k)] = v
	}

	for k, v := range step.Env {
		merged[envKey(k)] = v
	}

	result := make([]string, 0, len(merged))
	for k, v := range merged {
		result = append(result, fmt.Sprintf("%s=%s", k, v))
	}
	sort.Strings(result)

	return result
}
