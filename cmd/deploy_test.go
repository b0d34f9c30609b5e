package cmd

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/klajdicaushi/lajournal-deploy/pkg/deploy"
)

// newProject creates a Django-looking project with a deploy.toml whose steps append their name to order.log
func newProject(t *testing.T, config string) (string, string) {
	t.Helper()
	t.Setenv("NO_COLOR", "1")

	root := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(root, "manage.py"), []byte("#!/usr/bin/env python\n"), 0o600))

	if config == "" {
		config = `
[steps.sync_deps]
cmds = ["echo sync-deps >> order.log"]

[steps.collect_static]
cmds = ["echo collect-static >> order.log"]

[steps.migrate]
cmds = ["echo migrate >> order.log"]
`
	}

	configPath := filepath.Join(root, "deploy.toml")
	require.NoError(t, os.WriteFile(configPath, []byte(config), 0o600))

	return root, configPath
}

func runTool(args ...string) (int, string, string) {
	stdout := &bytes.Buffer{}
	stderr := &bytes.Buffer{}
	code := run(context.Background(), args, stdout, stderr)
	return code, stdout.String(), stderr.String()
}

func readFile(t *testing.T, path string) string {
	t.Helper()

	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return ""
	}
	require.NoError(t, err)
	return string(data)
}

func TestDeploy_Success(t *testing.T) {
	root, configPath := newProject(t, "")
	reportPath := filepath.Join(root, "report.yml")

	code, _, stderr := runTool("deploy", "--root", root, "--config", configPath, "--report", reportPath)
	require.Equal(t, 0, code, stderr)

	assert.Equal(t, "sync-deps\ncollect-static\nmigrate\n", readFile(t, filepath.Join(root, "order.log")))
	assert.Contains(t, stderr, "sync-deps      | $ echo sync-deps >>order.log")
	assert.Contains(t, stderr, "Done")

	report, err := deploy.ReadReport(reportPath)
	require.NoError(t, err)
	assert.NotEmpty(t, report.Run)
	assert.Equal(t, root, report.Root)
	for _, step := range report.Steps {
		assert.Equal(t, deploy.StatusOK, step.Status)
	}
}

func TestDeploy_PropagatesStepExitStatus(t *testing.T) {
	root, configPath := newProject(t, `
[steps.sync_deps]
cmds = ["echo sync-deps >> order.log"]

[steps.collect_static]
cmds = ["echo collect-static >> order.log", "exit 5"]

[steps.migrate]
cmds = ["echo migrate >> order.log"]
`)
	reportPath := filepath.Join(root, "report.yml")

	code, _, stderr := runTool("deploy", "--root", root, "--config", configPath, "--report", reportPath)
	assert.Equal(t, 5, code)

	assert.Equal(t, "sync-deps\ncollect-static\n", readFile(t, filepath.Join(root, "order.log")))
	assert.Contains(t, stderr, "collect-static | Error: failed after")
	assert.Contains(t, stderr, "(exit status 5)")
	assert.NotContains(t, stderr, "Done")

	report, err := deploy.ReadReport(reportPath)
	require.NoError(t, err)
	assert.Equal(t, deploy.StatusFailed, report.Steps[1].Status)
	assert.Equal(t, 5, report.Steps[1].ExitCode)
	assert.Equal(t, deploy.StatusSkipped, report.Steps[2].Status)
}

func TestDeploy_DryRun(t *testing.T) {
	root, configPath := newProject(t, "")

	code, _, stderr := runTool("deploy", "-n", "--root", root, "--config", configPath)
	require.Equal(t, 0, code, stderr)

	assert.Empty(t, readFile(t, filepath.Join(root, "order.log")))
	assert.Contains(t, stderr, "migrate        | $ echo migrate >>order.log")
}

func TestDeploy_DotEnvDatabaseURL(t *testing.T) {
	t.Setenv("DATABASE_URL", "")
	require.NoError(t, os.Unsetenv("DATABASE_URL"))

	root, configPath := newProject(t, `
env_file = ".env.production"

[steps.sync_deps]
cmds = ["true"]

[steps.collect_static]
cmds = ["true"]

[steps.migrate]
cmds = ['echo "$DATABASE_URL $SECRET_KEY" > env.log']
`)
	require.NoError(t, os.WriteFile(filepath.Join(root, ".env.production"),
		[]byte("DATABASE_URL=postgres://db:5432/lajournal\nSECRET_KEY=s3cret\n"), 0o600))

	code, _, stderr := runTool("deploy", "--root", root, "--config", configPath)
	require.Equal(t, 0, code, stderr)

	assert.Equal(t, "postgres://db:5432/lajournal s3cret\n", readFile(t, filepath.Join(root, "env.log")))
}

func TestDeploy_EnvironmentDatabaseURLIsPassedThrough(t *testing.T) {
	for _, dsn := range []string{
		"postgis://user:pw@db:5432/lajournal",
		"sqlite:////var/lib/lajournal/db.sqlite3",
	} {
		dsn := dsn
		t.Run(dsn, func(t *testing.T) {
			t.Setenv("DATABASE_URL", dsn)

			root, configPath := newProject(t, `
[steps.sync_deps]
cmds = ["echo sync-deps >> order.log"]

[steps.collect_static]
cmds = ["echo collect-static >> order.log"]

[steps.migrate]
cmds = ["echo migrate >> order.log", 'echo "$DATABASE_URL" > env.log']
`)

			code, _, stderr := runTool("deploy", "--root", root, "--config", configPath)
			require.Equal(t, 0, code, stderr)

			assert.Equal(t, "sync-deps\ncollect-static\nmigrate\n", readFile(t, filepath.Join(root, "order.log")))
			assert.Equal(t, dsn+"\n", readFile(t, filepath.Join(root, "env.log")))
		})
	}
}

func TestDeploy_DotEnvDatabaseURLIsPassedThrough(t *testing.T) {
	t.Setenv("DATABASE_URL", "")
	require.NoError(t, os.Unsetenv("DATABASE_URL"))

	root, configPath := newProject(t, "")
	require.NoError(t, os.WriteFile(filepath.Join(root, ".env"),
		[]byte("DATABASE_URL=postgis://user:pw@db:5432/lajournal\n"), 0o600))

	code, _, stderr := runTool("deploy", "-n", "--root", root, "--config", configPath)
	require.Equal(t, 0, code, stderr)
	assert.Contains(t, stderr, "Done")
}

func TestDeploy_InvalidDatabaseURL(t *testing.T) {
	root, configPath := newProject(t, `
database_url = "postgres://localhost:notaport/lajournal"
`)

	code, _, stderr := runTool("deploy", "--root", root, "--config", configPath)
	assert.Equal(t, 1, code)
	assert.Contains(t, stderr, "database_url")
	assert.Empty(t, readFile(t, filepath.Join(root, "order.log")))
}

func TestDeploy_RejectsArguments(t *testing.T) {
	root, configPath := newProject(t, "")

	code, _, _ := runTool("deploy", "--root", root, "--config", configPath, "migrate")
	assert.Equal(t, 1, code)
	assert.Empty(t, readFile(t, filepath.Join(root, "order.log")))
}

func TestDeploy_MissingConfigFile(t *testing.T) {
	root, _ := newProject(t, "")

	code, _, stderr := runTool("deploy", "--root", root, "--config", filepath.Join(root, "nope.toml"))
	assert.Equal(t, 1, code)
	assert.Contains(t, stderr, "Could not open config file")
}

func TestDeploy_MissingRoot(t *testing.T) {
	_, configPath := newProject(t, "")

	code, _, stderr := runTool("deploy", "--root", filepath.Join(t.TempDir(), "missing"), "--config", configPath)
	assert.Equal(t, 1, code)
	assert.Contains(t, stderr, "Could not find project root")
}

func TestSteps_ListsFixedOrder(t *testing.T) {
	root, configPath := newProject(t, `
[steps.migrate]
base = "//backend"
`)

	code, stdout, stderr := runTool("steps", "--root", root, "--config", configPath)
	require.Equal(t, 0, code, stderr)

	syncIdx := bytes.Index([]byte(stdout), []byte("1. sync-deps"))
	staticIdx := bytes.Index([]byte(stdout), []byte("2. collect-static"))
	migrateIdx := bytes.Index([]byte(stdout), []byte("3. migrate"))
	require.True(t, syncIdx >= 0 && staticIdx > syncIdx && migrateIdx > staticIdx, stdout)

	assert.Contains(t, stdout, "$ uv sync --frozen")
	assert.Contains(t, stdout, "in "+filepath.Join(root, "backend"))
}

func TestDeploy_DefaultConfigFromRoot(t *testing.T) {
	root, _ := newProject(t, `
[steps.sync_deps]
cmds = ["echo from-root-config >> order.log"]
`)

	code, _, stderr := runTool("deploy", "-n", "--root", root)
	require.Equal(t, 0, code, stderr)

	assert.Contains(t, stderr, "$ echo from-root-config >>order.log")
	assert.NotContains(t, stderr, "pip install uv")
}

func TestSteps_DefaultConfigFromRoot(t *testing.T) {
	root, _ := newProject(t, "")

	code, stdout, stderr := runTool("steps", "--root", root)
	require.Equal(t, 0, code, stderr)

	assert.Contains(t, stdout, "$ echo migrate >> order.log")
	assert.NotContains(t, stdout, "uv run python manage.py migrate")
}

func TestSteps_SelectedSteps(t *testing.T) {
	root, configPath := newProject(t, "")

	code, stdout, stderr := runTool("steps", "--root", root, "--config", configPath, "migrate", "sync-deps")
	require.Equal(t, 0, code, stderr)

	syncIdx := strings.Index(stdout, "1. sync-deps")
	migrateIdx := strings.Index(stdout, "3. migrate")
	require.True(t, syncIdx >= 0 && migrateIdx > syncIdx, stdout)
	assert.NotContains(t, stdout, "collect-static")
}

func TestSteps_UnknownStep(t *testing.T) {
	root, configPath := newProject(t, "")

	code, stdout, stderr := runTool("steps", "--root", root, "--config", configPath, "deploy-frontend")
	assert.Equal(t, 1, code)
	assert.Empty(t, stdout)
	assert.Contains(t, stderr, "unknown step deploy-frontend")
}

func TestExitCode(t *testing.T) {
	t.Parallel()

	assert.Equal(t, 0, exitCode(nil))
	assert.Equal(t, 1, exitCode(os.ErrNotExist))
	assert.Equal(t, 42, exitCode(&deploy.StepError{Step: deploy.StepMigrate, Status: 42}))
}
