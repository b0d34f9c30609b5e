package config

import (
	"os"

	"github.com/cristalhq/aconfig"
	"github.com/cristalhq/aconfig/aconfigtoml"
	"github.com/jackc/pgx/v4/pgxpool"
	"github.com/rotisserie/eris"
	"github.com/rs/zerolog"

	"github.com/klajdicaushi/lajournal-deploy/pkg/deploy"
)

// DefaultFile is read when no config file is passed on the command line
const DefaultFile = "deploy.toml"

// StepConfig overrides the defaults of a single step
type StepConfig struct {
	Base string   `toml:"base" env:"BASE" usage:"Working directory; // marks paths relative to the project root"`
	Cmds []string `toml:"cmds" env:"CMDS" usage:"Commands replacing the step's defaults"`
}

// Config describes all configuration options
type Config struct {
	Root        string `toml:"root" env:"ROOT" usage:"Project root (defaults to the closest parent directory containing manage.py)"`
	EnvFile     string `toml:"env_file" env:"ENV_FILE" default:".env" usage:"dotenv file exported to every step, relative to the project root"`
	DatabaseURL string `toml:"database_url" env:"DATABASE_URL" usage:"PostgreSQL DSN exported to every step as DATABASE_URL (i.e. postgres://localhost/lajournal); a DATABASE_URL already in the environment is passed through unchecked"`
	Log         struct {
		Level string `toml:"level" env:"LEVEL" default:"info"`
		File  string `toml:"file" env:"FILE"`
		JSON  bool   `toml:"json" env:"JSON" default:"false" usage:"Output JSONND instead of pretty console messages"`
	} `toml:"log" env:"LOG"`
	Steps struct {
		SyncDeps      StepConfig `toml:"sync_deps" env:"SYNC_DEPS"`
		CollectStatic StepConfig `toml:"collect_static" env:"COLLECT_STATIC"`
		Migrate       StepConfig `toml:"migrate" env:"MIGRATE"`
	} `toml:"steps" env:"STEPS"`
}

var logLevels = map[string]zerolog.Level{
	"debug":   zerolog.DebugLevel,
	"info":    zerolog.InfoLevel,
	"warn":    zerolog.WarnLevel,
	"warning": zerolog.WarnLevel,
	"error":   zerolog.ErrorLevel,
	"fatal":   zerolog.FatalLevel,
}

// Loader initializes an empty config object and returns a new Loader for this object.
// Command line flags are handled by cobra so the loader only looks at files and DEPLOY_* variables.
// Files that don't exist are skipped.
func Loader(files ...string) (*Config, *aconfig.Loader) {
	if len(files) == 0 {
		files = []string{DefaultFile}
	}

	present := make([]string, 0, len(files))
	for _, file := range files {
		if _, err := os.Stat(file); err == nil {
			present = append(present, file)
		}
	}

	cfg := Config{}
	return &cfg, aconfig.LoaderFor(&cfg, aconfig.Config{
		EnvPrefix:        "DEPLOY",
		SkipFlags:        true,
		AllowUnknownEnvs: true,
		Files:            present,
		FileDecoders: map[string]aconfig.FileDecoder{
			".toml": aconfigtoml.New(),
		},
	})
}

// Validate verifies that all config fields have valid values.
// Only database_url set in the config is checked; DATABASE_URL from the environment belongs to the steps.
func (cfg *Config) Validate() error {
	if cfg.DatabaseURL != "" {
		_, err := pgxpool.ParseConfig(cfg.DatabaseURL)
		if err != nil {
			return eris.Wrapf(err, `Invalid value for database_url`)
		}
	}

	_, ok := logLevels[cfg.Log.Level]
	if !ok {
		return eris.Errorf(`Invalid value for log.level: %s`, cfg.Log.Level)
	}

	return nil
}

// LogLevel converts the .Log.Level field to a zerolog.Level
func (cfg *Config) LogLevel() zerolog.Level {
	return logLevels[cfg.Log.Level]
}

// StepSpecs returns the step overrides in the form deploy.NewPipeline expects
func (cfg *Config) StepSpecs() map[string]deploy.StepSpec {
	return map[string]deploy.StepSpec{
		deploy.StepSyncDeps: {
			Base: cfg.Steps.SyncDeps.Base,
			Cmds: cfg.Steps.SyncDeps.Cmds,
		},
		deploy.StepCollectStatic: {
			Base: cfg.Steps.CollectStatic.Base,
			Cmds: cfg.Steps.CollectStatic.Cmds,
		},
		deploy.StepMigrate: {
			Base: cfg.Steps.Migrate.Base,
			Cmds: cfg.Steps.Migrate.Cmds,
		},
	}
}
