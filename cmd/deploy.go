package cmd

import (
	"io"
	"os"
	"path/filepath"

	"github.com/aidarkhanov/nanoid"
	"github.com/rotisserie/eris"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/klajdicaushi/lajournal-deploy/pkg"
	"github.com/klajdicaushi/lajournal-deploy/pkg/config"
	"github.com/klajdicaushi/lajournal-deploy/pkg/deploy"
)

func newDeployCmd() *cobra.Command {
	deployCmd := &cobra.Command{
		Use:   "deploy",
		Short: "Syncs dependencies, collects static assets and migrates the database",
		Long: `Runs the release steps (sync-deps, collect-static, migrate) in this order and stops at the
first failing command. The exit status of that command becomes the exit status of this one.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			dryRun, err := cmd.Flags().GetBool("dry")
			if err != nil {
				return err
			}

			reportPath, err := cmd.Flags().GetString("report")
			if err != nil {
				return err
			}

			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}

			root, err := resolveRoot(cfg)
			if err != nil {
				return err
			}

			envFile := cfg.EnvFile
			if envFile != "" && !filepath.IsAbs(envFile) {
				envFile = filepath.Join(root, envFile)
			}

			dotenv, err := deploy.LoadDotEnv(envFile)
			if err != nil {
				return err
			}

			if err = cfg.Validate(); err != nil {
				return eris.Wrap(err, "Failed to parse config")
			}

			logger, closeLog, err := newLogger(cfg, cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			defer closeLog()

			runID := nanoid.New()
			logger = logger.With().Str("run", runID).Logger()
			ctx := deploy.WithLogger(cmd.Context(), &logger)

			pipeline, err := deploy.NewPipeline(root, cfg.StepSpecs())
			if err != nil {
				return err
			}

			overrides := map[string]string{}
			if cfg.DatabaseURL != "" {
				overrides["DATABASE_URL"] = cfg.DatabaseURL
			}

			logger.Info().Str("path", root).Bool("dry", dryRun).Msgf("Deploying %s", root)
			report, runErr := deploy.Run(ctx, pipeline, deploy.Options{
				EnvDefaults: dotenv,
				Env:         overrides,
				Stdout:      cmd.OutOrStdout(),
				Stderr:      cmd.ErrOrStderr(),
				RunID:       runID,
				Root:        root,
				DryRun:      dryRun,
			})

			if reportPath != "" {
				err = deploy.WriteReport(reportPath, report)
				if err != nil {
					logger.Error().Err(err).Msg("Failed to write report")
					if runErr == nil {
						runErr = err
					}
				}
			}

			if runErr == nil {
				logger.Info().Msg("Done")
			}
			return runErr
		},
	}

	addConfigFlags(deployCmd)
	deployCmd.Flags().BoolP("dry", "n", false, "dry run; only print the commands, don't execute anything")
	deployCmd.Flags().StringP("report", "r", "", "write a YAML summary of the run to this file")
	return deployCmd
}

func addConfigFlags(cmd *cobra.Command) {
	cmd.Flags().StringP("config", "c", config.DefaultFile, "TOML config file")
	cmd.Flags().String("root", "", "project root (overrides the config file)")
}

func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	configFile, err := cmd.Flags().GetString("config")
	if err != nil {
		return nil, err
	}

	root, err := cmd.Flags().GetString("root")
	if err != nil {
		return nil, err
	}

	if cmd.Flags().Changed("config") {
		_, err = os.Stat(configFile)
		if err != nil {
			return nil, eris.Wrapf(err, "Could not open config file %s", configFile)
		}
	} else {
		configFile = filepath.Join(defaultConfigDir(root), config.DefaultFile)
	}

	cfg, loader := config.Loader(configFile)
	if err = loader.Load(); err != nil {
		return nil, eris.Wrapf(err, "Failed to load %s", configFile)
	}

	if root != "" {
		cfg.Root = root
	}

	return cfg, nil
}

// defaultConfigDir is where deploy.toml is looked up when --config isn't passed: the --root directory,
// else the project found from the working directory, else the working directory itself.
func defaultConfigDir(rootFlag string) string {
	if rootFlag != "" {
		return rootFlag
	}

	wd, err := os.Getwd()
	if err != nil {
		return ""
	}

	root, err := pkg.GetProjectRoot(wd)
	if err != nil {
		return ""
	}

	return root
}

// resolveRoot returns the configured root or searches for the project from the working directory
func resolveRoot(cfg *config.Config) (string, error) {
	if cfg.Root == "" {
		wd, err := os.Getwd()
		if err != nil {
			return "", eris.Wrap(err, "Failed to retrieve the current working directory")
		}

		return pkg.GetProjectRoot(wd)
	}

	root, err := filepath.Abs(cfg.Root)
	if err != nil {
		return "", eris.Wrapf(err, "Failed to resolve %s", cfg.Root)
	}

	info, err := os.Stat(root)
	if err != nil {
		return "", eris.Wrapf(err, "Could not find project root %s", root)
	}

	if !info.IsDir() {
		return "", eris.Errorf("%s is not a directory!", root)
	}

	return root, nil
}

func newLogger(cfg *config.Config, out io.Writer) (zerolog.Logger, func(), error) {
	var writer io.Writer
	if cfg.Log.JSON {
		writer = out
	} else {
		writer = NewConsoleWriter(out, os.Getenv("NO_COLOR") != "")
	}

	closeLog := func() {}
	if cfg.Log.File != "" {
		logFile, err := os.Create(cfg.Log.File)
		if err != nil {
			return zerolog.Logger{}, nil, eris.Wrapf(err, "Failed to open log file %s", cfg.Log.File)
		}

		// the log file always receives JSONND
		writer = zerolog.MultiLevelWriter(writer, logFile)
		closeLog = func() {
			logFile.Close()
		}
	}

	logger := zerolog.New(writer).Level(cfg.LogLevel()).With().Timestamp().Logger()
	return logger, closeLog, nil
}
