package cmd

import (
	"fmt"
	"os"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/klajdicaushi/lajournal-deploy/pkg"
	"github.com/klajdicaushi/lajournal-deploy/pkg/deploy"
)

func newStepsCmd() *cobra.Command {
	stepsCmd := &cobra.Command{
		Use:   "steps [step...]",
		Short: "Lists the deployment steps and the commands they run",
		Long:  "Lists all deployment steps in the order they run, or only the named ones.",
		Args:  cobra.ArbitraryArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}

			root, err := resolveRoot(cfg)
			if err != nil {
				// listing works without a project, bases are shown relative to the working directory then
				root, err = os.Getwd()
				if err != nil {
					return err
				}
			}

			pipeline, err := deploy.NewPipeline(root, cfg.StepSpecs())
			if err != nil {
				return err
			}

			selected := make(map[string]bool, len(args))
			for _, name := range args {
				if pipeline.Find(name) == nil {
					return eris.Errorf("unknown step %s (valid steps are %s)", name, strings.Join(deploy.Order, ", "))
				}
				selected[name] = true
			}

			out := cmd.OutOrStdout()
			pkg.PrintTask(out, "Deployment steps for "+root)
			for idx, step := range pipeline {
				if len(selected) > 0 && !selected[step.Name] {
					continue
				}

				pkg.PrintSubtask(out, fmt.Sprintf("%d. %s: %s", idx+1, step.Name, step.Desc))
				if step.Base != root {
					fmt.Fprintf(out, "       in %s\n", step.Base)
				}

				for _, line := range step.Cmds {
					fmt.Fprintf(out, "       $ %s\n", line)
				}
			}

			return nil
		},
	}

	addConfigFlags(stepsCmd)
	return stepsCmd
}
