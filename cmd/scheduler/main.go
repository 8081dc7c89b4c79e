package main

import (
	"os"

	"github.com/spf13/cobra"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

// flagOverrides holds CLI flags that take precedence over the environment.
type flagOverrides struct {
	pipelinesFile string
	logLevel      string
	logFormat     string
}

func newRootCmd() *cobra.Command {
	var flags flagOverrides

	root := &cobra.Command{
		Use:   "pipeline-scheduler",
		Short: "Run HTTP-to-postgres pipelines on cron schedules",
		Long: `pipeline-scheduler reads pipeline definitions from a YAML file and runs
each one on its 6-field cron schedule (second minute hour day month weekday).

Run the scheduler:
  pipeline-scheduler run -p pipelines.yaml

Check a pipelines file and preview upcoming fire times:
  pipeline-scheduler validate -p pipelines.yaml`,
		SilenceUsage: true,
	}

	root.PersistentFlags().StringVarP(&flags.pipelinesFile, "pipelines", "p", "", "pipelines file (overrides PIPELINES_FILE)")
	root.PersistentFlags().StringVar(&flags.logLevel, "log-level", "", "debug, info, warn or error (overrides LOG_LEVEL)")
	root.PersistentFlags().StringVar(&flags.logFormat, "log-format", "", "text or json (overrides LOG_FORMAT)")

	root.AddCommand(newRunCmd(&flags), newValidateCmd(&flags))
	return root
}
