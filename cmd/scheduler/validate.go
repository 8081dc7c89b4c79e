package main

import (
	"fmt"
	"io"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/ErlanBelekov/pipeline-scheduler/internal/cronspec"
	"github.com/ErlanBelekov/pipeline-scheduler/internal/pipeline"
	"github.com/spf13/cobra"
)

func newValidateCmd(flags *flagOverrides) *cobra.Command {
	var count int

	cmd := &cobra.Command{
		Use:   "validate",
		Short: "Check the pipelines file and print upcoming fire times",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(flags)
			if err != nil {
				return err
			}
			pipelines, err := pipeline.LoadFile(cfg.PipelinesFile)
			if err != nil {
				return err
			}
			return printSchedule(cmd.OutOrStdout(), pipelines, time.Now().In(cfg.Location()), count)
		},
	}

	cmd.Flags().IntVarP(&count, "count", "n", 3, "number of upcoming fire times to show per pipeline")
	return cmd
}

// printSchedule writes one line per pipeline and returns an error naming
// every pipeline whose schedule does not parse.
func printSchedule(w io.Writer, cfg *pipeline.Config, now time.Time, count int) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "PIPELINE\tSCHEDULE\tNEXT")

	var invalid []string
	for _, p := range cfg.Pipelines {
		sched, err := cronspec.Parse(p.Schedule)
		if err != nil {
			invalid = append(invalid, p.ID)
			fmt.Fprintf(tw, "%s\t%s\tinvalid: %v\n", p.ID, p.Schedule, err)
			continue
		}

		next := cronspec.NextN(sched, now, count)
		times := make([]string, len(next))
		for i, t := range next {
			times[i] = t.Format(time.RFC3339)
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\n", p.ID, p.Schedule, strings.Join(times, ", "))
	}
	if err := tw.Flush(); err != nil {
		return err
	}

	if len(invalid) > 0 {
		return fmt.Errorf("invalid schedule for pipeline(s): %s", strings.Join(invalid, ", "))
	}
	return nil
}
