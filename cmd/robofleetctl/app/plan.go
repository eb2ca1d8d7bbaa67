package app

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/gosuri/uitable"
	"github.com/spf13/cobra"

	"github.com/autopeer-io/robofleet/internal/scheduler/core"
	"github.com/autopeer-io/robofleet/internal/scheduler/core/model"
	"github.com/autopeer-io/robofleet/internal/scheduler/store"
)

func newPlanCommand(o *ctlOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "plan",
		Short: "Show the auto-scheduled occurrences due before the next UTC midnight",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			loc, err := o.schedule.Location()
			if err != nil {
				return err
			}
			return o.withStore(cmd.Context(), func(st store.Store) error {
				return printPlan(cmd.Context(), cmd.OutOrStdout(), st, o.clock.Now(), loc)
			})
		},
	}
}

func printPlan(ctx context.Context, out io.Writer, repo core.Repository, now time.Time, loc *time.Location) error {
	defs, err := repo.Definitions().List(ctx, core.DefinitionFilter{WithFrequency: true})
	if err != nil {
		return fmt.Errorf("failed to list mission definitions: %w", err)
	}

	table := uitable.New()
	table.MaxColWidth = 40
	table.AddRow("DEFINITION", "INSTALLATION", "TIME", "DUE AT", "IN", "SCHEDULED")

	today := model.JobDay(now)
	for _, def := range defs {
		freq := def.AutoScheduleFrequency
		for _, due := range freq.DueTimes(now, loc) {
			scheduled := freq.Jobs.Day == today && freq.Jobs.Has(due.TimeOfDay)
			table.AddRow(
				def.Name,
				def.InstallationCode,
				due.TimeOfDay,
				now.Add(due.Delay).In(loc).Format("2006-01-02 15:04 MST"),
				due.Delay.Round(time.Minute),
				scheduled,
			)
		}
	}

	_, err = fmt.Fprintln(out, table)
	return err
}
