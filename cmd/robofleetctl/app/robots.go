package app

import (
	"context"
	"fmt"
	"io"

	"github.com/gosuri/uitable"
	"github.com/spf13/cobra"

	"github.com/autopeer-io/robofleet/internal/scheduler/core"
	"github.com/autopeer-io/robofleet/internal/scheduler/store"
)

func newRobotsCommand(o *ctlOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "robots",
		Short: "List robots with their status and current mission",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return o.withStore(cmd.Context(), func(st store.Store) error {
				return printRobots(cmd.Context(), cmd.OutOrStdout(), st)
			})
		},
	}
}

func printRobots(ctx context.Context, out io.Writer, repo core.Repository) error {
	robots, err := repo.Robots().List(ctx, core.RobotFilter{})
	if err != nil {
		return fmt.Errorf("failed to list robots: %w", err)
	}

	table := uitable.New()
	table.AddRow("NAME", "STATUS", "ENABLED", "FROZEN", "BATTERY", "AREA", "MISSION")
	for _, r := range robots {
		area, mission := "-", "-"
		if r.CurrentAreaID != nil {
			area = *r.CurrentAreaID
		}
		if r.HasCurrentMission() {
			mission = *r.CurrentMissionID
		}
		table.AddRow(r.Name, r.Status, r.Enabled, r.MissionQueueFrozen, fmt.Sprintf("%.0f%%", r.BatteryLevel), area, mission)
	}

	_, err = fmt.Fprintln(out, table)
	return err
}
