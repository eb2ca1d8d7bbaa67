// Package app implements robofleetctl, an operator CLI reading the scheduler
// state store.
package app

import (
	"context"
	"time"

	"github.com/spf13/cobra"
	"k8s.io/utils/clock"

	"github.com/autopeer-io/robofleet/internal/scheduler/store"
	"github.com/autopeer-io/robofleet/pkg/options"
)

type ctlOptions struct {
	database *options.DatabaseOptions
	schedule *options.ScheduleOptions
	clock    clock.PassiveClock

	// open replaces store.New in tests.
	open func(ctx context.Context, opts *options.DatabaseOptions) (store.Store, error)
}

// NewCommand returns the robofleetctl root command.
func NewCommand() *cobra.Command {
	o := &ctlOptions{
		database: options.NewDatabaseOptions(),
		schedule: options.NewScheduleOptions(),
		clock:    clock.RealClock{},
		open:     store.New,
	}

	cmd := &cobra.Command{
		Use:           "robofleetctl",
		Short:         "Inspect the robofleet scheduler state",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	fs := cmd.PersistentFlags()
	o.database.AddFlags(fs)
	fs.StringVar(&o.schedule.Timezone, "schedule.timezone", o.schedule.Timezone, "Time zone of mission definition times of day.")

	cmd.AddCommand(newPlanCommand(o), newRobotsCommand(o))
	return cmd
}

func (o *ctlOptions) withStore(ctx context.Context, fn func(store.Store) error) error {
	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	st, err := o.open(ctx, o.database)
	if err != nil {
		return err
	}
	defer st.Close()

	return fn(st)
}
