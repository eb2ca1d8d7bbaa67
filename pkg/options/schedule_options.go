package options

import (
	"fmt"
	"time"
	_ "time/tzdata" // zone database for hosts without one

	"github.com/spf13/pflag"
)

var _ IOptions = (*ScheduleOptions)(nil)

// ScheduleOptions tunes the auto-scheduler, the availability queue and the
// telemetry dispatcher.
type ScheduleOptions struct {
	// Interval between auto-scheduler ticks.
	Interval time.Duration `json:"interval" mapstructure:"interval"`

	// Timezone is the IANA zone mission definition times-of-day are expressed in.
	Timezone string `json:"timezone" mapstructure:"timezone"`

	// LaunchWorkers drain the robot availability queue.
	LaunchWorkers int `json:"launch-workers" mapstructure:"launch-workers"`

	// LaunchRetries bounds re-evaluations of a robot after a failed launch attempt.
	LaunchRetries int `json:"launch-retries" mapstructure:"launch-retries"`

	// TelemetryWorkers process telemetry messages concurrently.
	TelemetryWorkers int `json:"telemetry-workers" mapstructure:"telemetry-workers"`

	// TelemetryBuffer is the capacity of the telemetry channel.
	TelemetryBuffer int `json:"telemetry-buffer" mapstructure:"telemetry-buffer"`
}

func NewScheduleOptions() *ScheduleOptions {
	return &ScheduleOptions{
		Interval:         3 * time.Minute,
		Timezone:         "Europe/Oslo",
		LaunchWorkers:    2,
		LaunchRetries:    5,
		TelemetryWorkers: 8,
		TelemetryBuffer:  1024,
	}
}

// Location loads the configured time zone.
func (o *ScheduleOptions) Location() (*time.Location, error) {
	return time.LoadLocation(o.Timezone)
}

func (o *ScheduleOptions) Validate() []error {
	var errs []error

	if o.Interval <= 0 {
		errs = append(errs, fmt.Errorf("schedule: interval must be positive"))
	}
	if _, err := o.Location(); err != nil {
		errs = append(errs, fmt.Errorf("schedule: %w", err))
	}
	if o.LaunchWorkers < 1 || o.TelemetryWorkers < 1 {
		errs = append(errs, fmt.Errorf("schedule: worker counts must be at least 1"))
	}
	if o.TelemetryBuffer < 1 {
		errs = append(errs, fmt.Errorf("schedule: telemetry buffer must be at least 1"))
	}

	return errs
}

func (o *ScheduleOptions) AddFlags(fs *pflag.FlagSet, prefixes ...string) {
	fs.DurationVar(&o.Interval, "schedule.interval", o.Interval, "Interval between auto-scheduler runs.")
	fs.StringVar(&o.Timezone, "schedule.timezone", o.Timezone, "Time zone of mission definition times of day.")
	fs.IntVar(&o.LaunchWorkers, "schedule.launch-workers", o.LaunchWorkers, "Workers evaluating robots that became available.")
	fs.IntVar(&o.LaunchRetries, "schedule.launch-retries", o.LaunchRetries, "Re-evaluations of a robot after a failed launch attempt.")
	fs.IntVar(&o.TelemetryWorkers, "schedule.telemetry-workers", o.TelemetryWorkers, "Workers processing telemetry messages.")
	fs.IntVar(&o.TelemetryBuffer, "schedule.telemetry-buffer", o.TelemetryBuffer, "Capacity of the telemetry message channel.")
}
