package options

import (
	"fmt"
	"net/url"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/spf13/pflag"
)

var _ IOptions = (*ReportOptions)(nil)

// ReportOptions configures the daily inspection findings report.
type ReportOptions struct {
	Enabled bool `json:"enabled" mapstructure:"enabled"`

	// Schedule is a standard five field cron expression evaluated in UTC.
	Schedule string `json:"schedule" mapstructure:"schedule"`

	// Window is how far back findings are collected.
	Window time.Duration `json:"window" mapstructure:"window"`

	// WebhookURL receives the rendered report.
	WebhookURL string `json:"webhook-url" mapstructure:"webhook-url"`
}

func NewReportOptions() *ReportOptions {
	return &ReportOptions{
		Enabled:  true,
		Schedule: "19 14 * * *",
		Window:   24 * time.Hour,
	}
}

func (o *ReportOptions) Validate() []error {
	if !o.Enabled {
		return nil
	}

	var errs []error

	if _, err := cron.ParseStandard(o.Schedule); err != nil {
		errs = append(errs, fmt.Errorf("report: invalid schedule %q: %w", o.Schedule, err))
	}
	if o.Window <= 0 {
		errs = append(errs, fmt.Errorf("report: window must be positive"))
	}
	if o.WebhookURL != "" {
		if _, err := url.ParseRequestURI(o.WebhookURL); err != nil {
			errs = append(errs, fmt.Errorf("report: invalid webhook url: %w", err))
		}
	}

	return errs
}

func (o *ReportOptions) AddFlags(fs *pflag.FlagSet, prefixes ...string) {
	fs.BoolVar(&o.Enabled, "report.enabled", o.Enabled, "Send the daily inspection findings report.")
	fs.StringVar(&o.Schedule, "report.schedule", o.Schedule, "Cron expression (UTC) of the findings report.")
	fs.DurationVar(&o.Window, "report.window", o.Window, "How far back findings are collected.")
	fs.StringVar(&o.WebhookURL, "report.webhook-url", o.WebhookURL, "Webhook receiving the findings report.")
}
