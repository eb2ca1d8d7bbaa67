package options

import (
	utilerrors "k8s.io/apimachinery/pkg/util/errors"
	cliflag "k8s.io/component-base/cli/flag"

	"github.com/autopeer-io/robofleet/internal/scheduler"
	"github.com/autopeer-io/robofleet/pkg/app"
	"github.com/autopeer-io/robofleet/pkg/log"
	"github.com/autopeer-io/robofleet/pkg/options"
)

type SchedulerOptions struct {
	HttpOptions         *options.HttpOptions         `json:"http" mapstructure:"http"`
	GrpcOptions         *options.GrpcOptions         `json:"executor" mapstructure:"executor"`
	MqttOptions         *options.MqttOptions         `json:"mqtt" mapstructure:"mqtt"`
	DatabaseOptions     *options.DatabaseOptions     `json:"database" mapstructure:"database"`
	RedisOptions        *options.RedisOptions        `json:"redis" mapstructure:"redis"`
	ScheduleOptions     *options.ScheduleOptions     `json:"schedule" mapstructure:"schedule"`
	NotificationOptions *options.NotificationOptions `json:"notification" mapstructure:"notification"`
	ReportOptions       *options.ReportOptions       `json:"report" mapstructure:"report"`
	S3Options           *options.S3Options           `json:"s3" mapstructure:"s3"`
	Log                 *log.Options                 `json:"log" mapstructure:"log"`
}

var _ app.NamedFlagSetOptions = (*SchedulerOptions)(nil)

func NewSchedulerOptions() *SchedulerOptions {
	return &SchedulerOptions{
		HttpOptions:         options.NewHttpOptions(),
		GrpcOptions:         options.NewGrpcOptions(),
		MqttOptions:         options.NewMqttOptions(),
		DatabaseOptions:     options.NewDatabaseOptions(),
		RedisOptions:        options.NewRedisOptions(),
		ScheduleOptions:     options.NewScheduleOptions(),
		NotificationOptions: options.NewNotificationOptions(),
		ReportOptions:       options.NewReportOptions(),
		S3Options:           options.NewS3Options(),
		Log:                 log.NewOptions(),
	}
}

func (o *SchedulerOptions) Flags() cliflag.NamedFlagSets {
	fss := cliflag.NamedFlagSets{}
	o.HttpOptions.AddFlags(fss.FlagSet("http"))
	o.GrpcOptions.AddFlags(fss.FlagSet("executor"))
	o.MqttOptions.AddFlags(fss.FlagSet("mqtt"))
	o.DatabaseOptions.AddFlags(fss.FlagSet("database"))
	o.RedisOptions.AddFlags(fss.FlagSet("redis"))
	o.ScheduleOptions.AddFlags(fss.FlagSet("schedule"))
	o.NotificationOptions.AddFlags(fss.FlagSet("notification"))
	o.ReportOptions.AddFlags(fss.FlagSet("report"))
	o.S3Options.AddFlags(fss.FlagSet("s3"))
	o.Log.AddFlags(fss.FlagSet("log"))
	return fss
}

func (o *SchedulerOptions) Complete() error {
	return nil
}

func (o *SchedulerOptions) Validate() error {
	errs := []error{}
	errs = append(errs, o.HttpOptions.Validate()...)
	errs = append(errs, o.GrpcOptions.Validate()...)
	errs = append(errs, o.MqttOptions.Validate()...)
	errs = append(errs, o.DatabaseOptions.Validate()...)
	errs = append(errs, o.RedisOptions.Validate()...)
	errs = append(errs, o.ScheduleOptions.Validate()...)
	errs = append(errs, o.NotificationOptions.Validate()...)
	errs = append(errs, o.ReportOptions.Validate()...)
	errs = append(errs, o.S3Options.Validate()...)
	errs = append(errs, o.Log.Validate()...)
	return utilerrors.NewAggregate(errs)
}

func (o *SchedulerOptions) Config() (*scheduler.Config, error) {
	return &scheduler.Config{
		HttpOptions:         o.HttpOptions,
		GrpcOptions:         o.GrpcOptions,
		MqttOptions:         o.MqttOptions,
		DatabaseOptions:     o.DatabaseOptions,
		RedisOptions:        o.RedisOptions,
		ScheduleOptions:     o.ScheduleOptions,
		NotificationOptions: o.NotificationOptions,
		ReportOptions:       o.ReportOptions,
		S3Options:           o.S3Options,
	}, nil
}
