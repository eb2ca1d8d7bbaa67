package scheduler

import (
	"context"
	"fmt"
	"os"

	"github.com/autopeer-io/robofleet/internal/scheduler/autoschedule"
	"github.com/autopeer-io/robofleet/internal/scheduler/availability"
	"github.com/autopeer-io/robofleet/internal/scheduler/core/service"
	"github.com/autopeer-io/robofleet/internal/scheduler/executor"
	"github.com/autopeer-io/robofleet/internal/scheduler/jobs"
	"github.com/autopeer-io/robofleet/internal/scheduler/notifier"
	"github.com/autopeer-io/robofleet/internal/scheduler/report"
	"github.com/autopeer-io/robofleet/internal/scheduler/server"
	"github.com/autopeer-io/robofleet/internal/scheduler/server/http"
	"github.com/autopeer-io/robofleet/internal/scheduler/store"
	"github.com/autopeer-io/robofleet/internal/scheduler/telemetry"
	"github.com/autopeer-io/robofleet/pkg/log"
	"github.com/autopeer-io/robofleet/pkg/mqtt"
	"github.com/autopeer-io/robofleet/pkg/mqtt/topic"
	"github.com/autopeer-io/robofleet/pkg/options"
)

type Config struct {
	HttpOptions         *options.HttpOptions
	GrpcOptions         *options.GrpcOptions
	MqttOptions         *options.MqttOptions
	DatabaseOptions     *options.DatabaseOptions
	RedisOptions        *options.RedisOptions
	ScheduleOptions     *options.ScheduleOptions
	NotificationOptions *options.NotificationOptions
	ReportOptions       *options.ReportOptions
	S3Options           *options.S3Options
}

// NewScheduler builds the adapters, the core service and the servers.
// Resources opened before a failure are released.
func (cfg *Config) NewScheduler(ctx context.Context) (_ *Scheduler, err error) {
	s := &Scheduler{}
	defer func() {
		if err != nil {
			s.close()
		}
	}()

	// 1. Infrastructure: state store
	st, err := store.New(ctx, cfg.DatabaseOptions)
	if err != nil {
		return nil, fmt.Errorf("failed to open store: %w", err)
	}
	s.store = st
	s.closers = append(s.closers, st.Close)

	// 2. Infrastructure: availability queue and executor client
	queue := availability.New(availability.WithMaxRetries(cfg.ScheduleOptions.LaunchRetries))

	exec, err := executor.NewClient(cfg.GrpcOptions)
	if err != nil {
		return nil, fmt.Errorf("failed to init executor client: %w", err)
	}

	// 3. Core domain service
	svc := service.New(st, exec, queue)

	// 4. Deferred jobs, notifications and the auto-scheduler
	js, err := jobs.New(ctx, cfg.RedisOptions)
	if err != nil {
		return nil, fmt.Errorf("failed to init job scheduler: %w", err)
	}
	if r, ok := js.(*jobs.Redis); ok {
		s.closers = append(s.closers, r.Close)
	}

	mqttClient, err := initializeMQTTClient(cfg.MqttOptions)
	if err != nil {
		return nil, err
	}

	notif, err := notifier.New(cfg.NotificationOptions, mqttClient,
		topic.NewBuilder(cfg.MqttOptions.NotificationRoot), cfg.MqttOptions.QoS)
	if err != nil {
		return nil, fmt.Errorf("failed to init notifier: %w", err)
	}
	log.Info("Failure notifications configured", "sinks", notif.Sinks())

	loc, err := cfg.ScheduleOptions.Location()
	if err != nil {
		return nil, err
	}
	auto := autoschedule.New(st, js, svc, notif,
		autoschedule.WithLocation(loc),
		autoschedule.WithInterval(cfg.ScheduleOptions.Interval),
	)

	// 5. Telemetry dispatcher
	dispatcher := telemetry.NewDispatcher(cfg.ScheduleOptions.TelemetryBuffer, cfg.ScheduleOptions.TelemetryWorkers)
	telemetry.RegisterHandlers(dispatcher, svc)

	// 6. Ingress servers and background workers
	s.manager = server.NewManager(&server.Config{
		HttpOptions: cfg.HttpOptions,
		MqttOptions: cfg.MqttOptions,
	}, server.Deps{
		Operator:   svc,
		Skipper:    auto,
		Client:     mqttClient,
		Dispatcher: dispatcher,
		Checks:     []http.ReadyCheck{st.Ping},
	})

	launchWorkers := cfg.ScheduleOptions.LaunchWorkers
	s.manager.Add(
		exec,
		server.ServerFunc(dispatcher.Run),
		server.ServerFunc(func(ctx context.Context) error {
			queue.Run(ctx, launchWorkers, svc.LaunchNext)
			return nil
		}),
		server.ServerFunc(func(ctx context.Context) error {
			return js.Run(ctx, auto.RunJob)
		}),
		auto,
	)

	if reporter := cfg.newReporter(st); reporter != nil {
		schedule := cfg.ReportOptions.Schedule
		s.manager.Add(server.ServerFunc(func(ctx context.Context) error {
			return reporter.Start(ctx, schedule)
		}))
	}

	s.queue = queue
	return s, nil
}

// newReporter returns nil when the findings report is disabled or has no
// webhook to post to.
func (cfg *Config) newReporter(st store.Store) *report.Reporter {
	if !cfg.ReportOptions.Enabled {
		return nil
	}

	url := cfg.ReportOptions.WebhookURL
	if url == "" {
		url = cfg.NotificationOptions.WebhookURL
	}
	if url == "" {
		log.Warn("Findings report enabled without a webhook, report disabled")
		return nil
	}

	var opts []report.Option
	if cfg.S3Options.Enabled() {
		archive, err := report.NewMinIOArchive(cfg.S3Options)
		if err != nil {
			log.Error(err, "Report archiving disabled")
		} else {
			opts = append(opts, report.WithArchive(archive))
		}
	}

	poster := notifier.NewWebhook(url, cfg.NotificationOptions.RateLimit, cfg.NotificationOptions.Burst)
	return report.New(st.MissionRuns(), poster, cfg.ReportOptions.Window, opts...)
}

func initializeMQTTClient(opts *options.MqttOptions) (mqtt.Client, error) {
	cfg := opts.ToClientConfig()

	if cfg.ClientID == "" {
		hostname, _ := os.Hostname()
		cfg.ClientID = fmt.Sprintf("robofleet-scheduler-%s", hostname)
	}

	client, err := mqtt.NewClient(cfg)
	if err != nil {
		log.Error(err, "failed to create mqtt client")
		return nil, err
	}
	return client, nil
}
