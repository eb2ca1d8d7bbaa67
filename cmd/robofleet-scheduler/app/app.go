package app

import (
	"fmt"

	genericapiserver "k8s.io/apiserver/pkg/server"

	"github.com/autopeer-io/robofleet/cmd/robofleet-scheduler/app/options"
	"github.com/autopeer-io/robofleet/pkg/app"
	"github.com/autopeer-io/robofleet/pkg/log"
)

const (
	commandName = "robofleet-scheduler"
	commandDesc = `The robofleet scheduler admits and launches inspection missions on a fleet
of robots. It follows executor telemetry over MQTT, starts and stops missions
through the executor gRPC gateway, places recurring missions on their daily
times and exposes an operator HTTP API.`
)

func NewApp() *app.App {
	opts := options.NewSchedulerOptions()
	application := app.NewApp(
		commandName,
		"Launch the robofleet mission scheduler",
		app.WithDescription(commandDesc),
		app.WithOptions(opts),
		app.WithDefaultValidArgs(),
		app.WithWatchConfig(nil),
		app.WithRunFunc(run(opts)),
	)
	return application
}

func run(opts *options.SchedulerOptions) app.RunFunc {
	return func() error {
		log.Init(opts.Log)
		defer func() { _ = log.Sync() }()

		ctx := genericapiserver.SetupSignalContext()

		cfg, err := opts.Config()
		if err != nil {
			return fmt.Errorf("failed to load configuration: %w", err)
		}

		scheduler, err := cfg.NewScheduler(ctx)
		if err != nil {
			return fmt.Errorf("failed to create scheduler: %w", err)
		}

		return scheduler.Run(ctx)
	}
}
