package server

import (
	"context"
	"errors"

	"golang.org/x/sync/errgroup"

	"github.com/autopeer-io/robofleet/internal/scheduler/server/http"
	"github.com/autopeer-io/robofleet/internal/scheduler/server/mqtt"
	"github.com/autopeer-io/robofleet/pkg/log"
	pkgmqtt "github.com/autopeer-io/robofleet/pkg/mqtt"
	"github.com/autopeer-io/robofleet/pkg/mqtt/topic"
)

// Server defines the common interface for all sub-servers and background
// workers run by the Manager.
type Server interface {
	Start(ctx context.Context) error
}

// ServerFunc adapts a function to the Server interface.
type ServerFunc func(ctx context.Context) error

func (f ServerFunc) Start(ctx context.Context) error { return f(ctx) }

// Deps are the adapters the protocol servers are built on.
type Deps struct {
	Operator   http.Operator
	Skipper    http.Skipper
	Client     pkgmqtt.Client
	Dispatcher mqtt.Submitter
	Checks     []http.ReadyCheck
}

// Manager manages the lifecycle of all protocol servers.
type Manager struct {
	servers []Server
}

// NewManager creates a new server manager and initializes all sub-servers.
func NewManager(cfg *Config, deps Deps) *Manager {
	topics := topic.NewBuilder(cfg.MqttOptions.TopicRoot)
	if cfg.MqttOptions.SharedGroup != "" {
		topics = topics.Shared(cfg.MqttOptions.SharedGroup)
	}

	// 1. MQTT ingress (telemetry)
	mqttSrv := mqtt.NewServer(deps.Client, topics, deps.Dispatcher, cfg.MqttOptions.QoS)

	// 2. HTTP (operator API, health and metrics)
	checks := append([]http.ReadyCheck{brokerCheck(mqttSrv)}, deps.Checks...)
	httpSrv := http.NewServer(cfg.HttpOptions, deps.Operator, deps.Skipper, checks...)

	return &Manager{
		servers: []Server{mqttSrv, httpSrv},
	}
}

// Add registers additional servers started alongside the protocol servers.
func (m *Manager) Add(servers ...Server) {
	m.servers = append(m.servers, servers...)
}

// Start launches all servers in parallel and waits for termination.
// The first failing server cancels the others.
func (m *Manager) Start(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)

	for _, srv := range m.servers {
		g.Go(func() error {
			return srv.Start(ctx)
		})
	}

	log.Info("All servers starting...", "count", len(m.servers))
	return g.Wait()
}

func brokerCheck(srv *mqtt.Server) http.ReadyCheck {
	return func(context.Context) error {
		if !srv.Ready() {
			return errors.New("mqtt broker not connected")
		}
		return nil
	}
}
