// Package notifier delivers failure reports to operators.
package notifier

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/autopeer-io/robofleet/internal/pkg/metrics"
	"github.com/autopeer-io/robofleet/internal/scheduler/core"
	"github.com/autopeer-io/robofleet/pkg/log"
	"github.com/autopeer-io/robofleet/pkg/mqtt"
	"github.com/autopeer-io/robofleet/pkg/mqtt/topic"
	"github.com/autopeer-io/robofleet/pkg/options"
)

// Sink is a single report destination.
type Sink interface {
	core.Notifier
	Name() string
}

// Report is the payload shared by every sink.
type Report struct {
	Message   string            `json:"message"`
	Fields    map[string]string `json:"fields,omitempty"`
	Timestamp time.Time         `json:"timestamp"`
}

// Fanout forwards each report to every sink. A failing sink does not keep
// the others from receiving the report.
type Fanout struct {
	sinks  []Sink
	logger log.Logger
}

var _ core.Notifier = (*Fanout)(nil)

// NewFanout creates a notifier over sinks.
func NewFanout(sinks ...Sink) *Fanout {
	return &Fanout{sinks: sinks, logger: log.WithName("notifier")}
}

// New builds the sinks enabled in opts. client may be nil when MQTT is not in use.
func New(opts *options.NotificationOptions, client mqtt.Client, topics *topic.Builder, qos int) (*Fanout, error) {
	var sinks []Sink

	if opts.WebhookURL != "" {
		sinks = append(sinks, NewWebhook(opts.WebhookURL, opts.RateLimit, opts.Burst))
	}
	if opts.MQTT && client != nil {
		sinks = append(sinks, NewMQTT(client, topics.Notification(topic.Failure, "scheduler"), qos))
	}
	if opts.TelegramToken != "" {
		tg, err := NewTelegram(opts.TelegramToken, opts.TelegramChatID)
		if err != nil {
			return nil, err
		}
		sinks = append(sinks, tg)
	}

	return NewFanout(sinks...), nil
}

// Sinks returns the names of the configured sinks.
func (f *Fanout) Sinks() []string {
	names := make([]string, 0, len(f.sinks))
	for _, s := range f.sinks {
		names = append(names, s.Name())
	}
	return names
}

func (f *Fanout) ReportFailure(ctx context.Context, message string, fields map[string]string) error {
	if len(f.sinks) == 0 {
		f.logger.Warn("No notification sink configured, dropping report", "message", message)
		return nil
	}

	var errs []error
	for _, s := range f.sinks {
		if err := s.ReportFailure(ctx, message, fields); err != nil {
			metrics.NotificationsTotal.WithLabelValues(s.Name(), "failed").Inc()
			errs = append(errs, fmt.Errorf("%s: %w", s.Name(), err))
			continue
		}
		metrics.NotificationsTotal.WithLabelValues(s.Name(), "sent").Inc()
	}
	return errors.Join(errs...)
}

// formatText renders a report as plain text with fields in key order.
func formatText(message string, fields map[string]string) string {
	var b strings.Builder
	b.WriteString(message)
	for _, k := range sortedKeys(fields) {
		fmt.Fprintf(&b, "\n%s: %s", k, fields[k])
	}
	return b.String()
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
