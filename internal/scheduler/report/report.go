// Package report sends a periodic digest of recorded inspection findings.
package report

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"k8s.io/utils/clock"

	"github.com/autopeer-io/robofleet/internal/scheduler/core"
	"github.com/autopeer-io/robofleet/internal/scheduler/notifier"
	"github.com/autopeer-io/robofleet/pkg/log"
)

// Poster delivers a rendered card.
type Poster interface {
	Post(ctx context.Context, payload any) error
}

// Findings is the archived form of a report.
type Findings struct {
	From     time.Time      `json:"from"`
	To       time.Time      `json:"to"`
	Findings []core.Finding `json:"findings"`
}

// Reporter collects the findings of the last window and posts them as a card.
type Reporter struct {
	runs    core.MissionRunRepository
	poster  Poster
	archive Archive
	window  time.Duration
	clock   clock.PassiveClock
	logger  log.Logger
}

// Option configures a Reporter.
type Option func(*Reporter)

// WithArchive stores every report before it is posted.
func WithArchive(a Archive) Option {
	return func(r *Reporter) { r.archive = a }
}

// WithClock replaces the wall clock, mainly for tests.
func WithClock(c clock.PassiveClock) Option {
	return func(r *Reporter) { r.clock = c }
}

// New creates a Reporter covering window.
func New(runs core.MissionRunRepository, poster Poster, window time.Duration, opts ...Option) *Reporter {
	r := &Reporter{
		runs:   runs,
		poster: poster,
		window: window,
		clock:  clock.RealClock{},
		logger: log.WithName("report"),
	}
	for _, o := range opts {
		o(r)
	}
	return r
}

// Collect returns the findings recorded in the window ending now.
func (r *Reporter) Collect(ctx context.Context) (*Findings, error) {
	now := r.clock.Now().UTC()
	from := now.Add(-r.window)

	findings, err := r.runs.FindingsSince(ctx, from)
	if err != nil {
		return nil, fmt.Errorf("failed to load findings: %w", err)
	}
	return &Findings{From: from, To: now, Findings: findings}, nil
}

// Send collects, archives and posts one report. Nothing is sent when no
// findings were recorded.
func (r *Reporter) Send(ctx context.Context) error {
	report, err := r.Collect(ctx)
	if err != nil {
		return err
	}
	if len(report.Findings) == 0 {
		r.logger.Info("No inspection findings recorded, skipping report", "since", report.From)
		return nil
	}

	var link string
	if r.archive != nil {
		data, err := json.MarshalIndent(report, "", "  ")
		if err != nil {
			return err
		}
		key := fmt.Sprintf("findings/%s.json", report.To.Format("2006-01-02T150405Z"))
		if link, err = r.archive.Put(ctx, key, data); err != nil {
			// The digest is still useful without the archive link.
			r.logger.Error(err, "Failed to archive findings report", "key", key)
		}
	}

	if err := r.poster.Post(ctx, render(report, link)); err != nil {
		return fmt.Errorf("failed to post findings report: %w", err)
	}
	r.logger.Info("Sent inspection findings report", "findings", len(report.Findings))
	return nil
}

func render(report *Findings, link string) notifier.Card {
	card := notifier.Card{
		Title: "Inspection findings",
		Text: fmt.Sprintf("%d findings recorded between %s and %s (UTC).",
			len(report.Findings), report.From.Format(time.DateTime), report.To.Format(time.DateTime)),
	}
	if link != "" {
		card.Text += " Full report: " + link
	}

	for _, f := range report.Findings {
		name := f.RunName
		if f.TagID != "" {
			name = fmt.Sprintf("%s (%s)", f.TagID, f.RunName)
		}
		card.Facts = append(card.Facts, notifier.Fact{
			Name:  name,
			Value: fmt.Sprintf("%s [%s, %s]", f.Finding, f.InstallationCode, f.InspectionDate.UTC().Format(time.DateTime)),
		})
	}
	return card
}

// Start sends a report on every activation of schedule, a standard cron
// expression evaluated in UTC, until ctx is cancelled.
func (r *Reporter) Start(ctx context.Context, schedule string) error {
	c := cron.New(cron.WithLocation(time.UTC))
	if _, err := c.AddFunc(schedule, func() {
		if err := r.Send(ctx); err != nil {
			r.logger.Error(err, "Findings report failed")
		}
	}); err != nil {
		return fmt.Errorf("invalid report schedule %q: %w", schedule, err)
	}

	r.logger.Info("Findings report scheduled", "schedule", schedule, "window", r.window)
	c.Start()

	<-ctx.Done()
	<-c.Stop().Done()
	return nil
}
