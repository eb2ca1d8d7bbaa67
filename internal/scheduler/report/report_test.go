package report

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	testingclock "k8s.io/utils/clock/testing"

	"github.com/autopeer-io/robofleet/internal/scheduler/core/model"
	"github.com/autopeer-io/robofleet/internal/scheduler/notifier"
	"github.com/autopeer-io/robofleet/internal/scheduler/store"
)

var testNow = time.Date(2025, time.January, 15, 14, 19, 0, 0, time.UTC)

type fakePoster struct {
	cards []notifier.Card
}

func (p *fakePoster) Post(_ context.Context, payload any) error {
	p.cards = append(p.cards, payload.(notifier.Card))
	return nil
}

type fakeArchive struct {
	err  error
	key  string
	data []byte
}

func (a *fakeArchive) Put(_ context.Context, key string, data []byte) (string, error) {
	a.key, a.data = key, data
	if a.err != nil {
		return "", a.err
	}
	return "https://s3.example/" + key, nil
}

func seed(t *testing.T) *store.Memory {
	t.Helper()
	m := store.NewMemory()
	run := &model.MissionRun{
		ID:               "run-1",
		Name:             "Gauge round",
		RobotID:          "robot-1",
		InstallationCode: "JSV",
		Status:           model.MissionStatusSuccessful,
		Tasks: []model.MissionTask{{
			ID:     "t1",
			TagID:  "20-PT-001",
			Status: model.TaskStatusSuccessful,
			Inspections: []model.Inspection{{
				ID:     "i1",
				Status: model.InspectionStatusSuccessful,
				Findings: []model.InspectionFinding{
					{Finding: "old corrosion", InspectionDate: testNow.Add(-48 * time.Hour)},
					{Finding: "oil leak", InspectionDate: testNow.Add(-time.Hour)},
				},
			}},
		}},
	}
	if err := m.MissionRuns().Create(context.Background(), run); err != nil {
		t.Fatalf("create run: %v", err)
	}
	return m
}

func TestSend(t *testing.T) {
	poster := &fakePoster{}
	archive := &fakeArchive{}
	r := New(seed(t).MissionRuns(), poster, 24*time.Hour,
		WithArchive(archive), WithClock(testingclock.NewFakePassiveClock(testNow)))

	if err := r.Send(context.Background()); err != nil {
		t.Fatalf("Send: %v", err)
	}

	if len(poster.cards) != 1 {
		t.Fatalf("posted %d cards, want 1", len(poster.cards))
	}
	card := poster.cards[0]
	if len(card.Facts) != 1 || !strings.HasPrefix(card.Facts[0].Value, "oil leak") || card.Facts[0].Name != "20-PT-001 (Gauge round)" {
		t.Errorf("facts = %+v, want only the finding inside the window", card.Facts)
	}
	if !strings.Contains(card.Text, "https://s3.example/findings/2025-01-15T141900Z.json") {
		t.Errorf("card text %q lacks the archive link", card.Text)
	}

	var archived Findings
	if err := json.Unmarshal(archive.data, &archived); err != nil {
		t.Fatalf("archived report: %v", err)
	}
	if len(archived.Findings) != 1 || !archived.To.Equal(testNow) {
		t.Errorf("archived = %+v", archived)
	}
}

func TestSendWithoutFindings(t *testing.T) {
	poster := &fakePoster{}
	later := testingclock.NewFakePassiveClock(testNow.Add(72 * time.Hour))
	r := New(seed(t).MissionRuns(), poster, 24*time.Hour, WithClock(later))

	if err := r.Send(context.Background()); err != nil {
		t.Fatalf("Send: %v", err)
	}
	if len(poster.cards) != 0 {
		t.Errorf("posted %+v for an empty window", poster.cards)
	}
}

func TestSendPostsWhenArchiveFails(t *testing.T) {
	poster := &fakePoster{}
	r := New(seed(t).MissionRuns(), poster, 24*time.Hour,
		WithArchive(&fakeArchive{err: errors.New("bucket gone")}),
		WithClock(testingclock.NewFakePassiveClock(testNow)))

	if err := r.Send(context.Background()); err != nil {
		t.Fatalf("Send: %v", err)
	}
	if len(poster.cards) != 1 || strings.Contains(poster.cards[0].Text, "Full report") {
		t.Errorf("cards = %+v, want one card without a link", poster.cards)
	}
}

func TestStartRejectsInvalidSchedule(t *testing.T) {
	r := New(store.NewMemory().MissionRuns(), &fakePoster{}, time.Hour)
	if err := r.Start(context.Background(), "every day"); err == nil {
		t.Fatal("Start accepted an invalid schedule")
	}
}
