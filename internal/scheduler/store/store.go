package store

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sort"
	"time"

	"github.com/autopeer-io/robofleet/internal/scheduler/core"
	"github.com/autopeer-io/robofleet/internal/scheduler/core/model"
	"github.com/autopeer-io/robofleet/pkg/options"
)

// ErrAlreadyExists is returned by Create when the id or a unique key is taken.
var ErrAlreadyExists = errors.New("already exists")

// ErrConflict is returned by Modify when concurrent writers keep winning the
// race for the same row.
var ErrConflict = errors.New("concurrent modification")

// Store is a core.Repository backed by a closable connection.
type Store interface {
	core.Repository
	Ping(ctx context.Context) error
	Close() error
}

// New opens the store selected by opts.
func New(ctx context.Context, opts *options.DatabaseOptions) (Store, error) {
	switch opts.Driver {
	case options.DriverMemory:
		return NewMemory(), nil
	case options.DriverSQLite, options.DriverPostgres:
		return OpenSQL(ctx, opts)
	default:
		return nil, fmt.Errorf("unsupported database driver %q", opts.Driver)
	}
}

func matchRobot(f core.RobotFilter, r *model.Robot) bool {
	if f.Status != "" && r.Status != f.Status {
		return false
	}
	if f.AreaID != "" && !r.InArea(f.AreaID) {
		return false
	}
	if f.Enabled != nil && r.Enabled != *f.Enabled {
		return false
	}
	return true
}

func matchRun(f core.MissionRunFilter, r *model.MissionRun) bool {
	if f.RobotID != "" && r.RobotID != f.RobotID {
		return false
	}
	if len(f.Statuses) > 0 && !slices.Contains(f.Statuses, r.Status) {
		return false
	}
	if f.DefinitionID != "" && r.MissionDefinitionID != f.DefinitionID {
		return false
	}
	return true
}

func matchDefinition(f core.DefinitionFilter, d *model.MissionDefinition) bool {
	if f.WithFrequency && !d.HasFrequency() {
		return false
	}
	if !f.IncludeDeprecated && d.IsDeprecated {
		return false
	}
	return true
}

func sortRuns(runs []*model.MissionRun) {
	sort.SliceStable(runs, func(i, j int) bool {
		if !runs[i].DesiredStartTime.Equal(runs[j].DesiredStartTime) {
			return runs[i].DesiredStartTime.Before(runs[j].DesiredStartTime)
		}
		return runs[i].ID < runs[j].ID
	})
}

// findingsOf flattens the run's findings recorded at or after since.
func findingsOf(run *model.MissionRun, since time.Time) []core.Finding {
	var out []core.Finding
	for _, t := range run.Tasks {
		for _, insp := range t.Inspections {
			for _, f := range insp.Findings {
				if f.InspectionDate.Before(since) {
					continue
				}
				out = append(out, core.Finding{
					RunID:             run.ID,
					RunName:           run.Name,
					RobotID:           run.RobotID,
					InstallationCode:  run.InstallationCode,
					TagID:             t.TagID,
					InspectionID:      insp.ID,
					InspectionFinding: f,
				})
			}
		}
	}
	return out
}

func sortFindings(findings []core.Finding) {
	sort.SliceStable(findings, func(i, j int) bool {
		return findings[i].InspectionDate.Before(findings[j].InspectionDate)
	})
}
