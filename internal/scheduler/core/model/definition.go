package model

import (
	"fmt"
	"slices"
	"sort"
	"time"
)

// TimeOfDay is a wall clock time expressed as seconds since midnight.
type TimeOfDay int

const day = 24 * time.Hour

// NewTimeOfDay builds a TimeOfDay from its components.
func NewTimeOfDay(hour, minute, second int) TimeOfDay {
	return TimeOfDay(hour*3600 + minute*60 + second)
}

// ParseTimeOfDay parses "HH:MM" or "HH:MM:SS".
func ParseTimeOfDay(s string) (TimeOfDay, error) {
	for _, layout := range []string{"15:04", "15:04:05"} {
		if t, err := time.Parse(layout, s); err == nil {
			return NewTimeOfDay(t.Hour(), t.Minute(), t.Second()), nil
		}
	}
	return 0, fmt.Errorf("invalid time of day %q, want HH:MM or HH:MM:SS", s)
}

// Duration returns the offset from midnight.
func (t TimeOfDay) Duration() time.Duration {
	return time.Duration(t) * time.Second
}

func (t TimeOfDay) String() string {
	h, m, s := int(t)/3600, int(t)%3600/60, int(t)%60
	if s == 0 {
		return fmt.Sprintf("%02d:%02d", h, m)
	}
	return fmt.Sprintf("%02d:%02d:%02d", h, m, s)
}

// MarshalText makes TimeOfDay usable as a JSON object key.
func (t TimeOfDay) MarshalText() ([]byte, error) {
	return []byte(t.String()), nil
}

func (t *TimeOfDay) UnmarshalText(b []byte) error {
	v, err := ParseTimeOfDay(string(b))
	if err != nil {
		return err
	}
	*t = v
	return nil
}

// sinceMidnight returns the wall clock offset of t from its own midnight.
func sinceMidnight(t time.Time) time.Duration {
	h, m, s := t.Clock()
	return time.Duration(h)*time.Hour + time.Duration(m)*time.Minute +
		time.Duration(s)*time.Second + time.Duration(t.Nanosecond())
}

// AutoScheduledJobs records the deferred job submitted for each time of day.
// It belongs to a single UTC calendar day.
type AutoScheduledJobs struct {
	// Day is the UTC date (YYYY-MM-DD) the entries were recorded on.
	Day     string               `json:"day,omitempty"`
	Entries map[TimeOfDay]string `json:"entries,omitempty"`
}

// JobDay returns the bookkeeping day of now.
func JobDay(now time.Time) string {
	return now.UTC().Format(time.DateOnly)
}

// Has reports whether a job was recorded for t.
func (j *AutoScheduledJobs) Has(t TimeOfDay) bool {
	_, ok := j.Entries[t]
	return ok
}

// Get returns the job id recorded for t.
func (j *AutoScheduledJobs) Get(t TimeOfDay) (string, bool) {
	id, ok := j.Entries[t]
	return id, ok
}

// Set records jobID for t on day.
func (j *AutoScheduledJobs) Set(day string, t TimeOfDay, jobID string) {
	if j.Entries == nil {
		j.Entries = make(map[TimeOfDay]string)
	}
	j.Day = day
	j.Entries[t] = jobID
}

// Stale reports whether the map holds entries recorded before today.
func (j *AutoScheduledJobs) Stale(today string) bool {
	return len(j.Entries) > 0 && j.Day != today
}

// Clear removes every entry.
func (j *AutoScheduledJobs) Clear() {
	j.Day = ""
	j.Entries = nil
}

// AutoScheduleFrequency is a weekly calendar of times of day.
type AutoScheduleFrequency struct {
	// TimesOfDay are interpreted in the deployment's reference time zone.
	TimesOfDay []TimeOfDay       `json:"timesOfDay"`
	DaysOfWeek []time.Weekday    `json:"daysOfWeek"`
	Jobs       AutoScheduledJobs `json:"jobs"`
}

// Validate checks the frequency has at least one time and one day.
func (f *AutoScheduleFrequency) Validate() error {
	if len(f.TimesOfDay) == 0 {
		return fmt.Errorf("auto schedule frequency must have at least one time of day")
	}
	if len(f.DaysOfWeek) == 0 {
		return fmt.Errorf("auto schedule frequency must have at least one day of week")
	}
	return nil
}

// DueTime is a pending fire time of a frequency.
type DueTime struct {
	Delay     time.Duration
	TimeOfDay TimeOfDay
}

// DueTimes returns the fire times due before the next UTC midnight.
//
// Times of day are read in loc. Today's times at or after now count when
// today is a scheduled weekday; earlier times count as tomorrow's when
// tomorrow is a scheduled weekday. A delay never exceeds the time left until
// the next UTC midnight.
func (f *AutoScheduleFrequency) DueTimes(now time.Time, loc *time.Location) []DueTime {
	local := now.In(loc)
	nowLocal := sinceMidnight(local)
	untilUTCMidnight := (day - sinceMidnight(now.UTC())) % day

	var due []DueTime

	if slices.Contains(f.DaysOfWeek, local.Weekday()) {
		for _, t := range f.TimesOfDay {
			delay := t.Duration() - nowLocal
			if delay >= 0 && delay <= untilUTCMidnight {
				due = append(due, DueTime{Delay: delay, TimeOfDay: t})
			}
		}
	}

	if slices.Contains(f.DaysOfWeek, local.AddDate(0, 0, 1).Weekday()) {
		for _, t := range f.TimesOfDay {
			if t.Duration() >= nowLocal {
				continue
			}
			delay := t.Duration() - nowLocal + day
			if delay <= untilUTCMidnight {
				due = append(due, DueTime{Delay: delay, TimeOfDay: t})
			}
		}
	}

	sort.Slice(due, func(i, j int) bool { return due[i].Delay < due[j].Delay })
	return due
}

// MissionDefinition is a reusable template for recurring or on-demand missions.
type MissionDefinition struct {
	ID               string `json:"id"`
	Name             string `json:"name"`
	InstallationCode string `json:"installationCode"`
	InspectionAreaID string `json:"inspectionAreaId,omitempty"`

	// LastSuccessfulRunID is the run auto-scheduled occurrences are cloned from.
	LastSuccessfulRunID *string `json:"lastSuccessfulRunId,omitempty"`

	AutoScheduleFrequency *AutoScheduleFrequency `json:"autoScheduleFrequency,omitempty"`
	IsDeprecated          bool                   `json:"isDeprecated"`
}

// HasFrequency reports whether the definition is auto-scheduled.
func (d *MissionDefinition) HasFrequency() bool {
	return d.AutoScheduleFrequency != nil
}
