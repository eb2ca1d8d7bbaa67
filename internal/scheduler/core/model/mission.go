package model

import (
	"fmt"
	"strings"
	"time"
)

// MissionStatus is the lifecycle state of a MissionRun.
type MissionStatus string

const (
	MissionStatusPending             MissionStatus = "Pending"
	MissionStatusOngoing             MissionStatus = "Ongoing"
	MissionStatusPaused              MissionStatus = "Paused"
	MissionStatusAborted             MissionStatus = "Aborted"
	MissionStatusCancelled           MissionStatus = "Cancelled"
	MissionStatusFailed              MissionStatus = "Failed"
	MissionStatusSuccessful          MissionStatus = "Successful"
	MissionStatusPartiallySuccessful MissionStatus = "PartiallySuccessful"
)

// IsTerminal reports whether the status ends a run.
func (s MissionStatus) IsTerminal() bool {
	switch s {
	case MissionStatusAborted, MissionStatusCancelled, MissionStatusFailed,
		MissionStatusSuccessful, MissionStatusPartiallySuccessful:
		return true
	}
	return false
}

var missionStatuses = map[string]MissionStatus{
	"pending":              MissionStatusPending,
	"not_started":          MissionStatusPending,
	"ongoing":              MissionStatusOngoing,
	"in_progress":          MissionStatusOngoing,
	"paused":               MissionStatusPaused,
	"aborted":              MissionStatusAborted,
	"cancelled":            MissionStatusCancelled,
	"failed":               MissionStatusFailed,
	"successful":           MissionStatusSuccessful,
	"partially_successful": MissionStatusPartiallySuccessful,
	"partiallysuccessful":  MissionStatusPartiallySuccessful,
}

// ParseMissionStatus parses an executor mission status.
func ParseMissionStatus(s string) (MissionStatus, error) {
	if st, ok := missionStatuses[normalize(s)]; ok {
		return st, nil
	}
	return "", fmt.Errorf("unknown mission status %q", s)
}

// TaskStatus is the state of a single MissionTask.
type TaskStatus string

const (
	TaskStatusNotStarted          TaskStatus = "NotStarted"
	TaskStatusInProgress          TaskStatus = "InProgress"
	TaskStatusPaused              TaskStatus = "Paused"
	TaskStatusSuccessful          TaskStatus = "Successful"
	TaskStatusPartiallySuccessful TaskStatus = "PartiallySuccessful"
	TaskStatusCancelled           TaskStatus = "Cancelled"
	TaskStatusFailed              TaskStatus = "Failed"
)

var taskStatuses = map[string]TaskStatus{
	"not_started":          TaskStatusNotStarted,
	"notstarted":           TaskStatusNotStarted,
	"in_progress":          TaskStatusInProgress,
	"inprogress":           TaskStatusInProgress,
	"paused":               TaskStatusPaused,
	"successful":           TaskStatusSuccessful,
	"partially_successful": TaskStatusPartiallySuccessful,
	"partiallysuccessful":  TaskStatusPartiallySuccessful,
	"cancelled":            TaskStatusCancelled,
	"failed":               TaskStatusFailed,
}

// ParseTaskStatus parses an executor task status.
func ParseTaskStatus(s string) (TaskStatus, error) {
	if st, ok := taskStatuses[normalize(s)]; ok {
		return st, nil
	}
	return "", fmt.Errorf("unknown task status %q", s)
}

// InspectionStatus is the state of an inspection step.
type InspectionStatus string

const (
	InspectionStatusNotStarted InspectionStatus = "NotStarted"
	InspectionStatusInProgress InspectionStatus = "InProgress"
	InspectionStatusSuccessful InspectionStatus = "Successful"
	InspectionStatusFailed     InspectionStatus = "Failed"
	InspectionStatusCancelled  InspectionStatus = "Cancelled"
)

var inspectionStatuses = map[string]InspectionStatus{
	"not_started": InspectionStatusNotStarted,
	"notstarted":  InspectionStatusNotStarted,
	"in_progress": InspectionStatusInProgress,
	"inprogress":  InspectionStatusInProgress,
	"successful":  InspectionStatusSuccessful,
	"failed":      InspectionStatusFailed,
	"cancelled":   InspectionStatusCancelled,
}

// ParseInspectionStatus parses an executor step status.
func ParseInspectionStatus(s string) (InspectionStatus, error) {
	if st, ok := inspectionStatuses[normalize(s)]; ok {
		return st, nil
	}
	return "", fmt.Errorf("unknown step status %q", s)
}

func normalize(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

// Priority orders pending runs and controls the queue freeze bypass.
type Priority string

const (
	PriorityNormal    Priority = "Normal"
	PriorityEmergency Priority = "Emergency"
)

// InspectionFinding is an observation recorded against an inspection.
type InspectionFinding struct {
	Finding        string    `json:"finding"`
	InspectionDate time.Time `json:"inspectionDate"`
}

// Inspection is a sub-step of a task, e.g. an image capture.
type Inspection struct {
	ID             string              `json:"id"`
	ExecutorStepID string              `json:"executorStepId,omitempty"`
	Type           string              `json:"type"`
	Status         InspectionStatus    `json:"status"`
	Findings       []InspectionFinding `json:"findings,omitempty"`
}

// MissionTask is an ordered step of a run.
type MissionTask struct {
	ID             string       `json:"id"`
	ExecutorTaskID string       `json:"executorTaskId,omitempty"`
	TaskOrder      int          `json:"taskOrder"`
	TagID          string       `json:"tagId,omitempty"`
	Description    string       `json:"description,omitempty"`
	RobotPose      Pose         `json:"robotPose"`
	Status         TaskStatus   `json:"status"`
	Inspections    []Inspection `json:"inspections"`
}

// Inspection returns the inspection with the executor step id.
func (t *MissionTask) Inspection(executorStepID string) (*Inspection, bool) {
	for i := range t.Inspections {
		if t.Inspections[i].ExecutorStepID == executorStepID {
			return &t.Inspections[i], true
		}
	}
	return nil, false
}

// Reset puts the task and its inspections back to NotStarted.
func (t *MissionTask) Reset() {
	t.Status = TaskStatusNotStarted
	for i := range t.Inspections {
		t.Inspections[i].Status = InspectionStatusNotStarted
	}
}

// MissionRun is one schedulable execution of a mission.
type MissionRun struct {
	ID                  string `json:"id"`
	Name                string `json:"name"`
	ExecutorMissionID   string `json:"executorMissionId,omitempty"`
	MissionDefinitionID string `json:"missionDefinitionId,omitempty"`
	RobotID             string `json:"robotId"`
	AreaID              string `json:"areaId,omitempty"`
	InstallationCode    string `json:"installationCode"`

	Status       MissionStatus `json:"status"`
	StatusReason string        `json:"statusReason,omitempty"`
	Priority     Priority      `json:"priority"`

	DesiredStartTime time.Time  `json:"desiredStartTime"`
	StartTime        *time.Time `json:"startTime,omitempty"`
	EndTime          *time.Time `json:"endTime,omitempty"`

	Tasks []MissionTask `json:"tasks"`
}

// Task returns the task with the executor task id.
func (r *MissionRun) Task(executorTaskID string) (*MissionTask, bool) {
	for i := range r.Tasks {
		if r.Tasks[i].ExecutorTaskID == executorTaskID {
			return &r.Tasks[i], true
		}
	}
	return nil, false
}

// TaskByID returns the task with the internal id.
func (r *MissionRun) TaskByID(id string) (*MissionTask, bool) {
	for i := range r.Tasks {
		if r.Tasks[i].ID == id {
			return &r.Tasks[i], true
		}
	}
	return nil, false
}

// ResetTasksAfter resets every task with a task order greater than order.
func (r *MissionRun) ResetTasksAfter(order int) {
	for i := range r.Tasks {
		if r.Tasks[i].TaskOrder > order {
			r.Tasks[i].Reset()
		}
	}
}

// HasFindings reports whether any inspection of the run carries findings.
func (r *MissionRun) HasFindings() bool {
	for _, t := range r.Tasks {
		for _, i := range t.Inspections {
			if len(i.Findings) > 0 {
				return true
			}
		}
	}
	return false
}

// LatestFinding returns the most recent inspection date among the run's findings.
func (r *MissionRun) LatestFinding() (time.Time, bool) {
	var latest time.Time
	for _, t := range r.Tasks {
		for _, i := range t.Inspections {
			for _, f := range i.Findings {
				if f.InspectionDate.After(latest) {
					latest = f.InspectionDate
				}
			}
		}
	}
	return latest, !latest.IsZero()
}

// CloneTasks deep copies tasks with fresh ids, cleared executor ids and
// NotStarted statuses. newID generates ids.
func CloneTasks(tasks []MissionTask, newID func() string) []MissionTask {
	out := make([]MissionTask, len(tasks))
	for i, t := range tasks {
		c := t
		c.ID = newID()
		c.ExecutorTaskID = ""
		c.Status = TaskStatusNotStarted
		c.Inspections = make([]Inspection, len(t.Inspections))
		for j, insp := range t.Inspections {
			c.Inspections[j] = Inspection{
				ID:     newID(),
				Type:   insp.Type,
				Status: InspectionStatusNotStarted,
			}
		}
		out[i] = c
	}
	return out
}

// CopyTasks deep copies tasks verbatim, assigning fresh internal ids.
func CopyTasks(tasks []MissionTask, newID func() string) []MissionTask {
	out := make([]MissionTask, len(tasks))
	for i, t := range tasks {
		c := t
		c.ID = newID()
		c.Inspections = make([]Inspection, len(t.Inspections))
		for j, insp := range t.Inspections {
			insp.ID = newID()
			insp.Findings = append([]InspectionFinding(nil), insp.Findings...)
			c.Inspections[j] = insp
		}
		out[i] = c
	}
	return out
}
