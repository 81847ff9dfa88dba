package domain

import "encoding/json"

// Interval status values.
const (
	IntervalActive = "active"
	IntervalClosed = "closed"
)

// Shift status values.
const (
	StatusWorking    = "working"
	StatusNotWorking = "not_working"
)

// Account roles.
const (
	RoleUser    = "user"
	RoleManager = "manager"
	RoleRoot    = "root"
)

// Project is the root document of the work hierarchy. Unknown fields are
// preserved in Extra and written back verbatim.
type Project struct {
	ProjectID    string       `json:"project_id"`
	ProjectName  string       `json:"project_name,omitempty"`
	ForemanID    string       `json:"foreman_id,omitempty"`
	ForemanEmail string       `json:"foreman_email,omitempty"`
	WorkStages   []*WorkStage `json:"work_stages,omitempty"`

	Extra map[string]json.RawMessage `json:"-"`
}

// WorkStage owns work kinds in the current shape, or work types directly in
// the legacy shape.
type WorkStage struct {
	StageID     string      `json:"stage_id"`
	StageName   string      `json:"stage_name,omitempty"`
	StageStatus string      `json:"stage_status,omitempty"`
	WorkKinds   []*WorkKind `json:"work_kinds,omitempty"`
	WorkTypes   []*WorkType `json:"work_types,omitempty"`

	Extra map[string]json.RawMessage `json:"-"`
}

type WorkKind struct {
	WorkKindID   string      `json:"work_kind_id,omitempty"`
	WorkKindName string      `json:"work_kind_name,omitempty"`
	WorkTypes    []*WorkType `json:"work_types,omitempty"`
	Tasks        []*Task     `json:"tasks,omitempty"`

	Extra map[string]json.RawMessage `json:"-"`
}

// WorkType owns tasks. Legacy documents may invert the nesting and carry
// work kinds under the type in the work_kind field.
type WorkType struct {
	WorkTypeID     string      `json:"work_type_id,omitempty"`
	WorkTypeName   string      `json:"work_type_name,omitempty"`
	WorkTypeStatus string      `json:"work_type_status,omitempty"`
	WorkKinds      []*WorkKind `json:"work_kind,omitempty"`
	Tasks          []*Task     `json:"tasks,omitempty"`

	Extra map[string]json.RawMessage `json:"-"`
}

type Task struct {
	TaskID          string          `json:"task_id"`
	TaskName        string          `json:"task_name,omitempty"`
	TaskDescription string          `json:"task_description,omitempty"`
	TaskStatus      string          `json:"task_status,omitempty"`
	TimeIntervals   []*TimeInterval `json:"time_intervals,omitempty"`
	Subtasks        []*Subtask      `json:"subtasks,omitempty"`

	Extra map[string]json.RawMessage `json:"-"`
}

type Subtask struct {
	SubtaskID          string           `json:"subtask_id"`
	SubtaskName        string           `json:"subtask_name,omitempty"`
	SubtaskStatus      string           `json:"subtask_status,omitempty"`
	SubtaskDescription string           `json:"subtask_description,omitempty"`
	BrigadeID          string           `json:"brigade_id,omitempty"`
	BrigadeSnapshot    *BrigadeSnapshot `json:"brigade_snapshot,omitempty"`
	Properties         *DateRange       `json:"properties,omitempty"`
	Deadline           *DeadlineRange   `json:"deadline,omitempty"`
	PlannedQty         *float64         `json:"plannedQty,omitempty"`
	ActualQty          *float64         `json:"actualQty,omitempty"`
	Machine            *MachineInfo     `json:"machine,omitempty"`
	ReportLinks        []ReportLink     `json:"reportLinks,omitempty"`
	TimeIntervals      []*TimeInterval  `json:"time_intervals,omitempty"`

	Extra map[string]json.RawMessage `json:"-"`
}

// TimeInterval is one entry of a leaf's append-only interval log. An open
// interval has no end_time yet; end_time is serialized even when null so the
// log is explicit about open intervals.
type TimeInterval struct {
	StartTime string  `json:"start_time,omitempty"`
	EndTime   *string `json:"end_time"`
	Status    string  `json:"status,omitempty" enum:"active,closed"`
}

// Open reports whether the interval is still running.
func (ti *TimeInterval) Open() bool {
	if ti == nil {
		return false
	}
	if ti.EndTime == nil || *ti.EndTime == "" {
		return true
	}
	return ti.Status == IntervalActive
}

type DateRange struct {
	Start string `json:"start,omitempty" format:"date"`
	End   string `json:"end,omitempty" format:"date"`
}

type DeadlineRange struct {
	StartTime string `json:"start_time,omitempty" format:"date"`
	EndTime   string `json:"end_time,omitempty" format:"date"`
}

type MachineInfo struct {
	Hours  *float64 `json:"hours,omitempty"`
	Number string   `json:"number,omitempty"`
}

type ReportLink struct {
	Title string `json:"title,omitempty"`
	Href  string `json:"href,omitempty"`
}

type BrigadeMember struct {
	UserID string `json:"user_id"`
	Email  string `json:"email,omitempty"`
}

// BrigadeSnapshot freezes crew composition at assignment time.
type BrigadeSnapshot struct {
	BrigadeName string          `json:"brigade_name,omitempty"`
	Members     []BrigadeMember `json:"members"`
}

// Brigade is a work crew with a deterministic id derived from its members.
type Brigade struct {
	BrigadeID   string          `json:"brigade_id"`
	BrigadeName string          `json:"brigade_name,omitempty"`
	Members     []BrigadeMember `json:"members"`
	CreatedAt   string          `json:"created_at,omitempty" format:"date-time"`
	CreatedBy   string          `json:"created_by,omitempty"`

	Extra map[string]json.RawMessage `json:"-"`
}

// ProjectSummary is the projection returned by project listings.
type ProjectSummary struct {
	ProjectID   string `json:"project_id"`
	ProjectName string `json:"project_name,omitempty"`
}

// ShiftEntry is one flattened history record, one per logged interval.
type ShiftEntry struct {
	Type         string  `json:"type" enum:"task,subtask"`
	ProjectID    string  `json:"project_id,omitempty"`
	ProjectName  string  `json:"project_name,omitempty"`
	TaskID       string  `json:"task_id,omitempty"`
	TaskName     string  `json:"task_name,omitempty"`
	WorkTypeID   string  `json:"work_type_id,omitempty"`
	WorkTypeName string  `json:"work_type_name,omitempty"`
	WorkKindID   string  `json:"work_kind_id,omitempty"`
	WorkKindName string  `json:"work_kind_name,omitempty"`
	SubtaskID    string  `json:"subtask_id,omitempty"`
	SubtaskName  string  `json:"subtask_name,omitempty"`
	StartTime    string  `json:"start_time,omitempty" format:"date-time"`
	EndTime      *string `json:"end_time"`
	Status       string  `json:"status,omitempty"`
}

// ForemanShifts groups every interval logged under one foreman's documents,
// used by the manager overview.
type ForemanShifts struct {
	ForemanID    string          `json:"foreman_id"`
	ForemanEmail string          `json:"foreman_email,omitempty"`
	Shifts       []*TimeInterval `json:"shifts"`
}

// User is an account row, not part of the project document tree.
type User struct {
	ID           string   `json:"id"`
	Email        string   `json:"email"`
	PasswordHash string   `json:"-"`
	Role         string   `json:"role" enum:"user,manager,root"`
	Active       bool     `json:"active"`
	Projects     []string `json:"projects,omitempty"`
	CreatedAt    string   `json:"created_at" format:"date-time"`
}

type Event struct {
	ID         int64  `json:"id"`
	TS         string `json:"ts" format:"date-time"`
	Type       string `json:"type"`
	ProjectID  string `json:"project_id,omitempty"`
	EntityKind string `json:"entity_kind"`
	EntityID   string `json:"entity_id,omitempty"`
	ActorID    string `json:"actor_id"`
	Payload    string `json:"payload_json"`
}
