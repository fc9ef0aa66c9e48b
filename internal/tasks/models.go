package tasks

import "time"

// StatusCategory is the coarse bucket a fine-grained status belongs to.
// Every status has exactly one category.
type StatusCategory string

const (
	CategoryTodo  StatusCategory = "todo"
	CategoryDoing StatusCategory = "doing"
	CategoryDone  StatusCategory = "done"
)

// GroupDimension is the attribute a task list is partitioned by.
type GroupDimension string

const (
	GroupByStatus   GroupDimension = "status"
	GroupByPriority GroupDimension = "priority"
	GroupByLabel    GroupDimension = "label"
	GroupByPhase    GroupDimension = "phase"
)

func ParseGroupDimension(s string) (GroupDimension, bool) {
	switch GroupDimension(s) {
	case GroupByStatus, GroupByPriority, GroupByLabel, GroupByPhase:
		return GroupDimension(s), true
	}
	return "", false
}

// SubtaskScope narrows a listing to root tasks, to one parent's children,
// or not at all.
type SubtaskScope int

const (
	SubtasksAll SubtaskScope = iota
	SubtasksRootOnly
	SubtasksOf
)

// Filters is the full set of optional listing criteria. Zero values mean
// "no restriction" everywhere except Archived (default is active-only).
type Filters struct {
	ProjectID   int64
	StatusIDs   []int64
	PriorityIDs []int64
	LabelIDs    []int64
	MemberIDs   []int64
	ProjectIDs  []int64

	// AssigneeID > 0 switches the base scope from "tasks of ProjectID" to
	// "tasks assigned to this member", never both.
	AssigneeID int64

	// ArchivedOnly flips the default active-only restriction.
	ArchivedOnly bool

	Subtasks SubtaskScope
	ParentID int64

	Search string

	SortField string
	SortDesc  bool

	Limit  int
	Offset int

	// CallerID is only used to decorate "my timer" fields, never to filter.
	CallerID int64
}

type Task struct {
	ID         int64     `json:"id"`
	DisplayKey string    `json:"display_key"`
	Name       string    `json:"name"`
	ProjectID  int64     `json:"project_id"`
	ParentID   *int64    `json:"parent_id"`
	StatusID   int64     `json:"status_id"`
	PriorityID int64     `json:"priority_id"`
	PhaseID    *int64    `json:"phase_id"`
	Archived   bool      `json:"archived"`
	Position   int       `json:"position"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`

	// derived view fields, never written back
	Index            int     `json:"index"`
	SubtaskCount     int     `json:"subtask_count"`
	DoneSubtaskCount int     `json:"done_subtask_count"`
	AssigneeIDs      []int64 `json:"assignee_ids"`
	LabelIDs         []int64 `json:"label_ids"`
	CommentCount     int     `json:"comment_count"`
	AttachmentCount  int     `json:"attachment_count"`
	EstimatedMinutes int     `json:"estimated_minutes"`
	LoggedMinutes    int     `json:"logged_minutes"`
	HasDependencies  bool    `json:"has_dependencies"`
	HasWatchers      bool    `json:"has_watchers"`
	MyTimerRunning   bool    `json:"my_timer_running"`
	StatusColor      string  `json:"status_color,omitempty"`
}

// Group is one named bucket of a grouped listing. Built per request,
// never persisted.
type Group struct {
	Key       int64          `json:"key"`
	Dimension GroupDimension `json:"dimension"`
	Name      string         `json:"name"`
	Color     string         `json:"color"`
	StartsOn  *time.Time     `json:"starts_on,omitempty"`
	EndsOn    *time.Time     `json:"ends_on,omitempty"`

	TodoProgress  int `json:"todo_progress"`
	DoingProgress int `json:"doing_progress"`
	DoneProgress  int `json:"done_progress"`

	Tasks []Task `json:"tasks"`
}
