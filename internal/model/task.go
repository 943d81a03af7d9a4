package model

import "time"

type TaskStatus string

const (
	TaskPending   TaskStatus = "pending"
	TaskCompleted TaskStatus = "completed"
)

type DurationUnit string

const (
	UnitDays   DurationUnit = "days"
	UnitWeeks  DurationUnit = "weeks"
	UnitMonths DurationUnit = "months"
)

// TaskDuration bounds how long a pending task stays completable.
type TaskDuration struct {
	Value int          `json:"value"`
	Unit  DurationUnit `json:"unit"`
}

type Task struct {
	ID          int64         `json:"id"`
	Description string        `json:"description"`
	Points      int           `json:"points"`
	AssignedTo  *int64        `json:"assigned_to"`
	Status      TaskStatus    `json:"status"`
	Duration    *TaskDuration `json:"duration,omitempty"`
	CreatedAt   time.Time     `json:"created_at"`
	CompletedAt *time.Time    `json:"completed_at"`
}

// Completion records one member's share of a completed task.
type Completion struct {
	ID          int64     `json:"id"`
	TaskID      int64     `json:"task_id"`
	MemberID    int64     `json:"member_id"`
	Percentage  int       `json:"percentage"`
	Points      int       `json:"points"`
	CompletedAt time.Time `json:"completed_at"`
}
