package models

import (
	"time"

	"github.com/google/uuid"
)

// Task types created by the follow-up orchestrator.
const (
	TaskTypeContact = "opportunity_contact"
	TaskTypeStatus  = "opportunity_status"
)

// Task statuses. Open and in_progress count as "open" for reassignment cleanup.
const (
	TaskStatusOpen       = "open"
	TaskStatusInProgress = "in_progress"
	TaskStatusDone       = "done"
)

// Task priorities.
const (
	TaskPriorityHigh   = "high"
	TaskPriorityMedium = "medium"
)

// Task is a scheduled follow-up item owned by the assignee of an opportunity.
type Task struct {
	ID            uuid.UUID `json:"id"`
	OpportunityID uuid.UUID `json:"opportunity_id"`
	AssigneeID    uuid.UUID `json:"assignee_id"`
	TaskType      string    `json:"task_type"`
	Title         string    `json:"title"`
	Description   string    `json:"description"`
	Priority      string    `json:"priority"`
	Status        string    `json:"status"`
	DueAt         time.Time `json:"due_at"`
	CreatedBy     uuid.UUID `json:"created_by"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}
