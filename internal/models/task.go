package models

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

type TaskStatus string
type TaskPriority string

const (
	TaskStatusTodo       TaskStatus = "todo"
	TaskStatusInProgress TaskStatus = "in_progress"
	TaskStatusCompleted  TaskStatus = "completed"
)

const (
	PriorityLow    TaskPriority = "low"
	PriorityMedium TaskPriority = "medium"
	PriorityHigh   TaskPriority = "high"
)

// персональные задачи используют другой словарь статусов
var taskStatusAliases = map[string]TaskStatus{
	"todo":        TaskStatusTodo,
	"pending":     TaskStatusTodo,
	"in_progress": TaskStatusInProgress,
	"in-progress": TaskStatusInProgress,
	"completed":   TaskStatusCompleted,
	"done":        TaskStatusCompleted,
}

func ParseTaskStatus(s string) (TaskStatus, error) {
	st, ok := taskStatusAliases[strings.ToLower(strings.TrimSpace(s))]
	if !ok {
		return "", fmt.Errorf("неизвестный статус задачи %q", s)
	}
	return st, nil
}

func ParseTaskPriority(s string) (TaskPriority, error) {
	switch p := TaskPriority(strings.ToLower(strings.TrimSpace(s))); p {
	case PriorityLow, PriorityMedium, PriorityHigh:
		return p, nil
	}
	return "", fmt.Errorf("неизвестный приоритет %q", s)
}

func (s TaskStatus) Done() bool { return s == TaskStatusCompleted }

type Task struct {
	ID          string       `json:"id"`
	Title       string       `json:"title"`
	Description string       `json:"description"`
	Status      TaskStatus   `json:"status"`
	Priority    TaskPriority `json:"priority"`
	ProjectID   *string      `json:"project_id"`
	AssignedTo  *string      `json:"assigned_to"`
	CreatedBy   *string      `json:"created_by,omitempty"`
	DueDate     *DateTime    `json:"due_date"`
	CompletedAt *DateTime    `json:"completed_at"`
	CreatedAt   *DateTime    `json:"created_at,omitempty"`
}

func (t *Task) Validate() error {
	if t.ID == "" {
		return errors.New("task: пустой id")
	}
	st, err := ParseTaskStatus(string(t.Status))
	if err != nil {
		return err
	}
	t.Status = st
	if t.Priority == "" {
		t.Priority = PriorityMedium
	}
	p, err := ParseTaskPriority(string(t.Priority))
	if err != nil {
		return err
	}
	t.Priority = p
	return nil
}

// Normalize согласует completed_at со статусом.
func (t *Task) Normalize(now time.Time) {
	switch {
	case t.Status.Done() && (t.CompletedAt == nil || !t.CompletedAt.Valid()):
		c := NewDateTime(now.UTC())
		t.CompletedAt = &c
	case !t.Status.Done():
		t.CompletedAt = nil
	}
}

func (t *Task) HasDueDate() bool {
	return t.DueDate != nil && t.DueDate.Valid()
}

// AsEvent показывает задачу со сроком как событие на весь день.
func (t *Task) AsEvent() CalendarEvent {
	ev := CalendarEvent{
		ID:          t.ID,
		Title:       t.Title,
		Description: t.Description,
		EventType:   EventTypeTask,
		AllDay:      true,
		ProjectID:   t.ProjectID,
		Attendees:   []EventAttendee{},
	}
	if t.DueDate != nil {
		ev.StartDate = *t.DueDate
	}
	if t.CreatedBy != nil {
		ev.CreatedBy = *t.CreatedBy
	}
	return ev
}
