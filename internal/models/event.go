package models

import (
	"errors"
	"fmt"
	"strings"
)

type EventType string

const (
	EventTypeTask      EventType = "task"
	EventTypeMeeting   EventType = "meeting"
	EventTypeMilestone EventType = "milestone"
	EventTypeReminder  EventType = "reminder"
)

func ParseEventType(s string) (EventType, error) {
	switch t := EventType(strings.ToLower(strings.TrimSpace(s))); t {
	case EventTypeTask, EventTypeMeeting, EventTypeMilestone, EventTypeReminder:
		return t, nil
	}
	return "", fmt.Errorf("неизвестный тип события %q", s)
}

// Badge - подпись рядом с событием.
func (t EventType) Badge() string {
	if t == "" {
		return ""
	}
	return strings.ToUpper(string(t[:1])) + string(t[1:])
}

type ResponseStatus string

const (
	ResponsePending   ResponseStatus = "pending"
	ResponseAccepted  ResponseStatus = "accepted"
	ResponseDeclined  ResponseStatus = "declined"
	ResponseTentative ResponseStatus = "tentative"
)

type EventAttendee struct {
	EventID        string         `json:"event_id"`
	UserID         string         `json:"user_id"`
	Role           string         `json:"role"`
	ResponseStatus ResponseStatus `json:"response_status"`
}

func (a *EventAttendee) Validate() error {
	if a.EventID == "" || a.UserID == "" {
		return errors.New("attendee: пустой event_id или user_id")
	}
	if a.Role == "" {
		a.Role = "attendee"
	}
	switch a.ResponseStatus {
	case "":
		a.ResponseStatus = ResponsePending
	case ResponsePending, ResponseAccepted, ResponseDeclined, ResponseTentative:
	default:
		return fmt.Errorf("attendee: неизвестный статус ответа %q", a.ResponseStatus)
	}
	return nil
}

type CalendarEvent struct {
	ID          string          `json:"id"`
	Title       string          `json:"title"`
	Description string          `json:"description"`
	EventType   EventType       `json:"event_type"`
	StartDate   DateTime        `json:"start_date"`
	EndDate     *DateTime       `json:"end_date"`
	AllDay      bool            `json:"all_day"`
	ProjectID   *string         `json:"project_id"`
	CreatedBy   string          `json:"created_by"`
	Attendees   []EventAttendee `json:"attendees,omitempty"`
}

func (e *CalendarEvent) Validate() error {
	if e.ID == "" {
		return errors.New("event: пустой id")
	}
	t, err := ParseEventType(string(e.EventType))
	if err != nil {
		return err
	}
	e.EventType = t
	return nil
}

func (e *CalendarEvent) HasEnd() bool {
	return e.EndDate != nil && e.EndDate.Valid()
}
