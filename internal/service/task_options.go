package service

import (
	"strings"

	"creatively/internal/models"
)

// change несёт редактируемую запись и реально затронутые колонки:
// в обновление уходит только изменённое.
type change[T any] struct {
	rec   *T
	patch map[string]any
	err   error
}

func newChange[T any](rec *T) *change[T] {
	return &change[T]{rec: rec, patch: make(map[string]any)}
}

func (c *change[T]) set(column string, value any) {
	c.patch[column] = value
}

func (c *change[T]) fail(err error) {
	if c.err == nil {
		c.err = err
	}
}

func nullableDate(d *models.DateTime) any {
	if d == nil || !d.Valid() {
		return nil
	}
	return d.String()
}

type TaskOption func(*change[models.Task])

func WithTitle(title string) TaskOption {
	return func(c *change[models.Task]) {
		title = strings.TrimSpace(title)
		if title == "" {
			c.fail(NewValidationError("title", "обязательное поле"))
			return
		}
		c.rec.Title = title
		c.set("title", title)
	}
}

func WithDescription(description string) TaskOption {
	return func(c *change[models.Task]) {
		c.rec.Description = description
		c.set("description", description)
	}
}

func WithStatus(status string) TaskOption {
	return func(c *change[models.Task]) {
		st, err := models.ParseTaskStatus(status)
		if err != nil {
			c.fail(NewValidationError("status", err.Error()))
			return
		}
		c.rec.Status = st
		c.set("status", string(st))
	}
}

func WithPriority(priority string) TaskOption {
	return func(c *change[models.Task]) {
		p, err := models.ParseTaskPriority(priority)
		if err != nil {
			c.fail(NewValidationError("priority", err.Error()))
			return
		}
		c.rec.Priority = p
		c.set("priority", string(p))
	}
}

// WithDueDate задаёт срок, nil его снимает.
func WithDueDate(due *models.DateTime) TaskOption {
	return func(c *change[models.Task]) {
		if due != nil && !due.Valid() {
			c.fail(NewValidationError("due_date", "некорректная дата"))
			return
		}
		c.rec.DueDate = due
		c.set("due_date", nullableDate(due))
	}
}

func WithProject(projectID *string) TaskOption {
	return func(c *change[models.Task]) {
		projectID = trimmed(projectID)
		c.rec.ProjectID = projectID
		c.set("project_id", projectID)
	}
}

func WithAssignee(userID *string) TaskOption {
	return func(c *change[models.Task]) {
		userID = trimmed(userID)
		c.rec.AssignedTo = userID
		c.set("assigned_to", userID)
	}
}

type ProjectOption func(*change[models.Project])

func WithProjectName(name string) ProjectOption {
	return func(c *change[models.Project]) {
		name = strings.TrimSpace(name)
		if name == "" {
			c.fail(NewValidationError("name", "обязательное поле"))
			return
		}
		c.rec.Name = name
		c.set("name", name)
	}
}

func WithProjectDescription(description string) ProjectOption {
	return func(c *change[models.Project]) {
		c.rec.Description = description
		c.set("description", description)
	}
}

func WithProjectType(kind string) ProjectOption {
	return func(c *change[models.Project]) {
		c.rec.Type = strings.TrimSpace(kind)
		c.set("type", c.rec.Type)
	}
}

func WithProjectStatus(status string) ProjectOption {
	return func(c *change[models.Project]) {
		st, err := models.ParseProjectStatus(status)
		if err != nil {
			c.fail(NewValidationError("status", err.Error()))
			return
		}
		c.rec.Status = st
		c.set("status", string(st))
	}
}

func WithClient(clientID *string) ProjectOption {
	return func(c *change[models.Project]) {
		clientID = trimmed(clientID)
		c.rec.ClientID = clientID
		c.set("client_id", clientID)
	}
}

func WithSchedule(start, due *models.DateTime) ProjectOption {
	return func(c *change[models.Project]) {
		if (start != nil && !start.Valid()) || (due != nil && !due.Valid()) {
			c.fail(NewValidationError("start_date", "некорректная дата"))
			return
		}
		c.rec.StartDate = start
		c.rec.DueDate = due
		c.set("start_date", nullableDate(start))
		c.set("due_date", nullableDate(due))
	}
}

func WithBudget(budget *float64) ProjectOption {
	return func(c *change[models.Project]) {
		if budget != nil && *budget < 0 {
			c.fail(NewValidationError("budget", "не может быть отрицательным"))
			return
		}
		c.rec.Budget = budget
		c.set("budget", budget)
	}
}

type EventOption func(*change[models.CalendarEvent])

func WithEventTitle(title string) EventOption {
	return func(c *change[models.CalendarEvent]) {
		title = strings.TrimSpace(title)
		if title == "" {
			c.fail(NewValidationError("title", "обязательное поле"))
			return
		}
		c.rec.Title = title
		c.set("title", title)
	}
}

func WithEventDescription(description string) EventOption {
	return func(c *change[models.CalendarEvent]) {
		c.rec.Description = description
		c.set("description", description)
	}
}

func WithEventType(kind string) EventOption {
	return func(c *change[models.CalendarEvent]) {
		t, err := models.ParseEventType(kind)
		if err != nil {
			c.fail(NewValidationError("event_type", err.Error()))
			return
		}
		c.rec.EventType = t
		c.set("event_type", string(t))
	}
}

// WithEventTime задаёт начало и конец вместе, конец может быть nil.
func WithEventTime(start models.DateTime, end *models.DateTime, allDay bool) EventOption {
	return func(c *change[models.CalendarEvent]) {
		if !start.Valid() || (end != nil && !end.Valid()) {
			c.fail(NewValidationError("start_date", "некорректная дата"))
			return
		}
		c.rec.StartDate = start
		c.rec.EndDate = end
		c.rec.AllDay = allDay
		c.set("start_date", nullableDate(&start))
		c.set("end_date", nullableDate(end))
		c.set("all_day", allDay)
	}
}

func WithEventProject(projectID *string) EventOption {
	return func(c *change[models.CalendarEvent]) {
		projectID = trimmed(projectID)
		c.rec.ProjectID = projectID
		c.set("project_id", projectID)
	}
}

type MemberOption func(*change[models.TeamMember])

func WithMemberName(name string) MemberOption {
	return func(c *change[models.TeamMember]) {
		name = strings.TrimSpace(name)
		if name == "" {
			c.fail(NewValidationError("full_name", "обязательное поле"))
			return
		}
		c.rec.FullName = name
		c.set("full_name", name)
	}
}

func WithMemberRole(role string) MemberOption {
	return func(c *change[models.TeamMember]) {
		r, err := models.ParseRole(role)
		if err != nil {
			c.fail(NewValidationError("role", err.Error()))
			return
		}
		c.rec.Role = r
		c.set("role", string(r))
	}
}

func WithMemberJob(jobTitle, department string) MemberOption {
	return func(c *change[models.TeamMember]) {
		c.rec.JobTitle = strings.TrimSpace(jobTitle)
		c.rec.Department = strings.TrimSpace(department)
		c.set("job_title", c.rec.JobTitle)
		c.set("department", c.rec.Department)
	}
}

func WithMemberActive(active bool) MemberOption {
	return func(c *change[models.TeamMember]) {
		c.rec.Active = active
		c.set("active", active)
	}
}

type ProfileOption func(*change[models.Profile])

func WithFullName(name string) ProfileOption {
	return func(c *change[models.Profile]) {
		c.rec.FullName = strings.TrimSpace(name)
		c.set("full_name", c.rec.FullName)
	}
}

func WithJob(jobTitle, department string) ProfileOption {
	return func(c *change[models.Profile]) {
		c.rec.JobTitle = strings.TrimSpace(jobTitle)
		c.rec.Department = strings.TrimSpace(department)
		c.set("job_title", c.rec.JobTitle)
		c.set("department", c.rec.Department)
	}
}

func WithAvatar(url string) ProfileOption {
	return func(c *change[models.Profile]) {
		c.rec.AvatarURL = strings.TrimSpace(url)
		c.set("avatar_url", c.rec.AvatarURL)
	}
}
