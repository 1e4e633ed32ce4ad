package dto

import (
	"bytes"
	"encoding/json"
	"strings"
	"time"

	"creatively/internal/models"
	"creatively/internal/service"
)

// EmptyDayMessage показывается, когда на выбранный день ничего нет.
const EmptyDayMessage = "No events scheduled for this day."

// Field различает отсутствующее поле и явный null.
type Field[T any] struct {
	Set   bool
	Value *T
}

func (f *Field[T]) UnmarshalJSON(b []byte) error {
	f.Set = true
	if bytes.Equal(bytes.TrimSpace(b), []byte("null")) {
		f.Value = nil
		return nil
	}
	var v T
	if err := json.Unmarshal(b, &v); err != nil {
		return err
	}
	f.Value = &v
	return nil
}

func dateField(f Field[string]) *models.DateTime {
	if f.Value == nil || strings.TrimSpace(*f.Value) == "" {
		return nil
	}
	d := models.ParseDateTime(*f.Value)
	return &d
}

type CreateTaskRequest struct {
	Title       string  `json:"title"`
	Description string  `json:"description"`
	Status      string  `json:"status"`
	Priority    string  `json:"priority"`
	DueDate     *string `json:"due_date"`
	ProjectID   *string `json:"project_id"`
	AssignedTo  *string `json:"assigned_to"`
}

func (r CreateTaskRequest) Options() []service.TaskOption {
	opts := []service.TaskOption{
		service.WithTitle(r.Title),
		service.WithDescription(r.Description),
		service.WithProject(r.ProjectID),
		service.WithAssignee(r.AssignedTo),
	}
	if r.Status != "" {
		opts = append(opts, service.WithStatus(r.Status))
	}
	if r.Priority != "" {
		opts = append(opts, service.WithPriority(r.Priority))
	}
	if r.DueDate != nil {
		opts = append(opts, service.WithDueDate(dateField(Field[string]{Set: true, Value: r.DueDate})))
	}
	return opts
}

type UpdateTaskRequest struct {
	Title       *string       `json:"title,omitempty"`
	Description *string       `json:"description,omitempty"`
	Status      *string       `json:"status,omitempty"`
	Priority    *string       `json:"priority,omitempty"`
	DueDate     Field[string] `json:"due_date"`
	ProjectID   Field[string] `json:"project_id"`
	AssignedTo  Field[string] `json:"assigned_to"`
}

func (r UpdateTaskRequest) Options() []service.TaskOption {
	var opts []service.TaskOption
	if r.Title != nil {
		opts = append(opts, service.WithTitle(*r.Title))
	}
	if r.Description != nil {
		opts = append(opts, service.WithDescription(*r.Description))
	}
	if r.Status != nil {
		opts = append(opts, service.WithStatus(*r.Status))
	}
	if r.Priority != nil {
		opts = append(opts, service.WithPriority(*r.Priority))
	}
	if r.DueDate.Set {
		opts = append(opts, service.WithDueDate(dateField(r.DueDate)))
	}
	if r.ProjectID.Set {
		opts = append(opts, service.WithProject(r.ProjectID.Value))
	}
	if r.AssignedTo.Set {
		opts = append(opts, service.WithAssignee(r.AssignedTo.Value))
	}
	return opts
}

type CompleteTaskRequest struct {
	Done bool `json:"done"`
}

type TaskResponse struct {
	models.Task
	PriorityBadge string `json:"priority_badge"`
	IsOverdue     bool   `json:"is_overdue"`
}

// FromTask дополняет задачу полями для отображения. Просрочка считается по
// календарному дню в зоне loc.
func FromTask(t models.Task, now time.Time, loc *time.Location) TaskResponse {
	overdue := false
	if t.HasDueDate() && !t.Status.Done() {
		overdue = t.DueDate.DateKey(loc) < now.In(loc).Format(models.DateLayout)
	}
	return TaskResponse{
		Task:          t,
		PriorityBadge: badge(string(t.Priority)),
		IsOverdue:     overdue,
	}
}

func FromTaskList(tasks []models.Task, now time.Time, loc *time.Location) []TaskResponse {
	result := make([]TaskResponse, len(tasks))
	for i, t := range tasks {
		result[i] = FromTask(t, now, loc)
	}
	return result
}

func badge(s string) string {
	if s == "" {
		return ""
	}
	return strings.ToUpper(s[:1]) + s[1:]
}

type ProjectRequest struct {
	Name        *string        `json:"name,omitempty"`
	Description *string        `json:"description,omitempty"`
	Type        *string        `json:"type,omitempty"`
	Status      *string        `json:"status,omitempty"`
	ClientID    Field[string]  `json:"client_id"`
	StartDate   Field[string]  `json:"start_date"`
	DueDate     Field[string]  `json:"due_date"`
	Budget      Field[float64] `json:"budget"`
}

// Options собирает изменения проекта. Для создания имя передаётся всегда,
// чтобы пустое имя отклонялось.
func (r ProjectRequest) Options(creating bool) []service.ProjectOption {
	var opts []service.ProjectOption
	if r.Name != nil || creating {
		name := ""
		if r.Name != nil {
			name = *r.Name
		}
		opts = append(opts, service.WithProjectName(name))
	}
	if r.Description != nil {
		opts = append(opts, service.WithProjectDescription(*r.Description))
	}
	if r.Type != nil {
		opts = append(opts, service.WithProjectType(*r.Type))
	}
	if r.Status != nil {
		opts = append(opts, service.WithProjectStatus(*r.Status))
	}
	if r.ClientID.Set {
		opts = append(opts, service.WithClient(r.ClientID.Value))
	}
	if r.StartDate.Set || r.DueDate.Set {
		opts = append(opts, service.WithSchedule(dateField(r.StartDate), dateField(r.DueDate)))
	}
	if r.Budget.Set {
		opts = append(opts, service.WithBudget(r.Budget.Value))
	}
	return opts
}

type CreateEventRequest struct {
	Title       string   `json:"title"`
	Description string   `json:"description"`
	EventType   string   `json:"event_type"`
	StartDate   string   `json:"start_date"`
	EndDate     string   `json:"end_date"`
	AllDay      bool     `json:"all_day"`
	ProjectID   *string  `json:"project_id"`
	Attendees   []string `json:"attendees"`
}

func (r CreateEventRequest) Input() service.EventInput {
	return service.EventInput{
		Title:       r.Title,
		Description: r.Description,
		EventType:   r.EventType,
		Start:       r.StartDate,
		End:         r.EndDate,
		AllDay:      r.AllDay,
		ProjectID:   r.ProjectID,
		Attendees:   r.Attendees,
	}
}

type UpdateEventRequest struct {
	Title       *string       `json:"title,omitempty"`
	Description *string       `json:"description,omitempty"`
	EventType   *string       `json:"event_type,omitempty"`
	StartDate   *string       `json:"start_date,omitempty"`
	EndDate     Field[string] `json:"end_date"`
	AllDay      *bool         `json:"all_day,omitempty"`
	ProjectID   Field[string] `json:"project_id"`
}

// Options переносит время только целиком: начало, конец и all_day вместе.
func (r UpdateEventRequest) Options(current *models.CalendarEvent) []service.EventOption {
	var opts []service.EventOption
	if r.Title != nil {
		opts = append(opts, service.WithEventTitle(*r.Title))
	}
	if r.Description != nil {
		opts = append(opts, service.WithEventDescription(*r.Description))
	}
	if r.EventType != nil {
		opts = append(opts, service.WithEventType(*r.EventType))
	}
	if r.StartDate != nil || r.EndDate.Set || r.AllDay != nil {
		start, end, allDay := current.StartDate, current.EndDate, current.AllDay
		if r.StartDate != nil {
			start = models.ParseDateTime(*r.StartDate)
		}
		if r.EndDate.Set {
			end = dateField(r.EndDate)
		}
		if r.AllDay != nil {
			allDay = *r.AllDay
		}
		opts = append(opts, service.WithEventTime(start, end, allDay))
	}
	if r.ProjectID.Set {
		opts = append(opts, service.WithEventProject(r.ProjectID.Value))
	}
	return opts
}

type EventResponse struct {
	models.CalendarEvent
	Badge string `json:"badge"`
}

func FromEvent(ev models.CalendarEvent) EventResponse {
	return EventResponse{CalendarEvent: ev, Badge: ev.EventType.Badge()}
}

type DayResponse struct {
	Date     string          `json:"date"`
	Events   []EventResponse `json:"events"`
	Tasks    []TaskResponse  `json:"tasks"`
	Empty    bool            `json:"empty"`
	Message  string          `json:"message,omitempty"`
	Fallback bool            `json:"fallback"`
	Error    string          `json:"error,omitempty"`
	Notify   bool            `json:"notify,omitempty"`
}

func FromDay(v *service.DayView, now time.Time, loc *time.Location) DayResponse {
	out := DayResponse{
		Date:     v.Date,
		Events:   make([]EventResponse, 0, len(v.Events)),
		Tasks:    FromTaskList(v.Tasks, now, loc),
		Empty:    v.Empty,
		Fallback: v.Fallback,
		Error:    v.Error,
		Notify:   v.Notify,
	}
	for _, ev := range v.Events {
		out.Events = append(out.Events, FromEvent(ev))
	}
	if v.Empty && v.Error == "" {
		out.Message = EmptyDayMessage
	}
	return out
}

type DragStartRequest struct {
	Kind string `json:"kind"`
	ID   string `json:"id"`
}

type DragOverRequest struct {
	Date string `json:"date"`
}

type InviteMemberRequest struct {
	FullName   string  `json:"full_name"`
	Email      string  `json:"email"`
	Role       string  `json:"role"`
	JobTitle   string  `json:"job_title"`
	Department string  `json:"department"`
	UserID     *string `json:"user_id"`
}

func (r InviteMemberRequest) Input() service.MemberInput {
	return service.MemberInput{
		FullName:   r.FullName,
		Email:      r.Email,
		Role:       r.Role,
		JobTitle:   r.JobTitle,
		Department: r.Department,
		UserID:     r.UserID,
	}
}

type UpdateMemberRequest struct {
	FullName   *string `json:"full_name,omitempty"`
	Role       *string `json:"role,omitempty"`
	JobTitle   *string `json:"job_title,omitempty"`
	Department *string `json:"department,omitempty"`
	Active     *bool   `json:"active,omitempty"`
}

func (r UpdateMemberRequest) Options(current *models.TeamMember) []service.MemberOption {
	var opts []service.MemberOption
	if r.FullName != nil {
		opts = append(opts, service.WithMemberName(*r.FullName))
	}
	if r.Role != nil {
		opts = append(opts, service.WithMemberRole(*r.Role))
	}
	if r.JobTitle != nil || r.Department != nil {
		job, dept := "", ""
		if current != nil {
			job, dept = current.JobTitle, current.Department
		}
		if r.JobTitle != nil {
			job = *r.JobTitle
		}
		if r.Department != nil {
			dept = *r.Department
		}
		opts = append(opts, service.WithMemberJob(job, dept))
	}
	if r.Active != nil {
		opts = append(opts, service.WithMemberActive(*r.Active))
	}
	return opts
}

type CreateFolderRequest struct {
	Name     string  `json:"name"`
	ParentID *string `json:"parent_id"`
}

type UpdateProfileRequest struct {
	FullName   *string `json:"full_name,omitempty"`
	JobTitle   *string `json:"job_title,omitempty"`
	Department *string `json:"department,omitempty"`
	AvatarURL  *string `json:"avatar_url,omitempty"`
}

func (r UpdateProfileRequest) Options(current *models.Profile) []service.ProfileOption {
	var opts []service.ProfileOption
	if r.FullName != nil {
		opts = append(opts, service.WithFullName(*r.FullName))
	}
	if r.JobTitle != nil || r.Department != nil {
		job, dept := current.JobTitle, current.Department
		if r.JobTitle != nil {
			job = *r.JobTitle
		}
		if r.Department != nil {
			dept = *r.Department
		}
		opts = append(opts, service.WithJob(job, dept))
	}
	if r.AvatarURL != nil {
		opts = append(opts, service.WithAvatar(*r.AvatarURL))
	}
	return opts
}

type SignInRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}
