package handlers

import (
	"context"
	"time"

	"creatively/internal/auth"
	"creatively/internal/capability"
	"creatively/internal/models"
	"creatively/internal/service"
)

type TaskService interface {
	List(ctx context.Context, f service.TaskFilter) ([]models.Task, error)
	Get(ctx context.Context, id string) (*models.Task, error)
	Create(ctx context.Context, options ...service.TaskOption) (*models.Task, error)
	Update(ctx context.Context, id string, options ...service.TaskOption) (*models.Task, error)
	Complete(ctx context.Context, id string, done bool) (*models.Task, error)
	Delete(ctx context.Context, id string) error
}

type ProjectService interface {
	List(ctx context.Context, f service.ProjectFilter) ([]models.Project, error)
	Get(ctx context.Context, id string) (*models.Project, error)
	Create(ctx context.Context, options ...service.ProjectOption) (*models.Project, error)
	Update(ctx context.Context, id string, options ...service.ProjectOption) (*models.Project, error)
	Delete(ctx context.Context, id string, confirmed bool) error
}

type EventService interface {
	Create(ctx context.Context, in service.EventInput) (*models.CalendarEvent, error)
	Get(ctx context.Context, id string) (*models.CalendarEvent, error)
	Update(ctx context.Context, id string, options ...service.EventOption) (*models.CalendarEvent, error)
	Delete(ctx context.Context, id string) error
}

type CalendarService interface {
	Day(ctx context.Context, req service.DayRequest) (*service.DayView, error)
	Month(ctx context.Context, req service.MonthRequest) (*service.MonthView, error)
}

type Rescheduler interface {
	Start(ctx context.Context, item service.ItemRef) (*service.DragSession, error)
	Get(ctx context.Context, id string) (*service.DragSession, error)
	Over(ctx context.Context, id, date string) (*service.DragSession, error)
	Drop(ctx context.Context, id string) (*service.Proposal, error)
	Confirm(ctx context.Context, id string) (*service.Proposal, error)
	Cancel(ctx context.Context, id string) (*service.DragSession, error)
}

type TeamService interface {
	List(ctx context.Context, activeOnly bool) ([]models.TeamMember, error)
	Get(ctx context.Context, id string) (*models.TeamMember, error)
	Invite(ctx context.Context, in service.MemberInput) (*models.TeamMember, error)
	Update(ctx context.Context, id string, options ...service.MemberOption) (*models.TeamMember, error)
	Remove(ctx context.Context, id string) (*service.RemovalResult, error)
	ForceDelete(ctx context.Context, id string, confirmed bool) (*service.RemovalResult, error)
}

type FileService interface {
	Contents(ctx context.Context, folderID *string) (*service.FolderContents, error)
	CreateFolder(ctx context.Context, name string, parentID *string) (*models.Folder, error)
	DeleteFolder(ctx context.Context, id string) error
	Upload(ctx context.Context, in service.UploadInput) (*models.File, error)
	DownloadURL(ctx context.Context, id string) (string, error)
	DeleteFile(ctx context.Context, id string) error
}

type ProfileService interface {
	Get(ctx context.Context) (*models.Profile, error)
	Update(ctx context.Context, options ...service.ProfileOption) (*models.Profile, error)
}

type Capabilities interface {
	Statuses() []capability.Status
	Refresh(ctx context.Context) []capability.Status
	ProbedAt() time.Time
}

type HealthChecker interface {
	HealthCheck(ctx context.Context) error
}

var (
	_ TaskService     = (*service.TaskService)(nil)
	_ ProjectService  = (*service.ProjectService)(nil)
	_ EventService    = (*service.EventService)(nil)
	_ CalendarService = (*service.CalendarService)(nil)
	_ Rescheduler     = (*service.Rescheduler)(nil)
	_ TeamService     = (*service.TeamService)(nil)
	_ FileService     = (*service.FileService)(nil)
	_ ProfileService  = (*service.ProfileService)(nil)
	_ Capabilities    = (*capability.Probe)(nil)
	_ auth.Provider   = (*auth.Client)(nil)
)
