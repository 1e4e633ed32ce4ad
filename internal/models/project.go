package models

import (
	"errors"
	"fmt"
	"strings"
)

type ProjectStatus string

const (
	ProjectDraft      ProjectStatus = "draft"
	ProjectInProgress ProjectStatus = "in_progress"
	ProjectReview     ProjectStatus = "review"
	ProjectApproved   ProjectStatus = "approved"
	ProjectCompleted  ProjectStatus = "completed"
	ProjectArchived   ProjectStatus = "archived"
)

func ParseProjectStatus(s string) (ProjectStatus, error) {
	switch st := ProjectStatus(strings.ToLower(strings.TrimSpace(s))); st {
	case ProjectDraft, ProjectInProgress, ProjectReview, ProjectApproved, ProjectCompleted, ProjectArchived:
		return st, nil
	}
	return "", fmt.Errorf("неизвестный статус проекта %q", s)
}

type Project struct {
	ID          string        `json:"id"`
	Name        string        `json:"name"`
	Description string        `json:"description"`
	Type        string        `json:"type"`
	Status      ProjectStatus `json:"status"`
	ClientID    *string       `json:"client_id"`
	StartDate   *DateTime     `json:"start_date"`
	DueDate     *DateTime     `json:"due_date"`
	Budget      *float64      `json:"budget"`
	CreatedBy   string        `json:"created_by"`
	CreatedAt   *DateTime     `json:"created_at,omitempty"`
	UpdatedAt   *DateTime     `json:"updated_at,omitempty"`
}

func (p *Project) Validate() error {
	if p.ID == "" {
		return errors.New("project: пустой id")
	}
	if p.Status == "" {
		p.Status = ProjectDraft
	}
	st, err := ParseProjectStatus(string(p.Status))
	if err != nil {
		return err
	}
	p.Status = st
	return nil
}
