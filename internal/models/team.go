package models

import (
	"errors"
	"fmt"
	"strings"
)

type Role string

const (
	RoleAdmin  Role = "admin"
	RoleMember Role = "member"
	RoleViewer Role = "viewer"
)

func ParseRole(s string) (Role, error) {
	switch r := Role(strings.ToLower(strings.TrimSpace(s))); r {
	case RoleAdmin, RoleMember, RoleViewer:
		return r, nil
	case "owner":
		return RoleAdmin, nil
	case "guest", "client":
		return RoleViewer, nil
	}
	return "", fmt.Errorf("неизвестная роль %q", s)
}

type TeamMember struct {
	ID         string    `json:"id"`
	UserID     *string   `json:"user_id"`
	FullName   string    `json:"full_name"`
	Email      string    `json:"email"`
	Role       Role      `json:"role"`
	Active     bool      `json:"active"`
	JobTitle   string    `json:"job_title"`
	Department string    `json:"department"`
	CreatedAt  *DateTime `json:"created_at,omitempty"`
}

func (m *TeamMember) Validate() error {
	if m.ID == "" {
		return errors.New("team member: пустой id")
	}
	if m.Role == "" {
		m.Role = RoleMember
	}
	r, err := ParseRole(string(m.Role))
	if err != nil {
		return err
	}
	m.Role = r
	return nil
}

type Profile struct {
	ID         string    `json:"id"`
	FullName   string    `json:"full_name"`
	Email      string    `json:"email"`
	Role       Role      `json:"role"`
	JobTitle   string    `json:"job_title"`
	Department string    `json:"department"`
	AvatarURL  string    `json:"avatar_url"`
	UpdatedAt  *DateTime `json:"updated_at,omitempty"`
}

func (p *Profile) Validate() error {
	if p.ID == "" {
		return errors.New("profile: пустой id")
	}
	if p.Role == "" {
		p.Role = RoleMember
	}
	r, err := ParseRole(string(p.Role))
	if err != nil {
		return err
	}
	p.Role = r
	return nil
}

// Identity - вошедший пользователь, как его видит сервис аутентификации.
type Identity struct {
	ID          string `json:"id"`
	Email       string `json:"email"`
	Role        string `json:"role,omitempty"`
	AccessToken string `json:"-"`
}
