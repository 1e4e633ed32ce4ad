package handlers

import (
	"net/http"

	"creatively/internal/handlers/dto"
	"creatively/internal/logger"
	"creatively/internal/service"

	"go.uber.org/zap"
)

type ProjectHandler struct {
	ProjectService ProjectService
}

func NewProjectHandler(projectService ProjectService) ProjectHandler {
	return ProjectHandler{ProjectService: projectService}
}

func (s *ProjectHandler) ListProjects(w http.ResponseWriter, r *http.Request) {
	filter := service.ProjectFilter{
		Status: r.URL.Query().Get("status"),
		Search: r.URL.Query().Get("q"),
	}
	projects, err := s.ProjectService.List(r.Context(), filter)
	if err != nil {
		handleListError(w, r, err, "projects", "list_projects")
		return
	}
	responseWithJSON(w, http.StatusOK, toPayload("projects", projects))
}

func (s *ProjectHandler) PostProject(w http.ResponseWriter, r *http.Request) {
	var request dto.ProjectRequest
	if !decodeJSON(w, r, &request) {
		return
	}
	project, err := s.ProjectService.Create(r.Context(), request.Options(true)...)
	if err != nil {
		handleError(w, r, err, "create_project")
		return
	}
	logger.Info("HTTP_OUT: Проект создан", zap.String("project_id", project.ID))
	responseWithNotice(w, http.StatusCreated, "Проект создан", toPayload("project", project))
}

func (s *ProjectHandler) GetProject(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	project, err := s.ProjectService.Get(r.Context(), id)
	if err != nil {
		handleError(w, r, err, "get_project")
		return
	}
	responseWithJSON(w, http.StatusOK, toPayload("project", project))
}

func (s *ProjectHandler) UpdateProject(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	var request dto.ProjectRequest
	if !decodeJSON(w, r, &request) {
		return
	}
	project, err := s.ProjectService.Update(r.Context(), id, request.Options(false)...)
	if err != nil {
		handleError(w, r, err, "update_project")
		return
	}
	responseWithNotice(w, http.StatusOK, "Проект обновлён", toPayload("project", project))
}

// DeleteProject требует ?confirm=true, иначе отвечает 428 с текстом подтверждения.
func (s *ProjectHandler) DeleteProject(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	if err := s.ProjectService.Delete(r.Context(), id, queryBool(r, "confirm")); err != nil {
		handleError(w, r, err, "delete_project")
		return
	}
	responseWithNotice(w, http.StatusOK, "Проект удалён", toPayload("id", id))
}
