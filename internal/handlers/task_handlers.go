package handlers

import (
	"net/http"
	"time"

	"creatively/internal/handlers/dto"
	"creatively/internal/logger"
	"creatively/internal/service"

	"go.uber.org/zap"
)

// Clock отдаёт текущее время и зону, в которой считаются календарные дни.
type Clock struct {
	Now      func() time.Time
	Location *time.Location
}

func (c Clock) now() time.Time {
	if c.Now != nil {
		return c.Now()
	}
	return time.Now()
}

func (c Clock) location() *time.Location {
	if c.Location != nil {
		return c.Location
	}
	return time.UTC
}

type TaskHandler struct {
	TaskService TaskService
	Clock       Clock
}

func NewTaskHandler(taskService TaskService, clock Clock) TaskHandler {
	return TaskHandler{
		TaskService: taskService,
		Clock:       clock,
	}
}

func (s *TaskHandler) ListTasks(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := service.TaskFilter{
		Status:     q.Get("status"),
		Priority:   q.Get("priority"),
		ProjectID:  q.Get("project_id"),
		AssignedTo: q.Get("assigned_to"),
		Search:     q.Get("q"),
	}

	tasks, err := s.TaskService.List(r.Context(), filter)
	if err != nil {
		handleListError(w, r, err, "tasks", "list_tasks")
		return
	}
	responseWithJSON(w, http.StatusOK,
		toPayload("tasks", dto.FromTaskList(tasks, s.Clock.now(), s.Clock.location())))
}

func (s *TaskHandler) PostTask(w http.ResponseWriter, r *http.Request) {
	start := time.Now()

	var request dto.CreateTaskRequest
	if !decodeJSON(w, r, &request) {
		return
	}

	logger.Info("HTTP: Вызов сервиса создания задачи")
	created, err := s.TaskService.Create(r.Context(), request.Options()...)
	if err != nil {
		handleError(w, r, err, "create_task")
		return
	}

	logger.Info("HTTP_OUT: Задача создана",
		zap.String("task_id", created.ID),
		zap.Duration("ms", time.Since(start)),
		zap.Int("http_status", http.StatusCreated))

	responseWithNotice(w, http.StatusCreated, "Задача создана",
		toPayload("task", dto.FromTask(*created, s.Clock.now(), s.Clock.location())))
}

func (s *TaskHandler) GetTaskByID(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}

	task, err := s.TaskService.Get(r.Context(), id)
	if err != nil {
		handleError(w, r, err, "get_task")
		return
	}
	responseWithJSON(w, http.StatusOK,
		toPayload("task", dto.FromTask(*task, s.Clock.now(), s.Clock.location())))
}

func (s *TaskHandler) UpdateTaskByID(w http.ResponseWriter, r *http.Request) {
	start := time.Now()

	id, ok := pathID(w, r)
	if !ok {
		return
	}
	var request dto.UpdateTaskRequest
	if !decodeJSON(w, r, &request) {
		return
	}

	logger.Info("HTTP: Запрос к сервису обновления задачи", zap.String("task_id", id))
	updated, err := s.TaskService.Update(r.Context(), id, request.Options()...)
	if err != nil {
		handleError(w, r, err, "update_task")
		return
	}

	logger.Info("HTTP_OUT: Задача обновлена",
		zap.Duration("ms", time.Since(start)),
		zap.Int("http_status", http.StatusOK))

	responseWithNotice(w, http.StatusOK, "Задача обновлена",
		toPayload("task", dto.FromTask(*updated, s.Clock.now(), s.Clock.location())))
}

func (s *TaskHandler) CompleteTask(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	request := dto.CompleteTaskRequest{Done: true}
	if r.ContentLength > 0 && !decodeJSON(w, r, &request) {
		return
	}

	task, err := s.TaskService.Complete(r.Context(), id, request.Done)
	if err != nil {
		handleError(w, r, err, "complete_task")
		return
	}
	notice := "Задача выполнена"
	if !request.Done {
		notice = "Задача возвращена в работу"
	}
	responseWithNotice(w, http.StatusOK, notice,
		toPayload("task", dto.FromTask(*task, s.Clock.now(), s.Clock.location())))
}

func (s *TaskHandler) DeleteTaskByID(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}

	logger.Info("HTTP: Обращение к сервису для удаления задачи", zap.String("task_id", id))
	if err := s.TaskService.Delete(r.Context(), id); err != nil {
		handleError(w, r, err, "delete_task")
		return
	}
	responseWithNotice(w, http.StatusOK, "Задача удалена", toPayload("id", id))
}
