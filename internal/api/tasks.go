package api

import (
	"net/http"
	"time"

	"task-manager/internal/model"
	"task-manager/internal/repository"
	"task-manager/internal/service"
)

type taskResponse struct {
	ID          uint             `json:"id"`
	Title       string           `json:"title"`
	Description string           `json:"description"`
	Priority    int              `json:"priority"`
	Completed   bool             `json:"completed"`
	Status      model.TaskStatus `json:"status"`
	CreatedAt   time.Time        `json:"created_at"`
	UpdatedAt   time.Time        `json:"updated_at"`
}

func newTaskResponse(task *model.Task) taskResponse {
	return taskResponse{
		ID:          task.ID,
		Title:       task.Title,
		Description: task.Description,
		Priority:    task.Priority,
		Completed:   task.Completed,
		Status:      task.Status,
		CreatedAt:   task.CreatedAt,
		UpdatedAt:   task.UpdatedAt,
	}
}

type taskRequest struct {
	Title       string `json:"title"`
	Description string `json:"description"`
	Priority    int    `json:"priority"`
	Completed   bool   `json:"completed"`
	Status      string `json:"status"`
}

func (req taskRequest) input() service.TaskInput {
	return service.TaskInput{
		Title:       req.Title,
		Description: req.Description,
		Priority:    req.Priority,
		Completed:   req.Completed,
		Status:      req.Status,
	}
}

func (s *Server) listTasks(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	list, err := s.taskService.ListTasks(r.Context(), userFromContext(r.Context()), service.ListOptions{
		Kind:   repository.ListKind(query.Get("type")),
		Search: query.Get("search"),
	})
	if err != nil {
		writeError(w, r, err)
		return
	}

	tasks := make([]taskResponse, 0, len(list.Tasks))
	for i := range list.Tasks {
		tasks = append(tasks, newTaskResponse(&list.Tasks[i]))
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"tasks":           tasks,
		"completed_tasks": list.CompletedCount,
		"total_tasks":     list.TotalCount,
		"report_id":       list.ReportID,
	})
}

func (s *Server) createTask(w http.ResponseWriter, r *http.Request) {
	var req taskRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	task, err := s.taskService.CreateTask(r.Context(), userFromContext(r.Context()), req.input())
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, newTaskResponse(task))
}

func (s *Server) getTask(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r, "taskID")
	if err != nil {
		writeError(w, r, err)
		return
	}
	task, err := s.taskService.GetTask(r.Context(), userFromContext(r.Context()), id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, newTaskResponse(task))
}

func (s *Server) updateTask(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r, "taskID")
	if err != nil {
		writeError(w, r, err)
		return
	}
	var req taskRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	task, err := s.taskService.UpdateTask(r.Context(), userFromContext(r.Context()), id, req.input())
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, newTaskResponse(task))
}

func (s *Server) deleteTask(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r, "taskID")
	if err != nil {
		writeError(w, r, err)
		return
	}
	if err := s.taskService.DeleteTask(r.Context(), userFromContext(r.Context()), id); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) taskHistory(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r, "taskID")
	if err != nil {
		writeError(w, r, err)
		return
	}
	entries, err := s.taskService.TaskHistory(r.Context(), userFromContext(r.Context()), id)
	if err != nil {
		writeError(w, r, err)
		return
	}

	type historyEntry struct {
		OldStatus model.TaskStatus `json:"old_status"`
		NewStatus model.TaskStatus `json:"new_status"`
		CreatedAt time.Time        `json:"created_at"`
	}
	out := make([]historyEntry, 0, len(entries))
	for _, e := range entries {
		out = append(out, historyEntry{OldStatus: e.OldStatus, NewStatus: e.NewStatus, CreatedAt: e.CreatedAt})
	}
	writeJSON(w, http.StatusOK, map[string]any{"history": out})
}
