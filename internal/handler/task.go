package handler

import (
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/TanguyBaudrin/familly-companion/internal/expiry"
	"github.com/TanguyBaudrin/familly-companion/internal/model"
	"github.com/TanguyBaudrin/familly-companion/internal/points"
	"github.com/TanguyBaudrin/familly-companion/internal/store"
	"github.com/TanguyBaudrin/familly-companion/internal/websocket"
)

type TaskHandler struct {
	broadcaster
	tasks   *store.TaskStore
	members *store.MemberStore
	engine  *points.Engine
	now     func() time.Time
	logger  *slog.Logger
}

func NewTaskHandler(ts *store.TaskStore, ms *store.MemberStore, engine *points.Engine, hub *websocket.Hub, now func() time.Time, logger *slog.Logger) *TaskHandler {
	if now == nil {
		now = time.Now
	}
	return &TaskHandler{
		broadcaster: broadcaster{hub: hub},
		tasks:       ts,
		members:     ms,
		engine:      engine,
		now:         now,
		logger:      logger,
	}
}

// taskResponse adds the derived expiry fields to a task.
type taskResponse struct {
	model.Task
	ExpiresAt *time.Time `json:"expires_at"`
	Expired   bool       `json:"expired"`
}

func (h *TaskHandler) present(t model.Task) taskResponse {
	resp := taskResponse{Task: t}
	at, err := expiry.ExpiresAt(t.CreatedAt, t.Duration)
	if err != nil {
		h.logger.Warn("stored task has invalid duration", "task_id", t.ID, "error", err)
		return resp
	}
	resp.ExpiresAt = at
	if t.Status == model.TaskPending && at != nil {
		resp.Expired = h.now().After(*at)
	}
	return resp
}

type taskRequest struct {
	Description string              `json:"description"`
	Points      int                 `json:"points"`
	AssignedTo  *int64              `json:"assigned_to"`
	Duration    *model.TaskDuration `json:"duration"`
}

// validate trims and checks the request, writing a 400 and returning false
// when it is unusable.
func (h *TaskHandler) validate(w http.ResponseWriter, req *taskRequest) bool {
	req.Description = strings.TrimSpace(req.Description)
	if req.Description == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "description is required"})
		return false
	}
	if req.Points <= 0 {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "points must be > 0"})
		return false
	}
	if err := expiry.Validate(req.Duration); err != nil {
		writeError(w, h.logger, err, "invalid duration")
		return false
	}
	if req.AssignedTo != nil {
		m, err := h.members.GetByID(*req.AssignedTo)
		if err != nil {
			writeError(w, h.logger, err, "failed to get member")
			return false
		}
		if m == nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "assigned_to does not match a member"})
			return false
		}
	}
	return true
}

func (h *TaskHandler) List(w http.ResponseWriter, r *http.Request) {
	var filter store.TaskFilter

	q := r.URL.Query()
	switch status := model.TaskStatus(q.Get("status")); status {
	case "", model.TaskPending, model.TaskCompleted:
		filter.Status = status
	default:
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "status must be pending or completed"})
		return
	}
	if v := q.Get("assigned_to"); v != "" {
		id, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid assigned_to"})
			return
		}
		filter.AssignedTo = &id
	}

	tasks, err := h.tasks.List(filter)
	if err != nil {
		writeError(w, h.logger, err, "failed to list tasks")
		return
	}

	resp := make([]taskResponse, 0, len(tasks))
	for _, t := range tasks {
		resp = append(resp, h.present(t))
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *TaskHandler) lookup(w http.ResponseWriter, r *http.Request) (*model.Task, bool) {
	id, err := parseIDParam(r, "id")
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid id"})
		return nil, false
	}
	task, err := h.tasks.GetByID(id)
	if err != nil {
		writeError(w, h.logger, err, "failed to get task")
		return nil, false
	}
	if task == nil {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "task not found"})
		return nil, false
	}
	return task, true
}

func (h *TaskHandler) Get(w http.ResponseWriter, r *http.Request) {
	task, ok := h.lookup(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, h.present(*task))
}

func (h *TaskHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req taskRequest
	if err := decodeJSON(r, &req, false); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid JSON"})
		return
	}
	if !h.validate(w, &req) {
		return
	}

	task, err := h.tasks.Create(req.Description, req.Points, req.AssignedTo, req.Duration, h.now())
	if err != nil {
		writeError(w, h.logger, err, "failed to create task")
		return
	}

	h.broadcast(websocket.NewMessage("task", "created", task.ID, nil))
	writeJSON(w, http.StatusCreated, h.present(*task))
}

// Update edits a pending task. Status cannot be changed here; completion
// goes through Complete.
func (h *TaskHandler) Update(w http.ResponseWriter, r *http.Request) {
	existing, ok := h.lookup(w, r)
	if !ok {
		return
	}

	var req taskRequest
	if err := decodeJSON(r, &req, false); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid JSON"})
		return
	}
	if !h.validate(w, &req) {
		return
	}

	task, updated, err := h.tasks.Update(existing.ID, req.Description, req.Points, req.AssignedTo, req.Duration)
	if err != nil {
		writeError(w, h.logger, err, "failed to update task")
		return
	}
	if !updated {
		writeJSON(w, http.StatusConflict, map[string]string{"error": "only pending tasks can be edited"})
		return
	}

	h.broadcast(websocket.NewMessage("task", "updated", task.ID, nil))
	writeJSON(w, http.StatusOK, h.present(*task))
}

func (h *TaskHandler) Delete(w http.ResponseWriter, r *http.Request) {
	task, ok := h.lookup(w, r)
	if !ok {
		return
	}

	if err := h.tasks.Delete(task.ID); err != nil {
		writeError(w, h.logger, err, "failed to delete task")
		return
	}

	h.broadcast(websocket.NewMessage("task", "deleted", task.ID, nil))
	w.WriteHeader(http.StatusNoContent)
}

// Complete completes a task with the given allocations. Without
// allocations the whole task goes to its assignee.
func (h *TaskHandler) Complete(w http.ResponseWriter, r *http.Request) {
	task, ok := h.lookup(w, r)
	if !ok {
		return
	}

	var req struct {
		Allocations []points.Allocation `json:"allocations"`
	}
	if err := decodeJSON(r, &req, true); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid JSON"})
		return
	}
	if len(req.Allocations) == 0 && task.AssignedTo != nil {
		req.Allocations = []points.Allocation{{MemberID: *task.AssignedTo, Percentage: 100}}
	}

	result, err := h.engine.CompleteTask(r.Context(), task.ID, req.Allocations)
	if err != nil {
		writeError(w, h.logger, err, "failed to complete task")
		return
	}

	h.broadcast(websocket.NewMessage("task", "completed", task.ID, nil))
	for _, g := range result.Grants {
		h.broadcast(websocket.NewMessage("member", "points", g.MemberID, map[string]any{"points": g.Points}))
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"task":      h.present(*result.Task),
		"grants":    result.Grants,
		"shortfall": result.Shortfall,
	})
}
