// Task HTTP handlers.
//
//   - POST  /tasks              (create)
//   - GET   /tasks              (list, filtered and paginated)
//   - GET   /tasks/{id}         (read)
//   - PATCH /tasks/{id}/status  (status transition)
//   - POST  /tasks/{id}/delay   (push the due time out)
package handlers

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/tbourn/go-crm-backend/internal/domain"
	"github.com/tbourn/go-crm-backend/internal/repo"
	"github.com/tbourn/go-crm-backend/internal/services"
)

// CreateTaskRequest is the JSON payload for creating a task.
type CreateTaskRequest struct {
	CustomerPhone string    `json:"customer_phone" binding:"required" example:"0912345678"`
	OrderID       *string   `json:"order_id,omitempty"`
	AssigneeID    *string   `json:"assignee_id,omitempty"`
	Title         string    `json:"title" binding:"required" example:"Call back about delivery"`
	Type          string    `json:"type,omitempty" example:"FOLLOW_UP"`
	Priority      string    `json:"priority,omitempty" example:"HIGH"`
	DueAt         time.Time `json:"due_at" binding:"required"`
}

// UpdateTaskStatusRequest is the JSON payload for a status transition.
type UpdateTaskStatusRequest struct {
	Status string `json:"status" binding:"required" example:"IN_PROGRESS"`
}

// DelayTaskRequest is the JSON payload for delaying a task.
type DelayTaskRequest struct {
	DueAt time.Time `json:"due_at" binding:"required"`
}

// ListTasksResponse wraps a page of tasks and pagination information.
type ListTasksResponse struct {
	Tasks      []domain.Task `json:"tasks"`
	Pagination Pagination    `json:"pagination"`
}

func validTaskID(c *gin.Context) (string, bool) {
	id := c.Param("id")
	if _, err := uuid.Parse(id); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "task id must be a UUID")
		return "", false
	}
	return id, true
}

// CreateTask godoc
// @ID          createTask
// @Summary     Create a task
// @Description Creates a task for a customer. Type defaults to FOLLOW_UP and priority to MEDIUM.
// @Tags        Tasks
// @Accept      json
// @Produce     json
// @Param       body  body  handlers.CreateTaskRequest  true  "Task payload"
// @Success     201  {object} domain.Task
// @Failure     400  {object} handlers.ErrorResponse "Bad request"
// @Failure     404  {object} handlers.ErrorResponse "Customer or assignee not found"
// @Failure     500  {object} handlers.ErrorResponse "Internal error"
// @Router      /tasks [post]
func (h *Handlers) CreateTask(c *gin.Context) {
	var req CreateTaskRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "customer_phone, title and due_at are required")
		return
	}
	t, err := h.tasks.Create(c.Request.Context(), services.TaskInput{
		CustomerPhone: req.CustomerPhone,
		OrderID:       req.OrderID,
		AssigneeID:    req.AssigneeID,
		Title:         req.Title,
		Type:          req.Type,
		Priority:      req.Priority,
		DueAt:         req.DueAt,
	})
	if err != nil {
		failErr(c, err)
		return
	}
	ok(c, http.StatusCreated, t)
}

// ListTasks godoc
// @ID          listTasks
// @Summary     List tasks (paginated)
// @Description Returns tasks ordered by due time, optionally filtered.
// @Tags        Tasks
// @Produce     json
// @Param       customer_phone  query  string  false  "Customer phone"
// @Param       assignee_id     query  string  false  "Assignee user ID"
// @Param       status          query  string  false  "Task status"  Enums(PENDING, IN_PROGRESS, COMPLETED, CANCELLED, OVERDUE)
// @Param       type            query  string  false  "Task type"    Enums(FOLLOW_UP, REMINDER, CALLBACK, OTHER)
// @Param       page            query  int     false  "Page number"     minimum(1) default(1)
// @Param       page_size       query  int     false  "Items per page"  minimum(1) maximum(100) default(20)
// @Success     200  {object} handlers.ListTasksResponse
// @Failure     500  {object} handlers.ErrorResponse "Internal error"
// @Router      /tasks [get]
func (h *Handlers) ListTasks(c *gin.Context) {
	page, pageSize := clampPagination(c)
	f := repo.TaskFilter{
		AssigneeID: strings.TrimSpace(c.Query("assignee_id")),
		Status:     strings.ToUpper(strings.TrimSpace(c.Query("status"))),
		Type:       strings.ToUpper(strings.TrimSpace(c.Query("type"))),
	}
	if p := strings.TrimSpace(c.Query("customer_phone")); p != "" {
		f.CustomerPhone = services.NormalizePhone(p)
	}

	items, total, err := h.tasks.List(c.Request.Context(), f, page, pageSize)
	if err != nil {
		failErr(c, err)
		return
	}
	ok(c, http.StatusOK, ListTasksResponse{Tasks: items, Pagination: newPagination(page, pageSize, total)})
}

// GetTask godoc
// @ID          getTask
// @Summary     Get a task
// @Tags        Tasks
// @Produce     json
// @Param       id  path  string  true  "Task ID (UUID)"  format(uuid)
// @Success     200  {object} domain.Task
// @Failure     400  {object} handlers.ErrorResponse "Bad request"
// @Failure     404  {object} handlers.ErrorResponse "Task not found"
// @Router      /tasks/{id} [get]
func (h *Handlers) GetTask(c *gin.Context) {
	id, valid := validTaskID(c)
	if !valid {
		return
	}
	t, err := h.tasks.Get(c.Request.Context(), id)
	if err != nil {
		failErr(c, err)
		return
	}
	ok(c, http.StatusOK, t)
}

// UpdateTaskStatus godoc
// @ID          updateTaskStatus
// @Summary     Change a task's status
// @Description Allowed: PENDING→IN_PROGRESS|CANCELLED, IN_PROGRESS→COMPLETED|CANCELLED, OVERDUE→CANCELLED.
// @Tags        Tasks
// @Accept      json
// @Produce     json
// @Param       X-User-ID  header  string  false "Acting staff user"
// @Param       id         path    string  true  "Task ID (UUID)"  format(uuid)
// @Param       body       body    handlers.UpdateTaskStatusRequest  true  "Target status"
// @Success     200  {object} domain.Task
// @Failure     400  {object} handlers.ErrorResponse "Bad request"
// @Failure     404  {object} handlers.ErrorResponse "Task not found"
// @Failure     409  {object} handlers.ErrorResponse "Transition not allowed"
// @Router      /tasks/{id}/status [patch]
func (h *Handlers) UpdateTaskStatus(c *gin.Context) {
	id, valid := validTaskID(c)
	if !valid {
		return
	}
	var req UpdateTaskStatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "status is required")
		return
	}
	t, err := h.tasks.Transition(c.Request.Context(), actor(c), id, req.Status)
	if err != nil {
		failErr(c, err)
		return
	}
	ok(c, http.StatusOK, t)
}

// DelayTask godoc
// @ID          delayTask
// @Summary     Delay a task
// @Description Moves an open task's due time into the future. An OVERDUE task returns to PENDING.
// @Tags        Tasks
// @Accept      json
// @Produce     json
// @Param       X-User-ID  header  string  false "Acting staff user"
// @Param       id         path    string  true  "Task ID (UUID)"  format(uuid)
// @Param       body       body    handlers.DelayTaskRequest  true  "New due time"
// @Success     200  {object} domain.Task
// @Failure     400  {object} handlers.ErrorResponse "Bad request"
// @Failure     404  {object} handlers.ErrorResponse "Task not found"
// @Failure     409  {object} handlers.ErrorResponse "Task is closed"
// @Router      /tasks/{id}/delay [post]
func (h *Handlers) DelayTask(c *gin.Context) {
	id, valid := validTaskID(c)
	if !valid {
		return
	}
	var req DelayTaskRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "due_at is required")
		return
	}
	t, err := h.tasks.Delay(c.Request.Context(), actor(c), id, req.DueAt)
	if err != nil {
		failErr(c, err)
		return
	}
	ok(c, http.StatusOK, t)
}
