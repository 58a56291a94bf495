package http

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/mikestefanello/backlite"

	"github.com/mrlokans/librarian/internal/auth"
	"github.com/mrlokans/librarian/internal/entities"
	"github.com/mrlokans/librarian/internal/tasks"
)

// TaskQueue is the part of tasks.Client the controller uses.
type TaskQueue interface {
	Enqueue(ctx context.Context, t ...backlite.Task) ([]string, error)
	Status(ctx context.Context, taskID string) (backlite.TaskStatus, error)
}

// TasksController handles task queue management endpoints.
type TasksController struct {
	client        TaskQueue
	retentionDays int
}

// NewTasksController creates a new TasksController.
func NewTasksController(client TaskQueue, retentionDays int) *TasksController {
	return &TasksController{client: client, retentionDays: retentionDays}
}

// RegisterRoutes mounts the task endpoints on an /api group. Staff only.
func (tc *TasksController) RegisterRoutes(api gin.IRouter) {
	group := api.Group("/tasks", auth.RequireRole(entities.RoleStaff))
	group.GET("/types", tc.ListTaskTypes)
	group.GET("/:id", tc.GetTaskStatus)
	group.POST("/:type/run", tc.RunTask)
}

// TaskTypeInfo describes an available task type.
type TaskTypeInfo struct {
	Type        string `json:"type"`
	Description string `json:"description"`
	Queue       string `json:"queue"`
}

// ListTaskTypes handles GET /api/tasks/types
func (tc *TasksController) ListTaskTypes(c *gin.Context) {
	types := []TaskTypeInfo{
		{
			Type:        "overdue_sweep",
			Description: "Mark active borrows past their due date as overdue",
			Queue:       tasks.OverdueSweepTask{}.Config().Name,
		},
		{
			Type:        "cleanup_audit_events",
			Description: "Delete audit events older than the retention period",
			Queue:       tasks.CleanupAuditEventsTask{}.Config().Name,
		},
	}

	c.JSON(http.StatusOK, gin.H{
		"task_types": types,
	})
}

// GetTaskStatus handles GET /api/tasks/:id
func (tc *TasksController) GetTaskStatus(c *gin.Context) {
	taskID := c.Param("id")

	ctx, cancel := context.WithTimeout(c.Request.Context(), 5*time.Second)
	defer cancel()

	status, err := tc.client.Status(ctx, taskID)
	if err != nil {
		respondInternalError(c, err, "task status")
		return
	}
	if status == backlite.TaskStatusNotFound {
		respondNotFound(c, "task")
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"id":     taskID,
		"status": taskStatusToString(status),
	})
}

// RunTask handles POST /api/tasks/:type/run
func (tc *TasksController) RunTask(c *gin.Context) {
	taskType := c.Param("type")

	var task backlite.Task
	switch taskType {
	case "overdue_sweep":
		task = tasks.OverdueSweepTask{Trigger: "api"}
	case "cleanup_audit_events":
		task = tasks.CleanupAuditEventsTask{RetentionDays: tc.retentionDays}
	default:
		respondBadRequest(c, fmt.Sprintf("unknown task type: %s", taskType))
		return
	}

	ids, err := tc.client.Enqueue(c.Request.Context(), task)
	if err != nil {
		respondInternalError(c, err, "enqueue "+taskType)
		return
	}

	c.JSON(http.StatusAccepted, gin.H{
		"task_id": ids[0],
		"type":    taskType,
		"message": "task enqueued",
	})
}

func taskStatusToString(status backlite.TaskStatus) string {
	switch status {
	case backlite.TaskStatusPending:
		return "pending"
	case backlite.TaskStatusRunning:
		return "running"
	case backlite.TaskStatusSuccess:
		return "success"
	case backlite.TaskStatusFailure:
		return "failure"
	case backlite.TaskStatusNotFound:
		return "not_found"
	default:
		return "unknown"
	}
}
