package handlers

import (
	"errors"
	"log"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/taskhive-dev/taskhive/db"
	"github.com/taskhive-dev/taskhive/internal/models"
	"github.com/taskhive-dev/taskhive/internal/utils"
	"gorm.io/gorm"
)

const dateLayout = "2006-01-02"

type TaskRequest struct {
	Name                 string `json:"name" binding:"required"`
	Description          string `json:"description"`
	StartDate            string `json:"start_date" binding:"required"`
	DueDate              string `json:"due_date" binding:"required"`
	Priority             int    `json:"priority" binding:"required"`
	CompletionPercentage int    `json:"completion_percentage"`
	StatusID             *uint  `json:"status_id"`
	AssigneeID           *uint  `json:"assignee_id"`
}

type TaskSummary struct {
	ID                   uint      `json:"id"`
	Name                 string    `json:"name"`
	Description          string    `json:"description"`
	StartDate            string    `json:"start_date"`
	DueDate              string    `json:"due_date"`
	Priority             int       `json:"priority"`
	CompletionPercentage int       `json:"completion_percentage"`
	StatusID             *uint     `json:"status_id"`
	StatusName           string    `json:"status_name,omitempty"`
	AssigneeID           *uint     `json:"assignee_id"`
	AssigneeName         string    `json:"assignee_name,omitempty"`
	ProjectID            uint      `json:"project_id"`
	LastModification     time.Time `json:"last_modification"`
}

type TaskDetailResponse struct {
	TaskSummary
	Journal []JournalEntryResponse `json:"journal"`
}

func CreateTask(ctx *gin.Context) {
	userID, err := utils.GetCurrentUserID(ctx)

	if err != nil {
		ctx.JSON(http.StatusUnauthorized, gin.H{"error": "User not authenticated"})
		return
	}

	projectID, err := utils.GetProjectID(ctx)

	if err != nil {
		ctx.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	var project models.Project

	if err := db.DB.First(&project, projectID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			ctx.JSON(http.StatusNotFound, gin.H{"error": "Project not found"})
		} else {
			ctx.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to retrieve project"})
		}
		return
	}

	if !requireProjectAccess(ctx, userID, project.ID) {
		return
	}

	var body TaskRequest

	if err := ctx.BindJSON(&body); err != nil {
		ctx.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request"})
		return
	}

	task := models.Task{ProjectID: project.ID}

	if !applyTaskRequest(ctx, &task, body) {
		return
	}

	task.LastModification = time.Now()

	if err := db.DB.Create(&task).Error; err != nil {
		log.Printf("Failed to create task: %v", err)
		ctx.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to create task"})
		return
	}

	ctx.JSON(http.StatusCreated, taskSummary(task))
}

func GetTask(ctx *gin.Context) {
	userID, err := utils.GetCurrentUserID(ctx)

	if err != nil {
		ctx.JSON(http.StatusUnauthorized, gin.H{"error": "User not authenticated"})
		return
	}

	task, ok := findTask(ctx)

	if !ok {
		return
	}

	if !requireProjectAccess(ctx, userID, task.ProjectID) {
		return
	}

	var entries []models.Journal

	err = db.DB.Where("task_id = ?", task.ID).
		Preload("Author").
		Order("date").
		Find(&entries).Error

	if err != nil {
		log.Printf("Failed to load journal of task %d: %v", task.ID, err)
		ctx.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to retrieve journal"})
		return
	}

	ctx.JSON(http.StatusOK, TaskDetailResponse{
		TaskSummary: taskSummary(task),
		Journal:     journalResponses(entries),
	})
}

func UpdateTask(ctx *gin.Context) {
	userID, err := utils.GetCurrentUserID(ctx)

	if err != nil {
		ctx.JSON(http.StatusUnauthorized, gin.H{"error": "User not authenticated"})
		return
	}

	task, ok := findTask(ctx)

	if !ok {
		return
	}

	if !requireProjectAccess(ctx, userID, task.ProjectID) {
		return
	}

	var body TaskRequest

	if err := ctx.BindJSON(&body); err != nil {
		ctx.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request"})
		return
	}

	if !applyTaskRequest(ctx, &task, body) {
		return
	}

	task.LastModification = time.Now()

	if err := db.DB.Save(&task).Error; err != nil {
		log.Printf("Failed to update task %d: %v", task.ID, err)
		ctx.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to update task"})
		return
	}

	ctx.JSON(http.StatusOK, taskSummary(task))
}

// DeleteTask removes the task and, with it, its journal entries.
func DeleteTask(ctx *gin.Context) {
	userID, err := utils.GetCurrentUserID(ctx)

	if err != nil {
		ctx.JSON(http.StatusUnauthorized, gin.H{"error": "User not authenticated"})
		return
	}

	task, ok := findTask(ctx)

	if !ok {
		return
	}

	if !requireProjectAccess(ctx, userID, task.ProjectID) {
		return
	}

	err = db.DB.Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("task_id = ?", task.ID).Delete(&models.Journal{}).Error; err != nil {
			return err
		}

		return tx.Delete(&task).Error
	})

	if err != nil {
		log.Printf("Failed to delete task %d: %v", task.ID, err)
		ctx.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to delete task"})
		return
	}

	ctx.Status(http.StatusNoContent)
}

// AssignedTasks lists the principal's open tasks: assigned to them and not
// in a status whose name contains "Finished". Tasks without a status count
// as open.
func AssignedTasks(ctx *gin.Context) {
	userID, err := utils.GetCurrentUserID(ctx)

	if err != nil {
		ctx.JSON(http.StatusUnauthorized, gin.H{"error": "User not authenticated"})
		return
	}

	var tasks []models.Task

	err = db.DB.Model(&models.Task{}).
		Joins("LEFT JOIN statuses ON statuses.id = tasks.status_id").
		Where("tasks.assignee_id = ?", userID).
		Where("statuses.name IS NULL OR statuses.name NOT LIKE ?", "%Finished%").
		Order("priority DESC").
		Preload("Status").
		Find(&tasks).Error

	if err != nil {
		ctx.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to retrieve tasks"})
		return
	}

	ctx.JSON(http.StatusOK, taskSummaries(tasks))
}

// FinishedTasks lists the principal's tasks in a "Finished" status.
func FinishedTasks(ctx *gin.Context) {
	userID, err := utils.GetCurrentUserID(ctx)

	if err != nil {
		ctx.JSON(http.StatusUnauthorized, gin.H{"error": "User not authenticated"})
		return
	}

	var tasks []models.Task

	err = db.DB.Model(&models.Task{}).
		Joins("JOIN statuses ON statuses.id = tasks.status_id").
		Where("tasks.assignee_id = ?", userID).
		Where("statuses.name LIKE ?", "%Finished%").
		Order("priority DESC").
		Preload("Status").
		Find(&tasks).Error

	if err != nil {
		ctx.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to retrieve tasks"})
		return
	}

	ctx.JSON(http.StatusOK, taskSummaries(tasks))
}

// RecentTasks lists a project's tasks by most recent modification.
func RecentTasks(ctx *gin.Context) {
	userID, err := utils.GetCurrentUserID(ctx)

	if err != nil {
		ctx.JSON(http.StatusUnauthorized, gin.H{"error": "User not authenticated"})
		return
	}

	projectID, err := utils.GetProjectID(ctx)

	if err != nil {
		ctx.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	var project models.Project

	if err := db.DB.First(&project, projectID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			ctx.JSON(http.StatusNotFound, gin.H{"error": "Project not found"})
		} else {
			ctx.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to retrieve project"})
		}
		return
	}

	if !requireProjectAccess(ctx, userID, project.ID) {
		return
	}

	var tasks []models.Task

	err = db.DB.Where("project_id = ?", project.ID).
		Order("last_modification DESC").
		Preload("Status").
		Preload("Assignee").
		Find(&tasks).Error

	if err != nil {
		ctx.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to retrieve tasks"})
		return
	}

	ctx.JSON(http.StatusOK, taskSummaries(tasks))
}

func findTask(ctx *gin.Context) (models.Task, bool) {
	var task models.Task

	taskID, err := utils.GetTaskID(ctx)

	if err != nil {
		ctx.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return task, false
	}

	err = db.DB.Preload("Status").Preload("Assignee").First(&task, taskID).Error

	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			ctx.JSON(http.StatusNotFound, gin.H{"error": "Task not found"})
		} else {
			ctx.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to retrieve task"})
		}
		return task, false
	}

	return task, true
}

// applyTaskRequest validates the submitted fields against the task's project
// and copies them onto the task. It writes the error response itself and
// reports whether the task may be saved.
func applyTaskRequest(ctx *gin.Context, task *models.Task, body TaskRequest) bool {
	if body.Priority < 1 || body.Priority > 10 {
		ctx.JSON(http.StatusBadRequest, gin.H{"error": "Priority must be between 1 and 10"})
		return false
	}

	if body.CompletionPercentage < 0 || body.CompletionPercentage > 100 {
		ctx.JSON(http.StatusBadRequest, gin.H{"error": "Completion percentage must be between 0 and 100"})
		return false
	}

	startDate, err := time.Parse(dateLayout, body.StartDate)

	if err != nil {
		ctx.JSON(http.StatusBadRequest, gin.H{"error": "Invalid start date"})
		return false
	}

	dueDate, err := time.Parse(dateLayout, body.DueDate)

	if err != nil {
		ctx.JSON(http.StatusBadRequest, gin.H{"error": "Invalid due date"})
		return false
	}

	if dueDate.Before(startDate) {
		ctx.JSON(http.StatusBadRequest, gin.H{"error": "The due date must not precede the start date"})
		return false
	}

	if body.StatusID != nil {
		var status models.Status

		if err := db.DB.First(&status, *body.StatusID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				ctx.JSON(http.StatusNotFound, gin.H{"error": "Status not found"})
			} else {
				ctx.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to retrieve status"})
			}
			return false
		}
	}

	if body.AssigneeID != nil {
		var count int64

		err := db.DB.Table("project_members").
			Where("project_id = ? AND user_id = ?", task.ProjectID, *body.AssigneeID).
			Count(&count).Error

		if err != nil {
			ctx.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to verify assignee"})
			return false
		}

		if count == 0 {
			ctx.JSON(http.StatusBadRequest, gin.H{"error": "The assignee must be a member of the project"})
			return false
		}
	}

	task.Name = body.Name
	task.Description = body.Description
	task.StartDate = startDate
	task.DueDate = dueDate
	task.Priority = body.Priority
	task.CompletionPercentage = body.CompletionPercentage
	task.StatusID = body.StatusID
	task.AssigneeID = body.AssigneeID

	// Stale preloaded associations would win over the id fields on save and
	// resurrect a cleared assignee or status.
	task.Status = nil
	task.Assignee = nil

	return true
}

func taskSummary(task models.Task) TaskSummary {
	summary := TaskSummary{
		ID:                   task.ID,
		Name:                 task.Name,
		Description:          task.Description,
		StartDate:            task.StartDate.Format(dateLayout),
		DueDate:              task.DueDate.Format(dateLayout),
		Priority:             task.Priority,
		CompletionPercentage: task.CompletionPercentage,
		StatusID:             task.StatusID,
		AssigneeID:           task.AssigneeID,
		ProjectID:            task.ProjectID,
		LastModification:     task.LastModification,
	}

	if task.Status != nil {
		summary.StatusName = task.Status.Name
	}

	if task.Assignee != nil {
		summary.AssigneeName = task.Assignee.Name
	}

	return summary
}

func taskSummaries(tasks []models.Task) []TaskSummary {
	summaries := make([]TaskSummary, 0, len(tasks))

	for _, task := range tasks {
		summaries = append(summaries, taskSummary(task))
	}

	return summaries
}
