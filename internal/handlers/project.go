package handlers

import (
	"errors"
	"log"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/taskhive-dev/taskhive/db"
	"github.com/taskhive-dev/taskhive/internal/membership"
	"github.com/taskhive-dev/taskhive/internal/models"
	"github.com/taskhive-dev/taskhive/internal/taskfilter"
	"github.com/taskhive-dev/taskhive/internal/types"
	"github.com/taskhive-dev/taskhive/internal/utils"
	"gorm.io/gorm"
)

type CreateProjectRequest struct {
	Name      string `json:"name" binding:"required"`
	MemberIDs []uint `json:"member_ids"`
}

type UpdateProjectRequest struct {
	Name      string `json:"name" binding:"required"`
	MemberIDs []uint `json:"member_ids"`
}

type ProjectResponse struct {
	ID      uint                 `json:"id"`
	Name    string               `json:"name"`
	Members []types.UserResponse `json:"members"`
}

type ProjectDetailResponse struct {
	ID      uint                 `json:"id"`
	Name    string               `json:"name"`
	Members []types.UserResponse `json:"members"`
	Tasks   []TaskSummary        `json:"tasks"`
}

var errUnknownMember = errors.New("unknown member")

func CreateProject(ctx *gin.Context) {
	var body CreateProjectRequest

	if err := ctx.BindJSON(&body); err != nil {
		ctx.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request"})
		return
	}

	userID, err := utils.GetCurrentUserID(ctx)

	if err != nil {
		ctx.JSON(http.StatusUnauthorized, gin.H{"error": "User not authenticated"})
		return
	}

	members, err := resolveMembers(body.MemberIDs, userID)

	if err != nil {
		if errors.Is(err, errUnknownMember) {
			ctx.JSON(http.StatusNotFound, gin.H{"error": "Member not found"})
		} else {
			log.Printf("Failed to resolve members: %v", err)
			ctx.JSON(http.StatusInternalServerError, gin.H{"error": "Internal server error"})
		}
		return
	}

	if len(members) == 0 {
		ctx.JSON(http.StatusBadRequest, gin.H{"error": "A project must have at least one member"})
		return
	}

	project := models.Project{Name: body.Name}

	err = db.DB.Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(&project).Error; err != nil {
			return err
		}

		if err := tx.Model(&project).Association("Members").Append(&members); err != nil {
			return err
		}

		return membership.Sync(tx, &project, members)
	})

	if err != nil {
		log.Printf("Failed to create project: %v", err)
		ctx.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to create project"})
		return
	}

	ctx.JSON(http.StatusCreated, ProjectResponse{
		ID:      project.ID,
		Name:    project.Name,
		Members: userResponses(members),
	})
}

func ListProjects(ctx *gin.Context) {
	userID, err := utils.GetCurrentUserID(ctx)

	if err != nil {
		ctx.JSON(http.StatusUnauthorized, gin.H{"error": "User not authenticated"})
		return
	}

	var projects []models.Project

	err = db.DB.
		Joins("JOIN project_members ON project_members.project_id = projects.id").
		Where("project_members.user_id = ?", userID).
		Order("projects.name").
		Preload("Members").
		Find(&projects).Error

	if err != nil {
		ctx.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to retrieve projects"})
		return
	}

	response := make([]ProjectResponse, 0, len(projects))

	for _, project := range projects {
		response = append(response, ProjectResponse{
			ID:      project.ID,
			Name:    project.Name,
			Members: userResponses(project.Members),
		})
	}

	ctx.JSON(http.StatusOK, response)
}

// GetProject returns the project with its member list and its tasks, the
// latter narrowed by whatever filter expression the query string carries.
func GetProject(ctx *gin.Context) {
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

	if err := db.DB.Preload("Members").First(&project, projectID).Error; err != nil {
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

	expr, err := taskfilter.Compile(ctx.Request.URL.RawQuery)

	if err != nil {
		ctx.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	var tasks []models.Task

	err = taskfilter.Apply(db.DB, project.ID, expr).
		Preload("Status").
		Preload("Assignee").
		Find(&tasks).Error

	if err != nil {
		log.Printf("Failed to filter tasks of project %d: %v", project.ID, err)
		ctx.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to retrieve tasks"})
		return
	}

	ctx.JSON(http.StatusOK, ProjectDetailResponse{
		ID:      project.ID,
		Name:    project.Name,
		Members: userResponses(project.Members),
		Tasks:   taskSummaries(tasks),
	})
}

// UpdateProject replaces the project's name and member set wholesale. The
// acting principal is always retained in the member set, whatever the client
// submitted: members cannot remove themselves through this path.
func UpdateProject(ctx *gin.Context) {
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

	var body UpdateProjectRequest

	if err := ctx.BindJSON(&body); err != nil {
		ctx.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request"})
		return
	}

	members, err := resolveMembers(body.MemberIDs, userID)

	if err != nil {
		if errors.Is(err, errUnknownMember) {
			ctx.JSON(http.StatusNotFound, gin.H{"error": "Member not found"})
		} else {
			log.Printf("Failed to resolve members: %v", err)
			ctx.JSON(http.StatusInternalServerError, gin.H{"error": "Internal server error"})
		}
		return
	}

	if len(members) == 0 {
		ctx.JSON(http.StatusBadRequest, gin.H{"error": "A project must have at least one member"})
		return
	}

	err = db.DB.Transaction(func(tx *gorm.DB) error {
		if err := tx.Model(&project).Update("name", body.Name).Error; err != nil {
			return err
		}

		if err := tx.Model(&project).Association("Members").Replace(&members); err != nil {
			return err
		}

		return membership.Sync(tx, &project, members)
	})

	if err != nil {
		reportSyncError(ctx, err, "update project")
		return
	}

	ctx.JSON(http.StatusOK, ProjectResponse{
		ID:      project.ID,
		Name:    project.Name,
		Members: userResponses(members),
	})
}

// DeleteProject removes the project, its tasks and their journal entries,
// and tears down the derived access group/permission pair, all in one
// transaction.
func DeleteProject(ctx *gin.Context) {
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

	err = db.DB.Transaction(func(tx *gorm.DB) error {
		taskIDs := tx.Session(&gorm.Session{NewDB: true}).
			Model(&models.Task{}).
			Select("id").
			Where("project_id = ?", project.ID)

		if err := tx.Where("task_id IN (?)", taskIDs).Delete(&models.Journal{}).Error; err != nil {
			return err
		}

		if err := tx.Where("project_id = ?", project.ID).Delete(&models.Task{}).Error; err != nil {
			return err
		}

		if err := membership.Teardown(tx, project.ID); err != nil {
			return err
		}

		if err := tx.Model(&project).Association("Members").Clear(); err != nil {
			return err
		}

		return tx.Delete(&project).Error
	})

	if err != nil {
		reportSyncError(ctx, err, "delete project")
		return
	}

	ctx.Status(http.StatusNoContent)
}

// resolveMembers loads the submitted member ids, always folding the acting
// principal into the set. Any id that matches no user aborts the operation.
func resolveMembers(memberIDs []uint, principalID uint) ([]models.User, error) {
	seen := map[uint]bool{principalID: true}
	ids := []uint{principalID}

	for _, id := range memberIDs {
		if !seen[id] {
			seen[id] = true
			ids = append(ids, id)
		}
	}

	var users []models.User

	if err := db.DB.Where("id IN ?", ids).Find(&users).Error; err != nil {
		return nil, err
	}

	if len(users) != len(ids) {
		return nil, errUnknownMember
	}

	return users, nil
}

// reportSyncError distinguishes invariant violations (a project without its
// access pair is corrupt data) from ordinary storage failures. Neither is
// user-correctable; both surface as internal errors.
func reportSyncError(ctx *gin.Context, err error, op string) {
	if errors.Is(err, membership.ErrAccessGroupMissing) || errors.Is(err, membership.ErrAccessPermissionMissing) {
		log.Printf("Invariant violation during %s: %v", op, err)
	} else {
		log.Printf("Failed to %s: %v", op, err)
	}

	ctx.JSON(http.StatusInternalServerError, gin.H{"error": "Internal server error"})
}

func userResponses(users []models.User) []types.UserResponse {
	response := make([]types.UserResponse, 0, len(users))

	for _, user := range users {
		response = append(response, types.UserResponse{
			ID:    user.ID,
			Name:  user.Name,
			Email: user.Email,
		})
	}

	return response
}
