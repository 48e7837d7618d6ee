package handlers

import (
	"errors"
	"log"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/taskhive-dev/taskhive/db"
	"github.com/taskhive-dev/taskhive/internal/models"
	"github.com/taskhive-dev/taskhive/internal/utils"
	"gorm.io/gorm"
)

type CreateStatusRequest struct {
	Name string `json:"name" binding:"required"`
}

type StatusResponse struct {
	ID   uint   `json:"id"`
	Name string `json:"name"`
}

func ListStatuses(ctx *gin.Context) {
	var statuses []models.Status

	if err := db.DB.Order("name").Find(&statuses).Error; err != nil {
		ctx.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to retrieve statuses"})
		return
	}

	response := make([]StatusResponse, 0, len(statuses))

	for _, status := range statuses {
		response = append(response, StatusResponse{ID: status.ID, Name: status.Name})
	}

	ctx.JSON(http.StatusOK, response)
}

func CreateStatus(ctx *gin.Context) {
	var body CreateStatusRequest

	if err := ctx.BindJSON(&body); err != nil {
		ctx.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request"})
		return
	}

	var existing models.Status

	err := db.DB.Where("name = ?", body.Name).First(&existing).Error

	if err == nil {
		ctx.JSON(http.StatusBadRequest, gin.H{"error": "Status already exists"})
		return
	}

	if !errors.Is(err, gorm.ErrRecordNotFound) {
		log.Printf("Database error when checking existing status: %v", err)
		ctx.JSON(http.StatusInternalServerError, gin.H{"error": "Internal server error"})
		return
	}

	status := models.Status{Name: body.Name}

	if err := db.DB.Create(&status).Error; err != nil {
		log.Printf("Failed to create status: %v", err)
		ctx.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to create status"})
		return
	}

	ctx.JSON(http.StatusCreated, StatusResponse{ID: status.ID, Name: status.Name})
}

// DeleteStatus removes a status. Tasks referencing it fall back to no
// status; they are not deleted.
func DeleteStatus(ctx *gin.Context) {
	statusID, err := utils.GetStatusID(ctx)

	if err != nil {
		ctx.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	var status models.Status

	if err := db.DB.First(&status, statusID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			ctx.JSON(http.StatusNotFound, gin.H{"error": "Status not found"})
		} else {
			ctx.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to retrieve status"})
		}
		return
	}

	err = db.DB.Transaction(func(tx *gorm.DB) error {
		err := tx.Model(&models.Task{}).
			Where("status_id = ?", status.ID).
			Update("status_id", nil).Error

		if err != nil {
			return err
		}

		return tx.Delete(&status).Error
	})

	if err != nil {
		log.Printf("Failed to delete status %d: %v", status.ID, err)
		ctx.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to delete status"})
		return
	}

	ctx.Status(http.StatusNoContent)
}
