package handlers

import (
	"fmt"
	"log"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/taskhive-dev/taskhive/db"
	"github.com/taskhive-dev/taskhive/internal/export"
	"github.com/taskhive-dev/taskhive/internal/utils"
)

// ExportData streams a zip archive of the selected entity sets, scoped to
// the projects the acting principal belongs to.
func ExportData(ctx *gin.Context) {
	userID, err := utils.GetCurrentUserID(ctx)

	if err != nil {
		ctx.JSON(http.StatusUnauthorized, gin.H{"error": "User not authenticated"})
		return
	}

	selection := export.Selection{
		Projects: queryFlag(ctx, "projects"),
		Members:  queryFlag(ctx, "members"),
		Tasks:    queryFlag(ctx, "tasks"),
		Journals: queryFlag(ctx, "journals"),
		Status:   queryFlag(ctx, "status"),
	}

	if selection.Empty() {
		ctx.JSON(http.StatusBadRequest, gin.H{"error": "Select at least one data set to export"})
		return
	}

	format, ok := export.ParseFormat(ctx.Query("format"))

	if !ok {
		ctx.JSON(http.StatusBadRequest, gin.H{"error": "Unsupported export format"})
		return
	}

	filename := fmt.Sprintf("data_%s.zip", uuid.NewString())

	ctx.Header("Content-Type", "application/zip")
	ctx.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))

	if err := export.Dump(db.DB, userID, selection, format, ctx.Writer); err != nil {
		log.Printf("Failed to export data for user %d: %v", userID, err)
		ctx.Status(http.StatusInternalServerError)
	}
}

func queryFlag(ctx *gin.Context, name string) bool {
	switch ctx.Query(name) {
	case "1", "true", "on", "yes":
		return true
	default:
		return false
	}
}
