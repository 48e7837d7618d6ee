package handlers

import (
	"log"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/taskhive-dev/taskhive/db"
	"github.com/taskhive-dev/taskhive/internal/access"
)

// requireProjectAccess gates an operation on the per-project permission.
// A denied principal is redirected to the project list; the response never
// distinguishes "forbidden" from "does not exist". A check that cannot be
// evaluated is an internal error, not a denial.
func requireProjectAccess(ctx *gin.Context, userID, projectID uint) bool {
	allowed, err := access.Check(db.DB, userID, projectID)

	if err != nil {
		log.Printf("Failed to evaluate access check for user %d on project %d: %v", userID, projectID, err)
		ctx.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "Internal server error"})
		return false
	}

	if allowed {
		return true
	}

	ctx.Redirect(http.StatusSeeOther, "/api/projects")
	ctx.Abort()
	return false
}
