package handlers

import (
	"log"
	"net/http"
	"time"
	"unicode/utf8"

	"github.com/gin-gonic/gin"
	"github.com/taskhive-dev/taskhive/db"
	"github.com/taskhive-dev/taskhive/internal/models"
	"github.com/taskhive-dev/taskhive/internal/utils"
	"gorm.io/gorm"
)

type CreateJournalRequest struct {
	Entry string `json:"entry" binding:"required"`
}

type JournalEntryResponse struct {
	ID         uint      `json:"id"`
	Date       time.Time `json:"date"`
	Entry      string    `json:"entry"`
	AuthorID   uint      `json:"author_id"`
	AuthorName string    `json:"author_name,omitempty"`
}

// CreateJournal appends an entry to a task's activity log. The author is
// always the acting principal and the task is always the one addressed by
// the URL; neither is taken from the request body. Appending counts as a
// modification of the task.
func CreateJournal(ctx *gin.Context) {
	currentUser, err := utils.GetCurrentUser(ctx)

	if err != nil {
		ctx.JSON(http.StatusUnauthorized, gin.H{"error": "User not authenticated"})
		return
	}

	task, ok := findTask(ctx)

	if !ok {
		return
	}

	if !requireProjectAccess(ctx, currentUser.ID, task.ProjectID) {
		return
	}

	var body CreateJournalRequest

	if err := ctx.BindJSON(&body); err != nil {
		ctx.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request"})
		return
	}

	// the bound counts characters, not bytes
	if utf8.RuneCountInString(body.Entry) > models.MaxJournalEntryLength {
		ctx.JSON(http.StatusBadRequest, gin.H{"error": "Journal entry is too long"})
		return
	}

	entry := models.Journal{
		Date:     time.Now(),
		Entry:    body.Entry,
		AuthorID: currentUser.ID,
		TaskID:   task.ID,
	}

	err = db.DB.Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(&entry).Error; err != nil {
			return err
		}

		return tx.Model(&task).Update("last_modification", time.Now()).Error
	})

	if err != nil {
		log.Printf("Failed to append journal entry to task %d: %v", task.ID, err)
		ctx.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to append journal entry"})
		return
	}

	ctx.JSON(http.StatusCreated, JournalEntryResponse{
		ID:         entry.ID,
		Date:       entry.Date,
		Entry:      entry.Entry,
		AuthorID:   entry.AuthorID,
		AuthorName: currentUser.Name,
	})
}

func journalResponses(entries []models.Journal) []JournalEntryResponse {
	response := make([]JournalEntryResponse, 0, len(entries))

	for _, entry := range entries {
		item := JournalEntryResponse{
			ID:       entry.ID,
			Date:     entry.Date,
			Entry:    entry.Entry,
			AuthorID: entry.AuthorID,
		}

		if entry.Author.ID != 0 {
			item.AuthorName = entry.Author.Name
		}

		response = append(response, item)
	}

	return response
}
