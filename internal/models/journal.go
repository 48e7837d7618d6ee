package models

import (
	"time"

	"gorm.io/gorm"
)

// MaxJournalEntryLength bounds the free-text entry field.
const MaxJournalEntryLength = 240

// Journal entries are append-only: no update or delete path exists for them
// outside of task deletion.
type Journal struct {
	gorm.Model

	Date     time.Time `gorm:"not null"` // fixed at creation
	Entry    string    `gorm:"size:240;not null"`
	AuthorID uint      `gorm:"not null;index"`
	TaskID   uint      `gorm:"not null;index"`

	// Relationships
	Author User `gorm:"foreignKey:AuthorID"`
	Task   Task `gorm:"foreignKey:TaskID;constraint:OnUpdate:Cascade,OnDelete:CASCADE"`
}
