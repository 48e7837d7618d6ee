package models

import (
	"time"

	"gorm.io/gorm"
)

type Task struct {
	gorm.Model

	Name                 string `gorm:"not null"`
	Description          string
	StartDate            time.Time `gorm:"not null"`
	DueDate              time.Time `gorm:"not null"`
	Priority             int       `gorm:"not null;default:1"` // 1 to 10
	CompletionPercentage int       `gorm:"not null;default:0"` // 0 to 100
	LastModification     time.Time `gorm:"not null"`
	StatusID             *uint     `gorm:"index"`
	AssigneeID           *uint     `gorm:"index"`
	ProjectID            uint      `gorm:"not null;index"`

	// Relationships
	Status   *Status `gorm:"foreignKey:StatusID"`
	Assignee *User   `gorm:"foreignKey:AssigneeID"`
	Project  Project `gorm:"foreignKey:ProjectID;constraint:OnUpdate:Cascade,OnDelete:CASCADE"`
	Journal  []Journal `gorm:"foreignKey:TaskID;constraint:OnUpdate:Cascade,OnDelete:CASCADE"`
}
