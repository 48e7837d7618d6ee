package models

import "gorm.io/gorm"

type Status struct {
	gorm.Model

	Name string `gorm:"uniqueIndex;not null"`

	// Relationships
	Tasks []Task `gorm:"foreignKey:StatusID;constraint:OnUpdate:Cascade,OnDelete:SET NULL"`
}
