package models

import "gorm.io/gorm"

type Project struct {
	gorm.Model

	Name string `gorm:"not null"`

	// Relationships
	Members []User `gorm:"many2many:project_members"`
	Tasks   []Task `gorm:"foreignKey:ProjectID;constraint:OnUpdate:Cascade,OnDelete:CASCADE"`
}
