package models

import (
	"fmt"

	"gorm.io/gorm"
)

// AccessGroup mirrors a project's member set for authorization checks.
// Exactly one group exists per project, created on the first membership
// write and destroyed with the project.
type AccessGroup struct {
	gorm.Model

	ProjectID uint `gorm:"uniqueIndex;not null"`

	// Relationships
	Users []User `gorm:"many2many:access_group_users"`
}

// AccessPermission is the single project-scoped permission attached to an
// AccessGroup. Holding it (through group membership) grants access to the
// project's data.
type AccessPermission struct {
	gorm.Model

	Codename      string `gorm:"uniqueIndex;not null"`
	Name          string `gorm:"not null"`
	AccessGroupID uint   `gorm:"uniqueIndex;not null"`
}

// PermissionCodename returns the codename of the permission scoped to a project.
func PermissionCodename(projectID uint) string {
	return fmt.Sprintf("%d_project_permission", projectID)
}
