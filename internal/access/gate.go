package access

import (
	"gorm.io/gorm"
)

// Check reports whether the user currently holds the permission scoped to the
// project, i.e. is in the project's access group. It always queries live
// state; a membership change is reflected on the very next call.
//
// Unauthorized is not an error: callers branch on the result. A non-nil error
// means the check itself could not be evaluated.
func Check(db *gorm.DB, userID, projectID uint) (bool, error) {
	var count int64

	err := db.Table("access_group_users").
		Joins("JOIN access_groups ON access_groups.id = access_group_users.access_group_id").
		Joins("JOIN access_permissions ON access_permissions.access_group_id = access_groups.id").
		Where("access_group_users.user_id = ?", userID).
		Where("access_groups.project_id = ?", projectID).
		Where("access_groups.deleted_at IS NULL").
		Where("access_permissions.deleted_at IS NULL").
		Count(&count).Error

	if err != nil {
		return false, err
	}

	return count > 0, nil
}
