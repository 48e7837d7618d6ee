package membership

import (
	"errors"
	"fmt"

	"github.com/taskhive-dev/taskhive/internal/models"
	"gorm.io/gorm"
)

// A project that exists without its derived access group/permission pair is
// corrupt data, not a recoverable condition.
var (
	ErrAccessGroupMissing      = errors.New("access group missing for existing project")
	ErrAccessPermissionMissing = errors.New("access permission missing for existing project")
)

// Sync reacts to a write of a project's member set. It must run inside the
// same transaction as the membership write so that no reader observes the
// member set updated but the access group only partially synced.
//
// Two independent reactions run: the reassignment sweep, which clears the
// assignee of any task of the project whose assignee is no longer a member,
// and the access sync, which mints the project's access group/permission pair
// on the first membership write and diffs the group's user set against the
// member set on every later one.
func Sync(tx *gorm.DB, project *models.Project, members []models.User) error {
	if err := sweepAssignments(tx, project.ID, members); err != nil {
		return err
	}

	return syncAccess(tx, project, members)
}

// Teardown removes the project's access group/permission pair. It must run
// in the same transaction that deletes the project record so the derived
// pair is never orphaned.
func Teardown(tx *gorm.DB, projectID uint) error {
	var group models.AccessGroup

	if err := tx.Where("project_id = ?", projectID).First(&group).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return fmt.Errorf("%w: project %d", ErrAccessGroupMissing, projectID)
		}
		return err
	}

	var permission models.AccessPermission

	if err := tx.Where("access_group_id = ?", group.ID).First(&permission).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return fmt.Errorf("%w: project %d", ErrAccessPermissionMissing, projectID)
		}
		return err
	}

	if err := tx.Model(&group).Association("Users").Clear(); err != nil {
		return err
	}

	if err := tx.Delete(&permission).Error; err != nil {
		return err
	}

	return tx.Delete(&group).Error
}

func sweepAssignments(tx *gorm.DB, projectID uint, members []models.User) error {
	query := tx.Model(&models.Task{}).
		Where("project_id = ? AND assignee_id IS NOT NULL", projectID)

	if ids := userIDs(members); len(ids) > 0 {
		query = query.Where("assignee_id NOT IN ?", ids)
	}

	return query.Update("assignee_id", nil).Error
}

func syncAccess(tx *gorm.DB, project *models.Project, members []models.User) error {
	var group models.AccessGroup

	err := tx.Where("project_id = ?", project.ID).First(&group).Error

	if errors.Is(err, gorm.ErrRecordNotFound) {
		return createAccessPair(tx, project, members)
	}

	if err != nil {
		return err
	}

	var current []models.User

	if err := tx.Model(&group).Association("Users").Find(&current); err != nil {
		return err
	}

	joined, left := diffMembers(members, current)

	if len(joined) > 0 {
		if err := tx.Model(&group).Association("Users").Append(&joined); err != nil {
			return err
		}
	}

	if len(left) > 0 {
		if err := tx.Model(&group).Association("Users").Delete(&left); err != nil {
			return err
		}
	}

	return nil
}

func createAccessPair(tx *gorm.DB, project *models.Project, members []models.User) error {
	group := models.AccessGroup{ProjectID: project.ID}

	if err := tx.Create(&group).Error; err != nil {
		return err
	}

	permission := models.AccessPermission{
		Codename:      models.PermissionCodename(project.ID),
		Name:          fmt.Sprintf("can see and contribute to the project %s (%d)", project.Name, project.ID),
		AccessGroupID: group.ID,
	}

	if err := tx.Create(&permission).Error; err != nil {
		return err
	}

	if len(members) == 0 {
		return nil
	}

	users := make([]models.User, len(members))
	copy(users, members)

	return tx.Model(&group).Association("Users").Append(&users)
}

func userIDs(users []models.User) []uint {
	ids := make([]uint, 0, len(users))

	for _, user := range users {
		ids = append(ids, user.ID)
	}

	return ids
}

// diffMembers computes who joined and who left, comparing by user ID.
func diffMembers(members, current []models.User) (joined, left []models.User) {
	memberSet := make(map[uint]bool, len(members))
	currentSet := make(map[uint]bool, len(current))

	for _, user := range members {
		memberSet[user.ID] = true
	}

	for _, user := range current {
		currentSet[user.ID] = true
	}

	for _, user := range members {
		if !currentSet[user.ID] {
			joined = append(joined, user)
		}
	}

	for _, user := range current {
		if !memberSet[user.ID] {
			left = append(left, user)
		}
	}

	return joined, left
}
