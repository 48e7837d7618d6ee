package membership

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/taskhive-dev/taskhive/internal/models"
)

func openTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	database, err := gorm.Open(sqlite.Open(filepath.Join(t.TempDir(), "test.db")), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)

	require.NoError(t, database.AutoMigrate(
		&models.User{},
		&models.Project{},
		&models.Status{},
		&models.Task{},
		&models.Journal{},
		&models.AccessGroup{},
		&models.AccessPermission{},
	))

	return database
}

func createUsers(t *testing.T, database *gorm.DB, names ...string) []models.User {
	t.Helper()

	users := make([]models.User, 0, len(names))

	for _, name := range names {
		user := models.User{Name: name, Email: name + "@example.com", PasswordHash: "x"}
		require.NoError(t, database.Create(&user).Error)
		users = append(users, user)
	}

	return users
}

// createProject writes the project with its member set and runs the
// membership reaction the way the handlers do: in one transaction.
func createProject(t *testing.T, database *gorm.DB, name string, members []models.User) models.Project {
	t.Helper()

	project := models.Project{Name: name}

	err := database.Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(&project).Error; err != nil {
			return err
		}
		if err := tx.Model(&project).Association("Members").Append(&members); err != nil {
			return err
		}
		return Sync(tx, &project, members)
	})
	require.NoError(t, err)

	return project
}

func replaceMembers(t *testing.T, database *gorm.DB, project models.Project, members []models.User) {
	t.Helper()

	err := database.Transaction(func(tx *gorm.DB) error {
		if err := tx.Model(&project).Association("Members").Replace(&members); err != nil {
			return err
		}
		return Sync(tx, &project, members)
	})
	require.NoError(t, err)
}

func groupUserIDs(t *testing.T, database *gorm.DB, projectID uint) []uint {
	t.Helper()

	var group models.AccessGroup
	require.NoError(t, database.Where("project_id = ?", projectID).First(&group).Error)

	var users []models.User
	require.NoError(t, database.Model(&group).Association("Users").Find(&users))

	ids := make([]uint, 0, len(users))
	for _, user := range users {
		ids = append(ids, user.ID)
	}

	return ids
}

func TestSyncMintsAccessPairOnFirstWrite(t *testing.T) {
	database := openTestDB(t)
	users := createUsers(t, database, "alice", "bob")
	project := createProject(t, database, "Alpha", users)

	var group models.AccessGroup
	require.NoError(t, database.Where("project_id = ?", project.ID).First(&group).Error)

	var permission models.AccessPermission
	require.NoError(t, database.Where("access_group_id = ?", group.ID).First(&permission).Error)
	assert.Equal(t, models.PermissionCodename(project.ID), permission.Codename)

	assert.ElementsMatch(t, []uint{users[0].ID, users[1].ID}, groupUserIDs(t, database, project.ID))
}

func TestSyncDiffsJoinersAndLeavers(t *testing.T) {
	database := openTestDB(t)
	users := createUsers(t, database, "alice", "bob", "carol")
	project := createProject(t, database, "Alpha", users[:2])

	// bob leaves, carol joins
	replaceMembers(t, database, project, []models.User{users[0], users[2]})

	assert.ElementsMatch(t, []uint{users[0].ID, users[2].ID}, groupUserIDs(t, database, project.ID))
}

func TestSyncSweepsOrphanedAssignments(t *testing.T) {
	database := openTestDB(t)
	users := createUsers(t, database, "alice", "bob")
	project := createProject(t, database, "Alpha", users)

	now := time.Now()
	assigned := models.Task{
		Name: "for bob", ProjectID: project.ID, Priority: 3, AssigneeID: &users[1].ID,
		StartDate: now, DueDate: now, LastModification: now,
	}
	kept := models.Task{
		Name: "for alice", ProjectID: project.ID, Priority: 3, AssigneeID: &users[0].ID,
		StartDate: now, DueDate: now, LastModification: now,
	}
	require.NoError(t, database.Create(&assigned).Error)
	require.NoError(t, database.Create(&kept).Error)

	replaceMembers(t, database, project, users[:1])

	var reloaded models.Task
	require.NoError(t, database.First(&reloaded, assigned.ID).Error)
	assert.Nil(t, reloaded.AssigneeID)

	var reloadedKept models.Task
	require.NoError(t, database.First(&reloadedKept, kept.ID).Error)
	require.NotNil(t, reloadedKept.AssigneeID)
	assert.Equal(t, users[0].ID, *reloadedKept.AssigneeID)
}

func TestSyncSweepRunsOnInitialCreate(t *testing.T) {
	database := openTestDB(t)
	users := createUsers(t, database, "alice", "outsider")

	// a task referencing an outsider seeded before the first membership write
	project := models.Project{Name: "Alpha"}
	require.NoError(t, database.Create(&project).Error)

	now := time.Now()
	task := models.Task{
		Name: "stray", ProjectID: project.ID, Priority: 1, AssigneeID: &users[1].ID,
		StartDate: now, DueDate: now, LastModification: now,
	}
	require.NoError(t, database.Create(&task).Error)

	err := database.Transaction(func(tx *gorm.DB) error {
		if err := tx.Model(&project).Association("Members").Append(&[]models.User{users[0]}); err != nil {
			return err
		}
		return Sync(tx, &project, users[:1])
	})
	require.NoError(t, err)

	var reloaded models.Task
	require.NoError(t, database.First(&reloaded, task.ID).Error)
	assert.Nil(t, reloaded.AssigneeID)
}

func TestTeardownRemovesPair(t *testing.T) {
	database := openTestDB(t)
	users := createUsers(t, database, "alice")
	project := createProject(t, database, "Alpha", users)

	require.NoError(t, database.Transaction(func(tx *gorm.DB) error {
		return Teardown(tx, project.ID)
	}))

	var group models.AccessGroup
	err := database.Where("project_id = ?", project.ID).First(&group).Error
	assert.ErrorIs(t, err, gorm.ErrRecordNotFound)

	var permission models.AccessPermission
	err = database.Where("codename = ?", models.PermissionCodename(project.ID)).First(&permission).Error
	assert.ErrorIs(t, err, gorm.ErrRecordNotFound)

	var count int64
	require.NoError(t, database.Table("access_group_users").Count(&count).Error)
	assert.Zero(t, count)
}

func TestTeardownMissingGroupIsInvariantViolation(t *testing.T) {
	database := openTestDB(t)

	err := database.Transaction(func(tx *gorm.DB) error {
		return Teardown(tx, 999)
	})

	assert.ErrorIs(t, err, ErrAccessGroupMissing)
}

func TestTeardownMissingPermissionIsInvariantViolation(t *testing.T) {
	database := openTestDB(t)

	group := models.AccessGroup{ProjectID: 7}
	require.NoError(t, database.Create(&group).Error)

	err := database.Transaction(func(tx *gorm.DB) error {
		return Teardown(tx, 7)
	})

	assert.ErrorIs(t, err, ErrAccessPermissionMissing)
}
