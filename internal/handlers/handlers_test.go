package handlers_test

import (
	"archive/zip"
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/taskhive-dev/taskhive/db"
	"github.com/taskhive-dev/taskhive/internal/auth"
	"github.com/taskhive-dev/taskhive/internal/handlers"
	"github.com/taskhive-dev/taskhive/internal/models"
	"github.com/taskhive-dev/taskhive/internal/router"
)

func TestMain(m *testing.M) {
	gin.SetMode(gin.TestMode)
	os.Setenv("JWT_SECRET", "test-secret")

	if err := auth.InitJWTSecret(); err != nil {
		panic(err)
	}

	os.Exit(m.Run())
}

func setupServer(t *testing.T) *gin.Engine {
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

	db.DB = database

	return router.NewRouter()
}

func createUser(t *testing.T, name string) (models.User, string) {
	t.Helper()

	user := models.User{Name: name, Email: name + "@example.com", PasswordHash: "x"}
	require.NoError(t, db.DB.Create(&user).Error)

	token, err := auth.GenerateJWT(user.ID, user.Email)
	require.NoError(t, err)

	return user, token
}

func doRequest(t *testing.T, engine *gin.Engine, method, path, token string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()

	var reader io.Reader

	if body != nil {
		payload, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(payload)
	}

	request := httptest.NewRequest(method, path, reader)

	if token != "" {
		request.Header.Set("Authorization", "Bearer "+token)
	}

	if body != nil {
		request.Header.Set("Content-Type", "application/json")
	}

	recorder := httptest.NewRecorder()
	engine.ServeHTTP(recorder, request)

	return recorder
}

func createProjectVia(t *testing.T, engine *gin.Engine, token string, name string, memberIDs []uint) handlers.ProjectResponse {
	t.Helper()

	recorder := doRequest(t, engine, http.MethodPost, "/api/projects", token, gin.H{
		"name":       name,
		"member_ids": memberIDs,
	})
	require.Equal(t, http.StatusCreated, recorder.Code, recorder.Body.String())

	var response handlers.ProjectResponse
	require.NoError(t, json.Unmarshal(recorder.Body.Bytes(), &response))

	return response
}

func taskBody(overrides gin.H) gin.H {
	body := gin.H{
		"name":                  "a task",
		"description":           "",
		"start_date":            "2025-03-01",
		"due_date":              "2025-03-10",
		"priority":              5,
		"completion_percentage": 0,
	}

	for key, value := range overrides {
		body[key] = value
	}

	return body
}

func TestRequiresAuthentication(t *testing.T) {
	engine := setupServer(t)

	recorder := doRequest(t, engine, http.MethodGet, "/api/projects", "", nil)
	assert.Equal(t, http.StatusUnauthorized, recorder.Code)
}

// The full membership story: create, check access, shrink the member set,
// watch assignments and access follow, then delete and watch everything go.
func TestProjectMembershipLifecycle(t *testing.T) {
	engine := setupServer(t)

	alice, aliceToken := createUser(t, "alice")
	bob, bobToken := createUser(t, "bob")
	_, carolToken := createUser(t, "carol")

	project := createProjectVia(t, engine, aliceToken, "Alpha", []uint{bob.ID})
	require.Len(t, project.Members, 2)

	projectPath := fmt.Sprintf("/api/projects/%d", project.ID)

	assert.Equal(t, http.StatusOK, doRequest(t, engine, http.MethodGet, projectPath, aliceToken, nil).Code)
	assert.Equal(t, http.StatusOK, doRequest(t, engine, http.MethodGet, projectPath, bobToken, nil).Code)

	denied := doRequest(t, engine, http.MethodGet, projectPath, carolToken, nil)
	assert.Equal(t, http.StatusSeeOther, denied.Code)
	assert.Equal(t, "/api/projects", denied.Header().Get("Location"))

	// a task assigned to bob
	created := doRequest(t, engine, http.MethodPost, projectPath+"/tasks", aliceToken,
		taskBody(gin.H{"assignee_id": bob.ID}))
	require.Equal(t, http.StatusCreated, created.Code, created.Body.String())

	var task handlers.TaskSummary
	require.NoError(t, json.Unmarshal(created.Body.Bytes(), &task))

	// alice removes bob
	updated := doRequest(t, engine, http.MethodPatch, projectPath, aliceToken, gin.H{
		"name":       "Alpha",
		"member_ids": []uint{},
	})
	require.Equal(t, http.StatusOK, updated.Code, updated.Body.String())

	var afterUpdate handlers.ProjectResponse
	require.NoError(t, json.Unmarshal(updated.Body.Bytes(), &afterUpdate))
	require.Len(t, afterUpdate.Members, 1)
	assert.Equal(t, alice.ID, afterUpdate.Members[0].ID)

	var reloaded models.Task
	require.NoError(t, db.DB.First(&reloaded, task.ID).Error)
	assert.Nil(t, reloaded.AssigneeID)

	assert.Equal(t, http.StatusSeeOther, doRequest(t, engine, http.MethodGet, projectPath, bobToken, nil).Code)

	// journal on the task, then delete the project: everything cascades
	appended := doRequest(t, engine, http.MethodPost, fmt.Sprintf("/api/tasks/%d/journal", task.ID), aliceToken,
		gin.H{"entry": "closing this out"})
	require.Equal(t, http.StatusCreated, appended.Code, appended.Body.String())

	deleted := doRequest(t, engine, http.MethodDelete, projectPath, aliceToken, nil)
	require.Equal(t, http.StatusNoContent, deleted.Code)

	var taskCount, journalCount, groupCount, permissionCount int64
	require.NoError(t, db.DB.Model(&models.Task{}).Count(&taskCount).Error)
	require.NoError(t, db.DB.Model(&models.Journal{}).Count(&journalCount).Error)
	require.NoError(t, db.DB.Model(&models.AccessGroup{}).Count(&groupCount).Error)
	require.NoError(t, db.DB.Model(&models.AccessPermission{}).Count(&permissionCount).Error)
	assert.Zero(t, taskCount)
	assert.Zero(t, journalCount)
	assert.Zero(t, groupCount)
	assert.Zero(t, permissionCount)
}

func TestProjectEditCannotRemoveSelf(t *testing.T) {
	engine := setupServer(t)

	alice, aliceToken := createUser(t, "alice")
	bob, _ := createUser(t, "bob")

	project := createProjectVia(t, engine, aliceToken, "Alpha", nil)

	// alice submits a member set without herself
	updated := doRequest(t, engine, http.MethodPatch, fmt.Sprintf("/api/projects/%d", project.ID), aliceToken, gin.H{
		"name":       "Alpha",
		"member_ids": []uint{bob.ID},
	})
	require.Equal(t, http.StatusOK, updated.Code)

	var response handlers.ProjectResponse
	require.NoError(t, json.Unmarshal(updated.Body.Bytes(), &response))

	ids := []uint{}
	for _, member := range response.Members {
		ids = append(ids, member.ID)
	}

	assert.ElementsMatch(t, []uint{alice.ID, bob.ID}, ids)
}

func TestProjectCreateUnknownMember(t *testing.T) {
	engine := setupServer(t)

	_, aliceToken := createUser(t, "alice")

	recorder := doRequest(t, engine, http.MethodPost, "/api/projects", aliceToken, gin.H{
		"name":       "Alpha",
		"member_ids": []uint{999},
	})
	assert.Equal(t, http.StatusNotFound, recorder.Code)
}

func TestTaskValidation(t *testing.T) {
	engine := setupServer(t)

	_, aliceToken := createUser(t, "alice")
	carol, _ := createUser(t, "carol")

	project := createProjectVia(t, engine, aliceToken, "Alpha", nil)
	path := fmt.Sprintf("/api/projects/%d/tasks", project.ID)

	cases := []struct {
		name string
		body gin.H
	}{
		{"priority too low", taskBody(gin.H{"priority": 0})},
		{"priority too high", taskBody(gin.H{"priority": 11})},
		{"completion negative", taskBody(gin.H{"completion_percentage": -1})},
		{"completion over 100", taskBody(gin.H{"completion_percentage": 101})},
		{"due before start", taskBody(gin.H{"start_date": "2025-03-10", "due_date": "2025-03-01"})},
		{"assignee not a member", taskBody(gin.H{"assignee_id": carol.ID})},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			recorder := doRequest(t, engine, http.MethodPost, path, aliceToken, tc.body)
			assert.Equal(t, http.StatusBadRequest, recorder.Code, recorder.Body.String())
		})
	}

	recorder := doRequest(t, engine, http.MethodPost, path, aliceToken, taskBody(nil))
	assert.Equal(t, http.StatusCreated, recorder.Code, recorder.Body.String())
}

// Editing a task must be able to clear its assignee and status, not just set
// them.
func TestTaskUpdateClearsAssigneeAndStatus(t *testing.T) {
	engine := setupServer(t)

	alice, aliceToken := createUser(t, "alice")
	project := createProjectVia(t, engine, aliceToken, "Alpha", nil)

	statusCreated := doRequest(t, engine, http.MethodPost, "/api/statuses", aliceToken, gin.H{"name": "New"})
	require.Equal(t, http.StatusCreated, statusCreated.Code)

	var status handlers.StatusResponse
	require.NoError(t, json.Unmarshal(statusCreated.Body.Bytes(), &status))

	created := doRequest(t, engine, http.MethodPost, fmt.Sprintf("/api/projects/%d/tasks", project.ID), aliceToken,
		taskBody(gin.H{"assignee_id": alice.ID, "status_id": status.ID}))
	require.Equal(t, http.StatusCreated, created.Code, created.Body.String())

	var task handlers.TaskSummary
	require.NoError(t, json.Unmarshal(created.Body.Bytes(), &task))
	require.NotNil(t, task.AssigneeID)
	require.NotNil(t, task.StatusID)

	// the edit omits both references, which must unset them
	updated := doRequest(t, engine, http.MethodPut, fmt.Sprintf("/api/tasks/%d", task.ID), aliceToken, taskBody(nil))
	require.Equal(t, http.StatusOK, updated.Code, updated.Body.String())

	var summary handlers.TaskSummary
	require.NoError(t, json.Unmarshal(updated.Body.Bytes(), &summary))
	assert.Nil(t, summary.AssigneeID)
	assert.Nil(t, summary.StatusID)

	var reloaded models.Task
	require.NoError(t, db.DB.First(&reloaded, task.ID).Error)
	assert.Nil(t, reloaded.AssigneeID)
	assert.Nil(t, reloaded.StatusID)
}

func TestJournalAppend(t *testing.T) {
	engine := setupServer(t)

	alice, aliceToken := createUser(t, "alice")

	project := createProjectVia(t, engine, aliceToken, "Alpha", nil)

	created := doRequest(t, engine, http.MethodPost, fmt.Sprintf("/api/projects/%d/tasks", project.ID), aliceToken, taskBody(nil))
	require.Equal(t, http.StatusCreated, created.Code)

	var task handlers.TaskSummary
	require.NoError(t, json.Unmarshal(created.Body.Bytes(), &task))

	var before models.Task
	require.NoError(t, db.DB.First(&before, task.ID).Error)

	time.Sleep(20 * time.Millisecond)

	journalPath := fmt.Sprintf("/api/tasks/%d/journal", task.ID)

	appended := doRequest(t, engine, http.MethodPost, journalPath, aliceToken, gin.H{"entry": "first note"})
	require.Equal(t, http.StatusCreated, appended.Code, appended.Body.String())

	var entry handlers.JournalEntryResponse
	require.NoError(t, json.Unmarshal(appended.Body.Bytes(), &entry))
	assert.Equal(t, alice.ID, entry.AuthorID)

	var after models.Task
	require.NoError(t, db.DB.First(&after, task.ID).Error)
	assert.True(t, after.LastModification.After(before.LastModification))

	tooLong := make([]byte, models.MaxJournalEntryLength+1)
	for i := range tooLong {
		tooLong[i] = 'a'
	}

	rejected := doRequest(t, engine, http.MethodPost, journalPath, aliceToken, gin.H{"entry": string(tooLong)})
	assert.Equal(t, http.StatusBadRequest, rejected.Code)

	// the limit counts characters: a full-length multibyte entry fits
	multibyte := doRequest(t, engine, http.MethodPost, journalPath, aliceToken,
		gin.H{"entry": strings.Repeat("é", models.MaxJournalEntryLength)})
	assert.Equal(t, http.StatusCreated, multibyte.Code, multibyte.Body.String())

	// entries ride along on the task view
	detail := doRequest(t, engine, http.MethodGet, fmt.Sprintf("/api/tasks/%d", task.ID), aliceToken, nil)
	require.Equal(t, http.StatusOK, detail.Code)

	var taskDetail handlers.TaskDetailResponse
	require.NoError(t, json.Unmarshal(detail.Body.Bytes(), &taskDetail))
	require.Len(t, taskDetail.Journal, 1)
	assert.Equal(t, "first note", taskDetail.Journal[0].Entry)
}

func TestMalformedFilterRejected(t *testing.T) {
	engine := setupServer(t)

	_, aliceToken := createUser(t, "alice")
	project := createProjectVia(t, engine, aliceToken, "Alpha", nil)

	recorder := doRequest(t, engine, http.MethodGet,
		fmt.Sprintf("/api/projects/%d?1=and&1=assign", project.ID), aliceToken, nil)
	assert.Equal(t, http.StatusBadRequest, recorder.Code)
}

func TestStatusDeleteNullsTasks(t *testing.T) {
	engine := setupServer(t)

	_, aliceToken := createUser(t, "alice")
	project := createProjectVia(t, engine, aliceToken, "Alpha", nil)

	created := doRequest(t, engine, http.MethodPost, "/api/statuses", aliceToken, gin.H{"name": "Blocked"})
	require.Equal(t, http.StatusCreated, created.Code)

	var status handlers.StatusResponse
	require.NoError(t, json.Unmarshal(created.Body.Bytes(), &status))

	duplicate := doRequest(t, engine, http.MethodPost, "/api/statuses", aliceToken, gin.H{"name": "Blocked"})
	assert.Equal(t, http.StatusBadRequest, duplicate.Code)

	taskCreated := doRequest(t, engine, http.MethodPost, fmt.Sprintf("/api/projects/%d/tasks", project.ID), aliceToken,
		taskBody(gin.H{"status_id": status.ID}))
	require.Equal(t, http.StatusCreated, taskCreated.Code)

	var task handlers.TaskSummary
	require.NoError(t, json.Unmarshal(taskCreated.Body.Bytes(), &task))

	deleted := doRequest(t, engine, http.MethodDelete, fmt.Sprintf("/api/statuses/%d", status.ID), aliceToken, nil)
	require.Equal(t, http.StatusNoContent, deleted.Code)

	var reloaded models.Task
	require.NoError(t, db.DB.First(&reloaded, task.ID).Error)
	assert.Nil(t, reloaded.StatusID)
}

func TestExportSelectionAndArchive(t *testing.T) {
	engine := setupServer(t)

	_, aliceToken := createUser(t, "alice")
	createProjectVia(t, engine, aliceToken, "Alpha", nil)

	empty := doRequest(t, engine, http.MethodGet, "/api/export?format=csv", aliceToken, nil)
	assert.Equal(t, http.StatusBadRequest, empty.Code)

	badFormat := doRequest(t, engine, http.MethodGet, "/api/export?projects=1&format=pdf", aliceToken, nil)
	assert.Equal(t, http.StatusBadRequest, badFormat.Code)

	exported := doRequest(t, engine, http.MethodGet, "/api/export?projects=1&format=csv", aliceToken, nil)
	require.Equal(t, http.StatusOK, exported.Code)
	assert.Equal(t, "application/zip", exported.Header().Get("Content-Type"))

	archive, err := zip.NewReader(bytes.NewReader(exported.Body.Bytes()), int64(exported.Body.Len()))
	require.NoError(t, err)
	require.Len(t, archive.File, 1)
	assert.Equal(t, "projet_data.csv", archive.File[0].Name)

	file, err := archive.File[0].Open()
	require.NoError(t, err)
	defer file.Close()

	content, err := io.ReadAll(file)
	require.NoError(t, err)
	assert.Contains(t, string(content), "Alpha")
	assert.Contains(t, string(content), "alice")
}

func TestAssignedAndFinishedTasks(t *testing.T) {
	engine := setupServer(t)

	alice, aliceToken := createUser(t, "alice")

	project := createProjectVia(t, engine, aliceToken, "Alpha", nil)
	tasksPath := fmt.Sprintf("/api/projects/%d/tasks", project.ID)

	finished := doRequest(t, engine, http.MethodPost, "/api/statuses", aliceToken, gin.H{"name": "Finished"})
	require.Equal(t, http.StatusCreated, finished.Code)

	var finishedStatus handlers.StatusResponse
	require.NoError(t, json.Unmarshal(finished.Body.Bytes(), &finishedStatus))

	open := doRequest(t, engine, http.MethodPost, tasksPath, aliceToken,
		taskBody(gin.H{"name": "open task", "assignee_id": alice.ID}))
	require.Equal(t, http.StatusCreated, open.Code)

	done := doRequest(t, engine, http.MethodPost, tasksPath, aliceToken,
		taskBody(gin.H{"name": "done task", "assignee_id": alice.ID, "status_id": finishedStatus.ID}))
	require.Equal(t, http.StatusCreated, done.Code)

	assigned := doRequest(t, engine, http.MethodGet, "/api/tasks/assigned", aliceToken, nil)
	require.Equal(t, http.StatusOK, assigned.Code)

	var openTasks []handlers.TaskSummary
	require.NoError(t, json.Unmarshal(assigned.Body.Bytes(), &openTasks))
	require.Len(t, openTasks, 1)
	assert.Equal(t, "open task", openTasks[0].Name)

	completed := doRequest(t, engine, http.MethodGet, "/api/tasks/finished", aliceToken, nil)
	require.Equal(t, http.StatusOK, completed.Code)

	var doneTasks []handlers.TaskSummary
	require.NoError(t, json.Unmarshal(completed.Body.Bytes(), &doneTasks))
	require.Len(t, doneTasks, 1)
	assert.Equal(t, "done task", doneTasks[0].Name)
}
