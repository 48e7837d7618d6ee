package export

import (
	"archive/zip"
	"bytes"
	"encoding/csv"
	"encoding/json"
	"encoding/xml"
	"fmt"
	"io"

	"github.com/xuri/excelize/v2"
	"gorm.io/gorm"

	"github.com/taskhive-dev/taskhive/internal/models"
)

// Selection picks which entity sets go into the dump.
type Selection struct {
	Projects bool
	Members  bool
	Tasks    bool
	Journals bool
	Status   bool
}

func (s Selection) Empty() bool {
	return !s.Projects && !s.Members && !s.Tasks && !s.Journals && !s.Status
}

type Format string

const (
	CSV  Format = "csv"
	JSON Format = "json"
	XML  Format = "xml"
	XLS  Format = "xls"
)

func ParseFormat(value string) (Format, bool) {
	switch Format(value) {
	case CSV, JSON, XML, XLS:
		return Format(value), true
	default:
		return "", false
	}
}

const timestampLayout = "01/02/2006, 15:04:05"

// Records reference related entities by their natural keys (names), not ids,
// so the dump is readable on its own.

type ProjectRecord struct {
	ID      uint     `json:"id" xml:"id"`
	Name    string   `json:"name" xml:"name"`
	Members []string `json:"members" xml:"members>member"`
}

type MemberRecord struct {
	Name  string `json:"name" xml:"name"`
	Email string `json:"email" xml:"email"`
}

type TaskRecord struct {
	ID                   uint   `json:"id" xml:"id"`
	Name                 string `json:"name" xml:"name"`
	Description          string `json:"description" xml:"description"`
	Project              string `json:"project" xml:"project"`
	Assignee             string `json:"assignee" xml:"assignee"`
	StartDate            string `json:"start_date" xml:"start_date"`
	DueDate              string `json:"due_date" xml:"due_date"`
	Priority             int    `json:"priority" xml:"priority"`
	CompletionPercentage int    `json:"completion_percentage" xml:"completion_percentage"`
	Status               string `json:"status" xml:"status"`
	LastModification     string `json:"last_modification" xml:"last_modification"`
}

type JournalRecord struct {
	ID     uint   `json:"id" xml:"id"`
	Date   string `json:"date" xml:"date"`
	Entry  string `json:"entry" xml:"entry"`
	Author string `json:"author" xml:"author"`
	Task   string `json:"task" xml:"task"`
}

type StatusRecord struct {
	ID   uint   `json:"id" xml:"id"`
	Name string `json:"name" xml:"name"`
}

// Dump writes a zip archive with one file per selected entity set, in the
// requested format. Scope is always the acting principal's side of the data:
// their projects, those projects' members, tasks and journals, plus the
// global status list.
func Dump(database *gorm.DB, userID uint, selection Selection, format Format, w io.Writer) error {
	data, err := collect(database, userID)

	if err != nil {
		return err
	}

	archive := zip.NewWriter(w)

	if selection.Projects {
		if err := writeEntity(archive, "projet", format, projectTable(data.projects)); err != nil {
			return err
		}
	}

	if selection.Members {
		if err := writeEntity(archive, "user", format, memberTable(data.members)); err != nil {
			return err
		}
	}

	if selection.Tasks {
		if err := writeEntity(archive, "task", format, taskTable(data.tasks)); err != nil {
			return err
		}
	}

	if selection.Journals {
		if err := writeEntity(archive, "journal", format, journalTable(data.journals)); err != nil {
			return err
		}
	}

	if selection.Status {
		if err := writeEntity(archive, "status", format, statusTable(data.statuses)); err != nil {
			return err
		}
	}

	return archive.Close()
}

type dataset struct {
	projects []models.Project
	members  []models.User
	tasks    []models.Task
	journals []models.Journal
	statuses []models.Status
}

func collect(database *gorm.DB, userID uint) (dataset, error) {
	var data dataset

	err := database.
		Joins("JOIN project_members ON project_members.project_id = projects.id").
		Where("project_members.user_id = ?", userID).
		Order("projects.name").
		Preload("Members").
		Find(&data.projects).Error

	if err != nil {
		return data, err
	}

	projectIDs := make([]uint, 0, len(data.projects))

	for _, project := range data.projects {
		projectIDs = append(projectIDs, project.ID)
	}

	if len(projectIDs) > 0 {
		err = database.
			Joins("JOIN project_members ON project_members.user_id = users.id").
			Where("project_members.project_id IN ?", projectIDs).
			Distinct().
			Order("users.name").
			Find(&data.members).Error

		if err != nil {
			return data, err
		}

		err = database.Where("project_id IN ?", projectIDs).
			Preload("Project").
			Preload("Status").
			Preload("Assignee").
			Find(&data.tasks).Error

		if err != nil {
			return data, err
		}

		taskIDs := make([]uint, 0, len(data.tasks))

		for _, task := range data.tasks {
			taskIDs = append(taskIDs, task.ID)
		}

		if len(taskIDs) > 0 {
			err = database.Where("task_id IN ?", taskIDs).
				Preload("Author").
				Preload("Task").
				Find(&data.journals).Error

			if err != nil {
				return data, err
			}
		}
	}

	if err := database.Order("name").Find(&data.statuses).Error; err != nil {
		return data, err
	}

	return data, nil
}

// table is one entity set rendered three ways: tabular rows for csv/xls and
// marshalable payloads for json and xml.
type table struct {
	headers []string
	rows    [][]interface{}
	json    interface{}
	xml     interface{}
}

func writeEntity(archive *zip.Writer, name string, format Format, t table) error {
	var content []byte
	var err error
	extension := string(format)

	switch format {
	case CSV:
		content, err = renderCSV(t)
	case JSON:
		content, err = json.MarshalIndent(t.json, "", "  ")
	case XML:
		content, err = xml.MarshalIndent(t.xml, "", "  ")
	case XLS:
		// excelize writes the OOXML workbook format
		extension = "xlsx"
		content, err = renderXLSX(name, t)
	default:
		err = fmt.Errorf("unsupported export format %q", format)
	}

	if err != nil {
		return err
	}

	entry, err := archive.Create(fmt.Sprintf("%s_data.%s", name, extension))

	if err != nil {
		return err
	}

	_, err = entry.Write(content)
	return err
}

func renderCSV(t table) ([]byte, error) {
	var buffer bytes.Buffer

	writer := csv.NewWriter(&buffer)
	writer.Comma = ';'

	if err := writer.Write(t.headers); err != nil {
		return nil, err
	}

	for _, row := range t.rows {
		record := make([]string, 0, len(row))

		for _, cell := range row {
			record = append(record, fmt.Sprint(cell))
		}

		if err := writer.Write(record); err != nil {
			return nil, err
		}
	}

	writer.Flush()

	return buffer.Bytes(), writer.Error()
}

func renderXLSX(sheet string, t table) ([]byte, error) {
	file := excelize.NewFile()
	defer file.Close()

	if err := file.SetSheetName("Sheet1", sheet); err != nil {
		return nil, err
	}

	for column, header := range t.headers {
		cell, err := excelize.CoordinatesToCellName(column+1, 1)

		if err != nil {
			return nil, err
		}

		if err := file.SetCellValue(sheet, cell, header); err != nil {
			return nil, err
		}
	}

	for line, row := range t.rows {
		for column, value := range row {
			cell, err := excelize.CoordinatesToCellName(column+1, line+2)

			if err != nil {
				return nil, err
			}

			if err := file.SetCellValue(sheet, cell, value); err != nil {
				return nil, err
			}
		}
	}

	buffer, err := file.WriteToBuffer()

	if err != nil {
		return nil, err
	}

	return buffer.Bytes(), nil
}

func projectTable(projects []models.Project) table {
	records := make([]ProjectRecord, 0, len(projects))
	rows := make([][]interface{}, 0, len(projects))

	for _, project := range projects {
		names := make([]string, 0, len(project.Members))

		for _, member := range project.Members {
			names = append(names, member.Name)
		}

		records = append(records, ProjectRecord{ID: project.ID, Name: project.Name, Members: names})
		rows = append(rows, []interface{}{project.ID, project.Name, joinNames(names)})
	}

	return table{
		headers: []string{"ID", "NAME", "MEMBERS"},
		rows:    rows,
		json:    records,
		xml: struct {
			XMLName  xml.Name        `xml:"projects"`
			Projects []ProjectRecord `xml:"project"`
		}{Projects: records},
	}
}

func memberTable(users []models.User) table {
	records := make([]MemberRecord, 0, len(users))
	rows := make([][]interface{}, 0, len(users))

	// only non-confidential user fields are exported
	for _, user := range users {
		records = append(records, MemberRecord{Name: user.Name, Email: user.Email})
		rows = append(rows, []interface{}{user.Name, user.Email})
	}

	return table{
		headers: []string{"NAME", "E-MAIL"},
		rows:    rows,
		json:    records,
		xml: struct {
			XMLName xml.Name       `xml:"users"`
			Users   []MemberRecord `xml:"user"`
		}{Users: records},
	}
}

func taskTable(tasks []models.Task) table {
	records := make([]TaskRecord, 0, len(tasks))
	rows := make([][]interface{}, 0, len(tasks))

	for _, task := range tasks {
		record := TaskRecord{
			ID:                   task.ID,
			Name:                 task.Name,
			Description:          task.Description,
			Project:              task.Project.Name,
			StartDate:            task.StartDate.Format("2006-01-02"),
			DueDate:              task.DueDate.Format("2006-01-02"),
			Priority:             task.Priority,
			CompletionPercentage: task.CompletionPercentage,
			LastModification:     task.LastModification.Format(timestampLayout),
		}

		if task.Assignee != nil {
			record.Assignee = task.Assignee.Name
		}

		if task.Status != nil {
			record.Status = task.Status.Name
		}

		records = append(records, record)
		rows = append(rows, []interface{}{
			record.ID, record.Name, record.Description, record.Project, record.Assignee,
			record.StartDate, record.DueDate, record.Priority, record.CompletionPercentage,
			record.Status, record.LastModification,
		})
	}

	return table{
		headers: []string{
			"ID", "NAME", "DESCRIPTION", "PROJECT", "ASSIGNEE",
			"START_DATE", "DUE_DATE", "PRIORITY", "COMPLETION_PERCENTAGE",
			"STATUS", "LAST_MODIFICATION",
		},
		rows: rows,
		json: records,
		xml: struct {
			XMLName xml.Name     `xml:"tasks"`
			Tasks   []TaskRecord `xml:"task"`
		}{Tasks: records},
	}
}

func journalTable(journals []models.Journal) table {
	records := make([]JournalRecord, 0, len(journals))
	rows := make([][]interface{}, 0, len(journals))

	for _, journal := range journals {
		record := JournalRecord{
			ID:     journal.ID,
			Date:   journal.Date.Format(timestampLayout),
			Entry:  journal.Entry,
			Author: journal.Author.Name,
			Task:   journal.Task.Name,
		}

		records = append(records, record)
		rows = append(rows, []interface{}{record.ID, record.Date, record.Entry, record.Author, record.Task})
	}

	return table{
		headers: []string{"ID", "DATE", "ENTRY", "AUTHOR", "TASK"},
		rows:    rows,
		json:    records,
		xml: struct {
			XMLName  xml.Name        `xml:"journals"`
			Journals []JournalRecord `xml:"journal"`
		}{Journals: records},
	}
}

func statusTable(statuses []models.Status) table {
	records := make([]StatusRecord, 0, len(statuses))
	rows := make([][]interface{}, 0, len(statuses))

	for _, status := range statuses {
		records = append(records, StatusRecord{ID: status.ID, Name: status.Name})
		rows = append(rows, []interface{}{status.ID, status.Name})
	}

	return table{
		headers: []string{"ID", "NAME"},
		rows:    rows,
		json:    records,
		xml: struct {
			XMLName  xml.Name       `xml:"statuses"`
			Statuses []StatusRecord `xml:"status"`
		}{Statuses: records},
	}
}

func joinNames(names []string) string {
	joined := ""

	for i, name := range names {
		if i > 0 {
			joined += ", "
		}
		joined += name
	}

	return joined
}
