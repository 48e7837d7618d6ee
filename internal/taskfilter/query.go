package taskfilter

import (
	"github.com/taskhive-dev/taskhive/internal/models"
	"gorm.io/gorm"
)

// Compile parses a raw query string into a filter expression.
func Compile(rawQuery string) (Expr, error) {
	tokens, err := Tokens(rawQuery)

	if err != nil {
		return nil, err
	}

	return Parse(tokens)
}

// Apply builds the task query for a project under the given expression.
// Results are always ordered by descending priority, filtered or not.
func Apply(db *gorm.DB, projectID uint, expr Expr) *gorm.DB {
	query := db.Model(&models.Task{}).Where("project_id = ?", projectID)

	if condition, args := compile(db, projectID, expr); condition != "" {
		query = query.Where(condition, args...)
	}

	return query.Order("priority DESC")
}

// compile folds the expression left to right into one SQL condition. A group
// is evaluated as membership in the set of the project's tasks matching its
// sub-expression, then combined into the accumulator by its own connector.
func compile(db *gorm.DB, projectID uint, expr Expr) (string, []interface{}) {
	condition := ""
	var args []interface{}

	for _, node := range expr {
		var term string
		var termArgs []interface{}

		switch n := node.(type) {
		case Leaf:
			term, termArgs = leafCondition(n)
		case Group:
			subCondition, subArgs := compile(db, projectID, n.Expr)
			sub := db.Session(&gorm.Session{NewDB: true}).
				Model(&models.Task{}).
				Select("id").
				Where("project_id = ?", projectID)
			if subCondition != "" {
				sub = sub.Where(subCondition, subArgs...)
			}
			term = "id IN (?)"
			termArgs = []interface{}{sub}
		}

		if condition == "" {
			condition = term
			args = termArgs
			continue
		}

		if node.connector() == And {
			condition = "(" + condition + ") AND (" + term + ")"
		} else {
			condition = "(" + condition + ") OR (" + term + ")"
		}

		args = append(args, termArgs...)
	}

	return condition, args
}

// leafCondition renders one leaf. The negated kinds match rows whose column
// is NULL as well: a task assigned to nobody is "not assigned to u".
func leafCondition(leaf Leaf) (string, []interface{}) {
	switch leaf.Kind {
	case Assign:
		return "assignee_id = ?", []interface{}{leaf.ID}
	case NotAssign:
		return "(assignee_id IS NULL OR assignee_id <> ?)", []interface{}{leaf.ID}
	case StatusIs:
		return "status_id = ?", []interface{}{leaf.ID}
	case NotStatus:
		return "(status_id IS NULL OR status_id <> ?)", []interface{}{leaf.ID}
	case StartBefore:
		return "start_date <= ?", []interface{}{leaf.Date}
	case StartAfter:
		return "start_date >= ?", []interface{}{leaf.Date}
	case EndBefore:
		return "due_date <= ?", []interface{}{leaf.Date}
	default:
		return "due_date >= ?", []interface{}{leaf.Date}
	}
}
