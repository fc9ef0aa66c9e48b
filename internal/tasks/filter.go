package tasks

import (
	"fmt"
	"strings"

	"github.com/lib/pq"
)

// Predicate is an ordered list of WHERE fragments plus their bound values.
// Fragments only ever reference values through placeholders; nothing from a
// request reaches the query text itself.
type Predicate struct {
	clauses []string
	args    []any
}

// bind appends v to the argument list and returns its placeholder.
func (p *Predicate) bind(v any) string {
	p.args = append(p.args, v)
	return fmt.Sprintf("$%d", len(p.args))
}

func (p *Predicate) where(clause string) {
	p.clauses = append(p.clauses, clause)
}

// WhereSQL renders the fragments joined with AND, or "" when no fragment
// is present.
func (p *Predicate) WhereSQL() string {
	if len(p.clauses) == 0 {
		return ""
	}
	return "WHERE " + strings.Join(p.clauses, " AND ")
}

func (p *Predicate) Args() []any {
	return p.args
}

func (f Filters) Validate() error {
	if f.Subtasks == SubtasksOf && f.ParentID == 0 {
		return fmt.Errorf("%w: children scope requires a parent id", ErrInvalidFilter)
	}
	if f.AssigneeID > 0 && len(f.MemberIDs) > 0 {
		return fmt.Errorf("%w: assignee scope and member filter are mutually exclusive", ErrInvalidFilter)
	}
	return nil
}

// BuildPredicate turns the optional criteria into WHERE fragments. An unset
// criterion contributes nothing, so the empty Filters narrows the base scope
// only by the default active-only rule. Fragment order is fixed so the same
// Filters always renders the same query text.
func BuildPredicate(f Filters) (*Predicate, error) {
	if err := f.Validate(); err != nil {
		return nil, err
	}

	p := &Predicate{}

	// base scope: a member's tasks or a project's tasks, never both
	if f.AssigneeID > 0 {
		p.where("t.id IN (SELECT ta.task_id FROM task_assignees ta WHERE ta.member_id = " + p.bind(f.AssigneeID) + ")")
	} else if f.ProjectID > 0 {
		p.where("t.project_id = " + p.bind(f.ProjectID))
	}

	if len(f.StatusIDs) > 0 {
		p.where("t.status_id = ANY(" + p.bind(pq.Array(f.StatusIDs)) + ")")
	}
	if len(f.PriorityIDs) > 0 {
		p.where("t.priority_id = ANY(" + p.bind(pq.Array(f.PriorityIDs)) + ")")
	}
	if len(f.LabelIDs) > 0 {
		p.where("t.id IN (SELECT tl.task_id FROM task_labels tl WHERE tl.label_id = ANY(" + p.bind(pq.Array(f.LabelIDs)) + "))")
	}
	if len(f.MemberIDs) > 0 {
		p.where("t.id IN (SELECT ta.task_id FROM task_assignees ta WHERE ta.member_id = ANY(" + p.bind(pq.Array(f.MemberIDs)) + "))")
	}
	if len(f.ProjectIDs) > 0 {
		p.where("t.project_id = ANY(" + p.bind(pq.Array(f.ProjectIDs)) + ")")
	}

	if f.ArchivedOnly {
		p.where("t.archived = TRUE")
	} else {
		p.where("t.archived = FALSE")
	}

	switch f.Subtasks {
	case SubtasksRootOnly:
		p.where("t.parent_id IS NULL")
	case SubtasksOf:
		p.where("t.parent_id = " + p.bind(f.ParentID))
	}

	if f.Search != "" {
		p.where("t.name ILIKE " + p.bind("%"+f.Search+"%"))
	}

	return p, nil
}
