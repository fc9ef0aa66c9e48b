package tasks

import (
	"fmt"
	"strings"
)

// sortColumns whitelists the sortable fields. User input selects a key
// here and never reaches the query text directly.
var sortColumns = map[string]string{
	"position": "t.position",
	"created":  "t.created_at",
	"updated":  "t.updated_at",
	"name":     "t.name",
	"priority": "t.priority_id",
}

// listSelect carries all decoration columns in one statement. The %s slot
// is the caller's running-timer expression.
const listSelect = `SELECT
	t.id, t.display_key, t.name, t.project_id, t.parent_id,
	t.status_id, t.priority_id, t.phase_id, t.archived, t.position,
	t.created_at, t.updated_at,
	COALESCE(sub.total, 0),
	COALESCE(sub.done, 0),
	COALESCE(asg.member_ids, '{}'),
	COALESCE(lbl.label_ids, '{}'),
	COALESCE(cm.cnt, 0),
	COALESCE(att.cnt, 0),
	COALESCE(tm.estimated, 0),
	COALESCE(tm.logged, 0),
	EXISTS (SELECT 1 FROM dependencies d WHERE d.task_id = t.id),
	EXISTS (SELECT 1 FROM watchers wt WHERE wt.task_id = t.id),
	%s
FROM tasks t
LEFT JOIN LATERAL (
	SELECT
		COUNT(*) AS total,
		COUNT(*) FILTER (WHERE sc.category = 'done') AS done
	FROM tasks c
	JOIN statuses sc ON sc.id = c.status_id
	WHERE c.parent_id = t.id
) sub ON TRUE
LEFT JOIN LATERAL (
	SELECT array_agg(ta.member_id ORDER BY ta.member_id) AS member_ids
	FROM task_assignees ta
	WHERE ta.task_id = t.id
) asg ON TRUE
LEFT JOIN LATERAL (
	SELECT array_agg(tl.label_id ORDER BY tl.label_id) AS label_ids
	FROM task_labels tl
	WHERE tl.task_id = t.id
) lbl ON TRUE
LEFT JOIN LATERAL (
	SELECT COUNT(*) AS cnt FROM comments c2 WHERE c2.task_id = t.id
) cm ON TRUE
LEFT JOIN LATERAL (
	SELECT COUNT(*) AS cnt FROM attachments a2 WHERE a2.task_id = t.id
) att ON TRUE
LEFT JOIN LATERAL (
	SELECT
		SUM(te.estimated_minutes) AS estimated,
		SUM(te.minutes) AS logged
	FROM time_entries te
	WHERE te.task_id = t.id
) tm ON TRUE`

// BuildListQuery renders the single fetch for a listing: predicate,
// decorations, sort, pagination. Default order is the manual position,
// ascending, with the id as a stable tiebreak.
func BuildListQuery(f Filters) (string, []any, error) {
	p, err := BuildPredicate(f)
	if err != nil {
		return "", nil, err
	}

	col := "t.position"
	if f.SortField != "" {
		c, ok := sortColumns[f.SortField]
		if !ok {
			return "", nil, fmt.Errorf("%w: unknown sort field %q", ErrInvalidFilter, f.SortField)
		}
		col = c
	}
	dir := "ASC"
	if f.SortDesc {
		dir = "DESC"
	}

	timer := "FALSE"
	if f.CallerID > 0 {
		timer = "EXISTS (SELECT 1 FROM time_entries mt WHERE mt.task_id = t.id AND mt.user_id = " + p.bind(f.CallerID) + " AND mt.running)"
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf(listSelect, timer))
	if w := p.WhereSQL(); w != "" {
		sb.WriteString("\n")
		sb.WriteString(w)
	}
	fmt.Fprintf(&sb, "\nORDER BY %s %s, t.id ASC", col, dir)
	if f.Limit > 0 {
		sb.WriteString(" LIMIT " + p.bind(f.Limit))
	}
	if f.Offset > 0 {
		sb.WriteString(" OFFSET " + p.bind(f.Offset))
	}

	return sb.String(), p.Args(), nil
}

// BuildCountQuery renders the counts-only shape over the same predicate.
func BuildCountQuery(f Filters) (string, []any, error) {
	p, err := BuildPredicate(f)
	if err != nil {
		return "", nil, err
	}

	q := "SELECT COUNT(*) FROM tasks t"
	if w := p.WhereSQL(); w != "" {
		q += " " + w
	}
	return q, p.Args(), nil
}
