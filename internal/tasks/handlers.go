package tasks

import (
	"database/sql"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/gorilla/mux"

	"taskboard-backend/internal/auth"
	"taskboard-backend/internal/events"
)

func httpStatus(err error) int {
	switch {
	case errors.Is(err, ErrInvalidFilter), errors.Is(err, ErrNestingTooDeep):
		return http.StatusBadRequest
	case errors.Is(err, ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, ErrDependenciesOpen):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

func parseIDList(raw string) ([]int64, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, nil
	}
	parts := strings.Split(raw, ",")
	ids := make([]int64, 0, len(parts))
	for _, p := range parts {
		id, err := strconv.ParseInt(strings.TrimSpace(p), 10, 64)
		if err != nil {
			return nil, ErrInvalidFilter
		}
		ids = append(ids, id)
	}
	return ids, nil
}

func pathID(r *http.Request, name string) (int64, bool) {
	id, err := strconv.ParseInt(mux.Vars(r)[name], 10, 64)
	return id, err == nil && id > 0
}

// filtersFromRequest maps query params onto Filters. Everything is
// optional; bad numbers come back as an invalid-filter error.
func filtersFromRequest(r *http.Request, projectID, callerID int64) (Filters, error) {
	q := r.URL.Query()

	f := Filters{
		ProjectID: projectID,
		CallerID:  callerID,
		Search:    strings.TrimSpace(q.Get("search")),
		SortField: strings.TrimSpace(q.Get("sort")),
		SortDesc:  q.Get("order") == "desc",
	}

	var err error
	if f.StatusIDs, err = parseIDList(q.Get("status_ids")); err != nil {
		return Filters{}, err
	}
	if f.PriorityIDs, err = parseIDList(q.Get("priority_ids")); err != nil {
		return Filters{}, err
	}
	if f.LabelIDs, err = parseIDList(q.Get("label_ids")); err != nil {
		return Filters{}, err
	}
	if f.MemberIDs, err = parseIDList(q.Get("member_ids")); err != nil {
		return Filters{}, err
	}
	if f.ProjectIDs, err = parseIDList(q.Get("project_ids")); err != nil {
		return Filters{}, err
	}

	if v := q.Get("assignee_id"); v != "" {
		id, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return Filters{}, ErrInvalidFilter
		}
		// the composer swaps the base scope to this member's tasks
		f.AssigneeID = id
	}

	f.ArchivedOnly = q.Get("archived") == "1"

	switch {
	case q.Get("parent_id") != "":
		id, err := strconv.ParseInt(q.Get("parent_id"), 10, 64)
		if err != nil {
			return Filters{}, ErrInvalidFilter
		}
		f.Subtasks = SubtasksOf
		f.ParentID = id
	case q.Get("subtasks") == "root":
		f.Subtasks = SubtasksRootOnly
	}

	if v := q.Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			return Filters{}, ErrInvalidFilter
		}
		f.Limit = n
	}
	if v := q.Get("offset"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			return Filters{}, ErrInvalidFilter
		}
		f.Offset = n
	}

	return f, nil
}

func ListGroupedHandler(svc *Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		uid, ok := auth.UserIDFromContext(r.Context())
		if !ok {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		projectID, ok := pathID(r, "projectID")
		if !ok {
			http.Error(w, "bad project id", http.StatusBadRequest)
			return
		}

		f, err := filtersFromRequest(r, projectID, uid)
		if err != nil {
			http.Error(w, err.Error(), httpStatus(err))
			return
		}

		dim := GroupByStatus
		if v := r.URL.Query().Get("group_by"); v != "" {
			d, ok := ParseGroupDimension(v)
			if !ok {
				http.Error(w, "unknown group_by", http.StatusBadRequest)
				return
			}
			dim = d
		}

		groups, err := svc.ListGrouped(r.Context(), f, dim)
		if err != nil {
			http.Error(w, err.Error(), httpStatus(err))
			return
		}

		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(groups)
	}
}

func ListFlatHandler(svc *Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		uid, ok := auth.UserIDFromContext(r.Context())
		if !ok {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		projectID, ok := pathID(r, "projectID")
		if !ok {
			http.Error(w, "bad project id", http.StatusBadRequest)
			return
		}

		f, err := filtersFromRequest(r, projectID, uid)
		if err != nil {
			http.Error(w, err.Error(), httpStatus(err))
			return
		}

		w.Header().Set("Content-Type", "application/json")

		if r.URL.Query().Get("counts_only") == "1" {
			n, err := svc.CountFlat(r.Context(), f)
			if err != nil {
				http.Error(w, err.Error(), httpStatus(err))
				return
			}
			_ = json.NewEncoder(w).Encode(map[string]any{"count": n})
			return
		}

		list, err := svc.ListFlat(r.Context(), f)
		if err != nil {
			http.Error(w, err.Error(), httpStatus(err))
			return
		}
		_ = json.NewEncoder(w).Encode(list)
	}
}

func GetTaskHandler(svc *Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		uid, ok := auth.UserIDFromContext(r.Context())
		if !ok {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		taskID, ok := pathID(r, "taskID")
		if !ok {
			http.Error(w, "bad task id", http.StatusBadRequest)
			return
		}

		t, err := svc.GetTask(r.Context(), taskID, uid)
		if err != nil {
			http.Error(w, err.Error(), httpStatus(err))
			return
		}

		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(t)
	}
}

func SetStatusHandler(svc *Service, dbx *sql.DB) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		uid, ok := auth.UserIDFromContext(r.Context())
		if !ok {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		taskID, ok := pathID(r, "taskID")
		if !ok {
			http.Error(w, "bad task id", http.StatusBadRequest)
			return
		}

		var body struct {
			StatusID int64 `json:"status_id"`
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			http.Error(w, "invalid json", http.StatusBadRequest)
			return
		}
		if body.StatusID == 0 {
			http.Error(w, "status_id required", http.StatusBadRequest)
			return
		}

		t, err := svc.ChangeStatus(r.Context(), taskID, body.StatusID, uid)
		if err != nil {
			http.Error(w, err.Error(), httpStatus(err))
			return
		}

		{
			env := events.FromRequest(r)
			env.UserID = uid
			props := map[string]any{
				"task_id":   taskID,
				"status_id": body.StatusID,
			}
			_ = events.Log(r.Context(), dbx, env, "task_status_changed", props, events.SourceEventKeyFromRequest(r))
		}

		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(t)
	}
}

func CanTransitionHandler(svc *Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if _, ok := auth.UserIDFromContext(r.Context()); !ok {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		taskID, ok := pathID(r, "taskID")
		if !ok {
			http.Error(w, "bad task id", http.StatusBadRequest)
			return
		}
		statusID, err := strconv.ParseInt(r.URL.Query().Get("status_id"), 10, 64)
		if err != nil || statusID <= 0 {
			http.Error(w, "status_id required", http.StatusBadRequest)
			return
		}

		allowed, err := svc.CanTransition(r.Context(), taskID, statusID)
		if err != nil {
			http.Error(w, err.Error(), httpStatus(err))
			return
		}

		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{"allowed": allowed})
	}
}

func ReparentHandler(svc *Service, dbx *sql.DB) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		uid, ok := auth.UserIDFromContext(r.Context())
		if !ok {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		taskID, ok := pathID(r, "taskID")
		if !ok {
			http.Error(w, "bad task id", http.StatusBadRequest)
			return
		}

		var body struct {
			ParentID  *int64 `json:"parent_id"`
			ProjectID int64  `json:"project_id"`
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			http.Error(w, "invalid json", http.StatusBadRequest)
			return
		}

		t, err := svc.Reparent(r.Context(), taskID, body.ParentID, body.ProjectID, uid)
		if err != nil {
			http.Error(w, err.Error(), httpStatus(err))
			return
		}

		{
			env := events.FromRequest(r)
			env.UserID = uid
			props := map[string]any{
				"task_id":    taskID,
				"parent_id":  body.ParentID,
				"project_id": t.ProjectID,
			}
			_ = events.Log(r.Context(), dbx, env, "task_reparented", props, events.SourceEventKeyFromRequest(r))
		}

		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(t)
	}
}

func SetLabelsHandler(svc *Service, dbx *sql.DB) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		uid, ok := auth.UserIDFromContext(r.Context())
		if !ok {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		taskID, ok := pathID(r, "taskID")
		if !ok {
			http.Error(w, "bad task id", http.StatusBadRequest)
			return
		}

		var body struct {
			LabelIDs []int64 `json:"label_ids"`
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			http.Error(w, "invalid json", http.StatusBadRequest)
			return
		}

		t, err := svc.AssignLabels(r.Context(), taskID, body.LabelIDs, uid)
		if err != nil {
			http.Error(w, err.Error(), httpStatus(err))
			return
		}

		{
			env := events.FromRequest(r)
			env.UserID = uid
			props := map[string]any{
				"task_id":     taskID,
				"label_count": len(body.LabelIDs),
			}
			_ = events.Log(r.Context(), dbx, env, "task_labels_set", props, events.SourceEventKeyFromRequest(r))
		}

		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(t)
	}
}

func SetColumnValueHandler(svc *Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if _, ok := auth.UserIDFromContext(r.Context()); !ok {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		taskID, ok := pathID(r, "taskID")
		if !ok {
			http.Error(w, "bad task id", http.StatusBadRequest)
			return
		}
		columnID, ok := pathID(r, "columnID")
		if !ok {
			http.Error(w, "bad column id", http.StatusBadRequest)
			return
		}

		var body struct {
			Value string `json:"value"`
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			http.Error(w, "invalid json", http.StatusBadRequest)
			return
		}

		if err := svc.SetColumnValue(r.Context(), taskID, columnID, body.Value); err != nil {
			http.Error(w, err.Error(), httpStatus(err))
			return
		}

		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{"ok": true})
	}
}
