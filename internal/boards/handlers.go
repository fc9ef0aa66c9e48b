package boards

import (
	"database/sql"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"taskboard-backend/internal/auth"
	"taskboard-backend/internal/events"
)

type Project struct {
	ID        int64     `json:"id"`
	Name      string    `json:"name"`
	KeyPrefix string    `json:"key_prefix"`
	Archived  bool      `json:"archived"`
	CreatedAt time.Time `json:"created_at"`
}

func GetProjectsHandler(dbx *sql.DB) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		uid, ok := auth.UserIDFromContext(r.Context())
		if !ok {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}

		rows, err := dbx.Query(`
			SELECT p.id, p.name, p.key_prefix, p.archived, p.created_at
			FROM projects p
			JOIN project_members pm ON pm.project_id = p.id
			WHERE pm.user_id = $1
			ORDER BY p.id
		`, uid)
		if err != nil {
			http.Error(w, "db error: "+err.Error(), 500)
			return
		}
		defer rows.Close()

		var result []Project
		for rows.Next() {
			var p Project
			if err := rows.Scan(&p.ID, &p.Name, &p.KeyPrefix, &p.Archived, &p.CreatedAt); err != nil {
				http.Error(w, "scan error: "+err.Error(), 500)
				return
			}
			result = append(result, p)
		}
		if err := rows.Err(); err != nil {
			http.Error(w, "db rows error", 500)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(result)
	}
}

func CreateProjectHandler(dbx *sql.DB) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		uid, ok := auth.UserIDFromContext(r.Context())
		if !ok {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}

		var body struct {
			Name      string `json:"name"`
			KeyPrefix string `json:"key_prefix"`
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			http.Error(w, "invalid json", 400)
			return
		}

		name := strings.TrimSpace(body.Name)
		if name == "" {
			http.Error(w, "name is required", 400)
			return
		}
		prefix := strings.ToUpper(strings.TrimSpace(body.KeyPrefix))
		if prefix == "" && len(name) >= 3 {
			prefix = strings.ToUpper(name[:3])
		}

		var p Project
		p.Name = name
		p.KeyPrefix = prefix

		err := dbx.QueryRow(`
			INSERT INTO projects (name, key_prefix)
			VALUES ($1, $2)
			RETURNING id, archived, created_at
		`, name, prefix).Scan(&p.ID, &p.Archived, &p.CreatedAt)
		if err != nil {
			http.Error(w, "db error: "+err.Error(), 500)
			return
		}

		// creator joins the project right away
		if _, err := dbx.Exec(`
			INSERT INTO project_members (project_id, user_id)
			VALUES ($1, $2)
		`, p.ID, uid); err != nil {
			http.Error(w, "db error: "+err.Error(), 500)
			return
		}

		{
			env := events.FromRequest(r)
			env.UserID = uid
			props := map[string]any{
				"project_id": p.ID,
				"name_len":   len(name),
			}
			_ = events.Log(r.Context(), dbx, env, "project_created", props, events.SourceEventKeyFromRequest(r))
		}

		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(p)
	}
}
