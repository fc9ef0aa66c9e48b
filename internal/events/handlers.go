package events

import (
	"database/sql"
	"encoding/json"
	"net/http"
	"strings"
)

// IngestHandler accepts one client-side event and stores it.
// POST /events {"event_name": "...", "properties": {...}}
func IngestHandler(dbx *sql.DB) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		uid, ok := UserIDFromContext(r.Context())
		if !ok {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}

		var body struct {
			EventName  string         `json:"event_name"`
			Properties map[string]any `json:"properties"`
		}
		_ = json.NewDecoder(r.Body).Decode(&body)

		name := strings.TrimSpace(body.EventName)
		if name == "" {
			http.Error(w, "event_name required", http.StatusBadRequest)
			return
		}

		env := FromRequest(r)
		env.UserID = uid

		_ = Log(r.Context(), dbx, env, name, body.Properties, SourceEventKeyFromRequest(r))

		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{"ok": true})
	}
}
