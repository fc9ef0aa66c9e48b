package main

import (
	"log"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/rs/cors"

	"taskboard-backend/internal/auth"
	"taskboard-backend/internal/boards"
	"taskboard-backend/internal/config"
	"taskboard-backend/internal/db"
	"taskboard-backend/internal/events"
	"taskboard-backend/internal/tasks"
)

func main() {
	cfg := config.Load()

	if cfg.JWTSecret == "" {
		log.Fatal("❌ JWT_SECRET is required")
	}
	secret := []byte(cfg.JWTSecret)

	database, err := db.Connect(cfg.ConnString())
	if err != nil {
		log.Fatal("❌ Failed to connect DB:", err)
	}
	defer database.Close()

	log.Println("✅ Connected to PostgreSQL!")

	taskStore := tasks.NewSQLStore(database)
	taskSvc := tasks.NewService(taskStore)

	authMW := auth.New(secret)

	r := mux.NewRouter()

	// Health endpoint
	r.HandleFunc("/health", func(w http.ResponseWriter, req *http.Request) {
		w.Write([]byte("OK"))
	}).Methods(http.MethodGet)

	// ----- AUTH -----
	r.HandleFunc("/auth/register", auth.RegisterHandler(database, secret)).Methods(http.MethodPost)
	r.HandleFunc("/auth/login", auth.LoginHandler(database, secret)).Methods(http.MethodPost)
	r.HandleFunc("/auth/logout", auth.LogoutHandler()).Methods(http.MethodPost)
	r.HandleFunc("/auth/me", authMW.Wrap(auth.MeHandler(database))).Methods(http.MethodGet)

	// ----- PROJECTS -----
	r.HandleFunc("/projects", authMW.Wrap(boards.GetProjectsHandler(database))).Methods(http.MethodGet)
	r.HandleFunc("/projects", authMW.Wrap(boards.CreateProjectHandler(database))).Methods(http.MethodPost)

	// ----- TASKS -----
	r.HandleFunc("/projects/{projectID}/tasks", authMW.Wrap(tasks.ListGroupedHandler(taskSvc))).Methods(http.MethodGet)
	r.HandleFunc("/projects/{projectID}/tasks/flat", authMW.Wrap(tasks.ListFlatHandler(taskSvc))).Methods(http.MethodGet)
	r.HandleFunc("/tasks/{taskID}", authMW.Wrap(tasks.GetTaskHandler(taskSvc))).Methods(http.MethodGet)
	r.HandleFunc("/tasks/{taskID}/status", authMW.Wrap(tasks.SetStatusHandler(taskSvc, database))).Methods(http.MethodPost)
	r.HandleFunc("/tasks/{taskID}/can-transition", authMW.Wrap(tasks.CanTransitionHandler(taskSvc))).Methods(http.MethodGet)
	r.HandleFunc("/tasks/{taskID}/reparent", authMW.Wrap(tasks.ReparentHandler(taskSvc, database))).Methods(http.MethodPost)
	r.HandleFunc("/tasks/{taskID}/labels", authMW.Wrap(tasks.SetLabelsHandler(taskSvc, database))).Methods(http.MethodPut)
	r.HandleFunc("/tasks/{taskID}/columns/{columnID}", authMW.Wrap(tasks.SetColumnValueHandler(taskSvc))).Methods(http.MethodPut)

	// ----- EVENTS -----
	r.HandleFunc("/events", authMW.Wrap(events.IngestHandler(database))).Methods(http.MethodPost)

	// CORS
	c := cors.New(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "OPTIONS"},
		AllowedHeaders:   []string{"Content-Type", "Authorization", "Idempotency-Key"},
		AllowCredentials: true,
	})

	handler := c.Handler(r)

	log.Println("🚀 API server is running on " + cfg.HTTPAddr)
	log.Fatal(http.ListenAndServe(cfg.HTTPAddr, handler))
}
