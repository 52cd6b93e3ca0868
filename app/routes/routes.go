package routes

import (
	"crypto/subtle"
	"net/http"
	"strings"
	"time"

	"github.com/charmbracelet/log"
	"github.com/gorilla/mux"

	"todo-sync/app/controllers"
)

// RegisterRoutes sets up all routes for the application. A non-empty token
// is required as a bearer credential on every /tasks route.
func RegisterRoutes(router *mux.Router, taskController *controllers.TaskController, token string) {
	router.HandleFunc("/health", taskController.Health).Methods(http.MethodGet)

	tasks := router.PathPrefix("/tasks").Subrouter()
	tasks.Use(requestLogger(taskController.Logger))
	if token != "" {
		tasks.Use(bearerAuth(token))
	}
	tasks.HandleFunc("", taskController.GetTasks).Methods(http.MethodGet)
	tasks.HandleFunc("", taskController.CreateTask).Methods(http.MethodPost)
	tasks.HandleFunc("/{taskID}", taskController.GetTaskByID).Methods(http.MethodGet)
	tasks.HandleFunc("/{taskID}", taskController.UpdateTask).Methods(http.MethodPatch)
	tasks.HandleFunc("/{taskID}/status", taskController.UpdateStatus).Methods(http.MethodPut)
	tasks.HandleFunc("/{taskID}", taskController.DeleteTask).Methods(http.MethodDelete)
}

func bearerAuth(token string) mux.MiddlewareFunc {
	want := []byte("Bearer " + token)
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			got := []byte(strings.TrimSpace(r.Header.Get("Authorization")))
			if subtle.ConstantTimeCompare(got, want) != 1 {
				http.Error(w, "Unauthorized", http.StatusUnauthorized)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (s *statusRecorder) WriteHeader(code int) {
	s.status = code
	s.ResponseWriter.WriteHeader(code)
}

func requestLogger(logger *log.Logger) mux.MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(rec, r)
			logger.Debug("request",
				"method", r.Method,
				"path", r.URL.Path,
				"status", rec.status,
				"user", r.Header.Get("X-User-ID"),
				"took", time.Since(start))
		})
	}
}
