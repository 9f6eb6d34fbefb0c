// It defines the API server, sets up the routes (endpoints)
// using chi, and links them to the handler functions.

package api

import (
	"database/sql"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/vrsandeep/mylist-go/internal/core"
	"github.com/vrsandeep/mylist-go/internal/store"
)

// Server holds the dependencies for our API.
type Server struct {
	app   *core.App
	db    *sql.DB
	store *store.Store
}

// NewServer creates a new Server instance.
func NewServer(app *core.App) *Server {
	return &Server{
		app:   app,
		db:    app.DB(),
		store: app.Store(),
	}
}

// Store returns the store instance.
func (s *Server) Store() *store.Store {
	return s.store
}

// Router sets up and returns the main router for the application.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger)
	r.Use(middleware.Recoverer)

	r.Get("/api/health", func(w http.ResponseWriter, r *http.Request) {
		if err := s.db.Ping(); err != nil {
			RespondWithError(w, http.StatusServiceUnavailable, "Database connection failed")
			return
		}
		RespondWithJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Get("/api/version", s.handleGetVersion)

	r.Route("/api", func(r chi.Router) {
		// Refreshing a list can outlast the default timeout, so it is
		// registered outside the timeout group.
		r.Post("/mylists/{listID}/refresh", s.handleRefreshList)

		r.Group(func(r chi.Router) {
			r.Use(middleware.Timeout(60 * time.Second))

			r.Get("/mylists", s.handleListMylists)
			r.Post("/mylists", s.handleCreateMylist)
			r.Post("/mylists/swap", s.handleSwapMylists)
			r.Get("/mylists/{listID}", s.handleGetMylist)
			r.Delete("/mylists/{listID}", s.handleDeleteMylist)
			r.Put("/mylists/{listID}/interval", s.handleUpdateInterval)
			r.Get("/mylists/{listID}/videos", s.handleListVideos)
			r.Put("/mylists/{listID}/videos/{videoID}/status", s.handleSetWatchStatus)
			r.Post("/mylists/{listID}/watched", s.handleMarkAllWatched)

			r.Get("/jobs/status", s.handleGetJobsStatus)
			r.Post("/jobs/run", s.handleRunJob)
		})
	})

	// WebSocket route
	r.Get("/ws/progress", func(w http.ResponseWriter, r *http.Request) {
		s.app.WsHub().ServeWs(w, r)
	})

	return r
}
