package httpx

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"foodhub/internal/auth"
	"foodhub/internal/logger"
)

// Routes is implemented by each service handler
type Routes interface {
	RegisterRoutes(r chi.Router)
}

// NewRouter builds the chi router shared by every service handler
func NewRouter(log *logger.Logger, routes ...Routes) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(Logging(log))
	r.Use(middleware.Recoverer)
	r.Use(auth.Middleware)

	r.NotFound(func(w http.ResponseWriter, req *http.Request) {
		WriteMessage(w, req, http.StatusNotFound, "not_found", "Route not found")
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, req *http.Request) {
		WriteMessage(w, req, http.StatusMethodNotAllowed, "method_not_allowed", "Method not allowed")
	})

	for _, rt := range routes {
		rt.RegisterRoutes(r)
	}
	return r
}
