package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/hotslice/voicedesk/internal/handler/telephony"
	middlewarePkg "github.com/hotslice/voicedesk/internal/middleware"
	"github.com/hotslice/voicedesk/internal/model/menu"
	"github.com/hotslice/voicedesk/internal/service/registry"
	"github.com/hotslice/voicedesk/pkg/utils"
)

// MenuProvider returns the active menu snapshot.
type MenuProvider func() *menu.Index

// NewRouter wires HTTP routes to core services.
func NewRouter(telephonyHandler *telephony.Handler, menuProvider MenuProvider, reg *registry.Registry) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middlewarePkg.CORS)

	telephonyHandler.RegisterRoutes(r)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		utils.RespondJSON(w, http.StatusOK, map[string]any{
			"status":          "ok",
			"active_sessions": reg.Len(),
		})
	})

	r.Get("/api/menu", func(w http.ResponseWriter, r *http.Request) {
		utils.RespondJSON(w, http.StatusOK, map[string]any{
			"items": menuProvider().Items(),
		})
	})

	return r
}
