package httpapi

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/hai-court/courtroom-gateway/internal/ws"
)

func SetupRoutes(a *API) http.Handler {
	r := chi.NewRouter()

	r.Post("/api/hai/start-simulation", a.StartSimulation)
	r.Post("/api/hai/process-input", a.ProcessInput)
	r.Get("/api/hai/get-case-details/{case_id}", a.CaseDetails)
	r.Delete("/api/hai/sessions/{session_id}", a.EndSession)
	r.Get("/healthz", Healthz)
	r.Get("/ws", ws.Handler(a.Hub))
	return r
}
