package web

import (
	"github.com/go-chi/chi/v5"

	"github.com/mkratky/rollcall/internal/metrics"
	"github.com/mkratky/rollcall/internal/web/handlers"
)

func (s *Server) setupRoutes(deps Deps) {
	identitiesHandler := handlers.NewIdentitiesHandler(deps.Identities, deps.Groups)
	groupsHandler := handlers.NewGroupsHandler(deps.Groups)
	recognitionHandler := handlers.NewRecognitionHandler(deps.Controller, s.log)
	attendanceHandler := handlers.NewAttendanceHandler(deps.Controller, deps.Ledger)
	configHandler := handlers.NewConfigHandler(deps.Matcher)

	s.router.Get("/healthz", handlers.HealthCheck)
	if deps.Registry != nil {
		s.router.Method("GET", "/metrics", metrics.Handler(deps.Registry))
	}

	s.router.Route("/api/v1", func(r chi.Router) {
		// Identities
		r.Get("/identities", identitiesHandler.List)
		r.Post("/identities", identitiesHandler.Create)
		r.Get("/identities/{id}", identitiesHandler.Get)
		r.Delete("/identities/{id}", identitiesHandler.Delete)
		r.Put("/identities/{id}/group", identitiesHandler.AssignGroup)
		r.Get("/identities/{id}/history", attendanceHandler.History)

		// Templates
		r.Post("/identities/{id}/template", recognitionHandler.Enroll)
		r.Delete("/identities/{id}/template", recognitionHandler.Revoke)

		// Groups
		r.Get("/groups", groupsHandler.List)
		r.Post("/groups", groupsHandler.Create)
		r.Get("/groups/{id}", groupsHandler.Get)
		r.Get("/groups/{id}/members", identitiesHandler.ListByGroup)

		// Recognition and attendance
		r.Post("/recognize", recognitionHandler.Identify)
		r.Post("/groups/{id}/recognize", recognitionHandler.Recognize)
		r.Post("/groups/{id}/finalize", attendanceHandler.Finalize)
		r.Get("/groups/{id}/summary", attendanceHandler.Summary)
		r.Post("/attendance", attendanceHandler.MarkManual)

		// Runtime configuration
		r.Get("/config", configHandler.Get)
		r.Put("/config/tolerance", configHandler.SetTolerance)
	})
}
