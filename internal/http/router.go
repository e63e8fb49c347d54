package http

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"interview-copilot/internal/app"
	"interview-copilot/internal/observability/logging"
)

// NewRouter constructs the HTTP router for the agent.
func NewRouter(application *app.Application) http.Handler {
	h := &handlers{app: application, logger: logging.WithComponent("http")}

	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)

	// Health endpoints
	r.Get("/v1/liveness", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	r.Get("/v1/readiness", h.readiness)

	r.Route("/v1", func(r chi.Router) {
		r.Route("/capture", func(r chi.Router) {
			r.Get("/", h.captureSnapshot)
			r.Post("/start", h.captureStart)
			r.Post("/stop", h.captureStop)
			r.Post("/submit", h.captureSubmit)
			r.Put("/input", h.captureInput)
		})
		r.Get("/answer", h.currentAnswer)

		r.Get("/settings", h.getSettings)
		r.Put("/settings/{key}", h.putSetting)

		r.Get("/sessions", h.listSessions)
		r.Get("/sessions/{id}/history", h.sessionHistory)

		// backend pass-through
		r.Post("/documents", h.uploadDocument)
		r.Post("/job-text", h.saveJobText)
		r.Post("/summaries", h.generateSummaries)
		r.Get("/summaries", h.getSummaries)
		r.Post("/company-questions", h.companyQuestions)
		r.Post("/compare-llms", h.compareLLMs)
		r.Get("/calendar", h.calendar)
		r.Post("/overlay/launch", h.launchOverlay)
		r.Post("/faq", h.uploadFAQ)
		r.Get("/faq/stats", h.faqStats)
		r.Get("/faq", h.faqData)
		r.Delete("/faq", h.clearFAQ)
	})

	r.Get("/ws/overlay", application.Overlay.ServeHTTP)
	r.Get("/ws/audio/{kind}", h.audioIngest)

	return r
}
