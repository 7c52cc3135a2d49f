package httptransport

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"
	httpSwagger "github.com/swaggo/http-swagger"
)

func Routes(h *Handler, log zerolog.Logger) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)

	// after RequestID
	r.Use(RequestLogger(log))

	r.Get("/health", h.Health)
	r.Post("/webhook/payment", h.PaymentWebhook)

	r.Group(func(r chi.Router) {
		r.Use(h.d.Auth.Identify)

		r.Post("/generate", h.Generate)
		r.Post("/generate/stream", h.GenerateStream)

		r.Route("/jobs", func(r chi.Router) {
			r.Post("/", h.CreateJob)
			r.Get("/{id}/status", h.JobStatus)
			r.Get("/{id}/events", h.JobEvents)
		})

		r.Get("/usage", h.Usage)

		r.Route("/chats", func(r chi.Router) {
			r.Get("/", h.ListChats)
			r.Get("/{chatID}", h.GetChat)
			r.Delete("/{chatID}", h.DeleteChat)
		})
	})

	if h.d.VideoDir != "" {
		r.Handle("/videos/*", http.StripPrefix("/videos/", http.FileServer(http.Dir(h.d.VideoDir))))
	}

	r.Get("/swagger/*", httpSwagger.Handler(
		httpSwagger.URL("/swagger/doc.json"),
	))

	return r
}
