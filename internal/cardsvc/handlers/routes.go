package handlers

import (
	"github.com/avvvet/viand-services/internal/auth"
	"github.com/go-chi/chi"
	"github.com/go-chi/chi/middleware"
	"github.com/go-chi/jwtauth"
)

func (h *Handler) SetRoutes(r *chi.Mux) {
	r.Get("/", h.Welcome)
	r.Get("/health", h.HealthHandler)

	r.Route("/api", func(r chi.Router) {

		// public routes
		r.Post("/users", h.Register)
		r.Post("/auth", h.Login)

		// live feed; browsers cannot set headers on a websocket handshake
		r.Group(func(r chi.Router) {
			r.Use(jwtauth.Verify(h.tokenAuth.JWTAuth(), jwtauth.TokenFromHeader, auth.TokenFromLegacyHeader, jwtauth.TokenFromQuery))
			r.Use(h.Authenticator)

			r.Get("/cards/feed", h.CardFeed)
		})

		// Secure routes
		r.Group(func(r chi.Router) {
			r.Use(middleware.Timeout(h.requestTimeout))
			r.Use(jwtauth.Verify(h.tokenAuth.JWTAuth(), jwtauth.TokenFromHeader, auth.TokenFromLegacyHeader))
			r.Use(h.Authenticator)

			r.Get("/auth", h.CurrentUser)

			r.Get("/cards", h.ListCards)
			r.Post("/cards", h.CreateCard)
			r.Get("/cards/{id}", h.GetCard)
			r.Put("/cards/{id}", h.UpdateCard)
			r.Delete("/cards/{id}", h.DeleteCard)
		})
	})
}
