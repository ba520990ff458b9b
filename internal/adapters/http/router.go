package http

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

func NewRouter(handler *Handler) http.Handler {
	r := chi.NewRouter()
	r.Use(requestIDMiddleware)
	r.Use(recoverMiddleware)
	r.Use(loggingMiddleware)

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) { writeMessage(w, http.StatusOK, "ok") })
	r.Get("/readyz", func(w http.ResponseWriter, _ *http.Request) { writeMessage(w, http.StatusOK, "ready") })

	r.Route("/v1/accounts/{account}", func(r chi.Router) {
		r.Post("/refresh", handler.refresh)
		r.Get("/listings", handler.getListings)
		r.Get("/limits", handler.getLimits)
		r.Get("/inventory", handler.getInventory)
		r.Post("/listings", handler.createListings)
		r.Patch("/listings", handler.updateListings)
		r.Delete("/listings", handler.deleteListings)
		r.Delete("/listings/archived", handler.deleteArchivedListings)
		r.Delete("/listings/all", handler.deleteAllListings)
		r.Post("/listings/keep", handler.markDoNotDelete)
	})
	return r
}
