package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

// RouterConfig holds the optional pieces mounted next to the core routes.
type RouterConfig struct {
	// AuthEnabled requires Token on every route.
	AuthEnabled bool
	Token       string
	// Events, if non-nil, is mounted at GET /events.
	Events http.Handler
	// Assets, if non-nil, enables attachment upload and download.
	Assets AssetStore
}

// NewRouter creates a chi router with all API routes mounted.
func NewRouter(svc Service, cfg RouterConfig) chi.Router {
	h := NewHandler(svc)

	token := ""
	if cfg.AuthEnabled {
		token = cfg.Token
	}

	r := chi.NewRouter()
	r.Group(func(r chi.Router) {
		r.Use(RequireToken(token, false))

		r.Get("/records", h.ListRecords)
		r.Post("/records", h.CreateRecord)
		r.Get("/records/{id}", h.GetRecord)
		r.Get("/records/{id}/document", h.GetDocument)
		r.Post("/records/{id}/render", h.RenderRecord)

		r.Get("/documents", h.ListDocuments)
		r.Get("/search", h.Search)
		r.Get("/stats", h.Stats)

		r.Post("/papers/search", h.SearchPapers)
		r.Post("/papers/save", h.SavePapers)

		if cfg.Assets != nil {
			ah := NewAssetHandler(cfg.Assets)
			r.Post("/assets", ah.Upload)
			r.Get("/assets/*", ah.Serve)
		}
	})

	if cfg.Events != nil {
		r.With(RequireToken(token, true)).Get("/events", cfg.Events.ServeHTTP)
	}

	return r
}
