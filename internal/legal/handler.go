package legal

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/dspops/portal/internal/platform/httpx"
)

// Handler serves legal documents.
type Handler struct {
	library *Library
}

// NewHandler constructs a Handler.
func NewHandler(library *Library) *Handler {
	return &Handler{library: library}
}

// MountRoutes registers document routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/", h.list)
	r.Get("/{name}", h.get)
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	httpx.JSON(w, http.StatusOK, map[string][]string{"documents": h.library.Names()})
}

func (h *Handler) get(w http.ResponseWriter, r *http.Request) {
	doc, err := h.library.Get(chi.URLParam(r, "name"))
	if err != nil {
		httpx.RespondError(w, httpx.ErrNotFound)
		return
	}
	w.Header().Set("Cache-Control", "public, max-age=3600")
	httpx.JSON(w, http.StatusOK, doc)
}
