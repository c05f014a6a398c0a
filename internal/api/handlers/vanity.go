package handlers

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/narvanalabs/fleet-portal/internal/models"
	"github.com/narvanalabs/fleet-portal/internal/validation"
	"github.com/narvanalabs/fleet-portal/internal/vanity"
)

// VanityPages loads brand pages.
type VanityPages interface {
	Get(ctx context.Context, id string) (*models.VanityPage, error)
}

// VanityHandler serves public brand pages.
type VanityHandler struct {
	pages  VanityPages
	logger *slog.Logger
}

// NewVanityHandler creates a new vanity page handler.
func NewVanityHandler(pages VanityPages, logger *slog.Logger) *VanityHandler {
	return &VanityHandler{pages: pages, logger: logger}
}

// Get handles GET /api/v1/vanity-pages/{pageID}. An invalid ID is
// reported as not found.
func (h *VanityHandler) Get(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "pageID")
	if err := validation.ValidateRecordID("pageId", id); err != nil {
		WriteError(w, r, h.logger, vanity.ErrPageNotFound)
		return
	}

	page, err := h.pages.Get(r.Context(), id)
	if err != nil {
		WriteError(w, r, h.logger, err)
		return
	}

	WriteData(w, page)
}
