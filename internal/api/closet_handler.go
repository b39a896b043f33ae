package api

import (
	"net/http"

	"closet-web/internal/auth"

	"github.com/gorilla/mux"
)

// ClosetHandler serves the landing page and the closet pages
type ClosetHandler struct {
	closetService ClosetService
}

// NewClosetHandler creates a new closet handler
func NewClosetHandler(closetService ClosetService) *ClosetHandler {
	return &ClosetHandler{closetService: closetService}
}

// RegisterRoutes registers page routes
func (h *ClosetHandler) RegisterRoutes(r *mux.Router) {
	r.HandleFunc("/", h.landing).Methods(http.MethodGet)
	r.HandleFunc(auth.WardrobePath, h.wardrobe).Methods(http.MethodGet)
	r.HandleFunc("/my-closet/{section}", h.section).Methods(http.MethodGet)
}

// landing 首页只负责跳转
func (h *ClosetHandler) landing(w http.ResponseWriter, r *http.Request) {
	deviceID := auth.MustGetDeviceFromContext(r.Context())
	http.Redirect(w, r, h.closetService.Landing(r.Context(), deviceID), http.StatusFound)
}

// wardrobe 衣柜页
func (h *ClosetHandler) wardrobe(w http.ResponseWriter, r *http.Request) {
	deviceID := auth.MustGetDeviceFromContext(r.Context())
	page, redirect := h.closetService.Wardrobe(r.Context(), deviceID)
	if page == nil {
		http.Redirect(w, r, redirect, http.StatusFound)
		return
	}
	writeJSON(w, http.StatusOK, page)
}

// section 其他分区
func (h *ClosetHandler) section(w http.ResponseWriter, r *http.Request) {
	deviceID := auth.MustGetDeviceFromContext(r.Context())
	page, ok := h.closetService.Section(r.Context(), deviceID, mux.Vars(r)["section"])
	if !ok {
		writeError(w, http.StatusNotFound, "section not found")
		return
	}
	writeJSON(w, http.StatusOK, page)
}
