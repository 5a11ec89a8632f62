package handlers

import (
	"net/http"
	"strings"
	"unicode/utf8"

	"github.com/dodoapp/lullaby-backend/internal/models"
	"github.com/dodoapp/lullaby-backend/internal/store"
)

const maxChildName = 100

type ChildHandler struct {
	store store.Store
}

func NewChildHandler(st store.Store) *ChildHandler {
	return &ChildHandler{store: st}
}

type createChildRequest struct {
	Name      string `json:"name"`
	AgeMonths *int   `json:"ageMonths"`
}

func (h *ChildHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req createChildRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	name := strings.TrimSpace(req.Name)
	if name == "" {
		writeError(w, http.StatusBadRequest, "name is required")
		return
	}
	if utf8.RuneCountInString(name) > maxChildName {
		writeError(w, http.StatusBadRequest, "name is too long")
		return
	}
	if req.AgeMonths != nil && *req.AgeMonths < 0 {
		writeError(w, http.StatusBadRequest, "ageMonths must not be negative")
		return
	}

	child, err := h.store.InsertChild(r.Context(), store.NewChild{Name: name, AgeMonths: req.AgeMonths})
	if err != nil {
		writeServiceError(w, r, err, "")
		return
	}
	writeJSON(w, http.StatusCreated, child)
}

func (h *ChildHandler) List(w http.ResponseWriter, r *http.Request) {
	children, err := h.store.ListChildren(r.Context())
	if err != nil {
		writeServiceError(w, r, err, "")
		return
	}
	if children == nil {
		children = []models.Child{}
	}
	writeJSON(w, http.StatusOK, children)
}
