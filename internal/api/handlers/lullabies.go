package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/dodoapp/lullaby-backend/internal/generation"
	"github.com/dodoapp/lullaby-backend/internal/models"
)

type LullabyHandler struct {
	svc *generation.LullabyService
}

func NewLullabyHandler(svc *generation.LullabyService) *LullabyHandler {
	return &LullabyHandler{svc: svc}
}

type createLullabyRequest struct {
	ChildID         string  `json:"childId"`
	VoiceProfileID  string  `json:"voiceProfileId"`
	Style           string  `json:"style"`
	DurationMinutes float64 `json:"durationMinutes"`
	LanguageCode    string  `json:"languageCode"`
}

func (h *LullabyHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req createLullabyRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	childID, err := uuid.Parse(req.ChildID)
	if err != nil {
		writeError(w, http.StatusBadRequest, "childId must be a valid id")
		return
	}
	voiceID, err := uuid.Parse(req.VoiceProfileID)
	if err != nil {
		writeError(w, http.StatusBadRequest, "voiceProfileId must be a valid id")
		return
	}

	l, err := h.svc.Create(r.Context(), generation.CreateLullabyInput{
		ChildID:         childID,
		VoiceProfileID:  voiceID,
		Style:           req.Style,
		DurationMinutes: req.DurationMinutes,
		LanguageCode:    req.LanguageCode,
	})
	if err != nil {
		writeServiceError(w, r, err, "")
		return
	}
	writeJSON(w, http.StatusCreated, l)
}

func (h *LullabyHandler) List(w http.ResponseWriter, r *http.Request) {
	lullabies, err := h.svc.List(r.Context())
	if err != nil {
		writeServiceError(w, r, err, "")
		return
	}
	if lullabies == nil {
		lullabies = []models.Lullaby{}
	}
	writeJSON(w, http.StatusOK, lullabies)
}

func (h *LullabyHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusNotFound, "lullaby not found")
		return
	}
	l, err := h.svc.Get(r.Context(), id)
	if err != nil {
		writeServiceError(w, r, err, "lullaby not found")
		return
	}
	writeJSON(w, http.StatusOK, l)
}
