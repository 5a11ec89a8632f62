package handlers

import (
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/dodoapp/lullaby-backend/internal/generation"
)

const (
	// AudioFilesField is the multipart field carrying voice samples.
	AudioFilesField = "audioFiles"
	MaxSampleBytes  = 10 << 20
)

type VoiceHandler struct {
	svc *generation.VoiceService
}

func NewVoiceHandler(svc *generation.VoiceService) *VoiceHandler {
	return &VoiceHandler{svc: svc}
}

func (h *VoiceHandler) Create(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, generation.MaxVoiceSamples*MaxSampleBytes+(1<<20))
	if err := r.ParseMultipartForm(32 << 20); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, http.StatusRequestEntityTooLarge, fmt.Sprintf("upload exceeds %d MB", tooLarge.Limit>>20))
			return
		}
		writeError(w, http.StatusBadRequest, "invalid multipart form")
		return
	}
	defer r.MultipartForm.RemoveAll()

	files := r.MultipartForm.File[AudioFilesField]
	if len(files) == 0 {
		writeError(w, http.StatusBadRequest, "at least one audio file is required in "+AudioFilesField)
		return
	}
	if len(files) > generation.MaxVoiceSamples {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("at most %d audio files are accepted", generation.MaxVoiceSamples))
		return
	}

	samples := make([]generation.VoiceSample, 0, len(files))
	for _, fh := range files {
		if fh.Size > MaxSampleBytes {
			writeError(w, http.StatusRequestEntityTooLarge, fmt.Sprintf("%s exceeds %d MB", fh.Filename, MaxSampleBytes>>20))
			return
		}
		f, err := fh.Open()
		if err != nil {
			writeError(w, http.StatusBadRequest, "unreadable audio file")
			return
		}
		data, err := io.ReadAll(f)
		f.Close()
		if err != nil {
			writeError(w, http.StatusBadRequest, "unreadable audio file")
			return
		}
		samples = append(samples, generation.VoiceSample{
			Filename:    fh.Filename,
			ContentType: fh.Header.Get("Content-Type"),
			Data:        data,
		})
	}

	profile, err := h.svc.CreateProfile(r.Context(), samples)
	if err != nil {
		writeServiceError(w, r, err, "")
		return
	}
	writeJSON(w, http.StatusOK, profile)
}

func (h *VoiceHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusNotFound, "voice profile not found")
		return
	}
	profile, err := h.svc.Get(r.Context(), id)
	if err != nil {
		writeServiceError(w, r, err, "voice profile not found")
		return
	}
	writeJSON(w, http.StatusOK, profile)
}
