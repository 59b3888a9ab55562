package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	service "github.com/okian/sudea/internal/app"
	"github.com/okian/sudea/internal/domain/model"
	"github.com/okian/sudea/pkg/logger"
)

const maxMetaBody = 1 << 20

type imageResponse struct {
	ID               string    `json:"id"`
	URL              string    `json:"url"`
	CreatedAt        time.Time `json:"createdAt"`
	DetectionResults string    `json:"detectionResults"`
}

type saveMetaRequest struct {
	ImageURL         string `json:"imageUrl"`
	DetectionResults string `json:"detectionResults"`
}

// session resolves the interactive caller or writes 401.
func (s *Server) session(w http.ResponseWriter, r *http.Request) (model.Identity, bool) {
	id, err := s.deps.Authenticate(r.Context(), s.credentials(r))
	if err != nil {
		writeMessage(w, http.StatusUnauthorized, kindMessages["unauthenticated"])
		return model.Identity{}, false
	}
	return id, true
}

// handleUserImages handles GET /api/user-images. Anonymous callers get an
// empty list.
func (s *Server) handleUserImages(w http.ResponseWriter, r *http.Request) {
	if !allowMethod(w, r, http.MethodGet) {
		return
	}
	id, err := s.deps.Authenticate(r.Context(), s.credentials(r))
	if err != nil {
		writeJSON(w, http.StatusOK, []imageResponse{})
		return
	}

	images, err := s.deps.ListImages(r.Context(), id)
	if err != nil {
		s.serverError(r.Context(), w, "Error al obtener imágenes.", err)
		return
	}
	out := make([]imageResponse, 0, len(images))
	for _, img := range images {
		out = append(out, imageResponse{ID: img.ID, URL: img.URL, CreatedAt: img.CreatedAt, DetectionResults: img.Detections})
	}
	writeJSON(w, http.StatusOK, out)
}

// handleUserProfile handles GET /api/user-profile.
func (s *Server) handleUserProfile(w http.ResponseWriter, r *http.Request) {
	if !allowMethod(w, r, http.MethodGet) {
		return
	}
	id, ok := s.session(w, r)
	if !ok {
		return
	}

	profile, err := s.deps.Profile(r.Context(), id)
	switch {
	case errors.Is(err, service.ErrNotFound):
		writeMessage(w, http.StatusNotFound, "Perfil de usuario no encontrado.")
	case err != nil:
		s.serverError(r.Context(), w, "Error al obtener el perfil.", err)
	default:
		writeJSON(w, http.StatusOK, profile)
	}
}

// handleSignUpload handles POST /api/sign-upload.
func (s *Server) handleSignUpload(w http.ResponseWriter, r *http.Request) {
	if !allowMethod(w, r, http.MethodPost) {
		return
	}
	id, ok := s.session(w, r)
	if !ok {
		return
	}

	signed, err := s.deps.SignUpload(r.Context(), id)
	switch {
	case errors.Is(err, service.ErrUnavailable):
		writeMessage(w, http.StatusServiceUnavailable, "La subida directa no está configurada.")
	case err != nil:
		s.serverError(r.Context(), w, "Error al preparar la subida.", err)
	default:
		writeJSON(w, http.StatusOK, signed)
	}
}

// handleSaveImageMeta handles POST /api/save-image-meta.
func (s *Server) handleSaveImageMeta(w http.ResponseWriter, r *http.Request) {
	if !allowMethod(w, r, http.MethodPost) {
		return
	}
	id, ok := s.session(w, r)
	if !ok {
		return
	}

	var req saveMetaRequest
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxMetaBody))
	if err := dec.Decode(&req); err != nil {
		writeMessage(w, http.StatusBadRequest, "Formato de datos inválido (se esperaba JSON).")
		return
	}

	_, err := s.deps.SaveImageMeta(r.Context(), id, req.ImageURL, req.DetectionResults)
	switch {
	case errors.Is(err, service.ErrInvalidInput):
		writeMessage(w, http.StatusBadRequest, "Datos inválidos.")
	case err != nil:
		s.serverError(r.Context(), w, "Error al guardar metadatos.", err)
	default:
		writeMessage(w, http.StatusOK, "Metadatos guardados exitosamente.")
	}
}

// handleUploaderScript handles GET /api/generate-python-script.
func (s *Server) handleUploaderScript(w http.ResponseWriter, r *http.Request) {
	if !allowMethod(w, r, http.MethodGet) {
		return
	}
	id, ok := s.session(w, r)
	if !ok {
		return
	}

	script, err := s.deps.IssueUploaderScript(r.Context(), id)
	if err != nil {
		s.serverError(r.Context(), w, "Error al generar el script de subida.", err)
		return
	}
	w.Header().Set("Content-Type", script.ContentType)
	w.Header().Set("Content-Disposition", `attachment; filename=`+strconv.Quote(script.Filename))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(script.Content)
}

func (s *Server) serverError(ctx context.Context, w http.ResponseWriter, msg string, err error) {
	s.log.Error(ctx, msg, logger.Error(err))
	writeMessage(w, http.StatusInternalServerError, msg)
}
