package api

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"

	service "github.com/okian/sudea/internal/app"
	"github.com/okian/sudea/internal/domain/detection"
	"github.com/okian/sudea/pkg/logger"
)

// Caller-facing messages per failure kind. They never include detector output.
var kindMessages = map[string]string{
	"unauthenticated":           "No autenticado.",
	"no_image":                  "No se recibió una imagen válida en el campo 'image'.",
	"storage_failure":           "No se pudo guardar la imagen temporalmente.",
	"detector_failure":          "Error durante la detección de IA. Revisa los logs del servidor.",
	"malformed_detector_output": "El detector devolvió una respuesta inválida. Revisa los logs del servidor.",
	"upload_failure":            "Error al subir la imagen al almacenamiento.",
	"persistence_failure":       "Error al guardar los metadatos de la imagen.",
}

const genericFailure = "Ocurrió un error procesando la imagen."

type detectResponse struct {
	Message    string                `json:"message"`
	ImageURL   string                `json:"imageUrl"`
	Detections []detection.Detection `json:"detections"`
}

// handleDetect handles POST /api/detect.
func (s *Server) handleDetect(w http.ResponseWriter, r *http.Request) {
	if !allowMethod(w, r, http.MethodPost) {
		return
	}
	r.Body = http.MaxBytesReader(w, r.Body, s.maxUploadBytes)

	res, err := s.deps.Submit(r.Context(), service.Submission{
		Credentials: s.credentials(r),
		Image:       multipartImage(r),
	})
	if err != nil {
		s.writeSubmitError(r.Context(), w, err)
		return
	}

	dets := res.Detections
	if dets == nil {
		dets = []detection.Detection{}
	}
	writeJSON(w, http.StatusOK, detectResponse{
		Message:    "Imagen procesada y guardada exitosamente.",
		ImageURL:   res.Image.URL,
		Detections: dets,
	})
}

func (s *Server) writeSubmitError(ctx context.Context, w http.ResponseWriter, err error) {
	kind := service.KindCode(err)
	switch {
	case errors.Is(err, service.ErrUnauthenticated):
		writeMessage(w, http.StatusUnauthorized, kindMessages[kind])
		return
	case errors.Is(err, service.ErrNoImage):
		writeMessage(w, http.StatusBadRequest, kindMessages[kind])
		return
	}

	msg, ok := kindMessages[kind]
	if !ok {
		msg = genericFailure
		s.log.Error(ctx, "unclassified submission error", logger.Error(err))
	}
	details := failureDetails{Kind: kind}
	var se *service.StageError
	if errors.As(err, &se) {
		details.Stage = string(se.Stage)
	}
	writeJSON(w, http.StatusInternalServerError, failureResponse{Message: msg, Details: details})
}

// multipartImage reads the "image" field lazily so that authentication runs
// before the body is consumed.
func multipartImage(r *http.Request) service.ImageSource {
	return func(context.Context) (service.Image, error) {
		if err := r.ParseMultipartForm(multipartMemory); err != nil {
			return service.Image{}, fmt.Errorf("%w: %w", ErrBadRequest, err)
		}
		f, hdr, err := r.FormFile("image")
		if err != nil {
			return service.Image{}, fmt.Errorf("%w: %w", ErrBadRequest, err)
		}
		defer func() { _ = f.Close() }()

		data, err := io.ReadAll(f)
		if err != nil {
			return service.Image{}, fmt.Errorf("%w: %w", ErrBadRequest, err)
		}
		return service.Image{Data: data, Filename: hdr.Filename}, nil
	}
}
