// Package api wires the HTTP routes of the detection service.
package api

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/okian/sudea/internal/adapters/archive"
	"github.com/okian/sudea/internal/adapters/auth"
	service "github.com/okian/sudea/internal/app"
	"github.com/okian/sudea/internal/domain/model"
	"github.com/okian/sudea/pkg/logger"
)

const (
	defaultSessionCookie  = "sudea.session_token"
	defaultMaxUploadBytes = 20 << 20
	multipartMemory       = 8 << 20
)

// Dependencies required by HTTP handlers. Using an interface bundle keeps
// the handler layer loosely coupled to the service implementation.
type Dependencies interface {
	Submit(ctx context.Context, sub service.Submission) (service.Result, error)
	Authenticate(ctx context.Context, creds auth.Credentials) (model.Identity, error)
	ListImages(ctx context.Context, id model.Identity) ([]model.StoredImage, error)
	Profile(ctx context.Context, id model.Identity) (service.Profile, error)
	SignUpload(ctx context.Context, id model.Identity) (archive.SignedUpload, error)
	SaveImageMeta(ctx context.Context, id model.Identity, imageURL, results string) (model.StoredImage, error)
	IssueUploaderScript(ctx context.Context, id model.Identity) (service.UploaderScript, error)
}

// Server wires HTTP routes for the business API.
type Server struct {
	deps           Dependencies
	stats          StatsProvider
	sessionCookie  string
	maxUploadBytes int64
	log            logger.Logger
}

// Option configures a Server.
type Option func(*Server)

// WithSessionCookie sets the name of the interactive session cookie.
func WithSessionCookie(name string) Option {
	return func(s *Server) {
		if name != "" {
			s.sessionCookie = name
		}
	}
}

// WithMaxUploadBytes caps the request body of a submission.
func WithMaxUploadBytes(n int64) Option {
	return func(s *Server) {
		if n > 0 {
			s.maxUploadBytes = n
		}
	}
}

// WithLogger sets the handler logger.
func WithLogger(l logger.Logger) Option {
	return func(s *Server) {
		if l != nil {
			s.log = l
		}
	}
}

// NewServer creates a new API server.
func NewServer(deps Dependencies, stats StatsProvider, opts ...Option) *Server {
	s := &Server{
		deps:           deps,
		stats:          stats,
		sessionCookie:  defaultSessionCookie,
		maxUploadBytes: defaultMaxUploadBytes,
		log:            logger.NamedOrDiscard("api"),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Register attaches all HTTP routes to mux.
func (s *Server) Register(_ context.Context, mux *http.ServeMux) {
	mux.HandleFunc("/healthz", MetricsMiddleware(HandleHealth, "healthz"))
	mux.HandleFunc("/stats", MetricsMiddleware(NewStatsHandler(s.stats).HandleStats, "stats"))

	detect := MetricsMiddleware(s.handleDetect, "detect")
	mux.HandleFunc("/api/detect", detect)
	mux.HandleFunc("/api/detect-local-yolo", detect)

	sign := MetricsMiddleware(s.handleSignUpload, "sign_upload")
	mux.HandleFunc("/api/sign-upload", sign)
	mux.HandleFunc("/api/sign-cloudinary-upload", sign)

	mux.HandleFunc("/api/user-images", MetricsMiddleware(s.handleUserImages, "user_images"))
	mux.HandleFunc("/api/user-profile", MetricsMiddleware(s.handleUserProfile, "user_profile"))
	mux.HandleFunc("/api/save-image-meta", MetricsMiddleware(s.handleSaveImageMeta, "save_image_meta"))
	mux.HandleFunc("/api/generate-python-script", MetricsMiddleware(s.handleUploaderScript, "uploader_script"))
}

// credentials extracts the bearer header and session cookie of r.
func (s *Server) credentials(r *http.Request) auth.Credentials {
	creds := auth.Credentials{Authorization: r.Header.Get("Authorization")}
	if c, err := r.Cookie(s.sessionCookie); err == nil {
		creds.SessionToken = c.Value
	}
	return creds
}

type messageResponse struct {
	Message string `json:"message"`
}

type failureDetails struct {
	Kind  string `json:"kind"`
	Stage string `json:"stage,omitempty"`
}

type failureResponse struct {
	Message string         `json:"message"`
	Details failureDetails `json:"details"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeMessage(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, messageResponse{Message: msg})
}

func allowMethod(w http.ResponseWriter, r *http.Request, method string) bool {
	if r.Method == method {
		return true
	}
	w.Header().Set("Allow", method)
	writeMessage(w, http.StatusMethodNotAllowed, ErrNotAllowed.Error())
	return false
}
