package service

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"

	"github.com/okian/sudea/internal/adapters/archive"
	"github.com/okian/sudea/internal/adapters/auth"
	"github.com/okian/sudea/internal/adapters/scriptgen"
	"github.com/okian/sudea/internal/domain/model"
	"github.com/okian/sudea/pkg/logger"
	"github.com/okian/sudea/pkg/metrics"
)

// Profile is a user's account summary.
type Profile struct {
	ID             string `json:"id"`
	Name           string `json:"name"`
	Email          string `json:"email"`
	Image          string `json:"image"`
	TotalImages    int64  `json:"totalImages"`
	TotalAnomalies int64  `json:"totalAnomalies"`
}

// UploaderScript is a rendered folder-uploader ready for download.
type UploaderScript struct {
	Filename    string
	ContentType string
	Content     []byte
}

// Authenticate resolves an interactive caller. Script tokens are not accepted.
func (s *Service) Authenticate(ctx context.Context, creds auth.Credentials) (model.Identity, error) {
	id, ok := s.deps.InteractiveAuth.Resolve(ctx, creds)
	if !ok {
		return model.Identity{}, ErrUnauthenticated
	}
	return id, nil
}

// ListImages returns the caller's images, newest first.
func (s *Service) ListImages(ctx context.Context, id model.Identity) ([]model.StoredImage, error) {
	images, err := s.deps.Repository.ListByOwner(ctx, id.ID)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrPersistence, err)
	}
	return images, nil
}

// Profile returns the caller's account with image and anomaly totals.
func (s *Service) Profile(ctx context.Context, id model.Identity) (Profile, error) {
	user, ok, err := s.deps.Repository.FindUser(ctx, id.ID)
	if err != nil {
		return Profile{}, fmt.Errorf("%w: %w", ErrPersistence, err)
	}
	if !ok {
		return Profile{}, fmt.Errorf("%w: user %s", ErrNotFound, id.ID)
	}

	total, err := s.deps.Repository.CountByOwner(ctx, id.ID)
	if err != nil {
		return Profile{}, fmt.Errorf("%w: %w", ErrPersistence, err)
	}
	anomalies, err := s.deps.Repository.CountAnomalousByOwner(ctx, id.ID, s.anomalyLabel)
	if err != nil {
		return Profile{}, fmt.Errorf("%w: %w", ErrPersistence, err)
	}

	return Profile{
		ID:             user.ID,
		Name:           user.Name,
		Email:          user.Email,
		Image:          user.Image,
		TotalImages:    total,
		TotalAnomalies: anomalies,
	}, nil
}

// SignUpload issues a browser upload signature scoped to the caller's
// namespace.
func (s *Service) SignUpload(ctx context.Context, id model.Identity) (archive.SignedUpload, error) {
	if s.deps.Signer == nil {
		return archive.SignedUpload{}, fmt.Errorf("%w: upload signing is not configured", ErrUnavailable)
	}
	signed, err := s.deps.Signer.Sign(archive.Namespace(id.ID), s.now())
	if err != nil {
		if errors.Is(err, archive.ErrSigningDisabled) {
			return archive.SignedUpload{}, fmt.Errorf("%w: %w", ErrUnavailable, err)
		}
		return archive.SignedUpload{}, err
	}
	s.logger.Debug(ctx, "upload signed", logger.String("user_id", id.ID), logger.String("folder", signed.Folder))
	return signed, nil
}

// SaveImageMeta records an image the caller uploaded directly to storage.
// imageURL must be an absolute http(s) URL and results a non-empty string.
func (s *Service) SaveImageMeta(ctx context.Context, id model.Identity, imageURL, results string) (model.StoredImage, error) {
	if err := validateImageURL(imageURL); err != nil {
		return model.StoredImage{}, err
	}
	if strings.TrimSpace(results) == "" {
		return model.StoredImage{}, fmt.Errorf("%w: detectionResults is required", ErrInvalidInput)
	}

	stored, err := s.deps.Repository.Record(ctx, imageURL, results, id.ID)
	if err != nil {
		return model.StoredImage{}, fmt.Errorf("%w: %w", ErrPersistence, err)
	}
	return stored, nil
}

// IssueUploaderScript creates a script-scoped token for the caller and
// renders the uploader script around it.
func (s *Service) IssueUploaderScript(ctx context.Context, id model.Identity) (UploaderScript, error) {
	token, err := scriptgen.NewToken()
	if err != nil {
		return UploaderScript{}, err
	}
	if _, err := s.deps.Repository.CreateCredential(ctx, id.ID, token, true); err != nil {
		return UploaderScript{}, fmt.Errorf("%w: %w", ErrPersistence, err)
	}
	metrics.RecordTokenIssued()

	content, err := scriptgen.Render(scriptgen.Params{UploadURL: s.uploadURL, Token: token})
	if err != nil {
		return UploaderScript{}, err
	}
	s.logger.Info(ctx, "uploader script issued", logger.String("user_id", id.ID))
	return UploaderScript{
		Filename:    scriptgen.Filename(id.ID),
		ContentType: scriptgen.ContentType,
		Content:     content,
	}, nil
}

func validateImageURL(raw string) error {
	u, err := url.Parse(raw)
	if err != nil || !u.IsAbs() || u.Host == "" || (u.Scheme != "http" && u.Scheme != "https") {
		return fmt.Errorf("%w: imageUrl must be an absolute http(s) URL", ErrInvalidInput)
	}
	return nil
}
