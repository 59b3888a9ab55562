package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/okian/sudea/internal/domain/detection"
	"github.com/okian/sudea/internal/domain/model"
	"github.com/okian/sudea/pkg/logger"
	"github.com/okian/sudea/pkg/metrics"
)

// Driver identifiers.
const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

const (
	defaultSlowQuery = 200 * time.Millisecond
	sqliteBusyMillis = 5000
)

// Config selects the SQL driver and connection string.
type Config struct {
	Driver string
	DSN    string
}

// GormStore implements Store on top of gorm.
type GormStore struct {
	db        *gorm.DB
	log       logger.Logger
	now       func() time.Time
	slowQuery time.Duration
}

var _ Store = (*GormStore)(nil)

// Open connects to the configured database. Call Migrate before first use.
func Open(ctx context.Context, cfg Config, opts ...Option) (*GormStore, error) {
	var dialector gorm.Dialector
	switch cfg.Driver {
	case DriverSQLite:
		dialector = sqlite.Open(cfg.DSN)
	case DriverPostgres:
		dialector = postgres.Open(cfg.DSN)
	default:
		return nil, fmt.Errorf("%w: unsupported driver %q", ErrInvalidConfig, cfg.Driver)
	}
	if cfg.DSN == "" {
		return nil, fmt.Errorf("%w: dsn is empty", ErrInvalidConfig)
	}

	s := &GormStore{
		log:       logger.NamedOrDiscard("repository"),
		now:       time.Now,
		slowQuery: defaultSlowQuery,
	}
	for _, opt := range opts {
		opt(s)
	}

	db, err := gorm.Open(dialector, &gorm.Config{
		Logger:  newSQLLogger(s.log, s.slowQuery),
		NowFunc: func() time.Time { return s.now().UTC() },
	})
	if err != nil {
		return nil, fmt.Errorf("%w: open %s: %w", ErrPersistence, cfg.Driver, err)
	}
	if cfg.Driver == DriverSQLite {
		if err := db.WithContext(ctx).Exec(fmt.Sprintf("PRAGMA busy_timeout = %d", sqliteBusyMillis)).Error; err != nil {
			return nil, fmt.Errorf("%w: sqlite pragma: %w", ErrPersistence, err)
		}
	}
	s.db = db
	return s, nil
}

// Migrate creates or updates all tables.
func (s *GormStore) Migrate(ctx context.Context) error {
	if err := s.db.WithContext(ctx).AutoMigrate(&userRow{}, &imageRow{}, &apiTokenRow{}, &sessionRow{}); err != nil {
		return fmt.Errorf("%w: migrate: %w", ErrPersistence, err)
	}
	return nil
}

// Close releases the connection pool.
func (s *GormStore) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// Ping checks connectivity.
func (s *GormStore) Ping(ctx context.Context) error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

// Record implements Store.
func (s *GormStore) Record(ctx context.Context, url, serializedDetections, ownerID string) (model.StoredImage, error) {
	row := imageRow{
		ID:               uuid.NewString(),
		URL:              url,
		DetectionResults: serializedDetections,
		UserID:           ownerID,
		CreatedAt:        s.now().UTC(),
	}
	if err := s.db.WithContext(ctx).Create(&row).Error; err != nil {
		return model.StoredImage{}, fmt.Errorf("%w: record image: %w", ErrPersistence, err)
	}
	metrics.RecordStoredImage()
	return toStoredImage(row), nil
}

// ListByOwner implements Store.
func (s *GormStore) ListByOwner(ctx context.Context, ownerID string) ([]model.StoredImage, error) {
	var rows []imageRow
	err := s.db.WithContext(ctx).
		Where("user_id = ?", ownerID).
		Order("created_at DESC").
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("%w: list images: %w", ErrPersistence, err)
	}
	out := make([]model.StoredImage, 0, len(rows))
	for _, r := range rows {
		out = append(out, toStoredImage(r))
	}
	return out, nil
}

// CountByOwner implements Store.
func (s *GormStore) CountByOwner(ctx context.Context, ownerID string) (int64, error) {
	var n int64
	if err := s.db.WithContext(ctx).Model(&imageRow{}).Where("user_id = ?", ownerID).Count(&n).Error; err != nil {
		return 0, fmt.Errorf("%w: count images: %w", ErrPersistence, err)
	}
	return n, nil
}

// CountAnomalousByOwner implements Store. Rows whose detection list cannot be
// decoded are not counted.
func (s *GormStore) CountAnomalousByOwner(ctx context.Context, ownerID, label string) (int64, error) {
	var lists []string
	err := s.db.WithContext(ctx).Model(&imageRow{}).
		Where("user_id = ?", ownerID).
		Pluck("detection_results", &lists).Error
	if err != nil {
		return 0, fmt.Errorf("%w: count anomalies: %w", ErrPersistence, err)
	}
	var n int64
	for _, l := range lists {
		if detection.IsAnomalous(l, label) {
			n++
		}
	}
	return n, nil
}

// FindScriptCredential implements Store. Tokens that are not script-scoped or
// whose owner no longer exists are not found.
func (s *GormStore) FindScriptCredential(ctx context.Context, token string) (model.Identity, bool, error) {
	if token == "" {
		return model.Identity{}, false, nil
	}
	var rows []identityRow
	err := s.db.WithContext(ctx).Table("api_tokens").
		Select("users.id AS id, users.name AS name, users.email AS email").
		Joins("JOIN users ON users.id = api_tokens.user_id").
		Where("api_tokens.token = ? AND api_tokens.is_script_token = ?", token, true).
		Limit(1).
		Find(&rows).Error
	if err != nil {
		return model.Identity{}, false, fmt.Errorf("%w: find credential: %w", ErrPersistence, err)
	}
	if len(rows) == 0 {
		return model.Identity{}, false, nil
	}
	return model.Identity(rows[0]), true, nil
}

// CreateCredential implements Store.
func (s *GormStore) CreateCredential(ctx context.Context, ownerID, token string, scriptScoped bool) (model.ApiCredential, error) {
	if _, ok, err := s.FindUser(ctx, ownerID); err != nil {
		return model.ApiCredential{}, err
	} else if !ok {
		return model.ApiCredential{}, fmt.Errorf("%w: %w: %s", ErrPersistence, ErrUnknownOwner, ownerID)
	}
	row := apiTokenRow{
		ID:            uuid.NewString(),
		Token:         token,
		UserID:        ownerID,
		IsScriptToken: scriptScoped,
		CreatedAt:     s.now().UTC(),
	}
	if err := s.db.WithContext(ctx).Create(&row).Error; err != nil {
		return model.ApiCredential{}, fmt.Errorf("%w: create credential: %w", ErrPersistence, err)
	}
	return model.ApiCredential{
		ID:           row.ID,
		Token:        row.Token,
		OwnerID:      row.UserID,
		ScriptScoped: row.IsScriptToken,
		CreatedAt:    row.CreatedAt,
	}, nil
}

// FindUser implements Store.
func (s *GormStore) FindUser(ctx context.Context, id string) (model.User, bool, error) {
	var rows []userRow
	if err := s.db.WithContext(ctx).Where("id = ?", id).Limit(1).Find(&rows).Error; err != nil {
		return model.User{}, false, fmt.Errorf("%w: find user: %w", ErrPersistence, err)
	}
	if len(rows) == 0 {
		return model.User{}, false, nil
	}
	r := rows[0]
	return model.User{ID: r.ID, Name: r.Name, Email: r.Email, Image: r.Image}, true, nil
}

// SaveUser implements Store.
func (s *GormStore) SaveUser(ctx context.Context, u model.User) error {
	row := userRow{ID: u.ID, Name: u.Name, Email: u.Email, Image: u.Image, CreatedAt: s.now().UTC()}
	if err := s.db.WithContext(ctx).Save(&row).Error; err != nil {
		return fmt.Errorf("%w: save user: %w", ErrPersistence, err)
	}
	return nil
}

// CreateSession implements Store.
func (s *GormStore) CreateSession(ctx context.Context, token, userID string, expires time.Time) error {
	row := sessionRow{SessionToken: token, UserID: userID, Expires: expires.UTC()}
	if err := s.db.WithContext(ctx).Create(&row).Error; err != nil {
		return fmt.Errorf("%w: create session: %w", ErrPersistence, err)
	}
	return nil
}

// FindSession implements Store.
func (s *GormStore) FindSession(ctx context.Context, token string) (model.Identity, bool, error) {
	if token == "" {
		return model.Identity{}, false, nil
	}
	var rows []identityRow
	err := s.db.WithContext(ctx).Table("sessions").
		Select("users.id AS id, users.name AS name, users.email AS email").
		Joins("JOIN users ON users.id = sessions.user_id").
		Where("sessions.session_token = ? AND sessions.expires > ?", token, s.now().UTC()).
		Limit(1).
		Find(&rows).Error
	if err != nil {
		return model.Identity{}, false, fmt.Errorf("%w: find session: %w", ErrPersistence, err)
	}
	if len(rows) == 0 {
		return model.Identity{}, false, nil
	}
	return model.Identity(rows[0]), true, nil
}

func toStoredImage(r imageRow) model.StoredImage {
	return model.StoredImage{
		ID:         r.ID,
		URL:        r.URL,
		CreatedAt:  r.CreatedAt,
		OwnerID:    r.UserID,
		Detections: r.DetectionResults,
	}
}
