package repository

import "time"

type userRow struct {
	ID        string `gorm:"primaryKey;type:varchar(64)"`
	Name      string
	Email     string `gorm:"index"`
	Image     string
	CreatedAt time.Time
}

func (userRow) TableName() string { return "users" }

type imageRow struct {
	ID               string    `gorm:"primaryKey;type:varchar(64)"`
	URL              string    `gorm:"not null"`
	DetectionResults string    `gorm:"type:text;not null"`
	UserID           string    `gorm:"type:varchar(64);index:idx_images_user_created,priority:1;not null"`
	CreatedAt        time.Time `gorm:"index:idx_images_user_created,priority:2"`
}

func (imageRow) TableName() string { return "images" }

type apiTokenRow struct {
	ID            string `gorm:"primaryKey;type:varchar(64)"`
	Token         string `gorm:"type:varchar(128);uniqueIndex;not null"`
	UserID        string `gorm:"type:varchar(64);index;not null"`
	IsScriptToken bool   `gorm:"not null;default:false"`
	CreatedAt     time.Time
}

func (apiTokenRow) TableName() string { return "api_tokens" }

type sessionRow struct {
	SessionToken string    `gorm:"primaryKey;type:varchar(255)"`
	UserID       string    `gorm:"type:varchar(64);index;not null"`
	Expires      time.Time `gorm:"index"`
}

func (sessionRow) TableName() string { return "sessions" }

// identityRow receives joined user columns.
type identityRow struct {
	ID    string
	Name  string
	Email string
}
