// Package model contains domain models passed between layers.
package model

import "time"

// Identity is an authenticated caller. Name and Email are optional.
type Identity struct {
	ID    string
	Name  string
	Email string
}

// User is a registered account.
type User struct {
	ID    string
	Name  string
	Email string
	Image string // avatar URL
}

// Identity returns the caller identity for the user.
func (u User) Identity() Identity {
	return Identity{ID: u.ID, Name: u.Name, Email: u.Email}
}

// StoredImage is a processed image archived remotely. Detections holds the
// serialized detection list exactly as persisted.
type StoredImage struct {
	ID         string
	URL        string
	CreatedAt  time.Time
	OwnerID    string
	Detections string
}

// ApiCredential is a bearer token owned by a user. ScriptScoped tokens are
// only accepted by the submission pipeline.
type ApiCredential struct {
	ID           string
	Token        string
	OwnerID      string
	ScriptScoped bool
	CreatedAt    time.Time
}

// Notification is a rendered email waiting for delivery.
type Notification struct {
	ID       string
	To       []string
	Subject  string
	HTMLBody string
	QueuedAt time.Time
}
