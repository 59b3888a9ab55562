package repository

import "errors"

// Sentinel kinds for repository errors.
var (
	ErrPersistence   = errors.New("persistence failed")
	ErrInvalidConfig = errors.New("invalid database config")
	ErrUnknownOwner  = errors.New("unknown owner")
)
