package notify

import "errors"

var (
	// ErrRender indicates the alert body could not be produced.
	ErrRender = errors.New("render notification")
	// ErrDelivery indicates the notification was not handed off or sent.
	ErrDelivery = errors.New("deliver notification")
	// ErrInvalidConfig indicates unusable SMTP settings.
	ErrInvalidConfig = errors.New("invalid notify config")
)
