package queue

import "errors"

// Reasons an enqueue is refused.
var (
	ErrClosed = errors.New("outbox closed")
	ErrFull   = errors.New("outbox full")
)
