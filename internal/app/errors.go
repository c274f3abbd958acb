package service

import "errors"

// Sentinel kinds returned by the service; the HTTP layer maps them to
// status codes.
var (
	ErrNotStarted      = errors.New("service not started")
	ErrSessionNotFound = errors.New("session not found")
	ErrSessionFinished = errors.New("session already finished")
	ErrEventNotFound   = errors.New("event not found in session")
	ErrQueueFull       = errors.New("queue is full")
	ErrInvalidBatch    = errors.New("invalid batch")
	ErrBatchTooLarge   = errors.New("batch exceeds max events")
)
