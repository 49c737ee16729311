package models

import (
	"errors"
	"fmt"
	"time"
)

var (
	ErrNotFound        = errors.New("not_found")
	ErrUnauthorized    = errors.New("unauthorized")
	ErrAlreadyResolved = errors.New("already_resolved")
	ErrExpired         = errors.New("expired")
	ErrConflict        = errors.New("conflict")
	ErrInvalidArgument = errors.New("invalid_argument")
	ErrSessionInactive = errors.New("session_inactive")
	ErrPenalized       = errors.New("penalized")
)

// InvalidArgumentError names the offending field
type InvalidArgumentError struct {
	Field  string
	Reason string
}

func (e *InvalidArgumentError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

func (e *InvalidArgumentError) Unwrap() error { return ErrInvalidArgument }

// NewInvalidArgument builds an InvalidArgumentError
func NewInvalidArgument(field, reason string) error {
	return &InvalidArgumentError{Field: field, Reason: reason}
}

// PenaltyError carries the time a penalty lifts
type PenaltyError struct {
	Until time.Time
}

func (e *PenaltyError) Error() string {
	return "penalized until " + e.Until.UTC().Format(time.RFC3339)
}

func (e *PenaltyError) Unwrap() error { return ErrPenalized }
