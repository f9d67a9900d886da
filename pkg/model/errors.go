package model

import (
	"errors"
	"fmt"
)

// ErrMissingFrame matches any MissingFrameError via errors.Is.
var ErrMissingFrame = errors.New("missing detection data")

// ErrNoData is returned by statistics that are undefined on an empty input.
var ErrNoData = errors.New("no data")

// ConfigError reports an invalid simulation setting. It is fatal for a run.
type ConfigError struct {
	Field   string
	Message string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("invalid config %s: %s", e.Field, e.Message)
}

// MissingFrameError is returned when the detection source has no entry for a
// frame the scheduler needs. It is fatal for a run and never retried.
type MissingFrameError struct {
	FrameID string
}

func (e *MissingFrameError) Error() string {
	return fmt.Sprintf("no detection data for frame %s", e.FrameID)
}

// Is makes errors.Is(err, ErrMissingFrame) match.
func (e *MissingFrameError) Is(target error) bool {
	return target == ErrMissingFrame
}

// ErrorCode represents a structured API error code.
type ErrorCode string

const (
	ErrValidation ErrorCode = "VALIDATION_ERROR"
	ErrNotFound   ErrorCode = "NOT_FOUND"
	ErrInternal   ErrorCode = "INTERNAL_ERROR"
)

// APIError is a structured error returned by the results API.
type APIError struct {
	Code    ErrorCode `json:"code"`
	Message string    `json:"message"`
}

func (e *APIError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// NewValidationError creates a VALIDATION_ERROR APIError.
func NewValidationError(msg string) *APIError {
	return &APIError{Code: ErrValidation, Message: msg}
}

// NewNotFoundError creates a NOT_FOUND APIError.
func NewNotFoundError(resource, id string) *APIError {
	return &APIError{
		Code:    ErrNotFound,
		Message: fmt.Sprintf("%s '%s' not found", resource, id),
	}
}
