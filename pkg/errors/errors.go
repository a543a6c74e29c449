package errors

import (
	"errors"
)

// Error types for domain errors
type ValidationError struct {
	Message string
}

func (e *ValidationError) Error() string {
	return e.Message
}

type NotFoundError struct {
	Message string
}

func (e *NotFoundError) Error() string {
	return e.Message
}

type UnauthorizedError struct {
	Message string
}

func (e *UnauthorizedError) Error() string {
	return e.Message
}

type PermissionError struct {
	Message string
}

func (e *PermissionError) Error() string {
	return e.Message
}

type UnavailableError struct {
	Message string
}

func (e *UnavailableError) Error() string {
	return e.Message
}

type DatabaseError struct {
	Message string
}

func (e *DatabaseError) Error() string {
	return e.Message
}

// Constructors
func NewValidationError(msg string) error {
	return &ValidationError{Message: msg}
}

func NewNotFoundError(msg string) error {
	return &NotFoundError{Message: msg}
}

func NewUnauthorizedError(msg string) error {
	return &UnauthorizedError{Message: msg}
}

func NewPermissionError(msg string) error {
	return &PermissionError{Message: msg}
}

func NewUnavailableError(msg string) error {
	return &UnavailableError{Message: msg}
}

func NewDatabaseError(msg string) error {
	return &DatabaseError{Message: msg}
}

// Type checks
func IsValidationError(err error) bool {
	var e *ValidationError
	return errors.As(err, &e)
}

func IsNotFoundError(err error) bool {
	var e *NotFoundError
	return errors.As(err, &e)
}

func IsUnauthorizedError(err error) bool {
	var e *UnauthorizedError
	return errors.As(err, &e)
}

func IsPermissionError(err error) bool {
	var e *PermissionError
	return errors.As(err, &e)
}

func IsUnavailableError(err error) bool {
	var e *UnavailableError
	return errors.As(err, &e)
}

func IsDatabaseError(err error) bool {
	var e *DatabaseError
	return errors.As(err, &e)
}

// IsPermanent reports whether err describes a structurally broken target
// rather than a passing condition. Permanent failures are terminal for the
// feeds involved; everything else is retried implicitly by the next event.
func IsPermanent(err error) bool {
	if err == nil {
		return false
	}
	return IsNotFoundError(err) || IsPermissionError(err)
}
