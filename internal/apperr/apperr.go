// Package apperr defines the error kinds surfaced to visitors and admins.
// Every kind is recoverable: callers report the message and return to the
// state they were in before the operation.
package apperr

import (
	"errors"
	"fmt"
)

// Code is the stable wire name of an error kind.
type Code string

const (
	CodeValidation       Code = "validation"
	CodeCapacityReached  Code = "capacity_reached"
	CodeDuplicate        Code = "duplicate_registrant"
	CodeNotRegistered    Code = "not_registered"
	CodeTransport        Code = "transport"
	CodeImageTooLarge    Code = "image_too_large"
	CodeUnsupportedImage Code = "unsupported_image_type"
	CodeNotFound         Code = "not_found"
	CodeForbidden        Code = "forbidden"
)

var (
	ErrValidation           = errors.New("validation failed")
	ErrCapacityReached      = errors.New("event is full")
	ErrDuplicateRegistrant  = errors.New("player already registered")
	ErrNotRegistered        = errors.New("player is not registered")
	ErrTransport            = errors.New("storage call failed")
	ErrImageTooLarge        = errors.New("image exceeds 3 MiB")
	ErrUnsupportedImageType = errors.New("unsupported image type")
	ErrNotFound             = errors.New("not found")
	ErrForbidden            = errors.New("admin session required")
)

// ValidationError names the first field that failed validation.
type ValidationError struct {
	Field string
	Msg   string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Msg
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Msg)
}

func (e *ValidationError) Is(target error) bool {
	return target == ErrValidation
}

// Invalid builds a ValidationError for field.
func Invalid(field, msg string) error {
	return &ValidationError{Field: field, Msg: msg}
}

// TransportError wraps a failed or non-ok storage/network call.
type TransportError struct {
	Op     string
	Status int
	Err    error
}

func (e *TransportError) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("%s: status %d: %v", e.Op, e.Status, e.Err)
	}
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

func (e *TransportError) Is(target error) bool {
	return target == ErrTransport
}

// CodeOf maps err onto its wire code. Unknown errors are transport errors.
func CodeOf(err error) Code {
	switch {
	case errors.Is(err, ErrValidation):
		return CodeValidation
	case errors.Is(err, ErrCapacityReached):
		return CodeCapacityReached
	case errors.Is(err, ErrDuplicateRegistrant):
		return CodeDuplicate
	case errors.Is(err, ErrNotRegistered):
		return CodeNotRegistered
	case errors.Is(err, ErrImageTooLarge):
		return CodeImageTooLarge
	case errors.Is(err, ErrUnsupportedImageType):
		return CodeUnsupportedImage
	case errors.Is(err, ErrNotFound):
		return CodeNotFound
	case errors.Is(err, ErrForbidden):
		return CodeForbidden
	default:
		return CodeTransport
	}
}

// FromCode rebuilds a domain error received over the wire.
func FromCode(code Code, msg string) error {
	switch code {
	case CodeValidation:
		return &ValidationError{Msg: msg}
	case CodeCapacityReached:
		return ErrCapacityReached
	case CodeDuplicate:
		return ErrDuplicateRegistrant
	case CodeNotRegistered:
		return ErrNotRegistered
	case CodeImageTooLarge:
		return ErrImageTooLarge
	case CodeUnsupportedImage:
		return ErrUnsupportedImageType
	case CodeNotFound:
		return ErrNotFound
	case CodeForbidden:
		return ErrForbidden
	default:
		return nil
	}
}

// UserMessage returns the text shown next to the form or in a notification.
func UserMessage(err error) string {
	var ve *ValidationError
	if errors.As(err, &ve) {
		return ve.Error()
	}
	switch CodeOf(err) {
	case CodeCapacityReached:
		return "Registration is closed: the player cap has been reached."
	case CodeDuplicate:
		return "This Neuron ID is already registered for the event."
	case CodeNotRegistered:
		return "No registration found for this Neuron ID."
	case CodeImageTooLarge:
		return "The image is too large (max 3 MiB)."
	case CodeUnsupportedImage:
		return "Only PNG, JPEG, GIF or WebP images are accepted."
	case CodeNotFound:
		return "Event not found."
	case CodeForbidden:
		return "Admin login required."
	default:
		return "The service is unavailable right now. Please try again."
	}
}
