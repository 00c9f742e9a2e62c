package core

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
)

// Kind classifies a failure so callers can decide how to react to it.
type Kind int

const (
	KindOther Kind = iota
	KindValidation
	KindNotFound
	KindConflict
	KindTransient
	KindCancelled
)

func (k Kind) String() string {
	switch k {
	case KindValidation:
		return "validation"
	case KindNotFound:
		return "not found"
	case KindConflict:
		return "conflict"
	case KindTransient:
		return "transient"
	case KindCancelled:
		return "cancelled"
	default:
		return "other"
	}
}

var (
	ErrValidation = errors.New("invalid argument")
	ErrNotFound   = errors.New("resource not found")
	ErrConflict   = errors.New("resource conflict")
	ErrTransient  = errors.New("transient failure")
	ErrCancelled  = errors.New("operation cancelled")
)

// Error is a classified failure. Op names the remote or local operation that failed.
type Error struct {
	Kind       Kind
	Op         string
	StatusCode int
	Err        error
}

func (e *Error) Error() string {
	var sb strings.Builder
	if e.Op != "" {
		sb.WriteString(fmt.Sprintf("%s: ", e.Op))
	}
	if e.StatusCode != 0 {
		sb.WriteString(fmt.Sprintf("status=%d, ", e.StatusCode))
	}
	if e.Err != nil {
		sb.WriteString(e.Err.Error())
	} else {
		sb.WriteString(e.Kind.String())
	}
	return strings.TrimSuffix(sb.String(), ", ")
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is makes errors.Is(err, ErrNotFound) and friends work for classified errors.
func (e *Error) Is(target error) bool {
	switch target {
	case ErrValidation:
		return e.Kind == KindValidation
	case ErrNotFound:
		return e.Kind == KindNotFound
	case ErrConflict:
		return e.Kind == KindConflict
	case ErrTransient:
		return e.Kind == KindTransient
	case ErrCancelled:
		return e.Kind == KindCancelled
	}
	return false
}

func newError(kind Kind, op string, err error) *Error {
	return &Error{Kind: kind, Op: op, Err: err}
}

// Validation returns a validation error. Validation errors are raised before any remote call.
func Validation(op, format string, args ...any) error {
	return newError(KindValidation, op, fmt.Errorf(format, args...))
}

func NotFound(op string, err error) error {
	return newError(KindNotFound, op, err)
}

func Conflict(op string, err error) error {
	return newError(KindConflict, op, err)
}

func Transient(op string, err error) error {
	return newError(KindTransient, op, err)
}

func Cancelled(op string, err error) error {
	return newError(KindCancelled, op, err)
}

func Other(op string, err error) error {
	return newError(KindOther, op, err)
}

// FromStatus classifies a failed HTTP exchange by its status code.
func FromStatus(op string, statusCode int, err error) error {
	var kind Kind
	switch {
	case statusCode == http.StatusNotFound:
		kind = KindNotFound
	case statusCode == http.StatusConflict, statusCode == http.StatusPreconditionFailed:
		kind = KindConflict
	case statusCode == http.StatusTooManyRequests, statusCode >= http.StatusInternalServerError:
		kind = KindTransient
	default:
		kind = KindOther
	}
	return &Error{Kind: kind, Op: op, StatusCode: statusCode, Err: err}
}

// KindOf returns the classification of err. Context cancellation is reported as KindCancelled
// even when it was not wrapped into an *Error.
func KindOf(err error) Kind {
	if err == nil {
		return KindOther
	}
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	if errors.Is(err, context.Canceled) {
		return KindCancelled
	}
	return KindOther
}

func IsNotFound(err error) bool {
	return err != nil && KindOf(err) == KindNotFound
}

func IsTransient(err error) bool {
	return err != nil && KindOf(err) == KindTransient
}

func IsValidation(err error) bool {
	return err != nil && KindOf(err) == KindValidation
}
