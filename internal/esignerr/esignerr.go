// Package esignerr defines the error kinds used across the esign service so
// that HTTP handlers and task workers can classify a failure without string
// matching.
package esignerr

import (
	"errors"
	"fmt"
)

// Kind classifies an error for the purposes of HTTP status mapping and task
// retry behavior.
type Kind int

const (
	// Unknown is the zero value; treated as an UnexpectedError by tasks and
	// a 500 by the HTTP layer.
	Unknown Kind = iota
	// InvalidInput marks a caller mistake: malformed request, bad field
	// value, unknown template variable.
	InvalidInput
	// AuthFailure marks a failed authentication or authorization check.
	AuthFailure
	// Expired marks an expired signing link, file URL, or session.
	Expired
	// NotFound marks a missing template, envelope, recipient, or file.
	NotFound
	// StorageError marks a database or file storage failure.
	StorageError
	// PdfError marks a failure to parse or rewrite a PDF document.
	PdfError
	// UnsupportedImage marks an image the overlay renderer cannot encode.
	UnsupportedImage
	// SignatureTooLarge marks a CAdES signature that overran its reserved
	// byte-range slot.
	SignatureTooLarge
	// TsaFailure marks a failed round trip to the timestamp authority.
	TsaFailure
	// HsmFailure marks a failed PKCS#11 session or signing operation.
	HsmFailure
)

func (k Kind) String() string {
	switch k {
	case InvalidInput:
		return "invalid_input"
	case AuthFailure:
		return "auth_failure"
	case Expired:
		return "expired"
	case NotFound:
		return "not_found"
	case StorageError:
		return "storage_error"
	case PdfError:
		return "pdf_error"
	case UnsupportedImage:
		return "unsupported_image"
	case SignatureTooLarge:
		return "signature_too_large"
	case TsaFailure:
		return "tsa_failure"
	case HsmFailure:
		return "hsm_failure"
	default:
		return "unknown"
	}
}

// Error wraps an underlying error with an operation name and a Kind.
type Error struct {
	Kind Kind
	Op   string
	Err  error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s: %s", e.Op, e.Kind)
	}
	return fmt.Sprintf("%s: %s: %v", e.Op, e.Kind, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// New builds an *Error for op that wraps err under kind. Returns nil if err
// is nil, so it is safe to use as `return esignerr.New(..., err)` in a
// typical error-check block.
func New(kind Kind, op string, err error) error {
	if err == nil {
		return nil
	}
	return &Error{Kind: kind, Op: op, Err: err}
}

// Errorf is like New but builds the wrapped error from a format string.
func Errorf(kind Kind, op, format string, args ...any) error {
	return &Error{Kind: kind, Op: op, Err: fmt.Errorf(format, args...)}
}

// KindOf extracts the Kind of err, walking the unwrap chain. Returns Unknown
// if err is nil or does not wrap an *Error.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return Unknown
}
