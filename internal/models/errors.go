package models

import (
	"errors"
	"fmt"
)

// Kind classifies failures so the workflow can decide between a re-prompt and a reset.
type Kind string

const (
	KindAuthentication    Kind = "authentication_failure"
	KindValidation        Kind = "validation_failure"
	KindGeofence          Kind = "geofence_mismatch"
	KindMetadataMissing   Kind = "metadata_missing"
	KindPhotoStale        Kind = "photo_stale"
	KindConversionFailed  Kind = "conversion_failed"
	KindUnsupportedFormat Kind = "unsupported_format"
	KindUpstream          Kind = "upstream_service_error"
	KindUnknown           Kind = "unknown_error"
)

// Error is a classified failure. Status and Body are filled for upstream responses.
type Error struct {
	Kind   Kind
	Op     string
	Status int
	Body   string
	Err    error
}

func (e *Error) Error() string {
	msg := string(e.Kind)
	if e.Op != "" {
		msg = e.Op + ": " + msg
	}
	if e.Status != 0 {
		msg += fmt.Sprintf(" (status %d)", e.Status)
	}
	if e.Body != "" {
		msg += ": " + e.Body
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Upstream builds an UpstreamServiceError from a non-2xx backend response.
func Upstream(op string, status int, body string) *Error {
	return &Error{Kind: KindUpstream, Op: op, Status: status, Body: body}
}

// UpstreamErr wraps a transport failure of a backend call.
func UpstreamErr(op string, err error) *Error {
	return &Error{Kind: KindUpstream, Op: op, Err: err}
}

// Validation reports input that does not satisfy the current step.
func Validation(op string, err error) *Error {
	return &Error{Kind: KindValidation, Op: op, Err: err}
}

// KindOf extracts the failure kind. Unclassified errors are KindUnknown.
func KindOf(err error) Kind {
	if err == nil {
		return ""
	}
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindUnknown
}
