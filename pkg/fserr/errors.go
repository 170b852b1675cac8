// Package fserr defines the error taxonomy shared by every fsbridge
// component and the wire protocol.
//
// Components return *Error values carrying a Code. Protocol handlers map
// the Code onto the reply for the operation; anything that is not an
// *Error is reported as INTERNAL.
//
// Usage Pattern:
//
//	page, err := lister.List(path, offset)
//	if err != nil {
//	    switch fserr.CodeOf(err) {
//	    case fserr.AccessDenied:
//	        // sandbox violation
//	    }
//	}
package fserr

import (
	"errors"
	"fmt"
)

// Code is a stable, wire-visible error identifier.
type Code string

const (
	// PathNotFound: the path does not exist or is not of the expected kind.
	PathNotFound Code = "PATH_NOT_FOUND"

	// AccessDenied: the path resolves outside every configured mount.
	AccessDenied Code = "ACCESS_DENIED"

	// PermissionDenied: the OS refused the read.
	PermissionDenied Code = "PERMISSION_DENIED"

	// PatternTooBroad: a wildcard pattern has fewer than three literal characters.
	PatternTooBroad Code = "PATTERN_TOO_BROAD"

	// MountNotFound: no mount carries the requested label.
	MountNotFound Code = "MOUNT_NOT_FOUND"

	UploadDestOutsideMounts Code = "UPLOAD_DEST_OUTSIDE_MOUNTS"
	UploadSizeMismatch      Code = "UPLOAD_SIZE_MISMATCH"
	UploadIOError           Code = "UPLOAD_IO_ERROR"

	// UploadBusy: a start request arrived while another upload is active.
	UploadBusy Code = "UPLOAD_BUSY"

	// UploadNotActive: a chunk or finish request arrived with no active upload.
	UploadNotActive Code = "UPLOAD_NOT_ACTIVE"

	// RateLimited: the peer exceeded its request rate.
	RateLimited Code = "RATE_LIMITED"

	InvalidArgument  Code = "INVALID_ARGUMENT"
	UnknownOperation Code = "UNKNOWN_OPERATION"
	LabelsError      Code = "LABELS_ERROR"
	Internal         Code = "INTERNAL"
)

// Error is an error tagged with a Code.
type Error struct {
	Code    Code
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil && e.Message == "" {
		return e.Err.Error()
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches any *Error target with the same Code, so callers can write
// errors.Is(err, &fserr.Error{Code: fserr.AccessDenied}).
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Code == e.Code
}

// New returns an *Error with a formatted message.
func New(code Code, format string, args ...any) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

// Wrap tags err with code. A nil err yields nil.
func Wrap(code Code, err error, format string, args ...any) error {
	if err == nil {
		return nil
	}
	return &Error{Code: code, Message: fmt.Sprintf(format, args...), Err: err}
}

// CodeOf returns the Code carried by err, or Internal if err is not an
// *Error. A nil err has no code.
func CodeOf(err error) Code {
	if err == nil {
		return ""
	}
	var fe *Error
	if errors.As(err, &fe) {
		return fe.Code
	}
	return Internal
}

// MessageOf returns the human-readable message of err without the code.
func MessageOf(err error) string {
	if err == nil {
		return ""
	}
	var fe *Error
	if errors.As(err, &fe) {
		return fe.Error()
	}
	return err.Error()
}
