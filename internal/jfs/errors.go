package jfs

import (
	"errors"
	"fmt"
)

// ErrUnexpectedEOF is returned when the document ends before a
// recognized root element, or mid-element.
var ErrUnexpectedEOF = errors.New("jfs: unexpected end of document")

// ErrNotADirectory is returned by List when the path names a file.
var ErrNotADirectory = errors.New("jfs: not a directory")

// UnexpectedTagError reports a child tag outside the closed schema.
// Schema drift from the backend should fail loudly, not be dropped.
type UnexpectedTagError struct {
	Tag string
}

func (e *UnexpectedTagError) Error() string {
	return fmt.Sprintf("jfs: unexpected tag while parsing XML: %s", e.Tag)
}

// InvalidTimestampError reports a timestamp that does not match the
// backend's fixed format. It carries the offending text.
type InvalidTimestampError struct {
	Value string
	Err   error
}

func (e *InvalidTimestampError) Error() string {
	return fmt.Sprintf("jfs: invalid timestamp %q", e.Value)
}

func (e *InvalidTimestampError) Unwrap() error { return e.Err }

// UnexpectedContentTypeError reports a backend response whose declared
// content type is neither text/xml nor application/xml.
type UnexpectedContentTypeError struct {
	ContentType string
}

func (e *UnexpectedContentTypeError) Error() string {
	return fmt.Sprintf("jfs: expected XML content type, got %q", e.ContentType)
}

// BackendError is a structured failure response decoded from an
// <error> document. It is the only error kind callers are expected to
// branch on by code.
type BackendError struct {
	Code    int
	Message string
	Reason  string
}

func (e *BackendError) Error() string {
	return fmt.Sprintf("jfs: backend error %d %s: %s", e.Code, e.Reason, e.Message)
}

// IsNotFound reports whether err is a backend 404.
func IsNotFound(err error) bool {
	var be *BackendError
	return errors.As(err, &be) && be.Code == 404
}
