package errors

import (
	stderrors "errors"
	"fmt"
)

type ErrorKind string

const (
	ErrFlatten    ErrorKind = "flatten"
	ErrStore      ErrorKind = "store"
	ErrPacking    ErrorKind = "packing_degenerate"
	ErrEncode     ErrorKind = "encode"
	ErrTransport  ErrorKind = "transport"
	ErrConnection ErrorKind = "connection"
	ErrDevice     ErrorKind = "device"
	ErrConfig     ErrorKind = "config"
	ErrNotFound   ErrorKind = "not_found"
)

type Error struct {
	Kind    ErrorKind
	Message string
	Device  string
	Cause   error
}

func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	base := fmt.Sprintf("%s: %s", e.Kind, e.Message)
	if e.Device != "" {
		base = fmt.Sprintf("%s (device=%s)", base, e.Device)
	}
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", base, e.Cause)
	}
	return base
}

func (e *Error) Unwrap() error {
	return e.Cause
}

func Wrap(kind ErrorKind, msg string, cause error) *Error {
	return &Error{Kind: kind, Message: msg, Cause: cause}
}

func New(kind ErrorKind, msg string) *Error {
	return &Error{Kind: kind, Message: msg}
}

// FlattenError reports a record that could not be flattened. The record is
// dropped as a whole.
func FlattenError(msg string) *Error {
	return &Error{Kind: ErrFlatten, Message: msg}
}

func StoreError(msg string, cause error) *Error {
	return &Error{Kind: ErrStore, Message: msg, Cause: cause}
}

func PackingDegenerate(device string, size, limit int) *Error {
	return &Error{
		Kind:    ErrPacking,
		Message: fmt.Sprintf("single record encodes to %d bytes, limit is %d", size, limit),
		Device:  device,
	}
}

func TransportError(msg string, cause error) *Error {
	return &Error{Kind: ErrTransport, Message: msg, Cause: cause}
}

// ConnectionError marks a transport failure where the link itself is gone,
// as opposed to a rejected message.
func ConnectionError(msg string, cause error) *Error {
	return &Error{Kind: ErrConnection, Message: msg, Cause: cause}
}

func DeviceError(device, msg string, cause error) *Error {
	return &Error{Kind: ErrDevice, Message: msg, Device: device, Cause: cause}
}

func ConfigError(msg string) *Error {
	return &Error{Kind: ErrConfig, Message: msg}
}

func NotFoundError(what string) *Error {
	return &Error{Kind: ErrNotFound, Message: fmt.Sprintf("not found: %s", what)}
}

func IsKind(err error, kind ErrorKind) bool {
	var e *Error
	if stderrors.As(err, &e) {
		return e.Kind == kind
	}
	return false
}

// IsTransport reports whether err is a send failure of either flavour.
func IsTransport(err error) bool {
	return IsKind(err, ErrTransport) || IsKind(err, ErrConnection)
}
