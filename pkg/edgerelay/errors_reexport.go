package edgerelay

import rerrors "github.com/nonibytes/edgerelay/edgerelay/errors"

// Re-export error types and functions for library callers
type Error = rerrors.Error
type ErrorKind = rerrors.ErrorKind

const (
	ErrFlatten    = rerrors.ErrFlatten
	ErrStore      = rerrors.ErrStore
	ErrPacking    = rerrors.ErrPacking
	ErrEncode     = rerrors.ErrEncode
	ErrTransport  = rerrors.ErrTransport
	ErrConnection = rerrors.ErrConnection
	ErrDevice     = rerrors.ErrDevice
	ErrConfig     = rerrors.ErrConfig
	ErrNotFound   = rerrors.ErrNotFound
)

func NewError(kind ErrorKind, msg string) *Error          { return rerrors.New(kind, msg) }
func Wrap(kind ErrorKind, msg string, cause error) *Error { return rerrors.Wrap(kind, msg, cause) }
func IsKind(err error, kind ErrorKind) bool               { return rerrors.IsKind(err, kind) }
func NotFoundError(what string) *Error                    { return rerrors.NotFoundError(what) }
