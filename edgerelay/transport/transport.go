// Package transport delivers packed messages upstream.
package transport

import (
	"context"
	"io"
	"sync"

	rerrors "github.com/nonibytes/edgerelay/edgerelay/errors"
	"github.com/nonibytes/edgerelay/edgerelay/pack"
)

// Transport sends one message at a time. An error means the message was
// not delivered; the caller does not retry within the cycle.
type Transport interface {
	Send(ctx context.Context, msg pack.Message) error
	Close() error
}

// Writer writes each payload followed by a newline. It backs the stdout
// dry-run mode.
type Writer struct {
	mu sync.Mutex
	w  io.Writer
}

func NewWriter(w io.Writer) *Writer {
	return &Writer{w: w}
}

func (t *Writer) Send(ctx context.Context, msg pack.Message) error {
	if err := ctx.Err(); err != nil {
		return rerrors.TransportError("send cancelled", err)
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, err := t.w.Write(append(msg.Payload[:len(msg.Payload):len(msg.Payload)], '\n')); err != nil {
		return rerrors.ConnectionError("write message", err)
	}
	return nil
}

func (t *Writer) Close() error {
	if c, ok := t.w.(io.Closer); ok {
		return c.Close()
	}
	return nil
}
