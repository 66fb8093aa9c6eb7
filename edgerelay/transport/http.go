package transport

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/klauspost/compress/gzip"

	rerrors "github.com/nonibytes/edgerelay/edgerelay/errors"
	"github.com/nonibytes/edgerelay/edgerelay/pack"
)

const (
	HeaderMessageID = "X-Message-Id"
	HeaderTimestamp = "X-Message-Timestamp"
	HeaderSite      = "X-Edgerelay-Site"
	HeaderRecords   = "X-Message-Records"
)

type HTTPOptions struct {
	URL         string
	Token       string
	Site        string
	ContentType string
	Gzip        bool
	Timeout     time.Duration
	Client      *http.Client
	Now         func() time.Time
}

// HTTP posts each message to a fixed URL.
type HTTP struct {
	opts   HTTPOptions
	client *http.Client
}

func NewHTTP(opts HTTPOptions) (*HTTP, error) {
	if opts.URL == "" {
		return nil, rerrors.ConfigError("http transport needs a url")
	}
	if opts.ContentType == "" {
		opts.ContentType = "application/json"
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	client := opts.Client
	if client == nil {
		client = &http.Client{Timeout: opts.Timeout}
	}
	return &HTTP{opts: opts, client: client}, nil
}

func (t *HTTP) Send(ctx context.Context, msg pack.Message) error {
	body, err := t.body(msg.Payload)
	if err != nil {
		return rerrors.TransportError("compress message", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, t.opts.URL, bytes.NewReader(body))
	if err != nil {
		return rerrors.TransportError("build request", err)
	}
	req.Header.Set("Content-Type", t.opts.ContentType)
	if t.opts.Gzip {
		req.Header.Set("Content-Encoding", "gzip")
	}
	req.Header.Set(HeaderMessageID, uuid.NewString())
	req.Header.Set(HeaderTimestamp, t.opts.Now().UTC().Format(time.RFC3339Nano))
	req.Header.Set(HeaderRecords, fmt.Sprint(msg.Records))
	if t.opts.Site != "" {
		req.Header.Set(HeaderSite, t.opts.Site)
	}
	if t.opts.Token != "" {
		req.Header.Set("Authorization", "Bearer "+t.opts.Token)
	}

	resp, err := t.client.Do(req)
	if err != nil {
		// start the next cycle from a fresh connection
		t.client.CloseIdleConnections()
		return rerrors.ConnectionError("post message", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode/100 != 2 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return rerrors.TransportError(fmt.Sprintf("endpoint returned %s", resp.Status), fmt.Errorf("%s", bytes.TrimSpace(snippet)))
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	return nil
}

func (t *HTTP) body(payload []byte) ([]byte, error) {
	if !t.opts.Gzip {
		return payload, nil
	}
	var buf bytes.Buffer
	zw := gzip.NewWriter(&buf)
	if _, err := zw.Write(payload); err != nil {
		return nil, err
	}
	if err := zw.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func (t *HTTP) Close() error {
	t.client.CloseIdleConnections()
	return nil
}
