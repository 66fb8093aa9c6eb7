package driver

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/net/proxy"
	"golang.org/x/time/rate"

	rerrors "github.com/nonibytes/edgerelay/edgerelay/errors"
	"github.com/nonibytes/edgerelay/edgerelay/record"
)

type PanelOptions struct {
	Name string
	IP   string
	// BaseURL defaults to http://<IP>.
	BaseURL string
	// DiscoverPath lists every point with its full body.
	DiscoverPath string
	// ValuesPath returns partial bodies carrying the point identity and
	// the fields that change. Empty means rediscover on every gather.
	ValuesPath string
	Timeout    time.Duration
	// RequestDelay is the minimum spacing between requests to the panel.
	RequestDelay time.Duration
	// SOCKS5 is a host:port to tunnel panel traffic through.
	SOCKS5 string
	Client *http.Client
	Logger *logrus.Logger
}

// Panel polls a controller that serves its points as JSON over HTTP. The
// first gather discovers all points; later gathers only fetch values and
// merge them into the discovered bodies.
type Panel struct {
	opts    PanelOptions
	client  *http.Client
	limiter *rate.Limiter

	mu         sync.Mutex
	table      *Table
	discovered bool
}

func NewPanel(opts PanelOptions) (*Panel, error) {
	if opts.Name == "" {
		opts.Name = opts.IP
	}
	if opts.BaseURL == "" {
		if opts.IP == "" {
			return nil, rerrors.ConfigError(fmt.Sprintf("panel %q needs an ip or base url", opts.Name))
		}
		opts.BaseURL = "http://" + opts.IP
	}
	opts.BaseURL = strings.TrimRight(opts.BaseURL, "/")
	if opts.DiscoverPath == "" {
		opts.DiscoverPath = "/points"
	}
	if opts.Logger == nil {
		opts.Logger = logrus.StandardLogger()
	}

	client := opts.Client
	if client == nil {
		tr := http.DefaultTransport.(*http.Transport).Clone()
		if opts.SOCKS5 != "" {
			dialer, err := proxy.SOCKS5("tcp", opts.SOCKS5, nil, proxy.Direct)
			if err != nil {
				return nil, rerrors.ConfigError(fmt.Sprintf("panel %q socks5 proxy: %v", opts.Name, err))
			}
			cd, ok := dialer.(proxy.ContextDialer)
			if !ok {
				return nil, rerrors.ConfigError(fmt.Sprintf("panel %q socks5 dialer cannot take a context", opts.Name))
			}
			tr.Proxy = nil
			tr.DialContext = cd.DialContext
		}
		client = &http.Client{Transport: tr, Timeout: opts.Timeout}
	}

	limit := rate.Inf
	if opts.RequestDelay > 0 {
		limit = rate.Every(opts.RequestDelay)
	}

	return &Panel{
		opts:    opts,
		client:  client,
		limiter: rate.NewLimiter(limit, 1),
		table:   NewTable(),
	}, nil
}

func (p *Panel) Name() string { return p.opts.Name }

func (p *Panel) device() string {
	if p.opts.IP != "" {
		return p.opts.IP
	}
	return p.opts.Name
}

func (p *Panel) Gather(ctx context.Context) ([]record.RawRecord, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if !p.discovered || p.opts.ValuesPath == "" {
		bodies, err := p.fetch(ctx, p.opts.DiscoverPath)
		if err != nil {
			return nil, err
		}
		p.table.Reset()
		for _, b := range bodies {
			p.table.Put(b)
		}
		p.discovered = true
		p.opts.Logger.WithFields(logrus.Fields{"device": p.Name(), "points": p.table.Len()}).Debug("discovered points")
		if p.opts.ValuesPath == "" {
			return p.table.Records(p.device()), nil
		}
	}

	patches, err := p.fetch(ctx, p.opts.ValuesPath)
	if err != nil {
		return nil, err
	}
	for _, patch := range patches {
		if !p.table.Merge(patch) {
			// a point that appeared after discovery
			p.table.Put(patch)
		}
	}
	return p.table.Records(p.device()), nil
}

func (p *Panel) Reset() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.table.Reset()
	p.discovered = false
}

func (p *Panel) fetch(ctx context.Context, path string) ([]record.Value, error) {
	if err := p.limiter.Wait(ctx); err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.opts.BaseURL+path, nil)
	if err != nil {
		return nil, rerrors.DeviceError(p.Name(), "build request", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, rerrors.DeviceError(p.Name(), "request "+path, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil, rerrors.DeviceError(p.Name(), fmt.Sprintf("request %s: %s", path, resp.Status), nil)
	}

	bodies, err := record.DecodeRecords(resp.Body)
	if err != nil {
		return nil, rerrors.DeviceError(p.Name(), "decode "+path, err)
	}
	return bodies, nil
}
