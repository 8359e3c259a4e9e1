// Package idealista is a client for the idealista OAuth and property search API.
package idealista

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gocolly/colly/v2"

	"github.com/aluiziolira/idealista-price-trends/config"
)

const (
	phaseToken  = "token"
	phaseSearch = "search"

	ctxPhase    = "phase"
	ctxStart    = "start"
	ctxResponse = "response"
)

// Client talks to the idealista OAuth and search endpoints through a
// synchronous colly collector.
type Client struct {
	cfg       *config.Config
	collector *colly.Collector
	Metrics   *Metrics

	// Progress receives the per-page progress lines. Defaults to stdout.
	Progress io.Writer

	requestCount int64
	pageCount    int64

	mu           sync.Mutex
	errorsByType map[string]int
}

// apiResponse is what the OnResponse handler leaves in the request context.
type apiResponse struct {
	status int
	body   []byte
}

// NewClient builds a client configured from cfg.
func NewClient(cfg *config.Config) (*Client, error) {
	if cfg == nil {
		return nil, errors.New("nil config")
	}
	var hosts []string
	for _, raw := range []string{cfg.TokenURL, cfg.SearchURL} {
		parsed, err := url.Parse(raw)
		if err != nil {
			return nil, fmt.Errorf("parse url %q: %w", raw, err)
		}
		if parsed.Hostname() == "" {
			return nil, fmt.Errorf("url %q must include a host", raw)
		}
		hosts = append(hosts, parsed.Hostname())
	}

	collector := colly.NewCollector(
		colly.AllowedDomains(hosts...),
		colly.UserAgent(cfg.UserAgent),
		colly.AllowURLRevisit(),
		colly.ParseHTTPErrorResponse(),
	)

	collector.SetRequestTimeout(cfg.Timeout)
	collector.WithTransport(&http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   cfg.Timeout,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		MaxIdleConns:        10,
		IdleConnTimeout:     90 * time.Second,
		TLSHandshakeTimeout: 10 * time.Second,
	})

	c := &Client{
		cfg:          cfg,
		collector:    collector,
		Metrics:      NewMetrics(),
		Progress:     os.Stdout,
		errorsByType: make(map[string]int),
	}
	c.configureHandlers()
	return c, nil
}

// Stats reports request and page counters plus errors grouped by type.
func (c *Client) Stats() (requests, pages int, errorsByType map[string]int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	errorsByType = make(map[string]int, len(c.errorsByType))
	for k, v := range c.errorsByType {
		errorsByType[k] = v
	}
	return int(atomic.LoadInt64(&c.requestCount)), int(atomic.LoadInt64(&c.pageCount)), errorsByType
}

func (c *Client) configureHandlers() {
	c.collector.OnRequest(func(r *colly.Request) {
		r.Ctx.Put(ctxStart, time.Now())
		atomic.AddInt64(&c.requestCount, 1)
		c.Metrics.IncRequest(r.Ctx.Get(ctxPhase))
		slog.Debug("api request",
			slog.String("phase", r.Ctx.Get(ctxPhase)),
			slog.String("url", r.URL.String()),
		)
	})

	c.collector.OnResponse(func(r *colly.Response) {
		if start, ok := r.Ctx.GetAny(ctxStart).(time.Time); ok {
			c.Metrics.ObserveDuration(time.Since(start))
		}
		if r.StatusCode >= http.StatusBadRequest {
			slog.Warn("non-2xx response",
				slog.Int("status", r.StatusCode),
				slog.String("phase", r.Ctx.Get(ctxPhase)),
			)
			c.recordError(classifyError(nil, r.StatusCode))
		}
		r.Ctx.Put(ctxResponse, &apiResponse{status: r.StatusCode, body: r.Body})
	})

	c.collector.OnError(func(r *colly.Response, err error) {
		statusCode := 0
		target := ""
		if r != nil {
			statusCode = r.StatusCode
			if r.Request != nil && r.Request.URL != nil {
				target = r.Request.URL.String()
			}
		}
		classified := classifyError(err, statusCode)
		slog.Error("request error",
			slog.String("url", target),
			slog.String("category", errorTypeLabel(classified)),
			slog.Any("error", err),
		)
		c.recordError(classified)
	})
}

func (c *Client) recordError(err error) {
	category := errorTypeLabel(err)
	c.mu.Lock()
	c.errorsByType[category]++
	c.mu.Unlock()
	c.Metrics.IncError(category)
}

// post issues one synchronous POST and returns the captured response. Non-2xx
// statuses are not errors here; callers decide from the body.
func (c *Client) post(ctx context.Context, phase, target string, body io.Reader, hdr http.Header) (*apiResponse, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	reqCtx := colly.NewContext()
	reqCtx.Put(ctxPhase, phase)

	if err := c.collector.Request(http.MethodPost, target, body, reqCtx, hdr); err != nil {
		return nil, fmt.Errorf("%s request: %w", phase, classifyError(err, 0))
	}
	resp, ok := reqCtx.GetAny(ctxResponse).(*apiResponse)
	if !ok {
		return nil, fmt.Errorf("%s request: no response received", phase)
	}
	return resp, nil
}
