// Package transport opens byte streams to remote HTTP resources.
package transport

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/hugr-lab/url-engine/pkg/hostfilter"
)

var (
	ErrTooManyRedirects = errors.New("too many redirects")
	ErrSendTimeout      = errors.New("send timeout")
	ErrWriteCanceled    = errors.New("write canceled")
)

const (
	DefaultBufferSize = 1 << 20

	errorSnippetSize = 1024
)

type Timeouts struct {
	Connect time.Duration
	Send    time.Duration
	Receive time.Duration
}

func DefaultTimeouts() Timeouts {
	return Timeouts{
		Connect: time.Second,
		Send:    1800 * time.Second,
		Receive: 1800 * time.Second,
	}
}

type Config struct {
	Timeouts     Timeouts
	MaxRedirects int
	HostFilter   *hostfilter.Filter
	Headers      http.Header
	Auth         AuthParams
	BufferSize   int
	// Base is the underlying transport, a dedicated http.Transport is created if nil.
	Base http.RoundTripper
}

// BodyFunc renders the request body.
type BodyFunc func(w io.Writer) error

// Error is the failure of the remote resource request.
type Error struct {
	Op         string
	URL        string
	StatusCode int
	Err        error
}

func (e *Error) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("%s %s: status %d: %v", e.Op, e.URL, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("%s %s: %v", e.Op, e.URL, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

type Client struct {
	cfg   Config
	read  *http.Client
	write *http.Client
}

func NewClient(cfg Config) (*Client, error) {
	if cfg.BufferSize <= 0 {
		cfg.BufferSize = DefaultBufferSize
	}
	base := cfg.Base
	if base == nil {
		base = NewTransport(cfg.Timeouts)
	}
	rt, err := cfg.Auth.RoundTripper(base)
	if err != nil {
		return nil, err
	}
	c := &Client{cfg: cfg}
	c.read = &http.Client{
		Transport: rt,
		CheckRedirect: func(req *http.Request, via []*http.Request) error {
			if len(via) > cfg.MaxRedirects {
				return fmt.Errorf("%w: limit %d", ErrTooManyRedirects, cfg.MaxRedirects)
			}
			return cfg.HostFilter.CheckURL(req.URL)
		},
	}
	c.write = &http.Client{
		Transport: rt,
		CheckRedirect: func(*http.Request, []*http.Request) error {
			return http.ErrUseLastResponse
		},
	}
	return c, nil
}

// NewTransport returns the connection pool configured with the timeouts.
func NewTransport(t Timeouts) *http.Transport {
	dialer := &net.Dialer{
		Timeout:   t.Connect,
		KeepAlive: 30 * time.Second,
	}
	return &http.Transport{
		Proxy:                 http.ProxyFromEnvironment,
		DialContext:           dialer.DialContext,
		TLSHandshakeTimeout:   t.Connect,
		ResponseHeaderTimeout: t.Receive,
		ExpectContinueTimeout: time.Second,
		MaxIdleConns:          100,
		IdleConnTimeout:       90 * time.Second,
		ForceAttemptHTTP2:     true,
	}
}

// OpenRead sends the request and returns the buffered response body.
func (c *Client) OpenRead(ctx context.Context, u *url.URL, method string, headers http.Header, body BodyFunc) (io.ReadCloser, error) {
	if err := c.cfg.HostFilter.CheckURL(u); err != nil {
		return nil, err
	}
	if method == "" {
		method = http.MethodGet
	}
	target, user := splitUserinfo(u)

	var rdr io.Reader
	if body != nil {
		var buf bytes.Buffer
		if err := body(&buf); err != nil {
			return nil, fmt.Errorf("render request body: %w", err)
		}
		rdr = bytes.NewReader(buf.Bytes())
	}
	req, err := http.NewRequestWithContext(ctx, method, target.String(), rdr)
	if err != nil {
		return nil, &Error{Op: "read", URL: target.Redacted(), Err: err}
	}
	c.setHeaders(req, headers, user)

	resp, err := c.read.Do(req)
	if err != nil {
		return nil, &Error{Op: "read", URL: target.Redacted(), Err: err}
	}
	if err := checkResponse("read", target, resp); err != nil {
		return nil, err
	}
	return &responseBody{
		Reader: bufio.NewReaderSize(resp.Body, c.cfg.BufferSize),
		body:   resp.Body,
	}, nil
}

func (c *Client) setHeaders(req *http.Request, headers http.Header, user *url.Userinfo) {
	for k, vv := range c.cfg.Headers {
		for _, v := range vv {
			req.Header.Add(k, v)
		}
	}
	for k, vv := range headers {
		req.Header.Del(k)
		for _, v := range vv {
			req.Header.Add(k, v)
		}
	}
	if user != nil && req.Header.Get("Authorization") == "" {
		password, _ := user.Password()
		req.SetBasicAuth(user.Username(), password)
	}
}

// splitUserinfo strips the credentials from the URL.
func splitUserinfo(u *url.URL) (*url.URL, *url.Userinfo) {
	if u.User == nil {
		return u, nil
	}
	target := *u
	target.User = nil
	return &target, u.User
}

func checkResponse(op string, u *url.URL, resp *http.Response) error {
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}
	defer resp.Body.Close()
	snippet, _ := io.ReadAll(io.LimitReader(resp.Body, errorSnippetSize))
	msg := strings.TrimSpace(string(snippet))
	if msg == "" {
		msg = http.StatusText(resp.StatusCode)
	}
	return &Error{
		Op:         op,
		URL:        u.Redacted(),
		StatusCode: resp.StatusCode,
		Err:        errors.New(msg),
	}
}

type responseBody struct {
	*bufio.Reader
	body io.ReadCloser

	once sync.Once
	err  error
}

func (b *responseBody) Close() error {
	b.once.Do(func() {
		b.err = b.body.Close()
	})
	return b.err
}
