// Package transport implements a single persistent HTTP/1.1 connection.
//
// HDS hosts serve hundreds of small fragments from one origin. Transport
// keeps one socket open across requests to the same scheme, host and port,
// replaces it when the origin changes, and transparently reopens it once
// when the server has silently dropped an idle connection.
package transport

import (
	"bufio"
	"context"
	"crypto/x509"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"sync"
	"syscall"
	"time"

	"hdsfetch/internal/fault"
	"hdsfetch/internal/logger"

	"golang.org/x/net/proxy"
)

// TLS client hello fingerprints.
const (
	FingerprintChrome = "chrome"
	FingerprintGo     = "go"
)

// Config configures a Transport.
type Config struct {
	UserAgent string
	// Timeout bounds connecting and every individual read or write. Zero
	// disables it.
	Timeout time.Duration
	// SOCKSProxy is a host:port SOCKS5 proxy. Empty connects directly.
	SOCKSProxy string
	// Fingerprint selects the TLS client hello, FingerprintChrome by default.
	Fingerprint string
	// RootCAs overrides the system certificate pool.
	RootCAs *x509.CertPool
}

// Transport holds at most one open connection. It is meant to be owned by
// one fetch at a time and must be closed when that fetch ends.
type Transport struct {
	cfg    Config
	logger logger.Logger
	dialer proxy.ContextDialer
	// dialErr is reported by every dial when the proxy could not be set up.
	dialErr error

	mu     sync.Mutex
	idle   *conn
	closed bool
}

// New creates a Transport. No connection is opened until the first request.
func New(cfg Config, log logger.Logger) *Transport {
	t := &Transport{cfg: cfg, logger: log}
	direct := &net.Dialer{Timeout: cfg.Timeout}
	t.dialer = direct
	if cfg.SOCKSProxy != "" {
		d, err := proxy.SOCKS5("tcp", cfg.SOCKSProxy, nil, direct)
		if err != nil {
			t.dialErr = fmt.Errorf("socks5 proxy %s: %w", cfg.SOCKSProxy, err)
		} else if cd, ok := d.(proxy.ContextDialer); ok {
			t.dialer = cd
		} else {
			t.dialErr = fmt.Errorf("socks5 proxy %s: dialer does not support contexts", cfg.SOCKSProxy)
		}
	}
	return t
}

// conn is an open connection together with its response reader.
type conn struct {
	net.Conn
	br  *bufio.Reader
	key string

	mu        sync.Mutex
	cancelled bool
}

// refresh extends the deadline unless the connection has been cancelled.
func (c *conn) refresh(timeout time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.cancelled {
		return
	}
	if timeout > 0 {
		c.SetDeadline(time.Now().Add(timeout))
	} else {
		c.SetDeadline(time.Time{})
	}
}

// cancel unblocks any pending I/O.
func (c *conn) cancel() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.cancelled = true
	c.SetDeadline(time.Unix(1, 0))
}

// staleError marks a failure on a reused connection that the server most
// likely closed while it was idle.
type staleError struct{ err error }

func (e *staleError) Error() string { return "stale connection: " + e.err.Error() }
func (e *staleError) Unwrap() error { return e.err }

// Do sends req on the held connection, or on a new one when the origin
// differs. Any status other than 200 is returned as a transport error. The
// connection is kept for the next request only if the response body is
// read to the end before it is closed.
func (t *Transport) Do(ctx context.Context, req *http.Request) (*http.Response, error) {
	key, err := originKey(req.URL)
	if err != nil {
		return nil, fault.Transport(err, "%s %s", req.Method, req.URL.Redacted())
	}
	if t.cfg.UserAgent != "" && req.Header.Get("User-Agent") == "" {
		req.Header.Set("User-Agent", t.cfg.UserAgent)
	}

	c := t.take(key)
	reused := c != nil
	if c == nil {
		if c, err = t.dial(ctx, req.URL, key); err != nil {
			return nil, t.fail(ctx, err, req)
		}
	}

	stop := context.AfterFunc(ctx, c.cancel)
	resp, err := t.roundTrip(c, req)
	var stale *staleError
	if err != nil && reused && errors.As(err, &stale) && ctx.Err() == nil {
		t.logger.Debugf("Connection to %s was closed by the server, reconnecting: %v", key, stale.err)
		stop()
		c.Close()
		if c, err = t.dial(ctx, req.URL, key); err != nil {
			return nil, t.fail(ctx, err, req)
		}
		stop = context.AfterFunc(ctx, c.cancel)
		resp, err = t.roundTrip(c, req)
	}
	if err != nil {
		stop()
		c.Close()
		return nil, t.fail(ctx, err, req)
	}

	if resp.StatusCode != http.StatusOK {
		stop()
		c.Close()
		resp.Body.Close()
		return nil, fault.Transport(nil, "received status %q from %s", resp.Status, req.URL.Redacted())
	}

	chunked := len(resp.TransferEncoding) > 0 && resp.TransferEncoding[0] == "chunked"
	resp.Body = &body{
		ReadCloser: resp.Body,
		t:          t,
		c:          c,
		stop:       stop,
		reusable:   !resp.Close && (resp.ContentLength >= 0 || chunked),
	}
	return resp, nil
}

func (t *Transport) fail(ctx context.Context, err error, req *http.Request) error {
	if ctx.Err() != nil {
		return fault.Cancelled(ctx.Err())
	}
	return fault.Transport(err, "%s %s", req.Method, req.URL.Redacted())
}

func (t *Transport) roundTrip(c *conn, req *http.Request) (*http.Response, error) {
	c.refresh(t.cfg.Timeout)
	if err := req.Write(c); err != nil {
		return nil, &staleError{err}
	}
	// A server that dropped the idle connection answers with nothing at all.
	if _, err := c.br.Peek(1); err != nil {
		if emptyReply(err) {
			return nil, &staleError{err}
		}
		return nil, err
	}
	resp, err := http.ReadResponse(c.br, req)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}
	return resp, nil
}

func emptyReply(err error) bool {
	return errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) ||
		errors.Is(err, syscall.ECONNRESET) || errors.Is(err, syscall.EPIPE)
}

// take hands out the held connection if it serves key. A connection to
// another origin is closed.
func (t *Transport) take(key string) *conn {
	t.mu.Lock()
	defer t.mu.Unlock()
	c := t.idle
	t.idle = nil
	if c != nil && c.key != key {
		t.logger.Debugf("Closing connection to %s for %s", c.key, key)
		c.Close()
		return nil
	}
	return c
}

// put keeps c for the next request.
func (t *Transport) put(c *conn) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		c.Close()
		return
	}
	if t.idle != nil && t.idle != c {
		t.idle.Close()
	}
	t.idle = c
}

// Close closes the held connection. Connections released afterwards are
// closed instead of kept.
func (t *Transport) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.closed = true
	if t.idle == nil {
		return nil
	}
	err := t.idle.Close()
	t.idle = nil
	return err
}

func (t *Transport) dial(ctx context.Context, u *url.URL, key string) (*conn, error) {
	if t.dialErr != nil {
		return nil, t.dialErr
	}
	host := u.Hostname()
	addr := net.JoinHostPort(host, portOf(u))

	t.logger.Debugf("Connecting to %s", key)
	raw, err := t.dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to %s: %w", addr, err)
	}
	if u.Scheme == "https" {
		if raw, err = t.handshake(ctx, raw, host); err != nil {
			return nil, err
		}
	}
	return &conn{Conn: raw, br: bufio.NewReader(raw), key: key}, nil
}

// body releases the connection when the response has been consumed.
type body struct {
	io.ReadCloser
	t        *Transport
	c        *conn
	stop     func() bool
	reusable bool
	eof      bool
	closed   bool
}

func (b *body) Read(p []byte) (int, error) {
	b.c.refresh(b.t.cfg.Timeout)
	n, err := b.ReadCloser.Read(p)
	if err == io.EOF {
		b.eof = true
	}
	return n, err
}

func (b *body) Close() error {
	if b.closed {
		return nil
	}
	b.closed = true
	if !b.eof {
		// Closing the socket first keeps the body from draining the rest of
		// the response.
		b.c.Close()
		b.stop()
		b.ReadCloser.Close()
		return nil
	}

	err := b.ReadCloser.Close()
	if stopped := b.stop(); stopped && b.reusable && err == nil {
		b.t.put(b.c)
		return nil
	}
	b.c.Close()
	return nil
}

func originKey(u *url.URL) (string, error) {
	switch u.Scheme {
	case "http", "https":
	default:
		return "", fmt.Errorf("unsupported URL scheme %q", u.Scheme)
	}
	if u.Hostname() == "" {
		return "", fmt.Errorf("URL %q has no host", u.Redacted())
	}
	return u.Scheme + "://" + net.JoinHostPort(u.Hostname(), portOf(u)), nil
}

func portOf(u *url.URL) string {
	if p := u.Port(); p != "" {
		return p
	}
	if u.Scheme == "https" {
		return "443"
	}
	return "80"
}
