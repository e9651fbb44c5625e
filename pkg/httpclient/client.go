// Package httpclient provides a configurable HTTP client with browser TLS
// fingerprinting, proxy support, rate-limit retries, and tolerant JSON
// decoding for the platform APIs.
package httpclient

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/nat-king-15/Master-Extractor-Bot/pkg/logging"

	utls "github.com/refraction-networking/utls"
	"golang.org/x/net/http2"
	"golang.org/x/net/proxy"
)

const (
	defaultTimeout = 120 * time.Second
	maxRateRetries = 3
	defaultBackoff = 5 * time.Second
)

// Client wraps http.Client with browser TLS and rate-limit handling.
type Client struct {
	defaultClient *http.Client
	utlsClient    *http.Client // browser-like TLS fingerprint for bot-protected hosts
	proxyClients  map[string]*http.Client
	proxyURL      string
	timeout       time.Duration
	mu            sync.RWMutex
	log           *logging.Logger

	// sleep is swappable in tests.
	sleep func(ctx context.Context, d time.Duration) error
}

// Hosts fronted by bot-detection that need a browser TLS fingerprint.
var utlsDomains = []string{
	"visionias.in",
	"courses.store",
}

// ipv4Dialer creates a dialer that only uses IPv4.
// This avoids issues with IPv6 connectivity in environments where IPv6 is not available.
func ipv4Dialer() *net.Dialer {
	return &net.Dialer{
		Timeout:   30 * time.Second,
		KeepAlive: 60 * time.Second,
	}
}

// ipv4DialContext forces IPv4-only connections.
func ipv4DialContext(ctx context.Context, network, addr string) (net.Conn, error) {
	// Force IPv4 by using "tcp4" instead of "tcp"
	if network == "tcp" {
		network = "tcp4"
	}
	return ipv4Dialer().DialContext(ctx, network, addr)
}

// Option configures a Client.
type Option func(*Client)

// WithTimeout overrides the default request timeout.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) { c.timeout = d }
}

// WithProxy routes all default-client traffic through the given proxy URL
// (http, https, socks5, socks5h).
func WithProxy(proxyURL string) Option {
	return func(c *Client) { c.proxyURL = proxyURL }
}

// New creates a new HTTP client.
func New(log *logging.Logger, opts ...Option) *Client {
	c := &Client{
		proxyClients: make(map[string]*http.Client),
		timeout:      defaultTimeout,
		log:          log.WithComponent("httpclient"),
		sleep:        sleepCtx,
	}
	for _, opt := range opts {
		opt(c)
	}

	if c.proxyURL != "" {
		c.defaultClient = c.createProxyClient(c.proxyURL, false)
	} else {
		c.defaultClient = &http.Client{
			Transport: newPooledTransport(),
			Timeout:   c.timeout,
		}
	}

	c.utlsClient = &http.Client{
		Transport: newUTLSRoundTripper(),
		Timeout:   c.timeout,
	}

	return c
}

func newPooledTransport() *http.Transport {
	return &http.Transport{
		DialContext:           ipv4DialContext,
		MaxIdleConns:          100,
		MaxIdleConnsPerHost:   10,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   10 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
		ResponseHeaderTimeout: 30 * time.Second,
	}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// utlsRoundTripper implements http.RoundTripper with utls and HTTP/2 support.
type utlsRoundTripper struct {
	dialer      *net.Dialer
	h2Transport *http2.Transport
}

func newUTLSRoundTripper() *utlsRoundTripper {
	return &utlsRoundTripper{
		dialer: &net.Dialer{
			Timeout:   30 * time.Second,
			KeepAlive: 60 * time.Second,
		},
		h2Transport: &http2.Transport{
			DisableCompression: false,
			AllowHTTP:          false,
		},
	}
}

func (t *utlsRoundTripper) RoundTrip(req *http.Request) (*http.Response, error) {
	// Only handle HTTPS
	if req.URL.Scheme != "https" {
		return http.DefaultTransport.RoundTrip(req)
	}

	addr := req.URL.Host
	if !strings.Contains(addr, ":") {
		addr = addr + ":443"
	}

	// Force IPv4
	conn, err := t.dialer.DialContext(req.Context(), "tcp4", addr)
	if err != nil {
		return nil, err
	}

	// Extract hostname for SNI
	host := req.URL.Hostname()

	tlsConfig := &utls.Config{
		ServerName: host,
	}

	// Chrome 120 fingerprint with HTTP/2
	utlsConn := utls.UClient(conn, tlsConfig, utls.HelloChrome_120)

	if err := utlsConn.Handshake(); err != nil {
		conn.Close()
		return nil, err
	}

	alpn := utlsConn.ConnectionState().NegotiatedProtocol

	if alpn == "h2" {
		h2Conn, err := t.h2Transport.NewClientConn(utlsConn)
		if err != nil {
			conn.Close()
			return nil, err
		}
		return h2Conn.RoundTrip(req)
	}

	// Fallback to HTTP/1.1
	return t.doHTTP1Request(utlsConn, req)
}

func (t *utlsRoundTripper) doHTTP1Request(conn net.Conn, req *http.Request) (*http.Response, error) {
	if err := req.Write(conn); err != nil {
		conn.Close()
		return nil, err
	}

	resp, err := http.ReadResponse(bufio.NewReader(conn), req)
	if err != nil {
		conn.Close()
		return nil, err
	}

	// Wrap body to close connection when done
	resp.Body = &connCloser{resp.Body, conn}
	return resp, nil
}

type connCloser struct {
	io.ReadCloser
	conn net.Conn
}

func (c *connCloser) Close() error {
	c.ReadCloser.Close()
	return c.conn.Close()
}

// needsUTLS returns true if the URL requires browser-like TLS fingerprinting.
func (c *Client) needsUTLS(targetURL string) bool {
	lower := strings.ToLower(targetURL)
	for _, domain := range utlsDomains {
		if strings.Contains(lower, domain) {
			return true
		}
	}
	return false
}

// clientForURL returns the appropriate underlying client for the target.
func (c *Client) clientForURL(targetURL string) *http.Client {
	if c.needsUTLS(targetURL) {
		c.log.Debug("using browser TLS client", "url", targetURL)
		return c.utlsClient
	}
	return c.defaultClient
}

// NewCookieSession returns a session sharing this client's transport
// but carrying its own cookie jar, for platforms that authenticate
// through session cookies. The transport is chosen for the base URL, so
// browser-TLS hosts keep their fingerprint across the session.
func (c *Client) NewCookieSession(baseURL string) *CookieSession {
	jar, _ := cookiejar.New(nil)
	return &CookieSession{
		client: c,
		hc: &http.Client{
			Transport: c.clientForURL(baseURL).Transport,
			Jar:       jar,
			Timeout:   c.timeout,
		},
	}
}

// CookieSession is a cookie-jar-backed view of a Client. Requests keep
// the Client's rate-limit retry behavior.
type CookieSession struct {
	client *Client
	hc     *http.Client
}

// Get fetches the target and returns the response body.
func (s *CookieSession) Get(ctx context.Context, targetURL string, headers map[string]string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, targetURL, nil)
	if err != nil {
		return nil, err
	}
	applyHeaders(req, headers)
	return s.readBody(req)
}

// PostForm posts url-encoded form values and returns the response body.
func (s *CookieSession) PostForm(ctx context.Context, targetURL string, headers map[string]string, form url.Values) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, targetURL, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	applyHeaders(req, headers)
	return s.readBody(req)
}

// Cookies returns the cookies the jar currently holds for the target,
// for callers that persist them outside the session.
func (s *CookieSession) Cookies(targetURL string) []*http.Cookie {
	u, err := url.Parse(targetURL)
	if err != nil {
		return nil
	}
	return s.hc.Jar.Cookies(u)
}

func (s *CookieSession) readBody(req *http.Request) ([]byte, error) {
	resp, err := s.client.doWith(s.hc, req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response body: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return body, &StatusError{Code: resp.StatusCode, Body: body}
	}
	return body, nil
}

// Do executes the request, retrying on HTTP 429 up to maxRateRetries
// times. Retry-After is honored when present, defaulting to 5 seconds.
// The final 429 response is returned as-is.
func (c *Client) Do(req *http.Request) (*http.Response, error) {
	return c.doWith(c.clientForURL(req.URL.String()), req)
}

func (c *Client) doWith(hc *http.Client, req *http.Request) (*http.Response, error) {
	var body []byte
	if req.Body != nil && req.GetBody == nil {
		b, err := io.ReadAll(req.Body)
		if err != nil {
			return nil, fmt.Errorf("read request body: %w", err)
		}
		body = b
		req.Body = io.NopCloser(bytes.NewReader(body))
	}

	for attempt := 0; ; attempt++ {
		if attempt > 0 {
			if req.GetBody != nil {
				rb, err := req.GetBody()
				if err != nil {
					return nil, err
				}
				req.Body = rb
			} else if body != nil {
				req.Body = io.NopCloser(bytes.NewReader(body))
			}
		}

		resp, err := hc.Do(req)
		if err != nil {
			return nil, err
		}
		if resp.StatusCode != http.StatusTooManyRequests || attempt >= maxRateRetries {
			return resp, nil
		}

		wait := defaultBackoff
		if ra := resp.Header.Get("Retry-After"); ra != "" {
			if secs, err := strconv.Atoi(ra); err == nil && secs > 0 {
				wait = time.Duration(secs) * time.Second
			}
		}
		io.Copy(io.Discard, resp.Body)
		resp.Body.Close()
		c.log.Warn("rate limited, retrying", "url", req.URL.String(), "attempt", attempt+1, "wait", wait)
		if err := c.sleep(req.Context(), wait); err != nil {
			return nil, err
		}
	}
}

func applyHeaders(req *http.Request, headers map[string]string) {
	for k, v := range headers {
		if strings.EqualFold(k, "host") {
			req.Host = v
			continue
		}
		req.Header.Set(k, v)
	}
}

// Get fetches the target and returns the response body. Non-2xx
// statuses are returned as errors carrying the status code.
func (c *Client) Get(ctx context.Context, targetURL string, headers map[string]string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, targetURL, nil)
	if err != nil {
		return nil, err
	}
	applyHeaders(req, headers)
	return c.readBody(req)
}

// GetJSON fetches the target and tolerantly decodes the JSON body into v.
func (c *Client) GetJSON(ctx context.Context, targetURL string, headers map[string]string, v any) error {
	body, err := c.Get(ctx, targetURL, headers)
	if err != nil {
		return err
	}
	return DecodeTolerantJSON(body, v)
}

// PostJSON posts a JSON payload and tolerantly decodes the response into v.
func (c *Client) PostJSON(ctx context.Context, targetURL string, headers map[string]string, payload any, v any) error {
	raw, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal payload: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, targetURL, bytes.NewReader(raw))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	applyHeaders(req, headers)
	body, err := c.readBody(req)
	if err != nil {
		return err
	}
	if v == nil {
		return nil
	}
	return DecodeTolerantJSON(body, v)
}

// PostForm posts url-encoded form values and tolerantly decodes the
// response into v.
func (c *Client) PostForm(ctx context.Context, targetURL string, headers map[string]string, form url.Values, v any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, targetURL, strings.NewReader(form.Encode()))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	applyHeaders(req, headers)
	body, err := c.readBody(req)
	if err != nil {
		return err
	}
	if v == nil {
		return nil
	}
	return DecodeTolerantJSON(body, v)
}

// StatusError is returned for non-2xx responses.
type StatusError struct {
	Code int
	Body []byte
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("unexpected status %d", e.Code)
}

func (c *Client) readBody(req *http.Request) ([]byte, error) {
	resp, err := c.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response body: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return body, &StatusError{Code: resp.StatusCode, Body: body}
	}
	return body, nil
}

// createProxyClient creates a new HTTP client for the given proxy.
func (c *Client) createProxyClient(proxyURL string, disableSSL bool) *http.Client {
	transport := newPooledTransport()

	parsedURL, err := url.Parse(proxyURL)
	if err != nil {
		c.log.Error("failed to parse proxy URL", "url", proxyURL, "error", err)
		return &http.Client{Transport: transport, Timeout: c.timeout}
	}

	switch parsedURL.Scheme {
	case "socks5", "socks5h":
		dialer, err := proxy.FromURL(parsedURL, proxy.Direct)
		if err != nil {
			c.log.Error("failed to create SOCKS5 dialer", "error", err)
			return &http.Client{Transport: transport, Timeout: c.timeout}
		}
		if contextDialer, ok := dialer.(proxy.ContextDialer); ok {
			transport.DialContext = contextDialer.DialContext
		} else {
			transport.Dial = dialer.Dial
		}
	case "http", "https":
		transport.Proxy = http.ProxyURL(parsedURL)
	default:
		c.log.Warn("unsupported proxy scheme", "scheme", parsedURL.Scheme)
	}

	return &http.Client{
		Transport: transport,
		Timeout:   c.timeout,
	}
}
