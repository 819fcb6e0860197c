package encyclopedia

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"syscall"
	"time"

	"github.com/olgasafonova/wikiclone-server/metrics"
	"github.com/olgasafonova/wikiclone-server/tracing"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

const (
	// DefaultAPIURL is the English Wikipedia action API endpoint
	DefaultAPIURL = "https://en.wikipedia.org/w/api.php"

	// DefaultUserAgent identifies the client to the wiki
	DefaultUserAgent = "WikiCloneBot/1.0 (https://github.com/olgasafonova/wikiclone-server)"
)

// Response is a successful upstream reply.
type Response struct {
	Body []byte
	ETag string
}

// Transport performs a single GET against the wiki API. Implementations
// return *Error values classified as timeout, connection or upstream
// failures; they never retry.
type Transport interface {
	Get(ctx context.Context, params url.Values, timeout time.Duration) (*Response, error)
}

// HTTPTransport is the net/http Transport used in production.
type HTTPTransport struct {
	baseURL    string
	userAgent  string
	httpClient *http.Client
	logger     *slog.Logger
}

// TransportOption configures the HTTPTransport
type TransportOption func(*HTTPTransport)

// WithBaseURL sets the API endpoint
func WithBaseURL(u string) TransportOption {
	return func(t *HTTPTransport) {
		t.baseURL = u
	}
}

// WithUserAgent sets the identifying client header
func WithUserAgent(ua string) TransportOption {
	return func(t *HTTPTransport) {
		t.userAgent = ua
	}
}

// WithHTTPClient sets a custom HTTP client
func WithHTTPClient(c *http.Client) TransportOption {
	return func(t *HTTPTransport) {
		t.httpClient = c
	}
}

// WithTransportLogger sets a custom logger
func WithTransportLogger(l *slog.Logger) TransportOption {
	return func(t *HTTPTransport) {
		t.logger = l
	}
}

// NewHTTPTransport creates a transport with pooled connections.
func NewHTTPTransport(opts ...TransportOption) *HTTPTransport {
	t := &HTTPTransport{
		baseURL:    DefaultAPIURL,
		userAgent:  DefaultUserAgent,
		httpClient: newHTTPClient(),
		logger:     slog.Default(),
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Get issues one request bounded by timeout. format=json is always set.
func (t *HTTPTransport) Get(ctx context.Context, params url.Values, timeout time.Duration) (*Response, error) {
	action := params.Get("action")

	ctx, span := tracing.StartSpan(ctx, "wiki.api."+action)
	defer span.End()
	tracing.AddAPIAttributes(span, action, params.Get("page")+params.Get("titles"))

	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	q := url.Values{}
	for k, v := range params {
		q[k] = v
	}
	q.Set("format", "json")

	start := time.Now()
	resp, err := t.do(ctx, t.baseURL+"?"+q.Encode())
	duration := time.Since(start).Seconds()

	if err != nil {
		fe := AsError(err)
		metrics.RecordAPICall(action, duration, false, string(fe.Kind))
		span.RecordError(err)
		span.SetStatus(codes.Error, fe.Message)
		t.logger.Warn("Wiki API request failed",
			"action", action,
			"kind", fe.Kind,
			"upstream_status", fe.HTTPStatus,
			"error", err)
		return nil, fe
	}

	metrics.RecordAPICall(action, duration, true, "")
	span.SetAttributes(attribute.Int("wiki.response.bytes", len(resp.Body)))
	span.SetStatus(codes.Ok, "")
	return resp, nil
}

func (t *HTTPTransport) do(ctx context.Context, reqURL string) (*Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("User-Agent", t.userAgent)
	req.Header.Set("Accept", "application/json")

	resp, err := t.httpClient.Do(req)
	if err != nil {
		return nil, classifyTransportError(err)
	}

	body, err := io.ReadAll(resp.Body)
	_ = resp.Body.Close()
	if err != nil {
		return nil, classifyTransportError(err)
	}

	if resp.StatusCode >= 400 {
		return nil, NewUpstreamError(resp.StatusCode)
	}

	return &Response{Body: body, ETag: resp.Header.Get("ETag")}, nil
}

// classifyTransportError maps net/http failures to error kinds.
func classifyTransportError(err error) error {
	var kind ErrorKind
	var netErr net.Error
	var opErr *net.OpError
	var dnsErr *net.DNSError

	switch {
	case errors.Is(err, context.DeadlineExceeded):
		kind = KindTimeout
	case errors.As(err, &netErr) && netErr.Timeout():
		kind = KindTimeout
	case errors.As(err, &dnsErr), errors.As(err, &opErr):
		kind = KindConnectionFailure
	case isDisconnect(err), isTLSFailure(err):
		kind = KindConnectionFailure
	default:
		kind = KindFetchFailure
	}

	e := NewError(kind, "", "")
	e.Err = err
	return e
}

// isDisconnect reports a peer that closed or reset the connection before
// a full response arrived.
func isDisconnect(err error) bool {
	return errors.Is(err, io.EOF) ||
		errors.Is(err, io.ErrUnexpectedEOF) ||
		errors.Is(err, syscall.ECONNRESET) ||
		errors.Is(err, syscall.ECONNABORTED) ||
		errors.Is(err, syscall.EPIPE)
}

// isTLSFailure reports handshake and certificate errors.
func isTLSFailure(err error) bool {
	var verifyErr *tls.CertificateVerificationError
	var recordErr tls.RecordHeaderError
	var authorityErr x509.UnknownAuthorityError
	var hostnameErr x509.HostnameError
	var invalidErr x509.CertificateInvalidError
	return errors.As(err, &verifyErr) ||
		errors.As(err, &recordErr) ||
		errors.As(err, &authorityErr) ||
		errors.As(err, &hostnameErr) ||
		errors.As(err, &invalidErr)
}

// newHTTPClient creates an HTTP client with connection reuse. Per-call
// deadlines come from the request context.
func newHTTPClient() *http.Client {
	transport := &http.Transport{
		Proxy:               http.ProxyFromEnvironment,
		MaxIdleConns:        100,
		MaxIdleConnsPerHost: 10,
		IdleConnTimeout:     90 * time.Second,
		TLSHandshakeTimeout: 10 * time.Second,
		DisableCompression:  false,
		ForceAttemptHTTP2:   true,
	}
	return &http.Client{Transport: transport}
}
