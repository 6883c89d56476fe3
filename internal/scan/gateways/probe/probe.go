// Package probe builds and sends the HTTP requests the bisector issues:
// real probes carrying a chunk of candidate names, and random-name control
// probes used to test transport health and distinguish real diffs from page
// noise. It is the scanner's only component that performs real network I/O.
package probe

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/net/proxy"

	"github.com/paramhunt/paramhunt/internal/scan/common/log"
	"github.com/paramhunt/paramhunt/internal/scan/domain"
	"github.com/paramhunt/paramhunt/internal/scan/services/bisector"
)

// DialFunc establishes a network connection, injectable for tests and for
// routing probes through a SOCKS5 proxy.
type DialFunc func(ctx context.Context, network, address string) (net.Conn, error)

// Builder constructs requests against a fixed template and baseline,
// matching the teacher's pattern of an injectable Dial function and a
// bounded default HTTP client.
type Builder struct {
	template domain.RequestTemplate
	baseline domain.Response
	client   *http.Client
	logger   log.Logger
	retries  int
	backoff  time.Duration
}

// Options configures a Builder.
type Options struct {
	Template domain.RequestTemplate
	Baseline domain.Response
	Timeout  time.Duration
	ProxyURL string
	Retries  int
	Backoff  time.Duration
	Logger   log.Logger
	Dial     DialFunc
}

// NewBuilder constructs a Builder. When opts.ProxyURL is set, outbound
// connections are dialed through a SOCKS5 proxy instead of directly.
func NewBuilder(opts Options) (*Builder, error) {
	if opts.Timeout <= 0 {
		opts.Timeout = 10 * time.Second
	}
	if opts.Retries <= 0 {
		opts.Retries = 2
	}
	if opts.Backoff <= 0 {
		opts.Backoff = 200 * time.Millisecond
	}
	if opts.Logger == nil {
		opts.Logger = log.NewNoopLogger()
	}

	dial := opts.Dial
	if dial == nil {
		var err error
		dial, err = defaultDialer(opts.ProxyURL)
		if err != nil {
			return nil, fmt.Errorf("configure dialer: %w", err)
		}
	}

	transport := &http.Transport{
		DialContext:         dial,
		MaxIdleConnsPerHost: 32,
	}

	return &Builder{
		template: opts.Template,
		baseline: opts.Baseline,
		client:   &http.Client{Transport: transport, Timeout: opts.Timeout},
		logger:   opts.Logger,
		retries:  opts.Retries,
		backoff:  opts.Backoff,
	}, nil
}

// defaultDialer returns net.Dialer.DialContext, or a SOCKS5-proxied dialer
// when proxyURL is non-empty.
func defaultDialer(proxyURL string) (DialFunc, error) {
	if proxyURL == "" {
		return (&net.Dialer{}).DialContext, nil
	}
	u, err := url.Parse(proxyURL)
	if err != nil {
		return nil, fmt.Errorf("parse proxy url: %w", err)
	}
	dialer, err := proxy.FromURL(u, proxy.Direct)
	if err != nil {
		return nil, fmt.Errorf("build proxy dialer: %w", err)
	}
	return func(ctx context.Context, network, address string) (net.Conn, error) {
		type contextDialer interface {
			DialContext(ctx context.Context, network, address string) (net.Conn, error)
		}
		if cd, ok := dialer.(contextDialer); ok {
			return cd.DialContext(ctx, network, address)
		}
		return dialer.Dial(network, address)
	}, nil
}

// New builds a request carrying chunk plus a cache-buster.
func (b *Builder) New(chunk domain.Chunk) bisector.Request {
	return &request{builder: b, names: chunk.Names(), fresh: false}
}

// NewRandom builds a control request of the given arity using freshly
// generated random names.
func (b *Builder) NewRandom(arity int) bisector.Request {
	return &request{builder: b, names: randomNames(arity), fresh: true}
}

type request struct {
	builder *Builder
	names   []string
	fresh   bool
}

// Send issues the request once, with no retry.
func (r *request) Send(ctx context.Context) (domain.Response, error) {
	httpReq, err := r.build(ctx)
	if err != nil {
		return domain.Response{}, err
	}
	return do(r.builder.client, httpReq)
}

// WrappedSend issues the request with a bounded exponential-backoff retry
// envelope around transport-level failures. A successful HTTP exchange -
// any status code - is never retried; only connection/timeout failures are.
func (r *request) WrappedSend(ctx context.Context) (domain.Response, error) {
	var lastErr error
	delay := r.builder.backoff
	for attempt := 0; attempt <= r.builder.retries; attempt++ {
		resp, err := r.Send(ctx)
		if err == nil {
			return resp, nil
		}
		lastErr = err
		if attempt == r.builder.retries {
			break
		}
		select {
		case <-ctx.Done():
			return domain.Response{}, ctx.Err()
		case <-time.After(delay):
		}
		delay *= 2
	}
	return domain.Response{}, lastErr
}

// EmptyResponse returns a clone of the scan's baseline, used to substitute
// "no signal" when a probe fails but its control probe succeeds.
func (r *request) EmptyResponse() domain.Response {
	return r.builder.baseline
}

func (r *request) build(ctx context.Context) (*http.Request, error) {
	tmpl := r.builder.template
	values := url.Values{}
	for _, name := range r.names {
		values.Set(name, name)
	}
	values.Set("cb", cacheBuster())

	method := tmpl.Method
	if method == "" {
		method = http.MethodGet
	}

	var bodyReader io.Reader
	target := tmpl.URL
	switch strings.ToUpper(method) {
	case http.MethodGet, http.MethodHead:
		target = appendQuery(tmpl.URL, values)
	default:
		bodyReader = strings.NewReader(values.Encode())
	}

	httpReq, err := http.NewRequestWithContext(ctx, method, target, bodyReader)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	for k, v := range tmpl.Headers {
		httpReq.Header.Set(k, v)
	}
	if bodyReader != nil && httpReq.Header.Get("Content-Type") == "" {
		httpReq.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	}
	return httpReq, nil
}

func appendQuery(rawURL string, values url.Values) string {
	sep := "?"
	if strings.Contains(rawURL, "?") {
		sep = "&"
	}
	return rawURL + sep + values.Encode()
}

func do(client *http.Client, httpReq *http.Request) (domain.Response, error) {
	httpResp, err := client.Do(httpReq)
	if err != nil {
		return domain.Response{}, err
	}
	defer httpResp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(httpResp.Body, 8<<20))
	if err != nil {
		return domain.Response{}, fmt.Errorf("read response body: %w", err)
	}

	headers := make(map[string][]string, len(httpResp.Header))
	for k, v := range httpResp.Header {
		headers[strings.ToLower(k)] = v
	}

	return domain.Response{
		Code:    httpResp.StatusCode,
		Body:    string(body),
		Headers: headers,
	}, nil
}

func cacheBuster() string {
	return randomHex(6)
}

func randomNames(arity int) []string {
	names := make([]string, arity)
	for i := range names {
		names[i] = "x" + randomHex(8)
	}
	return names
}

func randomHex(n int) string {
	buf := make([]byte, n)
	_, _ = rand.Read(buf)
	return hex.EncodeToString(buf)
}

var _ bisector.ProbeBuilder = (*Builder)(nil)
var _ bisector.Request = (*request)(nil)
