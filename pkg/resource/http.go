package resource

import (
	"context"
	"crypto/tls"
	stderrors "errors"
	"io"
	"net"
	"net/http"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	"golang.org/x/net/http2"
	"golang.org/x/oauth2"

	"github.com/ajitpratap0/csvload/pkg/config"
	"github.com/ajitpratap0/csvload/pkg/errors"
)

// RedirectMessage prefixes the error returned when a redirect changes protocol class
const RedirectMessage = "The redirect URI has a different protocol: "

// httpFetcher opens http and https locations
type httpFetcher struct {
	cfg       config.NetworkConfig
	logger    *zap.Logger
	client    *http.Client
	transport *http.Transport
}

func newHTTPFetcher(cfg config.NetworkConfig, logger *zap.Logger) *httpFetcher {
	f := &httpFetcher{
		cfg:    cfg,
		logger: logger,
	}

	f.transport = &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   cfg.ConnectTimeout,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		MaxIdleConns:          100,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   cfg.TLSHandshakeTimeout,
		ResponseHeaderTimeout: cfg.ResponseHeaderTimeout,
		ExpectContinueTimeout: 1 * time.Second,
		TLSClientConfig: &tls.Config{
			InsecureSkipVerify: cfg.InsecureSkipVerify, //nolint:gosec // opt-in via configuration
			MinVersion:         tls.VersionTLS12,
		},
	}

	if cfg.EnableHTTP2 {
		if err := http2.ConfigureTransport(f.transport); err != nil {
			logger.Warn("failed to configure HTTP/2", zap.Error(err))
		}
	}

	var rt http.RoundTripper = f.transport
	if cfg.BearerToken != "" {
		rt = &oauth2.Transport{
			Source: oauth2.StaticTokenSource(&oauth2.Token{
				AccessToken: cfg.BearerToken,
				TokenType:   "Bearer",
			}),
			Base: f.transport,
		}
	}

	f.client = &http.Client{
		Transport:     rt,
		CheckRedirect: f.checkRedirect,
	}
	return f
}

func (f *httpFetcher) Class() Class {
	return ClassNetwork
}

// checkRedirect runs before any redirect target is contacted
func (f *httpFetcher) checkRedirect(req *http.Request, via []*http.Request) error {
	if len(via) > f.cfg.MaxRedirects {
		return errors.Newf(errors.ErrorTypeResource, "stopped after %d redirects", f.cfg.MaxRedirects).
			WithDetail("location", via[0].URL.String())
	}

	if ClassOf(req.URL.Scheme) != ClassOf(via[0].URL.Scheme) {
		target := req.URL.String()
		if req.Response != nil {
			if raw := req.Response.Header.Get("Location"); raw != "" {
				target = raw
			}
		}
		f.logger.Warn("redirect rejected",
			zap.String("location", via[0].URL.String()),
			zap.String("target", target))
		return errors.New(errors.ErrorTypeSecurity, RedirectMessage+target).
			WithDetail("location", via[0].URL.String())
	}
	return nil
}

func (f *httpFetcher) Fetch(ctx context.Context, loc *Location, headers map[string]string) (*Resource, error) {
	ctx, cancel := context.WithCancel(ctx)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, loc.URL.String(), nil)
	if err != nil {
		cancel()
		return nil, errors.Wrap(err, errors.ErrorTypeConfig, "invalid request").WithDetail("location", loc.Raw)
	}
	for key, value := range headers {
		req.Header.Set(key, value)
	}
	if req.Header.Get("User-Agent") == "" && f.cfg.UserAgent != "" {
		req.Header.Set("User-Agent", f.cfg.UserAgent)
	}

	resp, err := f.client.Do(req)
	if err != nil {
		cancel()
		return nil, classifyNetError(err, loc.Raw)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		_ = resp.Body.Close()
		cancel()
		errType := errors.ErrorTypeResource
		if resp.StatusCode == http.StatusNotFound || resp.StatusCode == http.StatusGone {
			errType = errors.ErrorTypeNotFound
		}
		return nil, errors.Newf(errType, "unexpected HTTP status %s", resp.Status).
			WithDetail("location", loc.Raw).
			WithDetail("status", resp.StatusCode)
	}

	body := newIdleTimeoutReader(resp.Body, f.cfg.ReadTimeout, cancel)
	return NewResource(body, resp.Request.URL.Path, resp.Header.Get("Content-Type"), resp.ContentLength), nil
}

// Close releases idle connections
func (f *httpFetcher) Close() error {
	f.transport.CloseIdleConnections()
	return nil
}

// classifyNetError maps a transport failure onto the error taxonomy. Errors
// raised by checkRedirect come back wrapped in *url.Error and are unwrapped.
func classifyNetError(err error, location string) error {
	var own *errors.Error
	if stderrors.As(err, &own) {
		return own
	}

	var netErr net.Error
	if stderrors.As(err, &netErr) && netErr.Timeout() || stderrors.Is(err, context.DeadlineExceeded) {
		return errors.Wrap(err, errors.ErrorTypeTimeout, "request timed out").WithDetail("location", location)
	}
	return errors.Wrap(err, errors.ErrorTypeResource, "request failed").WithDetail("location", location)
}

// idleTimeoutReader aborts a body read that receives no data for the
// configured duration by cancelling the request context. The timer only runs
// while a Read is in progress.
type idleTimeoutReader struct {
	body    io.ReadCloser
	timeout time.Duration
	timer   *time.Timer
	cancel  context.CancelFunc
	fired   atomic.Bool
}

func newIdleTimeoutReader(body io.ReadCloser, timeout time.Duration, cancel context.CancelFunc) *idleTimeoutReader {
	r := &idleTimeoutReader{
		body:    body,
		timeout: timeout,
		cancel:  cancel,
	}
	if timeout > 0 {
		r.timer = time.AfterFunc(timeout, func() {
			r.fired.Store(true)
			cancel()
		})
		r.timer.Stop()
	}
	return r
}

func (r *idleTimeoutReader) Read(p []byte) (int, error) {
	if r.timer == nil {
		return r.body.Read(p)
	}

	r.timer.Reset(r.timeout)
	n, err := r.body.Read(p)
	r.timer.Stop()

	if err != nil && err != io.EOF && r.fired.Load() {
		return n, errors.Newf(errors.ErrorTypeTimeout, "no data received for %s", r.timeout)
	}
	if err != nil && err != io.EOF {
		return n, errors.Wrap(err, errors.ErrorTypeResource, "failed to read response body")
	}
	return n, err
}

func (r *idleTimeoutReader) Close() error {
	if r.timer != nil {
		r.timer.Stop()
	}
	err := r.body.Close()
	r.cancel()
	return err
}
