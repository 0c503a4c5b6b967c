package downloader

import (
	"compress/gzip"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/andybalholm/brotli"
	"golang.org/x/time/rate"

	"github.com/iconidentify/quickstage/internal/config"
)

// HTTPFetcher implements Fetcher over HTTP(S).
type HTTPFetcher struct {
	// client has a response header timeout but no overall timeout, so large
	// bodies are bounded by the stall watchdog instead.
	client      *http.Client
	userAgent   string
	readTimeout time.Duration
	maxSize     int64
	tempDir     string
	hosts       *HostSemaphore
	limiter     *rate.Limiter
	logger      *slog.Logger
}

// NewHTTPFetcher creates a fetcher from cfg. Downloads are staged in tempDir,
// or the OS temp dir when tempDir is empty.
func NewHTTPFetcher(cfg config.FetchConfig, tempDir string) *HTTPFetcher {
	transport := &http.Transport{
		Proxy:                 http.ProxyFromEnvironment,
		ResponseHeaderTimeout: cfg.HeaderTimeout,
		MaxIdleConnsPerHost:   cfg.PerHostLimit,
	}

	f := &HTTPFetcher{
		client:      &http.Client{Transport: transport},
		userAgent:   cfg.UserAgent,
		readTimeout: cfg.ReadTimeout,
		maxSize:     cfg.MaxFileSize,
		tempDir:     tempDir,
		hosts:       NewHostSemaphore(cfg.PerHostLimit),
		logger:      slog.Default(),
	}
	if cfg.RateLimit > 0 {
		burst := cfg.RateBurst
		if burst < 1 {
			burst = 1
		}
		f.limiter = rate.NewLimiter(rate.Limit(cfg.RateLimit), burst)
	}
	return f
}

// Standard returns a fetcher built from the default fetch configuration.
func Standard() *HTTPFetcher {
	return NewHTTPFetcher(config.DefaultFetchConfig(), "")
}

// SetLogger sets the logger for download progress reporting.
func (f *HTTPFetcher) SetLogger(logger *slog.Logger) {
	f.logger = logger
}

// Fetch downloads locator into a temporary file. It does not retry.
func (f *HTTPFetcher) Fetch(ctx context.Context, locator string) (string, error) {
	u, err := url.Parse(locator)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return "", fmt.Errorf("%w: %q", ErrUnsupportedScheme, locator)
	}

	release, err := f.hosts.Acquire(ctx, u.Scheme+"://"+u.Host)
	if err != nil {
		return "", err
	}
	defer release()

	if f.limiter != nil {
		if err := f.limiter.Wait(ctx); err != nil {
			return "", fmt.Errorf("rate limit: %w", err)
		}
	}

	ctx, cancel := context.WithCancelCause(ctx)
	defer cancel(nil)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, locator, nil)
	if err != nil {
		return "", fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("User-Agent", f.userAgent)
	req.Header.Set("Accept", "*/*")
	// Setting this by hand turns off transparent gzip in net/http; decode below.
	req.Header.Set("Accept-Encoding", "br, gzip")

	resp, err := f.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("send request: %w", err)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
	case http.StatusNotFound, http.StatusGone:
		return "", ErrNotFound
	case http.StatusUnauthorized, http.StatusForbidden:
		return "", ErrForbidden
	default:
		return "", &StatusError{Code: resp.StatusCode}
	}

	if f.maxSize > 0 && resp.ContentLength > f.maxSize {
		return "", fmt.Errorf("%w: content length %d", ErrTooLarge, resp.ContentLength)
	}

	var onRead func()
	if f.readTimeout > 0 {
		watchdog := time.AfterFunc(f.readTimeout, func() { cancel(ErrStalled) })
		defer watchdog.Stop()
		onRead = func() { watchdog.Reset(f.readTimeout) }
	}

	logger := f.logger.With("url", locator)
	body := newProgressReader(resp.Body, resp.ContentLength, logger, onRead)
	defer body.Close()

	decoded, err := decodeBody(resp.Header.Get("Content-Encoding"), body)
	if err != nil {
		return "", err
	}
	defer decoded.Close()

	path, err := f.writeTemp(decoded)
	if err != nil {
		if cause := context.Cause(ctx); errors.Is(cause, ErrStalled) {
			return "", fmt.Errorf("%w: no data received for %v", ErrStalled, f.readTimeout)
		}
		return "", err
	}

	logger.Debug("download complete", "path", path, "bytes", body.Downloaded())
	return path, nil
}

func (f *HTTPFetcher) writeTemp(r io.Reader) (string, error) {
	tmp, err := os.CreateTemp(f.tempDir, "quickstage-*.download")
	if err != nil {
		return "", fmt.Errorf("create temp file: %w", err)
	}

	src := r
	if f.maxSize > 0 {
		src = io.LimitReader(r, f.maxSize+1)
	}

	n, err := io.Copy(tmp, src)
	if cerr := tmp.Close(); err == nil {
		err = cerr
	}
	if err == nil && f.maxSize > 0 && n > f.maxSize {
		err = fmt.Errorf("%w: more than %d bytes", ErrTooLarge, f.maxSize)
	}
	if err != nil {
		os.Remove(tmp.Name())
		if errors.Is(err, ErrTooLarge) {
			return "", err
		}
		return "", fmt.Errorf("write body: %w", err)
	}
	return tmp.Name(), nil
}

func decodeBody(encoding string, r io.Reader) (io.ReadCloser, error) {
	switch strings.ToLower(strings.TrimSpace(encoding)) {
	case "", "identity":
		return io.NopCloser(r), nil
	case "br":
		return io.NopCloser(brotli.NewReader(r)), nil
	case "gzip", "x-gzip":
		zr, err := gzip.NewReader(r)
		if err != nil {
			return nil, fmt.Errorf("open gzip body: %w", err)
		}
		return zr, nil
	default:
		return nil, fmt.Errorf("unsupported content encoding %q", encoding)
	}
}
