package execution

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/me/virocov/pkg/cwl"
)

// HTTPStagerConfig contains HTTP/HTTPS stager settings.
type HTTPStagerConfig struct {
	// Timeout is the HTTP request timeout.
	Timeout time.Duration

	// MaxRetries is the number of attempts (default 1, no retry).
	MaxRetries int

	// RetryDelay is the initial delay between retries.
	RetryDelay time.Duration

	// Credentials maps hostnames to authentication credentials.
	Credentials map[string]CredentialSet

	// DefaultHeaders are headers added to all requests.
	DefaultHeaders map[string]string

	Logger *slog.Logger
}

// CredentialSet holds authentication for a host.
type CredentialSet struct {
	Type        string `yaml:"type"`         // "bearer", "basic", "header"
	Token       string `yaml:"token"`        // for bearer
	Username    string `yaml:"username"`     // for basic
	Password    string `yaml:"password"`     // for basic
	HeaderName  string `yaml:"header_name"`  // for header
	HeaderValue string `yaml:"header_value"` // for header
}

// HTTPStager handles HTTP/HTTPS file staging.
type HTTPStager struct {
	config HTTPStagerConfig
	client *http.Client
	logger *slog.Logger
}

// NewHTTPStager creates an HTTPStager with the given configuration.
func NewHTTPStager(cfg HTTPStagerConfig, tlsCfg *tls.Config) *HTTPStager {
	transport := &http.Transport{
		MaxIdleConns:        100,
		MaxIdleConnsPerHost: 10,
		IdleConnTimeout:     90 * time.Second,
		TLSClientConfig:     tlsCfg,
	}

	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 30 * time.Minute
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &HTTPStager{
		config: cfg,
		client: &http.Client{
			Timeout:   timeout,
			Transport: transport,
		},
		logger: logger.With("component", "http-stager"),
	}
}

// StageIn downloads a file from an HTTP/HTTPS URL to destPath.
func (s *HTTPStager) StageIn(ctx context.Context, location string, destPath string) error {
	scheme, _ := cwl.ParseLocationScheme(location)
	if scheme != cwl.SchemeHTTP && scheme != cwl.SchemeHTTPS {
		return fmt.Errorf("http stager: unsupported scheme %q", scheme)
	}

	if err := os.MkdirAll(filepath.Dir(destPath), 0o755); err != nil {
		return fmt.Errorf("http stager: mkdir: %w", err)
	}

	var lastErr error
	maxRetries := s.config.MaxRetries
	if maxRetries == 0 {
		maxRetries = 1
	}

	for attempt := 0; attempt < maxRetries; attempt++ {
		if attempt > 0 {
			delay := s.retryDelay(attempt)
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(delay):
			}
		}

		start := time.Now()
		n, err := s.download(ctx, location, destPath)
		if err == nil {
			s.logger.Info("downloaded", "url", location, "size", humanize.Bytes(uint64(n)), "elapsed", time.Since(start).Round(time.Millisecond))
			return nil
		}
		lastErr = err

		// Don't retry on client errors (4xx).
		if isClientError(err) {
			return err
		}
		s.logger.Warn("download attempt failed", "url", location, "attempt", attempt+1, "error", err)
	}

	return fmt.Errorf("http stager: download failed after %d attempts: %w", maxRetries, lastErr)
}

// download performs the actual HTTP GET and returns the bytes written.
func (s *HTTPStager) download(ctx context.Context, url string, destPath string) (int64, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return 0, fmt.Errorf("create request: %w", err)
	}

	s.applyAuth(req)
	for k, v := range s.config.DefaultHeaders {
		req.Header.Set(k, v)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return 0, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return 0, &httpError{
			StatusCode: resp.StatusCode,
			Body:       string(body),
		}
	}

	counter := &countingReader{r: resp.Body}
	if err := writeAtomic(destPath, counter); err != nil {
		return 0, err
	}
	return counter.n, nil
}

// applyAuth adds authentication to the request based on credentials.
func (s *HTTPStager) applyAuth(req *http.Request) {
	cred := s.lookupCredential(req.URL.Host)
	if cred == nil {
		return
	}
	switch cred.Type {
	case "bearer":
		req.Header.Set("Authorization", "Bearer "+cred.Token)
	case "basic":
		req.SetBasicAuth(cred.Username, cred.Password)
	case "header":
		if cred.HeaderName != "" {
			req.Header.Set(cred.HeaderName, cred.HeaderValue)
		}
	}
}

// lookupCredential finds credentials for a host, supporting *.domain wildcards.
func (s *HTTPStager) lookupCredential(host string) *CredentialSet {
	if s.config.Credentials == nil {
		return nil
	}

	if cred, ok := s.config.Credentials[host]; ok {
		return &cred
	}

	hostOnly := host
	if idx := strings.LastIndex(host, ":"); idx > 0 {
		hostOnly = host[:idx]
	}

	parts := strings.Split(hostOnly, ".")
	if len(parts) >= 2 {
		wildcard := "*." + strings.Join(parts[1:], ".")
		if cred, ok := s.config.Credentials[wildcard]; ok {
			return &cred
		}
	}

	return nil
}

// retryDelay calculates the delay for a retry attempt using exponential backoff.
func (s *HTTPStager) retryDelay(attempt int) time.Duration {
	delay := s.config.RetryDelay
	if delay == 0 {
		delay = time.Second
	}

	for i := 0; i < attempt; i++ {
		delay *= 2
	}

	if delay > 30*time.Second {
		delay = 30 * time.Second
	}

	return delay
}

type countingReader struct {
	r io.Reader
	n int64
}

func (c *countingReader) Read(p []byte) (int, error) {
	n, err := c.r.Read(p)
	c.n += int64(n)
	return n, err
}

// httpError represents an HTTP error response.
type httpError struct {
	StatusCode int
	Body       string
}

func (e *httpError) Error() string {
	if e.Body != "" {
		return fmt.Sprintf("HTTP %d: %s", e.StatusCode, e.Body)
	}
	return fmt.Sprintf("HTTP %d", e.StatusCode)
}

// isClientError returns true if the error is a 4xx client error.
func isClientError(err error) bool {
	var he *httpError
	if errors.As(err, &he) {
		return he.StatusCode >= 400 && he.StatusCode < 500
	}
	return false
}
