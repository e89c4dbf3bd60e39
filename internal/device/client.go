// Package device fetches sensor snapshots from the field device over HTTP.
package device

import (
	"context"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/septivank/sensor-monitor-worker/internal/apperr"
	"github.com/septivank/sensor-monitor-worker/internal/model"
)

// maxBodyBytes bounds the snapshot payload read from the device.
const maxBodyBytes = 1 << 20

// Client performs single GET requests against the device. It never retries.
type Client struct {
	httpClient *http.Client
	logger     *zap.Logger
}

// NewClient creates a device client whose requests are bounded by timeout.
func NewClient(logger *zap.Logger, timeout time.Duration) *Client {
	return &Client{
		httpClient: &http.Client{Timeout: timeout},
		logger:     logger,
	}
}

// FetchSnapshot issues one GET to deviceURL and decodes the JSON snapshot.
// Network failures and non-2xx responses are TransportErrors; a body that
// does not decode or lacks a field is a DecodeError.
func (c *Client) FetchSnapshot(ctx context.Context, deviceURL string) (model.Snapshot, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, deviceURL, nil)
	if err != nil {
		return model.Snapshot{}, apperr.Transport("fetch snapshot", 0, err)
	}
	req.Header.Set("Accept", "application/json")

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return model.Snapshot{}, apperr.Transport("fetch snapshot", 0, err)
	}
	defer resp.Body.Close()

	c.logger.Debug("device responded",
		zap.String("url", deviceURL),
		zap.Int("status", resp.StatusCode),
		zap.Duration("elapsed", time.Since(start)),
	)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		io.Copy(io.Discard, io.LimitReader(resp.Body, maxBodyBytes))
		return model.Snapshot{}, apperr.Transport("fetch snapshot", resp.StatusCode, nil)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return model.Snapshot{}, apperr.Transport("fetch snapshot", resp.StatusCode, err)
	}

	snapshot, err := model.DecodeSnapshot(body)
	if err != nil {
		return model.Snapshot{}, apperr.Decode("decode snapshot", err)
	}

	return snapshot, nil
}

// Target holds the device URL. It may be replaced at runtime while the
// worker loop is reading it.
type Target struct {
	url atomic.Pointer[string]
}

// NewTarget creates a target pointing at rawURL. The initial value comes
// from configuration and is not validated here.
func NewTarget(rawURL string) *Target {
	t := &Target{}
	t.url.Store(&rawURL)
	return t
}

// URL returns the current device URL.
func (t *Target) URL() string {
	return *t.url.Load()
}

// SetURL replaces the device URL. Only absolute http(s) URLs are accepted.
func (t *Target) SetURL(rawURL string) error {
	rawURL = strings.TrimSpace(rawURL)
	u, err := url.Parse(rawURL)
	if err != nil {
		return apperr.Config("url", "invalid device url: %v", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return apperr.Config("url", "device url must use http or https, got %q", rawURL)
	}
	if u.Host == "" {
		return apperr.Config("url", "device url has no host")
	}
	t.url.Store(&rawURL)
	return nil
}
