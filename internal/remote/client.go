// Package remote talks to the remote ordered store over the Firebase
// Realtime Database REST protocol.
package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/septivank/sensor-monitor-worker/internal/apperr"
	"github.com/septivank/sensor-monitor-worker/internal/model"
)

const maxBodyBytes = 4 << 20

// Subscriber receives snapshots as the remote store changes. The REST
// client does not implement it; nothing in the pipeline depends on it.
type Subscriber interface {
	Subscribe(ctx context.Context, fn func(model.Snapshot)) error
}

// Client reads snapshots from one collection path and pushes mirrored
// readings to a sibling path.
type Client struct {
	baseURL    string
	path       string
	mirrorPath string
	httpClient *http.Client
	logger     *zap.Logger
}

// NewClient creates a client reading {baseURL}/{path}.json and pushing to
// {baseURL}/{mirrorPath}.json. An empty mirrorPath becomes path + "_mirror".
func NewClient(logger *zap.Logger, baseURL, path, mirrorPath string, timeout time.Duration) *Client {
	path = strings.Trim(path, "/")
	mirrorPath = strings.Trim(mirrorPath, "/")
	if mirrorPath == "" {
		mirrorPath = path + "_mirror"
	}
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		path:       path,
		mirrorPath: mirrorPath,
		httpClient: &http.Client{Timeout: timeout},
		logger:     logger,
	}
}

func (c *Client) collectionURL(path string) string {
	return c.baseURL + "/" + path + ".json"
}

// entryKind tells a mirrored reading written by an older worker apart from
// a device snapshot.
type entryKind struct {
	SensorType *string `json:"sensor_type"`
}

// FetchLatest returns up to limit snapshots ordered by timestamp, newest
// first. The limit is applied server side. Mirrored readings and entries
// without a positive timestamp are skipped; a snapshot missing any field
// fails the whole fetch with a DecodeError.
func (c *Client) FetchLatest(ctx context.Context, limit int) ([]model.Snapshot, error) {
	if limit <= 0 {
		return []model.Snapshot{}, nil
	}

	query := url.Values{}
	query.Set("orderBy", strconv.Quote("timestamp"))
	query.Set("limitToLast", strconv.Itoa(limit))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.collectionURL(c.path)+"?"+query.Encode(), nil)
	if err != nil {
		return nil, apperr.Transport("fetch latest", 0, err)
	}

	body, err := c.do(req, "fetch latest")
	if err != nil {
		return nil, err
	}

	// An empty collection is returned as null.
	var entries map[string]json.RawMessage
	if err := json.Unmarshal(body, &entries); err != nil {
		return nil, apperr.Decode("decode latest", err)
	}

	snapshots := make([]model.Snapshot, 0, len(entries))
	for key, raw := range entries {
		var kind entryKind
		if err := json.Unmarshal(raw, &kind); err != nil {
			return nil, apperr.Decode("decode latest", fmt.Errorf("entry %s: %w", key, err))
		}
		if kind.SensorType != nil {
			c.logger.Debug("skipping mirrored reading in snapshot collection", zap.String("key", key))
			continue
		}

		snapshot, err := model.DecodeSnapshot(raw)
		if err != nil {
			return nil, apperr.Decode("decode latest", fmt.Errorf("entry %s: %w", key, err))
		}
		if snapshot.Timestamp <= 0 {
			continue
		}
		snapshots = append(snapshots, snapshot)
	}

	sort.SliceStable(snapshots, func(i, j int) bool {
		return snapshots[i].Timestamp > snapshots[j].Timestamp
	})

	return snapshots, nil
}

type pushPayload struct {
	SensorType string  `json:"sensor_type"`
	Value      float64 `json:"value"`
	Timestamp  int64   `json:"timestamp"`
	IsAlert    bool    `json:"is_alert"`
}

// PushReading appends one reading to the mirror collection. Delivery is
// at-least-once: a retried push creates a duplicate entry.
func (c *Client) PushReading(ctx context.Context, reading model.Reading) error {
	payload, err := json.Marshal(pushPayload{
		SensorType: reading.SensorType,
		Value:      reading.Value,
		Timestamp:  reading.Timestamp,
		IsAlert:    reading.IsAlert,
	})
	if err != nil {
		return apperr.Decode("encode reading", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.collectionURL(c.mirrorPath), bytes.NewReader(payload))
	if err != nil {
		return apperr.Transport("push reading", 0, err)
	}
	req.Header.Set("Content-Type", "application/json")

	body, err := c.do(req, "push reading")
	if err != nil {
		return err
	}

	var created struct {
		Name string `json:"name"`
	}
	if err := json.Unmarshal(body, &created); err != nil {
		return apperr.Decode("decode push response", err)
	}

	c.logger.Debug("reading pushed to remote",
		zap.String("sensor_type", reading.SensorType),
		zap.String("path", c.mirrorPath),
		zap.String("key", created.Name),
	)
	return nil
}

func (c *Client) do(req *http.Request, op string) ([]byte, error) {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, apperr.Transport(op, 0, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, apperr.Transport(op, 0, fmt.Errorf("read body: %w", err))
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		c.logger.Debug("remote store rejected request",
			zap.String("op", op),
			zap.Int("status", resp.StatusCode),
			zap.ByteString("body", body),
		)
		return nil, apperr.Transport(op, resp.StatusCode, nil)
	}

	return body, nil
}
