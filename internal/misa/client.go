// Package misa drives the export service's asynchronous job workflow:
// queue a report, poll until a download signal appears, then try each
// download candidate in order until one yields the file.
package misa

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/rs/zerolog"
)

const (
	queuePath        = "/g2/api/export/v1/export/save_param_worker_queue"
	pollPath         = "/g2/api/export/v1/export/get_notify_export_by_pull/"
	tempFilePath     = "/g2/api/file/v1/file/download"
	downloadFilePath = "/g2/api/export/v1/export/download_file/"
)

// Config carries everything a Client forwards to the remote service.
type Config struct {
	BaseURL       string
	Token         string
	Device        string
	ContextHeader string
	Cookie        string
	PollMax       int
	PollInterval  time.Duration
	HTTPClient    *http.Client
}

type Client struct {
	cfg        Config
	httpClient *http.Client
	logger     zerolog.Logger
}

func New(cfg Config, logger zerolog.Logger) *Client {
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 60 * time.Second}
	}
	if cfg.PollMax == 0 {
		cfg.PollMax = 20
	}
	if cfg.PollInterval == 0 {
		cfg.PollInterval = 2 * time.Second
	}
	return &Client{cfg: cfg, httpClient: httpClient, logger: logger}
}

// requestHeaders is the header set for queue/poll calls. Download calls use
// downloadHeaders, which drops the JSON content type for binary transfer.
func (c *Client) requestHeaders() map[string]string {
	headers := map[string]string{
		"Authorization":  c.cfg.Token,
		"X-Device":       c.cfg.Device,
		"X-MISA-Context": c.cfg.ContextHeader,
		"Content-Type":   "application/json",
		"Accept":         "application/json",
	}
	if c.cfg.Cookie != "" {
		headers["Cookie"] = c.cfg.Cookie
	}
	return headers
}

func (c *Client) downloadHeaders() map[string]string {
	headers := c.requestHeaders()
	delete(headers, "Content-Type")
	return headers
}

// Queue submits an ExportRequest and returns the export id issued by the
// remote queue worker. A response without an id is a *QueueError.
func (c *Client) Queue(ctx context.Context, req ExportRequest) (string, error) {
	payload, err := json.Marshal(req)
	if err != nil {
		return "", fmt.Errorf("encode export request: %w", err)
	}

	body, err := c.doRequest(ctx, http.MethodPost, c.cfg.BaseURL+queuePath, bytes.NewReader(payload), c.requestHeaders())
	if err != nil {
		return "", fmt.Errorf("queue export: %w", err)
	}

	exportID := digString(body, "Data", "export_id")
	if exportID == "" {
		return "", &QueueError{Body: body}
	}

	c.logger.Info().Str("export_id", exportID).Msg("export queued")
	return exportID, nil
}

func (c *Client) doRequest(ctx context.Context, method, url string, body io.Reader, headers map[string]string) (json.RawMessage, error) {
	req, err := http.NewRequestWithContext(ctx, method, url, body)
	if err != nil {
		return nil, err
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("unexpected status %d: %s", resp.StatusCode, truncate(raw, 512))
	}
	return raw, nil
}

// digString walks nested JSON objects and returns the value at the path as
// a string, tolerating numeric ids.
func digString(raw json.RawMessage, path ...string) string {
	var node any
	if err := json.Unmarshal(raw, &node); err != nil {
		return ""
	}
	for _, key := range path {
		obj, ok := node.(map[string]any)
		if !ok {
			return ""
		}
		node = obj[key]
	}
	switch v := node.(type) {
	case string:
		return v
	case float64:
		return fmt.Sprintf("%.0f", v)
	default:
		return ""
	}
}

func truncate(b []byte, n int) string {
	if len(b) <= n {
		return string(b)
	}
	return string(b[:n]) + "..."
}
