package misa

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
)

// Candidate is one hypothesis about where the finished file lives: a
// request recipe tried in fixed fallback order.
type Candidate struct {
	Method  string
	URL     string
	Headers map[string]string
}

// DownloadResult is the first successful binary payload and the candidate
// URL that produced it. Attempts lists the candidates that failed first.
type DownloadResult struct {
	Body      []byte
	SourceURL string
	Attempts  []Attempt
}

// ResolveDownloadCandidates builds the ordered candidate list: the resolved
// file URL when present, then the temp-file endpoint and the download_file
// endpoint parameterized by the token. outName is the desired client-side
// file name forwarded to the temp-file endpoint.
func (c *Client) ResolveDownloadCandidates(fileURL, fileToken, dbID, outName string) []Candidate {
	headers := c.downloadHeaders()
	base := strings.TrimRight(c.cfg.BaseURL, "/")
	var candidates []Candidate

	if fileURL != "" {
		resolved := fileURL
		if !strings.HasPrefix(fileURL, "http") {
			resolved = base + "/" + strings.TrimPrefix(fileURL, "/")
		}
		candidates = append(candidates, Candidate{Method: http.MethodGet, URL: resolved, Headers: headers})
	}

	if fileToken != "" {
		cleanToken := strings.TrimPrefix(fileToken, "/")
		candidates = append(candidates,
			Candidate{
				Method: http.MethodGet,
				URL: fmt.Sprintf("%s%s?type=Temp&file=%s&dbid=%s&name=%s",
					base, tempFilePath,
					url.QueryEscape(cleanToken), url.QueryEscape(dbID), url.QueryEscape(outName)),
				Headers: headers,
			},
			Candidate{
				Method:  http.MethodGet,
				URL:     base + downloadFilePath + cleanToken,
				Headers: headers,
			},
		)
	}

	return candidates
}

// Download tries each candidate strictly in order and returns the first
// successful payload. Every transport or non-2xx failure is appended to the
// attempt log and the next candidate is tried; exhaustion (or an empty
// list) is a *DownloadError carrying the full log and the last poll
// snapshot for diagnostics.
func (c *Client) Download(ctx context.Context, candidates []Candidate, lastSnapshot json.RawMessage) (*DownloadResult, error) {
	var attempts []Attempt

	for _, candidate := range candidates {
		body, status, err := c.fetchBinary(ctx, candidate)
		if err != nil {
			attempts = append(attempts, Attempt{URL: candidate.URL, Status: status})
			c.logger.Warn().Str("url", candidate.URL).Int("status", status).Err(err).Msg("download candidate failed")
			continue
		}
		c.logger.Info().Str("url", candidate.URL).Int("bytes", len(body)).Msg("export file downloaded")
		return &DownloadResult{Body: body, SourceURL: candidate.URL, Attempts: attempts}, nil
	}

	return nil, &DownloadError{Attempts: attempts, LastSnapshot: lastSnapshot}
}

func (c *Client) fetchBinary(ctx context.Context, candidate Candidate) ([]byte, int, error) {
	req, err := http.NewRequestWithContext(ctx, candidate.Method, candidate.URL, nil)
	if err != nil {
		return nil, 0, err
	}
	for k, v := range candidate.Headers {
		req.Header.Set(k, v)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, 0, err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, resp.StatusCode, fmt.Errorf("unexpected status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, resp.StatusCode, err
	}
	return body, resp.StatusCode, nil
}
