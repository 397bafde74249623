package misa

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// statusDone is the only status value the upstream treats as terminal.
// Everything else, including an absent status, means still pending.
const statusDone = 3

// The upstream is inconsistent about field naming across poll responses,
// so each logical field is extracted through an explicit ordered alias
// list: first non-empty wins.
var (
	tokenAliases  = []string{"file_name_download", "FileNameDownload", "file_name", "FileName"}
	urlAliases    = []string{"FileUrl", "DownloadUrl", "file_url", "file_download_url", "DownloadPath"}
	statusAliases = []string{"Status", "status", "ExportStatus"}
)

// PollResult carries whichever download signals the loop gathered. FileURL
// and FileToken accumulate last-write-wins across polls; LastSnapshot is
// the raw body of the final poll response.
type PollResult struct {
	FileURL      string
	FileToken    string
	Attempts     int
	LastSnapshot json.RawMessage
}

// Poll issues up to PollMax status requests, each preceded by the poll
// interval. A non-empty file URL ends the loop immediately; the done status
// ends it even without a URL. Ending with neither a URL nor a token is a
// *NotReadyError.
func (c *Client) Poll(ctx context.Context, exportID string) (*PollResult, error) {
	if exportID == "" {
		return nil, errors.New("poll: export id is empty")
	}

	pollURL := c.cfg.BaseURL + pollPath + exportID
	result := &PollResult{}

	for i := 0; i < c.cfg.PollMax; i++ {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(c.cfg.PollInterval):
		}

		raw, err := c.doRequest(ctx, "GET", pollURL, nil, c.requestHeaders())
		if err != nil {
			return nil, fmt.Errorf("poll export %s: %w", exportID, err)
		}
		result.LastSnapshot = raw
		result.Attempts = i + 1

		data := dataObject(raw)
		if token := firstString(data, tokenAliases); token != "" {
			result.FileToken = token
		}
		if url := firstString(data, urlAliases); url != "" {
			result.FileURL = url
		}
		status, hasStatus := firstNumber(data, statusAliases)

		c.logger.Debug().
			Int("attempt", i+1).
			Str("export_id", exportID).
			Str("file_url", result.FileURL).
			Str("file_token", result.FileToken).
			Interface("status", statusOrNil(status, hasStatus)).
			Msg("poll cycle")

		if result.FileURL != "" {
			break
		}
		if hasStatus && status == statusDone {
			break
		}
	}

	if result.FileURL == "" && result.FileToken == "" {
		return nil, &NotReadyError{LastSnapshot: result.LastSnapshot}
	}
	return result, nil
}

// dataObject extracts the Data envelope from a poll response, defaulting to
// an empty object when absent or malformed.
func dataObject(raw json.RawMessage) map[string]any {
	var payload map[string]any
	if err := json.Unmarshal(raw, &payload); err != nil {
		return map[string]any{}
	}
	if data, ok := payload["Data"].(map[string]any); ok {
		return data
	}
	return map[string]any{}
}

func firstString(data map[string]any, aliases []string) string {
	for _, key := range aliases {
		if s, ok := data[key].(string); ok && s != "" {
			return s
		}
	}
	return ""
}

func firstNumber(data map[string]any, aliases []string) (float64, bool) {
	for _, key := range aliases {
		if n, ok := data[key].(float64); ok {
			return n, true
		}
	}
	return 0, false
}

func statusOrNil(status float64, ok bool) any {
	if !ok {
		return nil
	}
	return status
}
