package misa

import (
	"encoding/json"
	"fmt"
)

// QueueError means the queue endpoint answered but carried no export id.
// Body keeps the raw response for diagnostics.
type QueueError struct {
	Body json.RawMessage
}

func (e *QueueError) Error() string {
	return "export service did not return an export id"
}

// NotReadyError means the poll loop exhausted its attempts (or saw the done
// status) without a usable download signal. LastSnapshot is the raw body of
// the final poll response, kept for operator inspection.
type NotReadyError struct {
	LastSnapshot json.RawMessage
}

func (e *NotReadyError) Error() string {
	return "export finished without providing a download url"
}

// Attempt records one failed download candidate. Status is zero when the
// failure happened before an HTTP status was received.
type Attempt struct {
	URL    string `json:"url"`
	Status int    `json:"status,omitempty"`
}

// DownloadError means every download candidate failed (or none existed).
type DownloadError struct {
	Attempts     []Attempt
	LastSnapshot json.RawMessage
}

func (e *DownloadError) Error() string {
	return fmt.Sprintf("unable to download exported file from remote service (%d candidates tried)", len(e.Attempts))
}
