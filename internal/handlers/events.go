package handlers

import (
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"strings"

	"media-shrinker/internal/jobs"
	"media-shrinker/internal/logging"
)

// s3Event is the subset of an S3 event notification used here.
type s3Event struct {
	Records []s3EventRecord `json:"Records"`
}

type s3EventRecord struct {
	EventName string `json:"eventName"`
	S3        struct {
		Bucket struct {
			Name string `json:"name"`
		} `json:"bucket"`
		Object struct {
			Key  string `json:"key"`
			Size int64  `json:"size"`
		} `json:"object"`
	} `json:"s3"`
}

type queuedTask struct {
	Key    string `json:"key"`
	TaskID string `json:"taskId"`
}

type eventResponse struct {
	Queued  []queuedTask `json:"queued,omitempty"`
	Skipped bool         `json:"skipped,omitempty"`
	Reason  string       `json:"reason,omitempty"`
}

// Skip reasons reported for event records that are not queued.
const (
	reasonBucketMismatch = "bucket mismatch"
	reasonNotUpload      = "not an upload key"
)

// HandleS3Event queues a conversion for every uploaded object named in an
// S3 event notification.
func (h *Handlers) HandleS3Event(w http.ResponseWriter, r *http.Request) {
	var event s3Event
	if err := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes)).Decode(&event); err != nil {
		writeJSONError(w, "invalid event body", http.StatusBadRequest)
		return
	}
	if len(event.Records) == 0 {
		writeJSONError(w, "No records", http.StatusBadRequest)
		return
	}

	var resp eventResponse
	for _, rec := range event.Records {
		bucket := rec.S3.Bucket.Name
		if bucket != h.bucket {
			logging.Warn("Bucket mismatch: expected %s, got %s", h.bucket, bucket)
			resp.Reason = reasonBucketMismatch
			continue
		}

		// Keys in event notifications are URL-encoded with '+' for spaces.
		key, err := url.QueryUnescape(rec.S3.Object.Key)
		if err != nil {
			logging.Warn("Undecodable key in event: %q", rec.S3.Object.Key)
			resp.Reason = reasonNotUpload
			continue
		}
		if !strings.HasPrefix(key, jobs.UploadPrefix) {
			logging.Debug("Ignoring event for %s", key)
			resp.Reason = reasonNotUpload
			continue
		}

		taskID, err := h.queue.Enqueue(r.Context(), key, jobs.TriggerS3Event)
		if err != nil {
			logging.Error("Failed to queue conversion of %s: %v", key, err)
			writeJSONError(w, "conversion could not be queued", http.StatusServiceUnavailable)
			return
		}
		resp.Queued = append(resp.Queued, queuedTask{Key: key, TaskID: taskID})
	}

	if len(resp.Queued) == 0 {
		resp.Skipped = true
		writeJSONStatusCode(w, http.StatusOK, resp)
		return
	}
	resp.Reason = ""
	writeJSONStatusCode(w, http.StatusAccepted, resp)
}
