package handlers

import (
	"net/http"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/google/uuid"

	"media-shrinker/internal/blobstore"
	"media-shrinker/internal/jobs"
	"media-shrinker/internal/logging"
	"media-shrinker/internal/mediatypes"
)

// maxPartNumber is the S3 limit on parts per multipart upload.
const maxPartNumber = 10000

type initiateRequest struct {
	Filename    string `json:"filename" validate:"required,max=255"`
	ContentType string `json:"contentType" validate:"omitempty,max=255"`
}

type initiateResponse struct {
	UploadID string `json:"uploadId"`
	Key      string `json:"key"`
}

type partRequest struct {
	ETag       string `json:"ETag" validate:"required"`
	PartNumber int32  `json:"PartNumber" validate:"min=1,max=10000"`
}

type completeRequest struct {
	Key      string        `json:"key" validate:"required,startswith=uploads/"`
	UploadID string        `json:"uploadId" validate:"required"`
	Parts    []partRequest `json:"parts" validate:"required,min=1,dive"`
}

type completeResponse struct {
	Key    string `json:"key"`
	TaskID string `json:"taskId"`
}

// InitiateUpload starts a multipart upload under uploads/<uuid>-<filename>.
func (h *Handlers) InitiateUpload(w http.ResponseWriter, r *http.Request) {
	var req initiateRequest
	if err := h.decodeJSON(r, &req); err != nil {
		writeJSONError(w, err.Error(), http.StatusBadRequest)
		return
	}

	contentType := req.ContentType
	if contentType == "" {
		contentType = mediatypes.GetMimeType(filepath.Ext(req.Filename))
	}
	key := jobs.UploadKey(uuid.NewString(), req.Filename)

	uploadID, err := h.uploads.CreateMultipartUpload(r.Context(), key, contentType)
	if err != nil {
		logging.Error("Failed to initiate upload for %s: %v", key, err)
		writeJSONError(w, "failed to initiate upload", http.StatusBadGateway)
		return
	}

	logging.Debug("Initiated upload %s for %s (%s)", uploadID, key, contentType)
	writeJSONStatusCode(w, http.StatusOK, initiateResponse{UploadID: uploadID, Key: key})
}

// GetPartURL presigns the upload of one part.
func (h *Handlers) GetPartURL(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	key := q.Get("key")
	uploadID := q.Get("uploadId")
	rawPart := q.Get("partNumber")
	if key == "" || uploadID == "" || rawPart == "" {
		writeJSONError(w, "key, uploadId and partNumber are required", http.StatusBadRequest)
		return
	}
	if !strings.HasPrefix(key, jobs.UploadPrefix) {
		writeJSONError(w, "key must be an upload key", http.StatusBadRequest)
		return
	}

	partNumber, err := strconv.ParseInt(rawPart, 10, 32)
	if err != nil || partNumber < 1 || partNumber > maxPartNumber {
		writeJSONError(w, "partNumber must be an integer between 1 and 10000", http.StatusBadRequest)
		return
	}

	url, err := h.uploads.PresignPartUpload(r.Context(), key, uploadID, int32(partNumber), h.partURLTTL)
	if err != nil {
		logging.Error("Failed to presign part %d of %s: %v", partNumber, key, err)
		writeJSONError(w, "failed to presign part upload", http.StatusBadGateway)
		return
	}

	w.Header().Set("Cache-Control", "no-store")
	writeJSONStatusCode(w, http.StatusOK, map[string]string{"url": url})
}

// CompleteUpload finishes a multipart upload and queues its conversion.
func (h *Handlers) CompleteUpload(w http.ResponseWriter, r *http.Request) {
	var req completeRequest
	if err := h.decodeJSON(r, &req); err != nil {
		writeJSONError(w, err.Error(), http.StatusBadRequest)
		return
	}

	parts := make([]blobstore.CompletedPart, len(req.Parts))
	for i, p := range req.Parts {
		parts[i] = blobstore.CompletedPart{ETag: p.ETag, PartNumber: p.PartNumber}
	}

	ctx := r.Context()
	if err := h.uploads.CompleteMultipartUpload(ctx, req.Key, req.UploadID, blobstore.SortParts(parts)); err != nil {
		logging.Error("Failed to complete upload %s: %v", req.Key, err)
		writeJSONError(w, "failed to complete upload", http.StatusBadGateway)
		return
	}

	taskID, err := h.queue.Enqueue(ctx, req.Key, jobs.TriggerComplete)
	if err != nil {
		logging.Error("Upload %s completed but conversion could not be queued: %v", req.Key, err)
		writeJSONError(w, "upload completed but conversion could not be queued", http.StatusServiceUnavailable)
		return
	}

	writeJSONStatusCode(w, http.StatusAccepted, completeResponse{Key: req.Key, TaskID: taskID})
}
