package api

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/sensorvault/upload-gateway/internal/apierror"
	"github.com/sensorvault/upload-gateway/internal/chunkstore"
	"github.com/sensorvault/upload-gateway/internal/metrics"
	"github.com/sensorvault/upload-gateway/internal/session"
	"github.com/sensorvault/upload-gateway/internal/storage"
	"github.com/sensorvault/upload-gateway/internal/uploadid"
)

const headerContentRange = "Content-Range"

// Upload is the combined C3/C4 entry point: a Content-Range status query
// ("bytes */<total>") dispatches to the status check, any other
// well-formed range dispatches to the chunk append.
func (h *Handlers) Upload(w http.ResponseWriter, r *http.Request) {
	correlationID := requestID(r)

	id, err := uploadid.Parse(chi.URLParam(r, "uploadID"))
	if err != nil {
		apierror.WriteJSON(w, h.logger, apierror.New(apierror.ErrSessionExpired, correlationID, "malformed upload identifier"))
		return
	}

	cr, err := chunkstore.ParseContentRange(r.Header.Get(headerContentRange))
	if err != nil {
		apierror.WriteJSON(w, h.logger, apierror.New(apierror.ErrUnparsable, correlationID, err.Error()))
		return
	}

	entry, ok := h.lookupSession(id)
	if !ok {
		apierror.WriteJSON(w, h.logger, apierror.New(apierror.ErrSessionExpired, correlationID, "no active session for this upload identifier"))
		return
	}

	if cr.IsStatusQuery {
		h.handleStatus(w, r, id, entry, correlationID)
		return
	}

	h.handleChunk(w, r, id, entry, cr, correlationID)
}

// lookupSession fetches the session for id and evicts it if its TTL has
// elapsed. The reaper never inspects the session store (only the temporary
// chunk directory), so this expiry check is the only place a stale entry
// is ever removed.
func (h *Handlers) lookupSession(id uploadid.UploadIdentifier) (*session.Entry, bool) {
	entry, ok := h.sessions.Get(id)
	if !ok {
		return nil, false
	}

	expiration := time.Duration(h.upload.ExpirationMillis) * time.Millisecond
	if h.now().Sub(entry.CreatedAt) > expiration {
		h.sessions.Delete(id)
		metrics.SessionsExpiredTotal.Inc()
		return nil, false
	}

	return entry, true
}

// handleStatus answers C4: a session that already has a stored
// measurement is complete (200), otherwise the client is told how many
// bytes the server has on disk so it can resume (308).
func (h *Handlers) handleStatus(w http.ResponseWriter, r *http.Request, id uploadid.UploadIdentifier, entry *session.Entry, correlationID string) {
	ctx := r.Context()

	stored, err := h.storage.IsStored(ctx, storage.KeyFromUploadable(entry.Uploadable))
	if err != nil {
		apierror.WriteJSON(w, h.logger, apierror.New(apierror.ErrStorageFailure, correlationID, err.Error()))
		return
	}

	if stored {
		w.Header().Set("Content-Length", "0")
		w.WriteHeader(http.StatusOK)
		return
	}

	bytesUploaded, err := h.storage.BytesUploaded(id)
	if err != nil {
		apierror.WriteJSON(w, h.logger, apierror.New(apierror.ErrStorageFailure, correlationID, err.Error()))
		return
	}

	respondResumeIncomplete(w, bytesUploaded)
}

// handleChunk answers C3: append the request body to the session's
// temporary chunk at the declared offset, discarding (rather than
// appending) any request whose offset no longer matches the chunk's
// current size, and committing to durable storage once the chunk reaches
// its declared total.
func (h *Handlers) handleChunk(w http.ResponseWriter, r *http.Request, id uploadid.UploadIdentifier, entry *session.Entry, cr chunkstore.ContentRange, correlationID string) {
	if cr.Total > h.upload.PayloadLimitBytes {
		h.abort(w, id, correlationID, apierror.New(apierror.ErrPayloadTooLarge, correlationID, "declared total exceeds configured limit"))
		return
	}

	entry.Lock()
	defer entry.Unlock()

	currentSize, err := h.storage.BytesUploaded(id)
	if err != nil {
		apierror.WriteJSON(w, h.logger, apierror.New(apierror.ErrStorageFailure, correlationID, err.Error()))
		return
	}

	if cr.From != currentSize {
		// A retried or racing request whose offset has fallen behind (or
		// ahead of) the server's view is discarded, not appended; the
		// client is told where the server actually is.
		respondResumeIncomplete(w, currentSize)
		return
	}

	limited := io.LimitReader(r.Body, cr.BodyLength())

	newSize, err := h.storage.Append(id, limited, currentSize)
	if err != nil {
		apierror.WriteJSON(w, h.logger, apierror.New(apierror.ErrStorageFailure, correlationID, err.Error()))
		return
	}

	written := newSize - currentSize
	if written != cr.BodyLength() {
		apierror.WriteJSON(w, h.logger, apierror.New(apierror.ErrContentRangeNotMatchingLength, correlationID,
			fmt.Sprintf("expected %d bytes, wrote %d", cr.BodyLength(), written)))
		return
	}

	metrics.ChunksAppendedTotal.Inc()
	metrics.ChunkBytesAppendedTotal.Add(float64(written))

	if newSize < cr.Total {
		respondResumeIncomplete(w, newSize)
		return
	}

	h.commit(r, w, id, entry, correlationID)
}

// commit is reached once the chunk on disk reaches its declared total. It
// streams the chunk into the storage backend and reports the outcome:
// success deletes the session and returns 201, a duplicate key returns
// 409 (someone else finished this measurement first), and any other
// storage failure retains the session and chunk so the client can retry.
func (h *Handlers) commit(r *http.Request, w http.ResponseWriter, id uploadid.UploadIdentifier, entry *session.Entry, correlationID string) {
	meas := storage.StoredMeasurement{
		DeviceIdentifier:      entry.Uploadable.DeviceIdentifier,
		MeasurementIdentifier: entry.Uploadable.MeasurementIdentifier,
		FileType:              entry.Uploadable.FileType(),
		UserID:                entry.User.ID,
		Uploadable:            entry.Uploadable,
		CreatedAt:             h.now(),
	}

	err := h.storage.Commit(r.Context(), id, meas)
	switch {
	case err == nil:
		h.sessions.Delete(id)
		metrics.UploadsCompletedTotal.WithLabelValues("stored").Inc()
		w.Header().Set("Content-Length", "0")
		w.WriteHeader(http.StatusCreated)
	case isDuplicate(err):
		h.sessions.Delete(id)
		metrics.UploadsCompletedTotal.WithLabelValues("duplicate").Inc()
		apierror.WriteJSON(w, h.logger, apierror.New(apierror.ErrDuplicate, correlationID, "measurement already stored"))
	default:
		metrics.UploadsCompletedTotal.WithLabelValues("storage_failure").Inc()
		apierror.WriteJSON(w, h.logger, apierror.New(apierror.ErrStorageFailure, correlationID, err.Error()))
	}
}

// abort rejects a chunk before any bytes are appended and, if the
// sentinel calls for it, cleans up the temporary chunk and session so a
// terminal rejection (payload too large) doesn't leave resumable state
// behind.
func (h *Handlers) abort(w http.ResponseWriter, id uploadid.UploadIdentifier, correlationID string, apiErr *apierror.Error) {
	if apierror.ShouldCleanupChunk(apiErr) {
		_ = h.storage.Clean(id)
		h.sessions.Delete(id)
	}

	apierror.WriteJSON(w, h.logger, apiErr)
}

func isDuplicate(err error) bool {
	return errors.Is(err, apierror.ErrDuplicate)
}

// respondResumeIncomplete writes the 308 Resume Incomplete response the
// resumable-upload protocol uses to report how many bytes the server has
// received so far. A Range header is only meaningful once at least one
// byte has landed.
func respondResumeIncomplete(w http.ResponseWriter, bytesUploaded int64) {
	if bytesUploaded > 0 {
		w.Header().Set("Range", "bytes=0-"+strconv.FormatInt(bytesUploaded-1, 10))
	}

	w.Header().Set("Content-Length", "0")
	w.WriteHeader(http.StatusPermanentRedirect)
}
