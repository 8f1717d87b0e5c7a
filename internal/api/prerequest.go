package api

import (
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/sensorvault/upload-gateway/internal/apierror"
	"github.com/sensorvault/upload-gateway/internal/authn"
	"github.com/sensorvault/upload-gateway/internal/metrics"
	"github.com/sensorvault/upload-gateway/internal/storage"
	"github.com/sensorvault/upload-gateway/internal/uploadable"
	"github.com/sensorvault/upload-gateway/internal/uploadid"
)

const headerUploadContentLength = "x-upload-content-length"

// PreRequest is C2: validate the Uploadable, check for a prior
// completion, allocate a session, and hand back a resumable location.
func (h *Handlers) PreRequest(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	correlationID := requestID(r)

	user, ok := authn.UserFromContext(ctx)
	if !ok {
		apierror.WriteJSON(w, h.logger, apierror.New(apierror.ErrUnauthorized, correlationID, "missing authenticated principal"))
		return
	}

	body, err := io.ReadAll(r.Body)
	if err != nil {
		apierror.WriteJSON(w, h.logger, apierror.New(apierror.ErrUnparsable, correlationID, "reading request body: "+err.Error()))
		return
	}

	u, err := uploadable.FromJSON(body)
	if err != nil {
		apierror.WriteJSON(w, h.logger, apierror.New(apierror.ErrUnparsable, correlationID, err.Error()))
		return
	}

	if err := uploadable.Validate(u); err != nil {
		metrics.PreRequestsTotal.WithLabelValues("rejected").Inc()
		apierror.WriteJSON(w, h.logger, apierror.FromWrapped(err, correlationID))
		return
	}

	if err := uploadable.ShouldSkipUpload(u); err != nil {
		metrics.PreRequestsTotal.WithLabelValues("rejected").Inc()
		apierror.WriteJSON(w, h.logger, apierror.FromWrapped(err, correlationID))
		return
	}

	declaredLength, err := parseUploadContentLength(r.Header.Get(headerUploadContentLength))
	if err != nil {
		metrics.PreRequestsTotal.WithLabelValues("rejected").Inc()
		apierror.WriteJSON(w, h.logger, apierror.FromWrapped(err, correlationID))
		return
	}

	if declaredLength > h.upload.PayloadLimitBytes {
		metrics.PreRequestsTotal.WithLabelValues("rejected").Inc()
		apierror.WriteJSON(w, h.logger, apierror.New(apierror.ErrPayloadTooLarge, correlationID, "declared upload length exceeds configured limit"))
		return
	}

	stored, err := h.storage.IsStored(ctx, storage.KeyFromUploadable(u))
	if err != nil {
		apierror.WriteJSON(w, h.logger, apierror.New(apierror.ErrStorageFailure, correlationID, err.Error()))
		return
	}
	if stored {
		metrics.PreRequestsTotal.WithLabelValues("duplicate").Inc()
		apierror.WriteJSON(w, h.logger, apierror.New(apierror.ErrDuplicate, correlationID, "measurement already stored"))
		return
	}

	id, err := uploadid.New()
	if err != nil {
		apierror.WriteJSON(w, h.logger, apierror.New(apierror.ErrStorageFailure, correlationID, "generating upload identifier: "+err.Error()))
		return
	}

	h.sessions.Create(id, u, user, h.now())
	metrics.PreRequestsTotal.WithLabelValues("accepted").Inc()

	location := h.resumableLocation(r, id)
	w.Header().Set("Location", location)
	w.Header().Set("Content-Length", "0")
	w.WriteHeader(http.StatusOK)
}

func parseUploadContentLength(raw string) (int64, error) {
	if raw == "" {
		return 0, fmt.Errorf("%w: missing x-upload-content-length header", apierror.ErrUnparsable)
	}

	n, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || n < 0 {
		return 0, fmt.Errorf("%w: invalid x-upload-content-length header", apierror.ErrUnparsable)
	}

	return n, nil
}

// resumableLocation builds the absolute resumable-upload URL for id,
// honoring X-Forwarded-Proto and stripping any uploadType query param.
func (h *Handlers) resumableLocation(r *http.Request, id uploadid.UploadIdentifier) string {
	scheme := "https"
	if proto := r.Header.Get("X-Forwarded-Proto"); proto != "" {
		scheme = proto
	} else if r.TLS == nil {
		scheme = "http"
	}

	u := url.URL{
		Scheme: scheme,
		Host:   r.Host,
		Path:   strings.TrimSuffix(h.httpPath, "/") + "/measurements/(" + id.String() + ")/",
	}

	return u.String()
}

func requestID(r *http.Request) string {
	if id := r.Header.Get("X-Request-Id"); id != "" {
		return id
	}

	return ""
}
