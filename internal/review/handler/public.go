// Package handler exposes the review workflow over HTTP: the unauthenticated
// public surface customers hit through their review link, and the
// authenticated back-office surface.
package handler

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"worksign/internal/review"
	"worksign/internal/review/service"
	dErrors "worksign/pkg/domain-errors"
	"worksign/pkg/httputil"
	"worksign/pkg/requestcontext"
)

// maxDecisionBody bounds the POST body; geometries are small and attachments
// travel separately.
const maxDecisionBody = 1 << 20

// maxAttachmentSize bounds a single uploaded file.
const maxAttachmentSize = 32 << 20

// PublicService is the gateway surface the public handler needs.
type PublicService interface {
	RenderPayload(ctx context.Context, jti string) (*service.ReviewPayload, error)
	SubmitDecision(ctx context.Context, jti string, body []byte) (*service.SubmitResult, error)
	UploadAttachment(ctx context.Context, jti, filename, contentType string, size int64, body io.Reader) (review.Attachment, error)
}

// Public wires the token-gated customer endpoints to the gateway.
type Public struct {
	service PublicService
	logger  *slog.Logger
}

func NewPublic(service PublicService, logger *slog.Logger) *Public {
	return &Public{service: service, logger: logger}
}

// Register mounts the public endpoints on the router.
func (h *Public) Register(r chi.Router) {
	r.Get("/public/review/item/{jti}/", h.HandleGet)
	r.Post("/public/review/item/{jti}/", h.HandleSubmit)
	r.Post("/public/review/item/{jti}/attachments/", h.HandleUpload)
}

// HandleGet handles GET /public/review/item/{jti}/.
func (h *Public) HandleGet(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	jti := chi.URLParam(r, "jti")

	payload, err := h.service.RenderPayload(ctx, jti)
	if err != nil {
		h.logReviewError(ctx, "render review payload failed", err)
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, payload)
}

// HandleSubmit handles POST /public/review/item/{jti}/. The raw body goes to
// the gateway unparsed; parsing inside the transaction keeps token-state
// errors ahead of malformed-body errors.
func (h *Public) HandleSubmit(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	jti := chi.URLParam(r, "jti")
	start := time.Now()

	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxDecisionBody))
	if err != nil {
		httputil.WriteError(w, dErrors.Wrap(err, dErrors.CodeBadRequest, "could not read request body"))
		return
	}

	result, err := h.service.SubmitDecision(ctx, jti, body)
	if err != nil {
		h.logReviewError(ctx, "decision submission failed", err)
		httputil.WriteError(w, err)
		return
	}

	h.logger.InfoContext(ctx, "decision recorded",
		"request_id", requestcontext.RequestID(ctx),
		"decision_id", result.DecisionID,
		"review_status", result.ReviewStatus,
		"duration_ms", time.Since(start).Milliseconds(),
	)
	httputil.WriteJSON(w, http.StatusOK, result)
}

// HandleUpload handles POST /public/review/item/{jti}/attachments/ as a
// multipart form with a single "file" part.
func (h *Public) HandleUpload(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	jti := chi.URLParam(r, "jti")

	if err := r.ParseMultipartForm(maxAttachmentSize); err != nil {
		httputil.WriteError(w, dErrors.Wrap(err, dErrors.CodeBadRequest, "could not parse multipart form"))
		return
	}
	file, header, err := r.FormFile("file")
	if err != nil {
		httputil.WriteError(w, dErrors.Wrap(err, dErrors.CodeBadRequest, "a \"file\" part is required"))
		return
	}
	defer file.Close()

	att, err := h.service.UploadAttachment(ctx, jti, header.Filename, header.Header.Get("Content-Type"), header.Size, file)
	if err != nil {
		h.logReviewError(ctx, "attachment upload failed", err)
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, att)
}

// logReviewError keeps expected token-state outcomes at debug level; only
// unexpected failures deserve a warning. The jti never reaches the log.
func (h *Public) logReviewError(ctx context.Context, msg string, err error) {
	attrs := []any{
		"request_id", requestcontext.RequestID(ctx),
		"code", string(dErrors.CodeOf(err)),
	}
	switch dErrors.CodeOf(err) {
	case dErrors.CodeInternal, dErrors.CodeConstraintViolation:
		h.logger.ErrorContext(ctx, msg, append(attrs, "error", err)...)
	default:
		h.logger.DebugContext(ctx, msg, attrs...)
	}
}
