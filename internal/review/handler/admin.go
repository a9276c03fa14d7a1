package handler

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"worksign/internal/review"
	"worksign/internal/review/service"
	dErrors "worksign/pkg/domain-errors"
	"worksign/pkg/httputil"
	"worksign/pkg/requestcontext"
)

// AdminService is the back-office surface the admin handler needs.
type AdminService interface {
	CreateRound(ctx context.Context, workItemID uuid.UUID, publicNote string, deadline *time.Time) (*review.Round, error)
	OpenForReview(ctx context.Context, roundID, recipientID uuid.UUID) (*review.Round, *review.Token, error)
	CancelRound(ctx context.Context, roundID uuid.UUID) (*review.Round, error)
	RevokeToken(ctx context.Context, jti string) (bool, error)
	SweepExpired(ctx context.Context) (int, error)
	GetRound(ctx context.Context, roundID uuid.UUID) (*service.RoundDetail, error)
	ReviewLink(jti string) string
}

// Admin wires the authenticated back-office endpoints to the admin service.
// Authentication is applied by the router; handlers assume an actor is
// present in the context.
type Admin struct {
	service AdminService
	logger  *slog.Logger
	clock   service.Clock
}

func NewAdmin(svc AdminService, logger *slog.Logger, clock service.Clock) *Admin {
	if clock == nil {
		clock = time.Now
	}
	return &Admin{service: svc, logger: logger, clock: clock}
}

// Register mounts the back-office endpoints on the router.
func (h *Admin) Register(r chi.Router) {
	r.Post("/internal/reviews", h.HandleCreate)
	r.Get("/internal/reviews/{id}", h.HandleGet)
	r.Post("/internal/reviews/{id}/open", h.HandleOpen)
	r.Post("/internal/reviews/{id}/cancel", h.HandleCancel)
	r.Post("/internal/reviews/sweep-expired", h.HandleSweep)
	r.Post("/internal/tokens/{jti}/revoke", h.HandleRevoke)
}

// HandleCreate handles POST /internal/reviews.
func (h *Admin) HandleCreate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	req, ok := httputil.DecodeAndPrepare[CreateRoundRequest](w, r, h.logger)
	if !ok {
		return
	}

	round, err := h.service.CreateRound(ctx, req.ParsedWorkItemID(), req.PublicNote, req.Deadline)
	if err != nil {
		h.logger.ErrorContext(ctx, "create review round failed",
			"request_id", requestcontext.RequestID(ctx),
			"work_item_id", req.ParsedWorkItemID(),
			"error", err,
		)
		httputil.WriteError(w, err)
		return
	}

	h.logger.InfoContext(ctx, "review round created",
		"request_id", requestcontext.RequestID(ctx),
		"round_id", round.ID,
		"version", round.Version,
		"actor", requestcontext.Actor(ctx),
	)
	httputil.WriteJSON(w, http.StatusCreated, fromRound(round))
}

// HandleGet handles GET /internal/reviews/{id}.
func (h *Admin) HandleGet(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	roundID, ok := h.roundID(w, r)
	if !ok {
		return
	}

	detail, err := h.service.GetRound(ctx, roundID)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, fromRoundDetail(detail, h.clock()))
}

// HandleOpen handles POST /internal/reviews/{id}/open.
func (h *Admin) HandleOpen(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	roundID, ok := h.roundID(w, r)
	if !ok {
		return
	}
	req, ok := httputil.DecodeAndPrepare[OpenRoundRequest](w, r, h.logger)
	if !ok {
		return
	}

	round, token, err := h.service.OpenForReview(ctx, roundID, req.ParsedRecipientID())
	if err != nil {
		h.logger.ErrorContext(ctx, "open review round failed",
			"request_id", requestcontext.RequestID(ctx),
			"round_id", roundID,
			"error", err,
		)
		httputil.WriteError(w, err)
		return
	}

	h.logger.InfoContext(ctx, "review round opened",
		"request_id", requestcontext.RequestID(ctx),
		"round_id", round.ID,
		"recipient_id", req.ParsedRecipientID(),
		"actor", requestcontext.Actor(ctx),
	)
	httputil.WriteJSON(w, http.StatusOK, OpenRoundResponse{
		Round: fromRound(round),
		Link:  h.service.ReviewLink(token.JTI),
	})
}

// HandleCancel handles POST /internal/reviews/{id}/cancel.
func (h *Admin) HandleCancel(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	roundID, ok := h.roundID(w, r)
	if !ok {
		return
	}

	round, err := h.service.CancelRound(ctx, roundID)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	h.logger.InfoContext(ctx, "review round cancelled",
		"request_id", requestcontext.RequestID(ctx),
		"round_id", round.ID,
		"actor", requestcontext.Actor(ctx),
	)
	httputil.WriteJSON(w, http.StatusOK, fromRound(round))
}

// HandleSweep handles POST /internal/reviews/sweep-expired.
func (h *Admin) HandleSweep(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	expired, err := h.service.SweepExpired(ctx)
	if err != nil {
		h.logger.ErrorContext(ctx, "expiry sweep failed",
			"request_id", requestcontext.RequestID(ctx),
			"expired_before_failure", expired,
			"error", err,
		)
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, SweepResponse{Expired: expired})
}

// HandleRevoke handles POST /internal/tokens/{jti}/revoke.
func (h *Admin) HandleRevoke(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	jti := chi.URLParam(r, "jti")

	revoked, err := h.service.RevokeToken(ctx, jti)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	h.logger.InfoContext(ctx, "token revocation processed",
		"request_id", requestcontext.RequestID(ctx),
		"revoked", revoked,
		"actor", requestcontext.Actor(ctx),
	)
	httputil.WriteJSON(w, http.StatusOK, map[string]bool{"revoked": revoked})
}

func (h *Admin) roundID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "review round id must be a UUID"))
		return uuid.Nil, false
	}
	return id, true
}
