package service

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"worksign/internal/attachment"
	"worksign/internal/audit"
	"worksign/internal/geometry"
	"worksign/internal/review"
	"worksign/internal/review/metrics"
	"worksign/internal/review/snapshot"
	"worksign/internal/workitem"
	dErrors "worksign/pkg/domain-errors"
	"worksign/pkg/requestcontext"
)

// Gateway is the unauthenticated boundary of the review workflow. The read
// path renders what the customer may see; the write path runs the atomic
// validate, decide, close sequence.
type Gateway struct {
	store       review.Store
	workItems   workitem.Store
	attachments attachment.Store
	issuer      *Issuer
	recorder    *Recorder
	clock       Clock
	metrics     *metrics.Metrics
	audit       audit.Emitter
	logger      *slog.Logger
}

func NewGateway(store review.Store, workItems workitem.Store, attachments attachment.Store, issuer *Issuer, recorder *Recorder, clock Clock, m *metrics.Metrics, emitter audit.Emitter, logger *slog.Logger) *Gateway {
	if clock == nil {
		clock = time.Now
	}
	return &Gateway{
		store:       store,
		workItems:   workItems,
		attachments: attachments,
		issuer:      issuer,
		recorder:    recorder,
		clock:       clock,
		metrics:     m,
		audit:       emitter,
		logger:      logger,
	}
}

// ReviewPayload is everything a valid token holder may see. Its review,
// work-item and geometry sections are also the fingerprinted snapshot body;
// SnapshotHash echoes the hash stored when the round was opened.
type ReviewPayload struct {
	Review         ReviewView      `json:"review"`
	WorkItem       WorkItemView    `json:"work_item"`
	Geometry       GeometryView    `json:"geometry"`
	AllowedActions []review.Action `json:"allowed_actions"`
	SnapshotHash   string          `json:"snapshot_hash"`
	Requires       Requirements    `json:"requires"`
}

type ReviewView struct {
	Version    int        `json:"version"`
	Status     string     `json:"status"`
	PublicNote string     `json:"public_note"`
	Deadline   *time.Time `json:"deadline,omitempty"`
	CreatedAt  time.Time  `json:"created_at"`
}

type WorkItemView struct {
	ID            uuid.UUID  `json:"id"`
	Label         string     `json:"label"`
	OperationType string     `json:"operation_type"`
	Quantity      float64    `json:"quantity"`
	Unit          string     `json:"unit"`
	PerformedAt   *time.Time `json:"performed_at,omitempty"`
	Status        string     `json:"status"`
}

// GeometryView carries the precomputed geometries reprojected into the
// display CRS as GeoJSON.
type GeometryView struct {
	RouteLine        json.RawMessage `json:"route_line,omitempty"`
	ProcessedPolygon json.RawMessage `json:"processed_polygon,omitempty"`
	SRID             int             `json:"srid"`
}

// Requirements tells the client which fields become mandatory per action.
type Requirements struct {
	CommentIfChangeRequested bool `json:"comment_if_change_requested"`
	GeomIfChangeRequested    bool `json:"geom_if_change_requested"`
}

// SubmitResult is the success body of the write path.
type SubmitResult struct {
	Result         string    `json:"result"`
	ReviewStatus   string    `json:"review_status"`
	WorkItemStatus string    `json:"work_item_status"`
	DecisionID     uuid.UUID `json:"decision_id"`
}

// decisionRequest is the write-path body. Geom is raw GeoJSON in the display
// CRS; DataSnapshotHash must echo the hash the customer was rendered.
type decisionRequest struct {
	Action           string              `json:"action"`
	Comment          string              `json:"comment"`
	Geom             json.RawMessage     `json:"geom"`
	Attachments      []review.Attachment `json:"attachments"`
	DataSnapshotHash string              `json:"data_snapshot_hash"`
}

// RenderPayload resolves and validates the token, then renders the review
// round for the customer. A non-active token yields only its error; nothing
// about the underlying round may leak to an invalid holder.
func (g *Gateway) RenderPayload(ctx context.Context, jti string) (*ReviewPayload, error) {
	token, err := g.store.Tokens().FindByJTI(ctx, jti)
	if err != nil {
		return nil, err
	}
	if err := g.checkValidity(token); err != nil {
		return nil, err
	}

	round, err := g.store.Rounds().FindByID(ctx, token.RoundID)
	if err != nil {
		return nil, err
	}
	item, err := g.workItems.FindByID(ctx, round.WorkItemID)
	if err != nil {
		return nil, err
	}

	body, err := SnapshotBody(round, item)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "render review payload")
	}
	return &ReviewPayload{
		Review:         body.Review,
		WorkItem:       body.WorkItem,
		Geometry:       body.Geometry,
		AllowedActions: review.AllowedActions(),
		SnapshotHash:   round.SnapshotHash,
		Requires: Requirements{
			CommentIfChangeRequested: true,
			GeomIfChangeRequested:    true,
		},
	}, nil
}

// SubmitDecision runs the write path as one atomic unit: lock the token,
// revalidate, parse, compare snapshots, record the decision, close the round,
// consume the token. Any failure rolls everything back. Body parsing happens
// inside the transaction so token-state errors keep precedence over BAD_JSON.
func (g *Gateway) SubmitDecision(ctx context.Context, jti string, body []byte) (*SubmitResult, error) {
	start := g.clock()

	var (
		decision *review.Decision
		round    *review.Round
	)
	err := g.store.RunInTx(ctx, jti, func(ctx context.Context, s review.Store) error {
		token, err := s.Tokens().FindByJTIForUpdate(ctx, jti)
		if err != nil {
			return err
		}
		if err := g.checkValidity(token); err != nil {
			return err
		}

		var req decisionRequest
		if err := json.Unmarshal(body, &req); err != nil {
			return dErrors.Wrap(err, dErrors.CodeBadJSON, "request body is not valid JSON")
		}

		round, err = s.Rounds().FindByID(ctx, token.RoundID)
		if err != nil {
			return err
		}
		// A sweep can expire the round while its token still has TTL left.
		// Reject before recording anything.
		if round.Status != review.StatusPending {
			return dErrors.New(dErrors.CodeTokenExpired, "review round is no longer open")
		}
		if !snapshot.Matches(round.SnapshotHash, req.DataSnapshotHash) {
			g.metrics.IncrementSnapshotMismatch()
			return dErrors.New(dErrors.CodeSnapshotOutdated, "the review data has changed since it was rendered; re-fetch and retry")
		}

		decision, err = g.recorder.Record(ctx, s.Decisions(), RecordInput{
			Round:        round,
			RecipientID:  token.RecipientID,
			Action:       req.Action,
			Comment:      req.Comment,
			GeomGeoJSON:  req.Geom,
			Attachments:  req.Attachments,
			SnapshotHash: req.DataSnapshotHash,
			IPAddress:    requestcontext.ClientIP(ctx),
			UserAgent:    requestcontext.UserAgent(ctx),
		})
		if err != nil {
			return err
		}

		if err := CloseWithOutcome(round, review.Status(decision.Action), g.clock()); err != nil {
			return err
		}
		if err := s.Rounds().Update(ctx, round); err != nil {
			return err
		}

		consumed, err := g.issuer.Consume(ctx, s.Tokens(), token, review.ScopeWorkItemReview)
		if err != nil {
			return err
		}
		if !consumed {
			// Unreachable after the validity check above while the lock is
			// held; treat as a replay we cannot honor.
			return dErrors.New(dErrors.CodeTokenUsed, "token is no longer active")
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	g.metrics.IncrementDecision(string(decision.Action))
	g.metrics.ObserveSubmitLatency(g.clock().Sub(start))

	// The collaborator owns the work-item status; pushing it is best-effort
	// and must never unwind the committed review transaction.
	itemStatus := workitem.StatusAccepted
	if decision.Action == review.ActionChangeRequested {
		itemStatus = workitem.StatusNeedsRework
	}
	if err := g.workItems.SetStatus(ctx, round.WorkItemID, itemStatus); err != nil {
		g.logger.Warn("work item status push failed",
			"work_item_id", round.WorkItemID,
			"status", itemStatus,
			"error", err,
		)
	}

	g.audit.Emit(ctx, audit.Event{
		Action:   audit.EventDecisionRecorded,
		Actor:    decision.RecipientID.String(),
		RoundID:  round.ID,
		TokenJTI: jti,
		Detail: map[string]string{
			"action":      string(decision.Action),
			"decision_id": decision.ID.String(),
		},
	})

	return &SubmitResult{
		Result:         "ok",
		ReviewStatus:   string(round.Status),
		WorkItemStatus: itemStatus,
		DecisionID:     decision.ID,
	}, nil
}

// UploadAttachment stores one attachment under the token's jti, gated by the
// same validity check as the read path. The returned metadata is what the
// client echoes back in the decision's attachments list.
func (g *Gateway) UploadAttachment(ctx context.Context, jti, filename, contentType string, size int64, body io.Reader) (review.Attachment, error) {
	token, err := g.store.Tokens().FindByJTI(ctx, jti)
	if err != nil {
		return review.Attachment{}, err
	}
	if err := g.checkValidity(token); err != nil {
		return review.Attachment{}, err
	}
	return g.attachments.Put(ctx, jti, filename, contentType, size, body)
}

// checkValidity maps a non-active token state onto its domain error. The
// observation feeds the validity counter either way.
func (g *Gateway) checkValidity(token *review.Token) error {
	state := token.Validity(g.clock(), review.ScopeWorkItemReview)
	g.metrics.ObserveTokenValidity(string(state))
	switch state {
	case review.TokenActive:
		return nil
	case review.TokenRevoked:
		return dErrors.New(dErrors.CodeTokenRevoked, "token has been revoked")
	case review.TokenUsed:
		return dErrors.New(dErrors.CodeTokenUsed, "token has already been used")
	case review.TokenExpired:
		return dErrors.New(dErrors.CodeTokenExpired, "token has expired")
	default:
		return dErrors.New(dErrors.CodeScopeMismatch, "token scope does not permit this operation")
	}
}

// SnapshotView is the fingerprinted portion of the customer payload. The
// allowed actions, requirements, and the hash itself stay out of it so the
// hash depends only on the data the customer judges.
type SnapshotView struct {
	Review   ReviewView   `json:"review"`
	WorkItem WorkItemView `json:"work_item"`
	Geometry GeometryView `json:"geometry"`
}

// SnapshotBody builds the fingerprintable view of a round and its work item.
// The same construction runs at open time (to store the hash) and at render
// time (to serve the payload), so the two can never drift apart.
func SnapshotBody(round *review.Round, item *workitem.WorkItem) (*SnapshotView, error) {
	route, err := geometry.Encode(geometry.ToDisplay(item.RouteLine))
	if err != nil {
		return nil, err
	}
	polygon, err := geometry.Encode(geometry.ToDisplay(item.ProcessedPolygon))
	if err != nil {
		return nil, err
	}
	return &SnapshotView{
		Review: ReviewView{
			Version:    round.Version,
			Status:     string(round.Status),
			PublicNote: round.PublicNote,
			Deadline:   round.Deadline,
			CreatedAt:  round.CreatedAt,
		},
		WorkItem: WorkItemView{
			ID:            item.ID,
			Label:         item.Label,
			OperationType: item.OperationType,
			Quantity:      item.Quantity,
			Unit:          item.Unit,
			PerformedAt:   item.PerformedAt,
			Status:        item.Status,
		},
		Geometry: GeometryView{
			RouteLine:        route,
			ProcessedPolygon: polygon,
			SRID:             geometry.SRIDDisplay,
		},
	}, nil
}

// FingerprintRound derives the snapshot hash for a round from its current
// work-item view.
func FingerprintRound(round *review.Round, item *workitem.WorkItem) (string, error) {
	body, err := SnapshotBody(round, item)
	if err != nil {
		return "", err
	}
	return snapshot.Fingerprint(body)
}
