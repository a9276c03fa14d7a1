package service

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/paulmach/orb"

	"worksign/internal/geometry"
	"worksign/internal/review"
	dErrors "worksign/pkg/domain-errors"
)

// Recorder validates and persists customer decisions. It never transitions
// the review round or consumes the token; the gateway orchestrates those in
// the same transaction.
type Recorder struct {
	clock Clock
}

func NewRecorder(clock Clock) *Recorder {
	if clock == nil {
		clock = time.Now
	}
	return &Recorder{clock: clock}
}

// RecordInput carries one decision submission. GeomGeoJSON is the raw
// client-provided geometry in the display CRS; nil or JSON null means absent.
type RecordInput struct {
	Round        *review.Round
	RecipientID  uuid.UUID
	Action       string
	Comment      string
	GeomGeoJSON  json.RawMessage
	Attachments  []review.Attachment
	SnapshotHash string
	IPAddress    string
	UserAgent    string
}

// Record validates in a fixed order, first failure wins:
// action, conditional comment/geometry presence, geometry parse+transform,
// and (via the store's unique constraint) one decision per recipient per
// round.
func (r *Recorder) Record(ctx context.Context, decisions review.DecisionStore, in RecordInput) (*review.Decision, error) {
	action := review.Action(strings.TrimSpace(in.Action))
	if !action.Valid() {
		return nil, dErrors.New(dErrors.CodeActionInvalid, "unsupported decision action")
	}

	comment := strings.TrimSpace(in.Comment)
	geomPresent := geomProvided(in.GeomGeoJSON)
	if action == review.ActionChangeRequested {
		if comment == "" {
			return nil, dErrors.New(dErrors.CodeCommentRequired, "a comment is required when requesting changes")
		}
		if !geomPresent {
			return nil, dErrors.New(dErrors.CodeGeometryRequired, "a geometry is required when requesting changes")
		}
	}

	var geom orb.Geometry
	if geomPresent {
		parsed, err := geometry.Decode(in.GeomGeoJSON)
		if err != nil {
			return nil, dErrors.Wrap(err, dErrors.CodeGeomInvalid, "invalid GeoJSON geometry")
		}
		if geometry.IsEmpty(parsed) {
			if action == review.ActionChangeRequested {
				return nil, dErrors.New(dErrors.CodeGeometryRequired, "a non-empty geometry is required when requesting changes")
			}
			return nil, dErrors.New(dErrors.CodeGeomInvalid, "geometry carries no coordinates")
		}
		geom = geometry.ToStorage(parsed)
	}

	decision := &review.Decision{
		ID:           uuid.New(),
		RoundID:      in.Round.ID,
		RecipientID:  in.RecipientID,
		Action:       action,
		Comment:      comment,
		Geom:         geom,
		Attachments:  in.Attachments,
		SnapshotHash: in.SnapshotHash,
		DecidedAt:    r.clock(),
		IPAddress:    in.IPAddress,
		UserAgent:    truncate(in.UserAgent, 512),
	}
	if err := decisions.Create(ctx, decision); err != nil {
		return nil, err
	}
	return decision, nil
}

// geomProvided treats absent, empty, and JSON null as "no geometry".
func geomProvided(raw json.RawMessage) bool {
	trimmed := strings.TrimSpace(string(raw))
	return trimmed != "" && trimmed != "null"
}

func truncate(s string, max int) string {
	if len(s) > max {
		return s[:max]
	}
	return s
}
