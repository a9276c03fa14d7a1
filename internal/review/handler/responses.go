package handler

import (
	"time"

	"github.com/google/uuid"

	"worksign/internal/review"
	"worksign/internal/review/service"
)

// RoundResponse is the back-office view of a review round.
type RoundResponse struct {
	ID           uuid.UUID  `json:"id"`
	WorkItemID   uuid.UUID  `json:"work_item_id"`
	Version      int        `json:"version"`
	Status       string     `json:"status"`
	Deadline     *time.Time `json:"deadline,omitempty"`
	PublicNote   string     `json:"public_note"`
	SnapshotHash string     `json:"snapshot_hash,omitempty"`
	CreatedAt    time.Time  `json:"created_at"`
	UpdatedAt    time.Time  `json:"updated_at"`
	ClosedAt     *time.Time `json:"closed_at,omitempty"`
}

// TokenResponse is the back-office view of a capability token. The jti is
// exposed here: this surface is authenticated and operators need it to
// revoke.
type TokenResponse struct {
	JTI         string     `json:"jti"`
	RecipientID uuid.UUID  `json:"recipient_id"`
	State       string     `json:"state"`
	IssuedAt    time.Time  `json:"issued_at"`
	ExpiresAt   time.Time  `json:"expires_at"`
	UsedAt      *time.Time `json:"used_at,omitempty"`
	RevokedAt   *time.Time `json:"revoked_at,omitempty"`
	DeliveredTo string     `json:"delivered_to,omitempty"`
}

// DecisionResponse is the back-office view of a recorded decision.
type DecisionResponse struct {
	ID          uuid.UUID           `json:"id"`
	RecipientID uuid.UUID           `json:"recipient_id"`
	Action      string              `json:"action"`
	Comment     string              `json:"comment"`
	Attachments []review.Attachment `json:"attachments,omitempty"`
	DecidedAt   time.Time           `json:"decided_at"`
}

// RoundDetailResponse is the aggregate for GET /internal/reviews/{id}.
type RoundDetailResponse struct {
	Round     RoundResponse      `json:"round"`
	Decisions []DecisionResponse `json:"decisions"`
	Tokens    []TokenResponse    `json:"tokens"`
}

// OpenRoundResponse confirms a round was opened and a link issued.
type OpenRoundResponse struct {
	Round RoundResponse `json:"round"`
	Link  string        `json:"link"`
}

// SweepResponse reports the outcome of an expiry sweep.
type SweepResponse struct {
	Expired int `json:"expired"`
}

func fromRound(r *review.Round) RoundResponse {
	return RoundResponse{
		ID:           r.ID,
		WorkItemID:   r.WorkItemID,
		Version:      r.Version,
		Status:       string(r.Status),
		Deadline:     r.Deadline,
		PublicNote:   r.PublicNote,
		SnapshotHash: r.SnapshotHash,
		CreatedAt:    r.CreatedAt,
		UpdatedAt:    r.UpdatedAt,
		ClosedAt:     r.ClosedAt,
	}
}

func fromToken(t *review.Token, now time.Time) TokenResponse {
	return TokenResponse{
		JTI:         t.JTI,
		RecipientID: t.RecipientID,
		State:       string(t.Validity(now, t.Scope)),
		IssuedAt:    t.IssuedAt,
		ExpiresAt:   t.ExpiresAt,
		UsedAt:      t.UsedAt,
		RevokedAt:   t.RevokedAt,
		DeliveredTo: t.DeliveredTo,
	}
}

func fromDecision(d *review.Decision) DecisionResponse {
	return DecisionResponse{
		ID:          d.ID,
		RecipientID: d.RecipientID,
		Action:      string(d.Action),
		Comment:     d.Comment,
		Attachments: d.Attachments,
		DecidedAt:   d.DecidedAt,
	}
}

func fromRoundDetail(detail *service.RoundDetail, now time.Time) RoundDetailResponse {
	resp := RoundDetailResponse{
		Round:     fromRound(detail.Round),
		Decisions: make([]DecisionResponse, 0, len(detail.Decisions)),
		Tokens:    make([]TokenResponse, 0, len(detail.Tokens)),
	}
	for _, d := range detail.Decisions {
		resp.Decisions = append(resp.Decisions, fromDecision(d))
	}
	for _, t := range detail.Tokens {
		resp.Tokens = append(resp.Tokens, fromToken(t, now))
	}
	return resp
}
