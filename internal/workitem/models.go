// Package workitem exposes the externally-owned unit-of-work records the
// review workflow reads and, after a decision, pushes a status back to. All
// geometry here is precomputed upstream and stored in the storage CRS.
package workitem

import (
	"time"

	"github.com/google/uuid"
	"github.com/paulmach/orb"
)

// Work item statuses the review workflow propagates.
const (
	StatusCompleted   = "completed"
	StatusAccepted    = "accepted"
	StatusNeedsRework = "needs_rework"
)

// WorkItem is read-only reference data for rendering the customer payload.
type WorkItem struct {
	ID            uuid.UUID
	Label         string
	OperationType string
	Quantity      float64
	Unit          string
	PerformedAt   *time.Time
	Status        string

	// RouteLine is the surveyed road centerline; ProcessedPolygon the
	// derived work area. Both in the storage CRS, both optional.
	RouteLine        orb.Geometry
	ProcessedPolygon orb.Geometry
}
