// README: Ride record created from a confirmed auction, and its status flow.
package ride

import (
	"time"

	"ridebid/internal/types"
)

type Status string

const (
	StatusAccepted   Status = "accepted"
	StatusInProgress Status = "in_progress"
	StatusCompleted  Status = "completed"
	StatusCancelled  Status = "cancelled"
)

// Ride shares its id with the auction that produced it.
type Ride struct {
	ID            types.ID    `json:"id"`
	CustomerID    types.ID    `json:"customer_id"`
	DriverID      types.ID    `json:"driver_id"`
	Fare          types.Money `json:"fare"`
	Status        Status      `json:"status"`
	StatusVersion int         `json:"status_version"`
	CreatedAt     time.Time   `json:"created_at"`
	StartedAt     *time.Time  `json:"started_at,omitempty"`
	CompletedAt   *time.Time  `json:"completed_at,omitempty"`
	CancelledAt   *time.Time  `json:"cancelled_at,omitempty"`
	CancelReason  *string     `json:"cancel_reason,omitempty"`
}

// AllowedTransitions represents the ride state flow (diagram) as code.
var AllowedTransitions = map[Status][]Status{
	StatusAccepted:   {StatusInProgress, StatusCancelled},
	StatusInProgress: {StatusCompleted},
}

func CanTransition(from, to Status) bool {
	next, ok := AllowedTransitions[from]
	if !ok {
		return false
	}
	for _, s := range next {
		if s == to {
			return true
		}
	}
	return false
}

// stamp sets the timestamp that belongs to status to.
func (r *Ride) stamp(to Status, at time.Time, reason *string) {
	t := at
	switch to {
	case StatusInProgress:
		r.StartedAt = &t
	case StatusCompleted:
		r.CompletedAt = &t
	case StatusCancelled:
		r.CancelledAt = &t
		r.CancelReason = reason
	}
}
