// README: Booking aggregate, status definitions and the allowed transition graph.
package booking

import (
	"time"

	"fixit/internal/types"
)

type Status string

const (
	StatusPending    Status = "pending"
	StatusAssigned   Status = "assigned"
	StatusInProgress Status = "in_progress"
	StatusCompleted  Status = "completed"
	StatusCancelled  Status = "cancelled"
)

const (
	ActorCustomer = "customer"
	ActorWorker   = "worker"
	ActorOperator = "operator"
	ActorSystem   = "system"
)

type Booking struct {
	ID            types.ID       `json:"id"`
	CustomerID    types.ID       `json:"customer_id"`
	WorkerID      *types.ID      `json:"worker_id,omitempty"`
	ServiceType   string         `json:"service_type"`
	Address       string         `json:"address"`
	Geo           *types.Point   `json:"geo,omitempty"`
	Status        Status         `json:"status"`
	StatusVersion int            `json:"status_version"`
	ScheduledAt   *time.Time     `json:"scheduled_at,omitempty"`
	EstimatedCost types.Money    `json:"estimated_cost"`
	FinalCost     *types.Money   `json:"final_cost,omitempty"`
	StatusHistory []HistoryEntry `json:"status_history"`
	CreatedAt     time.Time      `json:"created_at"`
	UpdatedAt     time.Time      `json:"updated_at"`
}

// HistoryEntry is one row of the append-only status log.
type HistoryEntry struct {
	Status    Status    `json:"status"`
	ActorType string    `json:"actor_type"`
	ActorID   *types.ID `json:"actor_id,omitempty"`
	Details   string    `json:"details,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// AllowedTransitions represents the booking state flow as code.
var AllowedTransitions = map[Status][]Status{
	StatusPending:    {StatusAssigned, StatusCancelled},
	StatusAssigned:   {StatusInProgress, StatusCancelled},
	StatusInProgress: {StatusCompleted, StatusCancelled},
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

func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusCancelled
}

func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusAssigned, StatusInProgress, StatusCompleted, StatusCancelled:
		return true
	}
	return false
}

// IsParty reports whether userID is the booking's customer or assigned worker.
func (b *Booking) IsParty(userID types.ID) bool {
	if b.CustomerID == userID {
		return true
	}
	return b.WorkerID != nil && *b.WorkerID == userID
}

func (b *Booking) clone() *Booking {
	cp := *b
	if b.WorkerID != nil {
		w := *b.WorkerID
		cp.WorkerID = &w
	}
	if b.Geo != nil {
		g := *b.Geo
		cp.Geo = &g
	}
	if b.ScheduledAt != nil {
		at := *b.ScheduledAt
		cp.ScheduledAt = &at
	}
	if b.FinalCost != nil {
		fc := *b.FinalCost
		cp.FinalCost = &fc
	}
	cp.StatusHistory = make([]HistoryEntry, len(b.StatusHistory))
	copy(cp.StatusHistory, b.StatusHistory)
	return &cp
}
