package request

import (
	"time"

	"github.com/educonnect/backend/core"
)

// Statuses
const (
	StatusPending    = "pending"
	StatusInProgress = "in-progress"
	StatusFulfilled  = "fulfilled"
	StatusCancelled  = "cancelled"
)

// Urgencies
const (
	UrgencyLow      = "low"
	UrgencyMedium   = "medium"
	UrgencyHigh     = "high"
	UrgencyCritical = "critical"
)

var urgencyRanks = map[string]int{
	UrgencyLow:      1,
	UrgencyMedium:   2,
	UrgencyHigh:     3,
	UrgencyCritical: 4,
}

// UrgencyRank returns the sort weight of an urgency; higher is more urgent.
func UrgencyRank(urgency string) int {
	return urgencyRanks[urgency]
}

// SortKey selects the ordering of pending request feeds. All orderings are
// stable: ties always break on creation time, oldest first.
type SortKey string

const (
	SortCreated SortKey = "created" // default: creation time asc
	SortUrgency SortKey = "urgency" // urgency desc, then creation time asc
	SortAmount  SortKey = "amount"  // amount desc, then creation time asc
)

func ParseSortKey(s string) SortKey {
	switch SortKey(core.CleanString(s, true /* lower */)) {
	case SortUrgency:
		return SortUrgency
	case SortAmount:
		return SortAmount
	default:
		return SortCreated
	}
}

// Request is a student's declared need. CreatedAt doubles as the priority key
// for tie-breaking in sorted feeds.
type Request struct {
	ID          string    `json:"id"`
	OwnerID     string    `json:"owner_id"`
	Kind        string    `json:"kind"`
	Description string    `json:"description"`
	Urgency     string    `json:"urgency"`
	Amount      int64     `json:"amount"`
	Status      string    `json:"status"`
	FulfillerID string    `json:"fulfiller_id,omitempty"`
	CreatedAt   time.Time `json:"created_at"` // UTC
	UpdatedAt   time.Time `json:"updated_at"` // UTC
}

// NewRequest contains information needed to create a new Request.
type NewRequest struct {
	Kind        string `json:"kind" validate:"required,oneof=laptop books fees bag shoes notes money other"`
	Description string `json:"description" validate:"required"`
	Urgency     string `json:"urgency" validate:"required,oneof=low medium high critical"`
	Amount      int64  `json:"amount" validate:"gte=0"`
}

func (nr *NewRequest) Validate() error {
	nr.Kind = core.CleanString(nr.Kind, true /* lower */)
	nr.Description = core.CleanString(nr.Description)
	nr.Urgency = core.CleanString(nr.Urgency, true /* lower */)
	return core.Validate.Struct(nr)
}

type QueryFilter struct {
	Status  string `query:"status"`
	Kind    string `query:"kind"`
	OwnerID string `query:"owner"`
	Urgency string `query:"urgency"`
}

func (qf *QueryFilter) Clean() {
	qf.Status = core.CleanString(qf.Status, true /* lower */)
	qf.Kind = core.CleanString(qf.Kind, true /* lower */)
	qf.Urgency = core.CleanString(qf.Urgency, true /* lower */)
}

// Changes carries the fields set alongside a status transition.
type Changes struct {
	FulfillerID *string
}
