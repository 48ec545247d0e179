package donation

import (
	"time"

	"github.com/educonnect/backend/core"
)

// Kinds
const (
	KindLaptop = "laptop"
	KindBooks  = "books"
	KindFees   = "fees"
	KindBag    = "bag"
	KindShoes  = "shoes"
	KindNotes  = "notes"
	KindMoney  = "money"
	KindOther  = "other"
)

var AllKinds = []string{KindLaptop, KindBooks, KindFees, KindBag, KindShoes, KindNotes, KindMoney, KindOther}

// Statuses. available -> reserved -> finalized, or available -> expired;
// finalized and expired are terminal and never re-enter available.
const (
	StatusAvailable = "available"
	StatusReserved  = "reserved"
	StatusFinalized = "finalized"
	StatusExpired   = "expired"
)

// Donation is a claimable offering posted by a donor.
type Donation struct {
	ID          string    `json:"id"`
	OwnerID     string    `json:"owner_id"`
	Kind        string    `json:"kind"`
	Description string    `json:"description"`
	Amount      int64     `json:"amount"`
	Status      string    `json:"status"`
	ClaimantID  string    `json:"claimant_id,omitempty"`
	Image       string    `json:"image,omitempty"` // filename under MediaRoot; never the bytes
	CreatedAt   time.Time `json:"created_at"`      // UTC
	ExpiresAt   time.Time `json:"expires_at"`      // UTC
	FinalizedAt time.Time `json:"finalized_at,omitempty"`
}

// IsOverdue reports whether an available donation's expiry deadline has passed.
func (d *Donation) IsOverdue(now time.Time) bool {
	return d.Status == StatusAvailable && now.After(d.ExpiresAt)
}

// NewDonation contains information needed to create a new Donation.
type NewDonation struct {
	Kind        string `json:"kind" form:"kind" validate:"required,oneof=laptop books fees bag shoes notes money other"`
	Description string `json:"description" form:"description" validate:"required"`
	Amount      int64  `json:"amount" form:"amount" validate:"gte=0"`
}

func (nd *NewDonation) Validate() error {
	nd.Kind = core.CleanString(nd.Kind, true /* lower */)
	nd.Description = core.CleanString(nd.Description)
	return core.Validate.Struct(nd)
}

type QueryFilter struct {
	Status     string `query:"status"`
	Kind       string `query:"kind"`
	OwnerID    string `query:"owner"`
	ClaimantID string `query:"claimant"`
}

func (qf *QueryFilter) Clean() {
	qf.Status = core.CleanString(qf.Status, true /* lower */)
	qf.Kind = core.CleanString(qf.Kind, true /* lower */)
}

// Changes carries the fields set alongside a status transition.
type Changes struct {
	ClaimantID  *string
	FinalizedAt *time.Time
}
