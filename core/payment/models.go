package payment

import (
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/educonnect/backend/core"
)

// Statuses
const (
	StatusPending   = "pending"
	StatusApproved  = "approved"
	StatusCancelled = "cancelled"
)

// Distribution methods
const (
	MethodFull  = "full"  // whole amount to one recipient
	MethodSplit = "split" // divided across recipients; shares must sum to the amount
)

// Actions
const (
	ActionApprove = "approve"
	ActionReject  = "reject"
)

// Payment is a cash contribution from a donor, distributed by an admin.
// Once approved or cancelled it is immutable.
type Payment struct {
	ID          string    `json:"id"`
	DonorID     string    `json:"donor_id"`
	RecipientID string    `json:"recipient_id,omitempty"` // optional fixed recipient
	Amount      int64     `json:"amount"`
	Kind        string    `json:"kind"`
	Note        string    `json:"note,omitempty"`
	Status      string    `json:"status"`
	Method      string    `json:"method,omitempty"`
	Shares      []Share   `json:"shares,omitempty"`
	ProcessedBy string    `json:"processed_by,omitempty"`
	ProcessedAt time.Time `json:"processed_at,omitempty"` // UTC
	CreatedAt   time.Time `json:"created_at"`             // UTC
}

// Share is one recipient's cut of a split distribution.
type Share struct {
	RecipientID string `json:"recipient_id" validate:"required"`
	Amount      int64  `json:"amount" validate:"gt=0"`
}

// NewPayment contains information needed to create a new Payment.
type NewPayment struct {
	RecipientID string `json:"recipient_id"`
	Amount      int64  `json:"amount" validate:"required,gt=0"`
	Kind        string `json:"kind" validate:"required,oneof=laptop books fees bag shoes notes money other"`
	Note        string `json:"note"`
}

func (np *NewPayment) Validate() error {
	np.RecipientID = core.CleanString(np.RecipientID)
	np.Kind = core.CleanString(np.Kind, true /* lower */)
	np.Note = core.CleanString(np.Note)
	return core.Validate.Struct(np)
}

// ProcessPayment defines what an admin provides to settle a pending Payment.
type ProcessPayment struct {
	Action      string  `json:"action" validate:"required,oneof=approve reject"`
	Method      string  `json:"method" validate:"omitempty,oneof=full split"`
	RecipientID string  `json:"recipient_id"`
	Shares      []Share `json:"shares" validate:"omitempty,dive"`
}

func (pp *ProcessPayment) Validate() error {
	pp.Action = core.CleanString(pp.Action, true /* lower */)
	pp.Method = core.CleanString(pp.Method, true /* lower */)
	pp.RecipientID = core.CleanString(pp.RecipientID)
	return core.Validate.Struct(pp)
}

func init() {
	core.Validate.RegisterStructValidation(processPaymentStructValidation, ProcessPayment{})
	core.RegisterCustomTranslation(core.Validate, core.Translator, methodRequiredTag, methodRequiredText)
	core.RegisterCustomTranslation(core.Validate, core.Translator, recipientRequiredTag, recipientRequiredText)
	core.RegisterCustomTranslation(core.Validate, core.Translator, sharesRequiredTag, sharesRequiredText)
}

var (
	methodRequiredTag  = "distmethod"
	methodRequiredText = "a distribution method is required to approve a payment"

	recipientRequiredTag  = "distrecipient"
	recipientRequiredText = "a recipient is required for a full distribution"

	sharesRequiredTag  = "distshares"
	sharesRequiredText = "at least one share is required for a split distribution"
)

// processPaymentStructValidation checks distribution coherence; the share-sum
// invariant is enforced against the payment's amount by the Service.
func processPaymentStructValidation(sl validator.StructLevel) {
	pp, ok := sl.Current().Interface().(ProcessPayment)
	if !ok || pp.Action != ActionApprove {
		return
	}
	switch pp.Method {
	case MethodFull:
		if pp.RecipientID == "" {
			sl.ReportError(pp.RecipientID, "recipient_id", "RecipientID", recipientRequiredTag, "")
		}
	case MethodSplit:
		if len(pp.Shares) == 0 {
			sl.ReportError(pp.Shares, "shares", "Shares", sharesRequiredTag, "")
		}
	default:
		sl.ReportError(pp.Method, "method", "Method", methodRequiredTag, "")
	}
}

type QueryFilter struct {
	Status      string `query:"status"`
	Kind        string `query:"kind"`
	DonorID     string `query:"donor"`
	RecipientID string `query:"recipient"`
}

func (qf *QueryFilter) Clean() {
	qf.Status = core.CleanString(qf.Status, true /* lower */)
	qf.Kind = core.CleanString(qf.Kind, true /* lower */)
}

// Changes carries the fields set alongside a status transition.
type Changes struct {
	Method      *string
	RecipientID *string
	Shares      []Share
	ProcessedBy *string
	ProcessedAt *time.Time
}
