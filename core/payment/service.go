package payment

import (
	"context"
	"errors"
	"fmt"
	"net/mail"
	"time"

	"github.com/google/uuid"

	"github.com/educonnect/backend/core"
	"github.com/educonnect/backend/core/notif"
	"github.com/educonnect/backend/core/user"
)

var (
	// errors
	ErrNotFound         = errors.New("payment not found")
	errAlreadyProcessed = errors.New("payment already processed")
	errSharesSum        = errors.New("share amounts must sum to the payment amount")

	// event types
	EventCreated  = "payment.created"
	EventApproved = "payment.approved"
	EventRejected = "payment.rejected"
)

type (
	Repository interface {
		CreatePayment(ctx context.Context, pmt Payment) (Payment, error)
		GetPaymentByID(ctx context.Context, id string) (Payment, error)
		// FilterPayments applies AND operation on available QueryFilter fields,
		// newest first.
		FilterPayments(ctx context.Context, filter QueryFilter) ([]Payment, error)
		// TransitionPayment atomically moves a payment from one status to another,
		// applying changes on success. It fails with a core.ConflictError when the
		// current status differs from `from`.
		TransitionPayment(ctx context.Context, id, from, to string, changes Changes) (Payment, error)
	}

	Service interface {
		Create(ctx context.Context, donorID string, np NewPayment) (Payment, error)
		GetByID(ctx context.Context, id string) (Payment, error)
		Filter(ctx context.Context, filter QueryFilter) ([]Payment, error)
		// Process settles a pending payment: approve fixes the distribution
		// (full recipient, or split shares summing exactly to the amount),
		// reject cancels it. Either way the payment becomes immutable.
		Process(ctx context.Context, id, actorID string, pp ProcessPayment) (Payment, error)
	}

	service struct {
		repo    Repository
		usrSvc  user.Service
		broker  *notif.Broker
		mailSvc core.EmailService
	}
)

var _ Service = (*service)(nil)

func NewService(repo Repository, usrSvc user.Service, broker *notif.Broker, mailSvc core.EmailService) Service {
	return &service{
		repo:    repo,
		usrSvc:  usrSvc,
		broker:  broker,
		mailSvc: mailSvc,
	}
}

func (svc *service) Create(ctx context.Context, donorID string, np NewPayment) (Payment, error) {
	pmt := Payment{
		ID:          uuid.New().String(),
		DonorID:     donorID,
		RecipientID: np.RecipientID,
		Amount:      np.Amount,
		Kind:        np.Kind,
		Note:        np.Note,
		Status:      StatusPending,
		CreatedAt:   time.Now().UTC(),
	}
	pmt, err := svc.repo.CreatePayment(ctx, pmt)
	if err != nil {
		return Payment{}, err
	}
	svc.broker.Publish(notif.ChannelAdmin, svc.event(EventCreated, pmt, donorID))
	return pmt, nil
}

func (svc *service) GetByID(ctx context.Context, id string) (Payment, error) {
	return svc.repo.GetPaymentByID(ctx, id)
}

func (svc *service) Filter(ctx context.Context, filter QueryFilter) ([]Payment, error) {
	return svc.repo.FilterPayments(ctx, filter)
}

func (svc *service) Process(ctx context.Context, id, actorID string, pp ProcessPayment) (Payment, error) {
	pmt, err := svc.repo.GetPaymentByID(ctx, id)
	if err != nil {
		return Payment{}, err
	}

	now := time.Now().UTC()
	changes := Changes{ProcessedBy: &actorID, ProcessedAt: &now}

	if pp.Action == ActionReject {
		pmt, err = svc.repo.TransitionPayment(ctx, id, StatusPending, StatusCancelled, changes)
		if core.IsConflict(err) {
			return Payment{}, core.NewConflictError(errAlreadyProcessed.Error())
		}
		if err != nil {
			return Payment{}, err
		}
		svc.broker.Publish(notif.ChannelUser(pmt.DonorID), svc.event(EventRejected, pmt, actorID))
		svc.broker.Publish(notif.ChannelAdmin, svc.event(EventRejected, pmt, actorID))
		return pmt, nil
	}

	// approve: fix the distribution before commit
	changes.Method = &pp.Method
	switch pp.Method {
	case MethodFull:
		recipient := pp.RecipientID
		if recipient == "" {
			recipient = pmt.RecipientID
		}
		if recipient == "" {
			return Payment{}, core.NewValidationError(nil, core.FieldError{Field: "recipient_id", Error: recipientRequiredText})
		}
		changes.RecipientID = &recipient
	case MethodSplit:
		var sum int64
		for _, share := range pp.Shares {
			sum += share.Amount
		}
		if sum != pmt.Amount {
			return Payment{}, core.NewValidationError(errSharesSum, core.FieldError{Field: "shares", Error: errSharesSum.Error()})
		}
		changes.Shares = pp.Shares
	}

	pmt, err = svc.repo.TransitionPayment(ctx, id, StatusPending, StatusApproved, changes)
	if core.IsConflict(err) {
		return Payment{}, core.NewConflictError(errAlreadyProcessed.Error())
	}
	if err != nil {
		return Payment{}, err
	}

	event := svc.event(EventApproved, pmt, actorID)
	svc.broker.Publish(notif.ChannelUser(pmt.DonorID), event)
	svc.broker.Publish(notif.ChannelAdmin, event)
	if pmt.Method == MethodFull {
		svc.broker.Publish(notif.ChannelUser(pmt.RecipientID), event)
	}
	for _, share := range pmt.Shares {
		svc.broker.Publish(notif.ChannelUser(share.RecipientID), event)
	}
	go svc.sendApprovedMail(pmt)
	return pmt, nil
}

func (svc *service) sendApprovedMail(pmt Payment) {
	amounts := map[string]int64{}
	if pmt.Method == MethodFull {
		amounts[pmt.RecipientID] = pmt.Amount
	}
	for _, share := range pmt.Shares {
		amounts[share.RecipientID] = share.Amount
	}

	for recipientID, amount := range amounts {
		recipient, err := svc.usrSvc.GetByID(recipientID)
		if err != nil || recipient.Email == "" {
			continue
		}
		svc.mailSvc.SendMessages(&core.EmailMessage{
			To:      []mail.Address{{Name: recipient.Name, Address: recipient.Email}},
			Subject: "A payment is on its way",
			BodyStr: fmt.Sprintf(
				"Hi %s,\n\nA donor's payment of %d (%s) has been approved for you.\n"+
					"Visit %s for the details.",
				recipient.Name, amount, pmt.Kind, core.Conf.FrontendBaseURL,
			),
		})
	}
}

func (svc *service) event(eventType string, pmt Payment, actorID string) notif.Event {
	return notif.Event{
		Type:      eventType,
		PaymentID: pmt.ID,
		ActorID:   actorID,
		Kind:      pmt.Kind,
		Amount:    pmt.Amount,
		Timestamp: time.Now().UTC(),
	}
}
