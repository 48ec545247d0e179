package donation

import (
	"context"
	"errors"
	"fmt"
	"net/mail"
	"time"

	"github.com/google/uuid"

	"github.com/educonnect/backend/core"
	"github.com/educonnect/backend/core/notif"
	"github.com/educonnect/backend/core/request"
	"github.com/educonnect/backend/core/user"
)

var (
	// errors
	ErrNotFound = errors.New("donation not found")
	// ErrUnavailable is reported to a caller losing a claim race or claiming an
	// expired donation. It is a conflict: the caller must re-query before retrying.
	ErrUnavailable = core.NewConflictError("donation no longer available")

	// event types
	EventCreated   = "donation.created"
	EventClaimed   = "donation.claimed"
	EventFinalized = "donation.finalized"
	EventExpired   = "donation.expired"
)

type (
	Repository interface {
		CreateDonation(ctx context.Context, don Donation) (Donation, error)
		GetDonationByID(ctx context.Context, id string) (Donation, error)
		// FilterDonations applies AND operation on available QueryFilter fields,
		// newest first.
		FilterDonations(ctx context.Context, filter QueryFilter) ([]Donation, error)
		// TransitionDonation atomically moves a donation from one status to
		// another, applying changes on success. The compare-and-set is the sole
		// mutation primitive: it fails with a core.ConflictError when the current
		// status differs from `from` and must never double-apply a replayed
		// transition.
		TransitionDonation(ctx context.Context, id, from, to string, changes Changes) (Donation, error)
		// ExpireOverdueDonations sweeps every available donation whose expiry
		// deadline has passed into the expired status.
		ExpireOverdueDonations(ctx context.Context, now time.Time) ([]Donation, error)
	}

	Service interface {
		Create(ctx context.Context, ownerID string, nd NewDonation, image string) (Donation, error)
		GetByID(ctx context.Context, id string) (Donation, error)
		Filter(ctx context.Context, filter QueryFilter) ([]Donation, error)
		// Claim reserves an available donation for claimant. At most one claimant
		// ever wins; every other concurrent attempt gets ErrUnavailable and no
		// claim ever succeeds on an expired donation. On success the claimant's
		// oldest matching pending request is fulfilled (or an audit record is
		// synthesized) and the donor is notified.
		Claim(ctx context.Context, id, claimantID string) (Donation, error)
		// Finalize marks a reserved donation as handed over.
		Finalize(ctx context.Context, id, actorID string) (Donation, error)
		// ExpireOverdue is the periodic counterpart of the lazy expiry check in Claim.
		ExpireOverdue(ctx context.Context) (int, error)
	}

	service struct {
		repo    Repository
		reqSvc  request.Service
		usrSvc  user.Service
		broker  *notif.Broker
		mailSvc core.EmailService
	}
)

var _ Service = (*service)(nil)

func NewService(repo Repository, reqSvc request.Service, usrSvc user.Service, broker *notif.Broker, mailSvc core.EmailService) Service {
	return &service{
		repo:    repo,
		reqSvc:  reqSvc,
		usrSvc:  usrSvc,
		broker:  broker,
		mailSvc: mailSvc,
	}
}

func (svc *service) Create(ctx context.Context, ownerID string, nd NewDonation, image string) (Donation, error) {
	now := time.Now().UTC()
	don := Donation{
		ID:          uuid.New().String(),
		OwnerID:     ownerID,
		Kind:        nd.Kind,
		Description: nd.Description,
		Amount:      nd.Amount,
		Status:      StatusAvailable,
		Image:       image,
		CreatedAt:   now,
		ExpiresAt:   now.Add(core.Conf.Donation.ExpirationDelta),
	}
	don, err := svc.repo.CreateDonation(ctx, don)
	if err != nil {
		return Donation{}, err
	}

	event := svc.event(EventCreated, don, ownerID)
	svc.broker.Publish(notif.ChannelStudent, event)
	svc.broker.Publish(notif.ChannelAdmin, event)
	return don, nil
}

func (svc *service) GetByID(ctx context.Context, id string) (Donation, error) {
	return svc.repo.GetDonationByID(ctx, id)
}

func (svc *service) Filter(ctx context.Context, filter QueryFilter) ([]Donation, error) {
	return svc.repo.FilterDonations(ctx, filter)
}

func (svc *service) Claim(ctx context.Context, id, claimantID string) (Donation, error) {
	don, err := svc.repo.GetDonationByID(ctx, id)
	if err != nil {
		return Donation{}, err
	}

	// lazy expiry: an available donation past its deadline is expired before
	// any claim is allowed
	if don.IsOverdue(time.Now().UTC()) {
		if don, err = svc.repo.TransitionDonation(ctx, id, StatusAvailable, StatusExpired, Changes{}); err == nil {
			svc.broker.Publish(notif.ChannelUser(don.OwnerID), svc.event(EventExpired, don, ""))
		} else if !core.IsConflict(err) {
			return Donation{}, err
		}
		return Donation{}, ErrUnavailable
	}

	don, err = svc.repo.TransitionDonation(ctx, id, StatusAvailable, StatusReserved, Changes{ClaimantID: &claimantID})
	if core.IsConflict(err) {
		return Donation{}, ErrUnavailable
	}
	if err != nil {
		return Donation{}, err
	}

	// the claim took effect, so the donor is notified even if the follow-up
	// request matching fails below
	event := svc.event(EventClaimed, don, claimantID)
	svc.broker.Publish(notif.ChannelUser(don.OwnerID), event)
	svc.broker.Publish(notif.ChannelAdmin, event)
	go svc.sendClaimedMail(don)

	// the winner's open request of this kind is satisfied by the donor; on
	// failure the reserved donation is returned with the error so the caller
	// knows the claim itself stands
	if _, err = svc.reqSvc.FulfillMatching(ctx, claimantID, don.Kind, don.Description, don.Amount, don.OwnerID); err != nil {
		return don, err
	}

	return don, nil
}

func (svc *service) Finalize(ctx context.Context, id, actorID string) (Donation, error) {
	now := time.Now().UTC()
	don, err := svc.repo.TransitionDonation(ctx, id, StatusReserved, StatusFinalized, Changes{FinalizedAt: &now})
	if err != nil {
		return Donation{}, err
	}

	event := svc.event(EventFinalized, don, actorID)
	svc.broker.Publish(notif.ChannelUser(don.OwnerID), event)
	svc.broker.Publish(notif.ChannelUser(don.ClaimantID), event)
	svc.broker.Publish(notif.ChannelAdmin, event)
	return don, nil
}

func (svc *service) ExpireOverdue(ctx context.Context) (int, error) {
	expired, err := svc.repo.ExpireOverdueDonations(ctx, time.Now().UTC())
	if err != nil {
		return 0, err
	}
	for _, don := range expired {
		svc.broker.Publish(notif.ChannelUser(don.OwnerID), svc.event(EventExpired, don, ""))
	}
	return len(expired), nil
}

func (svc *service) sendClaimedMail(don Donation) {
	owner, err := svc.usrSvc.GetByID(don.OwnerID)
	if err != nil || owner.Email == "" {
		return
	}
	svc.mailSvc.SendMessages(&core.EmailMessage{
		To:      []mail.Address{{Name: owner.Name, Address: owner.Email}},
		Subject: "Your donation has been claimed",
		BodyStr: fmt.Sprintf(
			"Hi %s,\n\nGood news! Your donation (%s: %s) has been claimed by a student.\n"+
				"Visit %s to arrange the handover.",
			owner.Name, don.Kind, don.Description, core.Conf.FrontendBaseURL,
		),
	})
}

func (svc *service) event(eventType string, don Donation, actorID string) notif.Event {
	return notif.Event{
		Type:        eventType,
		DonationID:  don.ID,
		ActorID:     actorID,
		Kind:        don.Kind,
		Description: don.Description,
		Amount:      don.Amount,
		Timestamp:   time.Now().UTC(),
	}
}
