package request

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/educonnect/backend/core"
	"github.com/educonnect/backend/core/notif"
)

var (
	// errors
	ErrNotFound = errors.New("request not found")

	// event types
	EventCreated   = "request.created"
	EventStarted   = "request.started"
	EventFulfilled = "request.fulfilled"
	EventCancelled = "request.cancelled"
)

type (
	Repository interface {
		CreateRequest(ctx context.Context, req Request) (Request, error)
		GetRequestByID(ctx context.Context, id string) (Request, error)
		// FilterRequests applies AND operation on available QueryFilter fields and
		// returns results in the order given by sort; the sort is stable so equal
		// keys always fall back to creation time, oldest first.
		FilterRequests(ctx context.Context, filter QueryFilter, sort SortKey) ([]Request, error)
		// TransitionRequest atomically moves a request from one status to another,
		// applying changes on success. It fails with a core.ConflictError when the
		// current status differs from `from`.
		TransitionRequest(ctx context.Context, id, from, to string, changes Changes) (Request, error)
	}

	Service interface {
		Create(ctx context.Context, ownerID string, nr NewRequest) (Request, error)
		GetByID(ctx context.Context, id string) (Request, error)
		// Query is a pure read: repeated calls with unchanged data return identical order.
		Query(ctx context.Context, filter QueryFilter, sort SortKey) ([]Request, error)
		Start(ctx context.Context, id, actorID string) (Request, error)
		Fulfill(ctx context.Context, id, fulfillerID string) (Request, error)
		Cancel(ctx context.Context, id, actorID string) (Request, error)
		// FulfillMatching fulfills the owner's oldest pending request of the given
		// kind, or synthesizes a fulfilled record for audit when none exists.
		FulfillMatching(ctx context.Context, ownerID, kind, description string, amount int64, fulfillerID string) (Request, error)
	}

	service struct {
		repo   Repository
		broker *notif.Broker
	}
)

var _ Service = (*service)(nil)

func NewService(repo Repository, broker *notif.Broker) Service {
	return &service{repo: repo, broker: broker}
}

func (svc *service) Create(ctx context.Context, ownerID string, nr NewRequest) (Request, error) {
	now := time.Now().UTC()
	req := Request{
		ID:          uuid.New().String(),
		OwnerID:     ownerID,
		Kind:        nr.Kind,
		Description: nr.Description,
		Urgency:     nr.Urgency,
		Amount:      nr.Amount,
		Status:      StatusPending,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	req, err := svc.repo.CreateRequest(ctx, req)
	if err != nil {
		return Request{}, err
	}

	event := svc.event(EventCreated, req, ownerID)
	svc.broker.Publish(notif.ChannelDonor, event)
	svc.broker.Publish(notif.ChannelAdmin, event)
	return req, nil
}

func (svc *service) GetByID(ctx context.Context, id string) (Request, error) {
	return svc.repo.GetRequestByID(ctx, id)
}

func (svc *service) Query(ctx context.Context, filter QueryFilter, sort SortKey) ([]Request, error) {
	return svc.repo.FilterRequests(ctx, filter, sort)
}

func (svc *service) Start(ctx context.Context, id, actorID string) (Request, error) {
	req, err := svc.repo.TransitionRequest(ctx, id, StatusPending, StatusInProgress, Changes{})
	if err != nil {
		return Request{}, err
	}
	svc.broker.Publish(notif.ChannelUser(req.OwnerID), svc.event(EventStarted, req, actorID))
	svc.broker.Publish(notif.ChannelAdmin, svc.event(EventStarted, req, actorID))
	return req, nil
}

func (svc *service) Fulfill(ctx context.Context, id, fulfillerID string) (Request, error) {
	changes := Changes{FulfillerID: &fulfillerID}
	req, err := svc.repo.TransitionRequest(ctx, id, StatusPending, StatusFulfilled, changes)
	if core.IsConflict(err) {
		// the request may have been picked up already
		req, err = svc.repo.TransitionRequest(ctx, id, StatusInProgress, StatusFulfilled, changes)
	}
	if err != nil {
		return Request{}, err
	}
	svc.broker.Publish(notif.ChannelUser(req.OwnerID), svc.event(EventFulfilled, req, fulfillerID))
	svc.broker.Publish(notif.ChannelAdmin, svc.event(EventFulfilled, req, fulfillerID))
	return req, nil
}

func (svc *service) Cancel(ctx context.Context, id, actorID string) (Request, error) {
	req, err := svc.repo.TransitionRequest(ctx, id, StatusPending, StatusCancelled, Changes{})
	if err != nil {
		return Request{}, err
	}
	svc.broker.Publish(notif.ChannelAdmin, svc.event(EventCancelled, req, actorID))
	return req, nil
}

func (svc *service) FulfillMatching(ctx context.Context, ownerID, kind, description string, amount int64, fulfillerID string) (Request, error) {
	pending, err := svc.repo.FilterRequests(ctx, QueryFilter{Status: StatusPending, OwnerID: ownerID, Kind: kind}, SortCreated)
	if err != nil {
		return Request{}, err
	}
	for _, req := range pending {
		fulfilled, err := svc.repo.TransitionRequest(ctx, req.ID, StatusPending, StatusFulfilled, Changes{FulfillerID: &fulfillerID})
		if core.IsConflict(err) {
			continue // lost to a concurrent claim; try the next one
		}
		if err != nil {
			return Request{}, err
		}
		svc.broker.Publish(notif.ChannelAdmin, svc.event(EventFulfilled, fulfilled, fulfillerID))
		return fulfilled, nil
	}

	// no open request matched: record a fulfilled one for audit/history
	now := time.Now().UTC()
	req := Request{
		ID:          uuid.New().String(),
		OwnerID:     ownerID,
		Kind:        kind,
		Description: description,
		Urgency:     UrgencyMedium,
		Amount:      amount,
		Status:      StatusFulfilled,
		FulfillerID: fulfillerID,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	return svc.repo.CreateRequest(ctx, req)
}

func (svc *service) event(eventType string, req Request, actorID string) notif.Event {
	return notif.Event{
		Type:        eventType,
		RequestID:   req.ID,
		ActorID:     actorID,
		Kind:        req.Kind,
		Description: req.Description,
		Urgency:     req.Urgency,
		Amount:      req.Amount,
		Timestamp:   time.Now().UTC(),
	}
}
