package inmemdb

import (
	"context"
	"fmt"
	"sort"

	"github.com/educonnect/backend/core"
	"github.com/educonnect/backend/core/request"
)

type requestRepository struct {
	db *requestTable
}

var _ request.Repository = (*requestRepository)(nil)

func NewRequestRepository(db *DB) request.Repository {
	return &requestRepository{db: db.request}
}

func (repo *requestRepository) CreateRequest(_ context.Context, req request.Request) (request.Request, error) {
	repo.db.Lock()
	defer repo.db.Unlock()

	repo.db.table[req.ID] = &req
	return req, nil
}

func (repo *requestRepository) GetRequestByID(_ context.Context, id string) (request.Request, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	if req, ok := repo.db.table[id]; ok {
		return *req, nil
	}
	return request.Request{}, request.ErrNotFound
}

func (repo *requestRepository) FilterRequests(_ context.Context, filter request.QueryFilter, sortKey request.SortKey) ([]request.Request, error) {
	repo.db.RLock()

	requests := make([]request.Request, 0, len(repo.db.table))
	for _, req := range repo.db.table {
		if filter.Status != "" && req.Status != filter.Status {
			continue
		}
		if filter.Kind != "" && req.Kind != filter.Kind {
			continue
		}
		if filter.OwnerID != "" && req.OwnerID != filter.OwnerID {
			continue
		}
		if filter.Urgency != "" && req.Urgency != filter.Urgency {
			continue
		}
		requests = append(requests, *req)
	}
	repo.db.RUnlock()

	// base order: creation time asc with ID breaking exact-timestamp ties, so
	// repeated queries return identical order; secondary keys sort stably on
	// top and equal keys keep the oldest-first order
	sort.Slice(requests, func(i, j int) bool {
		if requests[i].CreatedAt.Equal(requests[j].CreatedAt) {
			return requests[i].ID < requests[j].ID
		}
		return requests[i].CreatedAt.Before(requests[j].CreatedAt)
	})
	switch sortKey {
	case request.SortUrgency:
		sort.SliceStable(requests, func(i, j int) bool {
			return request.UrgencyRank(requests[i].Urgency) > request.UrgencyRank(requests[j].Urgency)
		})
	case request.SortAmount:
		sort.SliceStable(requests, func(i, j int) bool { return requests[i].Amount > requests[j].Amount })
	}
	return requests, nil
}

// TransitionRequest does the read-check-write under the table's write lock;
// see TransitionDonation.
func (repo *requestRepository) TransitionRequest(_ context.Context, id, from, to string, changes request.Changes) (request.Request, error) {
	repo.db.Lock()
	defer repo.db.Unlock()

	req, ok := repo.db.table[id]
	if !ok {
		return request.Request{}, request.ErrNotFound
	}
	if req.Status != from {
		return request.Request{}, core.NewConflictError(fmt.Sprintf("request is %s", req.Status))
	}

	req.Status = to
	if changes.FulfillerID != nil {
		req.FulfillerID = *changes.FulfillerID
	}
	return *req, nil
}
