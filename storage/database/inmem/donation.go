package inmemdb

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/educonnect/backend/core"
	"github.com/educonnect/backend/core/donation"
)

type donationRepository struct {
	db *donationTable
}

var _ donation.Repository = (*donationRepository)(nil)

func NewDonationRepository(db *DB) donation.Repository {
	return &donationRepository{db: db.donation}
}

func (repo *donationRepository) query() []donation.Donation {
	donations := make([]donation.Donation, 0, len(repo.db.table))
	for _, don := range repo.db.table {
		donations = append(donations, *don)
	}
	// newest first; ID breaks exact-timestamp ties for a deterministic order
	sort.Slice(donations, func(i, j int) bool {
		if donations[i].CreatedAt.Equal(donations[j].CreatedAt) {
			return donations[i].ID < donations[j].ID
		}
		return donations[i].CreatedAt.After(donations[j].CreatedAt)
	})
	return donations
}

func (repo *donationRepository) CreateDonation(_ context.Context, don donation.Donation) (donation.Donation, error) {
	repo.db.Lock()
	defer repo.db.Unlock()

	repo.db.table[don.ID] = &don
	return don, nil
}

func (repo *donationRepository) GetDonationByID(_ context.Context, id string) (donation.Donation, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	if don, ok := repo.db.table[id]; ok {
		return *don, nil
	}
	return donation.Donation{}, donation.ErrNotFound
}

func (repo *donationRepository) FilterDonations(_ context.Context, filter donation.QueryFilter) ([]donation.Donation, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	var donations []donation.Donation
	for _, don := range repo.query() {
		if filter.Status != "" && don.Status != filter.Status {
			continue
		}
		if filter.Kind != "" && don.Kind != filter.Kind {
			continue
		}
		if filter.OwnerID != "" && don.OwnerID != filter.OwnerID {
			continue
		}
		if filter.ClaimantID != "" && don.ClaimantID != filter.ClaimantID {
			continue
		}
		donations = append(donations, don)
	}
	return donations, nil
}

// TransitionDonation does the read-check-write under the table's write lock so
// concurrent transitions on the same record serialize; a replayed transition
// always fails the status check.
func (repo *donationRepository) TransitionDonation(_ context.Context, id, from, to string, changes donation.Changes) (donation.Donation, error) {
	repo.db.Lock()
	defer repo.db.Unlock()

	don, ok := repo.db.table[id]
	if !ok {
		return donation.Donation{}, donation.ErrNotFound
	}
	if don.Status != from {
		return donation.Donation{}, core.NewConflictError(fmt.Sprintf("donation is %s", don.Status))
	}

	don.Status = to
	if changes.ClaimantID != nil {
		don.ClaimantID = *changes.ClaimantID
	}
	if changes.FinalizedAt != nil {
		don.FinalizedAt = *changes.FinalizedAt
	}
	return *don, nil
}

func (repo *donationRepository) ExpireOverdueDonations(_ context.Context, now time.Time) ([]donation.Donation, error) {
	repo.db.Lock()
	defer repo.db.Unlock()

	var expired []donation.Donation
	for _, don := range repo.db.table {
		if don.IsOverdue(now) {
			don.Status = donation.StatusExpired
			expired = append(expired, *don)
		}
	}
	return expired, nil
}
