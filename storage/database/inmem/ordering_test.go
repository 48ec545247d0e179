package inmemdb

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/educonnect/backend/core/donation"
	"github.com/educonnect/backend/core/payment"
	"github.com/educonnect/backend/core/request"
)

func requestIDs(requests []request.Request) []string {
	ids := make([]string, 0, len(requests))
	for _, req := range requests {
		ids = append(ids, req.ID)
	}
	return ids
}

func TestRequestRepository_orderingIsDeterministic(t *testing.T) {
	db, err := Open()
	require.NoError(t, err)
	repo := NewRequestRepository(db)
	ctx := context.Background()

	// all three share a creation time; order must come from the ID tiebreak
	createdAt := time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC)
	for _, id := range []string{"req-b", "req-a", "req-c"} {
		_, err = repo.CreateRequest(ctx, request.Request{
			ID:        id,
			OwnerID:   "student-1",
			Kind:      "books",
			Urgency:   request.UrgencyMedium,
			Amount:    10,
			Status:    request.StatusPending,
			CreatedAt: createdAt,
		})
		require.NoError(t, err)
	}

	want := []string{"req-a", "req-b", "req-c"}
	for _, sortKey := range []request.SortKey{request.SortCreated, request.SortUrgency, request.SortAmount} {
		for i := 0; i < 100; i++ {
			requests, err := repo.FilterRequests(ctx, request.QueryFilter{}, sortKey)
			require.NoError(t, err)
			require.Equal(t, want, requestIDs(requests), "sort key %q", sortKey)
		}
	}
}

func TestDonationRepository_orderingIsDeterministic(t *testing.T) {
	db, err := Open()
	require.NoError(t, err)
	repo := NewDonationRepository(db)
	ctx := context.Background()

	createdAt := time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC)
	for _, id := range []string{"don-c", "don-a", "don-b"} {
		_, err = repo.CreateDonation(ctx, donation.Donation{
			ID:        id,
			OwnerID:   "donor-1",
			Kind:      donation.KindBooks,
			Status:    donation.StatusAvailable,
			CreatedAt: createdAt,
			ExpiresAt: createdAt.Add(72 * time.Hour),
		})
		require.NoError(t, err)
	}

	for i := 0; i < 100; i++ {
		donations, err := repo.FilterDonations(ctx, donation.QueryFilter{})
		require.NoError(t, err)
		require.Len(t, donations, 3)
		ids := []string{donations[0].ID, donations[1].ID, donations[2].ID}
		assert.Equal(t, []string{"don-a", "don-b", "don-c"}, ids)
	}
}

func TestPaymentRepository_orderingIsDeterministic(t *testing.T) {
	db, err := Open()
	require.NoError(t, err)
	repo := NewPaymentRepository(db)
	ctx := context.Background()

	createdAt := time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC)
	for _, id := range []string{"pmt-b", "pmt-c", "pmt-a"} {
		_, err = repo.CreatePayment(ctx, payment.Payment{
			ID:        id,
			DonorID:   "donor-1",
			Amount:    100,
			Kind:      "fees",
			Status:    payment.StatusPending,
			CreatedAt: createdAt,
		})
		require.NoError(t, err)
	}

	for i := 0; i < 100; i++ {
		payments, err := repo.FilterPayments(ctx, payment.QueryFilter{})
		require.NoError(t, err)
		require.Len(t, payments, 3)
		ids := []string{payments[0].ID, payments[1].ID, payments[2].ID}
		assert.Equal(t, []string{"pmt-a", "pmt-b", "pmt-c"}, ids)
	}
}
