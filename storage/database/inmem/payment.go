package inmemdb

import (
	"context"
	"fmt"
	"sort"

	"github.com/educonnect/backend/core"
	"github.com/educonnect/backend/core/payment"
)

type paymentRepository struct {
	db *paymentTable
}

var _ payment.Repository = (*paymentRepository)(nil)

func NewPaymentRepository(db *DB) payment.Repository {
	return &paymentRepository{db: db.payment}
}

func (repo *paymentRepository) CreatePayment(_ context.Context, pmt payment.Payment) (payment.Payment, error) {
	repo.db.Lock()
	defer repo.db.Unlock()

	repo.db.table[pmt.ID] = &pmt
	return pmt, nil
}

func (repo *paymentRepository) GetPaymentByID(_ context.Context, id string) (payment.Payment, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	if pmt, ok := repo.db.table[id]; ok {
		return *pmt, nil
	}
	return payment.Payment{}, payment.ErrNotFound
}

func (repo *paymentRepository) FilterPayments(_ context.Context, filter payment.QueryFilter) ([]payment.Payment, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	var payments []payment.Payment
	for _, pmt := range repo.db.table {
		if filter.Status != "" && pmt.Status != filter.Status {
			continue
		}
		if filter.Kind != "" && pmt.Kind != filter.Kind {
			continue
		}
		if filter.DonorID != "" && pmt.DonorID != filter.DonorID {
			continue
		}
		if filter.RecipientID != "" && !paymentHasRecipient(*pmt, filter.RecipientID) {
			continue
		}
		payments = append(payments, *pmt)
	}
	// newest first; ID breaks exact-timestamp ties for a deterministic order
	sort.Slice(payments, func(i, j int) bool {
		if payments[i].CreatedAt.Equal(payments[j].CreatedAt) {
			return payments[i].ID < payments[j].ID
		}
		return payments[i].CreatedAt.After(payments[j].CreatedAt)
	})
	return payments, nil
}

func paymentHasRecipient(pmt payment.Payment, recipientID string) bool {
	if pmt.RecipientID == recipientID {
		return true
	}
	for _, share := range pmt.Shares {
		if share.RecipientID == recipientID {
			return true
		}
	}
	return false
}

// TransitionPayment does the read-check-write under the table's write lock;
// see TransitionDonation.
func (repo *paymentRepository) TransitionPayment(_ context.Context, id, from, to string, changes payment.Changes) (payment.Payment, error) {
	repo.db.Lock()
	defer repo.db.Unlock()

	pmt, ok := repo.db.table[id]
	if !ok {
		return payment.Payment{}, payment.ErrNotFound
	}
	if pmt.Status != from {
		return payment.Payment{}, core.NewConflictError(fmt.Sprintf("payment is %s", pmt.Status))
	}

	pmt.Status = to
	if changes.Method != nil {
		pmt.Method = *changes.Method
	}
	if changes.RecipientID != nil {
		pmt.RecipientID = *changes.RecipientID
	}
	if changes.Shares != nil {
		pmt.Shares = changes.Shares
	}
	if changes.ProcessedBy != nil {
		pmt.ProcessedBy = *changes.ProcessedBy
	}
	if changes.ProcessedAt != nil {
		pmt.ProcessedAt = *changes.ProcessedAt
	}
	return *pmt, nil
}
