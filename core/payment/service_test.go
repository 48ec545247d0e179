package payment_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/educonnect/backend/core"
	"github.com/educonnect/backend/core/notif"
	"github.com/educonnect/backend/core/payment"
	"github.com/educonnect/backend/core/user"
	emailsvc "github.com/educonnect/backend/services/email"
	inmemdb "github.com/educonnect/backend/storage/database/inmem"
)

var testCtx = context.Background()

func setup(t *testing.T) payment.Service {
	t.Helper()
	db, err := inmemdb.Open()
	require.NoError(t, err)

	mailSvc := emailsvc.NewConsoleServiceMock()
	usrSvc := user.NewServiceMock(inmemdb.NewUserRepository(db), mailSvc)
	return payment.NewService(inmemdb.NewPaymentRepository(db), usrSvc, notif.NewBroker(), mailSvc)
}

func TestService_Process_full(t *testing.T) {
	svc := setup(t)

	t.Run("Explicit recipient", func(t *testing.T) {
		pmt, err := svc.Create(testCtx, "donor-1", payment.NewPayment{Amount: 100, Kind: "money"})
		require.NoError(t, err)

		approved, err := svc.Process(testCtx, pmt.ID, "admin-1", payment.ProcessPayment{
			Action: payment.ActionApprove, Method: payment.MethodFull, RecipientID: "student-1",
		})
		require.NoError(t, err)
		assert.Equal(t, payment.StatusApproved, approved.Status)
		assert.Equal(t, "student-1", approved.RecipientID)
		assert.Equal(t, "admin-1", approved.ProcessedBy)
		assert.False(t, approved.ProcessedAt.IsZero())
	})

	t.Run("Falls back to the payment's recipient", func(t *testing.T) {
		pmt, err := svc.Create(testCtx, "donor-1", payment.NewPayment{RecipientID: "student-2", Amount: 50, Kind: "fees"})
		require.NoError(t, err)

		approved, err := svc.Process(testCtx, pmt.ID, "admin-1", payment.ProcessPayment{
			Action: payment.ActionApprove, Method: payment.MethodFull,
		})
		require.NoError(t, err)
		assert.Equal(t, "student-2", approved.RecipientID)
	})

	t.Run("No recipient anywhere", func(t *testing.T) {
		pmt, err := svc.Create(testCtx, "donor-1", payment.NewPayment{Amount: 50, Kind: "fees"})
		require.NoError(t, err)

		_, err = svc.Process(testCtx, pmt.ID, "admin-1", payment.ProcessPayment{
			Action: payment.ActionApprove, Method: payment.MethodFull,
		})
		var verr *core.ValidationError
		require.ErrorAs(t, err, &verr)
	})
}

func TestService_Process_split(t *testing.T) {
	svc := setup(t)

	pmt, err := svc.Create(testCtx, "donor-1", payment.NewPayment{Amount: 100, Kind: "money"})
	require.NoError(t, err)

	t.Run("Shares must sum exactly", func(t *testing.T) {
		for _, shares := range [][]payment.Share{
			{{RecipientID: "student-1", Amount: 60}, {RecipientID: "student-2", Amount: 50}}, // over
			{{RecipientID: "student-1", Amount: 60}, {RecipientID: "student-2", Amount: 30}}, // under
		} {
			_, err := svc.Process(testCtx, pmt.ID, "admin-1", payment.ProcessPayment{
				Action: payment.ActionApprove, Method: payment.MethodSplit, Shares: shares,
			})
			var verr *core.ValidationError
			require.ErrorAs(t, err, &verr)
		}

		// the failed attempts left the payment pending
		refetched, err := svc.GetByID(testCtx, pmt.ID)
		require.NoError(t, err)
		assert.Equal(t, payment.StatusPending, refetched.Status)
	})

	t.Run("Exact split is approved", func(t *testing.T) {
		approved, err := svc.Process(testCtx, pmt.ID, "admin-1", payment.ProcessPayment{
			Action: payment.ActionApprove, Method: payment.MethodSplit,
			Shares: []payment.Share{{RecipientID: "student-1", Amount: 60}, {RecipientID: "student-2", Amount: 40}},
		})
		require.NoError(t, err)
		assert.Equal(t, payment.StatusApproved, approved.Status)
		assert.Len(t, approved.Shares, 2)
	})
}

func TestService_Process_immutable(t *testing.T) {
	svc := setup(t)

	pmt, err := svc.Create(testCtx, "donor-1", payment.NewPayment{Amount: 100, Kind: "money"})
	require.NoError(t, err)

	rejected, err := svc.Process(testCtx, pmt.ID, "admin-1", payment.ProcessPayment{Action: payment.ActionReject})
	require.NoError(t, err)
	assert.Equal(t, payment.StatusCancelled, rejected.Status)

	// a settled payment stays settled
	_, err = svc.Process(testCtx, pmt.ID, "admin-1", payment.ProcessPayment{Action: payment.ActionReject})
	assert.True(t, core.IsConflict(err))

	_, err = svc.Process(testCtx, pmt.ID, "admin-1", payment.ProcessPayment{
		Action: payment.ActionApprove, Method: payment.MethodFull, RecipientID: "student-1",
	})
	assert.True(t, core.IsConflict(err))
}

func TestService_Filter(t *testing.T) {
	svc := setup(t)

	first, err := svc.Create(testCtx, "donor-1", payment.NewPayment{Amount: 100, Kind: "money"})
	require.NoError(t, err)
	_, err = svc.Create(testCtx, "donor-2", payment.NewPayment{Amount: 50, Kind: "fees"})
	require.NoError(t, err)

	_, err = svc.Process(testCtx, first.ID, "admin-1", payment.ProcessPayment{
		Action: payment.ActionApprove, Method: payment.MethodSplit,
		Shares: []payment.Share{{RecipientID: "student-1", Amount: 70}, {RecipientID: "student-2", Amount: 30}},
	})
	require.NoError(t, err)

	t.Run("By donor", func(t *testing.T) {
		payments, err := svc.Filter(testCtx, payment.QueryFilter{DonorID: "donor-2"})
		require.NoError(t, err)
		require.Len(t, payments, 1)
		assert.Equal(t, "donor-2", payments[0].DonorID)
	})

	t.Run("By recipient includes shares", func(t *testing.T) {
		payments, err := svc.Filter(testCtx, payment.QueryFilter{RecipientID: "student-2"})
		require.NoError(t, err)
		require.Len(t, payments, 1)
		assert.Equal(t, first.ID, payments[0].ID)
	})

	t.Run("By status", func(t *testing.T) {
		payments, err := svc.Filter(testCtx, payment.QueryFilter{Status: payment.StatusPending})
		require.NoError(t, err)
		require.Len(t, payments, 1)
	})
}
