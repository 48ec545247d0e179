package sqlxrepos

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"

	"github.com/educonnect/backend/core"
	"github.com/educonnect/backend/core/payment"
)

type paymentRepository struct {
	db *sqlx.DB
}

var _ payment.Repository = (*paymentRepository)(nil)

func NewPaymentRepository(db *sqlx.DB) payment.Repository {
	return &paymentRepository{db: db}
}

type paymentRow struct {
	ID          string       `db:"id"`
	DonorID     string       `db:"donor_id"`
	RecipientID string       `db:"recipient_id"`
	Amount      int64        `db:"amount"`
	Kind        string       `db:"kind"`
	Note        string       `db:"note"`
	Status      string       `db:"status"`
	Method      string       `db:"method"`
	Shares      []byte       `db:"shares"`
	ProcessedBy string       `db:"processed_by"`
	ProcessedAt sql.NullTime `db:"processed_at"`
	CreatedAt   time.Time    `db:"created_at"`
}

func (row paymentRow) toPayment() (payment.Payment, error) {
	pmt := payment.Payment{
		ID:          row.ID,
		DonorID:     row.DonorID,
		RecipientID: row.RecipientID,
		Amount:      row.Amount,
		Kind:        row.Kind,
		Note:        row.Note,
		Status:      row.Status,
		Method:      row.Method,
		ProcessedBy: row.ProcessedBy,
		CreatedAt:   row.CreatedAt,
	}
	if row.ProcessedAt.Valid {
		pmt.ProcessedAt = row.ProcessedAt.Time
	}
	if len(row.Shares) > 0 {
		if err := json.Unmarshal(row.Shares, &pmt.Shares); err != nil {
			return payment.Payment{}, errors.Wrap(err, "decoding payment shares")
		}
	}
	return pmt, nil
}

func marshalShares(shares []payment.Share) (interface{}, error) {
	if shares == nil {
		return nil, nil
	}
	data, err := json.Marshal(shares)
	return data, errors.Wrap(err, "encoding payment shares")
}

const paymentColumns = `id, donor_id, recipient_id, amount, kind, note, status, method, shares, processed_by, processed_at, created_at`

func (repo *paymentRepository) CreatePayment(ctx context.Context, pmt payment.Payment) (payment.Payment, error) {
	shares, err := marshalShares(pmt.Shares)
	if err != nil {
		return payment.Payment{}, err
	}
	_, err = repo.db.ExecContext(ctx,
		`INSERT INTO payments (id, donor_id, recipient_id, amount, kind, note, status, method, shares, processed_by, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
		pmt.ID, pmt.DonorID, pmt.RecipientID, pmt.Amount, pmt.Kind, pmt.Note, pmt.Status, pmt.Method, shares,
		pmt.ProcessedBy, pmt.CreatedAt,
	)
	if err != nil {
		return payment.Payment{}, errors.Wrap(err, "creating payment")
	}
	return pmt, nil
}

func (repo *paymentRepository) GetPaymentByID(ctx context.Context, id string) (payment.Payment, error) {
	var row paymentRow
	err := repo.db.GetContext(ctx, &row, `SELECT `+paymentColumns+` FROM payments WHERE id = $1`, id)
	if err == sql.ErrNoRows {
		return payment.Payment{}, payment.ErrNotFound
	}
	if err != nil {
		return payment.Payment{}, errors.Wrap(err, "getting payment")
	}
	return row.toPayment()
}

func (repo *paymentRepository) FilterPayments(ctx context.Context, filter payment.QueryFilter) ([]payment.Payment, error) {
	var clauses []string
	var args []interface{}
	add := func(clause string, v interface{}) {
		args = append(args, v)
		clauses = append(clauses, fmt.Sprintf(clause, len(args)))
	}

	if filter.Status != "" {
		add(`status = $%d`, filter.Status)
	}
	if filter.Kind != "" {
		add(`kind = $%d`, filter.Kind)
	}
	if filter.DonorID != "" {
		add(`donor_id = $%d`, filter.DonorID)
	}
	if filter.RecipientID != "" {
		add(`(recipient_id = $%[1]d OR shares @> jsonb_build_array(jsonb_build_object('recipient_id', $%[1]d::text)))`, filter.RecipientID)
	}

	query := `SELECT ` + paymentColumns + ` FROM payments`
	if len(clauses) > 0 {
		query += ` WHERE ` + strings.Join(clauses, ` AND `)
	}
	query += ` ORDER BY created_at DESC, id ASC`

	var rows []paymentRow
	if err := repo.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, errors.Wrap(err, "filtering payments")
	}
	payments := make([]payment.Payment, 0, len(rows))
	for _, row := range rows {
		pmt, err := row.toPayment()
		if err != nil {
			return nil, err
		}
		payments = append(payments, pmt)
	}
	return payments, nil
}

// TransitionPayment relies on a conditional UPDATE for atomicity; see
// TransitionDonation.
func (repo *paymentRepository) TransitionPayment(ctx context.Context, id, from, to string, changes payment.Changes) (payment.Payment, error) {
	sets := []string{`status = $3`}
	args := []interface{}{id, from, to}
	set := func(clause string, v interface{}) {
		args = append(args, v)
		sets = append(sets, fmt.Sprintf(clause, len(args)))
	}
	if changes.Method != nil {
		set(`method = $%d`, *changes.Method)
	}
	if changes.RecipientID != nil {
		set(`recipient_id = $%d`, *changes.RecipientID)
	}
	if changes.Shares != nil {
		shares, err := marshalShares(changes.Shares)
		if err != nil {
			return payment.Payment{}, err
		}
		set(`shares = $%d`, shares)
	}
	if changes.ProcessedBy != nil {
		set(`processed_by = $%d`, *changes.ProcessedBy)
	}
	if changes.ProcessedAt != nil {
		set(`processed_at = $%d`, *changes.ProcessedAt)
	}

	query := fmt.Sprintf(
		`UPDATE payments SET %s WHERE id = $1 AND status = $2 RETURNING %s`,
		strings.Join(sets, ", "), paymentColumns,
	)

	var row paymentRow
	err := repo.db.GetContext(ctx, &row, query, args...)
	if err == sql.ErrNoRows {
		pmt, getErr := repo.GetPaymentByID(ctx, id)
		if getErr != nil {
			return payment.Payment{}, getErr
		}
		return payment.Payment{}, core.NewConflictError(fmt.Sprintf("payment is %s", pmt.Status))
	}
	if err != nil {
		return payment.Payment{}, errors.Wrap(err, "transitioning payment")
	}
	return row.toPayment()
}
