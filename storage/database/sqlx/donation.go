package sqlxrepos

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"

	"github.com/educonnect/backend/core"
	"github.com/educonnect/backend/core/donation"
)

type donationRepository struct {
	db *sqlx.DB
}

var _ donation.Repository = (*donationRepository)(nil)

func NewDonationRepository(db *sqlx.DB) donation.Repository {
	return &donationRepository{db: db}
}

type donationRow struct {
	ID          string       `db:"id"`
	OwnerID     string       `db:"owner_id"`
	Kind        string       `db:"kind"`
	Description string       `db:"description"`
	Amount      int64        `db:"amount"`
	Status      string       `db:"status"`
	ClaimantID  string       `db:"claimant_id"`
	Image       string       `db:"image"`
	CreatedAt   time.Time    `db:"created_at"`
	ExpiresAt   time.Time    `db:"expires_at"`
	FinalizedAt sql.NullTime `db:"finalized_at"`
}

func (row donationRow) toDonation() donation.Donation {
	don := donation.Donation{
		ID:          row.ID,
		OwnerID:     row.OwnerID,
		Kind:        row.Kind,
		Description: row.Description,
		Amount:      row.Amount,
		Status:      row.Status,
		ClaimantID:  row.ClaimantID,
		Image:       row.Image,
		CreatedAt:   row.CreatedAt,
		ExpiresAt:   row.ExpiresAt,
	}
	if row.FinalizedAt.Valid {
		don.FinalizedAt = row.FinalizedAt.Time
	}
	return don
}

const donationColumns = `id, owner_id, kind, description, amount, status, claimant_id, image, created_at, expires_at, finalized_at`

func (repo *donationRepository) CreateDonation(ctx context.Context, don donation.Donation) (donation.Donation, error) {
	_, err := repo.db.ExecContext(ctx,
		`INSERT INTO donations (id, owner_id, kind, description, amount, status, claimant_id, image, created_at, expires_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		don.ID, don.OwnerID, don.Kind, don.Description, don.Amount, don.Status, don.ClaimantID, don.Image,
		don.CreatedAt, don.ExpiresAt,
	)
	if err != nil {
		return donation.Donation{}, errors.Wrap(err, "creating donation")
	}
	return don, nil
}

func (repo *donationRepository) GetDonationByID(ctx context.Context, id string) (donation.Donation, error) {
	var row donationRow
	err := repo.db.GetContext(ctx, &row, `SELECT `+donationColumns+` FROM donations WHERE id = $1`, id)
	if err == sql.ErrNoRows {
		return donation.Donation{}, donation.ErrNotFound
	}
	if err != nil {
		return donation.Donation{}, errors.Wrap(err, "getting donation")
	}
	return row.toDonation(), nil
}

func (repo *donationRepository) FilterDonations(ctx context.Context, filter donation.QueryFilter) ([]donation.Donation, error) {
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
	if filter.OwnerID != "" {
		add(`owner_id = $%d`, filter.OwnerID)
	}
	if filter.ClaimantID != "" {
		add(`claimant_id = $%d`, filter.ClaimantID)
	}

	query := `SELECT ` + donationColumns + ` FROM donations`
	if len(clauses) > 0 {
		query += ` WHERE ` + strings.Join(clauses, ` AND `)
	}
	query += ` ORDER BY created_at DESC, id ASC`

	var rows []donationRow
	if err := repo.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, errors.Wrap(err, "filtering donations")
	}
	donations := make([]donation.Donation, 0, len(rows))
	for _, row := range rows {
		donations = append(donations, row.toDonation())
	}
	return donations, nil
}

// TransitionDonation relies on a conditional UPDATE for atomicity: the status
// check and the write happen in one statement, so of N concurrent transitions
// on the same record exactly one matches the WHERE clause.
func (repo *donationRepository) TransitionDonation(ctx context.Context, id, from, to string, changes donation.Changes) (donation.Donation, error) {
	sets := []string{`status = $3`}
	args := []interface{}{id, from, to}
	set := func(clause string, v interface{}) {
		args = append(args, v)
		sets = append(sets, fmt.Sprintf(clause, len(args)))
	}
	if changes.ClaimantID != nil {
		set(`claimant_id = $%d`, *changes.ClaimantID)
	}
	if changes.FinalizedAt != nil {
		set(`finalized_at = $%d`, *changes.FinalizedAt)
	}

	query := fmt.Sprintf(
		`UPDATE donations SET %s WHERE id = $1 AND status = $2 RETURNING %s`,
		strings.Join(sets, ", "), donationColumns,
	)

	var row donationRow
	err := repo.db.GetContext(ctx, &row, query, args...)
	if err == sql.ErrNoRows {
		// the record is either missing or in another status
		don, getErr := repo.GetDonationByID(ctx, id)
		if getErr != nil {
			return donation.Donation{}, getErr
		}
		return donation.Donation{}, core.NewConflictError(fmt.Sprintf("donation is %s", don.Status))
	}
	if err != nil {
		return donation.Donation{}, errors.Wrap(err, "transitioning donation")
	}
	return row.toDonation(), nil
}

func (repo *donationRepository) ExpireOverdueDonations(ctx context.Context, now time.Time) ([]donation.Donation, error) {
	var rows []donationRow
	err := repo.db.SelectContext(ctx, &rows,
		`UPDATE donations SET status = $1 WHERE status = $2 AND expires_at < $3 RETURNING `+donationColumns,
		donation.StatusExpired, donation.StatusAvailable, now,
	)
	if err != nil {
		return nil, errors.Wrap(err, "expiring donations")
	}
	donations := make([]donation.Donation, 0, len(rows))
	for _, row := range rows {
		donations = append(donations, row.toDonation())
	}
	return donations, nil
}
