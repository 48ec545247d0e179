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
	"github.com/educonnect/backend/core/request"
)

type requestRepository struct {
	db *sqlx.DB
}

var _ request.Repository = (*requestRepository)(nil)

func NewRequestRepository(db *sqlx.DB) request.Repository {
	return &requestRepository{db: db}
}

type requestRow struct {
	ID          string    `db:"id"`
	OwnerID     string    `db:"owner_id"`
	Kind        string    `db:"kind"`
	Description string    `db:"description"`
	Urgency     string    `db:"urgency"`
	UrgencyRank int       `db:"urgency_rank"`
	Amount      int64     `db:"amount"`
	Status      string    `db:"status"`
	FulfillerID string    `db:"fulfiller_id"`
	CreatedAt   time.Time `db:"created_at"`
	UpdatedAt   time.Time `db:"updated_at"`
}

func (row requestRow) toRequest() request.Request {
	return request.Request{
		ID:          row.ID,
		OwnerID:     row.OwnerID,
		Kind:        row.Kind,
		Description: row.Description,
		Urgency:     row.Urgency,
		Amount:      row.Amount,
		Status:      row.Status,
		FulfillerID: row.FulfillerID,
		CreatedAt:   row.CreatedAt,
		UpdatedAt:   row.UpdatedAt,
	}
}

const requestColumns = `id, owner_id, kind, description, urgency, urgency_rank, amount, status, fulfiller_id, created_at, updated_at`

func (repo *requestRepository) CreateRequest(ctx context.Context, req request.Request) (request.Request, error) {
	_, err := repo.db.ExecContext(ctx,
		`INSERT INTO requests (id, owner_id, kind, description, urgency, urgency_rank, amount, status, fulfiller_id, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
		req.ID, req.OwnerID, req.Kind, req.Description, req.Urgency, request.UrgencyRank(req.Urgency),
		req.Amount, req.Status, req.FulfillerID, req.CreatedAt, req.UpdatedAt,
	)
	if err != nil {
		return request.Request{}, errors.Wrap(err, "creating request")
	}
	return req, nil
}

func (repo *requestRepository) GetRequestByID(ctx context.Context, id string) (request.Request, error) {
	var row requestRow
	err := repo.db.GetContext(ctx, &row, `SELECT `+requestColumns+` FROM requests WHERE id = $1`, id)
	if err == sql.ErrNoRows {
		return request.Request{}, request.ErrNotFound
	}
	if err != nil {
		return request.Request{}, errors.Wrap(err, "getting request")
	}
	return row.toRequest(), nil
}

// sortOrders maps a sort key to its ORDER BY clause; every order ends on
// created_at asc, then id, so equal keys keep the oldest-first order and
// exact-timestamp ties still return identical order on repeated queries.
var sortOrders = map[request.SortKey]string{
	request.SortCreated: `created_at ASC, id ASC`,
	request.SortUrgency: `urgency_rank DESC, created_at ASC, id ASC`,
	request.SortAmount:  `amount DESC, created_at ASC, id ASC`,
}

func (repo *requestRepository) FilterRequests(ctx context.Context, filter request.QueryFilter, sortKey request.SortKey) ([]request.Request, error) {
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
	if filter.Urgency != "" {
		add(`urgency = $%d`, filter.Urgency)
	}

	order, ok := sortOrders[sortKey]
	if !ok {
		order = sortOrders[request.SortCreated]
	}

	query := `SELECT ` + requestColumns + ` FROM requests`
	if len(clauses) > 0 {
		query += ` WHERE ` + strings.Join(clauses, ` AND `)
	}
	query += ` ORDER BY ` + order

	var rows []requestRow
	if err := repo.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, errors.Wrap(err, "filtering requests")
	}
	requests := make([]request.Request, 0, len(rows))
	for _, row := range rows {
		requests = append(requests, row.toRequest())
	}
	return requests, nil
}

// TransitionRequest relies on a conditional UPDATE for atomicity; see
// TransitionDonation.
func (repo *requestRepository) TransitionRequest(ctx context.Context, id, from, to string, changes request.Changes) (request.Request, error) {
	sets := []string{`status = $3`, `updated_at = $4`}
	args := []interface{}{id, from, to, time.Now().UTC()}
	if changes.FulfillerID != nil {
		args = append(args, *changes.FulfillerID)
		sets = append(sets, fmt.Sprintf(`fulfiller_id = $%d`, len(args)))
	}

	query := fmt.Sprintf(
		`UPDATE requests SET %s WHERE id = $1 AND status = $2 RETURNING %s`,
		strings.Join(sets, ", "), requestColumns,
	)

	var row requestRow
	err := repo.db.GetContext(ctx, &row, query, args...)
	if err == sql.ErrNoRows {
		req, getErr := repo.GetRequestByID(ctx, id)
		if getErr != nil {
			return request.Request{}, getErr
		}
		return request.Request{}, core.NewConflictError(fmt.Sprintf("request is %s", req.Status))
	}
	if err != nil {
		return request.Request{}, errors.Wrap(err, "transitioning request")
	}
	return row.toRequest(), nil
}
