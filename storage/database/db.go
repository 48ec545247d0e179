package database

import (
	"net/url"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	"github.com/pkg/errors"

	"github.com/educonnect/backend/core"
)

// Open connects to the configured postgres database.
func Open(conf *core.Config) (*sqlx.DB, error) {
	user := url.UserPassword(conf.Database.User, conf.Database.Password)

	sslMode := "require"
	if conf.Database.DisableTLS {
		sslMode = "disable"
	}
	q := make(url.Values)
	q.Set("sslmode", sslMode)
	q.Set("timezone", "utc")

	u := url.URL{
		Scheme:   conf.Database.Engine,
		User:     user,
		Host:     conf.Database.Address(),
		Path:     conf.Database.Name,
		RawQuery: q.Encode(),
	}
	return sqlx.Open(conf.Database.Engine, u.String())
}

// Ping waits for the database to be ready. Waits 100ms longer between each attempt.
func Ping(db *sqlx.DB) error {
	var err error
	maxAttempts := 30
	for attempts := 1; attempts <= maxAttempts; attempts++ {
		err = db.Ping()
		if err == nil {
			break
		}
		time.Sleep(time.Duration(attempts) * 100 * time.Millisecond)
	}

	if err != nil {
		return errors.Wrap(err, "DB ping timeout")
	}
	return nil
}

var schema = []string{
	`CREATE TABLE IF NOT EXISTS users (
		id            UUID PRIMARY KEY,
		name          TEXT NOT NULL,
		username      TEXT NOT NULL DEFAULT '',
		email         TEXT NOT NULL DEFAULT '',
		is_active     BOOLEAN NOT NULL DEFAULT TRUE,
		roles         TEXT[] NOT NULL DEFAULT '{}',
		password_hash BYTEA,
		created_at    TIMESTAMPTZ NOT NULL,
		updated_at    TIMESTAMPTZ NOT NULL,
		last_login    TIMESTAMPTZ
	)`,
	`CREATE TABLE IF NOT EXISTS donations (
		id           UUID PRIMARY KEY,
		owner_id     UUID NOT NULL,
		kind         TEXT NOT NULL,
		description  TEXT NOT NULL,
		amount       BIGINT NOT NULL CHECK (amount >= 0),
		status       TEXT NOT NULL,
		claimant_id  TEXT NOT NULL DEFAULT '',
		image        TEXT NOT NULL DEFAULT '',
		created_at   TIMESTAMPTZ NOT NULL,
		expires_at   TIMESTAMPTZ NOT NULL,
		finalized_at TIMESTAMPTZ
	)`,
	`CREATE INDEX IF NOT EXISTS donations_status_idx ON donations (status, kind)`,
	`CREATE TABLE IF NOT EXISTS requests (
		id           UUID PRIMARY KEY,
		owner_id     UUID NOT NULL,
		kind         TEXT NOT NULL,
		description  TEXT NOT NULL,
		urgency      TEXT NOT NULL,
		urgency_rank INT NOT NULL,
		amount       BIGINT NOT NULL CHECK (amount >= 0),
		status       TEXT NOT NULL,
		fulfiller_id TEXT NOT NULL DEFAULT '',
		created_at   TIMESTAMPTZ NOT NULL,
		updated_at   TIMESTAMPTZ NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS requests_status_idx ON requests (status, kind, owner_id)`,
	`CREATE TABLE IF NOT EXISTS payments (
		id           UUID PRIMARY KEY,
		donor_id     UUID NOT NULL,
		recipient_id TEXT NOT NULL DEFAULT '',
		amount       BIGINT NOT NULL CHECK (amount > 0),
		kind         TEXT NOT NULL,
		note         TEXT NOT NULL DEFAULT '',
		status       TEXT NOT NULL,
		method       TEXT NOT NULL DEFAULT '',
		shares       JSONB,
		processed_by TEXT NOT NULL DEFAULT '',
		processed_at TIMESTAMPTZ,
		created_at   TIMESTAMPTZ NOT NULL
	)`,
}

// EnsureSchema creates the application tables if they do not exist yet.
func EnsureSchema(db *sqlx.DB) error {
	for _, stmt := range schema {
		if _, err := db.Exec(stmt); err != nil {
			return errors.Wrap(err, "ensuring schema")
		}
	}
	return nil
}
