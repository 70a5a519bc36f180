package database

import (
	"database/sql"
	"fmt"
)

// schemaStatements is executed in order at startup. Everything is
// IF NOT EXISTS so repeated boots are harmless.
var schemaStatements = []string{
	`CREATE TABLE IF NOT EXISTS wallets (
		user_id          TEXT PRIMARY KEY,
		balance_kobo     BIGINT NOT NULL DEFAULT 0 CHECK (balance_kobo >= 0),
		available_points BIGINT NOT NULL DEFAULT 0 CHECK (available_points >= 0),
		locked_points    BIGINT NOT NULL DEFAULT 0 CHECK (locked_points >= 0),
		total_points     BIGINT NOT NULL DEFAULT 0 CHECK (total_points = available_points + locked_points),
		version          BIGINT NOT NULL DEFAULT 0,
		created_at       TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		updated_at       TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,

	`CREATE TABLE IF NOT EXISTS payment_requests (
		id                  TEXT PRIMARY KEY,
		user_id             TEXT NOT NULL,
		kind                TEXT NOT NULL CHECK (kind IN ('funding', 'withdrawal', 'subscription')),
		status              TEXT NOT NULL DEFAULT 'pending' CHECK (status IN ('pending', 'approved', 'rejected')),
		source              TEXT NOT NULL DEFAULT 'manual',
		amount_kobo         BIGINT NOT NULL DEFAULT 0,
		points_requested    BIGINT NOT NULL DEFAULT 0,
		rate_kobo_per_point BIGINT NOT NULL DEFAULT 0,
		payout_kobo         BIGINT NOT NULL DEFAULT 0,
		bank_reference      TEXT NOT NULL DEFAULT '',
		proof_ref           TEXT NULL,
		account_name        TEXT NOT NULL DEFAULT '',
		account_number      TEXT NOT NULL DEFAULT '',
		bank_code           TEXT NOT NULL DEFAULT '',
		plan_key            TEXT NOT NULL DEFAULT '',
		payment_method      TEXT NOT NULL DEFAULT '',
		admin_notes         TEXT NOT NULL DEFAULT '',
		created_at          TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		processed_at        TIMESTAMPTZ NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_payment_requests_status_kind ON payment_requests(status, kind, created_at)`,
	`CREATE INDEX IF NOT EXISTS idx_payment_requests_user ON payment_requests(user_id, created_at)`,

	`CREATE TABLE IF NOT EXISTS escrow_transactions (
		id                TEXT PRIMARY KEY,
		job_id            TEXT NOT NULL,
		client_id         TEXT NOT NULL,
		apprentice_id     TEXT NULL,
		amount_kobo       BIGINT NOT NULL CHECK (amount_kobo > 0),
		status            TEXT NOT NULL DEFAULT 'held' CHECK (status IN ('held', 'released', 'refunded')),
		commission_kobo   BIGINT NOT NULL DEFAULT 0,
		payout_kobo       BIGINT NOT NULL DEFAULT 0,
		refund_reason     TEXT NOT NULL DEFAULT '',
		auto_release_date TIMESTAMPTZ NOT NULL,
		created_at        TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		released_at       TIMESTAMPTZ NULL,
		refunded_at       TIMESTAMPTZ NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_escrow_status_release ON escrow_transactions(status, auto_release_date)`,
	`CREATE INDEX IF NOT EXISTS idx_escrow_client ON escrow_transactions(client_id, created_at)`,

	`CREATE TABLE IF NOT EXISTS disputes (
		id          TEXT PRIMARY KEY,
		escrow_id   TEXT NOT NULL REFERENCES escrow_transactions(id),
		filer_id    TEXT NOT NULL,
		reason      TEXT NOT NULL,
		status      TEXT NOT NULL DEFAULT 'open' CHECK (status IN ('open', 'resolved')),
		resolution  TEXT NOT NULL DEFAULT '',
		resolved_by TEXT NOT NULL DEFAULT '',
		created_at  TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		resolved_at TIMESTAMPTZ NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_disputes_escrow ON disputes(escrow_id, status)`,

	`CREATE TABLE IF NOT EXISTS ledger_entries (
		id                 TEXT PRIMARY KEY,
		wallet_user_id     TEXT NOT NULL,
		entry_type         TEXT NOT NULL,
		amount_kobo        BIGINT NOT NULL DEFAULT 0,
		points             BIGINT NOT NULL DEFAULT 0,
		balance_after_kobo BIGINT NOT NULL DEFAULT 0,
		points_after       BIGINT NOT NULL DEFAULT 0,
		reference          TEXT NOT NULL DEFAULT '',
		description        TEXT NOT NULL DEFAULT '',
		created_at         TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
	`CREATE INDEX IF NOT EXISTS idx_ledger_wallet ON ledger_entries(wallet_user_id, created_at)`,
	`CREATE INDEX IF NOT EXISTS idx_ledger_reference ON ledger_entries(reference)`,

	`CREATE TABLE IF NOT EXISTS referrals (
		id               TEXT PRIMARY KEY,
		referrer_id      TEXT NOT NULL,
		referred_user_id TEXT NOT NULL UNIQUE,
		created_at       TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,

	`CREATE TABLE IF NOT EXISTS referral_earnings (
		id             TEXT PRIMARY KEY,
		referrer_id    TEXT NOT NULL,
		source_user_id TEXT NOT NULL,
		source_type    TEXT NOT NULL,
		source_id      TEXT NOT NULL,
		points         BIGINT NOT NULL,
		created_at     TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		UNIQUE (source_type, source_id)
	)`,

	`CREATE TABLE IF NOT EXISTS subscriptions (
		id         TEXT PRIMARY KEY,
		user_id    TEXT NOT NULL,
		plan_key   TEXT NOT NULL,
		request_id TEXT NOT NULL,
		starts_at  TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		expires_at TIMESTAMPTZ NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_subscriptions_user ON subscriptions(user_id, expires_at)`,

	`CREATE TABLE IF NOT EXISTS notifications (
		id         TEXT PRIMARY KEY,
		user_id    TEXT NOT NULL,
		type       TEXT NOT NULL,
		title      TEXT NOT NULL,
		body       TEXT NOT NULL DEFAULT '',
		reference  TEXT NOT NULL DEFAULT '',
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		read_at    TIMESTAMPTZ NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_notifications_user ON notifications(user_id, created_at)`,
}

// EnsureSchema creates the ledger tables if they do not exist.
func EnsureSchema(db *sql.DB) error {
	for _, stmt := range schemaStatements {
		if _, err := db.Exec(stmt); err != nil {
			return fmt.Errorf("schema statement failed: %w", err)
		}
	}
	return nil
}
