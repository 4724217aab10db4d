package auth

import (
	"context"
	"database/sql"
)

// PostgresStore persists session tokens in PostgreSQL
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore creates a new PostgreSQL-backed auth store
func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

var _ Store = (*PostgresStore)(nil)

// Migrate creates the session_tokens table if it doesn't exist
func (p *PostgresStore) Migrate(ctx context.Context) error {
	_, err := p.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS session_tokens (
			id              VARCHAR(36) PRIMARY KEY,
			hash            VARCHAR(64) NOT NULL UNIQUE,
			wallet_address  VARCHAR(42) NOT NULL,
			created_at      TIMESTAMPTZ DEFAULT NOW(),
			last_used       TIMESTAMPTZ,
			expires_at      TIMESTAMPTZ,
			revoked         BOOLEAN DEFAULT FALSE
		);
		CREATE INDEX IF NOT EXISTS idx_session_tokens_hash ON session_tokens(hash);
		CREATE INDEX IF NOT EXISTS idx_session_tokens_wallet ON session_tokens(wallet_address);
	`)
	return err
}

// Create stores a new session token
func (p *PostgresStore) Create(ctx context.Context, token *Token) error {
	_, err := p.db.ExecContext(ctx, `
		INSERT INTO session_tokens (id, hash, wallet_address, created_at, expires_at, revoked)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, token.ID, token.Hash, token.WalletAddress, token.CreatedAt, token.ExpiresAt, token.Revoked)
	return err
}

// GetByHash retrieves a session token by its hash
func (p *PostgresStore) GetByHash(ctx context.Context, hash string) (*Token, error) {
	token := &Token{}
	var expiresAt sql.NullTime
	var lastUsed sql.NullTime

	err := p.db.QueryRowContext(ctx, `
		SELECT id, hash, wallet_address, created_at, last_used, expires_at, revoked
		FROM session_tokens WHERE hash = $1
		  AND revoked = FALSE
		  AND (expires_at IS NULL OR expires_at > NOW())
	`, hash).Scan(
		&token.ID, &token.Hash, &token.WalletAddress,
		&token.CreatedAt, &lastUsed, &expiresAt, &token.Revoked,
	)
	if err == sql.ErrNoRows {
		return nil, ErrTokenNotFound
	}
	if err != nil {
		return nil, err
	}

	if expiresAt.Valid {
		token.ExpiresAt = &expiresAt.Time
	}
	if lastUsed.Valid {
		token.LastUsed = lastUsed.Time
	}
	return token, nil
}

// GetByWallet retrieves all session tokens for a wallet
func (p *PostgresStore) GetByWallet(ctx context.Context, walletAddress string) ([]*Token, error) {
	rows, err := p.db.QueryContext(ctx, `
		SELECT id, hash, wallet_address, created_at, last_used, expires_at, revoked
		FROM session_tokens WHERE wallet_address = $1 ORDER BY created_at DESC
	`, walletAddress)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var tokens []*Token
	for rows.Next() {
		token := &Token{}
		var expiresAt sql.NullTime
		var lastUsed sql.NullTime

		if err := rows.Scan(
			&token.ID, &token.Hash, &token.WalletAddress,
			&token.CreatedAt, &lastUsed, &expiresAt, &token.Revoked,
		); err != nil {
			return nil, err
		}

		if expiresAt.Valid {
			token.ExpiresAt = &expiresAt.Time
		}
		if lastUsed.Valid {
			token.LastUsed = lastUsed.Time
		}
		tokens = append(tokens, token)
	}
	return tokens, rows.Err()
}

// Update updates a session token
func (p *PostgresStore) Update(ctx context.Context, token *Token) error {
	_, err := p.db.ExecContext(ctx, `
		UPDATE session_tokens SET last_used = $1, revoked = $2 WHERE id = $3
	`, token.LastUsed, token.Revoked, token.ID)
	return err
}

// Delete removes a session token
func (p *PostgresStore) Delete(ctx context.Context, id string) error {
	_, err := p.db.ExecContext(ctx, `DELETE FROM session_tokens WHERE id = $1`, id)
	return err
}
