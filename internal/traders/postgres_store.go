package traders

import (
	"context"
	"database/sql"
	"strings"

	"github.com/lib/pq"

	"github.com/quantumforge/platform/internal/reputation"
)

// PostgresStore implements Store with PostgreSQL.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore creates a new PostgreSQL-backed trader store.
func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

var _ Store = (*PostgresStore)(nil)

// Migrate creates the traders table.
func (p *PostgresStore) Migrate(ctx context.Context) error {
	_, err := p.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS traders (
			id               VARCHAR(36) PRIMARY KEY,
			name             VARCHAR(255) NOT NULL,
			email            VARCHAR(255) DEFAULT '',
			role             VARCHAR(20) NOT NULL DEFAULT 'trader',
			wallet_address   VARCHAR(42) UNIQUE,
			specialty        VARCHAR(100) DEFAULT '',
			performance      VARCHAR(100) DEFAULT '',
			followers        INTEGER DEFAULT 0,
			following        INTEGER DEFAULT 0,
			average_rating   DECIMAL(4,2) DEFAULT 0,
			review_count     INTEGER DEFAULT 0,
			certification    VARCHAR(10) DEFAULT '',
			certification_tx VARCHAR(80) DEFAULT '',
			created_at       TIMESTAMPTZ DEFAULT NOW(),
			last_login_at    TIMESTAMPTZ
		);

		CREATE INDEX IF NOT EXISTS idx_traders_wallet ON traders(wallet_address);
		CREATE INDEX IF NOT EXISTS idx_traders_rating ON traders(average_rating DESC, review_count DESC);
	`)
	return err
}

const traderColumns = `
	id, name, email, role, wallet_address, specialty, performance,
	followers, following, average_rating, review_count,
	certification, certification_tx, created_at, last_login_at
`

func (p *PostgresStore) Create(ctx context.Context, trader *Trader) error {
	trader.WalletAddress = strings.ToLower(trader.WalletAddress)

	_, err := p.db.ExecContext(ctx, `
		INSERT INTO traders (id, name, email, role, wallet_address, specialty, performance,
			followers, following, average_rating, review_count, certification, certification_tx, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
	`, trader.ID, trader.Name, trader.Email, trader.Role, trader.WalletAddress,
		trader.Specialty, trader.Performance, trader.Followers, trader.Following,
		trader.AverageRating, trader.ReviewCount, string(trader.Certification),
		trader.CertificationTx, trader.CreatedAt)

	if pqErr, ok := err.(*pq.Error); ok && pqErr.Code == "23505" {
		return ErrTraderExists
	}
	return err
}

func (p *PostgresStore) Get(ctx context.Context, id string) (*Trader, error) {
	row := p.db.QueryRowContext(ctx, `SELECT `+traderColumns+` FROM traders WHERE id = $1`, id)
	return scanTrader(row)
}

func (p *PostgresStore) GetByWallet(ctx context.Context, walletAddress string) (*Trader, error) {
	row := p.db.QueryRowContext(ctx, `
		SELECT `+traderColumns+` FROM traders WHERE wallet_address = $1
	`, strings.ToLower(walletAddress))
	return scanTrader(row)
}

func (p *PostgresStore) List(ctx context.Context, limit, offset int) ([]*Trader, error) {
	rows, err := p.db.QueryContext(ctx, `
		SELECT `+traderColumns+`
		FROM traders
		ORDER BY average_rating DESC, review_count DESC
		LIMIT $1 OFFSET $2
	`, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var traders []*Trader
	for rows.Next() {
		trader, err := scanTrader(rows)
		if err != nil {
			return nil, err
		}
		traders = append(traders, trader)
	}
	return traders, rows.Err()
}

func (p *PostgresStore) Update(ctx context.Context, trader *Trader) error {
	result, err := p.db.ExecContext(ctx, `
		UPDATE traders SET
			name = $2, email = $3, role = $4, specialty = $5, performance = $6,
			followers = $7, following = $8, last_login_at = $9
		WHERE id = $1
	`, trader.ID, trader.Name, trader.Email, trader.Role, trader.Specialty,
		trader.Performance, trader.Followers, trader.Following, trader.LastLoginAt)
	if err != nil {
		return err
	}
	affected, _ := result.RowsAffected()
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}

func (p *PostgresStore) UpdateAggregates(ctx context.Context, walletAddress string, agg Aggregates) error {
	result, err := p.db.ExecContext(ctx, `
		UPDATE traders SET
			average_rating = $2, review_count = $3, certification = $4, certification_tx = $5
		WHERE wallet_address = $1
	`, strings.ToLower(walletAddress), agg.AverageRating, agg.ReviewCount,
		string(agg.Tier), agg.Token)
	if err != nil {
		return err
	}
	affected, _ := result.RowsAffected()
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}

// scannable covers *sql.Row and *sql.Rows.
type scannable interface {
	Scan(dest ...interface{}) error
}

func scanTrader(row scannable) (*Trader, error) {
	trader := &Trader{}
	var wallet, cert sql.NullString
	var lastLogin sql.NullTime

	err := row.Scan(
		&trader.ID, &trader.Name, &trader.Email, &trader.Role, &wallet,
		&trader.Specialty, &trader.Performance, &trader.Followers, &trader.Following,
		&trader.AverageRating, &trader.ReviewCount, &cert, &trader.CertificationTx,
		&trader.CreatedAt, &lastLogin,
	)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	trader.WalletAddress = wallet.String
	trader.Certification = reputation.Tier(cert.String)
	if lastLogin.Valid {
		trader.LastLoginAt = &lastLogin.Time
	}
	return trader, nil
}
