package reviews

import (
	"context"
	"database/sql"
)

// PostgresStore implements Store with PostgreSQL.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore creates a new PostgreSQL-backed review store.
func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

var _ Store = (*PostgresStore)(nil)

// Migrate creates the reviews table.
func (p *PostgresStore) Migrate(ctx context.Context) error {
	_, err := p.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS reviews (
			id           VARCHAR(36) PRIMARY KEY,
			subject_id   VARCHAR(42) NOT NULL,
			reviewer_id  VARCHAR(42) NOT NULL,
			rating       SMALLINT NOT NULL CHECK (rating BETWEEN 1 AND 5),
			comment      TEXT DEFAULT '',
			submitted_at TIMESTAMPTZ DEFAULT NOW()
		);

		CREATE INDEX IF NOT EXISTS idx_reviews_subject ON reviews(subject_id, submitted_at DESC);
	`)
	return err
}

func (p *PostgresStore) Append(ctx context.Context, review *Review) error {
	_, err := p.db.ExecContext(ctx, `
		INSERT INTO reviews (id, subject_id, reviewer_id, rating, comment, submitted_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, review.ID, review.SubjectID, review.ReviewerID, review.Rating,
		review.Comment, review.SubmittedAt)
	return err
}

func (p *PostgresStore) ListBySubject(ctx context.Context, subjectID string) ([]*Review, error) {
	rows, err := p.db.QueryContext(ctx, `
		SELECT id, subject_id, reviewer_id, rating, comment, submitted_at
		FROM reviews
		WHERE subject_id = $1
		ORDER BY submitted_at DESC
	`, subjectID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*Review
	for rows.Next() {
		r := &Review{}
		if err := rows.Scan(&r.ID, &r.SubjectID, &r.ReviewerID, &r.Rating,
			&r.Comment, &r.SubmittedAt); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}
