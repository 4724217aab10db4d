// Package reviews implements the peer review pipeline.
//
// A submitted review is appended to the full review history, the subject's
// rating aggregates are recomputed from that history, and an upward
// certification tier change triggers an on-chain credential mint. The mint
// is the gate: a trader's stored tier only advances after the credential
// transaction confirms.
package reviews

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/quantumforge/platform/internal/circuitbreaker"
	"github.com/quantumforge/platform/internal/idgen"
	"github.com/quantumforge/platform/internal/logging"
	"github.com/quantumforge/platform/internal/metrics"
	"github.com/quantumforge/platform/internal/reputation"
	"github.com/quantumforge/platform/internal/retry"
	"github.com/quantumforge/platform/internal/syncutil"
	"github.com/quantumforge/platform/internal/traces"
	"github.com/quantumforge/platform/internal/traders"
)

var (
	ErrMissingSubject  = errors.New("subjectId is required")
	ErrMissingReviewer = errors.New("reviewerId is required")
	ErrInvalidRating   = errors.New("rating must be an integer between 1 and 5")
	ErrCommentTooLong  = errors.New("comment exceeds 1000 characters")
)

// MaxCommentLength bounds the free-text comment.
const MaxCommentLength = 1000

// Review is a single immutable review of a trader.
type Review struct {
	ID          string    `json:"id"`
	SubjectID   string    `json:"subjectId"`  // wallet address of the reviewed trader
	ReviewerID  string    `json:"reviewerId"` // wallet address of the author
	Rating      int       `json:"rating"`     // 1..5
	Comment     string    `json:"comment,omitempty"`
	SubmittedAt time.Time `json:"submittedAt"`
}

// Input is the payload for submitting a review.
type Input struct {
	SubjectID  string `json:"subjectId"`
	ReviewerID string `json:"reviewerId"`
	Rating     int    `json:"rating"`
	Comment    string `json:"comment,omitempty"`
}

// Validate checks the input without touching any store.
func (in *Input) Validate() error {
	if strings.TrimSpace(in.SubjectID) == "" {
		return ErrMissingSubject
	}
	if strings.TrimSpace(in.ReviewerID) == "" {
		return ErrMissingReviewer
	}
	if in.Rating < 1 || in.Rating > 5 {
		return ErrInvalidRating
	}
	if len(in.Comment) > MaxCommentLength {
		return ErrCommentTooLong
	}
	return nil
}

// Store persists reviews. Reviews are append-only.
type Store interface {
	Append(ctx context.Context, review *Review) error
	ListBySubject(ctx context.Context, subjectID string) ([]*Review, error)
}

// TraderDirectory is the slice of the trader store the pipeline needs.
type TraderDirectory interface {
	GetByWallet(ctx context.Context, walletAddress string) (*traders.Trader, error)
	UpdateAggregates(ctx context.Context, walletAddress string, agg traders.Aggregates) error
}

// Minter issues on-chain certification credentials.
type Minter interface {
	Mint(ctx context.Context, traderAddr string, tier reputation.Tier) (string, error)
}

// Result reports what a submission did, for the HTTP layer to relay
// and broadcast.
type Result struct {
	Review   *Review
	Stats    reputation.Stats
	PrevTier reputation.Tier
	Tier     reputation.Tier
	Minted   bool
	Token    string
}

// mintBreakerKey is the single circuit used for the credential contract.
const mintBreakerKey = "certification_mint"

const (
	persistAttempts  = 3
	persistBaseDelay = 100 * time.Millisecond
)

// Service runs the review pipeline.
type Service struct {
	store   Store
	traders TraderDirectory
	minter  Minter // nil when minting is disabled
	locks   *syncutil.ContextShardedMutex
	breaker *circuitbreaker.Breaker
}

// NewService creates the review pipeline. minter may be nil, in which case
// tier upgrades are deferred until a minter is configured.
func NewService(store Store, directory TraderDirectory, minter Minter) *Service {
	return &Service{
		store:   store,
		traders: directory,
		minter:  minter,
		locks:   syncutil.NewContextShardedMutex(),
		breaker: circuitbreaker.New(5, 2*time.Minute),
	}
}

// Submit appends a review and recomputes the subject's reputation.
//
// The review itself is durable before any aggregate work happens. From there:
// a missing subject skips aggregation entirely, a mint failure keeps the
// previous tier and token, and in both cases the submission still succeeds.
// Recomputation for a subject is serialized under a per-subject lock so
// concurrent submissions cannot interleave read-recompute-write cycles.
func (s *Service) Submit(ctx context.Context, in Input) (*Result, error) {
	logger := logging.L(ctx)

	if err := in.Validate(); err != nil {
		return nil, err
	}

	ctx, span := traces.StartSpan(ctx, "reviews.Submit",
		traces.SubjectID(strings.ToLower(strings.TrimSpace(in.SubjectID))), traces.Rating(in.Rating))
	defer span.End()

	review := &Review{
		ID:          idgen.WithPrefix("rev_"),
		SubjectID:   strings.ToLower(strings.TrimSpace(in.SubjectID)),
		ReviewerID:  strings.ToLower(strings.TrimSpace(in.ReviewerID)),
		Rating:      in.Rating,
		Comment:     in.Comment,
		SubmittedAt: time.Now().UTC(),
	}

	if err := s.store.Append(ctx, review); err != nil {
		return nil, fmt.Errorf("append review: %w", err)
	}
	metrics.ReviewsSubmittedTotal.WithLabelValues(strconv.Itoa(review.Rating)).Inc()

	// The review is already durable; if the caller is gone before we can
	// take the aggregation lock there is nothing left worth waiting for.
	unlock, err := s.locks.LockContext(ctx, review.SubjectID)
	if err != nil {
		return nil, fmt.Errorf("acquire subject lock: %w", err)
	}
	defer unlock()

	result := &Result{Review: review}

	trader, err := s.traders.GetByWallet(ctx, review.SubjectID)
	if err != nil {
		if errors.Is(err, traders.ErrNotFound) {
			// The review stands on its own; there is no profile to update.
			logger.Warn("review subject has no trader profile, skipping aggregation",
				"subject", review.SubjectID)
			return result, nil
		}
		return nil, fmt.Errorf("load trader: %w", err)
	}

	history, err := s.store.ListBySubject(ctx, review.SubjectID)
	if err != nil {
		return nil, fmt.Errorf("list reviews: %w", err)
	}
	ratings := make([]int, len(history))
	for i, r := range history {
		ratings[i] = r.Rating
	}

	stats := reputation.ComputeStats(ratings)
	result.Stats = stats
	result.PrevTier = trader.Certification

	newTier := reputation.DecideTier(stats, trader.Certification)

	agg := traders.Aggregates{
		AverageRating: stats.Average,
		ReviewCount:   stats.Count,
		Tier:          trader.Certification,
		Token:         trader.CertificationTx,
	}

	switch {
	case newTier.Level() > trader.Certification.Level():
		token, ok := s.mint(ctx, trader.WalletAddress, newTier)
		if ok {
			agg.Tier = newTier
			agg.Token = token
			result.Minted = true
			result.Token = token
		}
	case newTier == reputation.TierNone && trader.Certification != reputation.TierNone:
		// Reputation fell below every threshold; revoke locally.
		agg.Tier = reputation.TierNone
		agg.Token = ""
	}
	result.Tier = agg.Tier

	err = retry.Do(ctx, persistAttempts, persistBaseDelay, func() error {
		err := s.traders.UpdateAggregates(ctx, review.SubjectID, agg)
		if errors.Is(err, traders.ErrNotFound) {
			return retry.Permanent(err)
		}
		return err
	})
	if err != nil {
		metrics.AggregateUpdatesTotal.WithLabelValues("failure").Inc()
		return nil, fmt.Errorf("update aggregates: %w", err)
	}
	metrics.AggregateUpdatesTotal.WithLabelValues("success").Inc()

	logger.Info("review processed",
		"review", review.ID,
		"subject", review.SubjectID,
		"rating", review.Rating,
		"count", stats.Count,
		"average", stats.Average,
		"tier", string(agg.Tier),
		"minted", result.Minted,
	)
	return result, nil
}

// mint attempts the credential mint behind the circuit breaker. It never
// returns an error: a failed or skipped mint simply leaves the previous
// certification in place.
func (s *Service) mint(ctx context.Context, wallet string, tier reputation.Tier) (string, bool) {
	logger := logging.L(ctx)

	if s.minter == nil {
		logger.Info("certification earned but minting is disabled",
			"trader", wallet, "tier", string(tier))
		metrics.CertificationMintsTotal.WithLabelValues(string(tier), "disabled").Inc()
		return "", false
	}
	if !s.breaker.Allow(mintBreakerKey) {
		logger.Warn("mint skipped, circuit open", "trader", wallet, "tier", string(tier))
		metrics.CertificationMintsTotal.WithLabelValues(string(tier), "skipped").Inc()
		return "", false
	}

	start := time.Now()
	token, err := s.minter.Mint(ctx, wallet, tier)
	metrics.CertificationMintDuration.Observe(time.Since(start).Seconds())

	if err != nil {
		s.breaker.RecordFailure(mintBreakerKey)
		metrics.CertificationMintsTotal.WithLabelValues(string(tier), "failure").Inc()
		logger.Error("certification mint failed, keeping previous tier",
			"trader", wallet, "tier", string(tier), "error", err)
		return "", false
	}

	s.breaker.RecordSuccess(mintBreakerKey)
	metrics.CertificationMintsTotal.WithLabelValues(string(tier), "success").Inc()
	logger.Info("certification minted",
		"trader", wallet, "tier", string(tier), "tx", token)
	return token, true
}

// ListBySubject returns the full review history for a trader, newest first.
func (s *Service) ListBySubject(ctx context.Context, subjectID string) ([]*Review, error) {
	if strings.TrimSpace(subjectID) == "" {
		return nil, ErrMissingSubject
	}
	return s.store.ListBySubject(ctx, strings.ToLower(subjectID))
}
