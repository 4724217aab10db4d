package reviews

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quantumforge/platform/internal/reputation"
	"github.com/quantumforge/platform/internal/traders"
)

// fakeMinter records mint calls and can be told to fail.
type fakeMinter struct {
	mu    sync.Mutex
	calls []struct {
		Wallet string
		Tier   reputation.Tier
	}
	err error
}

func (f *fakeMinter) Mint(_ context.Context, wallet string, tier reputation.Tier) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, struct {
		Wallet string
		Tier   reputation.Tier
	}{wallet, tier})
	if f.err != nil {
		return "", f.err
	}
	return fmt.Sprintf("0xtx%04d", len(f.calls)), nil
}

func (f *fakeMinter) mintCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

const subjectWallet = "0x1111111111111111111111111111111111111111"

func newPipeline(t *testing.T, minter Minter) (*Service, *traders.MemoryStore) {
	t.Helper()
	traderStore := traders.NewMemoryStore()
	traderSvc := traders.NewService(traderStore)
	_, err := traderSvc.Register(context.Background(), "Subject", "", "trader", subjectWallet)
	require.NoError(t, err)
	return NewService(NewMemoryStore(), traderStore, minter), traderStore
}

func submitRatings(t *testing.T, svc *Service, ratings ...int) *Result {
	t.Helper()
	var last *Result
	for i, r := range ratings {
		res, err := svc.Submit(context.Background(), Input{
			SubjectID:  subjectWallet,
			ReviewerID: fmt.Sprintf("0x%040d", i+1),
			Rating:     r,
		})
		require.NoError(t, err)
		last = res
	}
	return last
}

func TestSubmit_Validation(t *testing.T) {
	svc, _ := newPipeline(t, &fakeMinter{})
	ctx := context.Background()

	_, err := svc.Submit(ctx, Input{ReviewerID: "0xabc", Rating: 5})
	assert.ErrorIs(t, err, ErrMissingSubject)

	_, err = svc.Submit(ctx, Input{SubjectID: subjectWallet, Rating: 5})
	assert.ErrorIs(t, err, ErrMissingReviewer)

	for _, rating := range []int{0, -1, 6, 100} {
		_, err = svc.Submit(ctx, Input{SubjectID: subjectWallet, ReviewerID: "0xabc", Rating: rating})
		assert.ErrorIs(t, err, ErrInvalidRating, "rating %d", rating)
	}

	long := make([]byte, MaxCommentLength+1)
	_, err = svc.Submit(ctx, Input{SubjectID: subjectWallet, ReviewerID: "0xabc", Rating: 5, Comment: string(long)})
	assert.ErrorIs(t, err, ErrCommentTooLong)
}

func TestSubmit_UnknownSubjectStillSucceeds(t *testing.T) {
	store := NewMemoryStore()
	svc := NewService(store, traders.NewMemoryStore(), &fakeMinter{})
	ctx := context.Background()

	res, err := svc.Submit(ctx, Input{
		SubjectID:  "0x9999999999999999999999999999999999999999",
		ReviewerID: "0xabc",
		Rating:     5,
	})
	require.NoError(t, err)
	require.NotNil(t, res.Review)

	// The review is durable even though no profile exists to aggregate into.
	history, err := store.ListBySubject(ctx, "0x9999999999999999999999999999999999999999")
	require.NoError(t, err)
	assert.Len(t, history, 1)
	assert.Zero(t, res.Stats.Count)
}

func TestSubmit_BronzeMintedOnce(t *testing.T) {
	minter := &fakeMinter{}
	svc, traderStore := newPipeline(t, minter)

	res := submitRatings(t, svc, 5, 5, 4, 4, 5)

	assert.Equal(t, 5, res.Stats.Count)
	assert.Equal(t, 4.6, res.Stats.Average)
	assert.Equal(t, reputation.TierBronze, res.Tier)
	assert.True(t, res.Minted)
	assert.Equal(t, 1, minter.mintCount())

	trader, err := traderStore.GetByWallet(context.Background(), subjectWallet)
	require.NoError(t, err)
	assert.Equal(t, reputation.TierBronze, trader.Certification)
	assert.Equal(t, res.Token, trader.CertificationTx)
	assert.Equal(t, 4.6, trader.AverageRating)
	assert.Equal(t, 5, trader.ReviewCount)
}

func TestSubmit_NoRemintWhenTierHolds(t *testing.T) {
	minter := &fakeMinter{}
	svc, traderStore := newPipeline(t, minter)

	submitRatings(t, svc, 5, 5, 4, 4, 5)
	require.Equal(t, 1, minter.mintCount())

	// A harsh sixth review drops the average to exactly 4.0. The Bronze
	// tier still holds and no new credential is minted.
	res := submitRatings(t, svc, 1)

	assert.Equal(t, 6, res.Stats.Count)
	assert.Equal(t, 4.0, res.Stats.Average)
	assert.Equal(t, reputation.TierBronze, res.Tier)
	assert.False(t, res.Minted)
	assert.Equal(t, 1, minter.mintCount())

	trader, err := traderStore.GetByWallet(context.Background(), subjectWallet)
	require.NoError(t, err)
	assert.Equal(t, 4.0, trader.AverageRating)
	assert.Equal(t, 6, trader.ReviewCount)
	assert.Equal(t, reputation.TierBronze, trader.Certification)
}

func TestSubmit_MintFailureKeepsPreviousCertification(t *testing.T) {
	minter := &fakeMinter{err: errors.New("rpc unreachable")}
	svc, traderStore := newPipeline(t, minter)

	res := submitRatings(t, svc, 5, 5, 4, 4, 5)

	// The submission succeeds and the aggregates are persisted, but the
	// failed mint leaves the certification untouched.
	assert.False(t, res.Minted)
	assert.Equal(t, reputation.TierNone, res.Tier)
	assert.Equal(t, 1, minter.mintCount())

	trader, err := traderStore.GetByWallet(context.Background(), subjectWallet)
	require.NoError(t, err)
	assert.Equal(t, 4.6, trader.AverageRating)
	assert.Equal(t, 5, trader.ReviewCount)
	assert.Equal(t, reputation.TierNone, trader.Certification)
	assert.Empty(t, trader.CertificationTx)
}

func TestSubmit_MintRetriedOnNextReview(t *testing.T) {
	minter := &fakeMinter{err: errors.New("rpc unreachable")}
	svc, traderStore := newPipeline(t, minter)

	submitRatings(t, svc, 5, 5, 4, 4, 5)
	require.Equal(t, 1, minter.mintCount())

	// RPC comes back; the next qualifying review re-attempts the mint.
	minter.err = nil
	res := submitRatings(t, svc, 5)

	assert.True(t, res.Minted)
	assert.Equal(t, reputation.TierBronze, res.Tier)
	assert.Equal(t, 2, minter.mintCount())

	trader, err := traderStore.GetByWallet(context.Background(), subjectWallet)
	require.NoError(t, err)
	assert.Equal(t, reputation.TierBronze, trader.Certification)
	assert.Equal(t, res.Token, trader.CertificationTx)
}

func TestSubmit_ProgressionThroughSilverToGold(t *testing.T) {
	minter := &fakeMinter{}
	svc, _ := newPipeline(t, minter)

	// First 19 perfect reviews reach Silver at review 10 (one mint),
	// then the 20th crosses into Gold (second mint).
	ratings := make([]int, 20)
	for i := range ratings {
		ratings[i] = 5
	}
	res := submitRatings(t, svc, ratings...)

	assert.Equal(t, reputation.TierGold, res.Tier)
	require.Equal(t, 2, minter.mintCount())
	assert.Equal(t, reputation.TierSilver, minter.calls[0].Tier)
	assert.Equal(t, reputation.TierGold, minter.calls[1].Tier)
}

func TestSubmit_RevocationClearsTierAndToken(t *testing.T) {
	minter := &fakeMinter{}
	svc, traderStore := newPipeline(t, minter)

	submitRatings(t, svc, 5, 5, 4, 4, 5)
	require.Equal(t, 1, minter.mintCount())

	// A run of one-star reviews drags the average below every threshold.
	res := submitRatings(t, svc, 1, 1, 1, 1, 1, 1, 1)

	assert.Equal(t, reputation.TierNone, res.Tier)
	assert.Equal(t, 1, minter.mintCount(), "revocation must not mint")

	trader, err := traderStore.GetByWallet(context.Background(), subjectWallet)
	require.NoError(t, err)
	assert.Equal(t, reputation.TierNone, trader.Certification)
	assert.Empty(t, trader.CertificationTx)
}

func TestSubmit_NilMinterDefersTier(t *testing.T) {
	svc, traderStore := newPipeline(t, nil)

	res := submitRatings(t, svc, 5, 5, 4, 4, 5)

	// Aggregates advance, the tier does not: there is no way to issue
	// the credential.
	assert.False(t, res.Minted)
	assert.Equal(t, reputation.TierNone, res.Tier)

	trader, err := traderStore.GetByWallet(context.Background(), subjectWallet)
	require.NoError(t, err)
	assert.Equal(t, 4.6, trader.AverageRating)
	assert.Equal(t, reputation.TierNone, trader.Certification)
}

func TestSubmit_ConcurrentSameSubject(t *testing.T) {
	minter := &fakeMinter{}
	svc, traderStore := newPipeline(t, minter)

	const n = 25
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := svc.Submit(context.Background(), Input{
				SubjectID:  subjectWallet,
				ReviewerID: fmt.Sprintf("0x%040d", i+1),
				Rating:     5,
			})
			assert.NoError(t, err)
		}(i)
	}
	wg.Wait()

	trader, err := traderStore.GetByWallet(context.Background(), subjectWallet)
	require.NoError(t, err)
	assert.Equal(t, n, trader.ReviewCount)
	assert.Equal(t, 5.0, trader.AverageRating)
	assert.Equal(t, reputation.TierGold, trader.Certification)

	// Interleaving decides whether Silver is observed on the way up, but
	// every mint must be a strict upward step and the last one is Gold.
	minter.mu.Lock()
	defer minter.mu.Unlock()
	require.NotEmpty(t, minter.calls)
	assert.LessOrEqual(t, len(minter.calls), 2)
	prev := reputation.TierNone
	for _, call := range minter.calls {
		assert.Greater(t, call.Tier.Level(), prev.Level())
		prev = call.Tier
	}
	assert.Equal(t, reputation.TierGold, prev)
}

func TestListBySubject_NewestFirst(t *testing.T) {
	svc, _ := newPipeline(t, &fakeMinter{})
	submitRatings(t, svc, 3, 4, 5)

	history, err := svc.ListBySubject(context.Background(), subjectWallet)
	require.NoError(t, err)
	require.Len(t, history, 3)

	for i := 1; i < len(history); i++ {
		assert.False(t, history[i-1].SubmittedAt.Before(history[i].SubmittedAt),
			"history must be newest first")
	}

	_, err = svc.ListBySubject(context.Background(), "  ")
	assert.ErrorIs(t, err, ErrMissingSubject)
}
