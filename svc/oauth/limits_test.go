package oauth_test

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/oauthcore/pkg/audit"
	"github.com/dmitrymomot/oauthcore/pkg/ratelimit"
	"github.com/dmitrymomot/oauthcore/svc/oauth"
)

type brokenLimitStore struct{}

var errLimiterDown = errors.New("limiter down")

func (brokenLimitStore) RecordTimestampIfAllowed(context.Context, string, time.Time, time.Duration, int, int) (bool, int64, time.Time, error) {
	return false, 0, time.Time{}, errLimiterDown
}

func (brokenLimitStore) CountInWindow(context.Context, string, time.Time, time.Duration) (int64, time.Time, error) {
	return 0, time.Time{}, errLimiterDown
}

func (brokenLimitStore) Delete(context.Context, string) error { return errLimiterDown }

func TestLimits_Initiate(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	clock := newFakeClock()
	store := ratelimit.NewMemoryStore()
	t.Cleanup(func() { _ = store.Close() })

	reg := prometheus.NewRegistry()
	metrics, err := oauth.NewMetrics(reg)
	require.NoError(t, err)
	trail := audit.NewMemoryStorage()
	auditLog, err := audit.NewLogger(trail)
	require.NoError(t, err)

	limits, err := oauth.NewLimits(store,
		oauth.WithInitiateLimit(2, time.Minute),
		oauth.WithLimitsClock(ratelimit.ClockFunc(clock.Now)),
		oauth.WithLimitsMetrics(metrics),
		oauth.WithLimitsAudit(auditLog),
	)
	require.NoError(t, err)

	require.NoError(t, limits.Initiate(ctx, testIP))
	clock.Advance(10 * time.Second)
	require.NoError(t, limits.Initiate(ctx, testIP))

	err = limits.Initiate(ctx, testIP)
	require.ErrorIs(t, err, oauth.ErrRateLimited)
	var rl *oauth.RateLimitError
	require.ErrorAs(t, err, &rl)
	assert.Equal(t, oauth.ScopeInitiate, rl.Scope)
	assert.Equal(t, 50*time.Second, oauth.RetryAfter(err))
	assert.Equal(t, oauth.ReasonRateLimited, oauth.ReasonOf(err))

	require.NoError(t, limits.Initiate(ctx, "198.51.100.1"), "other clients are unaffected")

	clock.Advance(51 * time.Second)
	require.NoError(t, limits.Initiate(ctx, testIP))

	assert.Equal(t, []string{oauth.ActionRateLimited}, trail.Actions())
	expected := `
# HELP oauthcore_throttled_total Requests rejected by rate limits.
# TYPE oauthcore_throttled_total counter
oauthcore_throttled_total{scope="initiate"} 1
`
	assert.NoError(t, testutil.GatherAndCompare(reg, strings.NewReader(expected), "oauthcore_throttled_total"))
}

func TestLimits_ScopesAreIndependent(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	store := ratelimit.NewMemoryStore()
	t.Cleanup(func() { _ = store.Close() })

	limits, err := oauth.NewLimits(store,
		oauth.WithInitiateLimit(1, time.Minute),
		oauth.WithCallbackLimit(1, time.Minute),
		oauth.WithLinkLimit(1, time.Minute),
	)
	require.NoError(t, err)

	require.NoError(t, limits.Initiate(ctx, "same"))
	require.NoError(t, limits.Callback(ctx, "same"))
	require.NoError(t, limits.Link(ctx, "same"))

	assert.ErrorIs(t, limits.Initiate(ctx, "same"), oauth.ErrRateLimited)
	assert.ErrorIs(t, limits.Callback(ctx, "same"), oauth.ErrRateLimited)
	assert.ErrorIs(t, limits.Link(ctx, "same"), oauth.ErrRateLimited)
}

func TestLimits_FailOpen(t *testing.T) {
	t.Parallel()
	limits, err := oauth.NewLimits(brokenLimitStore{})
	require.NoError(t, err)

	for range 50 {
		require.NoError(t, limits.Initiate(context.Background(), testIP))
	}

	var none *oauth.Limits
	assert.NoError(t, none.Callback(context.Background(), testSession))
}

func TestLimits_InvalidConfig(t *testing.T) {
	t.Parallel()
	store := ratelimit.NewMemoryStore()
	t.Cleanup(func() { _ = store.Close() })

	_, err := oauth.NewLimits(store, oauth.WithLinkLimit(0, time.Minute))
	assert.ErrorIs(t, err, ratelimit.ErrInvalidLimit)

	_, err = oauth.NewLimits(nil)
	assert.ErrorIs(t, err, ratelimit.ErrStoreRequired)
}

func TestMetrics_ReuseRegisteredCollectors(t *testing.T) {
	t.Parallel()
	reg := prometheus.NewRegistry()

	first, err := oauth.NewMetrics(reg)
	require.NoError(t, err)
	second, err := oauth.NewMetrics(reg)
	require.NoError(t, err)
	require.NotNil(t, first)
	require.NotNil(t, second)

	h := newHarness(t, func(c *harnessConfig) {
		c.service = append(c.service, oauth.WithMetrics(second))
	})
	h.idp.setProfile(googleProfile("g-1", "ada@example.com", true))
	_, err = h.login(t, "google")
	require.NoError(t, err)

	count, err := testutil.GatherAndCount(reg, "oauthcore_flows_total", "oauthcore_provider_request_duration_seconds")
	require.NoError(t, err)
	assert.Equal(t, 3, count, "one flow series and two latency series")
}
