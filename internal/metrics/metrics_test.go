package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetricsRegistration(t *testing.T) {
	collectors := []prometheus.Collector{
		UpstreamRequestsTotal,
		UpstreamRequestDuration,
		CircuitBreakerState,
		CacheRequestsTotal,
		CacheCoalescedTotal,
		CacheEntries,
		CacheEvictionsTotal,
		SnapshotBuildsTotal,
		FanoutWritesTotal,
		PassesSkippedTotal,
		HeldSnapshots,
		BuildDuration,
		Subscribers,
		ActiveKeys,
		StreamRejectionsTotal,
		PollIntervalSeconds,
	}

	for _, c := range collectors {
		desc := make(chan *prometheus.Desc, 8)
		c.Describe(desc)
		close(desc)

		require.NotNil(t, <-desc, "collector should have a valid descriptor")
	}
}

func TestCounterVecIncrements(t *testing.T) {
	before := testutil.ToFloat64(CacheRequestsTotal.WithLabelValues("hit"))
	CacheRequestsTotal.WithLabelValues("hit").Inc()
	after := testutil.ToFloat64(CacheRequestsTotal.WithLabelValues("hit"))

	assert.Equal(t, before+1, after)
}

func TestGaugeSet(t *testing.T) {
	PollIntervalSeconds.Set(3)
	assert.Equal(t, 3.0, testutil.ToFloat64(PollIntervalSeconds))

	PollIntervalSeconds.Set(10)
	assert.Equal(t, 10.0, testutil.ToFloat64(PollIntervalSeconds))
}
