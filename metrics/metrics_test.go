package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
)

func TestNew_InstrumentsAreObservable(t *testing.T) {
	m := New()

	m.RequestsTotal.WithLabelValues("demo", "git-upload-pack").Inc()
	require.Equal(t, float64(1), testutil.ToFloat64(m.RequestsTotal.WithLabelValues("demo", "git-upload-pack")))

	m.CDCEventsProcessed.WithLabelValues("OBJECT_CREATED").Add(3)
	require.Equal(t, float64(3), testutil.ToFloat64(m.CDCEventsProcessed.WithLabelValues("OBJECT_CREATED")))

	m.LRUHitRate.WithLabelValues("hot").Set(0.87)
	require.Equal(t, 0.87, testutil.ToFloat64(m.LRUHitRate.WithLabelValues("hot")))
}
