package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
)

func TestNewRegistersAllCollectorsExactlyOnce(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(reg)
	require.NotNil(t, m)

	m.LocalSessions.Inc()
	require.Equal(t, float64(1), testutil.ToFloat64(m.LocalSessions))

	m.ReplicationEvents.WithLabelValues("uid").Inc()
	m.ReplicationEvents.WithLabelValues("uid").Inc()
	require.Equal(t, float64(2), testutil.ToFloat64(m.ReplicationEvents.WithLabelValues("uid")))

	require.NotPanics(t, func() { New(prometheus.NewRegistry()) })
}
