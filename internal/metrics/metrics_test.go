package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewRegistersCollectors(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(reg)

	m.WSConnections.Inc()
	m.MessagesSent.WithLabelValues("text").Add(2)
	m.WSEventsDropped.WithLabelValues("rate_limited").Inc()

	families, err := reg.Gather()
	require.NoError(t, err)
	values := map[string]float64{}
	for _, f := range families {
		for _, metric := range f.GetMetric() {
			switch {
			case metric.GetGauge() != nil:
				values[f.GetName()] = metric.GetGauge().GetValue()
			case metric.GetCounter() != nil:
				values[f.GetName()] += metric.GetCounter().GetValue()
			}
		}
	}
	assert.Equal(t, 1.0, values["riffchat_ws_connections"])
	assert.Equal(t, 2.0, values["riffchat_messages_sent_total"])
	assert.Equal(t, 1.0, values["riffchat_ws_events_dropped_total"])

	assert.Panics(t, func() { New(reg) })
}
