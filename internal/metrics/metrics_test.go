package metrics

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rzbill/bgq/internal/eventbus"
)

func TestEventsFeedCollectors(t *testing.T) {
	m := New()
	bus := eventbus.New(nil)
	subs := m.Subscribe(bus)
	defer func() {
		for _, s := range subs {
			s.Close()
		}
	}()

	eventbus.Publish(bus, eventbus.TaskAdded{TaskID: "1", Type: "trackEvent", Depth: 3})
	assert.Equal(t, 1.0, value(t, m, "bgq_tasks_added_total", "type", "trackEvent"))
	assert.Equal(t, 3.0, value(t, m, "bgq_queue_depth"))

	eventbus.Publish(bus, eventbus.QueueRunCompleted{Attempted: 3, Skipped: 1, Deleted: 2, Remaining: 1, Duration: time.Millisecond})
	assert.Equal(t, 1.0, value(t, m, "bgq_queue_passes_total"))
	assert.Equal(t, 2.0, value(t, m, "bgq_queue_pass_tasks_total", "disposition", "deleted"))
	assert.Equal(t, 1.0, value(t, m, "bgq_queue_depth"))

	eventbus.Publish(bus, eventbus.TaskDiscarded{Reason: "bad_request"})
	assert.Equal(t, 1.0, value(t, m, "bgq_tasks_discarded_total", "reason", "bad_request"))
}

func TestObserveRequest(t *testing.T) {
	m := New()
	m.ObserveRequest("success", 200, time.Millisecond)
	m.ObserveRequest("no or bad network connection", 0, time.Millisecond)
	assert.Equal(t, 1.0, value(t, m, "bgq_http_requests_total", "outcome", "success", "code", "200"))
	assert.Equal(t, 1.0, value(t, m, "bgq_http_requests_total", "outcome", "no or bad network connection", "code", "none"))
}

func TestStorageHook(t *testing.T) {
	m := New()
	m.ObserveWrite(time.Millisecond, 10)
	m.ObserveBatchCommit(time.Millisecond, 2, 20)
	assert.Equal(t, 10.0, value(t, m, "bgq_storage_bytes_total", "op", "write"))
	assert.Equal(t, 20.0, value(t, m, "bgq_storage_bytes_total", "op", "batch_commit"))
}

// value gathers the registry and returns the counter or gauge value of the
// series matching name and the label pairs.
func value(t *testing.T, m *Metrics, name string, labelPairs ...string) float64 {
	t.Helper()
	families, err := m.Registry.Gather()
	require.NoError(t, err)
	for _, mf := range families {
		if mf.GetName() != name {
			continue
		}
	series:
		for _, metric := range mf.GetMetric() {
			labels := map[string]string{}
			for _, lp := range metric.GetLabel() {
				labels[lp.GetName()] = lp.GetValue()
			}
			for i := 0; i+1 < len(labelPairs); i += 2 {
				if labels[labelPairs[i]] != labelPairs[i+1] {
					continue series
				}
			}
			if c := metric.GetCounter(); c != nil {
				return c.GetValue()
			}
			return metric.GetGauge().GetValue()
		}
	}
	t.Fatalf("series %s %v not found", name, labelPairs)
	return 0
}
