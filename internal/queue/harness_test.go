package queue

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net"
	"net/http"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/rzbill/bgq/internal/circuit"
	"github.com/rzbill/bgq/internal/eventbus"
	"github.com/rzbill/bgq/internal/retry"
	pebblestore "github.com/rzbill/bgq/internal/storage/pebble"
	"github.com/rzbill/bgq/internal/tasks"
	"github.com/rzbill/bgq/internal/taskstore"
	"github.com/rzbill/bgq/internal/transport"
)

const testAPIURL = "https://track.test"

// stubNetwork pops queued status codes; once empty every call fails with no
// response.
type stubNetwork struct {
	mu       sync.Mutex
	statuses []int
	calls    int
}

func (s *stubNetwork) queue(statuses ...int) {
	s.mu.Lock()
	s.statuses = append(s.statuses, statuses...)
	s.mu.Unlock()
}

func (s *stubNetwork) callCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

func (s *stubNetwork) RoundTrip(req *http.Request) (*http.Response, error) {
	s.mu.Lock()
	s.calls++
	if len(s.statuses) == 0 {
		s.mu.Unlock()
		return nil, &net.OpError{Op: "dial", Net: "tcp", Err: errors.New("network is unreachable")}
	}
	status := s.statuses[0]
	s.statuses = s.statuses[1:]
	s.mu.Unlock()
	return &http.Response{
		StatusCode: status,
		Body:       io.NopCloser(strings.NewReader("")),
		Header:     http.Header{},
		Request:    req,
	}, nil
}

type harness struct {
	q       *Queue
	store   *taskstore.PebbleStore
	network *stubNetwork
	circuit *circuit.State
	bus     *eventbus.Bus
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	db, err := pebblestore.Open(pebblestore.Options{DataDir: t.TempDir(), Fsync: pebblestore.FsyncModeNever})
	require.NoError(t, err)
	store, err := taskstore.Open(db, taskstore.Options{Queue: "test"})
	require.NoError(t, err)

	network := &stubNetwork{}
	cs := circuit.New()
	client := transport.New(transport.Config{
		SiteID: "site",
		APIKey: "key",
		APIURL: testAPIURL,
		Retry:  retry.Policy{BaseDelay: time.Millisecond, Multiplier: 1, MaxAttempts: 2},
	}, cs, transport.WithHTTPClient(&http.Client{Transport: network}))

	bus := eventbus.New(nil)
	q := New(store, tasks.NewRunner(client, testAPIURL, nil), Options{DisableAutoRun: true, Bus: bus})
	t.Cleanup(func() {
		q.Close()
		client.Close(false)
		_ = db.Close()
	})
	return &harness{q: q, store: store, network: network, circuit: cs, bus: bus}
}

func (h *harness) runOnce(t *testing.T) {
	t.Helper()
	done := make(chan struct{})
	h.q.Run(func() { close(done) })
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("pass did not complete")
	}
}

func (h *harness) inventory(t *testing.T) []taskstore.InventoryItem {
	t.Helper()
	inv, err := h.store.Inventory(context.Background())
	require.NoError(t, err)
	return inv
}

func identify(t *testing.T, h *harness, id string, opts ...AddOption) AddResult {
	t.Helper()
	res, err := h.q.AddTask(context.Background(), tasks.TypeIdentifyProfile, tasks.IdentifyProfile{Identifier: id}, opts...)
	require.NoError(t, err)
	return res
}

func track(t *testing.T, h *harness, id string, opts ...AddOption) AddResult {
	t.Helper()
	res, err := h.q.AddTask(context.Background(), tasks.TypeTrackEvent, json.RawMessage(`{"identifier":"`+id+`","name":"tapped"}`), opts...)
	require.NoError(t, err)
	return res
}
