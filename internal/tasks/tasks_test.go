package tasks

import (
	"context"
	"encoding/json"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rzbill/bgq/internal/taskstore"
	"github.com/rzbill/bgq/internal/transport"
)

type recordingDoer struct {
	requests []transport.Request
	err      error
}

func (d *recordingDoer) Do(_ context.Context, p transport.Request) ([]byte, error) {
	d.requests = append(d.requests, p)
	return nil, d.err
}

func mustJSON(t *testing.T, v any) []byte {
	t.Helper()
	b, err := json.Marshal(v)
	require.NoError(t, err)
	return b
}

func TestGroupNames(t *testing.T) {
	assert.Equal(t, Group("identified_profile_abc"), IdentifiedProfile("abc"))
	assert.Equal(t, Group("registered_push_token_tok"), RegisteredPushToken("tok"))
	assert.Nil(t, Strings())
	assert.Equal(t, []string{"identified_profile_a"}, Strings(IdentifiedProfile("a")))
}

func TestRunnerBuildsRequests(t *testing.T) {
	tests := []struct {
		name       string
		payload    Payload
		wantMethod string
		wantURL    string
		wantBody   string
	}{
		{
			name:       "identify",
			payload:    IdentifyProfile{Identifier: "u 1", Attributes: json.RawMessage(`{"plan":"pro"}`)},
			wantMethod: http.MethodPut,
			wantURL:    "https://api.test/api/v1/customers/u%201",
			wantBody:   `{"plan":"pro"}`,
		},
		{
			name:       "identify without attributes",
			payload:    IdentifyProfile{Identifier: "u1"},
			wantMethod: http.MethodPut,
			wantURL:    "https://api.test/api/v1/customers/u1",
			wantBody:   `{}`,
		},
		{
			name:       "track",
			payload:    TrackEvent{Identifier: "u1", Name: "purchase", Timestamp: 10},
			wantMethod: http.MethodPost,
			wantURL:    "https://api.test/api/v1/customers/u1/events",
			wantBody:   `{"name":"purchase","type":"event","timestamp":10}`,
		},
		{
			name:       "register token",
			payload:    RegisterPushToken{ProfileIdentifier: "u1", Device: Device{Token: "tok", Platform: "ios"}},
			wantMethod: http.MethodPut,
			wantURL:    "https://api.test/api/v1/customers/u1/devices",
			wantBody:   `{"device":{"id":"tok","platform":"ios"}}`,
		},
		{
			name:       "delete token",
			payload:    DeletePushToken{ProfileIdentifier: "u1", DeviceToken: "tok"},
			wantMethod: http.MethodDelete,
			wantURL:    "https://api.test/api/v1/customers/u1/devices/tok",
		},
		{
			name:       "push metric",
			payload:    TrackPushMetric{DeliveryID: "d1", DeviceToken: "tok", Event: "OPENED"},
			wantMethod: http.MethodPost,
			wantURL:    "https://api.test/push/events",
			wantBody:   `{"delivery_id":"d1","event":"opened","device_id":"tok"}`,
		},
		{
			name:       "delivery event",
			payload:    TrackDeliveryEvent{DeliveryType: "in_app", Payload: json.RawMessage(`{"x":1}`)},
			wantMethod: http.MethodPost,
			wantURL:    "https://api.test/api/v1/cio_deliveries/events",
			wantBody:   `{"type":"in_app","payload":{"x":1}}`,
		},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			doer := &recordingDoer{}
			r := NewRunner(doer, "https://api.test/", nil)
			err := r.Run(context.Background(), taskstore.Task{ID: "1", Type: tc.payload.Type(), Data: mustJSON(t, tc.payload)})
			require.NoError(t, err)
			require.Len(t, doer.requests, 1)
			got := doer.requests[0]
			assert.Equal(t, tc.wantMethod, got.Method)
			assert.Equal(t, tc.wantURL, got.URL)
			if tc.wantBody == "" {
				assert.Nil(t, got.Body)
			} else {
				assert.JSONEq(t, tc.wantBody, string(got.Body))
			}
		})
	}
}

func TestRunnerPropagatesTransportError(t *testing.T) {
	doer := &recordingDoer{err: &transport.RequestError{Kind: transport.KindBadRequest, StatusCode: 400}}
	r := NewRunner(doer, "", nil)
	err := r.Run(context.Background(), taskstore.Task{Type: TypeTrackEvent, Data: mustJSON(t, TrackEvent{Identifier: "u", Name: "n"})})
	assert.ErrorIs(t, err, transport.ErrBadRequest)
	assert.Equal(t, DefaultBaseURL+"/api/v1/customers/u/events", doer.requests[0].URL)
}

func TestDecodeErrors(t *testing.T) {
	_, err := Decode("bogus", []byte(`{}`))
	assert.ErrorIs(t, err, ErrUnknownType)

	_, err = Decode(TypeTrackEvent, []byte(`not json`))
	assert.ErrorIs(t, err, ErrInvalidPayload)

	_, err = Decode(TypeTrackEvent, []byte(`{"identifier":"u"}`))
	assert.ErrorIs(t, err, ErrInvalidPayload)

	_, err = Decode(TypeTrackDeliveryEvent, []byte(`{"type":"x"}`))
	assert.ErrorIs(t, err, ErrInvalidPayload)
}

func TestGroupsOf(t *testing.T) {
	start, blocking := GroupsOf(IdentifyProfile{Identifier: "u"})
	assert.Equal(t, "identified_profile_u", start)
	assert.Nil(t, blocking)

	start, blocking = GroupsOf(RegisterPushToken{ProfileIdentifier: "u", Device: Device{Token: "t"}})
	assert.Equal(t, "registered_push_token_t", start)
	assert.Equal(t, []string{"identified_profile_u"}, blocking)

	start, blocking = GroupsOf(DeletePushToken{ProfileIdentifier: "u", DeviceToken: "t"})
	assert.Empty(t, start)
	assert.Equal(t, []string{"identified_profile_u", "registered_push_token_t"}, blocking)
}
