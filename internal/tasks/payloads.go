package tasks

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
)

// Task types.
const (
	TypeIdentifyProfile    = "identifyProfile"
	TypeTrackEvent         = "trackEvent"
	TypeRegisterPushToken  = "registerPushToken"
	TypeDeletePushToken    = "deletePushToken"
	TypeTrackPushMetric    = "trackPushMetric"
	TypeTrackDeliveryEvent = "trackDeliveryEvent"
)

// DefaultBaseURL is the tracking API used when none is configured.
const DefaultBaseURL = "https://track-sdk.customer.io"

var (
	// ErrUnknownType is returned for a task type with no payload definition.
	ErrUnknownType = errors.New("tasks: unknown task type")
	// ErrInvalidPayload is returned when a payload cannot be decoded or is
	// missing required fields.
	ErrInvalidPayload = errors.New("tasks: invalid payload")
)

// Payload is implemented by every task payload.
type Payload interface {
	// Type returns the task type tag.
	Type() string
	// Validate reports missing required fields.
	Validate() error
	// Groups returns the group this task opens (may be empty) and the groups
	// it waits on.
	Groups() (start Group, blocking []Group)
	// Request returns the HTTP method, the path relative to the API base URL
	// and the JSON body (nil for none).
	Request() (method, path string, body any)
}

// IdentifyProfile creates or updates a profile.
type IdentifyProfile struct {
	Identifier string          `json:"identifier"`
	Attributes json.RawMessage `json:"attributes,omitempty"`
}

func (IdentifyProfile) Type() string { return TypeIdentifyProfile }

func (p IdentifyProfile) Validate() error {
	return required("identifier", p.Identifier)
}

func (p IdentifyProfile) Groups() (Group, []Group) {
	return IdentifiedProfile(p.Identifier), nil
}

func (p IdentifyProfile) Request() (string, string, any) {
	var body any = json.RawMessage(`{}`)
	if len(p.Attributes) > 0 {
		body = p.Attributes
	}
	return http.MethodPut, "/api/v1/customers/" + url.PathEscape(p.Identifier), body
}

// TrackEvent records a named event against a profile.
type TrackEvent struct {
	Identifier string          `json:"identifier"`
	Name       string          `json:"name"`
	EventType  string          `json:"type,omitempty"`
	Data       json.RawMessage `json:"data,omitempty"`
	Timestamp  int64           `json:"timestamp,omitempty"`
}

func (TrackEvent) Type() string { return TypeTrackEvent }

func (p TrackEvent) Validate() error {
	if err := required("identifier", p.Identifier); err != nil {
		return err
	}
	return required("name", p.Name)
}

func (p TrackEvent) Groups() (Group, []Group) {
	return "", []Group{IdentifiedProfile(p.Identifier)}
}

func (p TrackEvent) Request() (string, string, any) {
	eventType := p.EventType
	if eventType == "" {
		eventType = "event"
	}
	return http.MethodPost, "/api/v1/customers/" + url.PathEscape(p.Identifier) + "/events", struct {
		Name      string          `json:"name"`
		Type      string          `json:"type"`
		Data      json.RawMessage `json:"data,omitempty"`
		Timestamp int64           `json:"timestamp,omitempty"`
	}{p.Name, eventType, p.Data, p.Timestamp}
}

// Device describes a push device.
type Device struct {
	Token      string          `json:"id"`
	Platform   string          `json:"platform"`
	LastUsed   int64           `json:"last_used,omitempty"`
	Attributes json.RawMessage `json:"attributes,omitempty"`
}

// RegisterPushToken attaches a device to a profile.
type RegisterPushToken struct {
	ProfileIdentifier string `json:"profileIdentifier"`
	Device            Device `json:"device"`
}

func (RegisterPushToken) Type() string { return TypeRegisterPushToken }

func (p RegisterPushToken) Validate() error {
	if err := required("profileIdentifier", p.ProfileIdentifier); err != nil {
		return err
	}
	return required("device.id", p.Device.Token)
}

func (p RegisterPushToken) Groups() (Group, []Group) {
	return RegisteredPushToken(p.Device.Token), []Group{IdentifiedProfile(p.ProfileIdentifier)}
}

func (p RegisterPushToken) Request() (string, string, any) {
	return http.MethodPut, "/api/v1/customers/" + url.PathEscape(p.ProfileIdentifier) + "/devices",
		struct {
			Device Device `json:"device"`
		}{p.Device}
}

// DeletePushToken detaches a device from a profile.
type DeletePushToken struct {
	ProfileIdentifier string `json:"profileIdentifier"`
	DeviceToken       string `json:"deviceToken"`
}

func (DeletePushToken) Type() string { return TypeDeletePushToken }

func (p DeletePushToken) Validate() error {
	if err := required("profileIdentifier", p.ProfileIdentifier); err != nil {
		return err
	}
	return required("deviceToken", p.DeviceToken)
}

func (p DeletePushToken) Groups() (Group, []Group) {
	return "", []Group{IdentifiedProfile(p.ProfileIdentifier), RegisteredPushToken(p.DeviceToken)}
}

func (p DeletePushToken) Request() (string, string, any) {
	return http.MethodDelete, "/api/v1/customers/" + url.PathEscape(p.ProfileIdentifier) +
		"/devices/" + url.PathEscape(p.DeviceToken), nil
}

// TrackPushMetric reports a push delivery metric (opened, delivered, ...).
type TrackPushMetric struct {
	DeliveryID  string `json:"deliveryId"`
	DeviceToken string `json:"deviceToken"`
	Event       string `json:"event"`
	Timestamp   int64  `json:"timestamp,omitempty"`
}

func (TrackPushMetric) Type() string { return TypeTrackPushMetric }

func (p TrackPushMetric) Validate() error {
	for _, f := range [][2]string{{"deliveryId", p.DeliveryID}, {"deviceToken", p.DeviceToken}, {"event", p.Event}} {
		if err := required(f[0], f[1]); err != nil {
			return err
		}
	}
	return nil
}

func (TrackPushMetric) Groups() (Group, []Group) { return "", nil }

func (p TrackPushMetric) Request() (string, string, any) {
	return http.MethodPost, "/push/events", struct {
		DeliveryID string `json:"delivery_id"`
		Event      string `json:"event"`
		DeviceID   string `json:"device_id"`
		Timestamp  int64  `json:"timestamp,omitempty"`
	}{p.DeliveryID, strings.ToLower(p.Event), p.DeviceToken, p.Timestamp}
}

// TrackDeliveryEvent reports an in-app or other delivery event.
type TrackDeliveryEvent struct {
	DeliveryType string          `json:"type"`
	Payload      json.RawMessage `json:"payload"`
}

func (TrackDeliveryEvent) Type() string { return TypeTrackDeliveryEvent }

func (p TrackDeliveryEvent) Validate() error {
	if err := required("type", p.DeliveryType); err != nil {
		return err
	}
	if len(p.Payload) == 0 {
		return fmt.Errorf("%w: payload is required", ErrInvalidPayload)
	}
	return nil
}

func (TrackDeliveryEvent) Groups() (Group, []Group) { return "", nil }

func (p TrackDeliveryEvent) Request() (string, string, any) {
	return http.MethodPost, "/api/v1/cio_deliveries/events", struct {
		Type    string          `json:"type"`
		Payload json.RawMessage `json:"payload"`
	}{p.DeliveryType, p.Payload}
}

func required(field, value string) error {
	if strings.TrimSpace(value) == "" {
		return fmt.Errorf("%w: %s is required", ErrInvalidPayload, field)
	}
	return nil
}

// Decode parses data as the payload registered for taskType.
func Decode(taskType string, data []byte) (Payload, error) {
	var (
		p   Payload
		err error
	)
	switch taskType {
	case TypeIdentifyProfile:
		p, err = decodeAs[IdentifyProfile](data)
	case TypeTrackEvent:
		p, err = decodeAs[TrackEvent](data)
	case TypeRegisterPushToken:
		p, err = decodeAs[RegisterPushToken](data)
	case TypeDeletePushToken:
		p, err = decodeAs[DeletePushToken](data)
	case TypeTrackPushMetric:
		p, err = decodeAs[TrackPushMetric](data)
	case TypeTrackDeliveryEvent:
		p, err = decodeAs[TrackDeliveryEvent](data)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownType, taskType)
	}
	if err != nil {
		return nil, err
	}
	if err := p.Validate(); err != nil {
		return nil, err
	}
	return p, nil
}

func decodeAs[T Payload](data []byte) (Payload, error) {
	var v T
	if err := json.Unmarshal(data, &v); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidPayload, err)
	}
	return v, nil
}

// GroupsOf returns the stored group fields for a payload.
func GroupsOf(p Payload) (groupStart string, blocking []string) {
	start, block := p.Groups()
	return string(start), Strings(block...)
}
