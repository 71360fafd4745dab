package transport

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// Sentinel errors matched with errors.Is against *RequestError.
var (
	// ErrNoRequestMade means nothing reached the server.
	ErrNoRequestMade = errors.New("no request made")
	// ErrNoOrBadNetwork means the request failed on connectivity.
	ErrNoOrBadNetwork = errors.New("no or bad network connection")
	// ErrCancelled means the call or its pending reissue was cancelled.
	ErrCancelled = errors.New("request cancelled")
	// ErrNotConfigured means API credentials are missing.
	ErrNotConfigured = errors.New("api credentials not configured")
	// ErrBadRequest is a 400 response.
	ErrBadRequest = errors.New("bad request")
	// ErrUnauthorized is a 401 response.
	ErrUnauthorized = errors.New("unauthorized")
	// ErrUnsuccessfulStatus is any other non-2xx response.
	ErrUnsuccessfulStatus = errors.New("unsuccessful status code")
)

// noResponseMessage is reported when an error response has an empty body.
const noResponseMessage = "(server did not give a response)"

// Kind classifies a failed call.
type Kind int

const (
	KindNoRequestMade Kind = iota + 1
	KindNoOrBadNetwork
	KindCancelled
	KindNotConfigured
	KindBadRequest
	KindUnauthorized
	KindUnsuccessfulStatus
)

var kindSentinels = map[Kind]error{
	KindNoRequestMade:      ErrNoRequestMade,
	KindNoOrBadNetwork:     ErrNoOrBadNetwork,
	KindCancelled:          ErrCancelled,
	KindNotConfigured:      ErrNotConfigured,
	KindBadRequest:         ErrBadRequest,
	KindUnauthorized:       ErrUnauthorized,
	KindUnsuccessfulStatus: ErrUnsuccessfulStatus,
}

func (k Kind) String() string {
	if s, ok := kindSentinels[k]; ok {
		return s.Error()
	}
	return fmt.Sprintf("kind(%d)", int(k))
}

// RequestError describes a failed call.
type RequestError struct {
	Kind       Kind
	StatusCode int    // 0 when no response was received
	APIMessage string // server-provided message for status errors
	Err        error  // underlying cause, if any
}

func (e *RequestError) Error() string {
	var b strings.Builder
	b.WriteString(e.Kind.String())
	if e.StatusCode != 0 {
		fmt.Fprintf(&b, " (%d)", e.StatusCode)
	}
	if e.APIMessage != "" {
		b.WriteString(": ")
		b.WriteString(e.APIMessage)
	}
	if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	return b.String()
}

// Unwrap returns the underlying cause.
func (e *RequestError) Unwrap() error { return e.Err }

// Is implements errors.Is for sentinel error matching.
func (e *RequestError) Is(target error) bool {
	return kindSentinels[e.Kind] == target
}

// StatusCode returns the HTTP status carried by err, or 0.
func StatusCode(err error) int {
	var re *RequestError
	if errors.As(err, &re) {
		return re.StatusCode
	}
	return 0
}

func newError(kind Kind, status int, msg string, cause error) *RequestError {
	return &RequestError{Kind: kind, StatusCode: status, APIMessage: msg, Err: cause}
}

// errorBody is the error envelope returned by the API.
type errorBody struct {
	Meta struct {
		Error  string   `json:"error"`
		Errors []string `json:"errors"`
	} `json:"meta"`
}

// errorMessage extracts a human-readable message from an error response.
func errorMessage(body []byte) string {
	if len(body) == 0 {
		return noResponseMessage
	}
	var eb errorBody
	if err := json.Unmarshal(body, &eb); err == nil {
		if eb.Meta.Error != "" {
			return eb.Meta.Error
		}
		if len(eb.Meta.Errors) > 0 {
			return strings.Join(eb.Meta.Errors, ",")
		}
	}
	return string(body)
}
