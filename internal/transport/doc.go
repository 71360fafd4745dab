// Package transport performs one HTTP delivery at a time against the
// collection API and classifies the outcome for the queue.
//
// A call is refused without touching the network while the shared circuit is
// paused. 5xx responses are reissued after a backoff delay armed on a Timer;
// only one delayed reissue is pending per Client, and a reissue that gets
// replaced resolves its caller with ErrCancelled. When the backoff budget runs
// out, or the server answers 401, the circuit is paused.
//
// Requests to the configured API host carry Basic credentials, a JSON
// content type and the User-Agent. Requests to any other host are sent as
// given.
package transport
