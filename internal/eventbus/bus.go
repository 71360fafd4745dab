// Package eventbus is an in-process typed publish/subscribe bus. Subscribers
// register for one event type and receive every value of that type published
// afterwards, until they close their Subscription.
package eventbus

import (
	"fmt"
	"reflect"
	"slices"
	"sync"

	"github.com/rzbill/bgq/pkg/log"
)

// Bus routes events to subscribers by Go type. Handlers of one type are
// called in subscription order.
type Bus struct {
	mu     sync.RWMutex
	subs   map[reflect.Type][]handler
	nextID uint64
	logger log.Logger
}

type handler struct {
	id uint64
	fn func(any)
}

// New returns an empty Bus. A nil logger discards handler panics silently.
func New(logger log.Logger) *Bus {
	if logger == nil {
		logger = log.NewNopLogger()
	}
	return &Bus{
		subs:   make(map[reflect.Type][]handler),
		logger: logger.WithComponent("eventbus"),
	}
}

// Subscription is returned by Subscribe. Close stops delivery.
type Subscription struct {
	once  sync.Once
	close func()
}

// Close unsubscribes. It is safe to call more than once.
func (s *Subscription) Close() {
	if s == nil {
		return
	}
	s.once.Do(s.close)
}

// Subscribe registers fn for events of type E.
func Subscribe[E any](b *Bus, fn func(E)) *Subscription {
	t := reflect.TypeOf((*E)(nil)).Elem()

	b.mu.Lock()
	b.nextID++
	id := b.nextID
	b.subs[t] = append(b.subs[t], handler{id: id, fn: func(v any) { fn(v.(E)) }})
	b.mu.Unlock()

	return &Subscription{close: func() {
		b.mu.Lock()
		hs := slices.DeleteFunc(slices.Clone(b.subs[t]), func(h handler) bool { return h.id == id })
		if len(hs) == 0 {
			delete(b.subs, t)
		} else {
			b.subs[t] = hs
		}
		b.mu.Unlock()
	}}
}

// Publish delivers e synchronously to every current subscriber of E, in
// subscription order. A panicking handler is logged and does not stop
// delivery to the others.
func Publish[E any](b *Bus, e E) {
	if b == nil {
		return
	}
	t := reflect.TypeOf((*E)(nil)).Elem()

	b.mu.RLock()
	handlers := b.subs[t]
	b.mu.RUnlock()

	for _, h := range handlers {
		b.deliver(t, h.fn, e)
	}
}

func (b *Bus) deliver(t reflect.Type, h func(any), e any) {
	defer func() {
		if r := recover(); r != nil {
			b.logger.Error("event handler panicked", log.Str("event", t.String()), log.Str("panic", fmt.Sprint(r)))
		}
	}()
	h(e)
}

// Subscribers reports how many handlers are registered for E.
func Subscribers[E any](b *Bus) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs[reflect.TypeOf((*E)(nil)).Elem()])
}
