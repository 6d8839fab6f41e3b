// Package event provides the typed, in-process publish/subscribe bus that
// correlates confirmation requests with their responses.
package event

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
	"github.com/rs/zerolog"

	"github.com/opencode-ai/toolgate/internal/logging"
)

// Kind identifies a message kind. Each kind has exactly one Go payload type.
type Kind string

// Message is implemented by every payload carried on the bus.
// Kind must not depend on the receiver's fields: the bus calls it on the
// zero value to route typed handlers.
type Message interface {
	Kind() Kind
}

// Handler receives messages of a single kind.
type Handler[M Message] func(ctx context.Context, msg M) error

// Subscription identifies one registered handler. The zero value is valid
// and unsubscribing it is a no-op.
type Subscription struct {
	kind Kind
	id   uint64
}

// Kind returns the message kind the subscription listens to.
func (s Subscription) Kind() Kind { return s.kind }

// ErrBusClosed is returned by Publish after Close.
var ErrBusClosed = errors.New("event bus closed")

// HandlerError wraps a failure of one subscriber during Publish.
type HandlerError struct {
	Kind Kind
	Err  error
}

func (e *HandlerError) Error() string {
	return fmt.Sprintf("%s handler: %v", e.Kind, e.Err)
}

func (e *HandlerError) Unwrap() error { return e.Err }

// HandlerPanicError is the error recorded for a handler that panicked.
type HandlerPanicError struct {
	Value any
}

func (e *HandlerPanicError) Error() string {
	return fmt.Sprintf("handler panicked: %v", e.Value)
}

type subscriberEntry struct {
	id uint64
	fn func(ctx context.Context, msg Message) error
}

// Bus is the correlation bus. Handlers are called directly to keep payload
// types intact; every publish is also mirrored onto a watermill gochannel
// topic named after the kind so that taps (SSE, debugging) can observe the
// traffic without registering handlers.
type Bus struct {
	mu          sync.RWMutex
	subscribers map[Kind][]subscriberEntry
	nextID      uint64
	closed      bool

	pubsub message.PubSub
	taps   atomic.Int64
	log    zerolog.Logger
}

// NewBus creates a new bus instance.
func NewBus() *Bus {
	return &Bus{
		subscribers: make(map[Kind][]subscriberEntry),
		pubsub: gochannel.NewGoChannel(
			gochannel.Config{
				OutputChannelBuffer: 100,
				Persistent:          false,
			},
			watermill.NopLogger{},
		),
		log: logging.Component("bus"),
	}
}

func (b *Bus) newID() uint64 {
	return atomic.AddUint64(&b.nextID, 1)
}

// Subscribe registers fn for messages of kind M. Handlers of one kind are
// invoked in registration order.
func Subscribe[M Message](b *Bus, fn Handler[M]) Subscription {
	var zero M
	kind := zero.Kind()

	entry := subscriberEntry{
		id: b.newID(),
		fn: func(ctx context.Context, msg Message) error {
			typed, ok := msg.(M)
			if !ok {
				return fmt.Errorf("unexpected payload %T for kind %s", msg, kind)
			}
			return fn(ctx, typed)
		},
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return Subscription{}
	}
	b.subscribers[kind] = append(b.subscribers[kind], entry)
	return Subscription{kind: kind, id: entry.id}
}

// Unsubscribe removes a subscription. Removing an unknown or already removed
// subscription does nothing.
func (b *Bus) Unsubscribe(sub Subscription) {
	if sub.id == 0 {
		return
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	subs := b.subscribers[sub.kind]
	for i, entry := range subs {
		if entry.id != sub.id {
			continue
		}
		// Copy so snapshots taken by in-flight publishes stay intact.
		next := make([]subscriberEntry, 0, len(subs)-1)
		next = append(next, subs[:i]...)
		next = append(next, subs[i+1:]...)
		if len(next) == 0 {
			delete(b.subscribers, sub.kind)
		} else {
			b.subscribers[sub.kind] = next
		}
		return
	}
}

// Subscribers returns the number of handlers registered for kind.
func (b *Bus) Subscribers(kind Kind) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subscribers[kind])
}

// Publish delivers msg to every handler of its kind, in registration order,
// and returns once all of them have returned. The handler list is
// snapshotted first, so handlers may subscribe, unsubscribe or publish
// while being invoked. A failing or panicking handler does not stop
// delivery to the others; all failures are joined into the returned error.
func (b *Bus) Publish(ctx context.Context, msg Message) error {
	kind := msg.Kind()

	b.mu.RLock()
	if b.closed {
		b.mu.RUnlock()
		return ErrBusClosed
	}
	subs := make([]subscriberEntry, len(b.subscribers[kind]))
	copy(subs, b.subscribers[kind])
	b.mu.RUnlock()

	var errs []error
	for _, sub := range subs {
		if err := invoke(ctx, sub, msg); err != nil {
			b.log.Warn().Err(err).Str("kind", string(kind)).Msg("subscriber failed")
			errs = append(errs, &HandlerError{Kind: kind, Err: err})
		}
	}

	b.mirror(kind, msg)

	return errors.Join(errs...)
}

func invoke(ctx context.Context, sub subscriberEntry, msg Message) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = &HandlerPanicError{Value: r}
		}
	}()
	return sub.fn(ctx, msg)
}

// mirror forwards msg to the watermill topic of its kind when a tap is open.
func (b *Bus) mirror(kind Kind, msg Message) {
	if b.taps.Load() == 0 {
		return
	}
	payload, err := json.Marshal(msg)
	if err != nil {
		b.log.Warn().Err(err).Str("kind", string(kind)).Msg("mirror encode failed")
		return
	}
	wm := message.NewMessage(watermill.NewULID(), payload)
	wm.Metadata.Set(MetadataKind, string(kind))
	if err := b.pubsub.Publish(string(kind), wm); err != nil {
		b.log.Debug().Err(err).Str("kind", string(kind)).Msg("mirror publish failed")
	}
}

// MetadataKind is the watermill metadata key holding the message kind.
const MetadataKind = "kind"

// Tap returns a stream of JSON-encoded copies of every message of the given
// kinds published after the call. Consumers must Ack each message. The
// stream ends when ctx is cancelled or the bus is closed.
func (b *Bus) Tap(ctx context.Context, kinds ...Kind) (<-chan *message.Message, error) {
	ctx, cancel := context.WithCancel(ctx)
	out := make(chan *message.Message)
	var wg sync.WaitGroup
	for _, kind := range kinds {
		ch, err := b.pubsub.Subscribe(ctx, string(kind))
		if err != nil {
			cancel()
			wg.Wait()
			return nil, fmt.Errorf("tap %s: %w", kind, err)
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			for m := range ch {
				select {
				case out <- m:
				case <-ctx.Done():
					m.Ack()
				}
			}
		}()
	}

	b.taps.Add(1)
	go func() {
		wg.Wait()
		cancel()
		b.taps.Add(-1)
		close(out)
	}()
	return out, nil
}

// Close drops all subscribers and stops the mirror. Further publishes fail
// with ErrBusClosed.
func (b *Bus) Close() error {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return nil
	}
	b.closed = true
	b.subscribers = make(map[Kind][]subscriberEntry)
	b.mu.Unlock()

	return b.pubsub.Close()
}
