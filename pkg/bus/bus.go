package bus

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	gonanoid "github.com/matoous/go-nanoid/v2"
	"github.com/rs/zerolog"
)

const (
	// Wildcard subscribes to every topic.
	Wildcard = "*"

	DefaultHistorySize = 1000
	DefaultQueueSize   = 256
)

var (
	// ErrTimeout is returned by Request when no reply arrives in time.
	ErrTimeout = errors.New("request timed out")
	// ErrNoPending is returned by Respond when nothing waits on ReplyTo.
	ErrNoPending = errors.New("no pending request")
	// ErrClosed is returned after Close.
	ErrClosed = errors.New("bus closed")
)

// Message is the unit carried by the bus.
type Message struct {
	ID        string         `json:"id"`
	Topic     string         `json:"topic"`
	Payload   any            `json:"payload,omitempty"`
	Sender    string         `json:"sender,omitempty"`
	ReplyTo   string         `json:"reply_to,omitempty"`
	Timestamp time.Time      `json:"timestamp"`
	Metadata  map[string]any `json:"metadata,omitempty"`
}

// Listener handles a delivered message.
type Listener func(Message)

type subscription struct {
	topic    string
	listener Listener
	async    bool
}

// Bus is an in-process publish/subscribe bus with blocking request/reply.
// It is not durable: history lives in a bounded ring buffer.
type Bus struct {
	logger zerolog.Logger

	mu     sync.RWMutex
	subs   map[string]map[uint64]subscription
	nextID uint64

	pendingMu sync.Mutex
	pending   map[string]chan Message

	history *ring

	queue     chan Message
	done      chan struct{}
	closeOnce sync.Once
	wg        sync.WaitGroup
}

// Option configures a Bus.
type Option func(*options)

type options struct {
	historySize int
	queueSize   int
	logger      zerolog.Logger
}

// WithHistorySize sets the ring buffer capacity.
func WithHistorySize(n int) Option {
	return func(o *options) {
		o.historySize = n
	}
}

// WithQueueSize sets how many messages may wait for synchronous delivery
// before Publish blocks.
func WithQueueSize(n int) Option {
	return func(o *options) {
		o.queueSize = n
	}
}

// WithLogger sets the bus logger.
func WithLogger(logger zerolog.Logger) Option {
	return func(o *options) {
		o.logger = logger
	}
}

// New creates a bus and starts its dispatch goroutine. Call Close to stop
// it.
func New(opts ...Option) *Bus {
	o := options{
		historySize: DefaultHistorySize,
		queueSize:   DefaultQueueSize,
		logger:      zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(&o)
	}
	if o.historySize <= 0 {
		o.historySize = DefaultHistorySize
	}
	if o.queueSize <= 0 {
		o.queueSize = DefaultQueueSize
	}

	b := &Bus{
		logger:  o.logger.With().Str("component", "bus").Logger(),
		subs:    make(map[string]map[uint64]subscription),
		pending: make(map[string]chan Message),
		history: newRing(o.historySize),
		queue:   make(chan Message, o.queueSize),
		done:    make(chan struct{}),
	}

	b.wg.Add(1)
	go b.dispatch()

	return b
}

// Subscribe registers a listener invoked sequentially, in publish order, on
// the bus's dispatch goroutine. A slow listener delays later deliveries.
func (b *Bus) Subscribe(topic string, listener Listener) func() {
	return b.subscribe(topic, listener, false)
}

// SubscribeAsync registers a listener invoked on its own goroutine for every
// delivery.
func (b *Bus) SubscribeAsync(topic string, listener Listener) func() {
	return b.subscribe(topic, listener, true)
}

func (b *Bus) subscribe(topic string, listener Listener, async bool) func() {
	topic = strings.TrimSpace(topic)
	if topic == "" || listener == nil {
		return func() {}
	}

	b.mu.Lock()
	b.nextID++
	id := b.nextID
	if _, ok := b.subs[topic]; !ok {
		b.subs[topic] = make(map[uint64]subscription)
	}
	b.subs[topic][id] = subscription{topic: topic, listener: listener, async: async}
	b.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			b.mu.Lock()
			defer b.mu.Unlock()
			delete(b.subs[topic], id)
			if len(b.subs[topic]) == 0 {
				delete(b.subs, topic)
			}
		})
	}
}

// Publish stamps msg with an ID and timestamp when missing, records it in
// history and delivers it to matching listeners.
func (b *Bus) Publish(msg Message) (Message, error) {
	if strings.TrimSpace(msg.Topic) == "" {
		return Message{}, fmt.Errorf("message topic is required")
	}
	select {
	case <-b.done:
		return Message{}, ErrClosed
	default:
	}

	msg = stamp(msg)
	b.history.add(msg)

	for _, sub := range b.listeners(msg.Topic, true) {
		go b.invoke(sub, msg)
	}

	select {
	case b.queue <- msg:
	case <-b.done:
		return Message{}, ErrClosed
	}

	b.logger.Debug().
		Str("id", msg.ID).
		Str("topic", msg.Topic).
		Msg("Message published")

	return msg, nil
}

// Request publishes msg and blocks until a reply addressed to its ID
// arrives, timeout elapses, or ctx is done. The first of the three wins;
// the pending slot is removed exactly once in every case.
func (b *Bus) Request(ctx context.Context, msg Message, timeout time.Duration) (Message, error) {
	if timeout <= 0 {
		return Message{}, fmt.Errorf("request timeout must be positive")
	}
	msg = stamp(msg)

	replyCh := make(chan Message, 1)

	b.pendingMu.Lock()
	if _, exists := b.pending[msg.ID]; exists {
		b.pendingMu.Unlock()
		return Message{}, fmt.Errorf("request %s already pending", msg.ID)
	}
	b.pending[msg.ID] = replyCh
	b.pendingMu.Unlock()

	defer func() {
		b.pendingMu.Lock()
		delete(b.pending, msg.ID)
		b.pendingMu.Unlock()
	}()

	if _, err := b.Publish(msg); err != nil {
		return Message{}, err
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case reply := <-replyCh:
		return reply, nil
	case <-timer.C:
		b.logger.Debug().
			Str("id", msg.ID).
			Str("topic", msg.Topic).
			Dur("timeout", timeout).
			Msg("Request timed out")
		return Message{}, fmt.Errorf("%w after %s", ErrTimeout, timeout)
	case <-ctx.Done():
		return Message{}, ctx.Err()
	}
}

// Respond delivers reply to the request named by reply.ReplyTo. A request
// accepts one reply; later ones get ErrNoPending.
func (b *Bus) Respond(reply Message) error {
	if reply.ReplyTo == "" {
		return fmt.Errorf("reply_to is required")
	}

	b.pendingMu.Lock()
	replyCh, ok := b.pending[reply.ReplyTo]
	b.pendingMu.Unlock()
	if !ok {
		return fmt.Errorf("%w: %s", ErrNoPending, reply.ReplyTo)
	}

	reply = stamp(reply)
	select {
	case replyCh <- reply:
	default:
		return fmt.Errorf("%w: %s already answered", ErrNoPending, reply.ReplyTo)
	}

	b.history.add(reply)
	return nil
}

// Pending returns the number of requests awaiting a reply.
func (b *Bus) Pending() int {
	b.pendingMu.Lock()
	defer b.pendingMu.Unlock()
	return len(b.pending)
}

// History returns up to the last n messages in publish order; n <= 0
// returns everything retained.
func (b *Bus) History(n int) []Message {
	return b.history.last(n)
}

// Replay invokes listener synchronously for every retained message on
// topic (or all topics with Wildcard) and returns the count.
func (b *Bus) Replay(topic string, listener Listener) int {
	count := 0
	for _, msg := range b.history.last(0) {
		if topic != Wildcard && msg.Topic != topic {
			continue
		}
		listener(msg)
		count++
	}
	return count
}

// Close stops the dispatch goroutine. Queued synchronous deliveries that
// have not started are dropped.
func (b *Bus) Close() {
	b.closeOnce.Do(func() {
		close(b.done)
	})
	b.wg.Wait()
}

func (b *Bus) dispatch() {
	defer b.wg.Done()
	for {
		select {
		case msg := <-b.queue:
			for _, sub := range b.listeners(msg.Topic, false) {
				b.invoke(sub, msg)
			}
		case <-b.done:
			return
		}
	}
}

func (b *Bus) listeners(topic string, async bool) []subscription {
	b.mu.RLock()
	defer b.mu.RUnlock()

	var out []subscription
	for _, key := range []string{topic, Wildcard} {
		for _, sub := range b.subs[key] {
			if sub.async == async {
				out = append(out, sub)
			}
		}
		if topic == Wildcard {
			break
		}
	}
	return out
}

func (b *Bus) invoke(sub subscription, msg Message) {
	defer func() {
		if r := recover(); r != nil {
			b.logger.Error().
				Interface("panic", r).
				Str("topic", msg.Topic).
				Str("subscription", sub.topic).
				Msg("Bus listener panicked")
		}
	}()
	sub.listener(msg)
}

var nanoid = func() (string, error) { return gonanoid.New() }

// newID returns a nanoid, falling back to a UUID if the random source fails.
func newID() string {
	id, err := nanoid()
	if err != nil || id == "" {
		return uuid.NewString()
	}
	return id
}

func stamp(msg Message) Message {
	if msg.ID == "" {
		msg.ID = newID()
	}
	if msg.Timestamp.IsZero() {
		msg.Timestamp = time.Now()
	}
	return msg
}
