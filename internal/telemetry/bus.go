// internal/telemetry/bus.go
package telemetry

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/xkilldash9x/scalpel-heal/api/schemas"
)

// Message is the envelope for telemetry transmitted over the Bus.
type Message struct {
	ID        string
	Timestamp time.Time
	Type      schemas.MessageType
	Payload   interface{}
}

// Bus fans telemetry out to asynchronous subscribers. Consumers must Acknowledge every
// message they receive so Shutdown can wait for in-flight work.
type Bus struct {
	logger *zap.Logger

	subscribers map[schemas.MessageType][]chan Message
	// Channels pumped by Forward; they drain themselves on shutdown.
	forwarded  map[chan Message]struct{}
	mu         sync.RWMutex
	bufferSize int

	// Delivered but not yet acknowledged messages.
	processingWg sync.WaitGroup
	// Post calls in progress.
	activePostsWg sync.WaitGroup

	shutdownChan chan struct{}
	shutdownOnce sync.Once
	isShutdown   bool
	shutdownMu   sync.Mutex
}

var _ Sink = (*Bus)(nil)

// NewBus initializes a Bus whose subscriber channels hold bufferSize messages.
func NewBus(logger *zap.Logger, bufferSize int) *Bus {
	if bufferSize < 0 {
		bufferSize = 0
	}
	return &Bus{
		logger:       logger.Named("telemetry_bus"),
		subscribers:  make(map[schemas.MessageType][]chan Message),
		forwarded:    make(map[chan Message]struct{}),
		bufferSize:   bufferSize,
		shutdownChan: make(chan struct{}),
	}
}

// Post sends a message onto the bus. Blocks while subscriber buffers are full.
func (b *Bus) Post(ctx context.Context, msgType schemas.MessageType, payload interface{}) error {
	b.shutdownMu.Lock()
	if b.isShutdown {
		b.shutdownMu.Unlock()
		return fmt.Errorf("cannot post message: telemetry bus is shut down")
	}
	b.activePostsWg.Add(1)
	b.shutdownMu.Unlock()
	defer b.activePostsWg.Done()

	msg := Message{
		ID:        uuid.New().String(),
		Timestamp: time.Now().UTC(),
		Type:      msgType,
		Payload:   payload,
	}

	b.mu.RLock()
	subscribers := b.subscribers[msg.Type]
	if len(subscribers) == 0 {
		b.mu.RUnlock()
		return nil
	}
	subsCopy := make([]chan Message, len(subscribers))
	copy(subsCopy, subscribers)
	b.mu.RUnlock()

	for _, ch := range subsCopy {
		b.processingWg.Add(1)
		select {
		case ch <- msg:
		case <-ctx.Done():
			b.processingWg.Done()
			return ctx.Err()
		case <-b.shutdownChan:
			b.processingWg.Done()
			return fmt.Errorf("failed to post message: telemetry bus is shutting down")
		}
	}
	return nil
}

// RecordHealing implements Sink. Delivery ignores cancellation of ctx, so an action
// aborted by its caller still produces its event; only Shutdown stops it.
func (b *Bus) RecordHealing(ctx context.Context, ev schemas.HealingEvent) {
	if err := b.Post(context.WithoutCancel(ctx), schemas.MessageHealingEvent, ev); err != nil {
		b.logger.Warn("Dropped healing event.", zap.String("event_id", ev.ID), zap.Error(err))
	}
}

// RecordOperation implements Sink. Like RecordHealing it ignores cancellation of ctx.
func (b *Bus) RecordOperation(ctx context.Context, rec schemas.OperationRecord) {
	if err := b.Post(context.WithoutCancel(ctx), schemas.MessageOperation, rec); err != nil {
		b.logger.Warn("Dropped operation record.", zap.String("record_id", rec.ID), zap.Error(err))
	}
}

// Subscribe returns a channel receiving the given message types and a function removing
// the subscription. The channel is closed by Shutdown.
func (b *Bus) Subscribe(msgTypes ...schemas.MessageType) (<-chan Message, func()) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.isShutdown {
		closedCh := make(chan Message)
		close(closedCh)
		return closedCh, func() {}
	}
	if len(msgTypes) == 0 {
		panic("must subscribe to at least one message type")
	}

	ch := make(chan Message, b.bufferSize)
	subscribedTypes := append([]schemas.MessageType(nil), msgTypes...)
	for _, msgType := range subscribedTypes {
		b.subscribers[msgType] = append(b.subscribers[msgType], ch)
	}

	unsubscribe := func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		for _, msgType := range subscribedTypes {
			subs := b.subscribers[msgType]
			for i, subscriberCh := range subs {
				if subscriberCh == ch {
					copy(subs[i:], subs[i+1:])
					b.subscribers[msgType] = subs[:len(subs)-1]
					if len(b.subscribers[msgType]) == 0 {
						delete(b.subscribers, msgType)
					}
					break
				}
			}
		}
	}
	return ch, unsubscribe
}

// Acknowledge signals that a consumer finished processing msg.
func (b *Bus) Acknowledge(msg Message) {
	b.processingWg.Done()
}

// Forward subscribes sink to every telemetry type and pumps messages into it until the
// bus shuts down. Messages still buffered at shutdown are delivered, not dropped. The
// returned channel is closed once the pump exits.
func (b *Bus) Forward(sink Sink) <-chan struct{} {
	msgs, _ := b.Subscribe(schemas.MessageHealingEvent, schemas.MessageOperation)
	done := make(chan struct{})

	b.mu.Lock()
	for _, subs := range b.subscribers {
		for _, ch := range subs {
			if (<-chan Message)(ch) == msgs {
				b.forwarded[ch] = struct{}{}
			}
		}
	}
	b.mu.Unlock()

	go func() {
		defer close(done)
		ctx := context.Background()
		for msg := range msgs {
			switch payload := msg.Payload.(type) {
			case schemas.HealingEvent:
				sink.RecordHealing(ctx, payload)
			case schemas.OperationRecord:
				sink.RecordOperation(ctx, payload)
			default:
				b.logger.Warn("Unexpected telemetry payload.", zap.String("type", string(msg.Type)))
			}
			b.Acknowledge(msg)
		}
	}()
	return done
}

// Shutdown stops accepting posts, closes subscriber channels and waits for delivered
// messages to be acknowledged.
func (b *Bus) Shutdown() {
	b.shutdownOnce.Do(func() {
		b.logger.Debug("Shutting down telemetry bus...")

		b.shutdownMu.Lock()
		b.isShutdown = true
		b.shutdownMu.Unlock()

		close(b.shutdownChan)
		b.activePostsWg.Wait()

		b.mu.Lock()
		uniqueChannels := make(map[chan Message]struct{})
		for _, subs := range b.subscribers {
			for _, ch := range subs {
				uniqueChannels[ch] = struct{}{}
			}
		}
		for ch := range uniqueChannels {
			close(ch)
		}

		// Consumers that already exited leave buffered messages unacknowledged.
		drainedCount := 0
		for ch := range uniqueChannels {
			if _, ok := b.forwarded[ch]; ok {
				continue
			}
			for range ch {
				drainedCount++
				b.processingWg.Done()
			}
		}
		b.subscribers = make(map[schemas.MessageType][]chan Message)
		b.forwarded = make(map[chan Message]struct{})
		b.mu.Unlock()

		if drainedCount > 0 {
			b.logger.Debug("Drained buffered messages during shutdown.", zap.Int("count", drainedCount))
		}

		b.processingWg.Wait()
		b.logger.Debug("Telemetry bus shut down gracefully.")
	})
}
