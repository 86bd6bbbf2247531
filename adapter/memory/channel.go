package memory

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/trickstertwo/xview"
)

// ChannelName registers the in-memory control channel adapter.
const ChannelName = "memory"

func init() {
	if err := xview.RegisterChannel(ChannelName, func(cfg map[string]any) (xview.ControlChannel, error) {
		return NewChannel(channelBuffer(cfg)), nil
	}); err != nil {
		panic(fmt.Errorf("xview/memory: failed to register channel: %w", err))
	}
}

func channelBuffer(cfg map[string]any) int {
	switch v := cfg["buffer_size"].(type) {
	case int:
		return v
	case int64:
		return int(v)
	case float64:
		return int(v)
	default:
		return 64
	}
}

// Channel is an in-memory control channel: per-subscriber buffered queues
// drained by a worker goroutine each, mirroring broker delivery without the
// broker.
type Channel struct {
	mu     sync.RWMutex
	topics map[string][]*chanSub
	buffer int
	closed atomic.Bool
}

var _ xview.ControlChannel = (*Channel)(nil)

type chanSub struct {
	queue  chan *xview.ControlMessage
	cancel context.CancelFunc
	done   chan struct{}
}

// NewChannel creates a channel with the given per-subscriber buffer size.
func NewChannel(bufferSize int) *Channel {
	if bufferSize < 1 {
		bufferSize = 64
	}
	return &Channel{topics: make(map[string][]*chanSub), buffer: bufferSize}
}

// Publish fans the message out to every subscriber of the topic. A topic with
// no subscribers drops the message (in-memory dev semantics).
func (c *Channel) Publish(ctx context.Context, topic string, msg *xview.ControlMessage) error {
	if c.closed.Load() {
		return errors.New("memory: control channel is closed")
	}
	if msg == nil {
		return nil
	}
	c.mu.RLock()
	subs := c.topics[topic]
	c.mu.RUnlock()

	for _, s := range subs {
		select {
		case s.queue <- msg:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return nil
}

// Subscribe registers a handler for a topic; delivery runs on a dedicated
// goroutine per subscription.
func (c *Channel) Subscribe(ctx context.Context, topic string, handler func(*xview.ControlMessage)) (xview.Subscription, error) {
	if c.closed.Load() {
		return nil, errors.New("memory: control channel is closed")
	}
	if handler == nil {
		return nil, errors.New("memory: subscribe handler must not be nil")
	}

	subCtx, cancel := context.WithCancel(ctx)
	s := &chanSub{
		queue:  make(chan *xview.ControlMessage, c.buffer),
		cancel: cancel,
		done:   make(chan struct{}),
	}
	c.mu.Lock()
	c.topics[topic] = append(c.topics[topic], s)
	c.mu.Unlock()

	go func() {
		defer close(s.done)
		for {
			select {
			case <-subCtx.Done():
				return
			case msg := <-s.queue:
				if msg != nil {
					handler(msg)
				}
			}
		}
	}()

	return subscription{close: func() error {
		s.cancel()
		<-s.done
		c.mu.Lock()
		subs := c.topics[topic]
		for i := range subs {
			if subs[i] == s {
				c.topics[topic] = append(subs[:i], subs[i+1:]...)
				break
			}
		}
		c.mu.Unlock()
		return nil
	}}, nil
}

// Drain blocks until every subscriber queue of the topic is empty. Test
// helper for asserting on asynchronous delivery.
func (c *Channel) Drain(topic string) {
	for {
		c.mu.RLock()
		pending := 0
		for _, s := range c.topics[topic] {
			pending += len(s.queue)
		}
		c.mu.RUnlock()
		if pending == 0 {
			return
		}
	}
}

// Close shuts down all subscriptions.
func (c *Channel) Close(_ context.Context) error {
	if c.closed.Swap(true) {
		return nil
	}
	c.mu.Lock()
	topics := c.topics
	c.topics = make(map[string][]*chanSub)
	c.mu.Unlock()

	for _, subs := range topics {
		for _, s := range subs {
			s.cancel()
			<-s.done
		}
	}
	return nil
}
