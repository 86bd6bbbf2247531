package redisview

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/redis/go-redis/v9"

	"github.com/trickstertwo/xview"
)

// ChannelName registers the Redis pub/sub control channel adapter.
const ChannelName = "redis"

func init() {
	if err := xview.RegisterChannel(ChannelName, func(cfg map[string]any) (xview.ControlChannel, error) {
		return NewChannel(ConfigFromMap(cfg))
	}); err != nil {
		panic(fmt.Errorf("xview/redisview: failed to register channel: %w", err))
	}
}

// Channel carries control envelopes over Redis pub/sub. Topics map directly
// to Redis channels, namespaced by the key prefix.
type Channel struct {
	cfg    Config
	client *redis.Client
	codec  xview.Codec

	mu     sync.Mutex
	subs   []*redis.PubSub
	wg     sync.WaitGroup
	closed atomic.Bool
}

var _ xview.ControlChannel = (*Channel)(nil)

// NewChannel connects to Redis and verifies the connection.
func NewChannel(cfg Config) (*Channel, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	client, err := newClient(cfg)
	if err != nil {
		return nil, err
	}
	codec, err := xview.NewCodec(cfg.Codec)
	if err != nil {
		_ = client.Close()
		return nil, err
	}
	return &Channel{cfg: cfg, client: client, codec: codec}, nil
}

func (c *Channel) channelKey(topic string) string { return c.cfg.KeyPrefix + ":ctl:" + topic }

func (c *Channel) Publish(ctx context.Context, topic string, msg *xview.ControlMessage) error {
	if c.closed.Load() {
		return errors.New("redisview: control channel is closed")
	}
	if msg == nil {
		return nil
	}
	data, err := c.codec.Marshal(msg.Sealed())
	if err != nil {
		return err
	}
	return c.client.Publish(ctx, c.channelKey(topic), data).Err()
}

func (c *Channel) Subscribe(ctx context.Context, topic string, handler func(*xview.ControlMessage)) (xview.Subscription, error) {
	if c.closed.Load() {
		return nil, errors.New("redisview: control channel is closed")
	}
	if handler == nil {
		return nil, errors.New("redisview: subscribe handler must not be nil")
	}

	ps := c.client.Subscribe(ctx, c.channelKey(topic))
	// Force the subscription to be established before returning.
	if _, err := ps.Receive(ctx); err != nil {
		_ = ps.Close()
		return nil, err
	}

	c.mu.Lock()
	c.subs = append(c.subs, ps)
	c.mu.Unlock()

	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		for m := range ps.Channel() {
			msg, err := xview.DecodeValue[*xview.ControlMessage](c.codec, []byte(m.Payload))
			if err != nil || msg == nil {
				continue
			}
			handler(msg.Decoded())
		}
	}()

	return channelSub{ps: ps}, nil
}

type channelSub struct{ ps *redis.PubSub }

func (s channelSub) Close() error { return s.ps.Close() }

// Close shuts down every subscription and the client.
func (c *Channel) Close(_ context.Context) error {
	if c.closed.Swap(true) {
		return nil
	}
	c.mu.Lock()
	subs := c.subs
	c.subs = nil
	c.mu.Unlock()

	var closeErr error
	for _, ps := range subs {
		if err := ps.Close(); err != nil {
			closeErr = err
		}
	}
	c.wg.Wait()
	if err := c.client.Close(); err != nil {
		closeErr = err
	}
	return closeErr
}
