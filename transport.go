package xview

import (
	"errors"
	"sync"
)

// ChannelFactory constructs control channels from a config blob.
type ChannelFactory func(cfg map[string]any) (ControlChannel, error)

var (
	channelRegistryMu sync.RWMutex
	channelRegistry   = map[string]ChannelFactory{}
)

// RegisterChannel registers a control-channel adapter by name.
func RegisterChannel(name string, factory ChannelFactory) error {
	if name == "" {
		return errors.New("channel name must not be empty")
	}
	if factory == nil {
		return errors.New("channel factory must not be nil")
	}
	channelRegistryMu.Lock()
	channelRegistry[name] = factory
	channelRegistryMu.Unlock()
	return nil
}

// NewChannel constructs a control channel by adapter name with config.
func NewChannel(name string, cfg map[string]any) (ControlChannel, error) {
	channelRegistryMu.RLock()
	f, ok := channelRegistry[name]
	channelRegistryMu.RUnlock()
	if !ok {
		return nil, ErrUnknownChannel{name: name}
	}
	return f(cfg)
}
