package redisview

import (
	"fmt"
	"time"
)

// Config for the Redis-backed projection store and control channel.
type Config struct {
	// Connection
	Addr          string
	Username      string
	Password      string
	DB            int
	TLS           bool
	TLSServerName string

	// KeyPrefix namespaces every key this adapter touches.
	KeyPrefix string

	// Codec selects the registered codec used for stored collections and
	// control envelopes (default "json").
	Codec string

	// DialTimeout bounds initial connection establishment.
	DialTimeout time.Duration
}

// Defaults returns a Config with safe defaults.
func Defaults() Config {
	return Config{
		Addr:        "127.0.0.1:6379",
		DB:          0,
		KeyPrefix:   "xview",
		Codec:       "json",
		DialTimeout: 5 * time.Second,
	}
}

// Validate checks the Config before any client is built.
func (c Config) Validate() error {
	if c.Addr == "" {
		return fmt.Errorf("config: addr required")
	}
	if c.KeyPrefix == "" {
		return fmt.Errorf("config: key_prefix required")
	}
	if c.Codec == "" {
		return fmt.Errorf("config: codec required")
	}
	return nil
}

// ConfigFromMap safely converts a generic map to Config with defaults.
func ConfigFromMap(m map[string]any) Config {
	c := Defaults()

	if v, ok := m["addr"].(string); ok && v != "" {
		c.Addr = v
	}
	if v, ok := m["username"].(string); ok {
		c.Username = v
	}
	if v, ok := m["password"].(string); ok {
		c.Password = v
	}
	if v, ok := m["db"].(int); ok {
		c.DB = v
	}
	if v, ok := m["tls"].(bool); ok {
		c.TLS = v
	}
	if v, ok := m["tls_server_name"].(string); ok {
		c.TLSServerName = v
	}
	if v, ok := m["key_prefix"].(string); ok && v != "" {
		c.KeyPrefix = v
	}
	if v, ok := m["codec"].(string); ok && v != "" {
		c.Codec = v
	}
	switch v := m["dial_timeout"].(type) {
	case time.Duration:
		if v > 0 {
			c.DialTimeout = v
		}
	case string:
		if d, err := time.ParseDuration(v); err == nil && d > 0 {
			c.DialTimeout = d
		}
	}

	return c
}
