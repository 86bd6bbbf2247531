package redisview

import (
	"context"
	"crypto/tls"
	"errors"
	"strconv"

	"github.com/redis/go-redis/v9"

	"github.com/trickstertwo/xview"
)

// Store implements xview.ProjectionStore on Redis. Each collection lives
// under one JSON value keyed by aggregate id; a set per label indexes the
// collections whose latest version carries that label.
type Store struct {
	cfg    Config
	client *redis.Client
	codec  xview.Codec
}

var _ xview.ProjectionStore = (*Store)(nil)

// NewStore connects to Redis and verifies the connection.
func NewStore(cfg Config) (*Store, error) {
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
	return &Store{cfg: cfg, client: client, codec: codec}, nil
}

func newClient(cfg Config) (*redis.Client, error) {
	opts := &redis.Options{
		Addr:        cfg.Addr,
		Username:    cfg.Username,
		Password:    cfg.Password,
		DB:          cfg.DB,
		MaxRetries:  3,
		DialTimeout: cfg.DialTimeout,
	}
	if cfg.TLS {
		opts.TLSConfig = &tls.Config{
			MinVersion: tls.VersionTLS12,
			ServerName: cfg.TLSServerName,
		}
	}
	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), cfg.DialTimeout)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, err
	}
	return client, nil
}

func (s *Store) colKey(id string) string { return s.cfg.KeyPrefix + ":col:" + id }

func (s *Store) labelKey(label string) string { return s.cfg.KeyPrefix + ":label:" + label }

// Save persists the collection and keeps the label index current: the
// collection is a member of exactly the set of its latest label.
func (s *Store) Save(ctx context.Context, rec *xview.Collection) (*xview.Collection, error) {
	if rec == nil || rec.AggregateID == "" {
		return nil, errors.New("redisview: collection requires an aggregate id")
	}
	latest, ok := rec.Latest()
	if !ok {
		return nil, errors.New("redisview: refusing to save an empty collection")
	}

	prev, found, err := s.FindByID(ctx, rec.AggregateID)
	if err != nil {
		return nil, err
	}

	data, err := s.codec.Marshal(rec)
	if err != nil {
		return nil, err
	}

	pipe := s.client.TxPipeline()
	pipe.Set(ctx, s.colKey(rec.AggregateID), data, 0)
	pipe.SAdd(ctx, s.labelKey(latest.Label), rec.AggregateID)
	if found {
		if prevLatest, ok := prev.Latest(); ok && prevLatest.Label != latest.Label {
			pipe.SRem(ctx, s.labelKey(prevLatest.Label), rec.AggregateID)
		}
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return nil, err
	}
	return rec.Clone(), nil
}

func (s *Store) FindByID(ctx context.Context, id string) (*xview.Collection, bool, error) {
	data, err := s.client.Get(ctx, s.colKey(id)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	col, err := xview.DecodeValue[*xview.Collection](s.codec, data)
	if err != nil {
		return nil, false, err
	}
	return col, true, nil
}

// QueryWhere resolves collections by latest-version filters. A label filter
// uses the index set; without one the whole keyspace is scanned. Tombstoned
// collections and stale index entries never match.
func (s *Store) QueryWhere(ctx context.Context, filters map[string]string) ([]*xview.Collection, error) {
	var ids []string
	if label, ok := filters[xview.FilterLabel]; ok {
		members, err := s.client.SMembers(ctx, s.labelKey(label)).Result()
		if err != nil {
			return nil, err
		}
		ids = members
	} else {
		iter := s.client.Scan(ctx, 0, s.cfg.KeyPrefix+":col:*", 0).Iterator()
		prefixLen := len(s.cfg.KeyPrefix + ":col:")
		for iter.Next(ctx) {
			ids = append(ids, iter.Val()[prefixLen:])
		}
		if err := iter.Err(); err != nil {
			return nil, err
		}
	}

	var out []*xview.Collection
	for _, id := range ids {
		col, found, err := s.FindByID(ctx, id)
		if err != nil {
			return nil, err
		}
		if !found || col.Tombstoned {
			continue
		}
		latest, ok := col.Latest()
		if !ok {
			continue
		}
		if want, has := filters[xview.FilterLabel]; has && latest.Label != want {
			continue
		}
		if want, has := filters[xview.FilterActive]; has {
			if strconv.FormatBool(latest.Active) != want {
				continue
			}
		}
		out = append(out, col)
	}
	return out, nil
}

func (s *Store) DeleteByID(ctx context.Context, id string) error {
	col, found, err := s.FindByID(ctx, id)
	if err != nil {
		return err
	}
	pipe := s.client.TxPipeline()
	pipe.Del(ctx, s.colKey(id))
	if found {
		if latest, ok := col.Latest(); ok {
			pipe.SRem(ctx, s.labelKey(latest.Label), id)
		}
	}
	_, err = pipe.Exec(ctx)
	return err
}

// Close releases the Redis connection.
func (s *Store) Close() error { return s.client.Close() }
