package xview

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/trickstertwo/xlog"
)

// Registry owns the (event type -> transaction) and (query type -> query)
// bindings for one domain's read-model and dispatches incoming traffic.
type Registry struct {
	mu           sync.RWMutex
	transactions map[string]Handler
	queries      map[string]QueryHandler

	typeAttr    string
	middlewares []Middleware
	logger      *xlog.Logger
	metrics     *registryMetrics
}

type registryMetrics struct {
	dispatched    atomic.Uint64
	ignored       atomic.Uint64
	handlerErrors atomic.Uint64
	queries       atomic.Uint64
	unsupported   atomic.Uint64
}

// RegistryStats is a snapshot of dispatcher telemetry.
type RegistryStats struct {
	Dispatched    uint64
	Ignored       uint64
	HandlerErrors uint64
	Queries       uint64
	Unsupported   uint64
}

// RegistryOption configures a Registry.
type RegistryOption func(*Registry)

// WithQueryTypeAttribute overrides the attribute name commands declare their
// type under (default "type").
func WithQueryTypeAttribute(attr string) RegistryOption {
	return func(r *Registry) {
		if attr != "" {
			r.typeAttr = attr
		}
	}
}

// WithRegistryLogger injects a logger.
func WithRegistryLogger(l *xlog.Logger) RegistryOption {
	return func(r *Registry) {
		if l != nil {
			r.logger = l
		}
	}
}

// WithRegistryMiddleware wraps every dispatched event handler.
func WithRegistryMiddleware(mw ...Middleware) RegistryOption {
	return func(r *Registry) { r.middlewares = append(r.middlewares, mw...) }
}

// NewRegistry builds an empty dispatcher.
func NewRegistry(opts ...RegistryOption) *Registry {
	r := &Registry{
		transactions: make(map[string]Handler),
		queries:      make(map[string]QueryHandler),
		typeAttr:     AttrCommandType,
		logger:       xlog.Default(),
		metrics:      &registryMetrics{},
	}
	for _, o := range opts {
		if o != nil {
			o(r)
		}
	}
	return r
}

// BindTransaction binds an event type name to a change handler. Empty names
// and nil handlers are ignored.
func (r *Registry) BindTransaction(eventName string, h Handler) {
	if eventName == "" || h == nil {
		return
	}
	r.mu.Lock()
	r.transactions[eventName] = h
	r.mu.Unlock()
}

// BindChangeEvents binds one projection transaction to every listed event
// type name.
func (r *Registry) BindChangeEvents(t *Transaction, eventNames ...string) {
	if t == nil {
		return
	}
	for _, name := range eventNames {
		r.BindTransaction(name, t.OnChangeNotified)
	}
}

// BindQuery binds a query type name to a handler.
func (r *Registry) BindQuery(queryType string, qh QueryHandler) {
	if queryType == "" || qh == nil {
		return
	}
	r.mu.Lock()
	r.queries[queryType] = qh
	r.mu.Unlock()
}

// DispatchEvent routes a change notification to its bound transaction.
// Events with no binding are silently ignored: the read-model is allowed to
// be uninterested in most event types. Handler failures are logged and
// skipped so the pipeline keeps processing.
func (r *Registry) DispatchEvent(ctx context.Context, e *DomainEvent) {
	if e == nil {
		return
	}
	r.mu.RLock()
	h, ok := r.transactions[e.Name]
	mws := r.middlewares
	r.mu.RUnlock()
	if !ok {
		r.metrics.ignored.Add(1)
		return
	}

	r.metrics.dispatched.Add(1)
	wrapped := Chain(RecoveryMiddleware()(h), mws...)
	if err := wrapped(ctx, e); err != nil {
		r.metrics.handlerErrors.Add(1)
		lg := r.logger
		if ctxLg, ok := LoggerFromContext(ctx); ok {
			lg = ctxLg
		}
		lg.With(
			xlog.Str("event", e.Name),
			xlog.Str("event_id", e.ID),
		).Warn().Err(err).Msg("xview: change handler failed, event skipped")
	}
}

// DispatchQuery resolves the command's declared type attribute and executes
// the bound query. An unbound type is an unsupported operation; execution
// failures surface as operational-state errors, never raw backend errors.
func (r *Registry) DispatchQuery(ctx context.Context, cmd *Command) (any, error) {
	typ, ok := cmd.TypeAttribute(r.typeAttr)
	if !ok || typ == "" {
		r.metrics.unsupported.Add(1)
		return nil, fmt.Errorf("%w: command declares no %q attribute", ErrUnsupportedQuery, r.typeAttr)
	}
	r.mu.RLock()
	qh, bound := r.queries[typ]
	r.mu.RUnlock()
	if !bound {
		r.metrics.unsupported.Add(1)
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedQuery, typ)
	}

	r.metrics.queries.Add(1)
	res, err := qh(ctx, cmd)
	if err != nil {
		if errors.Is(err, ErrEmptyLabel) || errors.Is(err, ErrOperationalState) {
			return nil, err
		}
		return nil, operational("query "+typ, err)
	}
	return res, nil
}

// SubscribeTo attaches the registry to a write-model store exposing the
// optional push capability, so every committed change is delivered without
// polling. Stores without the capability yield a nil subscription.
func (r *Registry) SubscribeTo(store WriteModelStore) (Subscription, error) {
	s, ok := store.(Subscribable)
	if !ok {
		return nil, nil
	}
	return s.Subscribe(func(ctx context.Context, e *DomainEvent) error {
		r.DispatchEvent(ctx, e)
		return nil
	})
}

// Stats returns current dispatcher telemetry.
func (r *Registry) Stats() RegistryStats {
	return RegistryStats{
		Dispatched:    r.metrics.dispatched.Load(),
		Ignored:       r.metrics.ignored.Load(),
		HandlerErrors: r.metrics.handlerErrors.Load(),
		Queries:       r.metrics.queries.Load(),
		Unsupported:   r.metrics.unsupported.Load(),
	}
}
