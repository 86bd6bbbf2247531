package xview

import (
	"context"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/trickstertwo/xclock"
	"github.com/trickstertwo/xlog"
)

// QueryFindByLabel is the query type the engine binds its label lookup under.
const QueryFindByLabel = "find_by_label"

// Attribute names understood by the built-in label query.
const (
	AttrQueryLabel  = "label"
	AttrQueryActive = "active"
)

// Engine is the assembled read-model: one projection transaction, its query,
// the dispatcher, and the dynamic router, sharing a store, clock and logger.
// All dependencies are explicit; there is no process-wide default engine.
type Engine struct {
	registry    *Registry
	router      *RecipientList
	transaction *Transaction
	query       *LabelQuery

	channel     ControlChannel
	ownsChannel bool

	logger *xlog.Logger
	clock  xclock.Clock

	observersMu sync.RWMutex
	observers   []ViewObserver
	pool        *observerPool

	subs      []Subscription
	closed    atomic.Bool
	closeOnce sync.Once
}

// EngineBuilder assembles an Engine (Builder pattern).
type EngineBuilder struct {
	store ProjectionStore
	write WriteModelStore

	channelName string
	channelCfg  map[string]any
	channelInst ControlChannel
	topic       string

	changeEvents []string
	policy       DeletePolicy
	typeAttr     string

	middlewares []Middleware
	observers   []ViewObserver
	logger      *xlog.Logger
	clock       xclock.Clock

	poolWorkers int
	poolBuffer  int
}

// NewEngineBuilder returns a builder with sensible defaults.
func NewEngineBuilder() *EngineBuilder {
	return &EngineBuilder{
		typeAttr:    AttrCommandType,
		poolWorkers: 2,
		poolBuffer:  256,
	}
}

func (eb *EngineBuilder) WithProjectionStore(s ProjectionStore) *EngineBuilder {
	eb.store = s
	return eb
}

func (eb *EngineBuilder) WithWriteModel(w WriteModelStore) *EngineBuilder {
	eb.write = w
	return eb
}

// WithControlChannel selects a registered channel adapter by name; the engine
// owns and closes the constructed channel.
func (eb *EngineBuilder) WithControlChannel(name string, cfg map[string]any, topic string) *EngineBuilder {
	eb.channelName = name
	eb.channelCfg = cfg
	eb.topic = topic
	return eb
}

// WithControlChannelInstance accepts a ready channel; the caller keeps
// ownership and closes it.
func (eb *EngineBuilder) WithControlChannelInstance(ch ControlChannel, topic string) *EngineBuilder {
	eb.channelInst = ch
	eb.topic = topic
	return eb
}

// WithChangeEvents names the event types routed to the projection transaction.
func (eb *EngineBuilder) WithChangeEvents(names ...string) *EngineBuilder {
	eb.changeEvents = append(eb.changeEvents, names...)
	return eb
}

func (eb *EngineBuilder) WithDeletePolicy(p DeletePolicy) *EngineBuilder {
	eb.policy = p
	return eb
}

// WithQueryTypeAttribute overrides the command attribute the dispatcher reads
// the query type from.
func (eb *EngineBuilder) WithQueryTypeAttribute(attr string) *EngineBuilder {
	if attr != "" {
		eb.typeAttr = attr
	}
	return eb
}

func (eb *EngineBuilder) WithMiddleware(mw ...Middleware) *EngineBuilder {
	eb.middlewares = append(eb.middlewares, mw...)
	return eb
}

func (eb *EngineBuilder) WithObserver(obs ...ViewObserver) *EngineBuilder {
	for _, o := range obs {
		if o != nil {
			eb.observers = append(eb.observers, o)
		}
	}
	return eb
}

func (eb *EngineBuilder) WithLogger(l *xlog.Logger) *EngineBuilder {
	eb.logger = l
	return eb
}

func (eb *EngineBuilder) WithClock(c xclock.Clock) *EngineBuilder {
	eb.clock = c
	return eb
}

// WithObserverPool sizes the async view-change dispatch pool.
func (eb *EngineBuilder) WithObserverPool(workers, bufferSize int) *EngineBuilder {
	if workers > 0 {
		eb.poolWorkers = workers
	}
	if bufferSize > 0 {
		eb.poolBuffer = bufferSize
	}
	return eb
}

// Build wires the engine: transaction, query, dispatcher bindings, the
// write-model push subscription, and the router's control-channel listener.
func (eb *EngineBuilder) Build() (*Engine, error) {
	if eb.store == nil {
		return nil, ErrNilStore
	}
	if eb.write == nil {
		return nil, ErrNilWriteModel
	}

	lg := eb.logger
	if lg == nil {
		lg = xlog.Default()
	}
	clk := eb.clock
	if clk == nil {
		clk = xclock.Default()
	}

	eng := &Engine{
		logger: lg,
		clock:  clk,
		pool:   newObserverPool(context.Background(), eb.poolWorkers, eb.poolBuffer),
	}
	for _, o := range eb.observers {
		eng.observers = append(eng.observers, o)
	}

	tx, err := NewTransaction(eb.write, eb.store,
		WithDeletePolicy(eb.policy),
		WithTransactionLogger(lg),
		WithTransactionClock(clk),
		WithViewNotifier(eng.notifyView),
	)
	if err != nil {
		return nil, err
	}
	eng.transaction = tx

	q, err := NewLabelQuery(eb.store, lg)
	if err != nil {
		return nil, err
	}
	eng.query = q

	reg := NewRegistry(
		WithQueryTypeAttribute(eb.typeAttr),
		WithRegistryLogger(lg),
		WithRegistryMiddleware(eb.middlewares...),
	)
	reg.BindChangeEvents(tx, eb.changeEvents...)
	reg.BindQuery(QueryFindByLabel, findByLabelHandler(q))
	eng.registry = reg

	switch {
	case eb.channelInst != nil:
		eng.channel = eb.channelInst
	case eb.channelName != "":
		ch, err := NewChannel(eb.channelName, eb.channelCfg)
		if err != nil {
			return nil, err
		}
		eng.channel = ch
		eng.ownsChannel = true
	}
	eng.router = NewRecipientList(eng.channel, eb.topic, lg)

	if s, ok := eb.write.(Subscribable); ok {
		sub, err := s.Subscribe(func(ctx context.Context, e *DomainEvent) error {
			// inject logger/clock for downstream observability
			hctx := injectClock(injectLogger(ctx, lg), clk)
			eng.registry.DispatchEvent(hctx, e)
			return nil
		})
		if err != nil {
			return nil, err
		}
		eng.subs = append(eng.subs, sub)
	}

	if eng.channel != nil && eb.topic != "" {
		rsub, err := eng.channel.Subscribe(context.Background(), eb.topic, func(msg *ControlMessage) {
			hctx := injectClock(injectLogger(context.Background(), lg), clk)
			eng.router.OnControlMessage(hctx, msg)
		})
		if err != nil {
			return nil, err
		}
		eng.subs = append(eng.subs, rsub)
	}

	return eng, nil
}

// findByLabelHandler adapts the label query to the generic command contract.
func findByLabelHandler(q *LabelQuery) QueryHandler {
	return func(ctx context.Context, cmd *Command) (any, error) {
		label, _ := cmd.Spec.Get(AttrQueryLabel)
		var active *bool
		if raw, ok := cmd.Spec.Get(AttrQueryActive); ok {
			b, err := strconv.ParseBool(raw)
			if err == nil {
				active = &b
			}
		}
		return q.Find(ctx, label, active)
	}
}

// Find answers the latest view for a label, optionally narrowed by activity
// status.
func (e *Engine) Find(ctx context.Context, label string, active *bool) (*RecordVersion, error) {
	if e.closed.Load() {
		return nil, ErrEngineClosed
	}
	return e.query.Find(ctx, label, active)
}

// DispatchEvent feeds a change notification through the dispatcher
// (fire-and-forget).
func (e *Engine) DispatchEvent(ctx context.Context, ev *DomainEvent) {
	if e.closed.Load() {
		return
	}
	e.registry.DispatchEvent(ctx, ev)
}

// DispatchQuery routes a command to its bound query handler.
func (e *Engine) DispatchQuery(ctx context.Context, cmd *Command) (any, error) {
	if e.closed.Load() {
		return nil, ErrEngineClosed
	}
	return e.registry.DispatchQuery(ctx, cmd)
}

// Registry exposes the dispatcher for additional bindings.
func (e *Engine) Registry() *Registry { return e.registry }

// Router exposes the recipient list.
func (e *Engine) Router() *RecipientList { return e.router }

// AddObserver registers a view-change observer (thread-safe).
func (e *Engine) AddObserver(obs ViewObserver) {
	if obs == nil {
		return
	}
	e.observersMu.Lock()
	e.observers = append(e.observers, obs)
	e.observersMu.Unlock()
}

// RemoveObserver removes a view-change observer.
func (e *Engine) RemoveObserver(obs ViewObserver) {
	if obs == nil {
		return
	}
	e.observersMu.Lock()
	defer e.observersMu.Unlock()
	for i, o := range e.observers {
		if o == obs {
			e.observers = append(e.observers[:i], e.observers[i+1:]...)
			break
		}
	}
}

func (e *Engine) notifyView(vc ViewChange) {
	if e.closed.Load() {
		return
	}
	e.observersMu.RLock()
	if len(e.observers) == 0 {
		e.observersMu.RUnlock()
		return
	}
	observers := make([]ViewObserver, len(e.observers))
	copy(observers, e.observers)
	e.observersMu.RUnlock()

	e.pool.notify(vc, observers)
}

// EngineStats aggregates dispatcher and router telemetry.
type EngineStats struct {
	Registry         RegistryStats
	Router           RouterStats
	ObserverDrops    uint64
	ObserverDispatch uint64
}

// Stats returns a telemetry snapshot.
func (e *Engine) Stats() EngineStats {
	return EngineStats{
		Registry:         e.registry.Stats(),
		Router:           e.router.Stats(),
		ObserverDrops:    e.pool.dropped.Load(),
		ObserverDispatch: e.pool.processed.Load(),
	}
}

// Close detaches subscriptions, drains the observer pool, and closes the
// control channel when the engine owns it. Idempotent.
func (e *Engine) Close(ctx context.Context) error {
	var closeErr error
	e.closeOnce.Do(func() {
		e.closed.Store(true)

		for _, s := range e.subs {
			if err := s.Close(); err != nil {
				e.logger.Warn().Err(err).Msg("xview: subscription close failed")
				closeErr = err
			}
		}
		if err := e.pool.close(5 * time.Second); err != nil {
			e.logger.Warn().Err(err).Msg("xview: observer pool shutdown timeout")
			closeErr = err
		}
		if e.ownsChannel && e.channel != nil {
			if err := e.channel.Close(ctx); err != nil {
				e.logger.Error().Err(err).Msg("xview: control channel close failed")
				closeErr = err
			}
		}
	})
	return closeErr
}
