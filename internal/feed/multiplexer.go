package feed

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"go.uber.org/zap"

	"gigmarket/pkg/metrics"
	"gigmarket/pkg/mq"
	"gigmarket/pkg/util"
)

// Stream is one live broker subscription for a table. Consume blocks and
// returns nil when the connection dropped, mirroring the broker consumer.
type Stream interface {
	Consume(ctx context.Context, fn func(ctx context.Context, data json.RawMessage) error) error
	Close()
}

// Source dials table streams. The broker-backed implementation is AMQPSource;
// tests substitute an in-memory one.
type Source interface {
	Subscribe(table string) (Stream, error)
}

// AMQPSource dials fan-out feed consumers on the change exchange.
type AMQPSource struct {
	URL    string
	Logger *zap.Logger
}

func (s *AMQPSource) Subscribe(table string) (Stream, error) {
	c, err := mq.NewFeedConsumer(s.URL, mq.RoutingKey(table), s.Logger)
	if err != nil {
		return nil, err
	}
	return &amqpStream{consumer: c}, nil
}

type amqpStream struct {
	consumer *mq.Consumer
}

func (s *amqpStream) Consume(ctx context.Context, fn func(ctx context.Context, data json.RawMessage) error) error {
	s.consumer.SetHandler(mq.MessageHandler(fn))
	return s.consumer.StartConsuming(ctx)
}

func (s *amqpStream) Close() { s.consumer.Close() }

type subscriber struct {
	id      int64
	filter  Filter
	handler Handler
}

type tableFeed struct {
	table       string
	mu          sync.Mutex
	subscribers map[int64]*subscriber
	cancel      context.CancelFunc
	done        chan struct{}
}

// Multiplexer owns one broker stream per table and fans its events out to
// every in-process subscriber. Feeds are refcounted: the first subscriber on
// a table opens the stream, the last one tears it down.
type Multiplexer struct {
	source Source
	logger *zap.Logger

	backoffBase time.Duration
	backoffMax  time.Duration

	mu     sync.Mutex
	nextID int64
	feeds  map[string]*tableFeed
}

func NewMultiplexer(source Source, logger *zap.Logger) *Multiplexer {
	return &Multiplexer{
		source:      source,
		logger:      logger,
		backoffBase: 500 * time.Millisecond,
		backoffMax:  30 * time.Second,
		feeds:       make(map[string]*tableFeed),
	}
}

// Subscribe attaches a handler to a table's feed. The returned function
// detaches it; when the last handler on a table detaches, the underlying
// stream is closed.
func (m *Multiplexer) Subscribe(ctx context.Context, table string, filter Filter, h Handler) func() {
	m.mu.Lock()
	m.nextID++
	id := m.nextID
	f, ok := m.feeds[table]
	if !ok {
		runCtx, cancel := context.WithCancel(ctx)
		f = &tableFeed{
			table:       table,
			subscribers: make(map[int64]*subscriber),
			cancel:      cancel,
			done:        make(chan struct{}),
		}
		m.feeds[table] = f
		go m.run(runCtx, f)
	}
	m.mu.Unlock()

	f.mu.Lock()
	f.subscribers[id] = &subscriber{id: id, filter: filter, handler: h}
	f.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() { m.unsubscribe(table, id) })
	}
}

func (m *Multiplexer) unsubscribe(table string, id int64) {
	m.mu.Lock()
	f, ok := m.feeds[table]
	if !ok {
		m.mu.Unlock()
		return
	}
	f.mu.Lock()
	delete(f.subscribers, id)
	empty := len(f.subscribers) == 0
	f.mu.Unlock()
	if empty {
		delete(m.feeds, table)
	}
	m.mu.Unlock()

	if empty {
		f.cancel()
		<-f.done
	}
}

// Close tears down every feed.
func (m *Multiplexer) Close() {
	m.mu.Lock()
	feeds := make([]*tableFeed, 0, len(m.feeds))
	for table, f := range m.feeds {
		feeds = append(feeds, f)
		delete(m.feeds, table)
	}
	m.mu.Unlock()

	for _, f := range feeds {
		f.cancel()
		<-f.done
	}
}

// run keeps one table's stream alive. Each successful reconnect after a drop
// fans out OnResync before any further events, because whatever was published
// during the outage is not replayed.
func (m *Multiplexer) run(ctx context.Context, f *tableFeed) {
	// When the loop exits on its own (the subscriber's context was canceled)
	// the feed entry must not linger in the table map, or a later Subscribe
	// would attach to a stream that is no longer running.
	defer func() {
		m.mu.Lock()
		if m.feeds[f.table] == f {
			delete(m.feeds, f.table)
		}
		m.mu.Unlock()
		close(f.done)
	}()

	attempt := 0
	connectedBefore := false
	for {
		if ctx.Err() != nil {
			return
		}

		stream, err := m.source.Subscribe(f.table)
		if err != nil {
			attempt++
			m.logger.Warn("Feed subscribe failed",
				zap.String("table", f.table),
				zap.Int("attempt", attempt),
				zap.Error(err),
			)
			if err := util.SleepWithContext(ctx, util.Backoff(attempt, m.backoffBase, m.backoffMax)); err != nil {
				return
			}
			continue
		}
		attempt = 0

		if connectedBefore {
			metrics.IncrementFeedResync(f.table)
			m.logger.Info("Feed reconnected, resyncing subscribers", zap.String("table", f.table))
			m.fanOutResync(ctx, f)
		}
		connectedBefore = true

		err = stream.Consume(ctx, func(ctx context.Context, data json.RawMessage) error {
			return m.dispatch(ctx, f, data)
		})
		stream.Close()
		if ctx.Err() != nil {
			return
		}
		if err != nil {
			m.logger.Warn("Feed consume error", zap.String("table", f.table), zap.Error(err))
		}
		// nil means the connection dropped; loop reconnects and resyncs
	}
}

func (m *Multiplexer) dispatch(ctx context.Context, f *tableFeed, data json.RawMessage) error {
	var ev Event
	if err := json.Unmarshal(data, &ev); err != nil {
		m.logger.Error("Malformed feed event dropped", zap.String("table", f.table), zap.Error(err))
		return nil
	}

	// Handlers run under the feed lock, so once an unsubscribe returns the
	// detached handler can no longer be invoked. Handlers must not detach
	// themselves from inside a callback.
	start := time.Now()
	f.mu.Lock()
	for _, sub := range f.subscribers {
		if sub.filter != nil && !sub.filter(ev) {
			continue
		}
		sub.handler.OnEvent(ctx, ev)
	}
	f.mu.Unlock()
	metrics.RecordFeedConsumeLatency(f.table, time.Since(start))
	return nil
}

func (m *Multiplexer) fanOutResync(ctx context.Context, f *tableFeed) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, sub := range f.subscribers {
		sub.handler.OnResync(ctx)
	}
}
