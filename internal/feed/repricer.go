package feed

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/cypherlabdev/bet-engine-service/internal/models"
)

// Sink receives every batch of updates a market worker applies, e.g. a
// shared cache mirror. Sink failures are logged and never block repricing.
type Sink interface {
	Apply(ctx context.Context, updates []models.PriceUpdate) error
}

// RepricerConfig holds repricer configuration
type RepricerConfig struct {
	ErrorBackoff time.Duration // Pause after a failed feed read, e.g. 500 * time.Millisecond
}

// Repricer consumes a feed and maintains the quote book. Each market gets its
// own cancellable worker; workers coalesce bursts to the latest update per
// selection, so a slow market never stalls the feed or other markets.
type Repricer struct {
	book    *QuoteBook
	sink    Sink
	backoff time.Duration
	logger  zerolog.Logger

	// OnUpdate is called for every update read from the feed
	OnUpdate func()

	mu      sync.Mutex
	workers map[string]*marketWorker
	wg      sync.WaitGroup
}

type marketWorker struct {
	marketID string
	cancel   context.CancelFunc
	notify   chan struct{}

	mu      sync.Mutex
	pending map[string]models.PriceUpdate
}

// NewRepricer creates a repricer writing to book and, when non-nil, sink.
func NewRepricer(config RepricerConfig, book *QuoteBook, sink Sink, logger zerolog.Logger) *Repricer {
	if config.ErrorBackoff <= 0 {
		config.ErrorBackoff = 500 * time.Millisecond
	}
	return &Repricer{
		book:    book,
		sink:    sink,
		backoff: config.ErrorBackoff,
		logger:  logger.With().Str("component", "repricer").Logger(),
		workers: make(map[string]*marketWorker),
	}
}

// Run reads the feed until ctx is done or the feed is exhausted, then stops
// all market workers and waits for them.
func (r *Repricer) Run(ctx context.Context, f Feed) error {
	r.logger.Info().Msg("started repricing")
	defer r.shutdown()

	for {
		u, err := f.Next(ctx)
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, context.Canceled) {
				r.logger.Info().Msg("stopping repricer")
				return nil
			}
			if errors.Is(err, ErrExhausted) {
				r.logger.Info().Msg("feed exhausted")
				return nil
			}
			r.logger.Error().Err(err).Msg("failed to read price update")
			select {
			case <-ctx.Done():
				return nil
			case <-time.After(r.backoff):
			}
			continue
		}

		if r.OnUpdate != nil {
			r.OnUpdate()
		}
		r.dispatch(ctx, u)
	}
}

func (r *Repricer) dispatch(ctx context.Context, u models.PriceUpdate) {
	if u.SelectionID == "" || u.MarketID == "" {
		r.logger.Warn().Str("selection_id", u.SelectionID).Msg("dropping price update without ids")
		return
	}

	// r.mu before the book lock; StopMarket halts under r.mu too, so a
	// stopped market never gets a fresh worker.
	r.mu.Lock()
	if r.book.Halted(u.MarketID) {
		r.mu.Unlock()
		return
	}
	w, ok := r.workers[u.MarketID]
	if !ok {
		w = r.startWorker(ctx, u.MarketID)
	}
	r.mu.Unlock()

	w.offer(u)
}

// startWorker must be called with r.mu held.
func (r *Repricer) startWorker(ctx context.Context, marketID string) *marketWorker {
	wctx, cancel := context.WithCancel(ctx)
	w := &marketWorker{
		marketID: marketID,
		cancel:   cancel,
		notify:   make(chan struct{}, 1),
		pending:  make(map[string]models.PriceUpdate),
	}
	r.workers[marketID] = w

	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		r.runWorker(wctx, w)
	}()

	r.logger.Debug().Str("market_id", marketID).Msg("started market worker")
	return w
}

func (r *Repricer) runWorker(ctx context.Context, w *marketWorker) {
	for {
		select {
		case <-ctx.Done():
			// Flush what was already accepted; halted markets reject it in the book.
			flushCtx, cancel := context.WithTimeout(context.Background(), 500*time.Millisecond)
			r.applyPending(flushCtx, w)
			cancel()
			return
		case <-w.notify:
			r.applyPending(ctx, w)
		}
	}
}

func (r *Repricer) applyPending(ctx context.Context, w *marketWorker) {
	batch := w.drain()
	applied := make([]models.PriceUpdate, 0, len(batch))
	for _, u := range batch {
		if r.book.Apply(u) {
			applied = append(applied, u)
		}
	}
	if r.sink != nil && len(applied) > 0 {
		if err := r.sink.Apply(ctx, applied); err != nil {
			r.logger.Warn().Err(err).Str("market_id", w.marketID).Msg("failed to mirror quotes")
		}
	}
}

func (w *marketWorker) offer(u models.PriceUpdate) {
	w.mu.Lock()
	if prev, ok := w.pending[u.SelectionID]; !ok || !u.Timestamp.Before(prev.Timestamp) {
		w.pending[u.SelectionID] = u
	}
	w.mu.Unlock()

	select {
	case w.notify <- struct{}{}:
	default:
	}
}

func (w *marketWorker) drain() []models.PriceUpdate {
	w.mu.Lock()
	defer w.mu.Unlock()
	batch := make([]models.PriceUpdate, 0, len(w.pending))
	for _, u := range w.pending {
		batch = append(batch, u)
	}
	w.pending = make(map[string]models.PriceUpdate)
	return batch
}

// StopMarket cancels a market's repricing. Its quotes become unquotable at
// once; a cash-out that already read a quote completes with it.
func (r *Repricer) StopMarket(ctx context.Context, marketID string) {
	r.mu.Lock()
	ids := r.book.HaltMarket(marketID)
	if w, ok := r.workers[marketID]; ok {
		w.cancel()
		delete(r.workers, marketID)
	}
	r.mu.Unlock()

	if r.sink != nil && len(ids) > 0 {
		now := time.Now().UTC()
		updates := make([]models.PriceUpdate, len(ids))
		for i, id := range ids {
			updates[i] = models.PriceUpdate{SelectionID: id, MarketID: marketID, Timestamp: now, Suspended: true}
		}
		if err := r.sink.Apply(ctx, updates); err != nil {
			r.logger.Warn().Err(err).Str("market_id", marketID).Msg("failed to mirror market stop")
		}
	}

	r.logger.Info().Str("market_id", marketID).Int("selections", len(ids)).Msg("stopped market repricing")
}

// ResumeMarket lets a stopped market be repriced by later feed updates.
func (r *Repricer) ResumeMarket(marketID string) {
	r.book.ResumeMarket(marketID)
	r.logger.Info().Str("market_id", marketID).Msg("resumed market repricing")
}

// Markets returns the number of running market workers.
func (r *Repricer) Markets() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.workers)
}

func (r *Repricer) shutdown() {
	r.mu.Lock()
	for id, w := range r.workers {
		w.cancel()
		delete(r.workers, id)
	}
	r.mu.Unlock()
	r.wg.Wait()
}
