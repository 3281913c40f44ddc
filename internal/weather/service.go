package weather

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/singleflight"
)

// ErrClosed is returned by Resolve once the service has been closed.
var ErrClosed = errors.New("forecast engine is closed")

const (
	clearTimeout   = 30 * time.Second
	publishTimeout = 10 * time.Second
)

// Stats is a snapshot of the service counters.
type Stats struct {
	Hits    uint64 `json:"hits"`
	Misses  uint64 `json:"misses"`
	FanOuts uint64 `json:"fanOuts"`
	Clears  uint64 `json:"clears"`
}

// Option configures a Service.
type Option func(*Service)

// WithLogger sets the logger used by the service.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithInvalidation attaches the schedule that clears the cache.
func WithInvalidation(inv Invalidation) Option {
	return func(s *Service) { s.invalidation = inv }
}

// WithPublisher attaches a sink for freshly merged forecasts.
func WithPublisher(p Publisher) Option {
	return func(s *Service) { s.publisher = p }
}

// WithCoalescing controls whether concurrent misses for the same query share one fan-out.
func WithCoalescing(enabled bool) Option {
	return func(s *Service) { s.coalesce = enabled }
}

// Service resolves forecasts by fanning out to every provider and caching the merged result.
type Service struct {
	cache        Cache
	providers    []Provider
	logger       *slog.Logger
	invalidation Invalidation
	publisher    Publisher
	coalesce     bool

	// ctx outlives individual callers; it ends only when the service is closed.
	ctx    context.Context
	cancel context.CancelFunc

	group singleflight.Group

	mu       sync.Mutex
	closed   atomic.Bool
	inflight sync.WaitGroup

	startOnce sync.Once
	closeOnce sync.Once

	hits    atomic.Uint64
	misses  atomic.Uint64
	fanOuts atomic.Uint64
	clears  atomic.Uint64
}

// NewService creates a new Service. Providers are shared read-only handles.
func NewService(cache Cache, providers []Provider, opts ...Option) *Service {
	ctx, cancel := context.WithCancel(context.Background())
	s := &Service{
		cache:     cache,
		providers: append([]Provider(nil), providers...),
		logger:    slog.Default(),
		coalesce:  true,
		ctx:       ctx,
		cancel:    cancel,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Start arms the cache invalidation schedule, if one is attached.
func (s *Service) Start() error {
	if s.invalidation == nil {
		return nil
	}
	var err error
	s.startOnce.Do(func() {
		err = s.invalidation.Start(s.clear)
	})
	return err
}

// Close stops the invalidation schedule and waits for in-flight resolutions.
// Resolutions still running are cancelled and report ErrClosed.
func (s *Service) Close() {
	s.closeOnce.Do(func() {
		s.mu.Lock()
		s.closed.Store(true)
		s.mu.Unlock()

		if s.invalidation != nil {
			s.invalidation.Stop()
		}
		s.cancel()
		s.inflight.Wait()
	})
}

// Resolve returns the per-day forecast for q.
//
// Provider failures never surface here; if every provider fails the result is an
// empty series. The only errors are ErrClosed and ctx.Err() when the caller stops
// waiting. In the latter case the resolution keeps running and its result is cached.
func (s *Service) Resolve(ctx context.Context, q Query) (ForecastSeries, error) {
	if s.closed.Load() {
		return nil, ErrClosed
	}

	series, ok, err := s.cache.Get(ctx, q)
	switch {
	case err != nil:
		s.logger.Error("forecast cache lookup failed; resolving from providers", "query", q.Key(), "error", err)
	case ok:
		s.hits.Add(1)
		s.logger.Debug("forecast cache hit", "query", q.Key(), "days", len(series))
		return series, nil
	}

	s.misses.Add(1)
	s.logger.Debug("forecast cache miss", "query", q.Key())

	select {
	case res := <-s.dispatch(q):
		if res.Err != nil {
			return nil, res.Err
		}
		series, _ := res.Val.(ForecastSeries)
		return series, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Stats returns the current counters.
func (s *Service) Stats() Stats {
	return Stats{
		Hits:    s.hits.Load(),
		Misses:  s.misses.Load(),
		FanOuts: s.fanOuts.Load(),
		Clears:  s.clears.Load(),
	}
}

// dispatch starts a detached resolution of q and returns where its result will arrive.
func (s *Service) dispatch(q Query) <-chan singleflight.Result {
	if s.coalesce {
		return s.group.DoChan(flightKey(q), func() (interface{}, error) {
			if !s.track() {
				return nil, ErrClosed
			}
			defer s.inflight.Done()
			return s.resolveMiss(q)
		})
	}

	ch := make(chan singleflight.Result, 1)
	if !s.track() {
		ch <- singleflight.Result{Err: ErrClosed}
		return ch
	}
	go func() {
		defer s.inflight.Done()
		series, err := s.resolveMiss(q)
		ch <- singleflight.Result{Val: series, Err: err}
	}()
	return ch
}

// track registers one unit of background work unless the service is closed.
func (s *Service) track() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed.Load() {
		return false
	}
	s.inflight.Add(1)
	return true
}

func (s *Service) resolveMiss(q Query) (ForecastSeries, error) {
	s.fanOuts.Add(1)

	points, failed := s.fanOut(s.ctx, q)
	if s.ctx.Err() != nil {
		return nil, ErrClosed
	}

	series := MergeDaily(points)

	if err := s.cache.Put(s.ctx, q, series); err != nil {
		s.logger.Error("failed to cache forecast", "query", q.Key(), "error", err)
	}

	s.logger.Info("forecast resolved",
		"query", q.Key(),
		"providers", len(s.providers),
		"failed", failed,
		"points", len(points),
		"days", len(series),
	)

	if s.publisher != nil && s.track() {
		go func() {
			defer s.inflight.Done()
			s.publish(q, series)
		}()
	}

	return series, nil
}

type fetchResult struct {
	points []RawPoint
	err    error
}

// fanOut queries every provider concurrently and waits for all of them.
// Failed providers are logged and contribute nothing.
func (s *Service) fanOut(ctx context.Context, q Query) ([]RawPoint, int) {
	results := make([]fetchResult, len(s.providers))

	var wg sync.WaitGroup
	for i, p := range s.providers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			results[i] = fetchFrom(ctx, p, q)
		}()
	}
	wg.Wait()

	var (
		points []RawPoint
		failed int
	)
	for i, r := range results {
		if r.err != nil {
			failed++
			s.logger.Warn("provider fetch failed", "provider", s.providers[i].Name(), "query", q.Key(), "error", r.err)
			continue
		}
		points = append(points, r.points...)
	}
	return points, failed
}

func fetchFrom(ctx context.Context, p Provider, q Query) (res fetchResult) {
	defer func() {
		if v := recover(); v != nil {
			res = fetchResult{err: fmt.Errorf("provider panicked: %v", v)}
		}
	}()
	points, err := p.Fetch(ctx, q)
	return fetchResult{points: points, err: err}
}

func (s *Service) clear() {
	ctx, cancel := context.WithTimeout(s.ctx, clearTimeout)
	defer cancel()

	removed, err := s.cache.Clear(ctx)
	if err != nil {
		s.logger.Error("failed to clear forecast cache", "error", err)
		return
	}
	s.clears.Add(1)
	s.logger.Info("forecast cache cleared", "removed", removed)
}

func (s *Service) publish(q Query, series ForecastSeries) {
	ctx, cancel := context.WithTimeout(s.ctx, publishTimeout)
	defer cancel()

	if err := s.publisher.Publish(ctx, q, series); err != nil {
		s.logger.Warn("failed to publish forecast", "query", q.Key(), "error", err)
	}
}

// flightKey is the singleflight key for q; quoting keeps ("a/b","c") and ("a","b/c") apart.
func flightKey(q Query) string {
	return strconv.Quote(q.Country) + "|" + strconv.Quote(q.City)
}
