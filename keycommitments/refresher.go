package keycommitments

import (
	"context"
	"errors"
	"math/rand"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/privatestate/attribution-go/protocol"
)

const (
	RefreshInterval          = time.Hour
	RefreshRetryInterval     = 10 * time.Second
	RefreshMaxBackoff        = 15 * time.Minute
	RefreshBackoffMultiplier = 2.0
	RefreshJitterFactor      = 0.3
)

// Fetcher retrieves a raw commitment document. *api.Client implements it.
type Fetcher interface {
	GetKeyCommitments(ctx context.Context) ([]byte, error)
}

// Refresher keeps a Store current by polling a Fetcher. Successful fetches
// are merged into the store and, when a DiskCache is configured, saved.
// Failures back off exponentially and leave the store untouched.
type Refresher struct {
	fetcher   Fetcher
	store     *Store
	cache     *DiskCache
	interval  time.Duration
	retry     time.Duration
	supported func(protocol.Version) bool
	logger    *zap.Logger
	now       func() time.Time

	mu       sync.Mutex
	cancel   context.CancelFunc
	done     chan struct{}
	failures int

	// owned holds the origins the fetcher has supplied. Only these are
	// removed when a later document leaves them out.
	ownedMu sync.Mutex
	owned   map[string]struct{}
}

// RefresherOption configures a Refresher.
type RefresherOption func(*Refresher)

// WithRefreshInterval sets the wait between successful fetches.
// Default: 1 hour.
func WithRefreshInterval(d time.Duration) RefresherOption {
	return func(r *Refresher) {
		r.interval = d
	}
}

// WithRetryInterval sets the first wait after a failed fetch. Later
// failures double it up to RefreshMaxBackoff. Default: 10 seconds.
func WithRetryInterval(d time.Duration) RefresherOption {
	return func(r *Refresher) {
		r.retry = d
	}
}

// WithDiskCache persists every successful fetch to c and seeds an empty
// store from it on Start.
func WithDiskCache(c *DiskCache) RefresherOption {
	return func(r *Refresher) {
		r.cache = c
	}
}

// WithSupportedVersions restricts parsed commitments to versions for which
// supported returns true.
func WithSupportedVersions(supported func(protocol.Version) bool) RefresherOption {
	return func(r *Refresher) {
		r.supported = supported
	}
}

// WithRefresherLogger sets the logger.
func WithRefresherLogger(l *zap.Logger) RefresherOption {
	return func(r *Refresher) {
		r.logger = l
	}
}

// NewRefresher creates a refresher that writes into store.
func NewRefresher(f Fetcher, store *Store, opts ...RefresherOption) *Refresher {
	r := &Refresher{
		fetcher:  f,
		store:    store,
		interval: RefreshInterval,
		retry:    RefreshRetryInterval,
		logger:   zap.NewNop(),
		now:      time.Now,
		owned:    map[string]struct{}{},
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Refresh fetches once and merges the result into the store. Issuers that
// an earlier fetch supplied but this document no longer has usable keys
// for are removed; entries added to the store by other means are kept.
func (r *Refresher) Refresh(ctx context.Context) error {
	data, err := r.fetcher.GetKeyCommitments(ctx)
	if err != nil {
		return err
	}
	snap, err := Parse(data, ParseOptions{Now: r.now(), Supported: r.supported})
	if err != nil {
		return err
	}
	withdrawn := r.adopt(snap, true)
	if len(withdrawn) > 0 {
		r.logger.Info("key commitments withdrawn", zap.Strings("issuers", withdrawn))
	}
	r.logger.Info("key commitments refreshed", zap.Strings("issuers", snap.Issuers()))

	if r.cache != nil {
		if err := r.cache.Save(r.store.Snapshot()); err != nil {
			r.logger.Warn("failed to persist key commitments", zap.Error(err))
		}
	}
	return nil
}

// Seed merges snap, typically loaded from a DiskCache, into the store.
// Its issuers are treated as fetched, so a later Refresh that omits them
// removes them.
func (r *Refresher) Seed(snap *Snapshot) {
	r.adopt(snap, false)
}

// adopt applies snap to the store and records its issuers as owned. With
// prune set, owned issuers missing from snap are dropped and returned.
func (r *Refresher) adopt(snap *Snapshot, prune bool) []string {
	r.ownedMu.Lock()
	defer r.ownedMu.Unlock()

	var withdrawn []string
	if prune {
		for origin := range r.owned {
			if _, ok := snap.Get(origin); !ok {
				withdrawn = append(withdrawn, origin)
				delete(r.owned, origin)
			}
		}
		sort.Strings(withdrawn)
	}
	for _, origin := range snap.Issuers() {
		r.owned[origin] = struct{}{}
	}
	r.store.Apply(snap, withdrawn)
	return withdrawn
}

// Start seeds the store from the disk cache when it is empty, then polls
// in the background until ctx is done or Stop is called.
func (r *Refresher) Start(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.done != nil {
		return errors.New("refresher already started")
	}

	if r.cache != nil && r.store.Snapshot().Len() == 0 {
		snap, err := r.cache.Load(r.now())
		switch {
		case err == nil:
			r.Seed(snap)
			r.logger.Info("key commitments loaded from cache", zap.Int("issuers", snap.Len()))
		case errors.Is(err, ErrCacheEmpty):
		default:
			r.logger.Warn("failed to load key commitment cache", zap.Error(err))
		}
	}

	ctx, r.cancel = context.WithCancel(ctx)
	r.done = make(chan struct{})
	go r.loop(ctx, r.done)
	return nil
}

// Stop cancels polling and waits for the loop to exit.
func (r *Refresher) Stop() {
	r.mu.Lock()
	cancel, done := r.cancel, r.done
	r.mu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	<-done
}

func (r *Refresher) loop(ctx context.Context, done chan struct{}) {
	defer close(done)
	for {
		wait := r.interval
		if err := r.Refresh(ctx); err != nil {
			if ctx.Err() != nil {
				return
			}
			r.failures++
			wait = r.backoff()
			r.logger.Warn("key commitment refresh failed",
				zap.Error(err),
				zap.Int("failures", r.failures),
				zap.Duration("retry_in", wait))
		} else {
			r.failures = 0
		}

		select {
		case <-ctx.Done():
			return
		case <-time.After(jitter(wait)):
		}
	}
}

func (r *Refresher) backoff() time.Duration {
	wait := r.retry
	for i := 1; i < r.failures; i++ {
		wait = time.Duration(float64(wait) * RefreshBackoffMultiplier)
		if wait >= RefreshMaxBackoff {
			return RefreshMaxBackoff
		}
	}
	return wait
}

func jitter(d time.Duration) time.Duration {
	return d + time.Duration(rand.Float64()*RefreshJitterFactor*float64(d))
}
