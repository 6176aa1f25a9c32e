// Package dedupe coalesces concurrent executions of a named operation.
// Square delivers webhooks at-least-once and frequently in rapid-fire
// duplicates; a Group guarantees at most one in-flight execution per key and
// retains the result for a TTL so near-duplicate deliveries that land after
// the first completes are absorbed instead of re-run.
package dedupe

import (
	"context"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
)

const DefaultTTL = 120 * time.Second

type Options struct {
	// TTL is the minimum lifetime of an entry measured from registration.
	TTL time.Duration
	// LogDuplicates emits a log line whenever a caller is coalesced onto an
	// existing entry, for operational visibility.
	LogDuplicates bool
}

type entry struct {
	done      chan struct{}
	val       any
	err       error
	createdAt time.Time
}

type Group struct {
	mu      sync.Mutex
	entries map[string]*entry
	ttl     time.Duration
	logDup  bool
	log     *zap.Logger
}

func New(log *zap.Logger, opts Options) *Group {
	ttl := opts.TTL
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Group{
		entries: make(map[string]*entry),
		ttl:     ttl,
		logDup:  opts.LogDuplicates,
		log:     log.Named("dedupe"),
	}
}

// Key composes a namespace, resource ID and operation tag into a collision
// resistant key, e.g. Key("payment", id, "webhook") -> "payment:<id>:webhook".
func Key(parts ...string) string {
	return strings.Join(parts, ":")
}

// Do runs fn under key. The first caller executes fn; concurrent callers for
// the same key wait for and share that execution's result instead of starting
// a second one. The shared return is true for coalesced callers. Failure of
// fn propagates to every waiter, and the entry is evicted once it has lived
// at least the TTL so retries after a genuine failure are not blocked
// forever.
func (g *Group) Do(ctx context.Context, key string, fn func(ctx context.Context) (any, error)) (any, bool, error) {
	g.mu.Lock()
	if e, ok := g.entries[key]; ok {
		g.mu.Unlock()
		if g.logDup {
			g.log.Info("duplicate operation suppressed", zap.String("key", key))
		}
		select {
		case <-e.done:
			return e.val, true, e.err
		case <-ctx.Done():
			return nil, true, ctx.Err()
		}
	}

	e := &entry{
		done:      make(chan struct{}),
		createdAt: time.Now(),
	}
	g.entries[key] = e
	g.mu.Unlock()

	e.val, e.err = fn(ctx)
	close(e.done)
	g.scheduleEviction(key, e)
	return e.val, false, e.err
}

// InFlight reports whether an entry is currently registered under key.
func (g *Group) InFlight(key string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	_, ok := g.entries[key]
	return ok
}

func (g *Group) scheduleEviction(key string, e *entry) {
	remaining := g.ttl - time.Since(e.createdAt)
	if remaining <= 0 {
		g.evict(key, e)
		return
	}
	time.AfterFunc(remaining, func() { g.evict(key, e) })
}

func (g *Group) evict(key string, e *entry) {
	g.mu.Lock()
	if cur, ok := g.entries[key]; ok && cur == e {
		delete(g.entries, key)
	}
	g.mu.Unlock()
}
