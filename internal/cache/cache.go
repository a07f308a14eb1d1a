// Package cache memoizes function results in a key-value store with a TTL.
//
// The store is best-effort: when it is missing or failing, wrapped functions
// are simply called every time.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"reflect"
	"runtime"
	"strings"
	"time"

	"github.com/charmbracelet/log"
	"github.com/jonboulle/clockwork"

	"github.com/i474232898/fieldwork-weather-planner/internal/metrics"
)

// DefaultTTL applies when a wrap does not set WithTTL.
const DefaultTTL = time.Hour

const keyPrefix = "lc:"

// ErrMiss is returned by a Store when the key does not exist.
var ErrMiss = errors.New("cache: miss")

// Store is the persistence behind a Cache.
type Store interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
}

// Purger is implemented by stores that can drop expired entries in bulk.
type Purger interface {
	Purge(ctx context.Context, now time.Time) (int, error)
}

// entry is the persisted envelope.
type entry struct {
	Value    json.RawMessage `json:"value"`
	ExpireAt int64           `json:"expireAt"` // epoch millis
	V        any             `json:"v"`
}

// Cache is an explicit, injectable memoization layer.
type Cache struct {
	store   Store
	clock   clockwork.Clock
	logger  *log.Logger
	metrics *metrics.Metrics
}

// CacheOption configures a Cache.
type CacheOption func(*Cache)

func WithClock(clock clockwork.Clock) CacheOption {
	return func(c *Cache) { c.clock = clock }
}

func WithLogger(logger *log.Logger) CacheOption {
	return func(c *Cache) { c.logger = logger }
}

func WithMetrics(m *metrics.Metrics) CacheOption {
	return func(c *Cache) { c.metrics = m }
}

// New creates a Cache on top of store. A nil store makes every wrapped call a pass-through.
func New(store Store, opts ...CacheOption) *Cache {
	c := &Cache{
		store:  store,
		clock:  clockwork.NewRealClock(),
		logger: log.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Store returns the underlying store, which may be nil.
func (c *Cache) Store() Store {
	return c.store
}

type options struct {
	name      string
	ttl       time.Duration
	namespace string
	version   any
	keyFn     func(args []any) string
}

// Option configures a single wrapped function.
type Option func(*options)

func WithTTL(ttl time.Duration) Option {
	return func(o *options) { o.ttl = ttl }
}

func WithNamespace(ns string) Option {
	return func(o *options) { o.namespace = ns }
}

// WithVersion appends ":v<version>" to every key so a bump invalidates old entries.
func WithVersion(v any) Option {
	return func(o *options) { o.version = v }
}

// WithKeyFunc replaces the default "name(args)" base key.
func WithKeyFunc(fn func(args []any) string) Option {
	return func(o *options) { o.keyFn = fn }
}

func newOptions(name string, fn any, opts []Option) options {
	o := options{name: name, ttl: DefaultTTL}
	for _, opt := range opts {
		opt(&o)
	}
	if o.name == "" {
		o.name = funcName(fn)
	}
	return o
}

func (o options) key(args []any) string {
	var b strings.Builder
	b.WriteString(keyPrefix)
	if o.namespace != "" {
		b.WriteString(o.namespace)
		b.WriteByte(':')
	}
	if o.keyFn != nil {
		b.WriteString(o.keyFn(args))
	} else {
		b.WriteString(o.name)
		b.WriteByte('(')
		b.WriteString(serializeArgs(args))
		b.WriteByte(')')
	}
	if v := versionString(o.version); v != "" {
		b.WriteString(":v")
		b.WriteString(v)
	}
	return b.String()
}

func (o options) label() string {
	if o.namespace != "" {
		return o.namespace
	}
	return o.name
}

// Wrap memoizes a one-argument function.
func Wrap[A, R any](c *Cache, name string, fn func(context.Context, A) (R, error), opts ...Option) func(context.Context, A) (R, error) {
	if c == nil {
		return fn
	}
	o := newOptions(name, fn, opts)
	return func(ctx context.Context, a A) (R, error) {
		return memoize(ctx, c, o, o.key([]any{a}), func() (R, error) {
			return fn(ctx, a)
		})
	}
}

// Wrap3 memoizes a three-argument function.
func Wrap3[A, B, C, R any](c *Cache, name string, fn func(context.Context, A, B, C) (R, error), opts ...Option) func(context.Context, A, B, C) (R, error) {
	if c == nil {
		return fn
	}
	o := newOptions(name, fn, opts)
	return func(ctx context.Context, a A, b B, cc C) (R, error) {
		return memoize(ctx, c, o, o.key([]any{a, b, cc}), func() (R, error) {
			return fn(ctx, a, b, cc)
		})
	}
}

func memoize[R any](ctx context.Context, c *Cache, o options, key string, call func() (R, error)) (R, error) {
	if raw, ok := c.read(ctx, o, key); ok {
		var value R
		if err := json.Unmarshal(raw, &value); err == nil {
			return value, nil
		}
		c.metrics.CacheLookup(o.label(), "corrupt")
		c.logger.Debug("cache: dropping undecodable value", "key", key)
		c.remove(ctx, key)
	}

	value, err := call()
	if err != nil {
		return value, err
	}
	c.write(ctx, o, key, value)
	return value, nil
}

// read returns the stored value for key when present and fresh.
func (c *Cache) read(ctx context.Context, o options, key string) (json.RawMessage, bool) {
	if c.store == nil {
		c.metrics.CacheLookup(o.label(), "bypass")
		return nil, false
	}

	data, err := c.store.Get(ctx, key)
	if errors.Is(err, ErrMiss) {
		c.metrics.CacheLookup(o.label(), "miss")
		return nil, false
	}
	if err != nil {
		c.metrics.CacheLookup(o.label(), "bypass")
		c.logger.Debug("cache: store read failed", "key", key, "err", err)
		return nil, false
	}

	var e entry
	if err := json.Unmarshal(data, &e); err != nil || e.Value == nil {
		c.metrics.CacheLookup(o.label(), "corrupt")
		c.logger.Debug("cache: dropping corrupt entry", "key", key)
		c.remove(ctx, key)
		return nil, false
	}

	if c.clock.Now().UnixMilli() >= e.ExpireAt {
		c.metrics.CacheLookup(o.label(), "expired")
		c.remove(ctx, key)
		return nil, false
	}

	c.metrics.CacheLookup(o.label(), "hit")
	return e.Value, true
}

func (c *Cache) write(ctx context.Context, o options, key string, value any) {
	if c.store == nil {
		return
	}
	raw, err := json.Marshal(value)
	if err != nil {
		c.logger.Debug("cache: value not serializable", "key", key, "err", err)
		return
	}
	data, err := json.Marshal(entry{
		Value:    raw,
		ExpireAt: c.clock.Now().Add(o.ttl).UnixMilli(),
		V:        o.version,
	})
	if err != nil {
		return
	}
	if err := c.store.Set(ctx, key, data, o.ttl); err != nil {
		c.logger.Debug("cache: store write failed", "key", key, "err", err)
	}
}

func (c *Cache) remove(ctx context.Context, key string) {
	if err := c.store.Delete(ctx, key); err != nil {
		c.logger.Debug("cache: store delete failed", "key", key, "err", err)
	}
}

// serializeArgs renders args as a JSON array with function values replaced by null.
// Arguments JSON cannot encode fall back to plain fmt concatenation.
func serializeArgs(args []any) string {
	cleaned := make([]any, len(args))
	for i, a := range args {
		if a != nil && reflect.TypeOf(a).Kind() == reflect.Func {
			continue
		}
		cleaned[i] = a
	}
	if b, err := json.Marshal(cleaned); err == nil {
		return string(b)
	}
	parts := make([]string, len(cleaned))
	for i, a := range cleaned {
		parts[i] = fmt.Sprint(a)
	}
	return strings.Join(parts, ",")
}

func versionString(v any) string {
	if v == nil {
		return ""
	}
	return fmt.Sprint(v)
}

func funcName(fn any) string {
	v := reflect.ValueOf(fn)
	if v.Kind() != reflect.Func || v.IsNil() {
		return "anonymous"
	}
	f := runtime.FuncForPC(v.Pointer())
	if f == nil {
		return "anonymous"
	}
	name := f.Name()
	if i := strings.LastIndex(name, "/"); i >= 0 {
		name = name[i+1:]
	}
	return name
}
