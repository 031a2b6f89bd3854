package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// ErrCorrupt is wrapped when a stored collection blob cannot be decoded.
var ErrCorrupt = errors.New("corrupt stored value")

// ErrUnknownBackend is returned by Open for an unsupported backend name.
var ErrUnknownBackend = errors.New("unknown store backend")

// KV is the durable key-value resource every collection is written to.
// Values are opaque text blobs; a missing key is reported with ok=false.
type KV interface {
	Get(ctx context.Context, key string) (value []byte, ok bool, err error)
	Set(ctx context.Context, key string, value []byte) error
	Delete(ctx context.Context, key string) error
	Ping(ctx context.Context) error
	Close() error
}

// Store binds a KV backend to a namespace. Every collection, the
// initialization marker and the session value live under "<namespace>_<name>".
type Store struct {
	kv        KV
	namespace string
	backend   string
}

// New wraps an already opened backend.
func New(kv KV, namespace string) *Store {
	if namespace == "" {
		namespace = DefaultNamespace
	}
	return &Store{kv: kv, namespace: namespace, backend: "custom"}
}

// DefaultNamespace prefixes keys when none is configured.
const DefaultNamespace = "nriit"

// Options selects and configures a backend for Open.
type Options struct {
	Backend     string // memory, badger, redis, postgres, sqlite
	Namespace   string
	BadgerPath  string
	SQLitePath  string
	DatabaseURL string
	RedisAddr   string
	RedisClient *redis.Client // reused instead of dialling RedisAddr when set
	Logger      *zap.Logger
}

// Open connects the configured backend and returns a namespaced handle.
func Open(ctx context.Context, opts Options) (*Store, error) {
	log := opts.Logger
	if log == nil {
		log = zap.NewNop()
	}

	var (
		kv  KV
		err error
	)
	backend := strings.ToLower(opts.Backend)
	switch backend {
	case "memory":
		kv = NewMemory()
	case "", "badger":
		backend = "badger"
		kv, err = NewBadger(opts.BadgerPath)
	case "redis":
		var r *Redis
		if opts.RedisClient != nil {
			r = NewRedisWithClient(opts.RedisClient)
		} else {
			r = NewRedis(opts.RedisAddr)
		}
		if perr := r.Ping(ctx); perr != nil {
			_ = r.Close()
			return nil, fmt.Errorf("redis ping: %w", perr)
		}
		kv = r
	case "postgres":
		var db *DB
		db, err = NewDB(ctx, opts.DatabaseURL)
		if err == nil {
			err = db.EnsureSchema(ctx)
		}
		if err != nil && db != nil {
			_ = db.Close()
		}
		kv = db
	case "sqlite":
		kv, err = NewSQLite(opts.SQLitePath)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownBackend, opts.Backend)
	}
	if err != nil {
		return nil, fmt.Errorf("open %s store: %w", backend, err)
	}

	s := New(kv, opts.Namespace)
	s.backend = backend
	log.Info("store opened", zap.String("backend", backend), zap.String("namespace", s.namespace))
	return s, nil
}

// Namespace returns the key prefix.
func (s *Store) Namespace() string { return s.namespace }

// Backend names the underlying KV implementation.
func (s *Store) Backend() string { return s.backend }

// Key returns the fully qualified key for a collection or value name.
func (s *Store) Key(name string) string { return s.namespace + "_" + name }

// Read returns the records of a collection in stored order, or an empty slice
// when nothing has been written yet.
func (s *Store) Read(ctx context.Context, collection string) ([]json.RawMessage, error) {
	key := s.Key(collection)
	data, ok, err := s.kv.Get(ctx, key)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", key, err)
	}
	if !ok || len(data) == 0 {
		return []json.RawMessage{}, nil
	}
	var records []json.RawMessage
	if err := json.Unmarshal(data, &records); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrCorrupt, key, err)
	}
	if records == nil {
		records = []json.RawMessage{}
	}
	return records, nil
}

// Write replaces the whole collection with records, serialized as one blob.
func (s *Store) Write(ctx context.Context, collection string, records []json.RawMessage) error {
	if records == nil {
		records = []json.RawMessage{}
	}
	data, err := json.Marshal(records)
	if err != nil {
		return fmt.Errorf("encode %s: %w", collection, err)
	}
	key := s.Key(collection)
	if err := s.kv.Set(ctx, key, data); err != nil {
		return fmt.Errorf("write %s: %w", key, err)
	}
	return nil
}

// Get reads a single raw value such as the initialization marker.
func (s *Store) Get(ctx context.Context, name string) ([]byte, bool, error) {
	return s.kv.Get(ctx, s.Key(name))
}

// Set stores a single raw value.
func (s *Store) Set(ctx context.Context, name string, value []byte) error {
	return s.kv.Set(ctx, s.Key(name), value)
}

// Remove deletes a value or a whole collection. Removing a missing key is not an error.
func (s *Store) Remove(ctx context.Context, name string) error {
	return s.kv.Delete(ctx, s.Key(name))
}

// Ping verifies the backend is reachable.
func (s *Store) Ping(ctx context.Context) error {
	return s.kv.Ping(ctx)
}

// Close releases the backend.
func (s *Store) Close() error {
	if s == nil || s.kv == nil {
		return nil
	}
	return s.kv.Close()
}
