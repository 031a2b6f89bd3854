// Package collection implements typed CRUD over one named list of records held
// in a store.Store. Every successful mutation is reported to an Auditor.
package collection

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"campusportal/internal/metrics"
	"campusportal/internal/store"
)

// Auditor receives one entry per successful mutation.
type Auditor interface {
	Record(ctx context.Context, action, details string) error
}

// Config describes how records of type T are identified and stored.
type Config[T any] struct {
	// Name is the stored collection name, e.g. "classes".
	Name string
	// Label names the collection in audit actions, e.g. "Classes".
	Label string
	// IDField is the json name of the identifier, e.g. "class_id".
	IDField string
	ID      func(T) string
	SetID   func(*T, string)
	// Validate is optional and runs on added records and merged updates.
	Validate func(T) error
}

type options struct {
	auditor Auditor
	newID   func() string
	log     *zap.Logger
}

// Option customises a Collection.
type Option func(*options)

// WithAuditor reports mutations to a. Without one, mutations are not audited.
func WithAuditor(a Auditor) Option { return func(o *options) { o.auditor = a } }

// WithIDFunc replaces the identifier generator (uuid by default).
func WithIDFunc(f func() string) Option { return func(o *options) { o.newID = f } }

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option { return func(o *options) { o.log = l } }

// Collection is a typed view over one stored list. The mutex serialises
// read-modify-write cycles within this process only.
type Collection[T any] struct {
	store *store.Store
	cfg   Config[T]
	opts  options
	mu    sync.Mutex
}

// New binds cfg to s.
func New[T any](s *store.Store, cfg Config[T], opts ...Option) *Collection[T] {
	o := options{newID: uuid.NewString, log: zap.NewNop()}
	for _, opt := range opts {
		opt(&o)
	}
	if cfg.Label == "" {
		cfg.Label = cfg.Name
	}
	return &Collection[T]{store: s, cfg: cfg, opts: o}
}

// Name returns the stored collection name.
func (c *Collection[T]) Name() string { return c.cfg.Name }

// Label returns the audit label.
func (c *Collection[T]) Label() string { return c.cfg.Label }

// GetAll returns every record in insertion order.
func (c *Collection[T]) GetAll(ctx context.Context) ([]T, error) {
	raws, err := c.read(ctx)
	if err != nil {
		return nil, err
	}
	return c.decodeAll(raws)
}

// GetByID returns the first record whose identifier equals id, or nil.
func (c *Collection[T]) GetByID(ctx context.Context, id string) (*T, error) {
	items, err := c.GetAll(ctx)
	if err != nil {
		return nil, err
	}
	for i := range items {
		if c.cfg.ID(items[i]) == id {
			return &items[i], nil
		}
	}
	return nil, nil
}

// Find returns the records matching pred, in insertion order.
func (c *Collection[T]) Find(ctx context.Context, pred func(T) bool) ([]T, error) {
	items, err := c.GetAll(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]T, 0, len(items))
	for _, it := range items {
		if pred(it) {
			out = append(out, it)
		}
	}
	return out, nil
}

// Add assigns a fresh identifier to item, appends it and audits the addition.
// Any identifier already set on item is overwritten.
func (c *Collection[T]) Add(ctx context.Context, item T) (T, error) {
	var zero T
	if c.cfg.Validate != nil {
		if err := c.cfg.Validate(item); err != nil {
			return zero, err
		}
	}
	id := c.opts.newID()
	c.cfg.SetID(&item, id)
	raw, err := json.Marshal(item)
	if err != nil {
		return zero, fmt.Errorf("encode %s: %w", c.cfg.Name, err)
	}

	c.mu.Lock()
	raws, err := c.read(ctx)
	if err == nil {
		err = c.write(ctx, append(raws, raw))
	}
	c.mu.Unlock()
	if err != nil {
		return zero, err
	}

	metrics.CollectionMutations.WithLabelValues(c.cfg.Name, "add").Inc()
	// the record is persisted even when the audit append below fails
	if err := c.audit(ctx, "Added", id); err != nil {
		return zero, err
	}
	return item, nil
}

// Update merges the non-empty fields of patch over the record with the given
// identifier, keeping its position. patch is any value that encodes to a JSON
// object (a *Patch struct with omitempty pointers, or a map). The identifier
// itself cannot be patched. A nil result means no record matched; nothing is
// written or audited then.
func (c *Collection[T]) Update(ctx context.Context, id string, patch any) (*T, error) {
	fields, err := patchFields(patch)
	if err != nil {
		return nil, fmt.Errorf("patch %s: %w", c.cfg.Name, err)
	}
	delete(fields, c.cfg.IDField)

	c.mu.Lock()
	updated, err := c.updateLocked(ctx, id, fields)
	c.mu.Unlock()
	if err != nil || updated == nil {
		return nil, err
	}

	metrics.CollectionMutations.WithLabelValues(c.cfg.Name, "update").Inc()
	if err := c.audit(ctx, "Updated", id); err != nil {
		return nil, err
	}
	return updated, nil
}

func (c *Collection[T]) updateLocked(ctx context.Context, id string, fields map[string]json.RawMessage) (*T, error) {
	raws, err := c.read(ctx)
	if err != nil {
		return nil, err
	}
	idx, err := c.indexOf(raws, id)
	if err != nil || idx < 0 {
		return nil, err
	}

	var current map[string]json.RawMessage
	if err := json.Unmarshal(raws[idx], &current); err != nil {
		return nil, fmt.Errorf("%w: %s[%d]: %v", store.ErrCorrupt, c.cfg.Name, idx, err)
	}
	for k, v := range fields {
		current[k] = v
	}
	merged, err := json.Marshal(current)
	if err != nil {
		return nil, fmt.Errorf("encode %s: %w", c.cfg.Name, err)
	}
	var item T
	if err := json.Unmarshal(merged, &item); err != nil {
		return nil, fmt.Errorf("decode merged %s: %w", c.cfg.Name, err)
	}
	if c.cfg.Validate != nil {
		if err := c.cfg.Validate(item); err != nil {
			return nil, err
		}
	}

	raws[idx] = merged
	if err := c.write(ctx, raws); err != nil {
		return nil, err
	}
	return &item, nil
}

// Delete removes the record with the given identifier. It reports false, and
// changes nothing, when no record matched.
func (c *Collection[T]) Delete(ctx context.Context, id string) (bool, error) {
	c.mu.Lock()
	removed, err := c.deleteLocked(ctx, id)
	c.mu.Unlock()
	if err != nil || !removed {
		return false, err
	}

	metrics.CollectionMutations.WithLabelValues(c.cfg.Name, "delete").Inc()
	if err := c.audit(ctx, "Deleted", id); err != nil {
		return false, err
	}
	return true, nil
}

func (c *Collection[T]) deleteLocked(ctx context.Context, id string) (bool, error) {
	raws, err := c.read(ctx)
	if err != nil {
		return false, err
	}
	kept := raws[:0:0]
	for i, raw := range raws {
		var item T
		if err := json.Unmarshal(raw, &item); err != nil {
			return false, fmt.Errorf("%w: %s[%d]: %v", store.ErrCorrupt, c.cfg.Name, i, err)
		}
		if c.cfg.ID(item) != id {
			kept = append(kept, raw)
		}
	}
	if len(kept) == len(raws) {
		return false, nil
	}
	return true, c.write(ctx, kept)
}

// RawAppend appends item as-is, without generating an identifier and without
// auditing. The audit logger writes through here so that recording an entry
// never produces another entry.
func (c *Collection[T]) RawAppend(ctx context.Context, item T) error {
	raw, err := json.Marshal(item)
	if err != nil {
		return fmt.Errorf("encode %s: %w", c.cfg.Name, err)
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	raws, err := c.read(ctx)
	if err != nil {
		return err
	}
	return c.write(ctx, append(raws, raw))
}

// RawRemove drops the record with id without auditing. It reports whether a
// record matched.
func (c *Collection[T]) RawRemove(ctx context.Context, id string) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.deleteLocked(ctx, id)
}

// Replace overwrites the collection with items without auditing. Used for seeding.
func (c *Collection[T]) Replace(ctx context.Context, items []T) error {
	raws := make([]json.RawMessage, 0, len(items))
	for _, it := range items {
		raw, err := json.Marshal(it)
		if err != nil {
			return fmt.Errorf("encode %s: %w", c.cfg.Name, err)
		}
		raws = append(raws, raw)
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.write(ctx, raws)
}

// Clear removes the stored collection entirely.
func (c *Collection[T]) Clear(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.store.Remove(ctx, c.cfg.Name)
}

func (c *Collection[T]) audit(ctx context.Context, verb, id string) error {
	if c.opts.auditor == nil {
		return nil
	}
	action := verb + " " + c.cfg.Label
	details := fmt.Sprintf("%s %s with ID %s", verb, c.cfg.Name, id)
	if err := c.opts.auditor.Record(ctx, action, details); err != nil {
		c.opts.log.Error("audit append failed",
			zap.String("collection", c.cfg.Name),
			zap.String("action", action),
			zap.Error(err))
		return fmt.Errorf("audit %s: %w", action, err)
	}
	return nil
}

func (c *Collection[T]) read(ctx context.Context) ([]json.RawMessage, error) {
	start := time.Now()
	defer func() { metrics.StoreLatency.WithLabelValues("read").Observe(time.Since(start).Seconds()) }()
	return c.store.Read(ctx, c.cfg.Name)
}

func (c *Collection[T]) write(ctx context.Context, raws []json.RawMessage) error {
	start := time.Now()
	defer func() { metrics.StoreLatency.WithLabelValues("write").Observe(time.Since(start).Seconds()) }()
	return c.store.Write(ctx, c.cfg.Name, raws)
}

func (c *Collection[T]) decodeAll(raws []json.RawMessage) ([]T, error) {
	out := make([]T, 0, len(raws))
	for i, raw := range raws {
		var item T
		if err := json.Unmarshal(raw, &item); err != nil {
			return nil, fmt.Errorf("%w: %s[%d]: %v", store.ErrCorrupt, c.cfg.Name, i, err)
		}
		out = append(out, item)
	}
	return out, nil
}

func (c *Collection[T]) indexOf(raws []json.RawMessage, id string) (int, error) {
	for i, raw := range raws {
		var item T
		if err := json.Unmarshal(raw, &item); err != nil {
			return -1, fmt.Errorf("%w: %s[%d]: %v", store.ErrCorrupt, c.cfg.Name, i, err)
		}
		if c.cfg.ID(item) == id {
			return i, nil
		}
	}
	return -1, nil
}

// patchFields turns a patch value into the set of fields it provides.
// JSON null values are dropped so that a nil pointer never clears a field.
func patchFields(patch any) (map[string]json.RawMessage, error) {
	if patch == nil {
		return map[string]json.RawMessage{}, nil
	}
	data, err := json.Marshal(patch)
	if err != nil {
		return nil, err
	}
	fields := map[string]json.RawMessage{}
	if err := json.Unmarshal(data, &fields); err != nil {
		return nil, fmt.Errorf("patch must encode to an object: %w", err)
	}
	for k, v := range fields {
		if string(v) == "null" {
			delete(fields, k)
		}
	}
	return fields, nil
}
