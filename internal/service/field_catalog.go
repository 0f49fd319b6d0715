package service

import (
	"context"
	"sync"
	"time"

	"github.com/pesio-ai/be-legal-matters/internal/common/clock"
	"github.com/pesio-ai/be-legal-matters/internal/common/errors"
	"github.com/pesio-ai/be-legal-matters/internal/common/logger"
	"github.com/pesio-ai/be-legal-matters/internal/model"
)

// FieldDefinitionStore is the catalog's backing store.
type FieldDefinitionStore interface {
	GetByName(ctx context.Context, name string) (*model.FieldDefinition, error)
	List(ctx context.Context) ([]*model.FieldDefinition, error)
}

type catalogEntry struct {
	handle   model.FieldHandle
	loadedAt time.Time
}

// FieldCatalog resolves field names to typed handles. Entries are loaded
// on first lookup and kept until Invalidate, or until ttl elapses when
// ttl is positive. Misses are never cached, so a field created later is
// found on its first lookup.
type FieldCatalog struct {
	store FieldDefinitionStore
	clock clock.Clock
	ttl   time.Duration
	log   *logger.Logger

	mu      sync.RWMutex
	entries map[string]catalogEntry
}

// NewFieldCatalog creates a catalog over store.
func NewFieldCatalog(store FieldDefinitionStore, clk clock.Clock, ttl time.Duration, log *logger.Logger) *FieldCatalog {
	return &FieldCatalog{
		store:   store,
		clock:   clk,
		ttl:     ttl,
		log:     log,
		entries: make(map[string]catalogEntry),
	}
}

// Resolve returns the handle for name. ok is false when no live field
// has that name.
func (c *FieldCatalog) Resolve(ctx context.Context, name string) (model.FieldHandle, bool, error) {
	if h, ok := c.cached(name); ok {
		return h, true, nil
	}

	def, err := c.store.GetByName(ctx, name)
	if errors.CodeOf(err) == errors.ErrCodeNotFound {
		return model.FieldHandle{}, false, nil
	}
	if err != nil {
		return model.FieldHandle{}, false, err
	}

	h := def.Handle()
	c.mu.Lock()
	c.entries[name] = catalogEntry{handle: h, loadedAt: c.clock.Now()}
	c.mu.Unlock()

	c.log.Debug().
		Str("field_name", name).
		Str("field_id", h.ID).
		Str("field_type", string(h.Type)).
		Msg("Field resolved")

	return h, true, nil
}

func (c *FieldCatalog) cached(name string) (model.FieldHandle, bool) {
	c.mu.RLock()
	entry, ok := c.entries[name]
	c.mu.RUnlock()
	if !ok {
		return model.FieldHandle{}, false
	}
	if c.ttl > 0 && c.clock.Now().Sub(entry.loadedAt) >= c.ttl {
		return model.FieldHandle{}, false
	}
	return entry.handle, true
}

// Invalidate drops every cached entry.
func (c *FieldCatalog) Invalidate() {
	c.mu.Lock()
	c.entries = make(map[string]catalogEntry)
	c.mu.Unlock()
	c.log.Info().Msg("Field catalog invalidated")
}

// List returns every live field definition ordered by sequence. It reads
// through to the store.
func (c *FieldCatalog) List(ctx context.Context) ([]*model.FieldDefinition, error) {
	return c.store.List(ctx)
}
