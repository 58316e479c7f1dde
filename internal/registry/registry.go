// Crashguard - Crash Prevention and Hot-Reload Supervisor
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/crashguard

// Package registry owns the crash handlers and compatibility layers
// registered by clients.
//
// Thread Safety:
//   - All mutations go through one mutex (single writer)
//   - Readers load an immutable snapshot swapped atomically and never block
//   - While frozen, mutations are queued in arrival order and applied on Thaw
package registry

import (
	"errors"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/tomtom215/crashguard/internal/logging"
	"github.com/tomtom215/crashguard/internal/metrics"
	"github.com/tomtom215/crashguard/internal/models"
)

// Errors returned by registration.
var (
	ErrEmptyClientID = errors.New("client id cannot be empty")
	ErrNilHandler    = errors.New("crash handler cannot be nil")
	ErrNilLayer      = errors.New("compatibility layer cannot be nil")
)

// HandlerEntry is one registered crash handler.
type HandlerEntry struct {
	ClientID     string
	Handler      models.CrashHandler
	Seq          uint64
	RegisteredAt time.Time
}

// LayerEntry is one registered compatibility layer.
type LayerEntry struct {
	ClientID     string
	Layer        models.CompatibilityLayer
	Seq          uint64
	RegisteredAt time.Time
}

// Level returns the layer's reported level, or the default when the layer
// has no LevelReporter capability.
func (e LayerEntry) Level() models.CompatibilityLevel {
	if r, ok := e.Layer.(models.LevelReporter); ok {
		return r.CompatibilityLevel()
	}
	return models.DefaultCompatibilityLevel
}

// DisabledFeatures returns the layer's disabled features, or an empty set
// when the layer has no FeatureDisabler capability.
func (e LayerEntry) DisabledFeatures() []string {
	if d, ok := e.Layer.(models.FeatureDisabler); ok {
		if names := d.DisabledFeatures(); names != nil {
			return names
		}
	}
	return []string{}
}

// ClientInfo is a registered client and the sequence of its earliest
// active registration.
type ClientInfo struct {
	ClientID   string
	Seq        uint64
	HasHandler bool
	HasLayer   bool
}

type snapshot struct {
	handlers map[string]HandlerEntry
	layers   map[string]LayerEntry
}

func emptySnapshot() *snapshot {
	return &snapshot{
		handlers: map[string]HandlerEntry{},
		layers:   map[string]LayerEntry{},
	}
}

// mutation applies a change to next under the write lock.
type mutation func(r *Registry, next *snapshot)

// Registry holds handler and layer entries keyed by client ID.
type Registry struct {
	mu       sync.Mutex
	snap     atomic.Pointer[snapshot]
	seq      uint64
	frozen   bool
	pending  []mutation
	onChange []func()
}

// New creates an empty registry.
func New() *Registry {
	r := &Registry{}
	r.snap.Store(emptySnapshot())
	return r
}

// OnChange registers fn to run after every applied mutation batch.
// Callbacks run outside the registry lock.
func (r *Registry) OnChange(fn func()) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.onChange = append(r.onChange, fn)
}

// RegisterHandler registers or replaces the crash handler for clientID.
// A replacement is a new registration and moves to the end of the order.
func (r *Registry) RegisterHandler(clientID string, handler models.CrashHandler) error {
	if clientID == "" {
		return ErrEmptyClientID
	}
	if handler == nil {
		return ErrNilHandler
	}
	r.submit(func(r *Registry, next *snapshot) {
		if _, replaced := next.handlers[clientID]; replaced {
			logging.Debug().Str("client_id", clientID).Msg("Crash handler replaced")
		}
		r.seq++
		next.handlers[clientID] = HandlerEntry{
			ClientID:     clientID,
			Handler:      handler,
			Seq:          r.seq,
			RegisteredAt: time.Now(),
		}
	})
	return nil
}

// RegisterLayer registers or replaces the compatibility layer for clientID.
func (r *Registry) RegisterLayer(clientID string, layer models.CompatibilityLayer) error {
	if clientID == "" {
		return ErrEmptyClientID
	}
	if layer == nil {
		return ErrNilLayer
	}
	r.submit(func(r *Registry, next *snapshot) {
		if _, replaced := next.layers[clientID]; replaced {
			logging.Debug().Str("client_id", clientID).Msg("Compatibility layer replaced")
		}
		r.seq++
		next.layers[clientID] = LayerEntry{
			ClientID:     clientID,
			Layer:        layer,
			Seq:          r.seq,
			RegisteredAt: time.Now(),
		}
	})
	return nil
}

// UnregisterHandler removes the crash handler for clientID. Absent IDs are a no-op.
func (r *Registry) UnregisterHandler(clientID string) {
	r.submit(func(_ *Registry, next *snapshot) {
		delete(next.handlers, clientID)
	})
}

// UnregisterLayer removes the compatibility layer for clientID. Absent IDs are a no-op.
func (r *Registry) UnregisterLayer(clientID string) {
	r.submit(func(_ *Registry, next *snapshot) {
		delete(next.layers, clientID)
	})
}

// Unregister removes every entry for clientID, as on client unload.
func (r *Registry) Unregister(clientID string) {
	r.submit(func(_ *Registry, next *snapshot) {
		delete(next.handlers, clientID)
		delete(next.layers, clientID)
	})
}

// LookupHandler returns the active handler entry for clientID.
func (r *Registry) LookupHandler(clientID string) (HandlerEntry, bool) {
	e, ok := r.snap.Load().handlers[clientID]
	return e, ok
}

// LookupLayer returns the active layer entry for clientID.
func (r *Registry) LookupLayer(clientID string) (LayerEntry, bool) {
	e, ok := r.snap.Load().layers[clientID]
	return e, ok
}

// Handlers returns every handler entry in registration order.
func (r *Registry) Handlers() []HandlerEntry {
	m := r.snap.Load().handlers
	out := make([]HandlerEntry, 0, len(m))
	for _, e := range m {
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Seq < out[j].Seq })
	return out
}

// Layers returns every layer entry in registration order.
func (r *Registry) Layers() []LayerEntry {
	m := r.snap.Load().layers
	out := make([]LayerEntry, 0, len(m))
	for _, e := range m {
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Seq < out[j].Seq })
	return out
}

// Clients returns every registered client ordered by its earliest active
// registration.
func (r *Registry) Clients() []ClientInfo {
	snap := r.snap.Load()
	byID := map[string]*ClientInfo{}
	for id, e := range snap.handlers {
		byID[id] = &ClientInfo{ClientID: id, Seq: e.Seq, HasHandler: true}
	}
	for id, e := range snap.layers {
		if c, ok := byID[id]; ok {
			c.HasLayer = true
			if e.Seq < c.Seq {
				c.Seq = e.Seq
			}
			continue
		}
		byID[id] = &ClientInfo{ClientID: id, Seq: e.Seq, HasLayer: true}
	}
	out := make([]ClientInfo, 0, len(byID))
	for _, c := range byID {
		out = append(out, *c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Seq < out[j].Seq })
	return out
}

// Freeze starts queueing mutations. Readers keep seeing the current snapshot.
func (r *Registry) Freeze() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.frozen = true
}

// Thaw applies queued mutations in arrival order and resumes direct writes.
func (r *Registry) Thaw() {
	r.mu.Lock()
	queued := r.pending
	r.pending = nil
	r.frozen = false
	if len(queued) == 0 {
		r.mu.Unlock()
		return
	}
	r.applyLocked(queued)
	callbacks := r.onChange
	r.mu.Unlock()

	logging.Debug().Int("mutations", len(queued)).Msg("Applied registrations queued during reload")
	for _, fn := range callbacks {
		fn()
	}
}

// Frozen reports whether mutations are being queued.
func (r *Registry) Frozen() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.frozen
}

func (r *Registry) submit(m mutation) {
	r.mu.Lock()
	if r.frozen {
		r.pending = append(r.pending, m)
		r.mu.Unlock()
		return
	}
	r.applyLocked([]mutation{m})
	callbacks := r.onChange
	r.mu.Unlock()

	for _, fn := range callbacks {
		fn()
	}
}

// applyLocked copies the snapshot, applies ms and publishes the result.
func (r *Registry) applyLocked(ms []mutation) {
	cur := r.snap.Load()
	next := &snapshot{
		handlers: make(map[string]HandlerEntry, len(cur.handlers)+1),
		layers:   make(map[string]LayerEntry, len(cur.layers)+1),
	}
	for k, v := range cur.handlers {
		next.handlers[k] = v
	}
	for k, v := range cur.layers {
		next.layers[k] = v
	}
	for _, m := range ms {
		m(r, next)
	}
	r.snap.Store(next)

	metrics.RegisteredClients.WithLabelValues("handler").Set(float64(len(next.handlers)))
	metrics.RegisteredClients.WithLabelValues("layer").Set(float64(len(next.layers)))
}
