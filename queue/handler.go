package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
)

// Outcome is the result of executing one stage of an item.
//
// Exactly one of Advance or Terminal applies. Advance moves the item to
// the next stage of its sequence (success at the final stage); Terminal
// ends the item early with a non-failure status such as filtered. Spawns
// are candidate derived items submitted to the spawn guard after the
// stage completes; a rejected spawn never affects the item itself.
type Outcome struct {
	Advance        bool
	Terminal       Status
	TerminalReason string
	Payload        json.RawMessage // nil keeps the existing payload
	Spawns         []Candidate
}

// StageHandler executes the stage work for one item type.
//
// Handlers decode item.Payload, perform the work for item.Stage, and
// describe what happens next through the Outcome. Errors are classified
// with errors.Transient or errors.Fatal so the driver can decide between
// retry-with-backoff and immediate failure.
//
// Handlers MUST honor ctx cancellation between blocking calls; on
// cancellation the driver releases the claim without consuming a status.
type StageHandler interface {
	// Execute runs the item's current stage.
	Execute(ctx context.Context, item *Item) (Outcome, error)

	// Type returns the item type this handler serves.
	Type() ItemType
}

// Registry manages stage handlers by item type.
// Thread-safe for concurrent registration and lookup.
type Registry struct {
	handlers map[ItemType]StageHandler
	mu       sync.RWMutex
}

// NewRegistry creates an empty handler registry.
func NewRegistry() *Registry {
	return &Registry{
		handlers: make(map[ItemType]StageHandler),
	}
}

// Register adds a handler for its item type.
// Panics if a handler is already registered for that type.
func (r *Registry) Register(handler StageHandler) {
	r.mu.Lock()
	defer r.mu.Unlock()

	itemType := handler.Type()
	if _, exists := r.handlers[itemType]; exists {
		panic(fmt.Sprintf("handler already registered for item type: %s", itemType))
	}
	r.handlers[itemType] = handler
}

// Get retrieves the handler for an item type.
// Returns nil if no handler is registered.
func (r *Registry) Get(itemType ItemType) StageHandler {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.handlers[itemType]
}

// Has checks if a handler is registered for an item type.
func (r *Registry) Has(itemType ItemType) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, exists := r.handlers[itemType]
	return exists
}

// Types returns all registered item types.
func (r *Registry) Types() []ItemType {
	r.mu.RLock()
	defer r.mu.RUnlock()

	types := make([]ItemType, 0, len(r.handlers))
	for t := range r.handlers {
		types = append(types, t)
	}
	return types
}
