// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package correlator

import "sync"

// Registry tracks the requests waiting for responses. Implementations must be
// safe for concurrent use by callers and the transport reader.
type Registry interface {
	Register(p *PendingRequest)
	Remove(p *PendingRequest)

	// Snapshot returns the requests registered at the time of the call.
	// The slice is not affected by later Register or Remove calls.
	Snapshot() []*PendingRequest
}

// MapRegistry is a mutex-guarded Registry.
type MapRegistry struct {
	mu      sync.Mutex
	pending map[*PendingRequest]struct{}
}

// NewMapRegistry creates an empty MapRegistry.
func NewMapRegistry() *MapRegistry {
	return &MapRegistry{pending: make(map[*PendingRequest]struct{})}
}

func (r *MapRegistry) Register(p *PendingRequest) {
	r.mu.Lock()
	r.pending[p] = struct{}{}
	r.mu.Unlock()
}

func (r *MapRegistry) Remove(p *PendingRequest) {
	r.mu.Lock()
	delete(r.pending, p)
	r.mu.Unlock()
}

func (r *MapRegistry) Snapshot() []*PendingRequest {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]*PendingRequest, 0, len(r.pending))
	for p := range r.pending {
		out = append(out, p)
	}
	return out
}

// Len returns the number of registered requests.
func (r *MapRegistry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.pending)
}
