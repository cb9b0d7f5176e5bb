// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package correlator

import (
	"sync"

	"github.com/Thermoquad/busboot/pkg/protocol"
)

// PendingRequest collects the response frames of one sent command.
type PendingRequest struct {
	spec         *protocol.CommandSpec
	headerLength int
	order        []protocol.HeaderHash
	expected     map[protocol.HeaderHash]struct{}

	mu        sync.Mutex
	fragments map[protocol.HeaderHash][]byte
	complete  bool
	inert     bool
	done      chan struct{}
}

// NewPendingRequest creates a request expecting one fragment per hash.
func NewPendingRequest(spec *protocol.CommandSpec, hashes []protocol.HeaderHash) *PendingRequest {
	expected := make(map[protocol.HeaderHash]struct{}, len(hashes))
	for _, h := range hashes {
		expected[h] = struct{}{}
	}
	return &PendingRequest{
		spec:         spec,
		headerLength: spec.HeaderLength(),
		order:        hashes,
		expected:     expected,
		fragments:    make(map[protocol.HeaderHash][]byte, len(expected)),
		done:         make(chan struct{}),
	}
}

// Command returns the name of the command awaiting a response.
func (p *PendingRequest) Command() string { return p.spec.Name }

// HeaderLength is the number of leading frame bytes that are hashed.
func (p *PendingRequest) HeaderLength() int { return p.headerLength }

// Done is closed once every expected hash has a fragment.
func (p *PendingRequest) Done() <-chan struct{} { return p.done }

// Offer stores the fragment if hash is expected and the request is still
// live. A repeated hash overwrites the earlier fragment. Offer reports
// whether the fragment was accepted.
func (p *PendingRequest) Offer(hash protocol.HeaderHash, fragment []byte) bool {
	if _, ok := p.expected[hash]; !ok {
		return false
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if p.inert || p.complete {
		return false
	}

	buf := make([]byte, len(fragment))
	copy(buf, fragment)
	p.fragments[hash] = buf

	if len(p.fragments) == len(p.expected) {
		p.complete = true
		close(p.done)
	}
	return true
}

// Expire makes the request inert so no later frame is accepted. It reports
// whether the request had already completed.
func (p *PendingRequest) Expire() bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.complete {
		return true
	}
	p.inert = true
	return false
}

// Result decodes the collected fragments.
func (p *PendingRequest) Result() (protocol.Fields, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	return protocol.Decode(p.spec, p.order, p.fragments)
}
