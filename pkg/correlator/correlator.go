// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package correlator matches inbound bus frames to the requests waiting for
// them. A request is registered before its frame is sent, its response frames
// are collected by header hash, and the caller is released once every
// expected frame has arrived or the timeout expires.
package correlator

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/Thermoquad/busboot/pkg/protocol"
)

// DefaultTimeout applies when Send is called with a zero timeout.
const DefaultTimeout = 2 * time.Second

// FrameSender writes whole frames to a bus. link.Transport satisfies it.
type FrameSender interface {
	SendFrame(frame []byte) error
}

// Option configures a Correlator.
type Option func(*Correlator)

// WithRegistry replaces the default MapRegistry.
func WithRegistry(r Registry) Option {
	return func(c *Correlator) { c.registry = r }
}

// WithLogger sets the logger.
func WithLogger(logger zerolog.Logger) Option {
	return func(c *Correlator) { c.logger = logger }
}

// WithVerbose logs every outgoing and incoming frame at debug level.
func WithVerbose(verbose bool) Option {
	return func(c *Correlator) { c.verbose = verbose }
}

// WithStatistics records traffic counters into stats.
func WithStatistics(stats *Statistics) Option {
	return func(c *Correlator) { c.stats = stats }
}

// Correlator sends commands on one bus and routes responses back to them.
type Correlator struct {
	sender    FrameSender
	frameSize int
	registry  Registry
	stats     *Statistics
	logger    zerolog.Logger
	verbose   bool
}

// New creates a Correlator that pads requests to frameSize. Inbound frames
// must be passed to Deliver, usually by installing it as the transport's
// frame handler.
func New(sender FrameSender, frameSize int, opts ...Option) *Correlator {
	c := &Correlator{
		sender:    sender,
		frameSize: frameSize,
		registry:  NewMapRegistry(),
		logger:    zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Statistics returns the attached statistics, or nil.
func (c *Correlator) Statistics() *Statistics { return c.stats }

// Send encodes and sends a command and waits for its response.
//
// Commands without response instructions return nil, nil once the frame is
// written. Otherwise Send returns the decoded response fields, a
// *TimeoutError when the response is incomplete after timeout, or ctx.Err()
// when ctx ends first.
func (c *Correlator) Send(ctx context.Context, spec *protocol.CommandSpec, fields protocol.Fields, timeout time.Duration) (protocol.Fields, error) {
	frame, err := protocol.BuildFrame(spec, fields, c.frameSize)
	if err != nil {
		return nil, err
	}
	hashes, err := protocol.ResponseHashes(spec, fields)
	if err != nil {
		return nil, err
	}

	if spec.SendOnly() {
		return nil, c.write(spec, frame)
	}

	if timeout <= 0 {
		timeout = DefaultTimeout
	}

	p := NewPendingRequest(spec, hashes)
	c.registry.Register(p)
	defer c.registry.Remove(p)

	if err := c.write(spec, frame); err != nil {
		p.Expire()
		return nil, err
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case <-p.Done():
		c.stats.RecordCompleted()
		return p.Result()

	case <-timer.C:
		if p.Expire() {
			c.stats.RecordCompleted()
			return p.Result()
		}
		c.stats.RecordTimeout()
		c.logger.Debug().Str("command", spec.Name).Dur("timeout", timeout).Msg("response timed out")
		return nil, &TimeoutError{Command: spec.Name, Timeout: timeout}

	case <-ctx.Done():
		if p.Expire() {
			c.stats.RecordCompleted()
			return p.Result()
		}
		return nil, ctx.Err()
	}
}

func (c *Correlator) write(spec *protocol.CommandSpec, frame []byte) error {
	if c.verbose {
		c.logger.Debug().Str("command", spec.Name).Hex("frame", frame).Msg("tx")
	}
	if err := c.sender.SendFrame(frame); err != nil {
		c.stats.RecordTransportError()
		return &TransportError{Command: spec.Name, Err: err}
	}
	c.stats.RecordSent()
	return nil
}

// Deliver routes one inbound frame to every live request expecting its
// header. Frames nobody expects are dropped. Deliver is safe to call from the
// transport reader while Send runs on other goroutines.
func (c *Correlator) Deliver(frame []byte) {
	if c.verbose {
		c.logger.Debug().Hex("frame", frame).Msg("rx")
	}

	matched := false
	if len(frame) >= protocol.PayloadPrefix {
		for _, p := range c.registry.Snapshot() {
			n := p.HeaderLength()
			if len(frame) < n {
				continue
			}
			if p.Offer(protocol.HashHeader(frame[:n]), frame[protocol.PayloadPrefix:]) {
				matched = true
			}
		}
	}

	c.stats.RecordReceived(matched)
}
