// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package link

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"

	"github.com/rs/zerolog"
)

// ErrClosed is returned when using a transport after Close.
var ErrClosed = errors.New("link closed")

// FrameHandler receives every complete inbound frame. It runs on the reader
// goroutine and must not block.
type FrameHandler func(frame []byte)

// Transport carries whole frames to and from a bus.
type Transport interface {
	// SendFrame writes one frame.
	SendFrame(frame []byte) error

	// OnFrame installs the inbound frame handler. Call before Run.
	OnFrame(h FrameHandler)

	// Run reads frames until ctx is cancelled, the link fails or Close is
	// called. It returns nil after a clean shutdown.
	Run(ctx context.Context) error

	// Close releases the underlying connection.
	Close() error
}

// Option configures a transport.
type Option func(*options)

type options struct {
	logger       zerolog.Logger
	maxFrameSize int
	onError      func(error)
}

func defaultOptions() options {
	return options{
		logger:       zerolog.Nop(),
		maxFrameSize: DefaultMaxFrameSize,
	}
}

// WithLogger sets the transport logger.
func WithLogger(logger zerolog.Logger) Option {
	return func(o *options) { o.logger = logger }
}

// WithMaxFrameSize bounds the size of received frames.
func WithMaxFrameSize(n int) Option {
	return func(o *options) { o.maxFrameSize = n }
}

// WithErrorHandler receives framing errors. Framing errors never stop Run.
func WithErrorHandler(fn func(error)) Option {
	return func(o *options) { o.onError = fn }
}

// StreamTransport frames a byte stream such as a serial port.
type StreamTransport struct {
	rw   io.ReadWriteCloser
	opts options

	writeMu sync.Mutex

	handlerMu sync.RWMutex
	handler   FrameHandler

	closeOnce sync.Once
	closed    chan struct{}
}

// NewStreamTransport wraps rw. The transport owns rw and closes it on Close.
func NewStreamTransport(rw io.ReadWriteCloser, opts ...Option) *StreamTransport {
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}
	return &StreamTransport{
		rw:     rw,
		opts:   o,
		closed: make(chan struct{}),
	}
}

// SendFrame stuffs and writes one frame.
func (t *StreamTransport) SendFrame(frame []byte) error {
	select {
	case <-t.closed:
		return ErrClosed
	default:
	}

	encoded := EncodeFrame(frame)

	t.writeMu.Lock()
	defer t.writeMu.Unlock()

	if _, err := t.rw.Write(encoded); err != nil {
		return fmt.Errorf("write frame: %w", err)
	}
	return nil
}

// OnFrame installs the inbound frame handler.
func (t *StreamTransport) OnFrame(h FrameHandler) {
	t.handlerMu.Lock()
	t.handler = h
	t.handlerMu.Unlock()
}

// Run reads and decodes the stream until it ends.
func (t *StreamTransport) Run(ctx context.Context) error {
	done := make(chan struct{})
	defer close(done)

	go func() {
		select {
		case <-ctx.Done():
			_ = t.Close()
		case <-done:
		}
	}()

	decoder := NewDecoder(t.opts.maxFrameSize)
	buf := make([]byte, 256)

	for {
		n, err := t.rw.Read(buf)
		for _, b := range buf[:n] {
			frame, decErr := decoder.DecodeByte(b)
			if decErr != nil {
				t.opts.logger.Debug().Err(decErr).Msg("framing error")
				if t.opts.onError != nil {
					t.opts.onError(decErr)
				}
				continue
			}
			if frame != nil {
				t.dispatch(frame)
			}
		}

		if err != nil {
			select {
			case <-t.closed:
				return nil
			default:
			}
			if errors.Is(err, io.EOF) {
				return nil
			}
			return fmt.Errorf("read: %w", err)
		}
	}
}

// Close closes the underlying stream. It is safe to call more than once.
func (t *StreamTransport) Close() error {
	var err error
	t.closeOnce.Do(func() {
		close(t.closed)
		err = t.rw.Close()
	})
	return err
}

func (t *StreamTransport) dispatch(frame []byte) {
	t.handlerMu.RLock()
	h := t.handler
	t.handlerMu.RUnlock()

	if h != nil {
		h(frame)
	}
}
