// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package link

import (
	"context"
	"crypto/tls"
	"encoding/base64"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// DialConfig describes a WebSocket gateway connection.
type DialConfig struct {
	URL           string
	Username      string
	Password      string
	SkipTLSVerify bool

	// HandshakeTimeout defaults to 10 seconds.
	HandshakeTimeout time.Duration
}

// WebSocketTransport carries one frame per binary WebSocket message.
type WebSocketTransport struct {
	conn *websocket.Conn
	opts options

	writeMu sync.Mutex

	handlerMu sync.RWMutex
	handler   FrameHandler

	closeOnce sync.Once
	closed    chan struct{}
}

// DialWebSocket connects to a gateway with optional HTTP Basic auth.
func DialWebSocket(ctx context.Context, cfg DialConfig, opts ...Option) (*WebSocketTransport, error) {
	u, err := url.Parse(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("invalid URL: %w", err)
	}

	switch u.Scheme {
	case "ws", "wss":
	default:
		return nil, fmt.Errorf("unsupported URL scheme: %s (use ws:// or wss://)", u.Scheme)
	}

	timeout := cfg.HandshakeTimeout
	if timeout == 0 {
		timeout = 10 * time.Second
	}
	dialer := websocket.Dialer{HandshakeTimeout: timeout}

	if u.Scheme == "wss" {
		dialer.TLSClientConfig = &tls.Config{
			InsecureSkipVerify: cfg.SkipTLSVerify, //nolint:gosec // opt-in via --no-ssl-verify
		}
	}

	headers := http.Header{}
	if cfg.Username != "" && cfg.Password != "" {
		credentials := base64.StdEncoding.EncodeToString([]byte(cfg.Username + ":" + cfg.Password))
		headers.Set("Authorization", "Basic "+credentials)
	}

	conn, resp, err := dialer.DialContext(ctx, cfg.URL, headers)
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("WebSocket connection failed (HTTP %d): %w", resp.StatusCode, err)
		}
		return nil, fmt.Errorf("WebSocket connection failed: %w", err)
	}

	return NewWebSocketTransport(conn, opts...), nil
}

// NewWebSocketTransport wraps an established connection.
func NewWebSocketTransport(conn *websocket.Conn, opts ...Option) *WebSocketTransport {
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}
	return &WebSocketTransport{
		conn:   conn,
		opts:   o,
		closed: make(chan struct{}),
	}
}

// SendFrame writes one binary message.
func (t *WebSocketTransport) SendFrame(frame []byte) error {
	select {
	case <-t.closed:
		return ErrClosed
	default:
	}

	t.writeMu.Lock()
	defer t.writeMu.Unlock()

	if err := t.conn.WriteMessage(websocket.BinaryMessage, frame); err != nil {
		return fmt.Errorf("write frame: %w", err)
	}
	return nil
}

// OnFrame installs the inbound frame handler.
func (t *WebSocketTransport) OnFrame(h FrameHandler) {
	t.handlerMu.Lock()
	t.handler = h
	t.handlerMu.Unlock()
}

// Run reads messages until the connection ends. Non-binary messages are
// skipped. Messages longer than the max frame size are reported and dropped.
func (t *WebSocketTransport) Run(ctx context.Context) error {
	done := make(chan struct{})
	defer close(done)

	go func() {
		select {
		case <-ctx.Done():
			_ = t.Close()
		case <-done:
		}
	}()

	for {
		messageType, data, err := t.conn.ReadMessage()
		if err != nil {
			select {
			case <-t.closed:
				return nil
			default:
			}
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				return nil
			}
			return fmt.Errorf("read: %w", err)
		}

		if messageType != websocket.BinaryMessage {
			continue
		}

		if len(data) > t.opts.maxFrameSize {
			err := fmt.Errorf("message of %d bytes exceeds frame size %d", len(data), t.opts.maxFrameSize)
			t.opts.logger.Debug().Err(err).Msg("framing error")
			if t.opts.onError != nil {
				t.opts.onError(err)
			}
			continue
		}

		t.handlerMu.RLock()
		h := t.handler
		t.handlerMu.RUnlock()
		if h != nil {
			h(data)
		}
	}
}

// Close sends a close message and closes the connection. It is safe to call
// more than once.
func (t *WebSocketTransport) Close() error {
	var err error
	t.closeOnce.Do(func() {
		close(t.closed)

		t.writeMu.Lock()
		msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
		werr := t.conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(time.Second))
		t.writeMu.Unlock()

		err = t.conn.Close()
		if werr != nil && !errors.Is(werr, websocket.ErrCloseSent) {
			t.opts.logger.Debug().Err(werr).Msg("close handshake failed")
		}
	})
	return err
}
