// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package capture records bus frames to a file as a CBOR sequence, one
// record per frame, and reads them back.
package capture

import (
	"errors"
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"github.com/fxamacker/cbor/v2"
)

// Direction is the way a frame travelled.
type Direction uint8

const (
	// Rx is a frame received from the bus.
	Rx Direction = iota
	// Tx is a frame sent to the bus.
	Tx
)

func (d Direction) String() string {
	if d == Tx {
		return "tx"
	}
	return "rx"
}

// Record is one captured frame.
type Record struct {
	Time      time.Time `cbor:"1,keyasint"`
	Direction Direction `cbor:"2,keyasint"`
	Bus       string    `cbor:"3,keyasint,omitempty"`
	Frame     []byte    `cbor:"4,keyasint"`
}

var encMode cbor.EncMode

func init() {
	var err error
	encMode, err = cbor.EncOptions{Time: cbor.TimeRFC3339Nano}.EncMode()
	if err != nil {
		panic(fmt.Sprintf("capture: cbor encoding options: %v", err))
	}
}

// Writer appends records. It is safe for concurrent use, since frames are
// sent and received on different goroutines.
type Writer struct {
	mu     sync.Mutex
	enc    *cbor.Encoder
	closer io.Closer
	bus    string
	count  int
	err    error
}

// NewWriter writes records for bus to w.
func NewWriter(w io.Writer, bus string) *Writer {
	cw := &Writer{enc: encMode.NewEncoder(w), bus: bus}
	if c, ok := w.(io.Closer); ok {
		cw.closer = c
	}
	return cw
}

// Create truncates or creates the capture file at path.
func Create(path, bus string) (*Writer, error) {
	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("failed to create capture file: %w", err)
	}
	return NewWriter(f, bus), nil
}

// Record appends one frame. After the first write error every call returns
// that error.
func (w *Writer) Record(dir Direction, frame []byte) error {
	rec := Record{
		Time:      time.Now(),
		Direction: dir,
		Bus:       w.bus,
		Frame:     append([]byte(nil), frame...),
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	if w.err != nil {
		return w.err
	}
	if err := w.enc.Encode(rec); err != nil {
		w.err = fmt.Errorf("capture write failed: %w", err)
		return w.err
	}
	w.count++
	return nil
}

// Count returns the number of records written.
func (w *Writer) Count() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.count
}

// Err returns the first write error.
func (w *Writer) Err() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.err
}

// Close closes the underlying file, if any.
func (w *Writer) Close() error {
	if w.closer == nil {
		return nil
	}
	return w.closer.Close()
}

// FrameSender is the sending half of a bus link.
type FrameSender interface {
	SendFrame(frame []byte) error
}

type tapSender struct {
	next FrameSender
	w    *Writer
}

func (t tapSender) SendFrame(frame []byte) error {
	if err := t.next.SendFrame(frame); err != nil {
		return err
	}
	_ = t.w.Record(Tx, frame)
	return nil
}

// TapSender records every frame next sends successfully.
func (w *Writer) TapSender(next FrameSender) FrameSender {
	return tapSender{next: next, w: w}
}

// TapHandler records every received frame before passing it on.
func (w *Writer) TapHandler(next func([]byte)) func([]byte) {
	return func(frame []byte) {
		_ = w.Record(Rx, frame)
		if next != nil {
			next(frame)
		}
	}
}

// Reader reads records back in file order.
type Reader struct {
	dec *cbor.Decoder
}

// NewReader reads records from r.
func NewReader(r io.Reader) *Reader {
	return &Reader{dec: cbor.NewDecoder(r)}
}

// Next returns the next record, or io.EOF after the last one.
func (r *Reader) Next() (Record, error) {
	var rec Record
	if err := r.dec.Decode(&rec); err != nil {
		if errors.Is(err, io.EOF) {
			return Record{}, io.EOF
		}
		return Record{}, fmt.Errorf("invalid capture record: %w", err)
	}
	return rec, nil
}

// ReadFile reads every record in the capture file at path.
func ReadFile(path string) ([]Record, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open capture file: %w", err)
	}
	defer f.Close()

	var out []Record
	r := NewReader(f)
	for {
		rec, err := r.Next()
		if err == io.EOF {
			return out, nil
		}
		if err != nil {
			return out, err
		}
		out = append(out, rec)
	}
}
