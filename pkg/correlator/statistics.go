// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package correlator

import (
	"fmt"
	"sync"
	"time"
)

// Statistics counts bus traffic seen by a correlator. It is safe for
// concurrent use.
type Statistics struct {
	mu sync.Mutex
	s  StatsSnapshot
}

// StatsSnapshot is a point-in-time copy of the counters.
type StatsSnapshot struct {
	StartTime      time.Time
	LastUpdateTime time.Time

	// Counters
	FramesSent      uint64
	FramesReceived  uint64
	MatchedFrames   uint64
	UnmatchedFrames uint64
	FramingErrors   uint64
	Completed       uint64
	Timeouts        uint64
	TransportErrors uint64

	// Rates (calculated)
	FrameRate float64 // received frames/sec
	ErrorRate float64 // errors/sec
}

// NewStatistics creates a new statistics tracker.
func NewStatistics() *Statistics {
	now := time.Now()
	return &Statistics{s: StatsSnapshot{StartTime: now, LastUpdateTime: now}}
}

func (st *Statistics) update(fn func(s *StatsSnapshot)) {
	if st == nil {
		return
	}
	st.mu.Lock()
	fn(&st.s)
	st.s.LastUpdateTime = time.Now()
	st.mu.Unlock()
}

// RecordSent counts an outgoing frame.
func (st *Statistics) RecordSent() { st.update(func(s *StatsSnapshot) { s.FramesSent++ }) }

// RecordReceived counts an inbound frame and whether a request claimed it.
func (st *Statistics) RecordReceived(matched bool) {
	st.update(func(s *StatsSnapshot) {
		s.FramesReceived++
		if matched {
			s.MatchedFrames++
		} else {
			s.UnmatchedFrames++
		}
	})
}

// RecordFramingError counts a frame the link layer could not delimit.
func (st *Statistics) RecordFramingError(error) {
	st.update(func(s *StatsSnapshot) { s.FramingErrors++ })
}

// RecordCompleted counts a request that received its full response.
func (st *Statistics) RecordCompleted() { st.update(func(s *StatsSnapshot) { s.Completed++ }) }

// RecordTimeout counts a request that expired.
func (st *Statistics) RecordTimeout() { st.update(func(s *StatsSnapshot) { s.Timeouts++ }) }

// RecordTransportError counts a failed send.
func (st *Statistics) RecordTransportError() {
	st.update(func(s *StatsSnapshot) { s.TransportErrors++ })
}

// Snapshot returns the counters with rates calculated.
func (st *Statistics) Snapshot() StatsSnapshot {
	st.mu.Lock()
	out := st.s
	st.mu.Unlock()

	elapsed := time.Since(out.StartTime).Seconds()
	if elapsed > 0 {
		out.FrameRate = float64(out.FramesReceived) / elapsed
		out.ErrorRate = float64(out.errorCount()) / elapsed
	}
	return out
}

func (s StatsSnapshot) errorCount() uint64 {
	return s.FramingErrors + s.Timeouts + s.TransportErrors
}

// String returns a formatted statistics summary.
func (st *Statistics) String() string {
	s := st.Snapshot()

	var matchedPercent, unmatchedPercent float64
	if s.FramesReceived > 0 {
		matchedPercent = float64(s.MatchedFrames) * 100.0 / float64(s.FramesReceived)
		unmatchedPercent = float64(s.UnmatchedFrames) * 100.0 / float64(s.FramesReceived)
	}

	elapsed := time.Since(s.StartTime)

	result := fmt.Sprintf("=== Bus Statistics (%.0f seconds) ===\n", elapsed.Seconds())
	result += fmt.Sprintf("Frames Sent:     %8d\n", s.FramesSent)
	result += fmt.Sprintf("Frames Received: %8d\n", s.FramesReceived)
	result += fmt.Sprintf("  Matched:       %8d (%.1f%%)\n", s.MatchedFrames, matchedPercent)
	result += fmt.Sprintf("  Unmatched:     %8d (%.1f%%)\n", s.UnmatchedFrames, unmatchedPercent)
	result += fmt.Sprintf("Completed:       %8d\n", s.Completed)

	if s.Timeouts > 0 {
		result += fmt.Sprintf("Timeouts:        %8d\n", s.Timeouts)
	}
	if s.TransportErrors > 0 {
		result += fmt.Sprintf("Send Errors:     %8d\n", s.TransportErrors)
	}
	if s.FramingErrors > 0 {
		result += fmt.Sprintf("Framing Errors:  %8d\n", s.FramingErrors)
	}

	result += fmt.Sprintf("Frame Rate:      %8.1f frames/sec\n", s.FrameRate)
	result += fmt.Sprintf("Error Rate:      %8.1f errors/sec\n", s.ErrorRate)
	result += "====================================\n"

	return result
}
