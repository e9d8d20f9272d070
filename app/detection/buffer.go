/* Apache v2 license
*  Copyright (C) <2019> Intel Corporation
*
*  SPDX-License-Identifier: Apache-2.0
 */

package detection

import (
	"time"

	"github.com/intel/rsp-sw-toolkit-im-suite-timing-engine/app/tagevent"
)

// Buffer holds the reads of one tag at one timing point while its window
// is open.
type Buffer struct {
	TagID string
	// OpenedAt is the timestamp of the first event and the origin of the
	// regression time axis.
	OpenedAt time.Time
	// Deadline is the host time at which the window expires.
	Deadline time.Time

	samples *sampleSet
	latest  sample
	peak    sample
}

func newBuffer(ev tagevent.TagEvent, now time.Time, window time.Duration) *Buffer {
	b := &Buffer{
		TagID:    ev.TagID,
		OpenedAt: ev.Timestamp,
		Deadline: now.Add(window),
		samples:  newSampleSet(maxSamplesPerBuffer),
	}
	b.add(ev)
	return b
}

func (b *Buffer) add(ev tagevent.TagEvent) {
	s := sample{at: ev.Timestamp, rssi: ev.RSSI, readerID: ev.ReaderID}
	if b.samples.received == 0 || !s.at.Before(b.latest.at) {
		b.latest = s
	}
	if b.samples.received == 0 || s.rssi > b.peak.rssi {
		b.peak = s
	}
	b.samples.add(s)
}

// SampleCount is the number of reads held for the window. It equals the
// reads received unless the window outgrew maxSamplesPerBuffer and was
// thinned, in which case it is the number the fit uses.
func (b *Buffer) SampleCount() int {
	return b.samples.len()
}

func (b *Buffer) expired(now time.Time) bool {
	return !now.Before(b.Deadline)
}

// finalize computes the crossing for the buffered reads under cfg.
func (b *Buffer) finalize(timingPointID string, cfg Config) CrossingEvent {
	ce := CrossingEvent{
		TagID:         b.TagID,
		TimingPointID: timingPointID,
		SampleCount:   b.SampleCount(),
	}

	switch {
	case cfg.Mode == FirstSeen:
		first := b.samples.all()[0]
		ce.Timestamp, ce.RSSI, ce.ReaderID, ce.ModeUsed = first.at, first.rssi, first.readerID, UsedFirstSeen
	case cfg.Mode == PeakRSSI && b.SampleCount() >= cfg.MinSamplesForRegression:
		if ts, rssi, used, ok := b.estimatePeak(); ok {
			ce.Timestamp, ce.RSSI, ce.ModeUsed = ts, rssi, used
			ce.ReaderID = b.peak.readerID
			break
		}
		b.lastSeen(&ce, UsedLastSeenFallback)
	case cfg.Mode == PeakRSSI:
		b.lastSeen(&ce, UsedLastSeenFallback)
	default:
		b.lastSeen(&ce, UsedLastSeen)
	}
	return ce
}

func (b *Buffer) lastSeen(ce *CrossingEvent, used ModeUsed) {
	ce.Timestamp = b.latest.at
	ce.RSSI = b.peak.rssi
	ce.ReaderID = b.latest.readerID
	ce.ModeUsed = used
}

// estimatePeak fits rssi(t) = a*t^2 + b*t + c with t in seconds since
// OpenedAt. With a < 0 the vertex, clamped to the sampled interval, is the
// crossing. Otherwise the strongest sample is used. ok is false when the
// fit is singular.
func (b *Buffer) estimatePeak() (time.Time, float64, ModeUsed, bool) {
	samples := b.samples.all()
	xs := make([]float64, len(samples))
	ys := make([]float64, len(samples))
	lo, hi := 0.0, 0.0
	for i, s := range samples {
		x := s.at.Sub(b.OpenedAt).Seconds()
		xs[i], ys[i] = x, s.rssi
		if i == 0 || x < lo {
			lo = x
		}
		if i == 0 || x > hi {
			hi = x
		}
	}

	qa, qb, qc, ok := fitQuadratic(xs, ys)
	if !ok {
		return time.Time{}, 0, "", false
	}

	if qa >= 0 {
		return b.peak.at, b.peak.rssi, UsedPeakRSSIMaxSample, true
	}

	vertex := -qb / (2 * qa)
	if vertex < lo {
		vertex = lo
	} else if vertex > hi {
		vertex = hi
	}
	rssi := qa*vertex*vertex + qb*vertex + qc
	offset := time.Duration(vertex*float64(time.Second) + 0.5)
	if vertex < 0 {
		offset = time.Duration(vertex*float64(time.Second) - 0.5)
	}
	return b.OpenedAt.Add(offset), rssi, UsedPeakRSSI, true
}
