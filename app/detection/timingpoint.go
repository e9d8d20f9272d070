/* Apache v2 license
*  Copyright (C) <2019> Intel Corporation
*
*  SPDX-License-Identifier: Apache-2.0
 */

package detection

import (
	"sync"
	"time"

	"github.com/intel/rsp-sw-toolkit-im-suite-timing-engine/app/tagevent"
)

// CooldownRecord suppresses a tag at a timing point after a crossing.
type CooldownRecord struct {
	TagID           string
	TimingPointID   string
	SuppressedUntil time.Time
}

// timingPoint owns the buffers and cooldowns of one timing point. Every
// method must be called with mu held.
type timingPoint struct {
	mu        sync.Mutex
	id        string
	cfg       Config
	buffers   map[string]*Buffer
	cooldowns map[string]CooldownRecord
	// removed is set once the manager no longer routes here.
	removed bool
}

func newTimingPoint(id string, cfg Config) *timingPoint {
	return &timingPoint{
		id:        id,
		cfg:       cfg,
		buffers:   make(map[string]*Buffer),
		cooldowns: make(map[string]CooldownRecord),
	}
}

// suppressed reports whether tagID is cooling down, evicting the record
// once it has lapsed.
func (tp *timingPoint) suppressed(tagID string, now time.Time) bool {
	rec, ok := tp.cooldowns[tagID]
	if !ok {
		return false
	}
	if now.Before(rec.SuppressedUntil) {
		return true
	}
	delete(tp.cooldowns, tagID)
	return false
}

func (tp *timingPoint) emit(b *Buffer, now time.Time) CrossingEvent {
	delete(tp.buffers, b.TagID)
	tp.cooldowns[b.TagID] = CooldownRecord{
		TagID:           b.TagID,
		TimingPointID:   tp.id,
		SuppressedUntil: now.Add(tp.cfg.Cooldown),
	}
	return b.finalize(tp.id, tp.cfg)
}

// process applies one event. It returns the crossings it caused and
// whether the event was discarded by a cooldown.
func (tp *timingPoint) process(ev tagevent.TagEvent, now time.Time) (out []CrossingEvent, discarded bool) {
	// a window that expired before the sweep got to it closes first
	if b, ok := tp.buffers[ev.TagID]; ok && b.expired(now) {
		out = append(out, tp.emit(b, now))
	}

	if tp.suppressed(ev.TagID, now) {
		return out, true
	}

	if b, ok := tp.buffers[ev.TagID]; ok {
		b.add(ev)
		return out, false
	}

	b := newBuffer(ev, now, tp.cfg.Window)
	tp.buffers[ev.TagID] = b
	if tp.cfg.Mode == FirstSeen {
		out = append(out, tp.emit(b, now))
	}
	return out, false
}

// sweep closes expired windows and evicts lapsed cooldowns.
func (tp *timingPoint) sweep(now time.Time) []CrossingEvent {
	var out []CrossingEvent
	for _, b := range tp.buffers {
		if b.expired(now) {
			out = append(out, tp.emit(b, now))
		}
	}
	for tagID, rec := range tp.cooldowns {
		if !now.Before(rec.SuppressedUntil) {
			delete(tp.cooldowns, tagID)
		}
	}
	return out
}

// drain force-closes every open window under the current config.
func (tp *timingPoint) drain(now time.Time) []CrossingEvent {
	var out []CrossingEvent
	for _, b := range tp.buffers {
		out = append(out, tp.emit(b, now))
	}
	return out
}

// TimingPointStatus is a point in time view of a timing point.
type TimingPointStatus struct {
	ID          string `json:"timing_point_id"`
	Mode        Mode   `json:"detection_mode"`
	Window      string `json:"window"`
	Cooldown    string `json:"cooldown"`
	MinSamples  int    `json:"min_samples"`
	OpenBuffers int    `json:"open_buffers"`
	Cooldowns   int    `json:"cooldowns"`
}

func (tp *timingPoint) status() TimingPointStatus {
	return TimingPointStatus{
		ID:          tp.id,
		Mode:        tp.cfg.Mode,
		Window:      tp.cfg.Window.String(),
		Cooldown:    tp.cfg.Cooldown.String(),
		MinSamples:  tp.cfg.MinSamplesForRegression,
		OpenBuffers: len(tp.buffers),
		Cooldowns:   len(tp.cooldowns),
	}
}
