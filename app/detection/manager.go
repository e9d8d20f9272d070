/* Apache v2 license
*  Copyright (C) <2019> Intel Corporation
*
*  SPDX-License-Identifier: Apache-2.0
 */

package detection

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/intel/rsp-sw-toolkit-im-suite-timing-engine/app/tagevent"
	"github.com/pkg/errors"
	"github.com/rcrowley/go-metrics"
	log "github.com/sirupsen/logrus"
)

const (
	DefaultQueueSize = 4096

	minSweepInterval = 5 * time.Millisecond
	maxSweepInterval = 250 * time.Millisecond
)

var (
	// ErrQueueFull is returned by Submit when the routing worker is behind.
	ErrQueueFull = errors.New("detection queue is full")
	// ErrUnknownTimingPoint is returned for operations on a timing point
	// that was never configured.
	ErrUnknownTimingPoint = errors.New("unknown timing point")
)

// Clock supplies host time. Tests replace it to control window expiry.
type Clock interface {
	Now() time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now() }

type Option func(*Manager)

func WithClock(c Clock) Option {
	return func(m *Manager) { m.clock = c }
}

func WithQueueSize(n int) Option {
	return func(m *Manager) {
		if n > 0 {
			m.queue = make(chan tagevent.TagEvent, n)
		}
	}
}

// WithRegistry records metrics in r instead of the default registry.
func WithRegistry(r metrics.Registry) Option {
	return func(m *Manager) { m.registry = r }
}

// Manager routes tag events to per timing point buffers and publishes the
// resulting crossings. A single routing goroutine started by Run consumes
// the queue; each timing point's state is guarded by its own mutex so
// Configure and Remove can drain it from other goroutines.
type Manager struct {
	clock    Clock
	registry metrics.Registry
	queue    chan tagevent.TagEvent
	reset    chan struct{}

	mu     sync.RWMutex
	points map[string]*timingPoint

	subsMu sync.Mutex
	subs   map[*subscriber]struct{}

	mQueued     metrics.Counter
	mQueueFull  metrics.Counter
	mUnrouted   metrics.Counter
	mSuppressed metrics.Counter
	mCrossings  metrics.Counter
	mFallback   metrics.Counter
	mLatency    metrics.Timer
}

func NewManager(opts ...Option) *Manager {
	m := &Manager{
		clock:    systemClock{},
		registry: metrics.DefaultRegistry,
		queue:    make(chan tagevent.TagEvent, DefaultQueueSize),
		reset:    make(chan struct{}, 1),
		points:   make(map[string]*timingPoint),
		subs:     make(map[*subscriber]struct{}),
	}
	for _, opt := range opts {
		opt(m)
	}

	m.mQueued = metrics.GetOrRegisterCounter("Detection.Submit.Queued", m.registry)
	m.mQueueFull = metrics.GetOrRegisterCounter("Detection.Submit.QueueFull-Error", m.registry)
	m.mUnrouted = metrics.GetOrRegisterCounter("Detection.Route.Unconfigured-TimingPoint", m.registry)
	m.mSuppressed = metrics.GetOrRegisterCounter("Detection.Route.Cooldown-Suppressed", m.registry)
	m.mCrossings = metrics.GetOrRegisterCounter("Detection.Crossing.Emitted", m.registry)
	m.mFallback = metrics.GetOrRegisterCounter("Detection.Crossing.LastSeen-Fallback", m.registry)
	m.mLatency = metrics.GetOrRegisterTimer("Detection.Route.Latency", m.registry)
	metrics.NewRegisteredFunctionalGauge("Detection.Submit.Queue-Depth", m.registry, func() int64 {
		return int64(len(m.queue))
	})
	return m
}

// Configure installs cfg for the timing point id. An existing timing point
// has its open windows finalized under the old config before the swap.
func (m *Manager) Configure(id string, cfg Config) error {
	if err := cfg.Validate(); err != nil {
		if ce, ok := err.(*ConfigError); ok {
			ce.TimingPointID = id
		}
		return err
	}

	for {
		m.mu.Lock()
		tp, exists := m.points[id]
		if !exists {
			m.points[id] = newTimingPoint(id, cfg)
		}
		m.mu.Unlock()
		if !exists {
			break
		}

		tp.mu.Lock()
		if tp.removed {
			// removed concurrently, install a fresh one
			tp.mu.Unlock()
			continue
		}
		drained := tp.drain(m.clock.Now())
		tp.cfg = cfg
		tp.mu.Unlock()

		log.WithFields(log.Fields{
			"Method":      "Configure",
			"Action":      "drain-then-swap",
			"TimingPoint": id,
			"Drained":     len(drained),
		}).Debug("detection config replaced")
		m.publish(drained)
		break
	}

	log.WithFields(log.Fields{
		"Method":      "Configure",
		"TimingPoint": id,
		"Mode":        cfg.Mode,
		"Window":      cfg.Window,
		"Cooldown":    cfg.Cooldown,
	}).Info("timing point configured")
	m.signalReset()
	return nil
}

// Remove finalizes the open windows of a timing point and forgets it.
func (m *Manager) Remove(id string) error {
	m.mu.Lock()
	tp, exists := m.points[id]
	delete(m.points, id)
	m.mu.Unlock()

	if !exists {
		return errors.Wrapf(ErrUnknownTimingPoint, "remove %q", id)
	}

	tp.mu.Lock()
	tp.removed = true
	drained := tp.drain(m.clock.Now())
	tp.mu.Unlock()
	m.publish(drained)

	log.WithFields(log.Fields{
		"Method":      "Remove",
		"TimingPoint": id,
		"Drained":     len(drained),
	}).Info("timing point removed")
	m.signalReset()
	return nil
}

// Config returns the installed config of a timing point.
func (m *Manager) Config(id string) (Config, bool) {
	m.mu.RLock()
	tp, ok := m.points[id]
	m.mu.RUnlock()
	if !ok {
		return Config{}, false
	}
	tp.mu.Lock()
	defer tp.mu.Unlock()
	return tp.cfg, true
}

// Submit queues ev for routing. It never blocks.
func (m *Manager) Submit(ev tagevent.TagEvent) error {
	select {
	case m.queue <- ev:
		m.mQueued.Inc(1)
		return nil
	default:
		m.mQueueFull.Inc(1)
		return ErrQueueFull
	}
}

// Run routes queued events and sweeps expired windows until ctx is done,
// then flushes every open window. Run must only be called once.
func (m *Manager) Run(ctx context.Context) {
	ticker := time.NewTicker(m.sweepInterval())
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			m.shutdown()
			return
		case ev := <-m.queue:
			m.route(ev)
		case <-ticker.C:
			m.sweep()
		case <-m.reset:
			ticker.Reset(m.sweepInterval())
		}
	}
}

func (m *Manager) shutdown() {
	for drained := false; !drained; {
		select {
		case ev := <-m.queue:
			m.route(ev)
		default:
			drained = true
		}
	}
	m.FlushAll()
	m.closeSubscribers()
	log.WithFields(log.Fields{"Method": "Run", "Action": "shutdown"}).Info("detection manager stopped")
}

// FlushAll finalizes every open window of every timing point.
func (m *Manager) FlushAll() {
	for _, tp := range m.timingPoints() {
		tp.mu.Lock()
		drained := tp.drain(m.clock.Now())
		tp.mu.Unlock()
		m.publish(drained)
	}
}

func (m *Manager) timingPoints() []*timingPoint {
	m.mu.RLock()
	defer m.mu.RUnlock()
	tps := make([]*timingPoint, 0, len(m.points))
	for _, tp := range m.points {
		tps = append(tps, tp)
	}
	return tps
}

func (m *Manager) route(ev tagevent.TagEvent) {
	start := time.Now()
	defer m.mLatency.UpdateSince(start)

	for {
		m.mu.RLock()
		tp, ok := m.points[ev.TimingPointID]
		m.mu.RUnlock()
		if !ok {
			m.mUnrouted.Inc(1)
			log.WithFields(log.Fields{
				"Method":      "route",
				"TimingPoint": ev.TimingPointID,
				"Reader":      ev.ReaderID,
				"EPC":         ev.TagID,
			}).Warn("dropping tag event for unconfigured timing point")
			return
		}
		if m.processOn(tp, ev) {
			return
		}
	}
}

// processOn applies ev to tp. It returns false without touching tp when tp
// was removed after the lookup, so the caller looks it up again.
func (m *Manager) processOn(tp *timingPoint, ev tagevent.TagEvent) bool {
	tp.mu.Lock()
	if tp.removed {
		tp.mu.Unlock()
		return false
	}
	out, discarded := tp.process(ev, m.clock.Now())
	tp.mu.Unlock()

	if discarded {
		m.mSuppressed.Inc(1)
	}
	m.publish(out)
	return true
}

func (m *Manager) sweep() {
	now := m.clock.Now()
	for _, tp := range m.timingPoints() {
		tp.mu.Lock()
		out := tp.sweep(now)
		tp.mu.Unlock()
		m.publish(out)
	}
}

// sweepInterval is a quarter of the smallest buffered window, bounded to
// [minSweepInterval, maxSweepInterval].
func (m *Manager) sweepInterval() time.Duration {
	interval := maxSweepInterval
	for _, tp := range m.timingPoints() {
		tp.mu.Lock()
		cfg := tp.cfg
		tp.mu.Unlock()
		if cfg.Mode.buffered() && cfg.Window/4 < interval {
			interval = cfg.Window / 4
		}
	}
	if interval < minSweepInterval {
		interval = minSweepInterval
	}
	return interval
}

func (m *Manager) signalReset() {
	select {
	case m.reset <- struct{}{}:
	default:
	}
}

// TimingPoints reports the state of every configured timing point.
func (m *Manager) TimingPoints() []TimingPointStatus {
	tps := m.timingPoints()
	out := make([]TimingPointStatus, 0, len(tps))
	for _, tp := range tps {
		tp.mu.Lock()
		out = append(out, tp.status())
		tp.mu.Unlock()
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (m *Manager) publish(crossings []CrossingEvent) {
	if len(crossings) == 0 {
		return
	}
	sort.SliceStable(crossings, func(i, j int) bool {
		return crossings[i].Timestamp.Before(crossings[j].Timestamp)
	})

	m.subsMu.Lock()
	subs := make([]*subscriber, 0, len(m.subs))
	for s := range m.subs {
		subs = append(subs, s)
	}
	m.subsMu.Unlock()

	for i := range crossings {
		crossings[i].ID = uuid.New().String()
		m.mCrossings.Inc(1)
		if crossings[i].ModeUsed == UsedLastSeenFallback {
			m.mFallback.Inc(1)
		}
		log.WithFields(log.Fields{
			"Method":      "publish",
			"TimingPoint": crossings[i].TimingPointID,
			"EPC":         crossings[i].TagID,
			"Mode":        crossings[i].ModeUsed,
			"Samples":     crossings[i].SampleCount,
		}).Debugf("crossing at %s", crossings[i].Timestamp.UTC().Format(TimeFormat))

		for _, s := range subs {
			s.send(crossings[i])
		}
	}
}
