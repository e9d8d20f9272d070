/* Apache v2 license
*  Copyright (C) <2019> Intel Corporation
*
*  SPDX-License-Identifier: Apache-2.0
 */

// Package station composes reader connections and the detection manager
// into one timing station.
package station

import (
	"context"
	"sort"
	"sync"

	"github.com/intel/rsp-sw-toolkit-im-suite-timing-engine/app/detection"
	"github.com/intel/rsp-sw-toolkit-im-suite-timing-engine/app/reader"
	"github.com/intel/rsp-sw-toolkit-im-suite-timing-engine/app/tagevent"
	"github.com/pkg/errors"
	"github.com/rcrowley/go-metrics"
	log "github.com/sirupsen/logrus"
)

var ErrNotStarted = errors.New("station not started")

type Config struct {
	TimingPoints []TimingPoint
	// ReaderDefaults carries timeouts and backoff for every reader; host,
	// port and id are filled per reader.
	ReaderDefaults reader.Config
	QueueSize      int
	Registry       metrics.Registry
	// Clock overrides the detection clock, for tests.
	Clock detection.Clock
}

type Station struct {
	cfg     Config
	manager *detection.Manager

	mu      sync.RWMutex
	points  map[string]TimingPoint
	routes  map[string]*routeTable
	readers map[string]*reader.Connection
	ctx     context.Context
	cancel  context.CancelFunc
	done    chan struct{}

	healthMu sync.Mutex
	health   map[chan reader.Status]struct{}

	mUnrouted metrics.Counter
}

// New validates every timing point and configures the detection manager.
// Nothing connects until Start.
func New(cfg Config) (*Station, error) {
	if cfg.Registry == nil {
		cfg.Registry = metrics.DefaultRegistry
	}
	opts := []detection.Option{detection.WithRegistry(cfg.Registry), detection.WithQueueSize(cfg.QueueSize)}
	if cfg.Clock != nil {
		opts = append(opts, detection.WithClock(cfg.Clock))
	}

	s := &Station{
		cfg:       cfg,
		manager:   detection.NewManager(opts...),
		points:    make(map[string]TimingPoint),
		readers:   make(map[string]*reader.Connection),
		health:    make(map[chan reader.Status]struct{}),
		mUnrouted: metrics.GetOrRegisterCounter("Station.Route.Unmapped-Antenna", cfg.Registry),
	}

	for _, tp := range cfg.TimingPoints {
		if err := tp.validate(); err != nil {
			return nil, err
		}
		if _, dup := s.points[tp.ID]; dup {
			return nil, errors.Errorf("duplicate timing point %q", tp.ID)
		}
		if err := s.manager.Configure(tp.ID, tp.Detection); err != nil {
			return nil, err
		}
		s.points[tp.ID] = tp
	}
	s.routes = buildRoutes(s.points)
	return s, nil
}

func (s *Station) Manager() *detection.Manager {
	return s.manager
}

// Start runs the detection manager and connects every reader.
func (s *Station) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cancel != nil {
		return errors.New("station already started")
	}

	s.ctx, s.cancel = context.WithCancel(ctx)
	s.done = make(chan struct{})
	go func() {
		defer close(s.done)
		s.manager.Run(s.ctx)
	}()

	for readerID := range s.routes {
		if err := s.startReaderLocked(readerID); err != nil {
			return err
		}
	}
	log.WithFields(log.Fields{
		"Method":       "Start",
		"Readers":      len(s.readers),
		"TimingPoints": len(s.points),
	}).Info("station started")
	return nil
}

func (s *Station) startReaderLocked(readerID string) error {
	if _, running := s.readers[readerID]; running {
		return nil
	}
	var tp TimingPoint
	for _, p := range s.points {
		if p.ReaderID() == readerID {
			tp = p
			break
		}
	}

	cfg := s.cfg.ReaderDefaults
	cfg.ReaderID = readerID
	cfg.Host = tp.ReaderHost
	cfg.Port = tp.ReaderPort

	conn := reader.New(cfg)
	conn.OnTagEvent(s.route)
	conn.OnStateChange(s.publishHealth)
	if err := conn.Start(s.ctx); err != nil {
		return errors.Wrapf(err, "start reader %s", readerID)
	}
	s.readers[readerID] = conn
	return nil
}

// Stop disconnects every reader, then finalizes all open windows and closes
// the crossing and health streams.
func (s *Station) Stop(ctx context.Context) error {
	s.mu.Lock()
	if s.cancel == nil {
		s.mu.Unlock()
		return ErrNotStarted
	}
	readers := s.readers
	s.readers = make(map[string]*reader.Connection)
	cancel, done := s.cancel, s.done
	s.mu.Unlock()

	var firstErr error
	var wg sync.WaitGroup
	var errMu sync.Mutex
	for _, conn := range readers {
		wg.Add(1)
		go func(conn *reader.Connection) {
			defer wg.Done()
			if err := conn.Stop(ctx); err != nil {
				log.WithError(err).WithField("Reader", conn.ReaderID()).Warn("reader did not close gracefully")
				errMu.Lock()
				if firstErr == nil {
					firstErr = err
				}
				errMu.Unlock()
			}
		}(conn)
	}
	wg.Wait()

	cancel()
	<-done
	s.closeHealth()

	log.WithField("Method", "Stop").Info("station stopped")
	return firstErr
}

// route stamps the timing point onto a tag event and queues it.
func (s *Station) route(ev tagevent.TagEvent) {
	s.mu.RLock()
	rt, ok := s.routes[ev.ReaderID]
	var ids []string
	if ok {
		ids = rt.lookup(ev.AntennaID)
	}
	s.mu.RUnlock()

	if len(ids) == 0 {
		s.mUnrouted.Inc(1)
		log.WithFields(log.Fields{
			"Method":  "route",
			"Antenna": ev.AntennaAlias(),
		}).Debug("no timing point for antenna")
		return
	}
	for _, id := range ids {
		if err := s.manager.Submit(ev.WithTimingPoint(id)); err != nil {
			log.WithFields(log.Fields{
				"Method":      "route",
				"TimingPoint": id,
				"Tag":         ev.TagID,
			}).WithError(err).Warn("dropping tag event")
		}
	}
}

// Crossings subscribes to the crossing stream.
func (s *Station) Crossings(size int) (<-chan detection.CrossingEvent, func()) {
	return s.manager.Subscribe(size)
}

// UpdateTimingPoint adds or replaces a timing point. A replaced timing
// point's open windows are finalized under its old config first. Readers
// no longer used by any timing point are disconnected.
func (s *Station) UpdateTimingPoint(ctx context.Context, tp TimingPoint) error {
	if err := tp.validate(); err != nil {
		return err
	}
	if err := s.manager.Configure(tp.ID, tp.Detection); err != nil {
		return err
	}

	s.mu.Lock()
	s.points[tp.ID] = tp
	s.routes = buildRoutes(s.points)
	var err error
	if s.cancel != nil {
		err = s.startReaderLocked(tp.ReaderID())
	}
	orphans := s.orphanedReadersLocked()
	s.mu.Unlock()

	s.stopReaders(ctx, orphans)
	return err
}

// RemoveTimingPoint finalizes the timing point's open windows and stops
// routing to it.
func (s *Station) RemoveTimingPoint(ctx context.Context, id string) error {
	s.mu.Lock()
	if _, ok := s.points[id]; !ok {
		s.mu.Unlock()
		return errors.Wrapf(detection.ErrUnknownTimingPoint, "remove %q", id)
	}
	delete(s.points, id)
	s.routes = buildRoutes(s.points)
	orphans := s.orphanedReadersLocked()
	s.mu.Unlock()

	s.stopReaders(ctx, orphans)
	return s.manager.Remove(id)
}

func (s *Station) orphanedReadersLocked() []*reader.Connection {
	var orphans []*reader.Connection
	for id, conn := range s.readers {
		if _, used := s.routes[id]; !used {
			orphans = append(orphans, conn)
			delete(s.readers, id)
		}
	}
	return orphans
}

func (s *Station) stopReaders(ctx context.Context, conns []*reader.Connection) {
	for _, conn := range conns {
		if err := conn.Stop(ctx); err != nil {
			log.WithError(err).WithField("Reader", conn.ReaderID()).Warn("reader did not close gracefully")
		}
	}
}

// ReaderStatuses lists the health of every connected reader by id.
func (s *Station) ReaderStatuses() []reader.Status {
	s.mu.RLock()
	statuses := make([]reader.Status, 0, len(s.readers))
	for _, conn := range s.readers {
		statuses = append(statuses, conn.Status())
	}
	s.mu.RUnlock()

	sort.Slice(statuses, func(i, j int) bool { return statuses[i].ReaderID < statuses[j].ReaderID })
	return statuses
}

// TimingPointInfo joins a timing point's binding with its live state.
type TimingPointInfo struct {
	detection.TimingPointStatus
	ReaderID string `json:"reader_id"`
	Antennas []int  `json:"antennas,omitempty"`
}

func (s *Station) TimingPoints() []TimingPointInfo {
	statuses := s.manager.TimingPoints()

	s.mu.RLock()
	defer s.mu.RUnlock()
	infos := make([]TimingPointInfo, 0, len(statuses))
	for _, st := range statuses {
		tp, ok := s.points[st.ID]
		if !ok {
			continue
		}
		infos = append(infos, TimingPointInfo{TimingPointStatus: st, ReaderID: tp.ReaderID(), Antennas: tp.Antennas})
	}
	return infos
}
