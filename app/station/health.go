/* Apache v2 license
*  Copyright (C) <2019> Intel Corporation
*
*  SPDX-License-Identifier: Apache-2.0
 */

package station

import (
	"github.com/intel/rsp-sw-toolkit-im-suite-timing-engine/app/reader"
	"github.com/rcrowley/go-metrics"
	log "github.com/sirupsen/logrus"
)

// Health subscribes to reader state changes. A subscriber that falls behind
// misses changes rather than stalling the reader; ReaderStatuses always has
// the current state.
func (s *Station) Health(size int) (<-chan reader.Status, func()) {
	ch := make(chan reader.Status, size)
	s.healthMu.Lock()
	s.health[ch] = struct{}{}
	s.healthMu.Unlock()

	cancel := func() {
		s.healthMu.Lock()
		defer s.healthMu.Unlock()
		if _, ok := s.health[ch]; ok {
			delete(s.health, ch)
			close(ch)
		}
	}
	return ch, cancel
}

func (s *Station) publishHealth(status reader.Status) {
	s.healthMu.Lock()
	defer s.healthMu.Unlock()
	for ch := range s.health {
		select {
		case ch <- status:
		default:
			metrics.GetOrRegisterCounter("Station.Health.Dropped", s.cfg.Registry).Inc(1)
			log.WithFields(log.Fields{
				"Method": "publishHealth",
				"Reader": status.ReaderID,
				"State":  status.State,
			}).Warn("health subscriber is full")
		}
	}
}

func (s *Station) closeHealth() {
	s.healthMu.Lock()
	defer s.healthMu.Unlock()
	for ch := range s.health {
		delete(s.health, ch)
		close(ch)
	}
}
