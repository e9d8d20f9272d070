/* Apache v2 license
*  Copyright (C) <2019> Intel Corporation
*
*  SPDX-License-Identifier: Apache-2.0
 */

package station

import (
	"sort"

	"github.com/intel/rsp-sw-toolkit-im-suite-timing-engine/app/detection"
	"github.com/intel/rsp-sw-toolkit-im-suite-timing-engine/app/reader"
	"github.com/pkg/errors"
)

// TimingPoint binds a detection config to a reader and some of its antennas.
type TimingPoint struct {
	ID         string
	ReaderHost string
	ReaderPort int
	// Antennas limits the timing point to these antenna ids. Empty means
	// every antenna of the reader not claimed explicitly by another timing
	// point.
	Antennas  []int
	Detection detection.Config
}

// ReaderID is the address of the timing point's reader, which also names
// the reader in tag events and health.
func (tp TimingPoint) ReaderID() string {
	return reader.Config{Host: tp.ReaderHost, Port: tp.ReaderPort}.Address()
}

func (tp TimingPoint) validate() error {
	if tp.ID == "" {
		return errors.New("timing point id is required")
	}
	if tp.ReaderHost == "" {
		return errors.Errorf("timing point %q: reader host is required", tp.ID)
	}
	if tp.ReaderPort < 0 || tp.ReaderPort > 65535 {
		return errors.Errorf("timing point %q: invalid reader port %d", tp.ID, tp.ReaderPort)
	}
	for _, a := range tp.Antennas {
		if a < 1 || a > 65535 {
			return errors.Errorf("timing point %q: invalid antenna %d", tp.ID, a)
		}
	}
	return nil
}

// routeTable maps antennas of one reader to timing points.
type routeTable struct {
	explicit map[int][]string
	all      []string
}

// lookup returns the timing points an antenna feeds. An explicit antenna
// assignment takes precedence over catch-all timing points.
func (rt *routeTable) lookup(antenna int) []string {
	if ids, ok := rt.explicit[antenna]; ok {
		return ids
	}
	return rt.all
}

// buildRoutes groups timing points by reader.
func buildRoutes(points map[string]TimingPoint) map[string]*routeTable {
	ids := make([]string, 0, len(points))
	for id := range points {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	routes := make(map[string]*routeTable)
	for _, id := range ids {
		tp := points[id]
		rt, ok := routes[tp.ReaderID()]
		if !ok {
			rt = &routeTable{explicit: make(map[int][]string)}
			routes[tp.ReaderID()] = rt
		}
		if len(tp.Antennas) == 0 {
			rt.all = append(rt.all, id)
			continue
		}
		for _, a := range tp.Antennas {
			rt.explicit[a] = append(rt.explicit[a], id)
		}
	}
	return routes
}
