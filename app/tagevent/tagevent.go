/* Apache v2 license
*  Copyright (C) <2019> Intel Corporation
*
*  SPDX-License-Identifier: Apache-2.0
 */

package tagevent

import (
	"strconv"
	"strings"
	"time"
)

// DefaultRSSI is used when a report carries no signal strength at all.
const DefaultRSSI = -50.0

// TagEvent is one normalized tag detection.
type TagEvent struct {
	TagID string
	// RSSI in dBm
	RSSI      float64
	Timestamp time.Time
	AntennaID int
	ReaderID  string
	// TimingPointID is stamped by the station before the event is routed.
	TimingPointID string
}

// AntennaAlias identifies the physical antenna as "<reader>-<antenna>".
func (ev TagEvent) AntennaAlias() string {
	return AntennaAlias(ev.ReaderID, ev.AntennaID)
}

func AntennaAlias(readerID string, antennaID int) string {
	var sb strings.Builder
	sb.WriteString(readerID)
	sb.WriteString("-")
	sb.WriteString(strconv.Itoa(antennaID))
	return sb.String()
}

// WithTimingPoint returns a copy of ev scoped to the given timing point.
func (ev TagEvent) WithTimingPoint(id string) TagEvent {
	ev.TimingPointID = id
	return ev
}
