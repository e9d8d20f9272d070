/* Apache v2 license
*  Copyright (C) <2019> Intel Corporation
*
*  SPDX-License-Identifier: Apache-2.0
 */

package detection

import (
	"encoding/json"
	"time"
)

// TimeFormat is ISO-8601 UTC with millisecond precision.
const TimeFormat = "2006-01-02T15:04:05.000Z"

// ModeUsed records which algorithm produced a crossing timestamp.
type ModeUsed string

const (
	UsedFirstSeen ModeUsed = "first_seen"
	UsedLastSeen  ModeUsed = "last_seen"
	UsedPeakRSSI  ModeUsed = "peak_rssi"
	// UsedPeakRSSIMaxSample means the fit had no interior maximum and the
	// strongest sample was used instead.
	UsedPeakRSSIMaxSample ModeUsed = "peak_rssi_max_sample"
	// UsedLastSeenFallback means a peak_rssi window had too few samples, or
	// a singular fit, and the last_seen result was emitted.
	UsedLastSeenFallback ModeUsed = "last_seen_fallback"
)

// CrossingEvent is the single authoritative passage of a tag at a timing point.
type CrossingEvent struct {
	ID            string
	TagID         string
	TimingPointID string
	Timestamp     time.Time
	ModeUsed      ModeUsed
	SampleCount   int
	// RSSI is the strongest observed, or for peak_rssi the fitted peak, in dBm.
	RSSI     float64
	ReaderID string
}

type crossingJSON struct {
	ID            string   `json:"id"`
	TagID         string   `json:"tag_id"`
	TimingPointID string   `json:"timing_point_id"`
	Timestamp     string   `json:"timestamp"`
	ModeUsed      ModeUsed `json:"mode_used"`
	SampleCount   int      `json:"sample_count"`
	RSSI          float64  `json:"rssi"`
	ReaderID      string   `json:"reader_id,omitempty"`
}

func (c CrossingEvent) MarshalJSON() ([]byte, error) {
	return json.Marshal(crossingJSON{
		ID:            c.ID,
		TagID:         c.TagID,
		TimingPointID: c.TimingPointID,
		Timestamp:     c.Timestamp.UTC().Format(TimeFormat),
		ModeUsed:      c.ModeUsed,
		SampleCount:   c.SampleCount,
		RSSI:          c.RSSI,
		ReaderID:      c.ReaderID,
	})
}

func (c *CrossingEvent) UnmarshalJSON(b []byte) error {
	var cj crossingJSON
	if err := json.Unmarshal(b, &cj); err != nil {
		return err
	}
	ts, err := time.Parse(TimeFormat, cj.Timestamp)
	if err != nil {
		return err
	}
	*c = CrossingEvent{
		ID:            cj.ID,
		TagID:         cj.TagID,
		TimingPointID: cj.TimingPointID,
		Timestamp:     ts,
		ModeUsed:      cj.ModeUsed,
		SampleCount:   cj.SampleCount,
		RSSI:          cj.RSSI,
		ReaderID:      cj.ReaderID,
	}
	return nil
}
