/* Apache v2 license
*  Copyright (C) <2019> Intel Corporation
*
*  SPDX-License-Identifier: Apache-2.0
 */

package tagevent

import (
	"encoding/binary"
	"encoding/hex"
	"strings"
	"time"

	"github.com/intel/rsp-sw-toolkit-im-suite-timing-engine/pkg/llrp"
	"github.com/pkg/errors"
)

// VendorImpinj is Impinj's IANA private enterprise number, as reported in
// GeneralDeviceCapabilities.DeviceManufacturerName.
const VendorImpinj = uint32(25882)

// ImpinjPeakRSSI is the custom subtype carrying RSSI in hundredths of a dBm.
const ImpinjPeakRSSI = uint32(57)

var ErrNoEPC = errors.New("tag report has no EPC")

// Profile extracts the fields of a TagReportData the way a particular reader
// vendor populates them.
type Profile interface {
	Name() string
	EPC(t *llrp.TagReportData) (string, bool)
	RSSI(t *llrp.TagReportData) float64
	// Timestamp returns the captured time, or received when the reader did
	// not supply a usable one.
	Timestamp(t *llrp.TagReportData, received time.Time) time.Time
}

// Normalize converts a TagReportData to a TagEvent using p.
func Normalize(p Profile, readerID string, t *llrp.TagReportData, received time.Time) (TagEvent, error) {
	epc, ok := p.EPC(t)
	if !ok {
		return TagEvent{}, ErrNoEPC
	}
	return TagEvent{
		TagID:     epc,
		RSSI:      p.RSSI(t),
		Timestamp: p.Timestamp(t, received),
		AntennaID: int(t.AntennaID),
		ReaderID:  readerID,
	}, nil
}

// Generic follows the LLRP standard parameters only.
type Generic struct {
	// HasUTCClock is false for readers that only report uptime, in which
	// case the host receive time is used.
	HasUTCClock bool
}

func (Generic) Name() string { return "generic" }

func (Generic) EPC(t *llrp.TagReportData) (string, bool) {
	if len(t.EPC) == 0 {
		return "", false
	}
	return strings.ToUpper(hex.EncodeToString(t.EPC)), true
}

func (Generic) RSSI(t *llrp.TagReportData) float64 {
	if !t.HasPeakRSSI {
		return DefaultRSSI
	}
	return float64(t.PeakRSSI)
}

func (g Generic) Timestamp(t *llrp.TagReportData, received time.Time) time.Time {
	if !g.HasUTCClock {
		return received
	}
	switch {
	case t.FirstSeenUTC != 0:
		return microsToTime(t.FirstSeenUTC)
	case t.LastSeenUTC != 0:
		return microsToTime(t.LastSeenUTC)
	}
	return received
}

// Impinj readers add a higher resolution peak RSSI as a custom parameter
// when ImpinjTagReportContentSelector enables it.
type Impinj struct {
	Generic
}

func (Impinj) Name() string { return "impinj" }

func (i Impinj) RSSI(t *llrp.TagReportData) float64 {
	for _, c := range t.Custom {
		if c.Vendor == VendorImpinj && c.Subtype == ImpinjPeakRSSI && len(c.Data) >= 2 {
			return float64(int16(binary.BigEndian.Uint16(c.Data))) / 100
		}
	}
	return i.Generic.RSSI(t)
}

// ProfileFor picks the profile matching the capabilities a Reader reported.
// Missing capabilities select Generic with a UTC clock.
func ProfileFor(c *llrp.GeneralDeviceCapabilities) Profile {
	if c == nil {
		return Generic{HasUTCClock: true}
	}
	g := Generic{HasUTCClock: c.HasUTCClockCapability}
	if c.DeviceManufacturerName == VendorImpinj {
		return Impinj{Generic: g}
	}
	return g
}

func microsToTime(us uint64) time.Time {
	return time.Unix(0, int64(us)*int64(time.Microsecond)).UTC()
}
