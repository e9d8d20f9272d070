/* Apache v2 license
*  Copyright (C) <2019> Intel Corporation
*
*  SPDX-License-Identifier: Apache-2.0
 */

package llrp

// Millisecs32 is a 32 bit duration in milliseconds, as LLRP sends it.
type Millisecs32 uint32

type ROSpecState uint8

const (
	ROSpecStateDisabled = ROSpecState(0)
	ROSpecStateInactive = ROSpecState(1)
	ROSpecStateActive   = ROSpecState(2)
)

type ROSpecStartTriggerType uint8

const (
	ROStartTriggerNone      = ROSpecStartTriggerType(0)
	ROStartTriggerImmediate = ROSpecStartTriggerType(1)
	ROStartTriggerPeriodic  = ROSpecStartTriggerType(2)
	ROStartTriggerGPI       = ROSpecStartTriggerType(3)
)

type ROSpecStopTriggerType uint8

const (
	ROStopTriggerNone     = ROSpecStopTriggerType(0)
	ROStopTriggerDuration = ROSpecStopTriggerType(1)
)

type AISpecStopTriggerType uint8

const (
	AIStopTriggerNone     = AISpecStopTriggerType(0)
	AIStopTriggerDuration = AISpecStopTriggerType(1)
)

type AirProtocol uint8

const AirProtoEPCGlobalClass1Gen2 = AirProtocol(1)

type ROReportTriggerType uint8

const (
	ROReportTriggerNone              = ROReportTriggerType(0)
	ROReportTriggerUponNTagsOrEndAI  = ROReportTriggerType(1)
	ROReportTriggerUponNTagsOrEndROS = ROReportTriggerType(2)
)

const (
	// DefaultROSpecID matches what deployed readers have historically been
	// configured with, so a DELETE_ROSPEC on connect clears stale specs.
	DefaultROSpecID                 = 123
	DefaultInventoryParameterSpecID = 1234
)

// ROSpec is a Reader Operation spec: when to run, which antennas to use,
// and what to put in the tag reports.
type ROSpec struct {
	ROSpecID           uint32
	Priority           uint8
	ROSpecCurrentState ROSpecState
	ROBoundarySpec     ROBoundarySpec
	AISpecs            []AISpec
	ROReportSpec       *ROReportSpec
}

type ROBoundarySpec struct {
	StartTrigger ROSpecStartTrigger
	StopTrigger  ROSpecStopTrigger
}

type ROSpecStartTrigger struct {
	Trigger ROSpecStartTriggerType
}

type ROSpecStopTrigger struct {
	Trigger              ROSpecStopTriggerType
	DurationTriggerValue Millisecs32
}

type AISpec struct {
	// AntennaIDs of [0] targets all antennas.
	AntennaIDs              []uint16
	StopTrigger             AISpecStopTrigger
	InventoryParameterSpecs []InventoryParameterSpec
}

type AISpecStopTrigger struct {
	Trigger              AISpecStopTriggerType
	DurationTriggerValue Millisecs32
}

type InventoryParameterSpec struct {
	InventoryParameterSpecID uint16 // must be >= 1
	AirProtocolID            AirProtocol
}

type ROReportSpec struct {
	Trigger         ROReportTriggerType
	N               uint16
	ContentSelector TagReportContentSelector
}

// TagReportContentSelector picks the optional fields of each TagReportData.
type TagReportContentSelector struct {
	EnableROSpecID                 bool
	EnableSpecIndex                bool
	EnableInventoryParameterSpecID bool
	EnableAntennaID                bool
	EnableChannelIndex             bool
	EnablePeakRSSI                 bool
	EnableFirstSeenTimestamp       bool
	EnableLastSeenTimestamp        bool
	EnableTagSeenCount             bool
	EnableAccessSpecID             bool
}

func (s TagReportContentSelector) flags() uint16 {
	var f uint16
	for i, on := range []bool{
		s.EnableROSpecID,
		s.EnableSpecIndex,
		s.EnableInventoryParameterSpecID,
		s.EnableAntennaID,
		s.EnableChannelIndex,
		s.EnablePeakRSSI,
		s.EnableFirstSeenTimestamp,
		s.EnableLastSeenTimestamp,
		s.EnableTagSeenCount,
		s.EnableAccessSpecID,
	} {
		if on {
			f |= 1 << uint(15-i)
		}
	}
	return f
}

// StartsImmediately is true when the Reader begins inventory as soon as the
// spec is enabled, so no START_ROSPEC is needed.
func (s *ROSpec) StartsImmediately() bool {
	return s.ROBoundarySpec.StartTrigger.Trigger == ROStartTriggerImmediate
}

type SpecOption interface {
	ModifyROSpec(spec *ROSpec)
}

type SpecOptFunc func(spec *ROSpec)

func (sof SpecOptFunc) ModifyROSpec(spec *ROSpec) {
	sof(spec)
}

func WithSpecID(id uint32) SpecOption {
	return SpecOptFunc(func(spec *ROSpec) {
		spec.ROSpecID = id
	})
}

// WithAntennas limits inventory to the given antennas. No ids means all.
func WithAntennas(ids ...uint16) SpecOption {
	return SpecOptFunc(func(spec *ROSpec) {
		if len(ids) == 0 {
			ids = []uint16{0}
		}
		for i := range spec.AISpecs {
			spec.AISpecs[i].AntennaIDs = append([]uint16(nil), ids...)
		}
	})
}

func WithInventoryParameterSpecID(id uint16) SpecOption {
	return SpecOptFunc(func(spec *ROSpec) {
		for i := range spec.AISpecs {
			for j := range spec.AISpecs[i].InventoryParameterSpecs {
				spec.AISpecs[i].InventoryParameterSpecs[j].InventoryParameterSpecID = id
			}
		}
	})
}

// WithReportEvery sets how many tags the Reader accumulates before sending
// an RO_ACCESS_REPORT.
func WithReportEvery(n uint16) SpecOption {
	return SpecOptFunc(func(spec *ROSpec) {
		if spec.ROReportSpec != nil {
			spec.ROReportSpec.N = n
		}
	})
}

// WithStartTrigger replaces the immediate start trigger. Anything other than
// immediate requires an explicit START_ROSPEC.
func WithStartTrigger(t ROSpecStartTriggerType) SpecOption {
	return SpecOptFunc(func(spec *ROSpec) {
		spec.ROBoundarySpec.StartTrigger.Trigger = t
	})
}

// NewROSpec returns a spec that starts immediately, never stops on its own,
// inventories Gen2 tags on all antennas, and reports every tag with its
// antenna, peak RSSI, first and last seen timestamps and seen count.
func NewROSpec(opts ...SpecOption) *ROSpec {
	s := &ROSpec{
		ROSpecID:           DefaultROSpecID,
		Priority:           0,
		ROSpecCurrentState: ROSpecStateDisabled, // ROSpecs must be Disabled upon creation.

		// ENABLE_ROSPEC starts it, DELETE_ROSPEC ends it.
		ROBoundarySpec: ROBoundarySpec{
			StartTrigger: ROSpecStartTrigger{Trigger: ROStartTriggerImmediate},
			StopTrigger:  ROSpecStopTrigger{Trigger: ROStopTriggerNone},
		},

		AISpecs: []AISpec{{
			AntennaIDs:  []uint16{0},
			StopTrigger: AISpecStopTrigger{Trigger: AIStopTriggerNone},
			InventoryParameterSpecs: []InventoryParameterSpec{{
				InventoryParameterSpecID: DefaultInventoryParameterSpecID,
				AirProtocolID:            AirProtoEPCGlobalClass1Gen2,
			}},
		}},

		ROReportSpec: &ROReportSpec{
			Trigger: ROReportTriggerUponNTagsOrEndROS,
			N:       1,
			ContentSelector: TagReportContentSelector{
				EnableAntennaID:          true,
				EnablePeakRSSI:           true,
				EnableFirstSeenTimestamp: true,
				EnableLastSeenTimestamp:  true,
				EnableTagSeenCount:       true,
			},
		},
	}

	for _, opt := range opts {
		opt.ModifyROSpec(s)
	}

	return s
}
