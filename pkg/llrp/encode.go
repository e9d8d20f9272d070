/* Apache v2 license
*  Copyright (C) <2019> Intel Corporation
*
*  SPDX-License-Identifier: Apache-2.0
 */

package llrp

import (
	"encoding/binary"

	"github.com/pkg/errors"
)

// Encode serializes m, computing the header length from the body.
func Encode(m Message) ([]byte, error) {
	return AppendMessage(nil, m)
}

// AppendMessage appends the encoding of m to dst.
func AppendMessage(dst []byte, m Message) ([]byte, error) {
	if m.Type > 1023 {
		return dst, errors.Errorf("message type %d does not fit in 10 bits", m.Type)
	}
	version := m.Version
	if version == 0 {
		version = Version
	}

	e := &encoder{b: dst}
	start := len(e.b)
	e.u16(uint16(version&0x7)<<10 | uint16(m.Type))
	e.u32(0)
	e.u32(m.ID)

	if err := e.body(m); err != nil {
		return dst, errors.Wrapf(err, "failed to encode %v", m.Type)
	}

	binary.BigEndian.PutUint32(e.b[start+2:], uint32(len(e.b)-start))
	return e.b, nil
}

type encoder struct {
	b []byte
}

func (e *encoder) u8(v uint8)   { e.b = append(e.b, v) }
func (e *encoder) u16(v uint16) { e.b = binary.BigEndian.AppendUint16(e.b, v) }
func (e *encoder) u32(v uint32) { e.b = binary.BigEndian.AppendUint32(e.b, v) }
func (e *encoder) u64(v uint64) { e.b = binary.BigEndian.AppendUint64(e.b, v) }

func (e *encoder) tv(t ParamType) {
	e.u8(0x80 | uint8(t))
}

// tlv writes a TLV header, the body written by fill, then backfills the length.
func (e *encoder) tlv(t ParamType, fill func()) {
	start := len(e.b)
	e.u16(uint16(t))
	e.u16(0)
	fill()
	binary.BigEndian.PutUint16(e.b[start+2:], uint16(len(e.b)-start))
}

func (e *encoder) str(s string) {
	e.u16(uint16(len(s)))
	e.b = append(e.b, s...)
}

func (e *encoder) body(m Message) error {
	switch p := m.Payload.(type) {
	case nil:
	case RawPayload:
		e.b = append(e.b, p...)
	case *ROSpecRequest:
		e.u32(p.ROSpecID)
	case *ROSpec:
		e.roSpec(p)
	case *CapabilitiesRequest:
		e.u8(p.RequestedData)
	case *ReaderConfig:
		e.readerConfig(p)
	case *StatusResponse:
		e.status(p.Status)
	case *Capabilities:
		e.status(p.Status)
		if p.General != nil {
			e.generalCapabilities(p.General)
		}
	case *ReaderEvent:
		e.readerEvent(p)
	case *Report:
		for i := range p.Tags {
			e.tagReportData(&p.Tags[i])
		}
	default:
		return errors.Errorf("unsupported payload %T", m.Payload)
	}
	return nil
}

func (e *encoder) roSpec(s *ROSpec) {
	e.tlv(ParamROSpec, func() {
		e.u32(s.ROSpecID)
		e.u8(s.Priority)
		e.u8(uint8(s.ROSpecCurrentState))

		e.tlv(ParamROBoundarySpec, func() {
			e.tlv(ParamROSpecStartTrigger, func() {
				e.u8(uint8(s.ROBoundarySpec.StartTrigger.Trigger))
			})
			e.tlv(ParamROSpecStopTrigger, func() {
				e.u8(uint8(s.ROBoundarySpec.StopTrigger.Trigger))
				e.u32(uint32(s.ROBoundarySpec.StopTrigger.DurationTriggerValue))
			})
		})

		for _, ai := range s.AISpecs {
			ai := ai
			e.tlv(ParamAISpec, func() {
				e.u16(uint16(len(ai.AntennaIDs)))
				for _, id := range ai.AntennaIDs {
					e.u16(id)
				}
				e.tlv(ParamAISpecStopTrigger, func() {
					e.u8(uint8(ai.StopTrigger.Trigger))
					e.u32(uint32(ai.StopTrigger.DurationTriggerValue))
				})
				for _, ips := range ai.InventoryParameterSpecs {
					ips := ips
					e.tlv(ParamInventoryParameterSpec, func() {
						e.u16(ips.InventoryParameterSpecID)
						e.u8(uint8(ips.AirProtocolID))
					})
				}
			})
		}

		if r := s.ROReportSpec; r != nil {
			e.tlv(ParamROReportSpec, func() {
				e.u8(uint8(r.Trigger))
				e.u16(r.N)
				e.tlv(ParamTagReportContentSelector, func() {
					e.u16(r.ContentSelector.flags())
				})
			})
		}
	})
}

func (e *encoder) readerConfig(c *ReaderConfig) {
	var flags uint8
	if c.ResetToFactoryDefault {
		flags |= 0x80
	}
	e.u8(flags)
	if k := c.Keepalive; k != nil {
		e.tlv(ParamKeepaliveSpec, func() {
			e.u8(uint8(k.Trigger))
			e.u32(uint32(k.PeriodicTrigger))
		})
	}
}

func (e *encoder) status(s LLRPStatus) {
	e.tlv(ParamLLRPStatus, func() {
		e.u16(uint16(s.Code))
		e.str(s.Description)
	})
}

func (e *encoder) generalCapabilities(g *GeneralDeviceCapabilities) {
	e.tlv(ParamGeneralDeviceCapabilities, func() {
		e.u16(g.MaxNumberOfAntennaSupported)
		var flags uint16
		if g.CanSetAntennaProperties {
			flags |= 0x8000
		}
		if g.HasUTCClockCapability {
			flags |= 0x4000
		}
		e.u16(flags)
		e.u32(g.DeviceManufacturerName)
		e.u32(g.ModelName)
		e.str(g.FirmwareVersion)
	})
}

func (e *encoder) readerEvent(r *ReaderEvent) {
	e.tlv(ParamReaderEventNotificationData, func() {
		ts := ParamUTCTimestamp
		if r.Uptime {
			ts = ParamUptime
		}
		e.tlv(ts, func() { e.u64(r.Timestamp) })

		if r.ConnectionAttempt != nil {
			e.tlv(ParamConnectionAttemptEvent, func() { e.u16(uint16(*r.ConnectionAttempt)) })
		}
		if r.ConnectionClosed {
			e.tlv(ParamConnectionCloseEvent, func() {})
		}
		if a := r.Antenna; a != nil {
			e.tlv(ParamAntennaEvent, func() {
				e.u8(uint8(a.Event))
				e.u16(a.AntennaID)
			})
		}
	})
}

// tagReportData writes parameters in the order LLRP defines for TagReportData.
// Zero valued optional fields are omitted, except antenna and RSSI which
// carry explicit presence flags.
func (e *encoder) tagReportData(t *TagReportData) {
	e.tlv(ParamTagReportData, func() {
		if len(t.EPC) == 12 {
			e.tv(ParamEPC96)
			e.b = append(e.b, t.EPC...)
		} else {
			e.tlv(ParamEPCData, func() {
				e.u16(uint16(len(t.EPC) * 8))
				e.b = append(e.b, t.EPC...)
			})
		}

		if t.ROSpecID != 0 {
			e.tv(ParamROSpecID)
			e.u32(t.ROSpecID)
		}
		if t.InventoryParameterSpecID != 0 {
			e.tv(ParamInventoryParameterSpecID)
			e.u16(t.InventoryParameterSpecID)
		}
		if t.HasAntennaID {
			e.tv(ParamAntennaID)
			e.u16(t.AntennaID)
		}
		if t.HasPeakRSSI {
			e.tv(ParamPeakRSSI)
			e.u8(uint8(t.PeakRSSI))
		}
		if t.ChannelIndex != 0 {
			e.tv(ParamChannelIndex)
			e.u16(t.ChannelIndex)
		}
		for _, ts := range []struct {
			p ParamType
			v uint64
		}{
			{ParamFirstSeenTimestampUTC, t.FirstSeenUTC},
			{ParamFirstSeenTimestampUptime, t.FirstSeenUptime},
			{ParamLastSeenTimestampUTC, t.LastSeenUTC},
			{ParamLastSeenTimestampUptime, t.LastSeenUptime},
		} {
			if ts.v != 0 {
				e.tv(ts.p)
				e.u64(ts.v)
			}
		}
		if t.TagSeenCount != 0 {
			e.tv(ParamTagSeenCount)
			e.u16(t.TagSeenCount)
		}

		for _, c := range t.Custom {
			c := c
			e.tlv(ParamCustom, func() {
				e.u32(c.Vendor)
				e.u32(c.Subtype)
				e.b = append(e.b, c.Data...)
			})
		}
	})
}
