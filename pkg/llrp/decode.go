/* Apache v2 license
*  Copyright (C) <2019> Intel Corporation
*
*  SPDX-License-Identifier: Apache-2.0
 */

package llrp

import (
	"encoding/binary"
	"io"

	"github.com/pkg/errors"
)

// ParseHeader validates and decodes the first HeaderSize bytes of b.
// It returns ErrIncomplete if b is shorter than a header and a fatal
// ProtocolError if the header cannot describe a valid frame.
func ParseHeader(b []byte) (Header, error) {
	if len(b) < HeaderSize {
		return Header{}, ErrIncomplete
	}
	first := binary.BigEndian.Uint16(b)
	h := Header{
		Version: uint8(first>>10) & 0x7,
		Type:    MessageType(first & 0x3FF),
		Length:  binary.BigEndian.Uint32(b[2:]),
		ID:      binary.BigEndian.Uint32(b[6:]),
	}
	switch {
	case h.Version != Version:
		return h, fatalHeader(h, "unsupported version %d", h.Version)
	case h.Length < HeaderSize:
		return h, fatalHeader(h, "length %d is smaller than the header", h.Length)
	case h.Length > MaxMessageSize:
		return h, fatalHeader(h, "length %d exceeds maximum %d", h.Length, MaxMessageSize)
	}
	return h, nil
}

// Decode decodes the message at the start of b and reports how many bytes it
// used. It returns ErrIncomplete, consuming nothing, when b holds less than a
// whole message. A body that cannot be parsed produces a non-fatal
// ProtocolError with consumed set to the frame length so the caller can skip
// it. Decoded messages never alias b.
func Decode(b []byte) (Message, int, error) {
	h, err := ParseHeader(b)
	if err != nil {
		return Message{Header: h}, 0, err
	}
	if uint32(len(b)) < h.Length {
		return Message{Header: h}, 0, ErrIncomplete
	}

	body := b[HeaderSize:h.Length]
	payload, err := decodeBody(h.Type, body)
	if err != nil {
		return Message{Header: h}, int(h.Length), &ProtocolError{Header: h, Err: err}
	}
	return Message{Header: h, Payload: payload}, int(h.Length), nil
}

func decodeBody(mt MessageType, body []byte) (interface{}, error) {
	switch mt {
	case MsgKeepalive, MsgKeepaliveAck, MsgCloseConnection:
		return nil, nil
	case MsgDeleteROSpec, MsgStartROSpec, MsgStopROSpec, MsgEnableROSpec, MsgDisableROSpec:
		if len(body) < 4 {
			return nil, errors.New("ROSpecID truncated")
		}
		return &ROSpecRequest{ROSpecID: binary.BigEndian.Uint32(body)}, nil
	case MsgGetReaderCapabilities:
		if len(body) < 1 {
			return nil, errors.New("RequestedData truncated")
		}
		return &CapabilitiesRequest{RequestedData: body[0]}, nil
	case MsgSetReaderConfig:
		return decodeReaderConfig(body)
	case MsgGetReaderCapabilitiesResponse:
		return decodeCapabilities(body)
	case MsgSetReaderConfigResponse, MsgCloseConnectionResponse,
		MsgAddROSpecResponse, MsgDeleteROSpecResponse, MsgStartROSpecResponse,
		MsgStopROSpecResponse, MsgEnableROSpecResponse, MsgDisableROSpecResponse,
		MsgErrorMessage:
		return decodeStatusResponse(body)
	case MsgReaderEventNotification:
		return decodeReaderEvent(body)
	case MsgROAccessReport:
		return decodeReport(body)
	}
	return RawPayload(append([]byte(nil), body...)), nil
}

// nextParam splits the first parameter off b. For TV parameters val excludes
// the type byte; for TLV parameters it excludes the 4 byte header.
func nextParam(b []byte) (pt ParamType, val, rest []byte, err error) {
	if len(b) == 0 {
		return 0, nil, nil, io.ErrUnexpectedEOF
	}
	if b[0]&0x80 != 0 {
		pt = ParamType(b[0] & 0x7F)
		n, ok := tvLengths[pt]
		if !ok {
			return pt, nil, nil, errors.Errorf("unknown TV parameter %d", pt)
		}
		if len(b) < 1+n {
			return pt, nil, nil, errors.Errorf("TV parameter %d truncated", pt)
		}
		return pt, b[1 : 1+n], b[1+n:], nil
	}

	if len(b) < 4 {
		return 0, nil, nil, errors.New("TLV header truncated")
	}
	pt = ParamType(binary.BigEndian.Uint16(b) & 0x3FF)
	// types below 128 are TV encoded; the fixed width decoders rely on it
	if pt < 128 {
		return pt, nil, nil, errors.Errorf("TLV parameter uses TV type %d", pt)
	}
	l := int(binary.BigEndian.Uint16(b[2:]))
	if l < 4 || l > len(b) {
		return pt, nil, nil, errors.Errorf("TLV parameter %d has bad length %d (%d available)", pt, l, len(b))
	}
	return pt, b[4:l], b[l:], nil
}

// eachParam calls fn for every parameter in b, stopping at the first error.
func eachParam(b []byte, fn func(pt ParamType, val []byte) error) error {
	for len(b) > 0 {
		pt, val, rest, err := nextParam(b)
		if err != nil {
			return err
		}
		if err := fn(pt, val); err != nil {
			return errors.Wrapf(err, "parameter %d", pt)
		}
		b = rest
	}
	return nil
}

func decodeStatus(val []byte) (LLRPStatus, error) {
	if len(val) < 4 {
		return LLRPStatus{}, errors.New("LLRPStatus truncated")
	}
	s := LLRPStatus{Code: StatusCode(binary.BigEndian.Uint16(val))}
	n := int(binary.BigEndian.Uint16(val[2:]))
	if 4+n > len(val) {
		return s, errors.New("LLRPStatus description truncated")
	}
	s.Description = string(val[4 : 4+n])
	// FieldError and ParameterError sub-parameters are not modeled.
	return s, nil
}

func decodeStatusResponse(body []byte) (*StatusResponse, error) {
	var resp *StatusResponse
	err := eachParam(body, func(pt ParamType, val []byte) error {
		if pt != ParamLLRPStatus {
			return nil
		}
		s, err := decodeStatus(val)
		resp = &StatusResponse{Status: s}
		return err
	})
	if err != nil {
		return nil, err
	}
	if resp == nil {
		return nil, errors.New("missing LLRPStatus")
	}
	return resp, nil
}

func decodeCapabilities(body []byte) (*Capabilities, error) {
	c := &Capabilities{}
	var sawStatus bool
	err := eachParam(body, func(pt ParamType, val []byte) error {
		switch pt {
		case ParamLLRPStatus:
			s, err := decodeStatus(val)
			c.Status, sawStatus = s, true
			return err
		case ParamGeneralDeviceCapabilities:
			g, err := decodeGeneralCapabilities(val)
			c.General = g
			return err
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	if !sawStatus {
		return nil, errors.New("missing LLRPStatus")
	}
	return c, nil
}

func decodeGeneralCapabilities(val []byte) (*GeneralDeviceCapabilities, error) {
	if len(val) < 14 {
		return nil, errors.New("GeneralDeviceCapabilities truncated")
	}
	flags := binary.BigEndian.Uint16(val[2:])
	g := &GeneralDeviceCapabilities{
		MaxNumberOfAntennaSupported: binary.BigEndian.Uint16(val),
		CanSetAntennaProperties:     flags&0x8000 != 0,
		HasUTCClockCapability:       flags&0x4000 != 0,
		DeviceManufacturerName:      binary.BigEndian.Uint32(val[4:]),
		ModelName:                   binary.BigEndian.Uint32(val[8:]),
	}
	n := int(binary.BigEndian.Uint16(val[12:]))
	if 14+n > len(val) {
		return nil, errors.New("FirmwareVersion truncated")
	}
	g.FirmwareVersion = string(val[14 : 14+n])
	return g, nil
}

func decodeReaderConfig(body []byte) (*ReaderConfig, error) {
	if len(body) < 1 {
		return nil, errors.New("ResetToFactoryDefault truncated")
	}
	c := &ReaderConfig{ResetToFactoryDefault: body[0]&0x80 != 0}
	err := eachParam(body[1:], func(pt ParamType, val []byte) error {
		if pt != ParamKeepaliveSpec {
			return nil
		}
		if len(val) < 5 {
			return errors.New("KeepaliveSpec truncated")
		}
		c.Keepalive = &KeepaliveSpec{
			Trigger:         KeepaliveTriggerType(val[0]),
			PeriodicTrigger: Millisecs32(binary.BigEndian.Uint32(val[1:])),
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return c, nil
}

func decodeReaderEvent(body []byte) (*ReaderEvent, error) {
	var ev *ReaderEvent
	err := eachParam(body, func(pt ParamType, val []byte) error {
		if pt != ParamReaderEventNotificationData {
			return nil
		}
		ev = &ReaderEvent{}
		return eachParam(val, func(pt ParamType, val []byte) error {
			switch pt {
			case ParamUTCTimestamp, ParamUptime:
				if len(val) < 8 {
					return errors.New("timestamp truncated")
				}
				ev.Timestamp = binary.BigEndian.Uint64(val)
				ev.Uptime = pt == ParamUptime
			case ParamConnectionAttemptEvent:
				if len(val) < 2 {
					return errors.New("ConnectionAttemptEvent truncated")
				}
				s := ConnectionAttemptStatus(binary.BigEndian.Uint16(val))
				ev.ConnectionAttempt = &s
			case ParamConnectionCloseEvent:
				ev.ConnectionClosed = true
			case ParamAntennaEvent:
				if len(val) < 3 {
					return errors.New("AntennaEvent truncated")
				}
				ev.Antenna = &AntennaEvent{
					Event:     AntennaEventType(val[0]),
					AntennaID: binary.BigEndian.Uint16(val[1:]),
				}
			}
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	if ev == nil {
		return nil, errors.New("missing ReaderEventNotificationData")
	}
	return ev, nil
}

func decodeReport(body []byte) (*Report, error) {
	r := &Report{}
	err := eachParam(body, func(pt ParamType, val []byte) error {
		if pt != ParamTagReportData {
			return nil
		}
		t, err := decodeTagReportData(val)
		if err != nil {
			return err
		}
		r.Tags = append(r.Tags, t)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return r, nil
}

func decodeTagReportData(b []byte) (TagReportData, error) {
	var t TagReportData
	err := eachParam(b, func(pt ParamType, val []byte) error {
		switch pt {
		case ParamEPC96:
			t.EPC = append([]byte(nil), val...)
		case ParamEPCData:
			if len(val) < 2 {
				return errors.New("EPCData truncated")
			}
			bits := int(binary.BigEndian.Uint16(val))
			n := (bits + 7) / 8
			if 2+n > len(val) {
				return errors.Errorf("EPCData declares %d bits but has %d bytes", bits, len(val)-2)
			}
			t.EPC = append([]byte(nil), val[2:2+n]...)
		case ParamAntennaID:
			t.AntennaID, t.HasAntennaID = binary.BigEndian.Uint16(val), true
		case ParamPeakRSSI:
			t.PeakRSSI, t.HasPeakRSSI = int8(val[0]), true
		case ParamFirstSeenTimestampUTC:
			t.FirstSeenUTC = binary.BigEndian.Uint64(val)
		case ParamFirstSeenTimestampUptime:
			t.FirstSeenUptime = binary.BigEndian.Uint64(val)
		case ParamLastSeenTimestampUTC:
			t.LastSeenUTC = binary.BigEndian.Uint64(val)
		case ParamLastSeenTimestampUptime:
			t.LastSeenUptime = binary.BigEndian.Uint64(val)
		case ParamChannelIndex:
			t.ChannelIndex = binary.BigEndian.Uint16(val)
		case ParamTagSeenCount:
			t.TagSeenCount = binary.BigEndian.Uint16(val)
		case ParamROSpecID:
			t.ROSpecID = binary.BigEndian.Uint32(val)
		case ParamInventoryParameterSpecID:
			t.InventoryParameterSpecID = binary.BigEndian.Uint16(val)
		case ParamCustom:
			if len(val) < 8 {
				return errors.New("Custom parameter truncated")
			}
			t.Custom = append(t.Custom, CustomParameter{
				Vendor:  binary.BigEndian.Uint32(val),
				Subtype: binary.BigEndian.Uint32(val[4:]),
				Data:    append([]byte(nil), val[8:]...),
			})
		}
		// Everything else, including unknown TLVs, is skipped by length.
		return nil
	})
	if err != nil {
		return t, err
	}
	if t.EPC == nil {
		return t, errors.New("TagReportData without EPC")
	}
	return t, nil
}

// Decoder reads whole messages from a byte stream, buffering partial frames.
type Decoder struct {
	r     io.Reader
	buf   []byte
	chunk []byte
	err   error
}

func NewDecoder(r io.Reader) *Decoder {
	return &Decoder{r: r, chunk: make([]byte, 4096)}
}

// Next returns the next message. A non-fatal ProtocolError means the frame
// was skipped and Next may be called again. Any other error, including a
// fatal ProtocolError, leaves the stream unusable. io.EOF is only returned on
// a message boundary; EOF inside a frame is io.ErrUnexpectedEOF.
func (d *Decoder) Next() (Message, error) {
	for {
		m, n, err := Decode(d.buf)
		if n > 0 {
			d.buf = append(d.buf[:0], d.buf[n:]...)
		}
		if err != ErrIncomplete {
			return m, err
		}

		if d.err != nil {
			if d.err == io.EOF && len(d.buf) > 0 {
				return Message{}, io.ErrUnexpectedEOF
			}
			return Message{}, d.err
		}

		read, rerr := d.r.Read(d.chunk)
		d.buf = append(d.buf, d.chunk[:read]...)
		d.err = rerr
	}
}

// Buffered reports how many bytes of an incomplete frame are held.
func (d *Decoder) Buffered() int {
	return len(d.buf)
}
