/* Apache v2 license
*  Copyright (C) <2019> Intel Corporation
*
*  SPDX-License-Identifier: Apache-2.0
 */

// Package llrp encodes and decodes Low Level Reader Protocol messages.
//
// An LLRP message is a 10 byte header (3 reserved bits, 3 version bits,
// 10 message type bits, a 32 bit length that includes the header and a
// 32 bit message id) followed by a body made of fields and parameters.
// Parameters are either TLV (type 128-1023, with a 16 bit length) or
// TV (type 1-127, fixed length implied by the type).
//
// The package does no I/O beyond reading from an io.Reader in Decoder.
package llrp

import (
	"fmt"
)

const (
	// DefaultPort is the IANA registered LLRP port.
	DefaultPort = 5084
	// Version is the only protocol version this package speaks (LLRP 1.0.1).
	Version = 1
	// HeaderSize is the fixed size of every message header.
	HeaderSize = 10
	// MaxMessageSize bounds the declared length of an inbound message.
	// Anything larger is treated as corrupt framing.
	MaxMessageSize = 4 << 20
)

type MessageType uint16

const (
	MsgGetReaderCapabilities         = MessageType(1)
	MsgSetReaderConfig               = MessageType(3)
	MsgCloseConnectionResponse       = MessageType(4)
	MsgGetReaderCapabilitiesResponse = MessageType(11)
	MsgSetReaderConfigResponse       = MessageType(13)
	MsgCloseConnection               = MessageType(14)
	MsgAddROSpec                     = MessageType(20)
	MsgDeleteROSpec                  = MessageType(21)
	MsgStartROSpec                   = MessageType(22)
	MsgStopROSpec                    = MessageType(23)
	MsgEnableROSpec                  = MessageType(24)
	MsgDisableROSpec                 = MessageType(25)
	MsgAddROSpecResponse             = MessageType(30)
	MsgDeleteROSpecResponse          = MessageType(31)
	MsgStartROSpecResponse           = MessageType(32)
	MsgStopROSpecResponse            = MessageType(33)
	MsgEnableROSpecResponse          = MessageType(34)
	MsgDisableROSpecResponse         = MessageType(35)
	MsgROAccessReport                = MessageType(61)
	MsgKeepalive                     = MessageType(62)
	MsgReaderEventNotification       = MessageType(63)
	MsgKeepaliveAck                  = MessageType(72)
	MsgErrorMessage                  = MessageType(100)
	MsgCustomMessage                 = MessageType(1023)
)

var messageNames = map[MessageType]string{
	MsgGetReaderCapabilities:         "GET_READER_CAPABILITIES",
	MsgSetReaderConfig:               "SET_READER_CONFIG",
	MsgCloseConnectionResponse:       "CLOSE_CONNECTION_RESPONSE",
	MsgGetReaderCapabilitiesResponse: "GET_READER_CAPABILITIES_RESPONSE",
	MsgSetReaderConfigResponse:       "SET_READER_CONFIG_RESPONSE",
	MsgCloseConnection:               "CLOSE_CONNECTION",
	MsgAddROSpec:                     "ADD_ROSPEC",
	MsgDeleteROSpec:                  "DELETE_ROSPEC",
	MsgStartROSpec:                   "START_ROSPEC",
	MsgStopROSpec:                    "STOP_ROSPEC",
	MsgEnableROSpec:                  "ENABLE_ROSPEC",
	MsgDisableROSpec:                 "DISABLE_ROSPEC",
	MsgAddROSpecResponse:             "ADD_ROSPEC_RESPONSE",
	MsgDeleteROSpecResponse:          "DELETE_ROSPEC_RESPONSE",
	MsgStartROSpecResponse:           "START_ROSPEC_RESPONSE",
	MsgStopROSpecResponse:            "STOP_ROSPEC_RESPONSE",
	MsgEnableROSpecResponse:          "ENABLE_ROSPEC_RESPONSE",
	MsgDisableROSpecResponse:         "DISABLE_ROSPEC_RESPONSE",
	MsgROAccessReport:                "RO_ACCESS_REPORT",
	MsgKeepalive:                     "KEEPALIVE",
	MsgReaderEventNotification:       "READER_EVENT_NOTIFICATION",
	MsgKeepaliveAck:                  "KEEPALIVE_ACK",
	MsgErrorMessage:                  "ERROR_MESSAGE",
	MsgCustomMessage:                 "CUSTOM_MESSAGE",
}

func (mt MessageType) String() string {
	if name, ok := messageNames[mt]; ok {
		return name
	}
	return fmt.Sprintf("MessageType(%d)", uint16(mt))
}

// responseTypes maps each request to the message type the Reader answers with.
var responseTypes = map[MessageType]MessageType{
	MsgGetReaderCapabilities: MsgGetReaderCapabilitiesResponse,
	MsgSetReaderConfig:       MsgSetReaderConfigResponse,
	MsgCloseConnection:       MsgCloseConnectionResponse,
	MsgAddROSpec:             MsgAddROSpecResponse,
	MsgDeleteROSpec:          MsgDeleteROSpecResponse,
	MsgStartROSpec:           MsgStartROSpecResponse,
	MsgStopROSpec:            MsgStopROSpecResponse,
	MsgEnableROSpec:          MsgEnableROSpecResponse,
	MsgDisableROSpec:         MsgDisableROSpecResponse,
}

// ResponseType returns the message type a Reader sends in reply to mt,
// and false if mt does not expect a response.
func (mt MessageType) ResponseType() (MessageType, bool) {
	rt, ok := responseTypes[mt]
	return rt, ok
}

// Header is the fixed portion of every LLRP message.
type Header struct {
	Version uint8
	Type    MessageType
	Length  uint32
	ID      uint32
}

// Message is a decoded LLRP message.
//
// Payload holds the typed body, depending on Type:
//   - nil for KEEPALIVE, KEEPALIVE_ACK and CLOSE_CONNECTION
//   - *ROSpecRequest for DELETE/START/STOP/ENABLE/DISABLE_ROSPEC
//   - *ROSpec for ADD_ROSPEC (encode only, decodes as RawPayload)
//   - *CapabilitiesRequest for GET_READER_CAPABILITIES
//   - *ReaderConfig for SET_READER_CONFIG
//   - *StatusResponse for all other responses and ERROR_MESSAGE
//   - *Capabilities for GET_READER_CAPABILITIES_RESPONSE
//   - *ReaderEvent for READER_EVENT_NOTIFICATION
//   - *Report for RO_ACCESS_REPORT
//   - RawPayload for anything else
type Message struct {
	Header
	Payload interface{}
}

// NewMessage is a convenience constructor; Length is computed by Encode.
func NewMessage(mt MessageType, id uint32, payload interface{}) Message {
	return Message{
		Header:  Header{Version: Version, Type: mt, ID: id},
		Payload: payload,
	}
}

// RawPayload is the undecoded body of a message this package does not model.
type RawPayload []byte
