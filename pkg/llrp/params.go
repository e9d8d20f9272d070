/* Apache v2 license
*  Copyright (C) <2019> Intel Corporation
*
*  SPDX-License-Identifier: Apache-2.0
 */

package llrp

// ParamType shares one namespace for TV (1-127) and TLV (128-1023) parameters.
type ParamType uint16

// TV parameters.
const (
	ParamAntennaID                 = ParamType(1)
	ParamFirstSeenTimestampUTC     = ParamType(2)
	ParamFirstSeenTimestampUptime  = ParamType(3)
	ParamLastSeenTimestampUTC      = ParamType(4)
	ParamLastSeenTimestampUptime   = ParamType(5)
	ParamPeakRSSI                  = ParamType(6)
	ParamChannelIndex              = ParamType(7)
	ParamTagSeenCount              = ParamType(8)
	ParamROSpecID                  = ParamType(9)
	ParamInventoryParameterSpecID  = ParamType(10)
	ParamC1G2CRC                   = ParamType(11)
	ParamC1G2PC                    = ParamType(12)
	ParamEPC96                     = ParamType(13)
	ParamSpecIndex                 = ParamType(14)
	ParamClientRequestOpSpecResult = ParamType(15)
	ParamAccessSpecID              = ParamType(16)
	ParamOpSpecID                  = ParamType(17)
	ParamC1G2SingulationDetails    = ParamType(18)
	ParamC1G2XPCW1                 = ParamType(19)
	ParamC1G2XPCW2                 = ParamType(20)
)

// TLV parameters.
const (
	ParamUTCTimestamp                = ParamType(128)
	ParamUptime                      = ParamType(129)
	ParamGeneralDeviceCapabilities   = ParamType(137)
	ParamROSpec                      = ParamType(177)
	ParamROBoundarySpec              = ParamType(178)
	ParamROSpecStartTrigger          = ParamType(179)
	ParamROSpecStopTrigger           = ParamType(182)
	ParamAISpec                      = ParamType(183)
	ParamAISpecStopTrigger           = ParamType(184)
	ParamInventoryParameterSpec      = ParamType(186)
	ParamKeepaliveSpec               = ParamType(220)
	ParamROReportSpec                = ParamType(237)
	ParamTagReportContentSelector    = ParamType(238)
	ParamTagReportData               = ParamType(240)
	ParamEPCData                     = ParamType(241)
	ParamReaderEventNotificationData = ParamType(246)
	ParamAntennaEvent                = ParamType(255)
	ParamConnectionAttemptEvent      = ParamType(256)
	ParamConnectionCloseEvent        = ParamType(257)
	ParamLLRPStatus                  = ParamType(287)
	ParamCustom                      = ParamType(1023)
)

// tvLengths holds the value size of each TV parameter, excluding the type byte.
var tvLengths = map[ParamType]int{
	ParamAntennaID:                 2,
	ParamFirstSeenTimestampUTC:     8,
	ParamFirstSeenTimestampUptime:  8,
	ParamLastSeenTimestampUTC:      8,
	ParamLastSeenTimestampUptime:   8,
	ParamPeakRSSI:                  1,
	ParamChannelIndex:              2,
	ParamTagSeenCount:              2,
	ParamROSpecID:                  4,
	ParamInventoryParameterSpecID:  2,
	ParamC1G2CRC:                   2,
	ParamC1G2PC:                    2,
	ParamEPC96:                     12,
	ParamSpecIndex:                 2,
	ParamClientRequestOpSpecResult: 2,
	ParamAccessSpecID:              4,
	ParamOpSpecID:                  2,
	ParamC1G2SingulationDetails:    4,
	ParamC1G2XPCW1:                 2,
	ParamC1G2XPCW2:                 2,
}

type StatusCode uint16

const (
	StatusSuccess        = StatusCode(0)
	StatusParameterError = StatusCode(100)
	StatusFieldError     = StatusCode(101)
	StatusDeviceError    = StatusCode(401)
)

// LLRPStatus is carried by every response and by ERROR_MESSAGE.
type LLRPStatus struct {
	Code        StatusCode
	Description string
}

func (s LLRPStatus) Success() bool {
	return s.Code == StatusSuccess
}

// StatusResponse is the body of the simple *_RESPONSE messages.
type StatusResponse struct {
	Status LLRPStatus
}

// ROSpecRequest is the body of DELETE, START, STOP, ENABLE and DISABLE_ROSPEC.
type ROSpecRequest struct {
	ROSpecID uint32
}

type CapabilitiesRequest struct {
	// RequestedData 0 asks for all capabilities.
	RequestedData uint8
}

// Capabilities is the subset of GET_READER_CAPABILITIES_RESPONSE used for
// vendor profile selection.
type Capabilities struct {
	Status  LLRPStatus
	General *GeneralDeviceCapabilities
}

type GeneralDeviceCapabilities struct {
	MaxNumberOfAntennaSupported uint16
	CanSetAntennaProperties     bool
	HasUTCClockCapability       bool
	DeviceManufacturerName      uint32
	ModelName                   uint32
	FirmwareVersion             string
}

type KeepaliveTriggerType uint8

const (
	KeepaliveNull     = KeepaliveTriggerType(0)
	KeepalivePeriodic = KeepaliveTriggerType(1)
)

type KeepaliveSpec struct {
	Trigger         KeepaliveTriggerType
	PeriodicTrigger Millisecs32
}

// ReaderConfig is the body of SET_READER_CONFIG. Only KeepaliveSpec is modeled.
type ReaderConfig struct {
	ResetToFactoryDefault bool
	Keepalive             *KeepaliveSpec
}

type ConnectionAttemptStatus uint16

const (
	ConnSuccess                        = ConnectionAttemptStatus(0)
	ConnExistsReaderInitiated          = ConnectionAttemptStatus(1)
	ConnExistsClientInitiated          = ConnectionAttemptStatus(2)
	ConnFailedReasonOtherThanConnected = ConnectionAttemptStatus(3)
	ConnAnotherConnectionAttempted     = ConnectionAttemptStatus(4)
)

type AntennaEventType uint8

const (
	AntennaDisconnected = AntennaEventType(0)
	AntennaConnected    = AntennaEventType(1)
)

type AntennaEvent struct {
	Event     AntennaEventType
	AntennaID uint16
}

// ReaderEvent is the body of READER_EVENT_NOTIFICATION.
type ReaderEvent struct {
	// Timestamp is microseconds since the epoch (UTC) or since boot (uptime).
	Timestamp         uint64
	Uptime            bool
	ConnectionAttempt *ConnectionAttemptStatus
	ConnectionClosed  bool
	Antenna           *AntennaEvent
}

// Report is the body of RO_ACCESS_REPORT.
type Report struct {
	Tags []TagReportData
}

// CustomParameter is a vendor extension. Data is the payload after the
// vendor and subtype fields.
type CustomParameter struct {
	Vendor  uint32
	Subtype uint32
	Data    []byte
}

// TagReportData is a single tag observation. Optional fields report their
// presence through the Has* flags; timestamps are zero when absent.
type TagReportData struct {
	EPC []byte

	AntennaID    uint16
	HasAntennaID bool

	PeakRSSI    int8
	HasPeakRSSI bool

	// microseconds
	FirstSeenUTC    uint64
	LastSeenUTC     uint64
	FirstSeenUptime uint64
	LastSeenUptime  uint64

	ChannelIndex             uint16
	TagSeenCount             uint16
	ROSpecID                 uint32
	InventoryParameterSpecID uint16

	Custom []CustomParameter
}
