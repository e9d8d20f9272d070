/* Apache v2 license
*  Copyright (C) <2019> Intel Corporation
*
*  SPDX-License-Identifier: Apache-2.0
 */

package llrp

import (
	"encoding/hex"
	"testing"

	"github.com/sebdah/goldie/v2"
	"github.com/stretchr/testify/require"
)

func TestEncodeGolden(t *testing.T) {
	g := goldie.New(t, goldie.WithFixtureDir("testdata/golden"))

	tests := []struct {
		name string
		msg  Message
	}{
		{"add_rospec", NewMessage(MsgAddROSpec, 1, NewROSpec())},
		{"enable_rospec", NewMessage(MsgEnableROSpec, 2, &ROSpecRequest{ROSpecID: DefaultROSpecID})},
		{"delete_rospec", NewMessage(MsgDeleteROSpec, 3, &ROSpecRequest{ROSpecID: DefaultROSpecID})},
		{"set_reader_config", NewMessage(MsgSetReaderConfig, 4, &ReaderConfig{
			Keepalive: &KeepaliveSpec{Trigger: KeepalivePeriodic, PeriodicTrigger: 10000},
		})},
		{"close_connection", NewMessage(MsgCloseConnection, 5, nil)},
		{"get_reader_capabilities", NewMessage(MsgGetReaderCapabilities, 6, &CapabilitiesRequest{})},
		{"keepalive_ack", NewMessage(MsgKeepaliveAck, 7, nil)},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			b, err := Encode(test.msg)
			require.NoError(t, err)
			g.Assert(t, test.name, []byte(hex.EncodeToString(b)+"\n"))
		})
	}
}

func TestNewROSpecOptions(t *testing.T) {
	spec := NewROSpec(
		WithSpecID(7),
		WithAntennas(1, 3),
		WithInventoryParameterSpecID(9),
		WithReportEvery(5),
	)

	require.Equal(t, uint32(7), spec.ROSpecID)
	require.Len(t, spec.AISpecs, 1)
	require.Equal(t, []uint16{1, 3}, spec.AISpecs[0].AntennaIDs)
	require.Equal(t, uint16(9), spec.AISpecs[0].InventoryParameterSpecs[0].InventoryParameterSpecID)
	require.Equal(t, uint16(5), spec.ROReportSpec.N)
	require.True(t, spec.StartsImmediately())

	gpi := NewROSpec(WithStartTrigger(ROStartTriggerGPI))
	require.False(t, gpi.StartsImmediately())

	all := NewROSpec(WithAntennas())
	require.Equal(t, []uint16{0}, all.AISpecs[0].AntennaIDs)
}

func TestContentSelectorFlags(t *testing.T) {
	spec := NewROSpec()
	require.Equal(t, uint16(0x1780), spec.ROReportSpec.ContentSelector.flags())
	require.Equal(t, uint16(0x8000), TagReportContentSelector{EnableROSpecID: true}.flags())
	require.Equal(t, uint16(0x0040), TagReportContentSelector{EnableAccessSpecID: true}.flags())
}

func TestEncodeRejectsUnknownPayload(t *testing.T) {
	_, err := Encode(NewMessage(MsgCustomMessage, 1, struct{}{}))
	require.Error(t, err)

	_, err = Encode(NewMessage(MessageType(2000), 1, nil))
	require.Error(t, err)
}

func TestMessageTypeString(t *testing.T) {
	require.Equal(t, "RO_ACCESS_REPORT", MsgROAccessReport.String())
	require.Equal(t, "MessageType(999)", MessageType(999).String())

	rt, ok := MsgAddROSpec.ResponseType()
	require.True(t, ok)
	require.Equal(t, MsgAddROSpecResponse, rt)

	_, ok = MsgKeepaliveAck.ResponseType()
	require.False(t, ok)
}
