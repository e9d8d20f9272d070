/* Apache v2 license
*  Copyright (C) <2019> Intel Corporation
*
*  SPDX-License-Identifier: Apache-2.0
 */

package jsonrpc

import "errors"

const HeartbeatMethod = "heartbeat"

type Heartbeat struct {
	Notification                 // embed
	Params       HeartbeatParams `json:"params"`
}

type HeartbeatParams struct {
	SentOn    int64  `json:"sent_on"`
	StationID string `json:"station_id"`
	// Streaming counts readers currently delivering reports.
	Streaming int    `json:"streaming"`
	Readers   int    `json:"readers"`
}

func NewHeartbeat(params HeartbeatParams) *Heartbeat {
	return &Heartbeat{Notification: newNotification(HeartbeatMethod), Params: params}
}

func (hb *Heartbeat) Validate() error {
	if hb.Params.StationID == "" {
		return errors.New("missing station_id field")
	}

	return hb.Notification.Validate()
}
