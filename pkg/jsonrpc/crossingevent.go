/* Apache v2 license
*  Copyright (C) <2019> Intel Corporation
*
*  SPDX-License-Identifier: Apache-2.0
 */

package jsonrpc

import (
	"github.com/intel/rsp-sw-toolkit-im-suite-timing-engine/app/detection"
	"github.com/pkg/errors"
)

const CrossingEventMethod = "crossing_event"

type CrossingEvent struct {
	Notification                         // embed
	Params       detection.CrossingEvent `json:"params"`
}

func NewCrossingEvent(ce detection.CrossingEvent) *CrossingEvent {
	return &CrossingEvent{Notification: newNotification(CrossingEventMethod), Params: ce}
}

func (notif *CrossingEvent) Validate() error {
	if notif.Params.TagID == "" {
		return errors.New("missing tag_id field")
	}
	if notif.Params.TimingPointID == "" {
		return errors.New("missing timing_point_id field")
	}
	return notif.Notification.Validate()
}
