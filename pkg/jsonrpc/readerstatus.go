/* Apache v2 license
*  Copyright (C) <2019> Intel Corporation
*
*  SPDX-License-Identifier: Apache-2.0
 */

package jsonrpc

import (
	"github.com/intel/rsp-sw-toolkit-im-suite-timing-engine/app/reader"
	"github.com/pkg/errors"
)

const ReaderStatusMethod = "reader_status"

type ReaderStatus struct {
	Notification
	Params reader.Status `json:"params"`
}

func NewReaderStatus(s reader.Status) *ReaderStatus {
	return &ReaderStatus{Notification: newNotification(ReaderStatusMethod), Params: s}
}

func (notif *ReaderStatus) Validate() error {
	if notif.Params.ReaderID == "" {
		return errors.New("missing reader_id field")
	}
	if notif.Params.State == "" {
		return errors.New("missing state field")
	}
	return notif.Notification.Validate()
}
