/* Apache v2 license
*  Copyright (C) <2019> Intel Corporation
*
*  SPDX-License-Identifier: Apache-2.0
 */

package jsonrpc

import "github.com/pkg/errors"

const Version = "2.0"

// Message is any JSON-RPC message that can check itself after decoding.
type Message interface {
	Validate() error
}

// Notification is a JSON-RPC request without an id.
type Notification struct {
	Version string `json:"jsonrpc"`
	Method  string `json:"method"`
}

func (notif *Notification) Validate() error {
	if notif.Version != Version {
		return errors.Errorf("unsupported jsonrpc version %q", notif.Version)
	}
	if notif.Method == "" {
		return errors.New("missing method field")
	}
	return nil
}

func newNotification(method string) Notification {
	return Notification{Version: Version, Method: method}
}
