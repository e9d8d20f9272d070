/* Apache v2 license
*  Copyright (C) <2019> Intel Corporation
*
*  SPDX-License-Identifier: Apache-2.0
 */

package reader

import (
	"fmt"
	"net"
	"strconv"
	"time"

	"github.com/intel/rsp-sw-toolkit-im-suite-timing-engine/pkg/llrp"
)

const (
	DefaultDialTimeout       = 5 * time.Second
	DefaultResponseTimeout   = 5 * time.Second
	DefaultWriteTimeout      = 2 * time.Second
	DefaultKeepaliveInterval = 10 * time.Second
	DefaultMinBackoff        = 1 * time.Second
	DefaultMaxBackoff        = 30 * time.Second
)

// Config describes one physical reader.
type Config struct {
	// ReaderID names the reader in events and health notifications.
	// Defaults to host:port.
	ReaderID string
	Host     string
	Port     int

	DialTimeout     time.Duration
	ResponseTimeout time.Duration
	WriteTimeout    time.Duration
	// KeepaliveInterval is requested from the reader; the connection fails
	// after twice this long without traffic.
	KeepaliveInterval time.Duration
	MinBackoff        time.Duration
	MaxBackoff        time.Duration

	// Antennas to inventory. Empty means all.
	Antennas []uint16
	// SpecOptions further customize the ROSpec.
	SpecOptions []llrp.SpecOption
}

// Address is host:port, defaulting the port to the LLRP port.
func (c Config) Address() string {
	port := c.Port
	if port == 0 {
		port = llrp.DefaultPort
	}
	return net.JoinHostPort(c.Host, strconv.Itoa(port))
}

func (c Config) withDefaults() Config {
	if c.ReaderID == "" {
		c.ReaderID = c.Address()
	}
	if c.DialTimeout <= 0 {
		c.DialTimeout = DefaultDialTimeout
	}
	if c.ResponseTimeout <= 0 {
		c.ResponseTimeout = DefaultResponseTimeout
	}
	if c.WriteTimeout <= 0 {
		c.WriteTimeout = DefaultWriteTimeout
	}
	if c.KeepaliveInterval <= 0 {
		c.KeepaliveInterval = DefaultKeepaliveInterval
	}
	if c.MinBackoff <= 0 {
		c.MinBackoff = DefaultMinBackoff
	}
	if c.MaxBackoff < c.MinBackoff {
		c.MaxBackoff = DefaultMaxBackoff
		if c.MaxBackoff < c.MinBackoff {
			c.MaxBackoff = c.MinBackoff
		}
	}
	return c
}

func (c Config) rospec() *llrp.ROSpec {
	opts := append([]llrp.SpecOption{llrp.WithAntennas(c.Antennas...)}, c.SpecOptions...)
	return llrp.NewROSpec(opts...)
}

// nextBackoff doubles d, capped at max.
func nextBackoff(d, max time.Duration) time.Duration {
	d *= 2
	if d > max {
		return max
	}
	return d
}

type State string

const (
	Disconnected State = "disconnected"
	Connecting   State = "connecting"
	Negotiating  State = "negotiating"
	Streaming    State = "streaming"
)

// Status is a connection health snapshot.
type Status struct {
	ReaderID      string    `json:"reader_id"`
	State         State     `json:"state"`
	LastError     string    `json:"last_error,omitempty"`
	At            time.Time `json:"at"`
	LastConnected time.Time `json:"last_connected,omitempty"`
	Profile       string    `json:"profile,omitempty"`
}

// ConnectionError is a socket level or negotiation failure. The connection
// retries after it.
type ConnectionError struct {
	ReaderID string
	Op       string
	Err      error
}

func (e *ConnectionError) Error() string {
	return fmt.Sprintf("reader %s: %s: %v", e.ReaderID, e.Op, e.Err)
}

func (e *ConnectionError) Cause() error  { return e.Err }
func (e *ConnectionError) Unwrap() error { return e.Err }
