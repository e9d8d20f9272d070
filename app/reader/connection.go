/* Apache v2 license
*  Copyright (C) <2019> Intel Corporation
*
*  SPDX-License-Identifier: Apache-2.0
 */

// Package reader owns the TCP session to one LLRP reader: connection,
// capability negotiation, keepalive supervision, tag report dispatch and
// reconnection with exponential backoff.
package reader

import (
	"context"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/intel/rsp-sw-toolkit-im-suite-timing-engine/app/tagevent"
	"github.com/intel/rsp-sw-toolkit-im-suite-timing-engine/pkg/llrp"
	"github.com/pkg/errors"
	"github.com/rcrowley/go-metrics"
	log "github.com/sirupsen/logrus"
)

var (
	errClosedByReader = errors.New("reader closed the connection")
	errStopping       = errors.New("connection stopping")
)

// Connection keeps one reader streaming until stopped.
type Connection struct {
	cfg   Config
	spec  *llrp.ROSpec
	msgID uint32

	mu       sync.Mutex
	status   Status
	conn     net.Conn
	profile  tagevent.Profile
	onTag    []func(tagevent.TagEvent)
	onState  []func(Status)
	cancel   context.CancelFunc
	done     chan struct{}
	stopping bool

	writeMu sync.Mutex
}

// New returns an idle connection. Register callbacks, then call Start.
func New(cfg Config) *Connection {
	cfg = cfg.withDefaults()
	return &Connection{
		cfg:     cfg,
		spec:    cfg.rospec(),
		profile: tagevent.ProfileFor(nil),
		status:  Status{ReaderID: cfg.ReaderID, State: Disconnected, At: time.Now()},
	}
}

// Connect starts a connection that retries in the background until ctx is
// done or Stop is called.
func Connect(ctx context.Context, cfg Config) (*Connection, error) {
	c := New(cfg)
	if err := c.Start(ctx); err != nil {
		return nil, err
	}
	return c, nil
}

func (c *Connection) ReaderID() string {
	return c.cfg.ReaderID
}

// OnTagEvent registers fn for every tag read, called in arrival order from
// the connection goroutine.
func (c *Connection) OnTagEvent(fn func(tagevent.TagEvent)) {
	c.mu.Lock()
	c.onTag = append(c.onTag, fn)
	c.mu.Unlock()
}

// OnStateChange registers fn for every state transition.
func (c *Connection) OnStateChange(fn func(Status)) {
	c.mu.Lock()
	c.onState = append(c.onState, fn)
	c.mu.Unlock()
}

func (c *Connection) Status() Status {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.status
}

// Start launches the connection goroutine.
func (c *Connection) Start(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.cancel != nil {
		return errors.Errorf("reader %s already started", c.cfg.ReaderID)
	}
	ctx, c.cancel = context.WithCancel(ctx)
	c.done = make(chan struct{})
	go c.run(ctx)
	return nil
}

// Stop deletes the ROSpec and closes the LLRP session gracefully if the
// reader is streaming, then releases the socket. The socket is released
// even if the graceful close fails or ctx expires.
func (c *Connection) Stop(ctx context.Context) error {
	c.mu.Lock()
	if c.cancel == nil {
		c.mu.Unlock()
		return nil
	}
	c.stopping = true
	conn, state, cancel, done := c.conn, c.status.State, c.cancel, c.done
	c.mu.Unlock()

	var err error
	if conn != nil && state == Streaming {
		err = c.send(conn, llrp.MsgDeleteROSpec, &llrp.ROSpecRequest{ROSpecID: c.spec.ROSpecID})
		if err == nil {
			err = c.send(conn, llrp.MsgCloseConnection, nil)
		}
		if err == nil {
			// the connection goroutine exits on CLOSE_CONNECTION_RESPONSE
			select {
			case <-done:
			case <-ctx.Done():
				err = ctx.Err()
			}
		}
	}

	cancel()
	c.closeConn()
	<-done

	if err != nil {
		return &ConnectionError{ReaderID: c.cfg.ReaderID, Op: "stop", Err: err}
	}
	return nil
}

func (c *Connection) logger() *log.Entry {
	return log.WithFields(log.Fields{
		"Method": "reader.Connection",
		"Reader": c.cfg.ReaderID,
	})
}

func (c *Connection) setState(state State, cause error) {
	c.mu.Lock()
	if c.status.State == state && cause == nil {
		c.mu.Unlock()
		return
	}
	c.status.State = state
	c.status.At = time.Now()
	if cause != nil {
		c.status.LastError = cause.Error()
	}
	if state == Streaming {
		c.status.LastConnected = c.status.At
		c.status.LastError = ""
	}
	status := c.status
	callbacks := append([]func(Status){}, c.onState...)
	c.mu.Unlock()

	metrics.GetOrRegisterGauge("Reader.Connection."+string(state), nil).Update(time.Now().Unix())
	entry := c.logger().WithField("State", state)
	if cause != nil {
		entry.WithError(cause).Warn("reader state changed")
	} else {
		entry.Info("reader state changed")
	}

	for _, fn := range callbacks {
		fn(status)
	}
}

func (c *Connection) isStopping() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.stopping
}

func (c *Connection) setConn(conn net.Conn) {
	c.mu.Lock()
	c.conn = conn
	c.mu.Unlock()
}

func (c *Connection) closeConn() {
	c.mu.Lock()
	conn := c.conn
	c.conn = nil
	c.mu.Unlock()
	if conn != nil {
		conn.Close()
	}
}

func (c *Connection) run(ctx context.Context) {
	defer close(c.done)
	defer c.closeConn()

	backoff := c.cfg.MinBackoff
	for {
		streamed, err := c.session(ctx)
		if ctx.Err() != nil || c.isStopping() {
			c.setState(Disconnected, nil)
			return
		}

		metrics.GetOrRegisterCounter("Reader.Connection.Failures", nil).Inc(1)
		c.setState(Disconnected, err)
		if streamed {
			backoff = c.cfg.MinBackoff
		}

		c.logger().Debugf("reconnecting in %v", backoff)
		timer := time.NewTimer(backoff)
		select {
		case <-ctx.Done():
			timer.Stop()
			c.setState(Disconnected, nil)
			return
		case <-timer.C:
		}
		backoff = nextBackoff(backoff, c.cfg.MaxBackoff)
	}
}

// session runs one TCP connection to completion. streamed reports whether
// it reached Streaming.
func (c *Connection) session(ctx context.Context) (streamed bool, err error) {
	c.setState(Connecting, nil)

	dialer := net.Dialer{Timeout: c.cfg.DialTimeout}
	conn, err := dialer.DialContext(ctx, "tcp", c.cfg.Address())
	if err != nil {
		return false, &ConnectionError{ReaderID: c.cfg.ReaderID, Op: "dial", Err: err}
	}
	c.setConn(conn)
	defer c.closeConn()

	// unblock reads when the context ends
	sessionDone := make(chan struct{})
	defer close(sessionDone)
	go func() {
		select {
		case <-ctx.Done():
			conn.Close()
		case <-sessionDone:
		}
	}()

	dec := llrp.NewDecoder(conn)
	if err := c.awaitConnectionAttempt(conn, dec); err != nil {
		return false, err
	}

	c.setState(Negotiating, nil)
	if err := c.negotiate(conn, dec); err != nil {
		return false, err
	}

	c.setState(Streaming, nil)
	return true, c.stream(conn, dec)
}

func (c *Connection) awaitConnectionAttempt(conn net.Conn, dec *llrp.Decoder) error {
	deadline := time.Now().Add(c.cfg.ResponseTimeout)
	for {
		_ = conn.SetReadDeadline(deadline)
		m, err := dec.Next()
		if err != nil {
			if isSkippable(err) {
				continue
			}
			return &ConnectionError{ReaderID: c.cfg.ReaderID, Op: "await connection event", Err: err}
		}
		ev, ok := m.Payload.(*llrp.ReaderEvent)
		if !ok || ev.ConnectionAttempt == nil {
			continue
		}
		if *ev.ConnectionAttempt != llrp.ConnSuccess {
			return &ConnectionError{
				ReaderID: c.cfg.ReaderID,
				Op:       "connect",
				Err:      errors.Errorf("reader refused connection with status %d", *ev.ConnectionAttempt),
			}
		}
		return nil
	}
}

func (c *Connection) negotiate(conn net.Conn, dec *llrp.Decoder) error {
	resp, err := c.transact(conn, dec, llrp.MsgGetReaderCapabilities, &llrp.CapabilitiesRequest{})
	if err != nil {
		return err
	}
	if caps, ok := resp.Payload.(*llrp.Capabilities); ok {
		if !caps.Status.Success() {
			return c.statusError(llrp.MsgGetReaderCapabilities, caps.Status)
		}
		profile := tagevent.ProfileFor(caps.General)
		c.mu.Lock()
		c.profile = profile
		c.status.Profile = profile.Name()
		c.mu.Unlock()
		if caps.General != nil {
			c.logger().WithFields(log.Fields{
				"Manufacturer": caps.General.DeviceManufacturerName,
				"Model":        caps.General.ModelName,
				"Firmware":     caps.General.FirmwareVersion,
				"Profile":      profile.Name(),
			}).Info("reader capabilities")
		}
	}

	steps := []struct {
		mt          llrp.MessageType
		payload     interface{}
		checkStatus bool
	}{
		{llrp.MsgSetReaderConfig, &llrp.ReaderConfig{Keepalive: &llrp.KeepaliveSpec{
			Trigger:         llrp.KeepalivePeriodic,
			PeriodicTrigger: llrp.Millisecs32(c.cfg.KeepaliveInterval / time.Millisecond),
		}}, true},
		// a stale spec from an earlier session may or may not exist
		{llrp.MsgDeleteROSpec, &llrp.ROSpecRequest{ROSpecID: c.spec.ROSpecID}, false},
		{llrp.MsgAddROSpec, c.spec, true},
		{llrp.MsgEnableROSpec, &llrp.ROSpecRequest{ROSpecID: c.spec.ROSpecID}, true},
	}
	if !c.spec.StartsImmediately() {
		steps = append(steps, struct {
			mt          llrp.MessageType
			payload     interface{}
			checkStatus bool
		}{llrp.MsgStartROSpec, &llrp.ROSpecRequest{ROSpecID: c.spec.ROSpecID}, true})
	}

	for _, step := range steps {
		resp, err := c.transact(conn, dec, step.mt, step.payload)
		if err != nil {
			return err
		}
		if !step.checkStatus {
			continue
		}
		if sr, ok := resp.Payload.(*llrp.StatusResponse); ok && !sr.Status.Success() {
			return c.statusError(step.mt, sr.Status)
		}
	}
	return nil
}

func (c *Connection) statusError(mt llrp.MessageType, s llrp.LLRPStatus) error {
	return &ConnectionError{
		ReaderID: c.cfg.ReaderID,
		Op:       mt.String(),
		Err:      errors.Errorf("status %d: %s", s.Code, s.Description),
	}
}

// transact sends a request and waits for its response, handling anything
// the reader sends in between.
func (c *Connection) transact(conn net.Conn, dec *llrp.Decoder, mt llrp.MessageType, payload interface{}) (llrp.Message, error) {
	id := atomic.AddUint32(&c.msgID, 1)
	if err := c.sendID(conn, mt, id, payload); err != nil {
		return llrp.Message{}, err
	}
	want, _ := mt.ResponseType()

	deadline := time.Now().Add(c.cfg.ResponseTimeout)
	for {
		_ = conn.SetReadDeadline(deadline)
		m, err := dec.Next()
		if err != nil {
			if isSkippable(err) {
				continue
			}
			return m, &ConnectionError{ReaderID: c.cfg.ReaderID, Op: "await " + want.String(), Err: err}
		}
		switch {
		case m.Type == want && m.ID == id:
			return m, nil
		case m.Type == llrp.MsgErrorMessage && m.ID == id:
			sr, _ := m.Payload.(*llrp.StatusResponse)
			status := llrp.LLRPStatus{Code: llrp.StatusDeviceError}
			if sr != nil {
				status = sr.Status
			}
			return m, c.statusError(mt, status)
		}
		if err := c.dispatch(conn, m); err != nil {
			return m, err
		}
	}
}

func (c *Connection) stream(conn net.Conn, dec *llrp.Decoder) error {
	watchdog := 2 * c.cfg.KeepaliveInterval
	for {
		_ = conn.SetReadDeadline(time.Now().Add(watchdog))
		m, err := dec.Next()
		if err != nil {
			if isSkippable(err) {
				c.logger().WithError(err).Warn("skipping malformed message")
				metrics.GetOrRegisterCounter("Reader.Stream.Malformed", nil).Inc(1)
				continue
			}
			if ne, ok := errors.Cause(err).(net.Error); ok && ne.Timeout() {
				err = errors.Wrapf(err, "no traffic for %v", watchdog)
			}
			return &ConnectionError{ReaderID: c.cfg.ReaderID, Op: "read", Err: err}
		}
		if err := c.dispatch(conn, m); err != nil {
			return err
		}
	}
}

// dispatch handles an unsolicited message.
func (c *Connection) dispatch(conn net.Conn, m llrp.Message) error {
	switch m.Type {
	case llrp.MsgKeepalive:
		if err := c.sendID(conn, llrp.MsgKeepaliveAck, m.ID, nil); err != nil {
			return err
		}
	case llrp.MsgROAccessReport:
		report, ok := m.Payload.(*llrp.Report)
		if !ok {
			return nil
		}
		c.deliver(report, time.Now())
	case llrp.MsgReaderEventNotification:
		ev, ok := m.Payload.(*llrp.ReaderEvent)
		if !ok {
			return nil
		}
		if ev.ConnectionClosed {
			return &ConnectionError{ReaderID: c.cfg.ReaderID, Op: "read", Err: errClosedByReader}
		}
		if ev.Antenna != nil {
			c.logger().WithFields(log.Fields{
				"Antenna":   ev.Antenna.AntennaID,
				"Connected": ev.Antenna.Event == llrp.AntennaConnected,
			}).Info("antenna event")
		}
	case llrp.MsgCloseConnectionResponse:
		if c.isStopping() {
			return errStopping
		}
	case llrp.MsgErrorMessage:
		if sr, ok := m.Payload.(*llrp.StatusResponse); ok {
			c.logger().WithField("Code", sr.Status.Code).Warnf("reader error: %s", sr.Status.Description)
		}
	default:
		c.logger().Debugf("ignoring %v", m.Type)
	}
	return nil
}

func (c *Connection) deliver(report *llrp.Report, received time.Time) {
	c.mu.Lock()
	profile := c.profile
	callbacks := c.onTag
	c.mu.Unlock()

	mReads := metrics.GetOrRegisterCounter("Reader.Stream.TagReads", nil)
	for i := range report.Tags {
		ev, err := tagevent.Normalize(profile, c.cfg.ReaderID, &report.Tags[i], received)
		if err != nil {
			c.logger().WithError(err).Debug("dropping tag report")
			continue
		}
		mReads.Inc(1)
		for _, fn := range callbacks {
			fn(ev)
		}
	}
}

func (c *Connection) send(conn net.Conn, mt llrp.MessageType, payload interface{}) error {
	return c.sendID(conn, mt, atomic.AddUint32(&c.msgID, 1), payload)
}

func (c *Connection) sendID(conn net.Conn, mt llrp.MessageType, id uint32, payload interface{}) error {
	b, err := llrp.Encode(llrp.NewMessage(mt, id, payload))
	if err != nil {
		return errors.Wrapf(err, "reader %s", c.cfg.ReaderID)
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	_ = conn.SetWriteDeadline(time.Now().Add(c.cfg.WriteTimeout))
	if _, err := conn.Write(b); err != nil {
		return &ConnectionError{ReaderID: c.cfg.ReaderID, Op: "write " + mt.String(), Err: err}
	}
	return nil
}

// isSkippable is true for a frame level error that leaves the stream usable.
func isSkippable(err error) bool {
	var pe *llrp.ProtocolError
	return errors.As(err, &pe) && !pe.Fatal
}
