/* Apache v2 license
*  Copyright (C) <2019> Intel Corporation
*
*  SPDX-License-Identifier: Apache-2.0
 */

package llrpsim

import (
	"context"
	"math/rand"
	"net"
	"sync"
	"time"

	"github.com/intel/rsp-sw-toolkit-im-suite-timing-engine/pkg/llrp"
	log "github.com/sirupsen/logrus"
)

const writeTimeout = 2 * time.Second

// session is one client connection.
type session struct {
	r    *Reader
	conn net.Conn
	log  *log.Entry

	writeMu sync.Mutex

	mu        sync.Mutex
	spec      *llrp.ROSpec
	enabled   bool
	started   bool
	keepalive time.Duration
	kaChanged chan struct{}
}

func newSession(r *Reader, conn net.Conn) *session {
	return &session{
		r:         r,
		conn:      conn,
		log:       logger(conn.RemoteAddr().String()),
		kaChanged: make(chan struct{}, 1),
	}
}

func (s *session) send(mt llrp.MessageType, id uint32, payload interface{}) error {
	b, err := llrp.Encode(llrp.NewMessage(mt, id, payload))
	if err != nil {
		return err
	}
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	_ = s.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	_, err = s.conn.Write(b)
	return err
}

func (s *session) inventorying() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.spec != nil && s.enabled && (s.started || s.spec.StartsImmediately())
}

func (s *session) run(ctx context.Context) {
	defer s.conn.Close()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	go func() {
		<-ctx.Done()
		s.conn.Close()
	}()

	status := s.r.cfg.ConnectionStatus
	if err := s.send(llrp.MsgReaderEventNotification, s.r.nextID(), &llrp.ReaderEvent{
		Timestamp:         uint64(time.Now().UnixNano() / int64(time.Microsecond)),
		ConnectionAttempt: &status,
	}); err != nil || status != llrp.ConnSuccess {
		return
	}

	go s.keepalives(ctx)
	if s.r.cfg.ReadInterval > 0 {
		go s.inventory(ctx)
	}

	dec := llrp.NewDecoder(s.conn)
	for {
		m, err := dec.Next()
		if err != nil {
			if llrp.IsFatal(err) {
				s.log.Debugf("closing: %v", err)
				return
			}
			if _, ok := err.(*llrp.ProtocolError); ok {
				continue
			}
			return
		}
		s.r.record(m)
		if closing := s.handle(m); closing {
			return
		}
	}
}

func (s *session) handle(m llrp.Message) (closing bool) {
	ok := &llrp.StatusResponse{Status: llrp.LLRPStatus{Code: llrp.StatusSuccess}}

	switch m.Type {
	case llrp.MsgGetReaderCapabilities:
		cfg := s.r.cfg
		s.send(llrp.MsgGetReaderCapabilitiesResponse, m.ID, &llrp.Capabilities{
			Status: ok.Status,
			General: &llrp.GeneralDeviceCapabilities{
				MaxNumberOfAntennaSupported: cfg.Antennas,
				HasUTCClockCapability:       cfg.HasUTCClock,
				DeviceManufacturerName:      cfg.Manufacturer,
				ModelName:                   cfg.Model,
				FirmwareVersion:             cfg.Firmware,
			},
		})
	case llrp.MsgSetReaderConfig:
		if rc, isConfig := m.Payload.(*llrp.ReaderConfig); isConfig && rc.Keepalive != nil {
			s.mu.Lock()
			s.keepalive = 0
			if rc.Keepalive.Trigger == llrp.KeepalivePeriodic {
				s.keepalive = time.Duration(rc.Keepalive.PeriodicTrigger) * time.Millisecond
			}
			s.mu.Unlock()
			select {
			case s.kaChanged <- struct{}{}:
			default:
			}
		}
		s.send(llrp.MsgSetReaderConfigResponse, m.ID, ok)
	case llrp.MsgAddROSpec:
		// ADD_ROSPEC decodes raw; a fresh default spec stands in for it.
		s.mu.Lock()
		if s.spec != nil {
			s.mu.Unlock()
			s.send(llrp.MsgAddROSpecResponse, m.ID, &llrp.StatusResponse{Status: llrp.LLRPStatus{
				Code: llrp.StatusFieldError, Description: "ROSpec already exists",
			}})
			return false
		}
		s.spec = llrp.NewROSpec()
		s.mu.Unlock()
		s.send(llrp.MsgAddROSpecResponse, m.ID, ok)
	case llrp.MsgDeleteROSpec:
		s.mu.Lock()
		s.spec, s.enabled, s.started = nil, false, false
		s.mu.Unlock()
		s.send(llrp.MsgDeleteROSpecResponse, m.ID, ok)
	case llrp.MsgEnableROSpec:
		s.setFlag(&s.enabled, true)
		s.send(llrp.MsgEnableROSpecResponse, m.ID, ok)
	case llrp.MsgDisableROSpec:
		s.setFlag(&s.enabled, false)
		s.send(llrp.MsgDisableROSpecResponse, m.ID, ok)
	case llrp.MsgStartROSpec:
		s.setFlag(&s.started, true)
		s.send(llrp.MsgStartROSpecResponse, m.ID, ok)
	case llrp.MsgStopROSpec:
		s.setFlag(&s.started, false)
		s.send(llrp.MsgStopROSpecResponse, m.ID, ok)
	case llrp.MsgCloseConnection:
		s.send(llrp.MsgCloseConnectionResponse, m.ID, ok)
		return true
	case llrp.MsgKeepaliveAck:
	default:
		s.send(llrp.MsgErrorMessage, m.ID, &llrp.StatusResponse{Status: llrp.LLRPStatus{
			Code: llrp.StatusParameterError, Description: "unsupported message " + m.Type.String(),
		}})
	}
	return false
}

func (s *session) setFlag(flag *bool, v bool) {
	s.mu.Lock()
	*flag = v
	s.mu.Unlock()
}

func (s *session) keepalives(ctx context.Context) {
	if s.r.cfg.SuppressKeepalives {
		return
	}
	var tick <-chan time.Time
	var ticker *time.Ticker
	defer func() {
		if ticker != nil {
			ticker.Stop()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return
		case <-s.kaChanged:
			if ticker != nil {
				ticker.Stop()
				ticker, tick = nil, nil
			}
			s.mu.Lock()
			interval := s.keepalive
			s.mu.Unlock()
			if interval > 0 {
				ticker = time.NewTicker(interval)
				tick = ticker.C
			}
		case <-tick:
			if err := s.send(llrp.MsgKeepalive, s.r.nextID(), nil); err != nil {
				return
			}
		}
	}
}

func (s *session) inventory(ctx context.Context) {
	rng := rand.New(rand.NewSource(time.Now().UnixNano()))
	ticker := time.NewTicker(s.r.cfg.ReadInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if s.r.cfg.SuppressKeepalives || !s.inventorying() {
				continue
			}
			read := s.r.randomRead(rng)
			if err := s.send(llrp.MsgROAccessReport, s.r.nextID(), &llrp.Report{Tags: []llrp.TagReportData{read}}); err != nil {
				return
			}
		}
	}
}
