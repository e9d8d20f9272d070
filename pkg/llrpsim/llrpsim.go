/* Apache v2 license
*  Copyright (C) <2019> Intel Corporation
*
*  SPDX-License-Identifier: Apache-2.0
 */

// Package llrpsim is a simulated LLRP Reader. It accepts client connections,
// answers the negotiation messages and streams RO_ACCESS_REPORTs for a set
// of simulated tags. It is used by tests and by the simulate command when no
// hardware is available.
package llrpsim

import (
	"context"
	"encoding/hex"
	"math/rand"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/intel/rsp-sw-toolkit-im-suite-timing-engine/pkg/llrp"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
)

const (
	defaultReadInterval = 500 * time.Millisecond
	defaultRSSIMin      = -60
	defaultRSSIMax      = -30
)

// DefaultTags are reported when Config.Tags is empty.
var DefaultTags = []string{
	"E20000000000000000000001",
	"E20000000000000000000002",
	"E20000000000000000000003",
	"E20000000000000000000004",
	"E20000000000000000000005",
}

type Config struct {
	// Addr to listen on, e.g. "127.0.0.1:0" or ":5084".
	Addr string

	Manufacturer uint32
	Model        uint32
	Firmware     string
	HasUTCClock  bool
	Antennas     uint16

	// ConnectionStatus is announced to every new client.
	ConnectionStatus llrp.ConnectionAttemptStatus

	// Tags are EPCs in hex. ReadInterval 0 disables random reads, leaving
	// only injected reports.
	Tags         []string
	ReadInterval time.Duration
	RSSIMin      int8
	RSSIMax      int8

	// SuppressKeepalives stops the reader from sending KEEPALIVE so clients
	// hit their watchdog.
	SuppressKeepalives bool
}

// DefaultConfig reads a random tag every half second with an RSSI between
// -60 and -30 dBm, like a reader with a handful of tags in its field.
func DefaultConfig() Config {
	return Config{
		Addr:         "127.0.0.1:0",
		Manufacturer: 25882,
		Model:        2001002,
		Firmware:     "sim-1.0",
		HasUTCClock:  true,
		Antennas:     4,
		Tags:         DefaultTags,
		ReadInterval: defaultReadInterval,
		RSSIMin:      defaultRSSIMin,
		RSSIMax:      defaultRSSIMax,
	}
}

// Reader is a running simulated reader.
type Reader struct {
	cfg Config
	ln  net.Listener

	msgID uint32

	mu       sync.Mutex
	sessions map[*session]struct{}
	received []llrp.Message
	accepted int

	wg sync.WaitGroup
}

// Listen binds the listener. Call Serve to accept connections.
func Listen(cfg Config) (*Reader, error) {
	if cfg.RSSIMax < cfg.RSSIMin {
		cfg.RSSIMin, cfg.RSSIMax = cfg.RSSIMax, cfg.RSSIMin
	}
	if len(cfg.Tags) == 0 {
		cfg.Tags = DefaultTags
	}
	for _, tag := range cfg.Tags {
		if _, err := hex.DecodeString(tag); err != nil {
			return nil, errors.Wrapf(err, "invalid simulated EPC %q", tag)
		}
	}

	ln, err := net.Listen("tcp", cfg.Addr)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to listen on %s", cfg.Addr)
	}
	return &Reader{
		cfg:      cfg,
		ln:       ln,
		sessions: make(map[*session]struct{}),
	}, nil
}

// Addr is the bound listen address.
func (r *Reader) Addr() *net.TCPAddr {
	return r.ln.Addr().(*net.TCPAddr)
}

// Serve accepts clients until ctx is done or Close is called.
func (r *Reader) Serve(ctx context.Context) error {
	go func() {
		<-ctx.Done()
		r.ln.Close()
	}()

	for {
		conn, err := r.ln.Accept()
		if err != nil {
			r.DropConnections()
			r.wg.Wait()
			if ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				return nil
			}
			return errors.Wrap(err, "accept failed")
		}

		s := newSession(r, conn)
		r.mu.Lock()
		r.sessions[s] = struct{}{}
		r.accepted++
		r.mu.Unlock()

		r.wg.Add(1)
		go func() {
			defer r.wg.Done()
			s.run(ctx)
			r.mu.Lock()
			delete(r.sessions, s)
			r.mu.Unlock()
		}()
	}
}

// Close stops accepting and drops every client.
func (r *Reader) Close() error {
	err := r.ln.Close()
	r.DropConnections()
	return err
}

// DropConnections closes every client socket, as a network outage would.
func (r *Reader) DropConnections() {
	r.mu.Lock()
	defer r.mu.Unlock()
	for s := range r.sessions {
		s.conn.Close()
	}
}

// Inject sends a report with the given tags to every inventorying client.
func (r *Reader) Inject(tags ...llrp.TagReportData) {
	r.mu.Lock()
	sessions := make([]*session, 0, len(r.sessions))
	for s := range r.sessions {
		sessions = append(sessions, s)
	}
	r.mu.Unlock()

	for _, s := range sessions {
		if s.inventorying() {
			s.send(llrp.MsgROAccessReport, r.nextID(), &llrp.Report{Tags: tags})
		}
	}
}

// Received lists the messages clients have sent, in arrival order.
func (r *Reader) Received() []llrp.Message {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]llrp.Message(nil), r.received...)
}

// ReceivedTypes is Received reduced to message types.
func (r *Reader) ReceivedTypes() []llrp.MessageType {
	msgs := r.Received()
	types := make([]llrp.MessageType, len(msgs))
	for i, m := range msgs {
		types[i] = m.Type
	}
	return types
}

// Accepted counts connections accepted so far.
func (r *Reader) Accepted() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.accepted
}

// Inventorying reports whether any client has an enabled ROSpec.
func (r *Reader) Inventorying() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	for s := range r.sessions {
		if s.inventorying() {
			return true
		}
	}
	return false
}

func (r *Reader) record(m llrp.Message) {
	r.mu.Lock()
	r.received = append(r.received, m)
	r.mu.Unlock()
}

func (r *Reader) nextID() uint32 {
	return atomic.AddUint32(&r.msgID, 1)
}

// TagRead builds the TagReportData the simulated reader would send for one
// read of epc at time at.
func (r *Reader) TagRead(epc string, antenna uint16, rssi int8, at time.Time) llrp.TagReportData {
	b, _ := hex.DecodeString(epc)
	t := llrp.TagReportData{
		EPC:          b,
		AntennaID:    antenna,
		HasAntennaID: true,
		PeakRSSI:     rssi,
		HasPeakRSSI:  true,
		TagSeenCount: 1,
	}
	us := uint64(at.UnixNano() / int64(time.Microsecond))
	if r.cfg.HasUTCClock {
		t.FirstSeenUTC, t.LastSeenUTC = us, us
	} else {
		t.FirstSeenUptime, t.LastSeenUptime = us, us
	}
	if r.cfg.Manufacturer == 25882 {
		centi := int16(rssi) * 100
		t.Custom = []llrp.CustomParameter{{
			Vendor:  25882,
			Subtype: 57,
			Data:    []byte{byte(uint16(centi) >> 8), byte(uint16(centi))},
		}}
	}
	return t
}

func (r *Reader) randomRead(rng *rand.Rand) llrp.TagReportData {
	epc := r.cfg.Tags[rng.Intn(len(r.cfg.Tags))]
	span := int(r.cfg.RSSIMax) - int(r.cfg.RSSIMin) + 1
	rssi := int8(int(r.cfg.RSSIMin) + rng.Intn(span))
	antennas := int(r.cfg.Antennas)
	if antennas == 0 {
		antennas = 1
	}
	return r.TagRead(epc, uint16(1+rng.Intn(antennas)), rssi, time.Now())
}

func logger(remote string) *log.Entry {
	return log.WithFields(log.Fields{
		"Method": "llrpsim",
		"Client": remote,
	})
}
