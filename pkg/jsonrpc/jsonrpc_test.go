package jsonrpc

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/intel/rsp-sw-toolkit-im-suite-timing-engine/app/detection"
	"github.com/intel/rsp-sw-toolkit-im-suite-timing-engine/app/reader"
	"github.com/rcrowley/go-metrics"
)

func TestWriteCrossingEvent(t *testing.T) {
	var buf bytes.Buffer
	w := NewWriter(&buf, nil)

	ce := detection.CrossingEvent{
		ID:            "8f0e3bb4-7c0b-4f55-9d41-5a7c6d3f2e10",
		TagID:         "E20000000000000000000001",
		TimingPointID: "finish",
		Timestamp:     time.Date(2024, 5, 1, 9, 0, 1, 0, time.UTC),
		ModeUsed:      detection.UsedPeakRSSI,
		SampleCount:   5,
		RSSI:          -50,
	}
	if err := w.Write(NewCrossingEvent(ce)); err != nil {
		t.Fatalf("Unexpected error: %s", err.Error())
	}

	line := buf.String()
	if !strings.HasSuffix(line, "\n") || strings.Count(line, "\n") != 1 {
		t.Errorf("Expected a single line, got %q", line)
	}
	for _, want := range []string{
		`"jsonrpc":"2.0"`,
		`"method":"crossing_event"`,
		`"timestamp":"2024-05-01T09:00:01.000Z"`,
		`"mode_used":"peak_rssi"`,
	} {
		if !strings.Contains(line, want) {
			t.Errorf("Expected %s in %s", want, line)
		}
	}

	decoded := new(CrossingEvent)
	if err := Decode(line, decoded, nil); err != nil {
		t.Fatalf("Unexpected error decoding: %s", err.Error())
	}
	if decoded.Params.TagID != ce.TagID || !decoded.Params.Timestamp.Equal(ce.Timestamp) {
		t.Errorf("Expected %+v. Actual: %+v", ce, decoded.Params)
	}
}

func TestWriteRejectsInvalid(t *testing.T) {
	var buf bytes.Buffer
	errs := metrics.NewCounter()
	w := NewWriter(&buf, errs)

	if err := w.Write(NewReaderStatus(reader.Status{State: reader.Streaming})); err == nil {
		t.Error("Expected missing reader_id to be rejected")
	}
	if err := w.Write(NewHeartbeat(HeartbeatParams{})); err == nil {
		t.Error("Expected missing station_id to be rejected")
	}
	if buf.Len() != 0 {
		t.Errorf("Nothing should be written, got %q", buf.String())
	}
	if errs.Count() != 2 {
		t.Errorf("Expected 2 errors counted. Actual: %d", errs.Count())
	}
}

func TestDecodeValidatesNotification(t *testing.T) {
	tests := map[string]string{
		"bad version":    `{"jsonrpc":"1.0","method":"reader_status","params":{"reader_id":"r","state":"streaming"}}`,
		"missing method": `{"jsonrpc":"2.0","params":{"reader_id":"r","state":"streaming"}}`,
		"not json":       `{"jsonrpc":`,
	}
	for name, value := range tests {
		t.Run(name, func(t *testing.T) {
			if err := Decode(value, new(ReaderStatus), nil); err == nil {
				t.Error("Expected error")
			}
		})
	}

	status := new(ReaderStatus)
	value := `{"jsonrpc":"2.0","method":"reader_status","params":{"reader_id":"10.0.0.5:5084","state":"streaming","at":"2024-05-01T09:00:00Z"}}`
	if err := Decode(value, status, nil); err != nil {
		t.Fatalf("Unexpected error: %s", err.Error())
	}
	if status.Params.State != reader.Streaming {
		t.Errorf("Unexpected state %s", status.Params.State)
	}
}
