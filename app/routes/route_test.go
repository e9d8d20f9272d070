package routes

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/intel/rsp-sw-toolkit-im-suite-timing-engine/app/detection"
	"github.com/intel/rsp-sw-toolkit-im-suite-timing-engine/app/reader"
	"github.com/intel/rsp-sw-toolkit-im-suite-timing-engine/app/station"
	"github.com/intel/rsp-sw-toolkit-im-suite-timing-engine/pkg/middlewares"
	"github.com/pkg/errors"
	"github.com/rcrowley/go-metrics"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeStation struct {
	readers []reader.Status
	points  map[string]station.TimingPoint
}

func newFakeStation() *fakeStation {
	return &fakeStation{
		readers: []reader.Status{{
			ReaderID: "10.0.0.5:5084",
			State:    reader.Streaming,
			At:       time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC),
			Profile:  "impinj",
		}},
		points: map[string]station.TimingPoint{
			"finish": {ID: "finish", ReaderHost: "10.0.0.5", Detection: detection.DefaultConfig()},
		},
	}
}

func (f *fakeStation) ReaderStatuses() []reader.Status { return f.readers }

func (f *fakeStation) TimingPoints() []station.TimingPointInfo {
	var infos []station.TimingPointInfo
	for _, tp := range f.points {
		infos = append(infos, station.TimingPointInfo{
			TimingPointStatus: detection.TimingPointStatus{ID: tp.ID, Mode: tp.Detection.Mode},
			ReaderID:          tp.ReaderID(),
			Antennas:          tp.Antennas,
		})
	}
	return infos
}

func (f *fakeStation) UpdateTimingPoint(ctx context.Context, tp station.TimingPoint) error {
	if tp.ReaderHost == "" {
		return errors.New("reader host is required")
	}
	f.points[tp.ID] = tp
	return nil
}

func (f *fakeStation) RemoveTimingPoint(ctx context.Context, id string) error {
	if _, ok := f.points[id]; !ok {
		return errors.Wrapf(detection.ErrUnknownTimingPoint, "remove %q", id)
	}
	delete(f.points, id)
	return nil
}

func serve(t *testing.T, s *fakeStation, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	registry := metrics.NewRegistry()
	metrics.GetOrRegisterCounter("Detection.Crossing.Emitted", registry).Inc(2)

	router := NewRouter(s, Options{Registry: registry})
	request := httptest.NewRequest(method, path, strings.NewReader(body))
	recorder := httptest.NewRecorder()
	router.ServeHTTP(recorder, request)
	return recorder
}

func TestGetIndex(t *testing.T) {
	recorder := serve(t, newFakeStation(), "GET", "/", "")
	assert.Equal(t, http.StatusOK, recorder.Code)
	assert.Equal(t, `"Timing Engine"`, recorder.Body.String())
}

func TestGetReaders(t *testing.T) {
	recorder := serve(t, newFakeStation(), "GET", "/readers", "")
	require.Equal(t, http.StatusOK, recorder.Code)

	var statuses []map[string]interface{}
	require.NoError(t, json.Unmarshal(recorder.Body.Bytes(), &statuses))
	require.Len(t, statuses, 1)
	assert.Equal(t, "10.0.0.5:5084", statuses[0]["reader_id"])
	assert.Equal(t, "streaming", statuses[0]["state"])
	assert.Equal(t, "impinj", statuses[0]["profile"])
}

func TestGetTimingPoints(t *testing.T) {
	recorder := serve(t, newFakeStation(), "GET", "/timingpoints", "")
	require.Equal(t, http.StatusOK, recorder.Code)
	assert.Contains(t, recorder.Body.String(), `"timing_point_id": "finish"`)
	assert.Contains(t, recorder.Body.String(), `"reader_id": "10.0.0.5:5084"`)
}

func TestPutTimingPoint(t *testing.T) {
	s := newFakeStation()
	tests := []struct {
		name string
		body string
		code int
	}{
		{"valid", `{"reader_host":"10.0.0.6","detection_mode":"peak_rssi","window_seconds":2,"antennas":[1]}`, http.StatusNoContent},
		{"unknown mode", `{"reader_host":"10.0.0.6","detection_mode":"fastest"}`, http.StatusBadRequest},
		{"zero window", `{"reader_host":"10.0.0.6","window_seconds":0}`, http.StatusBadRequest},
		{"unknown field", `{"reader_host":"10.0.0.6","bib":12}`, http.StatusBadRequest},
		{"not json", `{`, http.StatusBadRequest},
		{"rejected by station", `{}`, http.StatusBadRequest},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			recorder := serve(t, s, "PUT", "/timingpoints/split", test.body)
			assert.Equal(t, test.code, recorder.Code, recorder.Body.String())
		})
	}

	split := s.points["split"]
	assert.Equal(t, detection.PeakRSSI, split.Detection.Mode)
	assert.Equal(t, 2*time.Second, split.Detection.Window)
	assert.Equal(t, []int{1}, split.Antennas)
}

func TestDeleteTimingPoint(t *testing.T) {
	s := newFakeStation()
	assert.Equal(t, http.StatusNoContent, serve(t, s, "DELETE", "/timingpoints/finish", "").Code)
	assert.Empty(t, s.points)
	recorder := serve(t, s, "DELETE", "/timingpoints/finish", "")
	assert.Equal(t, http.StatusNotFound, recorder.Code)
	assert.Contains(t, recorder.Body.String(), `"\"finish\": timing point not found"`)
}

func TestPutTimingPointOversizedBody(t *testing.T) {
	s := newFakeStation()
	body := `{"reader_host":"` + strings.Repeat("a", middlewares.MaxTimingPointBody) + `"}`
	recorder := serve(t, s, "PUT", "/timingpoints/split", body)
	assert.Equal(t, http.StatusRequestEntityTooLarge, recorder.Code)
	assert.NotContains(t, s.points, "split")
}

func TestGetMetrics(t *testing.T) {
	recorder := serve(t, newFakeStation(), "GET", "/metrics", "")
	require.Equal(t, http.StatusOK, recorder.Code)

	var body map[string]map[string]interface{}
	require.NoError(t, json.Unmarshal(recorder.Body.Bytes(), &body))
	assert.Equal(t, float64(2), body["Detection.Crossing.Emitted"]["count"])

	prom := serve(t, newFakeStation(), "GET", "/metrics/prometheus", "")
	require.Equal(t, http.StatusOK, prom.Code)
	assert.Contains(t, prom.Body.String(), "timing_detection_crossing_emitted 2")
}
