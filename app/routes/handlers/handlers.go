/* Apache v2 license
*  Copyright (C) <2019> Intel Corporation
*
*  SPDX-License-Identifier: Apache-2.0
 */

package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/intel/rsp-sw-toolkit-im-suite-timing-engine/app/config"
	"github.com/intel/rsp-sw-toolkit-im-suite-timing-engine/app/detection"
	"github.com/intel/rsp-sw-toolkit-im-suite-timing-engine/app/reader"
	"github.com/intel/rsp-sw-toolkit-im-suite-timing-engine/app/station"
	"github.com/intel/rsp-sw-toolkit-im-suite-timing-engine/pkg/web"
	"github.com/pkg/errors"
	"github.com/rcrowley/go-metrics"
)

// Station is the part of station.Station the handlers use.
type Station interface {
	ReaderStatuses() []reader.Status
	TimingPoints() []station.TimingPointInfo
	UpdateTimingPoint(ctx context.Context, tp station.TimingPoint) error
	RemoveTimingPoint(ctx context.Context, id string) error
}

// Timing represents the status API method handler set.
type Timing struct {
	Station  Station
	Registry metrics.Registry
}

// Index is used for Docker Healthcheck commands to indicate
// whether the http server is up and running to take requests
//nolint:unparam
func (timing *Timing) Index(ctx context.Context, writer http.ResponseWriter, request *http.Request) error {
	web.Respond(ctx, writer, "Timing Engine", http.StatusOK)
	return nil
}

// GetReaders returns the connection health of every reader.
func (timing *Timing) GetReaders(ctx context.Context, writer http.ResponseWriter, request *http.Request) error {
	web.Respond(ctx, writer, timing.Station.ReaderStatuses(), http.StatusOK)
	return nil
}

// GetTimingPoints returns every timing point with its open buffers and
// cooldowns.
func (timing *Timing) GetTimingPoints(ctx context.Context, writer http.ResponseWriter, request *http.Request) error {
	web.Respond(ctx, writer, timing.Station.TimingPoints(), http.StatusOK)
	return nil
}

// PutTimingPoint adds or replaces a timing point. A replaced timing point's
// open windows are emitted under its old config first.
// 204 No Content, 400 Bad Request, 413 Request Entity Too Large,
// 415 Unsupported Media Type, 500 Internal Error
func (timing *Timing) PutTimingPoint(ctx context.Context, writer http.ResponseWriter, request *http.Request) error {
	startTime := time.Now()
	defer metrics.GetOrRegisterTimer("Timing.PutTimingPoint.Latency", timing.Registry).UpdateSince(startTime)
	mValidationErr := metrics.GetOrRegisterCounter("Timing.PutTimingPoint.Validation-Error", timing.Registry)

	id := mux.Vars(request)["id"]
	if id == "" {
		return web.ErrInvalidID
	}

	var tp config.TimingPoint
	decoder := json.NewDecoder(request.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(&tp); err != nil {
		mValidationErr.Inc(1)
		return errors.Wrapf(web.ErrInvalidInput, "timing point body: %s", err.Error())
	}
	tp.ID = id

	det, err := tp.Detection()
	if err != nil {
		mValidationErr.Inc(1)
		return errors.Wrap(web.ErrValidation, err.Error())
	}

	err = timing.Station.UpdateTimingPoint(ctx, station.TimingPoint{
		ID:         id,
		ReaderHost: tp.ReaderHost,
		ReaderPort: tp.ReaderPort,
		Antennas:   tp.Antennas,
		Detection:  det,
	})
	if err != nil {
		mValidationErr.Inc(1)
		return errors.Wrap(web.ErrValidation, err.Error())
	}

	web.Respond(ctx, writer, nil, http.StatusNoContent)
	return nil
}

// DeleteTimingPoint emits the timing point's open windows and removes it.
// 204 No Content, 404 Not Found
func (timing *Timing) DeleteTimingPoint(ctx context.Context, writer http.ResponseWriter, request *http.Request) error {
	id := mux.Vars(request)["id"]
	if err := timing.Station.RemoveTimingPoint(ctx, id); err != nil {
		if errors.Cause(err) == detection.ErrUnknownTimingPoint {
			return errors.Wrapf(web.ErrNotFound, "%q", id)
		}
		return err
	}
	web.Respond(ctx, writer, nil, http.StatusNoContent)
	return nil
}

// GetMetrics returns the metrics registry as JSON.
func (timing *Timing) GetMetrics(ctx context.Context, writer http.ResponseWriter, request *http.Request) error {
	registry := timing.Registry
	if registry == nil {
		registry = metrics.DefaultRegistry
	}
	web.Respond(ctx, writer, registry, http.StatusOK)
	return nil
}
