/* Apache v2 license
*  Copyright (C) <2019> Intel Corporation
*
*  SPDX-License-Identifier: Apache-2.0
 */

package routes

import (
	"github.com/gorilla/mux"
	"github.com/intel/rsp-sw-toolkit-im-suite-timing-engine/app/routes/handlers"
	"github.com/intel/rsp-sw-toolkit-im-suite-timing-engine/pkg/middlewares"
	"github.com/intel/rsp-sw-toolkit-im-suite-timing-engine/pkg/promexport"
	"github.com/intel/rsp-sw-toolkit-im-suite-timing-engine/pkg/web"
	"github.com/rcrowley/go-metrics"
)

// Route struct holds attributes to declare routes
type Route struct {
	Name        string
	Method      string
	Pattern     string
	HandlerFunc web.Handler
}

// Options for the router beyond the station itself.
type Options struct {
	Registry   metrics.Registry
	EnableCORS bool
	CORSOrigin string
}

// NewRouter creates the status routes
func NewRouter(station handlers.Station, opts Options) *mux.Router {

	timing := handlers.Timing{Station: station, Registry: opts.Registry}

	var routes = []Route{
		// Healthcheck endpoint used to determine if the application is ready
		// to take web requests.
		{
			"Index",
			"GET",
			"/",
			timing.Index,
		},
		// Connection state, last error and last connected time per reader.
		{
			"GetReaders",
			"GET",
			"/readers",
			timing.GetReaders,
		},
		{
			"GetTimingPoints",
			"GET",
			"/timingpoints",
			timing.GetTimingPoints,
		},
		// Body: timing point fields as in the configuration file, without
		// timing_point_id. Responses: 204, 400, 413.
		{
			"PutTimingPoint",
			"PUT",
			"/timingpoints/{id}",
			timing.PutTimingPoint,
		},
		// Responses: 204, 404.
		{
			"DeleteTimingPoint",
			"DELETE",
			"/timingpoints/{id}",
			timing.DeleteTimingPoint,
		},
		{
			"GetMetrics",
			"GET",
			"/metrics",
			timing.GetMetrics,
		},
	}

	router := mux.NewRouter().StrictSlash(true)
	for _, route := range routes {

		var handler = route.HandlerFunc
		handler = middlewares.Recover(handler)
		handler = middlewares.Logger(handler)
		handler = middlewares.TimingPointBody(handler)
		if opts.EnableCORS {
			handler = middlewares.CORS(opts.CORSOrigin, handler)
		}

		router.
			Methods(route.Method).
			Path(route.Pattern).
			Name(route.Name).
			Handler(handler)
	}

	router.
		Methods("GET").
		Path("/metrics/prometheus").
		Name("GetPrometheusMetrics").
		Handler(promexport.Handler("timing", opts.Registry))

	return router
}
