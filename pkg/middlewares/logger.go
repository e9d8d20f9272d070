/* Apache v2 license
*  Copyright (C) <2019> Intel Corporation
*
*  SPDX-License-Identifier: Apache-2.0
 */

package middlewares

import (
	"context"
	"net/http"
	"time"

	"github.com/intel/rsp-sw-toolkit-im-suite-timing-engine/pkg/web"
	log "github.com/sirupsen/logrus"
)

// Logger logs every request once the handler returns.
func Logger(next web.Handler) web.Handler {
	return web.Handler(func(ctx context.Context, writer http.ResponseWriter, request *http.Request) error {
		err := next(ctx, writer, request)

		fields := log.Fields{
			"Method":     request.Method,
			"RequestURI": request.RequestURI,
			"RemoteAddr": request.RemoteAddr,
		}
		if v, ok := ctx.Value(web.KeyValues).(*web.ContextValues); ok {
			fields["TraceID"] = v.TraceID
			fields["Code"] = v.StatusCode
			fields["Duration"] = time.Since(v.Now).String()
		}
		log.WithFields(fields).Debug("request")
		return err
	})
}
