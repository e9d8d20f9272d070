/* Apache v2 license
*  Copyright (C) <2019> Intel Corporation
*
*  SPDX-License-Identifier: Apache-2.0
 */

package middlewares

import (
	"context"
	"net/http"
	"runtime/debug"

	"github.com/intel/rsp-sw-toolkit-im-suite-timing-engine/pkg/web"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
)

// Recover turns a panic in a handler into a 500 response.
func Recover(next web.Handler) web.Handler {
	return web.Handler(func(ctx context.Context, writer http.ResponseWriter, request *http.Request) (err error) {
		defer func() {
			if r := recover(); r != nil {
				log.WithFields(log.Fields{
					"Method":     request.Method,
					"RequestURI": request.RequestURI,
					"Stack":      string(debug.Stack()),
				}).Errorf("handler panic: %v", r)
				err = errors.Errorf("panic: %v", r)
			}
		}()
		return next(ctx, writer, request)
	})
}
