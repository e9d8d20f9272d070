/* Apache v2 license
*  Copyright (C) <2019> Intel Corporation
*
*  SPDX-License-Identifier: Apache-2.0
 */

package middlewares

import (
	"bytes"
	"context"
	"io"
	"io/ioutil"
	"mime"
	"net/http"

	"github.com/intel/rsp-sw-toolkit-im-suite-timing-engine/pkg/web"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
)

// MaxTimingPointBody bounds a PUT /timingpoints/{id} body. A timing point
// with every antenna listed is well under 1KB.
const MaxTimingPointBody = 16 << 10

// TimingPointBody rejects timing point bodies that are oversized or not
// JSON before they reach the handler. Requests without a body pass through.
func TimingPointBody(next web.Handler) web.Handler {
	return web.Handler(func(ctx context.Context, writer http.ResponseWriter, request *http.Request) error {
		if request.Method != http.MethodPut || request.Body == nil {
			return next(ctx, writer, request)
		}

		if err := checkBody(request); err != nil {
			fields := log.Fields{
				"Method":     request.Method,
				"RequestURI": request.RequestURI,
				"Error":      err.Error(),
			}
			if v, ok := ctx.Value(web.KeyValues).(*web.ContextValues); ok {
				fields["TraceID"] = v.TraceID
			}
			log.WithFields(fields).Warn("timing point body rejected")
			return err
		}
		return next(ctx, writer, request)
	})
}

// checkBody replaces request.Body with an in-memory copy of at most
// MaxTimingPointBody bytes.
func checkBody(request *http.Request) error {
	if ct := request.Header.Get("Content-Type"); ct != "" {
		mediaType, _, err := mime.ParseMediaType(ct)
		if err != nil || mediaType != "application/json" {
			return errors.Wrapf(web.ErrUnsupportedMediaType, "got %q", ct)
		}
	}

	if request.ContentLength > MaxTimingPointBody {
		return errors.Wrapf(web.ErrEntityTooLarge, "declared %d bytes", request.ContentLength)
	}

	// chunked bodies carry no length, so read one byte past the limit
	var buf bytes.Buffer
	n, err := buf.ReadFrom(io.LimitReader(request.Body, MaxTimingPointBody+1))
	if err != nil {
		return errors.Wrap(web.ErrInvalidInput, err.Error())
	}
	if n > MaxTimingPointBody {
		return errors.Wrapf(web.ErrEntityTooLarge, "more than %d bytes", MaxTimingPointBody)
	}
	request.ContentLength = n
	request.Body = ioutil.NopCloser(&buf)
	return nil
}
