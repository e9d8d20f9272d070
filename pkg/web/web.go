/* Apache v2 license
*  Copyright (C) <2019> Intel Corporation
*
*  SPDX-License-Identifier: Apache-2.0
 */

package web

import (
	"context"
	"net/http"
	"time"

	"github.com/google/uuid"
)

type ctxKey int

// KeyValues is how request values are stored/retrieved.
const KeyValues ctxKey = 1

// ContextValues carries request scoped values through a Handler chain.
type ContextValues struct {
	Method     string
	RequestURI string
	TraceID    string
	Now        time.Time
	StatusCode int
}

// Handler is an http handler that returns its error instead of writing it.
type Handler func(ctx context.Context, writer http.ResponseWriter, request *http.Request) error

// ServeHTTP seeds the request context and responds with any returned error.
func (handler Handler) ServeHTTP(writer http.ResponseWriter, request *http.Request) {
	values := ContextValues{
		Method:     request.Method,
		RequestURI: request.RequestURI,
		TraceID:    uuid.New().String(),
		Now:        time.Now(),
	}
	ctx := context.WithValue(request.Context(), KeyValues, &values)
	writer.Header().Set("X-Trace-Id", values.TraceID)

	if err := handler(ctx, writer, request.WithContext(ctx)); err != nil {
		Error(ctx, writer, err)
	}
}
