/* Apache v2 license
*  Copyright (C) <2019> Intel Corporation
*
*  SPDX-License-Identifier: Apache-2.0
 */

package web

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
)

// JSONError is the response for errors that occur within the API.
type JSONError struct {
	// The error message
	Error string `json:"error"`
}

var (
	// ErrNotFound is returned for a timing point id that is not configured.
	ErrNotFound = errors.New("timing point not found")

	// ErrInvalidID is returned when the path carries no timing point id.
	ErrInvalidID = errors.New("timing point id is required")

	// ErrInvalidInput is returned for a body that is not a timing point.
	ErrInvalidInput = errors.New("malformed timing point")

	// ErrValidation is returned for a well formed timing point the detector
	// or station rejects.
	ErrValidation = errors.New("invalid timing point")

	// ErrEntityTooLarge is returned for a timing point body over the limit.
	ErrEntityTooLarge = errors.New("timing point body too large")

	// ErrUnsupportedMediaType is returned for a body that is not JSON.
	ErrUnsupportedMediaType = errors.New("timing point body must be application/json")
)

var clientErrors = map[error]int{
	ErrNotFound:             http.StatusNotFound,
	ErrInvalidID:            http.StatusBadRequest,
	ErrInvalidInput:         http.StatusBadRequest,
	ErrValidation:           http.StatusBadRequest,
	ErrEntityTooLarge:       http.StatusRequestEntityTooLarge,
	ErrUnsupportedMediaType: http.StatusUnsupportedMediaType,
}

// StatusCode maps err to the status it is answered with.
func StatusCode(err error) int {
	if code, ok := clientErrors[errors.Cause(err)]; ok {
		return code
	}
	return http.StatusInternalServerError
}

// Error answers a client error with its wrapped message. Anything else is
// logged and answered with a generic 500 so internals do not leak.
func Error(ctx context.Context, writer http.ResponseWriter, err error) {
	code := StatusCode(err)
	if code != http.StatusInternalServerError {
		RespondError(ctx, writer, err, code)
		return
	}

	contextValues := values(ctx)
	log.WithFields(log.Fields{
		"Method":     contextValues.Method,
		"RequestURI": contextValues.RequestURI,
		"TraceID":    contextValues.TraceID,
		"Code":       code,
		"Error":      err.Error(),
	}).Error("Server error")

	RespondError(ctx, writer, errors.New("an error has occurred. Try again"), code)
}

// RespondError sends JSON describing the error
func RespondError(ctx context.Context, writer http.ResponseWriter, err error, code int) {
	Respond(ctx, writer, JSONError{Error: err.Error()}, code)
}

// Respond sends data as indented JSON. A nil data writes only the status.
func Respond(ctx context.Context, writer http.ResponseWriter, data interface{}, code int) {
	contextValues := values(ctx)
	contextValues.StatusCode = code

	if data == nil {
		writer.WriteHeader(code)
		return
	}

	jsonData, err := json.MarshalIndent(data, "", "  ")
	if err != nil {
		log.WithFields(log.Fields{
			"Function": "web.Respond",
			"Action":   "MarshalIndent",
			"TraceID":  contextValues.TraceID,
			"Error":    err.Error(),
		}).Error("Error Marshalling JSON response")
		jsonData = []byte("{}")
	}

	writer.Header().Set("Content-Type", "application/json")
	writer.WriteHeader(code)
	if _, err := writer.Write(jsonData); err != nil {
		log.WithFields(log.Fields{
			"Function":   "web.Respond",
			"Method":     contextValues.Method,
			"RequestURI": contextValues.RequestURI,
			"TraceID":    contextValues.TraceID,
			"Error":      err.Error(),
		}).Error("Error writing JSON response")
	}
}

func values(ctx context.Context) *ContextValues {
	if v, ok := ctx.Value(KeyValues).(*ContextValues); ok {
		return v
	}
	return &ContextValues{}
}
