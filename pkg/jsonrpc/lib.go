/* Apache v2 license
*  Copyright (C) <2019> Intel Corporation
*
*  SPDX-License-Identifier: Apache-2.0
 */

package jsonrpc

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/pkg/errors"
	"github.com/rcrowley/go-metrics"
	"github.com/sirupsen/logrus"
)

func errorHandler(method, message string, err error, errorCounter metrics.Counter) {
	if err != nil {
		if errorCounter != nil {
			errorCounter.Inc(1)
		}
		logrus.WithFields(logrus.Fields{
			"Method": method,
			"Error":  fmt.Sprintf("%+v", err),
		}).Error(message)
	}
}

func Decode(value string, js Message, errorCounter metrics.Counter) error {
	decoder := json.NewDecoder(strings.NewReader(value))
	decoder.UseNumber()

	if err := decoder.Decode(js); err != nil {
		errorHandler("jsonrpc.Decode", "error decoding jsonrpc message", err, errorCounter)
		return err
	}

	if err := js.Validate(); err != nil {
		errorHandler("jsonrpc.Decode", "error validating jsonrpc message", err, errorCounter)
		return err
	}

	return nil
}

// Writer writes one notification per line. It is safe for concurrent use.
type Writer struct {
	mu           sync.Mutex
	enc          *json.Encoder
	errorCounter metrics.Counter
}

func NewWriter(w io.Writer, errorCounter metrics.Counter) *Writer {
	return &Writer{enc: json.NewEncoder(w), errorCounter: errorCounter}
}

// Write validates js and writes it followed by a newline.
func (w *Writer) Write(js Message) error {
	if err := js.Validate(); err != nil {
		errorHandler("jsonrpc.Write", "refusing invalid jsonrpc message", err, w.errorCounter)
		return err
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	if err := w.enc.Encode(js); err != nil {
		err = errors.Wrap(err, "write jsonrpc message")
		errorHandler("jsonrpc.Write", "error writing jsonrpc message", err, w.errorCounter)
		return err
	}
	return nil
}
