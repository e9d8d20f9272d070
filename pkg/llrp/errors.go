/* Apache v2 license
*  Copyright (C) <2019> Intel Corporation
*
*  SPDX-License-Identifier: Apache-2.0
 */

package llrp

import (
	"fmt"

	"github.com/pkg/errors"
)

// ErrIncomplete is returned by Decode when the buffer does not yet hold a whole
// message. It is not a failure: the caller should read more bytes and retry.
var ErrIncomplete = errors.New("llrp: incomplete message")

// ProtocolError reports a frame that could not be decoded.
//
// When Fatal is false the header was valid and the frame can be skipped by
// its declared length. When Fatal is true the framing itself is corrupt and
// the byte stream cannot be resynchronized.
type ProtocolError struct {
	Header Header
	Fatal  bool
	Err    error
}

func (e *ProtocolError) Error() string {
	if e.Fatal {
		return fmt.Sprintf("llrp: corrupt header: %v", e.Err)
	}
	return fmt.Sprintf("llrp: malformed %v (id %d, %d bytes): %v",
		e.Header.Type, e.Header.ID, e.Header.Length, e.Err)
}

func (e *ProtocolError) Cause() error  { return e.Err }
func (e *ProtocolError) Unwrap() error { return e.Err }

// IsFatal reports whether err is, or wraps, a fatal ProtocolError.
func IsFatal(err error) bool {
	var pe *ProtocolError
	return errors.As(err, &pe) && pe.Fatal
}

func fatalHeader(h Header, format string, args ...interface{}) error {
	return &ProtocolError{Header: h, Fatal: true, Err: errors.Errorf(format, args...)}
}
