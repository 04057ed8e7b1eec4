package ble

import (
	"fmt"

	"github.com/pkg/errors"
)

// ErrNotImplemented means the functionality is not implemented.
var ErrNotImplemented = errors.New("not implemented")

// ATTError is an error code of the Attribute Protocol. [Vol 3, Part F, 3.4.1.1]
type ATTError byte

// ATT error codes.
const (
	ErrSuccess           ATTError = 0x00
	ErrInvalidHandle     ATTError = 0x01 // the attribute handle given was not valid on this server
	ErrReadNotPerm       ATTError = 0x02 // the attribute cannot be read
	ErrWriteNotPerm      ATTError = 0x03 // the attribute cannot be written
	ErrInvalidPDU        ATTError = 0x04 // the attribute PDU was invalid
	ErrAuthentication    ATTError = 0x05 // insufficient authentication to read or write the attribute
	ErrReqNotSupp        ATTError = 0x06 // the server does not support the request
	ErrInvalidOffset     ATTError = 0x07 // the offset given was past the end of the attribute
	ErrAuthorization     ATTError = 0x08 // insufficient authorization to read or write the attribute
	ErrPrepQueueFull     ATTError = 0x09 // too many prepare writes have been queued
	ErrAttrNotFound      ATTError = 0x0a // no attribute found within the given handle range
	ErrAttrNotLong       ATTError = 0x0b // the attribute cannot be read/written using Read Blob
	ErrInsuffEncrKeySize ATTError = 0x0c // the encryption key size used on this link is insufficient
	ErrInvalAttrValueLen ATTError = 0x0d // the attribute value length is invalid for the operation
	ErrUnlikely          ATTError = 0x0e // an unlikely error occurred and the request could not be completed
	ErrInsuffEnc         ATTError = 0x0f // insufficient encryption to read or write the attribute
	ErrUnsuppGrpType     ATTError = 0x10 // the attribute type is not a supported grouping attribute
	ErrInsuffResources   ATTError = 0x11 // insufficient resources to complete the request
)

func (e ATTError) Error() string {
	switch i := int(e); {
	case i <= 0x11:
		return errName[e]
	case i >= 0x12 && i <= 0x7F:
		return fmt.Sprintf("reserved error code (0x%02X)", i)
	case i >= 0x80 && i <= 0x9F:
		return fmt.Sprintf("application error code (0x%02X)", i)
	case i >= 0xA0 && i <= 0xDF:
		return fmt.Sprintf("reserved error code (0x%02X)", i)
	case i >= 0xE0 && i <= 0xFF:
		return "profile or service error"
	}
	return "unknown error"
}

var errName = map[ATTError]string{
	ErrSuccess:           "success",
	ErrInvalidHandle:     "invalid handle",
	ErrReadNotPerm:       "read not permitted",
	ErrWriteNotPerm:      "write not permitted",
	ErrInvalidPDU:        "invalid PDU",
	ErrAuthentication:    "insufficient authentication",
	ErrReqNotSupp:        "request not supported",
	ErrInvalidOffset:     "invalid offset",
	ErrAuthorization:     "insufficient authorization",
	ErrPrepQueueFull:     "prepare queue full",
	ErrAttrNotFound:      "attribute not found",
	ErrAttrNotLong:       "attribute not long",
	ErrInsuffEncrKeySize: "insufficient encryption key size",
	ErrInvalAttrValueLen: "invalid attribute value length",
	ErrUnlikely:          "unlikely error",
	ErrInsuffEnc:         "insufficient encryption",
	ErrUnsuppGrpType:     "unsupported group type",
	ErrInsuffResources:   "insufficient resources",
}

// ProtocolError wraps a remote Error Response: the peer rejected a
// request naming an attribute handle and an ATT error code.
type ProtocolError struct {
	Handle uint16
	Code   ATTError
}

func (e *ProtocolError) Error() string {
	return fmt.Sprintf("att: handle 0x%04X: %s", e.Handle, e.Code)
}

// MalformedPdu is returned when an inbound PDU fails to decode: it is
// shorter than its opcode's minimum length, a length-prefixed list doesn't
// divide evenly, or a handle is 0x0000 where disallowed. A PDU's length or
// an Exchange MTU value is not compared with the negotiated MTU.
// Decoding a malformed PDU is terminal for the bearer it arrived on.
type MalformedPdu struct {
	Reason string
}

func (e *MalformedPdu) Error() string {
	return fmt.Sprintf("att: malformed pdu: %s", e.Reason)
}

// InvalidResponse is returned when an inbound PDU doesn't match the
// method family of the bearer's single outstanding request. Terminal for
// the bearer.
type InvalidResponse struct {
	Expected byte
	Got      byte
}

func (e *InvalidResponse) Error() string {
	return fmt.Sprintf("att: invalid response: expected opcode family 0x%02X, got 0x%02X", e.Expected, e.Got)
}

// ErrTimeout is returned when a request receives no matching response
// within the bearer's request timeout. Terminal for the bearer.
var ErrTimeout = errors.New("att: request timed out")

// ErrCancelled is returned to a pending request's caller when the caller
// cancels it (e.g. by cancelling its context) before a response arrives.
// It is not terminal for the bearer.
var ErrCancelled = errors.New("att: request cancelled")

// ErrDisconnected is returned to every pending request and indication,
// and from any subsequent send, once the bearer's underlying Conn has
// disconnected.
var ErrDisconnected = errors.New("att: bearer disconnected")

// ErrReliableWriteMismatch is returned from a reliable long write when
// the server's prepare-write echo does not byte-match what was sent; the
// caller's Execute Write is sent with flags=0x00 to discard the queue.
var ErrReliableWriteMismatch = errors.New("att: reliable write echo mismatch")

// PermissionDenied is a local, server-side precheck failure that is
// materialized on the wire as the matching ATT error before any
// read/write callback runs.
type PermissionDenied struct {
	Code ATTError
}

func (e *PermissionDenied) Error() string {
	return fmt.Sprintf("att: permission denied: %s", e.Code)
}
