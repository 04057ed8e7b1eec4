package ble

import "context"

// ReadRequest describes an inbound Read/Read Blob/Read By Type access to
// an attribute's value.
type ReadRequest struct {
	Conn   Conn
	Offset int // 0 for Read Request; non-zero for Read Blob Request
}

// ReadResponder completes an asynchronous read callback. Exactly one of
// Respond/RespondError must be called, possibly from a different goroutine
// and possibly well after HandleRead returns. [C4.3]
type ReadResponder interface {
	// Respond supplies the attribute value (or the requested slice of it
	// starting at Offset). The server truncates Read, Read Blob and Read
	// Multiple responses to the negotiated MTU.
	Respond(data []byte)

	// RespondError fails the read with an ATT error code.
	RespondError(code ATTError)
}

// ReadHandler serves reads of a characteristic or descriptor value.
type ReadHandler interface {
	HandleRead(r *ReadRequest, rsp ReadResponder)
}

// ReadHandlerFunc adapts a function to a ReadHandler.
type ReadHandlerFunc func(r *ReadRequest, rsp ReadResponder)

// HandleRead calls f(r, rsp).
func (f ReadHandlerFunc) HandleRead(r *ReadRequest, rsp ReadResponder) { f(r, rsp) }

// WriteRequest describes an inbound Write/Write Command/Prepare Write
// access to an attribute's value.
type WriteRequest struct {
	Conn       Conn
	Data       []byte
	Offset     int  // non-zero only for a value assembled from queued Prepare Writes
	NoResponse bool // true for Write Command: RespondError's code is discarded, never placed on the wire
}

// WriteResponder completes an asynchronous write callback.
type WriteResponder interface {
	// Respond accepts the write.
	Respond()

	// RespondError fails the write with an ATT error code.
	RespondError(code ATTError)
}

// WriteHandler serves writes to a characteristic or descriptor value.
type WriteHandler interface {
	HandleWrite(r *WriteRequest, rsp WriteResponder)
}

// WriteHandlerFunc adapts a function to a WriteHandler.
type WriteHandlerFunc func(r *WriteRequest, rsp WriteResponder)

// HandleWrite calls f(r, rsp).
func (f WriteHandlerFunc) HandleWrite(r *WriteRequest, rsp WriteResponder) { f(r, rsp) }

// Notifier is handed to a characteristic's NotifyHandler/IndicateHandler
// the moment a peer subscribes via the Client Characteristic Configuration
// descriptor, and is valid until the subscription is cancelled or the
// connection closes.
type Notifier interface {
	// Context is cancelled when the subscription ends.
	Context() context.Context

	// Write sends data as a notification or indication, depending on
	// which handler this Notifier was handed to. For an indication it
	// blocks until the peer's confirmation arrives or the bearer's
	// indication timeout elapses.
	Write(data []byte) (int, error)

	// Close ends the subscription from the local side.
	Close() error

	// Cap returns the maximum payload Write accepts under the current MTU.
	Cap() int
}

// NotifyHandler is invoked once, in a fresh goroutine, each time a peer
// writes 0x0001 to a characteristic's CCCD enabling notifications. It
// should loop, pushing values to n until n.Context() is cancelled.
type NotifyHandler interface {
	HandleNotify(r *ReadRequest, n Notifier)
}

// NotifyHandlerFunc adapts a function to a NotifyHandler.
type NotifyHandlerFunc func(r *ReadRequest, n Notifier)

// HandleNotify calls f(r, n).
func (f NotifyHandlerFunc) HandleNotify(r *ReadRequest, n Notifier) { f(r, n) }
