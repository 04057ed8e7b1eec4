package att

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/knx-ble/attgatt/ble"
)

// Handler is installed on a Bearer to receive the two classes of inbound
// traffic the bearer's own request/indication bookkeeping doesn't answer
// itself: requests arriving for local dispatch (server role) and
// notifications/indications arriving for local subscribers (client
// role). NopHandler satisfies both methods as a no-op, so a
// client-only or server-only bearer need only embed it and override the
// one method it cares about.
type Handler interface {
	// HandleRequest processes an inbound request PDU (an even opcode
	// other than a notification/indication/confirmation) and calls
	// respond exactly once with the encoded response PDU, or with nil
	// for a command, which has none. respond may be called from any
	// goroutine, synchronously or after an attribute callback completes
	// asynchronously.
	HandleRequest(pdu []byte, respond func(pdu []byte))

	// HandleNotification delivers an inbound Handle Value
	// Notification/Indication to every local subscriber for vh. It must
	// not return until every subscriber has been invoked: the bearer
	// sends the Handle Value Confirmation for an indication only after
	// this call returns.
	HandleNotification(vh uint16, value []byte, indication bool)
}

// NopHandler is embeddable to satisfy Handler's unused half.
type NopHandler struct{}

func (NopHandler) HandleRequest(pdu []byte, respond func(pdu []byte)) {}
func (NopHandler) HandleNotification(vh uint16, value []byte, indication bool) {}

// BearerConfig tunes the timing knobs a Bearer runs with. The zero value
// is not usable; use DefaultBearerConfig.
type BearerConfig struct {
	// RequestTimeout bounds how long SendRequest waits for a matching
	// response before returning ErrTimeout and disabling the bearer.
	RequestTimeout time.Duration

	// IndicationTimeout bounds how long SendIndication waits for the
	// peer's confirmation.
	IndicationTimeout time.Duration
}

// DefaultBearerConfig matches the Core Spec's ATT transaction timeout.
// [Vol 3, Part F, 3.3.3]
var DefaultBearerConfig = BearerConfig{
	RequestTimeout:    ble.DefaultRequestTimeout * time.Millisecond,
	IndicationTimeout: ble.DefaultRequestTimeout * time.Millisecond,
}

type reqTicket struct {
	ctx    context.Context
	pdu    []byte
	result chan reqResult
}

type reqResult struct {
	pdu []byte
	err error
}

type indTicket struct {
	pdu    []byte
	result chan error
}

// Bearer is the single-outstanding-request, independently-streamed
// transport state machine that runs over one ble.Conn. It is the shared
// infrastructure underneath both the GATT client (which mostly sends
// requests) and the GATT server (which mostly sends notifications and
// indications and answers requests) — a Bearer itself is symmetric and
// doesn't know which role it's playing; that's entirely a function of
// which Handler is installed and who calls SendRequest. [C3]
type Bearer struct {
	conn ble.Conn
	log  ble.Logger
	cfg  BearerConfig

	handler Handler

	mtu int32 // effective ATT_MTU, accessed atomically

	submitReq chan *reqTicket
	submitInd chan *indTicket
	inbound   chan []byte
	readErr   chan error

	closeOnce    sync.Once
	closeCh      chan struct{}
	disconnected chan struct{}

	indMu sync.Mutex // held by SendIndication: one indication outstanding at a time
}

// NewBearer starts a Bearer running over conn. h must not be nil; use
// NopHandler for the half a caller doesn't need.
func NewBearer(conn ble.Conn, h Handler, log ble.Logger, cfg BearerConfig) *Bearer {
	b := &Bearer{
		conn:         conn,
		log:          log,
		cfg:          cfg,
		handler:      h,
		mtu:          int32(ble.DefaultMTU),
		submitReq:    make(chan *reqTicket),
		submitInd:    make(chan *indTicket),
		inbound:      make(chan []byte, 4),
		readErr:      make(chan error, 1),
		closeCh:      make(chan struct{}),
		disconnected: make(chan struct{}),
	}
	go b.readLoop()
	go b.run()
	return b
}

// MTU returns the bearer's current effective ATT_MTU.
func (b *Bearer) MTU() int { return int(atomic.LoadInt32(&b.mtu)) }

// SetMTU records the ATT_MTU negotiated by an Exchange MTU exchange. It
// is the caller's job (the GATT client, or the server's Exchange MTU
// handler) to compute min(local, remote) and clamp to [DefaultMTU,MaxMTU].
func (b *Bearer) SetMTU(mtu int) {
	atomic.StoreInt32(&b.mtu, int32(mtu))
}

// Disconnected returns a channel closed once the bearer becomes
// permanently unusable: the underlying Conn disconnected, a malformed
// PDU arrived, or an inbound PDU violated protocol ordering.
func (b *Bearer) Disconnected() <-chan struct{} { return b.disconnected }

// Close tears the bearer down, failing every pending request/indication
// with ErrDisconnected.
func (b *Bearer) Close() error {
	b.closeOnce.Do(func() { close(b.closeCh) })
	return b.conn.Close()
}

// SendRequest submits pdu as the bearer's next outstanding request and
// blocks until a matching response arrives, the request times out, ctx is
// cancelled, or the bearer disconnects. Per bearer invariant, only one
// request is ever in flight; concurrent callers queue in FIFO submission
// order and are dispatched as earlier requests complete.
//
// Cancelling ctx resolves the caller with ErrCancelled immediately; it
// does not tear down the bearer, and a ticket that had already been
// written to the wire is still tracked internally so the single
// outstanding request invariant holds when the peer's response eventually
// arrives — it is simply discarded.
func (b *Bearer) SendRequest(ctx context.Context, pdu []byte) ([]byte, error) {
	t := &reqTicket{ctx: ctx, pdu: pdu, result: make(chan reqResult, 1)}
	select {
	case b.submitReq <- t:
	case <-b.disconnected:
		return nil, ble.ErrDisconnected
	case <-ctx.Done():
		return nil, ble.ErrCancelled
	}
	select {
	case res := <-t.result:
		return res.pdu, res.err
	case <-ctx.Done():
		return nil, ble.ErrCancelled
	}
}

// SendCommand writes pdu, which carries no response, and returns once it
// has been handed to the Conn.
func (b *Bearer) SendCommand(pdu []byte) error {
	t := &reqTicket{ctx: context.Background(), pdu: pdu, result: make(chan reqResult, 1)}
	select {
	case b.submitReq <- t:
	case <-b.disconnected:
		return ble.ErrDisconnected
	}
	res := <-t.result
	return res.err
}

// SendNotification writes a Handle Value Notification and returns
// immediately; notifications are not acknowledged.
func (b *Bearer) SendNotification(handle uint16, value []byte) error {
	return b.SendCommand(NewHandleValueNotification(handle, value))
}

// SendIndication writes a Handle Value Indication and blocks until the
// peer's confirmation arrives or the indication times out. Concurrent
// callers wait their turn, so only one indication is outstanding.
func (b *Bearer) SendIndication(handle uint16, value []byte) error {
	b.indMu.Lock()
	defer b.indMu.Unlock()
	t := &indTicket{pdu: NewHandleValueIndication(handle, value), result: make(chan error, 1)}
	select {
	case b.submitInd <- t:
	case <-b.disconnected:
		return ble.ErrDisconnected
	}
	return <-t.result
}

// readLoop owns the only read of b.conn and feeds run() one PDU at a
// time, preserving wire arrival order.
func (b *Bearer) readLoop() {
	buf := make([]byte, ble.MaxMTU)
	for {
		n, err := b.conn.Read(buf)
		if err != nil {
			select {
			case b.readErr <- err:
			case <-b.closeCh:
			}
			return
		}
		pdu := make([]byte, n)
		copy(pdu, buf[:n])
		select {
		case b.inbound <- pdu:
		case <-b.closeCh:
			return
		}
	}
}

// run is the bearer's single reactor goroutine. All mutable bearer state
// (mtu, the outstanding request, the outstanding indication, the queue of
// requests still waiting their turn) is owned exclusively by this
// goroutine, so none of it needs a lock.
func (b *Bearer) run() {
	defer close(b.disconnected)

	var pendingReq *reqTicket
	var pendingReqOp byte
	var reqTimer *time.Timer
	var reqTimeout <-chan time.Time

	// queue holds requests that arrived while pendingReq was already set.
	// They are dispatched FIFO as each earlier request completes. [I-4.2]
	var queue []*reqTicket

	var pendingInd *indTicket
	var indTimer *time.Timer
	var indTimeout <-chan time.Time

	failAll := func(err error) {
		if pendingReq != nil {
			pendingReq.result <- reqResult{nil, err}
			pendingReq = nil
		}
		for _, t := range queue {
			t.result <- reqResult{nil, err}
		}
		queue = nil
		if pendingInd != nil {
			pendingInd.result <- err
			pendingInd = nil
		}
	}

	// dispatch writes t's pdu and installs it as pendingReq, unless t was
	// already cancelled by its caller, in which case it is resolved with
	// ErrCancelled without ever touching the wire. fatal reports a write
	// failure that the caller must treat as a bearer disconnect.
	dispatch := func(t *reqTicket) (dispatched, fatal bool) {
		select {
		case <-t.ctx.Done():
			t.result <- reqResult{nil, ble.ErrCancelled}
			return false, false
		default:
		}
		if _, err := b.conn.Write(t.pdu); err != nil {
			t.result <- reqResult{nil, ble.ErrDisconnected}
			return false, true
		}
		pendingReq = t
		pendingReqOp = t.pdu[0]
		reqTimer = time.NewTimer(b.cfg.RequestTimeout)
		reqTimeout = reqTimer.C
		return true, false
	}

	// advanceQueue dispatches the next queued ticket once pendingReq has
	// just cleared, skipping over any that were cancelled while waiting.
	// It returns false if a write failure means run() must disconnect.
	advanceQueue := func() bool {
		for len(queue) > 0 {
			t := queue[0]
			queue = queue[1:]
			dispatched, fatal := dispatch(t)
			if fatal {
				failAll(ble.ErrDisconnected)
				return false
			}
			if dispatched {
				return true
			}
		}
		return true
	}

	for {
		select {
		case <-b.closeCh:
			failAll(ble.ErrDisconnected)
			return

		case err := <-b.readErr:
			failAll(ble.ErrDisconnected)
			b.log.Warnf("att: bearer read failed: %v", err)
			return

		case t := <-b.submitReq:
			op := t.pdu[0]
			if isCommand(op) || !isRequest(op) {
				if _, err := b.conn.Write(t.pdu); err != nil {
					t.result <- reqResult{nil, ble.ErrDisconnected}
					failAll(ble.ErrDisconnected)
					return
				}
				t.result <- reqResult{}
				continue
			}
			if pendingReq != nil {
				queue = append(queue, t)
				continue
			}
			if dispatched, fatal := dispatch(t); fatal {
				failAll(ble.ErrDisconnected)
				return
			} else if !dispatched {
				// Cancelled before it ever reached the wire; nothing
				// queued behind it yet since pendingReq was nil.
				continue
			}

		case t := <-b.submitInd:
			if pendingInd != nil {
				t.result <- ble.ErrDisconnected
				continue
			}
			if _, err := b.conn.Write(t.pdu); err != nil {
				t.result <- ble.ErrDisconnected
				failAll(ble.ErrDisconnected)
				return
			}
			pendingInd = t
			indTimer = time.NewTimer(b.cfg.IndicationTimeout)
			indTimeout = indTimer.C

		case <-reqTimeout:
			pendingReq.result <- reqResult{nil, ble.ErrTimeout}
			pendingReq = nil
			b.log.Warnf("att: request 0x%02X timed out", pendingReqOp)
			failAll(ble.ErrDisconnected)
			return

		case <-indTimeout:
			pendingInd.result <- ble.ErrTimeout
			pendingInd = nil
			b.log.Warnf("att: indication confirmation timed out")
			failAll(ble.ErrDisconnected)
			return

		case pdu := <-b.inbound:
			if len(pdu) == 0 {
				continue
			}
			if err := validate(pdu); err != nil {
				b.log.Warnf("att: %v", err)
				failAll(err)
				return
			}
			op := pdu[0]
			switch {
			case op == HandleValueConfirmationCode:
				if pendingInd == nil {
					continue // stray confirmation; ignore
				}
				if indTimer != nil {
					indTimer.Stop()
				}
				pendingInd.result <- nil
				pendingInd = nil

			case op == HandleValueNotificationCode || op == HandleValueIndicationCode:
				vh := handle(pdu)
				value := append([]byte(nil), pdu[3:]...)
				indication := op == HandleValueIndicationCode
				go func() {
					b.handler.HandleNotification(vh, value, indication)
					if indication {
						_, _ = b.conn.Write(NewHandleValueConfirmation())
					}
				}()

			case op == ErrorResponseCode:
				if pendingReq == nil {
					continue
				}
				if reqTimer != nil {
					reqTimer.Stop()
				}
				er := ErrorResponse(pdu)
				pendingReq.result <- reqResult{nil, &ble.ProtocolError{
					Handle: er.AttributeInError(),
					Code:   ble.ATTError(er.ErrorCode()),
				}}
				pendingReq = nil
				if !advanceQueue() {
					return
				}

			case isRequest(op) || op == WriteCommandCode || op == SignedWriteCommandCode:
				// A request or command the peer sent to us for local
				// dispatch: server role.
				go b.handler.HandleRequest(pdu, func(rsp []byte) {
					if rsp == nil {
						return
					}
					_, _ = b.conn.Write(rsp)
				})

			default:
				if pendingReq == nil {
					continue
				}
				if rspOfReq[pendingReqOp] != op {
					if reqTimer != nil {
						reqTimer.Stop()
					}
					pendingReq.result <- reqResult{nil, &ble.InvalidResponse{
						Expected: rspOfReq[pendingReqOp],
						Got:      op,
					}}
					pendingReq = nil
					b.log.Warnf("att: invalid response: expected opcode family 0x%02X, got 0x%02X", rspOfReq[pendingReqOp], op)
					failAll(ble.ErrDisconnected)
					return
				}
				if reqTimer != nil {
					reqTimer.Stop()
				}
				pendingReq.result <- reqResult{pdu, nil}
				pendingReq = nil
				if !advanceQueue() {
					return
				}
			}
		}
	}
}
