package att

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/knx-ble/attgatt/ble"
)

const testTimeout = 200 * time.Millisecond

func testBearerConfig() BearerConfig {
	return BearerConfig{RequestTimeout: testTimeout, IndicationTimeout: testTimeout}
}

type recordingHandler struct {
	mu            sync.Mutex
	notifications []uint16
	order         []string
}

func (h *recordingHandler) HandleRequest(pdu []byte, respond func(pdu []byte)) {
	switch pdu[0] {
	case ReadRequestCode:
		respond(ReadResponse(append([]byte{ReadResponseCode}, 0xAA)))
	case WriteRequestCode:
		respond(NewWriteResponse())
	}
}

func (h *recordingHandler) HandleNotification(vh uint16, value []byte, indication bool) {
	h.mu.Lock()
	h.notifications = append(h.notifications, vh)
	h.mu.Unlock()
	// Simulate work a subscriber callback might do before returning, so a
	// test can prove the confirmation is sent only after this returns.
	time.Sleep(10 * time.Millisecond)
	h.mu.Lock()
	h.order = append(h.order, "handled")
	h.mu.Unlock()
}

func recvWithTimeout(t *testing.T, ch chan []byte, d time.Duration) []byte {
	t.Helper()
	select {
	case b := <-ch:
		return b
	case <-time.After(d):
		t.Fatal("timed out waiting for bearer to write a PDU")
		return nil
	}
}

func TestSendRequestMatchesResponse(t *testing.T) {
	conn := newFakeConn()
	b := NewBearer(conn, &NopHandler{}, ble.NopLogger{}, testBearerConfig())
	defer b.Close()

	done := make(chan struct{})
	var rsp []byte
	var err error
	go func() {
		rsp, err = b.SendRequest(context.Background(), NewReadRequest(0x0010))
		close(done)
	}()

	sent := recvWithTimeout(t, conn.tx, time.Second)
	if sent[0] != ReadRequestCode {
		t.Fatalf("expected a Read Request on the wire, got opcode %#x", sent[0])
	}
	conn.rx <- []byte{ReadResponseCode, 0xAA}

	<-done
	if err != nil {
		t.Fatalf("SendRequest returned error: %v", err)
	}
	if len(rsp) != 2 || rsp[0] != ReadResponseCode {
		t.Fatalf("unexpected response: %x", rsp)
	}
}

func TestSendRequestTimesOutAndDisconnects(t *testing.T) {
	conn := newFakeConn()
	b := NewBearer(conn, &NopHandler{}, ble.NopLogger{}, testBearerConfig())
	defer b.Close()

	_, err := b.SendRequest(context.Background(), NewReadRequest(0x0010))
	if err != ble.ErrTimeout {
		t.Fatalf("got err=%v want ble.ErrTimeout", err)
	}
	select {
	case <-b.Disconnected():
	case <-time.After(time.Second):
		t.Fatal("bearer should disconnect after a request timeout")
	}
}

func TestSendRequestReturnsProtocolErrorOnErrorResponse(t *testing.T) {
	conn := newFakeConn()
	b := NewBearer(conn, &NopHandler{}, ble.NopLogger{}, testBearerConfig())
	defer b.Close()

	done := make(chan struct{})
	var err error
	go func() {
		_, err = b.SendRequest(context.Background(), NewReadRequest(0x0010))
		close(done)
	}()
	recvWithTimeout(t, conn.tx, time.Second)
	conn.rx <- NewErrorResponseBuf(ReadRequestCode, 0x0010, byte(ble.ErrReadNotPerm))
	<-done

	pe, ok := err.(*ble.ProtocolError)
	if !ok {
		t.Fatalf("got err=%v (%T), want *ble.ProtocolError", err, err)
	}
	if pe.Code != ble.ErrReadNotPerm || pe.Handle != 0x0010 {
		t.Errorf("got %+v", pe)
	}
}

func TestSendNotificationDoesNotBlockOnResponse(t *testing.T) {
	conn := newFakeConn()
	b := NewBearer(conn, &NopHandler{}, ble.NopLogger{}, testBearerConfig())
	defer b.Close()

	if err := b.SendNotification(0x0025, []byte{0x01}); err != nil {
		t.Fatalf("SendNotification: %v", err)
	}
	sent := recvWithTimeout(t, conn.tx, time.Second)
	if sent[0] != HandleValueNotificationCode {
		t.Fatalf("got opcode %#x want HandleValueNotificationCode", sent[0])
	}
}

func TestSendIndicationWaitsForConfirmation(t *testing.T) {
	conn := newFakeConn()
	b := NewBearer(conn, &NopHandler{}, ble.NopLogger{}, testBearerConfig())
	defer b.Close()

	done := make(chan struct{})
	var err error
	go func() {
		err = b.SendIndication(0x0025, []byte{0x02})
		close(done)
	}()
	sent := recvWithTimeout(t, conn.tx, time.Second)
	if sent[0] != HandleValueIndicationCode {
		t.Fatalf("got opcode %#x want HandleValueIndicationCode", sent[0])
	}
	select {
	case <-done:
		t.Fatal("SendIndication returned before the peer confirmed")
	case <-time.After(20 * time.Millisecond):
	}
	conn.rx <- NewHandleValueConfirmation()
	<-done
	if err != nil {
		t.Fatalf("SendIndication: %v", err)
	}
}

func TestInboundIndicationConfirmsOnlyAfterHandlerReturns(t *testing.T) {
	conn := newFakeConn()
	h := &recordingHandler{}
	b := NewBearer(conn, h, ble.NopLogger{}, testBearerConfig())
	defer b.Close()

	conn.rx <- NewHandleValueIndication(0x0030, []byte{0x09})

	select {
	case sent := <-conn.tx:
		if sent[0] != HandleValueConfirmationCode {
			t.Fatalf("got opcode %#x want confirmation", sent[0])
		}
	case <-time.After(time.Second):
		t.Fatal("expected a confirmation to be sent eventually")
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	if len(h.notifications) != 1 || h.notifications[0] != 0x0030 {
		t.Fatalf("handler was not invoked with the right handle: %v", h.notifications)
	}
	if len(h.order) != 1 {
		t.Fatal("confirmation was sent before the handler returned")
	}
}

func TestInboundRequestDispatchesToHandler(t *testing.T) {
	conn := newFakeConn()
	h := &recordingHandler{}
	b := NewBearer(conn, h, ble.NopLogger{}, testBearerConfig())
	defer b.Close()

	conn.rx <- NewReadRequest(0x0010)
	sent := recvWithTimeout(t, conn.tx, time.Second)
	if sent[0] != ReadResponseCode {
		t.Fatalf("got opcode %#x want ReadResponseCode", sent[0])
	}
}

func TestConcurrentRequestsQueueFIFO(t *testing.T) {
	conn := newFakeConn()
	b := NewBearer(conn, &NopHandler{}, ble.NopLogger{}, testBearerConfig())
	defer b.Close()

	type result struct {
		handle uint16
		err    error
	}
	results := make(chan result, 2)
	go func() {
		_, err := b.SendRequest(context.Background(), NewReadRequest(0x0001))
		results <- result{0x0001, err}
	}()
	// Give the first request time to become pendingReq before the second
	// is submitted, so it's forced to queue rather than racing it.
	time.Sleep(20 * time.Millisecond)
	go func() {
		rsp, err := b.SendRequest(context.Background(), NewReadRequest(0x0002))
		_ = rsp
		results <- result{0x0002, err}
	}()

	first := recvWithTimeout(t, conn.tx, time.Second)
	if ReadRequest(first).AttributeHandle() != 0x0001 {
		t.Fatalf("expected handle 0x0001 sent first, got %#x", ReadRequest(first).AttributeHandle())
	}
	select {
	case <-conn.tx:
		t.Fatal("second request must not be written to the wire before the first resolves")
	case <-time.After(20 * time.Millisecond):
	}
	conn.rx <- []byte{ReadResponseCode, 0xAA}

	second := recvWithTimeout(t, conn.tx, time.Second)
	if ReadRequest(second).AttributeHandle() != 0x0002 {
		t.Fatalf("expected handle 0x0002 sent second, got %#x", ReadRequest(second).AttributeHandle())
	}
	conn.rx <- []byte{ReadResponseCode, 0xBB}

	seen := map[uint16]error{}
	for i := 0; i < 2; i++ {
		r := <-results
		seen[r.handle] = r.err
	}
	if seen[0x0001] != nil || seen[0x0002] != nil {
		t.Fatalf("queued requests should both succeed: %v", seen)
	}
}

func TestInvalidResponseDisconnectsBearer(t *testing.T) {
	conn := newFakeConn()
	b := NewBearer(conn, &NopHandler{}, ble.NopLogger{}, testBearerConfig())
	defer b.Close()

	done := make(chan struct{})
	var err error
	go func() {
		_, err = b.SendRequest(context.Background(), NewReadRequest(0x0010))
		close(done)
	}()
	recvWithTimeout(t, conn.tx, time.Second)
	// A Write Response is not in ReadRequest's response family: protocol
	// violation.
	conn.rx <- NewWriteResponse()
	<-done

	if _, ok := err.(*ble.InvalidResponse); !ok {
		t.Fatalf("got err=%v (%T), want *ble.InvalidResponse", err, err)
	}
	select {
	case <-b.Disconnected():
	case <-time.After(time.Second):
		t.Fatal("bearer should disconnect after an invalid response")
	}
}

func TestMalformedPduDisconnectsBearer(t *testing.T) {
	conn := newFakeConn()
	h := &recordingHandler{}
	b := NewBearer(conn, h, ble.NopLogger{}, testBearerConfig())
	defer b.Close()

	// A notification PDU too short to carry a handle: must not panic
	// indexing pdu[1:3], and must disconnect rather than hang.
	conn.rx <- []byte{HandleValueNotificationCode, 0x01}

	select {
	case <-b.Disconnected():
	case <-time.After(time.Second):
		t.Fatal("bearer should disconnect after a malformed pdu")
	}
}

func TestSendRequestCancelledByContext(t *testing.T) {
	conn := newFakeConn()
	b := NewBearer(conn, &NopHandler{}, ble.NopLogger{}, testBearerConfig())
	defer b.Close()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	var err error
	go func() {
		_, err = b.SendRequest(ctx, NewReadRequest(0x0010))
		close(done)
	}()
	recvWithTimeout(t, conn.tx, time.Second)
	cancel()
	<-done
	if err != ble.ErrCancelled {
		t.Fatalf("got err=%v want ble.ErrCancelled", err)
	}

	// The bearer must still be usable: cancellation is not terminal.
	select {
	case <-b.Disconnected():
		t.Fatal("cancelling a single request must not disconnect the bearer")
	default:
	}
	// The peer's (late) response to the cancelled request is simply
	// discarded; the bearer remains free for a fresh request, which the
	// peer then answers.
	conn.rx <- []byte{ReadResponseCode, 0xAA}

	done2 := make(chan struct{})
	var rsp []byte
	go func() {
		rsp, err = b.SendRequest(context.Background(), NewReadRequest(0x0011))
		close(done2)
	}()
	recvWithTimeout(t, conn.tx, time.Second)
	conn.rx <- []byte{ReadResponseCode, 0xBB}
	<-done2
	if err != nil {
		t.Fatalf("SendRequest after cancellation: %v", err)
	}
	_ = rsp
}
