package gatt

import (
	"context"

	"github.com/knx-ble/attgatt/ble"
)

type fakeAddr string

func (a fakeAddr) String() string { return string(a) }

// fakeConn is a minimal in-memory ble.Conn: Read/Write are backed by
// channels so a test can script both directions of a Client's bearer.
type fakeConn struct {
	ctx          context.Context
	rx           chan []byte
	tx           chan []byte
	done         chan struct{}
	rxMTU, txMTU int
}

func newFakeConn() *fakeConn {
	return &fakeConn{
		ctx:   context.Background(),
		rx:    make(chan []byte, 16),
		tx:    make(chan []byte, 16),
		done:  make(chan struct{}),
		rxMTU: ble.DefaultMTU,
		txMTU: ble.DefaultMTU,
	}
}

func (c *fakeConn) Read(p []byte) (int, error) {
	select {
	case b := <-c.rx:
		return copy(p, b), nil
	case <-c.done:
		return 0, errClosed
	}
}

func (c *fakeConn) Write(p []byte) (int, error) {
	b := append([]byte(nil), p...)
	select {
	case c.tx <- b:
		return len(p), nil
	case <-c.done:
		return 0, errClosed
	}
}

func (c *fakeConn) Close() error {
	select {
	case <-c.done:
	default:
		close(c.done)
	}
	return nil
}

func (c *fakeConn) Context() context.Context      { return c.ctx }
func (c *fakeConn) SetContext(ctx context.Context) { c.ctx = ctx }
func (c *fakeConn) LocalAddr() ble.Addr            { return fakeAddr("local") }
func (c *fakeConn) RemoteAddr() ble.Addr           { return fakeAddr("remote") }
func (c *fakeConn) SecurityLevel() ble.SecurityLevel {
	return ble.SecurityLevelNone
}
func (c *fakeConn) RxMTU() int                     { return c.rxMTU }
func (c *fakeConn) SetRxMTU(mtu int)               { c.rxMTU = mtu }
func (c *fakeConn) TxMTU() int                     { return c.txMTU }
func (c *fakeConn) SetTxMTU(mtu int)               { c.txMTU = mtu }
func (c *fakeConn) Disconnected() <-chan struct{}  { return c.done }

type closedError struct{}

func (closedError) Error() string { return "fakeConn: closed" }

var errClosed = closedError{}
