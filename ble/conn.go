package ble

import (
	"context"
	"io"
)

// SecurityLevel is the link security level a Conn was established with.
// Pairing/bonding itself is outside this module; a Conn simply reports
// the level its owner already negotiated so the attribute database can
// enforce its permission checks.
type SecurityLevel int

const (
	SecurityLevelNone SecurityLevel = iota
	SecurityLevelLow
	SecurityLevelMedium
	SecurityLevelHigh
	SecurityLevelFIPS
)

// Addr is a link-layer peer address, typically a 6-byte Bluetooth device
// address. It is opaque to this module beyond String/Equal.
type Addr interface {
	String() string
}

// Conn is the bidirectional, sequenced-packet ATT transport a Bearer runs
// over: either L2CAP CID 0x0004 on LE, an L2CAP dynamic PSM on BR/EDR, or
// an equivalent byte-stream framed one-ATT-PDU-per-Write/Read. Adapter
// bring-up, connection establishment, and pairing are owned by the caller
// and are not part of this interface.
type Conn interface {
	io.ReadWriteCloser

	// Context returns the context associated with this Conn's lifetime.
	Context() context.Context

	// SetContext replaces the context associated with this Conn.
	SetContext(ctx context.Context)

	// LocalAddr returns the local device's address.
	LocalAddr() Addr

	// RemoteAddr returns the remote device's address.
	RemoteAddr() Addr

	// SecurityLevel reports the security level already established on
	// this link, used by the attribute database's permission checks.
	SecurityLevel() SecurityLevel

	// RxMTU returns the ATT_MTU the local device is capable of accepting.
	RxMTU() int

	// SetRxMTU sets the ATT_MTU the local device is capable of accepting.
	SetRxMTU(mtu int)

	// TxMTU returns the ATT_MTU the remote device is capable of accepting.
	TxMTU() int

	// SetTxMTU sets the ATT_MTU the remote device is capable of accepting.
	SetTxMTU(mtu int)

	// Disconnected returns a channel that is closed when the connection
	// disconnects.
	Disconnected() <-chan struct{}
}
