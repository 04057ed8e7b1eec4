// Package att implements the Attribute Protocol: the PDU codec, the
// single-bearer transport state machine, and the attribute database and
// server dispatch that sit on top of it. [Vol 3, Part F]
package att

// Attribute Protocol opcodes. Bit 6 of an opcode marks a command (no
// response) and bit 7 an authentication-signature variant; the low six
// bits are the method. This module only generates the plain forms.
const (
	ErrorResponseCode = 0x01

	ExchangeMTURequestCode  = 0x02
	ExchangeMTUResponseCode = 0x03

	FindInformationRequestCode  = 0x04
	FindInformationResponseCode = 0x05

	FindByTypeValueRequestCode  = 0x06
	FindByTypeValueResponseCode = 0x07

	ReadByTypeRequestCode  = 0x08
	ReadByTypeResponseCode = 0x09

	ReadRequestCode  = 0x0A
	ReadResponseCode = 0x0B

	ReadBlobRequestCode  = 0x0C
	ReadBlobResponseCode = 0x0D

	ReadMultipleRequestCode  = 0x0E
	ReadMultipleResponseCode = 0x0F

	ReadByGroupTypeRequestCode  = 0x10
	ReadByGroupTypeResponseCode = 0x11

	WriteRequestCode  = 0x12
	WriteResponseCode = 0x13

	WriteCommandCode = 0x52

	PrepareWriteRequestCode  = 0x16
	PrepareWriteResponseCode = 0x17

	ExecuteWriteRequestCode  = 0x18
	ExecuteWriteResponseCode = 0x19

	HandleValueNotificationCode = 0x1B
	HandleValueIndicationCode   = 0x1D
	HandleValueConfirmationCode = 0x1E

	SignedWriteCommandCode = 0xD2
)

// rspOfReq maps a request opcode to the response opcode that completes
// it; an inbound PDU with any other non-error opcode arriving while that
// request is outstanding violates the bearer's single-outstanding-request
// invariant. Commands and the notification/indication/confirmation family
// are not requests and are absent here.
var rspOfReq = map[byte]byte{
	ExchangeMTURequestCode:     ExchangeMTUResponseCode,
	FindInformationRequestCode: FindInformationResponseCode,
	FindByTypeValueRequestCode: FindByTypeValueResponseCode,
	ReadByTypeRequestCode:      ReadByTypeResponseCode,
	ReadRequestCode:            ReadResponseCode,
	ReadBlobRequestCode:        ReadBlobResponseCode,
	ReadMultipleRequestCode:    ReadMultipleResponseCode,
	ReadByGroupTypeRequestCode: ReadByGroupTypeResponseCode,
	WriteRequestCode:           WriteResponseCode,
	PrepareWriteRequestCode:    PrepareWriteResponseCode,
	ExecuteWriteRequestCode:    ExecuteWriteResponseCode,
}

// isCommand reports whether opcode op carries no response, per the
// Attribute Protocol's method-bit-6 "command flag". [Vol 3, Part F, 3.3.1]
func isCommand(op byte) bool {
	return op&0x40 != 0
}

// isRequest reports whether op is a key in rspOfReq.
func isRequest(op byte) bool {
	_, ok := rspOfReq[op]
	return ok
}
