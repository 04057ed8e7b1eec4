package att

import "encoding/binary"

// Every PDU type below is a thin, opaque []byte view with Get*/Set*
// accessors over the wire layout, following the Core Spec section cited
// in each doc comment. Construction helpers (NewXxx) allocate a buffer of
// the right fixed size and stamp the opcode; variable-length PDUs are
// assembled by the caller, who knows the final length up front.

// ErrorResponse implements Error Response (0x01). [Vol 3, Part F, 3.4.1.1]
type ErrorResponse []byte

func NewErrorResponse(b []byte) ErrorResponse { return ErrorResponse(b) }

func (r ErrorResponse) AttributeOpcode() uint8       { return r[0] }
func (r ErrorResponse) RequestOpcodeInError() uint8  { return r[1] }
func (r ErrorResponse) AttributeInError() uint16     { return binary.LittleEndian.Uint16(r[2:]) }
func (r ErrorResponse) ErrorCode() uint8             { return r[4] }
func (r ErrorResponse) SetAttributeOpcode()          { r[0] = ErrorResponseCode }
func (r ErrorResponse) SetRequestOpcodeInError(v uint8)  { r[1] = v }
func (r ErrorResponse) SetAttributeInError(v uint16)     { binary.LittleEndian.PutUint16(r[2:], v) }
func (r ErrorResponse) SetErrorCode(v uint8)             { r[4] = v }

// NewErrorResponseBuf builds a 5-byte Error Response in one call.
func NewErrorResponseBuf(reqOp uint8, handle uint16, code uint8) ErrorResponse {
	r := ErrorResponse(make([]byte, 5))
	r.SetAttributeOpcode()
	r.SetRequestOpcodeInError(reqOp)
	r.SetAttributeInError(handle)
	r.SetErrorCode(code)
	return r
}

// ExchangeMTURequest implements Exchange MTU Request (0x02). [3.4.2.1]
type ExchangeMTURequest []byte

func NewExchangeMTURequest(mtu uint16) ExchangeMTURequest {
	r := ExchangeMTURequest(make([]byte, 3))
	r[0] = ExchangeMTURequestCode
	r.SetClientRxMTU(mtu)
	return r
}
func (r ExchangeMTURequest) ClientRxMTU() uint16        { return binary.LittleEndian.Uint16(r[1:]) }
func (r ExchangeMTURequest) SetClientRxMTU(v uint16)    { binary.LittleEndian.PutUint16(r[1:], v) }

// ExchangeMTUResponse implements Exchange MTU Response (0x03). [3.4.2.2]
type ExchangeMTUResponse []byte

func NewExchangeMTUResponse(mtu uint16) ExchangeMTUResponse {
	r := ExchangeMTUResponse(make([]byte, 3))
	r[0] = ExchangeMTUResponseCode
	r.SetServerRxMTU(mtu)
	return r
}
func (r ExchangeMTUResponse) ServerRxMTU() uint16     { return binary.LittleEndian.Uint16(r[1:]) }
func (r ExchangeMTUResponse) SetServerRxMTU(v uint16) { binary.LittleEndian.PutUint16(r[1:], v) }

// FindInformationRequest implements Find Information Request (0x04). [3.4.3.1]
type FindInformationRequest []byte

func NewFindInformationRequest(start, end uint16) FindInformationRequest {
	r := FindInformationRequest(make([]byte, 5))
	r[0] = FindInformationRequestCode
	r.SetStartingHandle(start)
	r.SetEndingHandle(end)
	return r
}
func (r FindInformationRequest) StartingHandle() uint16     { return binary.LittleEndian.Uint16(r[1:]) }
func (r FindInformationRequest) EndingHandle() uint16       { return binary.LittleEndian.Uint16(r[3:]) }
func (r FindInformationRequest) SetStartingHandle(v uint16) { binary.LittleEndian.PutUint16(r[1:], v) }
func (r FindInformationRequest) SetEndingHandle(v uint16)   { binary.LittleEndian.PutUint16(r[3:], v) }

// Find Information Response formats. [3.4.3.2]
const (
	FindInformationResponseFormatUUID16 = 0x01
	FindInformationResponseFormatUUID128 = 0x02
)

// FindInformationResponse implements Find Information Response (0x05).
type FindInformationResponse []byte

func (r FindInformationResponse) Format() uint8  { return r[0] }
func (r FindInformationResponse) SetFormat(v uint8) { r[0] = v }

// FindByTypeValueRequest implements Find By Type Value Request (0x06). [3.4.3.3]
type FindByTypeValueRequest []byte

func (r FindByTypeValueRequest) StartingHandle() uint16 { return binary.LittleEndian.Uint16(r[1:]) }
func (r FindByTypeValueRequest) EndingHandle() uint16   { return binary.LittleEndian.Uint16(r[3:]) }
func (r FindByTypeValueRequest) AttributeType() uint16  { return binary.LittleEndian.Uint16(r[5:]) }
func (r FindByTypeValueRequest) AttributeValue() []byte { return r[7:] }

// FindByTypeValueResponse implements Find By Type Value Response (0x07).
// It is a flat list of 4-byte (found handle, group end handle) pairs.
type FindByTypeValueResponse []byte

// ReadByTypeRequest implements Read By Type Request (0x08). [3.4.4.1]
type ReadByTypeRequest []byte

// NewReadByTypeRequestBuf builds a Read By Type Request for the given
// attribute type UUID, which may be 2 or 16 bytes.
func NewReadByTypeRequestBuf(start, end uint16, typ []byte) ReadByTypeRequest {
	r := ReadByTypeRequest(make([]byte, 5+len(typ)))
	r[0] = ReadByTypeRequestCode
	binary.LittleEndian.PutUint16(r[1:], start)
	binary.LittleEndian.PutUint16(r[3:], end)
	copy(r[5:], typ)
	return r
}
func (r ReadByTypeRequest) StartingHandle() uint16 { return binary.LittleEndian.Uint16(r[1:]) }
func (r ReadByTypeRequest) EndingHandle() uint16   { return binary.LittleEndian.Uint16(r[3:]) }
func (r ReadByTypeRequest) AttributeType() []byte  { return r[5:] } // 2 or 16 bytes

// ReadByTypeResponse implements Read By Type Response (0x09). A list of
// equal-length (handle, value) entries, each entry's length set once.
type ReadByTypeResponse []byte

func (r ReadByTypeResponse) Length() uint8     { return r[1] }
func (r ReadByTypeResponse) SetLength(v uint8) { r[1] = v }

// ReadRequest implements Read Request (0x0A). [3.4.4.3]
type ReadRequest []byte

func NewReadRequest(handle uint16) ReadRequest {
	r := ReadRequest(make([]byte, 3))
	r[0] = ReadRequestCode
	r.SetAttributeHandle(handle)
	return r
}
func (r ReadRequest) AttributeHandle() uint16     { return binary.LittleEndian.Uint16(r[1:]) }
func (r ReadRequest) SetAttributeHandle(v uint16) { binary.LittleEndian.PutUint16(r[1:], v) }

// ReadResponse implements Read Response (0x0B).
type ReadResponse []byte

func (r ReadResponse) AttributeValue() []byte { return r[1:] }

// ReadBlobRequest implements Read Blob Request (0x0C). [3.4.4.5]
type ReadBlobRequest []byte

func NewReadBlobRequest(handle uint16, offset uint16) ReadBlobRequest {
	r := ReadBlobRequest(make([]byte, 5))
	r[0] = ReadBlobRequestCode
	r.SetAttributeHandle(handle)
	r.SetValueOffset(offset)
	return r
}
func (r ReadBlobRequest) AttributeHandle() uint16     { return binary.LittleEndian.Uint16(r[1:]) }
func (r ReadBlobRequest) ValueOffset() uint16         { return binary.LittleEndian.Uint16(r[3:]) }
func (r ReadBlobRequest) SetAttributeHandle(v uint16) { binary.LittleEndian.PutUint16(r[1:], v) }
func (r ReadBlobRequest) SetValueOffset(v uint16)     { binary.LittleEndian.PutUint16(r[3:], v) }

// ReadBlobResponse implements Read Blob Response (0x0D).
type ReadBlobResponse []byte

func (r ReadBlobResponse) PartAttributeValue() []byte { return r[1:] }

// ReadMultipleRequest implements Read Multiple Request (0x0E). [3.4.4.7]
// A flat list of 2-byte handles, at least two.
type ReadMultipleRequest []byte

func (r ReadMultipleRequest) Handles() []uint16 {
	n := (len(r) - 1) / 2
	hs := make([]uint16, n)
	for i := 0; i < n; i++ {
		hs[i] = binary.LittleEndian.Uint16(r[1+2*i:])
	}
	return hs
}

// ReadMultipleResponse implements Read Multiple Response (0x0F). Values
// are concatenated with no length prefixes, per their requested order.
type ReadMultipleResponse []byte

func (r ReadMultipleResponse) Values() []byte { return r[1:] }

// ReadByGroupTypeRequest implements Read By Group Type Request (0x10). [3.4.4.9]
type ReadByGroupTypeRequest []byte

// NewReadByGroupTypeRequestBuf builds a Read By Group Type Request for
// the given group type UUID, which may be 2 or 16 bytes.
func NewReadByGroupTypeRequestBuf(start, end uint16, typ []byte) ReadByGroupTypeRequest {
	r := ReadByGroupTypeRequest(make([]byte, 5+len(typ)))
	r[0] = ReadByGroupTypeRequestCode
	binary.LittleEndian.PutUint16(r[1:], start)
	binary.LittleEndian.PutUint16(r[3:], end)
	copy(r[5:], typ)
	return r
}
func (r ReadByGroupTypeRequest) StartingHandle() uint16 { return binary.LittleEndian.Uint16(r[1:]) }
func (r ReadByGroupTypeRequest) EndingHandle() uint16   { return binary.LittleEndian.Uint16(r[3:]) }
func (r ReadByGroupTypeRequest) AttributeGroupType() []byte { return r[5:] }

// ReadByGroupTypeResponse implements Read By Group Type Response (0x11).
// A list of equal-length (handle, end group handle, value) entries.
type ReadByGroupTypeResponse []byte

func (r ReadByGroupTypeResponse) Length() uint8     { return r[1] }
func (r ReadByGroupTypeResponse) SetLength(v uint8) { r[1] = v }

// WriteRequest implements Write Request (0x12) and, with opcode
// overridden to WriteCommandCode, Write Command (0x52). [3.4.5.1, 3.4.5.3]
type WriteRequest []byte

func NewWriteRequest(handle uint16, value []byte) WriteRequest {
	r := WriteRequest(make([]byte, 3+len(value)))
	r[0] = WriteRequestCode
	r.SetAttributeHandle(handle)
	copy(r[3:], value)
	return r
}
func NewWriteCommand(handle uint16, value []byte) WriteRequest {
	r := NewWriteRequest(handle, value)
	r[0] = WriteCommandCode
	return r
}
func (r WriteRequest) AttributeHandle() uint16     { return binary.LittleEndian.Uint16(r[1:]) }
func (r WriteRequest) AttributeValue() []byte      { return r[3:] }
func (r WriteRequest) SetAttributeHandle(v uint16) { binary.LittleEndian.PutUint16(r[1:], v) }

// WriteResponse implements Write Response (0x13). It carries no data
// beyond the opcode.
type WriteResponse []byte

func NewWriteResponse() WriteResponse {
	r := WriteResponse(make([]byte, 1))
	r[0] = WriteResponseCode
	return r
}

// PrepareWriteRequest implements Prepare Write Request (0x16). [3.4.6.1]
type PrepareWriteRequest []byte

func NewPrepareWriteRequest(handle, offset uint16, value []byte) PrepareWriteRequest {
	r := PrepareWriteRequest(make([]byte, 5+len(value)))
	r[0] = PrepareWriteRequestCode
	r.SetAttributeHandle(handle)
	r.SetValueOffset(offset)
	copy(r.PartAttributeValue(), value)
	return r
}
func (r PrepareWriteRequest) AttributeHandle() uint16     { return binary.LittleEndian.Uint16(r[1:]) }
func (r PrepareWriteRequest) ValueOffset() uint16         { return binary.LittleEndian.Uint16(r[3:]) }
func (r PrepareWriteRequest) PartAttributeValue() []byte  { return r[5:] }
func (r PrepareWriteRequest) SetAttributeHandle(v uint16) { binary.LittleEndian.PutUint16(r[1:], v) }
func (r PrepareWriteRequest) SetValueOffset(v uint16)     { binary.LittleEndian.PutUint16(r[3:], v) }

// PrepareWriteResponse implements Prepare Write Response (0x17): an echo
// of the request used by reliable writes to detect a queuing mismatch.
type PrepareWriteResponse []byte

func NewPrepareWriteResponse(handle, offset uint16, value []byte) PrepareWriteResponse {
	r := PrepareWriteResponse(make([]byte, 5+len(value)))
	r[0] = PrepareWriteResponseCode
	r.SetAttributeHandle(handle)
	r.SetValueOffset(offset)
	copy(r[5:], value)
	return r
}
func (r PrepareWriteResponse) AttributeHandle() uint16     { return binary.LittleEndian.Uint16(r[1:]) }
func (r PrepareWriteResponse) ValueOffset() uint16         { return binary.LittleEndian.Uint16(r[3:]) }
func (r PrepareWriteResponse) PartAttributeValue() []byte  { return r[5:] }
func (r PrepareWriteResponse) SetAttributeHandle(v uint16) { binary.LittleEndian.PutUint16(r[1:], v) }
func (r PrepareWriteResponse) SetValueOffset(v uint16)     { binary.LittleEndian.PutUint16(r[3:], v) }

// Execute Write Request flags. [3.4.6.3]
const (
	ExecuteWriteCancel = 0x00 // discard the prepare queue
	ExecuteWriteCommit = 0x01 // write the queued values
)

// ExecuteWriteRequest implements Execute Write Request (0x18).
type ExecuteWriteRequest []byte

func NewExecuteWriteRequest(flags uint8) ExecuteWriteRequest {
	r := ExecuteWriteRequest(make([]byte, 2))
	r[0] = ExecuteWriteRequestCode
	r.SetFlags(flags)
	return r
}
func (r ExecuteWriteRequest) Flags() uint8     { return r[1] }
func (r ExecuteWriteRequest) SetFlags(v uint8) { r[1] = v }

// ExecuteWriteResponse implements Execute Write Response (0x19). No data
// beyond the opcode.
type ExecuteWriteResponse []byte

func NewExecuteWriteResponse() ExecuteWriteResponse {
	r := ExecuteWriteResponse(make([]byte, 1))
	r[0] = ExecuteWriteResponseCode
	return r
}

// HandleValueNotification implements Handle Value Notification (0x1B). [3.4.7.1]
type HandleValueNotification []byte

func NewHandleValueNotification(handle uint16, value []byte) HandleValueNotification {
	r := HandleValueNotification(make([]byte, 3+len(value)))
	r[0] = HandleValueNotificationCode
	r.SetAttributeHandle(handle)
	copy(r[3:], value)
	return r
}
func (r HandleValueNotification) AttributeHandle() uint16     { return binary.LittleEndian.Uint16(r[1:]) }
func (r HandleValueNotification) AttributeValue() []byte      { return r[3:] }
func (r HandleValueNotification) SetAttributeHandle(v uint16) { binary.LittleEndian.PutUint16(r[1:], v) }

// HandleValueIndication implements Handle Value Indication (0x1D). [3.4.7.3]
type HandleValueIndication []byte

func NewHandleValueIndication(handle uint16, value []byte) HandleValueIndication {
	r := HandleValueIndication(make([]byte, 3+len(value)))
	r[0] = HandleValueIndicationCode
	r.SetAttributeHandle(handle)
	copy(r[3:], value)
	return r
}
func (r HandleValueIndication) AttributeHandle() uint16     { return binary.LittleEndian.Uint16(r[1:]) }
func (r HandleValueIndication) AttributeValue() []byte      { return r[3:] }
func (r HandleValueIndication) SetAttributeHandle(v uint16) { binary.LittleEndian.PutUint16(r[1:], v) }

// HandleValueConfirmation implements Handle Value Confirmation (0x1E). No
// data beyond the opcode.
type HandleValueConfirmation []byte

func NewHandleValueConfirmation() HandleValueConfirmation {
	r := HandleValueConfirmation(make([]byte, 1))
	r[0] = HandleValueConfirmationCode
	return r
}

// handle extracts the attribute handle at the fixed offset shared by
// every notification/indication PDU, without decoding the full type; used
// by the bearer to route an inbound value without knowing which of the
// two it is.
func handle(pdu []byte) uint16 { return binary.LittleEndian.Uint16(pdu[1:3]) }
