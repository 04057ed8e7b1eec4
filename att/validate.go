package att

import (
	"fmt"

	"github.com/knx-ble/attgatt/ble"
)

// pduMinLen gives the minimum wire length for every opcode this module
// knows how to decode: the opcode byte plus whatever fixed-size fields
// precede the variable-length tail (if any). A PDU shorter than this for
// its declared opcode cannot be decoded safely.
var pduMinLen = map[byte]int{
	ErrorResponseCode: 5,

	ExchangeMTURequestCode:  3,
	ExchangeMTUResponseCode: 3,

	FindInformationRequestCode:  5,
	FindInformationResponseCode: 2,

	FindByTypeValueRequestCode:  7,
	FindByTypeValueResponseCode: 1,

	ReadByTypeRequestCode:  7, // start+end+2-byte type at minimum
	ReadByTypeResponseCode: 2,

	ReadRequestCode:  3,
	ReadResponseCode: 1,

	ReadBlobRequestCode:  5,
	ReadBlobResponseCode: 1,

	ReadMultipleRequestCode:  5, // at least two handles
	ReadMultipleResponseCode: 1,

	ReadByGroupTypeRequestCode:  7,
	ReadByGroupTypeResponseCode: 2,

	WriteRequestCode:  3,
	WriteResponseCode: 1,
	WriteCommandCode:  3,

	PrepareWriteRequestCode:  5,
	PrepareWriteResponseCode: 5,

	ExecuteWriteRequestCode:  2,
	ExecuteWriteResponseCode: 1,

	HandleValueNotificationCode: 3,
	HandleValueIndicationCode:   3,
	HandleValueConfirmationCode: 1,

	SignedWriteCommandCode: 15, // handle+empty value+12-byte signature
}

// handleCheckedOps disallows attribute handle 0x0000 — the handle field
// occupies pdu[1:3] for every opcode in this set. [Vol 3, Part F, 3.2.2]
var handleCheckedOps = map[byte]bool{
	ReadRequestCode:             true,
	ReadBlobRequestCode:         true,
	ReadByTypeRequestCode:       true,
	ReadByGroupTypeRequestCode:  true,
	WriteRequestCode:            true,
	WriteCommandCode:            true,
	SignedWriteCommandCode:      true,
	PrepareWriteRequestCode:     true,
	HandleValueNotificationCode: true,
	HandleValueIndicationCode:   true,
}

// validate checks an inbound PDU against the fixed layout its opcode
// declares, surfacing the three decode-time failures the Core Spec leaves
// to the implementation: a PDU shorter than its opcode's minimum, a
// length-prefixed list whose entries don't divide the remaining bytes
// evenly, and a zero attribute handle where one is disallowed. An unknown
// opcode is left to the bearer's own request/response matching to reject.
func validate(pdu []byte) error {
	if len(pdu) == 0 {
		return &ble.MalformedPdu{Reason: "empty pdu"}
	}
	op := pdu[0]
	min, known := pduMinLen[op]
	if !known {
		return nil
	}
	if len(pdu) < min {
		return &ble.MalformedPdu{Reason: fmt.Sprintf("opcode 0x%02X: length %d below minimum %d", op, len(pdu), min)}
	}
	if handleCheckedOps[op] && handle(pdu) == 0 {
		return &ble.MalformedPdu{Reason: fmt.Sprintf("opcode 0x%02X: attribute handle 0x0000 disallowed", op)}
	}

	switch op {
	case ReadMultipleRequestCode:
		if (len(pdu)-1)%2 != 0 {
			return &ble.MalformedPdu{Reason: "read multiple request: handle list does not divide evenly"}
		}

	case ReadByTypeResponseCode, ReadByGroupTypeResponseCode:
		entryLen := int(pdu[1])
		if entryLen == 0 || (len(pdu)-2)%entryLen != 0 {
			return &ble.MalformedPdu{Reason: fmt.Sprintf("opcode 0x%02X: entry list of length %d does not divide evenly", op, entryLen)}
		}

	case FindInformationResponseCode:
		entryLen := 4
		if pdu[1] == FindInformationResponseFormatUUID128 {
			entryLen = 18
		}
		if (len(pdu)-2)%entryLen != 0 {
			return &ble.MalformedPdu{Reason: "find information response: entry list does not divide evenly"}
		}
	}
	return nil
}
