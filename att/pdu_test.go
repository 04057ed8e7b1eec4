package att

import (
	"bytes"
	"testing"
)

func TestErrorResponseRoundTrip(t *testing.T) {
	r := NewErrorResponseBuf(ReadRequestCode, 0x0042, 0x0A)
	if r.AttributeOpcode() != ErrorResponseCode {
		t.Errorf("opcode: got %#x", r.AttributeOpcode())
	}
	if r.RequestOpcodeInError() != ReadRequestCode {
		t.Errorf("request opcode in error: got %#x", r.RequestOpcodeInError())
	}
	if r.AttributeInError() != 0x0042 {
		t.Errorf("attribute in error: got %#x", r.AttributeInError())
	}
	if r.ErrorCode() != 0x0A {
		t.Errorf("error code: got %#x", r.ErrorCode())
	}
}

func TestExchangeMTURoundTrip(t *testing.T) {
	req := NewExchangeMTURequest(185)
	if req.ClientRxMTU() != 185 {
		t.Errorf("ClientRxMTU: got %d want 185", req.ClientRxMTU())
	}
	rsp := NewExchangeMTUResponse(247)
	if rsp.ServerRxMTU() != 247 {
		t.Errorf("ServerRxMTU: got %d want 247", rsp.ServerRxMTU())
	}
}

func TestReadRequestRoundTrip(t *testing.T) {
	r := NewReadRequest(0x0010)
	if r[0] != ReadRequestCode {
		t.Errorf("opcode: got %#x", r[0])
	}
	if r.AttributeHandle() != 0x0010 {
		t.Errorf("handle: got %#x want 0x10", r.AttributeHandle())
	}
}

func TestReadBlobRequestRoundTrip(t *testing.T) {
	r := NewReadBlobRequest(0x0021, 23)
	if r.AttributeHandle() != 0x0021 || r.ValueOffset() != 23 {
		t.Errorf("got handle=%#x offset=%d", r.AttributeHandle(), r.ValueOffset())
	}
}

func TestReadMultipleRequestHandles(t *testing.T) {
	r := ReadMultipleRequest([]byte{ReadMultipleRequestCode, 0x01, 0x00, 0x02, 0x00, 0x03, 0x00})
	got := r.Handles()
	want := []uint16{1, 2, 3}
	if len(got) != len(want) {
		t.Fatalf("handle count: got %d want %d", len(got), len(want))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("handle[%d]: got %d want %d", i, got[i], want[i])
		}
	}
}

func TestWriteRequestVsCommand(t *testing.T) {
	value := []byte{0xDE, 0xAD}
	req := NewWriteRequest(0x0030, value)
	if req[0] != WriteRequestCode {
		t.Errorf("write request opcode: got %#x", req[0])
	}
	if !bytes.Equal(req.AttributeValue(), value) {
		t.Errorf("write request value: got %x want %x", req.AttributeValue(), value)
	}
	cmd := NewWriteCommand(0x0030, value)
	if cmd[0] != WriteCommandCode {
		t.Errorf("write command opcode: got %#x", cmd[0])
	}
	if !bytes.Equal(cmd.AttributeValue(), value) {
		t.Errorf("write command value: got %x want %x", cmd.AttributeValue(), value)
	}
}

func TestPrepareWriteRoundTrip(t *testing.T) {
	value := []byte{1, 2, 3, 4}
	req := NewPrepareWriteRequest(0x0040, 2, value)
	if req.AttributeHandle() != 0x0040 || req.ValueOffset() != 2 {
		t.Errorf("got handle=%#x offset=%d", req.AttributeHandle(), req.ValueOffset())
	}
	if !bytes.Equal(req.PartAttributeValue(), value) {
		t.Errorf("part value: got %x want %x", req.PartAttributeValue(), value)
	}

	rsp := NewPrepareWriteResponse(0x0040, 2, value)
	if rsp.AttributeHandle() != req.AttributeHandle() || rsp.ValueOffset() != req.ValueOffset() {
		t.Error("prepare write response should echo the request's handle/offset")
	}
	if !bytes.Equal(rsp.PartAttributeValue(), req.PartAttributeValue()) {
		t.Error("prepare write response should echo the request's value")
	}
}

func TestExecuteWriteRequestFlags(t *testing.T) {
	commit := NewExecuteWriteRequest(ExecuteWriteCommit)
	if commit.Flags() != ExecuteWriteCommit {
		t.Errorf("commit flags: got %#x want %#x", commit.Flags(), ExecuteWriteCommit)
	}
	cancel := NewExecuteWriteRequest(ExecuteWriteCancel)
	if cancel.Flags() != ExecuteWriteCancel {
		t.Errorf("cancel flags: got %#x want %#x", cancel.Flags(), ExecuteWriteCancel)
	}
}

func TestHandleValueNotificationAndIndication(t *testing.T) {
	value := []byte{0x01, 0x02, 0x03}
	n := NewHandleValueNotification(0x0025, value)
	if n[0] != HandleValueNotificationCode {
		t.Errorf("notification opcode: got %#x", n[0])
	}
	if n.AttributeHandle() != 0x0025 || !bytes.Equal(n.AttributeValue(), value) {
		t.Error("notification handle/value mismatch")
	}
	if got := handle(n); got != 0x0025 {
		t.Errorf("handle() helper: got %#x want 0x25", got)
	}

	ind := NewHandleValueIndication(0x0026, value)
	if ind[0] != HandleValueIndicationCode {
		t.Errorf("indication opcode: got %#x", ind[0])
	}
	if ind.AttributeHandle() != 0x0026 || !bytes.Equal(ind.AttributeValue(), value) {
		t.Error("indication handle/value mismatch")
	}

	conf := NewHandleValueConfirmation()
	if len(conf) != 1 || conf[0] != HandleValueConfirmationCode {
		t.Errorf("confirmation: got %x", []byte(conf))
	}
}

func TestReadByTypeAndGroupTypeRequestBuf(t *testing.T) {
	typ16 := []byte{0x00, 0x28} // Primary Service, little-endian
	r := NewReadByTypeRequestBuf(1, 0xFFFF, typ16)
	if r.StartingHandle() != 1 || r.EndingHandle() != 0xFFFF {
		t.Errorf("got start=%#x end=%#x", r.StartingHandle(), r.EndingHandle())
	}
	if !bytes.Equal(r.AttributeType(), typ16) {
		t.Errorf("attribute type: got %x want %x", r.AttributeType(), typ16)
	}

	g := NewReadByGroupTypeRequestBuf(1, 0xFFFF, typ16)
	if g.StartingHandle() != 1 || g.EndingHandle() != 0xFFFF {
		t.Errorf("got start=%#x end=%#x", g.StartingHandle(), g.EndingHandle())
	}
	if !bytes.Equal(g.AttributeGroupType(), typ16) {
		t.Errorf("group type: got %x want %x", g.AttributeGroupType(), typ16)
	}
}
