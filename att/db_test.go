package att

import (
	"testing"

	"github.com/knx-ble/attgatt/ble"
)

func newTestProfile() *ble.Service {
	svc := ble.NewService(ble.UUID16(0x180D)) // Heart Rate
	char := ble.NewCharacteristic(ble.UUID16(0x2A37))
	char.Property = ble.CharRead | ble.CharNotify
	char.Permissions = ble.PermRead
	char.Value = []byte{0x00, 0x48}
	char.HandleNotify(ble.NotifyHandlerFunc(func(r *ble.ReadRequest, n ble.Notifier) {
		<-n.Context().Done()
	}))
	svc.AddCharacteristic(char)
	return svc
}

func TestNewDBAssignsContiguousHandles(t *testing.T) {
	svc := newTestProfile()
	db := NewDB([]*ble.Service{svc}, 1)

	if svc.Handle != 1 {
		t.Errorf("service handle: got %d want 1", svc.Handle)
	}
	char := svc.Characteristics[0]
	if char.Handle != 2 {
		t.Errorf("char decl handle: got %d want 2", char.Handle)
	}
	if char.ValueHandle != 3 {
		t.Errorf("char value handle: got %d want 3", char.ValueHandle)
	}
	// A CCCD should have been auto-created at handle 4 since NotifyHandler
	// is set and no explicit descriptor was added.
	if got, want := len(db.attrs), 4; got != want {
		t.Fatalf("attr count: got %d want %d", got, want)
	}
	cccd := db.attrs[3]
	if !cccd.typ.Equal(ble.ClientCharacteristicConfigUUID) {
		t.Errorf("attrs[3] type: got %x want CCCD", cccd.typ)
	}
	if svc.EndHandle != 4 {
		t.Errorf("service end handle: got %d want 4", svc.EndHandle)
	}
	if db.attrs[0].endh != svc.EndHandle {
		t.Errorf("service decl endh: got %d want %d", db.attrs[0].endh, svc.EndHandle)
	}
}

func TestIdxSentinels(t *testing.T) {
	svc := newTestProfile()
	db := NewDB([]*ble.Service{svc}, 1)

	if i := db.idx(0); i != tooSmall {
		t.Errorf("idx(0): got %d want tooSmall", i)
	}
	if i := db.idx(100); i != tooLarge {
		t.Errorf("idx(100): got %d want tooLarge", i)
	}
	if i := db.idx(2); i != 1 {
		t.Errorf("idx(2): got %d want 1", i)
	}
}

func TestAtFiltersInactiveService(t *testing.T) {
	svc := newTestProfile()
	db := NewDB([]*ble.Service{svc}, 1)

	if _, ok := db.at(1); !ok {
		t.Fatal("expected handle 1 to resolve while service is active")
	}
	db.SetServiceActive(svc, false)
	if _, ok := db.at(1); ok {
		t.Error("expected handle 1 to be hidden once its service is inactive")
	}
	db.SetServiceActive(svc, true)
	if _, ok := db.at(1); !ok {
		t.Error("expected handle 1 to resolve again once reactivated")
	}
}

func TestSubrangeClampsToExistingHandles(t *testing.T) {
	svc := newTestProfile()
	db := NewDB([]*ble.Service{svc}, 1)

	if got := db.subrange(0, 0xFFFF); len(got) != 4 {
		t.Errorf("subrange(0, 0xFFFF): got %d attrs want 4", len(got))
	}
	if got := db.subrange(5, 0xFFFF); got != nil {
		t.Errorf("subrange(5, 0xFFFF): got %v want nil", got)
	}
	if got := db.subrange(2, 3); len(got) != 2 {
		t.Errorf("subrange(2,3): got %d attrs want 2", len(got))
	}
}

func TestCCCDRoundTrip(t *testing.T) {
	svc := newTestProfile()
	db := NewDB([]*ble.Service{svc}, 1)
	valueHandle := svc.Characteristics[0].ValueHandle
	cccd, ok := db.at(valueHandle + 1)
	if !ok {
		t.Fatal("expected CCCD attr to exist")
	}

	conn := newFakeConn()
	var readBack []byte
	cccd.rh.HandleRead(&ble.ReadRequest{Conn: conn}, readHandlerFunc(func(data []byte) { readBack = data }))
	if got, want := readBack, []byte{0, 0}; string(got) != string(want) {
		t.Errorf("initial CCC bits: got %x want %x", got, want)
	}

	var writeErr ble.ATTError = ble.ErrSuccess
	cccd.wh.HandleWrite(&ble.WriteRequest{Conn: conn, Data: []byte{0x01, 0x00}}, writeHandlerFunc{
		respond:      func() {},
		respondError: func(code ble.ATTError) { writeErr = code },
	})
	if writeErr != ble.ErrSuccess {
		t.Fatalf("CCCD write rejected: %v", writeErr)
	}
	if bits := db.cccBits(valueHandle, conn.RemoteAddr().String()); bits != 1 {
		t.Errorf("CCC bits after enable: got %d want 1", bits)
	}
}

func TestCheckPermission(t *testing.T) {
	cases := []struct {
		name  string
		perms ble.Permission
		write bool
		lvl   ble.SecurityLevel
		want  ble.ATTError
	}{
		{"plain read allowed", ble.PermRead, false, ble.SecurityLevelNone, ble.ErrSuccess},
		{"read without perm bit", 0, false, ble.SecurityLevelHigh, ble.ErrReadNotPerm},
		{"write without perm bit", 0, true, ble.SecurityLevelHigh, ble.ErrWriteNotPerm},
		{"encrypted read denied at none", ble.PermReadEncrypted, false, ble.SecurityLevelNone, ble.ErrInsuffEnc},
		{"encrypted read allowed at medium", ble.PermReadEncrypted, false, ble.SecurityLevelMedium, ble.ErrSuccess},
		{"authenticated write denied below high", ble.PermWriteAuthenticated, true, ble.SecurityLevelMedium, ble.ErrAuthentication},
		{"authenticated write allowed at high", ble.PermWriteAuthenticated, true, ble.SecurityLevelHigh, ble.ErrSuccess},
	}
	for _, tt := range cases {
		t.Run(tt.name, func(t *testing.T) {
			if got := checkPermission(tt.perms, tt.write, tt.lvl); got != tt.want {
				t.Errorf("checkPermission(%v, %v, %v): got %v want %v", tt.perms, tt.write, tt.lvl, got, tt.want)
			}
		})
	}
}

// readHandlerFunc and writeHandlerFunc adapt plain funcs to the
// ble.ReadResponder/ble.WriteResponder interfaces for these tests.
type readHandlerFunc func(data []byte)

func (f readHandlerFunc) Respond(data []byte)            { f(data) }
func (f readHandlerFunc) RespondError(code ble.ATTError) {}

type writeHandlerFunc struct {
	respond      func()
	respondError func(code ble.ATTError)
}

func (f writeHandlerFunc) Respond()                      { f.respond() }
func (f writeHandlerFunc) RespondError(code ble.ATTError) { f.respondError(code) }
