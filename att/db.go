package att

import (
	"github.com/knx-ble/attgatt/ble"
)

const (
	tooSmall = -1
	tooLarge = -2
)

// attr is one row of the flattened attribute database: a handle, a type
// UUID, an opaque value or a pair of handlers that produce one, and the
// permission/grouping metadata the server needs to answer a request
// without walking back up to the ble.Service tree.
type attr struct {
	h    uint16
	typ  ble.UUID
	v    []byte // static value, used when rh/wh are nil
	endh uint16 // for a grouping attribute (service declaration), else 0

	rh ble.ReadHandler
	wh ble.WriteHandler

	perms ble.Permission

	svc  *ble.Service        // owning service, for group membership checks
	char *ble.Characteristic // owning characteristic, for CCCD/notify wiring
}

// DB is the server-side attribute database: every attribute a local GATT
// server exposes, indexed by handle and orderable by handle range. [C4]
type DB struct {
	attrs []*attr
	base  uint16

	cccs map[uint16]map[string]uint16 // valueHandle -> peer address -> CCC bits, persisted across the DB's lifetime

	inactive map[*ble.Service]bool // services temporarily excluded from discovery/access (Service Changed churn)

	// onCCCChange, if set by the owning Server, starts or stops the
	// characteristic's notify/indicate goroutine whenever a peer writes
	// its Client Characteristic Configuration descriptor.
	onCCCChange func(c *ble.Characteristic, conn ble.Conn, bits uint16)
}

// NewDB builds a DB from a flat list of top-level services, assigning
// handles starting at base (conventionally 1).
func NewDB(services []*ble.Service, base uint16) *DB {
	db := &DB{base: base, cccs: make(map[uint16]map[string]uint16), inactive: make(map[*ble.Service]bool)}
	h := base
	for _, s := range services {
		h = db.genSvcAttr(s, h)
	}
	return db
}

func (db *DB) genSvcAttr(s *ble.Service, h uint16) uint16 {
	typUUID := ble.PrimaryServiceUUID
	if s.Secondary {
		typUUID = ble.SecondaryServiceUUID
	}
	a := &attr{h: h, typ: typUUID, v: s.UUID, svc: s}
	db.attrs = append(db.attrs, a)
	s.Handle = h
	h++

	for _, other := range s.Included {
		v := make([]byte, 4+other.UUID.Len())
		v[0] = byte(other.Handle)
		v[1] = byte(other.Handle >> 8)
		v[2] = byte(other.EndHandle)
		v[3] = byte(other.EndHandle >> 8)
		copy(v[4:], other.UUID)
		db.attrs = append(db.attrs, &attr{h: h, typ: ble.IncludeUUID, v: v, svc: s})
		h++
	}

	for _, c := range s.Characteristics {
		h = db.genCharAttr(s, c, h)
	}

	s.EndHandle = h - 1
	a.endh = s.EndHandle
	return h
}

func (db *DB) genCharAttr(s *ble.Service, c *ble.Characteristic, h uint16) uint16 {
	c.Handle = h
	valueHandle := h + 1
	c.ValueHandle = valueHandle

	declValue := make([]byte, 3+c.UUID.Len())
	declValue[0] = byte(c.Property)
	declValue[1] = byte(valueHandle)
	declValue[2] = byte(valueHandle >> 8)
	copy(declValue[3:], c.UUID)
	db.attrs = append(db.attrs, &attr{h: h, typ: ble.CharacteristicUUID, v: declValue, svc: s, char: c})
	h++

	db.attrs = append(db.attrs, &attr{
		h: h, typ: c.UUID, v: c.Value, rh: c.ReadHandler, wh: c.WriteHandler,
		perms: c.Permissions, svc: s, char: c,
	})
	h++

	for _, d := range c.Descriptors {
		h = db.genDescAttr(s, c, d, h)
	}

	if c.NotifyHandler != nil || c.IndicateHandler != nil {
		hasCCC := false
		for _, d := range c.Descriptors {
			if d.UUID.Equal(ble.ClientCharacteristicConfigUUID) {
				hasCCC = true
			}
		}
		if !hasCCC {
			db.attrs = append(db.attrs, db.newCCCD(s, c, h))
			h++
		}
	}

	c.EndHandle = h - 1
	return h
}

func (db *DB) genDescAttr(s *ble.Service, c *ble.Characteristic, d *ble.Descriptor, h uint16) uint16 {
	d.Handle = h
	a := &attr{h: h, typ: d.UUID, v: d.Value, rh: d.ReadHandler, wh: d.WriteHandler, perms: d.Permissions, svc: s, char: c}
	if d.UUID.Equal(ble.ClientCharacteristicConfigUUID) {
		a = db.newCCCD(s, c, h)
	}
	db.attrs = append(db.attrs, a)
	return h + 1
}

// newCCCD builds the Client Characteristic Configuration descriptor
// attribute for c: reading it returns the per-peer subscription bits,
// writing it enables/disables the notify/indicate goroutine.
func (db *DB) newCCCD(s *ble.Service, c *ble.Characteristic, h uint16) *attr {
	return &attr{
		h: h, typ: ble.ClientCharacteristicConfigUUID, svc: s, char: c,
		perms: ble.PermRead | ble.PermWrite,
		rh: ble.ReadHandlerFunc(func(r *ble.ReadRequest, rsp ble.ReadResponder) {
			bits := db.cccBits(c.ValueHandle, r.Conn.RemoteAddr().String())
			b := []byte{byte(bits), byte(bits >> 8)}
			rsp.Respond(b)
		}),
		wh: ble.WriteHandlerFunc(func(r *ble.WriteRequest, rsp ble.WriteResponder) {
			if len(r.Data) != 2 {
				rsp.RespondError(ble.ErrInvalAttrValueLen)
				return
			}
			bits := uint16(r.Data[0]) | uint16(r.Data[1])<<8
			addr := r.Conn.RemoteAddr().String()
			db.setCCCBits(c.ValueHandle, addr, bits)
			if db.onCCCChange != nil {
				db.onCCCChange(c, r.Conn, bits)
			}
			rsp.Respond()
		}),
	}
}

func (db *DB) cccBits(valueHandle uint16, addr string) uint16 {
	m := db.cccs[valueHandle]
	if m == nil {
		return 0
	}
	return m[addr]
}

func (db *DB) setCCCBits(valueHandle uint16, addr string, bits uint16) {
	m := db.cccs[valueHandle]
	if m == nil {
		m = make(map[string]uint16)
		db.cccs[valueHandle] = m
	}
	m[addr] = bits
}

// idx returns the slice index of handle h, tooSmall if h is below the
// smallest attribute handle, or tooLarge if h is above the largest.
func (db *DB) idx(h int) int {
	if len(db.attrs) == 0 {
		return tooLarge
	}
	if h < int(db.attrs[0].h) {
		return tooSmall
	}
	if h > int(db.attrs[len(db.attrs)-1].h) {
		return tooLarge
	}
	lo, hi := 0, len(db.attrs)-1
	for lo <= hi {
		mid := (lo + hi) / 2
		switch {
		case db.attrs[mid].h == uint16(h):
			return mid
		case db.attrs[mid].h < uint16(h):
			lo = mid + 1
		default:
			hi = mid - 1
		}
	}
	return tooLarge
}

// at returns the attribute at handle h, if one is active (not part of a
// currently-inactive service).
func (db *DB) at(h uint16) (*attr, bool) {
	i := db.idx(int(h))
	if i < 0 {
		return nil, false
	}
	a := db.attrs[i]
	if a.svc != nil && db.inactive[a.svc] {
		return nil, false
	}
	return a, true
}

// subrange returns every active attribute with start <= handle <= end.
func (db *DB) subrange(start, end uint16) []*attr {
	si, ei := db.idx(int(start)), db.idx(int(end))
	switch si {
	case tooSmall:
		si = 0
	case tooLarge:
		return nil
	}
	switch ei {
	case tooSmall:
		return nil
	case tooLarge:
		ei = len(db.attrs) - 1
	}
	if si > ei {
		return nil
	}
	out := make([]*attr, 0, ei-si+1)
	for _, a := range db.attrs[si : ei+1] {
		if a.svc != nil && db.inactive[a.svc] {
			continue
		}
		out = append(out, a)
	}
	return out
}

// SetServiceActive controls whether s participates in discovery and
// attribute access. A server sets a service inactive while it rebuilds
// it, then reactivates it and sends Service Changed. [SPEC_FULL §4.3a]
func (db *DB) SetServiceActive(s *ble.Service, active bool) {
	db.inactive[s] = !active
}

// checkPermission validates a peer's security level against an
// attribute's required permission bits for the given access, returning
// the ATT error to report if denied, or ErrSuccess if allowed.
func checkPermission(perms ble.Permission, write bool, lvl ble.SecurityLevel) ble.ATTError {
	need := ble.PermRead
	needEnc := ble.PermReadEncrypted
	needAuth := ble.PermReadAuthenticated
	if write {
		need, needEnc, needAuth = ble.PermWrite, ble.PermWriteEncrypted, ble.PermWriteAuthenticated
	}
	if perms&needAuth != 0 && lvl < ble.SecurityLevelHigh {
		return ble.ErrAuthentication
	}
	if perms&needEnc != 0 && lvl < ble.SecurityLevelMedium {
		return ble.ErrInsuffEnc
	}
	if perms&need == 0 && perms&needEnc == 0 && perms&needAuth == 0 {
		// No permission bit for this direction of access (e.g. a read of a
		// write-only value) means the access is not permitted. The server's
		// callers skip this check for an attribute with no bits at all.
		if write {
			return ble.ErrWriteNotPerm
		}
		return ble.ErrReadNotPerm
	}
	return ble.ErrSuccess
}
