package att

import (
	"context"
	"sync"

	"github.com/knx-ble/attgatt/ble"
)

// CCC bits. [Vol 3, Part G, 3.3.3.3]
const (
	cccNotify   = 0x0001
	cccIndicate = 0x0002
)

// Server answers inbound ATT requests against a DB over one Bearer. It
// implements att.Handler's HandleRequest half; HandleNotification is a
// no-op for a pure server (embedded NopHandler), since a server doesn't
// subscribe to its own characteristics. [C5]
type Server struct {
	NopHandler

	db     *DB
	bearer *Bearer
	conn   ble.Conn
	log    ble.Logger

	mu           sync.Mutex
	prepareQueue []preparedWrite
	queueCap     int

	notifiers map[uint16]*notifier // valueHandle -> active subscription for this connection
}

type preparedWrite struct {
	handle uint16
	offset int
	value  []byte
}

// NewServer wires db to conn, installing the CCC-change hook that
// starts/stops notify/indicate goroutines. The caller must call Attach
// once its Bearer exists: Server must exist before the Bearer (it's the
// Bearer's Handler), and the Bearer must exist before Server can send
// anything, so construction is necessarily two-phase.
func NewServer(db *DB, conn ble.Conn, log ble.Logger) *Server {
	s := &Server{
		db: db, conn: conn, log: log,
		queueCap:  ble.DefaultPrepareQueueCap,
		notifiers: make(map[uint16]*notifier),
	}
	db.onCCCChange = s.onCCCChange
	return s
}

// Attach binds the Bearer this Server sends responses and indications
// over. Must be called once, before any request is dispatched to s.
func (s *Server) Attach(bearer *Bearer) { s.bearer = bearer }

// Indicate sends an indication for the characteristic whose UUID is u,
// blocking until the peer's confirmation arrives or the bearer's
// indication timeout elapses. Used for server-initiated indications that
// aren't driven by a NotifyHandler goroutine, such as Service Changed.
// Nothing is sent, and nil is returned, when this connection's peer has
// not enabled indications in the characteristic's CCCD.
func (s *Server) Indicate(u ble.UUID, value []byte) error {
	a, ok := s.findByType(u)
	if !ok {
		return ble.ErrAttrNotFound
	}
	if s.db.cccBits(a.h, s.conn.RemoteAddr().String())&cccIndicate == 0 {
		return nil
	}
	return s.bearer.SendIndication(a.h, value)
}

func (s *Server) findByType(u ble.UUID) (*attr, bool) {
	for _, a := range s.db.attrs {
		if a.typ.Equal(u) {
			return a, true
		}
	}
	return nil, false
}

func (s *Server) onCCCChange(c *ble.Characteristic, conn ble.Conn, bits uint16) {
	s.mu.Lock()
	existing := s.notifiers[c.ValueHandle]
	s.mu.Unlock()

	wantNotify := bits&cccNotify != 0 && c.NotifyHandler != nil
	wantIndicate := bits&cccIndicate != 0 && c.IndicateHandler != nil

	if existing != nil {
		existing.Close()
		s.mu.Lock()
		delete(s.notifiers, c.ValueHandle)
		s.mu.Unlock()
	}
	if !wantNotify && !wantIndicate {
		return
	}

	ctx, cancel := context.WithCancel(conn.Context())
	n := &notifier{ctx: ctx, cancel: cancel, bearer: s.bearer, handle: c.ValueHandle, indicate: wantIndicate}
	s.mu.Lock()
	s.notifiers[c.ValueHandle] = n
	s.mu.Unlock()

	handler := c.NotifyHandler
	if wantIndicate {
		handler = c.IndicateHandler
	}
	go handler.HandleNotify(&ble.ReadRequest{Conn: conn}, n)
}

// notifier implements ble.Notifier over a Bearer, dispatching to
// SendNotification or SendIndication depending on which CCC bit enabled
// it.
type notifier struct {
	ctx      context.Context
	cancel   context.CancelFunc
	bearer   *Bearer
	handle   uint16
	indicate bool
}

func (n *notifier) Context() context.Context { return n.ctx }

func (n *notifier) Write(data []byte) (int, error) {
	if n.indicate {
		if err := n.bearer.SendIndication(n.handle, data); err != nil {
			return 0, err
		}
		return len(data), nil
	}
	if err := n.bearer.SendNotification(n.handle, data); err != nil {
		return 0, err
	}
	return len(data), nil
}

func (n *notifier) Close() error {
	n.cancel()
	return nil
}

func (n *notifier) Cap() int { return n.bearer.MTU() - 3 }

// HandleRequest implements att.Handler for the server role.
func (s *Server) HandleRequest(pdu []byte, respond func(pdu []byte)) {
	if len(pdu) == 0 {
		return
	}
	op := pdu[0]
	switch op {
	case ExchangeMTURequestCode:
		s.handleExchangeMTU(ExchangeMTURequest(pdu), respond)
	case FindInformationRequestCode:
		s.handleFindInformation(FindInformationRequest(pdu), respond)
	case FindByTypeValueRequestCode:
		s.handleFindByTypeValue(FindByTypeValueRequest(pdu), respond)
	case ReadByTypeRequestCode:
		s.handleReadByType(ReadByTypeRequest(pdu), respond)
	case ReadRequestCode:
		s.handleRead(ReadRequest(pdu), respond)
	case ReadBlobRequestCode:
		s.handleReadBlob(ReadBlobRequest(pdu), respond)
	case ReadMultipleRequestCode:
		s.handleReadMultiple(ReadMultipleRequest(pdu), respond)
	case ReadByGroupTypeRequestCode:
		s.handleReadByGroupType(ReadByGroupTypeRequest(pdu), respond)
	case WriteRequestCode:
		s.handleWrite(WriteRequest(pdu), respond, true)
	case WriteCommandCode:
		s.handleWrite(WriteRequest(pdu), respond, false)
	case SignedWriteCommandCode:
		// Signed writes require CSRK-based verification (SMP), which is
		// out of scope; reject rather than silently trust an
		// unauthenticated write.
		respond(nil)
	case PrepareWriteRequestCode:
		s.handlePrepareWrite(PrepareWriteRequest(pdu), respond)
	case ExecuteWriteRequestCode:
		s.handleExecuteWrite(ExecuteWriteRequest(pdu), respond)
	default:
		respond(NewErrorResponseBuf(op, 0x0000, byte(ble.ErrReqNotSupp)))
	}
}

func (s *Server) errResp(op byte, handle uint16, code ble.ATTError) []byte {
	return NewErrorResponseBuf(op, handle, byte(code))
}

// permissionErr logs a local server-side permission precheck failure as
// a *ble.PermissionDenied, then materializes it on the wire as the
// matching ATT error response — the two are the same event seen from the
// two sides checkPermission's caller cares about. [SPEC_FULL §7]
func (s *Server) permissionErr(op byte, handle uint16, code ble.ATTError) []byte {
	s.log.Debugf("att: %v", &ble.PermissionDenied{Code: code})
	return s.errResp(op, handle, code)
}

func (s *Server) handleExchangeMTU(r ExchangeMTURequest, respond func([]byte)) {
	clientMTU := int(r.ClientRxMTU())
	mtu := clientMTU
	if mtu > ble.MaxMTU {
		mtu = ble.MaxMTU
	}
	if mtu < ble.DefaultMTU {
		mtu = ble.DefaultMTU
	}
	s.bearer.SetMTU(mtu)
	respond(NewExchangeMTUResponse(uint16(mtu)))
}

func (s *Server) handleFindInformation(r FindInformationRequest, respond func([]byte)) {
	start, end := r.StartingHandle(), r.EndingHandle()
	if start == 0 || start > end {
		respond(s.errResp(FindInformationRequestCode, start, ble.ErrInvalidHandle))
		return
	}
	attrs := s.db.subrange(start, end)
	if len(attrs) == 0 {
		respond(s.errResp(FindInformationRequestCode, start, ble.ErrAttrNotFound))
		return
	}
	is16 := attrs[0].typ.Len() == 2
	entrySize := 2 + attrs[0].typ.Len()
	buf := []byte{FindInformationResponseCode, 0}
	if is16 {
		buf[1] = FindInformationResponseFormatUUID16
	} else {
		buf[1] = FindInformationResponseFormatUUID128
	}
	for _, a := range attrs {
		if a.typ.Len() != attrs[0].typ.Len() {
			break
		}
		if len(buf)+entrySize > s.bearer.MTU() {
			break
		}
		buf = append(buf, byte(a.h), byte(a.h>>8))
		buf = append(buf, a.typ...)
	}
	respond(buf)
}

func (s *Server) handleFindByTypeValue(r FindByTypeValueRequest, respond func([]byte)) {
	start, end := r.StartingHandle(), r.EndingHandle()
	typ := ble.UUID16(r.AttributeType())
	val := r.AttributeValue()
	attrs := s.db.subrange(start, end)
	buf := []byte{FindByTypeValueResponseCode}
	for _, a := range attrs {
		if !a.typ.Equal(typ) {
			continue
		}
		if len(a.v) != len(val) || string(a.v) != string(val) {
			continue
		}
		groupEnd := a.h
		if a.endh != 0 {
			groupEnd = a.endh
		}
		if len(buf)+4 > s.bearer.MTU() {
			break
		}
		buf = append(buf, byte(a.h), byte(a.h>>8), byte(groupEnd), byte(groupEnd>>8))
	}
	if len(buf) == 1 {
		respond(s.errResp(FindByTypeValueRequestCode, start, ble.ErrAttrNotFound))
		return
	}
	respond(buf)
}

func (s *Server) handleReadByType(r ReadByTypeRequest, respond func([]byte)) {
	start, end := r.StartingHandle(), r.EndingHandle()
	typ := uuidFromBytes(r.AttributeType())
	attrs := s.db.subrange(start, end)

	buf := []byte{ReadByTypeResponseCode, 0}
	length := 0
	for _, a := range attrs {
		if !a.typ.Equal(typ) {
			continue
		}
		if code := checkPermission(a.perms, false, s.conn.SecurityLevel()); code != ble.ErrSuccess && a.perms != 0 {
			if len(buf) == 2 {
				respond(s.permissionErr(ReadByTypeRequestCode, a.h, code))
				return
			}
			break
		}
		val, code := readAttr(a, s.conn, 0)
		if code != ble.ErrSuccess {
			if len(buf) == 2 {
				respond(s.errResp(ReadByTypeRequestCode, a.h, code))
				return
			}
			break
		}
		entryLen := 2 + len(val)
		if length == 0 {
			length = entryLen
		}
		if entryLen != length || len(buf)+entryLen > s.bearer.MTU() {
			break
		}
		buf = append(buf, byte(a.h), byte(a.h>>8))
		buf = append(buf, val...)
	}
	if len(buf) == 2 {
		respond(s.errResp(ReadByTypeRequestCode, start, ble.ErrAttrNotFound))
		return
	}
	buf[1] = byte(length)
	respond(buf)
}

func (s *Server) handleRead(r ReadRequest, respond func([]byte)) {
	a, ok := s.db.at(r.AttributeHandle())
	if !ok {
		respond(s.errResp(ReadRequestCode, r.AttributeHandle(), ble.ErrInvalidHandle))
		return
	}
	if code := checkPermission(a.perms, false, s.conn.SecurityLevel()); code != ble.ErrSuccess && a.perms != 0 {
		respond(s.permissionErr(ReadRequestCode, r.AttributeHandle(), code))
		return
	}
	val, code := readAttr(a, s.conn, 0)
	if code != ble.ErrSuccess {
		respond(s.errResp(ReadRequestCode, r.AttributeHandle(), code))
		return
	}
	if len(val) > s.bearer.MTU()-1 {
		val = val[:s.bearer.MTU()-1]
	}
	buf := append([]byte{ReadResponseCode}, val...)
	respond(buf)
}

func (s *Server) handleReadBlob(r ReadBlobRequest, respond func([]byte)) {
	a, ok := s.db.at(r.AttributeHandle())
	if !ok {
		respond(s.errResp(ReadBlobRequestCode, r.AttributeHandle(), ble.ErrInvalidHandle))
		return
	}
	if code := checkPermission(a.perms, false, s.conn.SecurityLevel()); code != ble.ErrSuccess && a.perms != 0 {
		respond(s.permissionErr(ReadBlobRequestCode, r.AttributeHandle(), code))
		return
	}
	offset := int(r.ValueOffset())
	val, code := readAttr(a, s.conn, offset)
	if code != ble.ErrSuccess {
		respond(s.errResp(ReadBlobRequestCode, r.AttributeHandle(), code))
		return
	}
	if offset > 0 && a.rh == nil {
		if offset > len(a.v) {
			respond(s.errResp(ReadBlobRequestCode, r.AttributeHandle(), ble.ErrInvalidOffset))
			return
		}
	}
	if len(val) > s.bearer.MTU()-1 {
		val = val[:s.bearer.MTU()-1]
	}
	buf := append([]byte{ReadBlobResponseCode}, val...)
	respond(buf)
}

func (s *Server) handleReadMultiple(r ReadMultipleRequest, respond func([]byte)) {
	handles := r.Handles()
	if len(handles) < 2 {
		respond(s.errResp(ReadMultipleRequestCode, 0, ble.ErrInvalidPDU))
		return
	}
	buf := []byte{ReadMultipleResponseCode}
	for _, h := range handles {
		a, ok := s.db.at(h)
		if !ok {
			respond(s.errResp(ReadMultipleRequestCode, h, ble.ErrInvalidHandle))
			return
		}
		if code := checkPermission(a.perms, false, s.conn.SecurityLevel()); code != ble.ErrSuccess && a.perms != 0 {
			respond(s.permissionErr(ReadMultipleRequestCode, h, code))
			return
		}
		val, code := readAttr(a, s.conn, 0)
		if code != ble.ErrSuccess {
			respond(s.errResp(ReadMultipleRequestCode, h, code))
			return
		}
		buf = append(buf, val...)
	}
	if len(buf) > s.bearer.MTU() {
		buf = buf[:s.bearer.MTU()]
	}
	respond(buf)
}

func (s *Server) handleReadByGroupType(r ReadByGroupTypeRequest, respond func([]byte)) {
	start, end := r.StartingHandle(), r.EndingHandle()
	typ := uuidFromBytes(r.AttributeGroupType())
	if !typ.Equal(ble.PrimaryServiceUUID) && !typ.Equal(ble.SecondaryServiceUUID) {
		respond(s.errResp(ReadByGroupTypeRequestCode, start, ble.ErrUnsuppGrpType))
		return
	}
	attrs := s.db.subrange(start, end)
	buf := []byte{ReadByGroupTypeResponseCode, 0}
	length := 0
	for _, a := range attrs {
		if !a.typ.Equal(typ) {
			continue
		}
		entryLen := 4 + len(a.v)
		if length == 0 {
			length = entryLen
		}
		if entryLen != length || len(buf)+entryLen > s.bearer.MTU() {
			break
		}
		groupEnd := a.endh
		buf = append(buf, byte(a.h), byte(a.h>>8), byte(groupEnd), byte(groupEnd>>8))
		buf = append(buf, a.v...)
	}
	if len(buf) == 2 {
		respond(s.errResp(ReadByGroupTypeRequestCode, start, ble.ErrAttrNotFound))
		return
	}
	buf[1] = byte(length)
	respond(buf)
}

func (s *Server) handleWrite(r WriteRequest, respond func([]byte), wantsResponse bool) {
	a, ok := s.db.at(r.AttributeHandle())
	if !ok {
		if wantsResponse {
			respond(s.errResp(WriteRequestCode, r.AttributeHandle(), ble.ErrInvalidHandle))
		} else {
			respond(nil)
		}
		return
	}
	if code := checkPermission(a.perms, true, s.conn.SecurityLevel()); code != ble.ErrSuccess && a.perms != 0 {
		if wantsResponse {
			respond(s.permissionErr(WriteRequestCode, r.AttributeHandle(), code))
		} else {
			respond(nil)
		}
		return
	}
	code := writeAttr(a, s.conn, r.AttributeValue(), 0, !wantsResponse)
	if !wantsResponse {
		respond(nil)
		return
	}
	if code != ble.ErrSuccess {
		respond(s.errResp(WriteRequestCode, r.AttributeHandle(), code))
		return
	}
	respond(NewWriteResponse())
}

// handlePrepareWrite queues a partial write for later commit, bounded at
// queueCap entries so a misbehaving peer can't grow the queue without
// limit. [SPEC_FULL §4.4a]
func (s *Server) handlePrepareWrite(r PrepareWriteRequest, respond func([]byte)) {
	handle := r.AttributeHandle()
	a, ok := s.db.at(handle)
	if !ok {
		respond(s.errResp(PrepareWriteRequestCode, handle, ble.ErrInvalidHandle))
		return
	}
	if code := checkPermission(a.perms, true, s.conn.SecurityLevel()); code != ble.ErrSuccess && a.perms != 0 {
		respond(s.permissionErr(PrepareWriteRequestCode, handle, code))
		return
	}
	value := append([]byte(nil), r.PartAttributeValue()...)

	s.mu.Lock()
	if len(s.prepareQueue) >= s.queueCap {
		s.mu.Unlock()
		respond(s.errResp(PrepareWriteRequestCode, handle, ble.ErrPrepQueueFull))
		return
	}
	s.prepareQueue = append(s.prepareQueue, preparedWrite{handle: handle, offset: int(r.ValueOffset()), value: value})
	s.mu.Unlock()

	respond(NewPrepareWriteResponse(handle, r.ValueOffset(), value))
}

// handleExecuteWrite validates the queued prepare writes as a whole
// before applying any of them: every queued entry must name an attribute
// that still exists and is still writable, entries for the same handle
// must chain into a contiguous byte range with no gap, and the resulting
// assembled value must not exceed the attribute's maximum length.
// Rejecting at commit time (rather than only at queue time) is this
// module's resolution of the original prepare/execute ambiguity: a
// permission or length violation discovered only once every fragment has
// arrived still aborts the whole queue. [SPEC_FULL §9]
func (s *Server) handleExecuteWrite(r ExecuteWriteRequest, respond func([]byte)) {
	s.mu.Lock()
	queue := s.prepareQueue
	s.prepareQueue = nil
	s.mu.Unlock()

	if r.Flags() == ExecuteWriteCancel {
		respond(NewExecuteWriteResponse())
		return
	}

	byHandle := map[uint16][]preparedWrite{}
	order := []uint16{}
	for _, pw := range queue {
		if _, seen := byHandle[pw.handle]; !seen {
			order = append(order, pw.handle)
		}
		byHandle[pw.handle] = append(byHandle[pw.handle], pw)
	}

	assembled := map[uint16][]byte{}
	for _, h := range order {
		parts := byHandle[h]
		a, ok := s.db.at(h)
		if !ok {
			respond(s.errResp(ExecuteWriteRequestCode, h, ble.ErrInvalidHandle))
			return
		}
		if code := checkPermission(a.perms, true, s.conn.SecurityLevel()); code != ble.ErrSuccess && a.perms != 0 {
			respond(s.permissionErr(ExecuteWriteRequestCode, h, code))
			return
		}
		want := 0
		for _, p := range parts {
			if p.offset != want {
				respond(s.errResp(ExecuteWriteRequestCode, h, ble.ErrInvalidOffset))
				return
			}
			want += len(p.value)
		}
		buf := make([]byte, 0, want)
		for _, p := range parts {
			buf = append(buf, p.value...)
		}
		if len(buf) > ble.MaxMTU-3 {
			respond(s.errResp(ExecuteWriteRequestCode, h, ble.ErrInvalAttrValueLen))
			return
		}
		assembled[h] = buf
	}

	for _, h := range order {
		a, _ := s.db.at(h)
		if code := writeAttr(a, s.conn, assembled[h], 0, false); code != ble.ErrSuccess {
			respond(s.errResp(ExecuteWriteRequestCode, h, code))
			return
		}
	}
	respond(NewExecuteWriteResponse())
}

func uuidFromBytes(b []byte) ble.UUID { return ble.UUID(b) }

// --- synchronous adapters over the async ReadHandler/WriteHandler ---
//
// Each request already runs on its own goroutine (spawned by the
// Bearer), so blocking here to wait for an asynchronous callback to
// complete costs nothing: no other request is delayed, and a callback
// that completes from a different goroutine, or well after its handler
// returns, is still handled correctly.

type syncReadResp struct {
	out chan readOutcome
}

type readOutcome struct {
	data []byte
	code ble.ATTError
}

func (r *syncReadResp) Respond(data []byte)         { r.out <- readOutcome{data, ble.ErrSuccess} }
func (r *syncReadResp) RespondError(code ble.ATTError) { r.out <- readOutcome{nil, code} }

func readAttr(a *attr, conn ble.Conn, offset int) ([]byte, ble.ATTError) {
	if a.rh == nil {
		if offset > len(a.v) {
			return nil, ble.ErrInvalidOffset
		}
		return a.v[offset:], ble.ErrSuccess
	}
	resp := &syncReadResp{out: make(chan readOutcome, 1)}
	a.rh.HandleRead(&ble.ReadRequest{Conn: conn, Offset: offset}, resp)
	o := <-resp.out
	return o.data, o.code
}

type syncWriteResp struct {
	out chan ble.ATTError
}

func (r *syncWriteResp) Respond()                       { r.out <- ble.ErrSuccess }
func (r *syncWriteResp) RespondError(code ble.ATTError) { r.out <- code }

func writeAttr(a *attr, conn ble.Conn, data []byte, offset int, noResponse bool) ble.ATTError {
	if a.wh == nil {
		a.v = append([]byte(nil), data...)
		return ble.ErrSuccess
	}
	resp := &syncWriteResp{out: make(chan ble.ATTError, 1)}
	a.wh.HandleWrite(&ble.WriteRequest{Conn: conn, Data: data, Offset: offset, NoResponse: noResponse}, resp)
	return <-resp.out
}
