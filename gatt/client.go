// Package gatt implements the Generic Attribute Profile on top of att:
// service/characteristic/descriptor discovery, characteristic and
// descriptor read/write, and the notification/indication subscription
// model, for both the client and server roles. [C6, C7, C8]
package gatt

import (
	"context"
	"sync"

	"github.com/knx-ble/attgatt/att"
	"github.com/knx-ble/attgatt/ble"
)

// Client discovers and operates on a remote peer's GATT database over a
// Bearer it owns exclusively.
type Client struct {
	att.NopHandler

	bearer *Bearer
	conn   ble.Conn
	log    ble.Logger
	cache  ble.GattCache

	mu              sync.Mutex
	subscribers     map[uint16][]ble.NotificationHandler // value handle -> subscribers
	profile         *ble.Profile
	onServiceChange ble.ServiceChangeHandler
}

// Bearer is att.Bearer, re-exported so callers of this package don't need
// to import att directly for the common case.
type Bearer = att.Bearer

// NewClient starts a Client over conn, running its own Bearer.
func NewClient(conn ble.Conn, log ble.Logger, cache ble.GattCache) *Client {
	c := &Client{conn: conn, log: log, cache: cache, subscribers: make(map[uint16][]ble.NotificationHandler)}
	c.bearer = att.NewBearer(conn, c, log, att.DefaultBearerConfig)
	return c
}

// HandleNotification implements att.Handler, fanning an inbound
// notification/indication out to every local subscriber for vh before
// returning, so the Bearer can confirm an indication only once every
// subscriber has seen it.
func (c *Client) HandleNotification(vh uint16, value []byte, indication bool) {
	c.mu.Lock()
	hs := append([]ble.NotificationHandler(nil), c.subscribers[vh]...)
	c.mu.Unlock()
	for _, h := range hs {
		h(value)
	}
}

// ExchangeMTU negotiates the ATT_MTU, sending the local Conn's RxMTU and
// adopting min(local, remote) as the bearer's effective MTU.
func (c *Client) ExchangeMTU(ctx context.Context) (int, error) {
	req := att.NewExchangeMTURequest(uint16(c.conn.RxMTU()))
	rsp, err := c.bearer.SendRequest(ctx, req)
	if err != nil {
		return 0, err
	}
	serverMTU := int(att.ExchangeMTUResponse(rsp).ServerRxMTU())
	mtu := c.conn.RxMTU()
	if serverMTU < mtu {
		mtu = serverMTU
	}
	c.conn.SetTxMTU(mtu)
	c.bearer.SetMTU(mtu)
	return mtu, nil
}

// Discover runs the client-side discovery pipeline: MTU exchange, primary
// service discovery, and for each primary service its included services,
// characteristics, and descriptors, then subscribes to Service Changed
// when the peer exposes it with Indicate. There is no separate search for
// secondary services; one appears only as an Included entry of a primary
// service that includes it. The
// resulting profile is cached under the peer's address if a GattCache was
// configured. [SPEC_FULL §4.5]
func (c *Client) Discover(ctx context.Context) (*ble.Profile, error) {
	if _, err := c.ExchangeMTU(ctx); err != nil {
		return nil, err
	}
	services, err := c.discoverServicesRange(ctx, nil, 1, 0xFFFF)
	if err != nil {
		return nil, err
	}
	for _, s := range services {
		if err := c.discoverServiceBody(ctx, s); err != nil {
			return nil, err
		}
	}
	profile := &ble.Profile{Services: services}

	c.mu.Lock()
	c.profile = profile
	c.mu.Unlock()

	if c.cache != nil {
		c.cache.Store(c.conn.RemoteAddr().String(), profile)
	}
	if err := c.subscribeServiceChanged(ctx, profile); err != nil {
		c.log.Warnf("gatt: service changed subscription failed: %v", err)
	}
	return profile, nil
}

// OnServiceChange registers h to be called once a Service Changed
// indication's scoped rediscovery completes. Only one handler is kept;
// a later call replaces an earlier one. [C6]
func (c *Client) OnServiceChange(h ble.ServiceChangeHandler) {
	c.mu.Lock()
	c.onServiceChange = h
	c.mu.Unlock()
}

// discoverServiceBody runs phases 4-6 for s: included services,
// characteristics, and each characteristic's descriptors, populating s in
// place.
func (c *Client) discoverServiceBody(ctx context.Context, s *ble.Service) error {
	included, err := c.DiscoverIncludedServices(ctx, s)
	if err != nil {
		return err
	}
	s.Included = included

	chars, err := c.DiscoverCharacteristics(ctx, nil, s)
	if err != nil {
		return err
	}
	for _, ch := range chars {
		descs, err := c.DiscoverDescriptors(ctx, ch)
		if err != nil {
			return err
		}
		ch.Descriptors = descs
	}
	s.Characteristics = chars
	return nil
}

// DiscoverServices discovers every primary service on the peer whose
// UUID is in filter, or every service if filter is nil. [C6]
func (c *Client) DiscoverServices(ctx context.Context, filter []ble.UUID) ([]*ble.Service, error) {
	return c.discoverServicesRange(ctx, filter, 1, 0xFFFF)
}

// discoverServicesRange is DiscoverServices scoped to [start, end]; phase
// 7's Service Changed handling uses it to rediscover just the affected
// range instead of the whole database.
func (c *Client) discoverServicesRange(ctx context.Context, filter []ble.UUID, start, end uint16) ([]*ble.Service, error) {
	var services []*ble.Service
	for start != 0 && start <= end {
		req := att.NewReadByGroupTypeRequestBuf(start, end, ble.PrimaryServiceUUID)
		rsp, err := c.bearer.SendRequest(ctx, req)
		if err != nil {
			if isAttrNotFound(err) {
				break
			}
			return nil, err
		}
		r := att.ReadByGroupTypeResponse(rsp)
		length := int(r.Length())
		body := rsp[2:]
		next := uint16(0)
		for len(body) >= length {
			entry := body[:length]
			h := le16(entry[0:2])
			svcEnd := le16(entry[2:4])
			u := ble.UUID(entry[4:])
			if ble.Contains(filter, u) {
				services = append(services, &ble.Service{UUID: u, Handle: h, EndHandle: svcEnd})
			}
			next = svcEnd
			body = body[length:]
		}
		if next >= end || next == 0 {
			break
		}
		start = next + 1
	}
	return services, nil
}

// DiscoverIncludedServices discovers the services s includes, recovering
// each included service's UUID with a Read Request when the 128-bit UUID
// doesn't fit in the Include declaration. [C6]
func (c *Client) DiscoverIncludedServices(ctx context.Context, s *ble.Service) ([]*ble.Service, error) {
	var included []*ble.Service
	start := s.Handle
	for start <= s.EndHandle {
		req := att.NewReadByTypeRequestBuf(start, s.EndHandle, ble.IncludeUUID)
		rsp, err := c.bearer.SendRequest(ctx, req)
		if err != nil {
			if isAttrNotFound(err) {
				break
			}
			return nil, err
		}
		r := att.ReadByTypeResponse(rsp)
		length := int(r.Length())
		body := rsp[2:]
		last := start
		for len(body) >= length {
			entry := body[:length]
			h := le16(entry[0:2])
			inclHandle := le16(entry[2:4])
			inclEnd := le16(entry[4:6])
			var u ble.UUID
			if length-6 == 2 {
				u = ble.UUID(entry[6:8])
			} else {
				readRsp, err := c.bearer.SendRequest(ctx, att.NewReadRequest(inclHandle))
				if err != nil {
					return nil, err
				}
				u = ble.UUID(att.ReadResponse(readRsp).AttributeValue())
			}
			included = append(included, &ble.Service{UUID: u, Handle: inclHandle, EndHandle: inclEnd})
			last = h
			body = body[length:]
		}
		if last >= s.EndHandle {
			break
		}
		start = last + 1
	}
	return included, nil
}

// DiscoverCharacteristics discovers every characteristic of s whose UUID
// is in filter, or all of them if filter is nil.
func (c *Client) DiscoverCharacteristics(ctx context.Context, filter []ble.UUID, s *ble.Service) ([]*ble.Characteristic, error) {
	var chars []*ble.Characteristic
	start := s.Handle + 1
	for start <= s.EndHandle {
		req := att.NewReadByTypeRequestBuf(start, s.EndHandle, ble.CharacteristicUUID)
		rsp, err := c.bearer.SendRequest(ctx, req)
		if err != nil {
			if isAttrNotFound(err) {
				break
			}
			return nil, err
		}
		r := att.ReadByTypeResponse(rsp)
		length := int(r.Length())
		body := rsp[2:]
		last := start
		for len(body) >= length {
			entry := body[:length]
			h := le16(entry[0:2])
			props := entry[2]
			valueHandle := le16(entry[3:5])
			u := ble.UUID(entry[5:])
			if ble.Contains(filter, u) {
				chars = append(chars, &ble.Characteristic{
					UUID: u, Property: ble.Property(props), Handle: h, ValueHandle: valueHandle, EndHandle: s.EndHandle,
				})
			}
			last = h
			body = body[length:]
		}
		if last >= s.EndHandle {
			break
		}
		start = last + 1
	}
	// each characteristic's declared end is the next characteristic's
	// handle minus one, or the service's end handle for the last one
	for i, ch := range chars {
		if i+1 < len(chars) {
			ch.EndHandle = chars[i+1].Handle - 1
		} else {
			ch.EndHandle = s.EndHandle
		}
	}
	return chars, nil
}

// DiscoverDescriptors discovers every descriptor of c.
func (c *Client) DiscoverDescriptors(ctx context.Context, char *ble.Characteristic) ([]*ble.Descriptor, error) {
	var descs []*ble.Descriptor
	start := char.ValueHandle + 1
	end := char.EndHandle
	for start <= end && start != 0 {
		req := att.NewFindInformationRequest(start, end)
		rsp, err := c.bearer.SendRequest(ctx, req)
		if err != nil {
			if isAttrNotFound(err) {
				break
			}
			return nil, err
		}
		r := att.FindInformationResponse(rsp)
		is16 := r.Format() == att.FindInformationResponseFormatUUID16
		entrySize := 4
		if !is16 {
			entrySize = 18
		}
		body := rsp[2:]
		last := start
		for len(body) >= entrySize {
			h := le16(body[0:2])
			var u ble.UUID
			if is16 {
				u = ble.UUID(body[2:4])
			} else {
				u = ble.UUID(body[2:18])
			}
			descs = append(descs, &ble.Descriptor{UUID: u, Handle: h})
			last = h
			body = body[entrySize:]
		}
		if last >= end {
			break
		}
		start = last + 1
	}
	return descs, nil
}

// ReadCharacteristic reads c's value with a single Read Request.
func (c *Client) ReadCharacteristic(ctx context.Context, char *ble.Characteristic) ([]byte, error) {
	rsp, err := c.bearer.SendRequest(ctx, att.NewReadRequest(char.ValueHandle))
	if err != nil {
		return nil, err
	}
	return att.ReadResponse(rsp).AttributeValue(), nil
}

// ReadLongCharacteristic reads the whole of a value that may exceed one
// ATT_MTU, issuing Read Blob Requests until the server returns a short
// response (per the Core Spec, the signal that no data remains).
func (c *Client) ReadLongCharacteristic(ctx context.Context, char *ble.Characteristic) ([]byte, error) {
	var out []byte
	offset := uint16(0)
	for {
		rsp, err := c.bearer.SendRequest(ctx, att.NewReadBlobRequest(char.ValueHandle, offset))
		if err != nil {
			return out, err
		}
		part := att.ReadBlobResponse(rsp).PartAttributeValue()
		out = append(out, part...)
		if len(part) < c.bearer.MTU()-1 {
			break
		}
		offset += uint16(len(part))
	}
	return out, nil
}

// WriteCharacteristic writes b to c's value, waiting for a Write Response
// unless noRsp requests a Write Command. A value longer than mtu-3 bytes
// written with a response goes through WriteLongCharacteristic instead.
func (c *Client) WriteCharacteristic(ctx context.Context, char *ble.Characteristic, b []byte, noRsp bool) error {
	if noRsp {
		return c.bearer.SendCommand(att.NewWriteCommand(char.ValueHandle, b))
	}
	if len(b) > c.bearer.MTU()-3 {
		return c.WriteLongCharacteristic(ctx, char, b)
	}
	_, err := c.bearer.SendRequest(ctx, att.NewWriteRequest(char.ValueHandle, b))
	return err
}

// WriteLongCharacteristic performs a reliable long write: queues b as
// Prepare Write fragments, verifies each server echo matches what was
// sent, and commits with Execute Write only if every echo matched. A
// mismatch aborts the queue (Execute Write with flags=0x00) and returns
// ErrReliableWriteMismatch. [SPEC_FULL §4.6a]
func (c *Client) WriteLongCharacteristic(ctx context.Context, char *ble.Characteristic, b []byte) error {
	chunk := c.bearer.MTU() - 5
	if chunk <= 0 {
		chunk = 1
	}
	mismatch := false
	for offset := 0; offset < len(b); offset += chunk {
		end := offset + chunk
		if end > len(b) {
			end = len(b)
		}
		part := b[offset:end]
		req := att.NewPrepareWriteRequest(char.ValueHandle, uint16(offset), part)

		rsp, err := c.bearer.SendRequest(ctx, req)
		if err != nil {
			return err
		}
		echo := att.PrepareWriteResponse(rsp)
		if echo.AttributeHandle() != char.ValueHandle || echo.ValueOffset() != uint16(offset) || string(echo.PartAttributeValue()) != string(part) {
			mismatch = true
			break
		}
	}
	flags := uint8(att.ExecuteWriteCommit)
	if mismatch {
		flags = att.ExecuteWriteCancel
	}
	if _, err := c.bearer.SendRequest(ctx, att.NewExecuteWriteRequest(flags)); err != nil {
		return err
	}
	if mismatch {
		return ble.ErrReliableWriteMismatch
	}
	return nil
}

// ReadDescriptor reads d's value.
func (c *Client) ReadDescriptor(ctx context.Context, d *ble.Descriptor) ([]byte, error) {
	rsp, err := c.bearer.SendRequest(ctx, att.NewReadRequest(d.Handle))
	if err != nil {
		return nil, err
	}
	return att.ReadResponse(rsp).AttributeValue(), nil
}

// WriteDescriptor writes b to d's value.
func (c *Client) WriteDescriptor(ctx context.Context, d *ble.Descriptor, b []byte) error {
	_, err := c.bearer.SendRequest(ctx, att.NewWriteRequest(d.Handle, b))
	return err
}

// Subscribe enables notifications (or indications, if indicate is true)
// from char by writing its Client Characteristic Configuration
// descriptor, and registers h to receive delivered values.
func (c *Client) Subscribe(ctx context.Context, char *ble.Characteristic, cccdHandle uint16, indicate bool, h ble.NotificationHandler) error {
	c.mu.Lock()
	c.subscribers[char.ValueHandle] = append(c.subscribers[char.ValueHandle], h)
	c.mu.Unlock()

	bits := uint16(0x0001)
	if indicate {
		bits = 0x0002
	}
	_, err := c.bearer.SendRequest(ctx, att.NewWriteRequest(cccdHandle, []byte{byte(bits), byte(bits >> 8)}))
	return err
}

// Unsubscribe disables notifications/indications from char and drops all
// local subscribers for it.
func (c *Client) Unsubscribe(ctx context.Context, char *ble.Characteristic, cccdHandle uint16) error {
	c.mu.Lock()
	delete(c.subscribers, char.ValueHandle)
	c.mu.Unlock()
	_, err := c.bearer.SendRequest(ctx, att.NewWriteRequest(cccdHandle, []byte{0x00, 0x00}))
	return err
}

// subscribeServiceChanged implements discovery phase 7: if the peer
// exposes Service Changed with the Indicate property and a CCCD, write
// 0x0002 to that CCCD so future indications drive scoped mirror
// invalidation and rediscovery. A peer with no Service Changed
// characteristic is left alone; that's not an error. [SPEC_FULL §4.5
// phase 7]
func (c *Client) subscribeServiceChanged(ctx context.Context, profile *ble.Profile) error {
	var svcChanged *ble.Characteristic
	for _, s := range profile.Services {
		for _, ch := range s.Characteristics {
			if ch.UUID.Equal(ble.ServiceChangedUUID) && ch.Property&ble.CharIndicate != 0 {
				svcChanged = ch
				break
			}
		}
		if svcChanged != nil {
			break
		}
	}
	if svcChanged == nil {
		return nil
	}
	var cccd *ble.Descriptor
	for _, d := range svcChanged.Descriptors {
		if d.UUID.Equal(ble.ClientCharacteristicConfigUUID) {
			cccd = d
			break
		}
	}
	if cccd == nil {
		return nil
	}
	return c.Subscribe(ctx, svcChanged, cccd.Handle, true, func(data []byte) {
		c.handleServiceChanged(context.Background(), data)
	})
}

// handleServiceChanged is the S6 client flow: decode the (start, end)
// handle range out of an inbound Service Changed indication, invalidate
// the overlapping portion of the mirrored profile, rediscover that range
// (phases 2-6 scoped to it), and only then notify onServiceChange.
// [SPEC_FULL §4.5 phase 7, §8 S6]
func (c *Client) handleServiceChanged(ctx context.Context, data []byte) {
	if len(data) < 4 {
		c.log.Warnf("gatt: service changed indication too short to decode")
		return
	}
	start := le16(data[0:2])
	end := le16(data[2:4])

	c.mu.Lock()
	profile := c.profile
	var removed []*ble.Service
	if profile != nil {
		var kept []*ble.Service
		for _, s := range profile.Services {
			if s.Handle >= start && s.Handle <= end {
				removed = append(removed, s)
				continue
			}
			kept = append(kept, s)
		}
		profile.Services = kept
	}
	c.mu.Unlock()

	if c.cache != nil {
		c.cache.Invalidate(c.conn.RemoteAddr().String())
	}

	added, err := c.discoverServicesRange(ctx, nil, start, end)
	if err != nil {
		c.log.Warnf("gatt: service changed rediscovery failed: %v", err)
		return
	}
	for _, s := range added {
		if err := c.discoverServiceBody(ctx, s); err != nil {
			c.log.Warnf("gatt: service changed rediscovery failed: %v", err)
			return
		}
	}

	c.mu.Lock()
	if c.profile != nil {
		c.profile.Services = append(c.profile.Services, added...)
	}
	onChange := c.onServiceChange
	if c.cache != nil && c.profile != nil {
		c.cache.Store(c.conn.RemoteAddr().String(), c.profile)
	}
	c.mu.Unlock()

	if onChange != nil {
		onChange(added, removed)
	}
}

// ClearSubscriptions drops every local subscriber without touching the
// peer's CCCDs; used when tearing the connection down.
func (c *Client) ClearSubscriptions() {
	c.mu.Lock()
	c.subscribers = make(map[uint16][]ble.NotificationHandler)
	c.mu.Unlock()
}

// CancelConnection closes the underlying Bearer and Conn.
func (c *Client) CancelConnection() error {
	return c.bearer.Close()
}

func isAttrNotFound(err error) bool {
	pe, ok := err.(*ble.ProtocolError)
	return ok && pe.Code == ble.ErrAttrNotFound
}

func le16(b []byte) uint16 { return uint16(b[0]) | uint16(b[1])<<8 }
