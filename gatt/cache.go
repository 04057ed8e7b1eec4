package gatt

import (
	"sync"

	jsoniter "github.com/json-iterator/go"

	"github.com/knx-ble/attgatt/ble"
)

// cachedProfile is the JSON-serializable projection of a ble.Profile;
// handlers aren't serializable, so only the shape discovery produced
// (UUIDs, properties, handles) is persisted. [C10]
type cachedProfile struct {
	Services []cachedService `json:"services"`
}

type cachedService struct {
	UUID            string               `json:"uuid"`
	Handle          uint16               `json:"handle"`
	EndHandle       uint16               `json:"end_handle"`
	Characteristics []cachedCharacteristic `json:"characteristics"`
}

type cachedCharacteristic struct {
	UUID        string   `json:"uuid"`
	Property    int      `json:"property"`
	Handle      uint16   `json:"handle"`
	ValueHandle uint16   `json:"value_handle"`
	EndHandle   uint16   `json:"end_handle"`
	Descriptors []cachedDescriptor `json:"descriptors"`
}

type cachedDescriptor struct {
	UUID   string `json:"uuid"`
	Handle uint16 `json:"handle"`
}

// MemoryCache is an in-process ble.GattCache that keeps each profile as
// JSON (marshaled with json-iterator) in memory for the process lifetime.
// The zero value is ready to use.
type MemoryCache struct {
	mu      sync.Mutex
	entries map[string][]byte
}

// NewMemoryCache returns an empty MemoryCache.
func NewMemoryCache() *MemoryCache {
	return &MemoryCache{entries: make(map[string][]byte)}
}

func (c *MemoryCache) Load(addr string) (*ble.Profile, bool) {
	c.mu.Lock()
	b, ok := c.entries[addr]
	c.mu.Unlock()
	if !ok {
		return nil, false
	}
	var cp cachedProfile
	if err := jsoniter.Unmarshal(b, &cp); err != nil {
		return nil, false
	}
	return cp.toProfile(), true
}

func (c *MemoryCache) Store(addr string, profile *ble.Profile) {
	cp := fromProfile(profile)
	b, err := jsoniter.Marshal(cp)
	if err != nil {
		return
	}
	c.mu.Lock()
	if c.entries == nil {
		c.entries = make(map[string][]byte)
	}
	c.entries[addr] = b
	c.mu.Unlock()
}

func (c *MemoryCache) Invalidate(addr string) {
	c.mu.Lock()
	delete(c.entries, addr)
	c.mu.Unlock()
}

func fromProfile(p *ble.Profile) cachedProfile {
	cp := cachedProfile{}
	for _, s := range p.Services {
		cs := cachedService{UUID: s.UUID.String(), Handle: s.Handle, EndHandle: s.EndHandle}
		for _, c := range s.Characteristics {
			cc := cachedCharacteristic{
				UUID: c.UUID.String(), Property: int(c.Property),
				Handle: c.Handle, ValueHandle: c.ValueHandle, EndHandle: c.EndHandle,
			}
			for _, d := range c.Descriptors {
				cc.Descriptors = append(cc.Descriptors, cachedDescriptor{UUID: d.UUID.String(), Handle: d.Handle})
			}
			cs.Characteristics = append(cs.Characteristics, cc)
		}
		cp.Services = append(cp.Services, cs)
	}
	return cp
}

func (cp cachedProfile) toProfile() *ble.Profile {
	p := &ble.Profile{}
	for _, cs := range cp.Services {
		s := &ble.Service{UUID: ble.MustParse(cs.UUID), Handle: cs.Handle, EndHandle: cs.EndHandle}
		for _, cc := range cs.Characteristics {
			c := &ble.Characteristic{
				UUID: ble.MustParse(cc.UUID), Property: ble.Property(cc.Property),
				Handle: cc.Handle, ValueHandle: cc.ValueHandle, EndHandle: cc.EndHandle,
			}
			for _, cd := range cc.Descriptors {
				c.Descriptors = append(c.Descriptors, &ble.Descriptor{UUID: ble.MustParse(cd.UUID), Handle: cd.Handle})
			}
			s.Characteristics = append(s.Characteristics, c)
		}
		p.Services = append(p.Services, s)
	}
	return p
}
