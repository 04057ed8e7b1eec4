package ble

import "fmt"

// Profile is a flattened view of every service a local GATT server
// exposes, or every service discovered on a remote peer.
type Profile struct {
	Services []*Service
}

// Find returns the first Service, Characteristic, or Descriptor whose UUID
// equals that of the *Service, *Characteristic, or *Descriptor template,
// searching services in order. The template's Handle is not compared. It
// returns nil when nothing matches.
func (p *Profile) Find(target interface{}) interface{} {
	switch t := target.(type) {
	case *Service:
		for _, s := range p.Services {
			if s.UUID.Equal(t.UUID) {
				return s
			}
		}
	case *Characteristic:
		for _, s := range p.Services {
			for _, c := range s.Characteristics {
				if c.UUID.Equal(t.UUID) {
					return c
				}
			}
		}
	case *Descriptor:
		for _, s := range p.Services {
			for _, c := range s.Characteristics {
				for _, d := range c.Descriptors {
					if d.UUID.Equal(t.UUID) {
						return d
					}
				}
			}
		}
	}
	return nil
}

// Service is a GATT primary or secondary service.
type Service struct {
	UUID            UUID
	Characteristics []*Characteristic
	Secondary       bool
	Included        []*Service // services referenced via an Include declaration

	Handle    uint16
	EndHandle uint16
}

// NewService creates a new primary Service using the given UUID.
func NewService(u UUID) *Service {
	return &Service{UUID: u}
}

// AddCharacteristic registers c on s. It panics if s already has a
// characteristic with the same UUID, mirroring the teacher's builder
// discipline of failing fast on a programmer error rather than silently
// producing an ambiguous database.
func (s *Service) AddCharacteristic(c *Characteristic) *Characteristic {
	for _, x := range s.Characteristics {
		if x.UUID.Equal(c.UUID) {
			panic(fmt.Sprintf("ble: service %s already has characteristic %s", s.UUID, c.UUID))
		}
	}
	s.Characteristics = append(s.Characteristics, c)
	return c
}

// NewCharacteristic creates a characteristic with UUID u, adds it to s,
// and returns it.
func (s *Service) NewCharacteristic(u UUID) *Characteristic {
	return s.AddCharacteristic(&Characteristic{UUID: u})
}

// AddIncludedService registers other as included by s.
func (s *Service) AddIncludedService(other *Service) {
	s.Included = append(s.Included, other)
}

// Characteristic is a GATT characteristic: a typed value plus whatever
// descriptors qualify it.
type Characteristic struct {
	UUID        UUID
	Property    Property
	Permissions Permission // applies to the characteristic value attribute
	Descriptors []*Descriptor
	Value       []byte // static value; ignored once a ReadHandler is set

	ReadHandler    ReadHandler
	WriteHandler   WriteHandler
	NotifyHandler  NotifyHandler
	IndicateHandler NotifyHandler

	Handle      uint16
	ValueHandle uint16
	EndHandle   uint16
}

// NewCharacteristic returns an unattached characteristic with UUID u.
func NewCharacteristic(u UUID) *Characteristic {
	return &Characteristic{UUID: u}
}

// AddDescriptor registers d on c and returns it.
func (c *Characteristic) AddDescriptor(d *Descriptor) *Descriptor {
	c.Descriptors = append(c.Descriptors, d)
	return d
}

// NewDescriptor creates a descriptor with UUID u, adds it to c, and
// returns it.
func (c *Characteristic) NewDescriptor(u UUID) *Descriptor {
	return c.AddDescriptor(&Descriptor{UUID: u})
}

// SetValue gives c a static, always-readable value and clears any
// ReadHandler. Mutually exclusive with HandleRead.
func (c *Characteristic) SetValue(b []byte) {
	c.Value = b
	c.ReadHandler = nil
}

// HandleRead installs h as c's read callback, overriding any static Value.
func (c *Characteristic) HandleRead(h ReadHandler) { c.ReadHandler = h }

// HandleWrite installs h as c's write callback.
func (c *Characteristic) HandleWrite(h WriteHandler) { c.WriteHandler = h }

// HandleNotify installs h as c's notify callback and sets the Notify
// property bit.
func (c *Characteristic) HandleNotify(h NotifyHandler) {
	c.NotifyHandler = h
	c.Property |= CharNotify
}

// HandleIndicate installs h as c's indicate callback and sets the
// Indicate property bit.
func (c *Characteristic) HandleIndicate(h NotifyHandler) {
	c.IndicateHandler = h
	c.Property |= CharIndicate
}

// Descriptor is a GATT characteristic descriptor.
type Descriptor struct {
	UUID        UUID
	Permissions Permission
	Value       []byte

	ReadHandler  ReadHandler
	WriteHandler WriteHandler

	Handle uint16
}

// NewDescriptor returns an unattached descriptor with UUID u.
func NewDescriptor(u UUID) *Descriptor {
	return &Descriptor{UUID: u}
}

// SetValue gives d a static, always-readable value and clears any
// ReadHandler.
func (d *Descriptor) SetValue(b []byte) {
	d.Value = b
	d.ReadHandler = nil
}

// HandleRead installs h as d's read callback.
func (d *Descriptor) HandleRead(h ReadHandler) { d.ReadHandler = h }

// HandleWrite installs h as d's write callback.
func (d *Descriptor) HandleWrite(h WriteHandler) { d.WriteHandler = h }
