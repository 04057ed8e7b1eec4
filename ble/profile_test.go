package ble

import "testing"

func TestAddCharacteristicPanicsOnDuplicateUUID(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Error("expected a panic when adding a duplicate characteristic UUID")
		}
	}()
	s := NewService(UUID16(0x180D))
	s.NewCharacteristic(UUID16(0x2A37))
	s.NewCharacteristic(UUID16(0x2A37))
}

func TestHandleNotifySetsPropertyBit(t *testing.T) {
	c := NewCharacteristic(UUID16(0x2A37))
	if c.Property&CharNotify != 0 {
		t.Fatal("precondition: CharNotify should not be set yet")
	}
	c.HandleNotify(NotifyHandlerFunc(func(r *ReadRequest, n Notifier) {}))
	if c.Property&CharNotify == 0 {
		t.Error("HandleNotify should set the CharNotify property bit")
	}
}

func TestHandleIndicateSetsPropertyBit(t *testing.T) {
	c := NewCharacteristic(UUID16(0x2A37))
	c.HandleIndicate(NotifyHandlerFunc(func(r *ReadRequest, n Notifier) {}))
	if c.Property&CharIndicate == 0 {
		t.Error("HandleIndicate should set the CharIndicate property bit")
	}
}

func TestSetValueClearsReadHandler(t *testing.T) {
	c := NewCharacteristic(UUID16(0x2A37))
	c.HandleRead(ReadHandlerFunc(func(r *ReadRequest, rsp ReadResponder) {}))
	c.SetValue([]byte{0x01})
	if c.ReadHandler != nil {
		t.Error("SetValue should clear any previously installed ReadHandler")
	}
	if string(c.Value) != "\x01" {
		t.Errorf("got value %x want 0x01", c.Value)
	}
}

func TestProfileFindLocatesByUUID(t *testing.T) {
	s := NewService(UUID16(0x180D))
	c := s.NewCharacteristic(UUID16(0x2A37))
	d := c.NewDescriptor(ClientCharacteristicConfigUUID)
	p := &Profile{Services: []*Service{s}}

	if got := p.Find(&Service{UUID: UUID16(0x180D)}); got != s {
		t.Errorf("Find(service): got %v want %v", got, s)
	}
	if got := p.Find(&Characteristic{UUID: UUID16(0x2A37)}); got != c {
		t.Errorf("Find(characteristic): got %v want %v", got, c)
	}
	if got := p.Find(&Descriptor{UUID: ClientCharacteristicConfigUUID}); got != d {
		t.Errorf("Find(descriptor): got %v want %v", got, d)
	}
	if got := p.Find(&Service{UUID: UUID16(0x1812)}); got != nil {
		t.Errorf("Find(missing service): got %v want nil", got)
	}
}
