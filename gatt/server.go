package gatt

import (
	"github.com/knx-ble/attgatt/att"
	"github.com/knx-ble/attgatt/ble"
)

// Server holds the local GATT database definition shared across every
// connection a peripheral accepts; each accepted Conn gets its own
// att.Bearer and att.Server bound to the same att.DB. [C8]
type Server struct {
	svcs []*ble.Service
	db   *att.DB
	log  ble.Logger
}

// NewServer builds a Server exposing the default GAP/GATT services plus
// name, with no application services yet.
func NewServer(name string, log ble.Logger) *Server {
	s := &Server{log: log}
	s.svcs = defaultServices(name)
	s.rebuildDB()
	return s
}

// AddService registers svc and rebuilds the attribute database. Handles
// are reassigned from scratch, which is why this must be followed by a
// Service Changed indication to any already-connected, already-bonded
// peer (ServeConn handles new connections with the fresh layout
// automatically).
func (s *Server) AddService(svc *ble.Service) {
	s.svcs = append(s.svcs, svc)
	s.rebuildDB()
}

// SetServices replaces every application service (the default GAP/GATT
// services are always retained) and rebuilds the database.
func (s *Server) SetServices(svcs []*ble.Service) {
	s.svcs = append(defaultServices(deviceName(s.svcs)), svcs...)
	s.rebuildDB()
}

// DB returns the current attribute database.
func (s *Server) DB() *att.DB { return s.db }

func (s *Server) rebuildDB() {
	s.db = att.NewDB(s.svcs, 1)
}

// ServeConn starts a Bearer and an att.Server for conn against the
// current database, and returns the att.Server so the caller can send
// Service Changed indications or otherwise drive it directly.
func (s *Server) ServeConn(conn ble.Conn) *att.Server {
	srv := att.NewServer(s.db, conn, s.log)
	bearer := att.NewBearer(conn, srv, s.log, att.DefaultBearerConfig)
	srv.Attach(bearer)
	return srv
}

func deviceName(svcs []*ble.Service) string {
	for _, s := range svcs {
		if !s.UUID.Equal(ble.GAPUUID) {
			continue
		}
		for _, c := range s.Characteristics {
			if c.UUID.Equal(ble.DeviceNameUUID) {
				return string(c.Value)
			}
		}
	}
	return ""
}

// defaultServices builds the mandatory GAP service (Device Name,
// Appearance) and GATT service (Service Changed) every GATT server
// exposes. [Vol 3, Part G, 7]
func defaultServices(name string) []*ble.Service {
	gap := ble.NewService(ble.GAPUUID)
	devName := gap.NewCharacteristic(ble.DeviceNameUUID)
	devName.Property = ble.CharRead
	devName.Permissions = ble.PermRead
	devName.SetValue([]byte(name))

	appearance := gap.NewCharacteristic(ble.AppearanceUUID)
	appearance.Property = ble.CharRead
	appearance.Permissions = ble.PermRead
	appearance.SetValue([]byte{0x00, 0x00}) // generic, unspecified

	gatt := ble.NewService(ble.GATTUUID)
	changed := gatt.NewCharacteristic(ble.ServiceChangedUUID)
	changed.Property = ble.CharIndicate
	changed.HandleIndicate(ble.NotifyHandlerFunc(func(r *ble.ReadRequest, n ble.Notifier) {
		<-n.Context().Done()
	}))

	return []*ble.Service{gap, gatt}
}

// NotifyServiceChanged marks the handle range [start,end] changed on the
// GATT service's Service Changed characteristic and indicates it to the
// peer served by srv, if that peer has enabled Service Changed
// indications, so the client invalidates any cached discovery results
// overlapping that range. [C8, S6]
func (s *Server) NotifyServiceChanged(srv *att.Server, start, end uint16) error {
	value := make([]byte, 4)
	value[0], value[1] = byte(start), byte(start>>8)
	value[2], value[3] = byte(end), byte(end>>8)
	return srv.Indicate(ble.ServiceChangedUUID, value)
}
