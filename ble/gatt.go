package ble

// Property is the characteristic property bitfield. [Vol 3, Part G, 3.3.1.1]
type Property int

// Characteristic property flags.
const (
	CharBroadcast   Property = 0x01 // may be broadcast
	CharRead        Property = 0x02 // may be read
	CharWriteNR     Property = 0x04 // may be written to, with no reply
	CharWrite       Property = 0x08 // may be written to, with a reply
	CharNotify      Property = 0x10 // supports notifications
	CharIndicate    Property = 0x20 // supports indications
	CharSignedWrite Property = 0x40 // supports signed write
	CharExtended    Property = 0x80 // supports extended properties
)

// Permission is a bitfield of the access requirements on an attribute.
// [Vol 3, Part F, 3.2.5]
type Permission int

const (
	PermRead              Permission = 1 << iota // readable without link security
	PermWrite                                    // writable without link security
	PermReadEncrypted                            // readable, link must be encrypted
	PermWriteEncrypted                           // writable, link must be encrypted
	PermReadAuthenticated                        // readable, link must be authenticated
	PermWriteAuthenticated                       // writable, link must be authenticated
	PermReadAuthorized                           // readable, peer must be authorized
	PermWriteAuthorized                          // writable, peer must be authorized
)

// NotificationHandler handles a notification or indication delivered for
// a subscribed characteristic value handle.
type NotificationHandler func(data []byte)

// ServiceChangeHandler receives the result of a Service Changed
// indication's scoped rediscovery: added is what the rediscovery found
// within the changed handle range, removed is what the client's mirror
// previously held there. [C6, C10]
type ServiceChangeHandler func(added, removed []*Service)
