package ble

// DefaultMTU is the ATT_MTU in effect on a bearer before any Exchange MTU
// request has completed. [Vol 3, Part F, 3.2.8]
const DefaultMTU = 23

// MaxMTU is the largest ATT_MTU this module negotiates: 512 bytes of
// attribute value plus a 3-byte ATT header, the maximum attribute value
// length permitted by the Core Spec. [Vol 3, Part F, 3.2.9]
const MaxMTU = 512 + 3

// DefaultRequestTimeout is how long a bearer waits for a response to an
// outstanding request before declaring Timeout and becoming unusable.
// [Vol 3, Part F, 3.3.3]
const DefaultRequestTimeout = 30000 // milliseconds; see att.BearerConfig

// DefaultPrepareQueueCap is how many Prepare Write entries a server queues
// before answering Prepare Queue Full. At MTU 23 each entry carries at most
// 18 bytes (mtu-5), so the full queue holds 324 bytes at that MTU.
const DefaultPrepareQueueCap = 18

// Well-known service UUIDs.
var (
	GAPUUID         = UUID16(0x1800)
	GATTUUID        = UUID16(0x1801)
	CurrentTimeUUID = UUID16(0x1805)
	DeviceInfoUUID  = UUID16(0x180A)
	BatteryUUID     = UUID16(0x180F)
	HIDUUID         = UUID16(0x1812)
)

// GATT declaration and descriptor type UUIDs.
var (
	PrimaryServiceUUID   = UUID16(0x2800)
	SecondaryServiceUUID = UUID16(0x2801)
	IncludeUUID          = UUID16(0x2802)
	CharacteristicUUID   = UUID16(0x2803)

	CharacteristicExtendedPropertiesUUID = UUID16(0x2900)
	CharacteristicUserDescriptionUUID    = UUID16(0x2901)
	ClientCharacteristicConfigUUID       = UUID16(0x2902)
	ServerCharacteristicConfigUUID       = UUID16(0x2903)
	CharacteristicPresentationFormatUUID = UUID16(0x2904)
)

// Well-known characteristic UUIDs.
var (
	DeviceNameUUID               = UUID16(0x2A00)
	AppearanceUUID               = UUID16(0x2A01)
	PeripheralPrivacyUUID        = UUID16(0x2A02)
	ReconnectionAddrUUID         = UUID16(0x2A03)
	PeferredParamsUUID           = UUID16(0x2A04)
	ServiceChangedUUID           = UUID16(0x2A05)
	SystemIDUUID                 = UUID16(0x2A23)
	ModelNumberUUID              = UUID16(0x2A24)
	SerialNumberUUID             = UUID16(0x2A25)
	FirmwareRevisionStringUUID   = UUID16(0x2A26)
	HardwareRevisionUUID         = UUID16(0x2A27)
	SoftwareRevisionStringUUID   = UUID16(0x2A28)
	ManufacturerNameUUID         = UUID16(0x2A29)
	PnPIDUUID                    = UUID16(0x2A50)
	CentralAddressResolutionUUID = UUID16(0x2AA6)
)
