package protocol

// Message tags. One byte on the wire, followed by the fixed field layout
// documented on each message type.
const (
	TagIdentityRequest     = 0x01
	TagIdentityResponse    = 0x02
	TagHeartbeat           = 0x03
	TagConfigurationApply  = 0x04
	TagConfigurationStored = 0x05
	TagConfigurationError  = 0x06
	TagInputValue          = 0x07
)

// MaxVersionLen bounds the firmware version string a device may report.
const MaxVersionLen = 32

// InputType selects how the firmware samples a pin.
type InputType uint8

const (
	InputTypeAnalog  InputType = 0x01
	InputTypeDigital InputType = 0x02
)

// Message is one frame of the panel wire protocol.
type Message interface {
	Tag() byte
}

// IdentityRequest asks the device to identify itself.
// Layout: tag, request_id (u32).
type IdentityRequest struct {
	RequestID uint32
}

// IdentityResponse answers an IdentityRequest with the firmware version and
// the configuration currently active on the device.
// Layout: tag, request_id (u32), version_len (u8), version bytes, config_id (u32).
type IdentityResponse struct {
	RequestID uint32
	Version   string
	ConfigID  uint32
}

// Heartbeat is a periodic liveness signal. Layout: tag only.
type Heartbeat struct{}

// InputConfig describes one pin in a ConfigurationApply.
type InputConfig struct {
	Pin  uint8
	Type InputType
}

// ConfigurationApply asks the device to store and activate a configuration.
// Layout: tag, config_id (u32), input_count (u8), input_count x (pin u8, type u8).
type ConfigurationApply struct {
	ConfigID uint32
	Inputs   []InputConfig
}

// ConfigurationStored acknowledges a ConfigurationApply.
// Layout: tag, config_id (u32).
type ConfigurationStored struct {
	ConfigID uint32
}

// ConfigurationError rejects a ConfigurationApply.
// Layout: tag, config_id (u32).
type ConfigurationError struct {
	ConfigID uint32
}

// InputValue carries one raw sample for one pin.
// Layout: tag, pin (u8), value (u16).
type InputValue struct {
	Pin   uint8
	Value uint16
}

func (IdentityRequest) Tag() byte     { return TagIdentityRequest }
func (IdentityResponse) Tag() byte    { return TagIdentityResponse }
func (Heartbeat) Tag() byte           { return TagHeartbeat }
func (ConfigurationApply) Tag() byte  { return TagConfigurationApply }
func (ConfigurationStored) Tag() byte { return TagConfigurationStored }
func (ConfigurationError) Tag() byte  { return TagConfigurationError }
func (InputValue) Tag() byte          { return TagInputValue }
