package protocol

import (
	"encoding/binary"
	"errors"
	"fmt"
)

// All multi-byte integers are big-endian.

var (
	// ErrShortBuffer means the buffer holds a truncated frame; callers keep
	// the bytes and read more. It is not a protocol violation.
	ErrShortBuffer = errors.New("protocol: short buffer")

	// ErrUnknownTag means the first byte is not a known message tag.
	ErrUnknownTag = errors.New("protocol: unknown message tag")

	// ErrInvalidMessage means a frame violates a field constraint and can
	// never become valid with more bytes.
	ErrInvalidMessage = errors.New("protocol: invalid message")
)

// Encode serializes a message into its wire frame.
func Encode(m Message) ([]byte, error) {
	switch msg := m.(type) {
	case IdentityRequest:
		buf := make([]byte, 5)
		buf[0] = TagIdentityRequest
		binary.BigEndian.PutUint32(buf[1:5], msg.RequestID)
		return buf, nil

	case IdentityResponse:
		if len(msg.Version) > MaxVersionLen {
			return nil, fmt.Errorf("%w: version length %d exceeds %d", ErrInvalidMessage, len(msg.Version), MaxVersionLen)
		}
		buf := make([]byte, 0, 10+len(msg.Version))
		buf = append(buf, TagIdentityResponse)
		buf = binary.BigEndian.AppendUint32(buf, msg.RequestID)
		buf = append(buf, byte(len(msg.Version)))
		buf = append(buf, msg.Version...)
		buf = binary.BigEndian.AppendUint32(buf, msg.ConfigID)
		return buf, nil

	case Heartbeat:
		return []byte{TagHeartbeat}, nil

	case ConfigurationApply:
		if len(msg.Inputs) > 0xFF {
			return nil, fmt.Errorf("%w: %d inputs exceed frame capacity", ErrInvalidMessage, len(msg.Inputs))
		}
		buf := make([]byte, 0, 6+2*len(msg.Inputs))
		buf = append(buf, TagConfigurationApply)
		buf = binary.BigEndian.AppendUint32(buf, msg.ConfigID)
		buf = append(buf, byte(len(msg.Inputs)))
		for _, in := range msg.Inputs {
			buf = append(buf, in.Pin, byte(in.Type))
		}
		return buf, nil

	case ConfigurationStored:
		buf := make([]byte, 5)
		buf[0] = TagConfigurationStored
		binary.BigEndian.PutUint32(buf[1:5], msg.ConfigID)
		return buf, nil

	case ConfigurationError:
		buf := make([]byte, 5)
		buf[0] = TagConfigurationError
		binary.BigEndian.PutUint32(buf[1:5], msg.ConfigID)
		return buf, nil

	case InputValue:
		buf := make([]byte, 4)
		buf[0] = TagInputValue
		buf[1] = msg.Pin
		binary.BigEndian.PutUint16(buf[2:4], msg.Value)
		return buf, nil

	default:
		return nil, fmt.Errorf("%w: %T", ErrUnknownTag, m)
	}
}

// Decode parses the first complete frame in buf and returns it together with
// the unconsumed remainder. ErrShortBuffer signals a truncated frame (read
// more), ErrUnknownTag and ErrInvalidMessage signal corrupt input the caller
// must skip past.
func Decode(buf []byte) (Message, []byte, error) {
	if len(buf) < 1 {
		return nil, buf, ErrShortBuffer
	}

	switch buf[0] {
	case TagIdentityRequest:
		if len(buf) < 5 {
			return nil, buf, ErrShortBuffer
		}
		msg := IdentityRequest{RequestID: binary.BigEndian.Uint32(buf[1:5])}
		return msg, buf[5:], nil

	case TagIdentityResponse:
		if len(buf) < 6 {
			return nil, buf, ErrShortBuffer
		}
		vlen := int(buf[5])
		if vlen > MaxVersionLen {
			return nil, buf, fmt.Errorf("%w: version length %d exceeds %d", ErrInvalidMessage, vlen, MaxVersionLen)
		}
		total := 6 + vlen + 4
		if len(buf) < total {
			return nil, buf, ErrShortBuffer
		}
		msg := IdentityResponse{
			RequestID: binary.BigEndian.Uint32(buf[1:5]),
			Version:   string(buf[6 : 6+vlen]),
			ConfigID:  binary.BigEndian.Uint32(buf[6+vlen : total]),
		}
		return msg, buf[total:], nil

	case TagHeartbeat:
		return Heartbeat{}, buf[1:], nil

	case TagConfigurationApply:
		if len(buf) < 6 {
			return nil, buf, ErrShortBuffer
		}
		count := int(buf[5])
		total := 6 + 2*count
		if len(buf) < total {
			return nil, buf, ErrShortBuffer
		}
		msg := ConfigurationApply{ConfigID: binary.BigEndian.Uint32(buf[1:5])}
		for i := 0; i < count; i++ {
			off := 6 + 2*i
			msg.Inputs = append(msg.Inputs, InputConfig{Pin: buf[off], Type: InputType(buf[off+1])})
		}
		return msg, buf[total:], nil

	case TagConfigurationStored:
		if len(buf) < 5 {
			return nil, buf, ErrShortBuffer
		}
		return ConfigurationStored{ConfigID: binary.BigEndian.Uint32(buf[1:5])}, buf[5:], nil

	case TagConfigurationError:
		if len(buf) < 5 {
			return nil, buf, ErrShortBuffer
		}
		return ConfigurationError{ConfigID: binary.BigEndian.Uint32(buf[1:5])}, buf[5:], nil

	case TagInputValue:
		if len(buf) < 4 {
			return nil, buf, ErrShortBuffer
		}
		return InputValue{Pin: buf[1], Value: binary.BigEndian.Uint16(buf[2:4])}, buf[4:], nil

	default:
		return nil, buf, fmt.Errorf("%w: 0x%02X", ErrUnknownTag, buf[0])
	}
}
