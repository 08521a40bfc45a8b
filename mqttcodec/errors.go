// Package mqttcodec implements the MQTT v3.1.1 wire format: fixed-header
// parsing, the Remaining Length variable-byte integer, and the
// variable-header/payload grammar for every control packet type.
package mqttcodec

import "errors"

// Local error kinds, surfaced to the connection FSM which maps them to a
// Close Reason.
var (
	ErrShortBuffer      = errors.New("mqttcodec: short buffer")
	ErrMalformedVarint  = errors.New("mqttcodec: malformed remaining length")
	ErrLengthTooLarge   = errors.New("mqttcodec: remaining length exceeds 268435455")
	ErrProtocolViolation = errors.New("mqttcodec: protocol violation")
	ErrUnknownPacketType = errors.New("mqttcodec: unknown or reserved packet type")

	ErrInvalidUTF8        = errors.New("mqttcodec: invalid UTF-8 string")
	ErrNullCharacter      = errors.New("mqttcodec: null character not allowed")
	ErrSurrogateCodePoint = errors.New("mqttcodec: UTF-16 surrogate code point not allowed")

	ErrInvalidQoS              = errors.New("mqttcodec: invalid QoS level")
	ErrInvalidFlags            = errors.New("mqttcodec: invalid flags for packet type")
	ErrInvalidReservedType     = errors.New("mqttcodec: reserved packet type (0) not allowed")
	ErrInvalidProtocolName     = errors.New("mqttcodec: invalid protocol name")
	ErrInvalidProtocolVersion  = errors.New("mqttcodec: unsupported protocol version")
	ErrInvalidTopicName        = errors.New("mqttcodec: invalid topic name")
	ErrZeroPacketID            = errors.New("mqttcodec: packet identifier must be non-zero")
)
