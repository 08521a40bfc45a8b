package mqttcodec

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseFixedHeaderPublish(t *testing.T) {
	// PUBLISH, DUP=1, QoS=1, RETAIN=1, remaining length 10
	data := []byte{0x3B, 0x0A}
	h, n, err := ParseFixedHeader(data)
	require.NoError(t, err)
	assert.Equal(t, PUBLISH, h.Type)
	assert.True(t, h.DUP)
	assert.Equal(t, QoS1, h.QoS)
	assert.True(t, h.Retain)
	assert.Equal(t, uint32(10), h.RemainingLength)
	assert.Equal(t, 2, n)
}

func TestParseFixedHeaderRejectsReservedType(t *testing.T) {
	_, _, err := ParseFixedHeader([]byte{0x00, 0x00})
	assert.ErrorIs(t, err, ErrInvalidReservedType)
}

func TestParseFixedHeaderRejectsBadFlags(t *testing.T) {
	// SUBSCRIBE must carry reserved flags 0010
	_, _, err := ParseFixedHeader([]byte{0x80, 0x00})
	assert.ErrorIs(t, err, ErrInvalidFlags)
}

func TestParseFixedHeaderRejectsInvalidQoS(t *testing.T) {
	// PUBLISH with QoS bits = 11 (3), invalid
	_, _, err := ParseFixedHeader([]byte{0x36, 0x00})
	assert.ErrorIs(t, err, ErrInvalidQoS)
}

func TestParseFixedHeaderShortBuffer(t *testing.T) {
	_, _, err := ParseFixedHeader(nil)
	assert.ErrorIs(t, err, ErrShortBuffer)
}

func TestPacketTypeString(t *testing.T) {
	assert.Equal(t, "CONNECT", CONNECT.String())
	assert.Equal(t, "DISCONNECT", DISCONNECT.String())
	assert.Equal(t, "UNKNOWN", Type(15).String())
}

func TestQoSIsValid(t *testing.T) {
	assert.True(t, QoS0.IsValid())
	assert.True(t, QoS2.IsValid())
	assert.False(t, QoS(3).IsValid())
}
