package session

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew(t *testing.T) {
	s := New("client1", true, 60)
	assert.Equal(t, "client1", s.ClientID)
	assert.True(t, s.CleanSession)
	assert.Equal(t, uint16(60), s.KeepaliveSecs)
	assert.False(t, s.IsConnected())
	assert.Empty(t, s.AllSubs())
}

func TestAllocatePktID(t *testing.T) {
	s := New("client1", false, 60)

	id1, err := s.AllocatePktID()
	require.NoError(t, err)
	assert.Equal(t, uint16(1), id1)

	s.AddOutboundInflight(&OutboundMessage{PacketID: id1})

	id2, err := s.AllocatePktID()
	require.NoError(t, err)
	assert.Equal(t, uint16(2), id2)
	assert.NotEqual(t, id1, id2)
}

func TestAllocatePktIDSkipsInUse(t *testing.T) {
	s := New("client1", false, 60)
	s.AddOutboundInflight(&OutboundMessage{PacketID: 1})
	s.AddOutboundInflight(&OutboundMessage{PacketID: 2})

	id, err := s.AllocatePktID()
	require.NoError(t, err)
	assert.Equal(t, uint16(3), id)
}

func TestAllocatePktIDWraps(t *testing.T) {
	s := New("client1", false, 60)
	s.nextPktID = 65535

	id, err := s.AllocatePktID()
	require.NoError(t, err)
	assert.Equal(t, uint16(65535), id)

	id2, err := s.AllocatePktID()
	require.NoError(t, err)
	assert.Equal(t, uint16(1), id2)
}

func TestAllocatePktIDExhausted(t *testing.T) {
	s := New("client1", false, 60)
	for i := 1; i <= 65535; i++ {
		s.OutboundInflight[uint16(i)] = &OutboundMessage{PacketID: uint16(i)}
	}

	_, err := s.AllocatePktID()
	assert.ErrorIs(t, err, ErrInflightExhausted)
}

func TestConnectDisconnect(t *testing.T) {
	s := New("client1", false, 60)
	assert.False(t, s.IsConnected())

	s.SetActive()
	assert.True(t, s.IsConnected())

	s.SetDisconnected()
	assert.False(t, s.IsConnected())
	assert.False(t, s.DisconnectedAt.IsZero())
}

func TestSubs(t *testing.T) {
	s := New("client1", false, 60)
	s.AddSub("a/b", 1)
	s.AddSub("a/+", 2)

	subs := s.AllSubs()
	assert.Len(t, subs, 2)
	assert.Equal(t, byte(1), subs["a/b"])

	s.RemoveSub("a/b")
	assert.Len(t, s.AllSubs(), 1)
}

func TestOutboundInflightLifecycle(t *testing.T) {
	s := New("client1", false, 60)
	msg := &OutboundMessage{PacketID: 5, Topic: "a/b", QoS: 1, State: AwaitingPuback}
	s.AddOutboundInflight(msg)

	got, ok := s.GetOutboundInflight(5)
	require.True(t, ok)
	assert.Equal(t, "a/b", got.Topic)

	s.SetOutboundState(5, AwaitingPubcomp)
	got, _ = s.GetOutboundInflight(5)
	assert.Equal(t, AwaitingPubcomp, got.State)

	s.RemoveOutboundInflight(5)
	_, ok = s.GetOutboundInflight(5)
	assert.False(t, ok)
}

func TestInboundInflight(t *testing.T) {
	s := New("client1", false, 60)

	alreadyPresent := s.MarkInboundInflight(7)
	assert.False(t, alreadyPresent)

	alreadyPresent = s.MarkInboundInflight(7)
	assert.True(t, alreadyPresent)

	s.ClearInboundInflight(7)
	alreadyPresent = s.MarkInboundInflight(7)
	assert.False(t, alreadyPresent)
}

func TestOfflineQueue(t *testing.T) {
	s := New("client1", false, 60)
	s.EnqueueOffline(&OutboundMessage{Topic: "a/b"})
	s.EnqueueOffline(&OutboundMessage{Topic: "c/d"})

	drained := s.DrainOffline()
	assert.Len(t, drained, 2)
	assert.Empty(t, s.DrainOffline())
}

func TestWill(t *testing.T) {
	s := New("client1", false, 60)
	assert.Nil(t, s.TakeWill())

	s.SetWill(&Will{Topic: "status/gone", Payload: []byte("offline")})
	will := s.TakeWill()
	require.NotNil(t, will)
	assert.Equal(t, "status/gone", will.Topic)

	assert.Nil(t, s.TakeWill())
}

func TestClear(t *testing.T) {
	s := New("client1", false, 60)
	s.AddSub("a/b", 1)
	s.AddOutboundInflight(&OutboundMessage{PacketID: 1})
	s.MarkInboundInflight(2)
	s.EnqueueOffline(&OutboundMessage{Topic: "x"})
	s.SetWill(&Will{Topic: "w"})

	s.Clear()

	assert.Empty(t, s.AllSubs())
	assert.Empty(t, s.OutboundInflight)
	assert.Empty(t, s.InboundInflight)
	assert.Empty(t, s.QueuedWhileOffline)
	assert.Nil(t, s.Will)
}
