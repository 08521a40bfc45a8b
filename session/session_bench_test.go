package session

import "testing"

func BenchmarkAllocatePktID(b *testing.B) {
	s := New("client1", false, 60)

	b.ResetTimer()
	b.ReportAllocs()

	for i := 0; i < b.N; i++ {
		id, _ := s.AllocatePktID()
		s.AddOutboundInflight(&OutboundMessage{PacketID: id})
		s.RemoveOutboundInflight(id)
	}
}

func BenchmarkAddOutboundInflight(b *testing.B) {
	s := New("client1", false, 60)

	b.ResetTimer()
	b.ReportAllocs()

	for i := 0; i < b.N; i++ {
		id := uint16(i%65535) + 1
		s.AddOutboundInflight(&OutboundMessage{PacketID: id})
	}
}

func BenchmarkAllSubs(b *testing.B) {
	s := New("client1", false, 60)
	for i := 0; i < 100; i++ {
		s.AddSub(string(rune('a'+i%26)), byte(i%3))
	}

	b.ResetTimer()
	b.ReportAllocs()

	for i := 0; i < b.N; i++ {
		_ = s.AllSubs()
	}
}
