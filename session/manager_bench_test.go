package session

import (
	"context"
	"fmt"
	"testing"
)

func BenchmarkManagerOpen(b *testing.B) {
	m := NewManager(ManagerConfig{Store: NewMemoryStore()})
	ctx := context.Background()

	b.ResetTimer()
	b.ReportAllocs()

	for i := 0; i < b.N; i++ {
		clientID := fmt.Sprintf("client%d", i)
		_, _, _, _ = m.Open(ctx, clientID, true, 60)
	}
}

func BenchmarkManagerOpenCloseCycle(b *testing.B) {
	m := NewManager(ManagerConfig{Store: NewMemoryStore()})
	ctx := context.Background()

	b.ResetTimer()
	b.ReportAllocs()

	for i := 0; i < b.N; i++ {
		_, _, _, _ = m.Open(ctx, "client1", false, 60)
		_ = m.Close(ctx, "client1", true)
	}
}
