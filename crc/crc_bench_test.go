package crc

import "testing"

func BenchmarkCompute(b *testing.B) {
	data := []byte("D0")
	b.ReportAllocs()
	b.ResetTimer()

	for i := 0; i < b.N; i++ {
		_ = Compute(data)
	}
}

func BenchmarkComputeMaxFrame(b *testing.B) {
	data := make([]byte, 130)
	for i := range data {
		data[i] = byte('0' + i%10)
	}
	b.ReportAllocs()
	b.ResetTimer()

	for i := 0; i < b.N; i++ {
		_ = Compute(data)
	}
}
