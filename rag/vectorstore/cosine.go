package vectorstore

import (
	"container/heap"
	"encoding/binary"
	"fmt"
	"math"
)

// Cosine returns the cosine similarity of two equal-length vectors.
//
// Returns 0 when either vector has zero magnitude, so all-zero vectors
// sort last instead of producing NaN scores.
func Cosine(a, b []float32) float64 {
	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}

// matchHeap is a min-heap of matches by score, used to keep the best
// topK while scanning without sorting the whole candidate set.
type matchHeap []Match

func (h matchHeap) Len() int            { return len(h) }
func (h matchHeap) Less(i, j int) bool  { return h[i].Score < h[j].Score }
func (h matchHeap) Swap(i, j int)       { h[i], h[j] = h[j], h[i] }
func (h *matchHeap) Push(x interface{}) { *h = append(*h, x.(Match)) }
func (h *matchHeap) Pop() interface{} {
	old := *h
	n := len(old)
	m := old[n-1]
	*h = old[:n-1]
	return m
}

// topKCollector accumulates candidates and yields the best topK in
// descending score order.
type topKCollector struct {
	k int
	h matchHeap
}

func newTopKCollector(k int) *topKCollector {
	return &topKCollector{k: k, h: make(matchHeap, 0, k)}
}

func (c *topKCollector) add(m Match) {
	if c.k <= 0 {
		return
	}
	if len(c.h) < c.k {
		heap.Push(&c.h, m)
		return
	}
	if m.Score > c.h[0].Score {
		c.h[0] = m
		heap.Fix(&c.h, 0)
	}
}

func (c *topKCollector) results() []Match {
	out := make([]Match, len(c.h))
	for i := len(out) - 1; i >= 0; i-- {
		out[i] = heap.Pop(&c.h).(Match)
	}
	return out
}

// encodeVector packs a vector as little-endian float32 bytes for BLOB
// storage. This matches how sqlite vector extensions lay out float32
// columns, so the data stays portable.
func encodeVector(vec []float32) []byte {
	buf := make([]byte, 4*len(vec))
	for i, v := range vec {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(v))
	}
	return buf
}

// decodeVector unpacks little-endian float32 bytes.
func decodeVector(data []byte) ([]float32, error) {
	if len(data)%4 != 0 {
		return nil, fmt.Errorf("vector blob length %d is not a multiple of 4", len(data))
	}
	vec := make([]float32, len(data)/4)
	for i := range vec {
		vec[i] = math.Float32frombits(binary.LittleEndian.Uint32(data[i*4:]))
	}
	return vec, nil
}
