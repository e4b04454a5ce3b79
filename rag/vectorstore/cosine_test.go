package vectorstore

import (
	"math"
	"testing"
)

func TestCosine(t *testing.T) {
	tests := []struct {
		name string
		a, b []float32
		want float64
	}{
		{"identical", []float32{1, 2, 3}, []float32{1, 2, 3}, 1},
		{"opposite", []float32{1, 0}, []float32{-1, 0}, -1},
		{"orthogonal", []float32{1, 0}, []float32{0, 1}, 0},
		{"scaled is identical", []float32{1, 2}, []float32{10, 20}, 1},
		{"zero vector a", []float32{0, 0}, []float32{1, 1}, 0},
		{"zero vector b", []float32{1, 1}, []float32{0, 0}, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Cosine(tt.a, tt.b)
			if math.Abs(got-tt.want) > 1e-6 {
				t.Errorf("Cosine(%v, %v) = %v, want %v", tt.a, tt.b, got, tt.want)
			}
		})
	}
}

func TestCosine_NeverNaN(t *testing.T) {
	if got := Cosine([]float32{0, 0, 0}, []float32{0, 0, 0}); math.IsNaN(got) {
		t.Error("zero vectors must not produce NaN")
	}
}

func TestTopKCollector_OrderAndBound(t *testing.T) {
	c := newTopKCollector(3)
	scores := []float64{0.1, 0.9, 0.5, 0.7, 0.3, 0.8}
	for i, s := range scores {
		c.add(Match{ID: string(rune('a' + i)), Score: s})
	}

	results := c.results()
	if len(results) != 3 {
		t.Fatalf("expected 3 results, got %d", len(results))
	}

	wantScores := []float64{0.9, 0.8, 0.7}
	for i, want := range wantScores {
		if results[i].Score != want {
			t.Errorf("position %d: expected score %v, got %v", i, want, results[i].Score)
		}
	}
}

func TestTopKCollector_FewerCandidatesThanK(t *testing.T) {
	c := newTopKCollector(10)
	c.add(Match{ID: "only", Score: 0.5})

	results := c.results()
	if len(results) != 1 {
		t.Fatalf("expected 1 result, got %d", len(results))
	}
	if results[0].ID != "only" {
		t.Errorf("unexpected result %v", results[0])
	}
}

func TestTopKCollector_ZeroK(t *testing.T) {
	c := newTopKCollector(0)
	c.add(Match{ID: "x", Score: 1})
	if len(c.results()) != 0 {
		t.Error("k=0 must yield no results")
	}
}

func TestVectorBlobCodec_RoundTrip(t *testing.T) {
	in := []float32{0, -1, 1, 0.25, float32(math.Pi)}
	out, err := decodeVector(encodeVector(in))
	if err != nil {
		t.Fatalf("decode failed: %v", err)
	}
	for i := range in {
		if in[i] != out[i] {
			t.Errorf("element %d: %v != %v", i, in[i], out[i])
		}
	}
}

func TestDecodeVector_RejectsMisalignedBlob(t *testing.T) {
	if _, err := decodeVector(make([]byte, 7)); err == nil {
		t.Error("expected error for misaligned blob")
	}
}
