package vector

import (
	"context"
	"testing"

	kerr "github.com/hyperjump/kioku/pkg/errors"
)

func TestMemoryIndex_AddSearch(t *testing.T) {
	idx := NewMemoryIndex()
	if err := idx.Init(10, 3); err != nil {
		t.Fatal(err)
	}
	defer idx.Close()
	ctx := context.Background()

	vecs := [][]float32{
		{1, 0, 0},
		{0.9, 0.1, 0},
		{0, 1, 0},
	}
	for i, v := range vecs {
		if err := idx.Add(ctx, v, int64(i)); err != nil {
			t.Fatal(err)
		}
	}
	if idx.Count() != 3 {
		t.Errorf("Count=%d", idx.Count())
	}

	results, err := idx.SearchKNN(ctx, []float32{1, 0, 0}, 2)
	if err != nil {
		t.Fatal(err)
	}
	if len(results) != 2 {
		t.Fatalf("expected 2 results, got %d", len(results))
	}
	if results[0].ID != 0 || results[1].ID != 1 {
		t.Errorf("unexpected order: %+v", results)
	}
	if results[0].Distance > 1e-9 {
		t.Errorf("exact match distance should be 0, got %f", results[0].Distance)
	}
}

func TestMemoryIndex_Empty(t *testing.T) {
	idx := NewMemoryIndex()
	_ = idx.Init(5, 2)
	results, err := idx.SearchKNN(context.Background(), []float32{1, 0}, 3)
	if err != nil {
		t.Fatal(err)
	}
	if len(results) != 0 {
		t.Errorf("expected empty result, got %d", len(results))
	}
}

func TestMemoryIndex_DimensionMismatch(t *testing.T) {
	idx := NewMemoryIndex()
	_ = idx.Init(5, 2)
	ctx := context.Background()
	err := idx.Add(ctx, []float32{1, 0, 0}, 1)
	if !kerr.IsSizeMismatch(err) {
		t.Fatalf("expected dimension mismatch, got %v", err)
	}
	if idx.Count() != 0 {
		t.Error("failed add must not insert")
	}
	if _, err := idx.SearchKNN(ctx, []float32{1}, 1); !kerr.IsSizeMismatch(err) {
		t.Errorf("expected dimension mismatch on search, got %v", err)
	}
}

func TestMemoryIndex_CapacityAndResize(t *testing.T) {
	idx := NewMemoryIndex()
	_ = idx.Init(2, 2)
	ctx := context.Background()
	_ = idx.Add(ctx, []float32{1, 0}, 1)
	_ = idx.Add(ctx, []float32{0, 1}, 2)

	err := idx.Add(ctx, []float32{1, 1}, 3)
	if !kerr.HasCode(err, kerr.CodeIndexCapacityExceeded) {
		t.Fatalf("expected capacity error, got %v", err)
	}
	if err := idx.Resize(1); err == nil {
		t.Error("shrinking below count must fail")
	}
	if err := idx.Resize(4); err != nil {
		t.Fatal(err)
	}
	if idx.Capacity() != 4 || idx.Count() != 2 {
		t.Errorf("after resize capacity=%d count=%d", idx.Capacity(), idx.Count())
	}
	if err := idx.Add(ctx, []float32{1, 1}, 3); err != nil {
		t.Fatal(err)
	}
	results, _ := idx.SearchKNN(ctx, []float32{0, 1}, 1)
	if len(results) != 1 || results[0].ID != 2 {
		t.Errorf("point lost across resize: %+v", results)
	}
}

func TestMemoryIndex_InitResets(t *testing.T) {
	idx := NewMemoryIndex()
	_ = idx.Init(2, 2)
	_ = idx.Add(context.Background(), []float32{1, 0}, 1)
	if err := idx.Init(3, 4); err != nil {
		t.Fatal(err)
	}
	if idx.Count() != 0 || idx.Dimension() != 4 || idx.Capacity() != 3 {
		t.Errorf("Init did not reset: count=%d dim=%d cap=%d", idx.Count(), idx.Dimension(), idx.Capacity())
	}
	if err := idx.Init(1, 0); err == nil {
		t.Error("expected error for zero dimension")
	}
}

func TestMemoryIndex_Uninitialized(t *testing.T) {
	idx := NewMemoryIndex()
	if err := idx.Add(context.Background(), []float32{1}, 1); err == nil {
		t.Error("expected error adding to uninitialized index")
	}
}

func TestMemoryIndex_CanceledContext(t *testing.T) {
	idx := NewMemoryIndex()
	_ = idx.Init(2, 2)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := idx.Add(ctx, []float32{1, 0}, 1); err == nil {
		t.Error("expected context error")
	}
}
