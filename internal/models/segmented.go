package models

import "fmt"

// SegmentedVector is a multimodal embedding kept as separate text and image segments.
// The stored layout is the concatenation Text || Image.
type SegmentedVector struct {
	Text  []float32
	Image []float32
}

// NewSegmentedVector splits flat at textLen. It fails when flat is not exactly
// textLen+imageLen long.
func NewSegmentedVector(flat []float32, textLen, imageLen int) (SegmentedVector, error) {
	if textLen <= 0 || imageLen <= 0 {
		return SegmentedVector{}, fmt.Errorf("segment lengths must be positive: text=%d image=%d", textLen, imageLen)
	}
	if len(flat) != textLen+imageLen {
		return SegmentedVector{}, fmt.Errorf("vector length %d does not match segments %d+%d", len(flat), textLen, imageLen)
	}
	return SegmentedVector{Text: flat[:textLen:textLen], Image: flat[textLen:]}, nil
}

// Len returns the total length of both segments.
func (s SegmentedVector) Len() int {
	return len(s.Text) + len(s.Image)
}

// Concat returns the flat Text || Image layout in a new slice.
func (s SegmentedVector) Concat() []float32 {
	out := make([]float32, 0, s.Len())
	out = append(out, s.Text...)
	return append(out, s.Image...)
}
