package embedding

import (
	"context"
	"math"

	"github.com/hyperjump/kioku/pkg/utils"
)

// MockEmbedder is a deterministic embedder for tests and offline runs. It returns a
// fixed-dimension unit vector derived from the input hash so that the same input always gets
// the same embedding.
type MockEmbedder struct {
	textDim  int
	imageDim int
}

// NewMockEmbedder returns an embedder producing textDim-long text and imageDim-long image vectors.
func NewMockEmbedder(textDim, imageDim int) *MockEmbedder {
	if textDim <= 0 {
		textDim = 768
	}
	if imageDim <= 0 {
		imageDim = 512
	}
	return &MockEmbedder{textDim: textDim, imageDim: imageDim}
}

// EmbedText returns a deterministic embedding based on the text hash.
func (e *MockEmbedder) EmbedText(ctx context.Context, text string) ([]float32, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return hashVector("text:"+text, e.textDim), nil
}

// EmbedImage returns a deterministic embedding based on the image reference.
func (e *MockEmbedder) EmbedImage(ctx context.Context, image string) ([]float32, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return hashVector("image:"+image, e.imageDim), nil
}

// Close is a no-op for MockEmbedder.
func (e *MockEmbedder) Close() error {
	return nil
}

func hashVector(s string, dim int) []float32 {
	h := hashString(s)
	emb := make([]float32, dim)
	for i := 0; i < dim; i++ {
		emb[i] = float32(math.Sin(float64(h%100003)*float64(i+1))*0.1 + 0.01)
	}
	utils.NormalizeL2(emb)
	return emb
}

// hashString returns a non-negative polynomial hash of s.
func hashString(s string) int {
	h := 0
	for _, c := range s {
		h = 31*h + int(c)
	}
	if h < 0 {
		h = -(h + 1)
	}
	return h
}
