package provider

import (
	"context"
	"fmt"
	"strings"
	"sync/atomic"
)

// StaticGenerator returns a deterministic response built from the prompt. It backs the
// offline "mock" provider and tests.
type StaticGenerator struct {
	Prefix string
	calls  atomic.Int64
}

// Generate echoes the request.
func (g *StaticGenerator) Generate(ctx context.Context, req Request) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	g.calls.Add(1)
	var b strings.Builder
	if g.Prefix != "" {
		b.WriteString(g.Prefix)
		b.WriteString(" ")
	}
	fmt.Fprintf(&b, "Answer to: %s", req.Prompt)
	if req.Image != "" {
		fmt.Fprintf(&b, " (image %s)", req.Image)
	}
	return b.String(), nil
}

// Calls returns how many times Generate succeeded.
func (g *StaticGenerator) Calls() int64 {
	return g.calls.Load()
}
