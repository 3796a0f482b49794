package interpolate_test

import (
	"bytes"
	"errors"
	"testing"

	"github.com/lumenscale/engine/frame"
	"github.com/lumenscale/engine/gpu"
	"github.com/lumenscale/engine/gpu/bufferpool"
	"github.com/lumenscale/engine/interpolate"
)

func upscaledFrom(pixels []byte, w, h int, seq uint64) *frame.Upscaled {
	return &frame.Upscaled{Pixels: pixels, Width: w, Height: h, SourceSequence: seq}
}

func gradientFrame(w, h int, seq uint64) *frame.Upscaled {
	pixels := make([]byte, 4*w*h)
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			i := (y*w + x) * 4
			pixels[i+0] = byte(x * 255 / max(w-1, 1))
			pixels[i+1] = byte(y * 255 / max(h-1, 1))
			pixels[i+2] = byte(seq)
			pixels[i+3] = 255
		}
	}
	return upscaledFrom(pixels, w, h, seq)
}

func TestInterpolate_DimensionMismatch(t *testing.T) {
	// The mismatch check runs before any GPU work, so no context is needed.
	interp := interpolate.New(nil, nil)
	a := gradientFrame(4, 4, 1)
	b := gradientFrame(8, 8, 2)

	_, err := interp.Interpolate(a, b, 0.5)
	if !errors.Is(err, frame.ErrDimensionMismatch) {
		t.Errorf("Interpolate() = %v, want ErrDimensionMismatch", err)
	}
}

func TestInterpolate_EndpointBypass(t *testing.T) {
	interp := interpolate.New(nil, nil)
	a := gradientFrame(4, 4, 1)
	b := gradientFrame(4, 4, 2)

	atZero, err := interp.Interpolate(a, b, 0)
	if err != nil {
		t.Fatalf("Interpolate(t=0) = %v", err)
	}
	if !bytes.Equal(atZero.Pixels, a.Pixels) {
		t.Error("t=0 output differs from frame A")
	}
	if atZero.Prev != 1 || atZero.Next != 2 {
		t.Errorf("t=0 sequence refs = (%d,%d), want (1,2)", atZero.Prev, atZero.Next)
	}

	atOne, err := interp.Interpolate(a, b, 1)
	if err != nil {
		t.Fatalf("Interpolate(t=1) = %v", err)
	}
	if !bytes.Equal(atOne.Pixels, b.Pixels) {
		t.Error("t=1 output differs from frame B")
	}
}

func TestInterpolate_EndpointCopiesDoNotAlias(t *testing.T) {
	interp := interpolate.New(nil, nil)
	a := gradientFrame(4, 4, 1)
	b := gradientFrame(4, 4, 2)

	out, err := interp.Interpolate(a, b, 0)
	if err != nil {
		t.Fatalf("Interpolate(t=0) = %v", err)
	}
	out.Pixels[0] ^= 0xff
	if a.Pixels[0] == out.Pixels[0] {
		t.Error("t=0 output aliases frame A's pixel buffer")
	}
}

func newTestGPU(t *testing.T) (*gpu.Context, *bufferpool.Pool) {
	t.Helper()
	ctx, err := gpu.NewContext()
	if err != nil {
		t.Skipf("no gpu adapter available: %v", err)
	}
	t.Cleanup(ctx.Close)
	pool := bufferpool.New(ctx)
	ctx.SetPool(pool)
	return ctx, pool
}

func TestInterpolate_IdenticalInputsIdentity(t *testing.T) {
	ctx, pool := newTestGPU(t)
	interp := interpolate.New(ctx, pool)
	defer interp.Close()

	a := gradientFrame(16, 16, 1)
	aCopy := gradientFrame(16, 16, 1)

	out, err := interp.Interpolate(a, aCopy, 0.5)
	if err != nil {
		t.Fatalf("Interpolate() = %v", err)
	}
	if !bytes.Equal(out.Pixels, a.Pixels) {
		t.Error("interpolating a frame with itself at t=0.5 is not the identity")
	}
	if out.Width != 16 || out.Height != 16 {
		t.Errorf("output dims = %dx%d, want 16x16", out.Width, out.Height)
	}
}

func TestInterpolate_DeterministicAcrossCalls(t *testing.T) {
	ctx, pool := newTestGPU(t)
	interp := interpolate.New(ctx, pool)
	defer interp.Close()

	a := gradientFrame(16, 16, 1)
	b := gradientFrame(16, 16, 2)

	first, err := interp.Interpolate(a, b, 0.5)
	if err != nil {
		t.Fatalf("first Interpolate() = %v", err)
	}
	second, err := interp.Interpolate(a, b, 0.5)
	if err != nil {
		t.Fatalf("second Interpolate() = %v", err)
	}
	if !bytes.Equal(first.Pixels, second.Pixels) {
		t.Error("identical inputs produced different outputs across calls")
	}
}
