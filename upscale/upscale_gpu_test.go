package upscale_test

import (
	"math"
	"testing"

	"github.com/lumenscale/engine/frame"
	"github.com/lumenscale/engine/gpu"
	"github.com/lumenscale/engine/gpu/bufferpool"
	"github.com/lumenscale/engine/upscale"
)

// newTestGPU returns a context and pool, or skips the test on machines without a
// usable adapter (headless CI without a software rasterizer).
func newTestGPU(t *testing.T, poolOpts ...bufferpool.PoolOption) (*gpu.Context, *bufferpool.Pool) {
	t.Helper()
	ctx, err := gpu.NewContext()
	if err != nil {
		t.Skipf("no gpu adapter available: %v", err)
	}
	t.Cleanup(ctx.Close)
	pool := bufferpool.New(ctx, poolOpts...)
	ctx.SetPool(pool)
	return ctx, pool
}

func rawFrom(pixels []byte, w, h int) *frame.Raw {
	return &frame.Raw{Pixels: pixels, Width: w, Height: h, Sequence: 1}
}

func TestNearestIdentityAtScaleOne(t *testing.T) {
	ctx, pool := newTestGPU(t)

	// 4x4 with pixel (x,y) = (x*63, y*63, 0, 255).
	input := make([]byte, 4*4*4)
	for y := 0; y < 4; y++ {
		for x := 0; x < 4; x++ {
			i := (y*4 + x) * 4
			input[i+0] = byte(x * 63)
			input[i+1] = byte(y * 63)
			input[i+2] = 0
			input[i+3] = 255
		}
	}

	u := upscale.NewNearest(ctx, pool)
	defer u.Close()
	if err := u.Initialize(4, 4, 4, 4, upscale.Config{}); err != nil {
		t.Fatalf("Initialize() = %v", err)
	}

	out, err := u.Upscale(rawFrom(input, 4, 4))
	if err != nil {
		t.Fatalf("Upscale() = %v", err)
	}
	if len(out) != len(input) {
		t.Fatalf("output is %d bytes, want %d", len(out), len(input))
	}
	for i := range input {
		if out[i] != input[i] {
			t.Fatalf("byte %d = %d, want %d (nearest at scale 1 must be the identity)", i, out[i], input[i])
		}
	}
}

func TestOutputSizeLaw(t *testing.T) {
	ctx, pool := newTestGPU(t)

	tests := []struct {
		name  string
		inW   int
		inH   int
		scale float64
	}{
		{"1x", 16, 9, 1.0},
		{"1.5x", 17, 11, 1.5},
		{"2x", 32, 18, 2.0},
		{"3.3x", 7, 5, 3.3},
		{"4x", 8, 8, 4.0},
	}

	u := upscale.NewBilinear(ctx, pool)
	defer u.Close()

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			outW := int(math.Round(float64(tt.inW) * tt.scale))
			outH := int(math.Round(float64(tt.inH) * tt.scale))
			if err := u.Initialize(tt.inW, tt.inH, outW, outH, upscale.Config{}); err != nil {
				t.Fatalf("Initialize() = %v", err)
			}
			out, err := u.Upscale(rawFrom(make([]byte, 4*tt.inW*tt.inH), tt.inW, tt.inH))
			if err != nil {
				t.Fatalf("Upscale() = %v", err)
			}
			if want := 4 * outW * outH; len(out) != want {
				t.Errorf("output is %d bytes, want %d", len(out), want)
			}
		})
	}
}

func TestBilinearCentreBlend(t *testing.T) {
	ctx, pool := newTestGPU(t)

	// 2x2: black, red / green, yellow.
	input := []byte{
		0, 0, 0, 255, 255, 0, 0, 255,
		0, 255, 0, 255, 255, 255, 0, 255,
	}

	u := upscale.NewBilinear(ctx, pool)
	defer u.Close()
	if err := u.Initialize(2, 2, 4, 4, upscale.Config{}); err != nil {
		t.Fatalf("Initialize() = %v", err)
	}
	out, err := u.Upscale(rawFrom(input, 2, 2))
	if err != nil {
		t.Fatalf("Upscale() = %v", err)
	}

	// The centre 2x2 block straddles the source's midpoint; its red and green
	// averages land at half intensity.
	var sumR, sumG int
	for _, xy := range [][2]int{{1, 1}, {2, 1}, {1, 2}, {2, 2}} {
		i := (xy[1]*4 + xy[0]) * 4
		sumR += int(out[i+0])
		sumG += int(out[i+1])
	}
	avgR, avgG := sumR/4, sumG/4
	if avgR < 126 || avgR > 128 {
		t.Errorf("centre red average = %d, want 127 +/- 1", avgR)
	}
	if avgG < 126 || avgG > 128 {
		t.Errorf("centre green average = %d, want 127 +/- 1", avgG)
	}
}

func TestBilinearGradientMonotonic(t *testing.T) {
	ctx, pool := newTestGPU(t)

	const inW, inH = 8, 4
	input := make([]byte, 4*inW*inH)
	for y := 0; y < inH; y++ {
		for x := 0; x < inW; x++ {
			i := (y*inW + x) * 4
			v := byte(x * 255 / (inW - 1))
			input[i+0], input[i+1], input[i+2], input[i+3] = v, v, v, 255
		}
	}

	u := upscale.NewBilinear(ctx, pool)
	defer u.Close()
	outW, outH := inW*2, inH*2
	if err := u.Initialize(inW, inH, outW, outH, upscale.Config{}); err != nil {
		t.Fatalf("Initialize() = %v", err)
	}
	out, err := u.Upscale(rawFrom(input, inW, inH))
	if err != nil {
		t.Fatalf("Upscale() = %v", err)
	}

	for y := 0; y < outH; y++ {
		for x := 1; x < outW; x++ {
			prev := out[(y*outW+x-1)*4]
			cur := out[(y*outW+x)*4]
			if cur < prev {
				t.Fatalf("row %d not monotonic: red %d then %d at x=%d", y, prev, cur, x)
			}
		}
	}
}

func TestLanczosProducesFullOutput(t *testing.T) {
	ctx, pool := newTestGPU(t)

	const inW, inH = 16, 16
	input := make([]byte, 4*inW*inH)
	for i := 3; i < len(input); i += 4 {
		input[i] = 255
	}

	u := upscale.NewLanczos(ctx, pool)
	defer u.Close()
	if err := u.Initialize(inW, inH, inW*2, inH*2, upscale.Config{}); err != nil {
		t.Fatalf("Initialize() = %v", err)
	}
	out, err := u.Upscale(rawFrom(input, inW, inH))
	if err != nil {
		t.Fatalf("Upscale() = %v", err)
	}
	if want := 4 * inW * 2 * inH * 2; len(out) != want {
		t.Fatalf("output is %d bytes, want %d", len(out), want)
	}
	// A constant alpha=255 input keeps alpha=255 everywhere in the output.
	for i := 3; i < len(out); i += 4 {
		if out[i] != 255 {
			t.Fatalf("alpha at byte %d = %d, want 255", i, out[i])
		}
	}
}

func TestReinitializeBoundsPoolGrowth(t *testing.T) {
	// Minimal strategy frees the prior sizing's buffers the moment the re-init
	// releases them, so tracked bytes never exceed the larger of the two sizings.
	ctx, pool := newTestGPU(t, bufferpool.WithStrategy(bufferpool.Minimal))

	u := upscale.NewNearest(ctx, pool)
	defer u.Close()

	cfg := upscale.Config{MemoryStrategy: bufferpool.Minimal}
	if err := u.Initialize(1920, 1080, 3840, 2160, cfg); err != nil {
		t.Fatalf("first Initialize() = %v", err)
	}
	afterFirst := pool.TrackedBytes()

	if err := u.Initialize(1280, 720, 2560, 1440, cfg); err != nil {
		t.Fatalf("second Initialize() = %v", err)
	}
	if got := pool.TrackedBytes(); got > afterFirst {
		t.Errorf("tracked bytes grew from %d to %d across a downsizing re-init", afterFirst, got)
	}
}

func TestMinimalStrategyReturnsToBaseline(t *testing.T) {
	ctx, pool := newTestGPU(t, bufferpool.WithStrategy(bufferpool.Minimal))

	u := upscale.NewNearest(ctx, pool)
	if err := u.Initialize(8, 8, 16, 16, upscale.Config{MemoryStrategy: bufferpool.Minimal}); err != nil {
		t.Fatalf("Initialize() = %v", err)
	}
	if _, err := u.Upscale(rawFrom(make([]byte, 4*8*8), 8, 8)); err != nil {
		t.Fatalf("Upscale() = %v", err)
	}
	u.Close()

	if got := pool.TrackedBytes(); got != 0 {
		t.Errorf("tracked bytes after close under Minimal = %d, want 0", got)
	}
}
