package capture

import (
	"fmt"
	"time"

	"github.com/lumenscale/engine/frame"
)

// Synthetic is a deterministic Source used by tests and headless hosts: it replays a
// fixed sequence of raw frames (or repeats a single generated pattern) instead of
// talking to a real display server.
type Synthetic struct {
	baseState

	width, height int
	generate      func(seq uint64, w, h int) []byte

	frameInterval time.Duration
	lastPoll      time.Time

	knownWindows []WindowInfo
	failTitles   map[string]bool
	failPids     map[uint32]bool
}

// SyntheticOption configures a Synthetic source during construction.
type SyntheticOption func(*Synthetic)

// WithSyntheticGenerator overrides the default solid-color-per-sequence pixel
// generator with a caller-supplied one, e.g. to exercise a specific upscaler with
// recognizable gradients.
func WithSyntheticGenerator(f func(seq uint64, w, h int) []byte) SyntheticOption {
	return func(s *Synthetic) { s.generate = f }
}

// WithSyntheticWindows seeds the window list ListWindows/WindowByTitle/WindowByPid
// resolve against, letting tests exercise those targets without a real X server.
func WithSyntheticWindows(windows ...WindowInfo) SyntheticOption {
	return func(s *Synthetic) { s.knownWindows = windows }
}

// WithSyntheticFrameInterval sets the minimum spacing between successive Poll hits,
// mimicking a capture backend's native frame rate. Defaults to 0 (every Poll call
// returns a frame).
func WithSyntheticFrameInterval(d time.Duration) SyntheticOption {
	return func(s *Synthetic) { s.frameInterval = d }
}

// NewSynthetic creates a Synthetic source that generates width x height frames.
func NewSynthetic(width, height int, opts ...SyntheticOption) *Synthetic {
	s := &Synthetic{
		width:    width,
		height:   height,
		generate: solidColorFrame,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// solidColorFrame fills every pixel with a color derived from the sequence number, so
// successive frames are trivially distinguishable in tests.
func solidColorFrame(seq uint64, w, h int) []byte {
	r := byte(seq * 37 % 256)
	g := byte(seq * 59 % 256)
	b := byte(seq * 83 % 256)
	out := make([]byte, 4*w*h)
	for i := 0; i < w*h; i++ {
		out[i*4+0] = r
		out[i*4+1] = g
		out[i*4+2] = b
		out[i*4+3] = 0xff
	}
	return out
}

func (s *Synthetic) ListWindows() []WindowInfo {
	return s.knownWindows
}

func (s *Synthetic) Start(target Target) error {
	switch target.Kind {
	case WindowByTitle:
		found := false
		for _, w := range s.knownWindows {
			if w.Title == target.Title {
				found = true
				break
			}
		}
		if !found {
			return fmt.Errorf("capture: %w: no synthetic window titled %q", frame.ErrTargetNotFound, target.Title)
		}
	case WindowByPid:
		found := false
		for _, w := range s.knownWindows {
			if w.Pid == target.Pid {
				found = true
				break
			}
		}
		if !found {
			return fmt.Errorf("capture: %w: no synthetic window with pid %d", frame.ErrTargetNotFound, target.Pid)
		}
	case Region:
		if err := validateRegion(target.Bounds, Rect{X: 0, Y: 0, W: s.width, H: s.height}); err != nil {
			return err
		}
	case FullScreen:
	default:
		return fmt.Errorf("capture: unknown target kind %d", target.Kind)
	}

	s.lastPoll = time.Time{}
	s.beginSession()
	return nil
}

func (s *Synthetic) Poll() (*frame.Raw, bool) {
	if !s.isCapturing() {
		return nil, false
	}
	if s.frameInterval > 0 && time.Since(s.lastPoll) < s.frameInterval {
		return nil, false
	}

	seq := s.nextSequence()
	now := time.Now()
	s.lastPoll = now

	return &frame.Raw{
		Pixels:     s.generate(seq, s.width, s.height),
		Width:      s.width,
		Height:     s.height,
		Sequence:   seq,
		CapturedAt: now.UnixNano(),
	}, true
}

func (s *Synthetic) Stop() error {
	s.endSession()
	return nil
}

var _ Source = &Synthetic{}
var _ Source = &x11Source{}
