// Package capture produces raw frames from a chosen screen-capture target. It is
// polymorphic over platform backends (X11 today; a platform-neutral Synthetic source
// for tests and headless hosts); the selected backend is opaque to callers.
package capture

import (
	"fmt"
	"sync"

	"github.com/lumenscale/engine/frame"
)

// State is the small state machine a Source moves through.
type State int

const (
	Idle State = iota
	Capturing
)

func (s State) String() string {
	if s == Capturing {
		return "Capturing"
	}
	return "Idle"
}

// TargetKind selects which CaptureTarget variant Target carries.
type TargetKind int

const (
	FullScreen TargetKind = iota
	WindowByTitle
	WindowByPid
	Region
)

// Target is the sum type over capture targets. Only the field matching Kind is
// meaningful.
type Target struct {
	Kind   TargetKind
	Title  string
	Pid    uint32
	Bounds Rect
}

// Rect is a target region in desktop coordinates.
type Rect struct {
	X, Y, W, H int
}

// WindowInfo describes one enumerable window, returned by ListWindows.
type WindowInfo struct {
	Title string
	Pid   uint32
}

// Source produces raw frames for a chosen Target. Implementations: x11Source (the
// real backend) and Synthetic (deterministic, for tests and headless hosts).
type Source interface {
	// ListWindows returns human-readable window titles for the WindowByTitle variant.
	// Best-effort; may return an empty slice on headless systems.
	ListWindows() []WindowInfo

	// Start validates target and transitions Idle -> Capturing. Resets the sequence
	// counter. Fails with frame.ErrTargetNotFound for an unknown window title/PID, or
	// frame.ErrInvalidRegion for a region outside the virtual desktop.
	Start(target Target) error

	// Poll returns the next raw frame if one is ready since the previous call, or
	// (nil, false) otherwise. Must not block longer than one frame interval.
	Poll() (*frame.Raw, bool)

	// Stop transitions to Idle and releases platform handles. Always succeeds, even
	// if the target window disappeared mid-session.
	Stop() error
}

// baseState is the State/sequence bookkeeping shared by every Source implementation.
type baseState struct {
	mu       sync.Mutex
	state    State
	sequence uint64
}

func (b *baseState) beginSession() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.state = Capturing
	b.sequence = 0
}

func (b *baseState) endSession() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.state = Idle
}

func (b *baseState) isCapturing() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state == Capturing
}

func (b *baseState) nextSequence() uint64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.sequence++
	return b.sequence
}

// validateRegion checks a Region target's bounds against the virtual desktop bounds
// reported by the geometry source (glfw monitor enumeration in production, a fixed
// rect in tests).
func validateRegion(r Rect, desktop Rect) error {
	if r.W <= 0 || r.H <= 0 {
		return fmt.Errorf("capture: %w: non-positive region size %dx%d", frame.ErrInvalidRegion, r.W, r.H)
	}
	if r.X < desktop.X || r.Y < desktop.Y ||
		r.X+r.W > desktop.X+desktop.W || r.Y+r.H > desktop.Y+desktop.H {
		return fmt.Errorf("capture: %w: region %+v outside virtual desktop %+v", frame.ErrInvalidRegion, r, desktop)
	}
	return nil
}
