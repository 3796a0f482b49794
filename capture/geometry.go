package capture

import (
	"fmt"
	"sync"

	"github.com/go-gl/glfw/v3.3/glfw"
)

// glfwInitOnce guards glfw.Init, which is process-global. Capture only needs monitor
// geometry and never creates a window, so it initializes glfw once on its own and
// keeps a reference count of in-progress geometry queries; glfw.Terminate is never
// called.
var (
	glfwInitOnce sync.Once
	glfwInitErr  error
	glfwMu       sync.Mutex
	glfwRefs     int
)

func glfwAcquire() error {
	glfwMu.Lock()
	defer glfwMu.Unlock()
	glfwInitOnce.Do(func() {
		glfwInitErr = glfw.Init()
	})
	if glfwInitErr != nil {
		return fmt.Errorf("capture: initializing glfw for monitor geometry: %w", glfwInitErr)
	}
	glfwRefs++
	return nil
}

func glfwRelease() {
	glfwMu.Lock()
	defer glfwMu.Unlock()
	if glfwRefs == 0 {
		return
	}
	glfwRefs--
}

// virtualDesktopBounds returns the bounding rectangle covering every connected
// monitor, used to validate a Region target.
func virtualDesktopBounds() (Rect, error) {
	if err := glfwAcquire(); err != nil {
		return Rect{}, err
	}
	defer glfwRelease()

	monitors := glfw.GetMonitors()
	if len(monitors) == 0 {
		return Rect{}, fmt.Errorf("capture: no monitors reported by glfw")
	}

	minX, minY := int(^uint(0)>>1), int(^uint(0)>>1)
	maxX, maxY := -minX-1, -minY-1

	for _, m := range monitors {
		x, y := m.GetPos()
		mode := m.GetVideoMode()
		if mode == nil {
			continue
		}
		x1, y1 := x+mode.Width, y+mode.Height
		if x < minX {
			minX = x
		}
		if y < minY {
			minY = y
		}
		if x1 > maxX {
			maxX = x1
		}
		if y1 > maxY {
			maxY = y1
		}
	}

	return Rect{X: minX, Y: minY, W: maxX - minX, H: maxY - minY}, nil
}

// fullScreenBounds returns the primary monitor's bounds, used to resolve a FullScreen
// target into a concrete capture rectangle.
func fullScreenBounds() (Rect, error) {
	if err := glfwAcquire(); err != nil {
		return Rect{}, err
	}
	defer glfwRelease()

	m := glfw.GetPrimaryMonitor()
	if m == nil {
		return Rect{}, fmt.Errorf("capture: no primary monitor reported by glfw")
	}
	x, y := m.GetPos()
	mode := m.GetVideoMode()
	if mode == nil {
		return Rect{}, fmt.Errorf("capture: primary monitor reported no video mode")
	}
	return Rect{X: x, Y: y, W: mode.Width, H: mode.Height}, nil
}
