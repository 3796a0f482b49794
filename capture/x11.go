package capture

import (
	"fmt"
	"time"

	"github.com/BurntSushi/xgbutil"
	"github.com/BurntSushi/xgbutil/ewmh"
	"github.com/jezek/xgb"
	"github.com/jezek/xgb/xproto"

	"github.com/lumenscale/engine/frame"
)

// x11Source captures via the X11 protocol: root-window GetImage for FullScreen/Region,
// and EWMH window-tree queries for WindowByTitle/WindowByPid/ListWindows.
type x11Source struct {
	baseState

	conn *xgb.Conn
	xu   *xgbutil.XUtil
	root xproto.Window

	target    Target
	resolved  Rect // the concrete capture rectangle for this session
	watchWin  xproto.Window
	watchMode bool // true when target names a specific window, false for FullScreen/Region

	minInterval time.Duration
	lastPoll    time.Time
}

// NewX11Source connects to the X server and returns a Source backed by it. xgb (pixel
// reads) and xgbutil (EWMH window metadata) each get their own connection: xgbutil
// wraps its own *xgb.Conn, so both are opened against the same display (this costs
// one extra socket, not correctness).
func NewX11Source() (Source, error) {
	conn, err := xgb.NewConn()
	if err != nil {
		return nil, fmt.Errorf("capture: connecting to X server: %w", err)
	}

	xu, err := xgbutil.NewConn()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("capture: connecting xgbutil to X server: %w", err)
	}

	setup := xproto.Setup(conn)
	screen := setup.DefaultScreen(conn)

	return &x11Source{
		conn:        conn,
		xu:          xu,
		root:        screen.Root,
		minInterval: 16 * time.Millisecond,
	}, nil
}

func (s *x11Source) ListWindows() []WindowInfo {
	clients, err := ewmh.ClientListGet(s.xu)
	if err != nil {
		return nil
	}

	infos := make([]WindowInfo, 0, len(clients))
	for _, win := range clients {
		name, err := ewmh.WmNameGet(s.xu, win)
		if err != nil || name == "" {
			continue
		}
		pid, _ := ewmh.WmPidGet(s.xu, win)
		infos = append(infos, WindowInfo{Title: name, Pid: uint32(pid)})
	}
	return infos
}

func (s *x11Source) Start(target Target) error {
	var resolved Rect
	var watchWin xproto.Window
	watchMode := false

	switch target.Kind {
	case FullScreen:
		bounds, err := fullScreenBounds()
		if err != nil {
			return fmt.Errorf("capture: resolving FullScreen target: %w", err)
		}
		resolved = bounds

	case Region:
		desktop, err := virtualDesktopBounds()
		if err != nil {
			return fmt.Errorf("capture: resolving virtual desktop bounds: %w", err)
		}
		if err := validateRegion(target.Bounds, desktop); err != nil {
			return err
		}
		resolved = target.Bounds

	case WindowByTitle:
		win, bounds, err := s.findWindowByTitle(target.Title)
		if err != nil {
			return err
		}
		watchWin, resolved, watchMode = win, bounds, true

	case WindowByPid:
		win, bounds, err := s.findWindowByPid(target.Pid)
		if err != nil {
			return err
		}
		watchWin, resolved, watchMode = win, bounds, true

	default:
		return fmt.Errorf("capture: unknown target kind %d", target.Kind)
	}

	s.target = target
	s.resolved = resolved
	s.watchWin = watchWin
	s.watchMode = watchMode
	s.lastPoll = time.Time{}
	s.beginSession()
	return nil
}

func (s *x11Source) findWindowByTitle(title string) (xproto.Window, Rect, error) {
	clients, err := ewmh.ClientListGet(s.xu)
	if err != nil {
		return 0, Rect{}, fmt.Errorf("capture: %w: listing clients: %v", frame.ErrTargetNotFound, err)
	}
	for _, win := range clients {
		name, err := ewmh.WmNameGet(s.xu, win)
		if err != nil || name != title {
			continue
		}
		// ewmh hands back its own connection's window ids; the pixel-read connection
		// shares the display, so the id converts over directly.
		bounds, err := s.windowBounds(xproto.Window(win))
		if err != nil {
			return 0, Rect{}, fmt.Errorf("capture: %w: %v", frame.ErrTargetNotFound, err)
		}
		return xproto.Window(win), bounds, nil
	}
	return 0, Rect{}, fmt.Errorf("capture: %w: no window titled %q", frame.ErrTargetNotFound, title)
}

func (s *x11Source) findWindowByPid(pid uint32) (xproto.Window, Rect, error) {
	clients, err := ewmh.ClientListGet(s.xu)
	if err != nil {
		return 0, Rect{}, fmt.Errorf("capture: %w: listing clients: %v", frame.ErrTargetNotFound, err)
	}
	for _, win := range clients {
		winPid, err := ewmh.WmPidGet(s.xu, win)
		if err != nil || uint32(winPid) != pid {
			continue
		}
		bounds, err := s.windowBounds(xproto.Window(win))
		if err != nil {
			return 0, Rect{}, fmt.Errorf("capture: %w: %v", frame.ErrTargetNotFound, err)
		}
		return xproto.Window(win), bounds, nil
	}
	return 0, Rect{}, fmt.Errorf("capture: %w: no window with pid %d", frame.ErrTargetNotFound, pid)
}

func (s *x11Source) windowBounds(win xproto.Window) (Rect, error) {
	geom, err := xproto.GetGeometry(s.conn, xproto.Drawable(win)).Reply()
	if err != nil {
		return Rect{}, err
	}
	translated, err := xproto.TranslateCoordinates(s.conn, win, s.root, 0, 0).Reply()
	if err != nil {
		return Rect{}, err
	}
	return Rect{
		X: int(translated.DstX),
		Y: int(translated.DstY),
		W: int(geom.Width),
		H: int(geom.Height),
	}, nil
}

func (s *x11Source) Poll() (*frame.Raw, bool) {
	if !s.isCapturing() {
		return nil, false
	}

	if time.Since(s.lastPoll) < s.minInterval {
		return nil, false
	}

	rect := s.resolved
	if s.watchMode {
		bounds, err := s.windowBounds(s.watchWin)
		if err != nil {
			// Window disappeared mid-session: subsequent polls return None until stop().
			return nil, false
		}
		rect = bounds
	}

	reply, err := xproto.GetImage(
		s.conn,
		xproto.ImageFormatZPixmap,
		xproto.Drawable(s.root),
		int16(rect.X), int16(rect.Y),
		uint16(rect.W), uint16(rect.H),
		0xffffffff,
	).Reply()
	if err != nil {
		return nil, false
	}

	s.lastPoll = time.Now()
	pixels := bgrxToRGBA(reply.Data, rect.W, rect.H)

	return &frame.Raw{
		Pixels:     pixels,
		Width:      rect.W,
		Height:     rect.H,
		Sequence:   s.nextSequence(),
		CapturedAt: s.lastPoll.UnixNano(),
	}, true
}

func (s *x11Source) Stop() error {
	s.endSession()
	return nil
}

// Close tears down the X server connections. Not part of the Source interface, and the
// pipeline coordinator never calls it; the host calls it once at process shutdown,
// after a final Stop().
func (s *x11Source) Close() {
	s.xu.Conn().Close()
	s.conn.Close()
}

// bgrxToRGBA converts the BGRX/BGRA pixel data X11's GetImage returns (for 24/32-bit
// ZPixmap depth on little-endian hosts) into tightly packed RGBA8.
func bgrxToRGBA(data []byte, w, h int) []byte {
	out := make([]byte, 4*w*h)
	n := w * h
	for i := 0; i < n; i++ {
		b := data[i*4+0]
		g := data[i*4+1]
		r := data[i*4+2]
		out[i*4+0] = r
		out[i*4+1] = g
		out[i*4+2] = b
		out[i*4+3] = 0xff
	}
	return out
}
