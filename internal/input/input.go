// Package input defines the events the touch driver hands to the host input
// layer and a couple of ready-made sinks for them.
package input

import (
	"fmt"
	"sync"

	appLog "siwtouch/internal/log"
)

// Event is the per-point contact transition.
type Event int

const (
	EventDown Event = iota + 1
	EventMove
	EventUp
)

func (e Event) String() string {
	switch e {
	case EventDown:
		return "down"
	case EventMove:
		return "move"
	case EventUp:
		return "up"
	}
	return fmt.Sprintf("Event(%d)", int(e))
}

// Point is one active contact.
type Point struct {
	ID          int
	Tool        int
	Event       Event
	X, Y        int
	Pressure    int
	WidthMajor  int
	WidthMinor  int
	Orientation int
}

// Frame is the decoded result of one absolute-mode interrupt.
type Frame struct {
	Points []Point
	// Mask has bit n set for every track id present in Points.
	Mask uint32
	// Palm is set while a palm contact suppresses finger tracking.
	Palm bool
}

// GestureType names a low-power wake gesture.
type GestureType int

const (
	GestureKnock GestureType = iota + 1
	GesturePassword
	GestureSwipeRight
	GestureSwipeLeft
)

func (g GestureType) String() string {
	switch g {
	case GestureKnock:
		return "knock"
	case GesturePassword:
		return "password"
	case GestureSwipeRight:
		return "swipe_right"
	case GestureSwipeLeft:
		return "swipe_left"
	}
	return fmt.Sprintf("GestureType(%d)", int(g))
}

// Coord is one tap or swipe coordinate.
type Coord struct {
	X, Y int
}

// Gesture is a decoded wake gesture with its coordinate payload.
type Gesture struct {
	Type   GestureType
	Coords []Coord
}

// Reporter receives decoded events. Calls are made with the device lock
// held and must not call back into the device.
type Reporter interface {
	ReportTouch(f Frame)
	ReportGesture(g Gesture)
}

// Nop discards every event.
type Nop struct{}

func (Nop) ReportTouch(Frame)     {}
func (Nop) ReportGesture(Gesture) {}

// LogReporter writes events to the application log.
type LogReporter struct {
	Log *appLog.Logger
	// Secret hides gesture coordinates, as used for knock codes.
	Secret bool
}

func (r LogReporter) ReportTouch(f Frame) {
	if len(f.Points) == 0 {
		r.Log.Debug("touch release", "palm", f.Palm)
		return
	}
	for _, p := range f.Points {
		r.Log.Debug("touch",
			"id", p.ID,
			"event", p.Event,
			"x", p.X,
			"y", p.Y,
			"z", p.Pressure,
		)
	}
}

func (r LogReporter) ReportGesture(g Gesture) {
	if r.Secret && g.Type == GesturePassword {
		r.Log.Info("gesture", "type", g.Type, "points", len(g.Coords))
		return
	}
	r.Log.Info("gesture", "type", g.Type, "coords", fmt.Sprint(g.Coords))
}

// Recorder keeps every event it receives.
type Recorder struct {
	mu       sync.Mutex
	frames   []Frame
	gestures []Gesture
}

func (r *Recorder) ReportTouch(f Frame) {
	r.mu.Lock()
	r.frames = append(r.frames, f)
	r.mu.Unlock()
}

func (r *Recorder) ReportGesture(g Gesture) {
	r.mu.Lock()
	r.gestures = append(r.gestures, g)
	r.mu.Unlock()
}

// Frames returns a copy of the recorded touch frames.
func (r *Recorder) Frames() []Frame {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Frame(nil), r.frames...)
}

// Gestures returns a copy of the recorded gestures.
func (r *Recorder) Gestures() []Gesture {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Gesture(nil), r.gestures...)
}

// Multi fans events out to several reporters.
type Multi []Reporter

func (m Multi) ReportTouch(f Frame) {
	for _, r := range m {
		r.ReportTouch(f)
	}
}

func (m Multi) ReportGesture(g Gesture) {
	for _, r := range m {
		r.ReportGesture(g)
	}
}
