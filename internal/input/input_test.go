package input

import "testing"

func TestRecorderAndMulti(t *testing.T) {
	var a, b Recorder
	m := Multi{&a, &b, Nop{}}

	m.ReportTouch(Frame{Points: []Point{{ID: 1, Event: EventDown, X: 10, Y: 20}}, Mask: 1 << 1})
	m.ReportGesture(Gesture{Type: GestureKnock, Coords: []Coord{{1, 2}, {3, 4}}})

	for _, r := range []*Recorder{&a, &b} {
		if got := r.Frames(); len(got) != 1 || got[0].Points[0].X != 10 {
			t.Errorf("frames = %+v", got)
		}
		if got := r.Gestures(); len(got) != 1 || len(got[0].Coords) != 2 {
			t.Errorf("gestures = %+v", got)
		}
	}
}

func TestNames(t *testing.T) {
	tests := []struct {
		got, want string
	}{
		{EventDown.String(), "down"},
		{EventUp.String(), "up"},
		{Event(9).String(), "Event(9)"},
		{GestureSwipeLeft.String(), "swipe_left"},
		{GestureType(0).String(), "GestureType(0)"},
	}
	for _, tt := range tests {
		if tt.got != tt.want {
			t.Errorf("got %q, want %q", tt.got, tt.want)
		}
	}
}
