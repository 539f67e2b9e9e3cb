package editor

// Interaction is the transient drag state of a session.
type Interaction struct {
	Dragging      bool  `json:"dragging"`
	Locked        bool  `json:"locked"`
	StartPointer  Point `json:"-"`
	StartPosition Point `json:"-"`
}

type PointerEventType string

const (
	PointerDown   PointerEventType = "down"
	PointerMove   PointerEventType = "move"
	PointerUp     PointerEventType = "up"
	PointerLeave  PointerEventType = "leave"
	PointerCancel PointerEventType = "cancel"
)

type PointerKind string

const (
	Mouse PointerKind = "mouse"
	Touch PointerKind = "touch"
)

// Display is the on-screen rectangle the canvas element is shown in, in client pixels.
type Display struct {
	Left   float64 `json:"left"`
	Top    float64 `json:"top"`
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

// ToCanvas maps client coordinates into canvas space, undoing display scaling.
func (d Display) ToCanvas(c Canvas, clientX, clientY float64) Point {
	return Point{
		X: (clientX - d.Left) * float64(c.Width) / d.Width,
		Y: (clientY - d.Top) * float64(c.Height) / d.Height,
	}
}

type PointerEvent struct {
	Type    PointerEventType `json:"type"`
	Kind    PointerKind      `json:"kind"`
	ClientX float64          `json:"clientX"`
	ClientY float64          `json:"clientY"`
	// Touches is the number of active touch points; ignored for mice.
	Touches int     `json:"touches"`
	Display Display `json:"display"`
}

// Outcome tells the input adapter what to do after an event.
type Outcome struct {
	Render         bool `json:"render"`
	PreventDefault bool `json:"preventDefault"`
}

// StartDrag enters Dragging when p hits the subject box and the canvas is unlocked.
func StartDrag(ix Interaction, subj Subject, p Point) (Interaction, bool) {
	if ix.Locked || ix.Dragging || !subj.Present() {
		return ix, false
	}
	if !subj.Bounds().Contains(p) {
		return ix, false
	}
	ix.Dragging = true
	ix.StartPointer = p
	ix.StartPosition = subj.Position
	return ix, true
}

// Drag moves the subject by the pointer delta from the drag baseline and
// clamps it so at least DragMargin of its box stays on canvas.
func Drag(c Canvas, ix Interaction, subj Subject, p Point) (Subject, bool) {
	if !ix.Dragging {
		return subj, false
	}
	x := ix.StartPosition.X + (p.X - ix.StartPointer.X)
	y := ix.StartPosition.Y + (p.Y - ix.StartPointer.Y)
	subj.Position = ClampPosition(c, subj, Point{X: x, Y: y})
	return subj, true
}

// ClampPosition bounds a center position for subj's current box.
func ClampPosition(c Canvas, subj Subject, p Point) Point {
	hw := subj.IntrinsicWidth * subj.Scale / 2
	hh := subj.IntrinsicHeight * subj.Scale / 2
	return Point{
		X: clamp(p.X, -hw+DragMargin, float64(c.Width)+hw-DragMargin),
		Y: clamp(p.Y, -hh+DragMargin, float64(c.Height)+hh-DragMargin),
	}
}

// EndDrag returns to Idle, keeping the lock flag.
func EndDrag(ix Interaction) Interaction {
	return Interaction{Locked: ix.Locked}
}

// Step is the controller's transition function over a raw platform event.
// Multi-touch events are ignored; touches only suppress scrolling while a drag is active.
func Step(c Canvas, ix Interaction, subj Subject, ev PointerEvent) (Interaction, Subject, Outcome) {
	switch ev.Type {
	case PointerDown:
		if ev.Kind == Touch && ev.Touches != 1 {
			return ix, subj, Outcome{}
		}
		if ev.Display.Width <= 0 || ev.Display.Height <= 0 {
			return ix, subj, Outcome{}
		}
		next, started := StartDrag(ix, subj, ev.Display.ToCanvas(c, ev.ClientX, ev.ClientY))
		return next, subj, Outcome{PreventDefault: started && ev.Kind == Touch}
	case PointerMove:
		if !ix.Dragging || (ev.Kind == Touch && ev.Touches != 1) {
			return ix, subj, Outcome{PreventDefault: ix.Dragging && ev.Kind == Touch}
		}
		if ev.Display.Width <= 0 || ev.Display.Height <= 0 {
			return ix, subj, Outcome{}
		}
		moved, _ := Drag(c, ix, subj, ev.Display.ToCanvas(c, ev.ClientX, ev.ClientY))
		return ix, moved, Outcome{Render: true, PreventDefault: ev.Kind == Touch}
	case PointerUp, PointerLeave, PointerCancel:
		return EndDrag(ix), subj, Outcome{}
	}
	return ix, subj, Outcome{}
}
