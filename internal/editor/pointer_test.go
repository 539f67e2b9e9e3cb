package editor

import (
	"math/rand"
	"testing"
)

var testCanvas = Canvas{Width: 1080, Height: 1350}

// unscaled display: client coordinates equal canvas coordinates.
var identityDisplay = Display{Width: 1080, Height: 1350}

func placedSubject() Subject {
	cfg := DefaultConfig()
	s := newSubject(cfg)
	s.fitInitial(cfg, handle(400, 500))
	return s
}

func mouse(typ PointerEventType, x, y float64) PointerEvent {
	return PointerEvent{Type: typ, Kind: Mouse, ClientX: x, ClientY: y, Display: identityDisplay}
}

func TestDisplayToCanvas(t *testing.T) {
	d := Display{Left: 20, Top: 100, Width: 540, Height: 675}
	p := d.ToCanvas(testCanvas, 290, 437.5)
	if p != (Point{X: 540, Y: 675}) {
		t.Errorf("ToCanvas = %+v, want {540 675}", p)
	}
}

func TestDragScenario(t *testing.T) {
	subj := placedSubject()
	subj.Position = Point{X: 500, Y: 500}

	ix, subj, _ := Step(testCanvas, Interaction{}, subj, mouse(PointerDown, 500, 500))
	if !ix.Dragging {
		t.Fatal("expected drag to start inside the subject")
	}
	ix, subj, out := Step(testCanvas, ix, subj, mouse(PointerMove, 600, 520))
	if !out.Render {
		t.Error("move during drag should request a render")
	}
	if subj.Position != (Point{X: 600, Y: 520}) {
		t.Errorf("position = %+v, want {600 520}", subj.Position)
	}
	ix, _, _ = Step(testCanvas, ix, subj, mouse(PointerUp, 600, 520))
	if ix.Dragging {
		t.Error("pointer up should end the drag")
	}
}

func TestDragOutsideSubjectDoesNotStart(t *testing.T) {
	subj := placedSubject()
	ix, _, _ := Step(testCanvas, Interaction{}, subj, mouse(PointerDown, 5, 5))
	if ix.Dragging {
		t.Error("drag started outside the subject box")
	}
}

func TestNoSecondDragWhileDragging(t *testing.T) {
	subj := placedSubject()
	ix, _ := StartDrag(Interaction{}, subj, subj.Position)
	base := ix.StartPointer
	next, started := StartDrag(ix, subj, Point{X: subj.Position.X + 10, Y: subj.Position.Y})
	if started || next.StartPointer != base {
		t.Error("a second StartDrag replaced the active drag")
	}
}

func TestLockedIgnoresEveryPath(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	for i := 0; i < 200; i++ {
		subj := placedSubject()
		before := subj
		ix := Interaction{Locked: true}
		types := []PointerEventType{PointerDown, PointerMove, PointerMove, PointerUp, PointerLeave}
		for j := 0; j < 20; j++ {
			ev := mouse(types[rng.Intn(len(types))], rng.Float64()*1080, rng.Float64()*1350)
			if rng.Intn(2) == 0 {
				ev.Kind = Touch
				ev.Touches = 1
			}
			var out Outcome
			ix, subj, out = Step(testCanvas, ix, subj, ev)
			if out.PreventDefault {
				t.Fatal("locked canvas must not block scrolling")
			}
		}
		if subj != before || ix.Dragging || !ix.Locked {
			t.Fatalf("locked session changed: %+v %+v", subj, ix)
		}
	}
}

func TestDragClampInvariant(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	for i := 0; i < 100; i++ {
		subj := placedSubject()
		subj.Scale = 0.3 + rng.Float64()*2.2
		ix, ok := StartDrag(Interaction{}, subj, subj.Position)
		if !ok {
			t.Fatal("drag did not start at subject center")
		}
		for j := 0; j < 50; j++ {
			p := Point{X: (rng.Float64() - 0.5) * 10000, Y: (rng.Float64() - 0.5) * 10000}
			subj, _ = Drag(testCanvas, ix, subj, p)
			b := subj.Bounds()
			if b.X+b.W < DragMargin-1e-9 || b.X > 1080-DragMargin+1e-9 ||
				b.Y+b.H < DragMargin-1e-9 || b.Y > 1350-DragMargin+1e-9 {
				t.Fatalf("subject box %+v escaped the drag margin", b)
			}
		}
	}
}

func TestMultiTouchIgnored(t *testing.T) {
	subj := placedSubject()
	ev := PointerEvent{Type: PointerDown, Kind: Touch, Touches: 2,
		ClientX: subj.Position.X, ClientY: subj.Position.Y, Display: identityDisplay}
	ix, _, out := Step(testCanvas, Interaction{}, subj, ev)
	if ix.Dragging || out.PreventDefault {
		t.Error("two-finger touch should be ignored")
	}

	ev.Touches = 1
	ix, _, out = Step(testCanvas, Interaction{}, subj, ev)
	if !ix.Dragging || !out.PreventDefault {
		t.Error("single touch on subject should start a drag and block scrolling")
	}
}

func TestZeroSizedDisplayIgnored(t *testing.T) {
	subj := placedSubject()
	ev := mouse(PointerDown, subj.Position.X, subj.Position.Y)
	ev.Display = Display{}
	ix, _, _ := Step(testCanvas, Interaction{}, subj, ev)
	if ix.Dragging {
		t.Error("drag started with an unmeasured display")
	}
}
