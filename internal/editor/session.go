package editor

import (
	"math"
	"sync"
	"time"

	"evermoment/internal/raster"
)

// Scene is a read-only snapshot of everything the compositor draws.
type Scene struct {
	Canvas      Canvas
	Background  Background
	Subject     Subject
	Adjustments Adjustments
	Header      TextOverlay
	Footer      TextOverlay
}

// Session is one user's editing context. Every method is safe to call from
// concurrent requests; they are applied one at a time.
type Session struct {
	ID  string
	cfg Config

	mu          sync.Mutex
	subject     Subject
	adjust      Adjustments
	header      TextOverlay
	footer      TextOverlay
	background  Background
	interaction Interaction
	generation  uint64
	applied     uint64
	lastUsed    time.Time
}

func NewSession(id string, cfg Config) *Session {
	s := &Session{ID: id, cfg: cfg, lastUsed: time.Now()}
	s.subject = newSubject(cfg)
	s.resetLocked()
	return s
}

func (s *Session) Config() Config {
	return s.cfg
}

func (s *Session) touch() {
	s.lastUsed = time.Now()
}

func (s *Session) LastUsed() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastUsed
}

func (s *Session) Scene() Scene {
	s.mu.Lock()
	defer s.mu.Unlock()
	return Scene{
		Canvas:      s.cfg.Canvas,
		Background:  s.background,
		Subject:     s.subject,
		Adjustments: s.adjust,
		Header:      s.header,
		Footer:      s.footer,
	}
}

func (s *Session) Interaction() Interaction {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.interaction
}

// BeginSubject marks the start of a new photo upload and returns its generation.
func (s *Session) BeginSubject() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.touch()
	s.generation++
	return s.generation
}

// ApplySubject installs a processed raster unless the subject has already been
// replaced by a later upload. A later upload that failed does not count.
func (s *Session) ApplySubject(gen uint64, h *raster.Handle) error {
	if h == nil || h.Width() == 0 || h.Height() == 0 {
		return invalid("subject", "processed image is empty")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if gen == 0 || gen > s.generation || gen < s.applied {
		return ErrSuperseded
	}
	s.touch()
	s.applied = gen
	s.interaction = EndDrag(s.interaction)
	s.subject.fitInitial(s.cfg, h)
	return nil
}

// SetScale is the zoom control.
func (s *Session) SetScale(v float64) error {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return invalid("scale", "must be a number")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.touch()
	s.subject.setScale(s.cfg.Subject, v)
	return nil
}

// MoveTo places the subject center at p, clamped like a drag. It ignores the
// lock, which only guards pointer input.
func (s *Session) MoveTo(p Point) error {
	if math.IsNaN(p.X) || math.IsNaN(p.Y) || math.IsInf(p.X, 0) || math.IsInf(p.Y, 0) {
		return invalid("position", "must be finite")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.subject.Present() {
		return invalid("position", "no subject to move")
	}
	s.touch()
	s.subject.Position = ClampPosition(s.cfg.Canvas, s.subject, p)
	return nil
}

// ResetPlacement re-centers the subject at the default scale.
func (s *Session) ResetPlacement() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.touch()
	s.subject.reset(s.cfg)
}

func (s *Session) Adjust(p AdjustmentPatch) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	next, err := s.adjust.apply(p)
	if err != nil {
		return err
	}
	s.touch()
	s.adjust = next
	return nil
}

func (s *Session) EditText(slot TextSlot, p TextPatch) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	target := &s.header
	if slot == Footer {
		target = &s.footer
	} else if slot != Header {
		return invalid("slot", "unknown text slot %q", slot)
	}
	next, err := target.apply(s.cfg, p)
	if err != nil {
		return err
	}
	s.touch()
	*target = next
	return nil
}

func (s *Session) SetBackground(bg Background) error {
	if bg.Kind != BackgroundNone && bg.Raster == nil {
		return invalid("background", "%s background needs an image", bg.Kind)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.touch()
	s.background = bg
	return nil
}

// SetLocked toggles touch-scroll mode. Locking ends any active drag.
func (s *Session) SetLocked(locked bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.touch()
	s.interaction.Locked = locked
	if locked {
		s.interaction = EndDrag(s.interaction)
	}
}

// ToggleLock flips the lock and returns the new state.
func (s *Session) ToggleLock() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.touch()
	s.interaction.Locked = !s.interaction.Locked
	if s.interaction.Locked {
		s.interaction = EndDrag(s.interaction)
	}
	return s.interaction.Locked
}

// Pointer feeds one platform input event through the drag controller.
func (s *Session) Pointer(ev PointerEvent) Outcome {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.touch()
	var out Outcome
	s.interaction, s.subject, out = Step(s.cfg.Canvas, s.interaction, s.subject, ev)
	return out
}

// Reset restores every model to its defaults. The subject raster is kept.
func (s *Session) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.touch()
	s.resetLocked()
}

func (s *Session) resetLocked() {
	s.subject.reset(s.cfg)
	s.adjust = DefaultAdjustments()
	s.header = DefaultTextOverlay(s.cfg)
	s.footer = DefaultTextOverlay(s.cfg)
	s.background = NoBackground()
	s.interaction = Interaction{}
}

// View is the JSON-friendly state of a session.
type View struct {
	ID          string      `json:"id"`
	HasSubject  bool        `json:"hasSubject"`
	Position    Point       `json:"position"`
	Scale       float64     `json:"scale"`
	Bounds      Rect        `json:"bounds"`
	Adjustments Adjustments `json:"adjustments"`
	Header      TextOverlay `json:"header"`
	Footer      TextOverlay `json:"footer"`
	Background  struct {
		Kind     BackgroundKind `json:"kind"`
		ImageRef string         `json:"imageRef,omitempty"`
	} `json:"background"`
	Interaction Interaction `json:"interaction"`
}

func (s *Session) View() View {
	s.mu.Lock()
	defer s.mu.Unlock()
	v := View{
		ID:          s.ID,
		HasSubject:  s.subject.Present(),
		Position:    s.subject.Position,
		Scale:       s.subject.Scale,
		Bounds:      s.subject.Bounds(),
		Adjustments: s.adjust,
		Header:      s.header,
		Footer:      s.footer,
		Interaction: s.interaction,
	}
	v.Background.Kind = s.background.Kind
	v.Background.ImageRef = s.background.ImageRef
	return v
}
