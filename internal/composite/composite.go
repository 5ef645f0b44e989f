// Package composite implements the Composite coordinator: the state
// machine orchestrating mode transitions, PIP geometry adjustments, and
// pipeline rebuilds for the mixing stage. It coordinates a scaler pipeline
// and a mixer pipeline, enforcing serial transitions and retries under
// failure.
//
// Grounded on gst-switch's original tools/server/gstcomposite.c for the
// mode/geometry rules and on helix/api/pkg/desktop/gst_pipeline.go's
// bus-error-recovery shape, generalized into a retry-go retry loop.
package composite

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/avast/retry-go/v4"
	"github.com/rs/zerolog"

	"github.com/mithro/gst-switch/internal/sched"
	"github.com/mithro/gst-switch/internal/worker"
)

// Mode is one of the four composition modes.
type Mode int

const (
	ModeNone Mode = iota
	ModePIP
	ModeDualPreview
	ModeDualEqual
)

func (m Mode) String() string {
	switch m {
	case ModeNone:
		return "NONE"
	case ModePIP:
		return "PIP"
	case ModeDualPreview:
		return "DUAL_PREVIEW"
	case ModeDualEqual:
		return "DUAL_EQUAL"
	default:
		return "UNKNOWN"
	}
}

// Rect is an integer-pixel rectangle within the canvas.
type Rect struct {
	X, Y, W, H int
}

// minimum PIP-B size constraints.
func clampPIPMin(r Rect, canvasW, canvasH int) Rect {
	minW := canvasW / 4
	minH := canvasH / 3
	if r.W < minW {
		r.W = minW
	}
	if r.H < minH {
		r.H = minH
	}
	return r
}

// Geometry computes the A and B rectangles for mode on a canvasW×canvasH
// canvas.
func Geometry(mode Mode, canvasW, canvasH int) (a, b Rect) {
	switch mode {
	case ModeNone:
		return Rect{0, 0, canvasW, canvasH}, Rect{}

	case ModePIP:
		a = Rect{0, 0, canvasW, canvasH}
		b = Rect{
			X: round(0.08 * float64(canvasW)),
			Y: round(0.08 * float64(canvasH)),
			W: round(0.30 * float64(canvasW)),
			H: round(0.30 * float64(canvasH)),
		}
		return a, b

	case ModeDualPreview:
		a = Rect{0, 0, round(0.7 * float64(canvasW)), round(0.7 * float64(canvasH))}
		b = Rect{
			X: a.W + 1,
			Y: a.Y,
			W: canvasW - a.X - a.W,
			H: canvasH - a.Y - a.H,
		}
		return a, b

	case ModeDualEqual:
		aw := round(0.5 * float64(canvasW))
		ah := round(0.5 * float64(canvasH))
		a = Rect{X: 0, Y: (canvasH - ah) / 2, W: aw, H: ah}
		b = Rect{
			X: a.W + 1,
			Y: a.Y,
			W: canvasW - a.X - a.W,
			H: a.H,
		}
		return a, b

	default:
		return Rect{}, Rect{}
	}
}

func round(f float64) int {
	if f < 0 {
		return int(f - 0.5)
	}
	return int(f + 0.5)
}

// Events is the minimal publisher for lifecycle signals on a typed event
// bus, instead of dynamic dispatch by signal name. The Composite publishes
// end-transition through it; the server's Dispatcher publishes start-worker.
type Events interface {
	Publish(subject string, payload any)
}

type noopEvents struct{}

func (noopEvents) Publish(string, any) {}

// Composite owns the mixer pipeline and an auxiliary scaler Worker.
type Composite struct {
	log    zerolog.Logger
	events Events

	mu               sync.Mutex // attribute lock: mode, canvas, a/b rects
	mode             Mode
	canvasW, canvasH int
	a, b             Rect

	transitionMu sync.Mutex
	transition   bool

	adjustMu  sync.Mutex
	adjusting bool

	deprecated bool

	mixer  *worker.Worker
	scaler *worker.Worker

	// buildMixerString and buildScalerString are supplied by the
	// Server/caller to render the mode-dependent mixer/scaler descriptions;
	// kept as functions so this
	// package does not depend on pipelinecase directly (avoids an import
	// cycle with Server, which depends on both).
	buildMixerString  func(mode Mode, a, b Rect, canvasW, canvasH int, recording bool) string
	buildScalerString func(mode Mode, a, b Rect) string
	recording         bool
}

// Config bundles the callbacks and initial canvas used to construct a
// Composite.
type Config struct {
	CanvasW, CanvasH  int
	BuildMixerString  func(mode Mode, a, b Rect, canvasW, canvasH int, recording bool) string
	BuildScalerString func(mode Mode, a, b Rect) string
	Events            Events
}

// New constructs a Composite in ModeNone at the given canvas size.
func New(cfg Config, log zerolog.Logger) *Composite {
	events := cfg.Events
	if events == nil {
		events = noopEvents{}
	}
	c := &Composite{
		log:               log.With().Str("component", "composite").Logger(),
		events:            events,
		canvasW:           cfg.CanvasW,
		canvasH:           cfg.CanvasH,
		buildMixerString:  cfg.BuildMixerString,
		buildScalerString: cfg.BuildScalerString,
	}
	c.a, c.b = Geometry(ModeNone, cfg.CanvasW, cfg.CanvasH)
	c.mixer = worker.New("composite-mixer", c, log)
	c.scaler = worker.New("composite-scaler", scalerRole{c}, log)
	return c
}

// SetEvents rebinds the Composite's lifecycle-event publisher, used once a
// control channel comes online after construction.
func (c *Composite) SetEvents(events Events) {
	if events == nil {
		events = noopEvents{}
	}
	c.mu.Lock()
	c.events = events
	c.mu.Unlock()
}

// Mode returns the current composition mode.
func (c *Composite) Mode() Mode {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.mode
}

// RectA and RectB return the current A/B rectangles.
func (c *Composite) RectA() Rect { c.mu.Lock(); defer c.mu.Unlock(); return c.a }
func (c *Composite) RectB() Rect { c.mu.Lock(); defer c.mu.Unlock(); return c.b }

// InTransition reports whether a structural rebuild is pending.
func (c *Composite) InTransition() bool {
	c.transitionMu.Lock()
	defer c.transitionMu.Unlock()
	return c.transition
}

// SetMode requests a mode change. If a transition is already in progress,
// the request is silently dropped rather than queued.
func (c *Composite) SetMode(ctx context.Context, mode Mode) bool {
	c.transitionMu.Lock()
	if c.transition {
		c.transitionMu.Unlock()
		return false
	}
	c.transition = true
	c.transitionMu.Unlock()

	c.mu.Lock()
	a, b := Geometry(mode, c.canvasW, c.canvasH)
	c.mode, c.a, c.b = mode, a, b
	c.mu.Unlock()

	c.mixer.SendEOSOnStop = false
	c.rebuildMixer()
	return true
}

// rebuildMixer tears the mixer down (triggering the ready_to_null → Null()
// → applyParameters+Start path) if it is already running, or builds it
// directly on first use, since Worker.Stop is a no-op on a never-built
// pipeline.
func (c *Composite) rebuildMixer() {
	if !c.mixer.Built() {
		if err := c.applyParameters(context.Background()); err != nil {
			c.log.Error().Err(err).Msg("apply parameters failed")
		}
		return
	}
	c.mixer.Stop(false)
}

// AdjustPIP applies an operator PIP resize/move. A position-only change is
// applied live to the running mixer's B sink pad; a size change stops the
// mixer to trigger a geometry rebuild on the next Start. Both paths clamp
// against the minimum-PIP-B rules at this single setter, per the Design
// Notes' open question about clamping location.
func (c *Composite) AdjustPIP(x, y, w, h int) {
	c.mu.Lock()
	newB := clampPIPMin(Rect{X: x, Y: y, W: w, H: h}, c.canvasW, c.canvasH)
	sizeChanged := newB.W != c.b.W || newB.H != c.b.H
	c.b = newB
	mixer := c.mixer
	c.mu.Unlock()

	if !sizeChanged {
		setLivePadPosition(mixer, newB)
		return
	}

	c.adjustMu.Lock()
	if c.adjusting {
		c.adjustMu.Unlock()
		return
	}
	c.adjusting = true
	c.adjustMu.Unlock()

	c.rebuildMixer()
}

// setLivePadPosition reaches into the running mixer and updates the B
// sink pad's xpos/ypos without a rebuild.
func setLivePadPosition(mixer *worker.Worker, b Rect) {
	elem, err := mixer.GetElement("mix_b")
	if err != nil || elem == nil {
		return
	}
	elem.SetProperty("xpos", b.X)
	elem.SetProperty("ypos", b.Y)
}

// SetRecording toggles whether the mixer also tees to composite_video.
// Takes effect on the next applyParameters (i.e. the next transition).
func (c *Composite) SetRecording(recording bool) {
	c.mu.Lock()
	c.recording = recording
	c.mu.Unlock()
}

// Deprecate marks the Composite terminal: the next time its mixer reaches
// NULL, it will not auto-replay.
func (c *Composite) Deprecate() {
	c.mu.Lock()
	c.deprecated = true
	c.mu.Unlock()
	c.mixer.Stop(false)
}

// ---- worker.Lifecycle for the mixer ----

func (c *Composite) PipelineString() (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.buildMixerString == nil {
		return "", fmt.Errorf("composite: no mixer pipeline builder configured")
	}
	return c.buildMixerString(c.mode, c.a, c.b, c.canvasW, c.canvasH, c.recording), nil
}

func (c *Composite) Prepare(*worker.Worker) error { return nil }

// Alive schedules the ~200ms end-of-transition debounce once the mixer
// reaches PLAYING.
func (c *Composite) Alive(*worker.Worker) {
	sched.After(200*time.Millisecond, func() {
		c.transitionMu.Lock()
		wasTransitioning := c.transition
		c.transition = false
		c.transitionMu.Unlock()

		c.adjustMu.Lock()
		c.adjusting = false
		c.adjustMu.Unlock()

		if wasTransitioning {
			c.events.Publish("gst-switch.events.end-transition", c.Mode())
		}
	})
}

// Null applies the new mode/geometry parameters (rebuilding mixer+scaler)
// and restarts, unless the Composite is deprecated, in which case it ends.
// It always returns NullEnd: applyParameters already rebuilds and starts
// the mixer itself, so the generic NullReplay rebuild would just discard
// the pipeline it had just started.
func (c *Composite) Null(w *worker.Worker) worker.NullOutcome {
	c.mu.Lock()
	deprecated := c.deprecated
	c.mu.Unlock()

	if deprecated {
		c.scaler.Stop(true)
		return worker.NullEnd
	}

	if err := c.applyParameters(context.Background()); err != nil {
		c.log.Error().Err(err).Msg("apply parameters failed")
	}
	return worker.NullEnd
}

func (c *Composite) Missing(names []string) bool { return false }

// Close retries the transition/adjustment under a short rate-limited retry
// policy when the mixer's bus reports an error mid-rebuild.
func (c *Composite) Close(w *worker.Worker) {
	c.transitionMu.Lock()
	inTransition := c.transition
	c.transitionMu.Unlock()

	c.adjustMu.Lock()
	inAdjust := c.adjusting
	c.adjustMu.Unlock()

	if !inTransition && !inAdjust {
		return
	}

	go func() {
		_ = retry.Do(
			func() error {
				if err := c.applyParameters(context.Background()); err != nil {
					return err
				}
				return c.mixer.Start(context.Background())
			},
			retry.Delay(10*time.Millisecond),
			retry.Attempts(0), // 0 retries until success: no retry count limit on rebuild
			retry.DelayType(retry.FixedDelay),
		)
	}()
}

// applyParameters reinitializes both the scaler and the mixer pipelines
// from the current mode/geometry and starts them.
func (c *Composite) applyParameters(ctx context.Context) error {
	if err := c.scaler.Reset(); err != nil {
		return fmt.Errorf("reset scaler: %w", err)
	}
	if err := c.scaler.Start(ctx); err != nil {
		return fmt.Errorf("start scaler: %w", err)
	}
	if err := c.mixer.Reset(); err != nil {
		return fmt.Errorf("reset mixer: %w", err)
	}
	return c.mixer.Start(ctx)
}

// scalerRole adapts Composite into the Lifecycle for the auxiliary scaler
// Worker, which reads composite_a(/b) and writes composite_a_scaled(/b_scaled).
type scalerRole struct {
	c *Composite
}

func (s scalerRole) PipelineString() (string, error) {
	s.c.mu.Lock()
	defer s.c.mu.Unlock()
	if s.c.buildScalerString == nil {
		return "", fmt.Errorf("composite: no scaler pipeline builder configured")
	}
	return s.c.buildScalerString(s.c.mode, s.c.a, s.c.b), nil
}

func (s scalerRole) Prepare(*worker.Worker) error    { return nil }
func (s scalerRole) Alive(*worker.Worker)            {}
func (s scalerRole) Null(*worker.Worker) worker.NullOutcome { return worker.NullEnd }
func (s scalerRole) Missing([]string) bool           { return false }
func (s scalerRole) Close(*worker.Worker)            {}
