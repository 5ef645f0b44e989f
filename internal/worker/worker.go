// Package worker implements the generic pipeline lifecycle manager shared by
// every Case, the Composite, the Recorder, and the Composite's auxiliary
// scaler: a Worker wraps a pipeline built from a declarative description,
// drives it through NULL → READY → PAUSED → PLAYING and back, and recovers
// from asynchronous bus errors. A Worker publishes no lifecycle signals
// itself (neither start-worker nor end-worker); its Lifecycle hooks are the
// only notification that it reached PLAYING or NULL.
//
// Grounded on the bus-poll loop of helix/api/pkg/desktop/gst_pipeline.go's
// watchBus and mic_stream.go's monitorPipeline, generalized into the
// explicit state-machine dispatch table of gst-switch's original
// tools/support/gstworker.c.
package worker

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/go-gst/go-gst/gst"
	"github.com/rs/zerolog"
)

// State mirrors the GStreamer pipeline states the Worker cares about.
type State int

const (
	StateNull State = iota
	StateReady
	StatePaused
	StatePlaying
)

func (s State) String() string {
	switch s {
	case StateNull:
		return "NULL"
	case StateReady:
		return "READY"
	case StatePaused:
		return "PAUSED"
	case StatePlaying:
		return "PLAYING"
	default:
		return "UNKNOWN"
	}
}

// NullOutcome is returned by Lifecycle.Null to tell the Worker whether to
// auto-restart (REPLAY) or terminate (END) after reaching NULL.
type NullOutcome int

const (
	NullEnd NullOutcome = iota
	NullReplay
)

// Lifecycle is the single extension point each pipeline kind (Case,
// Composite, Recorder, scaler) implements, replacing single-dispatch
// subclassing with a small interface of hooks the generic Worker calls at
// each stage of the pipeline's life.
type Lifecycle interface {
	// PipelineString returns the gst-launch-syntax description to build.
	PipelineString() (string, error)
	// Prepare runs after the pipeline object exists but before it is
	// started, e.g. to install an incoming byte-stream on a source element.
	Prepare(w *Worker) error
	// Alive runs when the pipeline reaches PLAYING.
	Alive(w *Worker)
	// Null runs after Stop has moved the pipeline to NULL, whether or not
	// the stop was forced; a bus-observed READY→NULL transition does not
	// call it. Its return value decides whether the Worker auto-replays.
	Null(w *Worker) NullOutcome
	// Missing runs when pipeline construction failed due to missing
	// elements; returning true asks the Worker to retry construction once.
	Missing(names []string) bool
	// Close runs after an ERROR, an escalated WARNING or an EOS bus message
	// stopped the worker.
	Close(w *Worker)
}

// BaseLifecycle provides no-op defaults so concrete Lifecycle
// implementations only need to override what they care about, the way
// gst-switch's Case/Composite/Recorder each only override a handful of the
// original GstWorker virtual methods.
type BaseLifecycle struct{}

func (BaseLifecycle) Prepare(*Worker) error         { return nil }
func (BaseLifecycle) Alive(*Worker)                 {}
func (BaseLifecycle) Null(*Worker) NullOutcome      { return NullEnd }
func (BaseLifecycle) Missing([]string) bool         { return false }
func (BaseLifecycle) Close(*Worker)                 {}

// Worker is the generic lifecycle wrapper around a media pipeline.
type Worker struct {
	Name string
	role Lifecycle
	log  zerolog.Logger

	mu       sync.Mutex
	pipeline *gst.Pipeline
	state    State

	pausedForBuffering bool
	SendEOSOnStop      bool
	AutoReplay         bool

	shutdownMu   sync.Mutex
	shutdownCond *sync.Cond
	eosReached   bool

	busCancel context.CancelFunc
	busDone   chan struct{}
}

// New constructs a Worker around role, identified by name for logging.
func New(name string, role Lifecycle, log zerolog.Logger) *Worker {
	w := &Worker{
		Name: name,
		role: role,
		log:  log.With().Str("worker", name).Logger(),
	}
	w.shutdownCond = sync.NewCond(&w.shutdownMu)
	return w
}

// State returns the Worker's last-observed pipeline state.
func (w *Worker) State() State {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.state
}

// Built reports whether the pipeline has been constructed at least once.
// Callers use this to distinguish "never started" (Stop is a no-op) from
// "currently at NULL after a teardown" when deciding how to kick off a
// rebuild.
func (w *Worker) Built() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.pipeline != nil
}

// build lazily constructs the pipeline from role.PipelineString, retrying
// once if construction failed solely due to missing elements and
// role.Missing(names) asks for a retry.
func (w *Worker) build() error {
	if w.pipeline != nil {
		return nil
	}

	desc, err := w.role.PipelineString()
	if err != nil {
		return fmt.Errorf("%s: build pipeline string: %w", w.Name, err)
	}

	pipeline, err := gst.NewPipelineFromString(desc)
	if err != nil {
		missing := missingElementNames(err, desc)
		if len(missing) > 0 && w.role.Missing(missing) {
			pipeline, err = gst.NewPipelineFromString(desc)
		}
		if err != nil {
			return fmt.Errorf("%s: construct pipeline: %w", w.Name, err)
		}
	}

	w.pipeline = pipeline
	if err := w.role.Prepare(w); err != nil {
		w.pipeline.SetState(gst.StateNull)
		w.pipeline = nil
		return fmt.Errorf("%s: prepare: %w", w.Name, err)
	}
	return nil
}

// missingElementNames extracts plausible missing-element names from a
// gst-launch parse error message. The go-gst parser reports missing
// elements by name in its error text; this is a best-effort scrape used
// only to drive the Missing() retry hook.
func missingElementNames(err error, desc string) []string {
	if err == nil {
		return nil
	}
	msg := err.Error()
	if !strings.Contains(strings.ToLower(msg), "no such element") &&
		!strings.Contains(strings.ToLower(msg), "missing") {
		return nil
	}
	var names []string
	for _, tok := range strings.Fields(desc) {
		if strings.Contains(msg, tok) {
			names = append(names, tok)
		}
	}
	return names
}

// Start prepares the pipeline (building it if necessary), then moves it to
// READY, PAUSED, and PLAYING in sequence.
func (w *Worker) Start(ctx context.Context) error {
	w.mu.Lock()
	if err := w.build(); err != nil {
		w.mu.Unlock()
		return err
	}
	pipeline := w.pipeline
	w.mu.Unlock()

	w.startBusWatch(ctx)

	if err := pipeline.SetState(gst.StateReady); err != nil {
		return fmt.Errorf("%s: set state READY: %w", w.Name, err)
	}
	return nil
}

// Reset tears the pipeline to NULL, releases it, and rebuilds from the
// current description.
func (w *Worker) Reset() error {
	w.mu.Lock()
	if w.pipeline != nil {
		w.pipeline.SetState(gst.StateNull)
		w.pipeline = nil
	}
	w.state = StateNull
	w.mu.Unlock()

	return w.build()
}

// GetElement returns the pipeline's named child, if present.
func (w *Worker) GetElement(name string) (*gst.Element, error) {
	w.mu.Lock()
	pipeline := w.pipeline
	w.mu.Unlock()
	if pipeline == nil {
		return nil, fmt.Errorf("%s: pipeline not built", w.Name)
	}
	return pipeline.GetElementByName(name)
}

// Stop tears the pipeline down. If it is PLAYING and SendEOSOnStop is set
// and force is false, Stop sends EOS downstream and blocks on the shutdown
// condition variable until the bus actually delivers EOS (or the grace
// period elapses); otherwise it moves directly to NULL.
//
// The bus watch is retired before the pipeline reaches NULL, so the
// READY→NULL STATE_CHANGED message it would otherwise dispatch through
// handleStateChanged never arrives; Stop drives role.Null itself once the
// transition is complete, exactly mirroring what that branch would have
// done.
func (w *Worker) Stop(force bool) {
	w.mu.Lock()
	pipeline := w.pipeline
	playing := w.state == StatePlaying
	sendEOS := w.SendEOSOnStop
	w.mu.Unlock()

	if pipeline == nil {
		return
	}

	if playing && sendEOS && !force {
		pipeline.SendEvent(gst.NewEOSEvent())
		w.waitForEOS(5 * time.Second)
	}

	w.stopBusWatch()

	w.mu.Lock()
	if w.pipeline != nil {
		w.pipeline.SetState(gst.StateNull)
	}
	w.state = StateNull
	w.mu.Unlock()

	w.dispatchNull()
}

// dispatchNull invokes the lifecycle's Null hook and honors a NullReplay
// outcome by discarding the pipeline object and rebuilding it (unstarted).
// Stop is its only caller; handleStateChanged only records a bus-observed
// READY→NULL transition. Lifecycles that restart themselves from within
// Null (as Composite does via applyParameters) should return NullEnd.
func (w *Worker) dispatchNull() {
	outcome := w.role.Null(w)
	if outcome == NullReplay {
		w.mu.Lock()
		w.pipeline = nil
		w.mu.Unlock()
		if err := w.build(); err != nil {
			w.log.Error().Err(err).Msg("replay rebuild failed")
		}
	}
}

// waitForEOS blocks until the sync bus handler signals EOS or timeout
// elapses; a timeout falls back to a forced NULL transition.
func (w *Worker) waitForEOS(timeout time.Duration) {
	done := make(chan struct{})
	go func() {
		w.shutdownMu.Lock()
		for !w.eosReached {
			w.shutdownCond.Wait()
		}
		w.shutdownMu.Unlock()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(timeout):
		w.log.Warn().Msg("timed out waiting for EOS; forcing NULL")
	}
}

// startBusWatch launches the per-worker bus-polling goroutine, grounded on
// gst_pipeline.go's watchBus / mic_stream.go's monitorPipeline.
func (w *Worker) startBusWatch(ctx context.Context) {
	w.mu.Lock()
	pipeline := w.pipeline
	w.mu.Unlock()
	if pipeline == nil {
		return
	}

	busCtx, cancel := context.WithCancel(ctx)
	w.busCancel = cancel
	w.busDone = make(chan struct{})

	go func() {
		defer close(w.busDone)
		bus := pipeline.GetPipelineBus()
		if bus == nil {
			return
		}
		for {
			select {
			case <-busCtx.Done():
				return
			default:
			}
			msg := bus.TimedPop(gst.ClockTime(100 * time.Millisecond))
			if msg == nil {
				continue
			}
			w.handleMessage(msg)
		}
	}()
}

func (w *Worker) stopBusWatch() {
	if w.busCancel != nil {
		w.busCancel()
		<-w.busDone
		w.busCancel = nil
	}
}

// handleMessage applies the bus-message handling policy.
//
// The stop+close calls below run on a separate goroutine rather than
// inline: handleMessage executes on the bus-watch goroutine itself, and
// Stop's stopBusWatch blocks until that same goroutine exits, which it
// never could if Stop ran synchronously here.
func (w *Worker) handleMessage(msg *gst.Message) {
	switch msg.Type() {
	case gst.MessageError:
		gerr := msg.ParseError()
		w.log.Error().Err(gerr).Msg("pipeline error")
		go func() {
			w.Stop(true)
			w.role.Close(w)
		}()

	case gst.MessageWarning:
		gwarn := msg.ParseWarning()
		if gwarn != nil && strings.Contains(strings.ToLower(gwarn.Error()), "error:") {
			w.log.Error().Err(gwarn).Msg("warning escalated to error")
			go func() {
				w.Stop(true)
				w.role.Close(w)
			}()
			return
		}
		w.log.Warn().Err(gwarn).Msg("pipeline warning")

	case gst.MessageEOS:
		w.shutdownMu.Lock()
		w.eosReached = true
		w.shutdownCond.Broadcast()
		w.shutdownMu.Unlock()
		go func() {
			w.Stop(true)
			w.role.Close(w)
		}()

	case gst.MessageBuffering:
		percent := msg.ParseBuffering()
		w.mu.Lock()
		paused := w.pausedForBuffering
		pipeline := w.pipeline
		w.mu.Unlock()
		if percent < 100 && !paused {
			if pipeline != nil {
				pipeline.SetState(gst.StatePaused)
			}
			w.mu.Lock()
			w.pausedForBuffering = true
			w.mu.Unlock()
		} else if percent >= 100 && paused {
			if pipeline != nil {
				pipeline.SetState(gst.StatePlaying)
			}
			w.mu.Lock()
			w.pausedForBuffering = false
			w.mu.Unlock()
		}

	case gst.MessageStateChanged:
		w.handleStateChanged(msg)
	}
}

// handleStateChanged runs the NULL↔READY↔PAUSED↔PLAYING transition table,
// but only for state-changed messages whose source is the pipeline itself
// (not a child element).
func (w *Worker) handleStateChanged(msg *gst.Message) {
	w.mu.Lock()
	pipeline := w.pipeline
	w.mu.Unlock()
	if pipeline == nil || msg.Source() != pipeline.GetName() {
		return
	}

	oldState, newState := msg.ParseStateChanged()

	switch {
	case oldState == gst.StateNull && newState == gst.StateReady:
		w.setState(StateReady)
		pipeline.SetState(gst.StatePaused)

	case oldState == gst.StateReady && newState == gst.StatePaused:
		w.setState(StatePaused)
		w.mu.Lock()
		buffering := w.pausedForBuffering
		w.mu.Unlock()
		if !buffering {
			pipeline.SetState(gst.StatePlaying)
		}

	case oldState == gst.StatePaused && newState == gst.StatePlaying:
		w.setState(StatePlaying)
		w.role.Alive(w)

	// A READY→NULL transition is always driven by Stop, which has already
	// retired the bus watch by the time the pipeline reaches NULL and
	// dispatches role.Null itself; there is nothing left for the bus
	// goroutine to do here.
	case oldState == gst.StateReady && newState == gst.StateNull:
		w.setState(StateNull)
	}
}

func (w *Worker) setState(s State) {
	w.mu.Lock()
	w.state = s
	w.mu.Unlock()
}
