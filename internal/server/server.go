// Package server implements the Server & request dispatcher: the TCP
// accept loops for input video/audio streams, atomic sink-port allocation,
// the active Case table, and the control operations the UI drives
// (composite mode, switching, PIP adjustment, recording).
//
// Grounded on gst-switch's original tools/server/gstserver.c for the
// accept-loop/case-table shape, and on
// helix/api/pkg/desktop/session_registry.go for the Go idiom of a
// mutex-protected map keyed by an integer handle with atomic allocation.
package server

import (
	"context"
	"fmt"
	"net"
	"sync"

	"github.com/rs/zerolog"

	"github.com/mithro/gst-switch/internal/composite"
	"github.com/mithro/gst-switch/internal/config"
	"github.com/mithro/gst-switch/internal/format"
	"github.com/mithro/gst-switch/internal/pipelinecase"
	"github.com/mithro/gst-switch/internal/recorder"
	"github.com/mithro/gst-switch/internal/surface"
)

// PreviewPort describes one currently active preview/branch case, returned
// by GetPreviewPorts.
type PreviewPort struct {
	Port      int
	ServeType pipelinecase.ServeType
	CaseType  pipelinecase.Type
}

// Dispatcher owns the active Case list, the Composite, the Recorder, and
// the acceptor loops for incoming video/audio TCP connections. It is the
// single implementation behind the NATS control subjects, the HTTP status
// endpoint, and direct in-process calls.
type Dispatcher struct {
	cfg *config.ServerConfig
	log zerolog.Logger

	registry *surface.Registry
	events   composite.Events

	allocMu  sync.Mutex
	nextPort int

	casesMu sync.Mutex
	cases   map[int]*pipelinecase.Case // input cases keyed by sink_port; composite-side and companion cases by roleCaseKey

	compositeMu sync.Mutex
	comp        *composite.Composite

	recorderMu sync.Mutex
	rec        *recorder.Recorder

	roleMu    sync.Mutex
	activeA   int // sink_port currently feeding composite_a, 0 if none
	activeB   int
	activeAud int

	videoListener net.Listener
	audioListener net.Listener
	acceptWG      sync.WaitGroup
}

// New constructs a Dispatcher. events, if nil, discards lifecycle signals
// (tests that don't care about the event bus can omit it).
func New(cfg *config.ServerConfig, events composite.Events, log zerolog.Logger) *Dispatcher {
	d := &Dispatcher{
		cfg:      cfg,
		log:      log.With().Str("component", "server").Logger(),
		registry: surface.NewRegistry(),
		events:   events,
		nextPort: cfg.MinSinkPort,
		cases:    make(map[int]*pipelinecase.Case),
	}

	canvas, err := format.ParseFormat(cfg.DefaultCapsAlias())
	canvasW, canvasH := 1280, 720
	if err == nil {
		canvasW, canvasH = canvas.Width, canvas.Height
	}

	d.comp = composite.New(composite.Config{
		CanvasW:           canvasW,
		CanvasH:           canvasH,
		BuildMixerString:  buildMixerString,
		BuildScalerString: buildScalerString,
		Events:            events,
	}, log)

	if cfg.RecordTemplate != "" {
		d.rec = newRecorderFromConfig(cfg, log)
	}

	return d
}

// newRecorderFromConfig builds a Recorder bound to cfg's filename template.
func newRecorderFromConfig(cfg *config.ServerConfig, log zerolog.Logger) *recorder.Recorder {
	return recorder.New(recorder.Config{
		Template: cfg.RecordTemplate,
		SinkHost: "0.0.0.0",
		SinkPort: 0,
	}, log, nil)
}

// Composite exposes the Dispatcher's Composite for direct wiring (tests,
// CLI startup).
func (d *Dispatcher) Composite() *composite.Composite { return d.comp }

// allocPort returns the next free sink port in [MinSinkPort, MaxSinkPort],
// wrapping around and skipping ports already in the case table.
func (d *Dispatcher) allocPort() (int, error) {
	d.allocMu.Lock()
	defer d.allocMu.Unlock()

	lo, hi := d.cfg.MinSinkPort, d.cfg.MaxSinkPort
	span := hi - lo + 1

	for i := 0; i < span; i++ {
		candidate := d.nextPort
		d.nextPort++
		if d.nextPort > hi {
			d.nextPort = lo
		}

		d.casesMu.Lock()
		_, used := d.cases[candidate]
		d.casesMu.Unlock()
		if !used {
			return candidate, nil
		}
	}
	return 0, fmt.Errorf("server: no free sink port in [%d,%d]", lo, hi)
}

// ListenAndServe opens the video and audio acceptor listeners and blocks
// until ctx is cancelled.
func (d *Dispatcher) ListenAndServe(ctx context.Context) error {
	videoAddr := fmt.Sprintf(":%d", d.cfg.VideoInputPort)
	audioAddr := fmt.Sprintf(":%d", d.cfg.AudioInputPort)

	vl, err := net.Listen("tcp", videoAddr)
	if err != nil {
		return fmt.Errorf("server: listen video: %w", err)
	}
	al, err := net.Listen("tcp", audioAddr)
	if err != nil {
		vl.Close()
		return fmt.Errorf("server: listen audio: %w", err)
	}
	d.videoListener, d.audioListener = vl, al

	d.acceptWG.Add(2)
	go d.acceptLoop(ctx, vl, pipelinecase.InputVideo)
	go d.acceptLoop(ctx, al, pipelinecase.InputAudio)

	<-ctx.Done()
	vl.Close()
	al.Close()
	d.acceptWG.Wait()
	return nil
}

// acceptLoop is the per-protocol TCP acceptor thread.
func (d *Dispatcher) acceptLoop(ctx context.Context, l net.Listener, inputType pipelinecase.Type) {
	defer d.acceptWG.Done()
	for {
		conn, err := l.Accept()
		if err != nil {
			select {
			case <-ctx.Done():
				return
			default:
				d.log.Warn().Err(err).Str("listener", inputType.String()).Msg("accept failed")
				return
			}
		}
		go d.handleConnection(ctx, conn, inputType)
	}
}

// handleConnection handles a single accepted stream: allocate a port,
// create the input Case plus its companion publishing case(s), register,
// and start both.
func (d *Dispatcher) handleConnection(ctx context.Context, conn net.Conn, inputType pipelinecase.Type) {
	port, err := d.allocPort()
	if err != nil {
		d.log.Error().Err(err).Msg("no free sink port; dropping connection")
		conn.Close()
		return
	}

	caps, _ := format.ParseFormat(d.cfg.DefaultCapsAlias())
	name := fmt.Sprintf("%s-%d", inputType, port)
	inputCase := pipelinecase.New(name, inputType, port, caps, d.log)
	inputCase.SetSource(conn)

	d.casesMu.Lock()
	d.cases[port] = inputCase
	d.casesMu.Unlock()

	if err := inputCase.Worker().Start(ctx); err != nil {
		d.log.Error().Err(err).Int("port", port).Msg("failed to start input case")
		return
	}
	d.publish("gst-switch.events.start-worker", name)

	d.startCompanion(ctx, inputType, port, caps)
}

// startCompanion creates the PREVIEW/COMPOSITE_AUDIO publishing case that
// republishes an input Surface.
func (d *Dispatcher) startCompanion(ctx context.Context, inputType pipelinecase.Type, port int, caps format.Caps) {
	var companionType pipelinecase.Type
	switch inputType {
	case pipelinecase.InputVideo:
		companionType = pipelinecase.Preview
	case pipelinecase.InputAudio:
		companionType = pipelinecase.CompositeAudio
	default:
		return
	}

	name := fmt.Sprintf("%s-%d", companionType, port)
	companion := pipelinecase.New(name, companionType, port, caps, d.log)

	d.casesMu.Lock()
	d.cases[roleCaseKey(companionType, port)] = companion
	d.casesMu.Unlock()

	if err := companion.Worker().Start(ctx); err != nil {
		d.log.Error().Err(err).Int("port", port).Msg("failed to start companion case")
	}
}

// Shutdown stops every active Case, the Composite mixer, and the Recorder.
func (d *Dispatcher) Shutdown() {
	d.casesMu.Lock()
	cases := make([]*pipelinecase.Case, 0, len(d.cases))
	for _, c := range d.cases {
		cases = append(cases, c)
	}
	d.casesMu.Unlock()

	for _, c := range cases {
		c.CloseSource()
		c.Worker().Stop(false)
	}
	d.comp.Deprecate()

	d.recorderMu.Lock()
	rec := d.rec
	d.recorderMu.Unlock()
	if rec != nil {
		rec.Stop()
	}
}

func (d *Dispatcher) publish(subject string, payload any) {
	if d.events != nil {
		d.events.Publish(subject, payload)
	}
}
